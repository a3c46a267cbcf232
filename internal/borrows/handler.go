package borrows

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nalanda-backend/internal/platform/apierr"
	"nalanda-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRouter, svc *Service, requireAuth gin.HandlerFunc) {
	h := &Handler{svc: svc}

	g := r.Group("/borrow", requireAuth)
	g.GET("/my-borrowed-books", h.MyBorrowedBooks)

	admin := g.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/record-borrow-book/:id", h.BorrowBook)
	admin.PUT("/return-borrowed-book/:bookId", h.ReturnBook)
	admin.GET("/borrowed-books-by-user", h.ListBorrowRecords)
	admin.POST("/admin/sweep-overdue", h.SweepOverdue)
}

// BorrowBook godoc
// @Summary  Record a borrow for a member
// @Tags     borrow
// @Accept   json
// @Produce  json
// @Param    id   path string        true "book id"
// @Param    body body BorrowRequest true "member email and optional due date"
// @Success  201 {object} BorrowResult
// @Failure  400 {object} apierr.ErrorDTO
// @Failure  404 {object} apierr.ErrorDTO
// @Security BearerAuth
// @Router   /borrow/record-borrow-book/{id} [post]
func (h *Handler) BorrowBook(c *gin.Context) {
	var req BorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c)
		return
	}
	res, err := h.svc.BorrowBook(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":       true,
		"message":       res.Message,
		"borrow_record": res.BorrowRecord,
		"updated_book":  res.UpdatedBook,
	})
}

// ReturnBook godoc
// @Summary  Return a borrowed book
// @Tags     borrow
// @Accept   json
// @Produce  json
// @Param    bookId path string        true "book id"
// @Param    body   body ReturnRequest true "member email"
// @Success  200 {object} ReturnResult
// @Failure  400 {object} apierr.ErrorDTO
// @Failure  404 {object} apierr.ErrorDTO
// @Security BearerAuth
// @Router   /borrow/return-borrowed-book/{bookId} [put]
func (h *Handler) ReturnBook(c *gin.Context) {
	var req ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c)
		return
	}
	res, err := h.svc.ReturnBook(c.Request.Context(), c.Param("bookId"), req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       res.Message,
		"borrow_record": res.BorrowRecord,
		"book_title":    res.BookTitle,
		"updated_book":  res.UpdatedBook,
	})
}

// ListBorrowRecords godoc
// @Summary  Every borrow record, newest first
// @Tags     borrow
// @Produce  json
// @Success  200 {array}  RecordWithBookResponse
// @Failure  404 {object} apierr.ErrorDTO
// @Security BearerAuth
// @Router   /borrow/borrowed-books-by-user [get]
func (h *Handler) ListBorrowRecords(c *gin.Context) {
	res, err := h.svc.ListBorrowRecords(c.Request.Context())
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "borrowed_books": res})
}

// MyBorrowedBooks godoc
// @Summary  The caller's borrow records, newest first
// @Tags     borrow
// @Produce  json
// @Success  200 {array}  RecordWithBookResponse
// @Failure  404 {object} apierr.ErrorDTO
// @Security BearerAuth
// @Router   /borrow/my-borrowed-books [get]
func (h *Handler) MyBorrowedBooks(c *gin.Context) {
	res, err := h.svc.MyBorrowedBooks(c.Request.Context(), auth.UserID(c))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "borrowed_books": res})
}

func (h *Handler) SweepOverdue(c *gin.Context) {
	n, err := h.svc.SweepOverdue(c.Request.Context())
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "overdue sweep finished", "updated": n})
}
