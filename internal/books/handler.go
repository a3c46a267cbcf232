package books

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"nalanda-backend/internal/platform/apierr"
	"nalanda-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRouter, svc *Service, requireAuth gin.HandlerFunc) {
	h := &Handler{svc: svc}

	g := r.Group("/book", requireAuth)
	g.GET("/all", h.ListBooks)
	g.GET("/:id", h.GetBook)

	admin := g.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/admin/add", h.AddBook)
	admin.PUT("/admin/update/:id", h.UpdateBook)
	admin.DELETE("/delete/:id", h.DeleteBook)
}

// AddBook godoc
// @Summary  Add a book to the catalog
// @Tags     book
// @Accept   json
// @Produce  json
// @Param    body body CreateBookRequest true "book"
// @Success  201 {object} BookResponse
// @Failure  400 {object} apierr.ErrorDTO
// @Security BearerAuth
// @Router   /book/admin/add [post]
func (h *Handler) AddBook(c *gin.Context) {
	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c)
		return
	}
	res, err := h.svc.AddBook(c.Request.Context(), req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.Header("Location", "/api/v1/book/"+res.ID)
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "book added successfully", "book": res})
}

// ListBooks godoc
// @Summary  List books
// @Tags     book
// @Produce  json
// @Param    page   query int    false "page (1-based)"
// @Param    limit  query int    false "page size, max 100"
// @Param    genre  query string false "genre substring"
// @Param    author query string false "author substring"
// @Param    search query string false "title/author/genre substring"
// @Success  200 {object} BookListResponse
// @Security BearerAuth
// @Router   /book/all [get]
func (h *Handler) ListBooks(c *gin.Context) {
	q := BookSearchQuery{
		Genre:  c.Query("genre"),
		Author: c.Query("author"),
		Search: c.Query("search"),
	}
	p := Page{
		Page:  parseIntDefault(c.Query("page"), 1),
		Limit: parseIntDefault(c.Query("limit"), defaultLimit),
	}
	res, err := h.svc.ListBooks(c.Request.Context(), q, p)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"total_books":  res.TotalBooks,
		"current_page": res.CurrentPage,
		"total_pages":  res.TotalPages,
		"books":        res.Results,
	})
}

// GetBook godoc
// @Summary  Get a book with its borrow history
// @Tags     book
// @Produce  json
// @Param    id path string true "book id"
// @Success  200 {object} BookResponse
// @Failure  404 {object} apierr.ErrorDTO
// @Security BearerAuth
// @Router   /book/{id} [get]
func (h *Handler) GetBook(c *gin.Context) {
	res, err := h.svc.GetBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "book": res})
}

// UpdateBook godoc
// @Summary  Update a book
// @Tags     book
// @Accept   json
// @Produce  json
// @Param    id   path string            true "book id"
// @Param    body body UpdateBookRequest true "fields to change"
// @Success  200 {object} BookResponse
// @Failure  404 {object} apierr.ErrorDTO
// @Security BearerAuth
// @Router   /book/admin/update/{id} [put]
func (h *Handler) UpdateBook(c *gin.Context) {
	var req UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c)
		return
	}
	res, err := h.svc.UpdateBook(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "book updated successfully", "book": res})
}

// DeleteBook godoc
// @Summary  Delete a book
// @Tags     book
// @Param    id path string true "book id"
// @Success  200
// @Failure  404 {object} apierr.ErrorDTO
// @Security BearerAuth
// @Router   /book/delete/{id} [delete]
func (h *Handler) DeleteBook(c *gin.Context) {
	if err := h.svc.DeleteBook(c.Request.Context(), c.Param("id")); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "book deleted successfully"})
}

// ---------- helpers ----------

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
