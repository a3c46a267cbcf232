package reports

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

	g := r.Group("/borrow", requireAuth, auth.RequireRole(auth.RoleAdmin))
	g.GET("/most-borrowed-book", h.MostBorrowed)
	g.GET("/most-active-user", h.MostActiveMembers)
	g.GET("/book-avail-report", h.AvailabilityReport)
}

func limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		apierr.Respond(c, apierr.ErrInvalid("limit must be a non-negative integer"))
		return 0, false
	}
	return n, true
}

// MostBorrowed godoc
// @Summary  Books ranked by lifetime borrow count
// @Tags     reports
// @Produce  json
// @Param    limit query int false "number of books (default 1, max 100)"
// @Success  200 {array}  MostBorrowedBook
// @Failure  400 {object} apierr.ErrorDTO
// @Security BearerAuth
// @Router   /borrow/most-borrowed-book [get]
func (h *Handler) MostBorrowed(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	res, err := h.svc.MostBorrowed(c.Request.Context(), limit)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "most_borrowed_books": res})
}

// MostActiveMembers godoc
// @Summary  Members ranked by number of borrows
// @Tags     reports
// @Produce  json
// @Param    limit query int false "number of members (default 5, max 100)"
// @Success  200 {array}  ActiveMember
// @Failure  400 {object} apierr.ErrorDTO
// @Security BearerAuth
// @Router   /borrow/most-active-user [get]
func (h *Handler) MostActiveMembers(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	res, err := h.svc.MostActiveMembers(c.Request.Context(), limit)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "most_active_members": res})
}

// AvailabilityReport godoc
// @Summary  Shelf and loan totals across the catalog
// @Tags     reports
// @Produce  json
// @Success  200 {object} AvailabilityReport
// @Security BearerAuth
// @Router   /borrow/book-avail-report [get]
func (h *Handler) AvailabilityReport(c *gin.Context) {
	res, err := h.svc.AvailabilityReport(c.Request.Context())
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": res})
}
