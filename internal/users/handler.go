package users

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nalanda-backend/internal/platform/apierr"
	"nalanda-backend/internal/platform/auth"
)

// CookieConfig controls the session cookie written next to the JSON token.
type CookieConfig struct {
	MaxAge int // 秒
	Secure bool
}

type Handler struct {
	svc    *Service
	cookie CookieConfig
}

func RegisterRoutes(r gin.IRouter, svc *Service, requireAuth gin.HandlerFunc, cookie CookieConfig) {
	h := &Handler{svc: svc, cookie: cookie}

	g := r.Group("/auth")
	g.POST("/register", h.Register)
	g.POST("/verify-otp", h.VerifyOTP)
	g.POST("/login", h.Login)
	g.GET("/logout", requireAuth, h.Logout)
	g.GET("/me", requireAuth, h.Me)
	g.POST("/password/forget", h.ForgotPassword)
	g.PUT("/password/reset/:token", h.ResetPassword)
	g.PUT("/password/update", requireAuth, h.UpdatePassword)
}

func (h *Handler) sendSession(c *gin.Context, status int, msg string, s Session) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, s.Token, h.cookie.MaxAge, "/", "", h.cookie.Secure, true)
	c.JSON(status, gin.H{
		"success":    true,
		"message":    msg,
		"user":       s.User,
		"token":      s.Token,
		"expires_at": s.ExpiresAt,
	})
}

// Register godoc
// @Summary  Register and receive a verification code by mail
// @Tags     auth
// @Accept   json
// @Produce  json
// @Param    body body RegisterRequest true "account"
// @Success  200
// @Failure  400 {object} apierr.ErrorDTO
// @Router   /auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c)
		return
	}
	msg, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

// VerifyOTP godoc
// @Summary  Verify the mailed code and start a session
// @Tags     auth
// @Accept   json
// @Produce  json
// @Param    body body VerifyOTPRequest true "email and code"
// @Success  200 {object} UserResponse
// @Failure  400 {object} apierr.ErrorDTO
// @Failure  404 {object} apierr.ErrorDTO
// @Router   /auth/verify-otp [post]
func (h *Handler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c)
		return
	}
	s, err := h.svc.VerifyOTP(c.Request.Context(), req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	h.sendSession(c, http.StatusOK, "account verified", s)
}

// Login godoc
// @Summary  Log in
// @Tags     auth
// @Accept   json
// @Produce  json
// @Param    body body LoginRequest true "credentials"
// @Success  200 {object} UserResponse
// @Failure  400 {object} apierr.ErrorDTO
// @Router   /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c)
		return
	}
	s, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	h.sendSession(c, http.StatusOK, "user logged in successfully", s)
}

func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, "", -1, "/", "", h.cookie.Secure, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "logged out successfully"})
}

// Me godoc
// @Summary  Current user with borrowed books
// @Tags     auth
// @Produce  json
// @Success  200 {object} UserResponse
// @Failure  401 {object} apierr.ErrorDTO
// @Security BearerAuth
// @Router   /auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	u, err := h.svc.Me(c.Request.Context(), auth.UserID(c))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": u})
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c)
		return
	}
	msg, err := h.svc.ForgotPassword(c.Request.Context(), req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c)
		return
	}
	s, err := h.svc.ResetPassword(c.Request.Context(), c.Param("token"), req)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	h.sendSession(c, http.StatusOK, "password reset successfully", s)
}

func (h *Handler) UpdatePassword(c *gin.Context) {
	var req UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadJSON(c)
		return
	}
	if err := h.svc.UpdatePassword(c.Request.Context(), auth.UserID(c), req); err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "password updated"})
}
