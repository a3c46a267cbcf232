package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"nalanda-backend/internal/platform/apierr"
)

const (
	CtxUserIDKey = "user_id"
	CtxRoleKey   = "role"

	CookieName = "token"
)

// RequireAuth: Authorization: Bearer <token> か token クッキーを検証して context に sub/role を詰める
func RequireAuth(iss *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearer(c)
		if !ok {
			apierr.Respond(c, apierr.ErrUnauthorized("user is not authenticated"))
			return
		}

		claims, err := iss.Parse(tokenStr)
		if err != nil {
			apierr.Respond(c, apierr.ErrUnauthorized("invalid or expired token"))
			return
		}

		c.Set(CtxUserIDKey, claims.Subject)
		c.Set(CtxRoleKey, claims.Role)
		c.Next()
	}
}

func bearer(c *gin.Context) (string, bool) {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", false
		}
		tok := strings.TrimSpace(parts[1])
		return tok, tok != ""
	}
	if tok, err := c.Cookie(CookieName); err == nil && tok != "" {
		return tok, true
	}
	return "", false
}

// RequireRole: 例) admin のみ許可したい時に追加
func RequireRole(roles ...string) gin.HandlerFunc {
	roleSet := make(map[string]struct{})
	for _, r := range roles {
		if r == "" {
			continue
		}
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role := c.GetString(CtxRoleKey)
		if role == "" {
			apierr.Respond(c, apierr.ErrForbidden("missing role"))
			return
		}
		if _, allowed := roleSet[role]; !allowed {
			apierr.Respond(c, apierr.ErrForbidden("role "+role+" is not allowed to access this resource"))
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller set by RequireAuth.
func UserID(c *gin.Context) string { return c.GetString(CtxUserIDKey) }
