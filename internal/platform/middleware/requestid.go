package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nalanda-backend/internal/platform/apierr"
)

const HeaderRequestID = "X-Request-ID"

// RequestID reuses a well-formed incoming X-Request-ID or mints a new one,
// stores it on the context and echoes it in the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(apierr.RequestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}
