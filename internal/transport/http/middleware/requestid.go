package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/ErlanBelekov/catalog-access/internal/requestid"
)

const requestIDHeader = "X-Request-ID"

// RequestID keeps a well-formed incoming X-Request-ID and replaces anything
// else with a fresh UUID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if !requestid.Valid(id) {
			id = requestid.New()
		}

		c.Request = c.Request.WithContext(requestid.WithRequestID(c.Request.Context(), id))
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
