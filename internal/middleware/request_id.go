package middleware

import (
	"crypto/rand"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

const (
	ContextRequestID = "request_id"
	HeaderRequestID  = "X-Request-ID"
)

// RequestID keeps a client supplied X-Request-ID or assigns a new one,
// and echoes it back on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" || len(requestID) > 64 {
			requestID = ulid.MustNew(ulid.Now(), rand.Reader).String()
		}

		c.Set(ContextRequestID, requestID)
		c.Header(HeaderRequestID, requestID)

		c.Next()
	}
}
