package middleware

import (
	"github.com/gin-gonic/gin"
	"wequack/pkg/errors"
)

// ErrorHandler renders the last error a handler attached with c.Error,
// unless a response was already written.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last()
		statusCode := errors.HTTPStatusFromError(err.Err)
		message := err.Error()
		// Внутренние ошибки не раскрываем клиенту
		if statusCode >= 500 {
			message = "Internal server error"
		}

		c.JSON(statusCode, gin.H{"error": message})
	}
}
