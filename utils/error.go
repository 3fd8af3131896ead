package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse defines the structure of error responses
type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorHandler is a middleware to catch panics and return structured errors
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Unhandled panic",
					zap.Any("error", err),
					zap.String("path", c.FullPath()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Message: "Internal Server Error",
					Details: "An unexpected error occurred. Please try again later.",
				})
			}
		}()
		c.Next()
	}
}

// JSONError sends a standardized JSON error response
func JSONError(c *gin.Context, status int, message string, details string) {
	JSONErrorWithData(c, status, message, details, nil)
}

// JSONErrorWithData is JSONError plus a machine-readable payload such as the
// conflicting windows of a rejected booking.
func JSONErrorWithData(c *gin.Context, status int, message, details string, data any) {
	lvl := GetLogger().Warn
	if status >= http.StatusInternalServerError {
		lvl = GetLogger().Error
	}
	lvl(message, zap.String("details", details), zap.Int("status", status), zap.String("path", c.FullPath()))
	c.AbortWithStatusJSON(status, ErrorResponse{Message: message, Details: details, Data: data})
}
