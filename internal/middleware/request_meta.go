package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/alumni-network-api/internal/service"
)

// RequestMeta copies the client address and user agent into the request context so workflow
// audit rows can record who triggered them.
func RequestMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := service.WithRequestMeta(c.Request.Context(), service.RequestMeta{
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
