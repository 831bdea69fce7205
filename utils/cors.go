package utils

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods       = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsHeaders       = "Authorization, Content-Type, Accept, X-Share-Password"
	corsExposeHeaders = "Content-Length, Content-Type, Content-Disposition"
)

// CORSMiddleware answers browser clients from the allowed origins. An empty
// list or "*" allows any origin. Requests from other origins get no CORS
// headers, and their preflights are refused.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAll = true
		}
		allowed[strings.ToLower(o)] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		preflight := c.Request.Method == http.MethodOptions
		switch {
		case origin == "":
			if allowAll {
				c.Header("Access-Control-Allow-Origin", "*")
			}
		case allowAll || allowed[strings.ToLower(origin)]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		default:
			if preflight {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}
		c.Header("Access-Control-Allow-Methods", corsMethods)
		c.Header("Access-Control-Allow-Headers", corsHeaders)
		c.Header("Access-Control-Expose-Headers", corsExposeHeaders)

		if preflight {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
