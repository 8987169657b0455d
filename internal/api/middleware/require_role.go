package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/voxaura/internal/utils"
)

// RequireRole runs after JWTAuth and admits only the listed app roles.
func RequireRole(allowed ...string) gin.HandlerFunc {
	roles := make(map[string]bool, len(allowed))
	for _, r := range allowed {
		if r = normalizeRole(r); r != "" {
			roles[r] = true
		}
	}

	return func(c *gin.Context) {
		role, _ := c.Get("role")
		s, _ := role.(string)
		if !roles[normalizeRole(s)] {
			c.AbortWithStatusJSON(http.StatusForbidden, apiError{
				Code:    utils.CodeForbidden,
				Message: "admin role required",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin guards the /admin group.
func RequireAdmin() gin.HandlerFunc { return RequireRole("admin") }

func normalizeRole(r string) string { return strings.ToLower(strings.TrimSpace(r)) }
