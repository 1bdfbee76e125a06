package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veriloglab/judge-backend/internal/response"
	"github.com/veriloglab/judge-backend/internal/service"
)

// RequireRole checks that the JWT carries one of the given roles.
func RequireRole(roles ...service.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}

		response.AbortFail(c, http.StatusForbidden, response.ErrPermissionDenied)
	}
}

// RequireSelfOrAdmin allows admins, and learners whose id matches the path param.
func RequireSelfOrAdmin(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if claims.IsAdmin() || c.Param(param) == claims.UserID.String() {
			c.Next()
			return
		}
		response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
	}
}
