package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// RequireStudent admits student tokens only.
func RequireStudent() gin.HandlerFunc {
	return requireRole(response.ErrStudentAccessOnly, service.RoleStudent)
}

// RequireStaff admits teachers and admins.
func RequireStaff() gin.HandlerFunc {
	return requireRole(response.ErrStaffAccessOnly, service.RoleTeacher, service.RoleAdmin)
}

func requireRole(code response.ErrCode, roles ...service.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if !slices.Contains(roles, claims.Role) {
			response.AbortFail(c, http.StatusForbidden, code)
			return
		}
		c.Next()
	}
}
