package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"

	// HeaderTenant names the school the request is addressed to.
	HeaderTenant = "X-Tenant-ID"
)

// RequireJWT validates a bearer JWT from the Authorization header and checks
// that the X-Tenant-ID header matches the token's tenant.
func RequireJWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c.GetHeader("Authorization"))
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		authorize(c, authService, tokenStr, c.GetHeader(HeaderTenant))
	}
}

// RequireWSAuth validates ?token=...&tenant=... on WebSocket upgrade
// requests, which cannot carry custom headers from a browser.
func RequireWSAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		tenant := c.Query("tenant")
		if tenant == "" {
			tenant = c.GetHeader(HeaderTenant)
		}
		authorize(c, authService, tokenStr, tenant)
	}
}

func authorize(c *gin.Context, authService *service.AuthService, tokenStr, tenant string) {
	claims, err := authService.ValidateToken(tokenStr)
	if err != nil {
		code := response.ErrTokenInvalid
		if errors.Is(err, service.ErrTokenExpired) {
			code = response.ErrTokenExpired
		}
		response.AbortFail(c, http.StatusUnauthorized, code)
		return
	}

	if tenant == "" {
		response.AbortFail(c, http.StatusBadRequest, response.ErrTenantRequired)
		return
	}
	if tenant != claims.TenantID {
		response.AbortFail(c, http.StatusForbidden, response.ErrTenantMismatch)
		return
	}

	c.Set(ContextKeyClaims, claims)
	c.Next()
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
