// Package middleware holds the hub's gin middleware: bearer-token auth and
// prometheus metrics.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"clinic-sync/backend/internal/security"
)

const bearerPrefix = "bearer "

const (
	ctxOperatorID   = "operator_id"
	ctxOperatorName = "operator_name"
	ctxOperatorRole = "operator_role"
)

// Auth returns a gin middleware that validates the Bearer (access) token and
// sets the operator identity on the request context. Requests without a valid
// token get 401.
func Auth(tokens *security.TokenProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization"})
			return
		}
		operatorID, operatorName, role, err := tokens.ValidateAccess(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization"})
			return
		}
		c.Set(ctxOperatorID, operatorID)
		c.Set(ctxOperatorName, operatorName)
		c.Set(ctxOperatorRole, role)
		c.Next()
	}
}

// Operator returns the authenticated operator identity set by Auth.
func Operator(c *gin.Context) (id, name string, ok bool) {
	id = c.GetString(ctxOperatorID)
	name = c.GetString(ctxOperatorName)
	return id, name, id != ""
}

// extractBearer returns the Bearer token from the Authorization header value,
// or "" if missing or malformed.
func extractBearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
