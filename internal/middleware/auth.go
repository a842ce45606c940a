package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/schedulo/verify/pkg/logger"
	"github.com/schedulo/verify/pkg/utils"
)

const (
	tenantIDKey = "tenantID"
	callerKey   = "caller"
)

// RequireServiceAuth validates the service-to-service token and pins the
// request to the tenant in its claims. Every data access downstream is
// scoped to that tenant id.
func RequireServiceAuth(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		logger.Warn("service_auth_missing_header", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "missing authorization header")
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if tokenString == authHeader || tokenString == "" {
		logger.Warn("service_auth_invalid_format", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
	}

	claims, err := utils.ValidateServiceToken(tokenString)
	if err != nil {
		logger.Warn("service_auth_validation_failed", map[string]interface{}{
			"ip":    c.IP(),
			"path":  c.Path(),
			"error": err.Error(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
	}

	c.Locals(tenantIDKey, claims.TenantID)
	c.Locals(callerKey, claims.Caller)
	return c.Next()
}

// CurrentTenant returns the tenant id the request is pinned to, or uuid.Nil
// outside an authenticated route.
func CurrentTenant(c *fiber.Ctx) uuid.UUID {
	if v := c.Locals(tenantIDKey); v != nil {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// CurrentCaller names the internal flow that sent the request.
func CurrentCaller(c *fiber.Ctx) string {
	if v := c.Locals(callerKey); v != nil {
		if caller, ok := v.(string); ok {
			return caller
		}
	}
	return ""
}
