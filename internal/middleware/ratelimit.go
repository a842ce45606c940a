package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/schedulo/verify/internal/ratelimit"
	"github.com/schedulo/verify/pkg/logger"
	"github.com/schedulo/verify/pkg/utils"
)

// RateLimit applies the per-tenant API limiter. A limiter outage fails open:
// verification must keep working when Redis is down, so only a definite
// over-limit answer rejects the request.
func RateLimit(limiter ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity := c.IP()
		if tenantID := CurrentTenant(c); tenantID != uuid.Nil {
			identity = tenantID.String()
		}

		ok, err := limiter.Allow(c.Context(), identity)
		if err != nil {
			logger.Warn("rate_limiter_unavailable", map[string]interface{}{
				"error": err.Error(),
			})
			return c.Next()
		}
		if !ok {
			return utils.Error(c, fiber.StatusTooManyRequests, "rate limit exceeded")
		}

		return c.Next()
	}
}
