package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/schedulo/verify/internal/services"
)

func parseUUID(value string) (uuid.UUID, bool) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func getRequestID(c *fiber.Ctx) string {
	if v := c.Locals("requestID"); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// deviceInfoFromCtx collects the stable request characteristics the device
// fingerprint is derived from. The caller forwards the end user's headers
// verbatim, so these reflect the browser, not the calling service.
func deviceInfoFromCtx(c *fiber.Ctx) services.DeviceInfo {
	return services.DeviceInfo{
		UserAgent:      c.Get("User-Agent"),
		Accept:         c.Get("Accept"),
		AcceptLanguage: c.Get("Accept-Language"),
		SourceIP:       c.IP(),
	}
}
