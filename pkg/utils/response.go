package utils

import "github.com/gofiber/fiber/v2"

func Success(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// ErrorWithData is used for typed verification outcomes that must carry
// enough state for the caller's UI (remaining attempts, retry-after).
func ErrorWithData(c *fiber.Ctx, status int, code string, data fiber.Map) error {
	payload := fiber.Map{
		"success": false,
		"error":   code,
	}
	for k, v := range data {
		payload[k] = v
	}
	return c.Status(status).JSON(payload)
}
