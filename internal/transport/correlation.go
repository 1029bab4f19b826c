package transport

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/coursehub/notification-engine/internal/observability"
)

const correlationIDHeader = "X-Correlation-ID"

// CorrelationMiddleware adopts the caller's correlation id or mints one,
// stamps it on the request context for downstream logging, and echoes it
// in the response.
func CorrelationMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		correlationID := c.Get(correlationIDHeader)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), correlationID))
		c.Set(correlationIDHeader, correlationID)

		return c.Next()
	}
}
