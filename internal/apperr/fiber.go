package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// FiberErrorHandler renders classified errors as JSON. Causes are logged for
// server-side kinds and never written to the response.
func FiberErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *Error
		if errors.As(err, &appErr) {
			status := appErr.Status()
			if status >= fiber.StatusInternalServerError {
				logger.Error("request failed",
					zap.String("kind", string(appErr.Kind)),
					zap.String("path", c.Path()),
					zap.Error(err),
				)
			}
			body := fiber.Map{"error": appErr.PublicMessage(), "kind": appErr.Kind}
			if appErr.Retryable {
				body["retryable"] = true
			}
			return c.Status(status).JSON(body)
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		logger.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msgInternal})
	}
}
