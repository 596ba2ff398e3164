package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/metlabs/metlabs_back/internal/apperr"
	"github.com/metlabs/metlabs_back/internal/metrics"
)

// Audit emits structured logs and request metrics for each request.
func Audit(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			// The error handler has not rendered the response yet.
			status = apperr.HTTPStatus(err)
		}
		metrics.ObserveHTTP(c.Method(), c.Route().Path, status)

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		}
		if requestID := RequestIDFrom(c); requestID != "" {
			fields = append(fields, zap.String("request_id", requestID))
		}
		if uid, ok := c.Locals(UserIDLocal).(string); ok && uid != "" {
			fields = append(fields, zap.String("user_id", uid))
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			logger.Error("request completed", append(fields, zap.Error(err))...)
		case err != nil:
			logger.Info("request completed", append(fields, zap.String("error_kind", string(apperr.KindOf(err))))...)
		default:
			logger.Info("request completed", fields...)
		}
		return err
	}
}
