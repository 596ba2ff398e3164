package notification

import (
	"context"

	"go.uber.org/zap"
)

const (
	// KindPasswordReset carries a password recovery link.
	KindPasswordReset = "password_reset"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Subject     string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger instead of delivering
// them. Bodies can hold secrets such as reset links, so they are only
// emitted at debug level.
type LoggerNotifier struct {
	logger *zap.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *zap.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		zap.String("kind", message.Kind),
		zap.String("destination", message.Destination),
		zap.String("subject", message.Subject),
	)
	n.logger.Debug("notification body", zap.String("kind", message.Kind), zap.String("body", message.Body))
	return nil
}
