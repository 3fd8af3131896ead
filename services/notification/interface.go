package notification

import (
	"context"
	"errors"

	"voltslot/models"

	"go.uber.org/zap"
)

// Notifier delivers a message to a reservation owner.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// MultiNotifier fans a message out to every channel. Delivery succeeds if at
// least one delivering channel accepted it; otherwise the joined channel errors
// are returned. Record-only channels such as the log never count as a delivery.
type MultiNotifier struct {
	channels []Notifier
	logger   *zap.Logger
	onFail   func(channel string)
}

// Named lets a channel label its failures in logs and metrics.
type Named interface {
	Channel() string
}

func NewMultiNotifier(logger *zap.Logger, onFail func(channel string), channels ...Notifier) *MultiNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiNotifier{channels: channels, logger: logger, onFail: onFail}
}

func (m *MultiNotifier) Notify(ctx context.Context, n models.Notification) error {
	var errs []error
	delivered := 0
	for _, ch := range m.channels {
		if err := ch.Notify(ctx, n); err != nil {
			if errors.Is(err, ErrNoRecipient) {
				continue
			}
			name := channelName(ch)
			m.logger.Warn("notification channel failed", zap.String("channel", name), zap.Error(err))
			if m.onFail != nil {
				m.onFail(name)
			}
			errs = append(errs, err)
			continue
		}
		if _, ok := ch.(recordOnly); !ok {
			delivered++
		}
	}
	if delivered == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func channelName(n Notifier) string {
	if c, ok := n.(Named); ok {
		return c.Channel()
	}
	return "unknown"
}

// ErrNoRecipient means the channel has no address for this user; it is not a failure.
var ErrNoRecipient = errors.New("no recipient for channel")

// recordOnly marks channels that keep a record of a message without reaching the user.
type recordOnly interface {
	recordOnly()
}

// LogNotifier writes notifications to the log. Used when no delivery
// credentials are configured.
type LogNotifier struct {
	logger *zap.Logger
}

func (l *LogNotifier) recordOnly() {}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Channel() string { return "log" }

func (l *LogNotifier) Notify(_ context.Context, n models.Notification) error {
	l.logger.Info("notification",
		zap.String("email", n.Email),
		zap.String("subject", n.Subject),
		zap.String("body", n.Body),
		zap.Any("data", n.Data),
	)
	return nil
}
