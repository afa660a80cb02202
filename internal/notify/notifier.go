package notify

import (
	"context"
	"log/slog"

	"milkwatch/internal/model"
)

// Notifier delivers one decided alert. Delivery failures are the channel's
// problem; the engine treats a decided alert as sent either way to keep a
// flapping channel from producing alert storms.
type Notifier interface {
	Send(ctx context.Context, alert model.Alert) error
	Close() error
}

// LogNotifier writes alerts to the structured log. Always installed so a
// deployment without SMTP or Kafka still surfaces every alert somewhere.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, alert model.Alert) error {
	if n.logger != nil {
		n.logger.Warn("alert",
			"kind", alert.Kind,
			"device_id", alert.DeviceID,
			"user_id", alert.UserID,
			"email", alert.Email,
			"weight_g", alert.WeightGrams,
			"threshold_g", alert.ThresholdG,
		)
	}
	return nil
}

func (n *LogNotifier) Close() error { return nil }

// Multi fans one alert out to several channels. Every channel is attempted;
// the first error is returned.
type Multi struct {
	notifiers []Notifier
}

func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) Send(ctx context.Context, alert model.Alert) error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, alert); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Multi) Close() error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
