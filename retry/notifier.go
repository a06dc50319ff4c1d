package retry

import (
	"context"
	"time"

	"github.com/marcelsud/webhook-dispatcher/subscription"
	"go.uber.org/zap"
)

// FailureAlert describes a subscription whose failure streak reached the threshold
type FailureAlert struct {
	WebhookID           string
	Name                string
	URL                 string
	ConsecutiveFailures int64
	LastResponseCode    int
	LastError           string
	At                  time.Time
}

// NewFailureAlert builds an alert without the subscription secret
func NewFailureAlert(sub subscription.Subscription, stats subscription.Stats, lastErr string, at time.Time) FailureAlert {
	return FailureAlert{
		WebhookID:           sub.ID,
		Name:                sub.Name,
		URL:                 sub.URL,
		ConsecutiveFailures: stats.ConsecutiveFailures,
		LastResponseCode:    stats.LastResponseCode,
		LastError:           lastErr,
		At:                  at,
	}
}

// Notifier is told when a subscription keeps failing
type Notifier interface {
	NotifyFailure(ctx context.Context, alert FailureAlert) error
}

// LogNotifier reports alerts as error logs, which reach Sentry when configured
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyFailure(_ context.Context, alert FailureAlert) error {
	n.logger.Error("webhook failure threshold reached",
		zap.String("webhook_id", alert.WebhookID),
		zap.String("name", alert.Name),
		zap.String("url", alert.URL),
		zap.Int64("consecutive_failures", alert.ConsecutiveFailures),
		zap.Int("last_response_code", alert.LastResponseCode),
		zap.String("last_error", alert.LastError),
		zap.Time("at", alert.At),
	)
	return nil
}
