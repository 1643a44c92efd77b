// Package notification implements outbound delivery of evaluated
// signals to end users over Telegram, a generic webhook, or (for
// local development) a log line — each satisfying model.Sender.
package notification

import (
	"context"
	"errors"
	"log"
	"time"

	"tradingsignalcore/internal/model"
)

// ErrUserBlocked is returned by Send when the transport reports the
// recipient has blocked the bot/endpoint — a terminal condition the
// notification queue uses to stop retrying and add the user to its
// in-memory blocklist.
var ErrUserBlocked = errors.New("notification: user has blocked delivery")

// LogSender logs messages instead of delivering them, useful for local
// development and tests.
type LogSender struct{}

// NewLogSender creates a log-based Sender.
func NewLogSender() *LogSender { return &LogSender{} }

func (s *LogSender) Send(ctx context.Context, userID int64, message string, critical bool) (float64, error) {
	start := time.Now()
	level := "info"
	if critical {
		level = "critical"
	}
	log.Printf("[notify-log] [%s] user=%d: %s", level, userID, message)
	return float64(time.Since(start).Milliseconds()), nil
}

var (
	_ model.Sender = (*LogSender)(nil)
	_ model.Sender = (*TelegramSender)(nil)
	_ model.Sender = (*WebhookSender)(nil)
)
