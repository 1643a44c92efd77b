package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// TelegramSender delivers signal notifications via the Telegram Bot
// API, keyed per-call by the recipient's chat ID (model.User.ChatID).
type TelegramSender struct {
	botToken string
	client   *http.Client
}

// NewTelegramSender creates a Telegram-backed Sender using botToken
// from @BotFather.
func NewTelegramSender(botToken string) *TelegramSender {
	return &TelegramSender{
		botToken: botToken,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramSender) Send(ctx context.Context, userID int64, message string, critical bool) (float64, error) {
	start := time.Now()

	emoji := "ℹ️"
	if critical {
		emoji = "\U0001F6A8"
	}
	text := emoji + " " + escapeMarkdown(message)

	body, _ := json.Marshal(map[string]interface{}{
		"chat_id":    strconv.FormatInt(userID, 10),
		"text":       text,
		"parse_mode": "MarkdownV2",
	})

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return latencyMS(start), fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return latencyMS(start), fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return latencyMS(start), ErrUserBlocked
	}
	if resp.StatusCode != http.StatusOK {
		return latencyMS(start), fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}

	return latencyMS(start), nil
}

func latencyMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	specials := []byte{'_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!'}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		for _, sp := range specials {
			if s[i] == sp {
				buf.WriteByte('\\')
				break
			}
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
