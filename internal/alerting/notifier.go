package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notification summarises a collection run that needs operator attention.
type Notification struct {
	Command       string
	RunID         uuid.UUID
	FinishedAt    time.Time
	Requests      int
	Written       int
	Failed        int
	FailedUnits   []string
	Err           error
	AdditionalMsg string
}

// Notifier delivers run notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier posts messages via the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered run summary.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		// the bot token is part of the URL
		return fmt.Errorf("send telegram request: %s", strings.ReplaceAll(err.Error(), n.botToken, "***"))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("command", note.Command).
		Str("run_id", note.RunID.String()).
		Int("failed", note.Failed).
		Msg("run alert sent (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[odds-collector] %s needs attention\n", note.Command))
	if note.RunID != uuid.Nil {
		builder.WriteString(fmt.Sprintf("Run: %s\n", note.RunID))
	}
	if !note.FinishedAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Finished: %s UTC\n", note.FinishedAt.UTC().Format(time.RFC3339)))
	}
	builder.WriteString(fmt.Sprintf("Requests: %d, written: %d, failed: %d\n", note.Requests, note.Written, note.Failed))
	if len(note.FailedUnits) > 0 {
		builder.WriteString(fmt.Sprintf("Failed: %s\n", strings.Join(note.FailedUnits, ", ")))
	}
	if note.Err != nil {
		builder.WriteString(fmt.Sprintf("Error: %v\n", note.Err))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

// Nop discards notifications.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Notification) error { return nil }

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = Nop{}
)
