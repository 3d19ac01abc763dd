package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vitalwatch/internal/predictor"
)

// Notification carries the context of a critical reading.
type Notification struct {
	DeviceID        string
	ReadingID       int64
	Level           predictor.RiskLevel
	Score           float64
	Confidence      float64
	Recommendations []string
	Vitals          predictor.Vitals
	At              time.Time
	Channels        []string
}

// Notifier delivers alert notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a Telegram notifier.
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

// Notify calls sendMessage with the rendered alert text.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(note),
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
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram rejected message: %s", result.Description)
	}

	n.logger.Info().
		Str("device_id", note.DeviceID).
		Int64("reading_id", note.ReadingID).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("critical alert sent")
	return nil
}

// RenderMessage formats a notification as plain text.
func RenderMessage(note Notification) string {
	var b strings.Builder
	b.WriteString("[VitalWatch Alert]\n")
	fmt.Fprintf(&b, "Device: %s\n", note.DeviceID)
	if !note.At.IsZero() {
		fmt.Fprintf(&b, "Time: %s UTC\n", note.At.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Risk: %s (score %s, confidence %s)\n",
		note.Level,
		decimal.NewFromFloat(note.Score).StringFixed(2),
		decimal.NewFromFloat(note.Confidence).StringFixed(2),
	)
	fmt.Fprintf(&b, "HR %s bpm | SpO2 %s%% | Temp %s C | AQ %s\n",
		decimal.NewFromFloat(note.Vitals.HeartRate).StringFixed(0),
		decimal.NewFromFloat(note.Vitals.SpO2).StringFixed(1),
		decimal.NewFromFloat(note.Vitals.Temperature).StringFixed(1),
		decimal.NewFromFloat(note.Vitals.AirQuality).StringFixed(0),
	)
	for _, rec := range note.Recommendations {
		fmt.Fprintf(&b, "- %s\n", rec)
	}
	return b.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
