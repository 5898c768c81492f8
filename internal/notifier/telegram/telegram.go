package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/newthinker/quantbench/internal/notifier"
)

const defaultBaseURL = "https://api.telegram.org"

// Telegram implements the Notifier interface for Telegram Bot API
type Telegram struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// New creates a new Telegram notifier. baseURL may be empty.
func New(botToken, chatID, baseURL string) (*Telegram, error) {
	if botToken == "" {
		return nil, fmt.Errorf("telegram: bot_token is required")
	}
	if chatID == "" {
		return nil, fmt.Errorf("telegram: chat_id is required")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (t *Telegram) Name() string {
	return "telegram"
}

func (t *Telegram) Notify(ctx context.Context, ev notifier.Event) error {
	return t.sendMessage(ctx, formatEvent(ev))
}

func formatEvent(ev notifier.Event) string {
	var sb strings.Builder

	emoji := "📈"
	if ev.CumulativeReturn < 0 {
		emoji = "📉"
	}

	title := ev.Description
	if title == "" {
		title = "Backtest"
	}
	sb.WriteString(fmt.Sprintf("%s *%s* finished\n", emoji, title))
	sb.WriteString(fmt.Sprintf("🗓 %s to %s (%d bars)\n",
		ev.StartDate.Format("2006-01-02"), ev.EndDate.Format("2006-01-02"), ev.Bars))
	sb.WriteString(fmt.Sprintf("💰 Return: %s | CAGR: %s\n", percent(ev.CumulativeReturn), percent(ev.CAGR)))
	sb.WriteString(fmt.Sprintf("📉 MDD: %s | Sharpe: %s\n", percent(ev.MDD), ratio(ev.SharpeRatio)))
	sb.WriteString(fmt.Sprintf("🔁 Trades: %d (win rate %.1f%%)\n", ev.Trades, ev.WinRate))
	sb.WriteString(fmt.Sprintf("🆔 `%s`", ev.RunID))

	return sb.String()
}

func percent(v float64) string {
	if math.IsNaN(v) {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

func ratio(v float64) string {
	if math.IsNaN(v) {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", v)
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)

	payload := map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var result map[string]any
		json.NewDecoder(resp.Body).Decode(&result)
		return fmt.Errorf("telegram: API error (status %d): %v", resp.StatusCode, result)
	}

	return nil
}
