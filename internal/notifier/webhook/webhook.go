// Package webhook posts run completion events to an HTTP endpoint
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/newthinker/quantbench/internal/notifier"
)

// Webhook implements the Notifier interface for HTTP webhooks
type Webhook struct {
	url     string
	headers map[string]string
	client  *retryablehttp.Client
}

// New creates a new Webhook notifier. Failed posts are retried up to
// retries times.
func New(url string, headers map[string]string, retries int) (*Webhook, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook: url is required")
	}

	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil

	return &Webhook{url: url, headers: headers, client: client}, nil
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Notify(ctx context.Context, ev notifier.Event) error {
	return w.post(ctx, payload(ev))
}

func payload(ev notifier.Event) map[string]any {
	return map[string]any{
		"type":              "backtest.completed",
		"run_id":            ev.RunID,
		"description":       ev.Description,
		"price_field":       ev.PriceField,
		"bars":              ev.Bars,
		"start_date":        ev.StartDate.Format("2006-01-02"),
		"end_date":          ev.EndDate.Format("2006-01-02"),
		"cumulative_return": notifier.Nullable(ev.CumulativeReturn),
		"cagr":              notifier.Nullable(ev.CAGR),
		"mdd":               notifier.Nullable(ev.MDD),
		"sharpe_ratio":      notifier.Nullable(ev.SharpeRatio),
		"trades":            ev.Trades,
		"win_rate":          ev.WinRate,
		"generated_at":      ev.GeneratedAt.Format(time.RFC3339),
	}
}

func (w *Webhook) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: server returned %d", resp.StatusCode)
	}

	return nil
}
