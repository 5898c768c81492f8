// Package report turns a backtest result into a short markdown write-up.
package report

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/newthinker/quantbench/internal/backtest"
	"github.com/newthinker/quantbench/internal/core"
	"github.com/newthinker/quantbench/internal/llm"
	"go.uber.org/zap"
)

// Reporter writes performance summaries, optionally through an LLM.
type Reporter struct {
	provider llm.Provider
	logger   *zap.Logger
}

// New creates a Reporter. A nil provider yields the plain markdown table.
func New(provider llm.Provider, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{provider: provider, logger: logger}
}

// Summarize asks the model for a performance summary of r. strategyNotes
// describes the indicators behind the signals and may be empty.
func (r *Reporter) Summarize(ctx context.Context, res *backtest.Result, strategyNotes string) (string, error) {
	if res == nil {
		return "", core.ErrNoData
	}
	if r.provider == nil {
		return Markdown(res), nil
	}

	out, err := r.provider.Complete(ctx, llm.Prompt{
		System:      summarySystemPrompt,
		User:        buildPrompt(res, strategyNotes),
		MaxTokens:   1024,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("summarizing run %s: %w", res.ID, err)
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", core.WrapError(core.ErrLLMFailed, fmt.Errorf("%s returned an empty summary", r.provider.Name()))
	}

	r.logger.Debug("summary generated",
		zap.String("run_id", res.ID),
		zap.String("provider", r.provider.Name()),
		zap.Int("input_tokens", out.InputTokens),
		zap.Int("output_tokens", out.OutputTokens),
	)
	return text, nil
}

func buildPrompt(res *backtest.Result, notes string) string {
	var sb strings.Builder
	m := res.Metrics

	sb.WriteString("## Backtest\n")
	fmt.Fprintf(&sb, "- Period: %s to %s (%d bars)\n",
		res.StartDate.Format("2006-01-02"), res.EndDate.Format("2006-01-02"), len(res.Rows))
	fmt.Fprintf(&sb, "- Price field: %s\n", res.PriceField)
	if res.Description != "" {
		fmt.Fprintf(&sb, "- Signal description: %s\n", res.Description)
	}
	if notes != "" {
		fmt.Fprintf(&sb, "- Strategy notes: %s\n", notes)
	}
	sb.WriteString("\n## Metrics\n")
	fmt.Fprintf(&sb, "- Start value: %.2f\n- End value: %.2f\n", m.StartValue, m.EndValue)
	for _, metric := range []backtest.Metric{m.CumulativeReturn, m.CAGR, m.MDD, m.SharpeRatio} {
		fmt.Fprintf(&sb, "- %s\n", metric.Formatted)
	}
	fmt.Fprintf(&sb, "- Trades: %d (%d closed, win rate %.1f%%)\n",
		res.Stats.TotalTrades, res.Stats.ClosedTrades, res.Stats.WinRate)

	sb.WriteString("\n## Task\n")
	sb.WriteString("Write the strategy performance summary described in your instructions.\n")
	return sb.String()
}

// Markdown renders the performance table without a model.
func Markdown(res *backtest.Result) string {
	var sb strings.Builder
	m := res.Metrics

	sb.WriteString("### Strategy Performance Summary\n\n")
	if res.Description != "" {
		fmt.Fprintf(&sb, "**Signals:** %s\n\n", res.Description)
	}
	fmt.Fprintf(&sb, "**Period:** %s to %s (%d bars, %s)\n\n",
		res.StartDate.Format("2006-01-02"), res.EndDate.Format("2006-01-02"), len(res.Rows), res.PriceField)

	sb.WriteString("### Performance Metrics\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|---|---|\n")
	fmt.Fprintf(&sb, "| **Cumulative Return** | %s |\n", percent(m.CumulativeReturn.Value))
	fmt.Fprintf(&sb, "| **CAGR** | %s |\n", percent(m.CAGR.Value))
	fmt.Fprintf(&sb, "| **Maximum Drawdown** | %s |\n", percent(m.MDD.Value))
	fmt.Fprintf(&sb, "| **Sharpe Ratio** | %s |\n", ratio(m.SharpeRatio.Value))
	fmt.Fprintf(&sb, "| **Trades** | %d |\n", res.Stats.TotalTrades)
	fmt.Fprintf(&sb, "| **Win Rate** | %.1f%% |\n", res.Stats.WinRate)
	return sb.String()
}

func percent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

func ratio(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", v)
}

const summarySystemPrompt = `You are a quantitative analyst reporting on a strategy backtest.

# Task
- Return the performance metrics based on the backtesting results.
- Add a brief summary of the strategy and indicators used.
- Do not repeat information.
- The metrics must include Cumulative Return, CAGR, Maximum Drawdown and Sharpe Ratio.
- Answer in markdown.

# Desired output
### Strategy Performance Summary

**Indicators Used:**
- <indicator>

**Strategy Summary:**
<two or three sentences on how the signals are generated and what the results show>

### Performance Metrics

| Metric | Value |
|---|---|
| **Cumulative Return** | <value> |
| **CAGR** | <value> |
| **Maximum Drawdown** | <value> |
| **Sharpe Ratio** | <value> |`
