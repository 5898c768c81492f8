package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/newthinker/quantbench/internal/config"
	"github.com/newthinker/quantbench/internal/core"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com"
	chartPath      = "/v8/finance/chart/"
	userAgent      = "Mozilla/5.0 (compatible; quantbench/1.0)"
)

// validSymbol matches symbols like AAPL, MSFT, BRK-B, 600519.SS, 0700.HK, ^GSPC
var validSymbol = regexp.MustCompile(`^\^?[A-Za-z0-9-]{1,10}(\.[A-Za-z]{1,4})?$`)

// validateSymbol checks if a symbol has valid format
func validateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if !validSymbol.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return nil
}

// Yahoo downloads daily bars from the Yahoo Finance chart API
type Yahoo struct {
	client  *retryablehttp.Client
	limiter *rate.Limiter
	baseURL string
	logger  *zap.Logger
}

// Option configures a Yahoo fetcher
type Option func(*Yahoo)

// WithRetryWait bounds the backoff between retries.
func WithRetryWait(min, max time.Duration) Option {
	return func(y *Yahoo) {
		y.client.RetryWaitMin = min
		y.client.RetryWaitMax = max
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(y *Yahoo) {
		y.logger = logger
		y.client.Logger = leveled{logger.Sugar()}
	}
}

// New creates a Yahoo fetcher from the fetch settings
func New(cfg config.FetchConfig, opts ...Option) *Yahoo {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.Retries
	client.CheckRetry = retryPolicy
	client.Logger = nil
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}

	y := &Yahoo{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		baseURL: base,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

func (y *Yahoo) Name() string {
	return "yahoo"
}

// toYahooSymbol converts internal symbol format to Yahoo format
func toYahooSymbol(symbol string) string {
	// Shanghai stocks: 600519.SH -> 600519.SS
	if strings.HasSuffix(symbol, ".SH") {
		return strings.TrimSuffix(symbol, ".SH") + ".SS"
	}
	return symbol
}

// FetchHistory fetches daily bars including the split and dividend
// adjusted close. Bars without a close are skipped.
func (y *Yahoo) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]core.PriceBar, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, core.WrapError(core.ErrInvalidInput, err)
	}
	if !end.After(start) {
		return nil, core.WrapError(core.ErrInvalidInput,
			fmt.Errorf("end %s must be after start %s", end.Format("2006-01-02"), start.Format("2006-01-02")))
	}

	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("period1", fmt.Sprint(start.Unix()))
	q.Set("period2", fmt.Sprint(end.Unix()))
	q.Set("events", "div,splits")
	q.Set("includeAdjustedClose", "true")
	endpoint := y.baseURL + chartPath + url.PathEscape(toYahooSymbol(symbol)) + "?" + q.Encode()

	result, err := y.get(ctx, endpoint)
	if err != nil {
		return nil, core.WrapError(core.ErrFetchFailed, fmt.Errorf("%s: %w", symbol, err))
	}

	bars := result.bars()
	if len(bars) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no bars for %s", symbol))
	}

	y.logger.Info("price history fetched",
		zap.String("symbol", symbol),
		zap.Int("bars", len(bars)),
		zap.Time("first", bars[0].Date),
		zap.Time("last", bars[len(bars)-1].Date),
	)
	return bars, nil
}

func (y *Yahoo) get(ctx context.Context, endpoint string) (*chartResult, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo error: %s", parsed.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, fmt.Errorf("empty chart result")
	}
	return &parsed.Chart.Result[0], nil
}

// retryPolicy retries transport errors, 429 and 5xx
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

// leveled adapts zap to retryablehttp.LeveledLogger
type leveled struct {
	s *zap.SugaredLogger
}

func (l leveled) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l leveled) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }

// Yahoo API response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta       chartMeta  `json:"meta"`
	Timestamp  []int64    `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

type chartMeta struct {
	Symbol    string `json:"symbol"`
	GMTOffset int64  `json:"gmtoffset"`
}

type indicators struct {
	Quote    []quoteIndicator `json:"quote"`
	AdjClose []struct {
		AdjClose []*float64 `json:"adjclose"`
	} `json:"adjclose"`
}

type quoteIndicator struct {
	Open  []*float64 `json:"open"`
	Close []*float64 `json:"close"`
}

// bars converts the columnar chart payload into exchange-local daily bars
func (r *chartResult) bars() []core.PriceBar {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	quote := r.Indicators.Quote[0]
	var adj []*float64
	if len(r.Indicators.AdjClose) > 0 {
		adj = r.Indicators.AdjClose[0].AdjClose
	}

	out := make([]core.PriceBar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		closePrice := at(quote.Close, i)
		if math.IsNaN(closePrice) {
			continue // Skip missing data
		}
		adjClose := at(adj, i)
		if math.IsNaN(adjClose) {
			adjClose = closePrice
		}

		local := time.Unix(ts+r.Meta.GMTOffset, 0).UTC()
		out = append(out, core.PriceBar{
			Date:     time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC),
			Open:     at(quote.Open, i),
			Close:    closePrice,
			AdjClose: adjClose,
		})
	}
	return out
}

func at(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return math.NaN()
	}
	return *values[i]
}
