// Package exchange looks up currency conversion rates from an ExchangeRate-API compatible service.
// Lookups are best effort: failures are logged and reported as "no rate".
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// DefaultTimeout bounds a single rate lookup
const DefaultTimeout = 5 * time.Second

// DefaultBaseURL is the v6 API root; the API key is a path segment
const DefaultBaseURL = "https://v6.exchangerate-api.com/v6"

var fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pos_tracker_exchange_rate_fetches_total",
	Help: "Exchange rate lookups by result.",
}, []string{"result"})

type pairResponse struct {
	Result         string          `json:"result"`
	ErrorType      string          `json:"error-type"`
	BaseCode       string          `json:"base_code"`
	TargetCode     string          `json:"target_code"`
	ConversionRate decimal.Decimal `json:"conversion_rate"`
}

// Fetcher looks up pair rates. It neither retries nor caches.
type Fetcher struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewFetcher creates a Fetcher for baseURL/apiKey. A zero timeout uses DefaultTimeout.
func NewFetcher(baseURL, apiKey string, timeout time.Duration) *Fetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if apiKey != "" {
		baseURL += "/" + url.PathEscape(apiKey)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		baseURL: baseURL,
		client:  &http.Client{},
		timeout: timeout,
	}
}

// FetchRate returns how many units of target one unit of base buys.
// ok is false when no rate could be obtained; the cause is logged.
func (f *Fetcher) FetchRate(ctx context.Context, base, target string) (rate decimal.Decimal, ok bool) {
	rate, err := f.fetch(ctx, base, target)
	if err != nil {
		result := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			result = "timeout"
			slog.Error("Exchange rate fetch timed out", "base", base, "target", target, "timeout", f.timeout)
		} else {
			slog.Error("Error fetching exchange rate", "base", base, "target", target, "error", err)
		}
		fetchesTotal.WithLabelValues(result).Inc()
		return decimal.Decimal{}, false
	}
	fetchesTotal.WithLabelValues("success").Inc()
	return rate, true
}

// RateOrDefault returns the fetched rate, or a neutral rate of 1 when none is available
func (f *Fetcher) RateOrDefault(ctx context.Context, base, target string) decimal.Decimal {
	if rate, ok := f.FetchRate(ctx, base, target); ok {
		return rate
	}
	slog.Warn("Could not fetch exchange rate, defaulting to 1", "base", base, "target", target)
	return decimal.NewFromInt(1)
}

func (f *Fetcher) fetch(ctx context.Context, base, target string) (decimal.Decimal, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	target = strings.ToUpper(strings.TrimSpace(target))
	if base == "" || target == "" {
		return decimal.Decimal{}, fmt.Errorf("base and target currency are required")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/pair/%s/%s", f.baseURL, url.PathEscape(base), url.PathEscape(target))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("calling exchange rate API: %w", err)
	}
	defer resp.Body.Close()

	var pair pairResponse
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if pair.Result != "success" {
		return decimal.Decimal{}, fmt.Errorf("exchange rate API result %q: %s", pair.Result, pair.ErrorType)
	}
	if !pair.ConversionRate.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("exchange rate API returned non-positive rate %s", pair.ConversionRate)
	}
	return pair.ConversionRate, nil
}
