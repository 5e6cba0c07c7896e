package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"coin-screener/internal/market"
)

const ticker24hPath = "/ticker/24hr"

// BinanceOptions parameterise the Binance ticker fetcher.
type BinanceOptions struct {
	BaseURL    string
	QuoteAsset string
	Timeout    time.Duration
	UserAgent  string
}

// Binance fetches 24h ticker batches from the Binance REST API.
type Binance struct {
	opts    BinanceOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewBinance constructs a Binance fetcher.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.binance.com/api/v3"
	}

	if opts.QuoteAsset == "" {
		opts.QuoteAsset = "USDT"
	}

	return &Binance{
		opts:    opts,
		logger:  logger.With().Str("component", "binance_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchTopN retrieves all 24h tickers, keeps pairs quoted in the configured
// asset, sorts them by quote volume descending, and returns the first limit
// records. Any transport or decode failure comes back as a FetchError.
func (b *Binance) FetchTopN(ctx context.Context, limit int) ([]market.RawTicker, error) {
	if limit <= 0 {
		return nil, &FetchError{Err: fmt.Errorf("limit must be positive, got %d", limit)}
	}

	endpoint := b.baseURL + ticker24hPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "coinscreener/1.0")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Err: parseHTTPError(resp.StatusCode, payload)}
	}

	var tickers []market.RawTicker
	if err := json.Unmarshal(payload, &tickers); err != nil {
		return nil, &FetchError{Err: fmt.Errorf("decode ticker payload: %w", err)}
	}

	quote := strings.ToUpper(b.opts.QuoteAsset)
	pairs := tickers[:0]
	for _, t := range tickers {
		if strings.HasSuffix(strings.ToUpper(t.Symbol), quote) {
			pairs = append(pairs, t)
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return volumeKey(pairs[i]).GreaterThan(volumeKey(pairs[j]))
	})

	if len(pairs) > limit {
		pairs = pairs[:limit]
	}

	b.logger.Debug().Int("count", len(pairs)).Str("quote", quote).Msg("fetched ticker batch")
	return pairs, nil
}

// volumeKey parses the sort key leniently: a record with an unparseable
// volume still participates in the batch, it just sorts last. Strict
// validation belongs to the normalizer.
func volumeKey(t market.RawTicker) decimal.Decimal {
	v, err := decimal.NewFromString(t.QuoteVolume)
	if err != nil {
		return decimal.Zero
	}
	return v
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("binance api error (%d): %s", status, apiErr.Message)
	}
	if len(payload) > 0 {
		return fmt.Errorf("binance api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("binance api error (%d)", status)
}

var _ TickerSource = (*Binance)(nil)
