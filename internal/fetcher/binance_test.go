package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestFetchTopNFiltersSortsAndSlices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ticker/24hr" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"symbol": "AAAUSDT", "lastPrice": "1", "priceChangePercent": "0", "quoteVolume": "100"},
			{"symbol": "BBBBTC", "lastPrice": "1", "priceChangePercent": "0", "quoteVolume": "9999"},
			{"symbol": "CCCUSDT", "lastPrice": "1", "priceChangePercent": "0", "quoteVolume": "300"},
			{"symbol": "DDDUSDT", "lastPrice": "1", "priceChangePercent": "0", "quoteVolume": "200"},
		})
	}))
	defer srv.Close()

	b := NewBinance(BinanceOptions{
		BaseURL:    srv.URL,
		QuoteAsset: "USDT",
		Timeout:    time.Second,
		UserAgent:  "test",
	}, noopLogger())

	got, err := b.FetchTopN(context.Background(), 2)
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Symbol != "CCCUSDT" || got[1].Symbol != "DDDUSDT" {
		t.Fatalf("expected volume-descending USDT pairs, got %s %s", got[0].Symbol, got[1].Symbol)
	}
}

func TestFetchTopNUnparseableVolumeSortsLast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"symbol": "AAAUSDT", "lastPrice": "1", "priceChangePercent": "0", "quoteVolume": "garbage"},
			{"symbol": "BBBUSDT", "lastPrice": "1", "priceChangePercent": "0", "quoteVolume": "5"},
		})
	}))
	defer srv.Close()

	b := NewBinance(BinanceOptions{BaseURL: srv.URL, QuoteAsset: "USDT", Timeout: time.Second}, noopLogger())

	got, err := b.FetchTopN(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if got[0].Symbol != "BBBUSDT" {
		t.Fatalf("parseable volume should sort first, got %s", got[0].Symbol)
	}
}

func TestFetchTopNHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": -1003, "msg": "rate limited"})
	}))
	defer srv.Close()

	b := NewBinance(BinanceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	_, err := b.FetchTopN(context.Background(), 5)
	if err == nil {
		t.Fatal("HTTP error status should fail the fetch")
	}
	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected FetchError, got %T", err)
	}
}

func TestFetchTopNInvalidLimit(t *testing.T) {
	b := NewBinance(BinanceOptions{}, noopLogger())
	if _, err := b.FetchTopN(context.Background(), 0); err == nil {
		t.Fatal("non-positive limit should fail")
	}
}
