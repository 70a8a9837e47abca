// Package exchangeinfo fetches Binance's exchangeInfo REST endpoint to
// validate configured tickers against the venue's live tradable-symbol
// list, guarded by a circuit breaker so a flaky REST endpoint cannot stall
// startup indefinitely. This is a distinct failure domain from the
// websocket reconnect policy in internal/supervisor, which guards against
// a flapping realtime transport rather than a slow synchronous HTTP call.
package exchangeinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/arbiq/marketfeed/internal/canon"
	"github.com/arbiq/marketfeed/internal/net/circuit"
)

const defaultExchangeInfoURL = "https://api.binance.com/api/v3/exchangeInfo"

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol string `json:"symbol"`
		Status string `json:"status"`
	} `json:"symbols"`
}

// Fetcher fetches the set of tradable Binance symbols through a circuit
// breaker.
type Fetcher struct {
	url     string
	client  *http.Client
	breaker *circuit.Breaker
}

// NewFetcher builds a Fetcher against the live Binance API. Five
// consecutive failures trip the breaker open for 30 seconds; each
// underlying HTTP call is bounded to 5 seconds.
func NewFetcher(client *http.Client) *Fetcher {
	return newFetcher(client, defaultExchangeInfoURL)
}

// NewFetcherWithURL builds a Fetcher against an arbitrary URL, for tests.
func NewFetcherWithURL(client *http.Client, url string) *Fetcher {
	return newFetcher(client, url)
}

func newFetcher(client *http.Client, url string) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{
		url:    url,
		client: client,
		breaker: circuit.NewBreaker("binance-exchangeinfo", circuit.Config{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			RequestTimeout:   5 * time.Second,
		}),
	}
}

// TradableSymbols returns every symbol Binance currently reports as
// TRADING.
func (f *Fetcher) TradableSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := f.breaker.Call(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
		if err != nil {
			return err
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		var body exchangeInfoResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return err
		}
		for _, s := range body.Symbols {
			if s.Status == "TRADING" {
				symbols = append(symbols, s.Symbol)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("exchangeinfo: %w: fetching symbols: %v", canon.ErrTransport, err)
	}
	return symbols, nil
}

// State exposes the breaker's current state for health reporting.
func (f *Fetcher) State() circuit.State {
	return f.breaker.State()
}
