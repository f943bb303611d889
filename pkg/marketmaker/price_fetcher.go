package marketmaker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// securityPriceFetcher implements PriceFetcher by reading the security's
// last trade price from the engine's reference data endpoint
type securityPriceFetcher struct {
	client  *http.Client
	cfg     *Config
	logger  zerolog.Logger
	baseURL string
}

// securityResponse mirrors GET /securities/{isin}
type securityResponse struct {
	ISIN           string `json:"isin"`
	TickSize       int64  `json:"tickSize"`
	LotSize        int64  `json:"lotSize"`
	LastTradePrice int64  `json:"lastTradePrice"`
}

// NewPriceFetcher creates a new PriceFetcher against the configured server
func NewPriceFetcher(cfg *Config, logger zerolog.Logger) (PriceFetcher, error) {
	if _, err := url.Parse(cfg.ServerURL); err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", cfg.ServerURL, err)
	}
	client := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:    10,
			IdleConnTimeout: 30 * time.Second,
		},
	}

	return &securityPriceFetcher{
		client:  client,
		cfg:     cfg,
		logger:  logger.With().Str("component", "securityPriceFetcher").Logger(),
		baseURL: cfg.ServerURL,
	}, nil
}

// FetchPrice retries with a linear backoff. A security that has not traded
// yet is quoted around the configured fallback price.
func (f *securityPriceFetcher) FetchPrice(ctx context.Context) (Quote, error) {
	endpoint := fmt.Sprintf("%s/securities/%s", f.baseURL, url.PathEscape(f.cfg.ISIN))

	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return Quote{}, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * 100 * time.Millisecond):
			}
		}

		sec, err := f.fetch(ctx, endpoint)
		if err != nil {
			lastErr = fmt.Errorf("attempt %d/%d: %w", attempt, f.cfg.MaxRetries, err)
			f.logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_retries", f.cfg.MaxRetries).
				Msg("Price fetch failed")
			continue
		}

		quote := Quote{Price: sec.LastTradePrice, TickSize: sec.TickSize, LotSize: sec.LotSize}
		if quote.Price == 0 {
			quote.Price = f.cfg.FallbackPrice
		}
		f.logger.Debug().
			Str("isin", f.cfg.ISIN).
			Int64("price", quote.Price).
			Int("attempt", attempt).
			Msg("Fetched price")
		return quote, nil
	}

	return Quote{}, fmt.Errorf("failed to fetch price after %d attempts: %w", f.cfg.MaxRetries, lastErr)
}

func (f *securityPriceFetcher) fetch(ctx context.Context, endpoint string) (*securityResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var sec securityResponse
	if err := json.NewDecoder(resp.Body).Decode(&sec); err != nil {
		return nil, fmt.Errorf("decoding security: %w", err)
	}
	return &sec, nil
}

// Close implements PriceFetcher
func (f *securityPriceFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}
