package marketmaker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/erain9/tinyme/pkg/core"
	"github.com/erain9/tinyme/pkg/messaging"
	"github.com/rs/zerolog"
)

// ErrOrderRejected is returned when the engine answers with an
// ORDER_REJECTED event
var ErrOrderRejected = errors.New("order rejected")

// Ensure httpOrderPlacer implements OrderPlacer interface
var _ OrderPlacer = (*httpOrderPlacer)(nil)

// httpOrderPlacer implements the OrderPlacer interface over the engine's
// HTTP API
type httpOrderPlacer struct {
	client *http.Client
	cfg    *Config
	logger zerolog.Logger
}

type eventsResponse struct {
	Events []*messaging.Event `json:"events"`
}

// NewHTTPOrderPlacer returns an OrderPlacer posting to cfg.ServerURL
func NewHTTPOrderPlacer(cfg *Config, logger zerolog.Logger) OrderPlacer {
	logger.Info().Str("address", cfg.ServerURL).Msg("Using TinyME HTTP API")
	return &httpOrderPlacer{
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		cfg:    cfg,
		logger: logger.With().Str("component", "httpOrderPlacer").Logger(),
	}
}

// EnterOrder posts a new order. Rejections are returned as ErrOrderRejected
// along with the events explaining them.
func (p *httpOrderPlacer) EnterOrder(ctx context.Context, req core.EnterOrderRequest) ([]*messaging.Event, error) {
	p.logger.Debug().
		Str("isin", req.SecurityISIN).
		Int64("order_id", req.OrderID).
		Stringer("side", req.Side).
		Int64("qty", req.Quantity).
		Int64("price", req.Price).
		Msg("Sending order")

	events, err := p.send(ctx, http.MethodPost, req)
	if err != nil {
		return nil, fmt.Errorf("EnterOrder failed: %w", err)
	}
	if rejected(events) {
		return events, fmt.Errorf("%w: %v", ErrOrderRejected, events[0].Errors)
	}
	return events, nil
}

// DeleteOrder removes a resting order. An order that is gone already,
// usually because it filled, counts as deleted.
func (p *httpOrderPlacer) DeleteOrder(ctx context.Context, req core.DeleteOrderRequest) error {
	events, err := p.send(ctx, http.MethodDelete, req)
	if err != nil {
		return fmt.Errorf("DeleteOrder failed: %w", err)
	}
	if rejected(events) {
		if slices.Contains(events[0].Errors, core.MsgOrderIDNotFound) {
			p.logger.Debug().Int64("order_id", req.OrderID).Msg("Order already gone, skipping delete")
			return nil
		}
		return fmt.Errorf("%w: %v", ErrOrderRejected, events[0].Errors)
	}
	return nil
}

func (p *httpOrderPlacer) send(ctx context.Context, method string, body any) ([]*messaging.Event, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(callCtx, method, p.cfg.ServerURL+"/orders", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnprocessableEntity {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	var out eventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding events: %w", err)
	}
	return out.Events, nil
}

func rejected(events []*messaging.Event) bool {
	return len(events) > 0 && events[0].Type == messaging.EventOrderRejected
}

// Close releases idle connections
func (p *httpOrderPlacer) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
