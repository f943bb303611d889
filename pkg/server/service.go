package server

import (
	"context"

	"github.com/erain9/tinyme/pkg/backend/memory"
	"github.com/erain9/tinyme/pkg/core"
	"github.com/erain9/tinyme/pkg/messaging"
)

// Service runs the order handler and reference data queries on the engine
// goroutine, so callers on any goroutine see a consistent market
type Service struct {
	engine  *Engine
	handler *OrderHandler
	repo    *memory.Repository
}

// NewService creates a service. The engine must be running for any call
// to complete.
func NewService(engine *Engine, handler *OrderHandler, repo *memory.Repository) *Service {
	return &Service{engine: engine, handler: handler, repo: repo}
}

// EnterOrder runs a new order or update and returns the events it produced
func (s *Service) EnterOrder(ctx context.Context, req core.EnterOrderRequest) ([]*messaging.Event, error) {
	var events []*messaging.Event
	err := s.engine.Do(ctx, func(ctx context.Context) {
		events = s.handler.HandleEnterOrder(ctx, req)
	})
	return events, err
}

// DeleteOrder removes an order and returns the events it produced
func (s *Service) DeleteOrder(ctx context.Context, req core.DeleteOrderRequest) ([]*messaging.Event, error) {
	var events []*messaging.Event
	err := s.engine.Do(ctx, func(ctx context.Context) {
		events = s.handler.HandleDeleteOrder(ctx, req)
	})
	return events, err
}

// ChangeMatchingState switches the matching state of a security
func (s *Service) ChangeMatchingState(ctx context.Context, req core.ChangeMatchingStateRequest) ([]*messaging.Event, error) {
	var (
		events    []*messaging.Event
		handleErr error
	)
	err := s.engine.Do(ctx, func(ctx context.Context) {
		events, handleErr = s.handler.HandleChangeMatchingState(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return events, handleErr
}

// Handle runs a bus request. It has the signature of kafka.RequestHandler.
func (s *Service) Handle(ctx context.Context, req *messaging.Request) error {
	var handleErr error
	if err := s.engine.Do(ctx, func(ctx context.Context) {
		handleErr = s.handler.HandleRequest(ctx, req)
	}); err != nil {
		return err
	}
	return handleErr
}

// Query runs fn against the repository on the engine goroutine
func (s *Service) Query(ctx context.Context, fn func(repo *memory.Repository)) error {
	return s.engine.Do(ctx, func(context.Context) {
		fn(s.repo)
	})
}
