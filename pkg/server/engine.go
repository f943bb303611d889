package server

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/erain9/tinyme/pkg/logging"
	"github.com/erain9/tinyme/pkg/otel"
	"github.com/rs/zerolog"
)

var (
	// ErrEngineStopped is returned when work is submitted after Stop
	ErrEngineStopped = errors.New("engine stopped")

	// ErrEngineBusy is returned by Submit when the queue is full
	ErrEngineBusy = errors.New("engine queue full")
)

// DefaultQueueSize is used when NewEngine is given a non-positive size
const DefaultQueueSize = 1024

type task struct {
	ctx  context.Context
	fn   func(context.Context)
	done chan struct{}
}

// Engine runs every piece of work touching securities, brokers and
// shareholders on one goroutine, in submission order. Nothing in pkg/core
// is locked; serializing through the engine is what keeps it consistent.
type Engine struct {
	tasks  chan task
	stop   chan struct{}
	logger zerolog.Logger

	stopped  atomic.Bool
	sending  atomic.Int64
	stopOnce sync.Once
	finished chan struct{}
}

// NewEngine creates an engine with a bounded queue
func NewEngine(queueSize int, logger zerolog.Logger) *Engine {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Engine{
		tasks:    make(chan task, queueSize),
		stop:     make(chan struct{}),
		logger:   logger.With().Str("component", "engine").Logger(),
		finished: make(chan struct{}),
	}
}

// Run processes tasks until ctx is cancelled or Stop is called. Tasks
// still queued at that point are drained before Run returns.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.finished)
	e.logger.Info().Int("queue_size", cap(e.tasks)).Msg("Engine started")

	for {
		select {
		case t := <-e.tasks:
			e.execute(t)
		case <-ctx.Done():
			e.shutdown()
			return
		case <-e.stop:
			e.shutdown()
			return
		}
	}
}

// shutdown refuses new work, then drains the queue. It keeps draining
// while a sender that passed the stopped check is still handing its task
// over, so every accepted task runs.
func (e *Engine) shutdown() {
	e.stopped.Store(true)

	for {
		select {
		case t := <-e.tasks:
			e.execute(t)
		default:
			if e.sending.Load() == 0 && len(e.tasks) == 0 {
				e.logger.Info().Msg("Engine stopped")
				return
			}
			runtime.Gosched()
		}
	}
}

func (e *Engine) execute(t task) {
	otel.GetRequestMetrics().AddQueueDepth(t.ctx, -1)
	defer func() {
		if r := recover(); r != nil {
			logger := logging.FromContext(t.ctx)
			logger.Error().
				Str("panic", fmt.Sprint(r)).
				Msg("Recovered from panic in engine task")
		}
		if t.done != nil {
			close(t.done)
		}
	}()
	t.fn(t.ctx)
}

// enqueue hands t to the engine. A nil error means t will run, even if
// the engine is stopping.
func (e *Engine) enqueue(ctx context.Context, t task, wait bool) error {
	e.sending.Add(1)
	defer e.sending.Add(-1)
	if e.stopped.Load() {
		return ErrEngineStopped
	}

	if wait {
		select {
		case e.tasks <- t:
		case <-ctx.Done():
			return ctx.Err()
		}
	} else {
		select {
		case e.tasks <- t:
		default:
			return ErrEngineBusy
		}
	}
	otel.GetRequestMetrics().AddQueueDepth(ctx, 1)
	return nil
}

// Submit queues fn without waiting for it to run
func (e *Engine) Submit(ctx context.Context, fn func(context.Context)) error {
	ctx = context.WithoutCancel(ctx)
	return e.enqueue(ctx, task{ctx: ctx, fn: fn}, false)
}

// Do queues fn and waits until it has run. ctx only bounds the wait for a
// free queue slot: once queued, fn runs to completion and Do returns after
// it, so results captured by fn are safe to read.
func (e *Engine) Do(ctx context.Context, fn func(context.Context)) error {
	t := task{ctx: context.WithoutCancel(ctx), fn: fn, done: make(chan struct{})}
	if err := e.enqueue(ctx, t, true); err != nil {
		return err
	}
	<-t.done
	return nil
}

// Stop ends Run and waits for it to return
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	<-e.finished
}
