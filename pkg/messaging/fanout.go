package messaging

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Fanout publishes every event to all of its publishers. A failing
// publisher does not stop the others.
type Fanout struct {
	publishers []EventPublisher
}

// NewFanout creates a Fanout over publishers, skipping nil ones
func NewFanout(publishers ...EventPublisher) *Fanout {
	f := &Fanout{}
	for _, p := range publishers {
		if p != nil {
			f.publishers = append(f.publishers, p)
		}
	}
	return f
}

// Add appends a publisher
func (f *Fanout) Add(p EventPublisher) {
	f.publishers = append(f.publishers, p)
}

// Len returns the number of publishers
func (f *Fanout) Len() int {
	return len(f.publishers)
}

// Publish delivers event to every publisher and joins their errors
func (f *Fanout) Publish(ctx context.Context, event *Event) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, event); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).
				Str("event_id", event.ID).
				Str("event_type", string(event.Type)).
				Msg("Failed to publish event")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher
func (f *Fanout) Close() error {
	var errs []error
	for _, p := range f.publishers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

var _ EventPublisher = (*Fanout)(nil)
