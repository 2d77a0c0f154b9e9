package activity

import (
	"context"
	"log/slog"
	"time"
)

// Store persists activity events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Sink receives events after local persistence, e.g. a Kafka topic for
// downstream consumers.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Publisher captures structured activity events. Persistence is the source of
// truth; sink delivery is best-effort because the triggering write has
// already committed.
type Publisher struct {
	store  Store
	sink   Sink
	logger *slog.Logger
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithSink attaches a downstream event sink.
func WithSink(sink Sink) Option {
	return func(p *Publisher) { p.sink = sink }
}

func NewPublisher(store Store, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit persists the event and forwards it to the sink when one is attached.
// A sink failure is logged, never propagated.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	if p.sink != nil {
		if err := p.sink.Publish(ctx, event); err != nil {
			p.logger.Warn("activity sink publish failed",
				"action", event.Action, "subject", event.Subject, "error", err)
		}
	}
	return nil
}

// ListRecent returns the most recent events, newest first.
func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	return p.store.ListRecent(ctx, limit)
}
