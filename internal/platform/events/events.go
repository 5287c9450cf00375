// Package events carries workflow notifications from services to connected
// clients. Delivery is best effort: a failed publish never fails the
// operation that produced it.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event describes one successful mutation. Recipients are account ids.
type Event struct {
	Type       string      `json:"type"`
	Resource   string      `json:"resource"`
	ResourceID uuid.UUID   `json:"resource_id"`
	Status     string      `json:"status,omitempty"`
	ActorID    uuid.UUID   `json:"actor_id"`
	Recipients []uuid.UUID `json:"recipients"`
	At         time.Time   `json:"at"`
}

// New fills Type as "<resource>.<action>" and stamps the time.
func New(resource, action string, id, actor uuid.UUID, status string, recipients ...uuid.UUID) Event {
	return Event{
		Type:       resource + "." + action,
		Resource:   resource,
		ResourceID: id,
		Status:     status,
		ActorID:    actor,
		Recipients: recipients,
		At:         time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

// Nop discards events.
var Nop Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

// Fanout publishes to every target and joins their errors. One failing
// target does not stop the others.
func Fanout(targets ...Publisher) Publisher {
	return PublisherFunc(func(ctx context.Context, e Event) error {
		var errs []error
		for _, t := range targets {
			if err := t.Publish(ctx, e); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// TransitionObserver is implemented by metrics.Metrics.
type TransitionObserver interface {
	ObserveTransition(resource, to string)
}

// Instrumented counts every event carrying a status before handing it on.
func Instrumented(next Publisher, obs TransitionObserver) Publisher {
	return PublisherFunc(func(ctx context.Context, e Event) error {
		if e.Status != "" {
			obs.ObserveTransition(e.Resource, e.Status)
		}
		return next.Publish(ctx, e)
	})
}

// Emitter is what services hold. It logs publish failures instead of
// returning them.
type Emitter struct {
	pub    Publisher
	logger zerolog.Logger
}

func NewEmitter(pub Publisher, logger zerolog.Logger) *Emitter {
	if pub == nil {
		pub = Nop
	}
	return &Emitter{pub: pub, logger: logger}
}

func (em *Emitter) Emit(ctx context.Context, e Event) {
	if em == nil {
		return
	}
	em.logger.Debug().
		Str("event", e.Type).
		Str("resource_id", e.ResourceID.String()).
		Str("status", e.Status).
		Msg("workflow event")

	if err := em.pub.Publish(ctx, e); err != nil {
		em.logger.Warn().Err(err).
			Str("event", e.Type).
			Str("resource_id", e.ResourceID.String()).
			Msg("failed to publish workflow event")
	}
}
