package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventKind names a ledger event.
type EventKind string

const (
	EventClaimed          EventKind = "claimed"
	EventCollected        EventKind = "collected"
	EventForeclosed       EventKind = "foreclosed"
	EventRemoved          EventKind = "removed"
	EventAuthorityChanged EventKind = "authority_changed"
	EventCurrencyAllowed  EventKind = "currency_allowed"
)

// Event is emitted for every committed mutation. Attribute values are
// strings so amounts keep full precision.
type Event struct {
	ID uuid.UUID
	// Seq is assigned at commit and increases by one per event.
	Seq    uint64
	Kind   EventKind
	SlotID SlotID
	Time   time.Time
	Attrs  map[string]string
}

// EventSink receives events after the operation that produced them commits,
// in Seq order. Publish must not call back into the Ledger.
type EventSink interface {
	Publish(ctx context.Context, events []Event) error
}

// NopSink drops events.
type NopSink struct{}

func (NopSink) Publish(context.Context, []Event) error { return nil }

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, events []Event) error

func (f SinkFunc) Publish(ctx context.Context, events []Event) error { return f(ctx, events) }

// MultiSink fans events out to several sinks, returning the first error.
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, events []Event) error {
	var first error
	for _, s := range m {
		if err := s.Publish(ctx, events); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func newEvent(kind EventKind, id SlotID, at time.Time, attrs map[string]string) Event {
	return Event{
		ID:     uuid.New(),
		Kind:   kind,
		SlotID: id,
		Time:   at,
		Attrs:  attrs,
	}
}
