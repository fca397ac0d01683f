// Package journal receives the events of committed units and fans them out:
// structured log lines, durable store rows, event bus publishes, metric
// counts and operator notifications. Distribution is best effort; the unit
// that produced the events has already committed, so a failing sink is
// logged and skipped rather than unwinding anything.
package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/apexarb/arbengine/internal/domain"
)

// Notifier pushes an event to the operator's channels.
type Notifier interface {
	NotifyEvent(ctx context.Context, ev domain.Event)
}

// Observer counts events by kind.
type Observer interface {
	ObserveEvent(kind string)
}

type multiNotifier []Notifier

func (m multiNotifier) NotifyEvent(ctx context.Context, ev domain.Event) {
	for _, n := range m {
		n.NotifyEvent(ctx, ev)
	}
}

// MultiNotifier combines notifiers into one, dropping nils. It returns nil
// when nothing remains.
func MultiNotifier(ns ...Notifier) Notifier {
	out := make(multiNotifier, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Envelope is the wire form of one journaled event, shared by the bus and
// the websocket feed.
type Envelope struct {
	UnitID string          `json:"unit_id"`
	Seq    int             `json:"seq"`
	Kind   string          `json:"kind"`
	At     time.Time       `json:"at"`
	Event  json.RawMessage `json:"event"`
}

// Journal is the fanout hub. Any of store, bus, notifier and observer may be
// nil; the log always receives events.
type Journal struct {
	store    domain.JournalStore
	bus      domain.EventBus
	notifier Notifier
	observer Observer
	channel  string
	logger   *slog.Logger
}

// Option configures a Journal.
type Option func(*Journal)

// WithStore adds durable persistence.
func WithStore(st domain.JournalStore) Option {
	return func(j *Journal) { j.store = st }
}

// WithBus adds event bus publishing on the given channel.
func WithBus(bus domain.EventBus, channel string) Option {
	return func(j *Journal) { j.bus = bus; j.channel = channel }
}

// WithNotifier adds operator notifications.
func WithNotifier(n Notifier) Option {
	return func(j *Journal) { j.notifier = n }
}

// WithObserver adds metric counting.
func WithObserver(o Observer) Option {
	return func(j *Journal) { j.observer = o }
}

// New creates a Journal.
func New(logger *slog.Logger, opts ...Option) *Journal {
	j := &Journal{
		channel: "events",
		logger:  logger.With(slog.String("component", "journal")),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Record distributes one committed unit's events in emission order.
func (j *Journal) Record(ctx context.Context, unitID uuid.UUID, events []domain.Event) {
	if len(events) == 0 {
		return
	}
	now := time.Now().UTC()
	recs := make([]domain.JournalRecord, 0, len(events))

	for seq, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			j.logger.Error("marshal event",
				slog.String("kind", ev.EventKind()),
				slog.String("error", err.Error()))
			continue
		}

		j.logger.Info("event",
			slog.String("unit_id", unitID.String()),
			slog.String("kind", ev.EventKind()),
			slog.String("payload", string(payload)),
		)
		recs = append(recs, domain.JournalRecord{
			UnitID:  unitID,
			Seq:     seq,
			Kind:    ev.EventKind(),
			Payload: payload,
			At:      now,
		})

		if j.bus != nil {
			env, err := json.Marshal(Envelope{
				UnitID: unitID.String(),
				Seq:    seq,
				Kind:   ev.EventKind(),
				At:     now,
				Event:  payload,
			})
			if err == nil {
				if err := j.bus.Publish(ctx, j.channel, env); err != nil {
					j.logger.Warn("bus publish failed", slog.String("error", err.Error()))
				}
			}
		}
		if j.notifier != nil {
			j.notifier.NotifyEvent(ctx, ev)
		}
		if j.observer != nil {
			j.observer.ObserveEvent(ev.EventKind())
		}
	}

	if j.store != nil && len(recs) > 0 {
		if err := j.store.Append(ctx, recs); err != nil {
			j.logger.Error("journal append failed",
				slog.String("unit_id", unitID.String()),
				slog.Int("records", len(recs)),
				slog.String("error", err.Error()),
			)
		}
	}
}
