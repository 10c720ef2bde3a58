package workers

import (
	"context"
	"log/slog"

	"chat-sync/contract"
	"chat-sync/domain/event"
)

// Fanout broadcasts reconciliation events to in-process sinks.
//
// Delivery is best-effort: no ordering across sinks, no retries, no
// durability. Fanout is for presentation refresh, search indexing, and
// telemetry, never for authoritative state.
type Fanout struct {
	log    *slog.Logger
	events <-chan event.Event
	sinks  []contract.EventSink
}

func NewFanout(log *slog.Logger, events <-chan event.Event, sinks ...contract.EventSink) *Fanout {
	return &Fanout{log: log, events: events, sinks: sinks}
}

func (w *Fanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fan-out")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.deliver(ctx, evt)
		}
	}
}

// deliver pushes one event to every sink. A failing sink is logged and
// skipped; it must not starve the others.
func (w *Fanout) deliver(ctx context.Context, evt event.Event) {
	for _, sink := range w.sinks {
		if err := sink.Consume(ctx, evt); err != nil {
			w.log.Warn("Sink rejected event", "key", evt.Key(), "error", err)
		}
	}
}
