// Package runtime bridges the backend's push-based snapshot delivery into
// the local projections. It owns merge correctness and subscription
// lifecycle; transport resilience stays with the backend.
package runtime

import (
	"log/slog"

	"github.com/samber/lo"

	"chat-sync/backend"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/observability"
	"chat-sync/projection"
)

// Reconciler merges incoming snapshots into the registry and ledger under
// deterministic rules and publishes reconciliation events for sinks.
//
// It never raises for malformed individual documents: decoding applies
// conservative defaults and documents without an id are dropped, so one
// corrupt document cannot stall the rest of the batch.
type Reconciler struct {
	log      *slog.Logger
	registry *projection.Registry
	ledger   *projection.Ledger
	stats    *observability.Monitor
	events   chan event.Event
}

func NewReconciler(log *slog.Logger, registry *projection.Registry,
	ledger *projection.Ledger, stats *observability.Monitor, bufferSize int) *Reconciler {
	return &Reconciler{
		log:      log,
		registry: registry,
		ledger:   ledger,
		stats:    stats,
		events:   make(chan event.Event, bufferSize),
	}
}

// Events exposes the reconciliation event stream, consumed by the fan-out
// worker.
func (r *Reconciler) Events() <-chan event.Event {
	return r.events
}

// ApplyRooms merges one rooms snapshot into the registry.
func (r *Reconciler) ApplyRooms(snap backend.RoomsSnapshot) {
	docs := lo.Filter(snap.Rooms, func(doc backend.RoomDocument, _ int) bool {
		if doc.ID == "" {
			r.log.Warn("Dropping room document without id")
			return false
		}
		return true
	})
	rooms := backend.DecodeRooms(docs)
	r.registry.UpsertRooms(rooms, snap.Full)
	r.stats.IncrRoomSnapshots()
	r.emit(event.RoomsUpdated{Count: len(rooms), Full: snap.Full})
}

// ApplyMessages merges one per-room message batch into the ledger. Output
// order follows the ledger's (timestamp, id) rule, not transport order.
func (r *Reconciler) ApplyMessages(snap backend.MessagesSnapshot) {
	if snap.RoomID == "" {
		r.log.Warn("Dropping messages snapshot without room id")
		return
	}
	msgs := backend.DecodeMessages(snap.Messages)
	merged := r.ledger.Merge(snap.RoomID, msgs)
	r.stats.IncrMessagesMerged(uint64(merged))
	r.emit(event.MessagesMerged{Room: snap.RoomID, Merged: msgs})
}

// ApplyPush handles a single-message push with the dedupe-by-id rule.
func (r *Reconciler) ApplyPush(doc backend.MessageDocument) {
	if doc.ID == "" || doc.RoomID == "" {
		r.log.Warn("Dropping pushed message without id", "room", doc.RoomID)
		return
	}
	msg := backend.DecodeMessage(doc)
	if !r.ledger.AppendIfAbsent(msg.RoomID, msg) {
		r.stats.IncrDuplicatesDropped()
		return
	}
	r.stats.IncrMessagesMerged(1)
	r.emit(event.MessagesMerged{Room: msg.RoomID, Merged: []domain.Message{msg}})
}

// ReportStreamError surfaces a stream-level failure to observers. The
// subscription stays alive; reconnecting is the transport's job.
func (r *Reconciler) ReportStreamError(key string, err error) {
	r.stats.IncrSyncErrors()
	r.log.Warn("Stream delivery failed", "subscription", key, "error", err)
	r.emit(event.SyncFailed{Subscription: key, Err: err})
}

// NotifyReceipt publishes a locally projected read receipt.
func (r *Reconciler) NotifyReceipt(e event.ReadReceiptApplied) {
	r.stats.IncrReceiptsApplied()
	r.emit(e)
}

func (r *Reconciler) emit(e event.Event) {
	select {
	case r.events <- e:
	default:
		r.stats.IncrEventsDropped()
		r.log.Warn("Event buffer full, dropping", "key", e.Key())
	}
}
