// Package event defines the closed set of notifications emitted while
// reconciling backend snapshots into local state. Sinks consume them for
// presentation refresh, search indexing, and telemetry.
package event

import (
	"time"

	"chat-sync/domain"
)

// RoomsKey is the subscription key of the singleton rooms stream.
const RoomsKey = "rooms"

// Event is implemented by every reconciliation notification.
// Key returns the subscription key the event originated from.
type Event interface {
	Key() string
}

// RoomsUpdated signals that a rooms snapshot was merged into the registry.
type RoomsUpdated struct {
	Count int
	Full  bool
}

func (RoomsUpdated) Key() string { return RoomsKey }

// MessagesMerged signals that a message batch was merged into a room's
// ledger. Merged carries the post-decode messages so sinks (search index,
// presentation) do not need to re-read the ledger.
type MessagesMerged struct {
	Room   string
	Merged []domain.Message
}

func (e MessagesMerged) Key() string { return e.Room }

// ReadReceiptApplied signals a locally projected read receipt.
type ReadReceiptApplied struct {
	Room      string
	MessageID string
	UserID    string
	At        time.Time
}

func (e ReadReceiptApplied) Key() string { return e.Room }

// SyncFailed signals a stream-level delivery failure. The subscription
// stays alive; observers decide whether to surface it.
type SyncFailed struct {
	Subscription string
	Err          error
}

func (e SyncFailed) Key() string { return e.Subscription }
