package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"chat-sync/backend"
	"chat-sync/domain"
	"chat-sync/domain/event"
	cherrors "chat-sync/errors"
	"chat-sync/projection"
)

// StatusPropagator owns the message lifecycle state machine and its write
// path: sent to delivered once the backend confirms durable storage, and
// delivered to read on the first non-sender receipt. No transition moves
// backward.
//
// The aggregate status flipping on the *first* receipt is a deliberate,
// documented policy; callers needing everyone-has-read semantics use
// Message.ReadByAll instead.
type StatusPropagator struct {
	log    *slog.Logger
	store  backend.Store
	ledger *projection.Ledger
	notify func(event.ReadReceiptApplied)
}

// NewStatusPropagator wires the propagator. notify may be nil when no
// observer cares about locally projected receipts.
func NewStatusPropagator(log *slog.Logger, store backend.Store,
	ledger *projection.Ledger, notify func(event.ReadReceiptApplied)) *StatusPropagator {
	return &StatusPropagator{log: log, store: store, ledger: ledger, notify: notify}
}

// OnMessageStored confirms delivery after the backend durably stored a
// newly sent message. Idempotent: an already delivered or read message is
// left untouched.
func (p *StatusPropagator) OnMessageStored(ctx context.Context, roomID, messageID string) error {
	err := p.store.MutateMessage(ctx, roomID, messageID, func(doc *backend.MessageDocument) error {
		if domain.ParseMessageStatus(doc.Status).Rank() < domain.StatusDelivered.Rank() {
			doc.Status = string(domain.StatusDelivered)
		}
		return nil
	})
	return asBackendErr(err)
}

// OnMessageBecameVisible writes the read receipt for a participant that
// observed the message. The authoritative write goes to the backend; the
// local ledger is updated as a provisional projection so the UI does not
// wait for the snapshot round-trip.
func (p *StatusPropagator) OnMessageBecameVisible(ctx context.Context, roomID, messageID, userID string) error {
	at := time.Now().UTC()

	err := p.store.MutateMessage(ctx, roomID, messageID, func(doc *backend.MessageDocument) error {
		if doc.ReadBy == nil {
			doc.ReadBy = make(map[string]time.Time)
		}
		if _, seen := doc.ReadBy[userID]; !seen {
			doc.ReadBy[userID] = at
		}
		if userID != doc.SenderID &&
			domain.ParseMessageStatus(doc.Status).Rank() < domain.StatusRead.Rank() {
			doc.Status = string(domain.StatusRead)
		}
		return nil
	})
	if err != nil {
		return asBackendErr(err)
	}

	if _, err := p.ledger.MarkReadBy(roomID, messageID, userID, at); err != nil {
		// Benign race: the ledger has not seen this message yet; the next
		// snapshot carries the receipt anyway.
		p.log.Debug("Receipt projected before ledger entry", "room", roomID, "message", messageID)
		return nil
	}
	if p.notify != nil {
		p.notify(event.ReadReceiptApplied{Room: roomID, MessageID: messageID, UserID: userID, At: at})
	}
	return nil
}

// asBackendErr keeps taxonomy errors as-is and classifies everything else
// as a transient backend failure.
func asBackendErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, cherrors.ErrNotFound) ||
		errors.Is(err, cherrors.ErrValidation) ||
		errors.Is(err, cherrors.ErrBackendUnavailable) {
		return err
	}
	return cherrors.Unavailable(err)
}
