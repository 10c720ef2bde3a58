// Package services holds the application layer: the command dispatcher and
// the status propagator. Commands validate, hit the backend atomically, and
// let the stream reconciler converge local state; they never mutate the
// authoritative projections directly.
package services

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"chat-sync/backend"
	"chat-sync/contract"
	"chat-sync/domain"
	cherrors "chat-sync/errors"
	"chat-sync/moderation"
	"chat-sync/observability"
)

// Receipt reports what a successful command touched.
type Receipt struct {
	RoomID    string
	MessageID string
}

// Dispatcher executes user intents against the backend.
//
// Room mutations (join, leave, send's last-message pointer) go through the
// backend's atomic read-modify-write primitive so concurrent clients cannot
// lose updates. Message ids are generated client-side before the write,
// which makes SendMessage safe to retry without double-inserting.
type Dispatcher struct {
	log     *slog.Logger
	store   backend.Store
	auth    contract.AuthSource
	status  *StatusPropagator
	censor  *moderation.Moderator
	retry   RetryPolicy
	monitor *observability.Monitor
}

// NewDispatcher wires the dispatcher. censor and monitor may be nil.
func NewDispatcher(log *slog.Logger, store backend.Store, auth contract.AuthSource,
	status *StatusPropagator, censor *moderation.Moderator,
	retry RetryPolicy, monitor *observability.Monitor) *Dispatcher {
	return &Dispatcher{
		log:     log,
		store:   store,
		auth:    auth,
		status:  status,
		censor:  censor,
		retry:   retry,
		monitor: monitor,
	}
}

// Do executes one command and returns a typed failure from the taxonomy on
// error. The switch is exhaustive over the command variants.
func (d *Dispatcher) Do(ctx context.Context, cmd domain.Command) (Receipt, error) {
	if err := cmd.Validate(); err != nil {
		return Receipt{}, err
	}

	switch c := cmd.(type) {
	case domain.CreateRoom:
		return d.createRoom(ctx, c)
	case domain.JoinRoom:
		return d.joinRoom(ctx, c)
	case domain.LeaveRoom:
		return d.leaveRoom(ctx, c)
	case domain.SendMessage:
		return d.sendMessage(ctx, c)
	case domain.MarkRead:
		return d.markRead(ctx, c)
	default:
		return Receipt{}, cherrors.Validation("unknown command kind %q", cmd.Kind())
	}
}

func (d *Dispatcher) createRoom(ctx context.Context, c domain.CreateRoom) (Receipt, error) {
	if err := d.requireUser(); err != nil {
		return Receipt{}, err
	}

	doc := backend.RoomDocument{
		ID:           uuid.NewString(),
		Name:         c.Name,
		Description:  c.Description,
		CreatedBy:    c.CreatorID,
		CreatedAt:    time.Now().UTC(),
		Participants: []string{c.CreatorID},
	}
	if err := asBackendErr(d.store.CreateRoom(ctx, doc)); err != nil {
		return Receipt{}, err
	}
	d.log.Info("Room created", "room", doc.ID, "creator", c.CreatorID)
	return Receipt{RoomID: doc.ID}, nil
}

// joinRoom appends the user to the participant list unless already present.
// The read-then-append runs inside one backend transaction, so two
// concurrent joins cannot duplicate the entry or drop each other's write.
func (d *Dispatcher) joinRoom(ctx context.Context, c domain.JoinRoom) (Receipt, error) {
	if err := d.requireUser(); err != nil {
		return Receipt{}, err
	}

	err := d.retry.Do(ctx, d.monitor, func() error {
		return asBackendErr(d.store.MutateRoom(ctx, c.RoomID, func(doc *backend.RoomDocument) error {
			if !slices.Contains(doc.Participants, c.UserID) {
				doc.Participants = append(doc.Participants, c.UserID)
			}
			return nil
		}))
	})
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{RoomID: c.RoomID}, nil
}

func (d *Dispatcher) leaveRoom(ctx context.Context, c domain.LeaveRoom) (Receipt, error) {
	if err := d.requireUser(); err != nil {
		return Receipt{}, err
	}

	err := asBackendErr(d.store.MutateRoom(ctx, c.RoomID, func(doc *backend.RoomDocument) error {
		idx := slices.Index(doc.Participants, c.UserID)
		if idx < 0 {
			return cherrors.NotFound("user %s is not a participant of room %s", c.UserID, c.RoomID)
		}
		doc.Participants = slices.Delete(doc.Participants, idx, idx+1)
		return nil
	}))
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{RoomID: c.RoomID}, nil
}

// sendMessage inserts the message document and updates the room's
// last-message pointer in one transaction, then confirms delivery. There is
// no optimistic local echo: the message becomes visible once the live
// stream delivers it back.
func (d *Dispatcher) sendMessage(ctx context.Context, c domain.SendMessage) (Receipt, error) {
	if err := d.requireUser(); err != nil {
		return Receipt{}, err
	}

	content := c.Content
	if c.Type == domain.TypeText && d.censor != nil {
		if censored, hit := d.censor.Censor(content); hit {
			d.log.Debug("Outbound message censored", "room", c.RoomID)
			content = censored
		}
	}

	doc := backend.MessageDocument{
		ID:        uuid.NewString(),
		RoomID:    c.RoomID,
		SenderID:  c.SenderID,
		Content:   content,
		Type:      string(c.Type),
		Timestamp: time.Now().UTC(),
		Status:    string(domain.StatusSent),
	}
	err := d.retry.Do(ctx, d.monitor, func() error {
		return asBackendErr(d.store.AppendMessage(ctx, doc))
	})
	if err != nil {
		return Receipt{}, err
	}

	// Durable storage confirmed: sent -> delivered.
	err = d.retry.Do(ctx, d.monitor, func() error {
		return d.status.OnMessageStored(ctx, c.RoomID, doc.ID)
	})
	if err != nil {
		return Receipt{RoomID: c.RoomID, MessageID: doc.ID}, err
	}
	return Receipt{RoomID: c.RoomID, MessageID: doc.ID}, nil
}

func (d *Dispatcher) markRead(ctx context.Context, c domain.MarkRead) (Receipt, error) {
	if err := d.requireUser(); err != nil {
		return Receipt{}, err
	}

	err := d.retry.Do(ctx, d.monitor, func() error {
		return d.status.OnMessageBecameVisible(ctx, c.RoomID, c.MessageID, c.UserID)
	})
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{RoomID: c.RoomID, MessageID: c.MessageID}, nil
}

// Messages is the paginated history fetch, separate from the live stream.
func (d *Dispatcher) Messages(ctx context.Context, roomID string, limit int, afterID string) ([]domain.Message, error) {
	docs, err := d.store.FetchMessages(ctx, backend.MessagesQuery{RoomID: roomID, Limit: limit, AfterID: afterID})
	if err != nil {
		return nil, asBackendErr(err)
	}
	return backend.DecodeMessages(docs), nil
}

func (d *Dispatcher) requireUser() error {
	if d.auth == nil {
		return nil
	}
	if _, ok := d.auth.CurrentUser(); !ok {
		return cherrors.ErrUnauthenticated
	}
	return nil
}
