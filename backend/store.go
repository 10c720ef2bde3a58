//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks

// Package backend declares the contract with the external document database.
// The database is a collaborator, not part of this system: it exposes live
// snapshot subscriptions, an atomic read-modify-write primitive, and plain
// document writes. Anything satisfying Store can drive the reconciler.
package backend

import (
	"context"
	"time"
)

// RoomDocument is the wire shape of rooms/{roomId}.
type RoomDocument struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	CreatedBy       string    `json:"createdBy"`
	CreatedAt       time.Time `json:"createdAt"`
	Participants    []string  `json:"participants"`
	LastMessageID   string    `json:"lastMessageId,omitempty"`
	LastMessageTime time.Time `json:"lastMessageTime,omitempty"`
}

// MessageDocument is the wire shape of messages/{messageId}.
type MessageDocument struct {
	ID        string               `json:"id"`
	RoomID    string               `json:"roomId"`
	SenderID  string               `json:"senderId"`
	Content   string               `json:"content"`
	Type      string               `json:"type"`
	Timestamp time.Time            `json:"timestamp"`
	Status    string               `json:"status"`
	ReadBy    map[string]time.Time `json:"readBy,omitempty"`
}

// RoomsSnapshot is a point-in-time batch of room documents. Full snapshots
// carry the entire collection and may remove rooms locally; partial ones
// only upsert.
type RoomsSnapshot struct {
	Full  bool
	Rooms []RoomDocument
}

// MessagesSnapshot is a full ordered batch for one room. Array order is not
// a contract; the ledger re-sorts deterministically.
type MessagesSnapshot struct {
	RoomID   string
	Messages []MessageDocument
}

// RoomsEvent is one delivery on a live rooms subscription. Err is set for
// stream-level failures; the subscription itself stays alive.
type RoomsEvent struct {
	Snapshot RoomsSnapshot
	Err      error
}

// MessagesEvent is one delivery on a live per-room messages subscription.
type MessagesEvent struct {
	Snapshot MessagesSnapshot
	Err      error
}

// Cancel tears down a live subscription. Best-effort, idempotent, never fails.
type Cancel func()

// MessagesQuery parameterizes the paginated fetch, separate from the live
// stream: optional limit, optional cursor-after-id.
type MessagesQuery struct {
	RoomID  string
	Limit   int
	AfterID string
}

// Store is the backend document database contract.
//
// Subscriptions deliver an initial snapshot followed by one snapshot per
// observed change. The returned channel is closed after Cancel is called or
// the context ends. Mutate operations are atomic read-modify-write: the
// callback sees the current document and its edits commit in one
// transaction, or the whole operation fails.
type Store interface {
	SubscribeRooms(ctx context.Context) (<-chan RoomsEvent, Cancel, error)
	SubscribeMessages(ctx context.Context, roomID string) (<-chan MessagesEvent, Cancel, error)

	FetchMessages(ctx context.Context, q MessagesQuery) ([]MessageDocument, error)

	CreateRoom(ctx context.Context, doc RoomDocument) error
	MutateRoom(ctx context.Context, roomID string, fn func(doc *RoomDocument) error) error

	// AppendMessage inserts the message document and updates the room's
	// last-message pointer in a single transaction.
	AppendMessage(ctx context.Context, doc MessageDocument) error
	MutateMessage(ctx context.Context, roomID, messageID string, fn func(doc *MessageDocument) error) error
}
