// Package domain contains core concepts of the chat system.
// This file defines Message value objects and their ordering rules.
// Messages are immutable once created; only status and receipts evolve.
package domain

import (
	"time"
)

// MessageType classifies the payload of a message.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeFile  MessageType = "file"
)

// ParseMessageType decodes a wire token. Unknown tokens fall back to the
// most conservative value instead of failing the whole batch.
func ParseMessageType(s string) MessageType {
	switch MessageType(s) {
	case TypeText, TypeImage, TypeFile:
		return MessageType(s)
	default:
		return TypeText
	}
}

// MessageStatus is the aggregate lifecycle state of a message.
// It only ever moves forward: sent, delivered, read.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// ParseMessageStatus decodes a wire token, falling back to sent.
func ParseMessageStatus(s string) MessageStatus {
	switch MessageStatus(s) {
	case StatusSent, StatusDelivered, StatusRead:
		return MessageStatus(s)
	default:
		return StatusSent
	}
}

// Rank orders statuses along the lifecycle. Higher never goes back to lower.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	default:
		return 0
	}
}

// Message represents one chat entry.
//
// The aggregate Status is a derived convenience: the authoritative record of
// who read what is the ReadBy map (participant id to receipt time).
type Message struct {
	ID        string
	RoomID    string
	SenderID  string
	Content   string
	Type      MessageType
	CreatedAt time.Time
	Status    MessageStatus
	ReadBy    map[string]time.Time
}

// Before establishes the total order within a room: ascending creation time,
// ties broken by id, lexical. Transport array order is never trusted.
func (m Message) Before(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

// ReadByAll reports whether every non-sender participant has a read receipt.
// This is deliberately separate from Status, which flips to read on the
// first receipt only.
func (m Message) ReadByAll(participants []string) bool {
	for _, p := range participants {
		if p == m.SenderID {
			continue
		}
		if _, ok := m.ReadBy[p]; !ok {
			return false
		}
	}
	return true
}

// Clone returns a deep copy. Ledger reads hand out clones so observers can
// never alias the ledger's own ReadBy map.
func (m Message) Clone() Message {
	out := m
	if m.ReadBy != nil {
		out.ReadBy = make(map[string]time.Time, len(m.ReadBy))
		for k, v := range m.ReadBy {
			out.ReadBy[k] = v
		}
	}
	return out
}
