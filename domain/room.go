// Package domain contains core concepts of the chat system.
// This file defines Room entities and membership invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"slices"
	"time"
)

// Room is a chat room as projected from backend snapshots.
// Invariant: Participants is never empty and always contains CreatedBy.
type Room struct {
	ID              string
	Name            string
	Description     string
	CreatedBy       string
	CreatedAt       time.Time
	Participants    []string
	LastMessageID   string
	LastMessageTime time.Time
}

// HasParticipant reports membership of a user in the room.
func (r Room) HasParticipant(userID string) bool {
	return slices.Contains(r.Participants, userID)
}

// Clone returns a copy with its own participant slice.
func (r Room) Clone() Room {
	out := r
	out.Participants = slices.Clone(r.Participants)
	return out
}
