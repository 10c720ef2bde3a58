// Package projection holds the locally reconciled view of rooms and
// messages. It owns ordering, deduplication, and receipt projection.
// All mutation flows through the reconciler; nothing here talks to the
// backend or emits events.
package projection

import (
	"sort"
	"sync"

	"chat-sync/domain"
)

// Registry is the authoritative local set of chat rooms.
// Safe for concurrent use: one writer (the reconciler), many readers.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]domain.Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]domain.Room)}
}

// UpsertRooms merges a snapshot by id. Matching entries are replaced
// entirely, last snapshot wins. A partial snapshot preserves rooms it does
// not mention; only a full-collection snapshot may remove rooms.
func (r *Registry) UpsertRooms(rooms []domain.Room, full bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if full {
		seen := make(map[string]struct{}, len(rooms))
		for _, room := range rooms {
			seen[room.ID] = struct{}{}
		}
		for id := range r.rooms {
			if _, ok := seen[id]; !ok {
				delete(r.rooms, id)
			}
		}
	}
	for _, room := range rooms {
		r.rooms[room.ID] = room.Clone()
	}
}

// Room returns a copy of the room, or false when unknown.
func (r *Registry) Room(id string) (domain.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return domain.Room{}, false
	}
	return room.Clone(), true
}

// Rooms returns all rooms ordered by creation time descending, matching the
// backend's rooms query order.
func (r *Registry) Rooms() []domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Len reports the number of known rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
