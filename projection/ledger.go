package projection

import (
	"sort"
	"sync"
	"time"

	"chat-sync/domain"
	cherrors "chat-sync/errors"
)

// Ledger holds the ordered, deduplicated message sequence of every room.
//
// Each room is its own serialization domain: merges into one room are
// serialized by that room's lock while merges into different rooms proceed
// in parallel. Readers always receive clones, never ledger-owned state.
type Ledger struct {
	mu    sync.RWMutex
	rooms map[string]*roomLedger
}

type roomLedger struct {
	mu      sync.RWMutex
	index   map[string]int // message id -> position in ordered
	ordered []domain.Message
}

func NewLedger() *Ledger {
	return &Ledger{rooms: make(map[string]*roomLedger)}
}

func (l *Ledger) room(roomID string, create bool) *roomLedger {
	l.mu.RLock()
	rl, ok := l.rooms[roomID]
	l.mu.RUnlock()
	if ok || !create {
		return rl
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if rl, ok = l.rooms[roomID]; ok {
		return rl
	}
	rl = &roomLedger{index: make(map[string]int)}
	l.rooms[roomID] = rl
	return rl
}

// Merge applies a snapshot batch to the room. Entries with a known id are
// replaced, others inserted, then the whole sequence is re-sorted by
// (timestamp, id). Applying the same snapshot twice is a no-op.
//
// A replacement never regresses: aggregate status keeps the highest rank
// seen and read receipts are unioned, so a stale snapshot racing a local
// projection cannot move a read message back to delivered.
func (l *Ledger) Merge(roomID string, msgs []domain.Message) int {
	if len(msgs) == 0 {
		return 0
	}
	rl := l.room(roomID, true)
	rl.mu.Lock()
	defer rl.mu.Unlock()

	merged := 0
	for _, msg := range msgs {
		if msg.ID == "" {
			continue
		}
		incoming := msg.Clone()
		if pos, ok := rl.index[incoming.ID]; ok {
			rl.ordered[pos] = reconcileEntry(rl.ordered[pos], incoming)
		} else {
			rl.ordered = append(rl.ordered, incoming)
		}
		merged++
	}
	rl.resort()
	return merged
}

// AppendIfAbsent handles single-message push events with the same
// dedupe-by-id rule. Returns false when the id was already present.
func (l *Ledger) AppendIfAbsent(roomID string, msg domain.Message) bool {
	if msg.ID == "" {
		return false
	}
	rl := l.room(roomID, true)
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if _, ok := rl.index[msg.ID]; ok {
		return false
	}
	rl.ordered = append(rl.ordered, msg.Clone())
	rl.resort()
	return true
}

// MarkReadBy projects a read receipt locally so the UI does not wait for
// the snapshot round-trip. The entry is provisional: the next snapshot for
// this room confirms or overwrites it. NotFound is a benign race with a
// stale snapshot, reportable but not fatal.
func (l *Ledger) MarkReadBy(roomID, messageID, userID string, at time.Time) (domain.Message, error) {
	rl := l.room(roomID, false)
	if rl == nil {
		return domain.Message{}, cherrors.NotFound("room %s has no ledger", roomID)
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	pos, ok := rl.index[messageID]
	if !ok {
		return domain.Message{}, cherrors.NotFound("message %s in room %s", messageID, roomID)
	}

	msg := rl.ordered[pos]
	if msg.ReadBy == nil {
		msg.ReadBy = make(map[string]time.Time)
	}
	if _, seen := msg.ReadBy[userID]; !seen {
		msg.ReadBy[userID] = at
	}
	// Aggregate status flips on the first non-sender receipt and only forward.
	if userID != msg.SenderID && msg.Status.Rank() < domain.StatusRead.Rank() {
		msg.Status = domain.StatusRead
	}
	rl.ordered[pos] = msg
	return msg.Clone(), nil
}

// Messages returns the room's ordered sequence as clones. An unknown room
// yields an empty slice.
func (l *Ledger) Messages(roomID string) []domain.Message {
	rl := l.room(roomID, false)
	if rl == nil {
		return nil
	}
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	out := make([]domain.Message, len(rl.ordered))
	for i, msg := range rl.ordered {
		out[i] = msg.Clone()
	}
	return out
}

// Message looks up one entry by id.
func (l *Ledger) Message(roomID, messageID string) (domain.Message, bool) {
	rl := l.room(roomID, false)
	if rl == nil {
		return domain.Message{}, false
	}
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	pos, ok := rl.index[messageID]
	if !ok {
		return domain.Message{}, false
	}
	return rl.ordered[pos].Clone(), true
}

// reconcileEntry replaces an existing entry with an incoming one while
// enforcing monotonicity: the higher status rank wins and receipts are
// unioned (incoming values win for shared participants).
func reconcileEntry(existing, incoming domain.Message) domain.Message {
	if existing.Status.Rank() > incoming.Status.Rank() {
		incoming.Status = existing.Status
	}
	for userID, at := range existing.ReadBy {
		if incoming.ReadBy == nil {
			incoming.ReadBy = make(map[string]time.Time)
		}
		if _, ok := incoming.ReadBy[userID]; !ok {
			incoming.ReadBy[userID] = at
		}
	}
	return incoming
}

// resort restores the (timestamp, id) order and rebuilds the id index.
// Caller holds the write lock.
func (rl *roomLedger) resort() {
	sort.SliceStable(rl.ordered, func(i, j int) bool {
		return rl.ordered[i].Before(rl.ordered[j])
	})
	rl.index = make(map[string]int, len(rl.ordered))
	for i, msg := range rl.ordered {
		rl.index[msg.ID] = i
	}
}
