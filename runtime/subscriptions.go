package runtime

import (
	"context"
	"log/slog"
	"sync"

	"chat-sync/backend"
	"chat-sync/domain/event"
	cherrors "chat-sync/errors"
	"chat-sync/observability"
)

// Subscriptions manages live stream lifecycle per key (a room id, or the
// singleton rooms key). It guarantees at-most-one active subscription per
// key and drops snapshots delivered after a detach.
//
// Every attach bumps the key's epoch; a pump only applies events while its
// own epoch is still current, which resolves the detach-then-late-delivery
// race by dropping the late event.
type Subscriptions struct {
	mu     sync.Mutex
	log    *slog.Logger
	store  backend.Store
	rec    *Reconciler
	stats  *observability.Monitor
	active map[string]backend.Cancel
	epochs map[string]uint64
}

func NewSubscriptions(log *slog.Logger, store backend.Store,
	rec *Reconciler, stats *observability.Monitor) *Subscriptions {
	return &Subscriptions{
		log:    log,
		store:  store,
		rec:    rec,
		stats:  stats,
		active: make(map[string]backend.Cancel),
		epochs: make(map[string]uint64),
	}
}

// AttachRooms subscribes to the rooms collection stream. A prior rooms
// subscription is detached first.
func (s *Subscriptions) AttachRooms(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.detachLocked(event.RoomsKey)
	epoch := s.bumpLocked(event.RoomsKey)

	events, cancel, err := s.store.SubscribeRooms(ctx)
	if err != nil {
		return cherrors.Unavailable(err)
	}
	s.active[event.RoomsKey] = cancel

	go func() {
		for ev := range events {
			if !s.current(event.RoomsKey, epoch) {
				s.stats.IncrLateDrops()
				continue
			}
			if ev.Err != nil {
				s.rec.ReportStreamError(event.RoomsKey, ev.Err)
				continue
			}
			s.rec.ApplyRooms(ev.Snapshot)
		}
		s.forget(event.RoomsKey, epoch)
	}()
	return nil
}

// AttachMessages subscribes to one room's message stream, detaching any
// prior subscription for the same room first.
func (s *Subscriptions) AttachMessages(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.detachLocked(roomID)
	epoch := s.bumpLocked(roomID)

	events, cancel, err := s.store.SubscribeMessages(ctx, roomID)
	if err != nil {
		return cherrors.Unavailable(err)
	}
	s.active[roomID] = cancel

	go func() {
		for ev := range events {
			if !s.current(roomID, epoch) {
				s.stats.IncrLateDrops()
				continue
			}
			if ev.Err != nil {
				s.rec.ReportStreamError(roomID, ev.Err)
				continue
			}
			s.rec.ApplyMessages(ev.Snapshot)
		}
		s.forget(roomID, epoch)
	}()
	return nil
}

// Detach tears down the subscription for a key. Idempotent: detaching an
// absent key is a no-op. Detach never fails, it only releases resources.
func (s *Subscriptions) Detach(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detachLocked(key)
}

// DetachAll is the session teardown: every live subscription is released.
func (s *Subscriptions) DetachAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.active {
		s.detachLocked(key)
	}
}

// Active reports whether a live subscription exists for the key.
func (s *Subscriptions) Active(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[key]
	return ok
}

// detachLocked cancels and invalidates the key's epoch so in-flight
// deliveries are dropped. Caller holds the lock.
func (s *Subscriptions) detachLocked(key string) {
	cancel, ok := s.active[key]
	if !ok {
		return
	}
	delete(s.active, key)
	s.epochs[key]++
	cancel()
	s.log.Debug("Subscription detached", "key", key)
}

func (s *Subscriptions) bumpLocked(key string) uint64 {
	s.epochs[key]++
	return s.epochs[key]
}

func (s *Subscriptions) current(key string, epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epochs[key] == epoch
}

// forget clears bookkeeping when a stream ends on its own (channel closed
// by the backend) and no newer attach has replaced it.
func (s *Subscriptions) forget(key string, epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epochs[key] == epoch {
		delete(s.active, key)
	}
}
