package storage

import (
	"context"
	"encoding/json"

	"github.com/dgraph-io/badger/v4"

	"chat-sync/backend"
	cherrors "chat-sync/errors"
)

// Live subscriptions push a full snapshot on subscribe and after every
// commit touching the collection. Channels are buffered; when a subscriber
// lags, the oldest pending snapshot is replaced by the newest one. Every
// snapshot carries full state, so a lagging subscriber only risks
// staleness, never correctness.

// SubscribeRooms registers a rooms-collection subscriber.
func (s *Store) SubscribeRooms(ctx context.Context) (<-chan backend.RoomsEvent, backend.Cancel, error) {
	snap, err := s.roomsSnapshot()
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	ch := make(chan backend.RoomsEvent, s.buffer)
	s.roomSubs[id] = ch
	ch <- backend.RoomsEvent{Snapshot: snap}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.roomSubs[id]; ok {
			delete(s.roomSubs, id)
			close(sub)
		}
	}
	s.cancelOnDone(ctx, cancel)
	return ch, cancel, nil
}

// SubscribeMessages registers a subscriber for one room's message batches.
func (s *Store) SubscribeMessages(ctx context.Context, roomID string) (<-chan backend.MessagesEvent, backend.Cancel, error) {
	snap, err := s.messagesSnapshot(roomID)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	ch := make(chan backend.MessagesEvent, s.buffer)
	if s.msgSubs[roomID] == nil {
		s.msgSubs[roomID] = make(map[uint64]chan backend.MessagesEvent)
	}
	s.msgSubs[roomID][id] = ch
	ch <- backend.MessagesEvent{Snapshot: snap}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if subs, ok := s.msgSubs[roomID]; ok {
			if sub, ok := subs[id]; ok {
				delete(subs, id)
				close(sub)
			}
			if len(subs) == 0 {
				delete(s.msgSubs, roomID)
			}
		}
	}
	s.cancelOnDone(ctx, cancel)
	return ch, cancel, nil
}

func (s *Store) cancelOnDone(ctx context.Context, cancel backend.Cancel) {
	if ctx == nil || ctx.Done() == nil {
		return
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
}

func (s *Store) notifyRooms() {
	snap, err := s.roomsSnapshot()
	if err != nil {
		s.pushRoomsError(err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.roomSubs {
		pushLatest(ch, backend.RoomsEvent{Snapshot: snap})
	}
}

func (s *Store) pushRoomsError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.roomSubs {
		pushLatest(ch, backend.RoomsEvent{Err: err})
	}
}

func (s *Store) notifyMessages(roomID string) {
	snap, err := s.messagesSnapshot(roomID)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.msgSubs[roomID] {
		if err != nil {
			pushLatest(ch, backend.MessagesEvent{Err: err})
			continue
		}
		pushLatest(ch, backend.MessagesEvent{Snapshot: snap})
	}
}

// pushLatest delivers without blocking: when the buffer is full the oldest
// pending event makes room for the newest.
func pushLatest[T any](ch chan T, ev T) {
	for {
		select {
		case ch <- ev:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// roomsSnapshot reads the entire rooms collection. Snapshots from this
// store are always full: absent rooms may be removed locally.
func (s *Store) roomsSnapshot() (backend.RoomsSnapshot, error) {
	snap := backend.RoomsSnapshot{Full: true}
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(roomPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var doc backend.RoomDocument
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			})
			if err != nil {
				return err
			}
			snap.Rooms = append(snap.Rooms, doc)
		}
		return nil
	})
	if err != nil {
		return backend.RoomsSnapshot{}, cherrors.Unavailable(err)
	}
	return snap, nil
}

// messagesSnapshot reads the full ordered batch for one room.
func (s *Store) messagesSnapshot(roomID string) (backend.MessagesSnapshot, error) {
	docs, err := s.FetchMessages(context.Background(), backend.MessagesQuery{RoomID: roomID})
	if err != nil {
		return backend.MessagesSnapshot{}, err
	}
	return backend.MessagesSnapshot{RoomID: roomID, Messages: docs}, nil
}
