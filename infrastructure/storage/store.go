// Package storage is the in-tree implementation of the backend document
// store: BadgerDB persistence, JSON documents, and live snapshot push to
// subscribers. It serves the demo binary and the integration tests; the
// core only ever sees the backend.Store contract.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"chat-sync/backend"
	cherrors "chat-sync/errors"
)

const (
	roomPrefix   = "room:"
	msgPrefix    = "msg:"
	msgIdxPrefix = "msgidx:"

	// Serializable transactions abort on overlap; a bounded retry absorbs
	// the occasional conflict between concurrent read-modify-writes.
	maxTxnRetries = 16
)

// Store implements backend.Store on BadgerDB.
//
// Message keys embed the zero-padded nanosecond timestamp so a plain prefix
// scan yields chronological order; the message id suffix disambiguates two
// messages in the same nanosecond. A secondary msgidx entry maps
// (room, message id) back to the full key for point lookups.
type Store struct {
	db     *badger.DB
	log    *slog.Logger
	buffer int

	mu       sync.Mutex
	nextID   uint64
	roomSubs map[uint64]chan backend.RoomsEvent
	msgSubs  map[string]map[uint64]chan backend.MessagesEvent
}

// Open opens (or creates) a store at path.
func Open(path string, buffer int, log *slog.Logger) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, err
	}
	return New(db, buffer, log), nil
}

// New wraps an already opened database.
func New(db *badger.DB, buffer int, log *slog.Logger) *Store {
	if buffer < 1 {
		buffer = 1
	}
	return &Store{
		db:       db,
		log:      log,
		buffer:   buffer,
		roomSubs: make(map[uint64]chan backend.RoomsEvent),
		msgSubs:  make(map[string]map[uint64]chan backend.MessagesEvent),
	}
}

// Close tears down the database. Live subscription channels are closed.
func (s *Store) Close() error {
	s.mu.Lock()
	for id, ch := range s.roomSubs {
		delete(s.roomSubs, id)
		close(ch)
	}
	for roomID, subs := range s.msgSubs {
		for id, ch := range subs {
			delete(subs, id)
			close(ch)
		}
		delete(s.msgSubs, roomID)
	}
	s.mu.Unlock()
	return s.db.Close()
}

func roomKey(roomID string) []byte {
	return []byte(roomPrefix + roomID)
}

func messageKey(doc backend.MessageDocument) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", msgPrefix, doc.RoomID, doc.Timestamp.UnixNano(), doc.ID))
}

func messageIdxKey(roomID, messageID string) []byte {
	return []byte(msgIdxPrefix + roomID + ":" + messageID)
}

// CreateRoom persists the room document and pushes a fresh rooms snapshot.
func (s *Store) CreateRoom(_ context.Context, doc backend.RoomDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return cherrors.Unavailable(err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(roomKey(doc.ID), payload)
	})
	if err != nil {
		return cherrors.Unavailable(err)
	}
	s.notifyRooms()
	return nil
}

// MutateRoom runs fn inside a serializable transaction: read, modify,
// write, or fail as a unit. Conflicting concurrent mutations are retried.
func (s *Store) MutateRoom(_ context.Context, roomID string, fn func(doc *backend.RoomDocument) error) error {
	err := s.withTxnRetry(func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(roomKey(roomID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return cherrors.NotFound("room %s", roomID)
			}
			if err != nil {
				return err
			}

			var doc backend.RoomDocument
			if err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			}); err != nil {
				return err
			}
			if err = fn(&doc); err != nil {
				return err
			}

			payload, err := json.Marshal(doc)
			if err != nil {
				return err
			}
			return txn.Set(roomKey(roomID), payload)
		})
	})
	if err != nil {
		return err
	}
	s.notifyRooms()
	return nil
}

// AppendMessage inserts the message and updates the room's last-message
// pointer in the same transaction, then pushes fresh snapshots on both the
// room's message stream and the rooms stream.
func (s *Store) AppendMessage(_ context.Context, doc backend.MessageDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return cherrors.Unavailable(err)
	}
	msgKey := messageKey(doc)

	err = s.withTxnRetry(func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(roomKey(doc.RoomID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return cherrors.NotFound("room %s", doc.RoomID)
			}
			if err != nil {
				return err
			}

			var room backend.RoomDocument
			if err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &room)
			}); err != nil {
				return err
			}
			room.LastMessageID = doc.ID
			room.LastMessageTime = doc.Timestamp
			roomPayload, err := json.Marshal(room)
			if err != nil {
				return err
			}

			if err = txn.Set(msgKey, payload); err != nil {
				return err
			}
			if err = txn.Set(messageIdxKey(doc.RoomID, doc.ID), msgKey); err != nil {
				return err
			}
			return txn.Set(roomKey(doc.RoomID), roomPayload)
		})
	})
	if err != nil {
		return err
	}
	s.notifyMessages(doc.RoomID)
	s.notifyRooms()
	return nil
}

// MutateMessage runs fn on one message document atomically, resolved
// through the msgidx point lookup.
func (s *Store) MutateMessage(_ context.Context, roomID, messageID string, fn func(doc *backend.MessageDocument) error) error {
	err := s.withTxnRetry(func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			idxItem, err := txn.Get(messageIdxKey(roomID, messageID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return cherrors.NotFound("message %s in room %s", messageID, roomID)
			}
			if err != nil {
				return err
			}
			var msgKey []byte
			if err = idxItem.Value(func(val []byte) error {
				msgKey = append([]byte(nil), val...)
				return nil
			}); err != nil {
				return err
			}

			item, err := txn.Get(msgKey)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return cherrors.NotFound("message %s in room %s", messageID, roomID)
			}
			if err != nil {
				return err
			}

			var doc backend.MessageDocument
			if err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			}); err != nil {
				return err
			}
			if err = fn(&doc); err != nil {
				return err
			}

			payload, err := json.Marshal(doc)
			if err != nil {
				return err
			}
			return txn.Set(msgKey, payload)
		})
	})
	if err != nil {
		return err
	}
	s.notifyMessages(roomID)
	return nil
}

// FetchMessages is the paginated history read: chronological prefix scan,
// optional cursor-after-id, optional limit.
func (s *Store) FetchMessages(_ context.Context, q backend.MessagesQuery) ([]backend.MessageDocument, error) {
	var docs []backend.MessageDocument
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(msgPrefix + q.RoomID + ":")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		skipping := q.AfterID != ""
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if q.Limit > 0 && len(docs) == q.Limit {
				break
			}
			key := string(it.Item().Key())
			if skipping {
				if strings.HasSuffix(key, ":"+q.AfterID) {
					skipping = false
				}
				continue
			}
			var doc backend.MessageDocument
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			})
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, cherrors.Unavailable(err)
	}
	return docs, nil
}

// withTxnRetry absorbs serializable-transaction conflicts. Taxonomy errors
// from the callback pass through untouched; persistent conflicts and
// storage failures surface as backend unavailability.
func (s *Store) withTxnRetry(op func() error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if errors.Is(err, cherrors.ErrNotFound) || errors.Is(err, cherrors.ErrValidation) {
			return err
		}
		return cherrors.Unavailable(err)
	}
	return cherrors.Unavailable(err)
}
