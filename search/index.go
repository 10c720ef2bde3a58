// Package search maintains a full-text index over reconciled messages.
// It is a best-effort sink: indexing failures are logged and never block
// or corrupt reconciliation.
package search

import (
	"context"
	"log/slog"
	"sync"

	"github.com/abadojack/whatlanggo"
	"github.com/blugelabs/bluge"

	"chat-sync/domain"
	"chat-sync/domain/event"
)

// Index wraps a bluge writer fed by MessagesMerged events. Documents are
// keyed by message id, so re-merging the same message just reindexes it.
type Index struct {
	mu     sync.Mutex
	writer *bluge.Writer
	log    *slog.Logger
}

// NewIndex opens an on-disk index at path.
func NewIndex(path string, log *slog.Logger) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return &Index{writer: writer, log: log}, nil
}

// NewMemoryIndex opens a throwaway in-memory index, used by tests.
func NewMemoryIndex(log *slog.Logger) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	if err != nil {
		return nil, err
	}
	return &Index{writer: writer, log: log}, nil
}

// Consume indexes the messages carried by merge events. Other event kinds
// are ignored.
func (idx *Index) Consume(_ context.Context, e event.Event) error {
	merged, ok := e.(event.MessagesMerged)
	if !ok {
		return nil
	}
	for _, msg := range merged.Merged {
		if msg.Type != domain.TypeText || msg.Content == "" {
			continue
		}
		if err := idx.upsert(msg); err != nil {
			idx.log.Warn("Indexing failed", "message", msg.ID, "error", err)
		}
	}
	return nil
}

func (idx *Index) upsert(msg domain.Message) error {
	lang := whatlanggo.LangToString(whatlanggo.DetectLang(msg.Content))

	doc := bluge.NewDocument(msg.ID).
		AddField(bluge.NewKeywordField("room", msg.RoomID)).
		AddField(bluge.NewTextField("content", msg.Content).StoreValue()).
		AddField(bluge.NewKeywordField("lang", lang))

	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.writer.Update(doc.ID(), doc)
}

// Find returns the ids of messages in a room matching the terms, best
// first.
func (idx *Index) Find(ctx context.Context, roomID, terms string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	reader, err := idx.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("content")).
		AddMust(bluge.NewTermQuery(roomID).SetField("room"))

	it, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var ids []string
	match, err := it.Next()
	for err == nil && match != nil {
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				ids = append(ids, string(value))
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		match, err = it.Next()
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Close flushes and releases the index.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.writer.Close()
}
