package runtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-sync/backend"
	"chat-sync/domain/event"
	cherrors "chat-sync/errors"
	"chat-sync/observability"
	"chat-sync/projection"
)

// fakeStore hands out channels the test feeds by hand, and records cancels
// so teardown can be asserted.
type fakeStore struct {
	mu           sync.Mutex
	roomsCh      chan backend.RoomsEvent
	msgChans     map[string]chan backend.MessagesEvent
	cancels      map[string]int
	subscribeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		msgChans: make(map[string]chan backend.MessagesEvent),
		cancels:  make(map[string]int),
	}
}

func (f *fakeStore) SubscribeRooms(_ context.Context) (<-chan backend.RoomsEvent, backend.Cancel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, nil, f.subscribeErr
	}
	ch := make(chan backend.RoomsEvent, 8)
	f.roomsCh = ch
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancels[event.RoomsKey]++
	}, nil
}

func (f *fakeStore) SubscribeMessages(_ context.Context, roomID string) (<-chan backend.MessagesEvent, backend.Cancel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, nil, f.subscribeErr
	}
	ch := make(chan backend.MessagesEvent, 8)
	f.msgChans[roomID] = ch
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancels[roomID]++
	}, nil
}

func (f *fakeStore) FetchMessages(context.Context, backend.MessagesQuery) ([]backend.MessageDocument, error) {
	return nil, nil
}

func (f *fakeStore) CreateRoom(context.Context, backend.RoomDocument) error { return nil }

func (f *fakeStore) MutateRoom(context.Context, string, func(doc *backend.RoomDocument) error) error {
	return nil
}

func (f *fakeStore) AppendMessage(context.Context, backend.MessageDocument) error { return nil }

func (f *fakeStore) MutateMessage(context.Context, string, string, func(doc *backend.MessageDocument) error) error {
	return nil
}

func (f *fakeStore) cancelCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels[key]
}

func (f *fakeStore) messagesChan(roomID string) chan backend.MessagesEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgChans[roomID]
}

func newTestSubscriptions(store backend.Store) (*Subscriptions, *projection.Ledger, *observability.Monitor) {
	registry := projection.NewRegistry()
	ledger := projection.NewLedger()
	stats := observability.NewMonitor()
	rec := NewReconciler(slog.Default(), registry, ledger, stats, 64)
	return NewSubscriptions(slog.Default(), store, rec, stats), ledger, stats
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func Test_AttachMessages_Pumps_Snapshots_Into_The_Ledger(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	subs, ledger, _ := newTestSubscriptions(store)

	req.NoError(subs.AttachMessages(context.Background(), "r1"))
	req.True(subs.Active("r1"))

	store.messagesChan("r1") <- backend.MessagesEvent{Snapshot: backend.MessagesSnapshot{
		RoomID:   "r1",
		Messages: []backend.MessageDocument{{ID: "m1", RoomID: "r1", Content: "hi", Timestamp: time.Now().UTC()}},
	}}

	waitFor(t, func() bool { return len(ledger.Messages("r1")) == 1 })
}

func Test_Attach_Is_At_Most_One_Per_Key(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	subs, _, _ := newTestSubscriptions(store)
	ctx := context.Background()

	req.NoError(subs.AttachMessages(ctx, "r1"))
	first := store.messagesChan("r1")
	req.NoError(subs.AttachMessages(ctx, "r1"))

	// The replaced subscription must have been cancelled exactly once.
	req.Equal(1, store.cancelCount("r1"))
	req.True(subs.Active("r1"))
	req.NotEqual(first, store.messagesChan("r1"))
}

func Test_Detach_Is_Idempotent_And_Cancels_Once(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	subs, _, _ := newTestSubscriptions(store)

	req.NoError(subs.AttachMessages(context.Background(), "r1"))
	subs.Detach("r1")
	subs.Detach("r1")
	subs.Detach("never-attached")

	req.Equal(1, store.cancelCount("r1"))
	req.False(subs.Active("r1"))
}

func Test_Late_Delivery_After_Detach_Is_Dropped(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	subs, ledger, stats := newTestSubscriptions(store)

	req.NoError(subs.AttachMessages(context.Background(), "r1"))
	ch := store.messagesChan("r1")
	subs.Detach("r1")

	// The backend flushes one more event before honoring the cancel.
	ch <- backend.MessagesEvent{Snapshot: backend.MessagesSnapshot{
		RoomID:   "r1",
		Messages: []backend.MessageDocument{{ID: "m1", RoomID: "r1", Content: "late", Timestamp: time.Now().UTC()}},
	}}
	close(ch)

	waitFor(t, func() bool { return stats.Snapshot().LateDrops == 1 })
	req.Empty(ledger.Messages("r1"))
}

func Test_Stream_Error_Does_Not_Kill_The_Subscription(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	subs, ledger, stats := newTestSubscriptions(store)

	req.NoError(subs.AttachMessages(context.Background(), "r1"))
	ch := store.messagesChan("r1")

	ch <- backend.MessagesEvent{Err: errors.New("stream reset")}
	waitFor(t, func() bool { return stats.Snapshot().SyncErrors == 1 })
	req.True(subs.Active("r1"))

	// Delivery after the error still applies.
	ch <- backend.MessagesEvent{Snapshot: backend.MessagesSnapshot{
		RoomID:   "r1",
		Messages: []backend.MessageDocument{{ID: "m1", RoomID: "r1", Content: "recovered", Timestamp: time.Now().UTC()}},
	}}
	waitFor(t, func() bool { return len(ledger.Messages("r1")) == 1 })
}

func Test_Handshake_Failure_Is_Backend_Unavailable(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	store.subscribeErr = errors.New("connection refused")
	subs, _, _ := newTestSubscriptions(store)

	err := subs.AttachRooms(context.Background())
	req.ErrorIs(err, cherrors.ErrBackendUnavailable)
	req.False(subs.Active(event.RoomsKey))
}

func Test_DetachAll_Releases_Every_Key(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	subs, _, _ := newTestSubscriptions(store)
	ctx := context.Background()

	req.NoError(subs.AttachRooms(ctx))
	req.NoError(subs.AttachMessages(ctx, "r1"))
	req.NoError(subs.AttachMessages(ctx, "r2"))

	subs.DetachAll()

	req.False(subs.Active(event.RoomsKey))
	req.False(subs.Active("r1"))
	req.False(subs.Active("r2"))
	req.Equal(1, store.cancelCount("r1"))
	req.Equal(1, store.cancelCount("r2"))
}

func Test_Stream_Close_Clears_Active_State(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	subs, _, _ := newTestSubscriptions(store)

	req.NoError(subs.AttachMessages(context.Background(), "r1"))
	close(store.messagesChan("r1"))

	waitFor(t, func() bool { return !subs.Active("r1") })
	req.Equal(0, store.cancelCount("r1"))
}
