package test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"chat-sync/auth"
	"chat-sync/domain"
	"chat-sync/infrastructure/storage"
	"chat-sync/observability"
	"chat-sync/projection"
	"chat-sync/runtime"
	"chat-sync/runtime/workers"
	"chat-sync/search"
	"chat-sync/services"
)

var secret = []byte("integration-secret")

// Full-stack scenario over a real on-disk store: commands flow through the
// dispatcher, the live streams deliver snapshots back, and the projections
// converge without any direct local mutation.
func Test_Scenario(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)

	// Reduced to 16 Mo for testing (avoid 20 Go of storage)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := storage.New(db, 8, log)
	t.Cleanup(func() { _ = store.Close() })

	monitor := observability.NewMonitor()
	registry := projection.NewRegistry()
	ledger := projection.NewLedger()
	reconciler := runtime.NewReconciler(log, registry, ledger, monitor, 64)
	subscriptions := runtime.NewSubscriptions(log, store, reconciler, monitor)
	t.Cleanup(subscriptions.DetachAll)

	watcher := auth.NewWatcher(secret)
	token, err := auth.GenerateSessionToken(secret, "alice", time.Hour)
	req.NoError(err)
	req.NoError(watcher.SetToken(token))

	status := services.NewStatusPropagator(log, store, ledger, reconciler.NotifyReceipt)
	dispatcher := services.NewDispatcher(log, store, watcher, status, nil,
		services.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}, monitor)

	index, err := search.NewMemoryIndex(log)
	req.NoError(err)
	t.Cleanup(func() { _ = index.Close() })

	supervisor := workers.NewSupervisor(log, 100*time.Millisecond).
		Add(workers.NewFanout(log, reconciler.Events(), index))
	go supervisor.Run(ctx)
	t.Cleanup(supervisor.Stop)

	req.NoError(subscriptions.AttachRooms(ctx))

	// When a room is created
	created, err := dispatcher.Do(ctx, domain.CreateRoom{
		Name: "release party", Description: "launch day", CreatorID: "alice",
	})
	req.NoError(err)

	// Then the rooms stream converges the registry
	waitFor(t, func() bool {
		room, ok := registry.Room(created.RoomID)
		return ok && room.HasParticipant("alice")
	})

	req.NoError(subscriptions.AttachMessages(ctx, created.RoomID))

	// When a message is sent
	sent, err := dispatcher.Do(ctx, domain.SendMessage{
		RoomID: created.RoomID, SenderID: "alice",
		Content: "cake in the kitchen", Type: domain.TypeText,
	})
	req.NoError(err)

	// Then the message stream delivers it back as delivered
	waitFor(t, func() bool {
		msg, ok := ledger.Message(created.RoomID, sent.MessageID)
		return ok && msg.Status == domain.StatusDelivered
	})

	// And the room's last-message pointer follows
	waitFor(t, func() bool {
		room, ok := registry.Room(created.RoomID)
		return ok && room.LastMessageID == sent.MessageID
	})

	// When another user joins and reads
	_, err = dispatcher.Do(ctx, domain.JoinRoom{RoomID: created.RoomID, UserID: "bob"})
	req.NoError(err)
	_, err = dispatcher.Do(ctx, domain.MarkRead{
		RoomID: created.RoomID, MessageID: sent.MessageID, UserID: "bob",
	})
	req.NoError(err)

	// Then the receipt and the terminal status converge locally
	waitFor(t, func() bool {
		msg, ok := ledger.Message(created.RoomID, sent.MessageID)
		if !ok || msg.Status != domain.StatusRead {
			return false
		}
		_, seen := msg.ReadBy["bob"]
		return seen
	})

	// And the fan-out fed the search index
	waitFor(t, func() bool {
		ids, err := index.Find(ctx, created.RoomID, "cake", 10)
		return err == nil && len(ids) == 1 && ids[0] == sent.MessageID
	})

	req.Zero(monitor.Snapshot().SyncErrors)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("state did not converge in time")
}
