package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chat-sync/auth"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/infrastructure/storage"
	"chat-sync/internal"
	"chat-sync/moderation"
	"chat-sync/observability"
	"chat-sync/projection"
	"chat-sync/runtime"
	"chat-sync/runtime/workers"
	"chat-sync/search"
	"chat-sync/services"
)

const demoUser = "demo"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the lifecycle, and centralizes
// error reporting so deferred cleanups always execute before exit.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	maskRune, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}

	// 2. Local document store (BadgerDB)
	store, err := storage.Open(config.BadgerFilepath, config.SubscriptionBuffer, log)
	if err != nil {
		return fmt.Errorf("store opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing store...")
		_ = store.Close()
	}()

	// 3. Projections & reconciliation
	monitor := observability.NewMonitor()
	registry := projection.NewRegistry()
	ledger := projection.NewLedger()
	reconciler := runtime.NewReconciler(log, registry, ledger, monitor, config.EventBufferSize)
	subscriptions := runtime.NewSubscriptions(log, store, reconciler, monitor)
	defer subscriptions.DetachAll()

	// 4. Auth collaborator: demo session
	watcher := auth.NewWatcher([]byte(config.AuthSecret))
	token, err := auth.GenerateSessionToken([]byte(config.AuthSecret), demoUser, config.SessionDuration)
	if err != nil {
		return fmt.Errorf("session token: %w", err)
	}
	if err = watcher.SetToken(token); err != nil {
		return fmt.Errorf("sign-in failed: %w", err)
	}

	// 5. Moderation (optional)
	var censor *moderation.Moderator
	if config.CensoredWordsPath != "" {
		words, err := moderation.LoadWords(config.CensoredWordsPath)
		if err != nil {
			return fmt.Errorf("censor dictionary: %w", err)
		}
		if censor, err = moderation.NewModerator(words, maskRune, log); err != nil {
			return fmt.Errorf("censor build: %w", err)
		}
	}

	// 6. Dispatcher
	retry := services.RetryPolicy{
		Attempts:  config.RetryAttempts,
		BaseDelay: config.RetryBaseDelay,
		MaxDelay:  config.RetryMaxDelay,
	}
	status := services.NewStatusPropagator(log, store, ledger, reconciler.NotifyReceipt)
	dispatcher := services.NewDispatcher(log, store, watcher, status, censor, retry, monitor)

	// 7. Search index sink
	index, err := openIndex(config, log)
	if err != nil {
		return fmt.Errorf("search index: %w", err)
	}
	defer index.Close()

	// 8. Context & signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 9. Workers under supervision
	supervisor := workers.NewSupervisor(log, config.RestartInterval).Add(
		workers.NewFanout(log, reconciler.Events(), index, &logSink{log: log}),
		workers.NewReporter(log, config.StatsInterval, monitor),
	)
	done := make(chan struct{})
	go func() {
		supervisor.Run(ctx)
		close(done)
	}()

	// 10. Live streams + demo traffic
	if err = subscriptions.AttachRooms(ctx); err != nil {
		return fmt.Errorf("rooms stream: %w", err)
	}
	if err = seedDemoRoom(ctx, log, dispatcher, subscriptions); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down gracefully...")
	supervisor.Stop()
	<-done
	log.Info("Program stopped cleanly")
	return nil
}

func openIndex(config internal.Config, log *slog.Logger) (*search.Index, error) {
	if config.SearchIndexDir != "" {
		return search.NewIndex(config.SearchIndexDir, log)
	}
	return search.NewMemoryIndex(log)
}

// seedDemoRoom creates a room, attaches its message stream, and sends one
// message so the live pipeline has something to reconcile.
func seedDemoRoom(ctx context.Context, log *slog.Logger,
	dispatcher *services.Dispatcher, subscriptions *runtime.Subscriptions) error {
	receipt, err := dispatcher.Do(ctx, domain.CreateRoom{
		Name:      "demo room",
		CreatorID: demoUser,
	})
	if err != nil {
		return fmt.Errorf("create demo room: %w", err)
	}
	if err = subscriptions.AttachMessages(ctx, receipt.RoomID); err != nil {
		return fmt.Errorf("messages stream: %w", err)
	}

	sent, err := dispatcher.Do(ctx, domain.SendMessage{
		RoomID:   receipt.RoomID,
		SenderID: demoUser,
		Content:  "hello from the demo session",
		Type:     domain.TypeText,
	})
	if err != nil {
		return fmt.Errorf("send demo message: %w", err)
	}
	log.Info("Demo traffic seeded", "room", receipt.RoomID, "message", sent.MessageID)
	return nil
}

// logSink mirrors reconciliation events into the log, standing in for the
// presentation layer's state-changed notifications.
type logSink struct {
	log *slog.Logger
}

func (s *logSink) Consume(_ context.Context, e event.Event) error {
	switch evt := e.(type) {
	case event.RoomsUpdated:
		s.log.Debug("Rooms updated", "count", evt.Count, "full", evt.Full)
	case event.MessagesMerged:
		s.log.Debug("Messages merged", "room", evt.Room, "count", len(evt.Merged))
	case event.ReadReceiptApplied:
		s.log.Debug("Read receipt", "room", evt.Room, "message", evt.MessageID, "user", evt.UserID)
	case event.SyncFailed:
		s.log.Warn("Sync failed", "subscription", evt.Subscription, "error", evt.Err)
	}
	return nil
}
