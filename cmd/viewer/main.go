// Viewer is a read-only inspector for the local document store: it dumps
// rooms and recent messages as tables without disturbing a running demo
// process.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"

	"chat-sync/backend"
	"chat-sync/infrastructure/storage"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" required:"true"`
	Room           string `envconfig:"VIEWER_ROOM"`
	Limit          int    `envconfig:"VIEWER_LIMIT" default:"50"`
	Colours        bool   `envconfig:"VIEWER_COLOURS" default:"true"`
}

func main() {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if !cfg.Colours {
		color.Disable()
	}

	// BypassLockGuard allows opening while the demo process holds the lock.
	opts := badger.DefaultOptions(cfg.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	store := storage.New(db, 1, slog.Default())
	ctx := context.Background()

	rooms, err := loadRooms(ctx, store)
	if err != nil {
		log.Fatalf("Failed to read rooms: %v", err)
	}
	printRooms(rooms)

	for _, room := range rooms {
		if cfg.Room != "" && room.ID != cfg.Room {
			continue
		}
		msgs, err := store.FetchMessages(ctx, backend.MessagesQuery{RoomID: room.ID, Limit: cfg.Limit})
		if err != nil {
			log.Fatalf("Failed to read messages of %s: %v", room.ID, err)
		}
		printMessages(room, msgs)
	}
}

// loadRooms grabs the initial full snapshot and immediately cancels the
// subscription; the viewer has no use for live updates.
func loadRooms(ctx context.Context, store *storage.Store) ([]backend.RoomDocument, error) {
	events, cancel, err := store.SubscribeRooms(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	ev := <-events
	if ev.Err != nil {
		return nil, ev.Err
	}
	return ev.Snapshot.Rooms, nil
}

func printRooms(rooms []backend.RoomDocument) {
	color.Cyan.Printf("Rooms (%d)\n", len(rooms))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Participants", "Created", "Last message"})
	for _, room := range rooms {
		lastAt := "-"
		if !room.LastMessageTime.IsZero() {
			lastAt = room.LastMessageTime.Format(time.RFC822)
		}
		table.Append([]string{
			room.ID,
			room.Name,
			fmt.Sprintf("%d", len(room.Participants)),
			room.CreatedAt.Format(time.RFC822),
			lastAt,
		})
	}
	table.Render()
}

func printMessages(room backend.RoomDocument, msgs []backend.MessageDocument) {
	color.Yellow.Printf("\nMessages of %q (%d)\n", room.Name, len(msgs))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"At", "Sender", "Type", "Status", "Read by", "Content"})
	for _, msg := range msgs {
		content := msg.Content
		if len(content) > 60 {
			content = content[:57] + "..."
		}
		table.Append([]string{
			msg.Timestamp.Format(time.RFC822),
			msg.SenderID,
			msg.Type,
			msg.Status,
			fmt.Sprintf("%d", len(msg.ReadBy)),
			content,
		})
	}
	table.Render()
}
