//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-sync/domain/event"
)

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker lifecycle
// events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink consumes reconciliation events. Sinks must tolerate duplicate
// delivery; they sit behind a best-effort fan-out, not a broker.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// AuthSource is the authentication collaborator: a live view of the current
// user. Changes receives the new user id (empty string on sign-out).
type AuthSource interface {
	CurrentUser() (string, bool)
	Changes() <-chan string
}
