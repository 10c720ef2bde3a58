package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-sync/domain/event"
)

type countingWorker struct {
	runs    atomic.Int32
	outcome func(run int32, ctx context.Context) error
}

func (w *countingWorker) Run(ctx context.Context) error {
	run := w.runs.Add(1)
	return w.outcome(run, ctx)
}

func Test_Supervisor_Restarts_A_Crashing_Worker(t *testing.T) {
	req := require.New(t)
	worker := &countingWorker{outcome: func(run int32, ctx context.Context) error {
		if run < 3 {
			return errors.New("crash")
		}
		return nil
	}}

	sup := NewSupervisor(slog.Default(), time.Millisecond).Add(worker)
	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not finish")
	}
	req.Equal(int32(3), worker.runs.Load())
}

func Test_Supervisor_Recovers_A_Panicking_Worker(t *testing.T) {
	req := require.New(t)
	worker := &countingWorker{outcome: func(run int32, ctx context.Context) error {
		if run == 1 {
			panic("boom")
		}
		return nil
	}}

	sup := NewSupervisor(slog.Default(), time.Millisecond).Add(worker)
	sup.Run(context.Background())

	req.Equal(int32(2), worker.runs.Load())
}

func Test_Clean_Return_Is_Never_Restarted(t *testing.T) {
	req := require.New(t)
	worker := &countingWorker{outcome: func(int32, context.Context) error { return nil }}

	NewSupervisor(slog.Default(), time.Millisecond).Add(worker).Run(context.Background())

	req.Equal(int32(1), worker.runs.Load())
}

func Test_Stop_Ends_Blocking_Workers(t *testing.T) {
	req := require.New(t)
	worker := &countingWorker{outcome: func(_ int32, ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	sup := NewSupervisor(slog.Default(), time.Millisecond).Add(worker)
	done := make(chan struct{})
	go func() {
		sup.Run(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	sup.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	req.Equal(int32(1), worker.runs.Load())
}

type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
	fail   bool
}

func (s *recordingSink) Consume(_ context.Context, evt event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink down")
	}
	s.events = append(s.events, evt)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func Test_Fanout_Delivers_To_Every_Sink(t *testing.T) {
	req := require.New(t)
	events := make(chan event.Event, 4)
	first := &recordingSink{}
	second := &recordingSink{}
	fanout := NewFanout(slog.Default(), events, first, second)

	events <- event.RoomsUpdated{Count: 1, Full: true}
	events <- event.MessagesMerged{Room: "r1"}
	close(events)

	req.NoError(fanout.Run(context.Background()))
	req.Equal(2, first.count())
	req.Equal(2, second.count())
}

func Test_Fanout_Skips_A_Failing_Sink(t *testing.T) {
	req := require.New(t)
	events := make(chan event.Event, 2)
	broken := &recordingSink{fail: true}
	healthy := &recordingSink{}
	fanout := NewFanout(slog.Default(), events, broken, healthy)

	events <- event.RoomsUpdated{Count: 1, Full: true}
	close(events)

	req.NoError(fanout.Run(context.Background()))
	req.Equal(0, broken.count())
	req.Equal(1, healthy.count())
}
