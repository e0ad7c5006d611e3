package sequencer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper: wait for a signal with a timeout so tests never hang
func recvSignal(t *testing.T, ch <-chan struct{}, within time.Duration) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(within):
		t.Fatalf("timed out waiting for queue task")
	}
}

func TestQueue_RunsTasksInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewQueue(ctx, zerolog.Nop())

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	for i := 1; i <= 3; i++ {
		q.Inbox() <- Enqueue{Name: "t", Task: func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			// make sure a slow early task still finishes before later ones
			time.Sleep(5 * time.Millisecond)
			if i == 3 {
				close(done)
			}
			return nil
		}}
	}

	recvSignal(t, done, time.Second)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestQueue_ErrorDoesNotBreakChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewQueue(ctx, zerolog.Nop())

	done := make(chan struct{})
	q.Inbox() <- Enqueue{Name: "bad", Task: func(context.Context) error {
		return errors.New("animation exploded")
	}}
	q.Inbox() <- Enqueue{Name: "next", Task: func(context.Context) error {
		close(done)
		return nil
	}}

	recvSignal(t, done, time.Second)
}

func TestQueue_PanicIsRecoveredAndQueueAdvances(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewQueue(ctx, zerolog.Nop())

	done := make(chan struct{})
	q.Inbox() <- Enqueue{Name: "boom", Task: func(context.Context) error {
		panic("unexpected nil")
	}}
	q.Inbox() <- Enqueue{Name: "next", Task: func(context.Context) error {
		close(done)
		return nil
	}}

	recvSignal(t, done, time.Second)
}

func TestQueue_ShutdownStopsProcessing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewQueue(ctx, zerolog.Nop())

	q.Inbox() <- Shutdown{}

	ran := make(chan struct{})
	// the loop is gone; this enqueue must never run
	select {
	case q.Inbox() <- Enqueue{Name: "late", Task: func(context.Context) error {
		close(ran)
		return nil
	}}:
	default:
	}

	select {
	case <-ran:
		t.Fatal("task ran after shutdown")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueue_TaskSeesCancelledContextAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewQueue(ctx, zerolog.Nop())

	got := make(chan context.Context, 1)
	q.Inbox() <- Enqueue{Name: "probe", Task: func(c context.Context) error {
		got <- c
		return nil
	}}

	var taskCtx context.Context
	select {
	case taskCtx = <-got:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	require.NoError(t, taskCtx.Err())

	cancel()
	select {
	case <-taskCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("queue context not tied to parent")
	}
}
