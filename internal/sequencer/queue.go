package sequencer

import (
	"context"

	"github.com/rs/zerolog"
)

// Queue serializes whole trigger animations: a task starts only after the
// previous one, fade-out included, has returned. Errors and panics inside
// a task are logged and the queue advances to the next pending task.

type Msg interface{ isQueueMsg() }

type Enqueue struct {
	Name string
	Task func(ctx context.Context) error
}

func (Enqueue) isQueueMsg() {}

type Shutdown struct{}

func (Shutdown) isQueueMsg() {}

type Queue struct {
	inbox  chan Msg
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

func NewQueue(parent context.Context, log zerolog.Logger) *Queue {
	ctx, cancel := context.WithCancel(parent)
	q := &Queue{
		inbox:  make(chan Msg, 64),
		ctx:    ctx,
		cancel: cancel,
		log:    log.With().Str("component", "queue").Logger(),
	}
	go q.loop()
	return q
}

func (q *Queue) Inbox() chan<- Msg { return q.inbox }

func (q *Queue) loop() {
	for {
		select {
		case <-q.ctx.Done():
			return

		case m := <-q.inbox:
			switch msg := m.(type) {
			case Enqueue:
				q.run(msg)

			case Shutdown:
				q.cancel()
				return
			}
		}
	}
}

// run executes one task inline so the loop itself enforces FIFO order.
func (q *Queue) run(msg Enqueue) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Interface("panic", r).Str("task", msg.Name).Msg("animation task panicked, advancing queue")
		}
	}()
	if err := msg.Task(q.ctx); err != nil {
		q.log.Error().Err(err).Str("task", msg.Name).Msg("animation task failed, advancing queue")
	}
}
