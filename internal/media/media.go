// Package media bounds every interaction with a playable clip. Media
// elements can silently fail to fire events (corrupt file, decode stall),
// so each wait here is timeout-bounded and the sequencer always makes
// forward progress regardless of media health.
package media

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type EventType string

const (
	EventReady         EventType = "ready"
	EventStarted       EventType = "started"
	EventDurationKnown EventType = "duration_known"
	EventEnded         EventType = "ended"
	EventError         EventType = "error"
)

type Event struct {
	Type     EventType
	Duration time.Duration // set for duration_known
	Err      error         // set for error
}

// Player is one playable clip. The engine never decodes media; the real
// presentation happens in the view layer, and the default implementation
// simulates the timeline with timers.
type Player interface {
	Load(src string)
	Play() error
	Position() time.Duration
	Events() <-chan Event
	Close()
}

// Factory creates one Player per clip mount.
type Factory func() Player

// Gate wraps one Player and latches its lifecycle events so waiters that
// arrive late still resolve immediately.
type Gate struct {
	player Player
	log    zerolog.Logger

	ready    chan struct{}
	started  chan struct{}
	durKnown chan struct{}
	ended    chan struct{}

	readyOnce, startedOnce, durOnce, endedOnce sync.Once

	mu       sync.Mutex
	duration time.Duration
	err      error
}

func NewGate(p Player, log zerolog.Logger) *Gate {
	g := &Gate{
		player:   p,
		log:      log,
		ready:    make(chan struct{}),
		started:  make(chan struct{}),
		durKnown: make(chan struct{}),
		ended:    make(chan struct{}),
	}
	go g.loop()
	return g
}

func (g *Gate) loop() {
	for ev := range g.player.Events() {
		switch ev.Type {
		case EventReady:
			g.readyOnce.Do(func() { close(g.ready) })
		case EventStarted:
			g.startedOnce.Do(func() { close(g.started) })
		case EventDurationKnown:
			g.mu.Lock()
			g.duration = ev.Duration
			g.mu.Unlock()
			g.durOnce.Do(func() { close(g.durKnown) })
		case EventEnded:
			g.endedOnce.Do(func() { close(g.ended) })
		case EventError:
			g.mu.Lock()
			g.err = ev.Err
			g.mu.Unlock()
			g.log.Warn().Err(ev.Err).Msg("media error, resolving waits anyway")
			// A broken source must never stall the batch: an error
			// counts as ready, started, and ended.
			g.readyOnce.Do(func() { close(g.ready) })
			g.startedOnce.Do(func() { close(g.started) })
			g.endedOnce.Do(func() { close(g.ended) })
		}
	}
}

// EnsureReady resolves once the clip has buffered enough to play, or when
// the timeout elapses. It never fails.
func (g *Gate) EnsureReady(ctx context.Context, timeout time.Duration) {
	select {
	case <-g.ready:
	case <-time.After(timeout):
		g.log.Warn().Dur("timeout", timeout).Msg("media never reported ready")
	case <-ctx.Done():
	}
}

// WaitForStart resolves true once playback has visibly begun, false if
// the timeout elapses first. Callers treat false as "proceed anyway".
func (g *Gate) WaitForStart(ctx context.Context, timeout time.Duration) bool {
	select {
	case <-g.started:
		return true
	case <-time.After(timeout):
		return false
	case <-ctx.Done():
		return false
	}
}

// WaitForDurationKnown resolves the clip duration once metadata arrives.
// ok is false when metadata never shows up within the timeout.
func (g *Gate) WaitForDurationKnown(ctx context.Context, timeout time.Duration) (time.Duration, bool) {
	select {
	case <-g.durKnown:
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.duration, g.duration > 0
	case <-time.After(timeout):
		return 0, false
	case <-ctx.Done():
		return 0, false
	}
}

// WaitForProgress resolves true once playback passes ratio of the clip's
// duration. When duration metadata never arrives it returns false and the
// caller falls back to a fixed delay.
func (g *Gate) WaitForProgress(ctx context.Context, ratio float64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	d, ok := g.WaitForDurationKnown(ctx, timeout)
	if !ok {
		return false
	}
	target := time.Duration(float64(d) * ratio)
	for {
		remaining := target - g.player.Position()
		if remaining <= 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		wait := remaining
		if wait > 50*time.Millisecond {
			wait = 50 * time.Millisecond
		}
		select {
		case <-time.After(wait):
		case <-g.ended:
			return true
		case <-ctx.Done():
			return false
		}
	}
}

// WaitForEnd resolves on natural end, error, or timeout.
func (g *Gate) WaitForEnd(ctx context.Context, timeout time.Duration) {
	select {
	case <-g.ended:
	case <-time.After(timeout):
		g.log.Warn().Dur("timeout", timeout).Msg("media never ended, moving on")
	case <-ctx.Done():
	}
}

// SafePlay attempts playback and swallows rejection. Autoplay-policy
// denial is expected and non-fatal.
func (g *Gate) SafePlay() {
	if err := g.player.Play(); err != nil {
		g.log.Debug().Err(err).Msg("playback attempt rejected")
	}
}

func (g *Gate) Close() {
	g.player.Close()
}
