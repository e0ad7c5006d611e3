package media

import (
	"sync"
	"time"
)

// SimPlayer simulates a clip timeline with timers so the pipeline always
// advances when running headless. Load reports ready and duration
// immediately; Play starts the clock and schedules the end event.
type SimPlayer struct {
	nominal time.Duration
	events  chan Event

	mu        sync.Mutex
	startedAt time.Time
	playing   bool
	closed    bool
	endTimer  *time.Timer
}

// NewSimPlayer creates a player whose clip "lasts" nominal.
func NewSimPlayer(nominal time.Duration) *SimPlayer {
	return &SimPlayer{nominal: nominal, events: make(chan Event, 8)}
}

// SimFactory returns a Factory producing SimPlayers of one nominal length.
func SimFactory(nominal time.Duration) Factory {
	return func() Player { return NewSimPlayer(nominal) }
}

func (p *SimPlayer) Load(src string) {
	p.emit(Event{Type: EventReady})
	p.emit(Event{Type: EventDurationKnown, Duration: p.nominal})
}

func (p *SimPlayer) Play() error {
	p.mu.Lock()
	if p.playing || p.closed {
		p.mu.Unlock()
		return nil
	}
	p.playing = true
	p.startedAt = time.Now()
	p.endTimer = time.AfterFunc(p.nominal, func() {
		p.emit(Event{Type: EventEnded})
	})
	p.mu.Unlock()

	p.emit(Event{Type: EventStarted})
	return nil
}

func (p *SimPlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return 0
	}
	pos := time.Since(p.startedAt)
	if pos > p.nominal {
		pos = p.nominal
	}
	return pos
}

func (p *SimPlayer) Events() <-chan Event { return p.events }

func (p *SimPlayer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.endTimer != nil {
		p.endTimer.Stop()
	}
	close(p.events)
}

// emit never blocks; a full buffer drops the event rather than stalling a
// timer goroutine.
func (p *SimPlayer) emit(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
	}
}
