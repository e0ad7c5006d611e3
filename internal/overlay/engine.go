// Package overlay ties the scene, playback queue, and batch sequencer
// into one explicitly constructed engine instance. Nothing here is a
// module-level singleton; the transport gets a handle to the engine.
package overlay

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/seralys/gacha-overlay/internal/assets"
	"github.com/seralys/gacha-overlay/internal/media"
	"github.com/seralys/gacha-overlay/internal/scene"
	"github.com/seralys/gacha-overlay/internal/sequencer"
	"github.com/seralys/gacha-overlay/pkg/types"
)

type Config struct {
	Resolver *assets.Resolver
	Players  media.Factory
	Timings  sequencer.Timings
	Log      zerolog.Logger
}

type Engine struct {
	log   zerolog.Logger
	stage *scene.Stage
	queue *sequencer.Queue
	seq   *sequencer.Sequencer

	mu   sync.Mutex
	meta types.BatchMeta // metadata of the most recent trigger
}

func New(parent context.Context, cfg Config) *Engine {
	stage := scene.NewStage()
	log := cfg.Log.With().Str("component", "engine").Logger()
	return &Engine{
		log:   log,
		stage: stage,
		queue: sequencer.NewQueue(parent, cfg.Log),
		seq:   sequencer.New(stage, cfg.Resolver, cfg.Players, cfg.Timings, cfg.Log),
	}
}

func (e *Engine) Stage() *scene.Stage { return e.stage }

// Meta is the metadata of the most recent trigger, superseded wholesale
// when the next trigger arrives.
func (e *Engine) Meta() types.BatchMeta {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta
}

// EnqueuePulls appends one trigger's full multi-batch animation to the
// playback queue. An empty pull list is treated as a clear.
func (e *Engine) EnqueuePulls(meta types.BatchMeta, pulls []types.PullRecord) {
	if len(pulls) == 0 {
		e.Clear()
		return
	}
	e.mu.Lock()
	e.meta = meta
	e.mu.Unlock()

	e.log.Info().
		Str("display_name", meta.DisplayName).
		Int("total_pulls", meta.TotalPulls).
		Int("records", len(pulls)).
		Msg("trigger enqueued")

	e.queue.Inbox() <- sequencer.Enqueue{
		Name: "gacha_pulls",
		Task: func(ctx context.Context) error {
			banner := e.showBanner(meta)
			err := e.seq.Run(ctx, meta, pulls)
			banner.Remove()
			return err
		},
	}
}

// Clear detaches all rendered visuals and banner state immediately. It
// does not cancel in-flight waits; their mutations land on detached nodes
// and stay invisible.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.meta = types.BatchMeta{}
	e.mu.Unlock()
	e.stage.Clear()
	e.log.Info().Msg("stage cleared")
}

func (e *Engine) Shutdown() {
	e.queue.Inbox() <- sequencer.Shutdown{}
}

// showBanner mounts the "Now Summoning" banner for one trigger.
func (e *Engine) showBanner(meta types.BatchMeta) *scene.Node {
	banner := e.stage.Root().NewChild("group", "banner")
	title := banner.NewChild("text", "title")
	title.SetAttr("text", "Now Summoning")
	who := banner.NewChild("text", "summoner")
	who.SetAttr("text", meta.DisplayName)
	count := banner.NewChild("text", "pull-count")
	count.SetAttr("text", strconv.Itoa(meta.TotalPulls))
	set := banner.NewChild("text", "set")
	set.SetAttr("text", meta.SetName)
	return banner
}
