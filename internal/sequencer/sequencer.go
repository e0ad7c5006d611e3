// Package sequencer orchestrates batches of entry animators through the
// shared stage order and serializes whole triggers on a playback queue.
package sequencer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/seralys/gacha-overlay/internal/assets"
	"github.com/seralys/gacha-overlay/internal/constants"
	"github.com/seralys/gacha-overlay/internal/entry"
	"github.com/seralys/gacha-overlay/internal/media"
	"github.com/seralys/gacha-overlay/internal/scene"
	"github.com/seralys/gacha-overlay/pkg/types"
)

// Timings are the batch-level pacing knobs plus the per-entry set.
type Timings struct {
	DropStagger            time.Duration
	PostDropFreeze         time.Duration
	ConversionChainDelay   time.Duration
	CommonOnlyOpeningDelay time.Duration
	OpeningStagger         time.Duration
	RevealFallback         time.Duration
	BatchHold              time.Duration
	FrameDelay             time.Duration
	FadeSteps              int

	Entry entry.Timings
}

func DefaultTimings() Timings {
	return Timings{
		DropStagger:            constants.DropStagger,
		PostDropFreeze:         constants.PostDropFreeze,
		ConversionChainDelay:   constants.ConversionChainDelay,
		CommonOnlyOpeningDelay: constants.CommonOnlyOpeningDelay,
		OpeningStagger:         constants.OpeningStagger,
		RevealFallback:         constants.RevealFallback,
		BatchHold:              constants.BatchHold,
		FrameDelay:             constants.FrameDelay,
		FadeSteps:              constants.FadeSteps,
		Entry:                  entry.DefaultTimings(),
	}
}

// Scaled shrinks every duration by factor, for fast tests. FadeSteps is
// kept as-is.
func (t Timings) Scaled(factor float64) Timings {
	scale := func(d time.Duration) time.Duration {
		return time.Duration(float64(d) * factor)
	}
	return Timings{
		DropStagger:            scale(t.DropStagger),
		PostDropFreeze:         scale(t.PostDropFreeze),
		ConversionChainDelay:   scale(t.ConversionChainDelay),
		CommonOnlyOpeningDelay: scale(t.CommonOnlyOpeningDelay),
		OpeningStagger:         scale(t.OpeningStagger),
		RevealFallback:         scale(t.RevealFallback),
		BatchHold:              scale(t.BatchHold),
		FrameDelay:             scale(t.FrameDelay),
		FadeSteps:              t.FadeSteps,
		Entry:                  t.Entry.Scaled(factor),
	}
}

type Sequencer struct {
	stage   *scene.Stage
	res     *assets.Resolver
	players media.Factory
	t       Timings
	log     zerolog.Logger

	revealHook func(slot int) // test observation point
}

func New(stage *scene.Stage, res *assets.Resolver, players media.Factory, t Timings, log zerolog.Logger) *Sequencer {
	return &Sequencer{
		stage:   stage,
		res:     res,
		players: players,
		t:       t,
		log:     log.With().Str("component", "sequencer").Logger(),
	}
}

// Chunk splits a pull list into batches of at most MaxVisible records.
func Chunk(pulls []types.PullRecord) [][]types.PullRecord {
	var out [][]types.PullRecord
	for len(pulls) > 0 {
		n := constants.MaxVisible
		if len(pulls) < n {
			n = len(pulls)
		}
		out = append(out, pulls[:n])
		pulls = pulls[n:]
	}
	return out
}

// Run animates one trigger: the pull list is chunked into batches of at
// most MaxVisible, and batches run strictly one at a time. Returns after
// the last batch's fade-out and teardown.
func (s *Sequencer) Run(ctx context.Context, meta types.BatchMeta, pulls []types.PullRecord) error {
	for i, batch := range Chunk(pulls) {
		s.log.Debug().Int("batch", i).Int("size", len(batch)).Msg("batch starting")
		if err := s.runBatch(ctx, meta, batch); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) runBatch(ctx context.Context, meta types.BatchMeta, records []types.PullRecord) error {
	batchNode := s.stage.Root().NewChild("group", "batch")
	entries := make([]*entry.Entry, len(records))
	for i, rec := range records {
		entries[i] = entry.New(entry.Config{
			Record:    rec,
			Meta:      meta,
			Slot:      i,
			BatchSize: len(records),
			OffsetX:   OffsetX(len(records), i),
			Resolver:  s.res,
			Players:   s.players,
			Timings:   s.t.Entry,
			Log:       s.log,
		})
		entries[i].Mount(batchNode)
	}
	// The next batch must never see this one's nodes: teardown runs on
	// every exit path before Run can move on.
	defer func() {
		for _, e := range entries {
			e.Teardown()
		}
		batchNode.Remove()
	}()

	// (a) all assets ready before anything moves.
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		g.Go(func() error {
			e.WaitReady(gctx)
			return nil
		})
	}
	_ = g.Wait()

	// (b) drop, parallel with per-slot stagger.
	g, gctx = errgroup.WithContext(ctx)
	for i, e := range entries {
		g.Go(func() error {
			sleep(gctx, time.Duration(i)*s.t.DropStagger)
			return e.RunDrop(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// (c) fixed freeze, then conversion for eligible entries only. The
	// chain delay counts eligible entries, not slots.
	sleep(ctx, s.t.PostDropFreeze)
	g, gctx = errgroup.WithContext(ctx)
	chain := 0
	for _, e := range entries {
		if !e.ConversionEligible() {
			continue
		}
		delay := time.Duration(chain) * s.t.ConversionChainDelay
		chain++
		g.Go(func() error {
			sleep(gctx, delay)
			return e.RunConversion(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// (d) extra pacing hold only when the whole batch is common and
	// non-shiny.
	if allCommonPlain(records) {
		sleep(ctx, s.t.CommonOnlyOpeningDelay)
	}

	// (e) prime every card into the behind layer.
	for _, e := range entries {
		if err := e.Prime(); err != nil {
			return err
		}
	}

	// (f) opening: per entry, backdrop fade, stagger-delayed playback,
	// and the reveal chain run interleaved. Reveals are forced into
	// ascending slot order regardless of which clip reports progress
	// first.
	g, gctx = errgroup.WithContext(ctx)
	prev := make(chan struct{})
	close(prev)
	for i, e := range entries {
		turn := prev
		done := make(chan struct{})
		prev = done
		g.Go(func() error {
			e.FadeInBackdrop()
			sleep(gctx, time.Duration(i)*s.t.OpeningStagger)
			if err := e.PlayOpening(gctx); err != nil {
				close(done)
				return err
			}
			e.AwaitRevealGate(gctx, s.t.RevealFallback)
			select {
			case <-turn:
			case <-gctx.Done():
			}
			if s.revealHook != nil {
				s.revealHook(i)
			}
			err := e.Reveal(gctx)
			close(done)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// (g) hold, then a uniform stepped fade before removal.
	sleep(ctx, s.t.BatchHold)
	for _, e := range entries {
		if err := e.BeginFade(); err != nil {
			return err
		}
	}
	for step := 1; step <= s.t.FadeSteps; step++ {
		opacity := 1 - float64(step)/float64(s.t.FadeSteps)
		for _, e := range entries {
			e.SetOpacity(opacity)
		}
		sleep(ctx, s.t.FrameDelay)
	}
	return nil
}

func allCommonPlain(records []types.PullRecord) bool {
	for _, rec := range records {
		if !assets.IsCommonPlain(rec) {
			return false
		}
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
