package sequencer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seralys/gacha-overlay/internal/assets"
	"github.com/seralys/gacha-overlay/internal/media"
	"github.com/seralys/gacha-overlay/internal/scene"
	"github.com/seralys/gacha-overlay/pkg/types"
)

func fastTimings() Timings {
	return DefaultTimings().Scaled(0.01)
}

func pull(name, rarity string, shiny bool) types.PullRecord {
	return types.PullRecord{Name: name, Rarity: rarity, Shiny: shiny}
}

func pulls(n int, rarity string) []types.PullRecord {
	out := make([]types.PullRecord, n)
	for i := range out {
		out[i] = pull("pull", rarity, false)
	}
	return out
}

// recordingFactory wraps SimPlayers and records every loaded source. The
// optional per-call durations let a test skew individual clip lengths.
func recordingFactory(durations ...time.Duration) (media.Factory, func() []string) {
	var mu sync.Mutex
	var srcs []string
	call := 0
	factory := func() media.Player {
		mu.Lock()
		d := 10 * time.Millisecond
		if call < len(durations) && durations[call] > 0 {
			d = durations[call]
		}
		call++
		mu.Unlock()
		return &recordingPlayer{SimPlayer: media.NewSimPlayer(d), mu: &mu, srcs: &srcs}
	}
	loaded := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), srcs...)
	}
	return factory, loaded
}

type recordingPlayer struct {
	*media.SimPlayer
	mu   *sync.Mutex
	srcs *[]string
}

func (p *recordingPlayer) Load(src string) {
	p.mu.Lock()
	*p.srcs = append(*p.srcs, src)
	p.mu.Unlock()
	p.SimPlayer.Load(src)
}

func newTestSequencer(t Timings, factory media.Factory) (*Sequencer, *scene.Stage) {
	st := scene.NewStage()
	s := New(st, assets.NewResolver("assets"), factory, t, zerolog.Nop())
	return s, st
}

func TestChunk(t *testing.T) {
	for n := 1; n <= 13; n++ {
		batches := Chunk(pulls(n, "N"))
		want := (n + 3) / 4
		require.Len(t, batches, want, "n=%d", n)

		total := 0
		for _, b := range batches {
			assert.LessOrEqual(t, len(b), 4)
			assert.NotEmpty(t, b)
			total += len(b)
		}
		assert.Equal(t, n, total, "n=%d", n)
	}
}

func TestRun_RendersEntryCountAndTearsDown(t *testing.T) {
	factory, _ := recordingFactory()
	s, st := newTestSequencer(fastTimings(), factory)

	var mu sync.Mutex
	var revealed []int
	maxEntries := 0
	s.revealHook = func(slot int) {
		mu.Lock()
		revealed = append(revealed, slot)
		mu.Unlock()
	}

	// sample the live batch size while the run is in flight
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-time.After(2 * time.Millisecond):
				for _, c := range st.Root().Children() {
					if n := len(c.Children()); n > maxEntries {
						maxEntries = n
					}
				}
			case <-done:
				return
			}
		}
	}()

	err := s.Run(context.Background(), types.BatchMeta{}, pulls(3, "R"))
	done <- struct{}{}
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, revealed)
	assert.Equal(t, 3, maxEntries)
	// the batch node and every entry are gone once Run returns
	assert.Empty(t, st.Root().Children())
}

func TestRun_LongListSplitsIntoSequentialBatches(t *testing.T) {
	factory, _ := recordingFactory()
	s, st := newTestSequencer(fastTimings(), factory)

	var mu sync.Mutex
	var revealed []int
	s.revealHook = func(slot int) {
		mu.Lock()
		revealed = append(revealed, slot)
		mu.Unlock()
	}

	err := s.Run(context.Background(), types.BatchMeta{}, pulls(6, "R"))
	require.NoError(t, err)

	// ceil(6/4) = 2 batches: a full one then the remainder, in order
	assert.Equal(t, []int{0, 1, 2, 3, 0, 1}, revealed)
	assert.Empty(t, st.Root().Children())
}

func TestRun_CommonPlainNeverLoadsConversionClip(t *testing.T) {
	factory, loaded := recordingFactory()
	s, _ := newTestSequencer(fastTimings(), factory)

	err := s.Run(context.Background(), types.BatchMeta{}, pulls(2, "N"))
	require.NoError(t, err)

	for _, src := range loaded() {
		assert.NotContains(t, src, "conversion", "conversion clip requested for common plain pull")
	}
}

func TestRun_EligibleEntriesLoadConversionClip(t *testing.T) {
	factory, loaded := recordingFactory()
	s, _ := newTestSequencer(fastTimings(), factory)

	records := []types.PullRecord{pull("a", "N", true), pull("b", "SR", false)}
	err := s.Run(context.Background(), types.BatchMeta{}, records)
	require.NoError(t, err)

	srcs := loaded()
	assert.Contains(t, srcs, "assets/animations/conversion/shiny.webm")
	assert.Contains(t, srcs, "assets/animations/conversion/rare.webm")
}

func TestRun_AllCommonBatchInsertsPacingHold(t *testing.T) {
	hold := 200 * time.Millisecond
	base := fastTimings()
	base.CommonOnlyOpeningDelay = hold

	run := func(records []types.PullRecord) time.Duration {
		factory, _ := recordingFactory()
		s, _ := newTestSequencer(base, factory)
		start := time.Now()
		require.NoError(t, s.Run(context.Background(), types.BatchMeta{}, records))
		return time.Since(start)
	}

	allCommon := run(pulls(2, "N"))
	withShiny := run([]types.PullRecord{pull("a", "N", false), pull("b", "N", true)})

	// the hold only applies when 100% of the batch is common and
	// non-shiny; the shiny batch pays for one conversion clip instead,
	// which is far cheaper than the hold
	assert.Greater(t, allCommon, withShiny+hold/2)
}

func TestRun_RevealOrderIndependentOfMediaTiming(t *testing.T) {
	// three uncommon entries mount three players each (drop, conversion,
	// opening), in slot order. Give slot 0 a long opening clip and slot 2
	// a near-instant one, so slot 2's reveal gate fires first.
	durations := make([]time.Duration, 9)
	durations[2] = 150 * time.Millisecond // entry 0 opening
	durations[8] = 2 * time.Millisecond   // entry 2 opening
	factory, _ := recordingFactory(durations...)
	s, _ := newTestSequencer(fastTimings(), factory)

	var mu sync.Mutex
	var revealed []int
	s.revealHook = func(slot int) {
		mu.Lock()
		revealed = append(revealed, slot)
		mu.Unlock()
	}

	err := s.Run(context.Background(), types.BatchMeta{}, pulls(3, "R"))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, revealed)
}
