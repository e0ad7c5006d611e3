package overlay

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seralys/gacha-overlay/internal/assets"
	"github.com/seralys/gacha-overlay/internal/media"
	"github.com/seralys/gacha-overlay/internal/scene"
	"github.com/seralys/gacha-overlay/internal/sequencer"
	"github.com/seralys/gacha-overlay/pkg/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	eng := New(ctx, Config{
		Resolver: assets.NewResolver("assets"),
		Players:  media.SimFactory(10 * time.Millisecond),
		Timings:  sequencer.DefaultTimings().Scaled(0.02),
		Log:      zerolog.Nop(),
	})
	t.Cleanup(eng.Shutdown)
	return eng
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, within time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func snapshotHasAttr(ns scene.NodeSnapshot, key, value string) bool {
	if ns.Attrs[key] == value {
		return true
	}
	for _, c := range ns.Children {
		if snapshotHasAttr(c, key, value) {
			return true
		}
	}
	return false
}

func snapshotHasAttrContaining(ns scene.NodeSnapshot, key, substr string) bool {
	if strings.Contains(ns.Attrs[key], substr) {
		return true
	}
	for _, c := range ns.Children {
		if snapshotHasAttrContaining(c, key, substr) {
			return true
		}
	}
	return false
}

func TestEngine_SinglePullEndToEnd(t *testing.T) {
	eng := newTestEngine(t)

	meta := types.BatchMeta{TotalPulls: 1, DisplayName: "Alice", UserID: "1", SetName: "humble beginnings"}
	eng.EnqueuePulls(meta, []types.PullRecord{
		{Name: "Fire Imp", Rarity: "R", Level: 2},
	})

	snap := func() scene.NodeSnapshot { return eng.Stage().Snapshot().Root }

	// banner and entry mount: name, green-tier star, uncommon badge
	require.True(t, waitFor(t, 2*time.Second, func() bool {
		return snapshotHasAttr(snap(), "text", "Fire Imp")
	}), "entry never mounted")
	assert.True(t, snapshotHasAttr(snap(), "text", "Now Summoning"))
	assert.True(t, snapshotHasAttr(snap(), "text", "Alice"))
	assert.True(t, snapshotHasAttrContaining(snap(), "src", "star_green"))
	assert.True(t, snapshotHasAttrContaining(snap(), "src", "badge_uncommon"))

	// uncommon pulls skip nothing: opening clip is requested, conversion
	// clip for the uncommon tier is present in the tree
	assert.True(t, snapshotHasAttrContaining(snap(), "src", "conversion/uncommon"))

	// level number pops 2 -> 3 during the reveal chain
	require.True(t, waitFor(t, 5*time.Second, func() bool {
		return snapshotHasAttr(snap(), "text", "3")
	}), "level never popped")

	// then everything fades and is removed
	require.True(t, waitFor(t, 10*time.Second, func() bool {
		return len(snap().Children) == 0
	}), "stage never emptied")
}

func TestEngine_CommonPullSkipsConversion(t *testing.T) {
	eng := newTestEngine(t)
	eng.EnqueuePulls(types.BatchMeta{TotalPulls: 1}, []types.PullRecord{
		{Name: "Pebble", Rarity: "N"},
	})

	snap := func() scene.NodeSnapshot { return eng.Stage().Snapshot().Root }
	require.True(t, waitFor(t, 2*time.Second, func() bool {
		return snapshotHasAttr(snap(), "text", "Pebble")
	}))
	assert.False(t, snapshotHasAttrContaining(snap(), "src", "conversion"))

	require.True(t, waitFor(t, 10*time.Second, func() bool {
		return len(snap().Children) == 0
	}))
}

func TestEngine_EmptyPullListIsClear(t *testing.T) {
	eng := newTestEngine(t)
	eng.EnqueuePulls(types.BatchMeta{DisplayName: "x"}, nil)
	assert.Empty(t, eng.Stage().Root().Children())
	assert.Equal(t, types.BatchMeta{}, eng.Meta())
}

func TestEngine_MetaSupersededNotMerged(t *testing.T) {
	eng := newTestEngine(t)
	eng.EnqueuePulls(types.BatchMeta{DisplayName: "Alice", TotalPulls: 10}, []types.PullRecord{{Name: "A", Rarity: "N"}})
	eng.EnqueuePulls(types.BatchMeta{DisplayName: "Bob", TotalPulls: 1}, []types.PullRecord{{Name: "B", Rarity: "N"}})

	got := eng.Meta()
	assert.Equal(t, "Bob", got.DisplayName)
	assert.Equal(t, 1, got.TotalPulls)
	assert.Empty(t, got.SetName) // no merging with the previous trigger
}

func TestEngine_ClearMidAnimationLeavesEmptyTree(t *testing.T) {
	eng := newTestEngine(t)
	eng.EnqueuePulls(types.BatchMeta{TotalPulls: 2}, []types.PullRecord{
		{Name: "A", Rarity: "SSR"},
		{Name: "B", Rarity: "UR"},
	})

	snap := func() scene.NodeSnapshot { return eng.Stage().Snapshot().Root }
	require.True(t, waitFor(t, 2*time.Second, func() bool {
		return len(snap().Children) > 0
	}), "batch never mounted")

	eng.Clear()
	assert.Empty(t, eng.Stage().Root().Children())

	// the in-flight batch keeps firing its timers against the detached
	// tree and must never re-populate the stage or panic
	for i := 0; i < 50; i++ {
		assert.Empty(t, eng.Stage().Root().Children())
		time.Sleep(5 * time.Millisecond)
	}
}
