// Package entry owns one pull's full visual lifecycle, from mounting its
// layered node tree to the card reveal, badge pop, and level pop.
package entry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/seralys/gacha-overlay/internal/assets"
	"github.com/seralys/gacha-overlay/internal/constants"
	"github.com/seralys/gacha-overlay/internal/media"
	"github.com/seralys/gacha-overlay/internal/scene"
	"github.com/seralys/gacha-overlay/pkg/types"
)

var ErrStageOrder = errors.New("stage transition out of order")

// Stage is one named phase of the entry's animation. Transitions are
// monotonic: no stage repeats or reorders within one entry's lifetime.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageDrop       Stage = "drop"
	StageConversion Stage = "conversion"
	StagePrimed     Stage = "primed"
	StageOpening    Stage = "opening"
	StageFront      Stage = "front"
	StageFading     Stage = "fading"
	StageRemoved    Stage = "removed"
)

var stageRank = map[Stage]int{
	StageIdle:       0,
	StageDrop:       1,
	StageConversion: 2,
	StagePrimed:     3,
	StageOpening:    4,
	StageFront:      5,
	StageFading:     6,
	StageRemoved:    7,
}

// Timings are the per-entry animation knobs. Tests run them scaled down.
type Timings struct {
	BackdropFade  time.Duration
	CardReveal    time.Duration
	BadgePop      time.Duration
	BadgeSettle   time.Duration
	LevelPopHold  time.Duration
	LevelPopClear time.Duration

	MediaReady    time.Duration
	MediaStart    time.Duration
	MediaDuration time.Duration
	MediaProgress time.Duration
	MediaEnd      time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		BackdropFade:  constants.BackdropFade,
		CardReveal:    constants.CardRevealTween,
		BadgePop:      constants.BadgePop,
		BadgeSettle:   constants.BadgeSettle,
		LevelPopHold:  constants.LevelPopHold,
		LevelPopClear: constants.LevelPopClear,
		MediaReady:    constants.MediaReadyTimeout,
		MediaStart:    constants.MediaStartTimeout,
		MediaDuration: constants.MediaDurationTimeout,
		MediaProgress: constants.MediaProgressTimeout,
		MediaEnd:      constants.MediaEndTimeout,
	}
}

// Scaled shrinks every knob by factor, for fast tests.
func (t Timings) Scaled(factor float64) Timings {
	scale := func(d time.Duration) time.Duration {
		return time.Duration(float64(d) * factor)
	}
	return Timings{
		BackdropFade:  scale(t.BackdropFade),
		CardReveal:    scale(t.CardReveal),
		BadgePop:      scale(t.BadgePop),
		BadgeSettle:   scale(t.BadgeSettle),
		LevelPopHold:  scale(t.LevelPopHold),
		LevelPopClear: scale(t.LevelPopClear),
		MediaReady:    scale(t.MediaReady),
		MediaStart:    scale(t.MediaStart),
		MediaDuration: scale(t.MediaDuration),
		MediaProgress: scale(t.MediaProgress),
		MediaEnd:      scale(t.MediaEnd),
	}
}

// Metrics are the card's start/target scale and vertical offset, derived
// from batch size and the measured video-stack height.
type Metrics struct {
	StartScale    float64
	TargetScale   float64
	StartOffsetY  float64
	TargetOffsetY float64
	StackHeight   float64
}

// Per-batch-size card scale. Multi-pull batches shrink the card so four
// rigs fit side by side.
var cardScaleBySize = map[int]float64{1: 1.0, 2: 0.85, 3: 0.7, 4: 0.6}

type Config struct {
	Record    types.PullRecord
	Meta      types.BatchMeta
	Slot      int // ascending slot order within the batch
	BatchSize int
	OffsetX   float64 // resting horizontal offset from the layout table

	Resolver *assets.Resolver
	Players  media.Factory
	Timings  Timings
	Log      zerolog.Logger
}

// Entry animates a single pull. The record is immutable and owned by the
// entry for its lifetime; all mutable animation state lives here and is
// never shared across entries.
type Entry struct {
	ID  string
	cfg Config

	root       *scene.Node
	videoStack *scene.Node
	backdrop   *scene.Node
	card       *scene.Node
	levelNode  *scene.Node
	badgeNode  *scene.Node

	dropGate *media.Gate
	convGate *media.Gate // nil when the conversion stage is a no-op
	openGate *media.Gate

	stage       Stage
	metrics     Metrics
	badgePopped bool
}

func New(cfg Config) *Entry {
	id, err := gonanoid.New(8)
	if err != nil {
		id = fmt.Sprintf("entry-%d", time.Now().UnixNano())
	}
	return &Entry{
		ID:    id,
		cfg:   cfg,
		stage: StageIdle,
	}
}

func (e *Entry) Record() types.PullRecord { return e.cfg.Record }

func (e *Entry) Slot() int { return e.cfg.Slot }

func (e *Entry) Stage() Stage { return e.stage }

func (e *Entry) Metrics() Metrics { return e.metrics }

func (e *Entry) BadgePopped() bool { return e.badgePopped }

// ConversionEligible reports whether the conversion stage runs at all.
// Common, non-shiny pulls skip it as a pacing rule.
func (e *Entry) ConversionEligible() bool {
	return !assets.IsCommonPlain(e.cfg.Record)
}

// Mount builds the entry's layered node tree under parent and loads its
// media sources. Asset load failure never fails the mount; a broken
// source degrades to a blank visual.
func (e *Entry) Mount(parent *scene.Node) {
	rec := e.cfg.Record
	if rec.SetName == "" {
		// local copy only; the shared record stays untouched
		rec.SetName = e.cfg.Meta.SetName
	}
	res := e.cfg.Resolver

	e.root = parent.NewChild("group", "entry-"+e.ID)
	e.root.SetParam("x", e.cfg.OffsetX)
	e.root.SetParam("opacity", 1)

	e.videoStack = e.root.NewChild("group", "video-stack")
	drop := e.videoStack.NewChild("video", "drop")
	drop.SetAttr("src", res.DropClip())
	e.dropGate = e.newGate(res.DropClip())

	if clip := res.ConversionClip(rec.Rarity, rec.Shiny); clip != "" {
		conv := e.videoStack.NewChild("video", "conversion")
		conv.SetAttr("src", clip)
		conv.SetParam("opacity", 0)
		e.convGate = e.newGate(clip)
	}

	opening := e.videoStack.NewChild("video", "opening")
	opening.SetAttr("src", res.OpeningClip(rec.Rarity, rec.Shiny))
	opening.SetParam("opacity", 0)
	e.openGate = e.newGate(res.OpeningClip(rec.Rarity, rec.Shiny))

	rig := e.root.NewChild("group", "card-rig")
	e.backdrop = rig.NewChild("image", "backdrop")
	e.backdrop.SetParam("opacity", 0)
	e.card = rig.NewChild("image", "card")
	if src := res.ImageSource(rec); src != "" {
		e.card.SetAttr("src", src)
	}
	e.card.SetParam("opacity", 0)

	labels := e.root.NewChild("group", "labels")
	name := labels.NewChild("text", "name")
	name.SetAttr("text", rec.Name)
	e.levelNode = labels.NewChild("text", "level")
	e.levelNode.SetAttr("text", strconv.Itoa(rec.Level))

	star := e.root.NewChild("image", "star")
	star.SetAttr("src", res.StarAsset(rec.Rarity, rec.Shiny))

	e.badgeNode = e.root.NewChild("image", "badge")
	e.badgeNode.SetAttr("src", res.BadgeAsset(rec.Rarity, rec.Shiny))
	e.badgeNode.SetParam("scale", 0)
}

func (e *Entry) newGate(src string) *media.Gate {
	p := e.cfg.Players()
	p.Load(src)
	return media.NewGate(p, e.cfg.Log.With().Str("entry", e.ID).Logger())
}

// WaitReady blocks until every mounted clip reports ready (or times out).
// It never returns an error a caller could act on; readiness always
// resolves so one bad asset cannot stall the batch.
func (e *Entry) WaitReady(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	for _, gate := range []*media.Gate{e.dropGate, e.convGate, e.openGate} {
		if gate == nil {
			continue
		}
		g.Go(func() error {
			gate.EnsureReady(ctx, e.cfg.Timings.MediaReady)
			return nil
		})
	}
	_ = g.Wait()
}

// RunDrop plays the shared drop clip to completion.
func (e *Entry) RunDrop(ctx context.Context) error {
	if err := e.advance(StageDrop); err != nil {
		return err
	}
	e.dropGate.SafePlay()
	e.dropGate.WaitForStart(ctx, e.cfg.Timings.MediaStart)
	e.dropGate.WaitForEnd(ctx, e.cfg.Timings.MediaEnd)
	return nil
}

// RunConversion plays the conversion clip for eligible entries. For
// common non-shiny pulls it is a no-op and the stage is never entered.
func (e *Entry) RunConversion(ctx context.Context) error {
	if e.convGate == nil {
		return nil
	}
	if err := e.advance(StageConversion); err != nil {
		return err
	}
	if conv := e.videoStack.Child("conversion"); conv != nil {
		conv.SetParam("opacity", 1)
	}
	if drop := e.videoStack.Child("drop"); drop != nil {
		drop.SetParam("opacity", 0)
	}
	e.convGate.SafePlay()
	e.convGate.WaitForStart(ctx, e.cfg.Timings.MediaStart)
	e.convGate.WaitForEnd(ctx, e.cfg.Timings.MediaEnd)
	return nil
}

// Prime computes the card metrics and moves the card into its "behind"
// position: partially hidden, nudged toward center, shrunk, silhouetted.
func (e *Entry) Prime() error {
	if err := e.advance(StagePrimed); err != nil {
		return err
	}
	e.metrics = e.computeMetrics()

	e.card.SetAttr("layer", "behind")
	e.card.SetParam("opacity", 1)
	e.card.SetParam("scale", e.metrics.StartScale)
	e.card.SetParam("y", e.metrics.StartOffsetY)
	e.card.SetParam("x", e.cfg.OffsetX*-0.5) // relative nudge toward center
	e.card.SetParam("silhouette", 1)
	return nil
}

func (e *Entry) computeMetrics() Metrics {
	target, ok := cardScaleBySize[e.cfg.BatchSize]
	if !ok {
		target = cardScaleBySize[constants.MaxVisible]
	}
	startFactor := 0.7
	if e.cfg.BatchSize > 1 {
		startFactor = 0.55
	}

	// The reveal geometry hangs off the rendered video-stack height; a
	// headless stack measures zero and uses the fallback constant.
	h := e.videoStack.ParamTarget("height")
	if h <= 0 {
		h = constants.FallbackStackHeightPx
	}
	return Metrics{
		StartScale:    target * startFactor,
		TargetScale:   target,
		StartOffsetY:  h * 0.3,
		TargetOffsetY: 0,
		StackHeight:   h,
	}
}

// FadeInBackdrop starts the card backdrop fade. Returns immediately; the
// view layer interpolates.
func (e *Entry) FadeInBackdrop() {
	e.backdrop.AnimateParam("opacity", 1, e.cfg.Timings.BackdropFade)
}

// PlayOpening enters the opening stage and starts the opening clip.
func (e *Entry) PlayOpening(ctx context.Context) error {
	if err := e.advance(StageOpening); err != nil {
		return err
	}
	if open := e.videoStack.Child("opening"); open != nil {
		open.SetParam("opacity", 1)
	}
	if drop := e.videoStack.Child("drop"); drop != nil {
		drop.SetParam("opacity", 0)
	}
	if conv := e.videoStack.Child("conversion"); conv != nil {
		conv.SetParam("opacity", 0)
	}
	e.openGate.SafePlay()
	e.openGate.WaitForStart(ctx, e.cfg.Timings.MediaStart)
	return nil
}

// AwaitRevealGate holds until the card reveal should begin: an explicit
// per-record override wins, then opening-clip progress, then the fixed
// fallback delay when duration metadata never arrived.
func (e *Entry) AwaitRevealGate(ctx context.Context, fallback time.Duration) {
	if d := e.cfg.Record.RevealDelay; d > 0 {
		sleep(ctx, d)
		return
	}
	if e.openGate.WaitForProgress(ctx, constants.OpeningRevealRatio, e.cfg.Timings.MediaProgress) {
		return
	}
	sleep(ctx, fallback)
}

// Reveal promotes the primed card to the front layer and runs the reveal
// tween, badge pop, and level pop in order.
func (e *Entry) Reveal(ctx context.Context) error {
	if err := e.advance(StageFront); err != nil {
		return err
	}
	e.card.SetAttr("layer", "front")
	e.card.AnimateParam("scale", e.metrics.TargetScale, e.cfg.Timings.CardReveal)
	e.card.AnimateParam("y", e.metrics.TargetOffsetY, e.cfg.Timings.CardReveal)
	e.card.AnimateParam("x", 0, e.cfg.Timings.CardReveal)
	e.card.AnimateParam("silhouette", 0, e.cfg.Timings.CardReveal)
	sleep(ctx, e.cfg.Timings.CardReveal)

	e.popBadge(ctx)
	e.popLevel(ctx)
	return nil
}

// popBadge overshoots the badge to 120% then settles it at rest scale.
func (e *Entry) popBadge(ctx context.Context) {
	e.badgeNode.AnimateParam("scale", 1.2, e.cfg.Timings.BadgePop)
	sleep(ctx, e.cfg.Timings.BadgePop)
	e.badgeNode.AnimateParam("scale", 1.0, e.cfg.Timings.BadgeSettle)
	sleep(ctx, e.cfg.Timings.BadgeSettle)
	e.badgePopped = true
}

// popLevel holds, flips the number to level+1 in the upgraded state, then
// clears the pop state after the configured duration.
func (e *Entry) popLevel(ctx context.Context) {
	sleep(ctx, e.cfg.Timings.LevelPopHold)
	e.levelNode.SetAttr("text", strconv.Itoa(e.cfg.Record.Level+1))
	e.levelNode.SetAttr("state", "upgraded")
	sleep(ctx, e.cfg.Timings.LevelPopClear)
	e.levelNode.SetAttr("state", "")
}

// BeginFade marks the entry as fading; the sequencer drives the uniform
// opacity steps across the whole batch.
func (e *Entry) BeginFade() error {
	return e.advance(StageFading)
}

// SetOpacity sets the whole entry's opacity, used by the batch fade.
func (e *Entry) SetOpacity(v float64) {
	if e.root != nil {
		e.root.SetParam("opacity", v)
	}
}

// Teardown detaches the entry's nodes and releases its media sources.
func (e *Entry) Teardown() {
	_ = e.advance(StageRemoved)
	if e.root != nil {
		e.root.Remove()
	}
	for _, gate := range []*media.Gate{e.dropGate, e.convGate, e.openGate} {
		if gate != nil {
			gate.Close()
		}
	}
}

func (e *Entry) advance(to Stage) error {
	if stageRank[to] <= stageRank[e.stage] {
		return fmt.Errorf("%w: %s -> %s", ErrStageOrder, e.stage, to)
	}
	e.stage = to
	return nil
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
