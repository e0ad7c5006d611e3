package constants

import "time"

// Batch shape.
const (
	MaxVisible = 4
)

// Stage pacing.
const (
	DropStagger            = 180 * time.Millisecond
	PostDropFreeze         = 400 * time.Millisecond
	ConversionChainDelay   = 250 * time.Millisecond
	CommonOnlyOpeningDelay = 900 * time.Millisecond
	OpeningStagger         = 220 * time.Millisecond
	RevealFallback         = 1200 * time.Millisecond
	BatchHold              = 4 * time.Second
)

// OpeningRevealRatio is how far into the opening clip the card reveal
// starts, when the clip's duration is known.
const OpeningRevealRatio = 0.15

// Fade-out runs as discrete opacity steps so the view layer never has to
// interpolate the teardown.
const (
	FadeSteps  = 20
	FrameDelay = 33 * time.Millisecond
)

// Card/badge/level tweens.
const (
	BackdropFade    = 350 * time.Millisecond
	CardRevealTween = 450 * time.Millisecond
	BadgePop        = 130 * time.Millisecond
	BadgeSettle     = 180 * time.Millisecond
	LevelPopHold    = 900 * time.Millisecond
	LevelPopClear   = 1500 * time.Millisecond
)

// Media wait bounds. Every media wait must resolve within its bound so a
// broken source can never stall a batch.
const (
	MediaReadyTimeout    = 5 * time.Second
	MediaStartTimeout    = 2 * time.Second
	MediaDurationTimeout = 2 * time.Second
	MediaProgressTimeout = 10 * time.Second
	MediaEndTimeout      = 15 * time.Second
)

// Transport reconnect back-off.
const (
	ReconnectBaseDelay = 1 * time.Second
	ReconnectMaxDelay  = 10 * time.Second
	ReconnectFactor    = 1.5
)

// Bridge defaults, matching the host's overlay bridge.
const (
	DefaultBridgeHost = "127.0.0.1"
	DefaultBridgePort = 17890
	DefaultBridgePath = "/gacha"
)

// Reveal priming fallback when the video stack height measures zero.
const FallbackStackHeightPx = 480.0

const ShutdownTimeout = 5 * time.Second
