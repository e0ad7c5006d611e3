package sequencer

// SlotSpacingPx is the horizontal distance one offset multiplier covers.
const SlotSpacingPx = 320.0

// SlotOffsets maps batch size to resting horizontal offset multipliers,
// left to right. Offsets are symmetric around center and strictly
// increasing, so entries in one batch never overlap at rest.
var SlotOffsets = map[int][]float64{
	1: {0},
	2: {-0.55, 0.55},
	3: {-1.1, 0, 1.1},
	4: {-1.65, -0.55, 0.55, 1.65},
}

// OffsetX is the resting pixel offset for one slot of a batch.
func OffsetX(batchSize, slot int) float64 {
	offsets, ok := SlotOffsets[batchSize]
	if !ok || slot < 0 || slot >= len(offsets) {
		return 0
	}
	return offsets[slot] * SlotSpacingPx
}
