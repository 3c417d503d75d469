package internal

// layerSlot is one stage of the per-client triple buffer: a batch of
// layers tagged with the display time it targets.
type layerSlot struct {
	active        bool
	displayTimeNs int64
	blendMode     EnvBlendMode
	layers        []LayerEntry
}

func (s *layerSlot) clear() {
	*s = layerSlot{}
}

// moveAndClear hands src's batch to dst and empties src. The layer
// slice moves by reference; the writer starts a fresh slice for the
// next batch, so the reader's copy is never shared.
func moveAndClear(dst, src *layerSlot) {
	dst.clear()
	*dst = *src
	*src = layerSlot{}
}

// greaterOrWithinHalfMs reports whether nowNs has reached thenNs, with
// half a millisecond of slop for presents that land just early.
func greaterOrWithinHalfMs(nowNs, thenNs int64) bool {
	return nowNs >= thenNs-halfMillisecondNs
}

const halfMillisecondNs = int64(500_000)
