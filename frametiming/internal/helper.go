package internal

import "fmt"

// helperRingSize is small on purpose. A client has at most one frame
// being waited on and one being rendered.
const helperRingSize = 2

// helperState is the per-slot lifecycle of a client frame.
type helperState int

const (
	helperStateReady helperState = iota
	helperStatePredicted
	helperStateWaitLeft
	helperStateBegun
)

func (s helperState) String() string {
	switch s {
	case helperStateReady:
		return "ready"
	case helperStatePredicted:
		return "predicted"
	case helperStateWaitLeft:
		return "wait_left"
	case helperStateBegun:
		return "begun"
	default:
		return fmt.Sprintf("helperState(%d)", int(s))
	}
}

// noFrameID marks a helper slot as unused.
const noFrameID int64 = -1

type helperFrame struct {
	frameID int64
	state   helperState

	whenPredictedNs int64
	whenWaitWokeNs  int64
	whenBeginNs     int64
	whenEndFrameNs  int64
}

// HelperSample is the shared upstream input a RenderHelper derives its
// predictions from, refreshed once per real display frame.
type HelperSample struct {
	// PredictNs is the display time the compositor predicted for
	// itself this period.
	PredictNs int64

	// ExtraNs is the latency the compositor needs on top of the
	// client's own work.
	ExtraNs int64

	// MinPeriodNs is the display period the hardware runs at.
	MinPeriodNs int64
}

// RenderHelper hands out monotonic per-client frame predictions derived
// from one shared upstream sample. The cheap non-adaptive sibling of
// DisplayTiming: no feedback loop, wake time is simply one period
// before present.
//
// Not safe for concurrent use; the owner serializes all calls, the same
// way it serializes the rest of the per-client timing state.
type RenderHelper struct {
	lastInput HelperSample

	lastReturnedNs int64
	frameCounter   int64

	frames [helperRingSize]helperFrame
}

// NewRenderHelper creates a cleared helper. Predict fails with
// ErrNoSample until NewSample has been called at least once.
func NewRenderHelper() *RenderHelper {
	rh := &RenderHelper{}
	rh.Clear()
	return rh
}

// Clear resets all frame slots to unused. Called on creation and when
// the owning client session is reset.
func (rh *RenderHelper) Clear() {
	for i := range rh.frames {
		rh.frames[i] = helperFrame{frameID: noFrameID, state: helperStateReady}
	}
}

// NewSample overwrites the shared upstream input. Broadcast to every
// client's helper once per real display frame.
func (rh *RenderHelper) NewSample(predictNs, extraNs, minPeriodNs int64) {
	rh.lastInput = HelperSample{
		PredictNs:   predictNs,
		ExtraNs:     extraNs,
		MinPeriodNs: minPeriodNs,
	}
}

// lastInputPlusPeriodGreaterThan walks whole periods from the last
// upstream display time until strictly past thenNs.
func (rh *RenderHelper) lastInputPlusPeriodGreaterThan(thenNs int64) int64 {
	val := rh.lastInput.PredictNs
	for val <= thenNs {
		val += rh.lastInput.MinPeriodNs
	}
	return val
}

// Predict produces the next frame for this client.
//
// The returned display time is the smallest upstream-aligned slot
// strictly after both now and the previously returned time, so display
// times never regress even when the client predicts faster than the
// display cadence.
func (rh *RenderHelper) Predict(nowNs int64) (Sample, error) {
	if rh.lastInput.MinPeriodNs <= 0 {
		return Sample{}, ErrNoSample
	}

	rh.frameCounter++
	frameID := rh.frameCounter

	atLeastNs := nowNs
	if atLeastNs < rh.lastReturnedNs {
		atLeastNs = rh.lastReturnedNs
	}

	predictNs := rh.lastInputPlusPeriodGreaterThan(atLeastNs)
	rh.lastReturnedNs = predictNs

	f := &rh.frames[frameID%helperRingSize]
	if f.frameID != noFrameID || f.state != helperStateReady {
		panic(fmt.Sprintf("frametiming: helper slot for frame %d still holds frame %d (%s)",
			frameID, f.frameID, f.state))
	}

	f.whenPredictedNs = nowNs
	f.state = helperStatePredicted
	f.frameID = frameID

	return Sample{
		FrameID:                  frameID,
		WakeUpTimeNs:             predictNs - rh.lastInput.MinPeriodNs,
		DesiredPresentTimeNs:     predictNs,
		PresentSlopNs:            HalfMillisecondNs,
		PredictedDisplayTimeNs:   predictNs,
		PredictedDisplayPeriodNs: rh.lastInput.MinPeriodNs,
		MinDisplayPeriodNs:       rh.lastInput.MinPeriodNs,
	}, nil
}

func (rh *RenderHelper) mustGet(frameID int64) *helperFrame {
	f := &rh.frames[frameID%helperRingSize]
	if f.frameID != frameID {
		panic(fmt.Sprintf("frametiming: helper has no frame %d (slot holds %d)",
			frameID, f.frameID))
	}
	return f
}

// MarkWaitWoke records that the client's wait call returned.
func (rh *RenderHelper) MarkWaitWoke(frameID, whenNs int64) {
	f := rh.mustGet(frameID)
	if f.state != helperStatePredicted {
		panic(fmt.Sprintf("frametiming: frame %d woke while %s (want predicted)",
			frameID, f.state))
	}
	f.whenWaitWokeNs = whenNs
	f.state = helperStateWaitLeft
}

// MarkBegin records that the client started rendering.
func (rh *RenderHelper) MarkBegin(frameID, whenNs int64) {
	f := rh.mustGet(frameID)
	if f.state != helperStateWaitLeft {
		panic(fmt.Sprintf("frametiming: frame %d began while %s (want wait_left)",
			frameID, f.state))
	}
	f.whenBeginNs = whenNs
	f.state = helperStateBegun
}

// MarkDiscarded releases a frame the client gave up on before
// delivering any layers.
func (rh *RenderHelper) MarkDiscarded(frameID, whenNs int64) {
	f := rh.mustGet(frameID)
	if f.state != helperStateWaitLeft && f.state != helperStateBegun {
		panic(fmt.Sprintf("frametiming: frame %d discarded while %s",
			frameID, f.state))
	}
	f.whenEndFrameNs = whenNs
	f.state = helperStateReady
	f.frameID = noFrameID
}

// MarkDelivered releases a frame whose layers were committed.
func (rh *RenderHelper) MarkDelivered(frameID, whenNs int64) {
	f := rh.mustGet(frameID)
	if f.state != helperStateBegun {
		panic(fmt.Sprintf("frametiming: frame %d delivered while %s (want begun)",
			frameID, f.state))
	}
	f.whenEndFrameNs = whenNs
	f.state = helperStateReady
	f.frameID = noFrameID
}
