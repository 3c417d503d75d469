package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSampledHelper() *RenderHelper {
	rh := NewRenderHelper()
	rh.NewSample(100*MillisecondNs, 2*MillisecondNs, testPeriodNs)
	return rh
}

func TestRenderHelperPredictBeforeSampleFails(t *testing.T) {
	rh := NewRenderHelper()

	_, err := rh.Predict(0)
	require.ErrorIs(t, err, ErrNoSample)
}

func TestRenderHelperAlignsToUpstreamSample(t *testing.T) {
	rh := newSampledHelper()

	s, err := rh.Predict(0)
	require.NoError(t, err)

	assert.Equal(t, int64(1), s.FrameID)
	assert.Equal(t, 100*MillisecondNs, s.PredictedDisplayTimeNs)
	assert.Equal(t, s.PredictedDisplayTimeNs-testPeriodNs, s.WakeUpTimeNs)
	assert.Equal(t, testPeriodNs, s.PredictedDisplayPeriodNs)
}

func TestRenderHelperDisplayTimesNeverRegress(t *testing.T) {
	rh := newSampledHelper()

	// Predicting much faster than the display cadence, at a frozen
	// clock, must still step forward one period at a time.
	var last int64
	for i := 0; i < 2; i++ {
		s, err := rh.Predict(0)
		require.NoError(t, err)
		assert.Greater(t, s.PredictedDisplayTimeNs, last)
		last = s.PredictedDisplayTimeNs

		rh.MarkWaitWoke(s.FrameID, 0)
		rh.MarkDiscarded(s.FrameID, 0)
	}

	// A stale upstream sample cannot drag predictions backwards either.
	rh.NewSample(10*MillisecondNs, 2*MillisecondNs, testPeriodNs)
	s, err := rh.Predict(0)
	require.NoError(t, err)
	assert.Greater(t, s.PredictedDisplayTimeNs, last)
}

func TestRenderHelperPredictsPastNow(t *testing.T) {
	rh := newSampledHelper()

	nowNs := 500 * MillisecondNs
	s, err := rh.Predict(nowNs)
	require.NoError(t, err)
	assert.Greater(t, s.PredictedDisplayTimeNs, nowNs)
}

func TestRenderHelperFullLifecycle(t *testing.T) {
	rh := newSampledHelper()

	s, err := rh.Predict(0)
	require.NoError(t, err)

	rh.MarkWaitWoke(s.FrameID, 1)
	rh.MarkBegin(s.FrameID, 2)
	rh.MarkDelivered(s.FrameID, 3)

	// Slot is free for reuse after delivery.
	s2, err := rh.Predict(0)
	require.NoError(t, err)
	s3, err := rh.Predict(0)
	require.NoError(t, err)
	assert.Equal(t, s.FrameID+1, s2.FrameID)
	assert.Equal(t, s.FrameID+2, s3.FrameID)
}

func TestRenderHelperDiscardFromWaitLeft(t *testing.T) {
	rh := newSampledHelper()

	s, err := rh.Predict(0)
	require.NoError(t, err)
	rh.MarkWaitWoke(s.FrameID, 1)
	rh.MarkDiscarded(s.FrameID, 2)
}

func TestRenderHelperDiscardFromBegun(t *testing.T) {
	rh := newSampledHelper()

	s, err := rh.Predict(0)
	require.NoError(t, err)
	rh.MarkWaitWoke(s.FrameID, 1)
	rh.MarkBegin(s.FrameID, 2)
	rh.MarkDiscarded(s.FrameID, 3)
}

func TestRenderHelperOutOfOrderMarksPanic(t *testing.T) {
	rh := newSampledHelper()

	s, err := rh.Predict(0)
	require.NoError(t, err)

	assert.Panics(t, func() { rh.MarkBegin(s.FrameID, 1) })
	assert.Panics(t, func() { rh.MarkDelivered(s.FrameID, 1) })
	assert.Panics(t, func() { rh.MarkDiscarded(s.FrameID, 1) })
}

func TestRenderHelperDeliverBeforeBeginPanics(t *testing.T) {
	rh := newSampledHelper()

	s, err := rh.Predict(0)
	require.NoError(t, err)
	rh.MarkWaitWoke(s.FrameID, 1)

	assert.Panics(t, func() { rh.MarkDelivered(s.FrameID, 2) })
}

func TestRenderHelperUnknownFramePanics(t *testing.T) {
	rh := newSampledHelper()

	assert.Panics(t, func() { rh.MarkWaitWoke(99, 0) })
}

func TestRenderHelperRingOverrunPanics(t *testing.T) {
	rh := newSampledHelper()

	for i := 0; i < helperRingSize; i++ {
		_, err := rh.Predict(0)
		require.NoError(t, err)
	}

	assert.Panics(t, func() { rh.Predict(0) })
}

func TestRenderHelperClearFreesAllSlots(t *testing.T) {
	rh := newSampledHelper()

	for i := 0; i < helperRingSize; i++ {
		_, err := rh.Predict(0)
		require.NoError(t, err)
	}

	rh.Clear()

	_, err := rh.Predict(0)
	require.NoError(t, err)
}
