package frametiming_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/vantage-xr/frametiming"
)

// Drives the public surface the way the compositor loop does, checking
// the pieces fit together through the facade.
func TestPublicSurfaceRoundTrip(t *testing.T) {
	const periodNs = int64(16_666_666)

	nowNs := int64(0)
	clock := func() int64 { return nowNs }

	timer, err := frametiming.NewDisplayTiming(frametiming.DisplayConfig{
		PeriodNs: periodNs,
		Now:      clock,
	})
	require.NoError(t, err)

	s, err := timer.Predict()
	require.NoError(t, err)
	assert.Greater(t, s.DesiredPresentTimeNs, nowNs)

	timer.MarkPoint(frametiming.PointWakeUp, s.FrameID, s.WakeUpTimeNs)
	timer.MarkPoint(frametiming.PointBegin, s.FrameID, s.WakeUpTimeNs)
	timer.MarkPoint(frametiming.PointSubmit, s.FrameID, s.DesiredPresentTimeNs)
	timer.Info(s.FrameID, s.DesiredPresentTimeNs, s.DesiredPresentTimeNs,
		s.DesiredPresentTimeNs, int64(1_000_000))

	helper := frametiming.NewRenderHelper()
	helper.NewSample(s.PredictedDisplayTimeNs, 2_000_000, periodNs)

	hs, err := helper.Predict(nowNs)
	require.NoError(t, err)
	assert.Greater(t, hs.PredictedDisplayTimeNs, nowNs)
	helper.MarkWaitWoke(hs.FrameID, nowNs)
	helper.MarkBegin(hs.FrameID, nowNs)
	helper.MarkDelivered(hs.FrameID, nowNs)

	fake, err := frametiming.NewFakeTiming(periodNs, clock)
	require.NoError(t, err)
	fs, err := fake.Predict()
	require.NoError(t, err)
	assert.Greater(t, fs.DesiredPresentTimeNs, nowNs)

	var _ frametiming.Timer = timer
	var _ frametiming.Timer = fake
}
