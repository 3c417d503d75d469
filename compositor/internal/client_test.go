package internal

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/vantage-xr/frametiming"
)

const testPeriodNs = int64(16_000_000)

type stepClock struct {
	ns int64
}

func (c *stepClock) now() int64 { return c.ns }

type testDevice struct{ name string }

func (d *testDevice) Name() string { return d.name }

type testSwapchain struct{ name string }

func (s *testSwapchain) Name() string { return s.name }

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newTestClient returns a client that has already received a timing
// sample, so frame predictions succeed immediately.
func newTestClient(t *testing.T, clk *stepClock) (*System, *Client) {
	t.Helper()

	sys := NewSystem(quietLogger(), clk.now)
	c, err := sys.AddClient("app", false, 0)
	require.NoError(t, err)

	// Sample in the past relative to the clock so wake-up times are
	// already behind us and WaitFrame never sleeps.
	clk.ns = 1_000 * testPeriodNs
	sys.broadcastSample(100*testPeriodNs, 2_000_000, testPeriodNs)

	return sys, c
}

func quadEntry(name string) LayerEntry {
	return LayerEntry{
		Device:     &testDevice{name: "hmd"},
		Swapchains: [maxSwapchainsPerLayer]Swapchain{&testSwapchain{name: name}},
		Data:       LayerData{Kind: LayerQuad},
	}
}

// commitBatch runs one full client frame delivering a single quad
// layer targeted at displayTimeNs.
func commitBatch(t *testing.T, c *Client, name string, displayTimeNs int64) {
	t.Helper()

	s, err := c.WaitFrame(context.Background())
	require.NoError(t, err)
	c.BeginFrame(s.FrameID)

	c.BeginLayerBatch(BlendOpaque)
	require.NoError(t, c.AppendLayer(quadEntry(name)))
	c.CommitLayerBatch(s.FrameID, displayTimeNs)
}

func TestClientPredictBeforeFirstSampleFails(t *testing.T) {
	sys := NewSystem(quietLogger(), (&stepClock{}).now)
	c, err := sys.AddClient("early", false, 0)
	require.NoError(t, err)

	_, err = c.PredictFrame()
	require.ErrorIs(t, err, frametiming.ErrNoSample)
}

func TestClientWaitFrameHonorsCancellation(t *testing.T) {
	clk := &stepClock{}
	sys := NewSystem(quietLogger(), clk.now)
	c, err := sys.AddClient("app", false, 0)
	require.NoError(t, err)

	// Sample far in the future so the wake-up time forces a sleep.
	sys.broadcastSample(clk.ns+1_000*testPeriodNs, 2_000_000, testPeriodNs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.WaitFrame(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// The discarded frame's slot must be reusable.
	_, err = c.PredictFrame()
	require.NoError(t, err)
}

func TestClientMostRecentCommitWins(t *testing.T) {
	clk := &stepClock{}
	_, c := newTestClient(t, clk)

	t1 := clk.ns + 10*testPeriodNs
	t2 := t1 + testPeriodNs

	commitBatch(t, c, "batch-a", t1)
	commitBatch(t, c, "batch-b", t2)

	require.True(t, c.DeliverIfDue(t2))

	slot := c.delivered()
	require.True(t, slot.active)
	require.Len(t, slot.layers, 1)
	assert.Equal(t, "batch-b", slot.layers[0].Swapchains[0].Name())
	assert.Equal(t, t2, slot.displayTimeNs)
}

func TestClientDeliverWaitsForDueTime(t *testing.T) {
	clk := &stepClock{}
	_, c := newTestClient(t, clk)

	target := clk.ns + 10*testPeriodNs
	commitBatch(t, c, "future", target)

	assert.False(t, c.DeliverIfDue(target-2*testPeriodNs))
	assert.False(t, c.delivered().active)

	assert.True(t, c.DeliverIfDue(target))
	assert.True(t, c.delivered().active)
}

func TestClientDeliverAcceptsHalfMillisecondEarly(t *testing.T) {
	clk := &stepClock{}
	_, c := newTestClient(t, clk)

	target := clk.ns + 10*testPeriodNs
	commitBatch(t, c, "early", target)

	assert.True(t, c.DeliverIfDue(target-halfMillisecondNs/2))
}

func TestClientDeliverWithNothingScheduled(t *testing.T) {
	clk := &stepClock{}
	_, c := newTestClient(t, clk)

	assert.False(t, c.DeliverIfDue(clk.ns))
}

func TestClientLayerLimit(t *testing.T) {
	clk := &stepClock{}
	_, c := newTestClient(t, clk)

	c.BeginLayerBatch(BlendOpaque)
	for i := 0; i < MaxLayers; i++ {
		require.NoError(t, c.AppendLayer(quadEntry("ok")))
	}

	err := c.AppendLayer(quadEntry("over"))
	require.ErrorIs(t, err, ErrTooManyLayers)
}

func TestClientAppendWithoutBatchPanics(t *testing.T) {
	clk := &stepClock{}
	_, c := newTestClient(t, clk)

	assert.Panics(t, func() { c.AppendLayer(quadEntry("stray")) })
}

func TestClientCommitWithoutBatchPanics(t *testing.T) {
	clk := &stepClock{}
	_, c := newTestClient(t, clk)

	assert.Panics(t, func() { c.CommitLayerBatch(1, clk.ns) })
}

func TestClientBeginBatchDiscardsUnfinishedOne(t *testing.T) {
	clk := &stepClock{}
	_, c := newTestClient(t, clk)

	c.BeginLayerBatch(BlendOpaque)
	require.NoError(t, c.AppendLayer(quadEntry("abandoned")))

	c.BeginLayerBatch(BlendAlpha)
	target := clk.ns + 10*testPeriodNs

	s, err := c.WaitFrame(context.Background())
	require.NoError(t, err)
	c.BeginFrame(s.FrameID)
	require.NoError(t, c.AppendLayer(quadEntry("kept")))
	c.CommitLayerBatch(s.FrameID, target)

	require.True(t, c.DeliverIfDue(target))
	slot := c.delivered()
	require.Len(t, slot.layers, 1)
	assert.Equal(t, "kept", slot.layers[0].Swapchains[0].Name())
	assert.Equal(t, BlendAlpha, slot.blendMode)
}

func TestClientEventQueueDropsOldest(t *testing.T) {
	clk := &stepClock{}
	_, c := newTestClient(t, clk)

	for i := 0; i < eventQueueDepth+5; i++ {
		c.pushEvent(Event{ClientID: c.id, Visible: i%2 == 0})
	}

	// Queue holds the newest events; the first few were dropped and
	// counted.
	assert.Len(t, c.events, eventQueueDepth)
	assert.Equal(t, uint64(5), c.Stats().EventsDropped)
}

func TestClientStatsCountCommitsAndDeliveries(t *testing.T) {
	clk := &stepClock{}
	_, c := newTestClient(t, clk)

	t1 := clk.ns + 10*testPeriodNs
	commitBatch(t, c, "first", t1)
	commitBatch(t, c, "second", t1+testPeriodNs)

	// Both batches committed, only the newest one gets delivered.
	require.True(t, c.DeliverIfDue(t1+testPeriodNs))

	st := c.Stats()
	assert.Equal(t, uint64(2), st.BatchesCommitted)
	assert.Equal(t, uint64(1), st.BatchesDelivered)
	assert.Equal(t, uint64(0), st.EventsDropped)
}
