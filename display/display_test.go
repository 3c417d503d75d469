package display

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/vantage-xr/compositor"
	"github.com/e7canasta/vantage-xr/frametiming"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestHeadlessRejectsNegativeRefreshRate(t *testing.T) {
	_, err := New(Config{RefreshHz: -1, Logger: quietLogger()})
	require.Error(t, err)
}

func TestHeadlessPacesMonotonically(t *testing.T) {
	h, err := New(Config{RefreshHz: 500, Logger: quietLogger()})
	require.NoError(t, err)

	ctx := context.Background()

	var lastDisplay int64
	for i := 0; i < 5; i++ {
		frameID, displayNs, periodNs, err := h.WaitFrame(ctx)
		require.NoError(t, err)
		assert.Greater(t, displayNs, lastDisplay)
		assert.Equal(t, h.PeriodNs(), periodNs)
		lastDisplay = displayNs

		require.NoError(t, h.BeginFrame(frameID))
		require.NoError(t, h.LayerBegin(frameID, compositor.BlendOpaque))
		require.NoError(t, h.LayerCommit(frameID))
	}

	assert.Equal(t, uint64(5), h.Stats().FramesPresented)
}

func TestHeadlessAdaptiveReportsFrames(t *testing.T) {
	var mu sync.Mutex
	var reports []frametiming.FrameReport

	h, err := New(Config{
		RefreshHz: 500,
		Adaptive:  true,
		Logger:    quietLogger(),
		OnFrameComplete: func(r frametiming.FrameReport) {
			mu.Lock()
			reports = append(reports, r)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		frameID, _, _, err := h.WaitFrame(ctx)
		require.NoError(t, err)
		require.NoError(t, h.BeginFrame(frameID))
		require.NoError(t, h.LayerCommit(frameID))
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reports, 3)
	for _, r := range reports {
		assert.False(t, r.Missed)
		assert.GreaterOrEqual(t, r.PresentMarginNs, int64(0))
	}
}

func TestHeadlessWaitFrameHonorsCancellation(t *testing.T) {
	h, err := New(Config{RefreshHz: 1, Logger: quietLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, err = h.WaitFrame(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

// Drives the whole stack end to end: a client committing quads, the
// render loop pacing on the headless backend.
func TestHeadlessDrivesCompositorLoop(t *testing.T) {
	h, err := New(Config{RefreshHz: 500, Logger: quietLogger()})
	require.NoError(t, err)

	sys := compositor.NewSystem(quietLogger(), nil)
	loop := compositor.NewLoop(sys, h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	client, err := sys.AddClient("smoke", false, 0)
	require.NoError(t, err)
	client.BeginSession()

	// Commit frames until the loop has presented a few of them.
	deadline := time.Now().Add(2 * time.Second)
	composed := func() bool {
		st := h.Stats()
		return st.FramesPresented >= 5 && st.LayersDrawn >= 1
	}
	for !composed() && time.Now().Before(deadline) {
		s, err := client.WaitFrame(ctx)
		if err != nil {
			// The loop has not broadcast its first sample yet.
			time.Sleep(time.Millisecond)
			continue
		}
		client.BeginFrame(s.FrameID)
		client.BeginLayerBatch(compositor.BlendOpaque)
		require.NoError(t, client.AppendLayer(compositor.LayerEntry{
			Device:     testDevice{},
			Swapchains: [4]compositor.Swapchain{testSwapchain{}},
			Data:       compositor.LayerData{Kind: compositor.LayerQuad},
		}))
		client.CommitLayerBatch(s.FrameID, s.PredictedDisplayTimeNs)
	}

	require.True(t, composed(), "loop never composed client layers: %+v", h.Stats())

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	assert.Greater(t, loop.Stats().FramesComposited, uint64(0))
	assert.Greater(t, h.Stats().LayersDrawn, uint64(0))
}

type testDevice struct{}

func (testDevice) Name() string { return "hmd" }

type testSwapchain struct{}

func (testSwapchain) Name() string { return "sc" }
