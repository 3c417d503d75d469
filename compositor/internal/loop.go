package internal

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/e7canasta/vantage-xr/frametiming"
)

// defaultRetryPauseNs paces wait-frame retries until the backend has
// reported a real display period.
const defaultRetryPauseNs = 16 * int64(time.Millisecond)

// ErrBackendFatal wraps backend failures that must stop the render
// loop. Any other backend error abandons the current frame only.
var ErrBackendFatal = errors.New("render backend unrecoverable")

// RenderBackend is the real compositor under this layer: it owns the
// display, paces the loop through WaitFrame and draws what the loop
// submits.
type RenderBackend interface {
	// WaitFrame blocks until the next frame should be composed and
	// returns its timing. Must honor ctx cancellation.
	WaitFrame(ctx context.Context) (frameID int64, predictedDisplayTimeNs int64, predictedDisplayPeriodNs int64, err error)

	BeginFrame(frameID int64) error
	LayerBegin(frameID int64, blend EnvBlendMode) error
	LayerStereoProjection(device Device, left, right Swapchain, data LayerData) error
	LayerQuad(device Device, swapchain Swapchain, data LayerData) error

	// LayerCommit performs the actual draw and present.
	LayerCommit(frameID int64) error
}

// LoopStats is a snapshot of the render loop's counters.
type LoopStats struct {
	FramesComposited uint64
	LayersSubmitted  uint64
	LayersSkipped    uint64
	FramesAbandoned  uint64
}

// Loop is the system render thread: one iteration per display period,
// pacing on the backend's wait-frame signal.
type Loop struct {
	sys     *System
	backend RenderBackend
	log     *logrus.Logger
	now     frametiming.Clock

	// retryPauseNs tracks the last known display period so a failing
	// WaitFrame is retried once per frame instead of in a hot spin.
	retryPauseNs int64

	framesComposited atomic.Uint64
	layersSubmitted  atomic.Uint64
	layersSkipped    atomic.Uint64
	framesAbandoned  atomic.Uint64
}

// NewLoop wires a system to a render backend.
func NewLoop(sys *System, backend RenderBackend) *Loop {
	return &Loop{
		sys:          sys,
		backend:      backend,
		log:          sys.log,
		now:          sys.now,
		retryPauseNs: defaultRetryPauseNs,
	}
}

// Run drives the render loop until ctx is cancelled or the backend
// reports a fatal condition. Per-frame backend failures abandon that
// frame and continue.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("render loop started")
	defer l.log.Info("render loop stopped")

	for {
		frameID, displayNs, periodNs, err := l.backend.WaitFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrBackendFatal) {
				return err
			}
			l.framesAbandoned.Add(1)
			l.log.WithError(err).Warn("wait frame failed, abandoning frame")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(l.retryPauseNs)):
			}
			continue
		}
		if periodNs > 0 {
			l.retryPauseNs = periodNs
		}

		diffNs := displayNs - l.now()
		l.sys.broadcastSample(displayNs, diffNs, periodNs)

		if err := l.composeFrame(frameID, displayNs); err != nil {
			if errors.Is(err, ErrBackendFatal) {
				return err
			}
			l.framesAbandoned.Add(1)
			l.log.WithError(err).WithField("frame_id", frameID).
				Warn("frame abandoned")
			continue
		}

		l.framesComposited.Add(1)
	}
}

func (l *Loop) composeFrame(frameID int64, displayNs int64) error {
	// Promote every client's due batch before walking the stack, so
	// one composited frame sees one consistent set of layers.
	for _, c := range l.sys.allClients() {
		c.DeliverIfDue(displayNs)
	}

	if err := l.backend.BeginFrame(frameID); err != nil {
		return err
	}
	if err := l.backend.LayerBegin(frameID, BlendOpaque); err != nil {
		return err
	}

	for _, c := range l.sys.snapshotRenderOrder() {
		slot := c.delivered()
		if !slot.active {
			continue
		}
		for i := range slot.layers {
			if err := l.submitLayer(c, &slot.layers[i]); err != nil {
				return err
			}
		}
	}

	return l.backend.LayerCommit(frameID)
}

// submitLayer dispatches one layer by kind. A dangling device or
// swapchain reference fails that layer alone: log, skip, keep
// compositing the rest of the frame.
func (l *Loop) submitLayer(c *Client, entry *LayerEntry) error {
	if entry.Device == nil {
		l.skipLayer(c, entry, "no device")
		return nil
	}

	switch entry.Data.Kind {
	case LayerStereoProjection:
		left, right := entry.Swapchains[0], entry.Swapchains[1]
		if left == nil || right == nil {
			l.skipLayer(c, entry, "missing projection swapchain")
			return nil
		}
		if err := l.backend.LayerStereoProjection(entry.Device, left, right, entry.Data); err != nil {
			return err
		}

	case LayerQuad:
		sc := entry.Swapchains[0]
		if sc == nil {
			l.skipLayer(c, entry, "missing quad swapchain")
			return nil
		}
		if err := l.backend.LayerQuad(entry.Device, sc, entry.Data); err != nil {
			return err
		}

	default:
		l.skipLayer(c, entry, "unknown layer kind")
		return nil
	}

	l.layersSubmitted.Add(1)
	return nil
}

func (l *Loop) skipLayer(c *Client, entry *LayerEntry, reason string) {
	l.layersSkipped.Add(1)
	c.logEntry().WithFields(logrus.Fields{
		"kind":   entry.Data.Kind.String(),
		"reason": reason,
	}).Error("skipping invalid layer")
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() LoopStats {
	return LoopStats{
		FramesComposited: l.framesComposited.Load(),
		LayersSubmitted:  l.layersSubmitted.Load(),
		LayersSkipped:    l.layersSkipped.Load(),
		FramesAbandoned:  l.framesAbandoned.Load(),
	}
}
