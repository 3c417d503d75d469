// Package display provides a headless render backend: it paces a
// compositor loop at a configured refresh rate and feeds synthetic
// present feedback to a frame timing predictor, without any GPU or
// window system behind it.
//
// Useful as the backend for development machines without an HMD, and
// as the reference implementation of the RenderBackend pacing
// contract.
package display

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/e7canasta/vantage-xr/compositor"
	"github.com/e7canasta/vantage-xr/frametiming"
)

// Config holds the headless backend tunables.
type Config struct {
	// RefreshHz is the simulated display refresh rate. Default 60.
	RefreshHz float64

	// Adaptive selects the feedback-driven predictor. When false the
	// backend runs on the fixed-budget fake predictor, the way a real
	// backend does when the display provides no timing extension.
	Adaptive bool

	// OnFrameComplete receives per-frame timing reports when Adaptive
	// is set. Ignored otherwise; the fake predictor reports nothing.
	OnFrameComplete func(frametiming.FrameReport)

	// Now is the monotonic clock, defaulting to the process clock.
	Now frametiming.Clock

	// Logger defaults to the standard logger.
	Logger *logrus.Logger
}

// Stats is a snapshot of the backend counters.
type Stats struct {
	FramesPresented uint64
	LayersDrawn     uint64
}

// Headless is a render backend with no actual output. One per
// simulated display; driven by exactly one compositor loop.
type Headless struct {
	timer    frametiming.Timer
	periodNs int64
	now      frametiming.Clock
	log      *logrus.Logger

	// Frame in flight between WaitFrame and LayerCommit. The loop
	// calls these from one goroutine, so a plain field is enough.
	pending frametiming.Sample

	framesPresented atomic.Uint64
	layersDrawn     atomic.Uint64
}

var _ compositor.RenderBackend = (*Headless)(nil)

// New creates a headless backend.
func New(cfg Config) (*Headless, error) {
	if cfg.RefreshHz == 0 {
		cfg.RefreshHz = 60
	}
	if cfg.RefreshHz < 0 {
		return nil, fmt.Errorf("refresh rate %f: %w", cfg.RefreshHz, frametiming.ErrInvalidPeriod)
	}
	if cfg.Now == nil {
		cfg.Now = frametiming.MonotonicNow
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	periodNs := int64(float64(time.Second) / cfg.RefreshHz)

	var timer frametiming.Timer
	var err error
	if cfg.Adaptive {
		timer, err = frametiming.NewDisplayTiming(frametiming.DisplayConfig{
			PeriodNs:        periodNs,
			Now:             cfg.Now,
			Logger:          cfg.Logger,
			OnFrameComplete: cfg.OnFrameComplete,
		})
	} else {
		timer, err = frametiming.NewFakeTiming(periodNs, cfg.Now)
	}
	if err != nil {
		return nil, err
	}

	cfg.Logger.WithFields(logrus.Fields{
		"refresh_hz": cfg.RefreshHz,
		"adaptive":   cfg.Adaptive,
	}).Info("headless display created")

	return &Headless{
		timer:    timer,
		periodNs: periodNs,
		now:      cfg.Now,
		log:      cfg.Logger,
	}, nil
}

// PeriodNs returns the simulated refresh period.
func (h *Headless) PeriodNs() int64 { return h.periodNs }

// WaitFrame predicts the next frame and sleeps until its wake-up time.
func (h *Headless) WaitFrame(ctx context.Context) (int64, int64, int64, error) {
	s, err := h.timer.Predict()
	if err != nil {
		return 0, 0, 0, err
	}

	if sleepNs := s.WakeUpTimeNs - h.now(); sleepNs > 0 {
		select {
		case <-ctx.Done():
			return 0, 0, 0, ctx.Err()
		case <-time.After(time.Duration(sleepNs)):
		}
	}

	h.timer.MarkPoint(frametiming.PointWakeUp, s.FrameID, h.now())
	h.pending = s

	return s.FrameID, s.PredictedDisplayTimeNs, s.PredictedDisplayPeriodNs, nil
}

func (h *Headless) BeginFrame(frameID int64) error {
	h.timer.MarkPoint(frametiming.PointBegin, frameID, h.now())
	return nil
}

func (h *Headless) LayerBegin(frameID int64, blend compositor.EnvBlendMode) error {
	return nil
}

func (h *Headless) LayerStereoProjection(device compositor.Device, left, right compositor.Swapchain, data compositor.LayerData) error {
	h.layersDrawn.Add(1)
	return nil
}

func (h *Headless) LayerQuad(device compositor.Device, swapchain compositor.Swapchain, data compositor.LayerData) error {
	h.layersDrawn.Add(1)
	return nil
}

// LayerCommit "presents" the frame: it marks the submit point and
// synthesizes the present feedback a display engine would report.
func (h *Headless) LayerCommit(frameID int64) error {
	submitNs := h.now()
	h.timer.MarkPoint(frametiming.PointSubmit, frameID, submitNs)

	s := h.pending

	// Without real scanout, a frame submitted before its deadline
	// presents on time; a late one presents when it arrived.
	actualNs := s.DesiredPresentTimeNs
	if submitNs > actualNs {
		actualNs = submitNs
	}
	marginNs := s.DesiredPresentTimeNs - submitNs
	if marginNs < 0 {
		marginNs = 0
	}

	h.timer.Info(frameID, s.DesiredPresentTimeNs, actualNs, actualNs, marginNs)
	h.framesPresented.Add(1)

	return nil
}

// Stats returns a snapshot of the backend counters.
func (h *Headless) Stats() Stats {
	return Stats{
		FramesPresented: h.framesPresented.Load(),
		LayersDrawn:     h.layersDrawn.Load(),
	}
}
