// Package frametiming implements adaptive frame timing prediction for
// display pipelines with hard present deadlines.
//
// Philosophy: "Miss avoidance over throughput."
//
// Design:
//   - Predict/MarkPoint/Info contract shared by all predictors
//   - Feedback-driven app budget (asymmetric AIAD against a margin target)
//   - Monotonic display times, never regressing
//   - Protocol violations panic (caller bugs, not runtime conditions)
//
// See doc.go for the full package overview.
package frametiming

import (
	"github.com/e7canasta/vantage-xr/frametiming/internal"
)

// Sample is re-exported from internal package to avoid import cycles.
// See internal/types.go for full documentation.
type Sample = internal.Sample

// FrameReport is re-exported from internal package to avoid import cycles.
// See internal/types.go for full documentation.
type FrameReport = internal.FrameReport

// HelperSample is re-exported from internal package to avoid import cycles.
type HelperSample = internal.HelperSample

// Point identifies a timing point in a frame's lifecycle.
type Point = internal.Point

// Timing points, in the order a frame passes through them.
const (
	PointWakeUp = internal.PointWakeUp
	PointBegin  = internal.PointBegin
	PointSubmit = internal.PointSubmit
)

// CollisionPolicy selects what Predict does when the frame ring slot
// it needs is still occupied by an in-flight frame.
type CollisionPolicy = internal.CollisionPolicy

const (
	// CollisionDropOldest logs and reuses the slot. Default.
	CollisionDropOldest = internal.CollisionDropOldest
	// CollisionStrict makes Predict return ErrSlotOccupied instead.
	CollisionStrict = internal.CollisionStrict
)

// Sentinel errors, re-exported for errors.Is at the API boundary.
var (
	ErrSlotOccupied  = internal.ErrSlotOccupied
	ErrNoSample      = internal.ErrNoSample
	ErrInvalidPeriod = internal.ErrInvalidPeriod
)

// Timer is the call contract shared by DisplayTiming and FakeTiming.
//
// Lifecycle per frame: Predict() → MarkPoint(WakeUp) →
// MarkPoint(Begin) → MarkPoint(Submit) → Info().
//
// Thread-safety: NOT safe for concurrent use. One Timer serves one
// display and all mutation entry points must be externally serialized
// by the owning loop.
type Timer = internal.Timer

// DisplayTiming is the adaptive per-display predictor.
type DisplayTiming = internal.DisplayTiming

// DisplayConfig holds the tunables of the adaptive predictor.
// See internal/display.go for per-field documentation and defaults.
type DisplayConfig = internal.DisplayConfig

// NewDisplayTiming creates the adaptive predictor for one display.
//
// Returns: error if the configured period is not positive.
func NewDisplayTiming(cfg DisplayConfig) (*DisplayTiming, error) {
	return internal.NewDisplayTiming(cfg)
}

// FakeTiming is the non-adaptive predictor for backends that provide
// no present feedback. Same contract as DisplayTiming; MarkPoint only
// validates and Info is ignored.
type FakeTiming = internal.FakeTiming

// NewFakeTiming creates a fake predictor from an estimated refresh
// period. Pass nil for the clock to use the monotonic default.
func NewFakeTiming(estimatedPeriodNs int64, now Clock) (*FakeTiming, error) {
	return internal.NewFakeTiming(estimatedPeriodNs, now)
}

// RenderHelper is the cheap per-client scheduling primitive: monotonic
// predictions derived from one shared upstream sample, no adaptation.
type RenderHelper = internal.RenderHelper

// NewRenderHelper creates a cleared helper. Predict fails with
// ErrNoSample until NewSample has been called.
func NewRenderHelper() *RenderHelper {
	return internal.NewRenderHelper()
}

// Clock is a monotonic nanosecond clock, injectable for tests.
type Clock = internal.Clock

// MonotonicNow is the process-wide monotonic clock.
func MonotonicNow() int64 {
	return internal.MonotonicNow()
}
