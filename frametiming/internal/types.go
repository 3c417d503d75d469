package internal

import (
	"errors"
	"time"
)

// Timestamps and durations in this package are nanoseconds on the
// monotonic clock, matching what display hardware feedback reports.
const (
	HalfMillisecondNs = int64(time.Millisecond) / 2
	MillisecondNs     = int64(time.Millisecond)
)

// frameState tracks a display frame through its lifecycle.
//
// States only move forward (Predicted → Woke → Began → Submitted →
// Infoed); the only backwards transitions are the explicit discard
// paths back to Cleared/Skipped. A caller driving a frame through the
// wrong order is a bug in the caller, not a runtime condition.
type frameState int

const (
	frameStateSkipped frameState = iota - 1
	frameStateCleared
	frameStatePredicted
	frameStateWoke
	frameStateBegan
	frameStateSubmitted
	frameStateInfoed
)

func (s frameState) String() string {
	switch s {
	case frameStateSkipped:
		return "skipped"
	case frameStateCleared:
		return "cleared"
	case frameStatePredicted:
		return "predicted"
	case frameStateWoke:
		return "woke"
	case frameStateBegan:
		return "began"
	case frameStateSubmitted:
		return "submitted"
	case frameStateInfoed:
		return "infoed"
	default:
		return "unknown"
	}
}

// Point is a timing point the caller marks while producing a frame.
type Point int

const (
	// PointWakeUp is when the frame producer woke up after waiting.
	PointWakeUp Point = iota + 1
	// PointBegin is when the frame producer began rendering work.
	PointBegin
	// PointSubmit is when the finished frame was handed to the display.
	PointSubmit
)

func (p Point) String() string {
	switch p {
	case PointWakeUp:
		return "wake-up"
	case PointBegin:
		return "begin"
	case PointSubmit:
		return "submit"
	default:
		return "unknown"
	}
}

// CollisionPolicy selects what Predict does when the ring slot for the
// new frame id still holds an in-flight frame (the pipeline is deeper
// than the ring, or feedback for old frames never arrived).
type CollisionPolicy int

const (
	// CollisionDropOldest logs a warning, marks the stale record as
	// skipped and reuses its slot. Default.
	CollisionDropOldest CollisionPolicy = iota
	// CollisionStrict makes Predict return ErrSlotOccupied instead,
	// leaving the stale record untouched.
	CollisionStrict
)

var (
	// ErrSlotOccupied is returned by Predict under CollisionStrict when
	// the ring slot for the new frame id still holds an in-flight frame.
	ErrSlotOccupied = errors.New("frame ring slot still occupied by an in-flight frame")

	// ErrNoSample is returned by the render helper's Predict before any
	// timing sample has been received from the display side.
	ErrNoSample = errors.New("no display timing sample received yet")

	// ErrInvalidPeriod is returned when a predictor is created with a
	// non-positive frame period.
	ErrInvalidPeriod = errors.New("frame period must be positive")
)

// Sample is one prediction for an upcoming frame.
type Sample struct {
	// FrameID identifies the frame in later MarkPoint/Info calls.
	FrameID int64

	// WakeUpTimeNs is when the frame producer should start working.
	WakeUpTimeNs int64

	// DesiredPresentTimeNs is when the frame should be handed to the
	// display engine for scanout.
	DesiredPresentTimeNs int64

	// PresentSlopNs is the tolerance within which an actual present
	// still counts as hitting the desired time.
	PresentSlopNs int64

	// PredictedDisplayTimeNs is when the pixels actually light up
	// (desired present plus the scanout offset).
	PredictedDisplayTimeNs int64

	PredictedDisplayPeriodNs int64
	MinDisplayPeriodNs       int64
}

// FrameReport is the completion snapshot for one frame, produced when
// present feedback arrives. Useful for tracing and metrics sinks.
type FrameReport struct {
	FrameID int64

	WhenPredictedNs int64
	WakeUpTimeNs    int64
	WhenWokeNs      int64
	WhenBeganNs     int64
	WhenSubmittedNs int64
	WhenInfoedNs    int64

	DesiredPresentTimeNs  int64
	ActualPresentTimeNs   int64
	EarliestPresentTimeNs int64
	PresentMarginNs       int64

	// CurrentAppTimeNs is the app budget that was in effect when this
	// frame was predicted.
	CurrentAppTimeNs int64

	// SinceLastFrameNs is the desired-present delta to the previously
	// completed frame, zero for the first one.
	SinceLastFrameNs int64

	// Missed is true when the actual present landed more than the slop
	// after the desired present time.
	Missed bool
}

// percentOf returns the given percentage of a nanosecond duration.
func percentOf(ns int64, percent int64) int64 {
	return ns * percent / 100
}

// withinOf reports whether l and r are within rangeNs of each other.
func withinOf(l, r, rangeNs int64) bool {
	d := l - r
	return -rangeNs < d && d < rangeNs
}

func withinHalfMs(l, r int64) bool {
	return withinOf(l, r, HalfMillisecondNs)
}
