package internal

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Timer is the call contract shared by the adaptive and the fake
// display predictors, letting the render loop run against either.
type Timer interface {
	Predict() (Sample, error)
	MarkPoint(point Point, frameID int64, whenNs int64)
	Info(frameID, desiredPresentTimeNs, actualPresentTimeNs, earliestPresentTimeNs, presentMarginNs int64)
}

var (
	_ Timer = (*DisplayTiming)(nil)
	_ Timer = (*FakeTiming)(nil)
)

// FakeTiming is the degenerate predictor used when no real display
// timing feedback is available. Every Predict is the cold-start guess
// with a fixed 20% app budget; MarkPoint only validates its arguments
// and Info is ignored, since there is nothing to adapt.
type FakeTiming struct {
	periodNs        int64
	presentOffsetNs int64
	appTimeNs       int64

	// Anchor for the period walk. Never advanced by Predict, so two
	// back-to-back calls at the same instant agree on the next slot.
	lastDisplayTimeNs int64

	nextFrameID int64

	now Clock
}

// NewFakeTiming creates a non-adaptive predictor from an estimated
// refresh period.
func NewFakeTiming(estimatedPeriodNs int64, now Clock) (*FakeTiming, error) {
	if estimatedPeriodNs <= 0 {
		return nil, ErrInvalidPeriod
	}
	if now == nil {
		now = MonotonicNow
	}

	ft := &FakeTiming{
		periodNs: estimatedPeriodNs,
		// Just a wild guess.
		presentOffsetNs: 4 * MillisecondNs,
		appTimeNs:       percentOf(estimatedPeriodNs, 20),
		// Make the next display time be in the future.
		lastDisplayTimeNs: now() + 50*MillisecondNs,
		// Start away from zero to catch callers assuming small ids.
		nextFrameID: 5,
		now:         now,
	}

	logrus.WithField("period_ms", float64(estimatedPeriodNs)/1e6).
		Info("created fake display timing")

	return ft, nil
}

func (ft *FakeTiming) predictNextDisplayTime() int64 {
	timeNeededNs := ft.presentOffsetNs + ft.appTimeNs
	nowNs := ft.now()

	predictedNs := ft.lastDisplayTimeNs + ft.periodNs
	for nowNs+timeNeededNs > predictedNs {
		predictedNs += ft.periodNs
	}

	return predictedNs
}

// Predict produces the next frame timing from the fixed budget.
func (ft *FakeTiming) Predict() (Sample, error) {
	frameID := ft.nextFrameID
	ft.nextFrameID++

	displayNs := ft.predictNextDisplayTime()
	desiredNs := displayNs - ft.presentOffsetNs

	return Sample{
		FrameID:                  frameID,
		WakeUpTimeNs:             desiredNs - ft.appTimeNs,
		DesiredPresentTimeNs:     desiredNs,
		PresentSlopNs:            HalfMillisecondNs,
		PredictedDisplayTimeNs:   displayNs,
		PredictedDisplayPeriodNs: ft.periodNs,
		MinDisplayPeriodNs:       ft.periodNs,
	}, nil
}

// MarkPoint only validates the point, to keep callers honest when they
// are wired to the fake.
func (ft *FakeTiming) MarkPoint(point Point, frameID int64, whenNs int64) {
	switch point {
	case PointWakeUp, PointBegin, PointSubmit:
	default:
		panic(fmt.Sprintf("frametiming: unknown timing point %d", point))
	}
}

// Info is a no-op. The caller may feed real feedback here even though
// the fake was selected, and that is fine.
func (ft *FakeTiming) Info(frameID, desiredPresentTimeNs, actualPresentTimeNs, earliestPresentTimeNs, presentMarginNs int64) {
}
