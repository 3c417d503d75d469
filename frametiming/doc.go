// Package frametiming implements adaptive frame timing prediction
// for display pipelines with hard present deadlines.
//
// # Philosophy
//
// "Miss avoidance over throughput. A late frame is worse than a
// shorter app budget."
//
// An XR compositor must hand every frame to the display engine before
// a deadline that repeats at the refresh cadence. The predictor's job
// is to tell the application when to wake up so its frame lands just
// in time: too early wastes latency headroom, too late drops the
// frame. frametiming closes that loop with present feedback.
//
// # Design Principles
//
//  1. Feedback-driven budget: each present outcome nudges the app
//     time budget (additive increase/decrease against a fixed margin
//     target, asymmetric so misses back off faster than hits tighten)
//  2. Monotonic display times: predictions never regress, whatever
//     order feedback arrives in
//  3. Fatal on protocol breaks: out-of-order timing points are caller
//     bugs and panic rather than corrupting the feedback silently
//  4. Operational stats: per-frame reports for drop counters and
//     latency monitoring (not benchmarking)
//
// # Architecture
//
// Three predictors share one call contract (Predict, MarkPoint, Info):
//
//	DisplayTiming  adaptive feedback loop, one per real display
//	FakeTiming     fixed 20% budget, for backends without feedback
//	RenderHelper   per remote client, derives from a shared sample
//
// The compositor loop owns a DisplayTiming (or FakeTiming) for the
// display it drives, and one RenderHelper per connected client fed by
// NewSample broadcasts each real display frame.
//
// # Basic Usage
//
// Driving a display:
//
//	timer, err := frametiming.NewDisplayTiming(frametiming.DisplayConfig{
//	    PeriodNs: int64(16_666_666),
//	})
//	for {
//	    sample, err := timer.Predict()
//	    sleepUntil(sample.WakeUpTimeNs)
//	    timer.MarkPoint(frametiming.PointWakeUp, sample.FrameID, now())
//	    timer.MarkPoint(frametiming.PointBegin, sample.FrameID, now())
//	    render()
//	    timer.MarkPoint(frametiming.PointSubmit, sample.FrameID, now())
//	    // later, when present feedback arrives:
//	    timer.Info(sample.FrameID, desired, actual, earliest, margin)
//	}
package frametiming
