package internal

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// ringSize is the depth of the frame record ring. Must exceed any
// plausible in-flight frame depth; ids are reused modulo this value.
const ringSize = 16

// frameRecord is the bookkeeping for one in-flight display frame.
type frameRecord struct {
	frameID int64
	state   frameState

	whenPredictNs   int64
	wakeUpTimeNs    int64
	whenWokeNs      int64
	whenBeganNs     int64
	whenSubmittedNs int64
	whenInfoedNs    int64

	desiredPresentTimeNs   int64
	predictedDisplayTimeNs int64
	actualPresentTimeNs    int64
	earliestPresentTimeNs  int64
	presentMarginNs        int64

	// App budget in effect when this frame was predicted.
	currentAppTimeNs int64
}

// inFlight reports whether the record still awaits present feedback.
func (f *frameRecord) inFlight() bool {
	return f.state >= frameStatePredicted && f.state < frameStateInfoed
}

// DisplayConfig holds the tunables of the adaptive display predictor.
//
// The adjustment constants are fractions of the frame period. The
// defaults preserve the asymmetric response the predictor was tuned
// with: back off fast on a missed frame (4%), tighten slowly when
// margin allows (2%).
type DisplayConfig struct {
	// PeriodNs is the nominal display refresh period. Required.
	PeriodNs int64

	// PresentOffsetNs is the delay between the present handoff and the
	// pixels actually lighting up. Default 4ms.
	PresentOffsetNs int64

	// MarginNs is the slack the predictor aims to keep between GPU work
	// finishing and the present deadline. Default 1ms.
	MarginNs int64

	// AppTimePercent is the initial app budget as a percentage of the
	// period. Default 10.
	AppTimePercent int64

	// AppTimeMaxPercent caps the app budget. Default 30.
	AppTimeMaxPercent int64

	// AdjustMissedPercent is the budget increase applied after a missed
	// frame. Default 4.
	AdjustMissedPercent int64

	// AdjustNonMissPercent is the budget step (and dead-band) applied
	// when the frame hit but the margin was off target. Default 2.
	AdjustNonMissPercent int64

	// Collision selects the ring reuse policy. Default drop-oldest.
	Collision CollisionPolicy

	// Now is the monotonic clock, defaulting to MonotonicNow.
	Now Clock

	// Logger receives skip/miss traces. Defaults to the standard logger.
	Logger *logrus.Logger

	// OnFrameComplete, when set, receives a FrameReport after every
	// Info call. Must not block; called on the Info caller's goroutine.
	OnFrameComplete func(FrameReport)
}

func (c *DisplayConfig) applyDefaults() error {
	if c.PeriodNs <= 0 {
		return ErrInvalidPeriod
	}
	if c.PresentOffsetNs == 0 {
		c.PresentOffsetNs = 4 * MillisecondNs
	}
	if c.MarginNs == 0 {
		c.MarginNs = MillisecondNs
	}
	if c.AppTimePercent == 0 {
		c.AppTimePercent = 10
	}
	if c.AppTimeMaxPercent == 0 {
		c.AppTimeMaxPercent = 30
	}
	if c.AdjustMissedPercent == 0 {
		c.AdjustMissedPercent = 4
	}
	if c.AdjustNonMissPercent == 0 {
		c.AdjustNonMissPercent = 2
	}
	if c.Now == nil {
		c.Now = MonotonicNow
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return nil
}

// DisplayTiming is the adaptive per-display frame predictor.
//
// It owns the app time budget: every Predict derives wake-up and
// present times from it, and every Info feeds present outcomes back to
// adjust it. The feedback is additive-increase/additive-decrease
// against a fixed margin target, biased to back off faster on misses
// than it tightens on hits.
//
// Not safe for concurrent use; one instance serves one display and all
// mutation entry points must be externally serialized.
type DisplayTiming struct {
	periodNs        int64
	presentOffsetNs int64
	marginNs        int64

	appTimeNs       int64
	appTimeMaxNs    int64
	adjustMissedNs  int64
	adjustNonMissNs int64

	collision  CollisionPolicy
	now        Clock
	log        *logrus.Logger
	onComplete func(FrameReport)

	nextFrameID int64

	// Last desired present time handed out, so returned display times
	// never regress even when feedback arrives in odd orders.
	lastDesiredNs int64

	frames [ringSize]frameRecord
}

// NewDisplayTiming creates an adaptive predictor for a display with the
// given configuration.
func NewDisplayTiming(cfg DisplayConfig) (*DisplayTiming, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	dt := &DisplayTiming{
		periodNs:        cfg.PeriodNs,
		presentOffsetNs: cfg.PresentOffsetNs,
		marginNs:        cfg.MarginNs,
		appTimeNs:       percentOf(cfg.PeriodNs, cfg.AppTimePercent),
		appTimeMaxNs:    percentOf(cfg.PeriodNs, cfg.AppTimeMaxPercent),
		adjustMissedNs:  percentOf(cfg.PeriodNs, cfg.AdjustMissedPercent),
		adjustNonMissNs: percentOf(cfg.PeriodNs, cfg.AdjustNonMissPercent),
		collision:       cfg.Collision,
		now:             cfg.Now,
		log:             cfg.Logger,
		onComplete:      cfg.OnFrameComplete,
	}

	dt.log.WithField("period_ms", float64(cfg.PeriodNs)/1e6).
		Debug("created display timing")

	return dt, nil
}

// AppTimeNs returns the current app budget. Exposed for stats.
func (dt *DisplayTiming) AppTimeNs() int64 { return dt.appTimeNs }

// totalAppTimeNs is the full span reserved before a present: the app
// budget plus the safety margin.
func (dt *DisplayTiming) totalAppTimeNs() int64 {
	return dt.appTimeNs + dt.marginNs
}

func (dt *DisplayTiming) getFrame(frameID int64) *frameRecord {
	if frameID < 0 {
		panic(fmt.Sprintf("frametiming: negative frame id %d", frameID))
	}
	return &dt.frames[frameID%ringSize]
}

// createFrame allocates the ring slot for the next frame id, applying
// the collision policy if the slot still holds an in-flight record.
func (dt *DisplayTiming) createFrame() (*frameRecord, error) {
	f := dt.getFrame(dt.nextFrameID)
	if f.inFlight() {
		if dt.collision == CollisionStrict {
			return nil, fmt.Errorf("frame %d (slot %d): %w",
				dt.nextFrameID, dt.nextFrameID%ringSize, ErrSlotOccupied)
		}
		dt.log.WithFields(logrus.Fields{
			"stale_frame_id": f.frameID,
			"stale_state":    f.state.String(),
			"new_frame_id":   dt.nextFrameID,
		}).Warn("frame ring slot still in flight, dropping oldest")
	}

	*f = frameRecord{
		frameID: dt.nextFrameID,
		state:   frameStatePredicted,
	}
	dt.nextFrameID++

	return f, nil
}

// latestWithStateAtLeast scans backwards from the newest frame for the
// most recent record that has reached at least the given state.
func (dt *DisplayTiming) latestWithStateAtLeast(state frameState) *frameRecord {
	for count := int64(1); count <= dt.nextFrameID && count <= ringSize; count++ {
		f := dt.getFrame(dt.nextFrameID - count)
		if f.state >= state {
			return f
		}
	}
	return nil
}

// walkForward steps whole periods from the last known present time
// until the candidate leaves enough room for the app to make it.
func (dt *DisplayTiming) walkForward(lastPresentTimeNs int64) int64 {
	nowNs := dt.now()
	fromNs := nowNs + dt.totalAppTimeNs()

	desiredNs := lastPresentTimeNs + dt.periodNs
	for desiredNs <= fromNs {
		dt.log.WithFields(logrus.Fields{
			"desired_present_ns": desiredNs,
			"needed_by_ns":       fromNs,
			"behind_ms":          float64(fromNs-desiredNs) / 1e6,
		}).Debug("skipped a frame period")

		desiredNs += dt.periodNs
	}

	return desiredNs
}

// Predict produces the timing for the next frame.
//
// Three regimes:
//   - cold start: nothing predicted yet, take a wild guess well in the
//     future so the pipeline can settle;
//   - pipeline ran dry: the newest predicted frame already completed,
//     which usually means a missed frame, so walk forward from its
//     earliest possible present;
//   - steady state: project the latest feedback ahead by the number of
//     frames predicted since it, then walk forward from there.
func (dt *DisplayTiming) Predict() (Sample, error) {
	lastPredicted := dt.latestWithStateAtLeast(frameStatePredicted)
	lastCompleted := dt.latestWithStateAtLeast(frameStateInfoed)

	nowNs := dt.now()
	var desiredNs int64

	switch {
	case lastPredicted == nil && lastCompleted == nil:
		// Wild shot in the dark.
		desiredNs = nowNs + dt.periodNs*10

	case lastPredicted == lastCompleted:
		// Pipeline ran dry, very likely a missed frame.
		desiredNs = dt.walkForward(lastCompleted.earliestPresentTimeNs)

	case lastCompleted != nil:
		diffID := lastPredicted.frameID - lastCompleted.frameID
		adjustedNs := lastCompleted.earliestPresentTimeNs + diffID*dt.periodNs

		if diffID > 1 {
			dt.log.WithFields(logrus.Fields{
				"frames_ahead":     diffID,
				"adjusted_from_ns": adjustedNs,
			}).Debug("multiple frames in flight past last feedback")
		}

		desiredNs = dt.walkForward(adjustedNs)

	default:
		// Predictions outstanding but no feedback at all yet.
		desiredNs = dt.walkForward(lastPredicted.predictedDisplayTimeNs)
	}

	// Returned display times must never regress, whatever the feedback
	// said. Clamp forward and note it; see the clock policy in DESIGN.
	for desiredNs <= dt.lastDesiredNs {
		dt.log.WithFields(logrus.Fields{
			"desired_present_ns": desiredNs,
			"last_returned_ns":   dt.lastDesiredNs,
		}).Debug("clamping non-monotonic present time forward")
		desiredNs += dt.periodNs
	}

	f, err := dt.createFrame()
	if err != nil {
		return Sample{}, err
	}

	f.whenPredictNs = nowNs
	f.desiredPresentTimeNs = desiredNs
	f.predictedDisplayTimeNs = desiredNs + dt.presentOffsetNs
	f.wakeUpTimeNs = desiredNs - dt.totalAppTimeNs()
	f.currentAppTimeNs = dt.appTimeNs

	dt.lastDesiredNs = desiredNs

	return Sample{
		FrameID:                  f.frameID,
		WakeUpTimeNs:             f.wakeUpTimeNs,
		DesiredPresentTimeNs:     f.desiredPresentTimeNs,
		PresentSlopNs:            HalfMillisecondNs,
		PredictedDisplayTimeNs:   f.predictedDisplayTimeNs,
		PredictedDisplayPeriodNs: dt.periodNs,
		MinDisplayPeriodNs:       dt.periodNs,
	}, nil
}

// MarkPoint records that the frame reached a timing point.
//
// Points must arrive strictly in order (wake-up, begin, submit); a call
// out of order means the caller broke the frame protocol and panics,
// because continuing would silently corrupt the timing feedback.
func (dt *DisplayTiming) MarkPoint(point Point, frameID int64, whenNs int64) {
	f := dt.getFrame(frameID)
	if f.frameID != frameID {
		panic(fmt.Sprintf("frametiming: mark %s for unknown frame %d (slot holds %d)",
			point, frameID, f.frameID))
	}

	switch point {
	case PointWakeUp:
		f.mustBeIn(frameStatePredicted, point)
		f.whenWokeNs = whenNs
		f.state = frameStateWoke
	case PointBegin:
		f.mustBeIn(frameStateWoke, point)
		f.whenBeganNs = whenNs
		f.state = frameStateBegan
	case PointSubmit:
		f.mustBeIn(frameStateBegan, point)
		f.whenSubmittedNs = whenNs
		f.state = frameStateSubmitted
	default:
		panic(fmt.Sprintf("frametiming: unknown timing point %d", point))
	}
}

func (f *frameRecord) mustBeIn(want frameState, point Point) {
	if f.state != want {
		panic(fmt.Sprintf("frametiming: frame %d marked %s while %s (want %s)",
			f.frameID, point, f.state, want))
	}
}

// Info feeds present feedback for a submitted frame back into the
// predictor and runs the budget adaptation.
func (dt *DisplayTiming) Info(frameID, desiredPresentTimeNs, actualPresentTimeNs, earliestPresentTimeNs, presentMarginNs int64) {
	last := dt.latestWithStateAtLeast(frameStateInfoed)

	f := dt.getFrame(frameID)
	if f.frameID != frameID {
		panic(fmt.Sprintf("frametiming: info for unknown frame %d (slot holds %d)",
			frameID, f.frameID))
	}
	if f.state != frameStateSubmitted {
		panic(fmt.Sprintf("frametiming: info for frame %d while %s (want submitted)",
			frameID, f.state))
	}

	f.whenInfoedNs = dt.now()
	f.actualPresentTimeNs = actualPresentTimeNs
	f.earliestPresentTimeNs = earliestPresentTimeNs
	f.presentMarginNs = presentMarginNs
	f.state = frameStateInfoed

	var sinceLastNs int64
	if last != nil {
		sinceLastNs = f.desiredPresentTimeNs - last.desiredPresentTimeNs
	}

	missed := dt.adjustAppTime(f)

	if dt.onComplete != nil {
		dt.onComplete(FrameReport{
			FrameID:               f.frameID,
			WhenPredictedNs:       f.whenPredictNs,
			WakeUpTimeNs:          f.wakeUpTimeNs,
			WhenWokeNs:            f.whenWokeNs,
			WhenBeganNs:           f.whenBeganNs,
			WhenSubmittedNs:       f.whenSubmittedNs,
			WhenInfoedNs:          f.whenInfoedNs,
			DesiredPresentTimeNs:  f.desiredPresentTimeNs,
			ActualPresentTimeNs:   f.actualPresentTimeNs,
			EarliestPresentTimeNs: f.earliestPresentTimeNs,
			PresentMarginNs:       f.presentMarginNs,
			CurrentAppTimeNs:      f.currentAppTimeNs,
			SinceLastFrameNs:      sinceLastNs,
			Missed:                missed,
		})
	}
}

// adjustAppTime is the budget feedback step, returning whether the
// frame counted as missed.
//
// Missed frames get the large asymmetric bump and nothing else this
// cycle. Hit frames nudge the budget so the observed present margin
// converges on the target, with a dead-band to avoid oscillating.
func (dt *DisplayTiming) adjustAppTime(f *frameRecord) bool {
	if f.actualPresentTimeNs > f.desiredPresentTimeNs &&
		!withinHalfMs(f.actualPresentTimeNs, f.desiredPresentTimeNs) {
		missedByMs := float64(f.actualPresentTimeNs-f.desiredPresentTimeNs) / 1e6
		dt.log.WithFields(logrus.Fields{
			"frame_id":  f.frameID,
			"missed_ms": missedByMs,
		}).Warn("frame missed its present deadline")

		dt.appTimeNs += dt.adjustMissedNs
		if dt.appTimeNs > dt.appTimeMaxNs {
			dt.appTimeNs = dt.appTimeMaxNs
		}
		return true
	}

	// We want the GPU work to end marginNs before the present.
	if withinOf(f.presentMarginNs, dt.marginNs, dt.adjustNonMissNs) {
		return false
	}

	if f.presentMarginNs > dt.marginNs {
		// More slack than needed, wake the app later.
		dt.appTimeNs -= dt.adjustNonMissNs
		if dt.appTimeNs < 0 {
			dt.appTimeNs = 0
		}
	} else {
		// Cutting it close, wake the app earlier.
		dt.appTimeNs += dt.adjustNonMissNs
		if dt.appTimeNs > dt.appTimeMaxNs {
			dt.appTimeNs = dt.appTimeMaxNs
		}
	}
	return false
}
