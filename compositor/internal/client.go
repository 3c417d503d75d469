package internal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/e7canasta/vantage-xr/frametiming"
)

// eventQueueDepth bounds the per-client event queue. Events are
// dropped oldest-first on overflow; a slow consumer only loses its own
// stale notifications, never blocks the render loop.
const eventQueueDepth = 16

// Event tells a client its session visibility or focus changed.
type Event struct {
	ClientID uuid.UUID
	Visible  bool
	Focused  bool
}

type sessionFlags struct {
	visible bool
	focused bool
}

// ClientStats is a snapshot of one client's counters.
type ClientStats struct {
	// BatchesCommitted counts layer batches the client committed.
	BatchesCommitted uint64

	// BatchesDelivered counts batches promoted to the delivered slot.
	// Committed minus delivered is the most-recent-wins overwrite
	// count plus whatever is still scheduled.
	BatchesDelivered uint64

	// EventsDropped counts state-change events lost to a full queue.
	EventsDropped uint64
}

// Client is one connected session: its layer slot triad, its render
// timing helper, and its visibility/focus bookkeeping.
//
// Thread model:
//   - the client's own goroutine calls the frame and layer operations
//   - the render loop calls NewSample, DeliverIfDue and delivered()
//   - the slot lock is held only for the duration of a slot move
type Client struct {
	id   uuid.UUID
	name string
	sys  *System

	// Serializes the helper between the client goroutine and the
	// render loop's sample broadcast.
	timingMu sync.Mutex
	helper   *frametiming.RenderHelper

	slotMu    sync.Mutex
	progress  layerSlot
	scheduled layerSlot

	// Render-thread-owned, no lock. Only DeliverIfDue writes it and
	// only the render loop reads it, both on the render goroutine.
	deliveredSlot layerSlot

	// Session state, guarded by the system lock.
	overlay       bool
	zOrder        int64
	sessionActive bool
	sent, current sessionFlags

	events chan Event

	batchesCommitted atomic.Uint64
	batchesDelivered atomic.Uint64
	eventsDropped    atomic.Uint64

	log *logrus.Entry
	now frametiming.Clock
}

// ID returns the client's session id.
func (c *Client) ID() uuid.UUID { return c.id }

// Name returns the client's debug name.
func (c *Client) Name() string { return c.name }

// Events returns the client's state-change queue. One event per
// transition; dropped oldest-first if the client does not read.
func (c *Client) Events() <-chan Event { return c.events }

func (c *Client) pushEvent(ev Event) {
	for {
		select {
		case c.events <- ev:
			return
		default:
		}
		// Full. Drop the oldest and retry; the latest state wins.
		select {
		case <-c.events:
			c.eventsDropped.Add(1)
		default:
		}
	}
}

// newSample refreshes the client's helper from the loop's broadcast.
func (c *Client) newSample(predictNs, extraNs, minPeriodNs int64) {
	c.timingMu.Lock()
	defer c.timingMu.Unlock()
	c.helper.NewSample(predictNs, extraNs, minPeriodNs)
}

// PredictFrame asks for the client's next frame timing without
// sleeping. Fails with frametiming.ErrNoSample before the render loop
// has broadcast its first sample.
func (c *Client) PredictFrame() (frametiming.Sample, error) {
	c.timingMu.Lock()
	defer c.timingMu.Unlock()
	return c.helper.Predict(c.now())
}

// WaitFrame predicts the next frame and blocks until its wake-up time.
// Returns early with ctx.Err() on cancellation; the predicted frame is
// discarded in that case so its slot is free for reuse.
func (c *Client) WaitFrame(ctx context.Context) (frametiming.Sample, error) {
	s, err := c.PredictFrame()
	if err != nil {
		return frametiming.Sample{}, err
	}

	if sleepNs := s.WakeUpTimeNs - c.now(); sleepNs > 0 {
		select {
		case <-ctx.Done():
			c.timingMu.Lock()
			c.helper.MarkWaitWoke(s.FrameID, c.now())
			c.helper.MarkDiscarded(s.FrameID, c.now())
			c.timingMu.Unlock()
			return frametiming.Sample{}, ctx.Err()
		case <-time.After(time.Duration(sleepNs)):
		}
	}

	c.timingMu.Lock()
	c.helper.MarkWaitWoke(s.FrameID, c.now())
	c.timingMu.Unlock()

	return s, nil
}

// BeginFrame marks the client as rendering its frame.
func (c *Client) BeginFrame(frameID int64) {
	c.timingMu.Lock()
	defer c.timingMu.Unlock()
	c.helper.MarkBegin(frameID, c.now())
}

// DiscardFrame releases a frame the client will not deliver.
func (c *Client) DiscardFrame(frameID int64) {
	c.timingMu.Lock()
	defer c.timingMu.Unlock()
	c.helper.MarkDiscarded(frameID, c.now())
}

// BeginLayerBatch starts a fresh layer batch in the progress slot,
// discarding anything a previous unfinished batch left there.
func (c *Client) BeginLayerBatch(blend EnvBlendMode) {
	c.slotMu.Lock()
	defer c.slotMu.Unlock()

	c.progress.clear()
	c.progress.active = true
	c.progress.blendMode = blend
}

// AppendLayer adds one layer to the open batch. Calling it without an
// open batch is a protocol violation and panics.
func (c *Client) AppendLayer(entry LayerEntry) error {
	c.slotMu.Lock()
	defer c.slotMu.Unlock()

	if !c.progress.active {
		panic(fmt.Sprintf("compositor: client %s appended a layer with no open batch", c.name))
	}
	if len(c.progress.layers) >= MaxLayers {
		return fmt.Errorf("client %s: %w", c.name, ErrTooManyLayers)
	}

	c.progress.layers = append(c.progress.layers, entry)
	return nil
}

// CommitLayerBatch closes the batch and schedules it for the given
// display time, replacing any not-yet-delivered batch. Most recent
// wins; nothing queues behind it.
func (c *Client) CommitLayerBatch(frameID int64, displayTimeNs int64) {
	c.slotMu.Lock()
	if !c.progress.active {
		c.slotMu.Unlock()
		panic(fmt.Sprintf("compositor: client %s committed with no open batch", c.name))
	}

	moveAndClear(&c.scheduled, &c.progress)
	c.scheduled.displayTimeNs = displayTimeNs
	c.slotMu.Unlock()

	c.batchesCommitted.Add(1)

	c.timingMu.Lock()
	c.helper.MarkDelivered(frameID, c.now())
	c.timingMu.Unlock()
}

// DeliverIfDue promotes the scheduled batch to delivered if its target
// display time has arrived. Render loop only. Returns whether a
// promotion happened.
func (c *Client) DeliverIfDue(displayTimeNs int64) bool {
	c.slotMu.Lock()
	defer c.slotMu.Unlock()

	if !c.scheduled.active {
		return false
	}
	if !greaterOrWithinHalfMs(displayTimeNs, c.scheduled.displayTimeNs) {
		return false
	}

	moveAndClear(&c.deliveredSlot, &c.scheduled)
	c.batchesDelivered.Add(1)
	return true
}

// delivered returns the render-thread-owned slot. Render loop only.
func (c *Client) delivered() *layerSlot {
	return &c.deliveredSlot
}

// clearSlots empties the client-side slots when the client leaves the
/// rendering list. The delivered slot stays untouched: it belongs to
// the render goroutine, which may be reading it for one last composed
// frame, and the whole client is unreachable once that frame is done.
func (c *Client) clearSlots() {
	c.slotMu.Lock()
	defer c.slotMu.Unlock()
	c.progress.clear()
	c.scheduled.clear()
}

// BeginSession marks the session active and reevaluates activation.
func (c *Client) BeginSession() {
	c.sys.setSessionActive(c, true)
}

// EndSession marks the session inactive and reevaluates activation.
func (c *Client) EndSession() {
	c.sys.setSessionActive(c, false)
}

// SetZOrder changes the client's stacking position among overlays.
func (c *Client) SetZOrder(z int64) {
	c.sys.setZOrder(c, z)
}

// Stats returns a snapshot of the client's counters. Safe for
// concurrent use.
func (c *Client) Stats() ClientStats {
	return ClientStats{
		BatchesCommitted: c.batchesCommitted.Load(),
		BatchesDelivered: c.batchesDelivered.Load(),
		EventsDropped:    c.eventsDropped.Load(),
	}
}

func (c *Client) logEntry() *logrus.Entry {
	return c.log
}
