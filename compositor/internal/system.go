package internal

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/e7canasta/vantage-xr/frametiming"
)

var (
	// ErrTooManyClients is returned when all client slots are taken.
	ErrTooManyClients = errors.New("client limit reached")

	// ErrTooManyLayers is returned when a layer batch is full.
	ErrTooManyLayers = errors.New("layer limit reached for this frame")
)

// noActiveClient marks the idle/wallpaper state.
const noActiveClient = -1

// SystemStats is a snapshot of the client roster.
type SystemStats struct {
	Clients      int
	ActiveClient uuid.UUID
	HasActive    bool
}

// System holds the client roster and the activation state: which
// session is the primary one and how overlays stack on top of it.
//
// One coarse lock guards the roster and activation, acceptable because
// activation changes on session lifecycle events, not per frame.
type System struct {
	log *logrus.Logger
	now frametiming.Clock

	mu              sync.Mutex
	clients         [MaxClients]*Client
	activeIndex     int
	lastActiveIndex int

	// Cached z-sorted render order, rebuilt on activation or roster
	// changes rather than every frame.
	renderOrder []*Client
	orderDirty  bool
}

// NewSystem creates an empty system in the idle state.
func NewSystem(log *logrus.Logger, now frametiming.Clock) *System {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if now == nil {
		now = frametiming.MonotonicNow
	}
	return &System{
		log:             log,
		now:             now,
		activeIndex:     noActiveClient,
		lastActiveIndex: noActiveClient,
	}
}

// AddClient registers a new session. Overlay clients carry a z-order;
// primary (non-overlay) clients ignore it.
func (sys *System) AddClient(name string, overlay bool, zOrder int64) (*Client, error) {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	slot := -1
	for i := range sys.clients {
		if sys.clients[i] == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, fmt.Errorf("client %q: %w", name, ErrTooManyClients)
	}

	c := &Client{
		id:      uuid.New(),
		name:    name,
		sys:     sys,
		helper:  frametiming.NewRenderHelper(),
		overlay: overlay,
		zOrder:  zOrder,
		events:  make(chan Event, eventQueueDepth),
		now:     sys.now,
	}
	c.log = sys.log.WithFields(logrus.Fields{
		"client":  name,
		"session": c.id,
	})

	sys.clients[slot] = c
	sys.orderDirty = true

	c.log.WithField("overlay", overlay).Info("client connected")

	return c, nil
}

// RemoveClient takes a session off the rendering list and releases its
// slots. Safe to call for an already-removed client.
func (sys *System) RemoveClient(c *Client) {
	sys.mu.Lock()
	found := false
	for i := range sys.clients {
		if sys.clients[i] == c {
			sys.clients[i] = nil
			found = true
		}
	}
	if found {
		sys.orderDirty = true
		close(c.events)
	}
	sys.updateStateLocked()
	sys.mu.Unlock()

	if !found {
		return
	}

	c.clearSlots()
	c.log.Info("client disconnected")
}

func (sys *System) setSessionActive(c *Client, active bool) {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	c.sessionActive = active
	sys.orderDirty = true
	sys.updateStateLocked()
}

func (sys *System) setZOrder(c *Client, z int64) {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	c.zOrder = z
	sys.orderDirty = true
}

// SetActiveClient designates the primary session explicitly, the way
// an external control surface switches between main applications.
func (sys *System) SetActiveClient(c *Client) {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	for i := range sys.clients {
		if sys.clients[i] == c {
			sys.activeIndex = i
			break
		}
	}
	sys.orderDirty = true
	sys.updateStateLocked()
}

// UpdateState reevaluates which client is active and who is visible or
// focused, queueing one event per client whose flags changed. Called
// on session lifecycle changes, never per frame.
func (sys *System) UpdateState() {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	sys.updateStateLocked()
}

func (sys *System) updateStateLocked() {
	// If the designated active client is still active and unchanged
	// there is nothing to reevaluate, and no events to send.
	if sys.activeIndex >= 0 &&
		sys.activeIndex == sys.lastActiveIndex {
		c := sys.clients[sys.activeIndex]
		if c != nil && c.sessionActive {
			return
		}
	}

	// Fall through to the first non-overlay session-active client,
	// or to the idle wallpaper state if there is none.
	fallback := noActiveClient
	for i, c := range sys.clients {
		if c != nil && !c.overlay && c.sessionActive {
			fallback = i
			break
		}
	}

	if !sys.activeIndexValidLocked() {
		sys.activeIndex = fallback
	}

	prevActive := sys.lastActiveIndex
	if sys.activeIndex != prevActive {
		sys.log.WithFields(logrus.Fields{
			"active": sys.activeClientNameLocked(),
		}).Info("active client changed")
	}

	for i, c := range sys.clients {
		if c == nil {
			continue
		}

		cur := sessionFlags{}
		if sys.activeIndex >= 0 {
			// With a primary application present, overlays are
			// always visible; only the primary itself is focused.
			if c.overlay {
				cur.visible = true
			}
			if i == sys.activeIndex {
				cur.visible = true
				cur.focused = true
			}
		}

		c.current = cur
		if c.sent != c.current {
			c.sent = c.current
			c.pushEvent(Event{
				ClientID: c.id,
				Visible:  cur.visible,
				Focused:  cur.focused,
			})
		}
	}

	sys.lastActiveIndex = sys.activeIndex
	sys.orderDirty = true
}

func (sys *System) activeIndexValidLocked() bool {
	if sys.activeIndex < 0 {
		return false
	}
	c := sys.clients[sys.activeIndex]
	return c != nil && !c.overlay && c.sessionActive
}

func (sys *System) activeClientNameLocked() string {
	if sys.activeIndex < 0 {
		return "<idle>"
	}
	if c := sys.clients[sys.activeIndex]; c != nil {
		return c.name
	}
	return "<idle>"
}

// broadcastSample fans the loop's timing sample out to every client's
// helper, under the roster lock.
func (sys *System) broadcastSample(predictNs, extraNs, minPeriodNs int64) {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	for _, c := range sys.clients {
		if c != nil {
			c.newSample(predictNs, extraNs, minPeriodNs)
		}
	}
}

type zEntry struct {
	z      int64
	client *Client
}

// snapshotRenderOrder returns the clients to compose, bottom-most
// first. The active client always renders first regardless of its own
// z-order; session-active overlays follow by ascending z, ties kept in
// roster order.
func (sys *System) snapshotRenderOrder() []*Client {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	if sys.orderDirty {
		entries := make([]zEntry, 0, MaxClients)
		for i, c := range sys.clients {
			if c == nil || !c.sessionActive {
				continue
			}
			switch {
			case i == sys.activeIndex:
				entries = append(entries, zEntry{z: math.MinInt64, client: c})
			case c.overlay:
				entries = append(entries, zEntry{z: c.zOrder, client: c})
			}
		}

		sort.SliceStable(entries, func(a, b int) bool {
			return entries[a].z < entries[b].z
		})

		sys.renderOrder = sys.renderOrder[:0]
		for _, e := range entries {
			sys.renderOrder = append(sys.renderOrder, e.client)
		}
		sys.orderDirty = false
	}

	out := make([]*Client, len(sys.renderOrder))
	copy(out, sys.renderOrder)
	return out
}

// allClients returns every registered client, for slot delivery.
func (sys *System) allClients() []*Client {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	out := make([]*Client, 0, MaxClients)
	for _, c := range sys.clients {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Stats returns a snapshot of the roster state.
func (sys *System) Stats() SystemStats {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	st := SystemStats{}
	for _, c := range sys.clients {
		if c != nil {
			st.Clients++
		}
	}
	if sys.activeIndex >= 0 && sys.clients[sys.activeIndex] != nil {
		st.ActiveClient = sys.clients[sys.activeIndex].id
		st.HasActive = true
	}
	return st
}
