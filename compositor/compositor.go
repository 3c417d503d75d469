// Package compositor implements multi-client layer composition for an
// XR system compositor.
//
// Philosophy: "Most recent wins. A stale frame is dropped, never queued."
//
// See doc.go for the full package overview.
package compositor

import (
	"github.com/sirupsen/logrus"

	"github.com/e7canasta/vantage-xr/compositor/internal"
	"github.com/e7canasta/vantage-xr/frametiming"
)

// System-wide limits.
const (
	MaxClients = internal.MaxClients
	MaxLayers  = internal.MaxLayers
)

// Device is re-exported from internal package to avoid import cycles.
// See internal/layer.go for full documentation.
type Device = internal.Device

// Swapchain is re-exported from internal package to avoid import cycles.
type Swapchain = internal.Swapchain

// LayerKind is the closed set of composable layer types.
type LayerKind = internal.LayerKind

const (
	LayerStereoProjection = internal.LayerStereoProjection
	LayerQuad             = internal.LayerQuad
)

// EnvBlendMode selects how layers blend against the environment.
type EnvBlendMode = internal.EnvBlendMode

const (
	BlendOpaque   = internal.BlendOpaque
	BlendAdditive = internal.BlendAdditive
	BlendAlpha    = internal.BlendAlpha
)

// Pose is re-exported from internal package to avoid import cycles.
type Pose = internal.Pose

// LayerData is re-exported from internal package to avoid import cycles.
type LayerData = internal.LayerData

// LayerEntry is re-exported from internal package to avoid import cycles.
type LayerEntry = internal.LayerEntry

// Event is re-exported from internal package to avoid import cycles.
// See internal/client.go for full documentation.
type Event = internal.Event

// Client is one connected session.
//
// Thread-safety: the frame and layer operations belong to the client's
// own goroutine; the render loop touches only the delivery side. See
// internal/client.go for the full thread model.
type Client = internal.Client

// ClientStats is a snapshot of one client's counters.
type ClientStats = internal.ClientStats

// System holds the client roster and activation state.
//
// Thread-safety: all methods safe for concurrent use.
type System = internal.System

// SystemStats is a roster snapshot.
type SystemStats = internal.SystemStats

// Loop is the per-display render thread.
type Loop = internal.Loop

// LoopStats is a snapshot of the render loop counters.
type LoopStats = internal.LoopStats

// RenderBackend is the real compositor that draws submitted layers.
// See internal/loop.go for the per-method contract.
type RenderBackend = internal.RenderBackend

// Sentinel errors, re-exported for errors.Is at the API boundary.
var (
	ErrTooManyClients = internal.ErrTooManyClients
	ErrTooManyLayers  = internal.ErrTooManyLayers
	ErrBackendFatal   = internal.ErrBackendFatal
)

// NewSystem creates an empty system in the idle (wallpaper) state.
// Pass nil for the clock to use the monotonic default.
func NewSystem(log *logrus.Logger, now frametiming.Clock) *System {
	return internal.NewSystem(log, now)
}

// NewLoop wires a system to a render backend. Run it on its own
// goroutine; it exits on context cancellation or a fatal backend
// error.
func NewLoop(sys *System, backend RenderBackend) *Loop {
	return internal.NewLoop(sys, backend)
}
