package internal

import "fmt"

const (
	// MaxClients is the system-wide client limit.
	MaxClients = 64

	// MaxLayers is the per-client layer limit for one frame.
	MaxLayers = 16

	// maxSwapchainsPerLayer covers the largest layer kind, stereo
	// projection with optional depth.
	maxSwapchainsPerLayer = 4
)

// Device is an opaque pose/device handle. The compositor only checks
// it for nil and passes it through to the render backend.
type Device interface {
	Name() string
}

// Swapchain is an opaque swapchain-image handle, treated the same way
// as Device.
type Swapchain interface {
	Name() string
}

// LayerKind is the closed set of layer types the compositor composes.
type LayerKind int

const (
	LayerStereoProjection LayerKind = iota
	LayerQuad
)

func (k LayerKind) String() string {
	switch k {
	case LayerStereoProjection:
		return "stereo_projection"
	case LayerQuad:
		return "quad"
	default:
		return fmt.Sprintf("LayerKind(%d)", int(k))
	}
}

// EnvBlendMode selects how layers blend against the environment.
type EnvBlendMode int

const (
	BlendOpaque EnvBlendMode = iota
	BlendAdditive
	BlendAlpha
)

// Pose is an orientation quaternion plus a position, the transform
// carried by every layer.
type Pose struct {
	Orientation [4]float32
	Position    [3]float32
}

// LayerData is the trivially-copyable per-layer blob: the kind tag
// plus the fields that kind needs. Copied by value through the slot
// pipeline, never shared.
type LayerData struct {
	Kind LayerKind

	Flags          uint64
	VisibilityMask uint64

	Pose Pose

	// Quad extent in meters. Ignored for projection layers.
	Size [2]float32
}

// LayerEntry is one submitted layer: opaque references plus the data
// blob. Index order within a slot is submission order and meaningful
// for blending.
type LayerEntry struct {
	Device     Device
	Swapchains [maxSwapchainsPerLayer]Swapchain
	Data       LayerData
}
