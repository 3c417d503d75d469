// Package compositor implements multi-client layer composition for an
// XR system compositor.
//
// # Philosophy
//
// "Most recent wins. A stale frame is dropped, never queued."
//
// Each client submits layer batches against predicted display times.
// Batches move through a per-client triple buffer (progress,
// scheduled, delivered); a newer commit overwrites a not-yet-due
// scheduled batch, so the display only ever shows the freshest content
// a client produced, and a stalled client can never block the render
// loop or its neighbours.
//
// # Architecture
//
//	clients (one goroutine each)          render loop (one goroutine)
//	  WaitFrame/BeginFrame                  WaitFrame on the backend
//	  BeginLayerBatch/AppendLayer           broadcast timing samples
//	  CommitLayerBatch → scheduled →        DeliverIfDue → delivered
//	                                        z-sorted submit, commit
//
// The System tracks the roster and which client is the primary
// (active) session; overlays stack on top of it by z-order, and
// visibility/focus changes reach clients as queued events rather than
// polls. The Loop paces on the RenderBackend's wait-frame signal and
// walks every client's delivered batch each display period.
//
// # Locking
//
// Three locks, all short-held: the per-client slot lock (slot moves,
// O(memcpy)), the per-client timing lock (helper calls), and one
// coarse system lock for the roster and activation state (session
// lifecycle only, never per frame).
//
// # Basic Usage
//
//	sys := compositor.NewSystem(log, nil)
//	loop := compositor.NewLoop(sys, backend)
//	go loop.Run(ctx)
//
//	client, _ := sys.AddClient("game", false, 0)
//	client.BeginSession()
//	for {
//	    s, _ := client.WaitFrame(ctx)
//	    client.BeginFrame(s.FrameID)
//	    client.BeginLayerBatch(compositor.BlendOpaque)
//	    client.AppendLayer(layer)
//	    client.CommitLayerBatch(s.FrameID, s.PredictedDisplayTimeNs)
//	}
package compositor
