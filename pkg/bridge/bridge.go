// Package bridge carries finished render plans from the control thread
// to the render thread, and retired plans back, over a pair of
// lock-free single-producer/single-consumer queues: the control thread
// never blocks the audio callback, and the audio callback never
// allocates or takes a lock to pick up a new plan or hand back an old
// one.
package bridge

import (
	"code.hybscloud.com/lfq"

	"github.com/justyntemme/audiograph/pkg/plan"
)

// Bridge is a bounded, full-duplex SPSC handoff of render plans.
// Capacity is small on purpose: a plan waiting to be picked up makes
// the previous one stale, so there is never a reason to queue more
// than a couple in either direction.
//
// The forward queue carries MoveRenderPlan traffic from controller to
// renderer. The retired queue carries the same message variant back:
// when the renderer swaps in a new plan, the plan it was holding is no
// longer referenced by anything on the render thread and is handed
// back so the control thread can drain and destroy it, closing out the
// processor and buffer ownership that plan held.
type Bridge struct {
	forward *lfq.SPSC[*plan.Plan]
	retired *lfq.SPSC[*plan.Plan]
}

// New creates a Bridge with room for capacity pending plans in each
// direction.
func New(capacity int) *Bridge {
	return &Bridge{
		forward: lfq.NewSPSC[*plan.Plan](capacity),
		retired: lfq.NewSPSC[*plan.Plan](capacity),
	}
}

// Send enqueues p for the render thread. Called only from the control
// thread. Returns an error (without blocking) if the queue is full,
// meaning the render thread has fallen behind consuming plans.
func (b *Bridge) Send(p *plan.Plan) error {
	return b.forward.Enqueue(&p)
}

// Receive dequeues the next pending plan, if any. Called only from the
// render thread. ok is false if no plan is pending; the render thread
// keeps rendering the previously received plan in that case.
func (b *Bridge) Receive() (p *plan.Plan, ok bool) {
	v, err := b.forward.Dequeue()
	if err != nil {
		return nil, false
	}
	return v, true
}

// Retire hands a superseded plan back to the control thread. Called
// only from the render thread, and only once the renderer has stopped
// reading from p — typically right after Receive returns its
// replacement. Returns an error (without blocking) if the return queue
// is full; the renderer holds onto p and retries on a later callback
// rather than leaking it.
func (b *Bridge) Retire(p *plan.Plan) error {
	return b.retired.Enqueue(&p)
}

// DrainRetired dequeues every plan the render thread has retired since
// the last call and returns them for the caller to drop. Called only
// from the control thread, never blocks, and returns an empty slice
// when nothing is pending.
func (b *Bridge) DrainRetired() []*plan.Plan {
	var drained []*plan.Plan
	for {
		v, err := b.retired.Dequeue()
		if err != nil {
			return drained
		}
		drained = append(drained, v)
	}
}
