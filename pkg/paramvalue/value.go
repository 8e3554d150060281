// Package paramvalue provides the single-cell atomic parameter value
// shared between the control thread (writer) and the render thread
// (reader).
package paramvalue

import (
	"math"
	"sync/atomic"
)

// Value is an atomic floating-point cell holding the current value of
// one parameter. Created with the owning node, destroyed when that node
// is evicted from the node cache.
type Value struct {
	bits atomic.Uint64
}

// New creates a Value initialized to initial.
func New(initial float32) *Value {
	v := &Value{}
	v.Store(initial)
	return v
}

// Load returns the current value. Safe to call concurrently with Store.
func (v *Value) Load() float32 {
	return math.Float32frombits(uint32(v.bits.Load()))
}

// Store sets the current value. Only the control thread calls this.
func (v *Value) Store(value float32) {
	v.bits.Store(uint64(math.Float32bits(value)))
}
