// Package plan defines the render plan handed from the control thread to
// the render thread: a flat, already-ordered sequence of operations.
// Processors and buffers are named by registry keys, which the renderer
// resolves against the controller's registries; an unconnected
// parameter port carries its atomic value directly.
package plan

import "github.com/justyntemme/audiograph/pkg/registry"

// Buffer is one block of interleaved-mono audio samples, sized to the
// engine's fixed block size.
type Buffer struct {
	Samples []float32
}

// NewBuffer allocates a zeroed buffer of the given block size.
func NewBuffer(size int) *Buffer {
	return &Buffer{Samples: make([]float32, size)}
}

// Clear zeroes the buffer in place for reuse.
func (b *Buffer) Clear() {
	for i := range b.Samples {
		b.Samples[i] = 0
	}
}

// ParamRenderPort is how a render op reaches a parameter's per-sample
// values: either a constant-rate atomic Value (unconnected parameters,
// one slot-filled slice buffer) or a full audio-rate buffer from an
// upstream processor.
type ParamRenderPort struct {
	// Value is set when the parameter is unconnected: the render thread
	// reads the current atomic value and fills Slice before handing it
	// to the processor, so every parameter port always looks like a
	// buffer to processor code.
	Value ParamValue
	Slice registry.Key // buffer key, valid when Value != nil

	// Source is set when the parameter is connected: the render thread
	// reads the upstream processor's channel-0 output buffer directly.
	Source registry.Key
	FromValue bool // true selects Value/Slice, false selects Source
}

// ParamValue is the minimal surface plan needs from pkg/paramvalue,
// expressed as an interface so this package does not import the atomic
// cell's concrete type and stays a pure data-shape definition.
type ParamValue interface {
	Load() float32
}

// NewValuePort builds a ParamRenderPort fed by an unconnected parameter's
// atomic value through the given slice buffer key.
func NewValuePort(value ParamValue, slice registry.Key) ParamRenderPort {
	return ParamRenderPort{Value: value, Slice: slice, FromValue: true}
}

// NewSourcePort builds a ParamRenderPort fed directly by an upstream
// processor's output buffer.
func NewSourcePort(source registry.Key) ParamRenderPort {
	return ParamRenderPort{Source: source, FromValue: false}
}

// RenderOp is one step of a render plan. Exactly one of RenderProcessor
// or RenderOutput is set.
type RenderOp struct {
	Processor *RenderProcessor
	Output    *RenderOutput
}

// RenderProcessor renders one node: run the processor against resolved
// audio input buffers and parameter ports, writing into resolved audio
// output buffers.
type RenderProcessor struct {
	Processor registry.Key

	// AudioInputs maps input port id to the buffer(s) carrying that
	// port's channels, in channel order.
	AudioInputs map[string][]registry.Key

	// AudioOutputs maps output port id to the buffer(s) this node owns
	// for that port's channels, in channel order.
	AudioOutputs map[string][]registry.Key

	// Params maps parameter port id to its resolved render port.
	Params map[string]ParamRenderPort
}

// RenderOutput copies a bound graph output to the host-visible alias
// slot the external interface reads per callback.
type RenderOutput struct {
	Alias   string
	Buffers []registry.Key
}

// Plan is the full sequence of operations the render thread executes in
// order, once, per audio callback. Consuming it start to finish produces
// every bound output and leaves no operation half-applied.
type Plan struct {
	Ops []RenderOp
}
