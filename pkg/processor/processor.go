// Package processor defines the contract a render-plan node implements:
// a stateful DSP unit that reads named audio input and parameter ports
// and writes named audio output ports, once per callback, with zero
// allocation.
package processor

import "github.com/justyntemme/audiograph/pkg/graph"

// RenderContext is the per-callback view a Processor renders against.
// Audio ports are addressed by the port ids the node descriptor
// declared, with one buffer per declared channel. A parameter port
// driven by an audio output reads only that output's channel 0.
type RenderContext struct {
	numSamples int

	audioInputs  map[string][][]float32
	audioOutputs map[string][][]float32
	params       map[string][]float32
}

// NewRenderContext builds a context for one render step. Buffers are
// supplied already sized to numSamples; the context performs no
// allocation of its own.
func NewRenderContext(numSamples int, audioInputs, audioOutputs map[string][][]float32, params map[string][]float32) *RenderContext {
	return &RenderContext{
		numSamples:   numSamples,
		audioInputs:  audioInputs,
		audioOutputs: audioOutputs,
		params:       params,
	}
}

// NumSamples returns the block size for this render step.
func (c *RenderContext) NumSamples() int {
	return c.numSamples
}

// AudioIn returns the channel buffers bound to the named input port, or
// nil if the port is not present.
func (c *RenderContext) AudioIn(port string) [][]float32 {
	return c.audioInputs[port]
}

// AudioOut returns the channel buffers bound to the named output port,
// or nil if the port is not present. A processor writes its results
// directly into these slices.
func (c *RenderContext) AudioOut(port string) [][]float32 {
	return c.audioOutputs[port]
}

// Param returns the per-sample values bound to the named parameter
// port, or nil if the port is not present. For an unconnected
// parameter this is the port's current value broadcast across the
// block; for a connected one it is channel 0 of the upstream
// processor's output.
func (c *RenderContext) Param(port string) []float32 {
	return c.params[port]
}

// ClearOutputs zeroes every output buffer, for processors that only
// conditionally write (e.g. a muted voice).
func (c *RenderContext) ClearOutputs() {
	for _, channels := range c.audioOutputs {
		for _, buf := range channels {
			for i := range buf {
				buf[i] = 0
			}
		}
	}
}

// Processor renders one node's audio for one block. Render must not
// allocate and must not block.
type Processor interface {
	Render(ctx *RenderContext)
}

// Factory creates a Processor instance for a node of a class this
// factory supports. Node cache construction looks up a factory by the
// node's descriptor class and fails the update if none supports it.
type Factory interface {
	// SupportedClasses lists the processor class names this factory can
	// construct.
	SupportedClasses() []string

	// Create builds a fresh Processor for node. sampleRate is the
	// engine's fixed sample rate; node carries the node's static
	// descriptor (channel counts, parameter initial values) needed to
	// size internal state.
	Create(node graph.Node, sampleRate float64) (Processor, error)
}

// FactoryFunc adapts a plain function to the Factory interface for
// single-class factories, mirroring the function-adapter idiom used for
// Processor elsewhere in this engine.
type FactoryFunc struct {
	Classes []string
	New     func(node graph.Node, sampleRate float64) (Processor, error)
}

// SupportedClasses implements Factory.
func (f FactoryFunc) SupportedClasses() []string { return f.Classes }

// Create implements Factory.
func (f FactoryFunc) Create(node graph.Node, sampleRate float64) (Processor, error) {
	return f.New(node, sampleRate)
}
