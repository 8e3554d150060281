package voice

import (
	"github.com/justyntemme/audiograph/pkg/graph"
	"github.com/justyntemme/audiograph/pkg/processor"
)

// ClassSynth is the node class this package's factory builds.
const ClassSynth = "synth"

// DefaultPolyphony is the voice count used when a Factory's Polyphony is
// less than 1. The node's descriptor is not consulted.
const DefaultPolyphony = 8

// Render implements processor.Processor by mixing every active voice
// into the node's single "OUT" port.
func (p *NoteProcessor) Render(ctx *processor.RenderContext) {
	out := ctx.AudioOut("OUT")
	if len(out) == 0 {
		return
	}
	buf := out[0]
	for i := range buf {
		buf[i] = 0
	}
	for _, v := range p.voices {
		if v.IsActive() {
			v.Process(buf)
		}
	}
}

// Factory builds NoteProcessor instances for "synth" class nodes.
type Factory struct {
	Polyphony int
}

// SupportedClasses implements processor.Factory.
func (f Factory) SupportedClasses() []string { return []string{ClassSynth} }

// Create implements processor.Factory.
func (f Factory) Create(n graph.Node, sampleRate float64) (processor.Processor, error) {
	polyphony := f.Polyphony
	if polyphony < 1 {
		polyphony = DefaultPolyphony
	}
	return NewNoteProcessor(sampleRate, polyphony), nil
}
