// Command graphdemo builds a small audio graph, runs it through the
// Controller, and renders a few blocks on a stand-in render thread,
// playing the role the teacher's examples/* VST3 plugins play: a
// minimal, runnable demonstration of the library rather than a shipped
// host integration.
package main

import (
	"fmt"

	"github.com/justyntemme/audiograph/pkg/bridge"
	"github.com/justyntemme/audiograph/pkg/controller"
	"github.com/justyntemme/audiograph/pkg/dsp"
	"github.com/justyntemme/audiograph/pkg/dsp/analysis"
	"github.com/justyntemme/audiograph/pkg/dsp/buffer"
	"github.com/justyntemme/audiograph/pkg/dspnodes"
	"github.com/justyntemme/audiograph/pkg/framework/debug"
	"github.com/justyntemme/audiograph/pkg/graph"
	"github.com/justyntemme/audiograph/pkg/plan"
	"github.com/justyntemme/audiograph/pkg/processor"
	"github.com/justyntemme/audiograph/pkg/registry"
)

const (
	sampleRate = dsp.SampleRate48k
	blockSize  = dsp.DefaultBufferSize
	numBlocks  = 20
)

func main() {
	debug.SetLevel(debug.LogLevelInfo)

	g := graph.NewGraph()

	osc, err := g.AddNode("osc1", graph.NodeDescriptor{
		Class:        dspnodes.ClassOscillator,
		AudioOutputs: map[string]graph.AudioPortDescriptor{"OUT": {Channels: 1}},
		Params:       map[string]graph.ParamPortDescriptor{"FREQ": {Initial: 220}},
	})
	must(err)

	lpf, err := g.AddNode("lpf1", graph.NodeDescriptor{
		Class:        dspnodes.ClassLowPass,
		AudioInputs:  map[string]graph.AudioPortDescriptor{"IN": {Channels: 1}},
		AudioOutputs: map[string]graph.AudioPortDescriptor{"OUT": {Channels: 1}},
		Params:       map[string]graph.ParamPortDescriptor{"CUTOFF": {Initial: 2000}},
	})
	must(err)

	gainNode, err := g.AddNode("gain1", graph.NodeDescriptor{
		Class:        dspnodes.ClassGain,
		AudioInputs:  map[string]graph.AudioPortDescriptor{"IN": {Channels: 1}},
		AudioOutputs: map[string]graph.AudioPortDescriptor{"OUT": {Channels: 1}},
		Params:       map[string]graph.ParamPortDescriptor{"GAIN_DB": {Initial: -6}},
	})
	must(err)

	must(g.ConnectAudio(graph.AudioOutRef{Node: osc, Port: "OUT"}, lpf, "IN"))
	must(g.ConnectAudio(graph.AudioOutRef{Node: lpf, Port: "OUT"}, gainNode, "IN"))
	must(g.BindOutput(graph.AudioOutRef{Node: gainNode, Port: "OUT"}, "OUT"))

	br := bridge.New(4)
	ctrl := controller.New(br, controller.Config{SampleRate: sampleRate, BlockSize: blockSize})
	for _, f := range dspnodes.Factories() {
		ctrl.RegisterProcessorFactory(f)
	}

	must(ctrl.UpdateGraph(g))
	g.ResetInvalidation()

	p, ok := br.Receive()
	if !ok {
		panic("graphdemo: no plan received from bridge")
	}

	out := buffer.NewWriteAheadBuffer(sampleRate, 1)
	rms := analysis.NewRMSMeter(blockSize * 4)

	for block := 0; block < numBlocks; block++ {
		// A sweeping cutoff, driven from the control thread between
		// render calls — exactly the "writes issued after a plan
		// handoff are visible to subsequent callbacks" guarantee
		// spec.md §5 describes.
		sweep := float32(400 + 3000*float64(block)/float64(numBlocks))
		must(ctrl.SetParamValue(graph.ParamRef{Node: lpf, Port: "CUTOFF"}, sweep))

		// Halfway through, edit the graph and rebuild the plan, the
		// way a host would after the user drags a knob that moves a
		// node's channel count or adds a connection. The render
		// thread swaps in the new plan and hands the old one back
		// over the bridge's return queue; the control thread drains
		// and destroys it in ProcessMessages (spec.md §4.D).
		if block == numBlocks/2 {
			must(g.Invalidate(gainNode))
			must(ctrl.UpdateGraph(g))
			g.ResetInvalidation()

			replacement, ok := br.Receive()
			if !ok {
				panic("graphdemo: no replacement plan received from bridge")
			}
			must(br.Retire(p))
			p = replacement
		}

		renderBlock(ctrl, p, blockSize, out, rms)
		ctrl.ProcessMessages()
	}

	stats := out.GetBufferHealth()
	fmt.Printf("rendered %d blocks (%d samples), rms=%.2f dB, underruns=%d overruns=%d\n",
		numBlocks, numBlocks*blockSize, rms.GetRMSDB(), stats.Underruns, stats.Overruns)
	fmt.Print(ctrl.PerformanceReport())
}

// renderBlock resolves every key in p exactly once per call (never per
// sample) and runs each op in order, mirroring how a real render
// callback would hold onto the reference handles the registries hand
// out rather than re-acquiring them sample by sample.
func renderBlock(ctrl *controller.Controller, p *plan.Plan, numSamples int, out *buffer.WriteAheadBuffer, rms *analysis.RMSMeter) {
	resolve := func(key registry.Key) []float32 {
		buf, ok := ctrl.ResolveBuffer(key)
		if !ok {
			panic(fmt.Sprintf("graphdemo: buffer %v missing from registry", key))
		}
		return buf.Samples
	}

	for _, op := range p.Ops {
		switch {
		case op.Processor != nil:
			runProcessor(ctrl, op.Processor, numSamples, resolve)
		case op.Output != nil:
			samples := make([]float64, numSamples)
			for i, key := range op.Output.Buffers {
				if i > 0 {
					break // this demo only listens to channel 0
				}
				src := resolve(key)
				debug.CheckAudioBuffer(src[:numSamples], "OUT")
				_ = out.Write(src[:numSamples])
				for j, v := range src[:numSamples] {
					samples[j] = float64(v)
				}
			}
			rms.Process(samples)
		}
	}
}

func runProcessor(ctrl *controller.Controller, rp *plan.RenderProcessor, numSamples int, resolve func(registry.Key) []float32) {
	proc, ok := ctrl.ResolveProcessor(rp.Processor)
	if !ok {
		panic("graphdemo: processor missing from registry")
	}

	audioIn := make(map[string][][]float32, len(rp.AudioInputs))
	for port, keys := range rp.AudioInputs {
		channels := make([][]float32, len(keys))
		for i, key := range keys {
			channels[i] = resolve(key)[:numSamples]
		}
		audioIn[port] = channels
	}

	audioOut := make(map[string][][]float32, len(rp.AudioOutputs))
	for port, keys := range rp.AudioOutputs {
		channels := make([][]float32, len(keys))
		for i, key := range keys {
			channels[i] = resolve(key)[:numSamples]
		}
		audioOut[port] = channels
	}

	params := make(map[string][]float32, len(rp.Params))
	for port, rendered := range rp.Params {
		if rendered.FromValue {
			slice := resolve(rendered.Slice)[:numSamples]
			v := rendered.Value.Load()
			for i := range slice {
				slice[i] = v
			}
			params[port] = slice
			continue
		}
		params[port] = resolve(rendered.Source)[:numSamples]
	}

	proc.Render(processor.NewRenderContext(numSamples, audioIn, audioOut, params))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
