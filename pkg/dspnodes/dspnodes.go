// Package dspnodes adapts this engine's stock DSP building blocks —
// oscillators, gain, mixing, filtering, delay — into processor.Factory
// implementations the controller can instantiate by class name.
package dspnodes

import (
	"math"

	"github.com/justyntemme/audiograph/pkg/dsp/delay"
	"github.com/justyntemme/audiograph/pkg/dsp/distortion"
	"github.com/justyntemme/audiograph/pkg/dsp/dynamics"
	"github.com/justyntemme/audiograph/pkg/dsp/filter"
	"github.com/justyntemme/audiograph/pkg/dsp/gain"
	"github.com/justyntemme/audiograph/pkg/dsp/mix"
	"github.com/justyntemme/audiograph/pkg/dsp/modulation"
	"github.com/justyntemme/audiograph/pkg/dsp/oscillator"
	"github.com/justyntemme/audiograph/pkg/dsp/pan"
	"github.com/justyntemme/audiograph/pkg/dsp/reverb"
	"github.com/justyntemme/audiograph/pkg/dsp/utility"
	"github.com/justyntemme/audiograph/pkg/framework/param"
	"github.com/justyntemme/audiograph/pkg/graph"
	"github.com/justyntemme/audiograph/pkg/processor"
)

// Class names the built-in node factories register under.
const (
	ClassOscillator = "oscillator"
	ClassGain       = "gain"
	ClassMixer      = "mixer"
	ClassLowPass    = "lowpass"
	ClassDelay      = "delay"
	ClassCompressor = "compressor"
	ClassDistortion = "distortion"
	ClassChorus     = "chorus"
	ClassReverb     = "reverb"
	ClassPan        = "pan"
	ClassNoise      = "noise"
)

// Factories returns every built-in factory, ready to register with a
// controller in one call.
func Factories() []processor.Factory {
	return []processor.Factory{
		oscillatorFactory{},
		gainFactory{},
		mixerFactory{},
		lowPassFactory{},
		delayFactory{},
		compressorFactory{},
		distortionFactory{},
		chorusFactory{},
		reverbFactory{},
		panFactory{},
		noiseFactory{},
	}
}

// --- oscillator: audio source, no audio input, one "FREQ" parameter ---

type oscillatorProcessor struct {
	osc *oscillator.Oscillator
}

func (p *oscillatorProcessor) Render(ctx *processor.RenderContext) {
	out := ctx.AudioOut("OUT")
	if len(out) == 0 {
		return
	}
	freq := ctx.Param("FREQ")
	buf := out[0]
	for i := range buf {
		if i < len(freq) {
			p.osc.SetFrequency(float64(freq[i]))
		}
		buf[i] = p.osc.Sine()
	}
}

type oscillatorFactory struct{}

func (oscillatorFactory) SupportedClasses() []string { return []string{ClassOscillator} }

func (oscillatorFactory) Create(n graph.Node, sampleRate float64) (processor.Processor, error) {
	return &oscillatorProcessor{osc: oscillator.New(sampleRate)}, nil
}

// --- gain: one audio input, one "GAIN_DB" parameter, audio-rate ---

// gainProcessor smooths GAIN_DB across block boundaries so a UI knob
// move doesn't produce an audible step (zipper noise) at the start of
// the next render call.
type gainProcessor struct {
	smoother *param.Smoother
}

func (p *gainProcessor) Render(ctx *processor.RenderContext) {
	in := ctx.AudioIn("IN")
	out := ctx.AudioOut("OUT")
	db := ctx.Param("GAIN_DB")
	if len(in) == 0 || len(out) == 0 {
		return
	}
	if len(db) > 0 {
		p.smoother.SetTarget(float64(db[0]))
	}

	src, dst := in[0], out[0]
	for i := range dst {
		g := gain.DbToLinear32(float32(p.smoother.Next()))
		if i < len(src) {
			dst[i] = src[i] * g
		}
	}
}

type gainFactory struct{}

func (gainFactory) SupportedClasses() []string { return []string{ClassGain} }

func (gainFactory) Create(n graph.Node, sampleRate float64) (processor.Processor, error) {
	s := param.NewSmoother(param.ExponentialSmoothing, 0.995)
	s.Reset(0)
	return &gainProcessor{smoother: s}, nil
}

// --- mixer: two audio inputs, one "MIX" parameter (0=A, 1=B) ---

type mixerProcessor struct{}

func (mixerProcessor) Render(ctx *processor.RenderContext) {
	a := ctx.AudioIn("A")
	b := ctx.AudioIn("B")
	out := ctx.AudioOut("OUT")
	amount := ctx.Param("MIX")
	if len(a) == 0 || len(b) == 0 || len(out) == 0 {
		return
	}
	dst := out[0]
	for i := range dst {
		m := float32(0.5)
		if i < len(amount) {
			m = amount[i]
		}
		var av, bv float32
		if i < len(a[0]) {
			av = a[0][i]
		}
		if i < len(b[0]) {
			bv = b[0][i]
		}
		dst[i] = mix.DryWet(av, bv, m)
	}
}

type mixerFactory struct{}

func (mixerFactory) SupportedClasses() []string { return []string{ClassMixer} }

func (mixerFactory) Create(n graph.Node, sampleRate float64) (processor.Processor, error) {
	return mixerProcessor{}, nil
}

// --- lowpass: one audio input, one "CUTOFF" parameter (Hz) ---

type lowPassProcessor struct {
	biquad     *filter.Biquad
	sampleRate float64
	smoother   *param.Smoother
	lastCutoff float64
}

func (p *lowPassProcessor) Render(ctx *processor.RenderContext) {
	in := ctx.AudioIn("IN")
	out := ctx.AudioOut("OUT")
	cutoff := ctx.Param("CUTOFF")
	if len(in) == 0 || len(out) == 0 {
		return
	}

	if len(cutoff) > 0 {
		p.smoother.SetTarget(float64(cutoff[0]))
	}
	hz := p.smoother.Next()
	if hz != p.lastCutoff {
		p.lastCutoff = hz
		p.setCutoff(hz)
	}

	copy(out[0], in[0])
	p.biquad.Process(out[0], 0)
}

// setCutoff recomputes coefficients once per changed block rather than
// per sample; audio-rate cutoff modulation would need per-sample
// coefficient recalculation, which this node does not attempt.
func (p *lowPassProcessor) setCutoff(hz float64) {
	if hz <= 0 {
		hz = 20
	}
	omega := 2 * math.Pi * hz / p.sampleRate
	sinOmega, cosOmega := math.Sin(omega), math.Cos(omega)
	q := 0.707
	alpha := sinOmega / (2 * q)

	b0 := (1 - cosOmega) / 2
	b1 := 1 - cosOmega
	b2 := (1 - cosOmega) / 2
	a0 := 1 + alpha
	a1 := -2 * cosOmega
	a2 := 1 - alpha

	p.biquad.SetCoefficients(float32(b0), float32(b1), float32(b2), float32(a0), float32(a1), float32(a2))
}

type lowPassFactory struct{}

func (lowPassFactory) SupportedClasses() []string { return []string{ClassLowPass} }

func (lowPassFactory) Create(n graph.Node, sampleRate float64) (processor.Processor, error) {
	s := param.NewSmoother(param.LogarithmicSmoothing, 256)
	s.Reset(1000)
	p := &lowPassProcessor{biquad: filter.NewBiquad(1), sampleRate: sampleRate, smoother: s, lastCutoff: -1}
	p.setCutoff(1000)
	return p, nil
}

// --- delay: one audio input, "TIME_MS" and "FEEDBACK" parameters ---

type delayProcessor struct {
	line *delay.Line
}

func (p *delayProcessor) Render(ctx *processor.RenderContext) {
	in := ctx.AudioIn("IN")
	out := ctx.AudioOut("OUT")
	timeMs := ctx.Param("TIME_MS")
	feedback := ctx.Param("FEEDBACK")
	if len(in) == 0 || len(out) == 0 {
		return
	}
	src, dst := in[0], out[0]
	for i := range dst {
		t := float32(250)
		if i < len(timeMs) {
			t = timeMs[i]
		}
		fb := float32(0)
		if i < len(feedback) {
			fb = feedback[i]
		}
		wet := p.line.ReadMs(float64(t))
		input := float32(0)
		if i < len(src) {
			input = src[i]
		}
		p.line.Write(input + wet*fb)
		dst[i] = wet
	}
}

type delayFactory struct{}

func (delayFactory) SupportedClasses() []string { return []string{ClassDelay} }

func (delayFactory) Create(n graph.Node, sampleRate float64) (processor.Processor, error) {
	return &delayProcessor{line: delay.New(2.0, sampleRate)}, nil
}

// --- compressor: one audio input, "THRESHOLD_DB" and "RATIO" params ---

type compressorProcessor struct {
	comp *dynamics.Compressor
}

func (p *compressorProcessor) Render(ctx *processor.RenderContext) {
	in := ctx.AudioIn("IN")
	out := ctx.AudioOut("OUT")
	threshold := ctx.Param("THRESHOLD_DB")
	ratio := ctx.Param("RATIO")
	if len(in) == 0 || len(out) == 0 {
		return
	}
	if len(threshold) > 0 {
		p.comp.SetThreshold(float64(threshold[0]))
	}
	if len(ratio) > 0 {
		p.comp.SetRatio(float64(ratio[0]))
	}
	p.comp.ProcessBuffer(in[0], out[0])
}

type compressorFactory struct{}

func (compressorFactory) SupportedClasses() []string { return []string{ClassCompressor} }

func (compressorFactory) Create(n graph.Node, sampleRate float64) (processor.Processor, error) {
	c := dynamics.NewCompressor(sampleRate)
	c.SetThreshold(-18)
	c.SetRatio(4)
	return &compressorProcessor{comp: c}, nil
}

// --- distortion: one audio input, "DRIVE" param ---

type distortionProcessor struct {
	shaper *distortion.Waveshaper
	dc     *utility.DCBlocker
}

// Render drives the waveshaper, then runs its output through a DC
// blocker: asymmetric curves like CurveSoftClip with a nonzero DC
// offset shift the signal's average away from zero, and a downstream
// gain or level meter would read that shift as loudness it isn't.
func (p *distortionProcessor) Render(ctx *processor.RenderContext) {
	in := ctx.AudioIn("IN")
	out := ctx.AudioOut("OUT")
	drive := ctx.Param("DRIVE")
	if len(in) == 0 || len(out) == 0 {
		return
	}
	if len(drive) > 0 {
		p.shaper.SetDrive(float64(drive[0]))
	}
	src, dst := in[0], out[0]
	for i := range dst {
		shaped := float32(p.shaper.Process(float64(src[i])))
		dst[i] = p.dc.Process(shaped, 0)
	}
}

type distortionFactory struct{}

func (distortionFactory) SupportedClasses() []string { return []string{ClassDistortion} }

func (distortionFactory) Create(n graph.Node, sampleRate float64) (processor.Processor, error) {
	s := distortion.NewWaveshaper(distortion.CurveSoftClip)
	s.SetDrive(2)
	return &distortionProcessor{shaper: s, dc: utility.NewDCBlocker(1, 10, sampleRate)}, nil
}

// --- chorus: one mono audio input, a stereo audio output, "RATE_HZ" and
// "DEPTH_MS" params ---

type chorusProcessor struct {
	chorus *modulation.Chorus
}

func (p *chorusProcessor) Render(ctx *processor.RenderContext) {
	in := ctx.AudioIn("IN")
	out := ctx.AudioOut("OUT")
	rate := ctx.Param("RATE_HZ")
	depth := ctx.Param("DEPTH_MS")
	if len(in) == 0 || len(out) < 2 {
		return
	}
	if len(rate) > 0 {
		p.chorus.SetRate(float64(rate[0]))
	}
	if len(depth) > 0 {
		p.chorus.SetDepth(float64(depth[0]))
	}
	p.chorus.ProcessBuffer(in[0], out[0], out[1])
}

type chorusFactory struct{}

func (chorusFactory) SupportedClasses() []string { return []string{ClassChorus} }

func (chorusFactory) Create(n graph.Node, sampleRate float64) (processor.Processor, error) {
	return &chorusProcessor{chorus: modulation.NewChorus(sampleRate)}, nil
}

// --- reverb: one mono audio input, a stereo audio output, "ROOM_SIZE"
// and "DAMPING" params ---

type reverbProcessor struct {
	verb *reverb.Freeverb
}

func (p *reverbProcessor) Render(ctx *processor.RenderContext) {
	in := ctx.AudioIn("IN")
	out := ctx.AudioOut("OUT")
	roomSize := ctx.Param("ROOM_SIZE")
	damping := ctx.Param("DAMPING")
	if len(in) == 0 || len(out) < 2 {
		return
	}
	if len(roomSize) > 0 {
		p.verb.SetRoomSize(float64(roomSize[0]))
	}
	if len(damping) > 0 {
		p.verb.SetDamping(float64(damping[0]))
	}
	src, left, right := in[0], out[0], out[1]
	for i := range left {
		left[i], right[i] = p.verb.ProcessStereo(src[i], src[i])
	}
}

type reverbFactory struct{}

func (reverbFactory) SupportedClasses() []string { return []string{ClassReverb} }

func (reverbFactory) Create(n graph.Node, sampleRate float64) (processor.Processor, error) {
	v := reverb.NewFreeverb(sampleRate)
	v.SetRoomSize(0.5)
	v.SetDamping(0.5)
	return &reverbProcessor{verb: v}, nil
}

// --- pan: one mono audio input, a stereo audio output, "PAN" param
// (-1 = left, 0 = center, 1 = right) ---

type panProcessor struct{}

func (panProcessor) Render(ctx *processor.RenderContext) {
	in := ctx.AudioIn("IN")
	out := ctx.AudioOut("OUT")
	panParam := ctx.Param("PAN")
	if len(in) == 0 || len(out) < 2 {
		return
	}
	position := float32(0)
	if len(panParam) > 0 {
		position = panParam[0]
	}
	pan.Process(in[0], position, pan.ConstantPower, out[0], out[1])
}

type panFactory struct{}

func (panFactory) SupportedClasses() []string { return []string{ClassPan} }

func (panFactory) Create(n graph.Node, sampleRate float64) (processor.Processor, error) {
	return panProcessor{}, nil
}

// --- noise: audio source, no audio input, one "COLOR" parameter
// selecting among the generator's five spectral shapes ---

type noiseProcessor struct {
	gen       *utility.NoiseGenerator
	lastColor int
}

func (p *noiseProcessor) Render(ctx *processor.RenderContext) {
	out := ctx.AudioOut("OUT")
	if len(out) == 0 {
		return
	}
	color := ctx.Param("COLOR")
	if len(color) > 0 {
		if c := clampNoiseType(color[0]); c != p.lastColor {
			p.lastColor = c
			p.gen.SetType(utility.NoiseType(c))
		}
	}
	p.gen.Generate(out[0])
}

// clampNoiseType rounds a control-rate float param onto one of the
// generator's five NoiseType ordinals.
func clampNoiseType(v float32) int {
	c := int(v + 0.5)
	if c < 0 {
		return 0
	}
	if c > int(utility.VioletNoise) {
		return int(utility.VioletNoise)
	}
	return c
}

type noiseFactory struct{}

func (noiseFactory) SupportedClasses() []string { return []string{ClassNoise} }

func (noiseFactory) Create(n graph.Node, sampleRate float64) (processor.Processor, error) {
	return &noiseProcessor{gen: utility.NewNoiseGenerator(utility.WhiteNoise), lastColor: int(utility.WhiteNoise)}, nil
}
