package dspnodes

import (
	"testing"

	"github.com/justyntemme/audiograph/pkg/processor"
)

func findFactory(t *testing.T, class string) processor.Factory {
	t.Helper()
	for _, f := range Factories() {
		for _, c := range f.SupportedClasses() {
			if c == class {
				return f
			}
		}
	}
	t.Fatalf("no factory registered for class %q", class)
	return nil
}

func TestGainAppliesDbToBuffer(t *testing.T) {
	factory := findFactory(t, ClassGain)
	proc, err := factory.Create(nil, 48000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	in := [][]float32{{1, 1, 1, 1}}
	out := [][]float32{{0, 0, 0, 0}}
	params := map[string][]float32{"GAIN_DB": {0, 0, 0, 0}} // 0 dB = unity

	ctx := processor.NewRenderContext(4, map[string][][]float32{"IN": in}, map[string][][]float32{"OUT": out}, params)
	proc.Render(ctx)

	for i, s := range out[0] {
		if s < 0.99 || s > 1.01 {
			t.Fatalf("out[%d] = %v, want ~1 at 0dB", i, s)
		}
	}
}

func TestMixerBlendsInputs(t *testing.T) {
	factory := findFactory(t, ClassMixer)
	proc, _ := factory.Create(nil, 48000)

	a := [][]float32{{1, 1}}
	b := [][]float32{{-1, -1}}
	out := [][]float32{{0, 0}}
	params := map[string][]float32{"MIX": {0, 1}} // sample0 all A, sample1 all B

	ctx := processor.NewRenderContext(2, map[string][][]float32{"A": a, "B": b}, map[string][][]float32{"OUT": out}, params)
	proc.Render(ctx)

	if out[0][0] != 1 {
		t.Fatalf("out[0] = %v, want 1 (100%% A)", out[0][0])
	}
	if out[0][1] != -1 {
		t.Fatalf("out[1] = %v, want -1 (100%% B)", out[0][1])
	}
}

func TestOscillatorProducesBoundedSamples(t *testing.T) {
	factory := findFactory(t, ClassOscillator)
	proc, _ := factory.Create(nil, 48000)

	out := [][]float32{make([]float32, 64)}
	params := map[string][]float32{"FREQ": make([]float32, 64)}
	for i := range params["FREQ"] {
		params["FREQ"][i] = 440
	}

	ctx := processor.NewRenderContext(64, nil, map[string][][]float32{"OUT": out}, params)
	proc.Render(ctx)

	for i, s := range out[0] {
		if s < -1.0001 || s > 1.0001 {
			t.Fatalf("out[%d] = %v, out of [-1,1] range", i, s)
		}
	}
}

func TestAllBuiltinClassesHaveAFactory(t *testing.T) {
	classes := []string{
		ClassOscillator, ClassGain, ClassMixer, ClassLowPass, ClassDelay,
		ClassCompressor, ClassDistortion, ClassChorus, ClassReverb, ClassPan,
		ClassNoise,
	}
	for _, c := range classes {
		findFactory(t, c)
	}
}

func TestCompressorAttenuatesLoudSignal(t *testing.T) {
	factory := findFactory(t, ClassCompressor)
	proc, err := factory.Create(nil, 48000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const n = 256
	in := make([]float32, n)
	for i := range in {
		in[i] = 1 // well above any reasonable threshold
	}
	out := make([]float32, n)
	params := map[string][]float32{
		"THRESHOLD_DB": {-24},
		"RATIO":        {8},
	}

	ctx := processor.NewRenderContext(n, map[string][][]float32{"IN": {in}}, map[string][][]float32{"OUT": {out}}, params)
	proc.Render(ctx)

	if out[n-1] >= in[n-1] {
		t.Fatalf("out[last] = %v, want attenuated below input %v once the envelope settles", out[n-1], in[n-1])
	}
}

func TestDistortionClipsWithinUnitRange(t *testing.T) {
	factory := findFactory(t, ClassDistortion)
	proc, _ := factory.Create(nil, 48000)

	in := []float32{2, -2, 0.1}
	out := make([]float32, 3)
	params := map[string][]float32{"DRIVE": {10}}

	ctx := processor.NewRenderContext(3, map[string][][]float32{"IN": {in}}, map[string][][]float32{"OUT": {out}}, params)
	proc.Render(ctx)

	// The waveshaper itself soft-clips into [-1,1]; the DC blocker chained
	// after it is a differencing filter and can overshoot that range by a
	// bounded amount on a sharp transition, so the tolerance here is wider
	// than the shaper's own bound.
	for i, s := range out {
		if s < -1.2 || s > 1.2 {
			t.Fatalf("out[%d] = %v, want bounded after soft-clip + DC blocking", i, s)
		}
	}
}

func TestChorusProducesStereoOutput(t *testing.T) {
	factory := findFactory(t, ClassChorus)
	proc, _ := factory.Create(nil, 48000)

	in := make([]float32, 128)
	for i := range in {
		in[i] = 1
	}
	left, right := make([]float32, 128), make([]float32, 128)
	params := map[string][]float32{"RATE_HZ": {1}, "DEPTH_MS": {2}}

	ctx := processor.NewRenderContext(128, map[string][][]float32{"IN": {in}}, map[string][][]float32{"OUT": {left, right}}, params)
	proc.Render(ctx)

	var nonZero bool
	for i := range left {
		if left[i] != 0 || right[i] != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Fatal("chorus produced silence on both channels for a unit input")
	}
}

func TestReverbProducesStereoOutput(t *testing.T) {
	factory := findFactory(t, ClassReverb)
	proc, _ := factory.Create(nil, 48000)

	// Freeverb's comb filters hold samples for 1000+ frames before their
	// first nonzero output, so the impulse needs a long enough buffer for
	// the tail to actually arrive.
	const n = 4096
	in := make([]float32, n)
	in[0] = 1 // impulse
	left, right := make([]float32, n), make([]float32, n)
	params := map[string][]float32{"ROOM_SIZE": {0.8}, "DAMPING": {0.3}}

	ctx := processor.NewRenderContext(n, map[string][][]float32{"IN": {in}}, map[string][][]float32{"OUT": {left, right}}, params)
	proc.Render(ctx)

	var tailEnergy float32
	for i := 2000; i < n; i++ {
		tailEnergy += left[i]*left[i] + right[i]*right[i]
	}
	if tailEnergy == 0 {
		t.Fatal("reverb tail is silent after an impulse")
	}
}

func TestNoiseProducesBoundedNonConstantSamples(t *testing.T) {
	factory := findFactory(t, ClassNoise)
	proc, err := factory.Create(nil, 48000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	out := [][]float32{make([]float32, 256)}
	params := map[string][]float32{"COLOR": {0}} // white noise

	ctx := processor.NewRenderContext(256, nil, map[string][][]float32{"OUT": out}, params)
	proc.Render(ctx)

	var allSame = true
	for i, s := range out[0] {
		if s < -1.0001 || s > 1.0001 {
			t.Fatalf("out[%d] = %v, out of [-1,1] range", i, s)
		}
		if i > 0 && s != out[0][0] {
			allSame = false
		}
	}
	if allSame {
		t.Fatal("noise generator produced a constant buffer")
	}
}

func TestPanHardLeftSilencesRightChannel(t *testing.T) {
	factory := findFactory(t, ClassPan)
	proc, _ := factory.Create(nil, 48000)

	in := []float32{1, 1, 1, 1}
	left, right := make([]float32, 4), make([]float32, 4)
	params := map[string][]float32{"PAN": {-1, -1, -1, -1}}

	ctx := processor.NewRenderContext(4, map[string][][]float32{"IN": {in}}, map[string][][]float32{"OUT": {left, right}}, params)
	proc.Render(ctx)

	for i := range right {
		if right[i] != 0 {
			t.Fatalf("right[%d] = %v, want 0 at hard left pan", i, right[i])
		}
	}
}
