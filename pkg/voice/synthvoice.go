// Package voice adapts the engine's polyphonic voice allocator into a
// node processor: a "synth" node owns a fixed pool of voices built once
// and reused across every render and every node-cache rebuild, exactly
// like a real synthesizer keeps its oscillators alive across parameter
// changes instead of rebuilding them from scratch.
package voice

import (
	"math"

	"github.com/justyntemme/audiograph/pkg/framework/voice"
	"github.com/justyntemme/audiograph/pkg/midi"
)

// synthVoice is a single oscillator-plus-envelope voice satisfying
// voice.Voice. Amplitude decays linearly after release rather than
// implementing a full ADSR, since the engine's voice allocator only
// needs IsActive/GetAmplitude/GetAge to make its decisions — the
// envelope shape itself is this node's business, not the allocator's.
type synthVoice struct {
	sampleRate float64
	phase      float64
	note       uint8
	velocity   uint8
	amplitude  float64
	releasing  bool
	age        int64
}

func newSynthVoice(sampleRate float64) *synthVoice {
	return &synthVoice{sampleRate: sampleRate}
}

func noteToFrequency(note uint8) float64 {
	return 440.0 * math.Pow(2.0, (float64(note)-69.0)/12.0)
}

func (v *synthVoice) IsActive() bool       { return v.amplitude > 0.0005 }
func (v *synthVoice) GetNote() uint8       { return v.note }
func (v *synthVoice) GetVelocity() uint8   { return v.velocity }
func (v *synthVoice) GetAmplitude() float64 { return v.amplitude }
func (v *synthVoice) GetAge() int64        { return v.age }

func (v *synthVoice) TriggerNote(note uint8, velocity uint8) {
	v.note = note
	v.velocity = velocity
	v.amplitude = float64(velocity) / 127.0
	v.releasing = false
	v.age = 0
}

func (v *synthVoice) ReleaseNote() {
	v.releasing = true
}

func (v *synthVoice) Stop() {
	v.amplitude = 0
	v.releasing = false
}

// Process renders this voice's contribution into output, accumulating
// rather than overwriting so several voices can share one buffer.
func (v *synthVoice) Process(output []float32) {
	if v.amplitude <= 0 {
		return
	}
	freq := noteToFrequency(v.note)
	phaseInc := freq / v.sampleRate

	const releasePerSample = 1.0 / (0.2 * 48000) // ~200ms release at 48kHz

	for i := range output {
		sample := float32(math.Sin(2 * math.Pi * v.phase))
		output[i] += sample * float32(v.amplitude)

		v.phase += phaseInc
		if v.phase >= 1.0 {
			v.phase -= math.Floor(v.phase)
		}

		if v.releasing {
			v.amplitude -= releasePerSample
			if v.amplitude < 0 {
				v.amplitude = 0
			}
		}
		v.age++
	}
}

// NoteProcessor is a polyphonic synth node: a fixed voice pool plus the
// allocator that assigns incoming notes to voices. It implements
// processor.Processor, and also exposes NoteOn/NoteOff directly so a
// host can drive it without modeling a dedicated MIDI graph port.
type NoteProcessor struct {
	allocator *voice.Allocator
	voices    []*synthVoice
}

// NewNoteProcessor builds a NoteProcessor with the given polyphony.
func NewNoteProcessor(sampleRate float64, polyphony int) *NoteProcessor {
	if polyphony < 1 {
		polyphony = 1
	}
	voices := make([]*synthVoice, polyphony)
	asVoices := make([]voice.Voice, polyphony)
	for i := range voices {
		voices[i] = newSynthVoice(sampleRate)
		asVoices[i] = voices[i]
	}
	return &NoteProcessor{
		allocator: voice.NewAllocator(asVoices),
		voices:    voices,
	}
}

// NoteOn starts note with the given velocity.
func (p *NoteProcessor) NoteOn(note, velocity uint8) {
	p.allocator.NoteOn(note, velocity)
}

// NoteOff releases note.
func (p *NoteProcessor) NoteOff(note uint8) {
	p.allocator.NoteOff(note, 0)
}

// HandleEvent dispatches a raw MIDI event to the allocator.
func (p *NoteProcessor) HandleEvent(event midi.Event) {
	p.allocator.ProcessEvent(event)
}

// ActiveVoices reports how many voices are currently sounding.
func (p *NoteProcessor) ActiveVoices() int {
	return p.allocator.GetActiveVoiceCount()
}
