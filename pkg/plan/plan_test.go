package plan

import (
	"testing"

	"github.com/justyntemme/audiograph/pkg/registry"
)

type fakeValue struct{ v float32 }

func (f *fakeValue) Load() float32 { return f.v }

func TestBufferClear(t *testing.T) {
	b := NewBuffer(4)
	copy(b.Samples, []float32{1, 2, 3, 4})
	b.Clear()
	for i, s := range b.Samples {
		if s != 0 {
			t.Fatalf("Samples[%d] = %v, want 0", i, s)
		}
	}
}

func TestParamRenderPortConstructors(t *testing.T) {
	bufs := registry.NewStore[Buffer]()
	key := bufs.Add(Buffer{})

	val := &fakeValue{v: 0.75}
	valuePort := NewValuePort(val, key)
	if !valuePort.FromValue {
		t.Fatal("NewValuePort should set FromValue = true")
	}
	if valuePort.Value.Load() != 0.75 {
		t.Fatalf("Value.Load() = %v, want 0.75", valuePort.Value.Load())
	}

	sourcePort := NewSourcePort(key)
	if sourcePort.FromValue {
		t.Fatal("NewSourcePort should set FromValue = false")
	}
}
