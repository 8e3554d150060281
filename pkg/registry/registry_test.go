package registry

import "testing"

func TestStoreAddGetRemove(t *testing.T) {
	s := NewStore[string]()

	k1 := s.Add("a")
	k2 := s.Add("b")

	if got, ok := s.Get(k1); !ok || got != "a" {
		t.Fatalf("Get(k1) = %q, %v; want a, true", got, ok)
	}
	if got, ok := s.Get(k2); !ok || got != "b" {
		t.Fatalf("Get(k2) = %q, %v; want b, true", got, ok)
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}

	if !s.Remove(k1) {
		t.Fatal("Remove(k1) = false, want true")
	}
	if _, ok := s.Get(k1); ok {
		t.Fatal("Get(k1) after Remove = true, want false")
	}
	if s.Len() != 1 {
		t.Fatalf("Len() after Remove = %d, want 1", s.Len())
	}
}

func TestStoreReusesSlotWithNewGeneration(t *testing.T) {
	s := NewStore[int]()

	k1 := s.Add(1)
	s.Remove(k1)
	k2 := s.Add(2)

	if k1.index != k2.index {
		t.Fatalf("expected slot reuse: k1.index=%d k2.index=%d", k1.index, k2.index)
	}
	if k1.generation == k2.generation {
		t.Fatal("expected generation to change on reuse")
	}

	if _, ok := s.Get(k1); ok {
		t.Fatal("stale key k1 should not resolve after slot reuse")
	}
	if got, ok := s.Get(k2); !ok || got != 2 {
		t.Fatalf("Get(k2) = %d, %v; want 2, true", got, ok)
	}
}

func TestStoreRefSharesUnderlyingValue(t *testing.T) {
	s := NewStore[int]()
	k := s.Add(10)

	ref, ok := s.Ref(k)
	if !ok {
		t.Fatal("Ref(k) missing")
	}
	*ref.Value = 20

	got, _ := s.Get(k)
	if got != 20 {
		t.Fatalf("Get(k) = %d after Ref mutation, want 20", got)
	}
}

func TestStoreKeysAndLen(t *testing.T) {
	s := NewStore[int]()
	keys := []Key{s.Add(1), s.Add(2), s.Add(3)}
	s.Remove(keys[1])

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	all := s.Keys()
	if len(all) != 2 {
		t.Fatalf("Keys() len = %d, want 2", len(all))
	}
}
