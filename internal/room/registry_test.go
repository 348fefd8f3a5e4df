package room

import (
	"testing"

	"classroom-stream/origin/internal/domain"
)

func TestRegistryGetOrCreateReusesExisting(t *testing.T) {
	r := NewRegistry()
	h1 := r.GetOrCreate("key1", testPolicy())
	h2 := r.GetOrCreate("key1", domain.CodecPolicy{Primary: domain.CodecAV1})
	if h1 != h2 {
		t.Fatal("expected GetOrCreate to return the same hub for an existing key")
	}
}

func TestRegistryDestroyRemovesRoom(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("key1", testPolicy())
	r.Destroy("key1")
	if _, ok := r.Get("key1"); ok {
		t.Fatal("expected room to be gone after Destroy")
	}
}

func TestRegistryCount(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("key1", testPolicy())
	r.GetOrCreate("key2", testPolicy())
	if r.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", r.Count())
	}
}
