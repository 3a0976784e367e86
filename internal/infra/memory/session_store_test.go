package memory

import (
	"context"
	"testing"
)

func TestSessionStoreRoundTrip(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	if _, ok, _ := store.Lookup(ctx, "missing"); ok {
		t.Fatalf("unknown token must not resolve")
	}

	if err := store.Put(ctx, "tok", 42); err != nil {
		t.Fatalf("put: %v", err)
	}
	id, ok, err := store.Lookup(ctx, "tok")
	if err != nil || !ok || id != 42 {
		t.Fatalf("lookup: id=%d ok=%v err=%v", id, ok, err)
	}
}
