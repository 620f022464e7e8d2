package memory

import (
	"context"
	"testing"
)

func TestPutGetDelete(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Put(ctx, "bob", "alice", "hi"); err != nil {
		t.Fatalf("put: %v", err)
	}

	message, ok, err := store.Get(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || message != "hi" {
		t.Fatalf("get = (%q, %v), want (hi, true)", message, ok)
	}

	if _, ok, _ := store.Get(ctx, "alice", "bob"); ok {
		t.Fatal("reverse direction should not exist")
	}

	if err := store.Delete(ctx, "bob", "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "bob", "alice"); ok {
		t.Fatal("invitation should be gone after delete")
	}
}

func TestPutOverwritesMessage(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Put(ctx, "bob", "alice", "first"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, "bob", "alice", "second"); err != nil {
		t.Fatalf("put again: %v", err)
	}

	message, ok, err := store.Get(ctx, "bob", "alice")
	if err != nil || !ok {
		t.Fatalf("get = (%q, %v, %v)", message, ok, err)
	}
	if message != "second" {
		t.Fatalf("message = %q, want second", message)
	}
}

func TestGetAllReturnsAddresseeInbox(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.Put(ctx, "bob", "alice", "from alice"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, "bob", "carol", "from carol"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, "alice", "bob", "from bob"); err != nil {
		t.Fatalf("put: %v", err)
	}

	inbox, err := store.GetAll(ctx, "bob")
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(inbox) != 2 {
		t.Fatalf("inbox len = %d, want 2", len(inbox))
	}
	if inbox["alice"] != "from alice" || inbox["carol"] != "from carol" {
		t.Fatalf("inbox = %v", inbox)
	}
}

func TestDeleteAbsentIsNoOp(t *testing.T) {
	store := NewStore()
	if err := store.Delete(context.Background(), "bob", "alice"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}
