package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/partnerhub/partnerhub/internal/services/partners/storage"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir() + "/partners.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEnsureAccountCreatesOnce(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first, err := store.EnsureAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	if first.Username != "alice" {
		t.Fatalf("username = %q, want alice", first.Username)
	}
	if len(first.Partners) != 0 {
		t.Fatalf("new account should have no partners, got %v", first.Partners)
	}

	second, err := store.EnsureAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("ensure account again: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatal("ensure must not recreate an existing account")
	}
}

func TestGetAccountNotFound(t *testing.T) {
	store := openStore(t)
	_, err := store.GetAccount(context.Background(), "ghost")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPartnershipIsSymmetricAndIdempotent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for _, username := range []string{"alice", "bob"} {
		if _, err := store.EnsureAccount(ctx, username); err != nil {
			t.Fatalf("ensure %s: %v", username, err)
		}
	}

	if err := store.CreatePartnership(ctx, "bob", "alice"); err != nil {
		t.Fatalf("create partnership: %v", err)
	}
	// Reversed argument order maps onto the same canonical edge.
	if err := store.CreatePartnership(ctx, "alice", "bob"); err != nil {
		t.Fatalf("re-create partnership: %v", err)
	}

	for _, tc := range []struct{ user, partner string }{
		{"alice", "bob"},
		{"bob", "alice"},
	} {
		partners, err := store.ListPartners(ctx, tc.user)
		if err != nil {
			t.Fatalf("list partners %s: %v", tc.user, err)
		}
		if len(partners) != 1 || partners[0] != tc.partner {
			t.Fatalf("partners of %s = %v, want [%s]", tc.user, partners, tc.partner)
		}
	}

	has, err := store.HasPartnership(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("has partnership: %v", err)
	}
	if !has {
		t.Fatal("partnership should exist in either argument order")
	}
}

func TestCreatePartnershipRejectsSelf(t *testing.T) {
	store := openStore(t)
	if err := store.CreatePartnership(context.Background(), "alice", "alice"); err == nil {
		t.Fatal("self partnership must be rejected")
	}
}

func TestAccountCarriesPartnerSet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for _, username := range []string{"alice", "bob", "carol"} {
		if _, err := store.EnsureAccount(ctx, username); err != nil {
			t.Fatalf("ensure %s: %v", username, err)
		}
	}
	if err := store.CreatePartnership(ctx, "alice", "bob"); err != nil {
		t.Fatalf("create partnership: %v", err)
	}
	if err := store.CreatePartnership(ctx, "carol", "alice"); err != nil {
		t.Fatalf("create partnership: %v", err)
	}

	account, err := store.GetAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !account.HasPartner("bob") || !account.HasPartner("carol") {
		t.Fatalf("partner set = %v, want bob and carol", account.Partners)
	}
}

func TestInvitationLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "bob", "alice", "hi"); err != nil {
		t.Fatalf("put invitation: %v", err)
	}
	if err := store.Put(ctx, "bob", "alice", "hello again"); err != nil {
		t.Fatalf("overwrite invitation: %v", err)
	}
	if err := store.Put(ctx, "bob", "carol", "hey"); err != nil {
		t.Fatalf("put second invitation: %v", err)
	}

	message, ok, err := store.Get(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if !ok || message != "hello again" {
		t.Fatalf("get = (%q, %v), want (hello again, true)", message, ok)
	}

	inbox, err := store.GetAll(ctx, "bob")
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(inbox) != 2 {
		t.Fatalf("inbox len = %d, want 2", len(inbox))
	}

	if err := store.Delete(ctx, "bob", "alice"); err != nil {
		t.Fatalf("delete invitation: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "bob", "alice"); ok {
		t.Fatal("invitation should be gone after delete")
	}
	// Deleting again is a no-op.
	if err := store.Delete(ctx, "bob", "alice"); err != nil {
		t.Fatalf("delete absent invitation: %v", err)
	}
}

func TestInvitationRejectsSelfPair(t *testing.T) {
	store := openStore(t)
	if err := store.Put(context.Background(), "alice", "alice", "hi"); err == nil {
		t.Fatal("self-addressed invitation must be rejected")
	}
}
