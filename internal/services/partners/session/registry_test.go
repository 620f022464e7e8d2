package session

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/partnerhub/partnerhub/internal/services/partners/protocol"
	"github.com/partnerhub/partnerhub/internal/services/partners/storage"
)

type fakePeer struct {
	id string
}

func (f *fakePeer) Send(protocol.Envelope) error { return nil }

func TestRegisterAndLookup(t *testing.T) {
	registry := NewRegistry()
	peer := &fakePeer{id: "a"}
	account := storage.Account{Username: "alice", Partners: map[string]bool{"bob": true}}

	if !registry.Register("alice", peer, account) {
		t.Fatal("first register should succeed")
	}

	entry, ok := registry.Lookup("alice")
	if !ok {
		t.Fatal("lookup should find registered session")
	}
	if entry.Peer != peer {
		t.Fatal("lookup returned wrong peer")
	}
	if !entry.Account.HasPartner("bob") {
		t.Fatal("account should ride along with the registration")
	}
}

func TestRegisterRejectsDuplicateWithoutMutation(t *testing.T) {
	registry := NewRegistry()
	original := &fakePeer{id: "original"}
	if !registry.Register("alice", original, storage.Account{Username: "alice"}) {
		t.Fatal("first register should succeed")
	}

	if registry.Register("alice", &fakePeer{id: "intruder"}, storage.Account{Username: "alice"}) {
		t.Fatal("second register for the same user should fail")
	}

	entry, ok := registry.Lookup("alice")
	if !ok || entry.Peer != original {
		t.Fatal("original session must remain unaffected")
	}
}

func TestRegisterInitializesPartnerSet(t *testing.T) {
	registry := NewRegistry()
	registry.Register("alice", &fakePeer{}, storage.Account{Username: "alice"})

	entry, ok := registry.Lookup("alice")
	if !ok {
		t.Fatal("lookup should find registered session")
	}
	if entry.Account.Partners == nil {
		t.Fatal("registered account must carry a non-nil partner set")
	}

	// The same map instance is visible to every lookup.
	entry.Account.Partners["bob"] = true
	again, _ := registry.Lookup("alice")
	if !again.Account.HasPartner("bob") {
		t.Fatal("partner set must be shared across lookups")
	}
}

func TestDeregisterIsIdempotent(t *testing.T) {
	registry := NewRegistry()
	registry.Register("alice", &fakePeer{}, storage.Account{Username: "alice"})

	registry.Deregister("alice")
	registry.Deregister("alice")

	if _, ok := registry.Lookup("alice"); ok {
		t.Fatal("session should be gone after deregister")
	}
	if registry.Len() != 0 {
		t.Fatalf("len = %d, want 0", registry.Len())
	}
}

func TestConcurrentRegisterHasOneWinner(t *testing.T) {
	registry := NewRegistry()

	const attempts = 64
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if registry.Register("alice", &fakePeer{}, storage.Account{Username: "alice"}) {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins.Load())
	}
	if registry.Len() != 1 {
		t.Fatalf("len = %d, want 1", registry.Len())
	}
}
