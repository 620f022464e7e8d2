// Package session maintains the directory of live partner connections.
package session

import (
	"sync"

	"github.com/partnerhub/partnerhub/internal/services/partners/protocol"
	"github.com/partnerhub/partnerhub/internal/services/partners/storage"
)

// Peer is the write side of one live connection.
type Peer interface {
	Send(envelope protocol.Envelope) error
}

// Entry binds a username to its live connection and resolved account.
type Entry struct {
	Username string
	Peer     Peer
	Account  storage.Account
}

// Registry maps usernames to live connections. At most one entry per
// username exists at any instant; the duplicate check and the insert happen
// under one lock so concurrent opens for the same user have a single winner.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewRegistry creates an empty session registry. The registry is an owned
// instance wired into the connection lifecycle, not package state.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register inserts a session for username. It returns false and performs no
// mutation when a session for username already exists. The registered
// account always carries a non-nil partner set: the map instance is shared
// by every lookup for the lifetime of the session, so it must exist before
// the first one.
func (r *Registry) Register(username string, peer Peer, account storage.Account) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[username]; exists {
		return false
	}
	if account.Partners == nil {
		account.Partners = make(map[string]bool)
	}
	r.entries[username] = Entry{Username: username, Peer: peer, Account: account}
	return true
}

// Lookup returns the live entry for username, if any.
func (r *Registry) Lookup(username string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[username]
	return entry, ok
}

// Deregister removes the session for username. Removing an absent session
// is a no-op.
func (r *Registry) Deregister(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, username)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
