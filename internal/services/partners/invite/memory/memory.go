// Package memory provides an in-process invitation cache.
package memory

import (
	"context"
	"sync"
)

// Store keeps pending invitations in a mutex-guarded map. Suitable for
// tests and single-process deployments; the sqlite store is the durable
// alternative.
type Store struct {
	mu sync.Mutex
	// addressee -> addresser -> message
	pending map[string]map[string]string
}

// NewStore creates an empty invitation cache.
func NewStore() *Store {
	return &Store{pending: make(map[string]map[string]string)}
}

// Put records an invitation from addresser to addressee.
func (s *Store) Put(ctx context.Context, addressee, addresser, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inbox, ok := s.pending[addressee]
	if !ok {
		inbox = make(map[string]string)
		s.pending[addressee] = inbox
	}
	inbox[addresser] = message
	return nil
}

// Get returns the invitation message for the pair and whether one exists.
func (s *Store) Get(ctx context.Context, addressee, addresser string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	message, ok := s.pending[addressee][addresser]
	return message, ok, nil
}

// GetAll returns every pending invitation addressed to addressee.
func (s *Store) GetAll(ctx context.Context, addressee string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inbox := make(map[string]string, len(s.pending[addressee]))
	for addresser, message := range s.pending[addressee] {
		inbox[addresser] = message
	}
	return inbox, nil
}

// Delete removes the invitation for the pair, if present.
func (s *Store) Delete(ctx context.Context, addressee, addresser string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inbox, ok := s.pending[addressee]
	if !ok {
		return nil
	}
	delete(inbox, addresser)
	if len(inbox) == 0 {
		delete(s.pending, addressee)
	}
	return nil
}
