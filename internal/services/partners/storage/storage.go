// Package storage defines persistence contracts for partner accounts and
// partnership edges.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// Account is one user account with its persisted partner set.
type Account struct {
	Username  string
	Partners  map[string]bool
	CreatedAt time.Time
}

// HasPartner reports whether username is in the account's partner set.
func (a Account) HasPartner(username string) bool {
	return a.Partners[username]
}

// AccountStore resolves accounts by username.
type AccountStore interface {
	// EnsureAccount returns the account for username, creating an empty
	// one when it does not exist yet.
	EnsureAccount(ctx context.Context, username string) (Account, error)

	// GetAccount returns the account for username, or ErrNotFound.
	GetAccount(ctx context.Context, username string) (Account, error)
}

// PartnershipStore persists symmetric partnership edges.
type PartnershipStore interface {
	// CreatePartnership records the edge between userA and userB. The
	// insert is idempotent: recording an existing edge succeeds without
	// a second row.
	CreatePartnership(ctx context.Context, userA, userB string) error

	// HasPartnership reports whether an edge between userA and userB exists.
	HasPartnership(ctx context.Context, userA, userB string) (bool, error)

	// ListPartners returns the usernames partnered with username, sorted.
	ListPartners(ctx context.Context, username string) ([]string, error)
}

// CanonicalPair orders two usernames so the unordered pair has one
// representation everywhere an edge is stored or locked.
func CanonicalPair(userA, userB string) (string, string) {
	if userB < userA {
		return userB, userA
	}
	return userA, userB
}
