// Package invite defines the contract for the pending-invitation cache.
//
// An invitation is a directed record (addressee, addresser) -> message that
// exists only while unmatched. The coordinator treats the store as an
// external capability: each operation is independently atomic and callers
// tolerate failures by logging and degrading, never by retrying.
package invite

import "context"

// Store persists pending partnership invitations keyed by
// (addressee, addresser).
type Store interface {
	// Put records an invitation from addresser to addressee, overwriting
	// any previous message for the same pair.
	Put(ctx context.Context, addressee, addresser, message string) error

	// Get returns the invitation message for the pair and whether one exists.
	Get(ctx context.Context, addressee, addresser string) (string, bool, error)

	// GetAll returns every pending invitation addressed to addressee,
	// keyed by addresser. Used to flush invitations on connect.
	GetAll(ctx context.Context, addressee string) (map[string]string, error)

	// Delete removes the invitation for the pair. Deleting an absent
	// invitation is a no-op.
	Delete(ctx context.Context, addressee, addresser string) error
}
