// Package partnership owns the invitation matching algorithm and the
// creation of partnership edges.
//
// All mutation of the two partner sets happens in one coordinator pass
// holding both users' keyed locks, so two simultaneous reciprocal requests
// have exactly one winner and matches that share a user never touch that
// user's partner set concurrently.
package partnership

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	apperrors "github.com/partnerhub/partnerhub/internal/platform/errors"
	"github.com/partnerhub/partnerhub/internal/services/partners/invite"
	"github.com/partnerhub/partnerhub/internal/services/partners/protocol"
	"github.com/partnerhub/partnerhub/internal/services/partners/session"
	"github.com/partnerhub/partnerhub/internal/services/partners/storage"
)

// Outcome reports how a partnership request concluded.
type Outcome int

const (
	// OutcomePending means the invitation was stored and awaits the
	// addressee's reciprocal request.
	OutcomePending Outcome = iota

	// OutcomeMatched means reciprocal invitations met and the edge was
	// created.
	OutcomeMatched
)

// Coordinator negotiates partnership requests between accounts.
type Coordinator struct {
	invites      invite.Store
	accounts     storage.AccountStore
	partnerships storage.PartnershipStore
	registry     *session.Registry

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewCoordinator wires the coordinator to its collaborators.
func NewCoordinator(
	invites invite.Store,
	accounts storage.AccountStore,
	partnerships storage.PartnershipStore,
	registry *session.Registry,
) *Coordinator {
	return &Coordinator{
		invites:      invites,
		accounts:     accounts,
		partnerships: partnerships,
		registry:     registry,
		userLocks:    make(map[string]*sync.Mutex),
	}
}

// lockPair serializes matching for one unordered username pair. Locks are
// keyed per user, not per pair: a user's partner set is shared across every
// pair that involves them, so two matches completing against a common user
// must contend on that user's lock. Both locks are acquired in canonical
// order, which rules out deadlock between overlapping pairs.
func (c *Coordinator) lockPair(userA, userB string) func() {
	first, second := storage.CanonicalPair(userA, userB)
	firstLock := c.userLock(first)
	secondLock := c.userLock(second)

	firstLock.Lock()
	secondLock.Lock()
	return func() {
		secondLock.Unlock()
		firstLock.Unlock()
	}
}

func (c *Coordinator) userLock(username string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.userLocks[username]
	if !ok {
		lock = &sync.Mutex{}
		c.userLocks[username] = lock
	}
	return lock
}

// Request runs the negotiation algorithm for one PARTNERSHIP_REQUEST.
//
// Rejections are domain errors and leave the connection usable; the caller
// reports them to the addresser only. On success the coordinator has
// already notified every reachable session.
func (c *Coordinator) Request(ctx context.Context, addresser, addressee, text string) (Outcome, error) {
	if addresser == addressee {
		return OutcomePending, apperrors.New(apperrors.CodeInviteSelf, "cannot request partnership with yourself")
	}

	addresseeAccount, err := c.resolveAccount(ctx, addressee)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return OutcomePending, apperrors.WithMetadata(
				apperrors.CodePartnerUnknown,
				"partner account does not exist",
				map[string]string{"Partner": addressee},
			)
		}
		return OutcomePending, apperrors.Wrap(apperrors.CodeStorageUnavailable, "resolve partner account", err)
	}
	addresserAccount, err := c.resolveAccount(ctx, addresser)
	if err != nil {
		return OutcomePending, apperrors.Wrap(apperrors.CodeStorageUnavailable, "resolve addresser account", err)
	}

	unlock := c.lockPair(addresser, addressee)
	defer unlock()

	if _, exists, err := c.invites.Get(ctx, addressee, addresser); err != nil {
		return OutcomePending, apperrors.Wrap(apperrors.CodeStorageUnavailable, "check pending invitation", err)
	} else if exists {
		return OutcomePending, apperrors.WithMetadata(
			apperrors.CodeInviteDuplicate,
			"invitation is already pending",
			map[string]string{"Partner": addressee},
		)
	}

	partnered, err := c.partnerships.HasPartnership(ctx, addresser, addressee)
	if err != nil {
		return OutcomePending, apperrors.Wrap(apperrors.CodeStorageUnavailable, "check existing partnership", err)
	}
	if partnered {
		return OutcomePending, apperrors.WithMetadata(
			apperrors.CodeAlreadyPartnered,
			"partnership already exists",
			map[string]string{"Partner": addressee},
		)
	}

	if err := c.invites.Put(ctx, addressee, addresser, text); err != nil {
		return OutcomePending, apperrors.Wrap(apperrors.CodeStorageUnavailable, "store invitation", err)
	}

	_, reciprocal, err := c.invites.Get(ctx, addresser, addressee)
	if err != nil {
		// The invitation is stored; degrade to the pending path rather
		// than failing the whole request.
		log.Printf("partners: reciprocal invitation check failed addresser=%q addressee=%q err=%v", addresser, addressee, err)
		reciprocal = false
	}

	if !reciprocal {
		c.notify(addresser, protocol.Envelope{
			Type:    protocol.TypeUserInfo,
			Message: fmt.Sprintf("Wait for user {%s} answer.", addressee),
		})
		c.notify(addressee, protocol.Envelope{
			Type:    protocol.TypePartnershipRequest,
			Message: text,
			Partner: addresser,
		})
		return OutcomePending, nil
	}

	if err := c.createEdge(ctx, addresserAccount, addresseeAccount); err != nil {
		return OutcomePending, err
	}

	if err := c.invites.Delete(ctx, addressee, addresser); err != nil {
		log.Printf("partners: delete invitation addressee=%q addresser=%q err=%v", addressee, addresser, err)
	}
	if err := c.invites.Delete(ctx, addresser, addressee); err != nil {
		log.Printf("partners: delete invitation addressee=%q addresser=%q err=%v", addresser, addressee, err)
	}

	created := protocol.Envelope{
		Type:    protocol.TypeUserInfo,
		Message: fmt.Sprintf("Partnership {%s-%s} successfully added.", addresser, addressee),
	}
	c.notify(addresser, created)
	c.notify(addressee, created)
	return OutcomeMatched, nil
}

// Decline removes the invitation addressed to user from partner. Declining
// a nonexistent invitation is a no-op; the user still gets an acknowledgment.
func (c *Coordinator) Decline(ctx context.Context, user, partner string) error {
	if err := c.invites.Delete(ctx, user, partner); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageUnavailable, "delete invitation", err)
	}
	c.notify(user, protocol.Envelope{
		Type:    protocol.TypeInfo,
		Message: fmt.Sprintf("Invitation from {%s} declined.", partner),
	})
	return nil
}

// FlushPending pushes every stored invitation addressed to username to the
// given peer, one envelope per invitation. This is how a user discovers
// invitations that arrived while disconnected.
func (c *Coordinator) FlushPending(ctx context.Context, username string, peer session.Peer) {
	inbox, err := c.invites.GetAll(ctx, username)
	if err != nil {
		log.Printf("partners: flush pending invitations user=%q err=%v", username, err)
		return
	}
	for addresser, message := range inbox {
		if err := peer.Send(protocol.Envelope{
			Type:    protocol.TypePartnershipRequest,
			Message: message,
			Partner: addresser,
		}); err != nil {
			log.Printf("partners: deliver pending invitation user=%q from=%q err=%v", username, addresser, err)
			return
		}
	}
}

// createEdge updates both in-memory partner sets in one pass and persists
// the edge. Persistence refuses a half-mutated pair: if exactly one side
// already lists the other the partner sets have diverged and the edge is
// not written.
func (c *Coordinator) createEdge(ctx context.Context, a, b storage.Account) error {
	aHasB := a.HasPartner(b.Username)
	bHasA := b.HasPartner(a.Username)
	if aHasB != bHasA {
		return apperrors.WithMetadata(
			apperrors.CodePartnerInconsistent,
			"partner sets are not mutually consistent",
			map[string]string{"UserA": a.Username, "UserB": b.Username},
		)
	}
	added := !aHasB
	if added {
		a.Partners[b.Username] = true
		b.Partners[a.Username] = true
	}

	if err := c.partnerships.CreatePartnership(ctx, a.Username, b.Username); err != nil {
		if added {
			delete(a.Partners, b.Username)
			delete(b.Partners, a.Username)
		}
		return apperrors.Wrap(apperrors.CodeStorageUnavailable, "persist partnership", err)
	}
	return nil
}

// resolveAccount prefers the account already attached to a live session so
// in-memory partner sets stay shared with the connection that owns them.
func (c *Coordinator) resolveAccount(ctx context.Context, username string) (storage.Account, error) {
	// The registry guarantees a non-nil partner set at registration.
	if entry, ok := c.registry.Lookup(username); ok {
		return entry.Account, nil
	}
	account, err := c.accounts.GetAccount(ctx, username)
	if err != nil {
		return storage.Account{}, err
	}
	if account.Partners == nil {
		account.Partners = make(map[string]bool)
	}
	return account, nil
}

// notify delivers an envelope to username's live session, if any. Offline
// recipients are skipped; pending invitations reach them on next connect.
func (c *Coordinator) notify(username string, envelope protocol.Envelope) {
	entry, ok := c.registry.Lookup(username)
	if !ok {
		return
	}
	if err := entry.Peer.Send(envelope); err != nil {
		log.Printf("partners: notify user=%q type=%s err=%v", username, envelope.Type, err)
	}
}
