// Package ownership holds the single administrative owner, distinct from
// the four role sets. Ownership controls contract-level administration only;
// it grants no ledger or role authority by itself.
package ownership

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-fin/custodia/internal/event"
	"github.com/custodia-fin/custodia/internal/identity"
	"github.com/custodia-fin/custodia/internal/shared"
)

// Ownership is the single-writer owner singleton.
type Ownership struct {
	mu    sync.RWMutex
	owner identity.Identity
	sink  event.Sink
	now   func() time.Time
}

// New seeds the owner at construction.
func New(owner identity.Identity, sink event.Sink) *Ownership {
	return &Ownership{owner: owner, sink: sink, now: time.Now}
}

// WithNow overrides the clock. Used by tests.
func (o *Ownership) WithNow(now func() time.Time) {
	if now != nil {
		o.now = now
	}
}

// Owner returns the current owner; the null identity after renouncement.
func (o *Ownership) Owner() identity.Identity {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.owner
}

// IsOwner reports whether id is the current owner. The null identity is
// never the owner, even after renouncement.
func (o *Ownership) IsOwner(id identity.Identity) bool {
	if id.IsZero() {
		return false
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.owner == id
}

// Transfer hands ownership to a new identity. Only the current owner may
// call it; the null identity is not a valid new owner.
func (o *Ownership) Transfer(ctx context.Context, caller, next identity.Identity) error {
	if next.IsZero() {
		return fmt.Errorf("ownership: transfer: %w", shared.ErrInvalidIdentity)
	}
	o.mu.Lock()
	if o.owner != caller || caller.IsZero() {
		o.mu.Unlock()
		return fmt.Errorf("ownership: transfer: %w", shared.ErrUnauthorized)
	}
	previous := o.owner
	o.owner = next
	o.mu.Unlock()

	if o.sink != nil {
		_ = o.sink.Publish(ctx, event.NewOwnershipTransferred(o.now(), previous, next))
	}
	return nil
}

// Renounce sets the owner to the null identity. This permanently disables
// owner-gated operations unless the deployment assigns a new owner, which
// nothing in the core can do; it is an explicit abdication mechanism.
func (o *Ownership) Renounce(ctx context.Context, caller identity.Identity) error {
	o.mu.Lock()
	if o.owner != caller || caller.IsZero() {
		o.mu.Unlock()
		return fmt.Errorf("ownership: renounce: %w", shared.ErrUnauthorized)
	}
	previous := o.owner
	o.owner = identity.Zero
	o.mu.Unlock()

	if o.sink != nil {
		_ = o.sink.Publish(ctx, event.NewOwnershipTransferred(o.now(), previous, identity.Zero))
	}
	return nil
}
