package roles

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-fin/custodia/internal/event"
	"github.com/custodia-fin/custodia/internal/identity"
	"github.com/custodia-fin/custodia/internal/shared"
)

// Kind names one of the independent role sets.
type Kind string

const (
	KindRegulator  Kind = "regulator"
	KindIssuer     Kind = "issuer"
	KindController Kind = "controller"
	KindPauser     Kind = "pauser"
)

// Kinds lists every role kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindRegulator, KindIssuer, KindController, KindPauser}
}

// ParseKind validates a role kind received from the outside.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindRegulator, KindIssuer, KindController, KindPauser:
		return Kind(s), nil
	}
	return "", fmt.Errorf("roles: unknown kind %q", s)
}

// Registry is a set of identities holding one role. Membership changes are
// restricted to existing members of the same registry; a member may always
// renounce its own membership. The null identity is never a member.
type Registry struct {
	kind    Kind
	mu      sync.RWMutex
	members map[identity.Identity]struct{}
	sink    event.Sink
	now     func() time.Time
}

// NewRegistry creates a registry seeded with the deploying identity so the
// set is never empty and unrecoverable.
func NewRegistry(kind Kind, deployer identity.Identity, sink event.Sink) *Registry {
	members := make(map[identity.Identity]struct{})
	if !deployer.IsZero() {
		members[deployer] = struct{}{}
	}
	return &Registry{kind: kind, members: members, sink: sink, now: time.Now}
}

// WithNow overrides the clock. Used by tests.
func (r *Registry) WithNow(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Kind returns the role kind this registry governs.
func (r *Registry) Kind() Kind {
	return r.kind
}

// IsMember reports whether id holds the role.
func (r *Registry) IsMember(id identity.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[id]
	return ok
}

// Members returns the current membership.
func (r *Registry) Members() []identity.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]identity.Identity, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	return out
}

// Add inserts id into the set. Only an existing member may add.
func (r *Registry) Add(ctx context.Context, caller, id identity.Identity) error {
	if id.IsZero() {
		return fmt.Errorf("roles: add %s: %w", r.kind, shared.ErrInvalidIdentity)
	}
	r.mu.Lock()
	if _, ok := r.members[caller]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("roles: add %s: %w", r.kind, shared.ErrUnauthorized)
	}
	if _, ok := r.members[id]; ok {
		r.mu.Unlock()
		return fmt.Errorf("roles: add %s: %w", r.kind, shared.ErrAlreadyMember)
	}
	r.members[id] = struct{}{}
	r.mu.Unlock()

	r.publish(ctx, event.NewRoleAdded(r.now(), string(r.kind), id, caller))
	return nil
}

// Remove deletes id from the set. Only an existing member may remove.
func (r *Registry) Remove(ctx context.Context, caller, id identity.Identity) error {
	if id.IsZero() {
		return fmt.Errorf("roles: remove %s: %w", r.kind, shared.ErrInvalidIdentity)
	}
	r.mu.Lock()
	if _, ok := r.members[caller]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("roles: remove %s: %w", r.kind, shared.ErrUnauthorized)
	}
	if _, ok := r.members[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("roles: remove %s: %w", r.kind, shared.ErrNotMember)
	}
	delete(r.members, id)
	r.mu.Unlock()

	r.publish(ctx, event.NewRoleRemoved(r.now(), string(r.kind), id, caller))
	return nil
}

// Renounce removes the caller's own membership.
func (r *Registry) Renounce(ctx context.Context, caller identity.Identity) error {
	if caller.IsZero() {
		return fmt.Errorf("roles: renounce %s: %w", r.kind, shared.ErrInvalidIdentity)
	}
	r.mu.Lock()
	if _, ok := r.members[caller]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("roles: renounce %s: %w", r.kind, shared.ErrNotMember)
	}
	delete(r.members, caller)
	r.mu.Unlock()

	r.publish(ctx, event.NewRoleRemoved(r.now(), string(r.kind), caller, caller))
	return nil
}

func (r *Registry) publish(ctx context.Context, ev event.Event) {
	if r.sink != nil {
		_ = r.sink.Publish(ctx, ev)
	}
}
