// Package permission holds the timed send/receive eligibility records that
// back the reference transfer policy. The send and receive windows are
// deliberately asymmetric so lock-up periods can be modelled: an investor may
// be eligible to receive immediately but barred from selling until a future
// time. A single shared expiry represents the compliance re-certification
// deadline after which both directions are denied.
package permission

import (
	"fmt"
	"sync"
	"time"

	"github.com/custodia-fin/custodia/internal/identity"
	"github.com/custodia-fin/custodia/internal/shared"
)

// Record is the full permission window for one identity. The zero value
// carries no rights, which is the state of any identity never written to.
type Record struct {
	SendAllowed    bool
	ReceiveAllowed bool
	SendTime       time.Time
	ReceiveTime    time.Time
	ExpiryTime     time.Time
}

// CanSend reports whether the record permits sending at the given time.
func (r Record) CanSend(now time.Time) bool {
	return r.ExpiryTime.After(now) && r.SendAllowed && !r.SendTime.After(now)
}

// CanReceive reports whether the record permits receiving at the given time.
func (r Record) CanReceive(now time.Time) bool {
	return r.ExpiryTime.After(now) && r.ReceiveAllowed && !r.ReceiveTime.After(now)
}

// Store keeps one Record per identity. Records are replaced wholesale and
// never deleted; overwriting with a fresh record is the only update path.
type Store struct {
	mu      sync.RWMutex
	records map[identity.Identity]Record
}

// NewStore returns an empty permission store.
func NewStore() *Store {
	return &Store{records: make(map[identity.Identity]Record)}
}

// Get returns the record for id, or the zero record when absent.
func (s *Store) Get(id identity.Identity) Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[id]
}

// Set replaces the record for id. A record whose expiry is not strictly in
// the future at write time is rejected and the prior record is kept.
func (s *Store) Set(id identity.Identity, rec Record, now time.Time) error {
	if id.IsZero() {
		return fmt.Errorf("permission: set: %w", shared.ErrInvalidIdentity)
	}
	if !rec.ExpiryTime.After(now) {
		return fmt.Errorf("permission: set: %w", shared.ErrExpiredPermission)
	}
	s.mu.Lock()
	s.records[id] = rec
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of every stored record. Used by the expiry sweep.
func (s *Store) Snapshot() map[identity.Identity]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[identity.Identity]Record, len(s.records))
	for id, rec := range s.records {
		out[id] = rec
	}
	return out
}
