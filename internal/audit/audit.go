// Package audit records every successful mutating operation with the acting
// identity. The trail is append-only and written after the mutation, so a
// missing row never implies a missing state change during a crash window —
// the trail is an operational record, not the source of truth.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-fin/custodia/internal/identity"
)

// Entry is one audit record.
type Entry struct {
	Actor  identity.Identity
	Action string
	Entity string
	Meta   map[string]any
	At     time.Time
}

// Recorder persists audit entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// MemoryRecorder keeps entries in memory. Used by tests and as the fallback
// when Postgres is not configured.
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryRecorder returns an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record appends the entry.
func (r *MemoryRecorder) Record(_ context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// Entries returns a copy of everything recorded so far.
func (r *MemoryRecorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
