// Package lifecycle holds the two process-wide switches gating ledger
// mutations: a reversible pause toggle and a one-way issuance latch.
package lifecycle

import (
	"fmt"
	"sync"

	"github.com/custodia-fin/custodia/internal/shared"
)

// Gate combines the pause switch and the issuance latch. Both start open:
// the ledger is active and issuable.
type Gate struct {
	mu       sync.RWMutex
	paused   bool
	issuable bool
}

// NewGate returns an active, issuable gate.
func NewGate() *Gate {
	return &Gate{issuable: true}
}

// Paused reports whether the ledger is paused.
func (g *Gate) Paused() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.paused
}

// Issuable reports whether issuance is still open.
func (g *Gate) Issuable() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.issuable
}

// Pause halts ordinary ledger mutations.
func (g *Gate) Pause() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return fmt.Errorf("lifecycle: pause: %w", shared.ErrAlreadyPaused)
	}
	g.paused = true
	return nil
}

// Unpause resumes ordinary ledger mutations.
func (g *Gate) Unpause() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return fmt.Errorf("lifecycle: unpause: %w", shared.ErrNotPaused)
	}
	g.paused = false
	return nil
}

// FinishIssuance closes the issuance latch permanently. Nothing reopens it.
func (g *Gate) FinishIssuance() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.issuable {
		return fmt.Errorf("lifecycle: finish issuance: %w", shared.ErrIssuanceAlreadyClosed)
	}
	g.issuable = false
	return nil
}
