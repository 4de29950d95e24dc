// Package replay records accepted settlement references exactly once.
package replay

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrAlreadyClaimed is returned when a reference was accepted before.
var ErrAlreadyClaimed = errors.New("settlement reference already claimed")

// Claim is one accepted settlement.
type Claim struct {
	Reference string
	Payer     string
	Amount    string
	Resource  string
	ClaimedAt time.Time
}

// Store claims references with an atomic insert-if-absent.
type Store interface {
	// Claim inserts c and returns ErrAlreadyClaimed if its Reference exists.
	Claim(ctx context.Context, c Claim) error
}

// Memory is a single-process Store.
type Memory struct {
	mu     sync.Mutex
	claims map[string]Claim
}

func NewMemory() *Memory {
	return &Memory{claims: make(map[string]Claim)}
}

func (m *Memory) Claim(_ context.Context, c Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.claims[c.Reference]; ok {
		return ErrAlreadyClaimed
	}
	if c.ClaimedAt.IsZero() {
		c.ClaimedAt = time.Now()
	}
	m.claims[c.Reference] = c
	return nil
}

// Len returns the number of claims held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.claims)
}
