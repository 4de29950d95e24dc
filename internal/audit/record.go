// Package audit records crawl and payment events without holding up the
// response path.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// Outcomes recorded for a crawl.
const (
	OutcomeServed         = "served"
	OutcomeServedFree     = "served_free"
	OutcomeDenied         = "denied"
	OutcomeUpstreamFailed = "upstream_failed"
)

// Record is one write-once audit entry.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Subject   string    `json:"subject"`
	Publisher string    `json:"publisher"`
	Resource  string    `json:"resource"`
	Amount    string    `json:"amount"`
	Reference string    `json:"reference"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   string    `json:"outcome"`
}

// Sink receives audit records.
type Sink interface {
	Name() string
	Write(ctx context.Context, r Record) error
}

// Store is the fast mutable sink that the reconciliation sweep reads back.
type Store interface {
	Sink
	// Unlogged returns up to limit records not yet confirmed by the ledger,
	// oldest first.
	Unlogged(ctx context.Context, limit int) ([]Record, error)
	// MarkLogged flags records as confirmed by the ledger.
	MarkLogged(ctx context.Context, ids []uuid.UUID) error
}

// DefaultMemoryCapacity bounds a MemoryStore built by NewMemoryStore.
const DefaultMemoryCapacity = 10000

// MemoryStore is an in-process Store. It holds at most capacity unconfirmed
// records, dropping the oldest when full, and forgets records once the
// ledger confirms them.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	records  []Record
	index    map[uuid.UUID]struct{}
	dropped  uint64
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithCapacity(DefaultMemoryCapacity)
}

// NewMemoryStoreWithCapacity returns a MemoryStore holding up to capacity
// records. A non-positive capacity selects DefaultMemoryCapacity.
func NewMemoryStoreWithCapacity(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity, index: make(map[uuid.UUID]struct{})}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Write(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.index[r.ID]; ok {
		return nil
	}
	if len(m.records) >= m.capacity {
		delete(m.index, m.records[0].ID)
		m.records = append(m.records[:0], m.records[1:]...)
		m.dropped++
	}
	m.records = append(m.records, r)
	m.index[r.ID] = struct{}{}
	return nil
}

func (m *MemoryStore) Unlogged(_ context.Context, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.records) {
		limit = len(m.records)
	}
	return append([]Record(nil), m.records[:limit]...), nil
}

// MarkLogged evicts confirmed records.
func (m *MemoryStore) MarkLogged(_ context.Context, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	confirmed := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := m.index[id]; ok {
			confirmed[id] = struct{}{}
			delete(m.index, id)
		}
	}
	if len(confirmed) == 0 {
		return nil
	}
	kept := m.records[:0]
	for _, r := range m.records {
		if _, ok := confirmed[r.ID]; !ok {
			kept = append(kept, r)
		}
	}
	clear(m.records[len(kept):])
	m.records = kept
	return nil
}

// Records returns a copy of the records still held.
func (m *MemoryStore) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

// Dropped reports how many records were evicted unconfirmed because the
// store was full.
func (m *MemoryStore) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// LogSink writes records to the operational log.
type LogSink struct {
	Log logr.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Write(_ context.Context, r Record) error {
	s.Log.Info("crawl audited",
		"id", r.ID.String(),
		"outcome", r.Outcome,
		"subject", r.Subject,
		"publisher", r.Publisher,
		"resource", r.Resource,
		"amount", r.Amount,
		"reference", r.Reference,
	)
	return nil
}
