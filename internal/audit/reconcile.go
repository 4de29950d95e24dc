package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/metrics"
)

const (
	DefaultBatchSize     = 50
	DefaultSweepInterval = time.Minute
	maxBatchesPerSweep   = 1000
)

// Reconciler copies records the fast store holds but the ledger has not
// confirmed. A record is marked logged only after its batch is appended, so
// a sweep is safe to repeat.
type Reconciler struct {
	Store     Store
	Ledger    Ledger
	BatchSize int
	Interval  time.Duration
	Log       logr.Logger
}

// Sweep replays unlogged records until none remain and returns how many were
// confirmed.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	size := r.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	total := 0
	for i := 0; i < maxBatchesPerSweep; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch, err := r.Store.Unlogged(ctx, size)
		if err != nil {
			return total, fmt.Errorf("read unlogged records: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		if err := r.Ledger.Append(ctx, batch); err != nil {
			metrics.LedgerBatchesTotal.WithLabelValues("failed").Inc()
			return total, fmt.Errorf("append batch: %w", err)
		}
		metrics.LedgerBatchesTotal.WithLabelValues("appended").Inc()

		ids := make([]uuid.UUID, len(batch))
		for j, rec := range batch {
			ids[j] = rec.ID
		}
		if err := r.Store.MarkLogged(ctx, ids); err != nil {
			return total, fmt.Errorf("mark %d records logged: %w", len(ids), err)
		}
		total += len(batch)

		if len(batch) < size {
			return total, nil
		}
	}
	return total, nil
}

// Start sweeps on an interval until ctx is cancelled. It implements
// manager.Runnable.
func (r *Reconciler) Start(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	r.Log.Info("starting ledger reconciler", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				r.Log.Error(err, "ledger sweep failed", "confirmed", n)
				continue
			}
			if n > 0 {
				r.Log.Info("ledger sweep complete", "confirmed", n)
			}
		}
	}
}

// NeedLeaderElection keeps a single replica sweeping.
func (r *Reconciler) NeedLeaderElection() bool { return true }
