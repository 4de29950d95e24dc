package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/razvanmacovei/x402-crawl-gateway/internal/metrics"
)

const (
	DefaultQueueSize    = 1024
	DefaultWorkers      = 2
	DefaultWriteTimeout = 5 * time.Second
	drainTimeout        = 10 * time.Second
)

// Options configures a Logger.
type Options struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
}

// Logger queues records for background delivery to its sinks. When the
// queue is full the oldest queued record is dropped and counted.
type Logger struct {
	log     logr.Logger
	sinks   []Sink
	opts    Options
	queue   chan Record
	dropped atomic.Uint64
	now     func() time.Time
}

func NewLogger(log logr.Logger, opts Options, sinks ...Sink) *Logger {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	return &Logger{
		log:   log,
		sinks: sinks,
		opts:  opts,
		queue: make(chan Record, opts.QueueSize),
		now:   time.Now,
	}
}

// Log enqueues r and returns immediately.
func (l *Logger) Log(r Record) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = l.now().UTC()
	}
	for {
		select {
		case l.queue <- r:
			metrics.AuditQueueDepth.Set(float64(len(l.queue)))
			return
		default:
		}
		select {
		case old := <-l.queue:
			l.dropped.Add(1)
			metrics.AuditDroppedTotal.Inc()
			l.log.V(1).Info("audit queue full, dropped oldest record", "id", old.ID.String())
		default:
		}
	}
}

// Dropped returns how many records were discarded for lack of space.
func (l *Logger) Dropped() uint64 { return l.dropped.Load() }

// Pending returns the queue length.
func (l *Logger) Pending() int { return len(l.queue) }

// Start runs the workers until ctx is cancelled, then drains what is left.
// It implements manager.Runnable.
func (l *Logger) Start(ctx context.Context) error {
	l.log.Info("starting audit logger", "workers", l.opts.Workers, "queueSize", l.opts.QueueSize, "sinks", len(l.sinks))

	var wg sync.WaitGroup
	for i := 0; i < l.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case r := <-l.queue:
					l.deliver(r)
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()

	deadline := time.Now().Add(drainTimeout)
drain:
	for time.Now().Before(deadline) {
		select {
		case r := <-l.queue:
			l.deliver(r)
		default:
			break drain
		}
	}
	if n := len(l.queue); n > 0 {
		l.log.Info("audit logger stopped with undelivered records", "pending", n)
	}
	metrics.AuditQueueDepth.Set(float64(len(l.queue)))
	return nil
}

// deliver writes r to every sink. Failures are logged and counted only.
func (l *Logger) deliver(r Record) {
	metrics.AuditQueueDepth.Set(float64(len(l.queue)))
	for _, s := range l.sinks {
		if err := l.write(s, r); err != nil {
			metrics.AuditSinkFailuresTotal.WithLabelValues(s.Name()).Inc()
			l.log.Error(err, "audit write failed", "sink", s.Name(), "id", r.ID.String(), "reference", r.Reference)
		}
	}
}

func (l *Logger) write(s Sink, r Record) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("sink panicked: %v", p)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), l.opts.WriteTimeout)
	defer cancel()
	return s.Write(ctx, r)
}

// NeedLeaderElection lets every replica drain its own queue.
func (l *Logger) NeedLeaderElection() bool { return false }
