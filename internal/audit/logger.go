package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flavalia/avalia/internal/platform/database"
)

// LoggerConfig configures the async audit logger.
type LoggerConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func (c LoggerConfig) withDefaults() LoggerConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 4096
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 500 * time.Millisecond
	}
	return c
}

// AsyncLogger implements Logger with a buffered channel drained in batches
// by Run.
type AsyncLogger struct {
	ch      chan Event
	store   *Store
	db      database.Querier
	cfg     LoggerConfig
	dropped atomic.Int64

	running   atomic.Bool
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewAsyncLogger(db database.Querier, store *Store, cfg LoggerConfig) *AsyncLogger {
	cfg = cfg.withDefaults()
	return &AsyncLogger{
		ch:    make(chan Event, cfg.BufferSize),
		store: store,
		db:    db,
		cfg:   cfg,
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Log enqueues an audit event. It never blocks; when the buffer is full
// the event is dropped and counted.
func (l *AsyncLogger) Log(_ context.Context, event Event) {
	select {
	case l.ch <- event:
	default:
		l.dropped.Add(1)
		slog.Warn("audit buffer full, dropping event", "action", event.Action)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (l *AsyncLogger) Dropped() int64 {
	return l.dropped.Load()
}

// Run writes batches until ctx is cancelled or Close is called, then
// flushes whatever is still buffered. Only the first call does any work.
func (l *AsyncLogger) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return nil
	}
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, l.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			l.flush(append(batch, l.drainAll()...))
			return nil

		case <-l.quit:
			l.flush(append(batch, l.drainAll()...))
			return nil

		case e := <-l.ch:
			batch = append(batch, e)
			if len(batch) >= l.cfg.BatchSize {
				l.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// Start runs the writer in the background for callers without an errgroup.
func (l *AsyncLogger) Start() {
	go func() { _ = l.Run(context.Background()) }()
}

// Close stops Run and waits for its final flush. Without a running writer
// it flushes the buffer synchronously.
func (l *AsyncLogger) Close() error {
	l.closeOnce.Do(func() { close(l.quit) })
	if l.running.Load() {
		<-l.done
		return nil
	}
	l.flush(l.drainAll())
	return nil
}

func (l *AsyncLogger) flush(events []Event) {
	if len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.store.InsertBatch(ctx, l.db, events); err != nil {
		slog.Error("audit flush failed", "error", err, "count", len(events))
	}
}

func (l *AsyncLogger) drainAll() []Event {
	var events []Event
	for {
		select {
		case e := <-l.ch:
			events = append(events, e)
		default:
			return events
		}
	}
}
