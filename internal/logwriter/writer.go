// Package logwriter batches activity records and persists them in the
// background.
package logwriter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zjrosen/regd/internal/dataaccess"
	"github.com/zjrosen/regd/internal/log"
	"github.com/zjrosen/regd/internal/metrics"
)

const (
	// DefaultQueueSize is the default number of records held before new
	// ones are dropped.
	DefaultQueueSize = 1024

	// DefaultBatchSize is the number of queued records that triggers an
	// immediate flush.
	DefaultBatchSize = 100

	// DefaultFlushInterval is how often the background goroutine flushes.
	DefaultFlushInterval = time.Second
)

// ErrClosed is returned by Flush and Close after Close.
var ErrClosed = errors.New("log writer closed")

// Sink persists a batch of records.
type Sink interface {
	AddLogs(ctx context.Context, records []dataaccess.LogRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, records []dataaccess.LogRecord) error

// AddLogs calls f.
func (f SinkFunc) AddLogs(ctx context.Context, records []dataaccess.LogRecord) error {
	return f(ctx, records)
}

// Tee sends every batch to each sink in order and returns the joined
// errors.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, records []dataaccess.LogRecord) error {
		var errs []error
		for _, s := range sinks {
			if err := s.AddLogs(ctx, records); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// Config sizes the writer. Zero values use the defaults.
type Config struct {
	QueueSize     int           `mapstructure:"queue_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchSize > c.QueueSize {
		c.BatchSize = c.QueueSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	return c
}

// Writer queues activity records and hands them to a Sink in batches.
// Write never blocks: when the queue is full the record is dropped and
// counted.
type Writer struct {
	sink    Sink
	cfg     Config
	metrics *metrics.Metrics

	// mu protects queue and closed.
	mu     sync.Mutex
	queue  []dataaccess.LogRecord
	closed bool

	// flushMu serializes sink calls so batches keep their order.
	flushMu sync.Mutex

	// kick wakes the background goroutine for a threshold flush.
	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	dropped     atomic.Int64
	writeErrors atomic.Int64
	lastError   atomic.Value
}

// New starts a writer flushing to sink. m may be nil.
func New(sink Sink, cfg Config, m *metrics.Metrics) *Writer {
	cfg = cfg.withDefaults()
	w := &Writer{
		sink:    sink,
		cfg:     cfg,
		metrics: m,
		queue:   make([]dataaccess.LogRecord, 0, cfg.QueueSize),
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.flushLoop()
	return w
}

// Write queues rec. It reports false when the record was dropped because
// the queue is full or the writer is closed.
func (w *Writer) Write(rec dataaccess.LogRecord) bool {
	w.mu.Lock()
	if w.closed || len(w.queue) >= w.cfg.QueueSize {
		w.mu.Unlock()
		w.dropped.Add(1)
		w.metrics.IncActivityDropped()
		return false
	}
	w.queue = append(w.queue, rec)
	full := len(w.queue) >= w.cfg.BatchSize
	w.mu.Unlock()

	if full {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
	return true
}

// Flush hands every queued record to the sink.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return w.flush(ctx)
}

func (w *Writer) flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	if len(w.queue) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := w.queue
	w.queue = make([]dataaccess.LogRecord, 0, w.cfg.QueueSize)
	w.mu.Unlock()

	if err := w.sink.AddLogs(ctx, batch); err != nil {
		w.writeErrors.Add(1)
		w.lastError.Store(err)
		log.ErrorErr(log.CatDB, "failed to write activity records", err, "records", len(batch))
		return err
	}
	w.metrics.AddActivityWritten(len(batch))
	return nil
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			_ = w.flush(context.Background()) // Errors are tracked via counters
		case <-w.kick:
			_ = w.flush(context.Background())
		}
	}
}

// Close stops the background goroutine and drains the queue within ctx.
// No writes are accepted afterwards.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()
	return w.flush(ctx)
}

// Dropped returns the number of records dropped so far.
func (w *Writer) Dropped() int64 {
	return w.dropped.Load()
}

// ErrorCount returns the number of failed sink calls.
func (w *Writer) ErrorCount() int64 {
	return w.writeErrors.Load()
}

// LastError returns the most recent sink error, or nil.
func (w *Writer) LastError() error {
	if err, ok := w.lastError.Load().(error); ok {
		return err
	}
	return nil
}

// Len returns the number of queued records.
func (w *Writer) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}
