package logwriter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/regd/internal/dataaccess"
	"github.com/zjrosen/regd/internal/metrics"
	"github.com/zjrosen/regd/internal/mocks"
)

type memorySink struct {
	mu      sync.Mutex
	batches [][]dataaccess.LogRecord
	err     error
}

func (s *memorySink) AddLogs(_ context.Context, records []dataaccess.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, records)
	return nil
}

func (s *memorySink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func rec(path string) dataaccess.LogRecord {
	return dataaccess.LogRecord{Path: path, UserID: "admin", Action: dataaccess.ActionUpdate}
}

func TestWriter_FlushesOnBatchSize(t *testing.T) {
	sink := &memorySink{}
	w := New(sink, Config{BatchSize: 3, FlushInterval: time.Hour}, nil)
	defer w.Close(context.Background())

	for _, p := range []string{"/a", "/b", "/c"} {
		require.True(t, w.Write(rec(p)))
	}
	require.Eventually(t, func() bool { return sink.total() == 3 }, time.Second, 5*time.Millisecond)
}

func TestWriter_FlushesOnInterval(t *testing.T) {
	sink := &memorySink{}
	w := New(sink, Config{BatchSize: 100, FlushInterval: 10 * time.Millisecond}, nil)
	defer w.Close(context.Background())

	require.True(t, w.Write(rec("/a")))
	require.Eventually(t, func() bool { return sink.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWriter_DropsWhenFull(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	sink := &memorySink{err: errors.New("database down")}
	w := New(sink, Config{QueueSize: 2, BatchSize: 2, FlushInterval: time.Hour}, m)

	// Hold the flush lock so the queue cannot drain.
	w.flushMu.Lock()
	require.True(t, w.Write(rec("/a")))
	require.True(t, w.Write(rec("/b")))
	require.False(t, w.Write(rec("/c")))
	w.flushMu.Unlock()

	require.Equal(t, int64(1), w.Dropped())
	require.Equal(t, float64(1), testutil.ToFloat64(m.ActivityDropped))
	_ = w.Close(context.Background())
}

func TestWriter_CloseDrains(t *testing.T) {
	sink := &memorySink{}
	w := New(sink, Config{FlushInterval: time.Hour}, nil)
	for _, p := range []string{"/a", "/b"} {
		w.Write(rec(p))
	}
	require.NoError(t, w.Close(context.Background()))
	require.Equal(t, 2, sink.total())
	require.Equal(t, 0, w.Len())

	require.False(t, w.Write(rec("/late")), "closed writers drop records")
	require.ErrorIs(t, w.Close(context.Background()), ErrClosed)
	require.ErrorIs(t, w.Flush(context.Background()), ErrClosed)
}

func TestWriter_SinkErrorsAreTracked(t *testing.T) {
	boom := errors.New("boom")
	sink := &memorySink{err: boom}
	w := New(sink, Config{FlushInterval: time.Hour}, nil)
	w.Write(rec("/a"))

	require.ErrorIs(t, w.Flush(context.Background()), boom)
	require.Equal(t, int64(1), w.ErrorCount())
	require.ErrorIs(t, w.LastError(), boom)
	_ = w.Close(context.Background())
}

func TestWriter_RecordsWrittenMetric(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	sink := &memorySink{}
	w := New(sink, Config{FlushInterval: time.Hour}, m)
	w.Write(rec("/a"))
	w.Write(rec("/b"))
	require.NoError(t, w.Flush(context.Background()))
	require.Equal(t, float64(2), testutil.ToFloat64(m.ActivityWritten))
	_ = w.Close(context.Background())
}

func TestTee(t *testing.T) {
	a, b := &memorySink{}, &memorySink{err: errors.New("kafka down")}
	c := &memorySink{}
	err := Tee(a, b, c).AddLogs(context.Background(), []dataaccess.LogRecord{rec("/a")})
	require.ErrorContains(t, err, "kafka down")
	require.Equal(t, 1, a.total())
	require.Equal(t, 1, c.total(), "a failing sink does not stop later ones")
}

func TestWriter_BatchesKeepOrder(t *testing.T) {
	sink := mocks.NewMockSink(t)
	first := []dataaccess.LogRecord{rec("/a"), rec("/b")}
	second := []dataaccess.LogRecord{rec("/c")}
	call := sink.EXPECT().AddLogs(mock.Anything, first).Return(nil).Once()
	sink.EXPECT().AddLogs(mock.Anything, second).Return(nil).Once().NotBefore(call)

	w := New(sink, Config{FlushInterval: time.Hour}, nil)
	w.Write(first[0])
	w.Write(first[1])
	require.NoError(t, w.Flush(context.Background()))
	w.Write(second[0])
	require.NoError(t, w.Close(context.Background()))
}
