package postgres

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingWriter struct {
	mu      sync.Mutex
	batches [][]Row
	err     error
}

func (w *recordingWriter) write(rows []Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, append([]Row(nil), rows...))
	return w.err
}

func (w *recordingWriter) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func TestAppendBatchesBySize(t *testing.T) {
	w := &recordingWriter{}
	c := newClient("loto", w.write)
	go c.run()

	for i := 0; i < batchSize; i++ {
		if err := c.Append(Row{Event: "session.progress"}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for w.total() < batchSize && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.total() != batchSize {
		t.Fatalf("written = %d, want %d", w.total(), batchSize)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestCloseFlushesQueue(t *testing.T) {
	w := &recordingWriter{}
	c := newClient("loto", w.write)
	go c.run()

	for i := 0; i < 3; i++ {
		_ = c.Append(Row{Event: "session.started"})
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if w.total() != 3 {
		t.Errorf("flushed %d rows, want 3", w.total())
	}

	if err := c.Append(Row{}); !errors.Is(err, ErrClosed) {
		t.Errorf("append after close = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second close = %v", err)
	}
}

func TestFullQueueDrops(t *testing.T) {
	// No writer goroutine: the queue only fills.
	c := newClient("loto", nil)
	for i := 0; i < queueSize; i++ {
		if err := c.Append(Row{}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := c.Append(Row{}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("append on full queue = %v", err)
	}
	if c.Dropped() != 1 {
		t.Errorf("dropped = %d", c.Dropped())
	}
}

func TestWriteErrorsReachHandler(t *testing.T) {
	w := &recordingWriter{err: errors.New("connection reset")}
	c := newClient("loto", w.write)

	var mu sync.Mutex
	var got []error
	c.OnError(func(err error) {
		mu.Lock()
		got = append(got, err)
		mu.Unlock()
	})
	go c.run()

	_ = c.Append(Row{Event: "session.closed"})
	_ = c.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || !errors.Is(got[0], w.err) {
		t.Errorf("errors = %v", got)
	}
}

func TestBuildDSN(t *testing.T) {
	got := buildDSN(map[string]string{
		"host":     "db",
		"password": `it's a\secret`,
		"user":     "trainer",
		"sslmode":  "",
	})
	want := `host='db' password='it\'s a\\secret' user='trainer'`
	if got != want {
		t.Errorf("dsn = %s\nwant  %s", got, want)
	}
}
