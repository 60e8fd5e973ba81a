package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AaronLay10/SentientTrainer/internal/storage/postgres"
)

var buffer = NewRingBuffer(256)

var totalCount atomic.Int64

var (
	pgClient      *postgres.Client
	pgMu          sync.RWMutex
	pgErrorLogged bool
)

var (
	output   io.Writer
	outputMu sync.Mutex
)

// SetPostgresClient persists events at info level and above to client.
// Pass nil to stop.
func SetPostgresClient(client *postgres.Client) {
	pgMu.Lock()
	pgClient = client
	pgErrorLogged = false
	pgMu.Unlock()
	if client != nil {
		client.OnError(recordPostgresError)
	}
}

// recordPostgresError buffers the first persistence failure as a
// system.error. It bypasses Emit so a failing database cannot recurse.
func recordPostgresError(err error) {
	pgMu.Lock()
	if pgErrorLogged {
		pgMu.Unlock()
		return
	}
	pgErrorLogged = true
	pgMu.Unlock()

	buffer.Add(Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     "error",
		Name:      "system.error",
		Message:   "postgres append failed",
		Fields:    map[string]interface{}{"error": err.Error()},
	})
}

// PersistDropped returns the events the Postgres queue had to drop.
func PersistDropped() int64 {
	pgMu.RLock()
	defer pgMu.RUnlock()
	if pgClient == nil {
		return 0
	}
	return pgClient.Dropped()
}

// SetOutput echoes every emitted event as a JSON line to w.
// Pass nil to disable.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	totalCount.Add(1)
	broadcast(e)

	pgMu.RLock()
	client := pgClient
	pgMu.RUnlock()
	if client != nil && AtLeast(level, "info") {
		sessionID, _ := fields["session_id"].(string)
		err := client.Append(postgres.Row{
			Timestamp: ts,
			Level:     level,
			Event:     name,
			Message:   msg,
			Fields:    fields,
			SessionID: sessionID,
		})
		if err != nil {
			recordPostgresError(err)
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	outputMu.Lock()
	if output != nil {
		fmt.Fprintln(output, string(b))
	}
	outputMu.Unlock()

	return b, nil
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// TotalCount returns the number of events emitted since startup.
func TotalCount() int64 {
	return totalCount.Load()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}

// Select returns the buffered events matching f, oldest first.
func Select(f Filter) []Event {
	return buffer.Select(f)
}

// Find returns buffered events with exactly the given name, oldest first.
func Find(name string) []Event {
	var out []Event
	for _, e := range buffer.Select(Filter{Prefix: name}) {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
