package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lib/pq"

	"github.com/AaronLay10/SentientTrainer/internal/config"
)

const (
	queueSize     = 1024
	batchSize     = 64
	flushInterval = 500 * time.Millisecond
)

var (
	ErrQueueFull = errors.New("postgres: event queue full")
	ErrClosed    = errors.New("postgres: client closed")
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID    int64                  `json:"event_id"`
	Timestamp  time.Time              `json:"ts"`
	Level      string                 `json:"level"`
	Event      string                 `json:"event"`
	Message    *string                `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	TrainingID string                 `json:"training_id"`
	SessionID  *string                `json:"session_id,omitempty"`
}

// Row is an event waiting to be written.
type Row struct {
	Timestamp time.Time
	Level     string
	Event     string
	Message   string
	Fields    map[string]interface{}
	SessionID string
}

// Client persists training events. Append only queues the row; a
// background writer copies queued rows in batches so callers on the
// session loop never wait on the database.
type Client struct {
	db         *sql.DB
	trainingID string
	write      func([]Row) error

	mu     sync.RWMutex
	closed bool
	queue  chan Row
	done   chan struct{}

	dropped atomic.Int64
	onError atomic.Value // func(error)
}

// New connects using the libpq environment (PGHOST, PGPORT, PGUSER,
// PGDATABASE, PGSSLMODE). The password comes from PGPASSWORD or
// PGPASSWORD_FILE.
func New(trainingID string) (*Client, error) {
	password, err := config.ResolveSecret(config.EnvPGPassword)
	if err != nil {
		return nil, err
	}
	dsn := buildDSN(map[string]string{
		"host":     getEnv("PGHOST", "127.0.0.1"),
		"port":     getEnv("PGPORT", "5432"),
		"user":     getEnv("PGUSER", "trainer"),
		"dbname":   getEnv("PGDATABASE", "trainer"),
		"sslmode":  getEnv("PGSSLMODE", "disable"),
		"password": password,
	})

	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	db := sql.OpenDB(connector)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if err := createTable(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}

	c := newClient(trainingID, nil)
	c.db = db
	c.write = c.copyRows
	go c.run()
	return c, nil
}

func newClient(trainingID string, write func([]Row) error) *Client {
	return &Client{
		trainingID: trainingID,
		write:      write,
		queue:      make(chan Row, queueSize),
		done:       make(chan struct{}),
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// buildDSN renders a key=value connection string, quoting values so
// passwords may contain spaces or quotes. Empty values are left out.
func buildDSN(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	quote := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s='%s'", k, quote.Replace(params[k])))
	}
	return strings.Join(parts, " ")
}

func createTable(db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS training_events (
			event_id    BIGSERIAL PRIMARY KEY,
			ts          TIMESTAMPTZ NOT NULL,
			level       TEXT NOT NULL,
			event       TEXT NOT NULL,
			msg         TEXT,
			fields      JSONB,
			training_id TEXT NOT NULL,
			session_id  TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_training_events_ts ON training_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_training_events_training_id ON training_events(training_id);
		CREATE INDEX IF NOT EXISTS idx_training_events_session_id ON training_events(session_id);
	`
	_, err := db.Exec(query)
	return err
}

// OnError installs the handler for background write failures.
func (c *Client) OnError(fn func(error)) {
	c.onError.Store(fn)
}

func (c *Client) reportError(err error) {
	if fn, ok := c.onError.Load().(func(error)); ok && fn != nil {
		fn(err)
	}
}

// Append queues one event. It never blocks: a full queue drops the row
// and returns ErrQueueFull.
func (c *Client) Append(r Row) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	select {
	case c.queue <- r:
		return nil
	default:
		c.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped returns the number of rows lost to a full queue.
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

func (c *Client) run() {
	defer close(c.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Row, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := c.write(batch); err != nil {
			c.reportError(fmt.Errorf("write %d events: %w", len(batch), err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case r, ok := <-c.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, r)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// copyRows writes a batch with COPY in a single transaction.
func (c *Client) copyRows(rows []Row) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn("training_events",
		"ts", "level", "event", "msg", "fields", "training_id", "session_id"))
	if err != nil {
		return err
	}

	for _, r := range rows {
		var fields interface{}
		if r.Fields != nil {
			b, err := json.Marshal(r.Fields)
			if err != nil {
				stmt.Close()
				return fmt.Errorf("failed to marshal fields: %w", err)
			}
			// COPY text format: jsonb takes the document as text.
			fields = string(b)
		}
		if _, err := stmt.Exec(r.Timestamp, r.Level, r.Event, nullable(r.Message), fields, c.trainingID, nullable(r.SessionID)); err != nil {
			stmt.Close()
			return err
		}
	}
	if _, err := stmt.Exec(); err != nil {
		stmt.Close()
		return err
	}
	if err := stmt.Close(); err != nil {
		return err
	}
	return tx.Commit()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Query returns the last N events from the database in descending order by timestamp.
func (c *Client) Query(limit int) ([]EventRow, error) {
	query := `
		SELECT event_id, ts, level, event, msg, fields, training_id, session_id
		FROM training_events
		WHERE training_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, c.trainingID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows)
}

// QuerySession returns the events of one training session in chronological order.
func (c *Client) QuerySession(sessionID string, limit int) ([]EventRow, error) {
	query := `
		SELECT event_id, ts, level, event, msg, fields, training_id, session_id
		FROM training_events
		WHERE training_id = $1 AND session_id = $2
		ORDER BY ts ASC
		LIMIT $3
	`
	rows, err := c.db.Query(query, c.trainingID, sessionID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	if limit > 10000 {
		return 10000
	}
	return limit
}

func scanRows(rows *sql.Rows) ([]EventRow, error) {
	var out []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, sessionID sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.TrainingID, &sessionID); err != nil {
			return nil, err
		}
		if msg.Valid {
			e.Message = &msg.String
		}
		if sessionID.Valid {
			e.SessionID = &sessionID.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close stops accepting events, flushes the queue and closes the
// connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	<-c.done
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
