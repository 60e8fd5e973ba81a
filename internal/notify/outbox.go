package notify

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const outboxSchema = `
CREATE TABLE IF NOT EXISTS failed_notifications (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	project_name TEXT NOT NULL,
	completed_at TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	status       TEXT NOT NULL,
	last_error   TEXT NOT NULL DEFAULT '',
	attempts     INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_failed_notifications_session ON failed_notifications(session_id);
`

// Pending is a completion that could not be delivered.
type Pending struct {
	ID         int64      `json:"id"`
	Completion Completion `json:"completion"`
	LastError  string     `json:"last_error"`
	Attempts   int        `json:"attempts"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Outbox stores undelivered completions in a local SQLite file so they
// survive restarts and can be resent.
type Outbox struct {
	db   *sql.DB
	path string
}

func OpenOutbox(path string) (*Outbox, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create outbox directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, outboxSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create outbox schema: %w", err)
	}

	return &Outbox{db: db, path: path}, nil
}

func (o *Outbox) Path() string {
	return o.path
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// Save records c with the error that made its delivery fail.
func (o *Outbox) Save(ctx context.Context, c Completion, attempts int, cause error) (int64, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := o.db.ExecContext(ctx, `
		INSERT INTO failed_notifications (project_name, completed_at, session_id, status, last_error, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ProjectName, c.CompletedAt.UTC().Format(time.RFC3339Nano), c.SessionID, c.Status,
		msg, attempts, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("save notification: %w", err)
	}
	return res.LastInsertId()
}

// List returns up to limit pending completions, oldest first.
func (o *Outbox) List(ctx context.Context, limit int) ([]Pending, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := o.db.QueryContext(ctx, `
		SELECT id, project_name, completed_at, session_id, status, last_error, attempts, created_at
		FROM failed_notifications
		ORDER BY id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []Pending
	for rows.Next() {
		var p Pending
		var completedAt, createdAt string
		if err := rows.Scan(&p.ID, &p.Completion.ProjectName, &completedAt, &p.Completion.SessionID,
			&p.Completion.Status, &p.LastError, &p.Attempts, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		p.Completion.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (o *Outbox) Count(ctx context.Context) (int, error) {
	var n int
	if err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_notifications`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}

func (o *Outbox) Delete(ctx context.Context, id int64) error {
	if _, err := o.db.ExecContext(ctx, `DELETE FROM failed_notifications WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete notification %d: %w", id, err)
	}
	return nil
}

// MarkFailed bumps the attempt count of a pending completion after another failed resend.
func (o *Outbox) MarkFailed(ctx context.Context, id int64, attempts int, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := o.db.ExecContext(ctx, `
		UPDATE failed_notifications SET attempts = attempts + ?, last_error = ? WHERE id = ?`,
		attempts, msg, id)
	if err != nil {
		return fmt.Errorf("update notification %d: %w", id, err)
	}
	return nil
}
