package session

import (
	"sort"
	"time"

	"github.com/AaronLay10/SentientTrainer/internal/events"
	"github.com/AaronLay10/SentientTrainer/internal/storage/postgres"
)

// DefaultHistoryLimit is the number of events read to rebuild the history.
const DefaultHistoryLimit = 1000

// Summary is one session reconstructed from the event log.
type Summary struct {
	SessionID      string     `json:"session_id"`
	StartedAt      time.Time  `json:"started_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	Status         Status     `json:"status"`
	Runs           int        `json:"runs"`
	Rejections     int        `json:"rejections"`
	StepsValidated int        `json:"steps_validated"`
	Completions    int        `json:"completions"`
	Notified       bool       `json:"notified"`
	CloseReason    string     `json:"close_reason,omitempty"`
}

// EventSource is the persisted event log, newest first.
type EventSource interface {
	Query(limit int) ([]postgres.EventRow, error)
}

// LoadHistory summarises the sessions found in the last limit events.
// With a nil source the in-memory event buffer is used.
func LoadHistory(src EventSource, limit int) ([]Summary, int, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	var rows []postgres.EventRow
	if src == nil {
		rows = RowsFromEvents(events.Snapshot())
	} else {
		var err error
		rows, err = src.Query(limit)
		if err != nil {
			return nil, 0, err
		}
	}
	return Summarize(rows), len(rows), nil
}

// SessionSource reads the log of a single session.
type SessionSource interface {
	QuerySession(sessionID string, limit int) ([]postgres.EventRow, error)
}

// LoadSessionEvents returns the events of one session, oldest first.
// With a nil source the in-memory event buffer is used.
func LoadSessionEvents(src SessionSource, sessionID string, limit int) ([]postgres.EventRow, error) {
	if src != nil {
		return src.QuerySession(sessionID, limit)
	}
	rows := RowsFromEvents(events.Select(events.Filter{SessionID: sessionID}))
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// RowsFromEvents converts buffered events to log rows.
func RowsFromEvents(evts []events.Event) []postgres.EventRow {
	rows := make([]postgres.EventRow, 0, len(evts))
	for i, e := range evts {
		ts, _ := time.Parse(time.RFC3339Nano, e.Timestamp)
		row := postgres.EventRow{
			EventID:   int64(i + 1),
			Timestamp: ts,
			Level:     e.Level,
			Event:     e.Name,
			Fields:    e.Fields,
		}
		if id, ok := e.Fields["session_id"].(string); ok && id != "" {
			row.SessionID = &id
		}
		rows = append(rows, row)
	}
	return rows
}

// Summarize replays session events in chronological order. Rows without a
// session id are ignored. Sessions are returned most recent first.
func Summarize(rows []postgres.EventRow) []Summary {
	sorted := append([]postgres.EventRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].EventID < sorted[j].EventID
	})

	byID := make(map[string]*Summary)
	var order []string

	for _, row := range sorted {
		id := rowSession(row)
		if id == "" {
			continue
		}
		s, ok := byID[id]
		if !ok {
			s = &Summary{SessionID: id, StartedAt: row.Timestamp, Status: StatusActive}
			byID[id] = s
			order = append(order, id)
		}

		switch row.Event {
		case "session.started":
			s.StartedAt = row.Timestamp
			s.Runs++
			s.Status = StatusActive
		case "session.restarted":
			s.Runs++
			s.Status = StatusActive
		case "session.progress":
			s.StepsValidated++
		case "session.rejected":
			s.Rejections++
		case "session.completed":
			s.Completions++
			s.Status = StatusCompleted
		case "session.closed":
			t := row.Timestamp
			s.ClosedAt = &t
			s.Status = StatusClosed
			if reason, ok := row.Fields["reason"].(string); ok {
				s.CloseReason = reason
			}
		case "notify.sent", "notify.resent":
			s.Notified = true
		}
	}

	out := make([]Summary, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		out = append(out, *byID[order[i]])
	}
	return out
}

func rowSession(row postgres.EventRow) string {
	if row.SessionID != nil && *row.SessionID != "" {
		return *row.SessionID
	}
	if id, ok := row.Fields["session_id"].(string); ok {
		return id
	}
	return ""
}
