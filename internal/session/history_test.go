package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AaronLay10/SentientTrainer/internal/events"
	"github.com/AaronLay10/SentientTrainer/internal/storage/postgres"
)

type fakeSource struct {
	rows []postgres.EventRow
	err  error
}

func (f fakeSource) Query(limit int) ([]postgres.EventRow, error) {
	return f.rows, f.err
}

func row(id int64, offset time.Duration, event, session string, fields map[string]interface{}) postgres.EventRow {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := postgres.EventRow{
		EventID:   id,
		Timestamp: base.Add(offset),
		Level:     "info",
		Event:     event,
		Fields:    fields,
	}
	if session != "" {
		r.SessionID = &session
	}
	return r
}

func TestSummarize(t *testing.T) {
	// Newest first, as the event log returns them.
	rows := []postgres.EventRow{
		row(9, 9*time.Minute, "session.started", "s2", nil),
		row(8, 8*time.Minute, "session.closed", "s1", map[string]interface{}{"reason": "auto"}),
		row(7, 7*time.Minute, "notify.sent", "s1", nil),
		row(6, 6*time.Minute, "session.completed", "s1", nil),
		row(5, 5*time.Minute, "session.progress", "s1", nil),
		row(4, 4*time.Minute, "session.restarted", "s1", nil),
		row(3, 3*time.Minute, "session.rejected", "s1", nil),
		row(2, 2*time.Minute, "session.progress", "s1", nil),
		row(1, time.Minute, "session.started", "s1", nil),
		row(0, 0, "system.startup", "", nil),
	}

	got := Summarize(rows)
	if len(got) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(got))
	}
	if got[0].SessionID != "s2" || got[0].Status != StatusActive || got[0].Runs != 1 {
		t.Errorf("latest session %+v", got[0])
	}

	s1 := got[1]
	if s1.Runs != 2 || s1.Rejections != 1 || s1.StepsValidated != 2 || s1.Completions != 1 {
		t.Errorf("counts %+v", s1)
	}
	if !s1.Notified || s1.Status != StatusClosed || s1.CloseReason != "auto" {
		t.Errorf("closing state %+v", s1)
	}
	if s1.ClosedAt == nil || s1.ClosedAt.Sub(s1.StartedAt) != 7*time.Minute {
		t.Errorf("closed_at = %v", s1.ClosedAt)
	}
}

func TestSummarizeSessionFromFields(t *testing.T) {
	rows := []postgres.EventRow{
		row(1, 0, "session.started", "", map[string]interface{}{"session_id": "s9"}),
	}
	got := Summarize(rows)
	if len(got) != 1 || got[0].SessionID != "s9" {
		t.Errorf("got %+v", got)
	}
}

func TestLoadHistory(t *testing.T) {
	_, _, err := LoadHistory(fakeSource{err: errors.New("db down")}, 10)
	if err == nil {
		t.Error("expected query error")
	}

	got, n, err := LoadHistory(fakeSource{rows: []postgres.EventRow{row(1, 0, "session.started", "s1", nil)}}, 0)
	if err != nil || n != 1 || len(got) != 1 {
		t.Errorf("got %v, %d, %v", got, n, err)
	}
}

func TestLoadHistoryFromBuffer(t *testing.T) {
	events.Clear()
	h := newHarness(t, []string{"A"}, func(o *Options) { o.AutoClose = false })
	ctx := context.Background()
	h.session.Start(ctx)
	h.session.Click("A")
	h.session.Close(ctx)
	h.settle()

	got, _, err := LoadHistory(nil, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 session, got %d", len(got))
	}
	if got[0].Completions != 1 || got[0].Status != StatusClosed || got[0].StepsValidated != 1 {
		t.Errorf("summary %+v", got[0])
	}
}

func TestLoadSessionEventsFromBuffer(t *testing.T) {
	events.Clear()
	h := newHarness(t, []string{"A", "B"}, func(o *Options) { o.AutoClose = false })
	ctx := context.Background()
	h.session.Start(ctx)
	id := h.session.Progress().SessionID
	h.session.Click("A")
	h.session.Close(ctx)
	h.settle()

	rows, err := LoadSessionEvents(nil, id, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) < 3 || rows[0].Event != "session.started" {
		t.Fatalf("rows = %+v", rows)
	}
	if last := rows[len(rows)-1]; last.Event != "session.closed" {
		t.Errorf("last event = %s", last.Event)
	}

	limited, _ := LoadSessionEvents(nil, id, 2)
	if len(limited) != 2 {
		t.Errorf("limit ignored: %d rows", len(limited))
	}
	if none, _ := LoadSessionEvents(nil, "unknown", 0); len(none) != 0 {
		t.Errorf("unknown session returned %d rows", len(none))
	}
}
