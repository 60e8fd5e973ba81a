package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AaronLay10/SentientTrainer/internal/api"
	"github.com/AaronLay10/SentientTrainer/internal/config"
	"github.com/AaronLay10/SentientTrainer/internal/events"
	"github.com/AaronLay10/SentientTrainer/internal/session"
	"github.com/AaronLay10/SentientTrainer/internal/steps"
)

const settle = 1500 * time.Millisecond

var builtinOrder = []string{"commutateur", "demande-d-acces", "operateur-cle-acces-1", "cle-1", "poignee", "Lock", "porte"}

func newOfflineApp(t *testing.T, mutate func(*config.TrainerConfig)) *App {
	t.Helper()
	events.Clear()

	cfg := config.Default()
	cfg.Session.AutoClose = new(bool)
	if mutate != nil {
		mutate(cfg)
	}
	a, err := Build(cfg, config.Secrets{}, Options{
		ConfigDir: t.TempDir(),
		Offline:   true,
		Output:    io.Discard,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return a
}

func TestSimulateBuiltinSequence(t *testing.T) {
	a := newOfflineApp(t, nil)

	res, err := a.Simulate(context.Background(), builtinOrder, settle)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	for i, c := range res.Clicks[:len(res.Clicks)-1] {
		if c.Outcome != "advanced" {
			t.Errorf("click %d (%s) = %s", i, c.ObjectID, c.Outcome)
		}
	}
	if last := res.Clicks[len(res.Clicks)-1]; last.Outcome != "completed" {
		t.Errorf("last click = %s", last.Outcome)
	}
	if res.Progress.Status != session.StatusCompleted || res.Progress.Counter != "TERMINÉ" {
		t.Errorf("progress = %s %q", res.Progress.Status, res.Progress.Counter)
	}
	if res.Progress.Source != steps.SourceBuiltin {
		t.Errorf("source = %s", res.Progress.Source)
	}
	if len(res.Notified) != 1 || res.Notified[0].SessionID != res.Progress.SessionID {
		t.Errorf("notified = %+v", res.Notified)
	}
	if res.Progress.Notification != session.NotifySent {
		t.Errorf("notification = %q", res.Progress.Notification)
	}
}

func TestSimulateWrongClickRestarts(t *testing.T) {
	a := newOfflineApp(t, nil)

	res, err := a.Simulate(context.Background(), []string{"commutateur", "porte", "commutateur"}, settle)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	want := []string{"advanced", "reset", "advanced"}
	for i, c := range res.Clicks {
		if c.Outcome != want[i] {
			t.Errorf("click %d = %s, want %s", i, c.Outcome, want[i])
		}
	}
	if res.Clicks[1].Counter != "Étape 1 / 7" || res.Clicks[2].Counter != "Étape 2 / 7" {
		t.Errorf("counters = %q, %q", res.Clicks[1].Counter, res.Clicks[2].Counter)
	}
	if res.Progress.Rejections != 1 {
		t.Errorf("rejections = %d", res.Progress.Rejections)
	}
	if len(res.Notified) != 0 {
		t.Error("an unfinished session must not notify")
	}
}

func TestMetadataFileReplacesBuiltin(t *testing.T) {
	dir := t.TempDir()
	md := `{"unity": {"porte": {"order": 2}, "commutateur": {"order": 1}, "robot-arm": {"order": 3}}}`
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), []byte(md), 0o644); err != nil {
		t.Fatal(err)
	}

	events.Clear()
	cfg := config.Default()
	a, err := Build(cfg, config.Secrets{}, Options{ConfigDir: dir, Offline: true, Output: io.Discard})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	res := a.LoadSteps(context.Background())
	if res.Fallback || res.Source != "file" {
		t.Fatalf("load = %+v", res)
	}
	var got []string
	for _, s := range res.Steps {
		got = append(got, s.TargetID)
	}
	if strings.Join(got, ",") != "commutateur,porte" {
		t.Errorf("steps = %v (objects outside the scene are dropped)", got)
	}
}

func TestHTTPDrivesSession(t *testing.T) {
	a := newOfflineApp(t, nil)
	a.session.ApplySteps(a.LoadSteps(context.Background()))
	h := a.Handler()

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	if w := post("/session/start", ""); w.Code != http.StatusOK {
		t.Fatalf("start = %d %s", w.Code, w.Body)
	}
	if w := post("/session/start", ""); w.Code != http.StatusConflict {
		t.Errorf("second start = %d, want 409", w.Code)
	}

	w := post("/session/click", `{"object_id":"commutateur"}`)
	var resp api.OperatorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Outcome != "advanced" || resp.Progress.Counter != "Étape 2 / 7" {
		t.Errorf("click response = %+v", resp)
	}
	a.loop.Advance(settle)

	req := httptest.NewRequest(http.MethodGet, "/scene", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), `"commutateur"`) {
		t.Errorf("scene = %s", rec.Body)
	}

	if w := post("/session/close", ""); w.Code != http.StatusOK {
		t.Errorf("close = %d", w.Code)
	}
	if w := post("/notifications/resend", ""); w.Code != http.StatusNotFound {
		t.Errorf("resend without outbox = %d, want 404", w.Code)
	}

	hist, _, err := a.History(0)
	if err != nil || len(hist) != 1 || hist[0].Status != session.StatusClosed {
		t.Errorf("history = %+v, %v", hist, err)
	}
}
