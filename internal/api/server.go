package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AaronLay10/SentientTrainer/internal/events"
	"github.com/AaronLay10/SentientTrainer/internal/mqtt"
	"github.com/AaronLay10/SentientTrainer/internal/notify"
	"github.com/AaronLay10/SentientTrainer/internal/objects"
	"github.com/AaronLay10/SentientTrainer/internal/sequence"
	"github.com/AaronLay10/SentientTrainer/internal/session"
	"github.com/AaronLay10/SentientTrainer/internal/steps"
	"github.com/AaronLay10/SentientTrainer/internal/storage/postgres"
)

// Trainer is the session surface exposed to operators. Implementations
// serialise calls onto the session loop.
type Trainer interface {
	Start(ctx context.Context) (session.Progress, error)
	Restart(ctx context.Context) (session.Progress, error)
	Close(ctx context.Context) (session.Progress, error)
	Click(ctx context.Context, objectID string) (sequence.Outcome, session.Progress, error)
	Progress(ctx context.Context) (session.Progress, error)
	Steps(ctx context.Context) ([]steps.Step, string, error)
	Scene(ctx context.Context) ([]objects.ObjectStatus, error)
	History(limit int) ([]session.Summary, int, error)
	SessionEvents(sessionID string, limit int) ([]postgres.EventRow, error)
	PendingNotifications(ctx context.Context) ([]notify.Pending, error)
	ResendNotifications(ctx context.Context) (sent, remaining int, err error)
	Clients() []mqtt.ClientState
}

type readinessState struct {
	mu                sync.RWMutex
	trainerReady      bool
	stepsSource       string
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}

var readiness = &readinessState{mqttOptional: true, postgresOptional: true}

type readinessSnapshot struct {
	trainerReady      bool
	stepsSource       string
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}

func (r *readinessState) snapshot() readinessSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return readinessSnapshot{
		trainerReady:      r.trainerReady,
		stepsSource:       r.stepsSource,
		mqttConnected:     r.mqttConnected,
		mqttOptional:      r.mqttOptional,
		postgresConnected: r.postgresConnected,
		postgresOptional:  r.postgresOptional,
	}
}

// SetTrainerReady records that the step registry is loaded and the loop runs.
func SetTrainerReady(ready bool, stepsSource string) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.trainerReady = ready
	readiness.stepsSource = stepsSource
}

// SetMQTTStatus records broker connectivity. An optional broker does not
// block readiness.
func SetMQTTStatus(connected, optional bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = optional
}

func SetPostgresStatus(connected, optional bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.postgresConnected = connected
	readiness.postgresOptional = optional
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

type CheckStatus struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckStatus `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

type OperatorResponse struct {
	OK       bool              `json:"ok"`
	Error    string            `json:"error,omitempty"`
	Outcome  string            `json:"outcome,omitempty"`
	Progress *session.Progress `json:"progress,omitempty"`
}

type ClickRequest struct {
	ObjectID string `json:"object_id"`
}

type StepsResponse struct {
	Source string       `json:"source"`
	Steps  []steps.Step `json:"steps"`
}

type HistoryResponse struct {
	Events   int               `json:"events"`
	Sessions []session.Summary `json:"sessions"`
}

type ResendResponse struct {
	OK        bool   `json:"ok"`
	Sent      int    `json:"sent"`
	Remaining int    `json:"remaining"`
	Error     string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps trainer errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionActive), errors.Is(err, session.ErrNotActive):
		return http.StatusConflict
	case errors.Is(err, steps.ErrNoSteps), errors.Is(err, session.ErrLoopStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, notify.ErrNoOutbox):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeOperatorError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), OperatorResponse{OK: false, Error: err.Error()})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "trainer",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	s := readiness.snapshot()

	resp := ReadinessResponse{Ready: true, Checks: map[string]CheckStatus{}}
	var notReady []string

	if s.trainerReady {
		resp.Checks["trainer"] = CheckStatus{Status: "ok", Detail: s.stepsSource}
	} else {
		resp.Checks["trainer"] = CheckStatus{Status: "not_ready"}
		notReady = append(notReady, "trainer")
	}

	dependency := func(name string, connected, optional bool) {
		switch {
		case connected:
			resp.Checks[name] = CheckStatus{Status: "ok"}
		case optional:
			resp.Checks[name] = CheckStatus{Status: "unavailable", Detail: "optional"}
		default:
			resp.Checks[name] = CheckStatus{Status: "not_ready"}
			notReady = append(notReady, name)
		}
	}
	dependency("mqtt", s.mqttConnected, s.mqttOptional)
	dependency("postgres", s.postgresConnected, s.postgresOptional)

	status := http.StatusOK
	if len(notReady) > 0 {
		resp.Ready = false
		resp.NotReadyMsg = fmt.Sprintf("not ready: %v", notReady)
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := eventFilter(r, "")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, OperatorResponse{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, events.Select(filter))
}

// Server is the operator HTTP API.
type Server struct {
	trainer Trainer
	metrics *Metrics
	handler http.Handler
}

func NewServer(trainer Trainer, metrics *Metrics) *Server {
	s := &Server{trainer: trainer, metrics: metrics}
	s.handler = s.buildRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler)
	r.Get("/events", eventsHandler)
	r.Get("/ws/events", wsEventsHandler)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Get("/steps", s.stepsHandler)
	r.Get("/scene", s.sceneHandler)
	r.Get("/clients", s.clientsHandler)

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.progressHandler)
		r.Get("/history", s.historyHandler)
		r.Get("/history/{id}", s.sessionEventsHandler)
		r.Post("/start", RequireAnyRole(s.lifecycleHandler("operator.start", s.trainer.Start)))
		r.Post("/restart", RequireAnyRole(s.lifecycleHandler("operator.restart", s.trainer.Restart)))
		r.Post("/close", RequireAnyRole(s.lifecycleHandler("operator.close", s.trainer.Close)))
		r.Post("/click", RequireAnyRole(s.clickHandler))
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/pending", RequireAnyRole(s.pendingHandler))
		r.Post("/resend", RequireAdmin(s.resendHandler))
	})

	return r
}

func (s *Server) stepsHandler(w http.ResponseWriter, r *http.Request) {
	list, source, err := s.trainer.Steps(r.Context())
	if err != nil {
		writeOperatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StepsResponse{Source: source, Steps: list})
}

func (s *Server) sceneHandler(w http.ResponseWriter, r *http.Request) {
	scene, err := s.trainer.Scene(r.Context())
	if err != nil {
		writeOperatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scene)
}

func (s *Server) clientsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.trainer.Clients())
}

func (s *Server) progressHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.trainer.Progress(r.Context())
	if err != nil {
		writeOperatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func queryLimit(r *http.Request, def int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, session.DefaultHistoryLimit)
	if !ok {
		writeJSON(w, http.StatusBadRequest, OperatorResponse{OK: false, Error: "invalid limit"})
		return
	}

	sessions, scanned, err := s.trainer.History(limit)
	if err != nil {
		writeOperatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Events: scanned, Sessions: sessions})
}

func (s *Server) sessionEventsHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, 200)
	if !ok {
		writeJSON(w, http.StatusBadRequest, OperatorResponse{OK: false, Error: "invalid limit"})
		return
	}

	id := chi.URLParam(r, "id")
	rows, err := s.trainer.SessionEvents(id, limit)
	if err != nil {
		writeOperatorError(w, err)
		return
	}
	if len(rows) == 0 {
		writeJSON(w, http.StatusNotFound, OperatorResponse{OK: false, Error: "unknown session " + id})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) lifecycleHandler(event string, op func(context.Context) (session.Progress, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events.Emit("info", event, "", auditFields(r, nil))

		p, err := op(r.Context())
		if err != nil {
			writeOperatorError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, OperatorResponse{OK: true, Progress: &p})
	}
}

func (s *Server) clickHandler(w http.ResponseWriter, r *http.Request) {
	var req ClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, OperatorResponse{OK: false, Error: "invalid JSON"})
		return
	}
	if req.ObjectID == "" {
		writeJSON(w, http.StatusBadRequest, OperatorResponse{OK: false, Error: "object_id required"})
		return
	}

	events.Emit("info", "operator.click", "", auditFields(r, map[string]interface{}{
		"object_id": req.ObjectID,
	}))

	outcome, p, err := s.trainer.Click(r.Context(), req.ObjectID)
	if err != nil {
		writeOperatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true, Outcome: outcome.String(), Progress: &p})
}

func (s *Server) pendingHandler(w http.ResponseWriter, r *http.Request) {
	pending, err := s.trainer.PendingNotifications(r.Context())
	if err != nil {
		writeOperatorError(w, err)
		return
	}
	if pending == nil {
		pending = []notify.Pending{}
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) resendHandler(w http.ResponseWriter, r *http.Request) {
	sent, remaining, err := s.trainer.ResendNotifications(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), ResendResponse{OK: false, Sent: sent, Remaining: remaining, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ResendResponse{OK: true, Sent: sent, Remaining: remaining})
}

// ListenAndServe serves the API on port until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tlsCfg, err := serverTLSConfig()
	if err != nil {
		return err
	}
	srv.TLSConfig = tlsCfg

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API listening on %s (tls=%v)\n", srv.Addr, srv.TLSConfig != nil)
		var err error
		if srv.TLSConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
