package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/SentientTrainer/internal/animation"
	"github.com/AaronLay10/SentientTrainer/internal/events"
	"github.com/AaronLay10/SentientTrainer/internal/notify"
	"github.com/AaronLay10/SentientTrainer/internal/sequence"
	"github.com/AaronLay10/SentientTrainer/internal/steps"
)

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusActive     Status = "active"
	StatusCompleted  Status = "completed"
	StatusClosed     Status = "closed"
)

// TargetAutoClose is the scheduler key of the pending auto-close.
const TargetAutoClose = "session/autoclose"

const guardTimeout = 5 * time.Second

// Notification states reported in the progress view.
const (
	NotifyPending = "pending"
	NotifySent    = "sent"
	NotifyFailed  = "failed"
)

type Options struct {
	TrainingID  string
	ProjectName string
	CloseDelay  time.Duration
	AutoClose   bool
	Guard       ActiveGuard
	// Dispatcher delivers the completion; nil disables notification.
	Dispatcher *notify.Dispatcher
	// Post hands asynchronous results back to the owning goroutine.
	Post  func(func()) bool
	Now   func() time.Time
	NewID func() string
}

// Session is the facade the operator and the trainee UI talk to. It owns
// the session identity and the progress view around a sequence controller.
// Like the controller it must only be used from the session loop.
type Session struct {
	opts     Options
	ctrl     *sequence.Controller
	registry *steps.Registry
	sched    *animation.Scheduler

	id          string
	status      Status
	rejections  int
	startedAt   time.Time
	completedAt time.Time
	notifiedRun int
	notify      string
	pending     *steps.LoadResult

	// released is closed once the last guard release has finished.
	guardMu  sync.Mutex
	released chan struct{}
}

func New(ctrl *sequence.Controller, registry *steps.Registry, sched *animation.Scheduler, opts Options) *Session {
	if opts.Guard == nil {
		opts.Guard = NewMemoryGuard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.CloseDelay <= 0 {
		opts.CloseDelay = 3 * time.Second
	}

	s := &Session{
		opts:     opts,
		ctrl:     ctrl,
		registry: registry,
		sched:    sched,
		status:   StatusNotStarted,
	}
	ctrl.SetListener(s)
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Status() Status {
	return s.status
}

func (s *Session) Controller() *sequence.Controller {
	return s.ctrl
}

func (s *Session) fields(extra map[string]interface{}) map[string]interface{} {
	f := map[string]interface{}{
		"session_id":  s.id,
		"training_id": s.opts.TrainingID,
		"run":         s.ctrl.Run(),
	}
	for k, v := range extra {
		f[k] = v
	}
	return f
}

// Start opens a new session and begins the first attempt. It waits for
// the guard on the calling goroutine; the app claims the slot off the loop
// with Claim and finishes on the loop with Begin.
func (s *Session) Start(ctx context.Context) error {
	if s.Open() {
		return ErrSessionActive
	}
	id, err := s.Claim(ctx)
	if err != nil {
		return err
	}
	return s.Begin(id)
}

// Open reports whether a session is active or completed but not closed.
func (s *Session) Open() bool {
	return s.status == StatusActive || s.status == StatusCompleted
}

// Claim takes the training's active-session slot for a new session id.
// It touches only the guard and may run on any goroutine. A release still
// in flight from the previous session is waited for first.
func (s *Session) Claim(ctx context.Context) (string, error) {
	s.guardMu.Lock()
	pending := s.released
	s.guardMu.Unlock()
	if pending != nil {
		select {
		case <-pending:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	id := s.opts.NewID()
	gctx, cancel := context.WithTimeout(ctx, guardTimeout)
	defer cancel()
	if err := s.opts.Guard.Acquire(gctx, s.opts.TrainingID, id); err != nil {
		return "", err
	}
	return id, nil
}

// Begin opens the session claimed as id. On failure the claim is released.
func (s *Session) Begin(id string) error {
	if s.Open() {
		s.release(id)
		return ErrSessionActive
	}

	s.applyPending()
	if err := s.ctrl.Start(); err != nil {
		s.release(id)
		return err
	}

	s.id = id
	s.status = StatusActive
	s.rejections = 0
	s.startedAt = s.opts.Now()
	s.completedAt = time.Time{}
	s.notify = ""

	events.Emit("info", "session.started", "", s.fields(map[string]interface{}{
		"steps":  s.registry.Len(),
		"source": s.registry.Source(),
	}))
	return nil
}

// Abandon gives back a claim that never became the open session.
func (s *Session) Abandon(id string) {
	if s.Open() && s.id == id {
		return
	}
	s.release(id)
}

// release frees the slot held by id on its own goroutine, after any
// earlier release.
func (s *Session) release(id string) {
	done := make(chan struct{})
	s.guardMu.Lock()
	prev := s.released
	s.released = done
	s.guardMu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(context.Background(), guardTimeout)
		defer cancel()
		if err := s.opts.Guard.Release(ctx, s.opts.TrainingID, id); err != nil && !errors.Is(err, ErrNotActive) {
			events.Emit("error", "system.error", "cannot release session guard", map[string]interface{}{
				"session_id":  id,
				"training_id": s.opts.TrainingID,
				"error":       err.Error(),
			})
		}
	}()
}

// WaitGuard blocks until every pending guard release has finished.
func (s *Session) WaitGuard() {
	s.guardMu.Lock()
	pending := s.released
	s.guardMu.Unlock()
	if pending != nil {
		<-pending
	}
}

// Restart begins a new attempt in the current session, or starts a
// session when none is open.
func (s *Session) Restart(ctx context.Context) error {
	if !s.Open() {
		return s.Start(ctx)
	}

	s.sched.Cancel(TargetAutoClose)
	s.applyPending()
	if err := s.ctrl.Start(); err != nil {
		return err
	}
	s.status = StatusActive
	s.completedAt = time.Time{}
	s.notify = ""

	events.Emit("info", "session.restarted", "", s.fields(nil))
	return nil
}

// Close ends the session and frees the training for the next trainee.
func (s *Session) Close(ctx context.Context) error {
	return s.close(ctx, "operator")
}

func (s *Session) close(ctx context.Context, reason string) error {
	if !s.Open() {
		return ErrNotActive
	}

	s.sched.Cancel(TargetAutoClose)
	s.ctrl.Close()
	s.release(s.id)

	prev := s.status
	s.status = StatusClosed
	events.Emit("info", "session.closed", "", s.fields(map[string]interface{}{
		"reason":    reason,
		"completed": prev == StatusCompleted,
	}))

	s.applyPending()
	return nil
}

// Click forwards a trainee click to the controller.
func (s *Session) Click(objectID string) sequence.Outcome {
	return s.ctrl.OnObjectClicked(objectID)
}

// ApplySteps installs a freshly loaded step list. While a session is open
// the list is kept until it closes so the running attempt is not disturbed.
func (s *Session) ApplySteps(res steps.LoadResult) {
	if s.Open() {
		s.pending = &res
		return
	}
	s.registry.Apply(res)
}

func (s *Session) applyPending() {
	if s.pending == nil {
		return
	}
	res := *s.pending
	s.pending = nil
	s.registry.Apply(res)
}

func (s *Session) Progress() Progress {
	p := buildProgress(s.registry.Steps(), s.ctrl.CurrentIndex(), s.status)
	p.SessionID = s.id
	p.TrainingID = s.opts.TrainingID
	p.Source = s.registry.Source()
	p.Run = s.ctrl.Run()
	p.Rejections = s.rejections
	p.Notification = s.notify
	if !s.startedAt.IsZero() {
		t := s.startedAt
		p.StartedAt = &t
	}
	if !s.completedAt.IsZero() {
		t := s.completedAt
		p.CompletedAt = &t
	}
	if s.status == StatusNotStarted || s.status == StatusClosed {
		for i := range p.Steps {
			p.Steps[i].Status = StepPending
		}
	}
	return p
}

// StepAdvanced implements sequence.Listener.
func (s *Session) StepAdvanced(step steps.Step, next int) {
	events.Emit("info", "session.progress", "", s.fields(map[string]interface{}{
		"object_id": step.TargetID,
		"step":      step.Index,
		"next":      next,
		"total":     s.registry.Len(),
		"counter":   Counter(next, s.registry.Len()),
	}))
}

// SequenceReset implements sequence.Listener.
func (s *Session) SequenceReset(clickedID string, expected steps.Step) {
	s.rejections++
	events.Emit("info", "session.rejected", "", s.fields(map[string]interface{}{
		"object_id":  clickedID,
		"expected":   expected.TargetID,
		"step":       expected.Index,
		"rejections": s.rejections,
	}))
}

// SequenceCompleted implements sequence.Listener.
func (s *Session) SequenceCompleted() {
	s.status = StatusCompleted
	s.completedAt = s.opts.Now()

	events.Emit("info", "session.completed", "", s.fields(map[string]interface{}{
		"duration_ms": s.completedAt.Sub(s.startedAt).Milliseconds(),
		"rejections":  s.rejections,
	}))

	s.notifyCompletion()

	if s.opts.AutoClose {
		s.sched.Start(animation.Wait(TargetAutoClose, s.opts.CloseDelay, func() {
			s.close(context.Background(), "auto")
		}))
	}
}

// notifyCompletion dispatches at most once per run.
func (s *Session) notifyCompletion() {
	run := s.ctrl.Run()
	if s.opts.Dispatcher == nil || s.notifiedRun == run {
		return
	}
	s.notifiedRun = run
	s.notify = NotifyPending

	c := notify.Completion{
		ProjectName: s.opts.ProjectName,
		CompletedAt: s.completedAt.UTC(),
		SessionID:   s.id,
		Status:      notify.StatusCompleted,
	}
	s.opts.Dispatcher.Dispatch(context.Background(), c, func(err error) {
		result := NotifySent
		if err != nil {
			result = NotifyFailed
		}
		if s.opts.Post != nil {
			s.opts.Post(func() {
				if s.notifiedRun == run && s.ctrl.Run() == run {
					s.notify = result
				}
			})
		}
	})
}
