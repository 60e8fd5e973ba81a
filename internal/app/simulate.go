package app

import (
	"context"
	"errors"
	"time"

	"github.com/AaronLay10/SentientTrainer/internal/notify"
	"github.com/AaronLay10/SentientTrainer/internal/session"
	"github.com/AaronLay10/SentientTrainer/internal/steps"
)

var errLoopRunning = errors.New("simulate needs a stopped loop")

// SimClick is the outcome of one simulated click.
type SimClick struct {
	ObjectID string `json:"object_id"`
	Outcome  string `json:"outcome"`
	Counter  string `json:"counter"`
}

type SimResult struct {
	Clicks   []SimClick          `json:"clicks"`
	Progress session.Progress    `json:"progress"`
	Notified []notify.Completion `json:"notified,omitempty"`
}

// Simulate plays a session without the frame loop goroutine: it loads the
// steps, starts, clicks each id in turn and advances the animations by
// settle after every click.
func (a *App) Simulate(ctx context.Context, ids []string, settle time.Duration) (*SimResult, error) {
	if a.loop.Running() {
		return nil, errLoopRunning
	}

	a.session.ApplySteps(a.registry.Fetch(ctx, a.provider))
	if err := a.registry.Validate(); err != nil {
		return nil, err
	}
	if err := a.session.Start(ctx); err != nil {
		return nil, err
	}
	a.loop.Advance(settle)

	res := &SimResult{}
	for _, id := range ids {
		outcome := a.session.Click(id)
		a.loop.Advance(settle)
		res.Clicks = append(res.Clicks, SimClick{
			ObjectID: id,
			Outcome:  outcome.String(),
			Counter:  a.session.Progress().Counter,
		})
	}

	// Let the completion notification land back on the loop.
	a.dispatcher.Wait()
	a.loop.Advance(a.cfg.FrameInterval())

	res.Progress = a.session.Progress()
	if sim, ok := a.notifier.(*notify.SimulatedNotifier); ok {
		res.Notified = sim.Sent()
	}
	return res, nil
}

// LoadSteps fetches the step list once and returns it, with the provider's
// name, without touching a running session.
func (a *App) LoadSteps(ctx context.Context) steps.LoadResult {
	return a.registry.Fetch(ctx, a.provider)
}
