package app

import (
	"context"

	"github.com/AaronLay10/SentientTrainer/internal/mqtt"
	"github.com/AaronLay10/SentientTrainer/internal/notify"
	"github.com/AaronLay10/SentientTrainer/internal/objects"
	"github.com/AaronLay10/SentientTrainer/internal/sequence"
	"github.com/AaronLay10/SentientTrainer/internal/session"
	"github.com/AaronLay10/SentientTrainer/internal/steps"
	"github.com/AaronLay10/SentientTrainer/internal/storage/postgres"
)

// The api.Trainer methods below run session work on the loop.

func (a *App) lifecycle(ctx context.Context, op func(context.Context) error) (session.Progress, error) {
	var p session.Progress
	var opErr error
	err := a.loop.Do(ctx, func() {
		opErr = op(ctx)
		p = a.session.Progress()
	})
	if err != nil {
		return session.Progress{}, err
	}
	return p, opErr
}

// Start claims the guard off the loop so a slow Redis never stalls a frame.
func (a *App) Start(ctx context.Context) (session.Progress, error) {
	var open bool
	if err := a.loop.Do(ctx, func() { open = a.session.Open() }); err != nil {
		return session.Progress{}, err
	}
	if open {
		return session.Progress{}, session.ErrSessionActive
	}

	id, err := a.session.Claim(ctx)
	if err != nil {
		return session.Progress{}, err
	}
	var p session.Progress
	var beginErr error
	if err := a.loop.Do(ctx, func() {
		beginErr = a.session.Begin(id)
		p = a.session.Progress()
	}); err != nil {
		// Begin may still run later; Abandon queued behind it keeps an open claim.
		if !a.loop.Post(func() { a.session.Abandon(id) }) {
			a.session.Abandon(id)
		}
		return session.Progress{}, err
	}
	return p, beginErr
}

func (a *App) Restart(ctx context.Context) (session.Progress, error) {
	var open bool
	if err := a.loop.Do(ctx, func() { open = a.session.Open() }); err != nil {
		return session.Progress{}, err
	}
	if !open {
		return a.Start(ctx)
	}
	return a.lifecycle(ctx, a.session.Restart)
}

func (a *App) Close(ctx context.Context) (session.Progress, error) {
	return a.lifecycle(ctx, a.session.Close)
}

func (a *App) Click(ctx context.Context, objectID string) (sequence.Outcome, session.Progress, error) {
	var outcome sequence.Outcome
	var p session.Progress
	err := a.loop.Do(ctx, func() {
		outcome = a.session.Click(objectID)
		p = a.session.Progress()
	})
	return outcome, p, err
}

func (a *App) Progress(ctx context.Context) (session.Progress, error) {
	var p session.Progress
	err := a.loop.Do(ctx, func() { p = a.session.Progress() })
	return p, err
}

func (a *App) Steps(ctx context.Context) ([]steps.Step, string, error) {
	var list []steps.Step
	var source string
	err := a.loop.Do(ctx, func() {
		list = a.registry.Steps()
		source = a.registry.Source()
	})
	return list, source, err
}

func (a *App) Scene(ctx context.Context) ([]objects.ObjectStatus, error) {
	var status []objects.ObjectStatus
	err := a.loop.Do(ctx, func() { status = a.scene.Status() })
	return status, err
}

// History reads the persisted log when Postgres is connected, the
// in-memory buffer otherwise.
func (a *App) History(limit int) ([]session.Summary, int, error) {
	if a.pg == nil {
		return session.LoadHistory(nil, limit)
	}
	return session.LoadHistory(a.pg, limit)
}

func (a *App) SessionEvents(sessionID string, limit int) ([]postgres.EventRow, error) {
	if a.pg == nil {
		return session.LoadSessionEvents(nil, sessionID, limit)
	}
	return session.LoadSessionEvents(a.pg, sessionID, limit)
}

func (a *App) PendingNotifications(ctx context.Context) ([]notify.Pending, error) {
	return a.dispatcher.Pending(ctx, 0)
}

func (a *App) ResendNotifications(ctx context.Context) (int, int, error) {
	return a.dispatcher.ResendPending(ctx)
}

func (a *App) Clients() []mqtt.ClientState {
	if a.monitor == nil {
		return []mqtt.ClientState{}
	}
	return a.monitor.Clients()
}
