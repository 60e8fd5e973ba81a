package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/AaronLay10/SentientTrainer/internal/events"
)

// ErrNoOutbox is returned by outbox operations when none is configured.
var ErrNoOutbox = errors.New("notification outbox not configured")

type Options struct {
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.Delay <= 0 {
		o.Delay = 2 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	return o
}

// Dispatcher delivers completions with bounded retries and records the
// ones that still fail in the outbox.
type Dispatcher struct {
	notifier Notifier
	outbox   *Outbox
	opts     Options
	wg       sync.WaitGroup
}

// NewDispatcher wraps n. outbox may be nil, in which case failed
// completions are only reported.
func NewDispatcher(n Notifier, outbox *Outbox, opts Options) *Dispatcher {
	return &Dispatcher{
		notifier: n,
		outbox:   outbox,
		opts:     opts.withDefaults(),
	}
}

func (d *Dispatcher) Outbox() *Outbox {
	return d.outbox
}

// deliver runs the retry window and returns the number of attempts made.
func (d *Dispatcher) deliver(ctx context.Context, c Completion) (int, error) {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		events.Emit("debug", "notify.attempt", "", map[string]interface{}{
			"session_id": c.SessionID,
			"notifier":   d.notifier.Name(),
			"attempt":    attempt,
		})
		actx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
		return struct{}{}, d.notifier.Notify(actx, c)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(d.opts.Delay)),
		backoff.WithMaxTries(uint(d.opts.Attempts)),
	)
	return attempt, err
}

// Send delivers c synchronously. A completion that exhausts its attempts
// is saved to the outbox; the delivery error is still returned.
func (d *Dispatcher) Send(ctx context.Context, c Completion) error {
	attempts, err := d.deliver(ctx, c)
	if err == nil {
		events.Emit("info", "notify.sent", "", map[string]interface{}{
			"session_id":   c.SessionID,
			"project_name": c.ProjectName,
			"notifier":     d.notifier.Name(),
			"attempts":     attempts,
		})
		return nil
	}

	events.Emit("error", "notify.failed", err.Error(), map[string]interface{}{
		"session_id":   c.SessionID,
		"project_name": c.ProjectName,
		"notifier":     d.notifier.Name(),
		"attempts":     attempts,
	})

	if d.outbox == nil {
		return err
	}
	// The request context may already be done; the record must still land.
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id, serr := d.outbox.Save(sctx, c, attempts, err)
	if serr != nil {
		events.Emit("error", "system.error", "cannot record failed notification", map[string]interface{}{
			"session_id": c.SessionID,
			"error":      serr.Error(),
		})
		return err
	}
	events.Emit("warn", "notify.recorded", "", map[string]interface{}{
		"session_id": c.SessionID,
		"outbox_id":  id,
	})
	return err
}

// Dispatch runs Send on its own goroutine. done, when set, receives the
// result on that goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, c Completion, done func(error)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		err := d.Send(ctx, c)
		if done != nil {
			done(err)
		}
	}()
}

// Wait blocks until every dispatched completion has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) Pending(ctx context.Context, limit int) ([]Pending, error) {
	if d.outbox == nil {
		return nil, ErrNoOutbox
	}
	return d.outbox.List(ctx, limit)
}

// ResendPending retries every recorded completion once through the retry
// window. Delivered records are removed. It returns how many were sent and
// how many remain.
func (d *Dispatcher) ResendPending(ctx context.Context) (sent, remaining int, err error) {
	if d.outbox == nil {
		return 0, 0, ErrNoOutbox
	}

	pending, err := d.outbox.List(ctx, 0)
	if err != nil {
		return 0, 0, err
	}

	for _, p := range pending {
		if ctx.Err() != nil {
			return sent, len(pending) - sent, ctx.Err()
		}

		attempts, derr := d.deliver(ctx, p.Completion)
		if derr != nil {
			remaining++
			if err := d.outbox.MarkFailed(ctx, p.ID, attempts, derr); err != nil {
				return sent, len(pending) - sent, err
			}
			continue
		}

		if err := d.outbox.Delete(ctx, p.ID); err != nil {
			return sent, len(pending) - sent, err
		}
		sent++
		events.Emit("info", "notify.resent", "", map[string]interface{}{
			"session_id": p.Completion.SessionID,
			"outbox_id":  p.ID,
			"attempts":   attempts,
		})
	}
	return sent, remaining, nil
}
