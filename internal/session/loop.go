package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AaronLay10/SentientTrainer/internal/animation"
)

// ErrLoopStopped is returned by Do once the loop has stopped.
var ErrLoopStopped = errors.New("session loop stopped")

// maxFrameDelta caps a single tick after a stall.
const maxFrameDelta = 250 * time.Millisecond

// Loop is the single goroutine that owns the scene, the controller and the
// scheduler. Other goroutines reach them only through Post and Do.
type Loop struct {
	sched    *animation.Scheduler
	interval time.Duration
	cmds     chan func()
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  atomic.Bool
	frames   atomic.Int64

	// OnFrame runs on the loop after each tick.
	OnFrame func(dt time.Duration)
}

func NewLoop(sched *animation.Scheduler, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &Loop{
		sched:    sched,
		interval: interval,
		cmds:     make(chan func(), 256),
		stopCh:   make(chan struct{}),
	}
}

func (l *Loop) Start() {
	if !l.running.CompareAndSwap(false, true) {
		return
	}
	l.wg.Add(1)
	go l.run()
}

// Stop ends the loop and waits for the current frame to finish.
// Queued commands are dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	l.wg.Wait()
	l.running.Store(false)
}

func (l *Loop) Running() bool {
	return l.running.Load()
}

func (l *Loop) Frames() int64 {
	return l.frames.Load()
}

func (l *Loop) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-l.stopCh:
			return
		case fn := <-l.cmds:
			fn()
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if dt > maxFrameDelta {
				dt = maxFrameDelta
			}
			l.frame(dt)
		}
	}
}

func (l *Loop) drain() {
	for {
		select {
		case fn := <-l.cmds:
			fn()
		default:
			return
		}
	}
}

func (l *Loop) frame(dt time.Duration) {
	l.drain()
	l.sched.Tick(dt)
	l.frames.Add(1)
	if l.OnFrame != nil {
		l.OnFrame(dt)
	}
}

// Post queues fn for the next frame. It reports false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stopCh:
		return false
	default:
	}
	select {
	case l.cmds <- fn:
		return true
	case <-l.stopCh:
		return false
	}
}

// Do runs fn on the loop and waits for it. Before Start, fn runs on the
// caller's goroutine.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	if !l.running.Load() {
		select {
		case <-l.stopCh:
			return ErrLoopStopped
		default:
		}
		fn()
		return nil
	}

	done := make(chan struct{})
	select {
	case l.cmds <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopCh:
		return ErrLoopStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopCh:
		return ErrLoopStopped
	}
}

// Advance drains queued commands and ticks the scheduler by dt on the
// caller's goroutine. It is meant for tests and offline simulation and
// must not be used while the loop is running.
func (l *Loop) Advance(dt time.Duration) {
	step := l.interval
	for dt > 0 {
		if dt < step {
			step = dt
		}
		l.frame(step)
		dt -= step
	}
	l.drain()
}
