package orchestrator

import (
	"context"
	"fmt"
	"sync"
)

// PauseController gates dispatch with pause/resume/stop state. Both the
// orchestrator's scheduler and individual workflow runs hold one.
type PauseController struct {
	// paused indicates dispatch is suspended.
	paused bool
	// stopped is a one-way latch set on shutdown.
	stopped bool
	// mu protects all fields.
	mu sync.RWMutex
	// cond signals waiters on resume or stop.
	cond *sync.Cond
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// NewPauseController creates a controller in the running state.
func NewPauseController() *PauseController {
	p := &PauseController{
		debugLog: func(format string, args ...interface{}) {},
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// SetDebugLog sets the debug logging function.
func (p *PauseController) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		p.mu.Lock()
		p.debugLog = fn
		p.mu.Unlock()
	}
}

// Pause suspends dispatch. Idempotent.
func (p *PauseController) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		p.debugLog("[pause] dispatch suspended")
	}
}

// Resume re-enables dispatch and wakes every waiter.
func (p *PauseController) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		p.debugLog("[pause] dispatch resumed")
		p.cond.Broadcast()
	}
}

// Stop latches the stopped state and unblocks any WaitIfPaused calls.
func (p *PauseController) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		p.cond.Broadcast()
	}
}

// IsPaused reports whether dispatch is suspended.
func (p *PauseController) IsPaused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// IsStopped reports whether the controller has been stopped.
func (p *PauseController) IsStopped() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stopped
}

// WaitIfPaused blocks while paused, returning when resumed. It returns
// an error if the context ends or the controller is stopped.
func (p *PauseController) WaitIfPaused(ctx context.Context) error {
	p.mu.Lock()
	if p.paused && !p.stopped {
		// One watcher goroutine per blocked call; spurious cond
		// wakeups re-enter the wait loop without spawning more.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.cond.Broadcast()
				p.mu.Unlock()
			case <-done:
			}
		}()

		for p.paused && !p.stopped {
			p.cond.Wait()
			if ctx.Err() != nil {
				close(done)
				p.mu.Unlock()
				return ctx.Err()
			}
		}
		close(done)
	}
	if p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("pause controller stopped")
	}
	p.mu.Unlock()
	return nil
}
