// Package executor maps capability names to the code that performs them.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// Executor performs the work behind a single capability.
type Executor interface {
	Execute(ctx context.Context, task *models.Task) (models.Result, error)
}

// Func adapts a plain function to the Executor interface.
type Func func(ctx context.Context, task *models.Task) (models.Result, error)

// Execute calls the function.
func (f Func) Execute(ctx context.Context, task *models.Task) (models.Result, error) {
	return f(ctx, task)
}

// Registry maps capability names to executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register binds an executor to a capability name, replacing any
// previous binding.
func (r *Registry) Register(capability string, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[capability] = exec
}

// RegisterFunc binds a function to a capability name.
func (r *Registry) RegisterFunc(capability string, fn Func) {
	r.Register(capability, fn)
}

// Get returns the executor for a capability.
func (r *Registry) Get(capability string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[capability]
	return exec, ok
}

// Capabilities returns the registered capability names, any order.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.executors))
	for name := range r.executors {
		out = append(out, name)
	}
	return out
}

// Execute runs the executor bound to the task's capability, honoring the
// task's timeout when set.
func (r *Registry) Execute(ctx context.Context, task *models.Task) (models.Result, error) {
	exec, ok := r.Get(task.Capability)
	if !ok {
		return nil, fmt.Errorf("no executor registered for capability %q", task.Capability)
	}

	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	return exec.Execute(ctx, task)
}
