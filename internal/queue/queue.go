// Package queue provides the priority-tiered, dependency-gated holding area
// for tasks awaiting assignment.
package queue

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// ErrCycleDetected indicates a circular dependency among submitted tasks.
var ErrCycleDetected = errors.New("circular dependency detected")

// priorities in strict dequeue order, highest first.
var priorities = []models.TaskPriority{
	models.PriorityCritical,
	models.PriorityHigh,
	models.PriorityNormal,
	models.PriorityLow,
}

// TaskQueue holds tasks in four strict priority buckets, each FIFO.
// Tasks with unmet dependencies are parked until every dependency
// completes, then moved to their bucket in original submission order.
type TaskQueue struct {
	mu sync.RWMutex
	// buckets maps priority to its FIFO sequence.
	buckets map[models.TaskPriority][]*models.Task
	// waiting holds tasks parked on unmet dependencies, keyed by task ID.
	waiting map[string]*models.Task
	// waitingOrder preserves submission order for re-evaluation.
	waitingOrder []string
	// completed is the set of task IDs known to have completed.
	completed map[string]bool
	// known tracks every task ID ever enqueued, for cycle checks.
	known map[string][]string
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates an empty task queue.
func New() *TaskQueue {
	return &TaskQueue{
		buckets:   make(map[models.TaskPriority][]*models.Task),
		waiting:   make(map[string]*models.Task),
		completed: make(map[string]bool),
		known:     make(map[string][]string),
		debugLog:  func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (q *TaskQueue) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		q.debugLog = fn
	}
}

// Enqueue adds a task. If every dependency is already completed the task
// goes to the back of its priority bucket; otherwise it is parked as
// waiting_dependencies. A dependency cycle among known tasks is rejected.
func (q *TaskQueue) Enqueue(task *models.Task) error {
	if !task.Priority.Valid() {
		return fmt.Errorf("task %s has invalid priority %d", task.ID, task.Priority)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.known[task.ID] = task.Dependencies
	if q.hasCycleLocked() {
		delete(q.known, task.ID)
		return fmt.Errorf("task %s: %w", task.ID, ErrCycleDetected)
	}

	if q.dependenciesMetLocked(task) {
		task.Status = models.TaskStatusPending
		q.buckets[task.Priority] = append(q.buckets[task.Priority], task)
		q.debugLog("[queue.Enqueue] task %s queued at %s priority", task.ID, task.Priority)
	} else {
		task.Status = models.TaskStatusWaitingDependencies
		q.waiting[task.ID] = task
		q.waitingOrder = append(q.waitingOrder, task.ID)
		q.debugLog("[queue.Enqueue] task %s waiting on dependencies %v", task.ID, task.Dependencies)
	}
	return nil
}

// Requeue returns a task to the FRONT of its priority bucket. Used when
// resource admission fails so the task is not silently dropped and keeps
// its place ahead of later arrivals.
func (q *TaskQueue) Requeue(task *models.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	task.Status = models.TaskStatusPending
	q.buckets[task.Priority] = append([]*models.Task{task}, q.buckets[task.Priority]...)
	q.debugLog("[queue.Requeue] task %s returned to front of %s bucket", task.ID, task.Priority)
}

// Filter restricts Dequeue to tasks matching an agent's class and
// declared capability set.
type Filter struct {
	// AgentClass, when non-empty, requires task.AgentClass to match.
	AgentClass string
	// CanHandle, when non-nil, requires it to accept task.Capability.
	CanHandle func(capability string) bool
}

func (f *Filter) matches(task *models.Task) bool {
	if f == nil {
		return true
	}
	if f.AgentClass != "" && task.AgentClass != f.AgentClass {
		return false
	}
	if f.CanHandle != nil && !f.CanHandle(task.Capability) {
		return false
	}
	return true
}

// Dequeue removes and returns the first matching task, scanning buckets
// highest priority first and FIFO within each bucket. Returns nil when
// nothing matches.
func (q *TaskQueue) Dequeue(filter *Filter) *models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range priorities {
		bucket := q.buckets[p]
		for i, task := range bucket {
			if filter.matches(task) {
				q.buckets[p] = append(bucket[:i:i], bucket[i+1:]...)
				q.debugLog("[queue.Dequeue] task %s taken from %s bucket", task.ID, p)
				return task
			}
		}
	}
	return nil
}

// Remove drops a queued or waiting task by ID, for cancellation.
// Returns the task if found.
func (q *TaskQueue) Remove(taskID string) *models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range priorities {
		for i, task := range q.buckets[p] {
			if task.ID == taskID {
				q.buckets[p] = append(q.buckets[p][:i:i], q.buckets[p][i+1:]...)
				return task
			}
		}
	}
	if task, ok := q.waiting[taskID]; ok {
		delete(q.waiting, taskID)
		q.removeWaitingOrderLocked(taskID)
		return task
	}
	return nil
}

// MarkCompleted records a completed task and promotes any waiting task
// whose dependencies are now all satisfied, preserving original
// submission order and original priority.
func (q *TaskQueue) MarkCompleted(taskID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.completed[taskID] = true
	q.debugLog("[queue.MarkCompleted] task %s completed", taskID)

	var still []string
	for _, id := range q.waitingOrder {
		task, ok := q.waiting[id]
		if !ok {
			continue
		}
		if q.dependenciesMetLocked(task) {
			task.Status = models.TaskStatusPending
			q.buckets[task.Priority] = append(q.buckets[task.Priority], task)
			delete(q.waiting, id)
			q.debugLog("[queue.MarkCompleted] task %s dependencies satisfied, moved to %s bucket", id, task.Priority)
		} else {
			still = append(still, id)
		}
	}
	q.waitingOrder = still
}

// Forget drops the completion and cycle-check bookkeeping for a
// terminal task so the sets do not grow for the life of the process.
// Skipped while any waiting task still depends on the ID.
func (q *TaskQueue) Forget(taskID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, task := range q.waiting {
		for _, dep := range task.Dependencies {
			if dep == taskID {
				return
			}
		}
	}
	delete(q.known, taskID)
	delete(q.completed, taskID)
}

// Depths reports bucket sizes plus the waiting-dependency count.
func (q *TaskQueue) Depths() map[string]int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return map[string]int{
		"critical":             len(q.buckets[models.PriorityCritical]),
		"high":                 len(q.buckets[models.PriorityHigh]),
		"normal":               len(q.buckets[models.PriorityNormal]),
		"low":                  len(q.buckets[models.PriorityLow]),
		"waiting_dependencies": len(q.waiting),
	}
}

// Len returns the total number of held tasks, queued plus waiting.
func (q *TaskQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	n := len(q.waiting)
	for _, p := range priorities {
		n += len(q.buckets[p])
	}
	return n
}

// dependenciesMetLocked treats an empty dependency list as satisfied.
// Caller must hold q.mu.
func (q *TaskQueue) dependenciesMetLocked(task *models.Task) bool {
	for _, dep := range task.Dependencies {
		if !q.completed[dep] {
			return false
		}
	}
	return true
}

func (q *TaskQueue) removeWaitingOrderLocked(taskID string) {
	for i, id := range q.waitingOrder {
		if id == taskID {
			q.waitingOrder = append(q.waitingOrder[:i], q.waitingOrder[i+1:]...)
			return
		}
	}
}

// hasCycleLocked detects a circular dependency among known tasks using
// depth-first search with coloring. Caller must hold q.mu.
func (q *TaskQueue) hasCycleLocked() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(q.known))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, dep := range q.known[id] {
			switch colors[dep] {
			case 1:
				// Back edge - cycle.
				return true
			case 0:
				if visit(dep) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for id := range q.known {
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}
	return false
}
