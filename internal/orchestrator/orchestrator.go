// Package orchestrator manages the coordination of agents and tasks.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/foreman/internal/bus"
	"github.com/ShayCichocki/foreman/internal/config"
	"github.com/ShayCichocki/foreman/internal/coordinator"
	"github.com/ShayCichocki/foreman/internal/executor"
	"github.com/ShayCichocki/foreman/internal/history"
	"github.com/ShayCichocki/foreman/internal/queue"
	"github.com/ShayCichocki/foreman/internal/registry"
	"github.com/ShayCichocki/foreman/internal/resource"
	"github.com/ShayCichocki/foreman/pkg/models"
)

// ErrTaskNotFound indicates the task ID is unknown.
var ErrTaskNotFound = errors.New("task not found")

// ErrNotRunning indicates the orchestrator has not been started.
var ErrNotRunning = errors.New("orchestrator not running")

// Options configures an Orchestrator.
type Options struct {
	// Config supplies loop intervals, retry defaults, and resource
	// capacities. Nil selects config.Default().
	Config *config.Config
	// Logger receives debug output. Nil selects a no-op logger.
	Logger *DebugLogger
	// Executors maps capabilities to the code that performs them.
	// Nil creates an empty registry.
	Executors *executor.Registry
	// History journals terminal tasks and workflows. Nil disables
	// journaling.
	History *history.Store
}

// Orchestrator wires together the registry, queue, resource manager,
// message bus, and coordinator, and runs the background loops that
// dispatch tasks to agents.
type Orchestrator struct {
	cfg       *config.Config
	logger    *DebugLogger
	registry  *registry.Registry
	taskQueue *queue.TaskQueue
	resources *resource.Manager
	bus       *bus.MessageBus
	coord     *coordinator.Coordinator
	executors *executor.Registry
	history   *history.Store
	pause     *PauseController

	mu sync.RWMutex
	// tasks indexes every task ever submitted, any status.
	tasks map[string]*models.Task
	// done maps task ID to a channel closed when the task reaches a
	// terminal status.
	done map[string]chan struct{}
	// running maps in-flight task ID to its cancel function.
	running map[string]context.CancelFunc
	// cleanupHooks run at the end of every cleanup pass.
	cleanupHooks []func()

	events    chan Event
	startedAt time.Time
	started   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates an orchestrator with all subsystems wired.
func New(opts Options) *Orchestrator {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = NopLogger()
	}
	execs := opts.Executors
	if execs == nil {
		execs = executor.NewRegistry()
	}

	b := bus.New()
	b.SetDebugLog(logger.Log)

	reg := registry.New(b)
	reg.SetDebugLog(logger.Log)

	q := queue.New()
	q.SetDebugLog(logger.Log)

	coord := coordinator.New(b)
	coord.SetDebugLog(logger.Log)

	pause := NewPauseController()
	pause.SetDebugLog(logger.Log)

	return &Orchestrator{
		cfg:       cfg,
		logger:    logger,
		registry:  reg,
		taskQueue: q,
		resources: resource.New(cfg.Resources.Capacities()),
		bus:       b,
		coord:     coord,
		executors: execs,
		history:   opts.History,
		pause:     pause,
		tasks:     make(map[string]*models.Task),
		done:      make(map[string]chan struct{}),
		running:   make(map[string]context.CancelFunc),
		events:    make(chan Event, 256),
	}
}

// Registry exposes agent bookkeeping.
func (o *Orchestrator) Registry() *registry.Registry { return o.registry }

// Bus exposes the message bus.
func (o *Orchestrator) Bus() *bus.MessageBus { return o.bus }

// Coordinator exposes the coordination layer.
func (o *Orchestrator) Coordinator() *coordinator.Coordinator { return o.coord }

// Resources exposes the resource manager.
func (o *Orchestrator) Resources() *resource.Manager { return o.resources }

// Executors exposes the capability registry.
func (o *Orchestrator) Executors() *executor.Registry { return o.executors }

// History exposes the execution journal. Nil when journaling is off.
func (o *Orchestrator) History() *history.Store { return o.history }

// WorkflowRetention reports how long terminal workflows are kept
// before the cleanup pass drops them.
func (o *Orchestrator) WorkflowRetention() time.Duration { return o.cfg.History.WorkflowRetention }

// AddCleanupHook registers fn to run at the end of every cleanup pass.
// Layers built on the orchestrator use this to apply retention to
// their own state.
func (o *Orchestrator) AddCleanupHook(fn func()) {
	o.mu.Lock()
	o.cleanupHooks = append(o.cleanupHooks, fn)
	o.mu.Unlock()
}

// Events returns the event stream. The channel is buffered; events are
// dropped when no one drains it.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// Start launches the background loops. Calling Start twice is an error.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	o.started = true
	o.startedAt = time.Now()
	ctx, o.cancel = context.WithCancel(ctx)
	o.mu.Unlock()

	o.logger.Log("[orchestrator.Start] launching background loops")

	o.loop(ctx, o.cfg.Scheduler.DispatchInterval, o.dispatchPass)
	o.loop(ctx, o.cfg.Scheduler.HealthInterval, o.healthPass)
	o.loop(ctx, o.cfg.Scheduler.CleanupInterval, o.cleanupPass)
	o.loop(ctx, o.cfg.Scheduler.MessageInterval, o.messagePass)
	o.loop(ctx, o.cfg.Scheduler.CommCleanupInterval, func() { o.bus.Cleanup() })

	return nil
}

// Stop halts the background loops and waits for them to exit. In-flight
// task executions are cancelled.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	o.started = false
	cancel := o.cancel
	for _, cancelRun := range o.running {
		cancelRun()
	}
	o.mu.Unlock()

	o.pause.Stop()
	cancel()
	o.wg.Wait()
	o.logger.Log("[orchestrator.Stop] all loops stopped")
}

// Pause suspends task dispatch. Running tasks finish normally.
func (o *Orchestrator) Pause() { o.pause.Pause() }

// Resume re-enables task dispatch.
func (o *Orchestrator) Resume() { o.pause.Resume() }

// Paused reports whether dispatch is suspended.
func (o *Orchestrator) Paused() bool { return o.pause.IsPaused() }

// loop runs fn on a ticker until the context ends. The first pass runs
// immediately rather than waiting one interval.
func (o *Orchestrator) loop(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		interval = time.Second
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		fn()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// SubmitTask validates and enqueues a task, returning its ID. Tasks with
// unmet dependencies park until the dependencies complete; a dependency
// cycle is rejected.
func (o *Orchestrator) SubmitTask(task *models.Task) (string, error) {
	if task == nil {
		return "", fmt.Errorf("nil task")
	}
	if task.ID == "" {
		task.ID = "task-" + uuid.New().String()[:8]
	}
	if task.Priority == 0 {
		task.Priority = models.PriorityNormal
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = o.cfg.Retry.MaxRetries
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	o.mu.Lock()
	if _, exists := o.tasks[task.ID]; exists {
		o.mu.Unlock()
		return "", fmt.Errorf("task %s already submitted", task.ID)
	}
	o.tasks[task.ID] = task
	o.done[task.ID] = make(chan struct{})
	o.mu.Unlock()

	if err := o.taskQueue.Enqueue(task); err != nil {
		o.mu.Lock()
		delete(o.tasks, task.ID)
		delete(o.done, task.ID)
		o.mu.Unlock()
		return "", err
	}

	o.logger.Log("[orchestrator.SubmitTask] task %s (%s) submitted at %s priority", task.ID, task.Name, task.Priority)
	o.emit(Event{Type: EventTaskQueued, TaskID: task.ID, TaskName: task.Name})
	return task.ID, nil
}

// CancelTask cancels a queued, waiting, or running task. Terminal tasks
// cannot be cancelled.
func (o *Orchestrator) CancelTask(taskID string) error {
	o.mu.Lock()
	task, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("cancel %s: %w", taskID, ErrTaskNotFound)
	}
	if task.Status.Terminal() {
		o.mu.Unlock()
		return fmt.Errorf("cancel %s: task already %s", taskID, task.Status)
	}
	cancelRun := o.running[taskID]
	o.mu.Unlock()

	if cancelRun != nil {
		// Finalize here rather than waiting on the execution
		// goroutine: an executor that ignores its context would
		// otherwise finish and overwrite the cancellation.
		cancelRun()
		o.finalizeTask(task, models.TaskStatusCancelled, nil, "cancelled while running")
		return nil
	}

	if removed := o.taskQueue.Remove(taskID); removed == nil {
		return fmt.Errorf("cancel %s: task not in queue", taskID)
	}
	o.finalizeTask(task, models.TaskStatusCancelled, nil, "cancelled before assignment")
	return nil
}

// GetTask returns the task by ID.
func (o *Orchestrator) GetTask(taskID string) (*models.Task, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	task, ok := o.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", taskID, ErrTaskNotFound)
	}
	return task, nil
}

// Tasks returns a snapshot of every tracked task, any status.
func (o *Orchestrator) Tasks() []*models.Task {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*models.Task, 0, len(o.tasks))
	for _, task := range o.tasks {
		out = append(out, task)
	}
	return out
}

// GetTaskStatus returns the task's current status.
func (o *Orchestrator) GetTaskStatus(taskID string) (models.TaskStatus, error) {
	task, err := o.GetTask(taskID)
	if err != nil {
		return "", err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return task.Status, nil
}

// WaitForTask blocks until the task reaches a terminal status or the
// context ends.
func (o *Orchestrator) WaitForTask(ctx context.Context, taskID string) (*models.Task, error) {
	o.mu.RLock()
	ch, ok := o.done[taskID]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("wait %s: %w", taskID, ErrTaskNotFound)
	}

	select {
	case <-ch:
		return o.GetTask(taskID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats is a point-in-time snapshot of the whole system.
type Stats struct {
	Uptime         time.Duration                   `json:"uptime"`
	Agents         map[string]int                  `json:"agents"`
	Tasks          map[string]int                  `json:"tasks"`
	QueueDepths    map[string]int                  `json:"queue_depths"`
	Resources      map[string]resource.Utilization `json:"resources"`
	Bus            bus.Stats                       `json:"bus"`
	Health         coordinator.Health              `json:"health"`
	Paused         bool                            `json:"paused"`
}

// SystemStats assembles a snapshot across all subsystems.
func (o *Orchestrator) SystemStats() Stats {
	o.mu.RLock()
	taskCounts := make(map[string]int)
	for _, task := range o.tasks {
		taskCounts[string(task.Status)]++
	}
	startedAt := o.startedAt
	o.mu.RUnlock()

	var uptime time.Duration
	if !startedAt.IsZero() {
		uptime = time.Since(startedAt)
	}

	return Stats{
		Uptime:      uptime,
		Agents:      o.registry.CountByStatus(),
		Tasks:       taskCounts,
		QueueDepths: o.taskQueue.Depths(),
		Resources:   o.resources.Utilization(),
		Bus:         o.bus.Stats(),
		Health:      o.coord.SystemHealth(),
		Paused:      o.pause.IsPaused(),
	}
}

// emit delivers an event without blocking; the stream is advisory.
func (o *Orchestrator) emit(ev Event) {
	ev.Timestamp = time.Now()
	select {
	case o.events <- ev:
	default:
	}
}

// finalizeTask moves a task to a terminal status, records the outcome,
// and closes its done channel. The first terminal status wins; a later
// call, such as a result arriving after cancellation, is a no-op.
// Resources are released here so release happens exactly once per
// assignment.
func (o *Orchestrator) finalizeTask(task *models.Task, status models.TaskStatus, result models.Result, errMsg string) {
	now := time.Now()

	o.mu.Lock()
	if task.Status.Terminal() {
		o.mu.Unlock()
		return
	}
	task.Status = status
	task.Result = result
	task.Error = errMsg
	task.CompletedAt = &now
	delete(o.running, task.ID)
	ch := o.done[task.ID]
	o.mu.Unlock()

	o.resources.Release(task.ID)

	switch status {
	case models.TaskStatusCompleted:
		o.taskQueue.MarkCompleted(task.ID)
		o.emit(Event{Type: EventTaskCompleted, TaskID: task.ID, TaskName: task.Name, AgentID: task.AssignedAgent})
	case models.TaskStatusFailed:
		o.emit(Event{Type: EventTaskFailed, TaskID: task.ID, TaskName: task.Name, AgentID: task.AssignedAgent, Message: errMsg})
	case models.TaskStatusCancelled:
		o.emit(Event{Type: EventTaskCancelled, TaskID: task.ID, TaskName: task.Name, Message: errMsg})
	}

	o.logger.Log("[orchestrator.finalizeTask] task %s -> %s", task.ID, status)

	if o.history != nil {
		if err := o.history.RecordTask(task); err != nil {
			o.logger.Log("[orchestrator.finalizeTask] journal task %s: %v", task.ID, err)
		}
	}

	if ch != nil {
		close(ch)
	}
}

// healthPass sweeps for unresponsive agents and refreshes the
// coordinator's status reports.
func (o *Orchestrator) healthPass() {
	flagged := o.registry.SweepInactive(o.cfg.Scheduler.InactivityWindow)
	for _, agentID := range flagged {
		o.emit(Event{Type: EventAgentUnhealthy, AgentID: agentID})
	}

	for _, agent := range o.registry.List(registry.Filter{}) {
		o.coord.UpdateStatus(coordinator.StatusReport{
			AgentID:      agent.ID,
			Status:       agent.Status,
			CurrentTask:  agent.CurrentTask,
			Health:       agent.Health,
			ErrorCount:   agent.ErrorCount,
			LastActivity: agent.LastActivity,
			Uptime:       agent.Uptime(),
		})
	}

	outcome := o.coord.Coordinate(nil)
	for _, action := range outcome.Actions {
		o.logger.Log("[orchestrator.healthPass] coordination: %s", action)
	}
}

// cleanupPass drops terminal tasks older than their retention window,
// prunes queue bookkeeping for them, applies the same retention to the
// journal, and runs the registered cleanup hooks.
func (o *Orchestrator) cleanupPass() {
	cutoff := time.Now().Add(-o.cfg.History.TaskRetention)

	var dropped []string
	o.mu.Lock()
	for id, task := range o.tasks {
		if task.Status.Terminal() && task.CompletedAt != nil && task.CompletedAt.Before(cutoff) {
			delete(o.tasks, id)
			delete(o.done, id)
			dropped = append(dropped, id)
			o.logger.Log("[orchestrator.cleanupPass] dropped task %s", id)
		}
	}
	hooks := make([]func(), len(o.cleanupHooks))
	copy(hooks, o.cleanupHooks)
	o.mu.Unlock()

	for _, id := range dropped {
		o.taskQueue.Forget(id)
	}

	if o.history != nil {
		if _, err := o.history.Purge(o.cfg.History.TaskRetention, o.cfg.History.WorkflowRetention); err != nil {
			o.logger.Log("[orchestrator.cleanupPass] purge journal: %v", err)
		}
	}

	for _, fn := range hooks {
		fn()
	}
}

// messagePass drains each agent's mailbox and answers heartbeats so the
// coordinator's recovery probes resolve.
func (o *Orchestrator) messagePass() {
	for _, agent := range o.registry.List(registry.Filter{}) {
		for _, msg := range o.bus.Receive(agent.ID, 5) {
			o.handleMessage(agent.ID, msg)
		}
	}
}

func (o *Orchestrator) handleMessage(agentID string, msg *models.Message) {
	switch msg.Type {
	case models.MessageHeartbeat:
		if msg.CorrelationID != "" {
			_ = o.bus.SendResponse(agentID, msg.CorrelationID, map[string]any{
				"pong":      true,
				"timestamp": time.Now().Format(time.RFC3339),
			})
		}
	case models.MessageErrorReport:
		o.coord.HandleError(agentID, msg.Payload)
	case models.MessageStatusUpdate, models.MessageBroadcast:
		// Informational; already reflected in the registry.
	default:
		o.logger.Log("[orchestrator.handleMessage] agent %s received unhandled %s message", agentID, msg.Type)
	}
}
