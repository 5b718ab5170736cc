package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/ShayCichocki/foreman/internal/queue"
	"github.com/ShayCichocki/foreman/internal/registry"
	"github.com/ShayCichocki/foreman/pkg/models"
)

// assignmentLoad is the load added to an agent per assigned task and
// removed when the task leaves the agent.
const assignmentLoad = 0.5

// dispatchPass performs one scheduling sweep: pop dispatchable tasks,
// match each to the best available agent, and launch execution. Tasks
// that match an agent but fail resource admission return to the front
// of their bucket so later arrivals cannot jump them.
func (o *Orchestrator) dispatchPass() {
	if o.pause.IsPaused() || o.pause.IsStopped() {
		return
	}

	available := o.registry.List(registry.Filter{AvailableOnly: true})
	if len(available) == 0 {
		return
	}

	filter := &queue.Filter{CanHandle: func(capability string) bool {
		for _, agent := range available {
			if agent.CanHandle(capability) {
				return true
			}
		}
		return false
	}}

	var deferred []*models.Task
	for {
		task := o.taskQueue.Dequeue(filter)
		if task == nil {
			break
		}

		agent := pickAgent(available, task)
		if agent == nil {
			deferred = append(deferred, task)
			continue
		}

		if !o.resources.Allocate(task.ID, task.Resources) {
			o.logger.Log("[orchestrator.dispatchPass] task %s deferred, insufficient resources", task.ID)
			o.emit(Event{Type: EventResourceDeferred, TaskID: task.ID, TaskName: task.Name})
			deferred = append(deferred, task)
			continue
		}

		o.assign(task, agent)

		// The agent is no longer available this pass.
		available = removeAgent(available, agent.ID)
		if len(available) == 0 {
			break
		}
	}

	// Requeue in reverse so the earliest deferred task ends up frontmost.
	for i := len(deferred) - 1; i >= 0; i-- {
		o.taskQueue.Requeue(deferred[i])
	}
}

// pickAgent selects the best matching agent: exact class and capability
// match required, then lowest load, then highest success rate.
func pickAgent(agents []*models.Agent, task *models.Task) *models.Agent {
	var candidates []*models.Agent
	for _, agent := range agents {
		if task.AgentClass != "" && agent.Class != task.AgentClass {
			continue
		}
		if !agent.CanHandle(task.Capability) {
			continue
		}
		candidates = append(candidates, agent)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Load != candidates[j].Load {
			return candidates[i].Load < candidates[j].Load
		}
		return candidates[i].Performance.SuccessRate > candidates[j].Performance.SuccessRate
	})
	return candidates[0]
}

func removeAgent(agents []*models.Agent, id string) []*models.Agent {
	for i, agent := range agents {
		if agent.ID == id {
			return append(agents[:i:i], agents[i+1:]...)
		}
	}
	return agents
}

// assign binds a task to an agent and launches its execution goroutine.
// Resources must already be allocated.
func (o *Orchestrator) assign(task *models.Task, agent *models.Agent) {
	now := time.Now()

	o.mu.Lock()
	task.Status = models.TaskStatusAssigned
	task.AssignedAgent = agent.ID
	runCtx, cancel := context.WithCancel(context.Background())
	o.running[task.ID] = cancel
	o.mu.Unlock()

	o.registry.UpdateStatus(agent.ID, models.AgentStatusBusy)
	o.registry.SetCurrentTask(agent.ID, task.ID)
	o.registry.AdjustLoad(agent.ID, assignmentLoad)

	o.mu.Lock()
	task.Status = models.TaskStatusRunning
	task.StartedAt = &now
	o.mu.Unlock()

	o.logger.Log("[orchestrator.assign] task %s -> agent %s", task.ID, agent.ID)
	o.emit(Event{Type: EventTaskAssigned, TaskID: task.ID, TaskName: task.Name, AgentID: agent.ID})
	o.emit(Event{Type: EventTaskStarted, TaskID: task.ID, TaskName: task.Name, AgentID: agent.ID})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.executeTask(runCtx, task, agent.ID)
	}()
}

// executeTask runs the task to completion and settles the agent and
// task state. Failed tasks with retry budget left go back to the queue;
// exhausted ones are finalized as failed.
func (o *Orchestrator) executeTask(ctx context.Context, task *models.Task, agentID string) {
	started := time.Now()
	result, err := o.executors.Execute(ctx, task)
	elapsed := time.Since(started)

	o.releaseAgent(agentID, elapsed, err)

	o.mu.RLock()
	settled := task.Status.Terminal()
	o.mu.RUnlock()
	if settled {
		// CancelTask already finalized the task; discard the late result.
		return
	}

	if err == nil {
		o.finalizeTask(task, models.TaskStatusCompleted, result, "")
		return
	}

	if ctx.Err() != nil {
		// Cancelled mid-flight; no retry.
		o.finalizeTask(task, models.TaskStatusCancelled, nil, "cancelled while running")
		return
	}

	o.coord.HandleError(agentID, map[string]any{
		"type":    "task_failure",
		"task_id": task.ID,
		"error":   err.Error(),
	})

	if task.CanRetry() {
		o.retryTask(task, err)
		return
	}

	o.finalizeTask(task, models.TaskStatusFailed, nil, err.Error())
}

// releaseAgent returns the agent to the pool and records the outcome.
func (o *Orchestrator) releaseAgent(agentID string, elapsed time.Duration, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	o.registry.RecordOutcome(agentID, elapsed, err == nil, errMsg)
	o.registry.SetCurrentTask(agentID, "")
	o.registry.AdjustLoad(agentID, -assignmentLoad)

	// Leave Error and Paused states alone; anything else returns to idle.
	if agent, ok := o.registry.Get(agentID); ok && agent.Status == models.AgentStatusBusy {
		o.registry.UpdateStatus(agentID, models.AgentStatusIdle)
	}
}

// retryTask resets the task and puts it at the back of its bucket.
func (o *Orchestrator) retryTask(task *models.Task, cause error) {
	o.resources.Release(task.ID)

	o.mu.Lock()
	task.RetryCount++
	task.AssignedAgent = ""
	task.StartedAt = nil
	task.Error = cause.Error()
	delete(o.running, task.ID)
	o.mu.Unlock()

	if err := o.taskQueue.Enqueue(task); err != nil {
		o.finalizeTask(task, models.TaskStatusFailed, nil, err.Error())
		return
	}

	o.logger.Log("[orchestrator.retryTask] task %s retry %d/%d after: %v", task.ID, task.RetryCount, task.MaxRetries, cause)
	o.emit(Event{Type: EventTaskRetrying, TaskID: task.ID, TaskName: task.Name, Message: cause.Error()})
}

// DispatchNow runs one scheduling sweep immediately, outside the ticker.
// Useful for tests and for draining a burst of submissions.
func (o *Orchestrator) DispatchNow() {
	o.dispatchPass()
}
