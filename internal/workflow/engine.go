// Package workflow drives multi-step pipelines through the orchestrator,
// handling approval gates, pause/resume, cancellation, and deadlock
// detection.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/foreman/internal/orchestrator"
	"github.com/ShayCichocki/foreman/pkg/models"
)

// ErrWorkflowDeadlock indicates no step can ever become eligible while
// the workflow is still incomplete.
var ErrWorkflowDeadlock = errors.New("workflow deadlocked: no step can proceed")

// ErrWorkflowNotFound indicates the workflow ID is unknown.
var ErrWorkflowNotFound = errors.New("workflow not found")

// ErrStepCycle indicates a circular dependency among workflow steps.
var ErrStepCycle = errors.New("circular dependency among workflow steps")

// Engine validates workflow definitions and drives them to completion.
type Engine struct {
	orch      *orchestrator.Orchestrator
	approvals *ApprovalManager
	// approvalTimeout bounds how long a gated step waits for a decision.
	approvalTimeout time.Duration

	mu        sync.RWMutex
	workflows map[string]*models.Workflow
	runs      map[string]*run

	debugLog func(format string, args ...interface{})
}

// run holds the per-execution control surface for one workflow.
type run struct {
	pause  *orchestrator.PauseController
	cancel context.CancelFunc
	// settled receives a step ID each time one of the workflow's
	// in-flight tasks reaches a terminal state.
	settled chan string
}

// NewEngine creates a workflow engine on top of the orchestrator.
func NewEngine(orch *orchestrator.Orchestrator, approvalTimeout time.Duration) *Engine {
	if approvalTimeout <= 0 {
		approvalTimeout = 300 * time.Second
	}
	e := &Engine{
		orch:            orch,
		approvals:       NewApprovalManager(),
		approvalTimeout: approvalTimeout,
		workflows:       make(map[string]*models.Workflow),
		runs:            make(map[string]*run),
		debugLog:        func(format string, args ...interface{}) {},
	}
	orch.AddCleanupHook(e.evictTerminal)
	return e
}

// evictTerminal drops terminal workflows past the retention window.
// The journal keeps the durable record.
func (e *Engine) evictTerminal() {
	cutoff := time.Now().Add(-e.orch.WorkflowRetention())

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, wf := range e.workflows {
		if !wf.Status.Terminal() || wf.CompletedAt == nil || !wf.CompletedAt.Before(cutoff) {
			continue
		}
		if _, active := e.runs[id]; active {
			continue
		}
		delete(e.workflows, id)
		e.debugLog("[workflow.evictTerminal] %s dropped after retention", id)
	}
}

// SetDebugLog sets the debug logging function.
func (e *Engine) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		e.debugLog = fn
	}
}

// Approvals exposes the approval manager so a CLI or dashboard can
// listen for requests and submit decisions.
func (e *Engine) Approvals() *ApprovalManager {
	return e.approvals
}

// CreateWorkflow validates the steps and registers a new workflow in
// the created state. Duplicate step IDs, unknown dependencies, and
// dependency cycles are rejected.
func (e *Engine) CreateWorkflow(name string, steps []*models.WorkflowStep) (*models.Workflow, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("workflow %q has no steps", name)
	}

	seen := make(map[string]*models.WorkflowStep, len(steps))
	for _, step := range steps {
		if step.ID == "" {
			return nil, fmt.Errorf("workflow %q has a step with no ID", name)
		}
		if _, dup := seen[step.ID]; dup {
			return nil, fmt.Errorf("workflow %q has duplicate step ID %q", name, step.ID)
		}
		seen[step.ID] = step
	}
	for _, step := range steps {
		for _, dep := range step.Dependencies {
			if _, ok := seen[dep]; !ok {
				return nil, fmt.Errorf("step %q depends on unknown step %q", step.ID, dep)
			}
		}
	}
	if hasStepCycle(steps) {
		return nil, fmt.Errorf("workflow %q: %w", name, ErrStepCycle)
	}

	for _, step := range steps {
		step.Status = models.StepStatusPending
		if step.Priority == 0 {
			step.Priority = models.PriorityNormal
		}
	}

	wf := &models.Workflow{
		ID:        "wf-" + uuid.New().String()[:8],
		Name:      name,
		Steps:     steps,
		Status:    models.WorkflowStatusCreated,
		CreatedAt: time.Now(),
	}

	e.mu.Lock()
	e.workflows[wf.ID] = wf
	e.mu.Unlock()

	e.debugLog("[workflow.CreateWorkflow] %s (%s) registered with %d steps", wf.ID, name, len(steps))
	return wf, nil
}

// hasStepCycle detects circular dependencies using depth-first search
// with coloring.
func hasStepCycle(steps []*models.WorkflowStep) bool {
	deps := make(map[string][]string, len(steps))
	for _, s := range steps {
		deps[s.ID] = s.Dependencies
	}

	colors := make(map[string]int, len(steps))
	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, dep := range deps[id] {
			switch colors[dep] {
			case 1:
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

	for id := range deps {
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// Get returns the workflow by ID.
func (e *Engine) Get(workflowID string) (*models.Workflow, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	wf, ok := e.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowNotFound)
	}
	return wf, nil
}

// List returns all registered workflows, any order.
func (e *Engine) List() []*models.Workflow {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*models.Workflow, 0, len(e.workflows))
	for _, wf := range e.workflows {
		out = append(out, wf)
	}
	return out
}

// Status is a snapshot of one workflow's execution.
type Status struct {
	ID       string                `json:"id"`
	Name     string                `json:"name"`
	Status   models.WorkflowStatus `json:"status"`
	Progress float64               `json:"progress"`
	Error    string                `json:"error,omitempty"`
	Steps    []StepStatus          `json:"steps"`
}

// StepStatus is the per-step slice of a workflow status snapshot.
type StepStatus struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Status models.StepStatus `json:"status"`
	TaskID string            `json:"task_id,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// GetStatus assembles a status snapshot for the workflow.
func (e *Engine) GetStatus(workflowID string) (Status, error) {
	wf, err := e.Get(workflowID)
	if err != nil {
		return Status{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	st := Status{
		ID:       wf.ID,
		Name:     wf.Name,
		Status:   wf.Status,
		Progress: wf.Progress(),
		Error:    wf.Error,
	}
	for _, step := range wf.Steps {
		st.Steps = append(st.Steps, StepStatus{
			ID:     step.ID,
			Name:   step.Name,
			Status: step.Status,
			TaskID: step.TaskID,
			Error:  step.Error,
		})
	}
	return st, nil
}

// Pause halts step dispatch for a running workflow and cancels its
// in-flight step tasks. Cancelled attempts go back to pending so
// Resume re-dispatches them from scratch.
func (e *Engine) Pause(workflowID string) error {
	e.mu.Lock()
	wf, ok := e.workflows[workflowID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("pause %s: %w", workflowID, ErrWorkflowNotFound)
	}
	if wf.Status != models.WorkflowStatusRunning {
		e.mu.Unlock()
		return fmt.Errorf("pause %s: workflow is %s", workflowID, wf.Status)
	}

	wf.Status = models.WorkflowStatusPaused
	if r, ok := e.runs[workflowID]; ok {
		r.pause.Pause()
	}
	var inFlight []string
	for _, step := range wf.Steps {
		if step.Status == models.StepStatusRunning && step.TaskID != "" {
			inFlight = append(inFlight, step.TaskID)
		}
	}
	e.mu.Unlock()

	for _, taskID := range inFlight {
		_ = e.orch.CancelTask(taskID)
	}
	e.debugLog("[workflow.Pause] %s paused, %d in-flight tasks cancelled", workflowID, len(inFlight))
	return nil
}

// Resume restarts step dispatch for a paused workflow.
func (e *Engine) Resume(workflowID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	wf, ok := e.workflows[workflowID]
	if !ok {
		return fmt.Errorf("resume %s: %w", workflowID, ErrWorkflowNotFound)
	}
	if wf.Status != models.WorkflowStatusPaused {
		return fmt.Errorf("resume %s: workflow is %s", workflowID, wf.Status)
	}

	wf.Status = models.WorkflowStatusRunning
	if r, ok := e.runs[workflowID]; ok {
		r.pause.Resume()
	}
	e.debugLog("[workflow.Resume] %s resumed", workflowID)
	return nil
}

// Cancel stops a workflow. Running step tasks are cancelled through the
// orchestrator and pending steps are marked cancelled.
func (e *Engine) Cancel(workflowID string) error {
	e.mu.Lock()
	wf, ok := e.workflows[workflowID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("cancel %s: %w", workflowID, ErrWorkflowNotFound)
	}
	if wf.Status.Terminal() {
		e.mu.Unlock()
		return fmt.Errorf("cancel %s: workflow already %s", workflowID, wf.Status)
	}

	r := e.runs[workflowID]
	var runningTasks []string
	for _, step := range wf.Steps {
		switch {
		case step.Status.Terminal():
		case step.Status == models.StepStatusRunning && step.TaskID != "":
			runningTasks = append(runningTasks, step.TaskID)
		default:
			// Pending, or claimed but not yet dispatched (awaiting
			// approval). Nothing in flight to cancel.
			step.Status = models.StepStatusCancelled
		}
	}
	e.setWorkflowTerminalLocked(wf, models.WorkflowStatusCancelled, "cancelled by request")
	e.mu.Unlock()

	for _, taskID := range runningTasks {
		if taskID != "" {
			_ = e.orch.CancelTask(taskID)
		}
	}
	if r != nil {
		r.cancel()
	}
	e.debugLog("[workflow.Cancel] %s cancelled", workflowID)
	return nil
}

// ApproveStep approves a gated step awaiting a decision.
func (e *Engine) ApproveStep(workflowID, stepID string) {
	e.approvals.SubmitResponse(ApprovalResponse{WorkflowID: workflowID, StepID: stepID, Approved: true})
}

// RejectStep rejects a gated step awaiting a decision.
func (e *Engine) RejectStep(workflowID, stepID, reason string) {
	e.approvals.SubmitResponse(ApprovalResponse{WorkflowID: workflowID, StepID: stepID, Approved: false, Reason: reason})
}

// Execute drives the workflow until every step settles, an
// unrecoverable failure occurs, or the context ends. autoApprove
// bypasses approval gates; otherwise gated steps wait on the approval
// manager. Execute blocks; run it in a goroutine for background use.
func (e *Engine) Execute(ctx context.Context, workflowID string, autoApprove bool) error {
	e.mu.Lock()
	wf, ok := e.workflows[workflowID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("execute %s: %w", workflowID, ErrWorkflowNotFound)
	}
	if wf.Status != models.WorkflowStatusCreated {
		e.mu.Unlock()
		return fmt.Errorf("execute %s: workflow is %s", workflowID, wf.Status)
	}

	now := time.Now()
	wf.Status = models.WorkflowStatusRunning
	wf.StartedAt = &now

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r := &run{
		pause:   orchestrator.NewPauseController(),
		cancel:  cancel,
		settled: make(chan string, len(wf.Steps)),
	}
	e.runs[workflowID] = r
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.runs, workflowID)
		e.mu.Unlock()
	}()

	e.debugLog("[workflow.Execute] %s started", workflowID)
	return e.drive(ctx, wf, r, autoApprove)
}

// drive is the scheduling loop: launch every eligible step, wait for
// one to settle, re-evaluate. A pass with nothing running and nothing
// eligible on an incomplete workflow is a deadlock.
func (e *Engine) drive(ctx context.Context, wf *models.Workflow, r *run, autoApprove bool) error {
	inFlight := 0

	for {
		if err := r.pause.WaitIfPaused(ctx); err != nil {
			return e.settleOnContextEnd(wf, err)
		}
		if ctx.Err() != nil {
			return e.settleOnContextEnd(wf, ctx.Err())
		}

		e.mu.RLock()
		failed := wf.Failed()
		e.mu.RUnlock()

		if failed {
			// Stop launching; drain what is already in flight.
			if inFlight > 0 {
				select {
				case <-r.settled:
					inFlight--
				case <-ctx.Done():
					return e.settleOnContextEnd(wf, ctx.Err())
				}
				continue
			}
			e.cancelPendingSteps(wf)
			return e.finishWorkflow(wf, models.WorkflowStatusFailed, "step failed")
		}

		launched, err := e.launchEligible(ctx, wf, r, autoApprove)
		if err != nil {
			return err
		}
		inFlight += launched

		e.mu.RLock()
		complete := wf.Complete()
		failed = wf.Failed()
		e.mu.RUnlock()

		if complete && inFlight == 0 {
			return e.finishWorkflow(wf, models.WorkflowStatusCompleted, "")
		}
		if inFlight == 0 && !failed {
			e.finishWorkflow(wf, models.WorkflowStatusFailed, ErrWorkflowDeadlock.Error())
			return fmt.Errorf("workflow %s: %w", wf.ID, ErrWorkflowDeadlock)
		}

		if inFlight > 0 {
			select {
			case <-r.settled:
				inFlight--
			case <-ctx.Done():
				return e.settleOnContextEnd(wf, ctx.Err())
			}
		}
	}
}

// launchEligible dispatches every currently eligible step, handling
// approval gates along the way. Returns the number launched.
func (e *Engine) launchEligible(ctx context.Context, wf *models.Workflow, r *run, autoApprove bool) (int, error) {
	launched := 0
	for {
		e.mu.Lock()
		step := wf.NextEligibleStep()
		if step == nil {
			e.mu.Unlock()
			return launched, nil
		}
		// Claim the step so the next iteration moves on.
		step.Status = models.StepStatusRunning
		e.mu.Unlock()

		if step.RequireApproval && !autoApprove {
			approved, err := e.gateOnApproval(ctx, wf, step)
			if err != nil {
				return launched, e.settleOnContextEnd(wf, err)
			}
			if !approved {
				e.failOrSkipStep(wf, step, "approval rejected")
				continue
			}
		}

		if err := e.launchStep(ctx, wf, r, step); err != nil {
			e.failOrSkipStep(wf, step, err.Error())
			continue
		}
		launched++
	}
}

// gateOnApproval pauses the workflow while a human decides. Timeout
// reads as rejection.
func (e *Engine) gateOnApproval(ctx context.Context, wf *models.Workflow, step *models.WorkflowStep) (bool, error) {
	e.mu.Lock()
	if wf.Status == models.WorkflowStatusRunning {
		wf.Status = models.WorkflowStatusPaused
	}
	e.mu.Unlock()

	e.debugLog("[workflow.gateOnApproval] %s step %s awaiting approval", wf.ID, step.ID)

	waitCtx, cancel := context.WithTimeout(ctx, e.approvalTimeout)
	defer cancel()
	resp, err := e.approvals.WaitForApproval(waitCtx, ApprovalRequest{
		WorkflowID: wf.ID,
		StepID:     step.ID,
		StepName:   step.Name,
		Capability: step.Capability,
	})

	e.mu.Lock()
	if wf.Status == models.WorkflowStatusPaused {
		wf.Status = models.WorkflowStatusRunning
	}
	e.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// Approval timed out.
		e.debugLog("[workflow.gateOnApproval] %s step %s approval timed out", wf.ID, step.ID)
		return false, nil
	}
	return resp.Approved, nil
}

// launchStep submits the step's task and watches it settle in the
// background, retrying the step up to its own budget.
func (e *Engine) launchStep(ctx context.Context, wf *models.Workflow, r *run, step *models.WorkflowStep) error {
	taskID, err := e.submitStepTask(wf, step)
	if err != nil {
		return err
	}

	now := time.Now()
	e.mu.Lock()
	step.TaskID = taskID
	if step.StartedAt == nil {
		step.StartedAt = &now
	}
	e.mu.Unlock()

	go e.watchStep(ctx, wf, r, step)
	return nil
}

// submitStepTask builds and submits one task attempt for a step.
func (e *Engine) submitStepTask(wf *models.Workflow, step *models.WorkflowStep) (string, error) {
	return e.orch.SubmitTask(&models.Task{
		Name:       fmt.Sprintf("%s/%s", wf.Name, step.Name),
		Capability: step.Capability,
		AgentClass: step.AgentClass,
		Priority:   step.Priority,
		Params:     step.Params,
		Timeout:    step.Timeout,
		Resources:  step.Resources,
		// The orchestrator retries at the task level; step retries
		// stay with the engine so the two budgets remain separate.
		MaxRetries: -1,
	})
}

// watchStep waits for the step's current task, applying step-level
// retries, then reports settlement to the driver.
func (e *Engine) watchStep(ctx context.Context, wf *models.Workflow, r *run, step *models.WorkflowStep) {
	for {
		e.mu.RLock()
		taskID := step.TaskID
		e.mu.RUnlock()

		task, err := e.orch.WaitForTask(ctx, taskID)
		if err != nil {
			e.settleStep(wf, step, models.StepStatusCancelled, nil, err.Error())
			break
		}

		if task.Status == models.TaskStatusCompleted {
			e.settleStep(wf, step, models.StepStatusCompleted, task.Result, "")
			break
		}
		if task.Status == models.TaskStatusCancelled {
			e.mu.Lock()
			if wf.Status == models.WorkflowStatusPaused {
				// Pause cancelled the attempt; Resume re-dispatches
				// the step from scratch.
				step.Status = models.StepStatusPending
				step.TaskID = ""
				step.StartedAt = nil
				e.mu.Unlock()
				e.debugLog("[workflow.watchStep] %s step %s reset to pending by pause", wf.ID, step.ID)
			} else {
				e.mu.Unlock()
				e.settleStep(wf, step, models.StepStatusCancelled, nil, task.Error)
			}
			break
		}

		// Task failed; spend a step retry if one remains.
		e.mu.Lock()
		canRetry := step.RetryCount < step.MaxRetries
		if canRetry {
			step.RetryCount++
		}
		e.mu.Unlock()

		if !canRetry {
			e.failOrSkipStep(wf, step, task.Error)
			break
		}

		newTaskID, err := e.submitStepTask(wf, step)
		if err != nil {
			e.failOrSkipStep(wf, step, err.Error())
			break
		}
		e.mu.Lock()
		step.TaskID = newTaskID
		e.mu.Unlock()
		e.debugLog("[workflow.watchStep] %s step %s retry %d/%d", wf.ID, step.ID, step.RetryCount, step.MaxRetries)
	}

	select {
	case r.settled <- step.ID:
	default:
	}
}

// settleStep records a step's terminal state. The first terminal
// state wins.
func (e *Engine) settleStep(wf *models.Workflow, step *models.WorkflowStep, status models.StepStatus, result models.Result, errMsg string) {
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if step.Status.Terminal() {
		return
	}
	step.Status = status
	step.Result = result
	step.Error = errMsg
	step.CompletedAt = &now
	e.debugLog("[workflow.settleStep] %s step %s -> %s", wf.ID, step.ID, status)
}

// failOrSkipStep settles a failed attempt, honoring the step's
// allow-failure flag whatever the failure's source.
func (e *Engine) failOrSkipStep(wf *models.Workflow, step *models.WorkflowStep, errMsg string) {
	if step.AllowFailure {
		e.settleStep(wf, step, models.StepStatusSkipped, nil, errMsg)
	} else {
		e.settleStep(wf, step, models.StepStatusFailed, nil, errMsg)
	}
}

// finishWorkflow records the workflow's terminal state, unless a
// concurrent Cancel already settled it.
func (e *Engine) finishWorkflow(wf *models.Workflow, status models.WorkflowStatus, errMsg string) error {
	e.mu.Lock()
	if !wf.Status.Terminal() {
		e.setWorkflowTerminalLocked(wf, status, errMsg)
	}
	final := wf.Status
	finalErr := wf.Error
	e.mu.Unlock()

	if final == models.WorkflowStatusFailed {
		return fmt.Errorf("workflow %s failed: %s", wf.ID, finalErr)
	}
	return nil
}

// cancelPendingSteps marks every still-pending step cancelled.
func (e *Engine) cancelPendingSteps(wf *models.Workflow) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, step := range wf.Steps {
		if step.Status == models.StepStatusPending {
			step.Status = models.StepStatusCancelled
		}
	}
}

// settleOnContextEnd marks the workflow cancelled when its context is
// cut out from under the driver.
func (e *Engine) settleOnContextEnd(wf *models.Workflow, cause error) error {
	e.mu.Lock()
	if !wf.Status.Terminal() {
		for _, step := range wf.Steps {
			if !step.Status.Terminal() {
				step.Status = models.StepStatusCancelled
			}
		}
		e.setWorkflowTerminalLocked(wf, models.WorkflowStatusCancelled, cause.Error())
	}
	e.mu.Unlock()
	return cause
}

// setWorkflowTerminalLocked stamps a terminal status. Caller holds e.mu.
func (e *Engine) setWorkflowTerminalLocked(wf *models.Workflow, status models.WorkflowStatus, errMsg string) {
	now := time.Now()
	wf.Status = status
	wf.Error = errMsg
	wf.CompletedAt = &now
	e.debugLog("[workflow.finish] %s -> %s", wf.ID, status)

	if journal := e.orch.History(); journal != nil {
		if err := journal.RecordWorkflow(wf); err != nil {
			e.debugLog("[workflow.finish] journal %s: %v", wf.ID, err)
		}
	}
}
