package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ShayCichocki/foreman/internal/config"
	"github.com/ShayCichocki/foreman/internal/executor"
	"github.com/ShayCichocki/foreman/pkg/models"
)

func newTestOrchestrator() *Orchestrator {
	return New(Options{Config: config.Default()})
}

func registerWorker(o *Orchestrator, class string, caps ...string) *models.Agent {
	capabilities := make([]models.Capability, 0, len(caps))
	for _, name := range caps {
		capabilities = append(capabilities, models.Capability{Name: name})
	}
	return o.Registry().Register(class+" agent", class, capabilities, nil)
}

func TestSubmitTaskAssignsDefaults(t *testing.T) {
	o := newTestOrchestrator()

	id, err := o.SubmitTask(&models.Task{Name: "t", Capability: "compute"})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated ID")
	}

	task, err := o.GetTask(id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Priority != models.PriorityNormal {
		t.Errorf("expected normal priority default, got %s", task.Priority)
	}
	if task.MaxRetries != 3 {
		t.Errorf("expected max retries default 3, got %d", task.MaxRetries)
	}
	if task.Status != models.TaskStatusPending {
		t.Errorf("expected pending, got %s", task.Status)
	}
}

func TestSubmitTaskRejectsDuplicate(t *testing.T) {
	o := newTestOrchestrator()

	if _, err := o.SubmitTask(&models.Task{ID: "t1", Capability: "compute"}); err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	if _, err := o.SubmitTask(&models.Task{ID: "t1", Capability: "compute"}); err == nil {
		t.Fatal("expected duplicate submission error")
	}
}

func TestSubmitTaskRejectsCycle(t *testing.T) {
	o := newTestOrchestrator()

	if _, err := o.SubmitTask(&models.Task{ID: "a", Capability: "compute", Dependencies: []string{"b"}}); err != nil {
		t.Fatalf("SubmitTask a: %v", err)
	}
	_, err := o.SubmitTask(&models.Task{ID: "b", Capability: "compute", Dependencies: []string{"a"}})
	if err == nil {
		t.Fatal("expected cycle rejection")
	}

	// Rejected task leaves no residue.
	if _, err := o.GetTask("b"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestDispatchAndComplete(t *testing.T) {
	o := newTestOrchestrator()
	agent := registerWorker(o, "worker", "compute")

	o.Executors().RegisterFunc("compute", func(ctx context.Context, task *models.Task) (models.Result, error) {
		return models.Result{"ok": true}, nil
	})

	id, err := o.SubmitTask(&models.Task{Name: "job", Capability: "compute"})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	o.DispatchNow()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	task, err := o.WaitForTask(ctx, id)
	if err != nil {
		t.Fatalf("WaitForTask: %v", err)
	}

	if task.Status != models.TaskStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", task.Status, task.Error)
	}
	if task.Result["ok"] != true {
		t.Errorf("unexpected result %v", task.Result)
	}
	if task.AssignedAgent != agent.ID {
		t.Errorf("expected assignment to %s, got %s", agent.ID, task.AssignedAgent)
	}

	// Agent settles back to idle with zero load.
	settled, _ := o.Registry().Get(agent.ID)
	for i := 0; i < 50 && settled.Status != models.AgentStatusIdle; i++ {
		time.Sleep(10 * time.Millisecond)
		settled, _ = o.Registry().Get(agent.ID)
	}
	if settled.Status != models.AgentStatusIdle || settled.Load != 0 {
		t.Errorf("agent not settled: status %s load %f", settled.Status, settled.Load)
	}
	if settled.Performance.Completed != 1 {
		t.Errorf("expected 1 completed, got %d", settled.Performance.Completed)
	}
}

func TestRetryUntilSuccess(t *testing.T) {
	o := newTestOrchestrator()
	registerWorker(o, "worker", "flaky")

	var attempts atomic.Int32
	o.Executors().RegisterFunc("flaky", func(ctx context.Context, task *models.Task) (models.Result, error) {
		if attempts.Add(1) <= 2 {
			return nil, fmt.Errorf("transient failure %d", attempts.Load())
		}
		return models.Result{"done": true}, nil
	})

	id, err := o.SubmitTask(&models.Task{Name: "flaky-job", Capability: "flaky", MaxRetries: 2})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Dispatch repeatedly until the task settles; each failure requeues it.
	var task *models.Task
	for {
		o.DispatchNow()
		var werr error
		waitCtx, waitCancel := context.WithTimeout(ctx, 100*time.Millisecond)
		task, werr = o.WaitForTask(waitCtx, id)
		waitCancel()
		if werr == nil {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("task never settled")
		}
	}

	if task.Status != models.TaskStatusCompleted {
		t.Fatalf("expected completed after retries, got %s (%s)", task.Status, task.Error)
	}
	if task.RetryCount != 2 {
		t.Errorf("expected retry count 2, got %d", task.RetryCount)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestRetriesExhaustedFails(t *testing.T) {
	o := newTestOrchestrator()
	registerWorker(o, "worker", "broken")

	o.Executors().RegisterFunc("broken", func(ctx context.Context, task *models.Task) (models.Result, error) {
		return nil, errors.New("permanent failure")
	})

	id, err := o.SubmitTask(&models.Task{Name: "doomed", Capability: "broken", MaxRetries: 1})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var task *models.Task
	for {
		o.DispatchNow()
		waitCtx, waitCancel := context.WithTimeout(ctx, 100*time.Millisecond)
		var werr error
		task, werr = o.WaitForTask(waitCtx, id)
		waitCancel()
		if werr == nil {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("task never settled")
		}
	}

	if task.Status != models.TaskStatusFailed {
		t.Fatalf("expected failed, got %s", task.Status)
	}
	if task.Error != "permanent failure" {
		t.Errorf("unexpected error %q", task.Error)
	}
	if task.RetryCount != 1 {
		t.Errorf("expected retry count 1, got %d", task.RetryCount)
	}
}

func TestDependencyChainExecutesInOrder(t *testing.T) {
	o := newTestOrchestrator()
	registerWorker(o, "worker", "step")

	var order []string
	done := make(chan string, 3)
	o.Executors().RegisterFunc("step", func(ctx context.Context, task *models.Task) (models.Result, error) {
		done <- task.ID
		return models.Result{}, nil
	})

	if _, err := o.SubmitTask(&models.Task{ID: "a", Capability: "step"}); err != nil {
		t.Fatalf("SubmitTask a: %v", err)
	}
	if _, err := o.SubmitTask(&models.Task{ID: "b", Capability: "step", Dependencies: []string{"a"}}); err != nil {
		t.Fatalf("SubmitTask b: %v", err)
	}
	if _, err := o.SubmitTask(&models.Task{ID: "c", Capability: "step", Dependencies: []string{"b"}}); err != nil {
		t.Fatalf("SubmitTask c: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for len(order) < 3 {
		o.DispatchNow()
		select {
		case id := <-done:
			// Let the completion settle before the next sweep.
			if _, err := o.WaitForTask(ctx, id); err != nil {
				t.Fatalf("WaitForTask %s: %v", id, err)
			}
			order = append(order, id)
		case <-time.After(100 * time.Millisecond):
		}
		if ctx.Err() != nil {
			t.Fatalf("chain stalled, got %v", order)
		}
	}

	if order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("expected a,b,c order, got %v", order)
	}
}

func TestCancelQueuedTask(t *testing.T) {
	o := newTestOrchestrator()

	id, err := o.SubmitTask(&models.Task{Name: "idle", Capability: "noone"})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	if err := o.CancelTask(id); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}

	task, _ := o.GetTask(id)
	if task.Status != models.TaskStatusCancelled {
		t.Errorf("expected cancelled, got %s", task.Status)
	}

	// Terminal tasks cannot be cancelled again.
	if err := o.CancelTask(id); err == nil {
		t.Error("expected error cancelling terminal task")
	}
}

func TestCancelRunningTask(t *testing.T) {
	o := newTestOrchestrator()
	registerWorker(o, "worker", "slow")

	started := make(chan struct{})
	o.Executors().RegisterFunc("slow", func(ctx context.Context, task *models.Task) (models.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	id, err := o.SubmitTask(&models.Task{Name: "long", Capability: "slow"})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	o.DispatchNow()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("task never started")
	}

	if err := o.CancelTask(id); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	task, err := o.WaitForTask(ctx, id)
	if err != nil {
		t.Fatalf("WaitForTask: %v", err)
	}
	if task.Status != models.TaskStatusCancelled {
		t.Errorf("expected cancelled, got %s", task.Status)
	}
}

func TestPauseBlocksDispatch(t *testing.T) {
	o := newTestOrchestrator()
	registerWorker(o, "worker", "compute")
	o.Executors().RegisterFunc("compute", func(ctx context.Context, task *models.Task) (models.Result, error) {
		return models.Result{}, nil
	})

	id, err := o.SubmitTask(&models.Task{Capability: "compute"})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	o.Pause()
	o.DispatchNow()

	status, _ := o.GetTaskStatus(id)
	if status != models.TaskStatusPending {
		t.Fatalf("expected still pending while paused, got %s", status)
	}

	o.Resume()
	o.DispatchNow()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	task, err := o.WaitForTask(ctx, id)
	if err != nil {
		t.Fatalf("WaitForTask: %v", err)
	}
	if task.Status != models.TaskStatusCompleted {
		t.Errorf("expected completed after resume, got %s", task.Status)
	}
}

func TestSystemStats(t *testing.T) {
	o := newTestOrchestrator()
	registerWorker(o, "worker", "compute")

	if _, err := o.SubmitTask(&models.Task{Capability: "compute"}); err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	stats := o.SystemStats()
	if stats.Agents["idle"] != 1 {
		t.Errorf("expected 1 idle agent, got %v", stats.Agents)
	}
	if stats.Tasks["pending"] != 1 {
		t.Errorf("expected 1 pending task, got %v", stats.Tasks)
	}
	if stats.QueueDepths["normal"] != 1 {
		t.Errorf("expected 1 normal-priority task queued, got %v", stats.QueueDepths)
	}
	if stats.Resources["cpu"].Total != 100 {
		t.Errorf("expected cpu capacity 100, got %v", stats.Resources["cpu"])
	}
}

func TestStartStop(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.DispatchInterval = 10 * time.Millisecond
	cfg.Scheduler.HealthInterval = 10 * time.Millisecond
	cfg.Scheduler.MessageInterval = 10 * time.Millisecond

	execs := executor.NewRegistry()
	execs.RegisterFunc("compute", func(ctx context.Context, task *models.Task) (models.Result, error) {
		return models.Result{"ok": true}, nil
	})

	o := New(Options{Config: cfg, Executors: execs})
	registerWorker(o, "worker", "compute")

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := o.Start(context.Background()); err == nil {
		t.Error("expected second Start to fail")
	}

	id, err := o.SubmitTask(&models.Task{Capability: "compute"})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	task, err := o.WaitForTask(ctx, id)
	if err != nil {
		t.Fatalf("WaitForTask: %v", err)
	}
	if task.Status != models.TaskStatusCompleted {
		t.Errorf("expected completed via background loop, got %s", task.Status)
	}

	o.Stop()
	o.Stop() // idempotent
}

func TestHeartbeatAnswered(t *testing.T) {
	o := newTestOrchestrator()
	agent := registerWorker(o, "worker", "compute")
	o.Bus().Register("coordinator")

	correlationID, err := o.Bus().SendRequest("coordinator", agent.ID, models.MessageHeartbeat,
		map[string]any{"ping": true}, 5*time.Second)
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	o.messagePass()

	if o.Bus().HasPending(correlationID) {
		t.Error("heartbeat request still pending after message pass")
	}
	replies := o.Bus().Receive("coordinator", 10)
	if len(replies) != 1 {
		t.Fatalf("expected heartbeat reply, got %d messages", len(replies))
	}
	if replies[0].Payload["pong"] != true {
		t.Errorf("unexpected reply payload %v", replies[0].Payload)
	}
}

func TestCancelRunningTaskDiscardsLateResult(t *testing.T) {
	o := newTestOrchestrator()
	registerWorker(o, "worker", "busy")

	started := make(chan struct{})
	finished := make(chan struct{})
	o.Executors().RegisterFunc("busy", func(ctx context.Context, task *models.Task) (models.Result, error) {
		close(started)
		// Deliberately ignores ctx and succeeds anyway.
		time.Sleep(50 * time.Millisecond)
		close(finished)
		return models.Result{"value": 42}, nil
	})

	id, err := o.SubmitTask(&models.Task{Name: "stubborn", Capability: "busy"})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	o.DispatchNow()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("task never started")
	}

	if err := o.CancelTask(id); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}

	// Cancellation settles the task immediately, not when the
	// executor eventually returns.
	task, _ := o.GetTask(id)
	if task.Status != models.TaskStatusCancelled {
		t.Fatalf("expected cancelled right after CancelTask, got %s", task.Status)
	}

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("executor never finished")
	}
	time.Sleep(20 * time.Millisecond)

	task, _ = o.GetTask(id)
	if task.Status != models.TaskStatusCancelled {
		t.Errorf("late success overwrote cancellation: %s", task.Status)
	}
	if task.Result != nil {
		t.Errorf("late result retained: %v", task.Result)
	}
}

func TestCleanupHooksRun(t *testing.T) {
	o := newTestOrchestrator()

	ran := 0
	o.AddCleanupHook(func() { ran++ })
	o.cleanupPass()

	if ran != 1 {
		t.Errorf("cleanup hook ran %d times, want 1", ran)
	}
}
