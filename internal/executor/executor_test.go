package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ShayCichocki/foreman/pkg/models"
)

func TestRegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	r.RegisterFunc("double", func(ctx context.Context, task *models.Task) (models.Result, error) {
		n := task.Params["n"].(int)
		return models.Result{"value": n * 2}, nil
	})

	task := &models.Task{Capability: "double", Params: map[string]any{"n": 21}}
	result, err := r.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["value"] != 42 {
		t.Errorf("expected 42, got %v", result["value"])
	}
}

func TestExecuteUnknownCapability(t *testing.T) {
	r := NewRegistry()

	_, err := r.Execute(context.Background(), &models.Task{Capability: "missing"})
	if err == nil {
		t.Fatal("expected error for unknown capability")
	}
}

func TestExecuteHonorsTaskTimeout(t *testing.T) {
	r := NewRegistry()
	r.RegisterFunc("slow", func(ctx context.Context, task *models.Task) (models.Result, error) {
		select {
		case <-time.After(5 * time.Second):
			return models.Result{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	task := &models.Task{Capability: "slow", Timeout: 20 * time.Millisecond}
	_, err := r.Execute(context.Background(), task)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	r.RegisterFunc("a", func(ctx context.Context, task *models.Task) (models.Result, error) {
		return models.Result{"v": 1}, nil
	})
	r.RegisterFunc("a", func(ctx context.Context, task *models.Task) (models.Result, error) {
		return models.Result{"v": 2}, nil
	})

	result, err := r.Execute(context.Background(), &models.Task{Capability: "a"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["v"] != 2 {
		t.Errorf("expected replacement executor, got %v", result["v"])
	}
}

func TestRegisterSimulated(t *testing.T) {
	r := NewRegistry()
	r.RegisterSimulated()

	want := []string{
		"data_analysis", "data_validation", "data_cleaning", "feature_engineering",
		"model_training", "hyperparameter_tuning", "model_evaluation", "model_comparison",
		"forecasting", "uncertainty_estimation", "coordination", "quality_control",
	}
	for _, name := range want {
		if _, ok := r.Get(name); !ok {
			t.Errorf("missing simulated executor %s", name)
		}
	}

	task := &models.Task{Name: "nightly-eda", Capability: "data_analysis", Params: map[string]any{"series": "sales"}}
	result, err := r.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result["analysis_type"] != "eda" {
		t.Errorf("unexpected payload: %v", result)
	}
	if result["task_name"] != "nightly-eda" {
		t.Errorf("expected task name echoed, got %v", result["task_name"])
	}
}

func TestSimulatedCancellation(t *testing.T) {
	r := NewRegistry()
	r.RegisterSimulated()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Execute(ctx, &models.Task{Capability: "model_training"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
