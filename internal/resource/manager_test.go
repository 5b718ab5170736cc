package resource

import (
	"testing"

	"github.com/ShayCichocki/foreman/pkg/models"
)

func cpu(amount float64) []models.ResourceRequirement {
	return []models.ResourceRequirement{{Type: "cpu", Amount: amount, Unit: "percent"}}
}

func TestAllocateAndRelease(t *testing.T) {
	m := New(map[string]float64{"cpu": 100})

	if !m.Allocate("task-a", cpu(60)) {
		t.Fatal("expected 60/100 allocation to succeed")
	}
	if m.Allocate("task-b", cpu(50)) {
		t.Fatal("expected 50 allocation to fail with only 40 remaining")
	}

	m.Release("task-a")
	if !m.Allocate("task-b", cpu(50)) {
		t.Fatal("expected allocation to succeed after release")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	m := New(map[string]float64{"cpu": 100})
	if !m.Allocate("task-a", cpu(30)) {
		t.Fatal("allocate failed")
	}

	m.Release("task-a")
	m.Release("task-a") // second release is a no-op
	m.Release("never-allocated")

	if got := m.Allocated("cpu"); got != 0 {
		t.Errorf("expected 0 allocated after releases, got %v", got)
	}
}

func TestNoPartialAllocation(t *testing.T) {
	m := New(map[string]float64{"cpu": 100, "memory": 10})

	reqs := []models.ResourceRequirement{
		{Type: "cpu", Amount: 20},
		{Type: "memory", Amount: 50}, // exceeds memory capacity
	}
	if m.Allocate("task-a", reqs) {
		t.Fatal("expected allocation to fail")
	}
	if m.Allocated("cpu") != 0 {
		t.Errorf("expected no cpu side effect from failed allocation, got %v", m.Allocated("cpu"))
	}
}

func TestDoubleAllocateSameTask(t *testing.T) {
	m := New(map[string]float64{"cpu": 100})
	if !m.Allocate("task-a", cpu(10)) {
		t.Fatal("allocate failed")
	}
	if m.Allocate("task-a", cpu(10)) {
		t.Error("expected second allocation for the same task to fail")
	}
	m.Release("task-a")
	if m.Allocated("cpu") != 0 {
		t.Errorf("expected single release to clear the reservation, got %v", m.Allocated("cpu"))
	}
}

func TestAllocationPairing(t *testing.T) {
	m := New(map[string]float64{"cpu": 100, "memory": 100})

	// Simulate a few task lifecycles and check the counter matches the
	// live reservations exactly.
	live := map[string][]models.ResourceRequirement{
		"a": {{Type: "cpu", Amount: 10}, {Type: "memory", Amount: 20}},
		"b": {{Type: "cpu", Amount: 15}},
		"c": {{Type: "memory", Amount: 5}},
	}
	for id, reqs := range live {
		if !m.Allocate(id, reqs) {
			t.Fatalf("allocate %s failed", id)
		}
	}
	m.Release("b")
	delete(live, "b")

	want := map[string]float64{}
	for _, reqs := range live {
		for _, r := range reqs {
			want[r.Type] += r.Amount
		}
	}
	for typ, amount := range want {
		if got := m.Allocated(typ); got != amount {
			t.Errorf("allocated[%s] = %v, want %v", typ, got, amount)
		}
	}
}

func TestUtilization(t *testing.T) {
	m := New(map[string]float64{"cpu": 200})
	if !m.Allocate("task-a", cpu(50)) {
		t.Fatal("allocate failed")
	}

	u := m.Utilization()["cpu"]
	if u.Percent != 25 {
		t.Errorf("expected 25%% utilization, got %v", u.Percent)
	}
	if u.Total != 200 || u.Allocated != 50 {
		t.Errorf("unexpected utilization record: %+v", u)
	}
}

func TestEmptyRequirements(t *testing.T) {
	m := New(map[string]float64{"cpu": 100})
	if !m.CanAllocate(nil) {
		t.Error("expected empty requirements to always be admittable")
	}
	if !m.Allocate("task-a", nil) {
		t.Error("expected empty allocation to succeed")
	}
	if m.Reservations() != 0 {
		t.Error("expected empty allocation to record no reservation")
	}
}
