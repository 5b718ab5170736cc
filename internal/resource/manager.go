// Package resource provides the capacity-bounded resource manager that
// admits and releases per-task reservations.
package resource

import (
	"sync"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// Manager tracks finite named capacities and the reservations held
// against them. It is the sole owner of allocation counters.
type Manager struct {
	mu sync.RWMutex
	// total maps resource type to its capacity.
	total map[string]float64
	// allocated maps resource type to the amount currently reserved.
	allocated map[string]float64
	// reservations maps task ID to the requirements it holds.
	reservations map[string][]models.ResourceRequirement
}

// Utilization describes one resource type's usage.
type Utilization struct {
	// Total is the configured capacity.
	Total float64 `json:"total"`
	// Allocated is the amount currently reserved.
	Allocated float64 `json:"allocated"`
	// Percent is Allocated/Total as a percentage.
	Percent float64 `json:"percent"`
}

// New creates a manager with the given capacities.
func New(capacities map[string]float64) *Manager {
	m := &Manager{
		total:        make(map[string]float64, len(capacities)),
		allocated:    make(map[string]float64, len(capacities)),
		reservations: make(map[string][]models.ResourceRequirement),
	}
	for typ, total := range capacities {
		m.total[typ] = total
	}
	return m
}

// SetCapacity sets or updates the capacity of one resource type.
func (m *Manager) SetCapacity(resourceType string, total float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total[resourceType] = total
}

// CanAllocate returns true iff every requirement fits in the remaining
// capacity of its type.
func (m *Manager) CanAllocate(requirements []models.ResourceRequirement) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.canAllocateLocked(requirements)
}

// canAllocateLocked assumes the lock is held.
func (m *Manager) canAllocateLocked(requirements []models.ResourceRequirement) bool {
	for _, req := range requirements {
		if m.total[req.Type]-m.allocated[req.Type] < req.Amount {
			return false
		}
	}
	return true
}

// Allocate reserves the requirements for the task. The check and the
// commit happen under one lock; there is never a partial allocation.
// Allocating for a task that already holds a reservation fails.
func (m *Manager) Allocate(taskID string, requirements []models.ResourceRequirement) bool {
	if len(requirements) == 0 {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.reservations[taskID]; held {
		return false
	}
	if !m.canAllocateLocked(requirements) {
		return false
	}
	for _, req := range requirements {
		m.allocated[req.Type] += req.Amount
	}
	m.reservations[taskID] = requirements
	return true
}

// Release returns the task's reservation to the pool. Idempotent:
// releasing an unknown or already-released task ID is a no-op.
func (m *Manager) Release(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	requirements, held := m.reservations[taskID]
	if !held {
		return
	}
	for _, req := range requirements {
		m.allocated[req.Type] -= req.Amount
		if m.allocated[req.Type] < 0 {
			m.allocated[req.Type] = 0
		}
	}
	delete(m.reservations, taskID)
}

// Allocated returns the amount currently reserved for one type.
func (m *Manager) Allocated(resourceType string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allocated[resourceType]
}

// Utilization reports per-type usage percentages.
func (m *Manager) Utilization() map[string]Utilization {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Utilization, len(m.total))
	for typ, total := range m.total {
		u := Utilization{Total: total, Allocated: m.allocated[typ]}
		if total > 0 {
			u.Percent = u.Allocated / total * 100
		}
		out[typ] = u
	}
	return out
}

// Reservations returns the number of live reservations.
func (m *Manager) Reservations() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.reservations)
}
