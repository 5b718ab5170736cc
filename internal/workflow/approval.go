package workflow

import (
	"context"
	"sync"
)

// ApprovalRequest asks a human to approve one workflow step before it
// runs. It is delivered on the manager's request channel, typically to
// a CLI prompt or dashboard.
type ApprovalRequest struct {
	// WorkflowID is the workflow containing the gated step.
	WorkflowID string
	// StepID is the step awaiting approval.
	StepID string
	// StepName is the step's human-readable name.
	StepName string
	// Capability is what the step will execute if approved.
	Capability string
}

// ApprovalResponse is the human's decision on a request.
type ApprovalResponse struct {
	// WorkflowID and StepID identify the gated step.
	WorkflowID string
	StepID     string
	// Approved indicates whether the step may run.
	Approved bool
	// Reason provides context for rejections.
	Reason string
}

// ApprovalManager routes approval requests to a listener and blocks the
// workflow driver until a response arrives or the wait times out.
type ApprovalManager struct {
	// pendingRequests maps workflowID/stepID keys to response channels.
	pendingRequests map[string]chan ApprovalResponse
	// requestCh delivers requests to whoever is listening.
	requestCh chan ApprovalRequest
	// mu protects pendingRequests.
	mu sync.RWMutex
}

// NewApprovalManager creates a new ApprovalManager instance.
func NewApprovalManager() *ApprovalManager {
	return &ApprovalManager{
		pendingRequests: make(map[string]chan ApprovalResponse),
		requestCh:       make(chan ApprovalRequest, 10),
	}
}

// RequestCh returns a read-only channel for receiving approval requests.
func (m *ApprovalManager) RequestCh() <-chan ApprovalRequest {
	return m.requestCh
}

// WaitForApproval blocks until the step is approved or rejected, or the
// context expires. Context expiry reads as a rejection by timeout.
func (m *ApprovalManager) WaitForApproval(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error) {
	key := approvalKey(req.WorkflowID, req.StepID)
	responseCh := make(chan ApprovalResponse, 1)

	m.mu.Lock()
	m.pendingRequests[key] = responseCh
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pendingRequests, key)
		m.mu.Unlock()
	}()

	select {
	case m.requestCh <- req:
	case <-ctx.Done():
		return ApprovalResponse{}, ctx.Err()
	}

	select {
	case resp := <-responseCh:
		return resp, nil
	case <-ctx.Done():
		return ApprovalResponse{}, ctx.Err()
	}
}

// SubmitResponse delivers a decision for a pending request. Responses
// for unknown or already-settled requests are dropped.
func (m *ApprovalManager) SubmitResponse(resp ApprovalResponse) {
	m.mu.RLock()
	ch, exists := m.pendingRequests[approvalKey(resp.WorkflowID, resp.StepID)]
	m.mu.RUnlock()

	if exists {
		select {
		case ch <- resp:
		default:
		}
	}
}

// HasPendingRequest reports whether the step is awaiting a decision.
func (m *ApprovalManager) HasPendingRequest(workflowID, stepID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.pendingRequests[approvalKey(workflowID, stepID)]
	return exists
}

func approvalKey(workflowID, stepID string) string {
	return workflowID + "/" + stepID
}
