package models

import "time"

// MessageType classifies inter-agent messages.
type MessageType string

const (
	// MessageTaskRequest asks the orchestrator to create a task.
	MessageTaskRequest MessageType = "task_request"
	// MessageTaskResponse answers a correlated request.
	MessageTaskResponse MessageType = "task_response"
	// MessageStatusUpdate carries an agent status report.
	MessageStatusUpdate MessageType = "status_update"
	// MessageErrorReport signals an agent-side error.
	MessageErrorReport MessageType = "error_report"
	// MessageCoordination carries coordinator directives.
	MessageCoordination MessageType = "coordination"
	// MessageBroadcast is a general fan-out message.
	MessageBroadcast MessageType = "broadcast"
	// MessageHeartbeat probes agent liveness.
	MessageHeartbeat MessageType = "heartbeat"
)

// Valid returns true if the type is a known value.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTaskRequest, MessageTaskResponse, MessageStatusUpdate,
		MessageErrorReport, MessageCoordination, MessageBroadcast, MessageHeartbeat:
		return true
	default:
		return false
	}
}

// MessagePriority orders messages. Delivery itself is FIFO per mailbox;
// priority is advisory for consumers.
type MessagePriority int

const (
	// MessagePriorityLow is the lowest message priority.
	MessagePriorityLow MessagePriority = 1
	// MessagePriorityNormal is the default message priority.
	MessagePriorityNormal MessagePriority = 2
	// MessagePriorityHigh marks urgent messages.
	MessagePriorityHigh MessagePriority = 3
	// MessagePriorityCritical marks must-see messages.
	MessagePriorityCritical MessagePriority = 4
)

// Message is one unit of inter-agent communication.
type Message struct {
	// ID is the unique identifier for this message.
	ID string `json:"id"`
	// Sender is the agent ID that sent the message.
	Sender string `json:"sender"`
	// Recipient is the destination agent ID; empty means broadcast.
	Recipient string `json:"recipient,omitempty"`
	// Type classifies the message.
	Type MessageType `json:"type"`
	// Priority is advisory ordering for consumers.
	Priority MessagePriority `json:"priority"`
	// Payload is the opaque message body.
	Payload map[string]any `json:"payload,omitempty"`
	// Timestamp is when the message was sent.
	Timestamp time.Time `json:"timestamp"`
	// ExpiresAt drops the message after this time. Nil means no expiry.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// CorrelationID pairs a request with its eventual response.
	CorrelationID string `json:"correlation_id,omitempty"`
	// RetryCount is the number of delivery retries consumed.
	RetryCount int `json:"retry_count"`
	// MaxRetries is the delivery retry budget.
	MaxRetries int `json:"max_retries"`
}

// Expired returns true once the message's expiry has passed.
func (m *Message) Expired() bool {
	return m.ExpiresAt != nil && time.Now().After(*m.ExpiresAt)
}

// CanRetry returns true while delivery retry budget remains.
func (m *Message) CanRetry() bool {
	return m.RetryCount < m.MaxRetries
}
