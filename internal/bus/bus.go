// Package bus provides the in-memory message bus: per-agent mailboxes,
// topic subscriptions, and request/response correlation with expiry.
package bus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// ErrUnknownRecipient indicates a direct message addressed an agent with
// no registered mailbox.
var ErrUnknownRecipient = errors.New("unknown recipient")

// ErrUnknownCorrelation indicates a response referenced a correlation ID
// with no retained request.
var ErrUnknownCorrelation = errors.New("unknown correlation id")

// maxHistory bounds the retained message history searched by SendResponse.
const maxHistory = 1000

// Stats is a snapshot of bus state for system stats reporting.
type Stats struct {
	// RegisteredAgents is the number of live mailboxes.
	RegisteredAgents int `json:"registered_agents"`
	// QueuedMessages is the total across all mailboxes.
	QueuedMessages int `json:"queued_messages"`
	// PendingResponses is the number of unanswered requests.
	PendingResponses int `json:"pending_responses"`
	// HistorySize is the current retained history length.
	HistorySize int `json:"history_size"`
	// Subscribers maps message type to subscriber count.
	Subscribers map[string]int `json:"subscribers"`
}

// MessageBus routes messages between agents. Delivery is at-most-once per
// mailbox read; callers needing strict pairing use correlation IDs.
type MessageBus struct {
	mu sync.RWMutex
	// mailboxes maps agent ID to its FIFO message queue.
	mailboxes map[string][]*models.Message
	// subscribers maps message type to subscribed agent IDs.
	subscribers map[models.MessageType][]string
	// pending maps correlation ID to the original request.
	pending map[string]*models.Message
	// history retains recent messages, bounded to maxHistory.
	history []*models.Message
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates an empty message bus.
func New() *MessageBus {
	return &MessageBus{
		mailboxes:   make(map[string][]*models.Message),
		subscribers: make(map[models.MessageType][]string),
		pending:     make(map[string]*models.Message),
		debugLog:    func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (b *MessageBus) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		b.debugLog = fn
	}
}

// Register creates a mailbox for the agent. Re-registering is a no-op.
func (b *MessageBus) Register(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mailboxes[agentID]; !ok {
		b.mailboxes[agentID] = nil
		b.debugLog("[bus.Register] mailbox created for %s", agentID)
	}
}

// Registered reports whether the agent has a mailbox.
func (b *MessageBus) Registered(agentID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.mailboxes[agentID]
	return ok
}

// Unregister removes the agent's mailbox and subscriptions.
func (b *MessageBus) Unregister(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.mailboxes, agentID)
	for typ, subs := range b.subscribers {
		for i, id := range subs {
			if id == agentID {
				b.subscribers[typ] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Subscribe adds the agent to the subscriber list for a message type.
func (b *MessageBus) Subscribe(agentID string, messageType models.MessageType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range b.subscribers[messageType] {
		if id == agentID {
			return
		}
	}
	b.subscribers[messageType] = append(b.subscribers[messageType], agentID)
}

// Send routes a message. With a recipient set it is appended to that
// mailbox; without one it is broadcast to every subscriber of its type
// except the sender. Broadcasting to zero subscribers succeeds.
func (b *MessageBus) Send(msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.recordHistoryLocked(msg)

	if msg.Recipient != "" {
		if _, ok := b.mailboxes[msg.Recipient]; !ok {
			return fmt.Errorf("send %s to %s: %w", msg.Type, msg.Recipient, ErrUnknownRecipient)
		}
		b.mailboxes[msg.Recipient] = append(b.mailboxes[msg.Recipient], msg)
		b.debugLog("[bus.Send] %s -> %s (%s)", msg.Sender, msg.Recipient, msg.Type)
		return nil
	}

	delivered := 0
	for _, id := range b.subscribers[msg.Type] {
		if id == msg.Sender {
			continue
		}
		if _, ok := b.mailboxes[id]; ok {
			b.mailboxes[id] = append(b.mailboxes[id], msg)
			delivered++
		}
	}
	b.debugLog("[bus.Send] broadcast %s from %s delivered to %d subscribers", msg.Type, msg.Sender, delivered)
	return nil
}

// Receive pops up to limit messages from the agent's mailbox, silently
// discarding any whose expiry has passed.
func (b *MessageBus) Receive(agentID string, limit int) []*models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	box, ok := b.mailboxes[agentID]
	if !ok || limit <= 0 {
		return nil
	}

	var out []*models.Message
	for len(out) < limit && len(box) > 0 {
		msg := box[0]
		box = box[1:]
		if msg.Expired() {
			b.debugLog("[bus.Receive] expired message %s discarded", msg.ID)
			continue
		}
		out = append(out, msg)
	}
	b.mailboxes[agentID] = box
	return out
}

// SendRequest sends a correlated request with expiry now+timeout, records
// it as pending, and returns the correlation ID.
func (b *MessageBus) SendRequest(sender, recipient string, messageType models.MessageType, payload map[string]any, timeout time.Duration) (string, error) {
	correlationID := uuid.New().String()
	expires := time.Now().Add(timeout)

	msg := &models.Message{
		ID:            uuid.New().String(),
		Sender:        sender,
		Recipient:     recipient,
		Type:          messageType,
		Priority:      models.MessagePriorityNormal,
		Payload:       payload,
		Timestamp:     time.Now(),
		ExpiresAt:     &expires,
		CorrelationID: correlationID,
	}

	if err := b.Send(msg); err != nil {
		return "", err
	}

	b.mu.Lock()
	b.pending[correlationID] = msg
	b.mu.Unlock()

	return correlationID, nil
}

// SendResponse routes a TaskResponse back to the sender of the original
// request identified by correlation ID, and clears the pending entry.
// The lookup searches the retained history, bounded to maxHistory.
func (b *MessageBus) SendResponse(sender, correlationID string, payload map[string]any) error {
	b.mu.RLock()
	var original *models.Message
	for i := len(b.history) - 1; i >= 0; i-- {
		if b.history[i].CorrelationID == correlationID && b.history[i].Type != models.MessageTaskResponse {
			original = b.history[i]
			break
		}
	}
	b.mu.RUnlock()

	if original == nil {
		return fmt.Errorf("respond to %s: %w", correlationID, ErrUnknownCorrelation)
	}

	resp := &models.Message{
		ID:            uuid.New().String(),
		Sender:        sender,
		Recipient:     original.Sender,
		Type:          models.MessageTaskResponse,
		Priority:      models.MessagePriorityNormal,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
	if err := b.Send(resp); err != nil {
		return err
	}

	b.mu.Lock()
	delete(b.pending, correlationID)
	b.mu.Unlock()
	return nil
}

// HasPending reports whether a request is still awaiting its response.
func (b *MessageBus) HasPending(correlationID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.pending[correlationID]
	return ok
}

// PendingExpired returns correlation IDs of pending requests whose expiry
// has passed.
func (b *MessageBus) PendingExpired() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []string
	for id, req := range b.pending {
		if req.Expired() {
			out = append(out, id)
		}
	}
	return out
}

// Cleanup purges expired pending requests and expired mailbox entries.
// Returns the number of entries removed.
func (b *MessageBus) Cleanup() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for id, req := range b.pending {
		if req.Expired() {
			delete(b.pending, id)
			removed++
		}
	}
	for agentID, box := range b.mailboxes {
		kept := box[:0]
		for _, msg := range box {
			if msg.Expired() {
				removed++
				continue
			}
			kept = append(kept, msg)
		}
		b.mailboxes[agentID] = kept
	}
	if removed > 0 {
		b.debugLog("[bus.Cleanup] purged %d expired entries", removed)
	}
	return removed
}

// Stats returns a snapshot of bus state.
func (b *MessageBus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	queued := 0
	for _, box := range b.mailboxes {
		queued += len(box)
	}
	subs := make(map[string]int, len(b.subscribers))
	for typ, ids := range b.subscribers {
		subs[string(typ)] = len(ids)
	}
	return Stats{
		RegisteredAgents: len(b.mailboxes),
		QueuedMessages:   queued,
		PendingResponses: len(b.pending),
		HistorySize:      len(b.history),
		Subscribers:      subs,
	}
}

// recordHistoryLocked appends to the bounded history. Caller holds b.mu.
func (b *MessageBus) recordHistoryLocked(msg *models.Message) {
	b.history = append(b.history, msg)
	if len(b.history) > maxHistory {
		b.history = b.history[len(b.history)-maxHistory:]
	}
}
