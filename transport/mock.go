package transport

import "sync"

// MockSend records one outbound send submitted to a MockAdapter.
type MockSend struct {
	ConversationID   string
	Content          string
	CorrelationToken string
}

// MockTypingChange records one outbound typing change.
type MockTypingChange struct {
	ConversationID string
	IsTyping       bool
}

// MockAdapter implements Adapter in memory for testing. Inbound events are
// injected with the Deliver* methods.
type MockAdapter struct {
	mu       sync.Mutex
	handlers Handlers

	sends   []MockSend
	typing  []MockTypingChange
	seen    []string
	sendErr error
	closed  bool
}

// NewMockAdapter creates a mock transport for testing.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{}
}

// SetHandlers implements Adapter.SetHandlers.
func (m *MockAdapter) SetHandlers(h Handlers) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = h
}

// SubmitSend implements Adapter.SubmitSend.
func (m *MockAdapter) SubmitSend(conversationID, content, correlationToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sends = append(m.sends, MockSend{
		ConversationID:   conversationID,
		Content:          content,
		CorrelationToken: correlationToken,
	})
	return nil
}

// SubmitTyping implements Adapter.SubmitTyping.
func (m *MockAdapter) SubmitTyping(conversationID string, isTyping bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing = append(m.typing, MockTypingChange{ConversationID: conversationID, IsTyping: isTyping})
	return nil
}

// SubmitSeen implements Adapter.SubmitSeen.
func (m *MockAdapter) SubmitSeen(conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, conversationID)
	return nil
}

// Close implements Adapter.Close.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// FailSends makes subsequent SubmitSend calls return err.
func (m *MockAdapter) FailSends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// Sends returns all recorded sends.
func (m *MockAdapter) Sends() []MockSend {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockSend, len(m.sends))
	copy(out, m.sends)
	return out
}

// TypingChanges returns all recorded typing changes.
func (m *MockAdapter) TypingChanges() []MockTypingChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockTypingChange, len(m.typing))
	copy(out, m.typing)
	return out
}

// SeenMarks returns the conversation ids marked seen, in order.
func (m *MockAdapter) SeenMarks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.seen))
	copy(out, m.seen)
	return out
}

// Closed reports whether Close was called.
func (m *MockAdapter) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// DeliverMessage injects an inbound new-message event.
func (m *MockAdapter) DeliverMessage(ev MessageEvent) {
	if h := m.currentHandlers(); h.NewMessage != nil {
		h.NewMessage(ev)
	}
}

// DeliverTyping injects an inbound typing event.
func (m *MockAdapter) DeliverTyping(ev TypingEvent) {
	if h := m.currentHandlers(); h.Typing != nil {
		h.Typing(ev)
	}
}

// DeliverSeen injects an inbound seen event.
func (m *MockAdapter) DeliverSeen(ev SeenEvent) {
	if h := m.currentHandlers(); h.Seen != nil {
		h.Seen(ev)
	}
}

// DeliverConnectionState injects a connection state change.
func (m *MockAdapter) DeliverConnectionState(connected bool) {
	if h := m.currentHandlers(); h.ConnectionState != nil {
		h.ConnectionState(connected)
	}
}

func (m *MockAdapter) currentHandlers() Handlers {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers
}
