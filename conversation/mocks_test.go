package conversation

import (
	"time"

	"github.com/opd-ai/messenger/transport"
)

// mockTimeProvider provides deterministic time for testing.
type mockTimeProvider struct {
	currentTime time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	return m.currentTime
}

func (m *mockTimeProvider) Advance(d time.Duration) {
	m.currentTime = m.currentTime.Add(d)
}

// newTestReconciler wires a reconciler to a mock adapter and a fixed clock.
func newTestReconciler() (*Reconciler, *transport.MockAdapter, *mockTimeProvider) {
	adapter := transport.NewMockAdapter()
	clock := &mockTimeProvider{currentTime: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	r := NewReconciler("conv-1", "me", adapter)
	r.SetTimeProvider(clock)
	return r, adapter, clock
}

// echoFor builds the server echo event for a recorded mock send.
func echoFor(send transport.MockSend, serverID string, createdAt time.Time) transport.MessageEvent {
	return transport.MessageEvent{
		ConversationID:   send.ConversationID,
		ServerID:         serverID,
		SenderID:         "me",
		Content:          send.Content,
		CreatedAt:        createdAt,
		CorrelationToken: send.CorrelationToken,
	}
}

// remoteMessage builds an inbound event from a peer.
func remoteMessage(serverID, content string, createdAt time.Time) transport.MessageEvent {
	return transport.MessageEvent{
		ConversationID: "conv-1",
		ServerID:       serverID,
		SenderID:       "user-b",
		Content:        content,
		CreatedAt:      createdAt,
	}
}
