package message

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Message represents a single chat message in one conversation.
//
// Identity is two-phase: LocalToken is assigned at creation and never
// changes; the server id is set exactly once via Confirm. DisplayKey gives
// consumers a key that stays stable across that promotion.
type Message struct {
	// LocalToken is the client-generated token for this message. For
	// locally sent messages it doubles as the correlation token attached
	// to the outbound send.
	LocalToken string

	ConversationID string
	SenderID       string
	Content        string
	CreatedAt      time.Time
	Status         Status

	serverID string
}

// NewLocal creates a message for an optimistic local send. It starts in
// StatusSending under a fresh collision-resistant token.
func NewLocal(conversationID, senderID, content string, now time.Time) *Message {
	return &Message{
		LocalToken:     uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      now,
		Status:         StatusSending,
	}
}

// NewRemote creates a message from a server-originated event or a history
// record. The server id is already known, so the identity is confirmed from
// the start.
func NewRemote(serverID, conversationID, senderID, content string, createdAt time.Time, status Status) *Message {
	return &Message{
		LocalToken:     uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      createdAt,
		Status:         status,
		serverID:       serverID,
	}
}

// ID returns the server-assigned identifier, or the empty string if the
// message has not been confirmed yet.
func (m *Message) ID() string {
	return m.serverID
}

// IsConfirmed reports whether the server has assigned this message an id.
func (m *Message) IsConfirmed() bool {
	return m.serverID != ""
}

// DisplayKey returns a key that is stable across identity promotion: the
// local token. Renderers keyed on it do not lose scroll position or
// animation state when the echo arrives.
func (m *Message) DisplayKey() string {
	return m.LocalToken
}

// Confirm promotes the message identity to the server-assigned id and
// adopts the server's timestamp. A message can be confirmed exactly once;
// a second call returns ErrAlreadyConfirmed and leaves the message alone.
func (m *Message) Confirm(serverID string, createdAt time.Time) error {
	if m.serverID != "" {
		if m.serverID == serverID {
			return nil
		}
		return ErrAlreadyConfirmed
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Confirm",
		"local_token": m.LocalToken,
		"server_id":   serverID,
	}).Debug("Promoting message identity to server id")

	m.serverID = serverID
	m.CreatedAt = createdAt
	m.Advance(StatusSent)
	return nil
}

// Advance moves the status forward if the transition is legal and reports
// whether anything changed. Illegal transitions (regressions, duplicates,
// leaving a terminal state) are silent no-ops.
func (m *Message) Advance(next Status) bool {
	if !m.Status.CanTransition(next) {
		return false
	}
	m.Status = next
	return true
}
