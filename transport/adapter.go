package transport

import "time"

// MessageEvent is an inbound "new message" event. CorrelationToken is
// present only when the server echoes back the token the client attached to
// its own send; remote-originated messages carry none.
type MessageEvent struct {
	ConversationID   string
	ServerID         string
	SenderID         string
	Content          string
	CreatedAt        time.Time
	CorrelationToken string
}

// TypingEvent is an inbound typing-indicator change from a peer.
type TypingEvent struct {
	ConversationID string
	ParticipantID  string
	IsTyping       bool
}

// SeenEvent is an inbound notification that a peer has seen the
// conversation.
type SeenEvent struct {
	ConversationID string
	ParticipantID  string
}

// Handlers receives inbound events from an Adapter. Nil fields are skipped.
// Handlers are invoked from the transport's delivery goroutine and must not
// block.
type Handlers struct {
	NewMessage      func(MessageEvent)
	Typing          func(TypingEvent)
	Seen            func(SeenEvent)
	ConnectionState func(connected bool)
}

// Adapter is the push-transport contract consumed by the engine. One
// underlying connection is shared by every conversation; implementations
// route inbound events by conversation id through the registered Handlers.
type Adapter interface {
	// SubmitSend enqueues an outbound message send carrying the client's
	// correlation token. It must not block on network I/O.
	SubmitSend(conversationID, content, correlationToken string) error

	// SubmitTyping enqueues an outbound typing-indicator change.
	SubmitTyping(conversationID string, isTyping bool) error

	// SubmitSeen enqueues an outbound seen marker for the conversation.
	SubmitSeen(conversationID string) error

	// SetHandlers registers the inbound event sinks. Must be called before
	// the transport starts delivering events.
	SetHandlers(h Handlers)

	// Close shuts down the transport.
	Close() error
}
