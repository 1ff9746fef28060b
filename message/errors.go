package message

import "errors"

var (
	// ErrEmptyContent is returned when a send is attempted with no content.
	ErrEmptyContent = errors.New("message content cannot be empty")

	// ErrMalformedEvent is returned when an inbound event is missing
	// required fields. Such events are dropped without touching state.
	ErrMalformedEvent = errors.New("malformed inbound event")

	// ErrSendTimeout is returned when a pending send exceeded its
	// confirmation window and was marked failed.
	ErrSendTimeout = errors.New("send confirmation timed out")

	// ErrHistoryFetch is returned when loading a conversation's history
	// failed. The conversation stays usable with live state only.
	ErrHistoryFetch = errors.New("history fetch failed")

	// ErrConversationClosed is returned by operations on a conversation
	// that has been torn down.
	ErrConversationClosed = errors.New("conversation is closed")

	// ErrAlreadyConfirmed is returned when a second server id is applied
	// to a message whose identity was already promoted.
	ErrAlreadyConfirmed = errors.New("message id already confirmed")
)
