// Package typing tracks which peers are currently typing in each
// conversation.
//
// Entries are inserted or refreshed by SetTyping and removed three ways: an
// explicit stop-typing, expiry after the TTL with no refresh (peers that
// disconnect mid-keystroke never send a stop), or closing the conversation.
// CurrentTypers never includes the local user.
//
// The aggregator is independent of the message sequence; it holds no
// references into a conversation's reconciler.
package typing
