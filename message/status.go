package message

// Status represents the delivery state of a message.
type Status uint8

const (
	// StatusSending means the message was created locally and has not been
	// confirmed by the server yet.
	StatusSending Status = iota
	// StatusSent means the server has acknowledged the message.
	StatusSent
	// StatusDelivered means the message reached the recipient's device.
	StatusDelivered
	// StatusRead means the recipient has seen the message.
	StatusRead
	// StatusFailed means the send was never confirmed and gave up. Terminal;
	// only reachable from StatusSending.
	StatusFailed
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusSending:
		return "sending"
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CanTransition reports whether moving from s to next is a legal forward
// transition. The table is total: anything not listed here is simply not
// applied, never an error.
func (s Status) CanTransition(next Status) bool {
	if s == StatusFailed || next == s {
		return false
	}
	if next == StatusFailed {
		return s == StatusSending
	}
	return next > s && next <= StatusRead
}
