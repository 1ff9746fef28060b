package conversation

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/messenger/message"
	"github.com/opd-ai/messenger/transport"
)

// TimeProvider is an interface for getting the current time. This allows
// injecting a mock time provider for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

type realTimeProvider struct{}

func (realTimeProvider) Now() time.Time { return time.Now() }

// Reconciler owns one conversation's message sequence. Every mutation
// (local sends, inbound events, history merges, expiries) serializes on its
// lock; reads get consistent copies via Snapshot.
type Reconciler struct {
	mu sync.Mutex

	conversationID string
	localUserID    string
	adapter        transport.Adapter
	clock          TimeProvider
	sendTimeout    time.Duration

	// seq holds the sequence in createdAt-ascending order, ties broken by
	// insertion order. byServerID indexes confirmed entries.
	seq        []*message.Message
	byServerID map[string]*message.Message
	pending    *Registry

	closed   bool
	onChange func()
}

// NewReconciler creates the reconciler for one conversation. The adapter
// receives outbound intents; it must not block.
func NewReconciler(conversationID, localUserID string, adapter transport.Adapter) *Reconciler {
	logrus.WithFields(logrus.Fields{
		"function":        "NewReconciler",
		"conversation_id": conversationID,
	}).Info("Creating conversation reconciler")

	return &Reconciler{
		conversationID: conversationID,
		localUserID:    localUserID,
		adapter:        adapter,
		clock:          realTimeProvider{},
		sendTimeout:    DefaultSendTimeout,
		byServerID:     make(map[string]*message.Message),
		pending:        NewRegistry(),
	}
}

// SetTimeProvider replaces the clock. Primarily for deterministic tests.
func (r *Reconciler) SetTimeProvider(tp TimeProvider) {
	if tp == nil {
		tp = realTimeProvider{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = tp
}

// SetSendTimeout overrides how long a pending send may wait for its echo.
func (r *Reconciler) SetSendTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.sendTimeout = d
	}
}

// SetOnChange registers a callback invoked after any mutation that changed
// the sequence. Invoked outside the reconciler lock.
func (r *Reconciler) SetOnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// ConversationID returns the conversation this reconciler owns.
func (r *Reconciler) ConversationID() string {
	return r.conversationID
}

// Send appends an optimistic local message in sending state, registers its
// correlation token, and forwards the outbound intent. It returns the token
// immediately and never waits for acknowledgment. A full outbound queue
// leaves the message pending until the confirmation window expires; any
// other adapter failure transitions it straight to failed. Re-Send is the
// recovery path either way.
func (r *Reconciler) Send(content string) (string, error) {
	if content == "" {
		return "", message.ErrEmptyContent
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", message.ErrConversationClosed
	}

	now := r.clock.Now()
	msg := message.NewLocal(r.conversationID, r.localUserID, content, now)
	token := msg.LocalToken
	r.insertLocked(msg)
	r.pending.Register(token, msg, now)
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":        "Send",
		"conversation_id": r.conversationID,
		"token":           token,
	}).Debug("Local message appended, submitting send intent")

	if err := r.adapter.SubmitSend(r.conversationID, content, token); err != nil {
		if errors.Is(err, transport.ErrQueueFull) {
			logrus.WithFields(logrus.Fields{
				"function":        "Send",
				"conversation_id": r.conversationID,
				"token":           token,
			}).Warn("Outbound queue full, send stays pending until its window expires")
		} else {
			logrus.WithFields(logrus.Fields{
				"function":        "Send",
				"conversation_id": r.conversationID,
				"token":           token,
				"error":           err,
			}).Warn("Transport rejected send, marking message failed")
			r.FailPending(token)
		}
	}

	r.notifyChange()
	return token, nil
}

// ApplyInbound applies one inbound new-message event. Safe to call with the
// same event any number of times. Events missing required fields are
// dropped with ErrMalformedEvent and change nothing.
func (r *Reconciler) ApplyInbound(ev transport.MessageEvent) error {
	if ev.ServerID == "" || ev.ConversationID == "" || ev.SenderID == "" {
		logrus.WithFields(logrus.Fields{
			"function":        "ApplyInbound",
			"conversation_id": ev.ConversationID,
			"server_id":       ev.ServerID,
		}).Warn("Dropping malformed inbound message event")
		return message.ErrMalformedEvent
	}

	r.mu.Lock()
	if r.closed || ev.ConversationID != r.conversationID {
		r.mu.Unlock()
		return nil
	}

	changed := r.applyInboundLocked(ev)
	r.mu.Unlock()

	if changed {
		r.notifyChange()
	}
	return nil
}

func (r *Reconciler) applyInboundLocked(ev transport.MessageEvent) bool {
	// Step 1: correlation token round-tripped.
	if ev.CorrelationToken != "" {
		if msg, ok := r.pending.Resolve(ev.CorrelationToken); ok {
			r.confirmLocked(msg, ev)
			return true
		}
	}

	// Step 2: heuristic echo match for untokened echoes, history records
	// included. Only when exactly one unconfirmed sending-state entry from
	// the local user carries identical content; anything ambiguous falls
	// through.
	if ev.SenderID == r.localUserID {
		if msg, ok := r.soleUnconfirmedMatchLocked(ev.Content); ok {
			r.pending.Resolve(msg.LocalToken)
			r.confirmLocked(msg, ev)
			return true
		}
	}

	// Step 3: the server id is either already in the sequence (duplicate
	// delivery, or the second arrival of an echo whose token was consumed
	// by the first) or a genuinely new remote message.
	if _, ok := r.byServerID[ev.ServerID]; ok {
		logrus.WithFields(logrus.Fields{
			"function":  "applyInbound",
			"server_id": ev.ServerID,
		}).Debug("Ignoring duplicate message delivery")
		return false
	}
	msg := message.NewRemote(ev.ServerID, ev.ConversationID, ev.SenderID, ev.Content, ev.CreatedAt, message.StatusSent)
	r.insertLocked(msg)
	r.byServerID[ev.ServerID] = msg
	return true
}

// confirmLocked promotes a pending local message to its server identity and
// re-slots it under the server timestamp. If the server id already entered
// the sequence as a standalone entry (an ambiguous history record, resolved
// only now by the token) that entry collapses into the confirmed one.
func (r *Reconciler) confirmLocked(msg *message.Message, ev transport.MessageEvent) {
	if prior, ok := r.byServerID[ev.ServerID]; ok && prior != msg {
		r.removeLocked(prior)
	}
	r.removeLocked(msg)
	if err := msg.Confirm(ev.ServerID, ev.CreatedAt); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "confirm",
			"server_id": ev.ServerID,
			"error":     err,
		}).Warn("Echo resolution hit an already-confirmed message")
	}
	r.insertLocked(msg)
	r.byServerID[msg.ID()] = msg
}

// soleUnconfirmedMatchLocked finds the single sending-state, unconfirmed,
// local-user entry with the given content. Zero or multiple candidates
// report no match.
func (r *Reconciler) soleUnconfirmedMatchLocked(content string) (*message.Message, bool) {
	var found *message.Message
	for _, m := range r.seq {
		if m.Status != message.StatusSending || m.IsConfirmed() {
			continue
		}
		if m.SenderID != r.localUserID || m.Content != content {
			continue
		}
		if found != nil {
			return nil, false
		}
		found = m
	}
	return found, found != nil
}

// ApplySeen advances every sequence entry authored by the local user to
// read. Entries still in sending state are left alone: they have no server
// confirmation yet, so the peer cannot have seen them.
func (r *Reconciler) ApplySeen() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	changed := false
	for _, m := range r.seq {
		if m.SenderID != r.localUserID || m.Status == message.StatusSending {
			continue
		}
		if m.Advance(message.StatusRead) {
			changed = true
		}
	}
	r.mu.Unlock()

	if changed {
		r.notifyChange()
	}
}

// ApplyDelivered advances one message to delivered. Unknown ids and
// out-of-order events are no-ops.
func (r *Reconciler) ApplyDelivered(messageID string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	changed := false
	if msg, ok := r.byServerID[messageID]; ok {
		changed = msg.Advance(message.StatusDelivered)
	}
	r.mu.Unlock()

	if changed {
		r.notifyChange()
	}
}

// FailPending marks the pending send for the token as failed and releases
// its registry entry. A no-op if the token already resolved or expired.
func (r *Reconciler) FailPending(token string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	changed := false
	if msg, ok := r.pending.Resolve(token); ok {
		changed = msg.Advance(message.StatusFailed)
	}
	r.mu.Unlock()

	if changed {
		r.notifyChange()
	}
}

// ExpirePending fails every pending send older than the send timeout.
// Driven by the owner's iteration loop. An echo and an expiry racing for
// the same entry serialize on the registry: whichever resolves the token
// first wins and the loser no-ops.
func (r *Reconciler) ExpirePending(now time.Time) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	expired := r.pending.Expire(now, r.sendTimeout)
	changed := false
	for _, msg := range expired {
		if msg.Advance(message.StatusFailed) {
			changed = true
			logrus.WithFields(logrus.Fields{
				"function":        "ExpirePending",
				"conversation_id": r.conversationID,
				"token":           msg.LocalToken,
				"error":           message.ErrSendTimeout,
			}).Warn("Pending send expired without server echo")
		}
	}
	r.mu.Unlock()

	if changed {
		r.notifyChange()
	}
}

// Snapshot returns a consistent copy of the sequence in display order:
// createdAt ascending, insertion order on ties.
func (r *Reconciler) Snapshot() []message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]message.Message, len(r.seq))
	for i, m := range r.seq {
		out[i] = *m
	}
	return out
}

// PendingCount returns the number of sends still awaiting their echo.
func (r *Reconciler) PendingCount() int {
	return r.pending.Len()
}

// Close tears the reconciler down. Subsequent operations are no-ops and
// late echoes resolve to nothing.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.pending.Clear()

	logrus.WithFields(logrus.Fields{
		"function":        "Close",
		"conversation_id": r.conversationID,
	}).Info("Conversation reconciler closed")
}

// insertLocked places the message at its createdAt-ascending position,
// after any existing entries with the same timestamp.
func (r *Reconciler) insertLocked(msg *message.Message) {
	i := len(r.seq)
	for i > 0 && r.seq[i-1].CreatedAt.After(msg.CreatedAt) {
		i--
	}
	r.seq = append(r.seq, nil)
	copy(r.seq[i+1:], r.seq[i:])
	r.seq[i] = msg
}

// removeLocked takes the message out of the sequence by identity.
func (r *Reconciler) removeLocked(msg *message.Message) {
	for i, m := range r.seq {
		if m == msg {
			r.seq = append(r.seq[:i], r.seq[i+1:]...)
			return
		}
	}
}

func (r *Reconciler) notifyChange() {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()

	if fn != nil {
		fn()
	}
}
