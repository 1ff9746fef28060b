package conversation

import (
	"sync"
	"time"

	"github.com/opd-ai/messenger/message"
)

// DefaultSendTimeout is how long a pending send waits for its server echo
// before it is marked failed. Sized to a typical network retry window.
const DefaultSendTimeout = 30 * time.Second

// pendingSend is one local send awaiting its server echo.
type pendingSend struct {
	msg         *message.Message
	submittedAt time.Time
}

// Registry maps correlation tokens to pending local sends. Entries leave
// the registry exactly once: resolved by an echo, failed explicitly, or
// expired. Tokens are uuids and are never reused within a process.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*pendingSend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]*pendingSend)}
}

// Register tracks a pending send under its correlation token.
func (r *Registry) Register(token string, msg *message.Message, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[token] = &pendingSend{msg: msg, submittedAt: now}
}

// Resolve removes and returns the pending message for the token. The second
// return is false when the token is unknown (already resolved, expired, or
// never issued), in which case the caller treats resolution as a no-op.
func (r *Registry) Resolve(token string) (*message.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.pending[token]
	if !ok {
		return nil, false
	}
	delete(r.pending, token)
	return entry.msg, true
}

// Expire removes every entry whose age is at least ttl and returns the
// associated messages so the owner can fail them.
func (r *Registry) Expire(now time.Time, ttl time.Duration) []*message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*message.Message
	for token, entry := range r.pending {
		if now.Sub(entry.submittedAt) >= ttl {
			expired = append(expired, entry.msg)
			delete(r.pending, token)
		}
	}
	return expired
}

// Len returns the number of pending entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Clear drops every pending entry. Used at conversation teardown so a late
// echo resolves to nothing.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = make(map[string]*pendingSend)
}
