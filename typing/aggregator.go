package typing

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTTL is how long a typing entry survives without a refresh. Matches
// human typing-pause cadence.
const DefaultTTL = 6 * time.Second

// TimeProvider is an interface for getting the current time. This allows
// injecting a mock time provider for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

type realTimeProvider struct{}

func (realTimeProvider) Now() time.Time { return time.Now() }

// Aggregator tracks the set of currently-typing peers per conversation.
// It is safe for concurrent use.
type Aggregator struct {
	mu          sync.Mutex
	localUserID string
	ttl         time.Duration
	clock       TimeProvider

	// conversation id -> participant id -> expiry
	entries map[string]map[string]time.Time
}

// NewAggregator creates an aggregator. The local user is excluded from
// CurrentTypers. A non-positive ttl selects DefaultTTL; a nil clock selects
// the system clock.
func NewAggregator(localUserID string, ttl time.Duration, clock TimeProvider) *Aggregator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = realTimeProvider{}
	}
	return &Aggregator{
		localUserID: localUserID,
		ttl:         ttl,
		clock:       clock,
		entries:     make(map[string]map[string]time.Time),
	}
}

// SetTyping inserts or refreshes a typing entry, or removes it immediately
// when isTyping is false.
func (a *Aggregator) SetTyping(conversationID, participantID string, isTyping bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !isTyping {
		if convEntries, ok := a.entries[conversationID]; ok {
			delete(convEntries, participantID)
			if len(convEntries) == 0 {
				delete(a.entries, conversationID)
			}
		}
		return
	}

	convEntries, ok := a.entries[conversationID]
	if !ok {
		convEntries = make(map[string]time.Time)
		a.entries[conversationID] = convEntries
	}
	convEntries[participantID] = a.clock.Now().Add(a.ttl)

	logrus.WithFields(logrus.Fields{
		"function":        "SetTyping",
		"conversation_id": conversationID,
		"participant_id":  participantID,
	}).Debug("Typing entry refreshed")
}

// ExpireStale removes entries whose expiry is at or before now. It is
// invoked periodically by the owner's iteration loop; CurrentTypers also
// applies it lazily on read.
func (a *Aggregator) ExpireStale(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.expireLocked(now)
}

func (a *Aggregator) expireLocked(now time.Time) {
	for convID, convEntries := range a.entries {
		for participantID, expiresAt := range convEntries {
			if !expiresAt.After(now) {
				delete(convEntries, participantID)
			}
		}
		if len(convEntries) == 0 {
			delete(a.entries, convID)
		}
	}
}

// CurrentTypers returns the participant ids currently typing in the
// conversation, excluding the local user, sorted for stable output.
func (a *Aggregator) CurrentTypers(conversationID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.expireLocked(a.clock.Now())

	convEntries := a.entries[conversationID]
	if len(convEntries) == 0 {
		return nil
	}

	typers := make([]string, 0, len(convEntries))
	for participantID := range convEntries {
		if participantID == a.localUserID {
			continue
		}
		typers = append(typers, participantID)
	}
	if len(typers) == 0 {
		return nil
	}
	sort.Strings(typers)
	return typers
}

// CloseConversation drops every typing entry for the conversation.
func (a *Aggregator) CloseConversation(conversationID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, conversationID)
}
