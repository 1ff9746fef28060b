// Package messenger implements a client-side real-time chat engine that
// keeps each conversation's message list, delivery state, and typing
// indicators consistent under optimistic local writes, an out-of-order and
// possibly duplicated push event stream, and concurrently loaded history.
//
// Example:
//
//	opts := messenger.NewOptions()
//	opts.ServerURL = "wss://chat.example.com/socket"
//	opts.APIBaseURL = "https://chat.example.com/api"
//	opts.AuthToken = token
//	opts.LocalUserID = me.ID
//
//	client, err := messenger.NewWithSocket(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.OnConversationUpdate(func(conversationID string) {
//	    render(client.Snapshot(conversationID))
//	})
//
//	client.OpenConversation("conv-1", participants)
//	client.Send("conv-1", "Hello!")
//
//	for {
//	    client.Iterate()
//	    time.Sleep(client.IterationInterval())
//	}
package messenger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/messenger/conversation"
	"github.com/opd-ai/messenger/message"
	"github.com/opd-ai/messenger/transport"
	"github.com/opd-ai/messenger/typing"
)

// ErrConversationNotOpen is returned for operations on a conversation the
// client has not opened.
var ErrConversationNotOpen = errors.New("conversation is not open")

// openConversation pairs a reconciler with its participant directory.
type openConversation struct {
	reconciler *conversation.Reconciler
	directory  *conversation.Directory
}

// Client is the process-wide engine instance. It owns one shared transport,
// routes each inbound event to the reconciler for its conversation, and
// drives time-based expiry through Iterate. Conversations are independent;
// operations on different conversations run in parallel.
type Client struct {
	opts    *Options
	adapter transport.Adapter
	history transport.HistoryFetcher
	clock   TimeProvider
	typing  *typing.Aggregator

	mu            sync.RWMutex
	conversations map[string]*openConversation
	connected     bool

	conversationUpdated func(conversationID string)
	typingChanged       func(conversationID string, typers []string)
	connectionStatus    func(connected bool)
	historyError        func(conversationID string, err error)

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Client on an existing transport. The history fetcher may be
// nil, in which case opening a conversation skips the backlog. The adapter's
// handlers are claimed by the client.
func New(opts *Options, adapter transport.Adapter, history transport.HistoryFetcher) (*Client, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if adapter == nil {
		return nil, errors.New("transport adapter is required")
	}
	if opts.LocalUserID == "" {
		return nil, errors.New("local user id is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		opts:          opts,
		adapter:       adapter,
		history:       history,
		clock:         RealTimeProvider{},
		typing:        typing.NewAggregator(opts.LocalUserID, opts.TypingTTL, nil),
		conversations: make(map[string]*openConversation),
		ctx:           ctx,
		cancel:        cancel,
	}

	adapter.SetHandlers(transport.Handlers{
		NewMessage:      c.handleNewMessage,
		Typing:          c.handleTyping,
		Seen:            c.handleSeen,
		ConnectionState: c.handleConnectionState,
	})

	logrus.WithFields(logrus.Fields{
		"function":      "New",
		"local_user_id": opts.LocalUserID,
	}).Info("Messenger client created")

	return c, nil
}

// NewWithSocket creates a Client wired to a websocket transport and HTTP
// history fetcher built from the options, and starts connecting.
func NewWithSocket(opts *Options) (*Client, error) {
	if opts == nil || opts.ServerURL == "" {
		return nil, errors.New("server url is required")
	}

	sock := transport.NewSocketTransport(opts.ServerURL, opts.AuthToken)

	var history transport.HistoryFetcher
	if opts.APIBaseURL != "" {
		history = transport.NewHTTPHistory(opts.APIBaseURL, opts.AuthToken)
	}

	c, err := New(opts, sock, history)
	if err != nil {
		return nil, err
	}
	sock.Connect()
	return c, nil
}

// SetTimeProvider replaces the clock used for expiry decisions. Primarily
// for deterministic tests; call it before opening conversations. Open
// state is not migrated: reconcilers opened earlier keep the clock they
// were created with, and the typing set restarts empty under the new one.
func (c *Client) SetTimeProvider(tp TimeProvider) {
	if tp == nil {
		tp = RealTimeProvider{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = tp
	c.typing = typing.NewAggregator(c.opts.LocalUserID, c.opts.TypingTTL, tp)
}

// OnConversationUpdate registers a callback fired whenever a conversation's
// sequence changes. Fired from transport goroutines; must not block.
func (c *Client) OnConversationUpdate(fn func(conversationID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversationUpdated = fn
}

// OnTypingChange registers a callback fired when a conversation's set of
// typers changes.
func (c *Client) OnTypingChange(fn func(conversationID string, typers []string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typingChanged = fn
}

// OnConnectionStatus registers a callback for transport connectivity
// changes. Pending sends are kept across disconnects.
func (c *Client) OnConnectionStatus(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectionStatus = fn
}

// OnHistoryError registers a callback for failed history fetches. The
// conversation stays usable with live state; retrying is the caller's
// decision.
func (c *Client) OnHistoryError(fn func(conversationID string, err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.historyError = fn
}

// OpenConversation creates the reconciler for a conversation and starts its
// history load in the background. Opening an already-open conversation
// returns the existing reconciler.
func (c *Client) OpenConversation(conversationID string, participants []conversation.Participant) *conversation.Reconciler {
	c.mu.Lock()
	if oc, ok := c.conversations[conversationID]; ok {
		c.mu.Unlock()
		return oc.reconciler
	}

	rec := conversation.NewReconciler(conversationID, c.opts.LocalUserID, c.adapter)
	rec.SetTimeProvider(c.clock)
	rec.SetSendTimeout(c.opts.SendTimeout)
	rec.SetOnChange(func() { c.notifyConversation(conversationID) })

	c.conversations[conversationID] = &openConversation{
		reconciler: rec,
		directory:  conversation.NewDirectory(participants),
	}
	history := c.history
	c.mu.Unlock()

	if history != nil {
		go c.loadHistory(rec, conversationID, history)
	}
	return rec
}

// loadHistory fetches the backlog once and merges it. The merge interleaves
// safely with live events already flowing into the reconciler.
func (c *Client) loadHistory(rec *conversation.Reconciler, conversationID string, history transport.HistoryFetcher) {
	records, err := history.FetchHistory(c.ctx, conversationID)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":        "loadHistory",
			"conversation_id": conversationID,
			"error":           err,
		}).Warn("History fetch failed, conversation continues with live state")

		c.mu.RLock()
		fn := c.historyError
		c.mu.RUnlock()
		if fn != nil {
			fn(conversationID, err)
		}
		return
	}
	rec.ApplyHistory(records)
}

// CloseConversation tears down a conversation's reconciler and typing
// entries. Late echoes for its pending sends resolve to nothing.
func (c *Client) CloseConversation(conversationID string) {
	c.mu.Lock()
	oc, ok := c.conversations[conversationID]
	if ok {
		delete(c.conversations, conversationID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	oc.reconciler.Close()
	c.typingSet().CloseConversation(conversationID)
}

// Send sends a message in an open conversation and returns its correlation
// token. It never blocks on the network.
func (c *Client) Send(conversationID, content string) (string, error) {
	oc, ok := c.lookup(conversationID)
	if !ok {
		return "", ErrConversationNotOpen
	}
	return oc.reconciler.Send(content)
}

// SetTyping reports the local user's typing state to the server.
func (c *Client) SetTyping(conversationID string, isTyping bool) error {
	if _, ok := c.lookup(conversationID); !ok {
		return ErrConversationNotOpen
	}
	return c.adapter.SubmitTyping(conversationID, isTyping)
}

// MarkSeen tells the server the local user has seen the conversation.
func (c *Client) MarkSeen(conversationID string) error {
	if _, ok := c.lookup(conversationID); !ok {
		return ErrConversationNotOpen
	}
	return c.adapter.SubmitSeen(conversationID)
}

// Snapshot returns a consistent copy of the conversation's sequence in
// display order, or nil if the conversation is not open.
func (c *Client) Snapshot(conversationID string) []message.Message {
	oc, ok := c.lookup(conversationID)
	if !ok {
		return nil
	}
	return oc.reconciler.Snapshot()
}

// Typers returns the ids of peers currently typing in the conversation.
func (c *Client) Typers(conversationID string) []string {
	return c.typingSet().CurrentTypers(conversationID)
}

// TypingLabel renders the conversation's current typers as a display
// string, resolving ids to names through the participant directory.
func (c *Client) TypingLabel(conversationID string) string {
	oc, ok := c.lookup(conversationID)
	if !ok {
		return ""
	}
	return typing.FormatTypers(oc.directory.Names(c.typingSet().CurrentTypers(conversationID)))
}

// IsConnected reports the last known transport connectivity.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Iterate drives the time-based expirations: pending sends past their
// confirmation window fail, and stale typing entries drop. Call it on the
// IterationInterval cadence.
func (c *Client) Iterate() {
	c.mu.RLock()
	now := c.clock.Now()
	recs := make([]*conversation.Reconciler, 0, len(c.conversations))
	for _, oc := range c.conversations {
		recs = append(recs, oc.reconciler)
	}
	c.mu.RUnlock()

	for _, rec := range recs {
		rec.ExpirePending(now)
	}
	c.typingSet().ExpireStale(now)
}

// IterationInterval returns the recommended time between Iterate calls.
func (c *Client) IterationInterval() time.Duration {
	return c.opts.IterationInterval
}

// Close tears down every conversation and shuts the transport down.
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	conversations := c.conversations
	c.conversations = make(map[string]*openConversation)
	c.mu.Unlock()

	for id, oc := range conversations {
		oc.reconciler.Close()
		c.typingSet().CloseConversation(id)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Close",
	}).Info("Messenger client closed")

	return c.adapter.Close()
}

func (c *Client) lookup(conversationID string) (*openConversation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	oc, ok := c.conversations[conversationID]
	return oc, ok
}

// typingSet returns the current typing aggregator under the lock, since
// SetTimeProvider swaps it out.
func (c *Client) typingSet() *typing.Aggregator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.typing
}

// handleNewMessage routes an inbound message event to the reconciler that
// owns its conversation. Events for conversations that are not open are
// dropped; a torn-down conversation's late events resolve to nothing.
func (c *Client) handleNewMessage(ev transport.MessageEvent) {
	oc, ok := c.lookup(ev.ConversationID)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function":        "handleNewMessage",
			"conversation_id": ev.ConversationID,
			"server_id":       ev.ServerID,
		}).Debug("Dropping event for conversation that is not open")
		return
	}
	// Malformed events are logged inside ApplyInbound and change nothing.
	_ = oc.reconciler.ApplyInbound(ev)
}

// handleTyping updates the typing set for the event's conversation.
func (c *Client) handleTyping(ev transport.TypingEvent) {
	if ev.ParticipantID == c.opts.LocalUserID {
		return
	}
	if _, ok := c.lookup(ev.ConversationID); !ok {
		return
	}

	ts := c.typingSet()
	ts.SetTyping(ev.ConversationID, ev.ParticipantID, ev.IsTyping)

	c.mu.RLock()
	fn := c.typingChanged
	c.mu.RUnlock()
	if fn != nil {
		fn(ev.ConversationID, ts.CurrentTypers(ev.ConversationID))
	}
}

// handleSeen marks the local user's messages in the conversation read.
func (c *Client) handleSeen(ev transport.SeenEvent) {
	oc, ok := c.lookup(ev.ConversationID)
	if !ok {
		return
	}
	oc.reconciler.ApplySeen()
}

func (c *Client) handleConnectionState(connected bool) {
	c.mu.Lock()
	c.connected = connected
	fn := c.connectionStatus
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "handleConnectionState",
		"connected": connected,
	}).Info("Transport connection state changed")

	if fn != nil {
		fn(connected)
	}
}

func (c *Client) notifyConversation(conversationID string) {
	c.mu.RLock()
	fn := c.conversationUpdated
	c.mu.RUnlock()
	if fn != nil {
		fn(conversationID)
	}
}
