package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const outboundQueueSize = 256

// frame is the envelope every socket message travels in, both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// outFrame is an outbound envelope before encoding.
type outFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Wire payloads, matching the backend's socket protocol.
type wireSend struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	ClientToken    string `json:"clientToken"`
}

type wireTyping struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId,omitempty"`
	IsTyping       bool   `json:"isTyping"`
}

type wireSeen struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId,omitempty"`
}

type wireMessage struct {
	ID             string `json:"_id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Content        string `json:"content"`
	CreatedAt      string `json:"createdAt"`
	ClientToken    string `json:"clientToken,omitempty"`
}

// ErrQueueFull is returned when the outbound queue has no room; the caller
// keeps the message pending and may retry.
var ErrQueueFull = errors.New("outbound queue is full")

// SocketTransport is a websocket Adapter. It maintains one connection shared
// by every conversation, reconnecting with exponential backoff, and queues
// outbound intents so submitters never block on the network.
type SocketTransport struct {
	url   string
	token string

	handlersMu sync.RWMutex
	handlers   Handlers

	out    chan outFrame
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dialer *websocket.Dialer

	startOnce sync.Once
	closeOnce sync.Once
}

// NewSocketTransport creates a transport for the given websocket URL. The
// auth token is presented as a bearer token during the handshake. Call
// Connect to start it.
func NewSocketTransport(url, authToken string) *SocketTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &SocketTransport{
		url:    url,
		token:  authToken,
		out:    make(chan outFrame, outboundQueueSize),
		ctx:    ctx,
		cancel: cancel,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// SetHandlers registers the inbound event sinks.
func (s *SocketTransport) SetHandlers(h Handlers) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers = h
}

// Connect starts the connection loop. It returns immediately; connection
// state is reported through the ConnectionState handler.
func (s *SocketTransport) Connect() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run()
	})
}

// Close shuts the transport down. Queued outbound intents are dropped; the
// engine keeps its pending entries until they resolve or expire.
func (s *SocketTransport) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
	})
	s.wg.Wait()
	return nil
}

// SubmitSend enqueues an outbound message send.
func (s *SocketTransport) SubmitSend(conversationID, content, correlationToken string) error {
	return s.enqueue(outFrame{Event: "chat:send", Data: wireSend{
		ConversationID: conversationID,
		Content:        content,
		ClientToken:    correlationToken,
	}})
}

// SubmitTyping enqueues an outbound typing-indicator change.
func (s *SocketTransport) SubmitTyping(conversationID string, isTyping bool) error {
	return s.enqueue(outFrame{Event: "chat:typing", Data: wireTyping{
		ConversationID: conversationID,
		IsTyping:       isTyping,
	}})
}

// SubmitSeen enqueues an outbound seen marker.
func (s *SocketTransport) SubmitSeen(conversationID string) error {
	return s.enqueue(outFrame{Event: "chat:seen", Data: wireSeen{
		ConversationID: conversationID,
	}})
}

func (s *SocketTransport) enqueue(f outFrame) error {
	if s.ctx.Err() != nil {
		return errors.New("transport is closed")
	}
	select {
	case s.out <- f:
		return nil
	default:
		logrus.WithFields(logrus.Fields{
			"function": "enqueue",
			"event":    f.Event,
		}).Warn("Outbound queue full, dropping intent")
		return ErrQueueFull
	}
}

// run dials, pumps one connection until it fails, and redials with
// exponential backoff until Close.
func (s *SocketTransport) run() {
	defer s.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry forever; Close is the only way out

	for {
		conn, err := s.dial()
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "run",
				"url":      s.url,
				"error":    err,
			}).Warn("Socket dial failed")

			select {
			case <-s.ctx.Done():
				return
			case <-time.After(bo.NextBackOff()):
				continue
			}
		}

		bo.Reset()
		s.notifyConnection(true)
		s.pump(conn)
		s.notifyConnection(false)

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(bo.NextBackOff()):
		}
	}
}

func (s *SocketTransport) dial() (*websocket.Conn, error) {
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}

	conn, resp, err := s.dialer.DialContext(s.ctx, s.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// pump services one live connection: a writer goroutine drains the outbound
// queue while this goroutine reads until the connection drops or the
// transport closes.
func (s *SocketTransport) pump(conn *websocket.Conn) {
	done := make(chan struct{})
	defer func() {
		close(done)
		conn.Close()
	}()

	go func() {
		for {
			select {
			case <-done:
				return
			case <-s.ctx.Done():
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
				return
			case f := <-s.out:
				if err := conn.WriteJSON(f); err != nil {
					logrus.WithFields(logrus.Fields{
						"function": "pump",
						"event":    f.Event,
						"error":    err,
					}).Warn("Socket write failed")
					return
				}
			}
		}
	}()

	for {
		var fr frame
		if err := conn.ReadJSON(&fr); err != nil {
			if s.ctx.Err() == nil {
				logrus.WithFields(logrus.Fields{
					"function": "pump",
					"error":    err,
				}).Info("Socket connection lost")
			}
			return
		}
		s.dispatch(fr)
	}
}

// dispatch decodes one inbound frame and hands it to the registered handler.
// Frames missing required fields are dropped with a warning and never reach
// the engine.
func (s *SocketTransport) dispatch(fr frame) {
	s.handlersMu.RLock()
	h := s.handlers
	s.handlersMu.RUnlock()

	switch fr.Event {
	case "chat:new":
		ev, err := decodeMessageEvent(fr.Data)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "dispatch",
				"event":    fr.Event,
				"error":    err,
			}).Warn("Dropping malformed event")
			return
		}
		if h.NewMessage != nil {
			h.NewMessage(ev)
		}

	case "chat:typing":
		var w wireTyping
		if err := json.Unmarshal(fr.Data, &w); err != nil || w.ConversationID == "" || w.UserID == "" {
			logrus.WithFields(logrus.Fields{
				"function": "dispatch",
				"event":    fr.Event,
			}).Warn("Dropping malformed event")
			return
		}
		if h.Typing != nil {
			h.Typing(TypingEvent{
				ConversationID: w.ConversationID,
				ParticipantID:  w.UserID,
				IsTyping:       w.IsTyping,
			})
		}

	case "chat:seen":
		var w wireSeen
		if err := json.Unmarshal(fr.Data, &w); err != nil || w.ConversationID == "" {
			logrus.WithFields(logrus.Fields{
				"function": "dispatch",
				"event":    fr.Event,
			}).Warn("Dropping malformed event")
			return
		}
		if h.Seen != nil {
			h.Seen(SeenEvent{
				ConversationID: w.ConversationID,
				ParticipantID:  w.UserID,
			})
		}

	default:
		logrus.WithFields(logrus.Fields{
			"function": "dispatch",
			"event":    fr.Event,
		}).Debug("Ignoring unknown event")
	}
}

// decodeMessageEvent validates and converts a chat:new payload. The server
// id, conversation id, and sender id are required; a missing or unparseable
// timestamp falls back to the arrival time, matching the backend's lenient
// clients.
func decodeMessageEvent(data json.RawMessage) (MessageEvent, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return MessageEvent{}, err
	}
	if w.ID == "" || w.ConversationID == "" || w.SenderID == "" {
		return MessageEvent{}, errors.New("missing required field")
	}

	createdAt, err := time.Parse(time.RFC3339, w.CreatedAt)
	if err != nil {
		createdAt = time.Now()
	}

	return MessageEvent{
		ConversationID:   w.ConversationID,
		ServerID:         w.ID,
		SenderID:         w.SenderID,
		Content:          w.Content,
		CreatedAt:        createdAt,
		CorrelationToken: w.ClientToken,
	}, nil
}

func (s *SocketTransport) notifyConnection(connected bool) {
	s.handlersMu.RLock()
	h := s.handlers
	s.handlersMu.RUnlock()

	if h.ConnectionState != nil {
		h.ConnectionState(connected)
	}
}
