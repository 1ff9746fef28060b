package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opd-ai/messenger/message"
)

// HistoryRecord is one already-persisted message from the backlog, as
// declared by the history source.
type HistoryRecord struct {
	ID        string
	SenderID  string
	Content   string
	CreatedAt time.Time
	Status    message.Status
}

// HistoryFetcher loads a conversation's backlog. It is invoked once per
// conversation open; a failure is recoverable and leaves the conversation
// usable with live state only.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, conversationID string) ([]HistoryRecord, error)
}

// HTTPHistory fetches conversation history from the backend's REST API.
type HTTPHistory struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPHistory creates a fetcher for the given API base URL, e.g.
// "https://api.example.com". The auth token is presented as a bearer token.
func NewHTTPHistory(baseURL, authToken string) *HTTPHistory {
	return &HTTPHistory{
		baseURL: baseURL,
		token:   authToken,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// wireHistoryMessage mirrors the REST message representation.
type wireHistoryMessage struct {
	ID        string `json:"_id"`
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
	Status    string `json:"status,omitempty"`
}

// FetchHistory retrieves the conversation's messages, oldest first.
func (h *HTTPHistory) FetchHistory(ctx context.Context, conversationID string) ([]HistoryRecord, error) {
	url := fmt.Sprintf("%s/conversations/%s/messages", h.baseURL, conversationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", message.ErrHistoryFetch, err)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", message.ErrHistoryFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", message.ErrHistoryFetch, resp.StatusCode)
	}

	var wire []wireHistoryMessage
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: %v", message.ErrHistoryFetch, err)
	}

	records := make([]HistoryRecord, 0, len(wire))
	for _, w := range wire {
		if w.ID == "" || w.SenderID == "" {
			// Skip entries the server should never produce rather than
			// poisoning the whole page.
			continue
		}
		createdAt, err := time.Parse(time.RFC3339, w.CreatedAt)
		if err != nil {
			createdAt = time.Now()
		}
		records = append(records, HistoryRecord{
			ID:        w.ID,
			SenderID:  w.SenderID,
			Content:   w.Content,
			CreatedAt: createdAt,
			Status:    historyStatus(w.Status),
		})
	}
	return records, nil
}

// historyStatus maps the REST status string to a Status. History records are
// at least sent; an unknown or absent status defaults to sent.
func historyStatus(s string) message.Status {
	switch s {
	case "delivered":
		return message.StatusDelivered
	case "read":
		return message.StatusRead
	default:
		return message.StatusSent
	}
}
