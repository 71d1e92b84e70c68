package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Client is a hand-written HTTP client for the PTC coordinator's admin and
// message API, for building external dashboards/tooling without depending
// on internal/...
type Client struct {
	baseURL string
	opts    *options
	ws      *WebSocketClient
}

// New creates a new Client.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Client{baseURL: baseURL, opts: o}, nil
}

// ConnectWebSocket establishes a WebSocket connection for real-time events.
func (c *Client) ConnectWebSocket(ctx context.Context) error {
	if c.ws != nil && c.ws.IsConnected() {
		return nil
	}
	c.ws = newWebSocketClient(c.baseURL, c.opts.apiKey)
	return c.ws.Connect(ctx)
}

// Events returns a channel that receives WebSocket events.
// Must call ConnectWebSocket first.
func (c *Client) Events() <-chan *Event {
	if c.ws == nil {
		ch := make(chan *Event)
		close(ch)
		return ch
	}
	return c.ws.Events()
}

// CloseWebSocket closes the WebSocket connection.
func (c *Client) CloseWebSocket() error {
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}

// SubscribeEvents subscribes to specific event types.
func (c *Client) SubscribeEvents(eventTypes ...EventType) error {
	if c.ws == nil {
		return fmt.Errorf("websocket not connected")
	}
	return c.ws.Subscribe(eventTypes...)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) (int, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.opts.applyHeaders(req)

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message != "" {
			return resp.StatusCode, fmt.Errorf("%s: %s", apiErr.Error, apiErr.Message)
		}
		return resp.StatusCode, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// HealthResponse reports the coordinator's store connectivity.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Error  string `json:"error,omitempty"`
}

// Health calls GET /admin/health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	_, err := c.do(ctx, http.MethodGet, "/admin/health", nil, nil, &out)
	return &out, err
}

// Worker mirrors the coordinator's worker registry record.
type Worker struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	PID           int      `json:"pid"`
	Capabilities  []string `json:"capabilities"`
	Status        string   `json:"status"`
	LastHeartbeat int64    `json:"last_heartbeat"`
}

// ListWorkers calls GET /admin/workers.
func (c *Client) ListWorkers(ctx context.Context) ([]*Worker, error) {
	var out struct {
		Workers []*Worker `json:"workers"`
		Count   int       `json:"count"`
	}
	_, err := c.do(ctx, http.MethodGet, "/admin/workers", nil, nil, &out)
	return out.Workers, err
}

// GetWorker calls GET /admin/workers/{workerID}.
func (c *Client) GetWorker(ctx context.Context, workerID string) (*Worker, error) {
	var out Worker
	_, err := c.do(ctx, http.MethodGet, "/admin/workers/"+url.PathEscape(workerID), nil, nil, &out)
	return &out, err
}

// Status mirrors the coordinator's GetStatus response.
type Status struct {
	Name          string                 `json:"name"`
	Queue         map[string]interface{} `json:"queue"`
	PendingAcks   map[string]interface{} `json:"pending_acks"`
	Messages      map[string]interface{} `json:"messages"`
	Workers       map[string]interface{} `json:"workers"`
	DeadLetters   map[string]interface{} `json:"dead_letters"`
	Reassignments map[string]interface{} `json:"reassignments"`
}

// GetStatus calls GET /admin/status.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	var out Status
	_, err := c.do(ctx, http.MethodGet, "/admin/status", nil, nil, &out)
	return &out, err
}

// DeadLetter mirrors a dead-letter entry.
type DeadLetter struct {
	ID                string `json:"id"`
	OriginalMessageID string `json:"original_message_id"`
	Sender            string `json:"sender"`
	Recipient         string `json:"recipient"`
	Importance        string `json:"importance"`
	Type              string `json:"type"`
	Error             string `json:"error"`
	FailedAt          int64  `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
	Resolved          bool   `json:"resolved"`
}

// ListDeadLetters calls GET /admin/dead-letters.
func (c *Client) ListDeadLetters(ctx context.Context, unresolvedOnly bool) ([]*DeadLetter, error) {
	q := url.Values{}
	if unresolvedOnly {
		q.Set("unresolved", "true")
	}
	var out struct {
		DeadLetters []*DeadLetter `json:"dead_letters"`
		Count       int           `json:"count"`
	}
	_, err := c.do(ctx, http.MethodGet, "/admin/dead-letters", q, nil, &out)
	return out.DeadLetters, err
}

// RetryDeadLetter calls POST /admin/dead-letters/{id}/retry.
func (c *Client) RetryDeadLetter(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/admin/dead-letters/"+url.PathEscape(id)+"/retry", nil, nil, nil)
	return err
}

// ResolveDeadLetter calls POST /admin/dead-letters/{id}/resolve.
func (c *Client) ResolveDeadLetter(ctx context.Context, id, resolution string) error {
	body := map[string]string{"resolution": resolution}
	_, err := c.do(ctx, http.MethodPost, "/admin/dead-letters/"+url.PathEscape(id)+"/resolve", nil, body, nil)
	return err
}

// Stats calls GET /admin/stats.
func (c *Client) Stats(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	_, err := c.do(ctx, http.MethodGet, "/admin/stats", nil, nil, &out)
	return out, err
}

// SendMessageRequest is the payload for SendMessage.
type SendMessageRequest struct {
	Type          string          `json:"type"`
	Sender        string          `json:"sender"`
	Recipient     string          `json:"recipient"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Importance    string          `json:"importance,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// Message mirrors the coordinator's message record.
type Message struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Sender        string          `json:"sender"`
	Recipient     string          `json:"recipient"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Importance    string          `json:"importance"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	RetryCount    int             `json:"retry_count"`
	Status        string          `json:"status"`
}

// SendMessage calls POST /api/v1/messages.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	var out Message
	_, err := c.do(ctx, http.MethodPost, "/api/v1/messages", nil, req, &out)
	return &out, err
}

// GetMessage calls GET /api/v1/messages/{messageID}.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	var out Message
	_, err := c.do(ctx, http.MethodGet, "/api/v1/messages/"+url.PathEscape(messageID), nil, nil, &out)
	return &out, err
}

// AcknowledgeMessage calls POST /api/v1/messages/{messageID}/ack.
func (c *Client) AcknowledgeMessage(ctx context.Context, messageID, recipient string) error {
	body := map[string]string{"recipient": recipient}
	_, err := c.do(ctx, http.MethodPost, "/api/v1/messages/"+url.PathEscape(messageID)+"/ack", nil, body, nil)
	return err
}

// ListMessagesFilter scopes ListMessages; at most one non-empty field is
// honored, matching the handler's precedence.
type ListMessagesFilter struct {
	Recipient     string
	Sender        string
	Status        string
	CorrelationID string
}

// ListMessages calls GET /api/v1/messages.
func (c *Client) ListMessages(ctx context.Context, filter ListMessagesFilter) ([]*Message, error) {
	q := url.Values{}
	switch {
	case filter.Recipient != "":
		q.Set("recipient", filter.Recipient)
	case filter.Sender != "":
		q.Set("sender", filter.Sender)
	case filter.Status != "":
		q.Set("status", filter.Status)
	case filter.CorrelationID != "":
		q.Set("correlation_id", filter.CorrelationID)
	}

	var out struct {
		Messages []*Message `json:"messages"`
		Count    int        `json:"count"`
	}
	_, err := c.do(ctx, http.MethodGet, "/api/v1/messages", q, nil, &out)
	return out.Messages, err
}
