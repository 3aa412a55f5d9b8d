package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"zork-argento/server/internal/interfaces"
)

const (
	defaultBaseURL = "https://zork-argento-api.onrender.com"
	defaultTimeout = 120 * time.Second

	// Shown in place of a narrative when the service is unreachable.
	connectionErrorMessage = "Error al conectar con el servidor. Intentá de nuevo."
)

// Client talks to the remote narrative service. Transport failures and
// non-2xx statuses never escape as errors: the result carries a success
// flag plus a user-facing fallback message, so callers can fold failures
// into the adventure log.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// envelope is the wire shape of a narrative response. The effective
// payload may sit at the top level or nested under data, and under either
// a message or a response key.
type envelope struct {
	Data           json.RawMessage `json:"data"`
	Message        json.RawMessage `json:"message"`
	Response       json.RawMessage `json:"response"`
	ConversationID string          `json:"conversationId"`
	ThreadID       string          `json:"threadId"`
	Timestamp      string          `json:"timestamp"`
}

// NewClient creates a narrative service client
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// Send posts one player utterance with its conversation/thread identifiers
// and step coordinates, and resolves the response envelope into a
// canonical result.
func (c *Client) Send(ctx context.Context, req *interfaces.NarrativeRequest) *interfaces.NarrativeResult {
	body, err := json.Marshal(req)
	if err != nil {
		log.Printf("[chat] failed to marshal request: %v", err)
		return failure()
	}

	url := fmt.Sprintf("%s/api/chat", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return failure()
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Printf("[chat] request failed: %v", err)
		return failure()
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[chat] failed to read response: %v", err)
		return failure()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[chat] HTTP %d: %s", resp.StatusCode, truncate(respBody, 256))
		return failure()
	}

	return resolveEnvelope(respBody)
}

// resolveEnvelope unwraps the optional data nesting and reads the
// effective payload from message/response in priority order: nested
// message, nested response, top-level message, top-level response.
func resolveEnvelope(body []byte) *interfaces.NarrativeResult {
	var root envelope
	if err := json.Unmarshal(body, &root); err != nil {
		log.Printf("[chat] failed to unmarshal response: %v", err)
		return failure()
	}

	inner := root
	if len(root.Data) > 0 && !bytes.Equal(root.Data, []byte("null")) {
		if err := json.Unmarshal(root.Data, &inner); err != nil {
			// data present but not an object: fall back to the root level
			inner = root
		}
	}

	payloadRaw := firstNonEmpty(inner.Message, inner.Response, root.Message, root.Response)

	result := &interfaces.NarrativeResult{
		Success:        true,
		ConversationID: coalesce(inner.ConversationID, root.ConversationID),
		ThreadID:       coalesce(inner.ThreadID, root.ThreadID),
		Timestamp:      coalesce(inner.Timestamp, root.Timestamp),
	}

	if len(payloadRaw) == 0 {
		result.Message = "No response received"
		return result
	}

	// The payload is either a JSON-encoded string or an already
	// structured object; surface both as-is and let the turn controller
	// classify the shape.
	var asString string
	if err := json.Unmarshal(payloadRaw, &asString); err == nil {
		result.Message = asString
		result.Payload = asString
		return result
	}

	var structured interface{}
	if err := json.Unmarshal(payloadRaw, &structured); err != nil {
		log.Printf("[chat] unreadable payload: %v", err)
		return failure()
	}
	result.Message = string(payloadRaw)
	result.Payload = structured
	return result
}

func failure() *interfaces.NarrativeResult {
	return &interfaces.NarrativeResult{
		Success: false,
		Message: connectionErrorMessage,
	}
}

func firstNonEmpty(candidates ...json.RawMessage) json.RawMessage {
	for _, c := range candidates {
		if len(c) > 0 && !bytes.Equal(c, []byte("null")) {
			return c
		}
	}
	return nil
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
