package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"zork-argento/server/internal/interfaces"
)

func TestSendPostsRequestWithAPIKey(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"message":"hola"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", time.Second)
	result := client.Send(context.Background(), &interfaces.NarrativeRequest{
		Message:        "abrir la puerta",
		ConversationID: "conv-1",
		Step:           &interfaces.StepCoordinates{StepID: 2, TurnIndex: 2},
	})

	if !result.Success {
		t.Fatalf("expected success: %+v", result)
	}
	if gotPath != "/api/chat" {
		t.Errorf("wrong path: %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("api key not sent: %q", gotKey)
	}
	if gotBody["message"] != "abrir la puerta" || gotBody["conversationId"] != "conv-1" {
		t.Errorf("request body wrong: %v", gotBody)
	}
	step, _ := gotBody["step"].(map[string]interface{})
	if step["stepId"] != float64(2) {
		t.Errorf("step coordinates not sent: %v", gotBody["step"])
	}
}

func TestSendResolvesNestedEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"message":{"narrative":"Entrás al salón."},"conversationId":"conv-9","threadId":"th-9"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	result := client.Send(context.Background(), &interfaces.NarrativeRequest{Message: "entrar"})

	if !result.Success {
		t.Fatalf("expected success: %+v", result)
	}
	payload, ok := result.Payload.(map[string]interface{})
	if !ok || payload["narrative"] != "Entrás al salón." {
		t.Errorf("nested message not resolved: %v", result.Payload)
	}
	if result.ConversationID != "conv-9" || result.ThreadID != "th-9" {
		t.Errorf("nested identifiers not resolved: %+v", result)
	}
}

func TestSendPayloadPriority(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "nested message wins over nested response",
			body: `{"data":{"message":{"narrative":"uno"},"response":{"narrative":"dos"}}}`,
			want: "uno",
		},
		{
			name: "nested response wins over root message",
			body: `{"data":{"response":{"narrative":"dos"}},"message":{"narrative":"tres"}}`,
			want: "dos",
		},
		{
			name: "root message when data is absent",
			body: `{"message":{"narrative":"tres"},"response":{"narrative":"cuatro"}}`,
			want: "tres",
		},
		{
			name: "root response as last resort",
			body: `{"response":{"narrative":"cuatro"}}`,
			want: "cuatro",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := resolveEnvelope([]byte(tc.body))
			if !result.Success {
				t.Fatalf("expected success: %+v", result)
			}
			payload, _ := result.Payload.(map[string]interface{})
			if payload["narrative"] != tc.want {
				t.Errorf("resolved %v, want narrative %q", result.Payload, tc.want)
			}
		})
	}
}

func TestSendStringPayloadPassedThrough(t *testing.T) {
	result := resolveEnvelope([]byte(`{"message":"{\"narrative\":\"texto plano\"}"}`))
	if !result.Success {
		t.Fatalf("expected success: %+v", result)
	}
	s, ok := result.Payload.(string)
	if !ok {
		t.Fatalf("string payload not preserved: %T", result.Payload)
	}
	if s != `{"narrative":"texto plano"}` {
		t.Errorf("payload mangled: %q", s)
	}
}

func TestSendEmptyEnvelopeSucceedsWithoutPayload(t *testing.T) {
	result := resolveEnvelope([]byte(`{"conversationId":"conv-1"}`))
	if !result.Success {
		t.Fatal("empty envelope should not be a transport failure")
	}
	if result.Payload != nil {
		t.Errorf("unexpected payload: %v", result.Payload)
	}
	if result.ConversationID != "conv-1" {
		t.Errorf("conversation id lost: %q", result.ConversationID)
	}
}

func TestSendFailuresReturnCannedMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"upstream down"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	result := client.Send(context.Background(), &interfaces.NarrativeRequest{Message: "hola"})
	if result.Success {
		t.Fatal("non-2xx status reported as success")
	}
	if result.Message != connectionErrorMessage {
		t.Errorf("wrong fallback message: %q", result.Message)
	}

	// Unreachable server.
	server.Close()
	result = client.Send(context.Background(), &interfaces.NarrativeRequest{Message: "hola"})
	if result.Success {
		t.Fatal("transport error reported as success")
	}
	if result.Message != connectionErrorMessage {
		t.Errorf("wrong fallback message: %q", result.Message)
	}
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient("", "", 0)
	if client.baseURL != defaultBaseURL {
		t.Errorf("base url not defaulted: %q", client.baseURL)
	}
	if client.httpClient.Timeout != defaultTimeout {
		t.Errorf("timeout not defaulted: %v", client.httpClient.Timeout)
	}
}
