package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatClientComplete(t *testing.T) {
	var gotReq chatRequest
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "Action: Do the thing"}},
			},
		})
	}))
	defer srv.Close()

	client := NewChatClient(srv.URL, "sk-test")
	got, err := client.Complete(context.Background(), "gpt-test", "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if got != "Action: Do the thing" {
		t.Errorf("Complete() = %q, want %q", got, "Action: Do the thing")
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotReq.Model != "gpt-test" {
		t.Errorf("request model = %q, want %q", gotReq.Model, "gpt-test")
	}
	if len(gotReq.Messages) != 2 ||
		gotReq.Messages[0].Role != "system" ||
		gotReq.Messages[1].Role != "user" {
		t.Errorf("messages = %+v, want system then user", gotReq.Messages)
	}
}

func TestChatClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewChatClient(srv.URL, "")
	if _, err := client.Complete(context.Background(), "m", "s", "u"); err == nil {
		t.Error("Complete() should fail on a non-200 response")
	}
}

func TestChatClientNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	client := NewChatClient(srv.URL, "")
	if _, err := client.Complete(context.Background(), "m", "s", "u"); err == nil {
		t.Error("Complete() should fail on an empty choices array")
	}
}
