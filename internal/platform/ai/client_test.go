package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func chatResponse(content string) string {
	return `{"choices":[{"message":{"content":` + mustQuote(content) + `}}]}`
}

func mustQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:      "test-key",
		BaseURL:     srv.URL,
		Model:       "text-model",
		VisionModel: "vision-model",
	}, zerolog.Nop())
}

func TestCompleteTextRequest(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Write([]byte(chatResponse("  hello  ")))
	})

	out, err := client.Complete(context.Background(), ChatRequest{
		System: "you are a normalizer",
		User:   "some text",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "hello" {
		t.Errorf("content = %q, want hello (trimmed)", out)
	}
	if gotBody["model"] != "text-model" {
		t.Errorf("model = %v, want text-model", gotBody["model"])
	}
	if _, hasFormat := gotBody["response_format"]; hasFormat {
		t.Error("response_format should be absent without JSONMode")
	}
	msgs := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
}

func TestCompleteVisionRequest(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Write([]byte(chatResponse("transcribed text")))
	})

	out, err := client.Complete(context.Background(), ChatRequest{
		System:    "transcribe",
		User:      "read this",
		ImageData: []byte("fake image"),
		ImageMIME: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "transcribed text" {
		t.Errorf("content = %q", out)
	}
	if gotBody["model"] != "vision-model" {
		t.Errorf("model = %v, want vision-model", gotBody["model"])
	}

	msgs := gotBody["messages"].([]any)
	user := msgs[1].(map[string]any)
	parts, ok := user["content"].([]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("expected 2 multimodal parts, got %v", user["content"])
	}
	img := parts[1].(map[string]any)
	urlField := img["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(urlField, "data:image/jpeg;base64,") {
		t.Errorf("image url = %q, want data URL", urlField)
	}
}

func TestCompleteJSONMode(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Write([]byte(chatResponse(`{"ok":true}`)))
	})

	if _, err := client.Complete(context.Background(), ChatRequest{User: "x", JSONMode: true}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	format, ok := gotBody["response_format"].(map[string]any)
	if !ok || format["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", gotBody["response_format"])
	}
}

func TestCompleteServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := client.Complete(context.Background(), ChatRequest{User: "x"})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want status code in message", err)
	}
}

func TestCompleteNoChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	_, err := client.Complete(context.Background(), ChatRequest{User: "x"})
	if !errors.Is(err, ErrNoChoices) {
		t.Fatalf("err = %v, want ErrNoChoices", err)
	}
}

func TestCompleteRespectsContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Complete(ctx, ChatRequest{User: "x"}); err == nil {
		t.Fatal("expected error from canceled context")
	}
}
