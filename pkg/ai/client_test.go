package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"linguatutor/pkg/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(Config{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	})
	return client, srv
}

func completionResponse(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	raw, _ := json.Marshal(resp)
	return string(raw)
}

func TestReplySendsCappedHistoryAndModePrompt(t *testing.T) {
	var got oaiChatRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, completionResponse("¡Hola!"))
	})

	history := make([]domain.Message, 0, 25)
	for i := 0; i < 25; i++ {
		history = append(history, domain.Message{Role: domain.RoleUser, Text: fmt.Sprintf("msg-%d", i)})
	}
	history = append(history, domain.Message{Role: "system", Text: "should be skipped"})

	reply, err := client.Reply(context.Background(), history, "es", domain.ModeTutor)
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply != "¡Hola!" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if got.Model != "test-model" {
		t.Fatalf("unexpected model %q", got.Model)
	}
	// system prompt + last 20 history entries, minus the skipped unknown role
	if len(got.Messages) != 20 {
		t.Fatalf("expected 20 outbound messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || !strings.Contains(got.Messages[0].Content, "ES") {
		t.Fatalf("unexpected system prompt: %+v", got.Messages[0])
	}
	if !strings.Contains(got.Messages[0].Content, "vocabulary") {
		t.Fatalf("expected tutor prompt, got %q", got.Messages[0].Content)
	}
	if got.Messages[len(got.Messages)-1].Content != "msg-24" {
		t.Fatalf("expected most recent history last, got %q", got.Messages[len(got.Messages)-1].Content)
	}
}

func TestTranslateBatchPreservesOrder(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		var req oaiChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		input := req.Messages[len(req.Messages)-1].Content
		fmt.Fprint(w, completionResponse("fr:"+input))
	})

	out, err := client.TranslateBatch(context.Background(), []string{"one", "two", "three"}, "fr")
	if err != nil {
		t.Fatalf("translate batch: %v", err)
	}
	want := []string{"fr:one", "fr:two", "fr:three"}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d] = %q, want %q", i, out[i], want[i])
		}
	}
	if calls != 3 {
		t.Fatalf("expected 3 upstream calls, got %d", calls)
	}
}

func TestTranslateBatchIsAllOrNothing(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req oaiChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Messages[len(req.Messages)-1].Content == "boom" {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"error":{"message":"upstream exploded"}}`)
			return
		}
		fmt.Fprint(w, completionResponse("ok"))
	})

	if _, err := client.TranslateBatch(context.Background(), []string{"fine", "boom"}, "de"); err == nil {
		t.Fatalf("expected batch failure when one item fails")
	}
}

func TestCompleteMapsAPIErrors(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit"}}`)
	})
	_, err := client.Translate(context.Background(), "hi", "es")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected api error message, got %v", err)
	}
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})
	if _, err := client.Translate(context.Background(), "hi", "es"); err == nil {
		t.Fatalf("expected error on empty choices")
	}
}

func TestSynthesizeStartersParsesFencedJSON(t *testing.T) {
	payload := "```json\n" + `[
		{"title": "Space news", "opener": "Did you hear about the launch?", "source_url": "https://example.com/1", "subreddit": "space"},
		{"title": "", "opener": "dropped, empty title"},
		{"title": "Food talk", "opener": "What did you cook this week?", "subreddit": "cooking"}
	]` + "\n```"
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionResponse(payload))
	})

	starters, err := client.SynthesizeStarters(context.Background(), []domain.Post{{Title: "x"}}, 10)
	if err != nil {
		t.Fatalf("synthesize starters: %v", err)
	}
	if len(starters) != 2 {
		t.Fatalf("expected 2 starters, got %d", len(starters))
	}
	if starters[0].Title != "Space news" || starters[0].Generator != domain.GeneratorLLM {
		t.Fatalf("unexpected first starter: %+v", starters[0])
	}
	if starters[1].Subreddit != "cooking" {
		t.Fatalf("unexpected second starter: %+v", starters[1])
	}
}

func TestSynthesizeStartersRespectsCount(t *testing.T) {
	payload := `[
		{"title": "One", "opener": "a?"},
		{"title": "Two", "opener": "b?"},
		{"title": "Three", "opener": "c?"}
	]`
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionResponse(payload))
	})
	starters, err := client.SynthesizeStarters(context.Background(), nil, 2)
	if err != nil {
		t.Fatalf("synthesize starters: %v", err)
	}
	if len(starters) != 2 {
		t.Fatalf("expected count cap of 2, got %d", len(starters))
	}
}
