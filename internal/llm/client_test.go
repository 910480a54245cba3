package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fakeServer imitates the subset of the OpenAI API that local inference
// servers expose.
func fakeServer(t *testing.T, chat http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"local-model","object":"model"}]}`))
	})
	mux.HandleFunc("/v1/chat/completions", chat)
	return httptest.NewServer(mux)
}

func chatReply(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": content},
					"finish_reason": "stop",
				},
			},
		})
	}
}

func newTestClient(baseURL string, retries int) *Client {
	return New(Config{
		BaseURL:        baseURL + "/v1",
		Model:          "local-model",
		MaxRetries:     retries,
		ParseTimeout:   5 * time.Second,
		AnalyzeTimeout: 5 * time.Second,
	})
}

func TestCheckServer(t *testing.T) {
	ts := fakeServer(t, chatReply("unused"))
	defer ts.Close()

	client := newTestClient(ts.URL, 1)
	if !client.CheckServer(context.Background()) {
		t.Fatalf("CheckServer should report a healthy server")
	}
}

func TestCheckServerDown(t *testing.T) {
	ts := fakeServer(t, chatReply("unused"))
	ts.Close() // immediately unreachable

	client := newTestClient(ts.URL, 1)
	if client.CheckServer(context.Background()) {
		t.Fatalf("CheckServer should report an unreachable server")
	}
}

func TestParseDocumentReturnsContent(t *testing.T) {
	ts := fakeServer(t, chatReply("### Key Assets Overview"))
	defer ts.Close()

	client := newTestClient(ts.URL, 1)
	out, err := client.ParseDocument(context.Background(), "some ocr text")
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	if out != "### Key Assets Overview" {
		t.Fatalf("unexpected content: %q", out)
	}
}

func TestParseDocumentSendsFullSamplePrompt(t *testing.T) {
	var systemPrompt string
	ts := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding chat request: %v", err)
		}
		for _, m := range req.Messages {
			if m.Role == "system" {
				systemPrompt = m.Content
			}
		}
		chatReply("### Key Assets Overview")(w, r)
	})
	defer ts.Close()

	client := newTestClient(ts.URL, 1)
	if _, err := client.ParseDocument(context.Background(), "some ocr text"); err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}

	// The sample table is the behavioral contract with the model; spot-check
	// rows from across it, including the provision and securities lines.
	for _, row := range []string{
		"Cash, gold, silver and gemstones",
		"Provision for balances with and loans to others",
		"Trading securities",
		"Derivatives and other financial assets",
		"Held-to-maturity securities",
		"Capital contributions and long-term investments",
		"Intangible fixed assets",
	} {
		if !strings.Contains(systemPrompt, row) {
			t.Errorf("system prompt missing table row %q", row)
		}
	}
}

func TestAnalyzeFinancialsRetriesOnServerError(t *testing.T) {
	var calls int32
	ts := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, `{"error":{"message":"model busy"}}`, http.StatusInternalServerError)
			return
		}
		chatReply(`{"Revenue": {"value": 1}}`)(w, r)
	})
	defer ts.Close()

	client := newTestClient(ts.URL, 3)
	out, err := client.AnalyzeFinancials(context.Background(), "some ocr text")
	if err != nil {
		t.Fatalf("AnalyzeFinancials() error = %v", err)
	}
	if !strings.Contains(out, "Revenue") {
		t.Fatalf("unexpected content: %q", out)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
}

func TestCompleteExhaustsRetries(t *testing.T) {
	ts := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"always failing"}}`, http.StatusInternalServerError)
	})
	defer ts.Close()

	client := newTestClient(ts.URL, 2)
	_, err := client.ParseDocument(context.Background(), "some ocr text")
	if err == nil {
		t.Fatalf("expected an error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "all 2 attempts failed") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCompleteStopsWhenCallerCancels(t *testing.T) {
	ts := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"failing"}}`, http.StatusInternalServerError)
	})
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(ts.URL, 3)
	_, err := client.ParseDocument(ctx, "some ocr text")
	if err == nil {
		t.Fatalf("expected an error for canceled context")
	}
}
