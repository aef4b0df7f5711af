package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/veripop/internal/llm/prompts"
	"github.com/pavelanni/veripop/internal/model"
)

func TestMain(m *testing.M) {
	if err := prompts.Load(prompts.FS); err != nil {
		panic(err)
	}
	m.Run()
}

// fakeAPI serves an OpenAI-compatible chat endpoint returning reply.
type fakeAPI struct {
	mu       sync.Mutex
	reply    string
	status   int
	requests []openai.ChatCompletionRequest
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		status, reply := f.status, f.reply
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"unavailable","type":"server_error"}}`))
			return
		}
		resp := openai.ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: req.Model,
		}
		if reply != "" {
			resp.Choices = []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
			}}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"test-model","object":"model"}]}`))
	})
	return mux
}

func newFakeClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/v1", "test-key", "test-model")
}

var andGate = model.Lesson{
	ID:           "and_gate",
	Title:        "AND Gate",
	Category:     model.CategoryLogicGates,
	Theory:       "Both inputs high.",
	SolutionCode: "assign out = a & b;",
}

func TestClassifyFeedback(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		passed bool
		msg    string
	}{
		{"success", "✅ Great job!", true, "✅ Great job!"},
		{"leading whitespace", "\n  ✅ Correct", true, "✅ Correct"},
		{"failure", "❌ You forgot the semicolon.", false, "❌ You forgot the semicolon."},
		{"marker later", "Almost ✅ but not quite", false, "Almost ✅ but not quite"},
		{"empty", "", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyFeedback(tt.text)
			if got.Passed != tt.passed || got.Message != tt.msg {
				t.Errorf("ClassifyFeedback(%q) = %+v, want passed=%v msg=%q", tt.text, got, tt.passed, tt.msg)
			}
		})
	}
}

func TestVerifierRoundTrip(t *testing.T) {
	api := &fakeAPI{reply: "✅ Nice AND gate."}
	client := newFakeClient(t, api)

	var prechecked string
	v := NewVerifier(client, prompts.PromptStandard, WithPrecheck(func(id, code string) bool {
		prechecked = id
		return true
	}))

	res, err := v.Verify(context.Background(), andGate, "assign out = a & b;")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Passed || res.Message != "✅ Nice AND gate." {
		t.Errorf("Verify() = %+v", res)
	}
	if prechecked != "and_gate" {
		t.Errorf("precheck not consulted, got %q", prechecked)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.requests) != 1 {
		t.Fatalf("got %d requests, want 1", len(api.requests))
	}
	req := api.requests[0]
	if req.Model != "test-model" || len(req.Messages) != 2 {
		t.Fatalf("request = %+v", req)
	}
	if !strings.Contains(req.Messages[0].Content, andGate.SolutionCode) {
		t.Error("system prompt missing reference solution")
	}
	if !strings.Contains(req.Messages[1].Content, "<student-code>\nassign out = a & b;\n</student-code>") {
		t.Errorf("user message = %q", req.Messages[1].Content)
	}
}

func TestVerifierFailureVerdict(t *testing.T) {
	api := &fakeAPI{reply: "❌ Use & instead of |."}
	v := NewVerifier(newFakeClient(t, api), prompts.PromptStrict)

	res, err := v.Verify(context.Background(), andGate, "assign out = a | b;")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Passed {
		t.Error("failure reply classified as pass")
	}
}

func TestVerifierTransportErrors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		api := &fakeAPI{status: http.StatusServiceUnavailable}
		v := NewVerifier(newFakeClient(t, api), prompts.PromptStandard)
		if _, err := v.Verify(context.Background(), andGate, "x"); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("no choices", func(t *testing.T) {
		api := &fakeAPI{}
		v := NewVerifier(newFakeClient(t, api), prompts.PromptStandard)
		_, err := v.Verify(context.Background(), andGate, "x")
		if !errors.Is(err, ErrNoChoices) {
			t.Errorf("error = %v, want ErrNoChoices", err)
		}
	})
}

func TestExplainer(t *testing.T) {
	api := &fakeAPI{reply: "  Think of a wire as a garden hose.  "}
	e := NewExplainer(newFakeClient(t, api))

	text, err := e.Explain(context.Background(), "Wire", "A wire connects things.")
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if text != "Think of a wire as a garden hose." {
		t.Errorf("Explain() = %q", text)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if !strings.Contains(api.requests[0].Messages[0].Content, "A wire connects things.") {
		t.Error("system prompt missing theory")
	}
}

func TestPing(t *testing.T) {
	client := newFakeClient(t, &fakeAPI{})
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	down := New("http://127.0.0.1:1/v1", "k", "m")
	if err := down.Ping(context.Background()); err == nil {
		t.Error("expected Ping error for unreachable endpoint")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"api 503", &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable}, true},
		{"api 429", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"api 400", &openai.APIError{HTTPStatusCode: http.StatusBadRequest}, false},
		{"wrapped request 502", fmtWrap(&openai.RequestError{HTTPStatusCode: http.StatusBadGateway}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func fmtWrap(err error) error {
	return errors.Join(errors.New("LLM API call"), err)
}
