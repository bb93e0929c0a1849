package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/roundtable/internal/dialogue"
	ierr "github.com/mark3labs/roundtable/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", APIKey: "sk-test", Model: "test/model", MaxTokens: 256, Title: "roundtable"})
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	_, err := New(Config{Model: "m"})
	assert.Error(t, err, "API key required")

	_, err = New(Config{APIKey: "k"})
	assert.Error(t, err, "model required")

	c, err := New(Config{APIKey: "k", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.cfg.BaseURL)
	assert.Zero(t, c.http.Timeout, "turn deadlines come from the caller's context")

	c, err = New(Config{APIKey: "k", Model: "m", Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.http.Timeout)
}

func TestGenerate(t *testing.T) {
	var got ChatCompletionRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "roundtable", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(ChatCompletionResponse{
			Model: "test/model",
			Choices: []Choice{
				{Message: ChatMessage{Role: "assistant", Content: "I disagree with the timeline."}},
			},
			Usage: &Usage{PromptTokens: 10, CompletionTokens: 6},
		})
	})

	resp, err := c.Generate(context.Background(), dialogue.Request{Prompt: "Your turn", System: "You are Ada"})
	require.NoError(t, err)
	assert.Equal(t, "I disagree with the timeline.", resp.Text)

	assert.Equal(t, "test/model", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, ChatMessage{Role: "system", Content: "You are Ada"}, got.Messages[0])
	assert.Equal(t, ChatMessage{Role: "user", Content: "Your turn"}, got.Messages[1])
}

func TestGenerate_NoSystem(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Len(t, req.Messages, 1)
		_ = json.NewEncoder(w).Encode(ChatCompletionResponse{Choices: []Choice{{Message: ChatMessage{Content: "{}"}}}})
	})

	resp, err := c.Generate(context.Background(), dialogue.Request{Prompt: "synthesize"})
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Text)
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantTransient bool
		wantContains  string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, true, "slow down"},
		{"upstream down", http.StatusBadGateway, "bad gateway", true, "bad gateway"},
		{"bad key", http.StatusUnauthorized, `{"error":{"message":"invalid key","code":401}}`, false, "invalid key"},
		{"no choices", http.StatusOK, `{"choices":[]}`, false, "no choices"},
		{"garbage", http.StatusOK, `not json`, false, "decoding response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Generate(context.Background(), dialogue.Request{Prompt: "p"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantContains)
			assert.Equal(t, tt.wantTransient, ierr.IsTransient(err))
		})
	}
}

func TestGenerate_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Generate(ctx, dialogue.Request{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
