package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewClient("test-key", "test-model", srv.URL), srv
}

func TestCreateChatCompletionSuccess(t *testing.T) {
	var gotAuth string
	var gotBody chatCompletionRequest

	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {"content": "Hello back"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	})
	defer srv.Close()

	completion, err := client.CreateChatCompletion(context.Background(), []ChatMessage{
		{Role: "user", Content: "Hello"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "test-model", gotBody.Model)
	assert.Equal(t, "Hello back", completion.Content)
	require.NotNil(t, completion.Usage)
	assert.Equal(t, 15, *completion.Usage.TotalTokens)
}

func TestCreateChatCompletionUpstreamError(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})
	defer srv.Close()

	_, err := client.CreateChatCompletion(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestCreateChatCompletionErrorBody(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		// Some providers report failures in a 200 body
		w.Write([]byte(`{"error": {"message": "model not found"}}`))
	})
	defer srv.Close()

	_, err := client.CreateChatCompletion(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestCreateChatCompletionEmptyChoices(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	})
	defer srv.Close()

	_, err := client.CreateChatCompletion(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestCreateChatCompletionNotConfigured(t *testing.T) {
	client := NewClient("", "", "")
	assert.False(t, client.Configured())

	_, err := client.CreateChatCompletion(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestUsageNormalization(t *testing.T) {
	intPtr := func(v int) *int { return &v }

	tests := []struct {
		name string
		body string
		want Usage
	}{
		{
			name: "openai naming without total",
			body: `{"prompt_tokens": 10, "completion_tokens": 5}`,
			want: Usage{InputTokens: intPtr(10), OutputTokens: intPtr(5), TotalTokens: intPtr(15)},
		},
		{
			name: "anthropic naming",
			body: `{"input_tokens": 3, "output_tokens": 4}`,
			want: Usage{InputTokens: intPtr(3), OutputTokens: intPtr(4), TotalTokens: intPtr(7)},
		},
		{
			name: "request response naming",
			body: `{"request_tokens": 8, "response_tokens": 2}`,
			want: Usage{InputTokens: intPtr(8), OutputTokens: intPtr(2), TotalTokens: intPtr(10)},
		},
		{
			name: "provider total wins over the sum",
			body: `{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 16}`,
			want: Usage{InputTokens: intPtr(10), OutputTokens: intPtr(5), TotalTokens: intPtr(16)},
		},
		{
			name: "missing fields stay absent",
			body: `{}`,
			want: Usage{},
		},
		{
			name: "one part alone cannot produce a total",
			body: `{"prompt_tokens": 10}`,
			want: Usage{InputTokens: intPtr(10)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Usage
			require.NoError(t, json.Unmarshal([]byte(tt.body), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}
