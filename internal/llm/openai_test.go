package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-carbon-must-flow/internal/config"
)

const chatCompletionReply = `{"id":"c1","object":"chat.completion","model":"m",` +
	`"choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`

func TestOpenAIProvider_Complete(t *testing.T) {
	var got map[string]any
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionReply))
	}))
	defer srv.Close()

	p := newOpenAIProvider(config.ProviderOpenAI, config.ProviderConfig{APIKey: "k", BaseURL: srv.URL + "/", Enabled: true},
		srv.Client(), true, "gpt-4o")
	require.True(t, p.Available())

	out, err := p.Complete(context.Background(), Request{
		System:    "be brief",
		MaxTokens: 50,
		Messages: []Message{
			UserMessage("read this", Image{MediaType: "image/jpeg", Data: []byte("jpg")}),
			{Role: RoleAssistant, Content: "ok"},
			UserMessage("and now?"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "Bearer k", gotAuth)
	assert.Equal(t, "gpt-4o", got["model"])

	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 4)

	system := messages[0].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assert.Equal(t, "be brief", system["content"])

	vision := messages[1].(map[string]any)
	assert.Equal(t, "user", vision["role"])
	parts := vision["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	assert.Equal(t, "read this", parts[0].(map[string]any)["text"])
	imagePart := parts[1].(map[string]any)
	assert.Equal(t, "image_url", imagePart["type"])
	url := imagePart["image_url"].(map[string]any)["url"].(string)
	assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"), url)

	assert.Equal(t, "assistant", messages[2].(map[string]any)["role"])
	assert.Equal(t, "and now?", messages[3].(map[string]any)["content"])
}

func TestOpenAIProvider_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{
			name:   "api error",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"bad key","type":"invalid_request_error"}}`,
			want:   "deepseek request failed",
		},
		{
			name:   "no choices",
			status: http.StatusOK,
			body:   `{"id":"c1","object":"chat.completion","model":"m","choices":[]}`,
			want:   "deepseek returned no choices",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := newOpenAIProvider(config.ProviderDeepSeek, config.ProviderConfig{APIKey: "k", BaseURL: srv.URL, Enabled: true},
				srv.Client(), false, "deepseek-chat")
			_, err := p.Complete(context.Background(), Request{Messages: []Message{UserMessage("hi")}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
