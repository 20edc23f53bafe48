package generation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderRequiresAPIKey(t *testing.T) {
	for _, name := range []string{"openai", "groq", "gemini"} {
		t.Run(name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), ProviderConfig{Provider: name, Model: "m"})
			assert.ErrorIs(t, err, ErrMissingAPIKey)
		})
	}
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(context.Background(), ProviderConfig{Provider: "carrier-pigeon", APIKey: "k"})
	assert.Error(t, err)
}

func TestOpenAIProviderJSONMode(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"objectives\": [\"grow\"]}"}}]
		}`)
	}))
	defer srv.Close()

	p, err := NewProvider(context.Background(), ProviderConfig{
		Provider: "openai", Model: "gpt-4o-mini", APIKey: "test-key", BaseURL: srv.URL + "/v1/", Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	text, err := p.Complete(context.Background(), Messages{System: "sys", User: "usr", JSON: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"objectives": ["grow"]}`, text)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}
