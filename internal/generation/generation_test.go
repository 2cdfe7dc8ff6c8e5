package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/murmur/internal/backend"
)

func TestBuildPromptKeepsRecentUserTurns(t *testing.T) {
	history := []Message{
		{Role: "user", Content: "one"},
		{Role: "user", Content: "two"},
		{Role: "assistant", Content: "reply"},
		{Role: "user", Content: "three"},
		{Role: "user", Content: " four "},
		{Role: "user", Content: "five"},
	}
	prompt := BuildPrompt(Request{Message: "now", History: history})
	require.Equal(t, "User: two\nUser: three\nUser: four\nUser: five\nnow", prompt)
	require.Equal(t, "plain", BuildPrompt(Request{Message: "plain"}))
}

func TestCannedAlwaysAnswers(t *testing.T) {
	result := Canned{}.Generate(context.Background(), Request{Message: "anything"})
	require.True(t, result.OK())
	require.Equal(t, CannedResponse, result.Text)
}

func TestCloudGenerateStripsPrompt(t *testing.T) {
	var got inferenceRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models/org/chat-model", r.URL.Path)
		require.Equal(t, "Bearer hf_token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode([]inferenceResult{{GeneratedText: got.Inputs + "  It is sunny. "}})
	}))
	defer server.Close()

	c := NewCloud(CloudConfig{Endpoint: server.URL + "/models", Model: "org/chat-model", Token: "hf_token"})
	result := c.Generate(context.Background(), Request{Message: "weather?"})

	require.True(t, result.OK())
	require.Equal(t, "It is sunny.", result.Text)
	require.Equal(t, 256, got.Parameters.MaxNewTokens)
	require.InDelta(t, 0.7, got.Parameters.Temperature, 1e-9)
}

func TestCloudRateLimitIsRetryableExternalError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"rate limit"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	result := NewCloud(CloudConfig{Endpoint: server.URL, Model: "m", Token: "t"}).Generate(context.Background(), Request{Message: "hi"})
	require.Equal(t, backend.StatusFailed, result.Status)
	require.Empty(t, result.Text)

	var ext *backend.ExternalServiceError
	require.ErrorAs(t, result.Err, &ext)
	require.True(t, ext.Retryable)
	require.Equal(t, http.StatusTooManyRequests, ext.StatusCode)
}

func TestCloudLocalLimiterShortCircuits(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode([]inferenceResult{{GeneratedText: "ok"}})
	}))
	defer server.Close()

	c := NewCloud(CloudConfig{Endpoint: server.URL, Model: "m", Token: "t", RequestsPerMinute: 1})
	require.True(t, c.Generate(context.Background(), Request{Message: "a"}).OK())

	result := c.Generate(context.Background(), Request{Message: "b"})
	require.ErrorIs(t, result.Err, errRateLimited)
	require.True(t, backend.IsExternal(result.Err))
	require.Equal(t, 1, calls)
}

func TestCloudNotInitializedWithoutToken(t *testing.T) {
	c := NewCloud(CloudConfig{Model: "m"})
	require.False(t, c.Ready())
	require.Equal(t, backend.StatusNotInitialized, c.Generate(context.Background(), Request{Message: "hi"}).Status)
}

func TestCloudRejectsEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	result := NewCloud(CloudConfig{Endpoint: server.URL, Model: "m", Token: "t"}).Generate(context.Background(), Request{Message: "hi"})
	require.True(t, backend.IsExternal(result.Err))
}

func TestLocalGenerate(t *testing.T) {
	var got ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		case "/api/generate":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_ = json.NewEncoder(w).Encode(ollamaResponse{Response: " Local answer ", Done: true})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	l := NewLocal(LocalConfig{Endpoint: server.URL, Model: "phi3", Context: 2048})
	require.True(t, l.Ready())

	result := l.Generate(context.Background(), Request{Message: "hello"})
	require.True(t, result.OK())
	require.Equal(t, "Local answer", result.Text)
	require.Equal(t, "phi3", got.Model)
	require.False(t, got.Stream)
	require.Equal(t, 2048, got.Options.NumCtx)
}

func TestLocalUnreachableIsExternalError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	l := NewLocal(LocalConfig{Endpoint: endpoint})
	require.False(t, l.Ready())

	result := l.Generate(context.Background(), Request{Message: "hello"})
	require.Equal(t, backend.StatusFailed, result.Status)
	require.True(t, backend.IsExternal(result.Err))
}
