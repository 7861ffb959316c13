package llmclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

func geminiOK(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":` + quote(text) + `}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"totalTokenCount":15}}`
}

func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func newTestClient(t *testing.T, endpoint string) *GeminiClient {
	t.Helper()
	client, err := NewGeminiClient(config.LLMModelConfig{
		Provider:   config.ProviderGemini,
		Model:      "gemini-test",
		APIKey:     "test-key",
		Endpoint:   endpoint,
		APITimeout: 5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestGeminiClient_RequiresAPIKey(t *testing.T) {
	_, err := NewGeminiClient(config.LLMModelConfig{Model: "m"}, zap.NewNop())
	require.Error(t, err)
}

func TestGeminiClient_GenerateResponse(t *testing.T) {
	var gotPath string
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")

		var payload geminiRequestPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload.Contents, 1)
		assert.Equal(t, "user", payload.Contents[0].Role)
		assert.Equal(t, "application/json", payload.GenerationConfig.ResponseMimeType)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(geminiOK(`{"tool":"done"}`)))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL+"/v1beta/models/gemini-test:generateContent")
	text, err := client.GenerateResponse(context.Background(), schemas.GenerationRequest{
		SystemPrompt: "You are a browser agent.",
		UserPrompt:   "Decide the next action.",
		Options:      schemas.GenerationOptions{ForceJSONFormat: true, Temperature: 0.2},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"tool":"done"}`, text)
	assert.Equal(t, "/v1beta/models/gemini-test:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
}

func TestGeminiClient_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(geminiOK("ok")))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	text, err := client.GenerateResponse(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestGeminiClient_PermanentErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.GenerateResponse(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGeminiClient_SafetyBlockIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.GenerateResponse(context.Background(), schemas.GenerationRequest{UserPrompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

type staticClient struct{ text string }

func (s staticClient) GenerateResponse(context.Context, schemas.GenerationRequest) (string, error) {
	return s.text, nil
}

func TestLLMRouter_TierDispatch(t *testing.T) {
	router, err := NewLLMRouter(zap.NewNop(), staticClient{"fast"}, staticClient{"powerful"}, 0)
	require.NoError(t, err)

	got, err := router.GenerateResponse(context.Background(), schemas.GenerationRequest{Tier: schemas.TierFast})
	require.NoError(t, err)
	assert.Equal(t, "fast", got)

	// Unspecified tier defaults to powerful.
	got, err = router.GenerateResponse(context.Background(), schemas.GenerationRequest{})
	require.NoError(t, err)
	assert.Equal(t, "powerful", got)
}

func TestLLMRouter_StreamingFallbackSingleChunk(t *testing.T) {
	router, err := NewLLMRouter(zap.NewNop(), staticClient{"fast"}, staticClient{"powerful"}, 0)
	require.NoError(t, err)

	ch, err := router.GenerateStreaming(context.Background(), schemas.GenerationRequest{Tier: schemas.TierFast})
	require.NoError(t, err)

	var chunks []string
	for chunk := range ch {
		chunks = append(chunks, chunk)
	}
	assert.Equal(t, []string{"fast"}, chunks)
}

func TestNewClient_Factory(t *testing.T) {
	_, err := NewClient(config.LLMRouterConfig{}, zap.NewNop())
	require.Error(t, err, "no models configured")

	cfg := config.LLMRouterConfig{
		DefaultFastModel:     "flash",
		DefaultPowerfulModel: "pro",
		Models: map[string]config.LLMModelConfig{
			"flash": {Provider: config.ProviderGemini, Model: "gemini-flash", APIKey: "k"},
			"pro":   {Provider: config.ProviderGemini, Model: "gemini-pro", APIKey: "k"},
		},
	}
	client, err := NewClient(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, client)

	cfg.DefaultFastModel = "missing"
	_, err = NewClient(cfg, zap.NewNop())
	require.Error(t, err)
}
