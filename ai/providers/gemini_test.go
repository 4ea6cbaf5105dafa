package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testGemini(baseURL string) *geminiProvider {
	return &geminiProvider{
		apiKey:  "test-key",
		baseURL: baseURL,
		timeout: 5 * time.Second,
		http:    &http.Client{},
	}
}

func TestGeminiCall(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(geminiGenerateResponse{
			Candidates: []struct {
				Content geminiContent `json:"content"`
			}{{Content: geminiContent{Parts: []geminiPart{
				{Text: "considering the question", Thought: true},
				{Text: "the answer"},
			}}}},
		})
	}))
	defer srv.Close()

	p := testGemini(srv.URL)
	reply, err := p.Call(context.Background(), &Request{
		Model:  "gemini-2.5-flash",
		System: "be brief",
		Prompt: "hello",
		History: []Message{
			{Role: "user", Content: "earlier"},
			{Role: "assistant", Content: "reply"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "the answer", reply.Content)
	require.Equal(t, "considering the question", reply.Thinking)

	require.Equal(t, "/models/gemini-2.5-flash:generateContent", gotPath)
	require.Equal(t, "test-key", gotKey)
	require.NotNil(t, gotBody.SystemInstruction)
	require.Equal(t, "be brief", gotBody.SystemInstruction.Parts[0].Text)
	require.Len(t, gotBody.Contents, 3)
	require.Equal(t, "model", gotBody.Contents[1].Role)
	require.Equal(t, "hello", gotBody.Contents[2].Parts[0].Text)
}

func TestGeminiCallNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := testGemini(srv.URL)
	_, err := p.Call(context.Background(), &Request{Model: "gemini-2.5-flash", Prompt: "hi"})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "gemini", pe.Provider)
	require.Equal(t, http.StatusTooManyRequests, pe.Status)
	require.False(t, IsRetryable(err))
}

func TestGeminiFetchModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"models": [
			{"name": "models/gemini-2.5-flash", "displayName": "Gemini 2.5 Flash"},
			{"name": "models/gemini-2.5-pro", "displayName": "Gemini 2.5 Pro"}
		]}`))
	}))
	defer srv.Close()

	p := testGemini(srv.URL)
	models, err := p.FetchModels(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Model{
		{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash"},
		{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro"},
	}, models)
}

func TestGeminiUnconfigured(t *testing.T) {
	p := testGemini("http://unused")
	p.apiKey = ""
	_, err := p.Call(context.Background(), &Request{Model: "m", Prompt: "x"})
	require.ErrorIs(t, err, ErrNotConfigured)
}
