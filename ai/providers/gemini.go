package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const geminiDefaultBase = "https://generativelanguage.googleapis.com/v1beta"

// geminiProvider talks the generateContent REST API directly; there is no
// OpenAI-compatible surface with thinking-part support.
type geminiProvider struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	http    *http.Client
}

func init() {
	RegisterFactory("gemini", func(apiKey string) Provider {
		return &geminiProvider{
			apiKey:  apiKey,
			baseURL: geminiDefaultBase,
			timeout: 90 * time.Second,
			http:    &http.Client{},
		}
	})
}

func (p *geminiProvider) ID() string         { return "gemini" }
func (p *geminiProvider) IsConfigured() bool { return p.apiKey != "" }

func (p *geminiProvider) Fallback() []Model {
	return []Model{
		{ID: "gemini-2.5-flash"},
		{ID: "gemini-2.5-pro"},
		{ID: "gemini-2.0-flash"},
	}
}

type geminiPart struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerateRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (p *geminiProvider) FetchModels(ctx context.Context) ([]Model, error) {
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}
	var out struct {
		Models []struct {
			Name        string `json:"name"`
			DisplayName string `json:"displayName"`
		} `json:"models"`
	}
	if err := p.do(ctx, http.MethodGet, "/models", nil, &out); err != nil {
		return nil, err
	}
	models := make([]Model, 0, len(out.Models))
	for _, m := range out.Models {
		models = append(models, Model{
			ID:   strings.TrimPrefix(m.Name, "models/"),
			Name: m.DisplayName,
		})
	}
	return models, nil
}

func (p *geminiProvider) Call(ctx context.Context, req *Request) (*Reply, error) {
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}

	body := geminiGenerateRequest{}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	for _, m := range req.History {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{
			Role: role, Parts: []geminiPart{{Text: m.Content}},
		})
	}
	body.Contents = append(body.Contents, geminiContent{
		Role: "user", Parts: []geminiPart{{Text: prefixedPrompt(req)}},
	})

	var out geminiGenerateResponse
	path := fmt.Sprintf("/models/%s:generateContent", req.Model)
	if err := p.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	if len(out.Candidates) == 0 {
		return &Reply{}, nil
	}

	var thinking, content strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		if part.Thought {
			thinking.WriteString(part.Text)
		} else {
			content.WriteString(part.Text)
		}
	}
	return &Reply{Thinking: thinking.String(), Content: content.String()}, nil
}

func (p *geminiProvider) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var payload io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("gemini: encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", p.apiKey)
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return wrapCallErr("gemini", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return wrapCallErr("gemini", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{Provider: "gemini", Status: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("gemini: decode response: %w", err)
	}
	return nil
}
