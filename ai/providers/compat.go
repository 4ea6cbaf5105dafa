package providers

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// compatProvider covers every OpenAI-compatible backend. The id, base URL,
// timeout, and fallback list are the only per-backend differences.
type compatProvider struct {
	id       string
	apiKey   string
	baseURL  string
	timeout  time.Duration
	fallback []Model
}

func init() {
	RegisterFactory("groq", func(apiKey string) Provider {
		return &compatProvider{
			id:      "groq",
			apiKey:  apiKey,
			baseURL: "https://api.groq.com/openai/v1",
			timeout: 60 * time.Second,
			fallback: []Model{
				{ID: "llama-3.3-70b-versatile"},
				{ID: "llama-3.1-8b-instant"},
				{ID: "deepseek-r1-distill-llama-70b"},
				{ID: "qwen/qwen3-32b"},
			},
		}
	})
	RegisterFactory("openai", func(apiKey string) Provider {
		return &compatProvider{
			id:      "openai",
			apiKey:  apiKey,
			timeout: 90 * time.Second,
			fallback: []Model{
				{ID: "gpt-4o-mini"},
				{ID: "gpt-4o"},
				{ID: "gpt-4.1"},
				{ID: "gpt-4.1-mini"},
				{ID: "o3-mini"},
			},
		}
	})
	RegisterFactory("nvidia", func(apiKey string) Provider {
		return &compatProvider{
			id:      "nvidia",
			apiKey:  apiKey,
			baseURL: "https://integrate.api.nvidia.com/v1",
			timeout: 120 * time.Second,
			fallback: []Model{
				{ID: "meta/llama-3.3-70b-instruct"},
				{ID: "meta/llama-3.1-405b-instruct"},
				{ID: "deepseek-ai/deepseek-r1"},
				{ID: "qwen/qwen2.5-coder-32b-instruct"},
			},
		}
	})
}

func (p *compatProvider) ID() string         { return p.id }
func (p *compatProvider) IsConfigured() bool { return p.apiKey != "" }
func (p *compatProvider) Fallback() []Model  { return p.fallback }

func (p *compatProvider) client() *openai.Client {
	cfg := openai.DefaultConfig(p.apiKey)
	if p.baseURL != "" {
		cfg.BaseURL = p.baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func (p *compatProvider) FetchModels(ctx context.Context) ([]Model, error) {
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	list, err := p.client().ListModels(ctx)
	if err != nil {
		return nil, p.mapErr(err)
	}
	models := make([]Model, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, Model{ID: m.ID})
	}
	return models, nil
}

func (p *compatProvider) Call(ctx context.Context, req *Request) (*Reply, error) {
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client().CreateChatCompletion(ctx, p.completionRequest(req))
	if err != nil {
		return nil, p.mapErr(err)
	}
	if len(resp.Choices) == 0 {
		return &Reply{}, nil
	}
	msg := resp.Choices[0].Message
	thinking, content := splitThinking(msg.Content)
	if msg.ReasoningContent != "" {
		thinking = msg.ReasoningContent
	}
	return &Reply{Thinking: thinking, Content: content}, nil
}

// Stream delivers content deltas to sink and returns the assembled reply.
func (p *compatProvider) Stream(ctx context.Context, req *Request, sink func(chunk string)) (*Reply, error) {
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	creq := p.completionRequest(req)
	creq.Stream = true
	stream, err := p.client().CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return nil, p.mapErr(err)
	}
	defer stream.Close()

	var content, thinking strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, p.mapErr(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.ReasoningContent != "" {
			thinking.WriteString(delta.ReasoningContent)
		}
		if delta.Content != "" {
			content.WriteString(delta.Content)
			sink(delta.Content)
		}
	}

	think, text := splitThinking(content.String())
	if thinking.Len() > 0 {
		think = thinking.String()
		text = content.String()
	}
	return &Reply{Thinking: think, Content: text}, nil
}

func (p *compatProvider) completionRequest(req *Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: req.System,
		})
	}
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: prefixedPrompt(req),
	})
	return openai.ChatCompletionRequest{Model: req.Model, Messages: messages}
}

func (p *compatProvider) mapErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: p.id, Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	return wrapCallErr(p.id, err)
}

// splitThinking peels a leading <think>...</think> block off reasoning-model
// output.
func splitThinking(content string) (thinking, rest string) {
	trimmed := strings.TrimLeft(content, " \n")
	if !strings.HasPrefix(trimmed, "<think>") {
		return "", content
	}
	end := strings.Index(trimmed, "</think>")
	if end < 0 {
		return "", content
	}
	thinking = strings.TrimSpace(trimmed[len("<think>"):end])
	rest = strings.TrimLeft(trimmed[end+len("</think>"):], " \n")
	return thinking, rest
}
