package providers

import (
	"context"
	"errors"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const claudeMaxTokens = 4096

type claudeProvider struct {
	apiKey  string
	timeout time.Duration
}

func init() {
	RegisterFactory("claude", func(apiKey string) Provider {
		return &claudeProvider{apiKey: apiKey, timeout: 120 * time.Second}
	})
}

func (p *claudeProvider) ID() string         { return "claude" }
func (p *claudeProvider) IsConfigured() bool { return p.apiKey != "" }

func (p *claudeProvider) Fallback() []Model {
	return []Model{
		{ID: "claude-sonnet-4-5"},
		{ID: "claude-opus-4-1"},
		{ID: "claude-haiku-4-5"},
	}
}

func (p *claudeProvider) FetchModels(ctx context.Context) ([]Model, error) {
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client := anthropic.NewClient(option.WithAPIKey(p.apiKey))
	page, err := client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, p.mapErr(err)
	}
	models := make([]Model, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, Model{ID: string(m.ID), Name: m.DisplayName})
	}
	return models, nil
}

func (p *claudeProvider) Call(ctx context.Context, req *Request) (*Reply, error) {
	if !p.IsConfigured() {
		return nil, ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, m := range req.History {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(prefixedPrompt(req))))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: claudeMaxTokens,
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	client := anthropic.NewClient(option.WithAPIKey(p.apiKey))
	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.mapErr(err)
	}

	reply := &Reply{}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			reply.Content += block.Text
		case "thinking":
			reply.Thinking += block.Thinking
		}
	}
	return reply, nil
}

func (p *claudeProvider) mapErr(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{Provider: "claude", Status: apiErr.StatusCode, Body: apiErr.Error()}
	}
	return wrapCallErr("claude", err)
}
