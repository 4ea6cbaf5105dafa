// Package ai orchestrates chat conversations, one-shot jobs, and chat export
// on top of the provider registry and the store.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/channelwatch/ai/internal/strutil"
	"github.com/hrygo/channelwatch/ai/prompts"
	"github.com/hrygo/channelwatch/ai/providers"
	"github.com/hrygo/channelwatch/internal/profile"
	"github.com/hrygo/channelwatch/store"
)

const (
	// titleMaxRunes bounds the auto-assigned chat title.
	titleMaxRunes = 40
	// historyWindow is how many prior messages accompany each chat turn.
	historyWindow = 4
	// summaryEvery triggers a summary refresh when the message count reaches
	// a multiple of it.
	summaryEvery = 6
	// summaryWindow is how many recent messages feed the summary job.
	summaryWindow = 20

	defaultRetries = 1
	retryBackoff   = time.Second
)

// NotePublisher pushes exported markdown to an external home. ExportChat
// skips publication when the publisher is absent or not ready.
type NotePublisher interface {
	IsReady() bool
	SaveNote(ctx context.Context, path, content string) (string, error)
}

// CallMetrics records provider call outcomes.
type CallMetrics interface {
	RecordProviderCall(provider string, latency time.Duration, success bool)
}

// Service is the AI orchestration layer.
type Service struct {
	profile   *profile.Profile
	store     *store.Store
	registry  *providers.Registry
	publisher NotePublisher
	metrics   CallMetrics
}

// NewService builds the service. Publisher and metrics are optional and set
// via the With methods.
func NewService(p *profile.Profile, st *store.Store, registry *providers.Registry) *Service {
	return &Service{profile: p, store: st, registry: registry}
}

// WithPublisher attaches the export publisher.
func (s *Service) WithPublisher(pub NotePublisher) *Service {
	s.publisher = pub
	return s
}

// WithMetrics attaches the call metrics recorder.
func (s *Service) WithMetrics(m CallMetrics) *Service {
	s.metrics = m
	return s
}

// IsAvailable reports whether at least one provider carries an API key.
func (s *Service) IsAvailable() bool {
	return s.registry.HasConfigured()
}

// Response is the outcome of one chat turn.
type Response struct {
	ChatID   int32  `json:"chatId"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`
}

// Chat runs one turn against the user's active chat.
func (s *Service) Chat(ctx context.Context, userID int32, message string) (*Response, error) {
	return s.chat(ctx, userID, message, nil)
}

// ChatStream runs one turn, delivering content chunks to sink as they
// arrive. Providers without streaming produce a single chunk.
func (s *Service) ChatStream(ctx context.Context, userID int32, message string, sink func(chunk string)) (*Response, error) {
	return s.chat(ctx, userID, message, sink)
}

func (s *Service) chat(ctx context.Context, userID int32, message string, sink func(string)) (*Response, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("empty message")
	}

	chat, err := s.store.GetOrCreateActiveChat(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active chat: %w", err)
	}
	if _, err := s.store.SaveMessage(ctx, chat.ID, store.RoleUser, message); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}
	count, err := s.store.CountMessages(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	// First message of a fresh chat names it.
	if count == 1 && chat.Title == store.PlaceholderChatTitle {
		if err := s.store.UpdateChatTitle(ctx, chat.ID, strutil.Truncate(message, titleMaxRunes)); err != nil {
			slog.Warn("failed to set chat title", slog.Int("chatID", int(chat.ID)), slog.Any("err", err))
		}
	}

	history, err := s.history(ctx, chat.ID)
	if err != nil {
		return nil, err
	}

	settings, err := s.store.GetAISettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ai settings: %w", err)
	}
	providerID, model, err := s.resolve(ctx, settings.Provider, settings.Model)
	if err != nil {
		return nil, err
	}

	chatJob, err := prompts.Get("chat")
	if err != nil {
		return nil, err
	}
	req := &providers.Request{
		Model:   model,
		System:  chatJob.System,
		Prompt:  message,
		History: history,
	}
	if chat.Summary != "" {
		req.ContextPrefix = "[Previous conversation summary: " + chat.Summary + "]\n\n"
	}

	reply, err := s.call(ctx, providerID, req, sink, defaultRetries)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.SaveMessage(ctx, chat.ID, store.RoleAssistant, reply.Content); err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}

	if (count+1)%summaryEvery == 0 {
		go s.refreshSummary(chat.ID, providerID, model)
	}

	return &Response{ChatID: chat.ID, Content: reply.Content, Thinking: reply.Thinking}, nil
}

// history returns the messages preceding the just-saved user turn,
// chronological.
func (s *Service) history(ctx context.Context, chatID int32) ([]providers.Message, error) {
	msgs, err := s.store.ListMessages(ctx, chatID, historyWindow+1)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if len(msgs) > 0 {
		// The final element is the current user message.
		msgs = msgs[:len(msgs)-1]
	}
	history := make([]providers.Message, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, providers.Message{Role: m.Role, Content: m.Content})
	}
	return history, nil
}

// resolve fills provider and model from settings, profile defaults, and the
// registry's model list, in that order.
func (s *Service) resolve(ctx context.Context, providerID, model string) (string, string, error) {
	if providerID == "" {
		providerID = s.profile.AIProvider
	}
	if _, err := s.registry.Provider(providerID); err != nil {
		// Fall through to any configured backend.
		providerID = ""
		for _, info := range s.registry.List() {
			if info.Configured {
				providerID = info.ID
				break
			}
		}
		if providerID == "" {
			return "", "", fmt.Errorf("no ai provider configured: %w", providers.ErrNotConfigured)
		}
		model = ""
	}
	if model == "" && providerID == s.profile.AIProvider {
		model = s.profile.AIModel
	}
	if model == "" {
		models, err := s.registry.Models(ctx, providerID)
		if err != nil || len(models) == 0 {
			return "", "", fmt.Errorf("no model available for %s", providerID)
		}
		model = models[0].ID
	}
	return providerID, model, nil
}

// call runs the provider call with up to retries retries on retryable
// failures, backing off between attempts.
func (s *Service) call(ctx context.Context, providerID string, req *providers.Request, sink func(string), retries int) (*providers.Reply, error) {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		var reply *providers.Reply
		var err error
		if sink != nil {
			reply, err = s.registry.Stream(ctx, providerID, req, sink)
		} else {
			reply, err = s.registry.Call(ctx, providerID, req)
		}
		if s.metrics != nil {
			s.metrics.RecordProviderCall(providerID, time.Since(start), err == nil)
		}
		if err == nil {
			return reply, nil
		}
		if attempt >= retries || !providers.IsRetryable(err) {
			return nil, err
		}
		slog.Warn("provider call failed, retrying",
			slog.String("provider", providerID), slog.Any("err", err))
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// refreshSummary rebuilds the rolling chat summary in the background.
func (s *Service) refreshSummary(chatID int32, providerID, model string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	msgs, err := s.store.ListMessages(ctx, chatID, summaryWindow)
	if err != nil || len(msgs) == 0 {
		return
	}
	job, err := prompts.Get("chat_summary")
	if err != nil {
		return
	}
	prompt, err := job.Build(map[string]any{"text": transcript(msgs)})
	if err != nil {
		return
	}
	reply, err := s.call(ctx, providerID, &providers.Request{
		Model: model, System: job.System, Prompt: prompt,
	}, nil, 0)
	if err != nil {
		slog.Warn("summary refresh failed", slog.Int("chatID", int(chatID)), slog.Any("err", err))
		return
	}
	if err := s.store.UpdateChatSummary(ctx, chatID, reply.Content); err != nil {
		slog.Warn("failed to persist chat summary", slog.Int("chatID", int(chatID)), slog.Any("err", err))
	}
}

func transcript(msgs []*store.AIMessage) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// JobOptions overrides provider selection for one-shot jobs.
type JobOptions struct {
	Provider string
	Model    string
	Retries  int
}

// RunJob composes the catalog prompt for jobID and calls the provider.
func (s *Service) RunJob(ctx context.Context, jobID string, payload map[string]any, opts *JobOptions) (*providers.Reply, error) {
	job, err := prompts.Get(jobID)
	if err != nil {
		return nil, err
	}
	prompt, err := job.Build(payload)
	if err != nil {
		return nil, err
	}

	var providerID, model string
	retries := defaultRetries
	if opts != nil {
		providerID, model = opts.Provider, opts.Model
		if opts.Retries > 0 {
			retries = opts.Retries
		}
	}
	providerID, model, err = s.resolve(ctx, providerID, model)
	if err != nil {
		return nil, err
	}
	return s.call(ctx, providerID, &providers.Request{
		Model: model, System: job.System, Prompt: prompt,
	}, nil, retries)
}

// Settings and provider listings.

func (s *Service) GetSettings(ctx context.Context, userID int32) (*store.AISettings, error) {
	return s.store.GetAISettings(ctx, userID)
}

// UpdateSettings validates the provider before persisting the selection.
func (s *Service) UpdateSettings(ctx context.Context, userID int32, providerID, model string) (*store.AISettings, error) {
	if _, err := s.registry.Provider(providerID); err != nil {
		return nil, err
	}
	return s.store.UpsertAISettings(ctx, &store.AISettings{
		UserID:   userID,
		Provider: providerID,
		Model:    model,
	})
}

func (s *Service) ListProviders() []providers.Info {
	return s.registry.List()
}

func (s *Service) GetModels(ctx context.Context, providerID string) ([]providers.Model, error) {
	return s.registry.Models(ctx, providerID)
}

// Chat management.

func (s *Service) GetChats(ctx context.Context, userID int32) ([]*store.AIChat, error) {
	return s.store.ListChats(ctx, userID)
}

func (s *Service) CreateChat(ctx context.Context, userID int32) (*store.AIChat, error) {
	return s.store.CreateChat(ctx, userID, "")
}

func (s *Service) SwitchChat(ctx context.Context, userID, chatID int32) error {
	return s.store.SetActiveChat(ctx, userID, chatID)
}

func (s *Service) DeleteChat(ctx context.Context, userID, chatID int32) error {
	return s.store.DeleteChat(ctx, userID, chatID)
}

// ClearChat wipes the messages and the stale summary, keeping the thread.
func (s *Service) ClearChat(ctx context.Context, userID, chatID int32) error {
	if _, err := s.store.GetChat(ctx, userID, chatID); err != nil {
		return err
	}
	if err := s.store.ClearMessages(ctx, chatID); err != nil {
		return err
	}
	return s.store.UpdateChatSummary(ctx, chatID, "")
}

func (s *Service) GetMessages(ctx context.Context, userID, chatID int32) ([]*store.AIMessage, error) {
	if _, err := s.store.GetChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, chatID, 0)
}
