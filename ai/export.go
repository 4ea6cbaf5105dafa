package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/channelwatch/store"
)

// Export is an exported conversation: the raw transcript, derived notes, and
// the published URLs when a publisher accepted them.
type Export struct {
	Title    string `json:"title"`
	Raw      string `json:"raw"`
	Notes    string `json:"notes,omitempty"`
	RawURL   string `json:"rawUrl,omitempty"`
	NotesURL string `json:"notesUrl,omitempty"`
}

// ExportChat renders the chat as markdown, derives notes from it, and pushes
// both to the publisher when one is ready. A failed notes generation degrades
// to a raw-only export.
func (s *Service) ExportChat(ctx context.Context, userID, chatID int32) (*Export, error) {
	chat, err := s.store.GetChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, chatID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("chat %d has no messages", chatID)
	}

	export := &Export{Title: chat.Title, Raw: renderTranscript(chat, msgs)}

	// The chat_notes job clips its input to budget at rune boundaries.
	reply, err := s.RunJob(ctx, "chat_notes", map[string]any{"text": export.Raw}, nil)
	if err != nil {
		slog.Warn("notes generation failed, exporting raw only",
			slog.Int("chatID", int(chatID)), slog.Any("err", err))
	} else {
		export.Notes = reply.Content
	}

	if s.publisher == nil || !s.publisher.IsReady() {
		return export, nil
	}

	slug := strings.ToLower(shortuuid.New())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		url, err := s.publisher.SaveNote(gctx, "raw/"+slug+".md", export.Raw)
		if err != nil {
			return fmt.Errorf("failed to publish raw export: %w", err)
		}
		export.RawURL = url
		return nil
	})
	if export.Notes != "" {
		g.Go(func() error {
			url, err := s.publisher.SaveNote(gctx, "notes/"+slug+".md", export.Notes)
			if err != nil {
				return fmt.Errorf("failed to publish notes: %w", err)
			}
			export.NotesURL = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return export, nil
}

// renderTranscript produces the role-labeled markdown document.
func renderTranscript(chat *store.AIChat, msgs []*store.AIMessage) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(chat.Title)
	b.WriteString("\n\n")
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		label := "User"
		if m.Role == store.RoleAssistant {
			label = "Assistant"
		}
		b.WriteString("**")
		b.WriteString(label)
		b.WriteString(":**\n\n")
		b.WriteString(m.Content)
	}
	b.WriteString("\n")
	return b.String()
}
