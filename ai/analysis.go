package ai

import "context"

// Analyze runs the analysis job over one captured message.
func (s *Service) Analyze(ctx context.Context, text string) (string, error) {
	reply, err := s.RunJob(ctx, "analysis", map[string]any{"text": text}, nil)
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}

// Digest condenses recent history items into one digest message.
func (s *Service) Digest(ctx context.Context, items []string) (string, error) {
	reply, err := s.RunJob(ctx, "digest", map[string]any{"items": items}, nil)
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}
