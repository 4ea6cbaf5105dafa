package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// StartDigest schedules the periodic digest when DIGEST_CRON is set. The
// digest condenses the operator's recent history and forwards it through the
// same rate-limited send path as alerts.
func (s *Service) StartDigest() error {
	if s.profile.DigestCron == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.profile.DigestCron, s.runDigest); err != nil {
		return err
	}
	c.Start()
	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()
	slog.Info("digest scheduled", slog.String("cron", s.profile.DigestCron))
	return nil
}

// StopDigest stops the scheduler and waits for an in-flight run.
func (s *Service) StopDigest() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func (s *Service) runDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	if s.analyzer == nil || !s.analyzer.IsAvailable() {
		return
	}
	users := s.profile.EligibleUsers()
	if len(users) == 0 {
		return
	}
	history, err := s.GetHistory(ctx, users[0], s.profile.DigestLimit)
	if err != nil || len(history) == 0 {
		if err != nil {
			slog.Warn("digest history load failed", slog.Any("err", err))
		}
		return
	}

	items := make([]string, 0, len(history))
	for _, row := range history {
		items = append(items, row.Message)
	}
	digest, err := s.analyzer.Digest(ctx, items)
	if err != nil {
		slog.Warn("digest generation failed", slog.Any("err", err))
		return
	}

	s.mu.Lock()
	target := s.targetLocked()
	s.mu.Unlock()
	if target == "" {
		return
	}
	if err := s.gateway.SendMessage(ctx, target, "📋【Daily Digest】\n\n"+digest); err != nil {
		slog.Warn("digest send failed", slog.Any("err", err))
	}
}
