package monitor

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/hrygo/channelwatch/internal/profile"
	"github.com/hrygo/channelwatch/store"
	"github.com/hrygo/channelwatch/telegram"
)

// ErrNoSourcesResolved is returned by Start when not a single configured ref
// resolves to a reachable entity.
var ErrNoSourcesResolved = errors.New("no monitored sources resolved")

// ErrNotRunning is returned by Stop when the monitor is already stopped.
var ErrNotRunning = errors.New("monitor not running")

// Gateway is the MTProto capability the monitor consumes. telegram.Client
// satisfies it.
type Gateway interface {
	ResolveEntity(ctx context.Context, ref string) (*telegram.Entity, error)
	AddMessageHandler(h telegram.Handler) int
	RemoveMessageHandler(token int)
	SendMessage(ctx context.Context, ref, text string) error
}

// Analyzer is the AI capability used for enrichment and digests.
type Analyzer interface {
	IsAvailable() bool
	Analyze(ctx context.Context, text string) (string, error)
	Digest(ctx context.Context, items []string) (string, error)
}

// Notifier mirrors lifecycle events to the operator.
type Notifier interface {
	Notify(text string)
}

// EventPoster delivers forwarded events to an external webhook.
type EventPoster interface {
	PostAsync(ev *Event)
}

// PipelineMetrics records pipeline counters.
type PipelineMetrics interface {
	RecordIngested()
	RecordForwarded()
	RecordDropped(reason string)
	RecordHistoryRows(n int)
	RecordWSBroadcast(n int)
}

// Source is one configured source with its runtime state.
type Source struct {
	Ref      string `json:"ref"`
	Title    string `json:"title,omitempty"`
	Resolved bool   `json:"resolved"`
	Disabled bool   `json:"disabled"`
}

// Service owns the monitoring state machine and the per-event pipeline.
type Service struct {
	profile     *profile.Profile
	store       *store.Store
	gateway     Gateway
	broadcaster *Broadcaster

	analyzer Analyzer
	notifier Notifier
	webhook  EventPoster
	metrics  PipelineMetrics

	mu             sync.Mutex
	cron           *cron.Cron
	running        bool
	handlerToken   int
	sources        []*Source
	refIndex       map[string]*Source // normalized candidate -> entry
	forwarding     bool
	targetOverride string
}

// NewService builds the monitor over the gateway. Optional collaborators are
// attached with the With methods.
func NewService(p *profile.Profile, st *store.Store, gateway Gateway) *Service {
	s := &Service{
		profile:     p,
		store:       st,
		gateway:     gateway,
		broadcaster: NewBroadcaster(),
		forwarding:  true,
		refIndex:    make(map[string]*Source),
	}
	for _, ref := range p.SourceChannels {
		s.sources = append(s.sources, &Source{Ref: ref})
	}
	s.rebuildIndexLocked()
	return s
}

func (s *Service) WithAnalyzer(a Analyzer) *Service       { s.analyzer = a; return s }
func (s *Service) WithNotifier(n Notifier) *Service       { s.notifier = n; return s }
func (s *Service) WithWebhook(w EventPoster) *Service     { s.webhook = w; return s }
func (s *Service) WithMetrics(m PipelineMetrics) *Service { s.metrics = m; return s }

// Subscribe attaches an in-process event consumer.
func (s *Service) Subscribe(userID int32) *Subscriber {
	return s.broadcaster.Subscribe(userID)
}

// SubscriberCount returns the number of connected consumers.
func (s *Service) SubscriberCount() int {
	return s.broadcaster.Count()
}

// Start resolves the configured sources and registers the single message
// listener. At least one source must resolve.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if len(s.sources) == 0 {
		return ErrNoSourcesResolved
	}

	resolved := 0
	for _, entry := range s.sources {
		if s.resolveEntry(ctx, entry) {
			resolved++
		}
	}
	if resolved == 0 {
		return ErrNoSourcesResolved
	}

	s.handlerToken = s.gateway.AddMessageHandler(s.handleMessage)
	s.running = true
	slog.Info("monitor started",
		slog.Int("sources", len(s.sources)), slog.Int("resolved", resolved))
	s.notify("Monitor started: watching " + strconv.Itoa(len(s.sources)) + " sources")
	return nil
}

// Stop deregisters the listener. Subscribers stay attached; they simply stop
// receiving events.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Service) stopLocked() error {
	if !s.running {
		return ErrNotRunning
	}
	s.gateway.RemoveMessageHandler(s.handlerToken)
	s.running = false
	slog.Info("monitor stopped")
	s.notify("Monitor stopped")
	return nil
}

// Shutdown closes subscribers and stops the listener.
func (s *Service) Shutdown() {
	s.broadcaster.CloseAll()
	s.mu.Lock()
	if s.running {
		_ = s.stopLocked()
	}
	s.mu.Unlock()
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status is the externally visible monitor state.
type Status struct {
	Running    bool      `json:"running"`
	Forwarding bool      `json:"forwarding"`
	Target     string    `json:"target"`
	Sources    []*Source `json:"sources"`
	AIAnalysis bool      `json:"aiAnalysis"`
}

func (s *Service) GetStatus() *Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	sources := make([]*Source, len(s.sources))
	for i, entry := range s.sources {
		copied := *entry
		sources[i] = &copied
	}
	return &Status{
		Running:    s.running,
		Forwarding: s.forwarding,
		Target:     s.targetLocked(),
		Sources:    sources,
		AIAnalysis: s.analysisEnabled(),
	}
}

func (s *Service) GetSources() []*Source {
	return s.GetStatus().Sources
}

// AddSource appends a ref. Resolution failure is a warning, not an error;
// the ref stays configured and may resolve later.
func (s *Service) AddSource(ctx context.Context, ref string) error {
	if ref == "" {
		return errors.New("empty source ref")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	normalized := telegram.NormalizeRef(ref)
	for _, entry := range s.sources {
		if telegram.NormalizeRef(entry.Ref) == normalized {
			return errors.Errorf("source %q already configured", ref)
		}
	}
	entry := &Source{Ref: ref}
	if !s.resolveEntry(ctx, entry) {
		slog.Warn("source did not resolve, keeping ref", slog.String("ref", ref))
	}
	s.sources = append(s.sources, entry)
	s.rebuildIndexLocked()
	return nil
}

// DeleteSource removes a ref. Removing the last source stops the monitor.
func (s *Service) DeleteSource(ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	normalized := telegram.NormalizeRef(ref)
	kept := s.sources[:0]
	found := false
	for _, entry := range s.sources {
		if telegram.NormalizeRef(entry.Ref) == normalized {
			found = true
			continue
		}
		kept = append(kept, entry)
	}
	if !found {
		return errors.Errorf("source %q not configured", ref)
	}
	s.sources = kept
	s.rebuildIndexLocked()
	if len(s.sources) == 0 && s.running {
		return s.stopLocked()
	}
	return nil
}

func (s *Service) EnableSource(ref string) error  { return s.setSourceDisabled(ref, false) }
func (s *Service) DisableSource(ref string) error { return s.setSourceDisabled(ref, true) }

func (s *Service) setSourceDisabled(ref string, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	normalized := telegram.NormalizeRef(ref)
	for _, entry := range s.sources {
		if telegram.NormalizeRef(entry.Ref) == normalized {
			entry.Disabled = disabled
			return nil
		}
	}
	return errors.Errorf("source %q not configured", ref)
}

// SetForwarding toggles forwarding without touching the listener.
func (s *Service) SetForwarding(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forwarding = enabled
}

// SetTargetChannel overrides the configured forward target.
func (s *Service) SetTargetChannel(ref string) error {
	if ref == "" {
		return errors.New("empty target ref")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetOverride = ref
	return nil
}

// ResetTargetChannel reverts to the configured target.
func (s *Service) ResetTargetChannel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetOverride = ""
}

func (s *Service) GetFilters(ctx context.Context, userID int32) (*store.MonitorFilters, error) {
	return s.store.GetMonitorFilters(ctx, userID)
}

func (s *Service) UpdateFilters(ctx context.Context, userID int32, filters *store.MonitorFilters) (*store.MonitorFilters, error) {
	return s.store.UpdateMonitorFilters(ctx, userID, filters)
}

func (s *Service) GetHistory(ctx context.Context, userID int32, limit int) ([]*store.MonitorHistory, error) {
	return s.store.ListMonitorHistory(ctx, userID, limit)
}

// resolveEntry must be called with the lock held.
func (s *Service) resolveEntry(ctx context.Context, entry *Source) bool {
	entity, err := s.gateway.ResolveEntity(ctx, entry.Ref)
	if err != nil || entity == nil {
		if err != nil {
			slog.Warn("source resolution failed",
				slog.String("ref", entry.Ref), slog.Any("err", err))
		}
		entry.Resolved = false
		return false
	}
	entry.Resolved = true
	entry.Title = entity.Title
	return true
}

// rebuildIndexLocked maps every normalized spelling of every configured
// source to its entry.
func (s *Service) rebuildIndexLocked() {
	index := make(map[string]*Source, len(s.sources))
	for _, entry := range s.sources {
		index[telegram.NormalizeRef(entry.Ref)] = entry
	}
	s.refIndex = index
}

func (s *Service) targetLocked() string {
	if s.targetOverride != "" {
		return s.targetOverride
	}
	return s.profile.TargetChannel
}

func (s *Service) analysisEnabled() bool {
	return s.profile.MonitorAIAnalysis && s.analyzer != nil && s.analyzer.IsAvailable()
}

func (s *Service) notify(text string) {
	if s.notifier != nil {
		s.notifier.Notify(text)
	}
}

// handleMessage is the per-event pipeline. Registered receive-all; every gate
// lives here.
func (s *Service) handleMessage(ctx context.Context, msg *telegram.Incoming) {
	s.mu.Lock()
	running := s.running
	forwarding := s.forwarding
	target := s.targetLocked()
	var matched *Source
	for _, candidate := range telegram.RefCandidates(msg.ChatID, msg.ChatUsername) {
		if entry, ok := s.refIndex[candidate]; ok {
			matched = entry
			break
		}
	}
	s.mu.Unlock()

	if !running || msg.Text == "" {
		return
	}
	s.recordIngested()
	if matched == nil {
		s.recordDropped("source")
		return
	}
	if !s.senderAllowed(msg) {
		s.recordDropped("sender")
		return
	}
	if !s.keywordsPass(msg.Text) {
		s.recordDropped("keyword")
		return
	}

	sourceName := msg.ChatUsername
	if sourceName == "" {
		sourceName = strconv.FormatInt(msg.ChatID, 10)
	}
	ev := &Event{
		ID:        uuid.New().String(),
		Text:      msg.Text,
		Source:    sourceName,
		SourceID:  msg.ChatID,
		Timestamp: msg.Time.UTC().Format(time.RFC3339),
	}

	if forwarding && !matched.Disabled && target != "" {
		if err := s.gateway.SendMessage(ctx, target, ForwardText(ev.Text, sourceName)); err != nil {
			slog.Warn("forward failed", slog.String("target", target), slog.Any("err", err))
		} else {
			s.recordForwarded()
			if s.webhook != nil {
				s.webhook.PostAsync(ev)
			}
		}
	}

	historyIDs := s.persistHistory(ctx, ev)
	if len(historyIDs) > 0 && s.analysisEnabled() {
		go s.enrich(ev.Text, historyIDs)
	}

	delivered := s.broadcaster.Publish(ev)
	if s.metrics != nil {
		s.metrics.RecordWSBroadcast(delivered)
	}
}

// senderAllowed applies the global FROM_USERS gate.
func (s *Service) senderAllowed(msg *telegram.Incoming) bool {
	if len(s.profile.FromUsers) == 0 {
		return true
	}
	id := strconv.FormatInt(msg.SenderID, 10)
	for _, u := range s.profile.FromUsers {
		normalized := telegram.NormalizeRef(u)
		if normalized == telegram.NormalizeRef(msg.SenderUsername) || normalized == id {
			return true
		}
	}
	return false
}

// keywordsPass applies the global keyword gate; ["none"] disables it.
func (s *Service) keywordsPass(text string) bool {
	if !keywordGateActive(s.profile.Keywords) {
		return true
	}
	lowered := strings.ToLower(text)
	for _, kw := range s.profile.Keywords {
		if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// persistHistory appends one row per eligible user whose policy matches.
// Failures are logged and swallowed; history never blocks emission.
func (s *Service) persistHistory(ctx context.Context, ev *Event) []int64 {
	var ids []int64
	for _, userID := range s.profile.EligibleUsers() {
		filters, err := s.store.GetMonitorFilters(ctx, userID)
		if err != nil {
			slog.Warn("filter load failed", slog.Int("userID", int(userID)), slog.Any("err", err))
			continue
		}
		if !MatchesFilters(filters, ev) {
			continue
		}
		row, err := s.store.AddMonitorHistory(ctx, &store.MonitorHistory{
			UserID:   userID,
			Source:   ev.Source,
			SourceID: ev.SourceID,
			Message:  ev.Text,
		})
		if err != nil {
			slog.Warn("history append failed", slog.Int("userID", int(userID)), slog.Any("err", err))
			continue
		}
		ids = append(ids, row.ID)
	}
	if s.metrics != nil && len(ids) > 0 {
		s.metrics.RecordHistoryRows(len(ids))
	}
	return ids
}

// enrich runs the analysis job and attaches the result to the history rows.
func (s *Service) enrich(text string, ids []int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	summary, err := s.analyzer.Analyze(ctx, text)
	if err != nil {
		slog.Warn("analysis failed", slog.Any("err", err))
		return
	}
	if err := s.store.UpdateMonitorHistoryAI(ctx, ids, summary); err != nil {
		slog.Warn("failed to attach analysis", slog.Any("err", err))
	}
}

func (s *Service) recordIngested() {
	if s.metrics != nil {
		s.metrics.RecordIngested()
	}
}

func (s *Service) recordForwarded() {
	if s.metrics != nil {
		s.metrics.RecordForwarded()
	}
}

func (s *Service) recordDropped(reason string) {
	if s.metrics != nil {
		s.metrics.RecordDropped(reason)
	}
}
