package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hrygo/channelwatch/internal/profile"
	"github.com/hrygo/channelwatch/store/cache"
	"github.com/hrygo/channelwatch/store/migration"
)

// filterCacheTTL bounds staleness of cached filter documents. Writes bust the
// key immediately; the TTL only covers out-of-band database edits.
const filterCacheTTL = 10 * time.Minute

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
	cache   *cache.Service
}

// New creates a new instance of Store. The cache service may be nil.
func New(driver Driver, profile *profile.Profile, cacheService *cache.Service) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
		cache:   cacheService,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Migrate applies all pending schema migrations. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	return migration.Migrate(ctx, s.driver.GetDB(), s.profile.Driver)
}

// Sources.

func (s *Store) CreateSource(ctx context.Context, ref, title string) (*Source, error) {
	return s.driver.CreateSource(ctx, ref, title)
}

func (s *Store) GetSource(ctx context.Context, id int32) (*Source, error) {
	return s.driver.GetSource(ctx, id)
}

func (s *Store) GetSourceByRef(ctx context.Context, ref string) (*Source, error) {
	return s.driver.GetSourceByRef(ctx, ref)
}

func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	return s.driver.ListSources(ctx)
}

func (s *Store) DeleteSource(ctx context.Context, id int32) error {
	return s.driver.DeleteSource(ctx, id)
}

func (s *Store) IncrementSourceError(ctx context.Context, id int32) (int32, error) {
	return s.driver.IncrementSourceError(ctx, id)
}

func (s *Store) ResetSourceError(ctx context.Context, id int32) error {
	return s.driver.ResetSourceError(ctx, id)
}

// Subscriptions.

func (s *Store) AddSubscription(ctx context.Context, userID, sourceID int32) (bool, error) {
	return s.driver.AddSubscription(ctx, userID, sourceID)
}

func (s *Store) ListSubscriptions(ctx context.Context, userID int32) ([]*Subscription, error) {
	return s.driver.ListSubscriptions(ctx, userID)
}

func (s *Store) DeleteSubscription(ctx context.Context, userID, sourceID int32) error {
	return s.driver.DeleteSubscription(ctx, userID, sourceID)
}

// Seen content.

func (s *Store) ContentExists(ctx context.Context, hashID string) (bool, error) {
	return s.driver.ContentExists(ctx, hashID)
}

func (s *Store) AddContent(ctx context.Context, content *SeenContent) (bool, error) {
	return s.driver.AddContent(ctx, content)
}

// Monitor filters. The stored document is merged over defaults on read so a
// partial or absent document still yields a complete policy.

func filterCacheKey(userID int32) string {
	return fmt.Sprintf("monitor:filters:%d", userID)
}

func (s *Store) GetMonitorFilters(ctx context.Context, userID int32) (*MonitorFilters, error) {
	raw, err := s.cache.GetOrSet(ctx, filterCacheKey(userID), filterCacheTTL, func(ctx context.Context) ([]byte, error) {
		return s.driver.GetMonitorFilters(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	filters := DefaultMonitorFilters()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, filters); err != nil {
			slog.Warn("malformed filter document, using defaults",
				slog.Int("userID", int(userID)), slog.Any("err", err))
			return DefaultMonitorFilters(), nil
		}
	}
	filters.Normalize()
	return filters, nil
}

// UpdateMonitorFilters replaces the user's policy wholesale and busts the
// cached copy so connected streams pick up the new predicate on the next read.
func (s *Store) UpdateMonitorFilters(ctx context.Context, userID int32, filters *MonitorFilters) (*MonitorFilters, error) {
	filters.Normalize()
	raw, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal filters: %w", err)
	}
	if err := s.driver.UpsertMonitorFilters(ctx, userID, raw); err != nil {
		return nil, err
	}
	s.cache.Delete(ctx, filterCacheKey(userID))
	return filters, nil
}

// Monitor history.

func (s *Store) AddMonitorHistory(ctx context.Context, history *MonitorHistory) (*MonitorHistory, error) {
	if history.CreatedTs == 0 {
		history.CreatedTs = time.Now().Unix()
	}
	return s.driver.AddMonitorHistory(ctx, history)
}

func (s *Store) ListMonitorHistory(ctx context.Context, userID int32, limit int) ([]*MonitorHistory, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.driver.ListMonitorHistory(ctx, userID, limit)
}

func (s *Store) UpdateMonitorHistoryAI(ctx context.Context, ids []int64, summary string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.driver.UpdateMonitorHistoryAI(ctx, ids, summary)
}

// AI chats.

func (s *Store) GetOrCreateActiveChat(ctx context.Context, userID int32) (*AIChat, error) {
	return s.driver.GetOrCreateActiveChat(ctx, userID)
}

func (s *Store) CreateChat(ctx context.Context, userID int32, title string) (*AIChat, error) {
	if title == "" {
		title = PlaceholderChatTitle
	}
	return s.driver.CreateChat(ctx, userID, title)
}

func (s *Store) SetActiveChat(ctx context.Context, userID, chatID int32) error {
	return s.driver.SetActiveChat(ctx, userID, chatID)
}

func (s *Store) GetChat(ctx context.Context, userID, chatID int32) (*AIChat, error) {
	return s.driver.GetChat(ctx, userID, chatID)
}

func (s *Store) ListChats(ctx context.Context, userID int32) ([]*AIChat, error) {
	return s.driver.ListChats(ctx, userID)
}

func (s *Store) DeleteChat(ctx context.Context, userID, chatID int32) error {
	return s.driver.DeleteChat(ctx, userID, chatID)
}

func (s *Store) UpdateChatTitle(ctx context.Context, chatID int32, title string) error {
	return s.driver.UpdateChatTitle(ctx, chatID, title)
}

func (s *Store) UpdateChatSummary(ctx context.Context, chatID int32, summary string) error {
	return s.driver.UpdateChatSummary(ctx, chatID, summary)
}

func (s *Store) SaveMessage(ctx context.Context, chatID int32, role, content string) (*AIMessage, error) {
	return s.driver.SaveMessage(ctx, chatID, role, content)
}

func (s *Store) ListMessages(ctx context.Context, chatID int32, limit int) ([]*AIMessage, error) {
	return s.driver.ListMessages(ctx, chatID, limit)
}

func (s *Store) CountMessages(ctx context.Context, chatID int32) (int, error) {
	return s.driver.CountMessages(ctx, chatID)
}

func (s *Store) ClearMessages(ctx context.Context, chatID int32) error {
	return s.driver.ClearMessages(ctx, chatID)
}

// AI settings.

func (s *Store) GetAISettings(ctx context.Context, userID int32) (*AISettings, error) {
	settings, err := s.driver.GetAISettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return &AISettings{
			UserID:   userID,
			Provider: s.profile.AIProvider,
			Model:    s.profile.AIModel,
		}, nil
	}
	return settings, nil
}

func (s *Store) UpsertAISettings(ctx context.Context, settings *AISettings) (*AISettings, error) {
	settings.UpdatedTs = time.Now().Unix()
	return s.driver.UpsertAISettings(ctx, settings)
}
