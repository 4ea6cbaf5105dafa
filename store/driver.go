package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Sources.
	CreateSource(ctx context.Context, ref, title string) (*Source, error)
	GetSource(ctx context.Context, id int32) (*Source, error)
	GetSourceByRef(ctx context.Context, ref string) (*Source, error)
	ListSources(ctx context.Context) ([]*Source, error)
	DeleteSource(ctx context.Context, id int32) error
	IncrementSourceError(ctx context.Context, id int32) (int32, error)
	ResetSourceError(ctx context.Context, id int32) error

	// Subscriptions.
	AddSubscription(ctx context.Context, userID, sourceID int32) (bool, error)
	ListSubscriptions(ctx context.Context, userID int32) ([]*Subscription, error)
	DeleteSubscription(ctx context.Context, userID, sourceID int32) error

	// Seen content dedup.
	ContentExists(ctx context.Context, hashID string) (bool, error)
	AddContent(ctx context.Context, content *SeenContent) (bool, error)

	// Monitor filter policies, stored as one raw JSON document per user.
	GetMonitorFilters(ctx context.Context, userID int32) ([]byte, error)
	UpsertMonitorFilters(ctx context.Context, userID int32, filters []byte) error

	// Monitor history.
	AddMonitorHistory(ctx context.Context, history *MonitorHistory) (*MonitorHistory, error)
	ListMonitorHistory(ctx context.Context, userID int32, limit int) ([]*MonitorHistory, error)
	UpdateMonitorHistoryAI(ctx context.Context, ids []int64, summary string) error

	// AI chats and messages.
	GetOrCreateActiveChat(ctx context.Context, userID int32) (*AIChat, error)
	CreateChat(ctx context.Context, userID int32, title string) (*AIChat, error)
	SetActiveChat(ctx context.Context, userID, chatID int32) error
	GetChat(ctx context.Context, userID, chatID int32) (*AIChat, error)
	ListChats(ctx context.Context, userID int32) ([]*AIChat, error)
	DeleteChat(ctx context.Context, userID, chatID int32) error
	UpdateChatTitle(ctx context.Context, chatID int32, title string) error
	UpdateChatSummary(ctx context.Context, chatID int32, summary string) error
	SaveMessage(ctx context.Context, chatID int32, role, content string) (*AIMessage, error)
	ListMessages(ctx context.Context, chatID int32, limit int) ([]*AIMessage, error)
	CountMessages(ctx context.Context, chatID int32) (int, error)
	ClearMessages(ctx context.Context, chatID int32) error

	// AI settings.
	GetAISettings(ctx context.Context, userID int32) (*AISettings, error)
	UpsertAISettings(ctx context.Context, settings *AISettings) (*AISettings, error)
}
