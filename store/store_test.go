package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/channelwatch/internal/profile"
	"github.com/hrygo/channelwatch/store"
	"github.com/hrygo/channelwatch/store/db/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	p := &profile.Profile{
		Driver:     "sqlite",
		DSN:        filepath.Join(t.TempDir(), "test.db"),
		AIProvider: "groq",
		AIModel:    "llama-3.3-70b-versatile",
	}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })

	st := store.New(driver, p, nil)
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestFiltersDefaultForNewUser(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	filters, err := st.GetMonitorFilters(ctx, 1)
	require.NoError(t, err)
	require.True(t, filters.Enabled)
	require.Empty(t, filters.Channels)
	require.Empty(t, filters.Keywords)
	require.Empty(t, filters.Users)
	require.NotNil(t, filters.Channels)
	require.NotNil(t, filters.Keywords)
	require.NotNil(t, filters.Users)
}

func TestFiltersRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	updated, err := st.UpdateMonitorFilters(ctx, 1, &store.MonitorFilters{
		Channels: []string{"technews"},
		Keywords: []string{"golang"},
		Enabled:  true,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Users)

	got, err := st.GetMonitorFilters(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"technews"}, got.Channels)
	require.Equal(t, []string{"golang"}, got.Keywords)
	require.Empty(t, got.Users)
	require.True(t, got.Enabled)

	// A second write replaces the policy wholesale.
	_, err = st.UpdateMonitorFilters(ctx, 1, &store.MonitorFilters{Enabled: false})
	require.NoError(t, err)
	got, err = st.GetMonitorFilters(ctx, 1)
	require.NoError(t, err)
	require.False(t, got.Enabled)
	require.Empty(t, got.Channels)
}

func TestFiltersArePerUser(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.UpdateMonitorFilters(ctx, 1, &store.MonitorFilters{Keywords: []string{"rust"}, Enabled: true})
	require.NoError(t, err)

	other, err := st.GetMonitorFilters(ctx, 2)
	require.NoError(t, err)
	require.Empty(t, other.Keywords)
}

func TestHistoryNewestFirstWithLimit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := st.AddMonitorHistory(ctx, &store.MonitorHistory{
			UserID:   1,
			Source:   "technews",
			SourceID: 100,
			Message:  "msg",
		})
		require.NoError(t, err)
	}
	_, err := st.AddMonitorHistory(ctx, &store.MonitorHistory{UserID: 2, Source: "other", Message: "theirs"})
	require.NoError(t, err)

	rows, err := st.ListMonitorHistory(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Greater(t, rows[0].ID, rows[1].ID)
	for _, row := range rows {
		require.Equal(t, int32(1), row.UserID)
	}
}

func TestHistoryAISummaryAttachment(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.AddMonitorHistory(ctx, &store.MonitorHistory{UserID: 1, Source: "a", Message: "one"})
	require.NoError(t, err)
	second, err := st.AddMonitorHistory(ctx, &store.MonitorHistory{UserID: 1, Source: "a", Message: "two"})
	require.NoError(t, err)

	require.NoError(t, st.UpdateMonitorHistoryAI(ctx, []int64{first.ID, second.ID}, "summary text"))
	// Empty id list is a no-op, not an error.
	require.NoError(t, st.UpdateMonitorHistoryAI(ctx, nil, "x"))

	rows, err := st.ListMonitorHistory(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.NotNil(t, row.AISummary)
		require.Equal(t, "summary text", *row.AISummary)
	}
}

func TestSourceUpsertKeepsTitle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created, err := st.CreateSource(ctx, "@technews", "Tech News")
	require.NoError(t, err)
	require.Equal(t, "Tech News", created.Title)

	// Re-creating with an empty title keeps the existing one.
	again, err := st.CreateSource(ctx, "@technews", "")
	require.NoError(t, err)
	require.Equal(t, created.ID, again.ID)
	require.Equal(t, "Tech News", again.Title)

	byRef, err := st.GetSourceByRef(ctx, "@technews")
	require.NoError(t, err)
	require.Equal(t, created.ID, byRef.ID)

	_, err = st.GetSourceByRef(ctx, "@missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubscriptionUniquePerUserSource(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	src, err := st.CreateSource(ctx, "@golang", "Go")
	require.NoError(t, err)

	added, err := st.AddSubscription(ctx, 1, src.ID)
	require.NoError(t, err)
	require.True(t, added)

	added, err = st.AddSubscription(ctx, 1, src.ID)
	require.NoError(t, err)
	require.False(t, added)

	subs, err := st.ListSubscriptions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	require.NoError(t, st.DeleteSubscription(ctx, 1, src.ID))
	subs, err = st.ListSubscriptions(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, subs)
}

func TestContentDedup(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	item := &store.SeenContent{HashID: "1:abc", SourceID: 1, ExternalItemID: "abc", Link: "https://example.com/a"}
	added, err := st.AddContent(ctx, item)
	require.NoError(t, err)
	require.True(t, added)

	added, err = st.AddContent(ctx, &store.SeenContent{HashID: "1:abc", SourceID: 1, ExternalItemID: "abc"})
	require.NoError(t, err)
	require.False(t, added)

	exists, err := st.ContentExists(ctx, "1:abc")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = st.ContentExists(ctx, "1:def")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestSourceErrorCounter(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	src, err := st.CreateSource(ctx, "@flaky", "Flaky")
	require.NoError(t, err)

	count, err := st.IncrementSourceError(ctx, src.ID)
	require.NoError(t, err)
	require.Equal(t, int32(1), count)
	count, err = st.IncrementSourceError(ctx, src.ID)
	require.NoError(t, err)
	require.Equal(t, int32(2), count)

	require.NoError(t, st.ResetSourceError(ctx, src.ID))
	got, err := st.GetSource(ctx, src.ID)
	require.NoError(t, err)
	require.Zero(t, got.ErrorCount)
}

func TestAISettingsFallBackToProfile(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	settings, err := st.GetAISettings(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "groq", settings.Provider)
	require.Equal(t, "llama-3.3-70b-versatile", settings.Model)

	_, err = st.UpsertAISettings(ctx, &store.AISettings{UserID: 1, Provider: "claude", Model: "claude-sonnet-4-5"})
	require.NoError(t, err)

	settings, err = st.GetAISettings(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "claude", settings.Provider)
	require.NotZero(t, settings.UpdatedTs)
}
