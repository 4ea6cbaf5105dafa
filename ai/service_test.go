package ai

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/channelwatch/ai/providers"
	"github.com/hrygo/channelwatch/internal/profile"
	"github.com/hrygo/channelwatch/store"
	"github.com/hrygo/channelwatch/store/db/sqlite"
)

// fakeProvider is a scriptable backend registered under "fake".
type fakeProvider struct {
	mu         sync.Mutex
	configured bool
	calls      int
	failures   []error
	lastReq    *providers.Request
	reply      string
}

var (
	fake     = &fakeProvider{}
	fakeOnce sync.Once
)

func registerFake() {
	fakeOnce.Do(func() {
		providers.RegisterFactory("fake", func(apiKey string) providers.Provider {
			fake.configured = apiKey != ""
			return fake
		})
	})
}

func (f *fakeProvider) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = 0
	f.failures = nil
	f.lastReq = nil
	f.reply = "ok"
}

func (f *fakeProvider) ID() string         { return "fake" }
func (f *fakeProvider) IsConfigured() bool { return f.configured }
func (f *fakeProvider) Fallback() []providers.Model {
	return []providers.Model{{ID: "fake-model"}}
}

func (f *fakeProvider) FetchModels(context.Context) ([]providers.Model, error) {
	return f.Fallback(), nil
}

func (f *fakeProvider) Call(_ context.Context, req *providers.Request) (*providers.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	return &providers.Reply{Content: f.reply}, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProvider) last() *providers.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	registerFake()
	fake.reset()

	p := &profile.Profile{
		Driver:     "sqlite",
		DSN:        filepath.Join(t.TempDir(), "test.db"),
		AIProvider: "fake",
		AIModel:    "fake-model",
	}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })

	st := store.New(driver, p, nil)
	require.NoError(t, st.Migrate(context.Background()))

	registry := providers.NewRegistry(map[string]string{"fake": "key"})
	return NewService(p, st, registry)
}

func TestChatPersistsTurn(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Chat(ctx, 1, "what is the weather")
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)
	require.NotZero(t, resp.ChatID)

	chats, err := svc.GetChats(ctx, 1)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Equal(t, "what is the weather", chats[0].Title)

	msgs, err := svc.GetMessages(ctx, 1, resp.ChatID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, store.RoleUser, msgs[0].Role)
	require.Equal(t, store.RoleAssistant, msgs[1].Role)
}

func TestChatTitleTruncation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	long := strings.Repeat("a", 60)
	resp, err := svc.Chat(ctx, 1, long)
	require.NoError(t, err)

	chats, err := svc.GetChats(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("a", 40)+"...", chats[0].Title)
	_ = resp
}

func TestChatHistoryWindow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := svc.Chat(ctx, 1, "turn")
		require.NoError(t, err)
	}

	req := fake.last()
	require.NotNil(t, req)
	require.Len(t, req.History, 4)
	require.Equal(t, "user", req.History[0].Role)
	require.Equal(t, "assistant", req.History[1].Role)
	require.Equal(t, "turn", req.Prompt)
}

func TestChatRetriesTimeout(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	fake.failures = []error{providers.ErrTimeout}
	resp, err := svc.Chat(ctx, 1, "hello")
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)
	require.Equal(t, 2, fake.callCount())
}

func TestChatDoesNotRetryClientError(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	fake.failures = []error{&providers.ProviderError{Provider: "fake", Status: 401, Body: "bad key"}}
	_, err := svc.Chat(ctx, 1, "hello")
	require.Error(t, err)
	require.Equal(t, 1, fake.callCount())
}

func TestChatSummaryRefresh(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	var chatID int32
	for i := 0; i < 3; i++ {
		resp, err := svc.Chat(ctx, 1, "turn")
		require.NoError(t, err)
		chatID = resp.ChatID
	}

	// The sixth message triggers an async summary refresh.
	require.Eventually(t, func() bool {
		chat, err := svc.store.GetChat(ctx, 1, chatID)
		return err == nil && chat.Summary != ""
	}, 3*time.Second, 50*time.Millisecond)
}

func TestRunJobUnknown(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.RunJob(context.Background(), "bogus", nil, nil)
	require.Error(t, err)
}

func TestRunJobComposesPrompt(t *testing.T) {
	svc := newTestService(t)

	reply, err := svc.RunJob(context.Background(), "summarize", map[string]any{"text": "long article"}, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", reply.Content)

	req := fake.last()
	require.Contains(t, req.Prompt, "long article")
	require.NotEmpty(t, req.System)
	require.Equal(t, "fake-model", req.Model)
}

func TestExportChat(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Chat(ctx, 1, "explain goroutines")
	require.NoError(t, err)

	fake.reply = "## Notes"
	export, err := svc.ExportChat(ctx, 1, resp.ChatID)
	require.NoError(t, err)
	require.Contains(t, export.Raw, "**User:**")
	require.Contains(t, export.Raw, "**Assistant:**")
	require.Contains(t, export.Raw, "---")
	require.Contains(t, export.Raw, "# explain goroutines")
	require.Equal(t, "## Notes", export.Notes)
	require.Empty(t, export.RawURL)
}

func TestUpdateSettingsValidatesProvider(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpdateSettings(ctx, 1, "gemini", "gemini-2.5-flash")
	require.ErrorIs(t, err, providers.ErrNotConfigured)

	settings, err := svc.UpdateSettings(ctx, 1, "fake", "fake-model")
	require.NoError(t, err)
	require.Equal(t, "fake", settings.Provider)
}

func TestClearChatResetsSummary(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Chat(ctx, 1, "hello")
	require.NoError(t, err)

	require.NoError(t, svc.ClearChat(ctx, 1, resp.ChatID))
	msgs, err := svc.GetMessages(ctx, 1, resp.ChatID)
	require.NoError(t, err)
	require.Empty(t, msgs)
}
