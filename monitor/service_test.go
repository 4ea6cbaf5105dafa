package monitor

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/channelwatch/internal/profile"
	"github.com/hrygo/channelwatch/store"
	"github.com/hrygo/channelwatch/store/db/sqlite"
	"github.com/hrygo/channelwatch/telegram"
)

type sentMessage struct {
	Ref  string
	Text string
}

type fakeGateway struct {
	mu       sync.Mutex
	entities map[string]*telegram.Entity
	handlers map[int]telegram.Handler
	next     int
	sent     []sentMessage
}

func newFakeGateway(entities ...*telegram.Entity) *fakeGateway {
	g := &fakeGateway{
		entities: make(map[string]*telegram.Entity),
		handlers: make(map[int]telegram.Handler),
	}
	for _, e := range entities {
		if e.Username != "" {
			g.entities[telegram.NormalizeRef(e.Username)] = e
		}
	}
	return g
}

func (g *fakeGateway) ResolveEntity(_ context.Context, ref string) (*telegram.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entities[telegram.NormalizeRef(ref)], nil
}

func (g *fakeGateway) AddMessageHandler(h telegram.Handler) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	g.handlers[g.next] = h
	return g.next
}

func (g *fakeGateway) RemoveMessageHandler(token int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.handlers, token)
}

func (g *fakeGateway) SendMessage(_ context.Context, ref, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sentMessage{Ref: ref, Text: text})
	return nil
}

func (g *fakeGateway) deliver(msg *telegram.Incoming) {
	g.mu.Lock()
	handlers := make([]telegram.Handler, 0, len(g.handlers))
	for _, h := range g.handlers {
		handlers = append(handlers, h)
	}
	g.mu.Unlock()
	for _, h := range handlers {
		h(context.Background(), msg)
	}
}

func (g *fakeGateway) sentMessages() []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]sentMessage, len(g.sent))
	copy(out, g.sent)
	return out
}

func newTestStore(t *testing.T, p *profile.Profile) *store.Store {
	t.Helper()
	p.Driver = "sqlite"
	p.DSN = filepath.Join(t.TempDir(), "test.db")
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	st := store.New(driver, p, nil)
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testProfile() *profile.Profile {
	return &profile.Profile{
		SourceChannels: []string{"@technews"},
		TargetChannel:  "@alerts",
		APIKeys:        []profile.APIKey{{Key: "k1", UserID: 1}},
	}
}

func incoming(text string) *telegram.Incoming {
	return &telegram.Incoming{
		ChatID:       123456,
		ChatUsername: "technews",
		SenderID:     42,
		Text:         text,
		Time:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPipelineForwardHistoryEmit(t *testing.T) {
	p := testProfile()
	st := newTestStore(t, p)
	gw := newFakeGateway(&telegram.Entity{ID: 123456, Username: "technews", Title: "Tech News", Channel: true})
	svc := NewService(p, st, gw)

	require.NoError(t, svc.Start(context.Background()))
	sub := svc.Subscribe(1)

	gw.deliver(incoming("  breaking:\n\n  new   release  "))

	sent := gw.sentMessages()
	require.Len(t, sent, 1)
	require.Equal(t, "@alerts", sent[0].Ref)
	require.Equal(t, "🔔【New Alert】\n\nbreaking: new release\n\n— Source: technews", sent[0].Text)

	history, err := svc.GetHistory(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "technews", history[0].Source)
	require.Equal(t, int64(123456), history[0].SourceID)

	select {
	case ev := <-sub.C:
		require.Equal(t, "technews", ev.Source)
		require.Equal(t, "2026-03-01T12:00:00Z", ev.Timestamp)
		require.NotEmpty(t, ev.ID)
	default:
		t.Fatal("expected event on subscriber channel")
	}
}

func TestUnmatchedSourceDropped(t *testing.T) {
	p := testProfile()
	st := newTestStore(t, p)
	gw := newFakeGateway(&telegram.Entity{ID: 123456, Username: "technews", Channel: true})
	svc := NewService(p, st, gw)
	require.NoError(t, svc.Start(context.Background()))

	gw.deliver(&telegram.Incoming{ChatID: 999, ChatUsername: "otherchannel", Text: "hi", Time: time.Now()})

	require.Empty(t, gw.sentMessages())
	history, err := svc.GetHistory(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestNumericRefRequiresDialogCache(t *testing.T) {
	p := testProfile()
	p.SourceChannels = []string{"-100123456"}
	st := newTestStore(t, p)
	gw := newFakeGateway(&telegram.Entity{ID: 123456, Username: "technews", Channel: true})
	svc := NewService(p, st, gw)
	// Numeric refs resolve only through the dialog cache, which this fake
	// does not populate, so zero sources resolve.
	require.ErrorIs(t, svc.Start(context.Background()), ErrNoSourcesResolved)
}

func TestKeywordSentinelDisablesGate(t *testing.T) {
	p := testProfile()
	p.Keywords = []string{"none"}
	st := newTestStore(t, p)
	gw := newFakeGateway(&telegram.Entity{ID: 123456, Username: "technews", Channel: true})
	svc := NewService(p, st, gw)
	require.NoError(t, svc.Start(context.Background()))

	gw.deliver(incoming("anything at all"))
	require.Len(t, gw.sentMessages(), 1)
}

func TestGlobalKeywordGate(t *testing.T) {
	p := testProfile()
	p.Keywords = []string{"crypto"}
	st := newTestStore(t, p)
	gw := newFakeGateway(&telegram.Entity{ID: 123456, Username: "technews", Channel: true})
	svc := NewService(p, st, gw)
	require.NoError(t, svc.Start(context.Background()))

	gw.deliver(incoming("nothing relevant"))
	require.Empty(t, gw.sentMessages())

	gw.deliver(incoming("big CRYPTO move"))
	require.Len(t, gw.sentMessages(), 1)
}

func TestFromUsersGate(t *testing.T) {
	p := testProfile()
	p.FromUsers = []string{"alice"}
	st := newTestStore(t, p)
	gw := newFakeGateway(&telegram.Entity{ID: 123456, Username: "technews", Channel: true})
	svc := NewService(p, st, gw)
	require.NoError(t, svc.Start(context.Background()))

	msg := incoming("hello")
	msg.SenderUsername = "bob"
	gw.deliver(msg)
	require.Empty(t, gw.sentMessages())

	msg = incoming("hello")
	msg.SenderUsername = "Alice"
	gw.deliver(msg)
	require.Len(t, gw.sentMessages(), 1)
}

func TestPerUserPredicateGatesHistory(t *testing.T) {
	p := testProfile()
	p.APIKeys = []profile.APIKey{{Key: "k1", UserID: 1}, {Key: "k2", UserID: 2}}
	st := newTestStore(t, p)
	gw := newFakeGateway(&telegram.Entity{ID: 123456, Username: "technews", Channel: true})
	svc := NewService(p, st, gw)
	require.NoError(t, svc.Start(context.Background()))

	// User 2 only wants another channel.
	_, err := svc.UpdateFilters(context.Background(), 2, &store.MonitorFilters{
		Enabled:  true,
		Channels: []string{"somewhere-else"},
	})
	require.NoError(t, err)

	gw.deliver(incoming("hello"))

	h1, err := svc.GetHistory(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, h1, 1)

	h2, err := svc.GetHistory(context.Background(), 2, 10)
	require.NoError(t, err)
	require.Empty(t, h2)
}

func TestForwardingToggleAndDisabledSource(t *testing.T) {
	p := testProfile()
	st := newTestStore(t, p)
	gw := newFakeGateway(&telegram.Entity{ID: 123456, Username: "technews", Channel: true})
	svc := NewService(p, st, gw)
	require.NoError(t, svc.Start(context.Background()))

	svc.SetForwarding(false)
	gw.deliver(incoming("one"))
	require.Empty(t, gw.sentMessages())

	// History still written while forwarding is off.
	history, err := svc.GetHistory(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)

	svc.SetForwarding(true)
	require.NoError(t, svc.DisableSource("@technews"))
	gw.deliver(incoming("two"))
	require.Empty(t, gw.sentMessages())

	require.NoError(t, svc.EnableSource("technews"))
	gw.deliver(incoming("three"))
	require.Len(t, gw.sentMessages(), 1)
}

func TestTargetOverride(t *testing.T) {
	p := testProfile()
	st := newTestStore(t, p)
	gw := newFakeGateway(&telegram.Entity{ID: 123456, Username: "technews", Channel: true})
	svc := NewService(p, st, gw)
	require.NoError(t, svc.Start(context.Background()))

	require.NoError(t, svc.SetTargetChannel("@override"))
	gw.deliver(incoming("one"))
	sent := gw.sentMessages()
	require.Equal(t, "@override", sent[0].Ref)

	svc.ResetTargetChannel()
	gw.deliver(incoming("two"))
	sent = gw.sentMessages()
	require.Equal(t, "@alerts", sent[1].Ref)
}

func TestStartRequiresResolvedSource(t *testing.T) {
	p := testProfile()
	st := newTestStore(t, p)
	gw := newFakeGateway() // nothing resolves
	svc := NewService(p, st, gw)
	require.ErrorIs(t, svc.Start(context.Background()), ErrNoSourcesResolved)
	require.False(t, svc.IsRunning())
}

func TestDeleteLastSourceStopsMonitor(t *testing.T) {
	p := testProfile()
	st := newTestStore(t, p)
	gw := newFakeGateway(&telegram.Entity{ID: 123456, Username: "technews", Channel: true})
	svc := NewService(p, st, gw)
	require.NoError(t, svc.Start(context.Background()))
	require.True(t, svc.IsRunning())

	require.NoError(t, svc.DeleteSource("@technews"))
	require.False(t, svc.IsRunning())
}

func TestMatchesFilters(t *testing.T) {
	ev := &Event{Text: "Breaking crypto news", Source: "technews", SourceID: 123456}

	require.True(t, MatchesFilters(store.DefaultMonitorFilters(), ev))
	require.False(t, MatchesFilters(&store.MonitorFilters{Enabled: false}, ev))

	require.True(t, MatchesFilters(&store.MonitorFilters{Enabled: true, Channels: []string{"technews"}}, ev))
	require.True(t, MatchesFilters(&store.MonitorFilters{Enabled: true, Channels: []string{"@technews"}}, ev))
	require.True(t, MatchesFilters(&store.MonitorFilters{Enabled: true, Channels: []string{"123456"}}, ev))
	require.False(t, MatchesFilters(&store.MonitorFilters{Enabled: true, Channels: []string{"other"}}, ev))

	require.True(t, MatchesFilters(&store.MonitorFilters{Enabled: true, Keywords: []string{"CRYPTO"}}, ev))
	require.False(t, MatchesFilters(&store.MonitorFilters{Enabled: true, Keywords: []string{"sports"}}, ev))

	// users entries never gate delivery.
	require.True(t, MatchesFilters(&store.MonitorFilters{Enabled: true, Users: []string{"nobody"}}, ev))
}

func TestCollapseWhitespace(t *testing.T) {
	require.Equal(t, "a b c", collapseWhitespace("  a\n\n b\t c  "))
	require.Equal(t, "", collapseWhitespace("   \n\t "))
}

func TestBroadcasterDropsSlowSubscriber(t *testing.T) {
	b := NewBroadcaster()
	slow := b.Subscribe(1)
	fast := b.Subscribe(2)

	for i := 0; i < subscriberBuffer+1; i++ {
		ev := &Event{ID: "e"}
		b.Publish(ev)
		// Drain the fast subscriber so it never fills.
		<-fast.C
	}

	require.Equal(t, 1, b.Count())
	_, open := <-slow.C
	// Buffered events drain first; the channel must be closed after them.
	for open {
		_, open = <-slow.C
	}
	require.False(t, open)
}
