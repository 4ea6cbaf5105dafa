package bots

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/channelwatch/ai"
	"github.com/hrygo/channelwatch/ai/providers"
	"github.com/hrygo/channelwatch/monitor"
	"github.com/hrygo/channelwatch/store"
)

type fakeMonitor struct {
	calls   []string
	lastRef string
}

func (m *fakeMonitor) record(name string) { m.calls = append(m.calls, name) }

func (m *fakeMonitor) GetStatus() *monitor.Status {
	m.record("GetStatus")
	return &monitor.Status{Running: true}
}

func (m *fakeMonitor) GetSources() []*monitor.Source {
	m.record("GetSources")
	return []*monitor.Source{{Ref: "@technews"}}
}

func (m *fakeMonitor) AddSource(_ context.Context, ref string) error {
	m.record("AddSource")
	m.lastRef = ref
	return nil
}

func (m *fakeMonitor) DeleteSource(ref string) error  { m.record("DeleteSource"); m.lastRef = ref; return nil }
func (m *fakeMonitor) EnableSource(ref string) error  { m.record("EnableSource"); m.lastRef = ref; return nil }
func (m *fakeMonitor) DisableSource(ref string) error { m.record("DisableSource"); m.lastRef = ref; return nil }

func (m *fakeMonitor) SetTargetChannel(ref string) error {
	m.record("SetTargetChannel")
	m.lastRef = ref
	return nil
}

func (m *fakeMonitor) ResetTargetChannel()        { m.record("ResetTargetChannel") }
func (m *fakeMonitor) SetForwarding(enabled bool) { m.record("SetForwarding") }

func (m *fakeMonitor) GetFilters(_ context.Context, userID int32) (*store.MonitorFilters, error) {
	m.record("GetFilters")
	return &store.MonitorFilters{Enabled: true}, nil
}

func (m *fakeMonitor) GetHistory(_ context.Context, userID int32, limit int) ([]*store.MonitorHistory, error) {
	m.record("GetHistory")
	return []*store.MonitorHistory{{UserID: userID}}, nil
}

func (m *fakeMonitor) Start(context.Context) error { m.record("Start"); return nil }
func (m *fakeMonitor) Stop() error                 { m.record("Stop"); return nil }

func TestMonitorFacadeDelegates(t *testing.T) {
	svc := &fakeMonitor{}
	f := NewMonitorFacade(svc, 7)
	ctx := context.Background()

	require.True(t, f.GetStatus().Running)
	require.Len(t, f.GetSources(), 1)
	require.NoError(t, f.Start(ctx))
	require.NoError(t, f.Stop())
	require.NoError(t, f.AddSource(ctx, "@golang"))
	require.Equal(t, "@golang", svc.lastRef)
	require.NoError(t, f.DeleteSource("@golang"))
	require.NoError(t, f.EnableSource("@golang"))
	require.NoError(t, f.DisableSource("@golang"))
	require.NoError(t, f.SetTargetChannel("@alerts"))
	f.ResetTargetChannel()
	f.SetForwarding(false)

	filters, err := f.GetFilters(ctx)
	require.NoError(t, err)
	require.True(t, filters.Enabled)

	history, err := f.GetHistory(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, int32(7), history[0].UserID)

	require.Equal(t, []string{
		"GetStatus", "GetSources", "Start", "Stop", "AddSource",
		"DeleteSource", "EnableSource", "DisableSource",
		"SetTargetChannel", "ResetTargetChannel", "SetForwarding",
		"GetFilters", "GetHistory",
	}, svc.calls)
}

type fakeAI struct {
	calls      []string
	lastUserID int32
	lastChatID int32
	lastJob    string
}

func (a *fakeAI) record(name string) { a.calls = append(a.calls, name) }

func (a *fakeAI) Chat(_ context.Context, userID int32, message string) (*ai.Response, error) {
	a.record("Chat")
	a.lastUserID = userID
	return &ai.Response{Content: "echo: " + message}, nil
}

func (a *fakeAI) GetSettings(_ context.Context, userID int32) (*store.AISettings, error) {
	a.record("GetSettings")
	a.lastUserID = userID
	return &store.AISettings{}, nil
}

func (a *fakeAI) UpdateSettings(_ context.Context, userID int32, providerID, model string) (*store.AISettings, error) {
	a.record("UpdateSettings")
	a.lastUserID = userID
	return &store.AISettings{Provider: providerID, Model: model}, nil
}

func (a *fakeAI) ListProviders() []providers.Info {
	a.record("ListProviders")
	return []providers.Info{{ID: "groq", Configured: true}}
}

func (a *fakeAI) GetModels(_ context.Context, providerID string) ([]providers.Model, error) {
	a.record("GetModels")
	return []providers.Model{{ID: "m1"}}, nil
}

func (a *fakeAI) RunJob(_ context.Context, jobID string, payload map[string]any, opts *ai.JobOptions) (*providers.Reply, error) {
	a.record("RunJob")
	a.lastJob = jobID
	return &providers.Reply{Content: "done"}, nil
}

func (a *fakeAI) ExportChat(_ context.Context, userID, chatID int32) (*ai.Export, error) {
	a.record("ExportChat")
	a.lastUserID, a.lastChatID = userID, chatID
	return &ai.Export{Title: "Chat"}, nil
}

func (a *fakeAI) GetChats(_ context.Context, userID int32) ([]*store.AIChat, error) {
	a.record("GetChats")
	a.lastUserID = userID
	return nil, nil
}

func (a *fakeAI) CreateChat(_ context.Context, userID int32) (*store.AIChat, error) {
	a.record("CreateChat")
	a.lastUserID = userID
	return &store.AIChat{UserID: userID}, nil
}

func (a *fakeAI) SwitchChat(_ context.Context, userID, chatID int32) error {
	a.record("SwitchChat")
	a.lastUserID, a.lastChatID = userID, chatID
	return nil
}

func (a *fakeAI) ClearChat(_ context.Context, userID, chatID int32) error {
	a.record("ClearChat")
	a.lastUserID, a.lastChatID = userID, chatID
	return nil
}

func TestAIFacadeBindsUser(t *testing.T) {
	svc := &fakeAI{}
	f := NewAIFacade(svc, 42)
	ctx := context.Background()

	resp, err := f.Chat(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, "echo: hello", resp.Content)
	require.Equal(t, int32(42), svc.lastUserID)

	_, err = f.GetSettings(ctx)
	require.NoError(t, err)

	settings, err := f.UpdateSettings(ctx, "groq", "llama-3.3-70b-versatile")
	require.NoError(t, err)
	require.Equal(t, "groq", settings.Provider)

	require.Len(t, f.ListProviders(), 1)

	models, err := f.GetModels(ctx, "groq")
	require.NoError(t, err)
	require.Len(t, models, 1)

	reply, err := f.RunJob(ctx, "summarize", map[string]any{"text": "x"}, nil)
	require.NoError(t, err)
	require.Equal(t, "done", reply.Content)
	require.Equal(t, "summarize", svc.lastJob)

	export, err := f.ExportChat(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, "Chat", export.Title)
	require.Equal(t, int32(9), svc.lastChatID)

	_, err = f.GetChats(ctx)
	require.NoError(t, err)

	chat, err := f.CreateChat(ctx)
	require.NoError(t, err)
	require.Equal(t, int32(42), chat.UserID)

	require.NoError(t, f.SwitchChat(ctx, 9))
	require.NoError(t, f.ClearChat(ctx, 9))
	require.Equal(t, int32(9), svc.lastChatID)
}
