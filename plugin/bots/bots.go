// Package bots exposes narrow facades over the monitor and AI services for
// bot-style frontends. A frontend gets exactly the operations a chat command
// surface needs, nothing else.
package bots

import (
	"context"

	"github.com/hrygo/channelwatch/ai"
	"github.com/hrygo/channelwatch/ai/providers"
	"github.com/hrygo/channelwatch/monitor"
	"github.com/hrygo/channelwatch/store"
)

// MonitorController is the slice of monitor.Service the facade delegates to.
type MonitorController interface {
	GetStatus() *monitor.Status
	GetSources() []*monitor.Source
	AddSource(ctx context.Context, ref string) error
	DeleteSource(ref string) error
	EnableSource(ref string) error
	DisableSource(ref string) error
	SetTargetChannel(ref string) error
	ResetTargetChannel()
	SetForwarding(enabled bool)
	GetFilters(ctx context.Context, userID int32) (*store.MonitorFilters, error)
	GetHistory(ctx context.Context, userID int32, limit int) ([]*store.MonitorHistory, error)
	Start(ctx context.Context) error
	Stop() error
}

// MonitorFacade forwards monitor commands on behalf of one authenticated user.
type MonitorFacade struct {
	svc    MonitorController
	userID int32
}

func NewMonitorFacade(svc MonitorController, userID int32) *MonitorFacade {
	return &MonitorFacade{svc: svc, userID: userID}
}

func (f *MonitorFacade) GetStatus() *monitor.Status      { return f.svc.GetStatus() }
func (f *MonitorFacade) GetSources() []*monitor.Source   { return f.svc.GetSources() }
func (f *MonitorFacade) Start(ctx context.Context) error { return f.svc.Start(ctx) }
func (f *MonitorFacade) Stop() error                     { return f.svc.Stop() }

func (f *MonitorFacade) AddSource(ctx context.Context, ref string) error {
	return f.svc.AddSource(ctx, ref)
}

func (f *MonitorFacade) DeleteSource(ref string) error  { return f.svc.DeleteSource(ref) }
func (f *MonitorFacade) EnableSource(ref string) error  { return f.svc.EnableSource(ref) }
func (f *MonitorFacade) DisableSource(ref string) error { return f.svc.DisableSource(ref) }

func (f *MonitorFacade) SetTargetChannel(ref string) error { return f.svc.SetTargetChannel(ref) }
func (f *MonitorFacade) ResetTargetChannel()               { f.svc.ResetTargetChannel() }
func (f *MonitorFacade) SetForwarding(enabled bool)        { f.svc.SetForwarding(enabled) }

func (f *MonitorFacade) GetFilters(ctx context.Context) (*store.MonitorFilters, error) {
	return f.svc.GetFilters(ctx, f.userID)
}

func (f *MonitorFacade) GetHistory(ctx context.Context, limit int) ([]*store.MonitorHistory, error) {
	return f.svc.GetHistory(ctx, f.userID, limit)
}

// AIController is the slice of ai.Service the facade delegates to.
type AIController interface {
	Chat(ctx context.Context, userID int32, message string) (*ai.Response, error)
	GetSettings(ctx context.Context, userID int32) (*store.AISettings, error)
	UpdateSettings(ctx context.Context, userID int32, providerID, model string) (*store.AISettings, error)
	ListProviders() []providers.Info
	GetModels(ctx context.Context, providerID string) ([]providers.Model, error)
	RunJob(ctx context.Context, jobID string, payload map[string]any, opts *ai.JobOptions) (*providers.Reply, error)
	ExportChat(ctx context.Context, userID, chatID int32) (*ai.Export, error)
	GetChats(ctx context.Context, userID int32) ([]*store.AIChat, error)
	CreateChat(ctx context.Context, userID int32) (*store.AIChat, error)
	SwitchChat(ctx context.Context, userID, chatID int32) error
	ClearChat(ctx context.Context, userID, chatID int32) error
}

// AIFacade forwards AI commands on behalf of one authenticated user.
type AIFacade struct {
	svc    AIController
	userID int32
}

func NewAIFacade(svc AIController, userID int32) *AIFacade {
	return &AIFacade{svc: svc, userID: userID}
}

func (f *AIFacade) Chat(ctx context.Context, message string) (*ai.Response, error) {
	return f.svc.Chat(ctx, f.userID, message)
}

func (f *AIFacade) GetSettings(ctx context.Context) (*store.AISettings, error) {
	return f.svc.GetSettings(ctx, f.userID)
}

func (f *AIFacade) UpdateSettings(ctx context.Context, providerID, model string) (*store.AISettings, error) {
	return f.svc.UpdateSettings(ctx, f.userID, providerID, model)
}

func (f *AIFacade) ListProviders() []providers.Info { return f.svc.ListProviders() }

func (f *AIFacade) GetModels(ctx context.Context, providerID string) ([]providers.Model, error) {
	return f.svc.GetModels(ctx, providerID)
}

func (f *AIFacade) RunJob(ctx context.Context, jobID string, payload map[string]any, opts *ai.JobOptions) (*providers.Reply, error) {
	return f.svc.RunJob(ctx, jobID, payload, opts)
}

func (f *AIFacade) ExportChat(ctx context.Context, chatID int32) (*ai.Export, error) {
	return f.svc.ExportChat(ctx, f.userID, chatID)
}

func (f *AIFacade) GetChats(ctx context.Context) ([]*store.AIChat, error) {
	return f.svc.GetChats(ctx, f.userID)
}

func (f *AIFacade) CreateChat(ctx context.Context) (*store.AIChat, error) {
	return f.svc.CreateChat(ctx, f.userID)
}

func (f *AIFacade) SwitchChat(ctx context.Context, chatID int32) error {
	return f.svc.SwitchChat(ctx, f.userID, chatID)
}

func (f *AIFacade) ClearChat(ctx context.Context, chatID int32) error {
	return f.svc.ClearChat(ctx, f.userID, chatID)
}
