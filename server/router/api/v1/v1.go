// Package v1 is the REST surface. Every /api route sits behind bearer
// authentication and per-key rate limiting.
package v1

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/hrygo/channelwatch/ai"
	"github.com/hrygo/channelwatch/internal/profile"
	"github.com/hrygo/channelwatch/monitor"
	"github.com/hrygo/channelwatch/store"
)

// ClientCounter reports connected websocket clients for status responses.
type ClientCounter interface {
	Count() int
}

// APIV1Service bundles the domain services behind the REST routes. AI and
// Monitor may be nil when their backing configuration is absent; their routes
// then answer 503.
type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store
	AI      *ai.Service
	Monitor *monitor.Service
	Clients ClientCounter

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

func NewAPIV1Service(p *profile.Profile, st *store.Store) *APIV1Service {
	return &APIV1Service{
		Profile:  p,
		Store:    st,
		limiters: make(map[string]*rate.Limiter),
	}
}

// RegisterRoutes attaches /health and the authenticated /api group.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.Health)

	api := e.Group("/api", s.AuthMiddleware, s.RateLimitMiddleware)
	api.GET("/status", s.GetStatus)

	api.GET("/ai/settings", s.GetAISettings)
	api.PUT("/ai/settings", s.UpdateAISettings)
	api.GET("/ai/providers", s.ListProviders)
	api.GET("/ai/models", s.GetModels)
	api.POST("/ai/chat", s.Chat)
	api.POST("/ai/chat/stream", s.ChatStream)
	api.GET("/ai/chats", s.GetChats)
	api.POST("/ai/chats", s.CreateChat)
	api.GET("/ai/chats/:id", s.GetChat)
	api.PUT("/ai/chats/:id", s.SwitchChat)
	api.DELETE("/ai/chats/:id", s.DeleteChat)
	api.DELETE("/ai/chats/:id/messages", s.ClearChat)
	api.POST("/ai/chats/:id/export", s.ExportChat)
	api.POST("/ai/jobs/:id", s.RunJob)
	for alias, jobID := range jobAliases {
		api.POST("/ai/"+alias, s.jobAliasHandler(jobID))
	}

	api.GET("/monitor/status", s.MonitorStatus)
	api.POST("/monitor/start", s.MonitorStart)
	api.POST("/monitor/stop", s.MonitorStop)
	api.GET("/monitor/sources", s.GetSources)
	api.POST("/monitor/sources", s.AddSource)
	api.DELETE("/monitor/sources", s.DeleteSource)
	api.POST("/monitor/sources/:id/enable", s.EnableSource)
	api.POST("/monitor/sources/:id/disable", s.DisableSource)
	api.GET("/monitor/filters", s.GetFilters)
	api.PUT("/monitor/filters", s.UpdateFilters)
	api.GET("/monitor/history", s.GetHistory)
	api.PUT("/monitor/target", s.SetTarget)
	api.DELETE("/monitor/target", s.ResetTarget)
	api.PUT("/monitor/forwarding", s.SetForwarding)
	api.GET("/monitor/feed", s.GetFeed)

	api.GET("/rss/subscriptions", s.GetSubscriptions)
	api.POST("/rss/subscriptions", s.AddSubscription)
	api.DELETE("/rss/subscriptions", s.DeleteSubscription)
	api.POST("/rss/validate", s.ValidateFeed)
}

// jobAliases maps route aliases onto catalog job ids.
var jobAliases = map[string]string{
	"analyze":           "analysis",
	"summarize":         "summarize",
	"translate":         "translate",
	"language-learning": "language_learning",
	"research":          "research",
	"categorize":        "categorize",
	"extract":           "extract",
	"sentiment":         "sentiment",
	"filter-match":      "smart_filter_match",
	"digest":            "digest",
	"rank":              "rank_relevance",
	"tool-plan":         "coding_tool_use",
	"function-call":     "function_call",
	"skill-call":        "claude_skill",
}

// Health is the only unauthenticated JSON route.
func (s *APIV1Service) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  s.serviceFlags(),
	})
}

// GetStatus reports the caller's identity and service availability.
func (s *APIV1Service) GetStatus(c echo.Context) error {
	clients := 0
	if s.Clients != nil {
		clients = s.Clients.Count()
	}
	return c.JSON(http.StatusOK, map[string]any{
		"userId":    userID(c),
		"services":  s.serviceFlags(),
		"wsClients": clients,
	})
}

func (s *APIV1Service) serviceFlags() map[string]bool {
	return map[string]bool{
		"ai":      s.AI != nil && s.AI.IsAvailable(),
		"rss":     s.Store != nil,
		"monitor": s.Monitor != nil && s.Monitor.IsRunning(),
	}
}

// errJSON renders the uniform error envelope.
func errJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

func (s *APIV1Service) requireAI(c echo.Context) error {
	if s.AI == nil {
		return errJSON(c, http.StatusServiceUnavailable, "ai service unavailable")
	}
	return nil
}

func (s *APIV1Service) requireStore(c echo.Context) error {
	if s.Store == nil {
		return errJSON(c, http.StatusServiceUnavailable, "storage unavailable")
	}
	return nil
}

func (s *APIV1Service) requireMonitor(c echo.Context) error {
	if s.Monitor == nil {
		return errJSON(c, http.StatusServiceUnavailable, "monitor service unavailable")
	}
	return nil
}
