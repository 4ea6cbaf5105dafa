// Package server bootstraps the HTTP surface: REST, websocket, health, and
// metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/channelwatch/ai"
	"github.com/hrygo/channelwatch/internal/metrics"
	"github.com/hrygo/channelwatch/internal/profile"
	"github.com/hrygo/channelwatch/monitor"
	apiv1 "github.com/hrygo/channelwatch/server/router/api/v1"
	"github.com/hrygo/channelwatch/server/router/ws"
	"github.com/hrygo/channelwatch/store"
)

// Server owns the echo instance and the websocket hub.
type Server struct {
	profile *profile.Profile
	echo    *echo.Echo
	hub     *ws.Hub
}

// NewServer wires routes and middleware. AI and Monitor may be nil; their
// routes degrade to 503.
func NewServer(p *profile.Profile, st *store.Store, aiService *ai.Service, mon *monitor.Service, exporter *metrics.Exporter) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.New().String() },
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
	}))
	e.Use(requestLogger())

	s := &Server{profile: p, echo: e}

	api := apiv1.NewAPIV1Service(p, st)
	api.AI = aiService
	api.Monitor = mon

	if mon != nil {
		s.hub = ws.NewHub(p, mon)
		if exporter != nil {
			s.hub.WithGauge(exporter)
		}
		s.hub.RegisterRoutes(e)
		api.Clients = s.hub
	}
	api.RegisterRoutes(e)

	if exporter != nil {
		e.GET("/metrics", echo.WrapHandler(exporter.Handler()))
	}
	return s
}

// requestLogger emits one structured line per request.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			req := c.Request()
			slog.Info("request",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", c.Response().Status),
				slog.Duration("duration", time.Since(start)),
				slog.String("requestId", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	}
}

// Start serves in a goroutine and returns once the listener is up or errors.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()
	select {
	case err := <-errCh:
		return err
	case <-time.After(200 * time.Millisecond):
		slog.Info("http server listening", slog.String("addr", addr))
		return nil
	}
}

// Shutdown closes websocket clients first, then drains HTTP.
func (s *Server) Shutdown(ctx context.Context) {
	if s.hub != nil {
		s.hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", slog.Any("err", err))
	}
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
