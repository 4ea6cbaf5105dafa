// Package ws is the realtime fan-out surface: one websocket per client,
// events gated by the same per-user predicate as history.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/hrygo/channelwatch/internal/profile"
	"github.com/hrygo/channelwatch/monitor"
	"github.com/hrygo/channelwatch/store"
)

// Application close codes.
const (
	CloseMissingToken = 4001
	CloseInvalidToken = 4003
	CloseInternal     = 4000
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 32 * 1024
	sendBuffer     = 32
)

// Frame is the wire envelope in both directions.
type Frame struct {
	Type    string                `json:"type"`
	UserID  int32                 `json:"userId,omitempty"`
	Data    *monitor.Event        `json:"data,omitempty"`
	Filters *store.MonitorFilters `json:"filters,omitempty"`
	Message string                `json:"message,omitempty"`
}

// ClientGauge tracks the connected client count.
type ClientGauge interface {
	SetWSClients(n int)
}

// Hub upgrades connections and owns the client set.
type Hub struct {
	profile *profile.Profile
	monitor *monitor.Service
	gauge   ClientGauge

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub(p *profile.Profile, mon *monitor.Service) *Hub {
	return &Hub{
		profile: p,
		monitor: mon,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// WithGauge attaches the client-count gauge.
func (h *Hub) WithGauge(g ClientGauge) *Hub {
	h.gauge = g
	return h
}

// RegisterRoutes attaches the websocket endpoint.
func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/monitor", h.handle)
}

// Count returns the connected client count.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client with 1001; called before the monitor stops.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.shutdown(websocket.CloseGoingAway, "server shutting down")
	}
}

// handle authenticates via ?token= and runs the connection. Authentication
// failures close with the application codes after the upgrade so browser
// clients can observe them.
func (h *Hub) handle(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}

	token := c.QueryParam("token")
	if token == "" {
		closeWith(conn, CloseMissingToken, "missing token")
		return nil
	}
	userID, ok := h.profile.LookupAPIKey(token)
	if !ok {
		closeWith(conn, CloseInvalidToken, "invalid token")
		return nil
	}

	filters, err := h.monitor.GetFilters(c.Request().Context(), userID)
	if err != nil {
		closeWith(conn, CloseInternal, "internal error")
		return nil
	}

	cl := &client{
		hub:    h,
		conn:   conn,
		userID: userID,
		sub:    h.monitor.Subscribe(userID),
		send:   make(chan *Frame, sendBuffer),
	}
	h.add(cl)

	cl.send <- &Frame{Type: "connected", UserID: userID, Filters: filters}
	go cl.writePump()
	go cl.readPump()
	return nil
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	if h.gauge != nil {
		h.gauge.SetWSClients(n)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if h.gauge != nil {
		h.gauge.SetWSClients(n)
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID int32
	sub    *monitor.Subscriber
	send   chan *Frame

	closeOnce sync.Once
}

func (c *client) shutdown(code int, reason string) {
	c.closeOnce.Do(func() {
		c.hub.remove(c)
		c.sub.Close()
		closeWith(c.conn, code, reason)
	})
}

// readPump handles inbound frames until the connection drops.
func (c *client) readPump() {
	defer c.shutdown(websocket.CloseNormalClosure, "")

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.reply(&Frame{Type: "error", Message: "malformed frame"})
			continue
		}
		c.handleFrame(&frame)
	}
}

func (c *client) handleFrame(frame *Frame) {
	switch frame.Type {
	case "ping":
		c.reply(&Frame{Type: "pong"})
	case "update_filters":
		if frame.Filters == nil {
			c.reply(&Frame{Type: "error", Message: "filters required"})
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		updated, err := c.hub.monitor.UpdateFilters(ctx, c.userID, frame.Filters)
		if err != nil {
			slog.Warn("filter update failed", slog.Int("userID", int(c.userID)), slog.Any("err", err))
			c.reply(&Frame{Type: "error", Message: "failed to update filters"})
			return
		}
		c.reply(&Frame{Type: "filters_updated", Filters: updated})
	default:
		c.reply(&Frame{Type: "error", Message: "unknown frame type"})
	}
}

// reply queues a control frame without ever blocking the read loop.
func (c *client) reply(frame *Frame) {
	select {
	case c.send <- frame:
	default:
	}
}

// writePump is the only writer on the connection. It interleaves control
// replies, predicate-gated events, and protocol pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown(websocket.CloseNormalClosure, "")
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			if !c.write(frame) {
				return
			}
		case ev, ok := <-c.sub.C:
			if !ok {
				return
			}
			if !c.deliver(ev) {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliver applies the per-user predicate before writing the event.
func (c *client) deliver(ev *monitor.Event) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	filters, err := c.hub.monitor.GetFilters(ctx, c.userID)
	cancel()
	if err != nil {
		slog.Warn("filter load failed for delivery", slog.Int("userID", int(c.userID)), slog.Any("err", err))
		return true
	}
	if !monitor.MatchesFilters(filters, ev) {
		return true
	}
	return c.write(&Frame{Type: "message", Data: ev})
}

func (c *client) write(frame *Frame) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(frame) == nil
}
