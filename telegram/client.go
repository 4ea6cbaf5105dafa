package telegram

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/updates"
	updhook "github.com/gotd/td/telegram/updates/hook"
	"github.com/gotd/td/tg"
	"github.com/pkg/errors"
	"golang.org/x/net/proxy"

	"github.com/hrygo/channelwatch/internal/profile"
)

// ErrNotAuthorized is returned by Connect when the session file carries no
// authorization. Run the login subcommand to create one.
var ErrNotAuthorized = errors.New("telegram session not authorized")

// connectTimeout bounds how long Connect waits for the session to come up.
const connectTimeout = 60 * time.Second

// Client owns the gotd session, the updates manager, and the send limiter.
type Client struct {
	profile    *profile.Profile
	client     *telegram.Client
	dispatcher tg.UpdateDispatcher
	manager    *updates.Manager
	limiter    *Limiter
	sender     *message.Sender

	mu        sync.RWMutex
	handlers  map[int]Handler
	nextToken int
	entities  map[string]*Entity

	ready  chan struct{}
	runErr chan error
	cancel context.CancelFunc
}

// New builds the client from profile credentials. It does not dial; call
// Connect to bring the session up.
func New(p *profile.Profile) (*Client, error) {
	if !p.IsTelegramConfigured() {
		return nil, errors.New("telegram api credentials missing")
	}

	c := &Client{
		profile:  p,
		handlers: make(map[int]Handler),
		entities: make(map[string]*Entity),
		ready:    make(chan struct{}),
		runErr:   make(chan error, 1),
		limiter:  NewLimiter(time.Duration(p.RateLimitMS) * time.Millisecond),
	}

	c.dispatcher = tg.NewUpdateDispatcher()
	c.dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		c.handleUpdate(ctx, e, u.Message)
		return nil
	})
	c.dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		c.handleUpdate(ctx, e, u.Message)
		return nil
	})

	c.manager = updates.New(updates.Config{Handler: c.dispatcher})

	options := telegram.Options{
		SessionStorage: &session.FileStorage{Path: p.TelegramSessionFile},
		UpdateHandler:  c.manager,
		Middlewares: []telegram.Middleware{
			updhook.UpdateHook(c.manager.Handle),
		},
	}
	if p.TelegramProxy != "" {
		resolver, err := proxyResolver(p.TelegramProxy)
		if err != nil {
			return nil, errors.Wrap(err, "invalid TELEGRAM_PROXY")
		}
		options.Resolver = resolver
	}

	c.client = telegram.NewClient(p.TelegramAPIID, p.TelegramAPIHash, options)
	c.sender = message.NewSender(c.client.API())
	return c, nil
}

func proxyResolver(rawURL string) (dcs.Resolver, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "socks5" {
		return nil, errors.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	var auth *proxy.Auth
	if u.User != nil {
		password, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: password}
	}
	dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
	if err != nil {
		return nil, err
	}
	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("socks5 dialer does not support context dialing")
	}
	return dcs.Plain(dcs.PlainOptions{Dial: contextDialer.DialContext}), nil
}

// Connect establishes the session, verifies authorization, syncs dialogs so
// passive channels deliver updates, and starts the updates manager. It returns
// once the session is receiving or with the startup error.
func (c *Client) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go func() {
		err := c.client.Run(runCtx, func(ctx context.Context) error {
			status, err := c.client.Auth().Status(ctx)
			if err != nil {
				return errors.Wrap(err, "failed to get auth status")
			}
			if !status.Authorized {
				return ErrNotAuthorized
			}
			self := status.User
			slog.Info("telegram session authorized",
				slog.Int64("selfID", self.ID), slog.String("username", self.Username))

			if err := c.syncDialogs(ctx); err != nil {
				// Non-fatal: resolution falls back to per-ref lookups.
				slog.Warn("dialog sync failed", slog.Any("err", err))
			}

			close(c.ready)
			return c.manager.Run(ctx, c.client.API(), self.ID, updates.AuthOptions{})
		})
		c.runErr <- err
	}()

	select {
	case <-c.ready:
		return nil
	case err := <-c.runErr:
		cancel()
		return err
	case <-time.After(connectTimeout):
		cancel()
		return errors.New("timed out connecting to telegram")
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Close stops the session and the send limiter.
func (c *Client) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.limiter.Close()
}

// AddMessageHandler registers a receive-all message listener and returns a
// token for removal.
func (c *Client) AddMessageHandler(h Handler) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextToken++
	c.handlers[c.nextToken] = h
	return c.nextToken
}

// RemoveMessageHandler deregisters the listener registered under token.
func (c *Client) RemoveMessageHandler(token int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, token)
}

// handleUpdate translates a raw message update into an Incoming and fans it
// out to registered handlers in order. Entities seen on the update refresh the
// resolver cache so passive channels stay resolvable.
func (c *Client) handleUpdate(ctx context.Context, e tg.Entities, msg tg.MessageClass) {
	m, ok := msg.(*tg.Message)
	if !ok || m.Out {
		return
	}

	incoming := &Incoming{
		MessageID: m.ID,
		Text:      m.Message,
		Time:      time.Unix(int64(m.Date), 0).UTC(),
	}

	switch peer := m.PeerID.(type) {
	case *tg.PeerChannel:
		incoming.ChatID = peer.ChannelID
		if ch, ok := e.Channels[peer.ChannelID]; ok {
			incoming.ChatUsername = ch.Username
			incoming.ChatTitle = ch.Title
			c.cacheChannel(ch)
		}
	case *tg.PeerChat:
		incoming.ChatID = peer.ChatID
		if chat, ok := e.Chats[peer.ChatID]; ok {
			incoming.ChatTitle = chat.Title
		}
	case *tg.PeerUser:
		incoming.ChatID = peer.UserID
		if user, ok := e.Users[peer.UserID]; ok {
			incoming.ChatUsername = user.Username
		}
	default:
		return
	}

	if from, ok := m.FromID.(*tg.PeerUser); ok {
		incoming.SenderID = from.UserID
		if user, ok := e.Users[from.UserID]; ok {
			incoming.SenderUsername = user.Username
		}
	} else {
		// Channel posts carry no FromID; the channel itself is the sender.
		incoming.SenderID = incoming.ChatID
		incoming.SenderUsername = incoming.ChatUsername
	}

	c.mu.RLock()
	handlers := make([]Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, incoming)
	}
}

// syncDialogs walks the dialog list so the session state knows every channel
// the account subscribes to. Without this, updates for passive channels (never
// written to) may not arrive.
func (c *Client) syncDialogs(ctx context.Context) error {
	api := c.client.API()
	request := &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      100,
	}

	total := 0
	for page := 0; page < 20; page++ {
		dialogs, err := api.MessagesGetDialogs(ctx, request)
		if err != nil {
			return errors.Wrap(err, "messages.getDialogs failed")
		}

		var chats []tg.ChatClass
		var messages []tg.MessageClass
		var more bool
		switch d := dialogs.(type) {
		case *tg.MessagesDialogs:
			chats, messages = d.Chats, d.Messages
		case *tg.MessagesDialogsSlice:
			chats, messages = d.Chats, d.Messages
			more = len(d.Dialogs) >= request.Limit
		default:
			return nil
		}

		for _, chat := range chats {
			if ch, ok := chat.(*tg.Channel); ok {
				c.cacheChannel(ch)
				total++
			}
		}
		if !more || len(messages) == 0 {
			break
		}
		// Advance the offset from the oldest message in this page.
		if last, ok := messages[len(messages)-1].(*tg.Message); ok {
			request.OffsetDate = last.Date
			request.OffsetID = last.ID
			request.OffsetPeer = inputPeerOf(last.PeerID, chats)
		} else {
			break
		}
	}

	slog.Info("dialog sync complete", slog.Int("channels", total))
	return nil
}

func inputPeerOf(peer tg.PeerClass, chats []tg.ChatClass) tg.InputPeerClass {
	if p, ok := peer.(*tg.PeerChannel); ok {
		for _, chat := range chats {
			if ch, ok := chat.(*tg.Channel); ok && ch.ID == p.ChannelID {
				return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
			}
		}
	}
	return &tg.InputPeerEmpty{}
}

func (c *Client) cacheChannel(ch *tg.Channel) {
	entity := &Entity{
		ID:         ch.ID,
		AccessHash: ch.AccessHash,
		Username:   ch.Username,
		Title:      ch.Title,
		Channel:    true,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entities[NormalizeRef(strconv.FormatInt(ch.ID, 10))] = entity
	if ch.Username != "" {
		c.entities[NormalizeRef(ch.Username)] = entity
	}
}
