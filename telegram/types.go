// Package telegram runs the operator-owned MTProto userbot session and
// exposes the capability set the monitor consumes: connect with dialog sync,
// entity resolution, receive-all message handlers, and rate-limited sends.
package telegram

import (
	"context"
	"time"
)

// Entity is a resolved chat, channel, or user with the access hash needed to
// address it.
type Entity struct {
	ID         int64
	AccessHash int64
	Username   string
	Title      string
	Channel    bool
}

// Incoming is one new-message event delivered by the session.
type Incoming struct {
	MessageID      int
	ChatID         int64
	ChatUsername   string
	ChatTitle      string
	SenderID       int64
	SenderUsername string
	Text           string
	Time           time.Time
}

// Handler receives every new message. Registration is receive-all: the
// underlying chat-scoped update filter is unreliable for passive channels, so
// consumers filter in their own pipeline.
type Handler func(ctx context.Context, msg *Incoming)
