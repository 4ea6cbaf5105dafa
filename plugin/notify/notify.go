// Package notify sends operator alerts to a Telegram admin chat through the
// Bot API.
package notify

import (
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// Notifier delivers short status messages to one admin chat.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// New returns nil when the bot token or admin chat id is missing, which
// disables operator notifications.
func New(botToken string, adminChatID int64) *Notifier {
	if botToken == "" || adminChatID == 0 {
		return nil
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		slog.Warn("failed to initialize notification bot", slog.Any("err", err))
		return nil
	}
	return &Notifier{bot: bot, chatID: adminChatID}
}

// Notify sends one plain-text message to the admin chat. Delivery failure is
// logged and swallowed; notifications never block a caller.
func (n *Notifier) Notify(text string) {
	if n == nil {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		slog.Warn("failed to send admin notification",
			slog.Int64("chatId", n.chatID),
			slog.Any("err", errors.Wrap(err, "bot send")))
	}
}
