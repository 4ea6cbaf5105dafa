package telegram

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/pkg/errors"
)

// Login runs the interactive phone-code flow and writes the session file. It
// is invoked by the login subcommand, never from the running service.
func (c *Client) Login(ctx context.Context) error {
	if c.profile.TelegramPhone == "" {
		return errors.New("TELEGRAM_PHONE is required for login")
	}

	return c.client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(
			auth.Constant(c.profile.TelegramPhone, "", auth.CodeAuthenticatorFunc(promptCode)),
			auth.SendCodeOptions{},
		)
		if err := c.client.Auth().IfNecessary(ctx, flow); err != nil {
			return errors.Wrap(err, "auth flow failed")
		}

		self, err := c.client.Self(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to fetch self after login")
		}
		fmt.Printf("Logged in as %s (id %d); session saved to %s\n",
			displayName(self), self.ID, c.profile.TelegramSessionFile)
		return nil
	})
}

func promptCode(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
	fmt.Print("Enter the code sent to your Telegram account: ")
	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

func displayName(u *tg.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
