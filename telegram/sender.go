package telegram

import (
	"context"

	"github.com/gotd/td/tg"
	"github.com/pkg/errors"
)

// SendMessage sends text to the peer identified by ref. Every send runs
// through the limiter; no other path may bypass it.
func (c *Client) SendMessage(ctx context.Context, ref, text string) error {
	return c.limiter.Do(ctx, func(ctx context.Context) error {
		entity, err := c.ResolveEntity(ctx, ref)
		if err != nil {
			return err
		}
		if entity == nil {
			return errors.Errorf("cannot resolve send target %q", ref)
		}

		var peer tg.InputPeerClass
		if entity.Channel {
			peer = &tg.InputPeerChannel{ChannelID: entity.ID, AccessHash: entity.AccessHash}
		} else {
			peer = &tg.InputPeerUser{UserID: entity.ID, AccessHash: entity.AccessHash}
		}
		if _, err := c.sender.To(peer).Text(ctx, text); err != nil {
			return errors.Wrapf(err, "failed to send to %q", ref)
		}
		return nil
	})
}
