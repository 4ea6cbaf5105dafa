package telegram

import (
	"context"
	"log/slog"

	"github.com/gotd/td/tg"
	"github.com/pkg/errors"
)

// ResolveEntity resolves a source reference to a cached entity, hitting
// contacts.resolveUsername for unseen usernames. Numeric refs resolve only
// through the dialog cache (there is no id lookup without an access hash).
// Returns nil without error when the ref cannot be resolved.
func (c *Client) ResolveEntity(ctx context.Context, ref string) (*Entity, error) {
	key := NormalizeRef(ref)

	c.mu.RLock()
	entity, ok := c.entities[key]
	c.mu.RUnlock()
	if ok {
		return entity, nil
	}

	if IsNumericRef(ref) {
		// Not in the dialog cache; the account may not be subscribed yet.
		return nil, nil
	}

	resolved, err := c.client.API().ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: key,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %q", ref)
	}

	for _, chat := range resolved.Chats {
		if ch, ok := chat.(*tg.Channel); ok {
			c.cacheChannel(ch)
		}
	}
	for _, user := range resolved.Users {
		if u, ok := user.(*tg.User); ok && u.Username != "" {
			c.mu.Lock()
			c.entities[NormalizeRef(u.Username)] = &Entity{
				ID:         u.ID,
				AccessHash: u.AccessHash,
				Username:   u.Username,
			}
			c.mu.Unlock()
		}
	}

	c.mu.RLock()
	entity = c.entities[key]
	c.mu.RUnlock()
	if entity == nil {
		slog.Warn("reference resolved to no known entity", slog.String("ref", ref))
	}
	return entity, nil
}
