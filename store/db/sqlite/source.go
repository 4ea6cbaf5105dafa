package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hrygo/channelwatch/store"
)

func (d *DB) CreateSource(ctx context.Context, ref, title string) (*store.Source, error) {
	source := &store.Source{ExternalRef: ref, Title: title}
	stmt := `INSERT INTO sources (external_ref, title, created_ts)
		VALUES (?, ?, ?)
		ON CONFLICT (external_ref)
		DO UPDATE SET title = COALESCE(NULLIF(excluded.title, ''), sources.title)
		RETURNING id, title, error_count, created_ts`
	if err := d.db.QueryRowContext(ctx, stmt, ref, title, time.Now().Unix()).Scan(
		&source.ID, &source.Title, &source.ErrorCount, &source.CreatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to upsert source: %w", err)
	}
	return source, nil
}

func (d *DB) GetSource(ctx context.Context, id int32) (*store.Source, error) {
	return d.getSource(ctx, "id = ?", id)
}

func (d *DB) GetSourceByRef(ctx context.Context, ref string) (*store.Source, error) {
	return d.getSource(ctx, "external_ref = ?", ref)
}

func (d *DB) getSource(ctx context.Context, where string, arg any) (*store.Source, error) {
	source := &store.Source{}
	stmt := `SELECT id, external_ref, title, error_count, created_ts FROM sources WHERE ` + where
	if err := d.db.QueryRowContext(ctx, stmt, arg).Scan(
		&source.ID, &source.ExternalRef, &source.Title, &source.ErrorCount, &source.CreatedTs,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return source, nil
}

func (d *DB) ListSources(ctx context.Context) ([]*store.Source, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, external_ref, title, error_count, created_ts FROM sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Source, 0)
	for rows.Next() {
		source := &store.Source{}
		if err := rows.Scan(&source.ID, &source.ExternalRef, &source.Title, &source.ErrorCount, &source.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		list = append(list, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sources: %w", err)
	}
	return list, nil
}

func (d *DB) DeleteSource(ctx context.Context, id int32) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	return nil
}

func (d *DB) IncrementSourceError(ctx context.Context, id int32) (int32, error) {
	var count int32
	stmt := `UPDATE sources SET error_count = error_count + 1 WHERE id = ? RETURNING error_count`
	if err := d.db.QueryRowContext(ctx, stmt, id).Scan(&count); err != nil {
		if err == sql.ErrNoRows {
			return 0, store.ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment source error count: %w", err)
	}
	return count, nil
}

func (d *DB) ResetSourceError(ctx context.Context, id int32) error {
	if _, err := d.db.ExecContext(ctx, `UPDATE sources SET error_count = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to reset source error count: %w", err)
	}
	return nil
}

func (d *DB) AddSubscription(ctx context.Context, userID, sourceID int32) (bool, error) {
	stmt := `INSERT OR IGNORE INTO subscriptions (user_id, source_id, created_ts) VALUES (?, ?, ?)`
	result, err := d.db.ExecContext(ctx, stmt, userID, sourceID, time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("failed to add subscription: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

func (d *DB) ListSubscriptions(ctx context.Context, userID int32) ([]*store.Subscription, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT user_id, source_id, created_ts FROM subscriptions WHERE user_id = ? ORDER BY created_ts`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Subscription, 0)
	for rows.Next() {
		sub := &store.Subscription{}
		if err := rows.Scan(&sub.UserID, &sub.SourceID, &sub.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		list = append(list, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}
	return list, nil
}

func (d *DB) DeleteSubscription(ctx context.Context, userID, sourceID int32) error {
	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE user_id = ? AND source_id = ?`, userID, sourceID); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (d *DB) ContentExists(ctx context.Context, hashID string) (bool, error) {
	var exists bool
	if err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM contents WHERE hash_id = ?)`, hashID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check content: %w", err)
	}
	return exists, nil
}

func (d *DB) AddContent(ctx context.Context, content *store.SeenContent) (bool, error) {
	if content.CreatedTs == 0 {
		content.CreatedTs = time.Now().Unix()
	}
	stmt := `INSERT OR IGNORE INTO contents (hash_id, source_id, external_item_id, link, title, created_ts)
		VALUES (?, ?, ?, ?, ?, ?)`
	result, err := d.db.ExecContext(ctx, stmt,
		content.HashID, content.SourceID, content.ExternalItemID, content.Link, content.Title, content.CreatedTs)
	if err != nil {
		return false, fmt.Errorf("failed to add content: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}
