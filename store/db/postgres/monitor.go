package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hrygo/channelwatch/store"
)

func (d *DB) GetMonitorFilters(ctx context.Context, userID int32) ([]byte, error) {
	var raw []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT filters FROM monitor_filters WHERE user_id = $1`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor filters: %w", err)
	}
	return raw, nil
}

func (d *DB) UpsertMonitorFilters(ctx context.Context, userID int32, filters []byte) error {
	stmt := `INSERT INTO monitor_filters (user_id, filters)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET filters = EXCLUDED.filters`
	if _, err := d.db.ExecContext(ctx, stmt, userID, filters); err != nil {
		return fmt.Errorf("failed to upsert monitor filters: %w", err)
	}
	return nil
}

func (d *DB) AddMonitorHistory(ctx context.Context, history *store.MonitorHistory) (*store.MonitorHistory, error) {
	stmt := `INSERT INTO monitor_history (user_id, source, source_id, message, ai_summary, created_ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt,
		history.UserID, history.Source, history.SourceID, history.Message, history.AISummary, history.CreatedTs,
	).Scan(&history.ID); err != nil {
		return nil, fmt.Errorf("failed to add monitor history: %w", err)
	}
	return history, nil
}

func (d *DB) ListMonitorHistory(ctx context.Context, userID int32, limit int) ([]*store.MonitorHistory, error) {
	stmt := `SELECT id, user_id, source, source_id, message, ai_summary, created_ts
		FROM monitor_history
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2`
	rows, err := d.db.QueryContext(ctx, stmt, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitor history: %w", err)
	}
	defer rows.Close()

	list := make([]*store.MonitorHistory, 0)
	for rows.Next() {
		h := &store.MonitorHistory{}
		if err := rows.Scan(&h.ID, &h.UserID, &h.Source, &h.SourceID, &h.Message, &h.AISummary, &h.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan monitor history: %w", err)
		}
		list = append(list, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate monitor history: %w", err)
	}
	return list, nil
}

func (d *DB) UpdateMonitorHistoryAI(ctx context.Context, ids []int64, summary string) error {
	stmt := `UPDATE monitor_history SET ai_summary = $1 WHERE id = ANY($2)`
	if _, err := d.db.ExecContext(ctx, stmt, summary, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to update monitor history ai summary: %w", err)
	}
	return nil
}
