package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"detailbook/internal/domain"
	"detailbook/internal/models"
)

func (db *DB) CreateUnavailability(ctx context.Context, u *models.Unavailability) error {
	if !u.StartAt.Before(u.EndAt) {
		return fmt.Errorf("%w: unavailability end must be after start", domain.ErrInvalidInput)
	}

	now := time.Now().UTC()
	result, err := db.ExecContext(ctx,
		`INSERT INTO unavailability (start_at, end_at, reason, created_at) VALUES (?, ?, ?, ?)`,
		unix(u.StartAt), unix(u.EndAt), u.Reason, now)
	if err != nil {
		return fmt.Errorf("failed to create unavailability: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	u.ID = id
	u.StartAt = fromUnix(unix(u.StartAt))
	u.EndAt = fromUnix(unix(u.EndAt))
	u.CreatedAt = now
	return nil
}

// ListUnavailability returns windows intersecting [from, to).
func (db *DB) ListUnavailability(ctx context.Context, from, to time.Time) ([]*models.Unavailability, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, start_at, end_at, reason, created_at FROM unavailability
         WHERE start_at < ? AND end_at > ? ORDER BY start_at ASC`,
		unix(to), unix(from))
	if err != nil {
		return nil, fmt.Errorf("failed to list unavailability: %w", err)
	}
	defer rows.Close()

	var out []*models.Unavailability
	for rows.Next() {
		u, err := scanUnavailability(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unavailability: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// DeleteUnavailability removes the window and returns what was deleted.
func (db *DB) DeleteUnavailability(ctx context.Context, id int64) (*models.Unavailability, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `SELECT id, start_at, end_at, reason, created_at FROM unavailability WHERE id = ?`, id)
	u, err := scanUnavailability(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: unavailability %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unavailability: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM unavailability WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to delete unavailability: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit unavailability delete: %w", err)
	}
	return u, nil
}

func scanUnavailability(row rowScanner) (*models.Unavailability, error) {
	var (
		u          models.Unavailability
		start, end int64
	)
	if err := row.Scan(&u.ID, &start, &end, &u.Reason, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.StartAt = fromUnix(start)
	u.EndAt = fromUnix(end)
	return &u, nil
}
