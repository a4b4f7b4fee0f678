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

const serviceColumns = `id, name, description, duration_min, price_cents, sort_order, is_active, created_at, updated_at`

func (db *DB) UpsertService(ctx context.Context, s *models.Service) error {
	query := `INSERT INTO services (` + serviceColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                description = excluded.description,
                duration_min = excluded.duration_min,
                price_cents = excluded.price_cents,
                sort_order = excluded.sort_order,
                is_active = excluded.is_active,
                updated_at = excluded.updated_at`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		s.ID, s.Name, s.Description, s.DurationMin, s.PriceCents, s.SortOrder, s.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert service: %w", err)
	}
	s.UpdatedAt = now
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	return nil
}

func (db *DB) GetService(ctx context.Context, id int64) (*models.Service, error) {
	row := db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id)
	s, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: service %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return s, nil
}

func (db *DB) ListServices(ctx context.Context, activeOnly bool) ([]*models.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY sort_order, id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var services []*models.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

const addOnColumns = `id, name, duration_min, price_cents, is_active, created_at, updated_at`

func (db *DB) UpsertAddOn(ctx context.Context, a *models.AddOn) error {
	query := `INSERT INTO add_ons (` + addOnColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                duration_min = excluded.duration_min,
                price_cents = excluded.price_cents,
                is_active = excluded.is_active,
                updated_at = excluded.updated_at`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, a.ID, a.Name, a.DurationMin, a.PriceCents, a.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert add-on: %w", err)
	}
	a.UpdatedAt = now
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	return nil
}

func (db *DB) GetAddOn(ctx context.Context, id int64) (*models.AddOn, error) {
	row := db.QueryRowContext(ctx, `SELECT `+addOnColumns+` FROM add_ons WHERE id = ?`, id)
	a, err := scanAddOn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: add-on %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get add-on: %w", err)
	}
	return a, nil
}

func (db *DB) ListAddOns(ctx context.Context, activeOnly bool) ([]*models.AddOn, error) {
	query := `SELECT ` + addOnColumns + ` FROM add_ons`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list add-ons: %w", err)
	}
	defer rows.Close()

	var addOns []*models.AddOn
	for rows.Next() {
		a, err := scanAddOn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan add-on: %w", err)
		}
		addOns = append(addOns, a)
	}
	return addOns, rows.Err()
}

// SyncCatalog upserts the seed catalog in one transaction.
func (db *DB) SyncCatalog(ctx context.Context, catalog *models.Catalog) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for i := range catalog.Services {
		s := &catalog.Services[i]
		_, err := tx.ExecContext(ctx, `INSERT INTO services (`+serviceColumns+`)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name, description = excluded.description,
                duration_min = excluded.duration_min, price_cents = excluded.price_cents,
                sort_order = excluded.sort_order, is_active = excluded.is_active,
                updated_at = excluded.updated_at`,
			s.ID, s.Name, s.Description, s.DurationMin, s.PriceCents, s.SortOrder, s.IsActive, now, now)
		if err != nil {
			return fmt.Errorf("failed to sync service %d: %w", s.ID, err)
		}
	}
	for i := range catalog.AddOns {
		a := &catalog.AddOns[i]
		_, err := tx.ExecContext(ctx, `INSERT INTO add_ons (`+addOnColumns+`)
              VALUES (?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name, duration_min = excluded.duration_min,
                price_cents = excluded.price_cents, is_active = excluded.is_active,
                updated_at = excluded.updated_at`,
			a.ID, a.Name, a.DurationMin, a.PriceCents, a.IsActive, now, now)
		if err != nil {
			return fmt.Errorf("failed to sync add-on %d: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}
	db.logger.Info().Int("services", len(catalog.Services)).Int("add_ons", len(catalog.AddOns)).Msg("catalog synced")
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanService(row rowScanner) (*models.Service, error) {
	var s models.Service
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.DurationMin, &s.PriceCents,
		&s.SortOrder, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanAddOn(row rowScanner) (*models.AddOn, error) {
	var a models.AddOn
	err := row.Scan(&a.ID, &a.Name, &a.DurationMin, &a.PriceCents, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
