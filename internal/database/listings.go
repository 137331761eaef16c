package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"localservices/internal/models"
)

// SyncListings upserts the configured listing catalog.
func (db *DB) SyncListings(ctx context.Context, listings []models.Listing) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	query := `INSERT INTO listings (id, owner_id, name, category, city, price_per_hour, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			name = excluded.name,
			category = excluded.category,
			city = excluded.city,
			price_per_hour = excluded.price_per_hour,
			updated_at = excluded.updated_at`

	for _, l := range listings {
		if _, err := tx.ExecContext(ctx, query, l.ID, l.OwnerID, l.Name, l.Category, l.City, l.PricePerHour, now, now); err != nil {
			return fmt.Errorf("failed to upsert listing %s: %w", l.ID, err)
		}
	}

	return tx.Commit()
}

func (db *DB) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	var l models.Listing
	query := `SELECT id, owner_id, name, category, city, price_per_hour, created_at, updated_at FROM listings WHERE id = ?`
	err := db.QueryRowContext(ctx, query, id).Scan(
		&l.ID, &l.OwnerID, &l.Name, &l.Category, &l.City, &l.PricePerHour, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &l, nil
}

func (db *DB) ListListings(ctx context.Context) ([]*models.Listing, error) {
	query := `SELECT id, owner_id, name, category, city, price_per_hour, created_at, updated_at FROM listings ORDER BY id`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(&l.ID, &l.OwnerID, &l.Name, &l.Category, &l.City, &l.PricePerHour, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, &l)
	}
	return listings, rows.Err()
}
