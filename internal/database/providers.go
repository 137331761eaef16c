package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"localservices/internal/models"
)

// SyncProviders upserts the configured provider directory and refreshes the cache.
func (db *DB) SyncProviders(ctx context.Context, providers []models.Provider) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	query := `INSERT INTO providers (id, display_name, email, city, categories, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email,
			city = excluded.city,
			categories = excluded.categories,
			updated_at = excluded.updated_at`

	for i := range providers {
		p := &providers[i]
		categories, err := encodeCategories(p.Categories)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, p.ID, p.DisplayName, p.Email, p.City, categories, now, now); err != nil {
			return fmt.Errorf("failed to upsert provider %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit providers: %w", err)
	}

	db.mu.Lock()
	db.providersCache = make(map[string]models.Provider, len(providers))
	db.mu.Unlock()
	return nil
}

func (db *DB) CreateProvider(ctx context.Context, p *models.Provider) error {
	categories, err := encodeCategories(p.Categories)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	query := `INSERT INTO providers (id, display_name, email, city, categories, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, query, p.ID, p.DisplayName, p.Email, p.City, categories, now, now); err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	db.mu.Lock()
	db.providersCache[p.ID] = *p
	db.mu.Unlock()
	return nil
}

func (db *DB) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	db.mu.RLock()
	cached, ok := db.providersCache[id]
	db.mu.RUnlock()
	if ok {
		return &cached, nil
	}

	query := `SELECT id, display_name, email, city, categories, created_at, updated_at FROM providers WHERE id = ?`
	p, err := scanProvider(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("provider %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	db.mu.Lock()
	db.providersCache[id] = *p
	db.mu.Unlock()
	return p, nil
}

// FindProviders returns providers offering category in city, ordered by id.
// An empty category or city does not filter on that field.
func (db *DB) FindProviders(ctx context.Context, category, city string) ([]*models.Provider, error) {
	category = strings.TrimSpace(category)
	city = strings.TrimSpace(city)

	query := `SELECT id, display_name, email, city, categories, created_at, updated_at
		FROM providers p
		WHERE (? = '' OR EXISTS (SELECT 1 FROM json_each(p.categories) WHERE json_each.value = ?))
		AND (? = '' OR p.city = ?)
		ORDER BY p.id ASC`
	rows, err := db.QueryContext(ctx, query, category, category, city, city)
	if err != nil {
		return nil, fmt.Errorf("failed to find providers: %w", err)
	}
	defer rows.Close()

	var providers []*models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

func scanProvider(row rowScanner) (*models.Provider, error) {
	var (
		p          models.Provider
		categories string
	)
	if err := row.Scan(&p.ID, &p.DisplayName, &p.Email, &p.City, &categories, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(categories), &p.Categories); err != nil {
		return nil, fmt.Errorf("decode categories of %s: %w", p.ID, err)
	}
	return &p, nil
}

func encodeCategories(categories []string) (string, error) {
	cleaned := make([]string, 0, len(categories))
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	data, err := json.Marshal(cleaned)
	if err != nil {
		return "", fmt.Errorf("encode categories: %w", err)
	}
	return string(data), nil
}
