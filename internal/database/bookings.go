package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"localservices/internal/models"
)

const bookingColumns = `id, resource_id, resource_name, provider_id, customer_id, customer_name,
	start_ns, end_ns, price_quote, currency, status, group_id, notes,
	accepted_provider_id, accepted_provider_name, accepted_provider_city,
	created_at, updated_at, version`

const activeStatusesSQL = `('pending', 'confirmed')`

// acceptedStatusesSQL marks a group copy as the binding acceptance.
const acceptedStatusesSQL = `('confirmed', 'completed')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                       models.Booking
		startNs, endNs          int64
		accID, accName, accCity string
	)
	err := row.Scan(
		&b.ID, &b.ResourceID, &b.ResourceName, &b.ProviderID, &b.CustomerID, &b.CustomerName,
		&startNs, &endNs, &b.PriceQuote, &b.Currency, &b.Status, &b.GroupID, &b.Notes,
		&accID, &accName, &accCity,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.Window = models.Window{Start: time.Unix(0, startNs).UTC(), End: time.Unix(0, endNs).UTC()}
	if accID != "" {
		b.AcceptedProvider = &models.ProviderSnapshot{ID: accID, DisplayName: accName, City: accCity}
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertArgs(b *models.Booking) []any {
	return []any{
		b.ResourceID, b.ResourceName, b.ProviderID, b.CustomerID, b.CustomerName,
		b.Window.Start.UnixNano(), b.Window.End.UnixNano(), b.PriceQuote, b.Currency,
		b.Status, b.GroupID, b.Notes, b.CreatedAt, b.UpdatedAt,
	}
}

const insertBookingSQL = `INSERT INTO bookings (
		resource_id, resource_name, provider_id, customer_id, customer_name,
		start_ns, end_ns, price_quote, currency, status, group_id, notes,
		created_at, updated_at, version
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`

func prepareForInsert(b *models.Booking) {
	now := time.Now().UTC()
	if b.Status == "" {
		b.Status = models.StatusPending
	}
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Version = 1
}

func insertBooking(ctx context.Context, ex execer, b *models.Booking) error {
	prepareForInsert(b)
	result, err := ex.ExecContext(ctx, insertBookingSQL, insertArgs(b)...)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	b.ID = id
	return nil
}

// CreateBookingIfFree stores b only when no active booking of the same resource
// overlaps its window. The check and the insert are one statement.
func (db *DB) CreateBookingIfFree(ctx context.Context, b *models.Booking) error {
	prepareForInsert(b)
	query := `INSERT INTO bookings (
			resource_id, resource_name, provider_id, customer_id, customer_name,
			start_ns, end_ns, price_quote, currency, status, group_id, notes,
			created_at, updated_at, version
		)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1
		WHERE NOT EXISTS (
			SELECT 1 FROM bookings
			WHERE resource_id = ? AND status IN ` + activeStatusesSQL + `
			AND start_ns < ? AND end_ns > ?
		)`
	args := append(insertArgs(b), b.ResourceID, b.Window.End.UnixNano(), b.Window.Start.UnixNano())

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrSlotTaken
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	b.ID = id
	return nil
}

// CreateBookingGroup stores every copy in one transaction.
func (db *DB) CreateBookingGroup(ctx context.Context, bookings []*models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, b := range bookings {
		if err := insertBooking(ctx, tx, b); err != nil {
			return fmt.Errorf("failed to insert group copy for %s: %w", b.ProviderID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking group: %w", err)
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// ListActiveStartingBetween returns pending and confirmed bookings of a resource
// whose start lies in [from, to).
func (db *DB) ListActiveStartingBetween(ctx context.Context, resourceID string, from, to time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE resource_id = ? AND status IN ` + activeStatusesSQL + `
		AND start_ns >= ? AND start_ns < ?
		ORDER BY start_ns ASC`
	bookings, err := db.queryBookings(ctx, query, resourceID, from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to list active bookings: %w", err)
	}
	return bookings, nil
}

func (db *DB) ListByCustomer(ctx context.Context, customerID string) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE customer_id = ? ORDER BY start_ns DESC, created_at DESC, id DESC`
	bookings, err := db.queryBookings(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customer bookings: %w", err)
	}
	return bookings, nil
}

func (db *DB) ListByProvider(ctx context.Context, providerID string) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE provider_id = ? ORDER BY start_ns DESC, created_at DESC, id DESC`
	bookings, err := db.queryBookings(ctx, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider bookings: %w", err)
	}
	return bookings, nil
}

func (db *DB) ListByGroup(ctx context.Context, groupID string) ([]*models.Booking, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, nil
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE group_id = ? ORDER BY id ASC`
	bookings, err := db.queryBookings(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group bookings: %w", err)
	}
	return bookings, nil
}

// ListByStartRange returns every booking starting in [from, to), oldest first.
func (db *DB) ListByStartRange(ctx context.Context, from, to time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE start_ns >= ? AND start_ns < ? ORDER BY start_ns ASC, id ASC`
	bookings, err := db.queryBookings(ctx, query, from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings by range: %w", err)
	}
	return bookings, nil
}

// UpdateStatus applies u only if the booking is still in u.From. A confirmation
// also requires that no sibling in the group is confirmed or completed and that no other
// confirmed booking holds the same resource over an overlapping window.
func (db *DB) UpdateStatus(ctx context.Context, u models.StatusChange) (*models.Booking, error) {
	var accID, accName, accCity string
	if u.Accepted != nil {
		accID, accName, accCity = u.Accepted.ID, u.Accepted.DisplayName, u.Accepted.City
	}
	at := u.At
	if at.IsZero() {
		at = time.Now()
	}
	confirming := u.To == models.StatusConfirmed

	query := `UPDATE bookings SET
			status = ?,
			accepted_provider_id = CASE WHEN ? <> '' THEN ? ELSE accepted_provider_id END,
			accepted_provider_name = CASE WHEN ? <> '' THEN ? ELSE accepted_provider_name END,
			accepted_provider_city = CASE WHEN ? <> '' THEN ? ELSE accepted_provider_city END,
			updated_at = ?,
			version = version + 1
		WHERE id = ? AND status = ?
		AND (? = 0 OR group_id = '' OR NOT EXISTS (
			SELECT 1 FROM bookings s
			WHERE s.group_id = bookings.group_id AND s.id <> bookings.id AND s.status IN ` + acceptedStatusesSQL + `
		))
		AND (? = 0 OR NOT EXISTS (
			SELECT 1 FROM bookings o
			WHERE o.resource_id = bookings.resource_id AND o.id <> bookings.id
			AND o.status = 'confirmed'
			AND o.start_ns < bookings.end_ns AND o.end_ns > bookings.start_ns
		))`

	result, err := db.ExecContext(ctx, query,
		u.To,
		accID, accID,
		accID, accName,
		accID, accCity,
		at.UTC(),
		u.ID, u.From,
		confirming,
		confirming,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return nil, db.explainRejectedUpdate(ctx, u)
	}
	return db.GetBooking(ctx, u.ID)
}

func (db *DB) explainRejectedUpdate(ctx context.Context, u models.StatusChange) error {
	current, err := db.GetBooking(ctx, u.ID)
	if err != nil {
		return err
	}
	if current.Status != u.From {
		return fmt.Errorf("booking %d is %s, expected %s: %w", u.ID, current.Status, u.From, ErrStatusChanged)
	}
	if current.GroupID != "" {
		var confirmed int
		query := `SELECT COUNT(*) FROM bookings WHERE group_id = ? AND id <> ? AND status IN ` + acceptedStatusesSQL
		if err := db.QueryRowContext(ctx, query, current.GroupID, current.ID).Scan(&confirmed); err != nil {
			return fmt.Errorf("failed to count confirmed siblings: %w", err)
		}
		if confirmed > 0 {
			return fmt.Errorf("booking %d: %w", u.ID, ErrGroupAlreadyConfirmed)
		}
	}
	return fmt.Errorf("booking %d: %w", u.ID, ErrSlotTaken)
}
