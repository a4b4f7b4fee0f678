package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"detailbook/internal/domain"
	"detailbook/internal/models"
)

const bookingColumns = `b.id, b.first_name, b.last_name, b.email, b.phone, b.service_id,
	COALESCE(s.name, ''), b.add_on_ids, b.start_at, b.end_at, b.status, b.total_price_cents,
	b.payment_id, b.calendar_event_id, b.street, b.city, b.state, b.zip, b.notes,
	b.created_at, b.updated_at, b.version`

const bookingFrom = ` FROM bookings b LEFT JOIN services s ON s.id = b.service_id`

// blockingFilter matches statuses that still hold their interval.
func blockingFilter() (string, []interface{}) {
	placeholders := make([]string, len(models.BlockingStatuses))
	args := make([]interface{}, len(models.BlockingStatuses))
	for i, s := range models.BlockingStatuses {
		placeholders[i] = "?"
		args[i] = s
	}
	return "status IN (" + strings.Join(placeholders, ", ") + ")", args
}

// CreateBookingIfFree inserts the booking unless its [StartAt, EndAt) interval
// intersects a blocking booking or an unavailability window. The overlap scan
// and the insert share one immediate transaction.
func (db *DB) CreateBookingIfFree(ctx context.Context, booking *models.Booking) error {
	if !booking.StartAt.Before(booking.EndAt) {
		return fmt.Errorf("%w: booking end must be after start", domain.ErrInvalidInput)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	start, end := unix(booking.StartAt), unix(booking.EndAt)

	filter, args := blockingFilter()
	var conflicts int
	queryBookings := `SELECT COUNT(*) FROM bookings WHERE ` + filter + ` AND start_at < ? AND end_at > ?`
	args = append(args, end, start)
	if err := tx.QueryRowContext(ctx, queryBookings, args...).Scan(&conflicts); err != nil {
		return fmt.Errorf("failed to check booking overlap in tx: %w", err)
	}
	if conflicts > 0 {
		return domain.ErrSlotUnavailable
	}

	queryBlocks := `SELECT COUNT(*) FROM unavailability WHERE start_at < ? AND end_at > ?`
	if err := tx.QueryRowContext(ctx, queryBlocks, end, start).Scan(&conflicts); err != nil {
		return fmt.Errorf("failed to check unavailability overlap in tx: %w", err)
	}
	if conflicts > 0 {
		return domain.ErrSlotUnavailable
	}

	if booking.Status == "" {
		booking.Status = models.StatusPendingPayment
	}

	queryInsert := `INSERT INTO bookings (
				first_name, last_name, email, phone, service_id, add_on_ids,
				start_at, end_at, status, total_price_cents, payment_id, calendar_event_id,
				street, city, state, zip, notes, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, queryInsert,
		booking.FirstName,
		booking.LastName,
		booking.Email,
		booking.Phone,
		booking.ServiceID,
		models.EncodeIDs(booking.AddOnIDs),
		start,
		end,
		booking.Status,
		booking.TotalPriceCents,
		booking.PaymentID,
		booking.CalendarEventID,
		booking.Address.Street,
		booking.Address.City,
		booking.Address.State,
		booking.Address.Zip,
		booking.Notes,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.ID = id
	booking.StartAt = fromUnix(start)
	booking.EndAt = fromUnix(end)
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+bookingFrom+` WHERE b.id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: booking %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func (db *DB) GetBookingByPaymentID(ctx context.Context, paymentID string) (*models.Booking, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("%w: empty payment id", domain.ErrNotFound)
	}
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+bookingFrom+` WHERE b.payment_id = ?`, paymentID)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: booking for payment %s", domain.ErrNotFound, paymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking by payment: %w", err)
	}
	return b, nil
}

// GetBookingsByDateRange returns bookings of any status starting in [start, end).
func (db *DB) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + bookingFrom + ` WHERE b.start_at >= ? AND b.start_at < ? ORDER BY b.start_at ASC`
	rows, err := db.QueryContext(ctx, query, unix(start), unix(end))
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by date range: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// ListBlockingBookings returns bookings still holding time that intersect [from, to).
func (db *DB) ListBlockingBookings(ctx context.Context, from, to time.Time) ([]*models.Booking, error) {
	filter, args := blockingFilter()
	filter = strings.Replace(filter, "status", "b.status", 1)
	query := `SELECT ` + bookingColumns + bookingFrom + ` WHERE ` + filter + ` AND b.start_at < ? AND b.end_at > ? ORDER BY b.start_at ASC`
	args = append(args, unix(to), unix(from))
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocking bookings: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now().UTC(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func (db *DB) SetPaymentID(ctx context.Context, id int64, paymentID string) error {
	return db.setBookingField(ctx, id, "payment_id", paymentID)
}

func (db *DB) SetCalendarEventID(ctx context.Context, id int64, eventID string) error {
	return db.setBookingField(ctx, id, "calendar_event_id", eventID)
}

// setBookingField updates a side-channel column. column is never user input.
func (db *DB) setBookingField(ctx context.Context, id int64, column, value string) error {
	query := `UPDATE bookings SET ` + column + ` = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update booking %s: %w", column, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: booking %d", domain.ErrNotFound, id)
	}
	return nil
}

func scanBookings(rows *sql.Rows) ([]*models.Booking, error) {
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

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b          models.Booking
		addOnIDs   string
		start, end int64
	)
	err := row.Scan(
		&b.ID, &b.FirstName, &b.LastName, &b.Email, &b.Phone, &b.ServiceID,
		&b.ServiceName, &addOnIDs, &start, &end, &b.Status, &b.TotalPriceCents,
		&b.PaymentID, &b.CalendarEventID, &b.Address.Street, &b.Address.City,
		&b.Address.State, &b.Address.Zip, &b.Notes,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.AddOnIDs = models.DecodeIDs(addOnIDs)
	b.StartAt = fromUnix(start)
	b.EndAt = fromUnix(end)
	return &b, nil
}
