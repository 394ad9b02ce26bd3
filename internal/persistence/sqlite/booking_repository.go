package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/example/class-booking/internal/persistence"
)

const bookingColumns = `b.id, b.session_id, b.user_id, b.status, b.created_at, b.canceled_at, b.attended, b.attended_at`

// BookingRepository implements persistence.BookingRepository using SQLite.
type BookingRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewBookingRepository creates a new SQLite booking repository.
func NewBookingRepository(pool *ConnectionPool) *BookingRepository {
	return &BookingRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

// ReserveSeat counts active bookings, loads the caller's existing row and
// applies decide's action inside a single BEGIN IMMEDIATE transaction, so two
// writers can never both observe the last free seat.
func (r *BookingRepository) ReserveSeat(ctx context.Context, req persistence.SeatRequest, decide persistence.SeatDecider) (persistence.Booking, error) {
	if req.SessionID == "" || req.UserID == "" || req.BookingID == "" || decide == nil {
		return persistence.Booking{}, persistence.ErrConstraintViolation
	}

	var bookingID string
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			var state persistence.SeatState
			err := tx.QueryRowContext(ctx, `SELECT capacity FROM class_sessions WHERE id = ?`, req.SessionID).Scan(&state.Capacity)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return persistence.ErrNotFound
				}
				return err
			}

			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM bookings WHERE session_id = ? AND status = ?`,
				req.SessionID, persistence.BookingStatusActive,
			).Scan(&state.Active); err != nil {
				return err
			}

			existing, err := scanBooking(tx.QueryRowContext(ctx,
				`SELECT `+bookingColumns+` FROM bookings b WHERE b.session_id = ? AND b.user_id = ?`,
				req.SessionID, req.UserID,
			))
			switch {
			case err == nil:
				state.Existing = &existing
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}

			action, err := decide(state)
			if err != nil {
				return err
			}

			switch action {
			case persistence.SeatInsert:
				bookingID = req.BookingID
				_, err = tx.ExecContext(ctx, `
					INSERT INTO bookings (id, session_id, user_id, status, created_at, canceled_at, attended, attended_at)
					VALUES (?, ?, ?, ?, ?, NULL, 0, NULL)
				`, req.BookingID, req.SessionID, req.UserID, persistence.BookingStatusActive, formatTime(req.Now))
			case persistence.SeatReactivate:
				if state.Existing == nil {
					return fmt.Errorf("reactivate without existing booking: %w", persistence.ErrConstraintViolation)
				}
				bookingID = state.Existing.ID
				_, err = tx.ExecContext(ctx,
					`UPDATE bookings SET status = ?, canceled_at = NULL WHERE id = ?`,
					persistence.BookingStatusActive, bookingID,
				)
			default:
				return fmt.Errorf("unknown seat action %d: %w", action, persistence.ErrConstraintViolation)
			}
			return err
		})
	})
	if err != nil {
		return persistence.Booking{}, r.mapper.MapError(err)
	}

	return r.GetBooking(ctx, bookingID)
}

// GetBooking retrieves a booking by ID.
func (r *BookingRepository) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	if id == "" {
		return persistence.Booking{}, persistence.ErrNotFound
	}
	booking, err := scanBooking(r.helper.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ?`, id))
	if err != nil {
		return persistence.Booking{}, r.mapper.MapError(err)
	}
	return booking, nil
}

// CancelBooking marks an active booking canceled. Already canceled bookings
// are left untouched.
func (r *BookingRepository) CancelBooking(ctx context.Context, id string, canceledAt time.Time, clearAttendance bool) (persistence.Booking, error) {
	query := `UPDATE bookings SET status = ?, canceled_at = ? WHERE id = ? AND status = ?`
	if clearAttendance {
		query = `UPDATE bookings SET status = ?, canceled_at = ?, attended = 0, attended_at = NULL WHERE id = ? AND status = ?`
	}
	if _, err := r.helper.Exec(ctx, query,
		persistence.BookingStatusCanceled, formatTime(canceledAt), id, persistence.BookingStatusActive,
	); err != nil {
		return persistence.Booking{}, r.mapper.MapError(err)
	}
	return r.GetBooking(ctx, id)
}

// SetAttendance records whether the user attended.
func (r *BookingRepository) SetAttendance(ctx context.Context, id string, attended bool, at time.Time) (persistence.Booking, error) {
	stamp := sql.NullString{}
	if attended {
		stamp = sql.NullString{String: formatTime(at), Valid: true}
	}
	result, err := r.helper.Exec(ctx, `UPDATE bookings SET attended = ?, attended_at = ? WHERE id = ?`, attended, stamp, id)
	if err != nil {
		return persistence.Booking{}, r.mapper.MapError(err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return persistence.Booking{}, persistence.ErrNotFound
	}
	return r.GetBooking(ctx, id)
}

// ListSessionBookings returns the roster of a session, active rows first.
func (r *BookingRepository) ListSessionBookings(ctx context.Context, sessionID string) ([]persistence.BookingDetail, error) {
	return r.listDetails(ctx,
		sq.Eq{"b.session_id": sessionID},
		"CASE b.status WHEN 'ACTIVE' THEN 0 ELSE 1 END", "b.created_at ASC", "b.id ASC",
	)
}

// ListUserBookings returns a user's bookings with status (all when empty),
// most recently created first.
func (r *BookingRepository) ListUserBookings(ctx context.Context, userID string, status string) ([]persistence.BookingDetail, error) {
	where := sq.And{sq.Eq{"b.user_id": userID}}
	if status != "" {
		where = append(where, sq.Eq{"b.status": status})
	}
	return r.listDetails(ctx, where, "b.created_at DESC", "b.id ASC")
}

func (r *BookingRepository) listDetails(ctx context.Context, where sq.Sqlizer, orderBy ...string) ([]persistence.BookingDetail, error) {
	columns := append([]string{bookingColumns, "u.email", "u.name"}, classSessionColumns...)
	query, args, err := sq.Select(columns...).
		From("bookings b").
		Join("users u ON u.id = b.user_id").
		Join("class_sessions cs ON cs.id = b.session_id").
		Where(where).
		OrderBy(orderBy...).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build booking query: %w", err)
	}

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var details []persistence.BookingDetail
	for rows.Next() {
		var (
			d                        persistence.BookingDetail
			canceledAt, attendedAt   sql.NullString
			createdAt                string
			userName                 sql.NullString
			instructor, notes        sql.NullString
			startsAt, endsAt         string
			sessCreated, sessUpdated string
		)
		if err := rows.Scan(
			&d.ID, &d.SessionID, &d.UserID, &d.Status, &createdAt, &canceledAt, &d.Attended, &attendedAt,
			&d.UserEmail, &userName,
			&d.Session.ID, &d.Session.Title, &d.Session.Type, &instructor, &notes,
			&startsAt, &endsAt, &d.Session.Capacity, &sessCreated, &sessUpdated,
		); err != nil {
			return nil, r.mapper.MapError(err)
		}

		d.UserName = stringPtr(userName)
		d.Session.Instructor = stringPtr(instructor)
		d.Session.Notes = stringPtr(notes)
		if err := parseInto(
			timeField{createdAt, &d.CreatedAt},
			timeField{startsAt, &d.Session.StartsAt},
			timeField{endsAt, &d.Session.EndsAt},
			timeField{sessCreated, &d.Session.CreatedAt},
			timeField{sessUpdated, &d.Session.UpdatedAt},
		); err != nil {
			return nil, err
		}
		if d.CanceledAt, err = parseNullTime(canceledAt); err != nil {
			return nil, err
		}
		if d.AttendedAt, err = parseNullTime(attendedAt); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return details, nil
}

type timeField struct {
	value string
	dest  *time.Time
}

func parseInto(fields ...timeField) error {
	for _, f := range fields {
		t, err := parseTime(f.value)
		if err != nil {
			return err
		}
		*f.dest = t
	}
	return nil
}

// scanBooking returns sql.ErrNoRows unchanged so callers inside transactions
// can tell a missing row from a failure.
func scanBooking(row rowScanner) (persistence.Booking, error) {
	var (
		b                      persistence.Booking
		createdAt              string
		canceledAt, attendedAt sql.NullString
	)
	if err := row.Scan(&b.ID, &b.SessionID, &b.UserID, &b.Status, &createdAt, &canceledAt, &b.Attended, &attendedAt); err != nil {
		return persistence.Booking{}, err
	}

	var err error
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Booking{}, err
	}
	if b.CanceledAt, err = parseNullTime(canceledAt); err != nil {
		return persistence.Booking{}, err
	}
	if b.AttendedAt, err = parseNullTime(attendedAt); err != nil {
		return persistence.Booking{}, err
	}
	return b, nil
}
