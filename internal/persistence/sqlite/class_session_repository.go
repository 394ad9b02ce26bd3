package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/example/class-booking/internal/persistence"
)

var classSessionColumns = []string{
	"cs.id", "cs.title", "cs.type", "cs.instructor", "cs.notes",
	"cs.starts_at", "cs.ends_at", "cs.capacity", "cs.created_at", "cs.updated_at",
}

// ClassSessionRepository implements persistence.ClassSessionRepository using SQLite.
type ClassSessionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewClassSessionRepository creates a new SQLite class session repository.
func NewClassSessionRepository(pool *ConnectionPool) *ClassSessionRepository {
	return &ClassSessionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateClassSessions inserts all sessions in one transaction. If any insert
// fails nothing is stored.
func (r *ClassSessionRepository) CreateClassSessions(ctx context.Context, sessions []persistence.ClassSession) error {
	if len(sessions) == 0 {
		return persistence.ErrConstraintViolation
	}
	for _, s := range sessions {
		if s.ID == "" {
			return persistence.ErrConstraintViolation
		}
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO class_sessions (id, title, type, instructor, notes, starts_at, ends_at, capacity, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return r.mapper.MapError(err)
		}
		defer stmt.Close()

		for _, s := range sessions {
			if _, err := stmt.ExecContext(ctx,
				s.ID,
				s.Title,
				s.Type,
				nullString(s.Instructor),
				nullString(s.Notes),
				formatTime(s.StartsAt),
				formatTime(s.EndsAt),
				s.Capacity,
				formatTime(s.CreatedAt),
				formatTime(s.UpdatedAt),
			); err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

// UpdateClassSession overwrites the mutable columns of a session.
func (r *ClassSessionRepository) UpdateClassSession(ctx context.Context, s persistence.ClassSession) error {
	if s.ID == "" {
		return persistence.ErrConstraintViolation
	}

	result, err := r.helper.Exec(ctx, `
		UPDATE class_sessions
		SET title = ?, type = ?, instructor = ?, notes = ?, starts_at = ?, ends_at = ?, capacity = ?, updated_at = ?
		WHERE id = ?
	`,
		s.Title,
		s.Type,
		nullString(s.Instructor),
		nullString(s.Notes),
		formatTime(s.StartsAt),
		formatTime(s.EndsAt),
		s.Capacity,
		formatTime(s.UpdatedAt),
		s.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetClassSession retrieves a session by ID.
func (r *ClassSessionRepository) GetClassSession(ctx context.Context, id string) (persistence.ClassSession, error) {
	if id == "" {
		return persistence.ClassSession{}, persistence.ErrNotFound
	}

	query, args, err := sq.Select(classSessionColumns...).
		From("class_sessions cs").
		Where(sq.Eq{"cs.id": id}).
		ToSql()
	if err != nil {
		return persistence.ClassSession{}, fmt.Errorf("build session query: %w", err)
	}

	var session persistence.ClassSession
	if err := scanClassSession(r.helper.QueryRow(ctx, query, args...), &session); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ClassSession{}, persistence.ErrNotFound
		}
		return persistence.ClassSession{}, r.mapper.MapError(err)
	}
	return session, nil
}

// ListClassSessions returns sessions starting within the filter range ordered
// by start, each with its active booking count.
func (r *ClassSessionRepository) ListClassSessions(ctx context.Context, filter persistence.ClassSessionFilter) ([]persistence.ClassSessionView, error) {
	builder := sq.Select(classSessionColumns...).
		Column(sq.Expr("(SELECT COUNT(*) FROM bookings b WHERE b.session_id = cs.id AND b.status = ?) AS booked_count", persistence.BookingStatusActive)).
		From("class_sessions cs").
		OrderBy("cs.starts_at ASC", "cs.id ASC")

	if filter.ViewerID != "" {
		builder = builder.Column(sq.Expr(
			"(SELECT mb.id FROM bookings mb WHERE mb.session_id = cs.id AND mb.user_id = ? AND mb.status = ? LIMIT 1) AS my_booking_id",
			filter.ViewerID, persistence.BookingStatusActive,
		))
	} else {
		builder = builder.Column("NULL AS my_booking_id")
	}
	if !filter.From.IsZero() {
		builder = builder.Where(sq.GtOrEq{"cs.starts_at": formatTime(filter.From)})
	}
	if !filter.To.IsZero() {
		builder = builder.Where(sq.LtOrEq{"cs.starts_at": formatTime(filter.To)})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build session list query: %w", err)
	}

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var views []persistence.ClassSessionView
	for rows.Next() {
		var view persistence.ClassSessionView
		var myBooking sql.NullString
		if err := scanClassSession(rows, &view.ClassSession, &view.BookedCount, &myBooking); err != nil {
			return nil, r.mapper.MapError(err)
		}
		view.MyBookingID = stringPtr(myBooking)
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return views, nil
}

// DeleteClassSession removes a session; its bookings go with it.
func (r *ClassSessionRepository) DeleteClassSession(ctx context.Context, id string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM class_sessions WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// scanClassSession scans the class session columns followed by any extra destinations.
func scanClassSession(row rowScanner, s *persistence.ClassSession, extra ...any) error {
	var (
		instructor, notes                      sql.NullString
		startsAt, endsAt, createdAt, updatedAt string
	)
	dest := []any{&s.ID, &s.Title, &s.Type, &instructor, &notes, &startsAt, &endsAt, &s.Capacity, &createdAt, &updatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}

	s.Instructor = stringPtr(instructor)
	s.Notes = stringPtr(notes)

	var err error
	if s.StartsAt, err = parseTime(startsAt); err != nil {
		return err
	}
	if s.EndsAt, err = parseTime(endsAt); err != nil {
		return err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return err
	}
	return nil
}
