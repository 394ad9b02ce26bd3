package persistence

import (
	"context"
	"time"
)

// UserRepository stores accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]User, error)
}

// ClassSessionRepository stores class sessions.
type ClassSessionRepository interface {
	// CreateClassSessions inserts every session or none of them.
	CreateClassSessions(ctx context.Context, sessions []ClassSession) error
	UpdateClassSession(ctx context.Context, session ClassSession) error
	GetClassSession(ctx context.Context, id string) (ClassSession, error)
	ListClassSessions(ctx context.Context, filter ClassSessionFilter) ([]ClassSessionView, error)
	// DeleteClassSession removes the session and its bookings.
	DeleteClassSession(ctx context.Context, id string) error
}

// SeatDecider inspects the seat state and chooses how to persist the booking,
// or returns an error to abort the reservation.
type SeatDecider func(state SeatState) (SeatAction, error)

// BookingRepository stores bookings.
type BookingRepository interface {
	// ReserveSeat reads the seat state and applies decide's action in one
	// write transaction. ErrNotFound is returned when the session is missing.
	ReserveSeat(ctx context.Context, req SeatRequest, decide SeatDecider) (Booking, error)
	GetBooking(ctx context.Context, id string) (Booking, error)
	// CancelBooking marks an active booking canceled. A canceled booking is
	// returned unchanged.
	CancelBooking(ctx context.Context, id string, canceledAt time.Time, clearAttendance bool) (Booking, error)
	SetAttendance(ctx context.Context, id string, attended bool, at time.Time) (Booking, error)
	ListSessionBookings(ctx context.Context, sessionID string) ([]BookingDetail, error)
	ListUserBookings(ctx context.Context, userID string, status string) ([]BookingDetail, error)
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	RevokeUserSessions(ctx context.Context, userID string, revokedAt time.Time) error
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}
