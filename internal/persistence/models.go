package persistence

import "time"

// User is an account row. Deleted users are kept for referential history.
type User struct {
	ID                  string
	Email               string
	Name                *string
	PasswordHash        *string
	Role                string
	Disabled            bool
	Deleted             bool
	DeletedAt           *time.Time
	AvailableClasses    int
	EmailVerifiedAt     *time.Time
	VerifyCodeHash      *string
	VerifyCodeExpiresAt *time.Time
	ResetCodeHash       *string
	ResetCodeExpiresAt  *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// UserFilter narrows user listings.
type UserFilter struct {
	Role           string
	Search         string
	IncludeDeleted bool
}

// ClassSession is one bookable occurrence of a class.
type ClassSession struct {
	ID         string
	Title      string
	Type       string
	Instructor *string
	Notes      *string
	StartsAt   time.Time
	EndsAt     time.Time
	Capacity   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ClassSessionView is a session annotated with its occupancy.
type ClassSessionView struct {
	ClassSession
	BookedCount int
	MyBookingID *string
}

// ClassSessionFilter selects sessions whose start lies in [From, To].
// ViewerID, when set, fills MyBookingID with the viewer's active booking.
type ClassSessionFilter struct {
	From     time.Time
	To       time.Time
	ViewerID string
}

// Booking statuses.
const (
	BookingStatusActive   = "ACTIVE"
	BookingStatusCanceled = "CANCELED"
)

// Booking is a user's seat in a session. There is at most one row per
// (SessionID, UserID).
type Booking struct {
	ID         string
	SessionID  string
	UserID     string
	Status     string
	CreatedAt  time.Time
	CanceledAt *time.Time
	Attended   bool
	AttendedAt *time.Time
}

// BookingDetail joins a booking with its user and session.
type BookingDetail struct {
	Booking
	UserEmail string
	UserName  *string
	Session   ClassSession
}

// SeatState is the capacity snapshot read inside a reservation transaction.
type SeatState struct {
	Capacity int
	Active   int
	Existing *Booking
}

// SeatAction tells ReserveSeat how to persist an admitted booking.
type SeatAction int

const (
	SeatInsert SeatAction = iota + 1
	SeatReactivate
)

// SeatRequest identifies the seat being reserved.
type SeatRequest struct {
	BookingID string
	SessionID string
	UserID    string
	Now       time.Time
}

// Session represents an authentication session persisted for a user.
type Session struct {
	ID          string
	UserID      string
	Token       string
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RevokedAt   *time.Time
}
