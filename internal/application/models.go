package application

import (
	"time"

	"github.com/example/class-booking/internal/capacity"
	"github.com/example/class-booking/internal/roles"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
	Role   roles.Role
}

// Authenticated reports whether the principal identifies a signed-in user.
func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

// IsStaff reports whether the principal may manage sessions and bookings.
func (p Principal) IsStaff() bool {
	return p.Authenticated() && p.Role.IsStaff()
}

func (p Principal) subject() roles.Subject {
	return roles.Subject{ID: p.UserID, Role: p.Role}
}

// ---------------------------------------------------------------- users

// User represents an account exposed by the application services.
type User struct {
	ID               string
	Email            string
	Name             *string
	Role             roles.Role
	Disabled         bool
	Deleted          bool
	AvailableClasses int
	EmailVerifiedAt  *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (u User) subject() roles.Subject {
	return roles.Subject{ID: u.ID, Role: u.Role}
}

// UserCredentials models the authentication attributes persisted for a user.
type UserCredentials struct {
	User                User
	PasswordHash        string
	DeletedAt           *time.Time
	VerifyCodeHash      string
	VerifyCodeExpiresAt *time.Time
	ResetCodeHash       string
	ResetCodeExpiresAt  *time.Time
}

// UserFilter narrows administrative user listings.
type UserFilter struct {
	Role   roles.Role
	Search string
}

// CreateUserParams wraps the data required for an administrator to create a user.
type CreateUserParams struct {
	Principal        Principal
	Email            string
	Password         string
	Name             *string
	Role             string
	Disabled         bool
	AvailableClasses int
}

// UpdateUserParams carries a partial update. Nil fields are left unchanged.
type UpdateUserParams struct {
	Principal        Principal
	UserID           string
	Name             *string
	AvailableClasses *int
	Password         *string
	Role             *string
	Disabled         *bool
}

// ----------------------------------------------------------- sessions

// Session represents an authenticated session issued to a user.
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

// AuthenticateParams captures the data required to authenticate a user.
type AuthenticateParams struct {
	Email       string
	Password    string
	Fingerprint string
}

// AuthenticateResult captures the outcome of a successful authentication attempt.
type AuthenticateResult struct {
	User    User
	Session Session
}

// ------------------------------------------------------ class sessions

// Class session types recognised by the recurrence rules.
const (
	ClassTypeCollective = "COLLECTIVE"
	ClassTypePrivate    = "PRIVATE"
)

// DefaultCapacity is used when a create request omits the capacity.
const DefaultCapacity = 10

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

// ClassSessionListing is a session annotated with its occupancy for a viewer.
type ClassSessionListing struct {
	ClassSession
	BookedCount int
	Remaining   int
	IsFull      bool
	MyBookingID *string
}

// ClassSessionQuery selects sessions whose start lies in [From, To].
type ClassSessionQuery struct {
	From     time.Time
	To       time.Time
	ViewerID string
}

// CreateClassSessionParams describes a session template and its recurrence.
type CreateClassSessionParams struct {
	Principal  Principal
	Title      string
	Type       string
	Instructor *string
	Notes      *string
	StartsAt   time.Time
	EndsAt     time.Time
	Capacity   *int
	Recurrence string
}

// UpdateClassSessionParams carries a partial update. Nil fields are left unchanged.
type UpdateClassSessionParams struct {
	Principal  Principal
	SessionID  string
	Title      *string
	Type       *string
	Instructor *string
	Notes      *string
	StartsAt   *time.Time
	EndsAt     *time.Time
	Capacity   *int
}

// ListClassSessionsParams bounds a listing. Zero bounds fall back to the
// default window starting now.
type ListClassSessionsParams struct {
	Principal Principal
	From      time.Time
	To        time.Time
}

// ----------------------------------------------------------- bookings

// Booking is a user's seat in a class session.
type Booking struct {
	ID         string
	SessionID  string
	UserID     string
	Status     capacity.Status
	CreatedAt  time.Time
	CanceledAt *time.Time
	Attended   bool
	AttendedAt *time.Time
}

// Active reports whether the booking currently holds a seat.
func (b Booking) Active() bool {
	return b.Status == capacity.StatusActive
}

// BookingDetail joins a booking with its user and session.
type BookingDetail struct {
	Booking
	UserEmail string
	UserName  *string
	Session   ClassSession
}

// SeatReservation identifies the seat a booking request is after.
type SeatReservation struct {
	BookingID string
	SessionID string
	UserID    string
	Now       time.Time
}

// AdmitFunc decides how to persist a reservation given the seat state read
// inside the store transaction.
type AdmitFunc func(slot capacity.Slot, existing *capacity.Seat) (capacity.Decision, error)

// ------------------------------------------------------------ accounts

// RegisterParams captures a self-service sign-up.
type RegisterParams struct {
	Email    string
	Password string
	Name     *string
	Locale   string
}

// ResetPasswordParams captures a password reset completion.
type ResetPasswordParams struct {
	Email    string
	Code     string
	Password string
}
