package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/class-booking/internal/application"
	"github.com/example/class-booking/internal/capacity"
	"github.com/example/class-booking/internal/persistence"
	"github.com/example/class-booking/internal/roles"
)

var (
	userCounter         uint64
	classSessionCounter uint64
	bookingCounter      uint64
	sessionCounter      uint64
)

var referenceTime = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic user record that can be materialised
// for application or persistence tests.
type UserFixture struct {
	ID               string
	Email            string
	Name             *string
	PasswordHash     string
	Role             roles.Role
	Disabled         bool
	Deleted          bool
	AvailableClasses int
	EmailVerifiedAt  *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic, verified client fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	name := fmt.Sprintf("User %03d", idx)
	fixture := UserFixture{
		ID:              id,
		Email:           fmt.Sprintf("%s@example.com", id),
		Name:            &name,
		PasswordHash:    fmt.Sprintf("hash-%03d", idx),
		Role:            roles.Client,
		EmailVerifiedAt: &created,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = email
	}
}

// WithUserRole sets the role on the generated fixture.
func WithUserRole(role roles.Role) UserOption {
	return func(f *UserFixture) {
		f.Role = role
	}
}

// WithUserPasswordHash overrides the generated password hash.
func WithUserPasswordHash(hash string) UserOption {
	return func(f *UserFixture) {
		f.PasswordHash = hash
	}
}

// WithUserDisabled marks the account disabled.
func WithUserDisabled() UserOption {
	return func(f *UserFixture) {
		f.Disabled = true
	}
}

// WithUserDeleted marks the account soft-deleted.
func WithUserDeleted() UserOption {
	return func(f *UserFixture) {
		f.Deleted = true
	}
}

// WithUserUnverified clears the verification timestamp.
func WithUserUnverified() UserOption {
	return func(f *UserFixture) {
		f.EmailVerifiedAt = nil
	}
}

// WithUserAvailableClasses sets the class credit counter.
func WithUserAvailableClasses(n int) UserOption {
	return func(f *UserFixture) {
		f.AvailableClasses = n
	}
}

// Application returns the fixture as an application.User value.
func (f UserFixture) Application() application.User {
	return application.User{
		ID:               f.ID,
		Email:            f.Email,
		Name:             copyStringPtr(f.Name),
		Role:             f.Role,
		Disabled:         f.Disabled,
		Deleted:          f.Deleted,
		AvailableClasses: f.AvailableClasses,
		EmailVerifiedAt:  copyTimePtr(f.EmailVerifiedAt),
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

// Credentials returns the fixture as application.UserCredentials.
func (f UserFixture) Credentials() application.UserCredentials {
	return application.UserCredentials{
		User:         f.Application(),
		PasswordHash: f.PasswordHash,
	}
}

// Principal returns an application.Principal derived from the fixture.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, Role: f.Role}
}

// Persistence returns the fixture as a persistence.User value.
func (f UserFixture) Persistence() persistence.User {
	hash := f.PasswordHash
	var deletedAt *time.Time
	if f.Deleted {
		deletedAt = copyTimePtr(&f.UpdatedAt)
	}
	return persistence.User{
		ID:               f.ID,
		Email:            f.Email,
		Name:             copyStringPtr(f.Name),
		PasswordHash:     &hash,
		Role:             string(f.Role),
		Disabled:         f.Disabled,
		Deleted:          f.Deleted,
		DeletedAt:        deletedAt,
		AvailableClasses: f.AvailableClasses,
		EmailVerifiedAt:  copyTimePtr(f.EmailVerifiedAt),
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

// ------------------------- Class session fixtures ------------------------

// ClassSessionFixture represents a deterministic class session.
type ClassSessionFixture struct {
	ID         string
	Title      string
	Type       string
	Instructor *string
	StartsAt   time.Time
	EndsAt     time.Time
	Capacity   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ClassSessionOption configures the generated class session fixture.
type ClassSessionOption func(*ClassSessionFixture)

// NewClassSessionFixture returns a one-hour collective session starting a day
// after the previous fixture.
func NewClassSessionFixture(opts ...ClassSessionOption) ClassSessionFixture {
	idx := atomic.AddUint64(&classSessionCounter, 1)
	start := referenceTime.AddDate(0, 0, int(idx))
	fixture := ClassSessionFixture{
		ID:        fmt.Sprintf("class-%03d", idx),
		Title:     fmt.Sprintf("Pilates %03d", idx),
		Type:      application.ClassTypeCollective,
		StartsAt:  start,
		EndsAt:    start.Add(time.Hour),
		Capacity:  application.DefaultCapacity,
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithClassSessionID overrides the generated ID.
func WithClassSessionID(id string) ClassSessionOption {
	return func(f *ClassSessionFixture) {
		f.ID = id
	}
}

// WithClassSessionTimes sets the start and end.
func WithClassSessionTimes(start, end time.Time) ClassSessionOption {
	return func(f *ClassSessionFixture) {
		f.StartsAt = start
		f.EndsAt = end
	}
}

// WithClassSessionCapacity sets the seat count.
func WithClassSessionCapacity(n int) ClassSessionOption {
	return func(f *ClassSessionFixture) {
		f.Capacity = n
	}
}

// WithClassSessionType sets the class type.
func WithClassSessionType(kind string) ClassSessionOption {
	return func(f *ClassSessionFixture) {
		f.Type = kind
	}
}

// WithClassSessionInstructor sets the instructor name.
func WithClassSessionInstructor(name string) ClassSessionOption {
	return func(f *ClassSessionFixture) {
		f.Instructor = &name
	}
}

// Application returns the fixture as an application.ClassSession value.
func (f ClassSessionFixture) Application() application.ClassSession {
	return application.ClassSession{
		ID:         f.ID,
		Title:      f.Title,
		Type:       f.Type,
		Instructor: copyStringPtr(f.Instructor),
		StartsAt:   f.StartsAt,
		EndsAt:     f.EndsAt,
		Capacity:   f.Capacity,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
}

// Persistence returns the fixture as a persistence.ClassSession value.
func (f ClassSessionFixture) Persistence() persistence.ClassSession {
	return persistence.ClassSession{
		ID:         f.ID,
		Title:      f.Title,
		Type:       f.Type,
		Instructor: copyStringPtr(f.Instructor),
		StartsAt:   f.StartsAt,
		EndsAt:     f.EndsAt,
		Capacity:   f.Capacity,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
}

// ----------------------------- Booking fixtures --------------------------

// BookingFixture represents a deterministic booking.
type BookingFixture struct {
	ID         string
	SessionID  string
	UserID     string
	Status     capacity.Status
	CreatedAt  time.Time
	CanceledAt *time.Time
	Attended   bool
}

// BookingOption configures the generated booking fixture.
type BookingOption func(*BookingFixture)

// NewBookingFixture returns an active booking fixture.
func NewBookingFixture(opts ...BookingOption) BookingFixture {
	idx := atomic.AddUint64(&bookingCounter, 1)
	fixture := BookingFixture{
		ID:        fmt.Sprintf("booking-%03d", idx),
		SessionID: fmt.Sprintf("class-%03d", idx),
		UserID:    fmt.Sprintf("user-%03d", idx),
		Status:    capacity.StatusActive,
		CreatedAt: referenceTime.Add(time.Duration(idx) * time.Second),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithBookingID overrides the generated ID.
func WithBookingID(id string) BookingOption {
	return func(f *BookingFixture) {
		f.ID = id
	}
}

// WithBookingSeat sets the session and user of the booking.
func WithBookingSeat(sessionID, userID string) BookingOption {
	return func(f *BookingFixture) {
		f.SessionID = sessionID
		f.UserID = userID
	}
}

// WithBookingCanceled marks the booking canceled at t.
func WithBookingCanceled(t time.Time) BookingOption {
	return func(f *BookingFixture) {
		f.Status = capacity.StatusCanceled
		f.CanceledAt = &t
	}
}

// WithBookingAttended marks the booking attended.
func WithBookingAttended() BookingOption {
	return func(f *BookingFixture) {
		f.Attended = true
	}
}

// Application returns the fixture as an application.Booking value.
func (f BookingFixture) Application() application.Booking {
	b := application.Booking{
		ID:         f.ID,
		SessionID:  f.SessionID,
		UserID:     f.UserID,
		Status:     f.Status,
		CreatedAt:  f.CreatedAt,
		CanceledAt: copyTimePtr(f.CanceledAt),
		Attended:   f.Attended,
	}
	if f.Attended {
		b.AttendedAt = copyTimePtr(&f.CreatedAt)
	}
	return b
}

// ----------------------------- Session fixtures -------------------------

// SessionFixture represents a deterministic session record.
type SessionFixture struct {
	ID          string
	UserID      string
	Token       string
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RevokedAt   *time.Time
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a deterministic session fixture with optional overrides.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	created := referenceTime
	fixture := SessionFixture{
		ID:          fmt.Sprintf("session-%03d", idx),
		UserID:      fmt.Sprintf("user-%03d", idx),
		Token:       fmt.Sprintf("token-%03d", idx),
		Fingerprint: fmt.Sprintf("fingerprint-%03d", idx),
		ExpiresAt:   created.Add(24 * time.Hour),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionUserID sets the user ID.
func WithSessionUserID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.UserID = id
	}
}

// WithSessionToken overrides the token value.
func WithSessionToken(token string) SessionOption {
	return func(f *SessionFixture) {
		f.Token = token
	}
}

// WithSessionExpiresAt sets the expiration timestamp.
func WithSessionExpiresAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.ExpiresAt = t
	}
}

// WithSessionRevokedAt sets the optional revoked timestamp.
func WithSessionRevokedAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		revoked := t
		f.RevokedAt = &revoked
	}
}

// Application returns the fixture as an application.Session value.
func (f SessionFixture) Application() application.Session {
	return application.Session{
		ID:          f.ID,
		UserID:      f.UserID,
		Token:       f.Token,
		Fingerprint: f.Fingerprint,
		ExpiresAt:   f.ExpiresAt,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
		RevokedAt:   copyTimePtr(f.RevokedAt),
	}
}

// Persistence returns the fixture as a persistence.Session value.
func (f SessionFixture) Persistence() persistence.Session {
	return persistence.Session{
		ID:          f.ID,
		UserID:      f.UserID,
		Token:       f.Token,
		Fingerprint: f.Fingerprint,
		ExpiresAt:   f.ExpiresAt,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
		RevokedAt:   copyTimePtr(f.RevokedAt),
	}
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
