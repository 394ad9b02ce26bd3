package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/class-booking/internal/capacity"
	"github.com/example/class-booking/internal/roles"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// plainHash and plainVerify stand in for argon2id so tests stay fast.
func plainHash(password string) (string, error) {
	return "plain:" + password, nil
}

func plainVerify(hashed, password string) error {
	if hashed != "plain:"+password {
		return ErrInvalidCredentials
	}
	return nil
}

func staff(id string) Principal {
	return Principal{UserID: id, Role: roles.Admin}
}

func superAdmin(id string) Principal {
	return Principal{UserID: id, Role: roles.SuperAdmin}
}

func client(id string) Principal {
	return Principal{UserID: id, Role: roles.Client}
}

func ptr[T any](v T) *T {
	return &v
}

// userStoreStub implements CredentialStore and UserRepository in memory.
type userStoreStub struct {
	byID map[string]UserCredentials

	createErr error
	getErr    error
	updateErr error
	listErr   error

	updates     []UserCredentials
	lastFilter  UserFilter
	revokeCalls []string
	revokeErr   error
}

func newUserStoreStub(users ...UserCredentials) *userStoreStub {
	s := &userStoreStub{byID: make(map[string]UserCredentials)}
	for _, u := range users {
		s.byID[u.User.ID] = u
	}
	return s
}

func (s *userStoreStub) CreateUser(ctx context.Context, creds UserCredentials) (User, error) {
	if s.createErr != nil {
		return User{}, s.createErr
	}
	for _, existing := range s.byID {
		if existing.User.Email == creds.User.Email {
			return User{}, ErrAlreadyExists
		}
	}
	s.byID[creds.User.ID] = creds
	return creds.User, nil
}

func (s *userStoreStub) GetUserCredentials(ctx context.Context, id string) (UserCredentials, error) {
	if s.getErr != nil {
		return UserCredentials{}, s.getErr
	}
	creds, ok := s.byID[id]
	if !ok {
		return UserCredentials{}, ErrNotFound
	}
	return creds, nil
}

func (s *userStoreStub) GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error) {
	if s.getErr != nil {
		return UserCredentials{}, s.getErr
	}
	for _, creds := range s.byID {
		if creds.User.Email == email {
			return creds, nil
		}
	}
	return UserCredentials{}, ErrNotFound
}

func (s *userStoreStub) UpdateUserCredentials(ctx context.Context, creds UserCredentials) (User, error) {
	if s.updateErr != nil {
		return User{}, s.updateErr
	}
	if _, ok := s.byID[creds.User.ID]; !ok {
		return User{}, ErrNotFound
	}
	s.byID[creds.User.ID] = creds
	s.updates = append(s.updates, creds)
	return creds.User, nil
}

func (s *userStoreStub) ListUsers(ctx context.Context, filter UserFilter) ([]User, error) {
	s.lastFilter = filter
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []User
	for _, creds := range s.byID {
		if creds.User.Deleted {
			continue
		}
		if filter.Role != "" && creds.User.Role != filter.Role {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(creds.User.Email), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, creds.User)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *userStoreStub) RevokeUserSessions(ctx context.Context, userID string, revokedAt time.Time) error {
	if s.revokeErr != nil {
		return s.revokeErr
	}
	s.revokeCalls = append(s.revokeCalls, userID)
	return nil
}

// sessionRepositoryStub provides an in-memory implementation of SessionRepository for tests.
type sessionRepositoryStub struct {
	sessionsByID map[string]Session
	tokenToID    map[string]string

	createErr error
	getErr    error
	revokeErr error
	deleteErr error

	deleteCalls []time.Time
}

func newSessionRepositoryStub() *sessionRepositoryStub {
	return &sessionRepositoryStub{
		sessionsByID: make(map[string]Session),
		tokenToID:    make(map[string]string),
	}
}

func (s *sessionRepositoryStub) seed(session Session) {
	s.sessionsByID[session.ID] = cloneSession(session)
	s.tokenToID[session.Token] = session.ID
}

func (s *sessionRepositoryStub) CreateSession(ctx context.Context, session Session) (Session, error) {
	if s.createErr != nil {
		return Session{}, s.createErr
	}
	s.seed(session)
	return cloneSession(session), nil
}

func (s *sessionRepositoryStub) GetSession(ctx context.Context, token string) (Session, error) {
	if s.getErr != nil {
		return Session{}, s.getErr
	}
	id, ok := s.tokenToID[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	return cloneSession(s.sessionsByID[id]), nil
}

func (s *sessionRepositoryStub) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error) {
	if s.revokeErr != nil {
		return Session{}, s.revokeErr
	}
	id, ok := s.tokenToID[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	session := s.sessionsByID[id]
	revoked := revokedAt.UTC()
	session.RevokedAt = &revoked
	session.UpdatedAt = revoked
	s.sessionsByID[id] = session
	return cloneSession(session), nil
}

func (s *sessionRepositoryStub) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	cutoff := reference.UTC()
	s.deleteCalls = append(s.deleteCalls, cutoff)
	for id, session := range s.sessionsByID {
		if session.ExpiresAt.IsZero() {
			continue
		}
		if !session.ExpiresAt.After(cutoff) {
			delete(s.sessionsByID, id)
			delete(s.tokenToID, session.Token)
		}
	}
	return nil
}

func cloneSession(session Session) Session {
	clone := session
	if session.RevokedAt != nil {
		revoked := session.RevokedAt.UTC()
		clone.RevokedAt = &revoked
	}
	return clone
}

// classSessionStub implements ClassSessionRepository in memory. Batch creates
// are all-or-nothing on duplicate IDs.
type classSessionStub struct {
	byID map[string]ClassSession

	createErr error
	listErr   error

	created    [][]ClassSession
	lastQuery  ClassSessionQuery
	listResult []ClassSessionListing
}

func newClassSessionStub(sessions ...ClassSession) *classSessionStub {
	s := &classSessionStub{byID: make(map[string]ClassSession)}
	for _, session := range sessions {
		s.byID[session.ID] = session
	}
	return s
}

func (s *classSessionStub) CreateClassSessions(ctx context.Context, sessions []ClassSession) error {
	if s.createErr != nil {
		return s.createErr
	}
	for _, session := range sessions {
		if _, ok := s.byID[session.ID]; ok {
			return ErrAlreadyExists
		}
	}
	for _, session := range sessions {
		s.byID[session.ID] = session
	}
	s.created = append(s.created, sessions)
	return nil
}

func (s *classSessionStub) UpdateClassSession(ctx context.Context, session ClassSession) error {
	if _, ok := s.byID[session.ID]; !ok {
		return ErrNotFound
	}
	s.byID[session.ID] = session
	return nil
}

func (s *classSessionStub) GetClassSession(ctx context.Context, id string) (ClassSession, error) {
	session, ok := s.byID[id]
	if !ok {
		return ClassSession{}, ErrNotFound
	}
	return session, nil
}

func (s *classSessionStub) ListClassSessions(ctx context.Context, query ClassSessionQuery) ([]ClassSessionListing, error) {
	s.lastQuery = query
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]ClassSessionListing, len(s.listResult))
	copy(out, s.listResult)
	return out, nil
}

func (s *classSessionStub) DeleteClassSession(ctx context.Context, id string) error {
	if _, ok := s.byID[id]; !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

// bookingStoreStub implements BookingRepository with a mutex standing in for
// the store's write transaction.
type bookingStoreStub struct {
	mu         sync.Mutex
	capacities map[string]int
	bookings   map[string]Booking

	reserveErr error
	cancels    []bool
}

func newBookingStoreStub() *bookingStoreStub {
	return &bookingStoreStub{
		capacities: make(map[string]int),
		bookings:   make(map[string]Booking),
	}
}

func (s *bookingStoreStub) ReserveSeat(ctx context.Context, req SeatReservation, admit AdmitFunc) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reserveErr != nil {
		return Booking{}, s.reserveErr
	}
	limit, ok := s.capacities[req.SessionID]
	if !ok {
		return Booking{}, ErrNotFound
	}

	slot := capacity.Slot{Capacity: limit}
	var existing *Booking
	for id, b := range s.bookings {
		if b.SessionID != req.SessionID {
			continue
		}
		if b.Active() {
			slot.Active++
		}
		if b.UserID == req.UserID {
			found := s.bookings[id]
			existing = &found
		}
	}

	var seat *capacity.Seat
	if existing != nil {
		seat = &capacity.Seat{BookingID: existing.ID, Status: existing.Status}
	}
	decision, err := admit(slot, seat)
	if err != nil {
		return Booking{}, err
	}

	switch decision {
	case capacity.DecisionInsert:
		booking := Booking{
			ID:        req.BookingID,
			SessionID: req.SessionID,
			UserID:    req.UserID,
			Status:    capacity.StatusActive,
			CreatedAt: req.Now,
		}
		s.bookings[booking.ID] = booking
		return booking, nil
	case capacity.DecisionReactivate:
		booking := *existing
		booking.Status = capacity.StatusActive
		booking.CanceledAt = nil
		s.bookings[booking.ID] = booking
		return booking, nil
	}
	return Booking{}, errors.New("unknown decision")
}

func (s *bookingStoreStub) GetBooking(ctx context.Context, id string) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	return b, nil
}

func (s *bookingStoreStub) CancelBooking(ctx context.Context, id string, canceledAt time.Time, clearAttendance bool) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	s.cancels = append(s.cancels, clearAttendance)
	if b.Active() {
		b.Status = capacity.StatusCanceled
		b.CanceledAt = &canceledAt
		if clearAttendance {
			b.Attended = false
			b.AttendedAt = nil
		}
		s.bookings[id] = b
	}
	return b, nil
}

func (s *bookingStoreStub) SetAttendance(ctx context.Context, id string, attended bool, at time.Time) (Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	b.Attended = attended
	b.AttendedAt = nil
	if attended {
		b.AttendedAt = &at
	}
	s.bookings[id] = b
	return b, nil
}

func (s *bookingStoreStub) ListSessionBookings(ctx context.Context, sessionID string) ([]BookingDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []BookingDetail
	for _, b := range s.bookings {
		if b.SessionID == sessionID {
			out = append(out, BookingDetail{Booking: b})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *bookingStoreStub) ListUserBookings(ctx context.Context, userID string, status capacity.Status) ([]BookingDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []BookingDetail
	for _, b := range s.bookings {
		if b.UserID == userID && (status == "" || b.Status == status) {
			out = append(out, BookingDetail{Booking: b})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// mailerStub records the codes it was asked to send.
type mailerStub struct {
	verify []sentCode
	reset  []sentCode
	err    error
}

type sentCode struct {
	to     string
	code   string
	locale string
}

func (m *mailerStub) SendVerificationCode(ctx context.Context, to, code, locale string) error {
	m.verify = append(m.verify, sentCode{to: to, code: code, locale: locale})
	return m.err
}

func (m *mailerStub) SendPasswordResetCode(ctx context.Context, to, code, locale string) error {
	m.reset = append(m.reset, sentCode{to: to, code: code, locale: locale})
	return m.err
}

// outcomeRecorderStub counts booking outcomes.
type outcomeRecorderStub struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (r *outcomeRecorderStub) BookingOutcome(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]int)
	}
	r.outcomes[outcome]++
}
