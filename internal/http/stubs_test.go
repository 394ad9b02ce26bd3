package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/class-booking/internal/application"
	"github.com/example/class-booking/internal/roles"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sessionTable maps tokens to principals; unknown tokens are unauthorized.
type sessionTable map[string]application.Principal

func (s sessionTable) ValidateSession(_ context.Context, token string) (application.Principal, error) {
	p, ok := s[token]
	if !ok {
		return application.Principal{}, application.ErrUnauthorized
	}
	return p, nil
}

var testSessions = sessionTable{
	"client-token": {UserID: "client-1", Role: roles.Client},
	"admin-token":  {UserID: "admin-1", Role: roles.Admin},
	"super-token":  {UserID: "super-1", Role: roles.SuperAdmin},
}

type authServiceStub struct {
	authenticate func(application.AuthenticateParams) (application.AuthenticateResult, error)
	revoked      []string
	revokeErr    error
}

func (s *authServiceStub) Authenticate(_ context.Context, params application.AuthenticateParams) (application.AuthenticateResult, error) {
	return s.authenticate(params)
}

func (s *authServiceStub) RevokeSession(_ context.Context, token string) error {
	s.revoked = append(s.revoked, token)
	return s.revokeErr
}

type accountServiceStub struct {
	mu        sync.Mutex
	calls     []string
	err       error
	lastEmail string
	locale    string
}

func (s *accountServiceStub) record(call, email, locale string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	s.lastEmail = email
	s.locale = locale
	return s.err
}

func (s *accountServiceStub) Register(_ context.Context, params application.RegisterParams) (application.User, error) {
	if err := s.record("register", params.Email, params.Locale); err != nil {
		return application.User{}, err
	}
	return application.User{ID: "new-user", Email: params.Email, Role: roles.Client, Disabled: true}, nil
}

func (s *accountServiceStub) SendVerifyCode(_ context.Context, email, locale string) error {
	return s.record("send_verify_code", email, locale)
}

func (s *accountServiceStub) VerifyEmailCode(_ context.Context, email, _ string) error {
	return s.record("verify_email_code", email, "")
}

func (s *accountServiceStub) RequestPasswordReset(_ context.Context, email, locale string) error {
	return s.record("forgot_password", email, locale)
}

func (s *accountServiceStub) ResetPassword(_ context.Context, params application.ResetPasswordParams) error {
	return s.record("reset_password", params.Email, "")
}

func (s *accountServiceStub) DeleteAccount(_ context.Context, principal application.Principal) error {
	return s.record("delete_account", principal.UserID, "")
}

type classServiceStub struct {
	created    application.CreateClassSessionParams
	createErr  error
	updated    application.UpdateClassSessionParams
	updateErr  error
	deleted    string
	sessions   map[string]application.ClassSession
	listParams application.ListClassSessionsParams
	listings   []application.ClassSessionListing
}

func (s *classServiceStub) CreateClassSession(_ context.Context, params application.CreateClassSessionParams) ([]application.ClassSession, error) {
	s.created = params
	if s.createErr != nil {
		return nil, s.createErr
	}
	return []application.ClassSession{
		{ID: "cs-1", Title: params.Title, Type: application.ClassTypeCollective, StartsAt: params.StartsAt, EndsAt: params.EndsAt, Capacity: 10},
		{ID: "cs-2", Title: params.Title, Type: application.ClassTypeCollective, StartsAt: params.StartsAt.AddDate(0, 0, 7), EndsAt: params.EndsAt.AddDate(0, 0, 7), Capacity: 10},
	}, nil
}

func (s *classServiceStub) UpdateClassSession(_ context.Context, params application.UpdateClassSessionParams) (application.ClassSession, error) {
	s.updated = params
	if s.updateErr != nil {
		return application.ClassSession{}, s.updateErr
	}
	session := s.sessions[params.SessionID]
	if params.Capacity != nil {
		session.Capacity = *params.Capacity
	}
	return session, nil
}

func (s *classServiceStub) DeleteClassSession(_ context.Context, principal application.Principal, sessionID string) error {
	if !principal.IsStaff() {
		return application.ErrForbidden
	}
	if _, ok := s.sessions[sessionID]; !ok {
		return application.ErrNotFound
	}
	s.deleted = sessionID
	return nil
}

func (s *classServiceStub) GetClassSession(_ context.Context, sessionID string) (application.ClassSession, error) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return application.ClassSession{}, application.ErrNotFound
	}
	return session, nil
}

func (s *classServiceStub) ListClassSessions(_ context.Context, params application.ListClassSessionsParams) ([]application.ClassSessionListing, error) {
	s.listParams = params
	return s.listings, nil
}

type bookingServiceStub struct {
	bookErr      error
	booked       []string
	cancelErr    error
	adminCancels []string
	cancels      []string
	attendance   map[string]bool
	details      []application.BookingDetail
}

func (s *bookingServiceStub) Book(_ context.Context, principal application.Principal, sessionID string) (application.Booking, error) {
	if s.bookErr != nil {
		return application.Booking{}, s.bookErr
	}
	s.booked = append(s.booked, sessionID)
	return application.Booking{ID: "b-1", SessionID: sessionID, UserID: principal.UserID, Status: "ACTIVE", CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}, nil
}

func (s *bookingServiceStub) Cancel(_ context.Context, principal application.Principal, bookingID string) (application.Booking, error) {
	if s.cancelErr != nil {
		return application.Booking{}, s.cancelErr
	}
	s.cancels = append(s.cancels, bookingID)
	return application.Booking{ID: bookingID, UserID: principal.UserID, Status: "CANCELED"}, nil
}

func (s *bookingServiceStub) CancelAsAdmin(_ context.Context, _ application.Principal, bookingID string) (application.Booking, error) {
	s.adminCancels = append(s.adminCancels, bookingID)
	return application.Booking{ID: bookingID, Status: "CANCELED"}, nil
}

func (s *bookingServiceStub) SetAttendance(_ context.Context, _ application.Principal, bookingID string, attended bool) (application.Booking, error) {
	if s.attendance == nil {
		s.attendance = map[string]bool{}
	}
	s.attendance[bookingID] = attended
	return application.Booking{ID: bookingID, Status: "ACTIVE", Attended: attended}, nil
}

func (s *bookingServiceStub) ListSessionBookings(_ context.Context, _ application.Principal, _ string) ([]application.BookingDetail, error) {
	return s.details, nil
}

func (s *bookingServiceStub) ListMyBookings(_ context.Context, _ application.Principal) ([]application.BookingDetail, error) {
	return s.details, nil
}

type userServiceStub struct {
	users     map[string]application.User
	lastRole  string
	filter    application.UserFilter
	updated   application.UpdateUserParams
	createErr error
}

func (s *userServiceStub) ListUsers(_ context.Context, _ application.Principal, filter application.UserFilter) ([]application.User, error) {
	s.filter = filter
	out := make([]application.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *userServiceStub) GetUser(_ context.Context, _ application.Principal, userID string) (application.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return application.User{}, application.ErrNotFound
	}
	return u, nil
}

func (s *userServiceStub) CreateUser(_ context.Context, params application.CreateUserParams) (application.User, error) {
	if s.createErr != nil {
		return application.User{}, s.createErr
	}
	return application.User{ID: "u-new", Email: params.Email, Role: roles.Role(params.Role)}, nil
}

func (s *userServiceStub) UpdateUser(_ context.Context, params application.UpdateUserParams) (application.User, error) {
	s.updated = params
	return s.users[params.UserID], nil
}

func (s *userServiceStub) SetUserDisabled(_ context.Context, principal application.Principal, userID string, disabled bool) (application.User, error) {
	if principal.UserID == userID {
		return application.User{}, application.ErrSelfMutation
	}
	u := s.users[userID]
	u.Disabled = disabled
	return u, nil
}

func (s *userServiceStub) SetUserRole(_ context.Context, principal application.Principal, userID string, role string) (application.User, error) {
	if principal.UserID == userID {
		return application.User{}, application.ErrSelfMutation
	}
	s.lastRole = role
	u := s.users[userID]
	u.Role = roles.Role(role)
	return u, nil
}

type testServer struct {
	auth     *authServiceStub
	accounts *accountServiceStub
	classes  *classServiceStub
	bookings *bookingServiceStub
	users    *userServiceStub
	handler  http.Handler
}

func newTestServer(t *testing.T, limiter RateLimiter) *testServer {
	t.Helper()

	ts := &testServer{
		auth:     &authServiceStub{},
		accounts: &accountServiceStub{},
		classes:  &classServiceStub{sessions: map[string]application.ClassSession{}},
		bookings: &bookingServiceStub{},
		users:    &userServiceStub{users: map[string]application.User{}},
	}
	logger := discardLogger()
	ts.handler = NewRouter(RouterConfig{
		Auth:     NewAuthHandler(ts.auth, ts.accounts, false, logger),
		Classes:  NewClassHandler(ts.classes, time.UTC, logger),
		Bookings: NewBookingHandler(ts.bookings, logger),
		Users:    NewUserHandler(ts.users, logger),
		Sessions: testSessions,
		Limiter:  limiter,
		Logger:   logger,
	})
	return ts
}

func (ts *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}
