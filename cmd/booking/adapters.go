package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/class-booking/internal/application"
	"github.com/example/class-booking/internal/capacity"
	"github.com/example/class-booking/internal/persistence"
	"github.com/example/class-booking/internal/roles"
)

// storeError translates persistence sentinels into the application errors the
// services branch on. Anything else is passed through and surfaces as a 500.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound), errors.Is(err, persistence.ErrForeignKeyViolation):
		return fmt.Errorf("%w: %v", application.ErrNotFound, err)
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: %v", application.ErrAlreadyExists, err)
	}
	return err
}

type userRepositoryAdapter struct {
	repo persistence.UserRepository
}

func newUserRepositoryAdapter(repo persistence.UserRepository) *userRepositoryAdapter {
	return &userRepositoryAdapter{repo: repo}
}

func (a *userRepositoryAdapter) CreateUser(ctx context.Context, creds application.UserCredentials) (application.User, error) {
	if err := a.repo.CreateUser(ctx, toPersistenceUser(creds)); err != nil {
		return application.User{}, storeError(err)
	}
	stored, err := a.repo.GetUser(ctx, creds.User.ID)
	if err != nil {
		return application.User{}, storeError(err)
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) GetUserCredentials(ctx context.Context, id string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.UserCredentials{}, storeError(err)
	}
	return toApplicationCredentials(stored), nil
}

func (a *userRepositoryAdapter) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return application.UserCredentials{}, storeError(err)
	}
	return toApplicationCredentials(stored), nil
}

func (a *userRepositoryAdapter) UpdateUserCredentials(ctx context.Context, creds application.UserCredentials) (application.User, error) {
	if err := a.repo.UpdateUser(ctx, toPersistenceUser(creds)); err != nil {
		return application.User{}, storeError(err)
	}
	stored, err := a.repo.GetUser(ctx, creds.User.ID)
	if err != nil {
		return application.User{}, storeError(err)
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) ListUsers(ctx context.Context, filter application.UserFilter) ([]application.User, error) {
	stored, err := a.repo.ListUsers(ctx, persistence.UserFilter{
		Role:   string(filter.Role),
		Search: filter.Search,
	})
	if err != nil {
		return nil, storeError(err)
	}
	users := make([]application.User, 0, len(stored))
	for _, u := range stored {
		users = append(users, toApplicationUser(u))
	}
	return users, nil
}

type sessionRepositoryAdapter struct {
	repo persistence.SessionRepository
}

func newSessionRepositoryAdapter(repo persistence.SessionRepository) *sessionRepositoryAdapter {
	return &sessionRepositoryAdapter{repo: repo}
}

func (a *sessionRepositoryAdapter) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := a.repo.CreateSession(ctx, toPersistenceSession(session))
	if err != nil {
		return application.Session{}, storeError(err)
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) GetSession(ctx context.Context, token string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, token)
	if err != nil {
		return application.Session{}, storeError(err)
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (application.Session, error) {
	stored, err := a.repo.RevokeSession(ctx, token, revokedAt)
	if err != nil {
		return application.Session{}, storeError(err)
	}
	return toApplicationSession(stored), nil
}

func (a *sessionRepositoryAdapter) RevokeUserSessions(ctx context.Context, userID string, revokedAt time.Time) error {
	return storeError(a.repo.RevokeUserSessions(ctx, userID, revokedAt))
}

func (a *sessionRepositoryAdapter) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	return storeError(a.repo.DeleteExpiredSessions(ctx, reference))
}

type classSessionRepositoryAdapter struct {
	repo persistence.ClassSessionRepository
}

func newClassSessionRepositoryAdapter(repo persistence.ClassSessionRepository) *classSessionRepositoryAdapter {
	return &classSessionRepositoryAdapter{repo: repo}
}

func (a *classSessionRepositoryAdapter) CreateClassSessions(ctx context.Context, sessions []application.ClassSession) error {
	rows := make([]persistence.ClassSession, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, toPersistenceClassSession(s))
	}
	return storeError(a.repo.CreateClassSessions(ctx, rows))
}

func (a *classSessionRepositoryAdapter) UpdateClassSession(ctx context.Context, session application.ClassSession) error {
	return storeError(a.repo.UpdateClassSession(ctx, toPersistenceClassSession(session)))
}

func (a *classSessionRepositoryAdapter) GetClassSession(ctx context.Context, id string) (application.ClassSession, error) {
	stored, err := a.repo.GetClassSession(ctx, id)
	if err != nil {
		return application.ClassSession{}, storeError(err)
	}
	return toApplicationClassSession(stored), nil
}

func (a *classSessionRepositoryAdapter) ListClassSessions(ctx context.Context, query application.ClassSessionQuery) ([]application.ClassSessionListing, error) {
	views, err := a.repo.ListClassSessions(ctx, persistence.ClassSessionFilter{
		From:     query.From,
		To:       query.To,
		ViewerID: query.ViewerID,
	})
	if err != nil {
		return nil, storeError(err)
	}
	listings := make([]application.ClassSessionListing, 0, len(views))
	for _, v := range views {
		listings = append(listings, application.ClassSessionListing{
			ClassSession: toApplicationClassSession(v.ClassSession),
			BookedCount:  v.BookedCount,
			MyBookingID:  cloneString(v.MyBookingID),
		})
	}
	return listings, nil
}

func (a *classSessionRepositoryAdapter) DeleteClassSession(ctx context.Context, id string) error {
	return storeError(a.repo.DeleteClassSession(ctx, id))
}

type bookingRepositoryAdapter struct {
	repo persistence.BookingRepository
}

func newBookingRepositoryAdapter(repo persistence.BookingRepository) *bookingRepositoryAdapter {
	return &bookingRepositoryAdapter{repo: repo}
}

func (a *bookingRepositoryAdapter) ReserveSeat(ctx context.Context, req application.SeatReservation, admit application.AdmitFunc) (application.Booking, error) {
	if admit == nil {
		admit = capacity.Admit
	}
	stored, err := a.repo.ReserveSeat(ctx, persistence.SeatRequest{
		BookingID: req.BookingID,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Now:       req.Now,
	}, seatDecider(admit))
	if err != nil {
		return application.Booking{}, storeError(err)
	}
	return toApplicationBooking(stored), nil
}

// seatDecider runs admit against the state read inside the reservation
// transaction.
func seatDecider(admit application.AdmitFunc) persistence.SeatDecider {
	return func(state persistence.SeatState) (persistence.SeatAction, error) {
		var existing *capacity.Seat
		if state.Existing != nil {
			existing = &capacity.Seat{
				BookingID: state.Existing.ID,
				Status:    capacity.Status(state.Existing.Status),
			}
		}
		decision, err := admit(capacity.Slot{Capacity: state.Capacity, Active: state.Active}, existing)
		if err != nil {
			return 0, err
		}
		switch decision {
		case capacity.DecisionInsert:
			return persistence.SeatInsert, nil
		case capacity.DecisionReactivate:
			return persistence.SeatReactivate, nil
		}
		return 0, fmt.Errorf("unsupported seat decision %s", decision)
	}
}

func (a *bookingRepositoryAdapter) GetBooking(ctx context.Context, id string) (application.Booking, error) {
	stored, err := a.repo.GetBooking(ctx, id)
	if err != nil {
		return application.Booking{}, storeError(err)
	}
	return toApplicationBooking(stored), nil
}

func (a *bookingRepositoryAdapter) CancelBooking(ctx context.Context, id string, canceledAt time.Time, clearAttendance bool) (application.Booking, error) {
	stored, err := a.repo.CancelBooking(ctx, id, canceledAt, clearAttendance)
	if err != nil {
		return application.Booking{}, storeError(err)
	}
	return toApplicationBooking(stored), nil
}

func (a *bookingRepositoryAdapter) SetAttendance(ctx context.Context, id string, attended bool, at time.Time) (application.Booking, error) {
	stored, err := a.repo.SetAttendance(ctx, id, attended, at)
	if err != nil {
		return application.Booking{}, storeError(err)
	}
	return toApplicationBooking(stored), nil
}

func (a *bookingRepositoryAdapter) ListSessionBookings(ctx context.Context, sessionID string) ([]application.BookingDetail, error) {
	stored, err := a.repo.ListSessionBookings(ctx, sessionID)
	if err != nil {
		return nil, storeError(err)
	}
	return toApplicationBookingDetails(stored), nil
}

func (a *bookingRepositoryAdapter) ListUserBookings(ctx context.Context, userID string, status capacity.Status) ([]application.BookingDetail, error) {
	stored, err := a.repo.ListUserBookings(ctx, userID, string(status))
	if err != nil {
		return nil, storeError(err)
	}
	return toApplicationBookingDetails(stored), nil
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:               model.ID,
		Email:            model.Email,
		Name:             cloneString(model.Name),
		Role:             roles.Role(model.Role),
		Disabled:         model.Disabled,
		Deleted:          model.Deleted,
		AvailableClasses: model.AvailableClasses,
		EmailVerifiedAt:  cloneTime(model.EmailVerifiedAt),
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}

func toApplicationCredentials(model persistence.User) application.UserCredentials {
	return application.UserCredentials{
		User:                toApplicationUser(model),
		PasswordHash:        derefString(model.PasswordHash),
		DeletedAt:           cloneTime(model.DeletedAt),
		VerifyCodeHash:      derefString(model.VerifyCodeHash),
		VerifyCodeExpiresAt: cloneTime(model.VerifyCodeExpiresAt),
		ResetCodeHash:       derefString(model.ResetCodeHash),
		ResetCodeExpiresAt:  cloneTime(model.ResetCodeExpiresAt),
	}
}

func toPersistenceUser(creds application.UserCredentials) persistence.User {
	user := creds.User
	return persistence.User{
		ID:                  user.ID,
		Email:               user.Email,
		Name:                cloneString(user.Name),
		PasswordHash:        optionalString(creds.PasswordHash),
		Role:                string(user.Role),
		Disabled:            user.Disabled,
		Deleted:             user.Deleted,
		DeletedAt:           cloneTime(creds.DeletedAt),
		AvailableClasses:    user.AvailableClasses,
		EmailVerifiedAt:     cloneTime(user.EmailVerifiedAt),
		VerifyCodeHash:      optionalString(creds.VerifyCodeHash),
		VerifyCodeExpiresAt: cloneTime(creds.VerifyCodeExpiresAt),
		ResetCodeHash:       optionalString(creds.ResetCodeHash),
		ResetCodeExpiresAt:  cloneTime(creds.ResetCodeExpiresAt),
		CreatedAt:           user.CreatedAt,
		UpdatedAt:           user.UpdatedAt,
	}
}

func toApplicationClassSession(model persistence.ClassSession) application.ClassSession {
	return application.ClassSession{
		ID:         model.ID,
		Title:      model.Title,
		Type:       model.Type,
		Instructor: cloneString(model.Instructor),
		Notes:      cloneString(model.Notes),
		StartsAt:   model.StartsAt,
		EndsAt:     model.EndsAt,
		Capacity:   model.Capacity,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}

func toPersistenceClassSession(session application.ClassSession) persistence.ClassSession {
	return persistence.ClassSession{
		ID:         session.ID,
		Title:      session.Title,
		Type:       session.Type,
		Instructor: cloneString(session.Instructor),
		Notes:      cloneString(session.Notes),
		StartsAt:   session.StartsAt,
		EndsAt:     session.EndsAt,
		Capacity:   session.Capacity,
		CreatedAt:  session.CreatedAt,
		UpdatedAt:  session.UpdatedAt,
	}
}

func toApplicationBooking(model persistence.Booking) application.Booking {
	return application.Booking{
		ID:         model.ID,
		SessionID:  model.SessionID,
		UserID:     model.UserID,
		Status:     capacity.Status(model.Status),
		CreatedAt:  model.CreatedAt,
		CanceledAt: cloneTime(model.CanceledAt),
		Attended:   model.Attended,
		AttendedAt: cloneTime(model.AttendedAt),
	}
}

func toApplicationBookingDetails(models []persistence.BookingDetail) []application.BookingDetail {
	details := make([]application.BookingDetail, 0, len(models))
	for _, m := range models {
		details = append(details, application.BookingDetail{
			Booking:   toApplicationBooking(m.Booking),
			UserEmail: m.UserEmail,
			UserName:  cloneString(m.UserName),
			Session:   toApplicationClassSession(m.Session),
		})
	}
	return details
}

func toApplicationSession(model persistence.Session) application.Session {
	return application.Session{
		ID:          model.ID,
		UserID:      model.UserID,
		Token:       model.Token,
		Fingerprint: model.Fingerprint,
		ExpiresAt:   model.ExpiresAt,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
		RevokedAt:   cloneTime(model.RevokedAt),
	}
}

func toPersistenceSession(session application.Session) persistence.Session {
	return persistence.Session{
		ID:          session.ID,
		UserID:      session.UserID,
		Token:       session.Token,
		Fingerprint: session.Fingerprint,
		ExpiresAt:   session.ExpiresAt,
		CreatedAt:   session.CreatedAt,
		UpdatedAt:   session.UpdatedAt,
		RevokedAt:   cloneTime(session.RevokedAt),
	}
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
