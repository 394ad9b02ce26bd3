package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/example/class-booking/internal/roles"
)

// UserRepository captures the persistence operations needed by the user and account services.
type UserRepository interface {
	CreateUser(ctx context.Context, creds UserCredentials) (User, error)
	GetUserCredentials(ctx context.Context, id string) (UserCredentials, error)
	GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error)
	UpdateUserCredentials(ctx context.Context, creds UserCredentials) (User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]User, error)
}

// SessionRevoker ends every session of a user.
type SessionRevoker interface {
	RevokeUserSessions(ctx context.Context, userID string, revokedAt time.Time) error
}

// UserService orchestrates validation, authorization, and persistence for
// administrative user management.
type UserService struct {
	users       UserRepository
	sessions    SessionRevoker
	hash        PasswordHasher
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, sessions SessionRevoker, hash PasswordHasher, idGenerator func() string, now func() time.Time) *UserService {
	return NewUserServiceWithLogger(users, sessions, hash, idGenerator, now, nil)
}

// NewUserServiceWithLogger wires dependencies for the user service with a logger.
func NewUserServiceWithLogger(users UserRepository, sessions SessionRevoker, hash PasswordHasher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *UserService {
	if hash == nil {
		hash = HashPassword
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{
		users:       users,
		sessions:    sessions,
		hash:        hash,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *UserService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "UserService", operation, attrs...)
}

func (s *UserService) ready() error {
	if s == nil {
		return fmt.Errorf("UserService is nil")
	}
	if s.users == nil {
		return fmt.Errorf("user repository not configured")
	}
	return nil
}

// ListUsers returns non-deleted users, newest first, for staff.
func (s *UserService) ListUsers(ctx context.Context, principal Principal, filter UserFilter) ([]User, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := requireStaff(principal); err != nil {
		return nil, err
	}
	if filter.Role != "" {
		role, err := roles.Parse(string(filter.Role))
		if err != nil {
			return nil, NewValidationError(map[string]string{"role": "is not a known role"})
		}
		filter.Role = role
	}
	filter.Search = strings.TrimSpace(filter.Search)
	return s.users.ListUsers(ctx, filter)
}

// GetUser returns one user for staff.
func (s *UserService) GetUser(ctx context.Context, principal Principal, userID string) (User, error) {
	if err := s.ready(); err != nil {
		return User{}, err
	}
	if err := requireStaff(principal); err != nil {
		return User{}, err
	}
	creds, err := s.users.GetUserCredentials(ctx, strings.TrimSpace(userID))
	if err != nil {
		return User{}, err
	}
	return creds.User, nil
}

// CreateUser creates a verified account with the requested role, provided the
// principal may grant that role.
func (s *UserService) CreateUser(ctx context.Context, params CreateUserParams) (user User, err error) {
	if err = s.ready(); err != nil {
		return
	}

	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "CreateUser",
		"principal_id", params.Principal.UserID,
		"email", email,
		"role", params.Role,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "user creation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "user created")
	}()

	if err = requireStaff(params.Principal); err != nil {
		return
	}

	vErr := &ValidationError{}
	vErr.merge(validateEmail(email))
	if len(params.Password) < MinPasswordLength {
		vErr.add("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	if params.AvailableClasses < 0 {
		vErr.add("available_classes", "must not be negative")
	}
	role, roleErr := roles.Parse(params.Role)
	if roleErr != nil {
		vErr.add("role", "is not a known role")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if err = roles.CheckCreate(params.Principal.subject(), role); err != nil {
		return
	}

	var hash string
	hash, err = s.hash(params.Password)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	now := s.now()
	user, err = s.users.CreateUser(ctx, UserCredentials{
		User: User{
			ID:               s.idGenerator(),
			Email:            email,
			Name:             trimOptional(params.Name),
			Role:             role,
			Disabled:         params.Disabled,
			AvailableClasses: params.AvailableClasses,
			EmailVerifiedAt:  &now,
			CreatedAt:        now,
			UpdatedAt:        now,
		},
		PasswordHash: hash,
	})
	if errors.Is(err, ErrAlreadyExists) {
		err = NewValidationError(map[string]string{"email": "is already registered"})
	}
	return
}

// UpdateUser applies a partial update. Role and disabled changes go through
// the role gate and are refused on the principal's own account.
func (s *UserService) UpdateUser(ctx context.Context, params UpdateUserParams) (user User, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "UpdateUser",
		"principal_id", params.Principal.UserID,
		"user_id", params.UserID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "user update failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "user updated")
	}()

	if err = requireStaff(params.Principal); err != nil {
		return
	}

	var creds UserCredentials
	creds, err = s.users.GetUserCredentials(ctx, strings.TrimSpace(params.UserID))
	if err != nil {
		return
	}
	target := creds.User
	actor := params.Principal.subject()

	if err = roles.CheckEdit(actor, target.subject()); err != nil {
		return
	}

	vErr := &ValidationError{}
	if params.AvailableClasses != nil && *params.AvailableClasses < 0 {
		vErr.add("available_classes", "must not be negative")
	}
	if params.Password != nil && *params.Password != "" && len(*params.Password) < MinPasswordLength {
		vErr.add("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	var newRole roles.Role
	if params.Role != nil {
		if newRole, err = roles.Parse(*params.Role); err != nil {
			err = nil
			vErr.add("role", "is not a known role")
		}
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if params.Role != nil && newRole != target.Role {
		if err = roles.CheckSetRole(actor, target.subject(), newRole); err != nil {
			return
		}
		creds.User.Role = newRole
	}
	revoke := false
	if params.Disabled != nil && *params.Disabled != target.Disabled {
		if err = roles.CheckDisable(actor, target.subject()); err != nil {
			return
		}
		creds.User.Disabled = *params.Disabled
		revoke = creds.User.Disabled
	}
	if params.Name != nil {
		creds.User.Name = trimOptional(params.Name)
	}
	if params.AvailableClasses != nil {
		creds.User.AvailableClasses = *params.AvailableClasses
	}
	if params.Password != nil && *params.Password != "" {
		if creds.PasswordHash, err = s.hash(*params.Password); err != nil {
			err = fmt.Errorf("hash password: %w", err)
			return
		}
	}

	now := s.now()
	creds.User.UpdatedAt = now
	user, err = s.users.UpdateUserCredentials(ctx, creds)
	if err != nil {
		return
	}
	if revoke {
		err = s.revokeSessions(ctx, user.ID, now)
	}
	return
}

// SetUserDisabled enables or disables an account. Disabling also ends the
// account's sessions.
func (s *UserService) SetUserDisabled(ctx context.Context, principal Principal, userID string, disabled bool) (User, error) {
	if err := refuseSelf(principal, userID); err != nil {
		return User{}, err
	}
	return s.UpdateUser(ctx, UpdateUserParams{Principal: principal, UserID: userID, Disabled: &disabled})
}

// SetUserRole changes an account's role.
func (s *UserService) SetUserRole(ctx context.Context, principal Principal, userID string, role string) (User, error) {
	if err := refuseSelf(principal, userID); err != nil {
		return User{}, err
	}
	return s.UpdateUser(ctx, UpdateUserParams{Principal: principal, UserID: userID, Role: &role})
}

// refuseSelf rejects the dedicated role and disabled mutations on the
// principal's own account even when the value would not change.
func refuseSelf(principal Principal, userID string) error {
	if err := requireStaff(principal); err != nil {
		return err
	}
	if principal.UserID == strings.TrimSpace(userID) {
		return ErrSelfMutation
	}
	return nil
}

func (s *UserService) revokeSessions(ctx context.Context, userID string, at time.Time) error {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.RevokeUserSessions(ctx, userID, at)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) *ValidationError {
	vErr := &ValidationError{}
	if email == "" {
		vErr.add("email", "is required")
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		vErr.add("email", "is invalid")
	}
	return vErr
}
