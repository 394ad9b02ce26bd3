package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/class-booking/internal/roles"
)

// CodeMailer delivers one-time codes to an address.
type CodeMailer interface {
	SendVerificationCode(ctx context.Context, to, code, locale string) error
	SendPasswordResetCode(ctx context.Context, to, code, locale string) error
}

// AccountService handles self-service sign-up, email verification, password
// reset and account deletion.
type AccountService struct {
	users       UserRepository
	sessions    SessionRevoker
	codes       *CodeIssuer
	mailer      CodeMailer
	hash        PasswordHasher
	idGenerator func() string
	now         func() time.Time
	codeTTL     time.Duration
	logger      *slog.Logger
}

// AccountServiceConfig groups the collaborators of an AccountService.
type AccountServiceConfig struct {
	Users       UserRepository
	Sessions    SessionRevoker
	Codes       *CodeIssuer
	Mailer      CodeMailer
	Hash        PasswordHasher
	IDGenerator func() string
	Now         func() time.Time
	CodeTTL     time.Duration
	Logger      *slog.Logger
}

// NewAccountService wires dependencies for the account service.
func NewAccountService(cfg AccountServiceConfig) *AccountService {
	if cfg.Hash == nil {
		cfg.Hash = HashPassword
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = func() string { return "" }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = DefaultCodeTTL
	}
	return &AccountService{
		users:       cfg.Users,
		sessions:    cfg.Sessions,
		codes:       cfg.Codes,
		mailer:      cfg.Mailer,
		hash:        cfg.Hash,
		idGenerator: cfg.IDGenerator,
		now:         cfg.Now,
		codeTTL:     cfg.CodeTTL,
		logger:      defaultLogger(cfg.Logger),
	}
}

func (s *AccountService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AccountService", operation, attrs...)
}

func (s *AccountService) ready() error {
	if s == nil {
		return fmt.Errorf("AccountService is nil")
	}
	if s.users == nil {
		return fmt.Errorf("user repository not configured")
	}
	if s.codes == nil {
		return fmt.Errorf("code issuer not configured")
	}
	return nil
}

// Register creates a disabled, unverified client account and mails it a
// verification code. A mail failure does not fail the registration.
func (s *AccountService) Register(ctx context.Context, params RegisterParams) (user User, err error) {
	if err = s.ready(); err != nil {
		return
	}

	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "Register", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "registration failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "account registered")
	}()

	vErr := validateEmail(email)
	if len(params.Password) < MinPasswordLength {
		vErr.add("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var passwordHash string
	if passwordHash, err = s.hash(params.Password); err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}
	code, codeHash, err := s.codes.Issue()
	if err != nil {
		return
	}

	now := s.now()
	expires := now.Add(s.codeTTL)
	user, err = s.users.CreateUser(ctx, UserCredentials{
		User: User{
			ID:        s.idGenerator(),
			Email:     email,
			Name:      trimOptional(params.Name),
			Role:      roles.Client,
			Disabled:  true,
			CreatedAt: now,
			UpdatedAt: now,
		},
		PasswordHash:        passwordHash,
		VerifyCodeHash:      codeHash,
		VerifyCodeExpiresAt: &expires,
	})
	if err != nil {
		return
	}

	s.sendVerification(ctx, logger, email, code, params.Locale)
	return
}

// SendVerifyCode mails a fresh verification code to an unverified account.
// The result is the same whether or not the address is known.
func (s *AccountService) SendVerifyCode(ctx context.Context, email, locale string) error {
	if err := s.ready(); err != nil {
		return err
	}

	email = normalizeEmail(email)
	logger := s.loggerWith(ctx, "SendVerifyCode", "email", email)

	creds, err := s.users.GetUserCredentialsByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.ErrorContext(ctx, "verification code lookup failed", "error", err, "error_kind", ErrorKind(err))
		}
		return nil
	}
	if creds.User.Deleted || creds.User.EmailVerifiedAt != nil {
		return nil
	}

	code, codeHash, err := s.codes.Issue()
	if err != nil {
		return err
	}
	expires := s.now().Add(s.codeTTL)
	creds.VerifyCodeHash = codeHash
	creds.VerifyCodeExpiresAt = &expires
	creds.User.UpdatedAt = s.now()
	if _, err = s.users.UpdateUserCredentials(ctx, creds); err != nil {
		logger.ErrorContext(ctx, "verification code update failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	s.sendVerification(ctx, logger, email, code, locale)
	return nil
}

// VerifyEmailCode enables the account once the emailed code matches.
func (s *AccountService) VerifyEmailCode(ctx context.Context, email, code string) (err error) {
	if err = s.ready(); err != nil {
		return
	}

	email = normalizeEmail(email)
	logger := s.loggerWith(ctx, "VerifyEmailCode", "email", email)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "email verification failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "email verified")
	}()

	var creds UserCredentials
	creds, err = s.users.GetUserCredentialsByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		err = ErrInvalidCode
		return
	}
	if err != nil {
		return
	}
	if creds.User.Deleted {
		err = ErrInvalidCode
		return
	}
	if creds.User.EmailVerifiedAt != nil && !creds.User.Disabled {
		return
	}

	now := s.now()
	if err = s.codes.Check(code, creds.VerifyCodeHash, creds.VerifyCodeExpiresAt, now); err != nil {
		return
	}

	creds.User.Disabled = false
	creds.User.EmailVerifiedAt = &now
	creds.User.UpdatedAt = now
	creds.VerifyCodeHash = ""
	creds.VerifyCodeExpiresAt = nil
	_, err = s.users.UpdateUserCredentials(ctx, creds)
	return
}

// RequestPasswordReset mails a reset code to an existing account. The result
// is the same whether or not the address is known.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email, locale string) error {
	if err := s.ready(); err != nil {
		return err
	}

	email = normalizeEmail(email)
	logger := s.loggerWith(ctx, "RequestPasswordReset", "email", email)

	creds, err := s.users.GetUserCredentialsByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.ErrorContext(ctx, "reset lookup failed", "error", err, "error_kind", ErrorKind(err))
		}
		return nil
	}
	if creds.User.Deleted {
		return nil
	}

	code, codeHash, err := s.codes.Issue()
	if err != nil {
		return err
	}
	now := s.now()
	expires := now.Add(s.codeTTL)
	creds.ResetCodeHash = codeHash
	creds.ResetCodeExpiresAt = &expires
	creds.User.UpdatedAt = now
	if _, err = s.users.UpdateUserCredentials(ctx, creds); err != nil {
		logger.ErrorContext(ctx, "reset code update failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	if s.mailer != nil {
		if mailErr := s.mailer.SendPasswordResetCode(ctx, email, code, locale); mailErr != nil {
			logger.WarnContext(ctx, "reset code not queued", "error", mailErr)
		}
	}
	logger.InfoContext(ctx, "reset code issued")
	return nil
}

// ResetPassword replaces the password once the emailed reset code matches and
// ends every open session of the account.
func (s *AccountService) ResetPassword(ctx context.Context, params ResetPasswordParams) (err error) {
	if err = s.ready(); err != nil {
		return
	}

	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "ResetPassword", "email", email)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "password reset failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "password reset")
	}()

	if len(params.Password) < MinPasswordLength {
		err = NewValidationError(map[string]string{
			"password": fmt.Sprintf("must be at least %d characters", MinPasswordLength),
		})
		return
	}

	var creds UserCredentials
	creds, err = s.users.GetUserCredentialsByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		err = ErrInvalidCode
		return
	}
	if err != nil {
		return
	}
	if creds.User.Deleted {
		err = ErrInvalidCode
		return
	}

	now := s.now()
	if err = s.codes.Check(params.Code, creds.ResetCodeHash, creds.ResetCodeExpiresAt, now); err != nil {
		return
	}

	if creds.PasswordHash, err = s.hash(params.Password); err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}
	creds.ResetCodeHash = ""
	creds.ResetCodeExpiresAt = nil
	creds.User.UpdatedAt = now
	if _, err = s.users.UpdateUserCredentials(ctx, creds); err != nil {
		return
	}
	if s.sessions != nil {
		err = s.sessions.RevokeUserSessions(ctx, creds.User.ID, now)
	}
	return
}

// DeleteAccount soft-deletes the principal's own account and ends its sessions.
func (s *AccountService) DeleteAccount(ctx context.Context, principal Principal) (err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "DeleteAccount", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "account deletion failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "account deleted")
	}()

	if !principal.Authenticated() {
		err = ErrUnauthorized
		return
	}

	var creds UserCredentials
	creds, err = s.users.GetUserCredentials(ctx, principal.UserID)
	if err != nil {
		return
	}

	now := s.now()
	creds.User.Deleted = true
	creds.User.UpdatedAt = now
	creds.DeletedAt = &now
	if _, err = s.users.UpdateUserCredentials(ctx, creds); err != nil {
		return
	}
	if s.sessions != nil {
		err = s.sessions.RevokeUserSessions(ctx, creds.User.ID, now)
	}
	return
}

func (s *AccountService) sendVerification(ctx context.Context, logger *slog.Logger, email, code, locale string) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.SendVerificationCode(ctx, email, code, locale); err != nil {
		logger.WarnContext(ctx, "verification code not queued", "error", err)
	}
}
