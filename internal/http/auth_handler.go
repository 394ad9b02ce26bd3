package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/class-booking/internal/application"
)

const sessionCookieName = "session_token"

type authService interface {
	Authenticate(ctx context.Context, params application.AuthenticateParams) (application.AuthenticateResult, error)
	RevokeSession(ctx context.Context, token string) error
}

type accountService interface {
	Register(ctx context.Context, params application.RegisterParams) (application.User, error)
	SendVerifyCode(ctx context.Context, email, locale string) error
	VerifyEmailCode(ctx context.Context, email, code string) error
	RequestPasswordReset(ctx context.Context, email, locale string) error
	ResetPassword(ctx context.Context, params application.ResetPasswordParams) error
	DeleteAccount(ctx context.Context, principal application.Principal) error
}

// AuthHandler serves login, logout and the self-service account flows.
type AuthHandler struct {
	service      authService
	accounts     accountService
	responder    responder
	logger       *slog.Logger
	secureCookie bool
}

func NewAuthHandler(service authService, accounts accountService, secureCookie bool, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{
		service:      service,
		accounts:     accounts,
		responder:    newResponder(base),
		logger:       base,
		secureCookie: secureCookie,
	}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

func (h *AuthHandler) ready(w http.ResponseWriter, needAccounts bool) bool {
	if h == nil || h.service == nil || (needAccounts && h.accounts == nil) {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, false) {
		return
	}
	ctx := r.Context()

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.fail(ctx, w, h.log(ctx, "Login"), "invalid login request", err)
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	logger := h.log(ctx, "Login", "email", email)

	result, err := h.service.Authenticate(ctx, application.AuthenticateParams{
		Email:       email,
		Password:    req.Password,
		Fingerprint: r.UserAgent(),
	})
	if err != nil {
		h.responder.fail(ctx, w, logger, "authentication rejected", err)
		return
	}

	h.setSessionCookie(w, result.Session.Token, result.Session.ExpiresAt)
	w.Header().Set("X-Session-Token", result.Session.Token)

	logger.With("user_id", result.User.ID).InfoContext(ctx, "user authenticated")
	h.responder.writeJSON(ctx, w, http.StatusCreated, loginResponse{
		Token:     result.Session.Token,
		ExpiresAt: result.Session.ExpiresAt.UTC().Format(time.RFC3339Nano),
		User:      toUserDTO(result.User),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, false) {
		return
	}
	ctx := r.Context()

	token := sessionTokenFromContext(ctx)
	if token == "" {
		token = extractTokenFromRequest(r)
	}
	logger := h.log(ctx, "Logout")
	if token == "" {
		h.responder.fail(ctx, w, logger, "missing session token", application.ErrUnauthorized)
		return
	}

	if err := h.service.RevokeSession(ctx, token); err != nil {
		h.responder.fail(ctx, w, logger, "failed to revoke session", err)
		return
	}

	h.clearSessionCookie(w)
	logger.InfoContext(ctx, "session revoked")
	h.responder.writeJSON(ctx, w, http.StatusNoContent, nil)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, true) {
		return
	}
	ctx := r.Context()

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.fail(ctx, w, h.log(ctx, "Register"), "invalid registration request", err)
		return
	}

	logger := h.log(ctx, "Register")
	user, err := h.accounts.Register(ctx, application.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Locale:   requestLocale(r, req.Locale),
	})
	if err != nil {
		h.responder.fail(ctx, w, logger, "registration failed", err)
		return
	}

	logger.With("user_id", user.ID).InfoContext(ctx, "account registered")
	h.responder.writeJSON(ctx, w, http.StatusCreated, registerResponse{OK: true, NeedsEmailVerification: true})
}

func (h *AuthHandler) SendVerifyCode(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, true) {
		return
	}
	ctx := r.Context()
	logger := h.log(ctx, "SendVerifyCode")

	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.fail(ctx, w, logger, "invalid verify code request", err)
		return
	}
	if err := h.accounts.SendVerifyCode(ctx, req.Email, requestLocale(r, req.Locale)); err != nil {
		h.responder.fail(ctx, w, logger, "verify code dispatch failed", err)
		return
	}
	h.responder.writeOK(ctx, w)
}

func (h *AuthHandler) VerifyEmailCode(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, true) {
		return
	}
	ctx := r.Context()
	logger := h.log(ctx, "VerifyEmailCode")

	var req verifyEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.fail(ctx, w, logger, "invalid verification request", err)
		return
	}
	if err := h.accounts.VerifyEmailCode(ctx, req.Email, req.Code); err != nil {
		h.responder.fail(ctx, w, logger, "email verification rejected", err)
		return
	}
	logger.InfoContext(ctx, "email verified")
	h.responder.writeOK(ctx, w)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, true) {
		return
	}
	ctx := r.Context()
	logger := h.log(ctx, "ForgotPassword")

	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.fail(ctx, w, logger, "invalid password reset request", err)
		return
	}
	if err := h.accounts.RequestPasswordReset(ctx, req.Email, requestLocale(r, req.Locale)); err != nil {
		h.responder.fail(ctx, w, logger, "password reset request failed", err)
		return
	}
	h.responder.writeOK(ctx, w)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, true) {
		return
	}
	ctx := r.Context()
	logger := h.log(ctx, "ResetPassword")

	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.fail(ctx, w, logger, "invalid password reset", err)
		return
	}
	err := h.accounts.ResetPassword(ctx, application.ResetPasswordParams{
		Email:    req.Email,
		Code:     req.Code,
		Password: req.Password,
	})
	if err != nil {
		h.responder.fail(ctx, w, logger, "password reset rejected", err)
		return
	}
	logger.InfoContext(ctx, "password reset")
	h.responder.writeOK(ctx, w)
}

func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, true) {
		return
	}
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	logger := h.log(ctx, "DeleteAccount", "principal_id", principal.UserID)

	if err := h.accounts.DeleteAccount(ctx, principal); err != nil {
		h.responder.fail(ctx, w, logger, "account deletion failed", err)
		return
	}

	h.clearSessionCookie(w)
	logger.InfoContext(ctx, "account deleted")
	h.responder.writeOK(ctx, w)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string  `json:"token"`
	ExpiresAt string  `json:"expires_at"`
	User      userDTO `json:"user"`
}

type registerRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	Name     *string `json:"name" validate:"omitempty,max=120"`
	Locale   string  `json:"locale" validate:"omitempty,oneof=es en"`
}

type registerResponse struct {
	OK                     bool `json:"ok"`
	NeedsEmailVerification bool `json:"needs_email_verification"`
}

type emailRequest struct {
	Email  string `json:"email" validate:"required,email"`
	Locale string `json:"locale" validate:"omitempty,oneof=es en"`
}

type verifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,max=16"`
}

type resetPasswordRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Code     string `json:"code" validate:"required,max=16"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	}
	if !expires.IsZero() {
		cookie.Expires = expires.UTC()
	}
	http.SetCookie(w, cookie)
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
