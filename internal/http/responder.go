package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/example/class-booking/internal/application"
)

// Error codes carried in the error_code field of every error body.
const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeSelfForbidden      = "SELF_FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeFull               = "FULL"
	CodeAlreadyBooked      = "ALREADY_BOOKED"
	CodeAlreadyExists      = "ALREADY_EXISTS"
	CodePastDay            = "PAST_DAY"
	CodeEndBeforeStart     = "END_BEFORE_START"
	CodeNoOccurrences      = "NO_OCCURRENCES"
	CodeInvalidCode        = "INVALID_CODE"
	CodeCodeExpired        = "CODE_EXPIRED"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeInvalidBody        = "INVALID_BODY"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountDisabled    = "ACCOUNT_DISABLED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL"
)

var (
	errInvalidBody         = errors.New("request body is not valid JSON")
	errMissingSessionToken = errors.New("session token is required")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeCode(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

func (r responder) writeOK(ctx context.Context, w http.ResponseWriter) {
	r.writeJSON(ctx, w, http.StatusOK, okResponse{OK: true})
}

// fail logs err once on logger and writes the matching error body. Expected
// business outcomes are logged at info level; everything else is an error.
func (r responder) fail(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	if logger == nil {
		logger = r.loggerFor(ctx)
	}
	if application.IsDomainError(err) || errors.Is(err, errInvalidBody) {
		logger.InfoContext(ctx, msg, "error", err, "error_kind", application.ErrorKind(err))
	} else {
		logger.ErrorContext(ctx, msg, "error", err, "error_kind", application.ErrorKind(err))
	}
	r.handleServiceError(ctx, w, err)
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	status, body := classifyError(err)
	r.writeJSON(ctx, w, status, body)
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

// classifyError maps service errors onto a status and body. Store details
// never reach the client.
func classifyError(err error) (int, errorResponse) {
	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, errorResponse{
			ErrorCode: CodeValidationFailed,
			Message:   "request validation failed",
			Errors:    vErr.FieldErrors,
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, errInvalidBody):
		return http.StatusBadRequest, errorResponse{ErrorCode: CodeInvalidBody, Message: errInvalidBody.Error()}
	case errors.Is(err, application.ErrUnauthorized),
		errors.Is(err, application.ErrSessionExpired),
		errors.Is(err, application.ErrSessionRevoked):
		return http.StatusUnauthorized, errorResponse{ErrorCode: CodeUnauthorized, Message: "authentication required"}
	case errors.Is(err, application.ErrSelfMutation):
		return http.StatusForbidden, errorResponse{ErrorCode: CodeSelfForbidden, Message: "you cannot change your own role or disabled state"}
	case errors.Is(err, application.ErrForbidden):
		return http.StatusForbidden, errorResponse{ErrorCode: CodeForbidden, Message: "you are not allowed to perform this action"}
	case errors.Is(err, application.ErrNotFound):
		return http.StatusNotFound, errorResponse{ErrorCode: CodeNotFound, Message: "resource not found"}
	case errors.Is(err, application.ErrFull):
		return http.StatusConflict, errorResponse{ErrorCode: CodeFull, Message: "the class is full"}
	case errors.Is(err, application.ErrAlreadyBooked):
		return http.StatusConflict, errorResponse{ErrorCode: CodeAlreadyBooked, Message: "you already booked this class"}
	case errors.Is(err, application.ErrAlreadyExists):
		return http.StatusConflict, errorResponse{ErrorCode: CodeAlreadyExists, Message: "resource already exists"}
	case errors.Is(err, application.ErrPastDay):
		return http.StatusBadRequest, errorResponse{ErrorCode: CodePastDay, Message: "sessions cannot be placed on a past day"}
	case errors.Is(err, application.ErrEndBeforeStart):
		return http.StatusBadRequest, errorResponse{ErrorCode: CodeEndBeforeStart, Message: "ends_at must be after starts_at"}
	case errors.Is(err, application.ErrNoOccurrences):
		return http.StatusBadRequest, errorResponse{ErrorCode: CodeNoOccurrences, Message: "the recurrence produced no sessions"}
	case errors.Is(err, application.ErrInvalidCode):
		return http.StatusBadRequest, errorResponse{ErrorCode: CodeInvalidCode, Message: "the code is not valid"}
	case errors.Is(err, application.ErrCodeExpired):
		return http.StatusBadRequest, errorResponse{ErrorCode: CodeCodeExpired, Message: "the code has expired"}
	case errors.Is(err, application.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorResponse{ErrorCode: CodeInvalidCredentials, Message: "invalid email or password"}
	case errors.Is(err, application.ErrAccountDisabled):
		return http.StatusForbidden, errorResponse{ErrorCode: CodeAccountDisabled, Message: "the account is disabled"}
	}

	return http.StatusInternalServerError, errorResponse{ErrorCode: CodeInternal, Message: "internal server error"}
}

type errorResponse struct {
	ErrorCode     string            `json:"error_code,omitempty"`
	Message       string            `json:"message"`
	Errors        map[string]string `json:"errors,omitempty"`
	RetryAfterSec int               `json:"retry_after_sec,omitempty"`
}

type okResponse struct {
	OK bool `json:"ok"`
}
