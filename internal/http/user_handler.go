package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/class-booking/internal/application"
	"github.com/example/class-booking/internal/roles"
)

type userService interface {
	ListUsers(ctx context.Context, principal application.Principal, filter application.UserFilter) ([]application.User, error)
	GetUser(ctx context.Context, principal application.Principal, userID string) (application.User, error)
	CreateUser(ctx context.Context, params application.CreateUserParams) (application.User, error)
	UpdateUser(ctx context.Context, params application.UpdateUserParams) (application.User, error)
	SetUserDisabled(ctx context.Context, principal application.Principal, userID string, disabled bool) (application.User, error)
	SetUserRole(ctx context.Context, principal application.Principal, userID string, role string) (application.User, error)
}

type UserHandler struct {
	service   userService
	responder responder
	logger    *slog.Logger
}

func NewUserHandler(service userService, logger *slog.Logger) *UserHandler {
	base := defaultLogger(logger)
	return &UserHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *UserHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "UserHandler", operation, attrs...)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	logger := h.log(ctx, "List", "principal_id", principal.UserID)

	query := r.URL.Query()
	users, err := h.service.ListUsers(ctx, principal, application.UserFilter{
		Role:   roles.Role(query.Get("role")),
		Search: query.Get("q"),
	})
	if err != nil {
		h.responder.fail(ctx, w, logger, "user list failed", err)
		return
	}

	logger.With("result_count", len(users)).InfoContext(ctx, "users listed")
	h.responder.writeJSON(ctx, w, http.StatusOK, listUsersResponse{Users: toUserDTOs(users)})
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	userID := chi.URLParam(r, "id")
	logger := h.log(ctx, "Get", "principal_id", principal.UserID, "user_id", userID)

	user, err := h.service.GetUser(ctx, principal, userID)
	if err != nil {
		h.responder.fail(ctx, w, logger, "user lookup failed", err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	logger := h.log(ctx, "Create", "principal_id", principal.UserID)

	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.fail(ctx, w, logger, "invalid user request", err)
		return
	}

	role := req.Role
	if role == "" {
		role = string(roles.Client)
	}
	user, err := h.service.CreateUser(ctx, application.CreateUserParams{
		Principal:        principal,
		Email:            req.Email,
		Password:         req.Password,
		Name:             req.Name,
		Role:             role,
		Disabled:         req.Disabled,
		AvailableClasses: req.AvailableClasses,
	})
	if err != nil {
		h.responder.fail(ctx, w, logger, "user creation failed", err)
		return
	}

	logger.With("user_id", user.ID).InfoContext(ctx, "user created")
	h.responder.writeJSON(ctx, w, http.StatusCreated, userResponse{User: toUserDTO(user)})
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	userID := chi.URLParam(r, "id")
	logger := h.log(ctx, "Update", "principal_id", principal.UserID, "user_id", userID)

	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.fail(ctx, w, logger, "invalid user update", err)
		return
	}

	user, err := h.service.UpdateUser(ctx, application.UpdateUserParams{
		Principal:        principal,
		UserID:           userID,
		Name:             req.Name,
		AvailableClasses: req.AvailableClasses,
		Password:         req.Password,
		Role:             req.Role,
		Disabled:         req.Disabled,
	})
	if err != nil {
		h.responder.fail(ctx, w, logger, "user update failed", err)
		return
	}

	logger.InfoContext(ctx, "user updated")
	h.responder.writeJSON(ctx, w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

func (h *UserHandler) SetDisabled(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	userID := chi.URLParam(r, "id")
	logger := h.log(ctx, "SetDisabled", "principal_id", principal.UserID, "user_id", userID)

	var req setDisabledRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.fail(ctx, w, logger, "invalid disable request", err)
		return
	}

	user, err := h.service.SetUserDisabled(ctx, principal, userID, *req.Disabled)
	if err != nil {
		h.responder.fail(ctx, w, logger, "user disable failed", err)
		return
	}

	logger.With("disabled", user.Disabled).InfoContext(ctx, "user disabled flag set")
	h.responder.writeJSON(ctx, w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	userID := chi.URLParam(r, "id")
	logger := h.log(ctx, "SetRole", "principal_id", principal.UserID, "user_id", userID)

	var req setRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.fail(ctx, w, logger, "invalid role request", err)
		return
	}

	user, err := h.service.SetUserRole(ctx, principal, userID, req.Role)
	if err != nil {
		h.responder.fail(ctx, w, logger, "role change failed", err)
		return
	}

	logger.With("role", user.Role).InfoContext(ctx, "user role set")
	h.responder.writeJSON(ctx, w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

type createUserRequest struct {
	Email            string  `json:"email" validate:"required,email"`
	Password         string  `json:"password" validate:"required,min=8"`
	Name             *string `json:"name" validate:"omitempty,max=120"`
	Role             string  `json:"role"`
	Disabled         bool    `json:"disabled"`
	AvailableClasses int     `json:"available_classes" validate:"gte=0"`
}

type updateUserRequest struct {
	Name             *string `json:"name" validate:"omitempty,max=120"`
	AvailableClasses *int    `json:"available_classes" validate:"omitempty,gte=0"`
	Password         *string `json:"password" validate:"omitempty,min=8"`
	Role             *string `json:"role"`
	Disabled         *bool   `json:"disabled"`
}

type setDisabledRequest struct {
	Disabled *bool `json:"disabled" validate:"required"`
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

type userDTO struct {
	ID               string  `json:"id"`
	Email            string  `json:"email"`
	Name             *string `json:"name"`
	Role             string  `json:"role"`
	Disabled         bool    `json:"disabled"`
	AvailableClasses int     `json:"available_classes"`
	EmailVerifiedAt  *string `json:"email_verified_at"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

type userResponse struct {
	User userDTO `json:"user"`
}

type listUsersResponse struct {
	Users []userDTO `json:"users"`
}

func toUserDTO(user application.User) userDTO {
	return userDTO{
		ID:               user.ID,
		Email:            user.Email,
		Name:             user.Name,
		Role:             string(user.Role),
		Disabled:         user.Disabled,
		AvailableClasses: user.AvailableClasses,
		EmailVerifiedAt:  formatOptionalTime(user.EmailVerifiedAt),
		CreatedAt:        formatTime(user.CreatedAt),
		UpdatedAt:        formatTime(user.UpdatedAt),
	}
}

func toUserDTOs(users []application.User) []userDTO {
	out := make([]userDTO, 0, len(users))
	for _, user := range users {
		out = append(out, toUserDTO(user))
	}
	return out
}
