package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/class-booking/internal/application"
)

type classService interface {
	CreateClassSession(ctx context.Context, params application.CreateClassSessionParams) ([]application.ClassSession, error)
	UpdateClassSession(ctx context.Context, params application.UpdateClassSessionParams) (application.ClassSession, error)
	DeleteClassSession(ctx context.Context, principal application.Principal, sessionID string) error
	GetClassSession(ctx context.Context, sessionID string) (application.ClassSession, error)
	ListClassSessions(ctx context.Context, params application.ListClassSessionsParams) ([]application.ClassSessionListing, error)
}

// ClassHandler serves the class session catalogue.
type ClassHandler struct {
	service   classService
	location  *time.Location
	responder responder
	logger    *slog.Logger
}

// NewClassHandler builds a ClassHandler. Bare dates in list queries are read
// in location.
func NewClassHandler(service classService, location *time.Location, logger *slog.Logger) *ClassHandler {
	base := defaultLogger(logger)
	if location == nil {
		location = time.UTC
	}
	return &ClassHandler{service: service, location: location, responder: newResponder(base), logger: base}
}

func (h *ClassHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ClassHandler", operation, attrs...)
}

func (h *ClassHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	logger := h.log(ctx, "List", "principal_id", principal.UserID)

	from, err := queryTime(r, "from", h.location, false)
	if err != nil {
		h.responder.fail(ctx, w, logger, "invalid list query", err)
		return
	}
	to, err := queryTime(r, "to", h.location, true)
	if err != nil {
		h.responder.fail(ctx, w, logger, "invalid list query", err)
		return
	}

	listings, err := h.service.ListClassSessions(ctx, application.ListClassSessionsParams{
		Principal: principal,
		From:      from,
		To:        to,
	})
	if err != nil {
		h.responder.fail(ctx, w, logger, "class session list failed", err)
		return
	}

	out := make([]classSessionDTO, 0, len(listings))
	for _, l := range listings {
		out = append(out, toClassListingDTO(l))
	}
	logger.With("result_count", len(out)).DebugContext(ctx, "class sessions listed")
	h.responder.writeJSON(ctx, w, http.StatusOK, classSessionsResponse{Sessions: out})
}

func (h *ClassHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	logger := h.log(ctx, "Get", "session_id", id)

	session, err := h.service.GetClassSession(ctx, id)
	if err != nil {
		h.responder.fail(ctx, w, logger, "class session lookup failed", err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, classSessionResponse{Session: toClassSessionDTO(session)})
}

func (h *ClassHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	logger := h.log(ctx, "Create", "principal_id", principal.UserID)

	var req createClassSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.fail(ctx, w, logger, "invalid class session request", err)
		return
	}

	created, err := h.service.CreateClassSession(ctx, application.CreateClassSessionParams{
		Principal:  principal,
		Title:      req.Title,
		Type:       req.Type,
		Instructor: req.Instructor,
		Notes:      req.Notes,
		StartsAt:   req.StartsAt,
		EndsAt:     req.EndsAt,
		Capacity:   req.Capacity,
		Recurrence: req.Recurrence,
	})
	if err != nil {
		h.responder.fail(ctx, w, logger, "class session creation failed", err)
		return
	}

	out := make([]classSessionDTO, 0, len(created))
	for _, s := range created {
		out = append(out, toClassSessionDTO(s))
	}
	logger.With("occurrences", len(out)).InfoContext(ctx, "class sessions created")
	h.responder.writeJSON(ctx, w, http.StatusCreated, classSessionsResponse{Sessions: out})
}

func (h *ClassHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	id := chi.URLParam(r, "id")
	logger := h.log(ctx, "Update", "principal_id", principal.UserID, "session_id", id)

	var req updateClassSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.fail(ctx, w, logger, "invalid class session update", err)
		return
	}

	updated, err := h.service.UpdateClassSession(ctx, application.UpdateClassSessionParams{
		Principal:  principal,
		SessionID:  id,
		Title:      req.Title,
		Type:       req.Type,
		Instructor: req.Instructor,
		Notes:      req.Notes,
		StartsAt:   req.StartsAt,
		EndsAt:     req.EndsAt,
		Capacity:   req.Capacity,
	})
	if err != nil {
		h.responder.fail(ctx, w, logger, "class session update failed", err)
		return
	}

	logger.InfoContext(ctx, "class session updated")
	h.responder.writeJSON(ctx, w, http.StatusOK, classSessionResponse{Session: toClassSessionDTO(updated)})
}

func (h *ClassHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	id := chi.URLParam(r, "id")
	logger := h.log(ctx, "Delete", "principal_id", principal.UserID, "session_id", id)

	if err := h.service.DeleteClassSession(ctx, principal, id); err != nil {
		h.responder.fail(ctx, w, logger, "class session deletion failed", err)
		return
	}

	logger.InfoContext(ctx, "class session deleted")
	h.responder.writeOK(ctx, w)
}

type createClassSessionRequest struct {
	Title      string    `json:"title" validate:"required,max=200"`
	Type       string    `json:"type" validate:"required"`
	Instructor *string   `json:"instructor" validate:"omitempty,max=120"`
	Notes      *string   `json:"notes" validate:"omitempty,max=2000"`
	StartsAt   time.Time `json:"starts_at" validate:"required"`
	EndsAt     time.Time `json:"ends_at" validate:"required"`
	Capacity   *int      `json:"capacity" validate:"omitempty,gte=1"`
	Recurrence string    `json:"recurrence"`
}

type updateClassSessionRequest struct {
	Title      *string    `json:"title" validate:"omitempty,max=200"`
	Type       *string    `json:"type"`
	Instructor *string    `json:"instructor" validate:"omitempty,max=120"`
	Notes      *string    `json:"notes" validate:"omitempty,max=2000"`
	StartsAt   *time.Time `json:"starts_at"`
	EndsAt     *time.Time `json:"ends_at"`
	Capacity   *int       `json:"capacity" validate:"omitempty,gte=1"`
}

type classSessionDTO struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Type        string  `json:"type"`
	Instructor  *string `json:"instructor"`
	Notes       *string `json:"notes"`
	StartsAt    string  `json:"starts_at"`
	EndsAt      string  `json:"ends_at"`
	Capacity    int     `json:"capacity"`
	BookedCount *int    `json:"booked_count,omitempty"`
	Remaining   *int    `json:"remaining,omitempty"`
	IsFull      *bool   `json:"is_full,omitempty"`
	MyBookingID *string `json:"my_booking_id"`
}

type classSessionResponse struct {
	Session classSessionDTO `json:"session"`
}

type classSessionsResponse struct {
	Sessions []classSessionDTO `json:"sessions"`
}

func toClassSessionDTO(s application.ClassSession) classSessionDTO {
	return classSessionDTO{
		ID:         s.ID,
		Title:      s.Title,
		Type:       s.Type,
		Instructor: s.Instructor,
		Notes:      s.Notes,
		StartsAt:   formatTime(s.StartsAt),
		EndsAt:     formatTime(s.EndsAt),
		Capacity:   s.Capacity,
	}
}

func toClassListingDTO(l application.ClassSessionListing) classSessionDTO {
	dto := toClassSessionDTO(l.ClassSession)
	booked, remaining, full := l.BookedCount, l.Remaining, l.IsFull
	dto.BookedCount = &booked
	dto.Remaining = &remaining
	dto.IsFull = &full
	dto.MyBookingID = l.MyBookingID
	return dto
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
