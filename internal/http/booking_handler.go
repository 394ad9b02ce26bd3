package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/class-booking/internal/application"
)

type bookingService interface {
	Book(ctx context.Context, principal application.Principal, sessionID string) (application.Booking, error)
	Cancel(ctx context.Context, principal application.Principal, bookingID string) (application.Booking, error)
	CancelAsAdmin(ctx context.Context, principal application.Principal, bookingID string) (application.Booking, error)
	SetAttendance(ctx context.Context, principal application.Principal, bookingID string, attended bool) (application.Booking, error)
	ListSessionBookings(ctx context.Context, principal application.Principal, sessionID string) ([]application.BookingDetail, error)
	ListMyBookings(ctx context.Context, principal application.Principal) ([]application.BookingDetail, error)
}

type BookingHandler struct {
	service   bookingService
	responder responder
	logger    *slog.Logger
}

func NewBookingHandler(service bookingService, logger *slog.Logger) *BookingHandler {
	base := defaultLogger(logger)
	return &BookingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *BookingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "BookingHandler", operation, attrs...)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	logger := h.log(ctx, "Create", "principal_id", principal.UserID)

	var req createBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.fail(ctx, w, logger, "invalid booking request", err)
		return
	}

	booking, err := h.service.Book(ctx, principal, req.SessionID)
	if err != nil {
		h.responder.fail(ctx, w, logger.With("session_id", req.SessionID), "booking rejected", err)
		return
	}

	h.responder.writeJSON(ctx, w, http.StatusCreated, bookingResponse{Booking: toBookingDTO(booking)})
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.cancel(w, r, "Cancel", false)
}

func (h *BookingHandler) AdminCancel(w http.ResponseWriter, r *http.Request) {
	h.cancel(w, r, "AdminCancel", true)
}

func (h *BookingHandler) cancel(w http.ResponseWriter, r *http.Request, operation string, adminPath bool) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	id := chi.URLParam(r, "id")
	logger := h.log(ctx, operation, "principal_id", principal.UserID, "booking_id", id)

	var (
		booking application.Booking
		err     error
	)
	if adminPath {
		booking, err = h.service.CancelAsAdmin(ctx, principal, id)
	} else {
		booking, err = h.service.Cancel(ctx, principal, id)
	}
	if err != nil {
		h.responder.fail(ctx, w, logger, "booking cancellation failed", err)
		return
	}

	h.responder.writeJSON(ctx, w, http.StatusOK, bookingResponse{OK: true, Booking: toBookingDTO(booking)})
}

func (h *BookingHandler) SetAttendance(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	id := chi.URLParam(r, "id")
	logger := h.log(ctx, "SetAttendance", "principal_id", principal.UserID, "booking_id", id)

	var req attendanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.fail(ctx, w, logger, "invalid attendance request", err)
		return
	}

	booking, err := h.service.SetAttendance(ctx, principal, id, *req.Attended)
	if err != nil {
		h.responder.fail(ctx, w, logger, "attendance update failed", err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, bookingResponse{OK: true, Booking: toBookingDTO(booking)})
}

func (h *BookingHandler) ListForSession(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	id := chi.URLParam(r, "id")
	logger := h.log(ctx, "ListForSession", "principal_id", principal.UserID, "session_id", id)

	details, err := h.service.ListSessionBookings(ctx, principal, id)
	if err != nil {
		h.responder.fail(ctx, w, logger, "roster lookup failed", err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, bookingsResponse{Bookings: toBookingDetailDTOs(details)})
}

func (h *BookingHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	principal, _ := PrincipalFromContext(ctx)
	logger := h.log(ctx, "ListMine", "principal_id", principal.UserID)

	details, err := h.service.ListMyBookings(ctx, principal)
	if err != nil {
		h.responder.fail(ctx, w, logger, "booking list failed", err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, bookingsResponse{Bookings: toBookingDetailDTOs(details)})
}

type createBookingRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

type attendanceRequest struct {
	Attended *bool `json:"attended" validate:"required"`
}

type bookingDTO struct {
	ID         string           `json:"id"`
	SessionID  string           `json:"session_id"`
	UserID     string           `json:"user_id"`
	Status     string           `json:"status"`
	CreatedAt  string           `json:"created_at"`
	CanceledAt *string          `json:"canceled_at"`
	Attended   bool             `json:"attended"`
	AttendedAt *string          `json:"attended_at"`
	UserEmail  string           `json:"user_email,omitempty"`
	UserName   *string          `json:"user_name,omitempty"`
	Session    *classSessionDTO `json:"session,omitempty"`
}

type bookingResponse struct {
	OK      bool       `json:"ok,omitempty"`
	Booking bookingDTO `json:"booking"`
}

type bookingsResponse struct {
	Bookings []bookingDTO `json:"bookings"`
}

func toBookingDTO(b application.Booking) bookingDTO {
	return bookingDTO{
		ID:         b.ID,
		SessionID:  b.SessionID,
		UserID:     b.UserID,
		Status:     string(b.Status),
		CreatedAt:  formatTime(b.CreatedAt),
		CanceledAt: formatOptionalTime(b.CanceledAt),
		Attended:   b.Attended,
		AttendedAt: formatOptionalTime(b.AttendedAt),
	}
}

func toBookingDetailDTOs(details []application.BookingDetail) []bookingDTO {
	out := make([]bookingDTO, 0, len(details))
	for _, d := range details {
		dto := toBookingDTO(d.Booking)
		dto.UserEmail = d.UserEmail
		dto.UserName = d.UserName
		if d.Session.ID != "" {
			session := toClassSessionDTO(d.Session)
			dto.Session = &session
		}
		out = append(out, dto)
	}
	return out
}
