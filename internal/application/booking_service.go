package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/class-booking/internal/capacity"
)

// BookingRepository captures the persistence operations needed by the booking service.
type BookingRepository interface {
	// ReserveSeat runs admit against the seat state and persists its decision
	// in the same write transaction.
	ReserveSeat(ctx context.Context, req SeatReservation, admit AdmitFunc) (Booking, error)
	GetBooking(ctx context.Context, id string) (Booking, error)
	CancelBooking(ctx context.Context, id string, canceledAt time.Time, clearAttendance bool) (Booking, error)
	SetAttendance(ctx context.Context, id string, attended bool, at time.Time) (Booking, error)
	ListSessionBookings(ctx context.Context, sessionID string) ([]BookingDetail, error)
	ListUserBookings(ctx context.Context, userID string, status capacity.Status) ([]BookingDetail, error)
}

// OutcomeRecorder counts booking attempts by outcome.
type OutcomeRecorder interface {
	BookingOutcome(outcome string)
}

// Booking outcomes reported to the OutcomeRecorder.
const (
	OutcomeCreated       = "created"
	OutcomeReactivated   = "reactivated"
	OutcomeFull          = "full"
	OutcomeAlreadyBooked = "already_booked"
	OutcomeFailed        = "failed"
)

// BookingService books and cancels seats in class sessions.
type BookingService struct {
	bookings    BookingRepository
	idGenerator func() string
	now         func() time.Time
	recorder    OutcomeRecorder
	logger      *slog.Logger
}

// NewBookingService wires dependencies for the booking service.
func NewBookingService(bookings BookingRepository, idGenerator func() string, now func() time.Time) *BookingService {
	return NewBookingServiceWithLogger(bookings, idGenerator, now, nil)
}

// NewBookingServiceWithLogger wires dependencies for the booking service with a logger.
func NewBookingServiceWithLogger(bookings BookingRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *BookingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &BookingService{
		bookings:    bookings,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// WithRecorder attaches an outcome recorder and returns the service.
func (s *BookingService) WithRecorder(recorder OutcomeRecorder) *BookingService {
	if s != nil {
		s.recorder = recorder
	}
	return s
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

func (s *BookingService) record(outcome string) {
	if s.recorder != nil {
		s.recorder.BookingOutcome(outcome)
	}
}

// Book claims a seat for the principal. A full session is reported before a
// duplicate booking, and a previously canceled booking is reactivated.
func (s *BookingService) Book(ctx context.Context, principal Principal, sessionID string) (booking Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.bookings == nil {
		err = fmt.Errorf("booking repository not configured")
		return
	}

	sessionID = strings.TrimSpace(sessionID)
	logger := s.loggerWith(ctx, "Book",
		"principal_id", principal.UserID,
		"session_id", sessionID,
	)
	newID := s.idGenerator()
	defer func() {
		if err != nil {
			switch {
			case errors.Is(err, ErrFull):
				s.record(OutcomeFull)
			case errors.Is(err, ErrAlreadyBooked):
				s.record(OutcomeAlreadyBooked)
			default:
				s.record(OutcomeFailed)
			}
			logger.ErrorContext(ctx, "booking failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		outcome := OutcomeCreated
		if booking.ID != newID {
			outcome = OutcomeReactivated
		}
		s.record(outcome)
		logger.With("booking_id", booking.ID, "outcome", outcome).InfoContext(ctx, "seat booked")
	}()

	if !principal.Authenticated() {
		err = ErrUnauthorized
		return
	}
	if sessionID == "" {
		err = NewValidationError(map[string]string{"session_id": "is required"})
		return
	}

	booking, err = s.bookings.ReserveSeat(ctx, SeatReservation{
		BookingID: newID,
		SessionID: sessionID,
		UserID:    principal.UserID,
		Now:       s.now(),
	}, capacity.Admit)
	return
}

// Cancel releases the principal's booking. Staff may cancel any booking;
// doing so on someone else's booking also clears its attendance.
// Cancelling a booking that is already canceled returns it unchanged.
func (s *BookingService) Cancel(ctx context.Context, principal Principal, bookingID string) (Booking, error) {
	return s.cancel(ctx, "Cancel", principal, bookingID, false)
}

// CancelAsAdmin cancels any booking and clears its attendance.
func (s *BookingService) CancelAsAdmin(ctx context.Context, principal Principal, bookingID string) (Booking, error) {
	return s.cancel(ctx, "CancelAsAdmin", principal, bookingID, true)
}

func (s *BookingService) cancel(ctx context.Context, operation string, principal Principal, bookingID string, adminPath bool) (booking Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.bookings == nil {
		err = fmt.Errorf("booking repository not configured")
		return
	}

	bookingID = strings.TrimSpace(bookingID)
	logger := s.loggerWith(ctx, operation,
		"principal_id", principal.UserID,
		"booking_id", bookingID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "cancellation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("status", booking.Status).InfoContext(ctx, "booking canceled")
	}()

	if !principal.Authenticated() {
		err = ErrUnauthorized
		return
	}
	if adminPath && !principal.IsStaff() {
		err = ErrForbidden
		return
	}
	if bookingID == "" {
		err = ErrNotFound
		return
	}

	var existing Booking
	existing, err = s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return
	}

	owner := existing.UserID == principal.UserID
	if !owner && !principal.IsStaff() {
		err = ErrForbidden
		return
	}
	if !existing.Active() {
		booking = existing
		return
	}

	clearAttendance := adminPath || !owner
	booking, err = s.bookings.CancelBooking(ctx, bookingID, s.now(), clearAttendance)
	return
}

// SetAttendance records whether the booking's user attended. Staff only.
func (s *BookingService) SetAttendance(ctx context.Context, principal Principal, bookingID string, attended bool) (booking Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}
	if s.bookings == nil {
		err = fmt.Errorf("booking repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "SetAttendance",
		"principal_id", principal.UserID,
		"booking_id", bookingID,
		"attended", attended,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "attendance update failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "attendance updated")
	}()

	if err = requireStaff(principal); err != nil {
		return
	}
	booking, err = s.bookings.SetAttendance(ctx, strings.TrimSpace(bookingID), attended, s.now())
	return
}

// ListSessionBookings returns the roster of a session. Staff only.
func (s *BookingService) ListSessionBookings(ctx context.Context, principal Principal, sessionID string) ([]BookingDetail, error) {
	if s == nil {
		return nil, fmt.Errorf("BookingService is nil")
	}
	if s.bookings == nil {
		return nil, fmt.Errorf("booking repository not configured")
	}
	if err := requireStaff(principal); err != nil {
		return nil, err
	}
	return s.bookings.ListSessionBookings(ctx, strings.TrimSpace(sessionID))
}

// ListMyBookings returns the principal's active bookings, newest first.
func (s *BookingService) ListMyBookings(ctx context.Context, principal Principal) ([]BookingDetail, error) {
	if s == nil {
		return nil, fmt.Errorf("BookingService is nil")
	}
	if s.bookings == nil {
		return nil, fmt.Errorf("booking repository not configured")
	}
	if !principal.Authenticated() {
		return nil, ErrUnauthorized
	}
	return s.bookings.ListUserBookings(ctx, principal.UserID, capacity.StatusActive)
}
