package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/class-booking/internal/recurrence"
)

// DefaultListWindow is the span listed when a caller gives no upper bound.
const DefaultListWindow = 14 * 24 * time.Hour

// ClassSessionRepository captures the persistence operations needed by the class service.
type ClassSessionRepository interface {
	CreateClassSessions(ctx context.Context, sessions []ClassSession) error
	UpdateClassSession(ctx context.Context, session ClassSession) error
	GetClassSession(ctx context.Context, id string) (ClassSession, error)
	ListClassSessions(ctx context.Context, query ClassSessionQuery) ([]ClassSessionListing, error)
	DeleteClassSession(ctx context.Context, id string) error
}

// ClassService creates, edits and lists class sessions.
type ClassService struct {
	sessions    ClassSessionRepository
	engine      *recurrence.Engine
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewClassService wires dependencies for the class service.
func NewClassService(sessions ClassSessionRepository, engine *recurrence.Engine, idGenerator func() string, now func() time.Time) *ClassService {
	return NewClassServiceWithLogger(sessions, engine, idGenerator, now, nil)
}

// NewClassServiceWithLogger wires dependencies for the class service with a logger.
func NewClassServiceWithLogger(sessions ClassSessionRepository, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ClassService {
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ClassService{
		sessions:    sessions,
		engine:      engine,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *ClassService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ClassService", operation, attrs...)
}

// NormalizeClassType maps the accepted spellings of the two class types onto
// their canonical names. Other values are returned trimmed.
func NormalizeClassType(value string) string {
	trimmed := strings.TrimSpace(value)
	switch strings.TrimSuffix(strings.ToLower(trimmed), "s") {
	case "collective", "colectiva", "colectivo":
		return ClassTypeCollective
	case "private", "privada", "privado":
		return ClassTypePrivate
	}
	return trimmed
}

// CreateClassSession validates a template and stores it, expanded weekly over
// the recurrence window when the class is collective. Every occurrence is
// stored or none is.
func (s *ClassService) CreateClassSession(ctx context.Context, params CreateClassSessionParams) (created []ClassSession, err error) {
	if s == nil {
		err = fmt.Errorf("ClassService is nil")
		return
	}
	if s.sessions == nil {
		err = fmt.Errorf("class session repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateClassSession",
		"principal_id", params.Principal.UserID,
		"recurrence", params.Recurrence,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "class session creation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("occurrences", len(created), "first_session_id", created[0].ID).
			InfoContext(ctx, "class sessions created")
	}()

	if err = requireStaff(params.Principal); err != nil {
		return
	}

	template := ClassSession{
		Title:      strings.TrimSpace(params.Title),
		Type:       NormalizeClassType(params.Type),
		Instructor: trimOptional(params.Instructor),
		Notes:      trimOptional(params.Notes),
		StartsAt:   params.StartsAt,
		EndsAt:     params.EndsAt,
		Capacity:   DefaultCapacity,
	}
	if params.Capacity != nil {
		template.Capacity = *params.Capacity
	}

	vErr := validateClassSession(template)
	window := recurrence.WindowNone
	if template.Type == ClassTypeCollective {
		if strings.TrimSpace(params.Recurrence) == "" {
			vErr.add("recurrence", "is required for collective classes")
		} else if w, parseErr := recurrence.ParseWindow(params.Recurrence); parseErr != nil || w == recurrence.WindowNone {
			vErr.add("recurrence", "must be one of 3m, 6m, 9m or 12m")
		} else {
			window = w
		}
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if err = s.checkTimes(template.StartsAt, template.EndsAt); err != nil {
		return
	}
	if err = s.engine.CheckNotPastDay(template.StartsAt, s.now()); err != nil {
		return
	}

	var occurrences []recurrence.Occurrence
	occurrences, err = s.engine.Expand(template.StartsAt, template.EndsAt, window)
	if err != nil {
		return
	}

	now := s.now()
	sessions := make([]ClassSession, 0, len(occurrences))
	for _, occ := range occurrences {
		session := template
		session.ID = s.idGenerator()
		session.StartsAt = occ.Start.UTC()
		session.EndsAt = occ.End.UTC()
		session.CreatedAt = now
		session.UpdatedAt = now
		sessions = append(sessions, session)
	}

	if err = s.sessions.CreateClassSessions(ctx, sessions); err != nil {
		return
	}

	created = sessions
	return
}

// UpdateClassSession applies a partial update. A session may stay on a day
// that is already past, but may not be moved onto one.
func (s *ClassService) UpdateClassSession(ctx context.Context, params UpdateClassSessionParams) (updated ClassSession, err error) {
	if s == nil {
		err = fmt.Errorf("ClassService is nil")
		return
	}
	if s.sessions == nil {
		err = fmt.Errorf("class session repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateClassSession",
		"principal_id", params.Principal.UserID,
		"session_id", params.SessionID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "class session update failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "class session updated")
	}()

	if err = requireStaff(params.Principal); err != nil {
		return
	}

	var existing ClassSession
	existing, err = s.sessions.GetClassSession(ctx, strings.TrimSpace(params.SessionID))
	if err != nil {
		return
	}

	next := existing
	if params.Title != nil {
		next.Title = strings.TrimSpace(*params.Title)
	}
	if params.Type != nil {
		next.Type = NormalizeClassType(*params.Type)
	}
	if params.Instructor != nil {
		next.Instructor = trimOptional(params.Instructor)
	}
	if params.Notes != nil {
		next.Notes = trimOptional(params.Notes)
	}
	if params.StartsAt != nil {
		next.StartsAt = *params.StartsAt
	}
	if params.EndsAt != nil {
		next.EndsAt = *params.EndsAt
	}
	if params.Capacity != nil {
		next.Capacity = *params.Capacity
	}

	if vErr := validateClassSession(next); vErr.HasErrors() {
		err = vErr
		return
	}
	if err = s.checkTimes(next.StartsAt, next.EndsAt); err != nil {
		return
	}
	if err = s.engine.CheckMove(existing.StartsAt, next.StartsAt, s.now()); err != nil {
		return
	}

	next.StartsAt = next.StartsAt.UTC()
	next.EndsAt = next.EndsAt.UTC()
	next.UpdatedAt = s.now()
	if err = s.sessions.UpdateClassSession(ctx, next); err != nil {
		return
	}

	updated = next
	return
}

// DeleteClassSession removes a session together with its bookings.
func (s *ClassService) DeleteClassSession(ctx context.Context, principal Principal, sessionID string) (err error) {
	if s == nil {
		return fmt.Errorf("ClassService is nil")
	}
	if s.sessions == nil {
		return fmt.Errorf("class session repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteClassSession",
		"principal_id", principal.UserID,
		"session_id", sessionID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "class session deletion failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "class session deleted")
	}()

	if err = requireStaff(principal); err != nil {
		return
	}
	return s.sessions.DeleteClassSession(ctx, strings.TrimSpace(sessionID))
}

// GetClassSession returns one session.
func (s *ClassService) GetClassSession(ctx context.Context, sessionID string) (ClassSession, error) {
	if s == nil {
		return ClassSession{}, fmt.Errorf("ClassService is nil")
	}
	if s.sessions == nil {
		return ClassSession{}, fmt.Errorf("class session repository not configured")
	}
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return ClassSession{}, ErrNotFound
	}
	return s.sessions.GetClassSession(ctx, id)
}

// ListClassSessions returns the sessions starting in [From, To], defaulting
// to the next two weeks, with occupancy and the caller's own booking.
func (s *ClassService) ListClassSessions(ctx context.Context, params ListClassSessionsParams) (listings []ClassSessionListing, err error) {
	if s == nil {
		err = fmt.Errorf("ClassService is nil")
		return
	}
	if s.sessions == nil {
		err = fmt.Errorf("class session repository not configured")
		return
	}

	from := params.From
	if from.IsZero() {
		from = s.now()
	}
	to := params.To
	if to.IsZero() {
		to = from.Add(DefaultListWindow)
	}

	logger := s.loggerWith(ctx, "ListClassSessions",
		"principal_id", params.Principal.UserID,
		"from", from,
		"to", to,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "class session listing failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if to.Before(from) {
		err = NewValidationError(map[string]string{"to": "must not be before from"})
		return
	}

	listings, err = s.sessions.ListClassSessions(ctx, ClassSessionQuery{
		From:     from,
		To:       to,
		ViewerID: params.Principal.UserID,
	})
	if err != nil {
		return
	}

	for i := range listings {
		annotateOccupancy(&listings[i])
	}
	return
}

func annotateOccupancy(l *ClassSessionListing) {
	l.Remaining = l.Capacity - l.BookedCount
	if l.Remaining < 0 {
		l.Remaining = 0
	}
	l.IsFull = l.BookedCount >= l.Capacity
}

func (s *ClassService) checkTimes(start, end time.Time) error {
	if !end.After(start) {
		return ErrEndBeforeStart
	}
	if !s.engine.SameDay(start, end) {
		return NewValidationError(map[string]string{"ends_at": "must be on the same day as starts_at"})
	}
	return nil
}

func validateClassSession(session ClassSession) *ValidationError {
	vErr := &ValidationError{}
	if session.Title == "" {
		vErr.add("title", "is required")
	}
	switch session.Type {
	case "":
		vErr.add("type", "is required")
	case ClassTypeCollective, ClassTypePrivate:
	default:
		vErr.add("type", "must be COLLECTIVE or PRIVATE")
	}
	if session.Capacity < 1 {
		vErr.add("capacity", "must be at least 1")
	}
	if session.StartsAt.IsZero() {
		vErr.add("starts_at", "is required")
	}
	if session.EndsAt.IsZero() {
		vErr.add("ends_at", "is required")
	}
	return vErr
}

func requireStaff(principal Principal) error {
	if !principal.Authenticated() {
		return ErrUnauthorized
	}
	if !principal.IsStaff() {
		return ErrForbidden
	}
	return nil
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// IsDomainError reports whether err is one of the expected business outcomes
// rather than an infrastructure failure.
func IsDomainError(err error) bool {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return true
	}
	return ErrorKind(err) != "unexpected"
}
