package application

import (
	"errors"
	"fmt"
	"testing"

	"github.com/example/class-booking/internal/capacity"
	"github.com/example/class-booking/internal/recurrence"
	"github.com/example/class-booking/internal/roles"
)

func TestValidationError(t *testing.T) {
	t.Parallel()

	var nilErr *ValidationError
	if nilErr.Error() != "" || nilErr.HasErrors() {
		t.Fatalf("nil validation error should be empty")
	}

	vErr := NewValidationError(map[string]string{"ends_at": "must be on the same day as starts_at"})
	if !vErr.HasErrors() || vErr.Error() != "validation failed" {
		t.Fatalf("unexpected validation error: %#v", vErr)
	}

	vErr.merge(NewValidationError(map[string]string{"capacity": "must be at least 1"}))
	vErr.merge(nil)
	if len(vErr.FieldErrors) != 2 || vErr.FieldErrors["capacity"] == "" {
		t.Fatalf("expected merged fields, got %v", vErr.FieldErrors)
	}

	var target *ValidationError
	if !errors.As(fmt.Errorf("create session: %w", vErr), &target) || target != vErr {
		t.Fatalf("expected errors.As to find the validation error")
	}
}

func TestDecisionErrorsAreShared(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		app  error
		pkg  error
	}{
		{"full", ErrFull, capacity.ErrFull},
		{"already booked", ErrAlreadyBooked, capacity.ErrAlreadyBooked},
		{"forbidden", ErrForbidden, roles.ErrForbidden},
		{"self mutation", ErrSelfMutation, roles.ErrSelfMutation},
		{"past day", ErrPastDay, recurrence.ErrPastDay},
		{"end before start", ErrEndBeforeStart, recurrence.ErrInvalidDuration},
		{"no occurrences", ErrNoOccurrences, recurrence.ErrNoOccurrences},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if !errors.Is(fmt.Errorf("wrapped: %w", tc.pkg), tc.app) {
				t.Fatalf("expected %v to match %v", tc.pkg, tc.app)
			}
		})
	}
}
