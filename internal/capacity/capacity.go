// Package capacity decides whether a seat can be granted in a class session.
//
// The decision is pure. Callers load the session state inside a transaction,
// call Admit, and persist the returned decision in the same transaction so
// that concurrent bookings serialize on the store.
package capacity

import "errors"

// Status mirrors the lifecycle of a booking row.
type Status string

const (
	// StatusActive marks a booking that holds a seat.
	StatusActive Status = "ACTIVE"
	// StatusCanceled marks a booking that released its seat.
	StatusCanceled Status = "CANCELED"
)

var (
	// ErrFull is returned when the session has no remaining seats.
	ErrFull = errors.New("capacity: session is full")
	// ErrAlreadyBooked is returned when the user already holds an active booking.
	ErrAlreadyBooked = errors.New("capacity: already booked")
)

// Slot is the capacity state of one session at decision time.
type Slot struct {
	Capacity int
	Active   int
}

// Remaining reports the number of free seats, never negative.
func (s Slot) Remaining() int {
	if s.Active >= s.Capacity {
		return 0
	}
	return s.Capacity - s.Active
}

// Full reports whether no seat is left.
func (s Slot) Full() bool {
	return s.Active >= s.Capacity
}

// Seat is the user's existing booking row for the session, if any.
type Seat struct {
	BookingID string
	Status    Status
}

// Decision tells the caller how to persist an admitted booking.
type Decision int

const (
	// DecisionInsert creates a new booking row.
	DecisionInsert Decision = iota + 1
	// DecisionReactivate flips an existing canceled row back to active.
	DecisionReactivate
)

func (d Decision) String() string {
	switch d {
	case DecisionInsert:
		return "insert"
	case DecisionReactivate:
		return "reactivate"
	}
	return "unknown"
}

// Admit applies the booking rules: a full session rejects every request, then
// an active row for the same user is a duplicate, a canceled row is reused and
// anything else becomes a new row.
func Admit(slot Slot, existing *Seat) (Decision, error) {
	if slot.Full() {
		return 0, ErrFull
	}
	if existing != nil {
		if existing.Status == StatusActive {
			return 0, ErrAlreadyBooked
		}
		return DecisionReactivate, nil
	}
	return DecisionInsert, nil
}
