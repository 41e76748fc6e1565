package groupquest

import "errors"

var (
	// ErrInvalidInput marks requests rejected before any shared state is touched.
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")

	// ErrLocked is returned for joins once the lobby has closed.
	ErrLocked = errors.New("locked")

	// ErrAlreadyAdvanced means another operator already moved the session
	// past the phase the transition starts from.
	ErrAlreadyAdvanced = errors.New("already advanced")

	// ErrWrongPhase means the session has not yet reached the phase the
	// operation requires.
	ErrWrongPhase = errors.New("wrong phase")

	// ErrInfeasible is returned when no grouping satisfies the size and pin
	// constraints.
	ErrInfeasible = errors.New("infeasible grouping")
)
