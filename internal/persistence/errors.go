package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a uniqueness constraint rejects a write.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a write breaks a schema constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrInvalidEvent is returned when an event satisfies neither the regular
	// nor the template shape.
	ErrInvalidEvent = errors.New("persistence: invalid event shape")
	// ErrUnavailable is returned when the backing store cannot serve the request.
	ErrUnavailable = errors.New("persistence: store unavailable")
)
