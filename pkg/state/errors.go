package state

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument matches every *ArgumentError via errors.Is.
	ErrInvalidArgument = errors.New("state: invalid argument")

	// ErrVersionConflict is returned by a Transport when a conditional write
	// or delete lost against the store's current version. Client translates it
	// into a false result; it is never returned from Client methods.
	ErrVersionConflict = errors.New("state: version conflict")

	// ErrTooManyConflicts is returned by Mutate when every attempt lost a race.
	ErrTooManyConflicts = errors.New("state: too many conflicts")
)

// ArgumentError reports malformed input detected before any remote call.
type ArgumentError struct {
	Op     string
	Param  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("state: %s: %s %s", e.Op, e.Param, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidArgument) hold for any ArgumentError.
func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}
