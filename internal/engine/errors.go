package engine

import (
	"errors"
	"fmt"

	"github.com/slotwise/bookd/internal/model"
)

var (
	// ErrNotFound covers absent or inactive services, unknown appointments
	// and unknown resources.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a concurrent writer invalidated an assumption made
	// during planning, or a uniqueness rule was violated. Callers may retry
	// a bounded number of times.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput rejects malformed caller input (empty names,
	// non-positive durations, unparseable prices). Distinct from
	// ErrInvalidState so the HTTP layer can answer 400, not 409.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidState rejects illegal appointment state transitions.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrForbidden rejects actors without rights over the target.
	ErrForbidden = errors.New("forbidden")

	// ErrUnavailable marks transient store failures, distinct from "this
	// slot is truly taken" so callers know a retry can help.
	ErrUnavailable = errors.New("store unavailable")
)

// InsufficientResourcesError reports which requirement could not be met at
// plan time. It is a capacity answer, not a transient condition: blind
// retries will get the same answer until an allocation is released.
type InsufficientResourcesError struct {
	ResourceType model.ResourceType
	Wanted       int
	Got          int
}

func (e *InsufficientResourcesError) Error() string {
	return fmt.Sprintf("insufficient %s resources: wanted %d, found %d", e.ResourceType, e.Wanted, e.Got)
}

// IsInsufficient reports whether err is an under-supply failure from the
// planner.
func IsInsufficient(err error) bool {
	var ins *InsufficientResourcesError
	return errors.As(err, &ins)
}
