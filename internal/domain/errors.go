package domain

import "errors"

// Error kinds surfaced to callers. Wrap them with fmt.Errorf("%w: ...") to add detail.
var (
	ErrNotFound        = errors.New("not found")
	ErrInactive        = errors.New("inactive")
	ErrInvalidInput    = errors.New("invalid input")
	ErrSlotUnavailable = errors.New("time slot is no longer available, please choose another time")
	ErrConflict        = errors.New("conflict")
)

// IsClientError reports whether err is one of the user-actionable kinds above.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInactive) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrSlotUnavailable) ||
		errors.Is(err, ErrConflict)
}
