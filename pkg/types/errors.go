package types

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every failure surfaced by the core wraps exactly one of these
// so callers can classify it with errors.Is.
var (
	ErrFetch            = errors.New("fetch failed")
	ErrSend             = errors.New("send failed")
	ErrAuth             = errors.New("authentication failed")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrAlreadyEnrolled  = errors.New("already enrolled in this class")
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
)

// ARCHITECTURAL DISCOVERY: Specific errors wrap a taxonomy sentinel so handlers
// map status codes by category while logs keep the precise cause
var (
	ErrEmptyMessage   = fmt.Errorf("%w: message content is empty", ErrSend)
	ErrMessageTooLong = fmt.Errorf("%w: message exceeds %d characters", ErrSend, MaxMessageLength)

	ErrInvalidRole      = fmt.Errorf("%w: role must be mentor or participant", ErrValidation)
	ErrInvalidTitle     = fmt.Errorf("%w: title must be 1-200 characters", ErrValidation)
	ErrEmptyDescription = fmt.Errorf("%w: description is required", ErrValidation)
	ErrMissingTime      = fmt.Errorf("%w: start and end time are required", ErrValidation)
	ErrInvalidTimeRange = fmt.Errorf("%w: end time must be after start time", ErrValidation)
	ErrInvalidID        = fmt.Errorf("%w: id must be a UUID", ErrValidation)
	ErrInvalidStatus    = fmt.Errorf("%w: unknown class status", ErrValidation)

	ErrClassNotFound = fmt.Errorf("%w: class", ErrNotFound)
	ErrUserNotFound  = fmt.Errorf("%w: user", ErrNotFound)

	ErrIllegalTransition  = fmt.Errorf("%w: illegal status transition", ErrInvalidOperation)
	ErrNotClassOwner      = fmt.Errorf("%w: only the owning mentor may do this", ErrInvalidOperation)
	ErrMentorOnly         = fmt.Errorf("%w: only mentors may do this", ErrInvalidOperation)
	ErrParticipantOnly    = fmt.Errorf("%w: only participants may do this", ErrInvalidOperation)
	ErrSelfEnrollment     = fmt.Errorf("%w: mentors cannot enroll in their own class", ErrInvalidOperation)
	ErrNotEnrolled        = fmt.Errorf("%w: not enrolled in this class", ErrInvalidOperation)
	ErrClassClosed        = fmt.Errorf("%w: class is completed or cancelled", ErrInvalidOperation)
	ErrOutsideStartWindow = fmt.Errorf("%w: class cannot be started outside its scheduled window", ErrInvalidOperation)
	ErrNoAccess           = fmt.Errorf("%w: not a member of this class", ErrInvalidOperation)

	ErrEmailTaken         = fmt.Errorf("%w: email is already registered", ErrAuth)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrAuth)
	ErrInvalidToken       = fmt.Errorf("%w: invalid or expired token", ErrAuth)
)
