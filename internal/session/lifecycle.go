package session

import (
	"fmt"
	"time"

	"classhub/pkg/types"
)

// Navigation targets returned with each transition
const (
	RedirectMyClasses = "/my-classes"
	sessionPathPrefix = "/class-session/"
)

// SessionPath is where a viewer goes to enter a live class
func SessionPath(classID string) string {
	return sessionPathPrefix + classID
}

// Outcome is a committed transition and where the caller should navigate next
type Outcome struct {
	Class    *types.ClassSession `json:"class"`
	Redirect string              `json:"redirect"`
}

// Flags are display affordances derived from the clock. None of them is enforced.
type Flags struct {
	CanStart   bool `json:"can_start"`
	CanJoin    bool `json:"can_join"`
	IsUpcoming bool `json:"is_upcoming"`
}

// CanStart reports whether a scheduled class is inside its window
func CanStart(class *types.ClassSession, now time.Time) bool {
	return class.Status == types.StatusScheduled && class.InWindow(now)
}

// CanJoin reports whether a viewer may enter the live session now
func CanJoin(class *types.ClassSession, now time.Time) bool {
	return class.Status == types.StatusInProgress || CanStart(class, now)
}

// IsUpcoming reports whether the class has not started yet
func IsUpcoming(class *types.ClassSession, now time.Time) bool {
	return class.Status == types.StatusScheduled && class.StartTime.After(now)
}

// FlagsAt computes all advisory flags at once
func FlagsAt(class *types.ClassSession, now time.Time) Flags {
	return Flags{
		CanStart:   CanStart(class, now),
		CanJoin:    CanJoin(class, now),
		IsUpcoming: IsUpcoming(class, now),
	}
}

// redirectFor maps a target status to the follow-up location
func redirectFor(class *types.ClassSession, to types.ClassStatus) string {
	if to == types.StatusInProgress {
		return SessionPath(class.ID)
	}
	return RedirectMyClasses
}

// illegalTransition describes why a conditional update changed nothing
func illegalTransition(class *types.ClassSession, to types.ClassStatus) error {
	return fmt.Errorf("%w: %s to %s", types.ErrIllegalTransition, class.Status, to)
}
