package types

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Valid reports whether r is one of the two known roles
func (r Role) Valid() bool {
	return r == RoleMentor || r == RoleParticipant
}

// Valid reports whether s is a known status
func (s ClassStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition can leave s
func (s ClassStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo encodes the lifecycle graph:
// scheduled -> in_progress -> completed, scheduled -> cancelled.
// FUNCTIONAL DISCOVERY: No edge is ever reversed and terminal states have no exits
func (s ClassStatus) CanTransitionTo(next ClassStatus) bool {
	switch s {
	case StatusScheduled:
		return next == StatusInProgress || next == StatusCancelled
	case StatusInProgress:
		return next == StatusCompleted
	default:
		return false
	}
}

// Validate checks the fields a mentor supplies when creating a class
func (c *ClassSession) Validate() error {
	title := strings.TrimSpace(c.Title)
	if title == "" || utf8.RuneCountInString(title) > 200 {
		return ErrInvalidTitle
	}
	if strings.TrimSpace(c.Description) == "" {
		return ErrEmptyDescription
	}
	if c.StartTime.IsZero() || c.EndTime.IsZero() {
		return ErrMissingTime
	}
	if !c.EndTime.After(c.StartTime) {
		return ErrInvalidTimeRange
	}
	if !c.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// InWindow reports whether now lies within [start_time, end_time]
func (c *ClassSession) InWindow(now time.Time) bool {
	return !now.Before(c.StartTime) && !now.After(c.EndTime)
}

// NormalizeContent trims message content and enforces the length limit.
// TECHNICAL DISCOVERY: Whitespace-only content is rejected here, before any
// store or network call is attempted
func NormalizeContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(trimmed) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return trimmed, nil
}

// IsValidID checks that id is a canonical UUID
func IsValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
