package types

import (
	"strings"
	"time"
)

// Role tags every profile. It is fixed at sign-up.
type Role string

const (
	RoleMentor      Role = "mentor"
	RoleParticipant Role = "participant"
)

// ClassStatus is the lifecycle state of a ClassSession.
// ARCHITECTURAL DISCOVERY: Stored as plain text with a CHECK constraint so both
// sqlite and postgres enforce the same closed set of values
type ClassStatus string

const (
	StatusScheduled  ClassStatus = "scheduled"
	StatusInProgress ClassStatus = "in_progress"
	StatusCompleted  ClassStatus = "completed"
	StatusCancelled  ClassStatus = "cancelled"
)

// MaxMessageLength bounds chat message content, counted in runes after trimming
const MaxMessageLength = 4000

// User is a profile row
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	Role      Role      `json:"role" db:"role"`
	AvatarURL *string   `json:"avatar_url,omitempty" db:"avatar_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Author returns the display identity of the user
func (u *User) Author() Author {
	return Author{
		UserID:    u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		AvatarURL: u.AvatarURL,
	}
}

// Author is the display identity attached to a chat message.
// FUNCTIONAL DISCOVERY: Unresolved marks a placeholder used when the profile
// lookup failed, so the message is still shown instead of silently dropped
type Author struct {
	UserID     string  `json:"user_id" db:"user_id"`
	FirstName  string  `json:"first_name" db:"first_name"`
	LastName   string  `json:"last_name" db:"last_name"`
	Role       Role    `json:"role" db:"role"`
	AvatarURL  *string `json:"avatar_url,omitempty" db:"avatar_url"`
	Unresolved bool    `json:"unresolved,omitempty" db:"-"`
}

// DisplayName joins first and last name
func (a Author) DisplayName() string {
	if a.Unresolved {
		return "Unknown user"
	}
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// PlaceholderAuthor is shown for messages whose author could not be resolved
func PlaceholderAuthor(userID string) Author {
	return Author{UserID: userID, Unresolved: true}
}

// ClassSession is a scheduled class owned by exactly one mentor.
// FUNCTIONAL DISCOVERY: Only Status changes after creation; cancellation is a
// status, never a delete
type ClassSession struct {
	ID          string      `json:"id" db:"id"`
	Title       string      `json:"title" db:"title"`
	Description string      `json:"description" db:"description"`
	MentorID    string      `json:"mentor_id" db:"mentor_id"`
	StartTime   time.Time   `json:"start_time" db:"start_time"`
	EndTime     time.Time   `json:"end_time" db:"end_time"`
	Status      ClassStatus `json:"status" db:"status"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`

	// Mentor is filled by list queries that join the owning profile
	Mentor *Author `json:"mentor,omitempty" db:"-"`
}

// Enrollment links a participant to a class
type Enrollment struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	ClassID   string    `json:"class_id" db:"class_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// EnrolledClass is the normalized shape of an enrollment joined with its class
type EnrolledClass struct {
	Enrollment Enrollment   `json:"enrollment"`
	Class      ClassSession `json:"class"`
}

// Participant is an enrolled user as seen by the owning mentor
type Participant struct {
	User       User      `json:"user"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// Message is a persisted chat row. It is append-only.
type Message struct {
	ID        string    `json:"id" db:"id"`
	ClassID   string    `json:"class_id" db:"class_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ChatMessage is a message enriched with its author's display identity
type ChatMessage struct {
	Message
	Author Author `json:"author"`
}

// Thread is a chat conversation entry. One thread per class.
type Thread struct {
	ClassID   string      `json:"class_id"`
	Title     string      `json:"title"`
	Status    ClassStatus `json:"status"`
	StartTime time.Time   `json:"start_time"`
}
