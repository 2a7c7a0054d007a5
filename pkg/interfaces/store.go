package interfaces

import (
	"context"
	"time"

	"classhub/pkg/types"
)

// ProfileStore persists users and their password hashes
type ProfileStore interface {
	// CreateUser inserts the profile and its credential row atomically
	CreateUser(ctx context.Context, user *types.User, passwordHash string) error

	GetUser(ctx context.Context, userID string) (*types.User, error)

	// GetCredentials returns the user with the stored password hash
	GetCredentials(ctx context.Context, email string) (*types.User, string, error)

	// GetAuthor returns the narrow display identity used to enrich live messages
	GetAuthor(ctx context.Context, userID string) (*types.Author, error)
}

// ClassStore persists ClassSession rows
type ClassStore interface {
	CreateClass(ctx context.Context, class *types.ClassSession) error

	GetClass(ctx context.Context, classID string) (*types.ClassSession, error)

	// TransitionClass sets status to `to` only if the class is owned by mentorID
	// and currently in `from`. It reports whether a row changed.
	// ARCHITECTURAL DISCOVERY: Conditional update makes the state machine a
	// compare-and-swap at the store, so concurrent or stale clients cannot revert it
	TransitionClass(ctx context.Context, classID, mentorID string, from, to types.ClassStatus) (bool, error)

	// ListMentorClasses returns the mentor's classes by start_time ascending
	ListMentorClasses(ctx context.Context, mentorID string) ([]*types.ClassSession, error)

	// ListUpcomingClasses returns scheduled classes starting after `after`, joined with the mentor
	ListUpcomingClasses(ctx context.Context, after time.Time) ([]*types.ClassSession, error)

	// ListEnrolledClasses returns the user's enrollments joined with class and mentor,
	// most recent enrollment first
	ListEnrolledClasses(ctx context.Context, userID string) ([]*types.EnrolledClass, error)
}

// EnrollmentStore persists enrollments
type EnrollmentStore interface {
	// CreateEnrollment fails with types.ErrAlreadyEnrolled when the store's
	// uniqueness constraint on (user_id, class_id) rejects the row
	CreateEnrollment(ctx context.Context, enrollment *types.Enrollment) error

	// DeleteEnrollment reports whether a row was removed
	DeleteEnrollment(ctx context.Context, userID, classID string) (bool, error)

	IsEnrolled(ctx context.Context, userID, classID string) (bool, error)

	ListParticipants(ctx context.Context, classID string) ([]*types.Participant, error)
}

// MessageStore persists chat messages
type MessageStore interface {
	StoreMessage(ctx context.Context, message *types.Message) error

	// GetClassHistory returns messages joined with their author, created_at ascending
	GetClassHistory(ctx context.Context, classID string) ([]*types.ChatMessage, error)
}

// TokenStore records signed-out tokens until they expire
type TokenStore interface {
	RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
	PurgeRevokedTokens(ctx context.Context, before time.Time) (int64, error)
}

// Store handles all persistence operations
// ARCHITECTURAL DISCOVERY: Single interface over all tables enables one
// connection pool and one write coordinator for the whole process
type Store interface {
	ProfileStore
	ClassStore
	EnrollmentStore
	MessageStore
	TokenStore

	// HealthCheck verifies database connectivity
	HealthCheck(ctx context.Context) error

	// Close closes the database connection and cleans up resources
	Close() error
}
