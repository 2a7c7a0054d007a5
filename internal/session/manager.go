package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"classhub/internal/metrics"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

var _ interfaces.AccessChecker = (*Manager)(nil)

// Store is the slice of persistence the lifecycle controller needs
type Store interface {
	interfaces.ProfileStore
	interfaces.ClassStore
	interfaces.EnrollmentStore
}

// Config tunes the lifecycle rules
type Config struct {
	// EnforceStartWindow rejects start outside [start_time-EarlyStartGrace, end_time]
	EnforceStartWindow bool
	EarlyStartGrace    time.Duration
	DashboardLimit     int
}

// DefaultConfig leaves start ungated
func DefaultConfig() Config {
	return Config{
		EnforceStartWindow: false,
		EarlyStartGrace:    10 * time.Minute,
		DashboardLimit:     3,
	}
}

// CreateClassRequest carries the fields a mentor fills in
type CreateClassRequest struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"required"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}

// Manager is the class lifecycle controller
// ARCHITECTURAL DISCOVERY: No in-memory class cache; every decision reads or
// conditionally writes the store so concurrent actors see one truth
type Manager struct {
	store   Store
	config  Config
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	notifier interfaces.StatusNotifier
}

// NewManager creates a lifecycle controller
func NewManager(store Store, config Config, logger *zap.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DashboardLimit <= 0 {
		config.DashboardLimit = 3
	}
	return &Manager{
		store:   store,
		config:  config,
		now:     time.Now,
		logger:  logger,
		metrics: m,
	}
}

// SetNotifier registers who hears about committed transitions
func (m *Manager) SetNotifier(n interfaces.StatusNotifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// Now is the controller's clock
func (m *Manager) Now() time.Time {
	return m.now()
}

// Flags evaluates the advisory flags against the controller's clock
func (m *Manager) Flags(class *types.ClassSession) Flags {
	return FlagsAt(class, m.now())
}

// CreateClass schedules a new class owned by mentorID
func (m *Manager) CreateClass(ctx context.Context, mentorID string, req CreateClassRequest) (*types.ClassSession, error) {
	mentor, err := m.store.GetUser(ctx, mentorID)
	if err != nil {
		return nil, err
	}
	if mentor.Role != types.RoleMentor {
		return nil, types.ErrMentorOnly
	}

	class := &types.ClassSession{
		ID:          uuid.New().String(),
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		MentorID:    mentor.ID,
		StartTime:   req.StartTime.UTC(),
		EndTime:     req.EndTime.UTC(),
		Status:      types.StatusScheduled,
		CreatedAt:   m.now().UTC(),
	}
	if err := class.Validate(); err != nil {
		return nil, err
	}

	if err := m.store.CreateClass(ctx, class); err != nil {
		return nil, fmt.Errorf("failed to create class: %w", err)
	}
	author := mentor.Author()
	class.Mentor = &author

	m.logger.Info("Class created",
		zap.String("class_id", class.ID),
		zap.String("mentor_id", mentor.ID),
		zap.Time("start_time", class.StartTime))
	return class, nil
}

// GetClass reads one class with its mentor
func (m *Manager) GetClass(ctx context.Context, classID string) (*types.ClassSession, error) {
	return m.store.GetClass(ctx, classID)
}

// Start moves a scheduled class to in_progress
func (m *Manager) Start(ctx context.Context, classID, actorID string) (*Outcome, error) {
	return m.transition(ctx, classID, actorID, types.StatusScheduled, types.StatusInProgress)
}

// End moves a live class to completed
func (m *Manager) End(ctx context.Context, classID, actorID string) (*Outcome, error) {
	return m.transition(ctx, classID, actorID, types.StatusInProgress, types.StatusCompleted)
}

// Cancel moves a scheduled class to cancelled
func (m *Manager) Cancel(ctx context.Context, classID, actorID string) (*Outcome, error) {
	return m.transition(ctx, classID, actorID, types.StatusScheduled, types.StatusCancelled)
}

func (m *Manager) transition(ctx context.Context, classID, actorID string, from, to types.ClassStatus) (*Outcome, error) {
	outcome, err := m.doTransition(ctx, classID, actorID, from, to)
	m.metrics.ObserveTransition(to, err)
	if err != nil {
		m.logger.Debug("Transition rejected",
			zap.String("class_id", classID),
			zap.String("actor_id", actorID),
			zap.String("to", string(to)),
			zap.Error(err))
	}
	return outcome, err
}

func (m *Manager) doTransition(ctx context.Context, classID, actorID string, from, to types.ClassStatus) (*Outcome, error) {
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s to %s", types.ErrIllegalTransition, from, to)
	}

	if to == types.StatusInProgress && m.config.EnforceStartWindow {
		class, err := m.store.GetClass(ctx, classID)
		if err != nil {
			return nil, err
		}
		if err := m.checkStartable(class, actorID, from); err != nil {
			return nil, err
		}
	}

	// ARCHITECTURAL DISCOVERY: Owner and source status are part of the update's
	// predicate, so a stale client can never revert a terminal class
	changed, err := m.store.TransitionClass(ctx, classID, actorID, from, to)
	if err != nil {
		return nil, err
	}

	class, readErr := m.store.GetClass(ctx, classID)
	if !changed {
		if readErr != nil {
			return nil, readErr
		}
		if class.MentorID != actorID {
			return nil, types.ErrNotClassOwner
		}
		return nil, illegalTransition(class, to)
	}

	if readErr != nil {
		// The write committed; report what is known
		m.logger.Warn("Class re-read after transition failed",
			zap.String("class_id", classID),
			zap.Error(readErr))
		class = &types.ClassSession{ID: classID, MentorID: actorID, Status: to}
	}

	m.logger.Info("Class status changed",
		zap.String("class_id", classID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	m.notify(class)

	return &Outcome{Class: class, Redirect: redirectFor(class, to)}, nil
}

// checkStartable applies the optional time gate
func (m *Manager) checkStartable(class *types.ClassSession, actorID string, from types.ClassStatus) error {
	if class.MentorID != actorID {
		return types.ErrNotClassOwner
	}
	if class.Status != from {
		return illegalTransition(class, types.StatusInProgress)
	}
	now := m.now()
	if now.Before(class.StartTime.Add(-m.config.EarlyStartGrace)) || now.After(class.EndTime) {
		return types.ErrOutsideStartWindow
	}
	return nil
}

func (m *Manager) notify(class *types.ClassSession) {
	m.mu.RLock()
	n := m.notifier
	m.mu.RUnlock()
	if n != nil {
		n.NotifyStatus(class)
	}
}

// Enroll links a participant to a class
func (m *Manager) Enroll(ctx context.Context, userID, classID string) (*types.Enrollment, error) {
	enrollment, err := m.enroll(ctx, userID, classID)
	m.metrics.ObserveEnrollment("enroll", err)
	return enrollment, err
}

func (m *Manager) enroll(ctx context.Context, userID, classID string) (*types.Enrollment, error) {
	class, err := m.checkParticipant(ctx, userID, classID)
	if err != nil {
		return nil, err
	}
	if class.Status.Terminal() {
		return nil, types.ErrClassClosed
	}

	// FUNCTIONAL DISCOVERY: This pre-check only gives a fast answer; the store's
	// unique constraint decides concurrent duplicates
	enrolled, err := m.store.IsEnrolled(ctx, userID, classID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, types.ErrAlreadyEnrolled
	}

	enrollment := &types.Enrollment{
		ID:        uuid.New().String(),
		UserID:    userID,
		ClassID:   classID,
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.CreateEnrollment(ctx, enrollment); err != nil {
		if errors.Is(err, types.ErrAlreadyEnrolled) || errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to enroll: %w", err)
	}

	m.logger.Info("Participant enrolled",
		zap.String("class_id", classID),
		zap.String("user_id", userID))
	return enrollment, nil
}

// Unenroll removes a participant from a class
func (m *Manager) Unenroll(ctx context.Context, userID, classID string) error {
	err := m.unenroll(ctx, userID, classID)
	m.metrics.ObserveEnrollment("unenroll", err)
	return err
}

func (m *Manager) unenroll(ctx context.Context, userID, classID string) error {
	if _, err := m.checkParticipant(ctx, userID, classID); err != nil {
		return err
	}

	removed, err := m.store.DeleteEnrollment(ctx, userID, classID)
	if err != nil {
		return fmt.Errorf("failed to unenroll: %w", err)
	}
	if !removed {
		return types.ErrNotEnrolled
	}

	m.logger.Info("Participant unenrolled",
		zap.String("class_id", classID),
		zap.String("user_id", userID))
	return nil
}

// checkParticipant applies the role rules shared by enroll and unenroll
func (m *Manager) checkParticipant(ctx context.Context, userID, classID string) (*types.ClassSession, error) {
	class, err := m.store.GetClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if class.MentorID == userID {
		return nil, types.ErrSelfEnrollment
	}
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role != types.RoleParticipant {
		return nil, types.ErrParticipantOnly
	}
	return class, nil
}

// CanAccess admits the owning mentor and enrolled participants
func (m *Manager) CanAccess(ctx context.Context, classID, userID string) (*types.ClassSession, error) {
	class, err := m.store.GetClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if class.MentorID == userID {
		return class, nil
	}
	enrolled, err := m.store.IsEnrolled(ctx, userID, classID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, types.ErrNoAccess
	}
	return class, nil
}
