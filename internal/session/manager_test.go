package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"classhub/pkg/types"
)

// mockStore keeps rows in memory and applies transitions as compare-and-swap
type mockStore struct {
	mu          sync.Mutex
	users       map[string]*types.User
	classes     map[string]*types.ClassSession
	enrollments map[string]*types.Enrollment // key user|class

	getClassErr   error
	transitionErr error
	transitions   int
}

func newMockStore() *mockStore {
	return &mockStore{
		users:       make(map[string]*types.User),
		classes:     make(map[string]*types.ClassSession),
		enrollments: make(map[string]*types.Enrollment),
	}
}

func (s *mockStore) addUser(id string, role types.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = &types.User{ID: id, Email: id + "@example.com", FirstName: id, LastName: "Test", Role: role}
}

func (s *mockStore) addClass(id, mentorID string, status types.ClassStatus, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[id] = &types.ClassSession{
		ID:          id,
		Title:       "Class " + id,
		Description: "About " + id,
		MentorID:    mentorID,
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		Status:      status,
	}
}

func (s *mockStore) status(id string) types.ClassStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classes[id].Status
}

func (s *mockStore) enrollmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.enrollments)
}

func (s *mockStore) CreateUser(ctx context.Context, user *types.User, passwordHash string) error {
	return errors.New("not implemented")
}

func (s *mockStore) GetUser(ctx context.Context, userID string) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, types.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *mockStore) GetCredentials(ctx context.Context, email string) (*types.User, string, error) {
	return nil, "", types.ErrUserNotFound
}

func (s *mockStore) GetAuthor(ctx context.Context, userID string) (*types.Author, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	a := u.Author()
	return &a, nil
}

func (s *mockStore) CreateClass(ctx context.Context, class *types.ClassSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *class
	s.classes[class.ID] = &cp
	return nil
}

func (s *mockStore) GetClass(ctx context.Context, classID string) (*types.ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getClassErr != nil {
		return nil, s.getClassErr
	}
	c, ok := s.classes[classID]
	if !ok {
		return nil, types.ErrClassNotFound
	}
	cp := *c
	if m, ok := s.users[c.MentorID]; ok {
		a := m.Author()
		cp.Mentor = &a
	}
	return &cp, nil
}

func (s *mockStore) TransitionClass(ctx context.Context, classID, mentorID string, from, to types.ClassStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitionErr != nil {
		return false, s.transitionErr
	}
	c, ok := s.classes[classID]
	if !ok || c.MentorID != mentorID || c.Status != from {
		return false, nil
	}
	c.Status = to
	s.transitions++
	return true, nil
}

func (s *mockStore) ListMentorClasses(ctx context.Context, mentorID string) ([]*types.ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.ClassSession
	for _, c := range s.classes {
		if c.MentorID == mentorID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *mockStore) ListUpcomingClasses(ctx context.Context, after time.Time) ([]*types.ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.ClassSession
	for _, c := range s.classes {
		if c.Status == types.StatusScheduled && c.StartTime.After(after) {
			cp := *c
			if m, ok := s.users[c.MentorID]; ok {
				a := m.Author()
				cp.Mentor = &a
			}
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *mockStore) ListEnrolledClasses(ctx context.Context, userID string) ([]*types.EnrolledClass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.EnrolledClass
	for _, e := range s.enrollments {
		if e.UserID == userID {
			out = append(out, &types.EnrolledClass{Enrollment: *e, Class: *s.classes[e.ClassID]})
		}
	}
	return out, nil
}

func (s *mockStore) CreateEnrollment(ctx context.Context, enrollment *types.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := enrollment.UserID + "|" + enrollment.ClassID
	if _, ok := s.enrollments[key]; ok {
		return types.ErrAlreadyEnrolled
	}
	cp := *enrollment
	s.enrollments[key] = &cp
	return nil
}

func (s *mockStore) DeleteEnrollment(ctx context.Context, userID, classID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "|" + classID
	if _, ok := s.enrollments[key]; !ok {
		return false, nil
	}
	delete(s.enrollments, key)
	return true, nil
}

func (s *mockStore) IsEnrolled(ctx context.Context, userID, classID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.enrollments[userID+"|"+classID]
	return ok, nil
}

func (s *mockStore) ListParticipants(ctx context.Context, classID string) ([]*types.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Participant
	for _, e := range s.enrollments {
		if e.ClassID == classID {
			out = append(out, &types.Participant{User: *s.users[e.UserID], EnrolledAt: e.CreatedAt})
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	classes []*types.ClassSession
}

func (n *recordingNotifier) NotifyStatus(class *types.ClassSession) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.classes = append(n.classes, class)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.classes)
}

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func setupManager(t *testing.T, config Config) (*Manager, *mockStore) {
	t.Helper()
	store := newMockStore()
	store.addUser("mentor-1", types.RoleMentor)
	store.addUser("mentor-2", types.RoleMentor)
	store.addUser("student-1", types.RoleParticipant)
	store.addUser("student-2", types.RoleParticipant)

	m := NewManager(store, config, nil, nil)
	m.now = func() time.Time { return baseTime }
	return m, store
}

func TestManager_CreateClass(t *testing.T) {
	m, store := setupManager(t, DefaultConfig())
	ctx := context.Background()

	req := CreateClassRequest{
		Title:       "  Algebra  ",
		Description: "Linear equations",
		StartTime:   baseTime.Add(time.Hour),
		EndTime:     baseTime.Add(2 * time.Hour),
	}

	class, err := m.CreateClass(ctx, "mentor-1", req)
	if err != nil {
		t.Fatalf("CreateClass failed: %v", err)
	}
	if class.Title != "Algebra" {
		t.Errorf("Expected trimmed title, got %q", class.Title)
	}
	if class.Status != types.StatusScheduled {
		t.Errorf("Expected scheduled, got %s", class.Status)
	}
	if !types.IsValidID(class.ID) {
		t.Errorf("Expected UUID id, got %q", class.ID)
	}
	if class.Mentor == nil || class.Mentor.UserID != "mentor-1" {
		t.Errorf("Expected mentor identity attached, got %+v", class.Mentor)
	}
	if _, err := store.GetClass(ctx, class.ID); err != nil {
		t.Errorf("Class should be persisted: %v", err)
	}
}

func TestManager_CreateClass_Rejections(t *testing.T) {
	m, _ := setupManager(t, DefaultConfig())
	ctx := context.Background()
	valid := CreateClassRequest{
		Title:       "Algebra",
		Description: "Linear equations",
		StartTime:   baseTime.Add(time.Hour),
		EndTime:     baseTime.Add(2 * time.Hour),
	}

	tests := []struct {
		name    string
		actor   string
		mutate  func(r *CreateClassRequest)
		wantErr error
	}{
		{"participant", "student-1", func(r *CreateClassRequest) {}, types.ErrMentorOnly},
		{"unknown user", "ghost", func(r *CreateClassRequest) {}, types.ErrUserNotFound},
		{"blank title", "mentor-1", func(r *CreateClassRequest) { r.Title = "   " }, types.ErrInvalidTitle},
		{"blank description", "mentor-1", func(r *CreateClassRequest) { r.Description = "" }, types.ErrEmptyDescription},
		{"end before start", "mentor-1", func(r *CreateClassRequest) { r.EndTime = r.StartTime.Add(-time.Minute) }, types.ErrInvalidTimeRange},
		{"missing start", "mentor-1", func(r *CreateClassRequest) { r.StartTime = time.Time{} }, types.ErrMissingTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := m.CreateClass(ctx, tt.actor, req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestManager_Transitions(t *testing.T) {
	tests := []struct {
		name         string
		status       types.ClassStatus
		actor        string
		op           string
		wantErr      error
		wantStatus   types.ClassStatus
		wantRedirect string
	}{
		{"start scheduled", types.StatusScheduled, "mentor-1", "start", nil, types.StatusInProgress, "/class-session/c1"},
		{"end in progress", types.StatusInProgress, "mentor-1", "end", nil, types.StatusCompleted, RedirectMyClasses},
		{"cancel scheduled", types.StatusScheduled, "mentor-1", "cancel", nil, types.StatusCancelled, RedirectMyClasses},
		{"start by other mentor", types.StatusScheduled, "mentor-2", "start", types.ErrNotClassOwner, types.StatusScheduled, ""},
		{"start by participant", types.StatusScheduled, "student-1", "start", types.ErrNotClassOwner, types.StatusScheduled, ""},
		{"start in progress", types.StatusInProgress, "mentor-1", "start", types.ErrIllegalTransition, types.StatusInProgress, ""},
		{"start cancelled", types.StatusCancelled, "mentor-1", "start", types.ErrIllegalTransition, types.StatusCancelled, ""},
		{"start completed", types.StatusCompleted, "mentor-1", "start", types.ErrIllegalTransition, types.StatusCompleted, ""},
		{"end scheduled", types.StatusScheduled, "mentor-1", "end", types.ErrIllegalTransition, types.StatusScheduled, ""},
		{"cancel in progress", types.StatusInProgress, "mentor-1", "cancel", types.ErrIllegalTransition, types.StatusInProgress, ""},
		{"cancel completed", types.StatusCompleted, "mentor-1", "cancel", types.ErrIllegalTransition, types.StatusCompleted, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store := setupManager(t, DefaultConfig())
			store.addClass("c1", "mentor-1", tt.status, baseTime.Add(time.Hour))
			ctx := context.Background()

			var outcome *Outcome
			var err error
			switch tt.op {
			case "start":
				outcome, err = m.Start(ctx, "c1", tt.actor)
			case "end":
				outcome, err = m.End(ctx, "c1", tt.actor)
			case "cancel":
				outcome, err = m.Cancel(ctx, "c1", tt.actor)
			}

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				if !errors.Is(err, types.ErrInvalidOperation) {
					t.Errorf("Expected InvalidOperation category, got %v", err)
				}
				if outcome != nil {
					t.Errorf("Expected no outcome on failure, got %+v", outcome)
				}
			} else {
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				if outcome.Redirect != tt.wantRedirect {
					t.Errorf("Expected redirect %q, got %q", tt.wantRedirect, outcome.Redirect)
				}
				if outcome.Class.Status != tt.wantStatus {
					t.Errorf("Expected outcome status %s, got %s", tt.wantStatus, outcome.Class.Status)
				}
			}

			if got := store.status("c1"); got != tt.wantStatus {
				t.Errorf("Expected stored status %s, got %s", tt.wantStatus, got)
			}
		})
	}
}

func TestManager_TransitionUnknownClass(t *testing.T) {
	m, _ := setupManager(t, DefaultConfig())

	_, err := m.Start(context.Background(), "missing", "mentor-1")
	if !errors.Is(err, types.ErrClassNotFound) {
		t.Errorf("Expected ErrClassNotFound, got %v", err)
	}
}

func TestManager_TransitionStoreFailure(t *testing.T) {
	m, store := setupManager(t, DefaultConfig())
	store.addClass("c1", "mentor-1", types.StatusScheduled, baseTime.Add(time.Hour))
	store.transitionErr = errors.New("connection refused")

	if _, err := m.Start(context.Background(), "c1", "mentor-1"); err == nil {
		t.Fatal("Expected store failure to surface")
	}
	if got := store.status("c1"); got != types.StatusScheduled {
		t.Errorf("Status should be untouched, got %s", got)
	}
}

func TestManager_CancelThenStart(t *testing.T) {
	m, store := setupManager(t, DefaultConfig())
	store.addClass("c1", "mentor-1", types.StatusScheduled, baseTime.Add(time.Hour))
	ctx := context.Background()

	if _, err := m.Cancel(ctx, "c1", "mentor-1"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	_, err := m.Start(ctx, "c1", "mentor-1")
	if !errors.Is(err, types.ErrIllegalTransition) {
		t.Errorf("Expected start after cancel to be illegal, got %v", err)
	}
	if got := store.status("c1"); got != types.StatusCancelled {
		t.Errorf("Expected cancelled to stick, got %s", got)
	}
}

func TestManager_ConcurrentStartSingleWinner(t *testing.T) {
	m, store := setupManager(t, DefaultConfig())
	store.addClass("c1", "mentor-1", types.StatusScheduled, baseTime.Add(time.Hour))

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Start(context.Background(), "c1", "mentor-1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one successful start, got %d", wins)
	}
	if store.transitions != 1 {
		t.Errorf("Expected one stored transition, got %d", store.transitions)
	}
}

func TestManager_StartBeforeStartTime(t *testing.T) {
	m, store := setupManager(t, DefaultConfig())
	ctx := context.Background()

	class, err := m.CreateClass(ctx, "mentor-1", CreateClassRequest{
		Title:       "Geometry",
		Description: "Triangles",
		StartTime:   baseTime.Add(time.Hour),
		EndTime:     baseTime.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateClass failed: %v", err)
	}
	if _, err := m.Enroll(ctx, "student-1", class.ID); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	flags := m.Flags(class)
	if flags.CanStart {
		t.Error("CanStart should be false an hour before start_time")
	}
	if !flags.IsUpcoming {
		t.Error("IsUpcoming should be true before start_time")
	}

	outcome, err := m.Start(ctx, class.ID, "mentor-1")
	if err != nil {
		t.Fatalf("Start before start_time should succeed without the window gate: %v", err)
	}
	if outcome.Redirect != SessionPath(class.ID) {
		t.Errorf("Expected redirect into the session, got %q", outcome.Redirect)
	}
	if got := store.status(class.ID); got != types.StatusInProgress {
		t.Errorf("Expected in_progress, got %s", got)
	}
}

func TestManager_StartWindowGate(t *testing.T) {
	config := DefaultConfig()
	config.EnforceStartWindow = true
	config.EarlyStartGrace = 10 * time.Minute

	tests := []struct {
		name    string
		start   time.Time
		wantErr error
	}{
		{"an hour early", baseTime.Add(time.Hour), types.ErrOutsideStartWindow},
		{"within grace", baseTime.Add(5 * time.Minute), nil},
		{"inside window", baseTime.Add(-30 * time.Minute), nil},
		{"after end", baseTime.Add(-2 * time.Hour), types.ErrOutsideStartWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store := setupManager(t, config)
			store.addClass("c1", "mentor-1", types.StatusScheduled, tt.start)

			_, err := m.Start(context.Background(), "c1", "mentor-1")
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestManager_StartWindowGateChecksOwnerFirst(t *testing.T) {
	config := DefaultConfig()
	config.EnforceStartWindow = true
	m, store := setupManager(t, config)
	store.addClass("c1", "mentor-1", types.StatusScheduled, baseTime.Add(time.Hour))

	_, err := m.Start(context.Background(), "c1", "mentor-2")
	if !errors.Is(err, types.ErrNotClassOwner) {
		t.Errorf("Expected ErrNotClassOwner, got %v", err)
	}
}

func TestManager_NotifiesCommittedTransitions(t *testing.T) {
	m, store := setupManager(t, DefaultConfig())
	store.addClass("c1", "mentor-1", types.StatusScheduled, baseTime.Add(time.Hour))
	notifier := &recordingNotifier{}
	m.SetNotifier(notifier)
	ctx := context.Background()

	if _, err := m.Start(ctx, "c1", "mentor-1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	_, _ = m.Cancel(ctx, "c1", "mentor-1")
	if _, err := m.End(ctx, "c1", "mentor-1"); err != nil {
		t.Fatalf("End failed: %v", err)
	}

	if got := notifier.count(); got != 2 {
		t.Fatalf("Expected 2 notifications, got %d", got)
	}
	if notifier.classes[1].Status != types.StatusCompleted {
		t.Errorf("Expected last notification to be completed, got %s", notifier.classes[1].Status)
	}
}

func TestManager_Enroll(t *testing.T) {
	tests := []struct {
		name    string
		status  types.ClassStatus
		user    string
		wantErr error
	}{
		{"participant", types.StatusScheduled, "student-1", nil},
		{"participant in live class", types.StatusInProgress, "student-1", nil},
		{"owning mentor", types.StatusScheduled, "mentor-1", types.ErrSelfEnrollment},
		{"other mentor", types.StatusScheduled, "mentor-2", types.ErrParticipantOnly},
		{"cancelled class", types.StatusCancelled, "student-1", types.ErrClassClosed},
		{"completed class", types.StatusCompleted, "student-1", types.ErrClassClosed},
		{"unknown user", types.StatusScheduled, "ghost", types.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store := setupManager(t, DefaultConfig())
			store.addClass("c1", "mentor-1", tt.status, baseTime.Add(time.Hour))

			enrollment, err := m.Enroll(context.Background(), tt.user, "c1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				if store.enrollmentCount() != 0 {
					t.Error("Rejected enroll must not write a row")
				}
				return
			}
			if err != nil {
				t.Fatalf("Enroll failed: %v", err)
			}
			if enrollment.UserID != tt.user || enrollment.ClassID != "c1" {
				t.Errorf("Unexpected enrollment %+v", enrollment)
			}
		})
	}
}

func TestManager_EnrollUnknownClass(t *testing.T) {
	m, _ := setupManager(t, DefaultConfig())

	_, err := m.Enroll(context.Background(), "student-1", "missing")
	if !errors.Is(err, types.ErrClassNotFound) {
		t.Errorf("Expected ErrClassNotFound, got %v", err)
	}
}

func TestManager_EnrollTwice(t *testing.T) {
	m, store := setupManager(t, DefaultConfig())
	store.addClass("c1", "mentor-1", types.StatusScheduled, baseTime.Add(time.Hour))
	ctx := context.Background()

	if _, err := m.Enroll(ctx, "student-1", "c1"); err != nil {
		t.Fatalf("First enroll failed: %v", err)
	}
	_, err := m.Enroll(ctx, "student-1", "c1")
	if !errors.Is(err, types.ErrAlreadyEnrolled) {
		t.Errorf("Expected ErrAlreadyEnrolled, got %v", err)
	}
	if got := store.enrollmentCount(); got != 1 {
		t.Errorf("Expected exactly one enrollment row, got %d", got)
	}
}

func TestManager_ConcurrentEnrollOneRow(t *testing.T) {
	m, store := setupManager(t, DefaultConfig())
	store.addClass("c1", "mentor-1", types.StatusScheduled, baseTime.Add(time.Hour))

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Enroll(context.Background(), "student-1", "c1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, types.ErrAlreadyEnrolled):
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("Expected one successful enroll, got %d", ok)
	}
	if got := store.enrollmentCount(); got != 1 {
		t.Errorf("Expected one row, got %d", got)
	}
}

func TestManager_Unenroll(t *testing.T) {
	m, store := setupManager(t, DefaultConfig())
	store.addClass("c1", "mentor-1", types.StatusScheduled, baseTime.Add(time.Hour))
	ctx := context.Background()

	if err := m.Unenroll(ctx, "student-1", "c1"); !errors.Is(err, types.ErrNotEnrolled) {
		t.Errorf("Expected ErrNotEnrolled, got %v", err)
	}
	if err := m.Unenroll(ctx, "mentor-1", "c1"); !errors.Is(err, types.ErrSelfEnrollment) {
		t.Errorf("Expected ErrSelfEnrollment for owner, got %v", err)
	}

	if _, err := m.Enroll(ctx, "student-1", "c1"); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if err := m.Unenroll(ctx, "student-1", "c1"); err != nil {
		t.Fatalf("Unenroll failed: %v", err)
	}
	if got := store.enrollmentCount(); got != 0 {
		t.Errorf("Expected no rows after unenroll, got %d", got)
	}
}

func TestManager_CanAccess(t *testing.T) {
	m, store := setupManager(t, DefaultConfig())
	store.addClass("c1", "mentor-1", types.StatusScheduled, baseTime.Add(time.Hour))
	ctx := context.Background()
	if _, err := m.Enroll(ctx, "student-1", "c1"); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	tests := []struct {
		name    string
		user    string
		class   string
		wantErr error
	}{
		{"owner", "mentor-1", "c1", nil},
		{"enrolled", "student-1", "c1", nil},
		{"not enrolled", "student-2", "c1", types.ErrNoAccess},
		{"other mentor", "mentor-2", "c1", types.ErrNoAccess},
		{"missing class", "mentor-1", "nope", types.ErrClassNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, err := m.CanAccess(ctx, tt.class, tt.user)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil || class.ID != tt.class {
				t.Errorf("Expected access to %s, got %v, %v", tt.class, class, err)
			}
		})
	}
}

func TestFlagsAt(t *testing.T) {
	class := &types.ClassSession{
		StartTime: baseTime,
		EndTime:   baseTime.Add(time.Hour),
	}

	tests := []struct {
		name   string
		status types.ClassStatus
		now    time.Time
		want   Flags
	}{
		{"before start", types.StatusScheduled, baseTime.Add(-time.Minute), Flags{IsUpcoming: true}},
		{"at start", types.StatusScheduled, baseTime, Flags{CanStart: true, CanJoin: true}},
		{"at end", types.StatusScheduled, baseTime.Add(time.Hour), Flags{CanStart: true, CanJoin: true}},
		{"after end", types.StatusScheduled, baseTime.Add(2 * time.Hour), Flags{}},
		{"live before start", types.StatusInProgress, baseTime.Add(-time.Hour), Flags{CanJoin: true}},
		{"cancelled in window", types.StatusCancelled, baseTime.Add(time.Minute), Flags{}},
		{"completed", types.StatusCompleted, baseTime.Add(time.Minute), Flags{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *class
			c.Status = tt.status
			if got := FlagsAt(&c, tt.now); got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}
