package session

import (
	"context"
	"sort"
	"strings"

	"classhub/pkg/types"
)

// MentorClasses lists classes owned by mentorID, earliest first
func (m *Manager) MentorClasses(ctx context.Context, mentorID string) ([]*types.ClassSession, error) {
	if err := m.requireRole(ctx, mentorID, types.RoleMentor); err != nil {
		return nil, err
	}
	return m.store.ListMentorClasses(ctx, mentorID)
}

// ExploreClasses lists scheduled classes that have not started.
// query filters case-insensitively on title, description and mentor name.
func (m *Manager) ExploreClasses(ctx context.Context, query string) ([]*types.ClassSession, error) {
	classes, err := m.store.ListUpcomingClasses(ctx, m.now())
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return classes, nil
	}
	matched := make([]*types.ClassSession, 0, len(classes))
	for _, c := range classes {
		if matchesQuery(c, query) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

func matchesQuery(c *types.ClassSession, query string) bool {
	fields := []string{c.Title, c.Description}
	if c.Mentor != nil {
		fields = append(fields, c.Mentor.FirstName+" "+c.Mentor.LastName)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

// EnrolledClasses lists the participant's enrollments, most recent first
func (m *Manager) EnrolledClasses(ctx context.Context, userID string) ([]*types.EnrolledClass, error) {
	if err := m.requireRole(ctx, userID, types.RoleParticipant); err != nil {
		return nil, err
	}
	return m.store.ListEnrolledClasses(ctx, userID)
}

// Dashboard returns the next few classes that start after now,
// owned ones for mentors and enrolled ones for participants
func (m *Manager) Dashboard(ctx context.Context, userID string) ([]*types.ClassSession, error) {
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	classes, err := m.memberClasses(ctx, user)
	if err != nil {
		return nil, err
	}

	now := m.now()
	upcoming := make([]*types.ClassSession, 0, m.config.DashboardLimit)
	for _, c := range classes {
		if c.StartTime.After(now) {
			upcoming = append(upcoming, c)
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].StartTime.Before(upcoming[j].StartTime)
	})
	if len(upcoming) > m.config.DashboardLimit {
		upcoming = upcoming[:m.config.DashboardLimit]
	}
	return upcoming, nil
}

// Threads lists the chats userID may open, in one shape for both roles
// ARCHITECTURAL DISCOVERY: Mentor rows come from classes and participant rows
// from enrollments; both are normalized to Thread here
func (m *Manager) Threads(ctx context.Context, userID string) ([]types.Thread, error) {
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	classes, err := m.memberClasses(ctx, user)
	if err != nil {
		return nil, err
	}

	threads := make([]types.Thread, 0, len(classes))
	for _, c := range classes {
		threads = append(threads, types.Thread{
			ClassID:   c.ID,
			Title:     c.Title,
			Status:    c.Status,
			StartTime: c.StartTime,
		})
	}
	return threads, nil
}

// Participants lists who is enrolled; only the owning mentor may ask
func (m *Manager) Participants(ctx context.Context, mentorID, classID string) ([]*types.Participant, error) {
	class, err := m.store.GetClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if class.MentorID != mentorID {
		return nil, types.ErrNotClassOwner
	}
	return m.store.ListParticipants(ctx, classID)
}

func (m *Manager) memberClasses(ctx context.Context, user *types.User) ([]*types.ClassSession, error) {
	if user.Role == types.RoleMentor {
		return m.store.ListMentorClasses(ctx, user.ID)
	}
	enrolled, err := m.store.ListEnrolledClasses(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	classes := make([]*types.ClassSession, 0, len(enrolled))
	for _, e := range enrolled {
		class := e.Class
		classes = append(classes, &class)
	}
	return classes, nil
}

func (m *Manager) requireRole(ctx context.Context, userID string, role types.Role) error {
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Role != role {
		if role == types.RoleMentor {
			return types.ErrMentorOnly
		}
		return types.ErrParticipantOnly
	}
	return nil
}
