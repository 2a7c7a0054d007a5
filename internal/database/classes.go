package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"classhub/pkg/types"
)

const classColumns = `c.id, c.title, c.description, c.mentor_id, c.start_time, c.end_time, c.status, c.created_at`

const mentorColumns = `p.first_name AS mentor_first_name, p.last_name AS mentor_last_name,
	p.role AS mentor_role, p.avatar_url AS mentor_avatar_url`

// classRow is a class joined with the owning mentor's profile
// ARCHITECTURAL DISCOVERY: Join results are normalized here into one shape
// (ClassSession with Mentor set) so callers never branch on row layout
type classRow struct {
	types.ClassSession
	MentorFirstName sql.NullString `db:"mentor_first_name"`
	MentorLastName  sql.NullString `db:"mentor_last_name"`
	MentorRole      sql.NullString `db:"mentor_role"`
	MentorAvatarURL sql.NullString `db:"mentor_avatar_url"`
}

func (r *classRow) toClass() *types.ClassSession {
	class := r.ClassSession
	if r.MentorFirstName.Valid {
		mentor := types.Author{
			UserID:    class.MentorID,
			FirstName: r.MentorFirstName.String,
			LastName:  r.MentorLastName.String,
			Role:      types.Role(r.MentorRole.String),
		}
		if r.MentorAvatarURL.Valid {
			avatar := r.MentorAvatarURL.String
			mentor.AvatarURL = &avatar
		}
		class.Mentor = &mentor
	}
	return &class
}

type enrolledRow struct {
	classRow
	EnrollmentID string    `db:"enrollment_id"`
	UserID       string    `db:"enrollment_user_id"`
	EnrolledAt   time.Time `db:"enrolled_at"`
}

// CreateClass inserts a new class
func (m *Manager) CreateClass(ctx context.Context, class *types.ClassSession) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sqlx.DB) error {
		_, err := db.ExecContext(ctx, db.Rebind(`
			INSERT INTO classes (id, title, description, mentor_id, start_time, end_time, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			class.ID,
			class.Title,
			class.Description,
			class.MentorID,
			class.StartTime.UTC(),
			class.EndTime.UTC(),
			class.Status,
			class.CreatedAt.UTC(),
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return types.ErrUserNotFound
			}
			return fmt.Errorf("failed to insert class: %w", err)
		}
		return nil
	})
}

// GetClass retrieves a class with its mentor
func (m *Manager) GetClass(ctx context.Context, classID string) (*types.ClassSession, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var row classRow
	err := m.db.GetContext(ctx, &row, m.db.Rebind(`
		SELECT `+classColumns+`, `+mentorColumns+`
		FROM classes c
		LEFT JOIN profiles p ON p.id = c.mentor_id
		WHERE c.id = ?`), classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrClassNotFound
		}
		return nil, fmt.Errorf("%w: failed to query class: %w", types.ErrFetch, err)
	}
	return row.toClass(), nil
}

// TransitionClass performs the conditional status update
func (m *Manager) TransitionClass(ctx context.Context, classID, mentorID string, from, to types.ClassStatus) (bool, error) {
	var changed bool
	err := m.executeWrite(ctx, func(ctx context.Context, db *sqlx.DB) error {
		res, err := db.ExecContext(ctx, db.Rebind(`
			UPDATE classes SET status = ?
			WHERE id = ? AND mentor_id = ? AND status = ?`),
			to, classID, mentorID, from,
		)
		if err != nil {
			return fmt.Errorf("failed to update class status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		changed = n == 1
		return nil
	})
	return changed, err
}

// ListMentorClasses returns every class owned by mentorID
func (m *Manager) ListMentorClasses(ctx context.Context, mentorID string) ([]*types.ClassSession, error) {
	return m.selectClasses(ctx, `
		SELECT `+classColumns+`, `+mentorColumns+`
		FROM classes c
		JOIN profiles p ON p.id = c.mentor_id
		WHERE c.mentor_id = ?
		ORDER BY c.start_time ASC, c.id ASC`, mentorID)
}

// ListUpcomingClasses returns scheduled classes that start after the given instant
func (m *Manager) ListUpcomingClasses(ctx context.Context, after time.Time) ([]*types.ClassSession, error) {
	return m.selectClasses(ctx, `
		SELECT `+classColumns+`, `+mentorColumns+`
		FROM classes c
		JOIN profiles p ON p.id = c.mentor_id
		WHERE c.status = ? AND c.start_time > ?
		ORDER BY c.start_time ASC, c.id ASC`, types.StatusScheduled, after.UTC())
}

func (m *Manager) selectClasses(ctx context.Context, query string, args ...interface{}) ([]*types.ClassSession, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var rows []classRow
	if err := m.db.SelectContext(ctx, &rows, m.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("%w: failed to query classes: %w", types.ErrFetch, err)
	}

	classes := make([]*types.ClassSession, 0, len(rows))
	for i := range rows {
		classes = append(classes, rows[i].toClass())
	}
	return classes, nil
}

// ListEnrolledClasses returns the user's enrollments, most recent first
func (m *Manager) ListEnrolledClasses(ctx context.Context, userID string) ([]*types.EnrolledClass, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var rows []enrolledRow
	err := m.db.SelectContext(ctx, &rows, m.db.Rebind(`
		SELECT e.id AS enrollment_id, e.user_id AS enrollment_user_id, e.created_at AS enrolled_at,
			`+classColumns+`, `+mentorColumns+`
		FROM enrollments e
		JOIN classes c ON c.id = e.class_id
		JOIN profiles p ON p.id = c.mentor_id
		WHERE e.user_id = ?
		ORDER BY e.created_at DESC, e.id ASC`), userID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query enrolled classes: %w", types.ErrFetch, err)
	}

	result := make([]*types.EnrolledClass, 0, len(rows))
	for i := range rows {
		class := rows[i].toClass()
		result = append(result, &types.EnrolledClass{
			Enrollment: types.Enrollment{
				ID:        rows[i].EnrollmentID,
				UserID:    rows[i].UserID,
				ClassID:   class.ID,
				CreatedAt: rows[i].EnrolledAt,
			},
			Class: *class,
		})
	}
	return result, nil
}
