package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"classhub/pkg/types"
)

type participantRow struct {
	types.User
	EnrolledAt time.Time `db:"enrolled_at"`
}

// CreateEnrollment inserts an enrollment row
func (m *Manager) CreateEnrollment(ctx context.Context, enrollment *types.Enrollment) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sqlx.DB) error {
		_, err := db.ExecContext(ctx, db.Rebind(`
			INSERT INTO enrollments (id, user_id, class_id, created_at)
			VALUES (?, ?, ?, ?)`),
			enrollment.ID, enrollment.UserID, enrollment.ClassID, enrollment.CreatedAt.UTC(),
		)
		if err != nil {
			switch {
			case isUniqueViolation(err):
				return types.ErrAlreadyEnrolled
			case isForeignKeyViolation(err):
				return types.ErrClassNotFound
			}
			return fmt.Errorf("failed to insert enrollment: %w", err)
		}
		return nil
	})
}

// DeleteEnrollment removes the (user, class) pair
func (m *Manager) DeleteEnrollment(ctx context.Context, userID, classID string) (bool, error) {
	var removed bool
	err := m.executeWrite(ctx, func(ctx context.Context, db *sqlx.DB) error {
		res, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM enrollments WHERE user_id = ? AND class_id = ?`),
			userID, classID)
		if err != nil {
			return fmt.Errorf("failed to delete enrollment: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		removed = n > 0
		return nil
	})
	return removed, err
}

// IsEnrolled reports whether the pair exists
func (m *Manager) IsEnrolled(ctx context.Context, userID, classID string) (bool, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var count int
	err := m.db.GetContext(ctx, &count, m.db.Rebind(`
		SELECT COUNT(*) FROM enrollments WHERE user_id = ? AND class_id = ?`), userID, classID)
	if err != nil {
		return false, fmt.Errorf("%w: failed to query enrollment: %w", types.ErrFetch, err)
	}
	return count > 0, nil
}

// ListParticipants returns enrolled users in enrollment order
func (m *Manager) ListParticipants(ctx context.Context, classID string) ([]*types.Participant, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var rows []participantRow
	err := m.db.SelectContext(ctx, &rows, m.db.Rebind(`
		SELECT p.id, p.email, p.first_name, p.last_name, p.role, p.avatar_url, p.created_at,
			e.created_at AS enrolled_at
		FROM enrollments e
		JOIN profiles p ON p.id = e.user_id
		WHERE e.class_id = ?
		ORDER BY e.created_at ASC, e.id ASC`), classID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query participants: %w", types.ErrFetch, err)
	}

	participants := make([]*types.Participant, 0, len(rows))
	for i := range rows {
		participants = append(participants, &types.Participant{User: rows[i].User, EnrolledAt: rows[i].EnrolledAt})
	}
	return participants, nil
}
