package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"classhub/pkg/types"
)

const profileColumns = `id, email, first_name, last_name, role, avatar_url, created_at`

// credentialRow is a profile joined with its password hash
type credentialRow struct {
	types.User
	PasswordHash string `db:"password_hash"`
}

// CreateUser inserts the profile and its credentials in one transaction
func (m *Manager) CreateUser(ctx context.Context, user *types.User, passwordHash string) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sqlx.DB) error {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }() // TECHNICAL: Always rollback unless commit succeeds

		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO profiles (`+profileColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			user.ID, user.Email, user.FirstName, user.LastName, user.Role, user.AvatarURL, user.CreatedAt.UTC(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return types.ErrEmailTaken
			}
			return fmt.Errorf("failed to insert profile: %w", err)
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO credentials (user_id, password_hash) VALUES (?, ?)`),
			user.ID, passwordHash)
		if err != nil {
			return fmt.Errorf("failed to insert credentials: %w", err)
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit profile creation: %w", err)
		}
		return nil
	})
}

// GetUser retrieves a profile by id
func (m *Manager) GetUser(ctx context.Context, userID string) (*types.User, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var user types.User
	err := m.db.GetContext(ctx, &user, m.db.Rebind(`SELECT `+profileColumns+` FROM profiles WHERE id = ?`), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: failed to query profile: %w", types.ErrFetch, err)
	}
	return &user, nil
}

// GetCredentials returns the profile registered under email with its password hash
func (m *Manager) GetCredentials(ctx context.Context, email string) (*types.User, string, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var row credentialRow
	err := m.db.GetContext(ctx, &row, m.db.Rebind(`
		SELECT p.id, p.email, p.first_name, p.last_name, p.role, p.avatar_url, p.created_at, c.password_hash
		FROM profiles p
		JOIN credentials c ON c.user_id = p.id
		WHERE p.email = ?`), email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", types.ErrUserNotFound
		}
		return nil, "", fmt.Errorf("%w: failed to query credentials: %w", types.ErrFetch, err)
	}
	return &row.User, row.PasswordHash, nil
}

// GetAuthor resolves the display identity for one user
// FUNCTIONAL DISCOVERY: Narrow projection used for live deliveries, which arrive
// as bare message rows without the history join
func (m *Manager) GetAuthor(ctx context.Context, userID string) (*types.Author, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var author types.Author
	err := m.db.GetContext(ctx, &author, m.db.Rebind(`
		SELECT id AS user_id, first_name, last_name, role, avatar_url
		FROM profiles WHERE id = ?`), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: failed to query author: %w", types.ErrFetch, err)
	}
	return &author, nil
}
