package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"classhub/pkg/types"
)

// historyRow is a message joined with its author's profile
type historyRow struct {
	types.Message
	AuthorFirstName sql.NullString `db:"author_first_name"`
	AuthorLastName  sql.NullString `db:"author_last_name"`
	AuthorRole      sql.NullString `db:"author_role"`
	AuthorAvatarURL sql.NullString `db:"author_avatar_url"`
}

// StoreMessage persists a message
func (m *Manager) StoreMessage(ctx context.Context, message *types.Message) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sqlx.DB) error {
		_, err := db.ExecContext(ctx, db.Rebind(`
			INSERT INTO messages (id, class_id, user_id, content, created_at)
			VALUES (?, ?, ?, ?, ?)`),
			message.ID, message.ClassID, message.UserID, message.Content, message.CreatedAt.UTC(),
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return types.ErrClassNotFound
			}
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

// GetClassHistory returns the class's messages with authors, oldest first
// FUNCTIONAL DISCOVERY: Rows whose profile is missing keep a placeholder author
// instead of disappearing from history
func (m *Manager) GetClassHistory(ctx context.Context, classID string) ([]*types.ChatMessage, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var rows []historyRow
	err := m.db.SelectContext(ctx, &rows, m.db.Rebind(`
		SELECT m.id, m.class_id, m.user_id, m.content, m.created_at,
			p.first_name AS author_first_name, p.last_name AS author_last_name,
			p.role AS author_role, p.avatar_url AS author_avatar_url
		FROM messages m
		LEFT JOIN profiles p ON p.id = m.user_id
		WHERE m.class_id = ?
		ORDER BY m.created_at ASC, m.id ASC`), classID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query class history: %w", types.ErrFetch, err)
	}

	messages := make([]*types.ChatMessage, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		author := types.PlaceholderAuthor(row.UserID)
		if row.AuthorFirstName.Valid {
			author = types.Author{
				UserID:    row.UserID,
				FirstName: row.AuthorFirstName.String,
				LastName:  row.AuthorLastName.String,
				Role:      types.Role(row.AuthorRole.String),
			}
			if row.AuthorAvatarURL.Valid {
				avatar := row.AuthorAvatarURL.String
				author.AvatarURL = &avatar
			}
		}
		messages = append(messages, &types.ChatMessage{Message: row.Message, Author: author})
	}
	return messages, nil
}
