package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"classhub/pkg/types"
)

// RevokeToken records a signed-out token id until it expires
func (m *Manager) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sqlx.DB) error {
		_, err := db.ExecContext(ctx, db.Rebind(`INSERT INTO revoked_tokens (token_id, expires_at) VALUES (?, ?)`),
			tokenID, expiresAt.UTC())
		if err != nil {
			if isUniqueViolation(err) {
				return nil // already revoked
			}
			return fmt.Errorf("failed to revoke token: %w", err)
		}
		return nil
	})
}

// IsTokenRevoked reports whether tokenID was signed out
func (m *Manager) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var count int
	if err := m.db.GetContext(ctx, &count, m.db.Rebind(`SELECT COUNT(*) FROM revoked_tokens WHERE token_id = ?`), tokenID); err != nil {
		return false, fmt.Errorf("%w: failed to query revoked token: %w", types.ErrFetch, err)
	}
	return count > 0, nil
}

// PurgeRevokedTokens deletes revocations that expired before the given instant
func (m *Manager) PurgeRevokedTokens(ctx context.Context, before time.Time) (int64, error) {
	var purged int64
	err := m.executeWrite(ctx, func(ctx context.Context, db *sqlx.DB) error {
		res, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM revoked_tokens WHERE expires_at < ?`), before.UTC())
		if err != nil {
			return fmt.Errorf("failed to purge revoked tokens: %w", err)
		}
		purged, err = res.RowsAffected()
		return err
	})
	return purged, err
}
