package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"vega/internal/types"
)

// SessionRepository resolves bearer tokens issued by the auth provider.
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a SessionRepository backed by db.
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// GetSessionByToken returns the session and its user's email. An unknown
// token yields auth_token_invalid. Expiry is left to the caller.
func (r *SessionRepository) GetSessionByToken(ctx context.Context, token string) (*types.Session, string, error) {
	var s types.Session
	var email string
	err := r.db.QueryRow(ctx,
		`SELECT s.id, s.token, s.user_id, s.expires_at, u.email
		 FROM session s
		 JOIN "user" u ON u.id = s.user_id
		 WHERE s.token = $1`,
		token,
	).Scan(&s.ID, &s.Token, &s.UserID, &s.ExpiresAt, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", types.NewAppError(types.ErrCodeAuthTokenInvalid, "session not found", nil)
		}
		return nil, "", types.NewAppError(types.ErrCodeInternalDB, "failed to get session", err)
	}
	return &s, email, nil
}
