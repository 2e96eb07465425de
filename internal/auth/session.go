// Package auth resolves session tokens issued by the sign-in provider into
// request Actors.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"vega/internal/types"
)

// maxTokenLength rejects obviously bogus bearer values before they reach
// the database.
const maxTokenLength = 512

// SessionRepo is the data access the authenticator needs.
type SessionRepo interface {
	// GetSessionByToken returns the session and the owning user's email.
	// Unknown tokens yield auth_token_invalid.
	GetSessionByToken(ctx context.Context, token string) (*types.Session, string, error)
}

// SessionAuthenticator implements core.Authenticator on top of the session
// table shared with the sign-in provider.
type SessionAuthenticator struct {
	repo   SessionRepo
	clock  types.Clock
	logger *slog.Logger
}

// NewSessionAuthenticator creates an authenticator. Nil clock and logger
// fall back to the real clock and slog.Default.
func NewSessionAuthenticator(repo SessionRepo, clock types.Clock, logger *slog.Logger) *SessionAuthenticator {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionAuthenticator{repo: repo, clock: clock, logger: logger}
}

// ResolveToken looks the token up and checks expiry.
//   - unknown or malformed token: auth_token_invalid
//   - expired session: auth_session_expired
//   - store failure: the repository error unchanged
func (a *SessionAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > maxTokenLength {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid session token", nil)
	}

	session, email, err := a.repo.GetSessionByToken(ctx, token)
	if err != nil {
		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeAuthTokenInvalid {
			a.logger.ErrorContext(ctx, "session lookup failed", "error", err)
		}
		return nil, err
	}

	if !a.clock.Now().Before(session.ExpiresAt) {
		a.logger.DebugContext(ctx, "session expired",
			"session_id", session.ID,
			"user_id", session.UserID,
		)
		return nil, types.NewAppError(types.ErrCodeAuthSessionExpired, "session has expired", nil)
	}

	return &types.Actor{
		ID:        session.UserID,
		Type:      types.ActorTypeUser,
		Email:     email,
		SessionID: session.ID,
	}, nil
}
