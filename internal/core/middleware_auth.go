package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"vega/internal/types"
)

// authPublicPaths are served without any authentication.
var authPublicPaths = map[string]bool{
	"/health":                   true,
	"/metrics":                  true,
	"/v1/cloudpayments/webhook": true,
	"/v1/subscriptions/plans":   true,
}

// authOptionalPrefixes are served to anonymous callers too. A valid session
// still attaches the Actor so access decisions can use the caller's tier.
var authOptionalPrefixes = []string{
	"/v1/models",
}

func isAuthOptional(path string) bool {
	for _, p := range authOptionalPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// AuthMiddleware resolves the Bearer session token to an Actor and stores it
// in the request context. Protected paths answer 401 with a distinct code:
//   - auth_token_missing: no Authorization header or empty Bearer token.
//   - auth_token_invalid: unknown session token.
//   - auth_session_expired: the session exists but has expired.
//
// On optional paths a missing or unusable token continues anonymously.
// A nil Authenticator disables the middleware.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil || authPublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		optional := isAuthOptional(r.URL.Path)

		token := extractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			if optional {
				next.ServeHTTP(w, r)
				return
			}
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Bearer token is required")
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err == nil && actor == nil {
			err = types.NewAppError(types.ErrCodeAuthTokenInvalid, "session not found", nil)
		}
		if err != nil {
			if optional {
				s.Logger.DebugContext(r.Context(), "optional auth ignored unusable token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			s.handleAuthError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), *actor)))
	})
}

// extractBearerToken returns the token of a "Bearer <token>" header value.
// The scheme is matched case-insensitively per RFC 7235.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthSessionExpired:
			s.Logger.WarnContext(r.Context(), "authentication failed: session expired",
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthSessionExpired, "Session has expired")
			return
		case types.ErrCodeAuthTokenInvalid:
			s.Logger.WarnContext(r.Context(), "authentication failed: token invalid",
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}
	}

	s.Logger.ErrorContext(r.Context(), "authentication failed: unexpected error",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	}
	JSON(w, r, http.StatusUnauthorized, resp)
}

// RequireUser rejects requests without a user Actor. It guards routes that
// sit under an optional-auth prefix but need a signed-in caller.
func (s *Server) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := types.GetUserID(r.Context()); !ok {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
