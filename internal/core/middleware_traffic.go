package core

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"vega/internal/types"
)

// rateLimitWindow is the fixed window for per-caller request limits.
const rateLimitWindow = time.Minute

// defaultRateLimitMax applies when the config does not set a limit.
const defaultRateLimitMax = 120

// RateLimit enforces a per-caller request budget using RateLimitStore.
// Authenticated callers are keyed by user id and anonymous callers by client
// IP. Public paths (health, metrics, webhook) are exempt so provider
// redeliveries are never throttled.
//
// Every checked response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset. Denials add Retry-After and answer 429. Store errors
// fail open.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.RateLimitStore == nil || authPublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		key := "ip:" + extractClientIP(r)
		if userID, ok := types.GetUserID(r.Context()); ok {
			key = "user:" + userID
		}
		limit := s.rateLimitMax()

		result, err := s.RateLimitStore.IncrementAndCheck(r.Context(), key, limit, rateLimitWindow)
		if err != nil {
			s.Logger.ErrorContext(r.Context(), "rate limit store error",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, limit, result)

		if !result.Allowed {
			s.Logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("key", key),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			retryAfter := int(time.Until(result.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			resp := APIErrorResponse{
				Error: ErrorDetail{
					Code:      string(types.ErrCodeRateLimit),
					Message:   "Rate limit exceeded. Please retry after the reset time.",
					RequestID: types.GetRequestID(r.Context()),
				},
			}
			JSON(w, r, http.StatusTooManyRequests, resp)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMax() int {
	if s.Config != nil && s.Config.Usage.RateLimitPerMinute > 0 {
		return s.Config.Usage.RateLimitPerMinute
	}
	return defaultRateLimitMax
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, result RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
