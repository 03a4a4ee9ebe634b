package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/storebotdev/storebot-go/internal/api"
	"github.com/storebotdev/storebot-go/internal/identity"
)

type contextKey string

// SessionContextKey is the context key for the current session.
const SessionContextKey contextKey = "session"

// loggingMiddleware logs request information using slog.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"client_ip", s.trustedProxies.GetClientIPString(r),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware enforces session authentication.
// Health and login bypass auth; everything else needs a valid bearer token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAuthRequired(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := api.ExtractToken(r)
		if token == "" {
			api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
			return
		}

		session, err := s.deps.SessionRepo.Get(r.Context(), token)
		if err != nil {
			if errors.Is(err, identity.ErrSessionExpired) {
				api.WriteUnauthorized(w, api.ReasonSessionExpired, "session has expired")
				return
			}
			api.WriteUnauthorized(w, api.ReasonUnauthenticated, "session not found or expired")
			return
		}

		ctx := context.WithValue(r.Context(), SessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loginRateLimitMiddleware throttles login attempts per client IP. A broken
// limiter backend fails open; a throttled client gets 429 with Retry-After.
func (s *Server) loginRateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.LoginLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := s.trustedProxies.GetClientIPString(r)
		result, err := s.deps.LoginLimiter.Allow(r.Context(), key)
		if err != nil {
			s.logger.Warn("rate limiter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(s.deps.LoginLimiter.Limit(), 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		if !result.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(result.ResetAt).Seconds())+1))
			s.logger.Warn("login throttled", "client_ip", key)
			api.WriteError(w, http.StatusTooManyRequests, api.ReasonRateLimited, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// GetSessionFromContext returns the session from request context.
func GetSessionFromContext(ctx context.Context) *identity.Session {
	session, _ := ctx.Value(SessionContextKey).(*identity.Session)
	return session
}
