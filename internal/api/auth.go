package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/storebotdev/storebot-go/internal/identity"
)

// AuthHandler handles admin login and logout.
type AuthHandler struct {
	auth     *identity.AdminAuth
	sessions identity.SessionRepo
}

// NewAuthHandler creates a new authentication handler.
func NewAuthHandler(auth *identity.AdminAuth, sessions identity.SessionRepo) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		sessions: sessions,
	}
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the response for a successful login.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		WriteBadRequest(w, ReasonMissingField, "username and password required")
		return
	}

	ctx := r.Context()

	if err := h.auth.Authenticate(ctx, req.Username, req.Password); err != nil {
		WriteUnauthorized(w, ReasonInvalidCredentials, "invalid username or password")
		return
	}

	session, err := h.sessions.Create(ctx, req.Username, identity.SessionTTL)
	if err != nil {
		WriteInternalError(w, "failed to create session")
		return
	}

	WriteJSON(w, http.StatusOK, LoginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := ExtractToken(r)
	if token == "" {
		WriteUnauthorized(w, ReasonUnauthenticated, "no session token provided")
		return
	}

	h.sessions.Delete(r.Context(), token)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// ExtractToken gets the session token from the Authorization header.
func ExtractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
