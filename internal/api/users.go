package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/storebotdev/storebot-go/internal/access"
	"github.com/storebotdev/storebot-go/internal/users"
)

// User status values reported by the listing endpoint.
const (
	StatusAuthorized = "authorized"
	StatusBanned     = "banned"
	StatusPending    = "pending"
)

// UsersHandler exposes the user registry and ban management.
type UsersHandler struct {
	registry  *users.Registry
	gate      *access.Gate
	operators OperatorSet
	now       func() int64
}

// NewUsersHandler creates a new user handler.
func NewUsersHandler(registry *users.Registry, gate *access.Gate, operators OperatorSet) *UsersHandler {
	return &UsersHandler{
		registry:  registry,
		gate:      gate,
		operators: operators,
		now:       func() int64 { return time.Now().Unix() },
	}
}

// UpsertUserRequest is the request body for recording a user interaction.
type UpsertUserRequest struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Upsert handles PUT /api/users/{id}. The bot frontend calls this on every
// interaction; the stored profile is replaced wholesale.
func (h *UsersHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteBadRequest(w, ReasonMissingField, "user id required")
		return
	}

	var req UpsertUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, ReasonBadRequest, "invalid JSON body")
		return
	}

	profile := users.Profile{
		ID:        id,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	if err := h.registry.RegisterOrUpdate(r.Context(), profile, h.now()); err != nil {
		WriteInternalError(w, "failed to record user")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "recorded", "user_id": id})
}

// UserView is one row of the user listing.
type UserView struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DisplayName string `json:"display_name"`
	LastSeen    int64  `json:"last_seen"`
	Status      string `json:"status"`
}

// UserListResponse is the response for the user listing.
type UserListResponse struct {
	Users  []UserView     `json:"users"`
	Counts map[string]int `json:"counts"`
}

// List handles GET /api/users. Each user carries a status derived from the
// current authorization state, plus per-status counts.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	all, err := h.registry.All(ctx)
	if err != nil {
		WriteInternalError(w, "failed to list users")
		return
	}
	state, err := h.gate.Snapshot(ctx)
	if err != nil {
		WriteInternalError(w, "failed to read authorization state")
		return
	}

	resp := UserListResponse{
		Users: make([]UserView, 0, len(all)),
		Counts: map[string]int{
			StatusAuthorized: 0,
			StatusBanned:     0,
			StatusPending:    0,
		},
	}
	for _, u := range all {
		status := StatusPending
		switch {
		case state.Banned.Contains(u.ID):
			status = StatusBanned
		case state.Authorized.Contains(u.ID):
			status = StatusAuthorized
		}
		resp.Counts[status]++
		resp.Users = append(resp.Users, UserView{
			ID:          u.ID,
			Username:    u.Username,
			FirstName:   u.FirstName,
			LastName:    u.LastName,
			DisplayName: u.DisplayName(),
			LastSeen:    u.LastSeen,
			Status:      status,
		})
	}

	WriteJSON(w, http.StatusOK, resp)
}

// ModerationRequest is the request body for ban and unban.
type ModerationRequest struct {
	AdminID string `json:"admin_id"`
}

func (h *UsersHandler) requireOperator(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteBadRequest(w, ReasonMissingField, "user id required")
		return "", false
	}

	var req ModerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, ReasonBadRequest, "invalid JSON body")
		return "", false
	}
	if req.AdminID == "" {
		WriteBadRequest(w, ReasonMissingField, "admin_id required")
		return "", false
	}
	if !h.operators.Contains(req.AdminID) {
		WriteForbidden(w, ReasonNotOperator, "admin_id is not a configured operator")
		return "", false
	}
	return id, true
}

// Ban handles POST /api/users/{id}/ban.
func (h *UsersHandler) Ban(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireOperator(w, r)
	if !ok {
		return
	}
	if err := h.gate.Ban(r.Context(), id); err != nil {
		WriteInternalError(w, "failed to ban user")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": StatusBanned, "user_id": id})
}

// Unban handles POST /api/users/{id}/unban. The user is not re-authorized.
func (h *UsersHandler) Unban(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireOperator(w, r)
	if !ok {
		return
	}
	if err := h.gate.Unban(r.Context(), id); err != nil {
		WriteInternalError(w, "failed to unban user")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": StatusPending, "user_id": id})
}
