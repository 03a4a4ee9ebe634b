package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storebotdev/storebot-go/internal/broadcast"
	"github.com/storebotdev/storebot-go/internal/store"
)

// BroadcastsHandler exposes broadcast distribution.
type BroadcastsHandler struct {
	distributor *broadcast.Distributor
	operators   OperatorSet
}

// NewBroadcastsHandler creates a new broadcast handler.
func NewBroadcastsHandler(d *broadcast.Distributor, operators OperatorSet) *BroadcastsHandler {
	return &BroadcastsHandler{
		distributor: d,
		operators:   operators,
	}
}

// CreateBroadcastRequest is the request body for creating a broadcast.
type CreateBroadcastRequest struct {
	AdminID  string                 `json:"admin_id"`
	Content  string                 `json:"content"`
	Entities store.MessageEntities  `json:"entities,omitempty"`
	Media    *store.MediaAttachment `json:"media,omitempty"`
}

// BroadcastResponse pairs a broadcast record with its distribution tally.
// Warning is set when the fan-out finished but the record could not be
// persisted.
type BroadcastResponse struct {
	Broadcast *store.Broadcast `json:"broadcast,omitempty"`
	Tally     broadcast.Tally  `json:"tally"`
	Warning   string           `json:"warning,omitempty"`
}

func (h *BroadcastsHandler) checkOperator(w http.ResponseWriter, adminID string) bool {
	if adminID == "" {
		WriteBadRequest(w, ReasonMissingField, "admin_id required")
		return false
	}
	if !h.operators.Contains(adminID) {
		WriteForbidden(w, ReasonNotOperator, "admin_id is not a configured operator")
		return false
	}
	return true
}

// Create handles POST /api/broadcasts. The message is sent to every
// authorized user except the acting admin before the record is persisted.
func (h *BroadcastsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateBroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, ReasonBadRequest, "invalid JSON body")
		return
	}
	if !h.checkOperator(w, req.AdminID) {
		return
	}
	if req.Content == "" && req.Media == nil {
		WriteBadRequest(w, ReasonMissingField, "content or media required")
		return
	}
	if req.Media != nil && req.Media.Type != store.MediaPhoto && req.Media.Type != store.MediaVideo {
		WriteBadRequest(w, ReasonInvalidField, "media.type must be photo or video")
		return
	}

	msg := broadcast.OutgoingMessage{
		Content:  req.Content,
		Entities: req.Entities,
		Media:    req.Media,
	}
	b, tally, err := h.distributor.Create(r.Context(), req.AdminID, msg)
	if err != nil && !errors.Is(err, broadcast.ErrNotSaved) {
		WriteInternalError(w, "failed to distribute broadcast")
		return
	}

	resp := BroadcastResponse{Broadcast: b, Tally: tally}
	if err != nil {
		// Delivery already happened; surface the persistence problem
		// without discarding the tally.
		resp.Warning = "broadcast delivered but could not be saved"
	}
	WriteJSON(w, http.StatusCreated, resp)
}

// List handles GET /api/broadcasts.
func (h *BroadcastsHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.distributor.List(r.Context())
	if err != nil {
		WriteInternalError(w, "failed to list broadcasts")
		return
	}
	if all == nil {
		all = []*store.Broadcast{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"broadcasts": all, "count": len(all)})
}

// Get handles GET /api/broadcasts/{id}.
func (h *BroadcastsHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.distributor.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, broadcast.ErrNotFound) {
			WriteNotFound(w, "broadcast not found")
			return
		}
		WriteInternalError(w, "failed to load broadcast")
		return
	}
	WriteJSON(w, http.StatusOK, b)
}

// EditBroadcastRequest is the request body for editing a broadcast in place.
type EditBroadcastRequest struct {
	AdminID  string                `json:"admin_id"`
	Content  string                `json:"content"`
	Entities store.MessageEntities `json:"entities,omitempty"`
}

// Edit handles PATCH /api/broadcasts/{id}. Delivered copies are edited in
// place; recipients authorized since creation get a fresh send.
func (h *BroadcastsHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req EditBroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, ReasonBadRequest, "invalid JSON body")
		return
	}
	if !h.checkOperator(w, req.AdminID) {
		return
	}
	if req.Content == "" {
		WriteBadRequest(w, ReasonMissingField, "content required")
		return
	}

	tally, err := h.distributor.Edit(r.Context(), id, req.AdminID, req.Content, req.Entities)
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, BroadcastResponse{Tally: tally})
	case errors.Is(err, broadcast.ErrNotFound):
		WriteNotFound(w, "broadcast not found")
	case errors.Is(err, broadcast.ErrNotSaved):
		WriteJSON(w, http.StatusOK, BroadcastResponse{
			Tally:   tally,
			Warning: "broadcast edited but could not be saved",
		})
	default:
		WriteInternalError(w, "failed to edit broadcast")
	}
}

// ResendRequest is the request body for resending a broadcast.
type ResendRequest struct {
	AdminID string `json:"admin_id"`
}

// Resend handles POST /api/broadcasts/{id}/resend. Every authorized user
// gets a fresh copy regardless of earlier delivery state.
func (h *BroadcastsHandler) Resend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ResendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, ReasonBadRequest, "invalid JSON body")
		return
	}
	if !h.checkOperator(w, req.AdminID) {
		return
	}

	tally, err := h.distributor.Resend(r.Context(), id, req.AdminID)
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, BroadcastResponse{Tally: tally})
	case errors.Is(err, broadcast.ErrNotFound):
		WriteNotFound(w, "broadcast not found")
	case errors.Is(err, broadcast.ErrNotSaved):
		WriteJSON(w, http.StatusOK, BroadcastResponse{
			Tally:   tally,
			Warning: "broadcast resent but could not be saved",
		})
	default:
		WriteInternalError(w, "failed to resend broadcast")
	}
}

// Delete handles DELETE /api/broadcasts/{id}. Deletion is idempotent and
// never retracts already-delivered copies.
func (h *BroadcastsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.distributor.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		WriteInternalError(w, "failed to delete broadcast")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
