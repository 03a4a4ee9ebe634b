package api

import (
	"encoding/json"
	"net/http"

	"github.com/storebotdev/storebot-go/internal/access"
)

// GateHandler exposes the code gate setting.
type GateHandler struct {
	gate      *access.Gate
	operators OperatorSet
}

// NewGateHandler creates a new gate handler.
func NewGateHandler(gate *access.Gate, operators OperatorSet) *GateHandler {
	return &GateHandler{
		gate:      gate,
		operators: operators,
	}
}

// GateResponse reports the code gate setting.
type GateResponse struct {
	CodeGateEnabled bool `json:"code_gate_enabled"`
}

// Status handles GET /api/gate.
func (h *GateHandler) Status(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.gate.CodeGateEnabled(r.Context())
	if err != nil {
		WriteInternalError(w, "failed to read gate state")
		return
	}
	WriteJSON(w, http.StatusOK, GateResponse{CodeGateEnabled: enabled})
}

// ToggleRequest is the request body for flipping the gate.
type ToggleRequest struct {
	AdminID string `json:"admin_id"`
}

// Toggle handles POST /api/gate/toggle.
func (h *GateHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.AdminID == "" {
		WriteBadRequest(w, ReasonMissingField, "admin_id required")
		return
	}
	if !h.operators.Contains(req.AdminID) {
		WriteForbidden(w, ReasonNotOperator, "admin_id is not a configured operator")
		return
	}

	enabled, err := h.gate.ToggleCodeGate(r.Context())
	if err != nil {
		WriteInternalError(w, "failed to toggle gate")
		return
	}
	WriteJSON(w, http.StatusOK, GateResponse{CodeGateEnabled: enabled})
}
