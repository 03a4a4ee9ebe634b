package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/storebotdev/storebot-go/internal/access"
	"github.com/storebotdev/storebot-go/internal/store"
)

// CodesHandler exposes access code issuance, listing and redemption.
type CodesHandler struct {
	issuer    *access.Issuer
	gate      *access.Gate
	operators OperatorSet
}

// NewCodesHandler creates a new access code handler.
func NewCodesHandler(issuer *access.Issuer, gate *access.Gate, operators OperatorSet) *CodesHandler {
	return &CodesHandler{
		issuer:    issuer,
		gate:      gate,
		operators: operators,
	}
}

// CreateCodeRequest is the request body for issuing a new access code.
type CreateCodeRequest struct {
	AdminID string `json:"admin_id"`
}

// Create handles POST /api/access-codes.
func (h *CodesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCodeRequest
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

	code, err := h.issuer.Generate(r.Context(), req.AdminID)
	if err != nil {
		WriteInternalError(w, "failed to generate access code")
		return
	}

	WriteJSON(w, http.StatusCreated, code)
}

// List handles GET /api/access-codes. Only non-expired codes are returned.
func (h *CodesHandler) List(w http.ResponseWriter, r *http.Request) {
	codes, err := h.issuer.ListActive(r.Context())
	if err != nil {
		WriteInternalError(w, "failed to list access codes")
		return
	}
	if codes == nil {
		codes = []*store.AccessCode{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"codes": codes, "count": len(codes)})
}

// RedeemRequest is the request body for redeeming an access code.
type RedeemRequest struct {
	Code   string `json:"code"`
	UserID string `json:"user_id"`
}

// Redeem handles POST /api/access-codes/redeem. A valid code authorizes the
// redeeming user; the code itself stays live until it expires.
func (h *CodesHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.Code == "" || req.UserID == "" {
		WriteBadRequest(w, ReasonMissingField, "code and user_id required")
		return
	}

	ctx := r.Context()

	if err := h.issuer.Verify(ctx, req.Code); err != nil {
		switch {
		case errors.Is(err, access.ErrCodeNotFound):
			WriteError(w, http.StatusNotFound, ReasonCodeNotFound, "access code not found")
		case errors.Is(err, access.ErrCodeExpired):
			WriteError(w, http.StatusGone, ReasonCodeExpired, "access code has expired")
		default:
			WriteInternalError(w, "failed to verify access code")
		}
		return
	}

	if err := h.gate.Authorize(ctx, req.UserID); err != nil {
		WriteInternalError(w, "failed to authorize user")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "authorized", "user_id": req.UserID})
}
