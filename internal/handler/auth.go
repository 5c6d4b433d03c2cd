package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/mvaldes/chorebank/internal/store"
)

// AuthHandler manages the parent PIN that gates parent mode on shared
// devices. There are no accounts or sessions; the PIN is the only
// credential and verification is stateless.
type AuthHandler struct {
	childStore *store.ChildStore
	logger     *slog.Logger
}

func NewAuthHandler(cs *store.ChildStore, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{childStore: cs, logger: logger}
}

type pinRequest struct {
	PIN        string `json:"pin"`
	CurrentPIN string `json:"current_pin"`
}

// Status handles GET /api/auth/pin.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	parent, err := h.childStore.GetParent()
	if err != nil {
		h.logger.Error("get parent", "error", err)
		writeError(w, err)
		return
	}
	configured := parent != nil && parent.HasPIN
	writeJSON(w, http.StatusOK, map[string]bool{"configured": configured})
}

// Set handles POST /api/auth/pin. Changing an existing PIN requires
// the current one.
func (h *AuthHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if len(req.PIN) != 4 || !isDigits(req.PIN) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "PIN must be exactly 4 digits"})
		return
	}

	parent, err := h.childStore.GetParent()
	if err != nil || parent == nil {
		h.logger.Error("get parent", "error", err)
		writeError(w, err)
		return
	}

	if parent.HasPIN {
		if !h.verifyCurrent(w, parent.ID, req.CurrentPIN) {
			return
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash pin", "error", err)
		writeError(w, err)
		return
	}

	if err := h.childStore.SetPIN(parent.ID, string(hash)); err != nil {
		h.logger.Error("store pin", "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "pin set"})
}

// Verify handles POST /api/auth/pin/verify. The route is rate limited
// upstream; four digits brute-force fast otherwise.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	parent, err := h.childStore.GetParent()
	if err != nil || parent == nil {
		h.logger.Error("get parent", "error", err)
		writeError(w, err)
		return
	}
	if !parent.HasPIN {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no PIN configured"})
		return
	}

	if !h.verifyCurrent(w, parent.ID, req.PIN) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

// Clear handles DELETE /api/auth/pin, requiring the current PIN.
func (h *AuthHandler) Clear(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	parent, err := h.childStore.GetParent()
	if err != nil || parent == nil {
		h.logger.Error("get parent", "error", err)
		writeError(w, err)
		return
	}
	if !parent.HasPIN {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if !h.verifyCurrent(w, parent.ID, req.PIN) {
		return
	}

	if err := h.childStore.ClearPIN(parent.ID); err != nil {
		h.logger.Error("clear pin", "error", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// verifyCurrent checks the given PIN and writes the failure response
// itself. Returns true when the PIN matches.
func (h *AuthHandler) verifyCurrent(w http.ResponseWriter, parentID, pin string) bool {
	hash, err := h.childStore.GetPINHash(parentID)
	if err != nil {
		h.logger.Error("get pin hash", "error", err)
		writeError(w, err)
		return false
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "incorrect PIN"})
		return false
	}
	return true
}
