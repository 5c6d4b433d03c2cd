package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mvaldes/chorebank/internal/model"
	"github.com/mvaldes/chorebank/internal/store"
	"github.com/mvaldes/chorebank/internal/task"
	"github.com/mvaldes/chorebank/internal/websocket"
)

type ChildHandler struct {
	childStore *store.ChildStore
	hub        *websocket.Hub
	logger     *slog.Logger
}

func NewChildHandler(cs *store.ChildStore, hub *websocket.Hub, logger *slog.Logger) *ChildHandler {
	return &ChildHandler{childStore: cs, hub: hub, logger: logger}
}

func (h *ChildHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type childRequest struct {
	Name      string `json:"name"`
	Avatar    string `json:"avatar"`
	IBAN      string `json:"iban"`
	BirthDate string `json:"birth_date"`
}

func validChildName(name string) bool {
	return len(strings.TrimSpace(name)) >= 2
}

func (h *ChildHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req childRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if !validChildName(req.Name) {
		writeError(w, task.Invalid("name", "must be at least 2 characters"))
		return
	}

	child, err := h.childStore.CreateChild(strings.TrimSpace(req.Name), req.Avatar, strings.TrimSpace(req.IBAN), strings.TrimSpace(req.BirthDate))
	if err != nil {
		h.logger.Error("create child", "error", err)
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("child", "created", child.ID, nil))
	writeJSON(w, http.StatusCreated, child)
}

func (h *ChildHandler) List(w http.ResponseWriter, r *http.Request) {
	children, err := h.childStore.List()
	if err != nil {
		h.logger.Error("list children", "error", err)
		writeError(w, err)
		return
	}
	if children == nil {
		children = []model.Child{}
	}
	writeJSON(w, http.StatusOK, children)
}

func (h *ChildHandler) Get(w http.ResponseWriter, r *http.Request) {
	child, err := h.childStore.GetByID(r.PathValue("id"))
	if err != nil {
		h.logger.Error("get child", "error", err)
		writeError(w, err)
		return
	}
	if child == nil {
		writeError(w, task.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, child)
}

type childUpdateRequest struct {
	Name      *string `json:"name"`
	Avatar    *string `json:"avatar"`
	IBAN      *string `json:"iban"`
	BirthDate *string `json:"birth_date"`
	SortOrder *int    `json:"sort_order"`
}

// Update changes profile fields only. Balance, XP, and streak move
// through settlement and the grant/deduct endpoints, never here.
func (h *ChildHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, err := h.childStore.GetByID(r.PathValue("id"))
	if err != nil {
		h.logger.Error("get child", "error", err)
		writeError(w, err)
		return
	}
	if existing == nil {
		writeError(w, task.ErrNotFound)
		return
	}

	var req childUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	c := *existing
	if req.Name != nil {
		if !validChildName(*req.Name) {
			writeError(w, task.Invalid("name", "must be at least 2 characters"))
			return
		}
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.Avatar != nil {
		c.Avatar = *req.Avatar
	}
	if req.IBAN != nil {
		c.IBAN = strings.TrimSpace(*req.IBAN)
	}
	if req.BirthDate != nil {
		c.BirthDate = strings.TrimSpace(*req.BirthDate)
	}
	if req.SortOrder != nil {
		c.SortOrder = *req.SortOrder
	}

	updated, err := h.childStore.Update(c)
	if err != nil {
		h.logger.Error("update child", "error", err)
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("child", "updated", updated.ID, nil))
	writeJSON(w, http.StatusOK, updated)
}

// Delete removes a child and, through the schema's cascades, every
// task assigned to them and their inventory.
func (h *ChildHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.childStore.Delete(id); err != nil {
		if !errors.Is(err, task.ErrNotFound) {
			h.logger.Error("delete child", "error", err)
		}
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("child", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

type amountRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

func parseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, task.Invalid("amount", "must be a decimal number")
	}
	if !amount.IsPositive() {
		return decimal.Zero, task.Invalid("amount", "must be positive")
	}
	return amount, nil
}

// Grant handles POST /api/children/{id}/grant: a manual allowance
// top-up outside any task.
func (h *ChildHandler) Grant(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, h.childStore.AddToBalance)
}

// Deduct handles POST /api/children/{id}/deduct. The balance floors
// at zero; deducting more than the child has empties the account.
func (h *ChildHandler) Deduct(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, h.childStore.DeductBalance)
}

func (h *ChildHandler) adjust(w http.ResponseWriter, r *http.Request, apply func(string, decimal.Decimal) (*model.Child, error)) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	child, err := apply(r.PathValue("id"), amount)
	if err != nil {
		if !errors.Is(err, task.ErrNotFound) {
			h.logger.Error("adjust balance", "error", err)
		}
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("child", "updated", child.ID, nil))
	writeJSON(w, http.StatusOK, child)
}

func (h *ChildHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	items, err := h.childStore.Inventory(r.PathValue("id"))
	if err != nil {
		h.logger.Error("list inventory", "error", err)
		writeError(w, err)
		return
	}
	if items == nil {
		items = []model.InventoryItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// Redeem handles POST /api/children/{id}/inventory/{index}/redeem:
// the item at that position is consumed and returned.
func (h *ChildHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeError(w, task.Invalid("index", "must be a non-negative integer"))
		return
	}

	item, err := h.childStore.RedeemItem(r.PathValue("id"), index)
	if err != nil {
		if !errors.Is(err, task.ErrNotFound) {
			h.logger.Error("redeem item", "error", err)
		}
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("child", "updated", r.PathValue("id"), nil))
	writeJSON(w, http.StatusOK, item)
}
