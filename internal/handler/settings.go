package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mvaldes/chorebank/internal/store"
	"github.com/mvaldes/chorebank/internal/websocket"
)

var supportedLanguages = map[string]bool{
	"en": true,
	"de": true,
	"fr": true,
	"es": true,
	"nl": true,
}

type SettingsHandler struct {
	settingsStore *store.SettingsStore
	hub           *websocket.Hub
}

func NewSettingsHandler(ss *store.SettingsStore, hub *websocket.Hub) *SettingsHandler {
	return &SettingsHandler{settingsStore: ss, hub: hub}
}

func (h *SettingsHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsStore.GetAppSettings()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get settings"})
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if err := validateAppSettings(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.settingsStore.SetAll(req); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save settings"})
		return
	}

	h.broadcast(websocket.NewMessage("settings", "updated", "", nil))

	settings, err := h.settingsStore.GetAppSettings()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get settings"})
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func validateAppSettings(settings map[string]string) error {
	allowedKeys := map[string]bool{
		"language":        true,
		"child_mode":      true,
		"dark_mode":       true,
		"filter_child_id": true,
	}

	for key, value := range settings {
		if !allowedKeys[key] {
			return fmt.Errorf("unknown setting: %s", key)
		}

		switch key {
		case "language":
			if !supportedLanguages[value] {
				return fmt.Errorf("unsupported language: %s", value)
			}
		case "child_mode", "dark_mode":
			if value != "true" && value != "false" {
				return fmt.Errorf("%s must be true or false", key)
			}
		}
	}
	return nil
}
