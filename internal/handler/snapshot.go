package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mvaldes/chorebank/internal/model"
	"github.com/mvaldes/chorebank/internal/snapshot"
	"github.com/mvaldes/chorebank/internal/store"
)

// SnapshotHandler exposes the full-state export/restore boundary:
// listing snapshots, exporting on demand, restoring one, and the
// schedule and storage settings behind it.
type SnapshotHandler struct {
	manager       *snapshot.Manager
	snapshotStore *store.SnapshotStore
	settingsStore *store.SettingsStore
	logger        *slog.Logger
}

func NewSnapshotHandler(m *snapshot.Manager, ss *store.SnapshotStore, settings *store.SettingsStore, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{manager: m, snapshotStore: ss, settingsStore: settings, logger: logger}
}

func (h *SnapshotHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.snapshotStore.List()
	if err != nil {
		h.logger.Error("list snapshots", "error", err)
		writeError(w, err)
		return
	}
	if records == nil {
		records = []model.SnapshotRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// Export handles POST /api/snapshots: capture and upload now.
func (h *SnapshotHandler) Export(w http.ResponseWriter, r *http.Request) {
	record, err := h.manager.ExportNow(r.Context())
	if err != nil {
		h.logger.Error("export snapshot", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// Restore handles POST /api/snapshots/{id}/restore. On success the
// process exits and never writes a response; the client should expect
// the connection to drop and reconnect after restart.
func (h *SnapshotHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	if err := h.manager.Restore(r.Context(), id); err != nil {
		h.logger.Error("restore snapshot", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
}

func (h *SnapshotHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsStore.GetSnapshotSettings()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get settings"})
		return
	}
	s3, err := h.settingsStore.GetS3Settings()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get settings"})
		return
	}
	for k, v := range s3 {
		if k == "s3_secret_key" && v != "" {
			v = "********"
		}
		settings[k] = v
	}
	delete(settings, "snapshot_passphrase_salt")
	writeJSON(w, http.StatusOK, settings)
}

func (h *SnapshotHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if err := validateSnapshotSettings(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.settingsStore.SetAll(req); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save settings"})
		return
	}

	s3, err := h.settingsStore.GetS3Settings()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get settings"})
		return
	}
	h.manager.UpdateS3Config(snapshot.S3Config{
		Endpoint:  s3["s3_endpoint"],
		Bucket:    s3["s3_bucket"],
		Region:    s3["s3_region"],
		AccessKey: s3["s3_access_key"],
		SecretKey: s3["s3_secret_key"],
	})

	h.GetSettings(w, r)
}

func validateSnapshotSettings(settings map[string]string) error {
	allowedKeys := map[string]bool{
		"snapshot_enabled":        true,
		"snapshot_schedule_hour":  true,
		"snapshot_retention_days": true,
		"s3_endpoint":             true,
		"s3_bucket":               true,
		"s3_region":               true,
		"s3_access_key":           true,
		"s3_secret_key":           true,
	}

	for key, value := range settings {
		if !allowedKeys[key] {
			return fmt.Errorf("unknown setting: %s", key)
		}

		switch key {
		case "snapshot_enabled":
			if value != "true" && value != "false" {
				return fmt.Errorf("snapshot_enabled must be true or false")
			}
		case "snapshot_schedule_hour":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 || n > 23 {
				return fmt.Errorf("snapshot_schedule_hour must be 0-23")
			}
		case "snapshot_retention_days":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 || n > 365 {
				return fmt.Errorf("snapshot_retention_days must be 1-365")
			}
		}
	}
	return nil
}
