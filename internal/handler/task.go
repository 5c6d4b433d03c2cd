package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mvaldes/chorebank/internal/model"
	"github.com/mvaldes/chorebank/internal/proof"
	"github.com/mvaldes/chorebank/internal/push"
	"github.com/mvaldes/chorebank/internal/recurrence"
	"github.com/mvaldes/chorebank/internal/store"
	"github.com/mvaldes/chorebank/internal/task"
	"github.com/mvaldes/chorebank/internal/websocket"
)

type TaskHandler struct {
	taskStore  *store.TaskStore
	childStore *store.ChildStore
	hub        *websocket.Hub
	notifier   *push.Notifier
	logger     *slog.Logger
}

func NewTaskHandler(ts *store.TaskStore, cs *store.ChildStore, hub *websocket.Hub, notifier *push.Notifier, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{taskStore: ts, childStore: cs, hub: hub, notifier: notifier, logger: logger}
}

func (h *TaskHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type rewardRequest struct {
	Money string   `json:"money"`
	Items []string `json:"items"`
}

type taskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	AssignedTo  string `json:"assigned_to"`
	Kind        string `json:"kind"`

	Weekdays []int  `json:"weekdays"`
	TaskDate string `json:"task_date"`
	TaskTime string `json:"task_time"`
	Urgent   bool   `json:"urgent"`

	Reward             rewardRequest `json:"reward"`
	StreakEnabled      bool          `json:"streak_enabled"`
	StreakDays         int           `json:"streak_days"`
	StreakBonus        string        `json:"streak_bonus"`
	StreakCustomReward string        `json:"streak_custom_reward"`
}

// buildTask turns a creation request into a model.Task, validating as
// it goes.
func (h *TaskHandler) buildTask(req taskRequest) (model.Task, error) {
	var t model.Task

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return t, task.Invalid("title", "is required")
	}

	kind := model.TaskKind(req.Kind)
	if kind == "" {
		kind = model.KindUnique
	}
	if kind != model.KindUnique && kind != model.KindRepetitive {
		return t, task.Invalid("kind", "must be unique or repetitive")
	}

	t = model.Task{
		Title:              req.Title,
		Description:        strings.TrimSpace(req.Description),
		Icon:               req.Icon,
		AssignedTo:         req.AssignedTo,
		Kind:               kind,
		TaskDate:           strings.TrimSpace(req.TaskDate),
		TaskTime:           strings.TrimSpace(req.TaskTime),
		Urgent:             req.Urgent,
		StreakEnabled:      req.StreakEnabled,
		StreakDays:         req.StreakDays,
		StreakCustomReward: strings.TrimSpace(req.StreakCustomReward),
	}

	if kind == model.KindRepetitive {
		rule, err := recurrence.FromWeekdays(req.Weekdays)
		if err != nil {
			return t, task.Invalid("weekdays", err.Error())
		}
		t.RecurrenceRule = rule.String()
	}

	if req.Reward.Money != "" {
		money, err := decimal.NewFromString(req.Reward.Money)
		if err != nil || money.IsNegative() {
			return t, task.Invalid("reward.money", "must be a non-negative amount")
		}
		if money.IsPositive() {
			t.Reward.Money = &money
		}
	}
	for _, item := range req.Reward.Items {
		item = strings.TrimSpace(item)
		if item != "" {
			t.Reward.Items = append(t.Reward.Items, item)
		}
	}

	if req.StreakEnabled && req.StreakBonus != "" {
		bonus, err := decimal.NewFromString(req.StreakBonus)
		if err != nil || bonus.IsNegative() {
			return t, task.Invalid("streak_bonus", "must be a non-negative amount")
		}
		t.StreakBonus = &bonus
	}

	return t, nil
}

// Create handles POST /api/tasks. An assigned_to of "all" fans the
// task out to every child as independent copies with their own ids.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	t, err := h.buildTask(req)
	if err != nil {
		writeError(w, err)
		return
	}

	if req.AssignedTo == "all" {
		children, err := h.childStore.List()
		if err != nil {
			h.logger.Error("list children for fan-out", "error", err)
			writeError(w, err)
			return
		}
		if len(children) == 0 {
			writeError(w, task.Invalid("assigned_to", "no children to assign to"))
			return
		}
		ids := make([]string, len(children))
		for i, c := range children {
			ids[i] = c.ID
		}

		created, err := h.taskStore.CreateForChildren(t, ids)
		if err != nil {
			h.logger.Error("fan out task", "error", err)
			writeError(w, err)
			return
		}
		for _, ct := range created {
			h.broadcast(websocket.NewMessage("task", "created", ct.ID, nil))
		}
		writeJSON(w, http.StatusCreated, created)
		return
	}

	child, err := h.childStore.GetByID(req.AssignedTo)
	if err != nil {
		h.logger.Error("check assignee", "error", err)
		writeError(w, err)
		return
	}
	if child == nil {
		writeError(w, task.Invalid("assigned_to", "child not found"))
		return
	}

	created, err := h.taskStore.Create(t)
	if err != nil {
		h.logger.Error("create task", "error", err)
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("task", "created", created.ID, nil))
	writeJSON(w, http.StatusCreated, created)
}

// List handles GET /api/tasks with optional child, status, and date
// filters. The date filter keeps tasks that occur on that day, which
// for repetitive tasks means evaluating the recurrence rule.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		tasks []model.Task
		err   error
	)

	switch {
	case r.URL.Query().Get("child") != "":
		tasks, err = h.taskStore.ListByChild(r.URL.Query().Get("child"))
	case r.URL.Query().Get("status") != "":
		status := model.TaskStatus(r.URL.Query().Get("status"))
		if !task.ValidStatus(status) {
			writeError(w, task.Invalid("status", "unknown status"))
			return
		}
		tasks, err = h.taskStore.ListByStatus(status)
	default:
		tasks, err = h.taskStore.List()
	}
	if err != nil {
		h.logger.Error("list tasks", "error", err)
		writeError(w, err)
		return
	}

	if dateStr := r.URL.Query().Get("date"); dateStr != "" {
		date, perr := time.Parse("2006-01-02", dateStr)
		if perr != nil {
			writeError(w, task.Invalid("date", "must be YYYY-MM-DD"))
			return
		}
		filtered := tasks[:0]
		for _, t := range tasks {
			if task.OccursOn(t, date) {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}

	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.taskStore.GetByID(r.PathValue("id"))
	if err != nil {
		h.logger.Error("get task", "error", err)
		writeError(w, err)
		return
	}
	if t == nil {
		writeError(w, task.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type taskUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
	Status      *string `json:"status"`

	Weekdays *[]int  `json:"weekdays"`
	TaskDate *string `json:"task_date"`
	TaskTime *string `json:"task_time"`
	Urgent   *bool   `json:"urgent"`

	Reward *rewardRequest `json:"reward"`
}

// Update handles PATCH /api/tasks/{id}. Only sent fields change.
// Status may only move rejected -> pending here; every other
// transition has a dedicated endpoint.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, err := h.taskStore.GetByID(r.PathValue("id"))
	if err != nil {
		h.logger.Error("get task", "error", err)
		writeError(w, err)
		return
	}
	if existing == nil {
		writeError(w, task.ErrNotFound)
		return
	}

	var req taskUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	t := *existing
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			writeError(w, task.Invalid("title", "is required"))
			return
		}
		t.Title = title
	}
	if req.Description != nil {
		t.Description = strings.TrimSpace(*req.Description)
	}
	if req.Icon != nil {
		t.Icon = *req.Icon
	}
	if req.Status != nil {
		status := model.TaskStatus(*req.Status)
		if !task.ValidStatus(status) {
			writeError(w, task.Invalid("status", "unknown status"))
			return
		}
		t.Status = status
	}
	if req.Weekdays != nil {
		rule, err := recurrence.FromWeekdays(*req.Weekdays)
		if err != nil {
			writeError(w, task.Invalid("weekdays", err.Error()))
			return
		}
		t.RecurrenceRule = rule.String()
	}
	if req.TaskDate != nil {
		t.TaskDate = strings.TrimSpace(*req.TaskDate)
	}
	if req.TaskTime != nil {
		t.TaskTime = strings.TrimSpace(*req.TaskTime)
	}
	if req.Urgent != nil {
		t.Urgent = *req.Urgent
	}
	if req.Reward != nil {
		t.Reward = model.RewardSet{}
		if req.Reward.Money != "" {
			money, err := decimal.NewFromString(req.Reward.Money)
			if err != nil || money.IsNegative() {
				writeError(w, task.Invalid("reward.money", "must be a non-negative amount"))
				return
			}
			if money.IsPositive() {
				t.Reward.Money = &money
			}
		}
		for _, item := range req.Reward.Items {
			if item = strings.TrimSpace(item); item != "" {
				t.Reward.Items = append(t.Reward.Items, item)
			}
		}
	}

	updated, err := h.taskStore.Update(t)
	if err != nil {
		h.logger.Error("update task", "error", err)
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("task", "updated", updated.ID, nil))
	writeJSON(w, http.StatusOK, updated)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.taskStore.Delete(id); err != nil {
		if !errors.Is(err, task.ErrNotFound) {
			h.logger.Error("delete task", "error", err)
		}
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("task", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

type completeRequest struct {
	Proof string `json:"proof"`
	Photo string `json:"photo"` // base64
}

// Complete handles POST /api/tasks/{id}/complete: the child marks the
// task done and it moves to waiting_approval. A photo, if sent, is
// checked against its EXIF capture time; a stale or unreadable
// timestamp flags the task for the parent but never blocks submission.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	var (
		photo        []byte
		photoAt      *time.Time
		fraudWarning bool
	)
	if req.Photo != "" {
		var err error
		photo, err = base64.StdEncoding.DecodeString(req.Photo)
		if err != nil {
			writeError(w, task.Invalid("photo", "must be base64"))
			return
		}

		result := proof.Validate(photo, proof.DefaultMaxAge, time.Now())
		if result.Unverifiable() {
			h.logger.Warn("proof photo has no usable capture time", "task", id, "error", result.Err)
		} else {
			photoAt = result.PhotoTakenAt
			if !result.Valid {
				fraudWarning = true
				h.logger.Warn("proof photo outside freshness window",
					"task", id, "taken_at", *result.PhotoTakenAt, "minutes", *result.MinutesDiff)
			}
		}
	}

	t, err := h.taskStore.Complete(id, strings.TrimSpace(req.Proof), photo, photoAt, fraudWarning)
	if err != nil {
		if !errors.Is(err, task.ErrNotFound) && !errors.Is(err, task.ErrInvalidTransition) {
			h.logger.Error("complete task", "error", err)
		}
		writeError(w, err)
		return
	}

	h.broadcast(websocket.NewMessage("task", "updated", t.ID, map[string]any{"status": t.Status}))
	h.notifier.TaskSubmitted(t)
	writeJSON(w, http.StatusOK, t)
}

type validateRequest struct {
	Approved bool `json:"approved"`
}

// Validate handles POST /api/tasks/{id}/validate: the parent approves
// or rejects a submitted task. Approval settles the reward atomically;
// rejection sends the task back. Approval is blocked while the task
// has an unanswered clarification question; rejection is not, so an
// unanswered question can never pin a task open.
func (h *TaskHandler) Validate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	t, err := h.taskStore.GetByID(id)
	if err != nil {
		h.logger.Error("get task", "error", err)
		writeError(w, err)
		return
	}
	if t == nil {
		writeError(w, task.ErrNotFound)
		return
	}

	if !req.Approved {
		rejected, err := h.taskStore.Reject(id)
		if err != nil {
			if !errors.Is(err, task.ErrInvalidTransition) {
				h.logger.Error("reject task", "error", err)
			}
			writeError(w, err)
			return
		}
		h.broadcast(websocket.NewMessage("task", "updated", rejected.ID, map[string]any{"status": rejected.Status}))
		h.notifier.TaskRejected(rejected)
		writeJSON(w, http.StatusOK, rejected)
		return
	}

	// Only approval waits on an unanswered question; a parent who gets
	// no reply can still send the task back.
	if t.NeedsResponse {
		writeError(w, task.ErrClarificationPending)
		return
	}

	settled, child, outcome, err := h.taskStore.Approve(id, time.Now())
	if err != nil {
		if !errors.Is(err, task.ErrNotFound) && !errors.Is(err, task.ErrInvalidTransition) {
			h.logger.Error("approve task", "error", err)
		}
		writeError(w, err)
		return
	}

	if outcome.StreakBelowThreshold {
		h.logger.Warn("streak bonus granted below configured threshold",
			"task", settled.ID, "child", child.ID, "streak", child.Streak, "required", settled.StreakDays)
	}

	h.broadcast(websocket.NewMessage("task", "updated", settled.ID, map[string]any{"status": settled.Status}))
	h.broadcast(websocket.NewMessage("child", "updated", child.ID, nil))
	h.notifier.TaskSettled(settled, child)

	writeJSON(w, http.StatusOK, map[string]any{
		"task":  settled,
		"child": child,
	})
}

type messageRequest struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

// Clarify handles POST /api/tasks/{id}/clarify: the parent asks a
// question instead of approving. The task stays in waiting_approval
// and is blocked from settlement until the child answers.
func (h *TaskHandler) Clarify(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	h.appendMessage(w, r, model.SenderParent, req.Message)
}

// PostMessage handles POST /api/tasks/{id}/messages with an explicit
// sender.
func (h *TaskHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	sender := model.Sender(req.From)
	if sender != model.SenderParent && sender != model.SenderChild {
		writeError(w, task.Invalid("from", "must be parent or child"))
		return
	}
	h.appendMessage(w, r, sender, req.Message)
}

func (h *TaskHandler) appendMessage(w http.ResponseWriter, r *http.Request, sender model.Sender, body string) {
	id := r.PathValue("id")

	body = strings.TrimSpace(body)
	if body == "" {
		writeError(w, task.Invalid("message", "is required"))
		return
	}

	msg, err := h.taskStore.AppendMessage(id, sender, body)
	if err != nil {
		if !errors.Is(err, task.ErrNotFound) {
			h.logger.Error("append task message", "error", err)
		}
		writeError(w, err)
		return
	}

	t, err := h.taskStore.GetByID(id)
	if err != nil || t == nil {
		h.logger.Error("reload task after message", "error", err)
		writeJSON(w, http.StatusCreated, msg)
		return
	}

	h.broadcast(websocket.NewMessage("task", "message", id, map[string]any{"from": sender}))
	h.notifier.Clarification(t, sender)
	writeJSON(w, http.StatusCreated, msg)
}

func (h *TaskHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.taskStore.ListMessages(r.PathValue("id"))
	if err != nil {
		if !errors.Is(err, task.ErrNotFound) {
			h.logger.Error("list task messages", "error", err)
		}
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []model.TaskMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}
