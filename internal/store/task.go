package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mvaldes/chorebank/internal/model"
	"github.com/mvaldes/chorebank/internal/settlement"
	"github.com/mvaldes/chorebank/internal/task"
)

// TaskStore owns the task lifecycle. Every transition that touches
// more than one row (approval settlement, fan-out creation, message
// appends) runs in a single transaction, so callers never observe a
// half-applied state.
type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

const taskCols = `id, title, description, icon, assigned_to, created_by, status, kind,
	recurrence_rule, task_date, task_time, urgent, reward_money,
	streak_enabled, streak_days, streak_bonus, streak_custom_reward,
	proof, proof_photo, proof_photo_at, fraud_warning, needs_response,
	completed_at, created_at, updated_at`

type rowScanner interface{ Scan(...any) error }

func scanTask(scanner rowScanner) (*model.Task, error) {
	var t model.Task
	var urgent, streakEnabled, fraud, needsResponse int
	var rewardMoney, streakBonus sql.NullString
	var proofPhotoAt, completedAt sql.NullTime

	err := scanner.Scan(
		&t.ID, &t.Title, &t.Description, &t.Icon, &t.AssignedTo, &t.CreatedBy,
		&t.Status, &t.Kind, &t.RecurrenceRule, &t.TaskDate, &t.TaskTime,
		&urgent, &rewardMoney, &streakEnabled, &t.StreakDays, &streakBonus,
		&t.StreakCustomReward, &t.Proof, &t.ProofPhoto, &proofPhotoAt,
		&fraud, &needsResponse, &completedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Urgent = urgent != 0
	t.StreakEnabled = streakEnabled != 0
	t.FraudWarning = fraud != 0
	t.NeedsResponse = needsResponse != 0

	if rewardMoney.Valid {
		d, err := decimal.NewFromString(rewardMoney.String)
		if err != nil {
			return nil, fmt.Errorf("parse reward money: %w", err)
		}
		t.Reward.Money = &d
	}
	if streakBonus.Valid {
		d, err := decimal.NewFromString(streakBonus.String)
		if err != nil {
			return nil, fmt.Errorf("parse streak bonus: %w", err)
		}
		t.StreakBonus = &d
	}
	if proofPhotoAt.Valid {
		at := proofPhotoAt.Time
		t.ProofPhotoAt = &at
	}
	if completedAt.Valid {
		at := completedAt.Time
		t.CompletedAt = &at
	}
	return &t, nil
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func insertTaskTx(tx *sql.Tx, t model.Task, now time.Time) error {
	_, err := tx.Exec(
		`INSERT INTO tasks (id, title, description, icon, assigned_to, created_by, status, kind,
			recurrence_rule, task_date, task_time, urgent, reward_money,
			streak_enabled, streak_days, streak_bonus, streak_custom_reward,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.Icon, t.AssignedTo, t.CreatedBy, t.Status, t.Kind,
		t.RecurrenceRule, strings.TrimSpace(t.TaskDate), strings.TrimSpace(t.TaskTime),
		boolInt(t.Urgent), nullDecimal(t.Reward.Money),
		boolInt(t.StreakEnabled), t.StreakDays, nullDecimal(t.StreakBonus), t.StreakCustomReward,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	for i, label := range t.Reward.Items {
		if _, err := tx.Exec(
			`INSERT INTO task_reward_items (task_id, position, label) VALUES (?, ?, ?)`,
			t.ID, i, label,
		); err != nil {
			return fmt.Errorf("insert reward item: %w", err)
		}
	}
	return nil
}

// Create inserts a single task in status pending. A fresh id is
// assigned when the caller did not provide one.
func (s *TaskStore) Create(t model.Task) (*model.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Status = model.StatusPending

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertTaskTx(tx, t, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(t.ID)
}

// CreateForChildren fans a task template out to every given child:
// one independently-owned copy per child, each with a fresh id. All
// copies are created in one transaction.
func (s *TaskStore) CreateForChildren(t model.Task, childIDs []string) ([]model.Task, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	ids := make([]string, 0, len(childIDs))
	for _, childID := range childIDs {
		clone := t
		clone.ID = uuid.NewString()
		clone.AssignedTo = childID
		clone.Status = model.StatusPending
		if err := insertTaskTx(tx, clone, now); err != nil {
			return nil, err
		}
		ids = append(ids, clone.ID)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	tasks := make([]model.Task, 0, len(ids))
	for _, id := range ids {
		created, err := s.GetByID(id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *created)
	}
	return tasks, nil
}

func (s *TaskStore) GetByID(id string) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if err := s.loadRewardItems(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TaskStore) loadRewardItems(t *model.Task) error {
	rows, err := s.db.Query(
		`SELECT label FROM task_reward_items WHERE task_id = ? ORDER BY position ASC`,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("load reward items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return fmt.Errorf("scan reward item: %w", err)
		}
		t.Reward.Items = append(t.Reward.Items, label)
	}
	return rows.Err()
}

func (s *TaskStore) list(query string, args ...any) ([]model.Task, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range tasks {
		if err := s.loadRewardItems(&tasks[i]); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

func (s *TaskStore) List() ([]model.Task, error) {
	return s.list(`SELECT ` + taskCols + ` FROM tasks ORDER BY created_at ASC, id ASC`)
}

func (s *TaskStore) ListByChild(childID string) ([]model.Task, error) {
	return s.list(
		`SELECT `+taskCols+` FROM tasks WHERE assigned_to = ? ORDER BY created_at ASC, id ASC`,
		childID,
	)
}

func (s *TaskStore) ListByStatus(status model.TaskStatus) ([]model.Task, error) {
	return s.list(
		`SELECT `+taskCols+` FROM tasks WHERE status = ? ORDER BY created_at ASC, id ASC`,
		status,
	)
}

// Update rewrites the task's editable fields and reward set. Merge
// semantics live with the caller: it reads the task, applies the
// partial edit, and hands back the full record. Edits are permitted
// in any status, since parents may need to correct an already-reviewed
// task, except that a status change itself must be a legal
// transition (in practice only rejected back to pending, the explicit
// re-edit path).
func (s *TaskStore) Update(t model.Task) (*model.Task, error) {
	current, err := s.GetByID(t.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, task.ErrNotFound
	}
	if t.Status != current.Status && !task.CanTransition(current.Status, t.Status) {
		return nil, fmt.Errorf("%s -> %s: %w", current.Status, t.Status, task.ErrInvalidTransition)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE tasks SET title = ?, description = ?, icon = ?, assigned_to = ?, status = ?, kind = ?,
			recurrence_rule = ?, task_date = ?, task_time = ?, urgent = ?, reward_money = ?,
			streak_enabled = ?, streak_days = ?, streak_bonus = ?, streak_custom_reward = ?,
			updated_at = ?
		 WHERE id = ?`,
		t.Title, t.Description, t.Icon, t.AssignedTo, t.Status, t.Kind,
		t.RecurrenceRule, strings.TrimSpace(t.TaskDate), strings.TrimSpace(t.TaskTime),
		boolInt(t.Urgent), nullDecimal(t.Reward.Money),
		boolInt(t.StreakEnabled), t.StreakDays, nullDecimal(t.StreakBonus), t.StreakCustomReward,
		time.Now().UTC(), t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM task_reward_items WHERE task_id = ?`, t.ID); err != nil {
		return nil, fmt.Errorf("clear reward items: %w", err)
	}
	for i, label := range t.Reward.Items {
		if _, err := tx.Exec(
			`INSERT INTO task_reward_items (task_id, position, label) VALUES (?, ?, ?)`,
			t.ID, i, label,
		); err != nil {
			return nil, fmt.Errorf("insert reward item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(t.ID)
}

func (s *TaskStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return task.ErrNotFound
	}
	return nil
}

// Complete moves a pending task to waiting_approval, stamping the
// submission time and storing the proof fields verbatim, including
// the fraud verdict computed before the call.
func (s *TaskStore) Complete(id, proofText string, photo []byte, photoAt *time.Time, fraudWarning bool) (*model.Task, error) {
	current, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, task.ErrNotFound
	}
	if current.Status != model.StatusPending {
		return nil, fmt.Errorf("%s -> %s: %w", current.Status, model.StatusWaitingApproval, task.ErrInvalidTransition)
	}

	var photoAtVal sql.NullTime
	if photoAt != nil {
		photoAtVal = sql.NullTime{Time: *photoAt, Valid: true}
	}

	now := time.Now().UTC()
	result, err := s.db.Exec(
		`UPDATE tasks SET status = ?, proof = ?, proof_photo = ?, proof_photo_at = ?,
			fraud_warning = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		model.StatusWaitingApproval, proofText, photo, photoAtVal,
		boolInt(fraudWarning), now, now, id, model.StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("complete task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, task.ErrInvalidTransition
	}
	return s.GetByID(id)
}

// Approve settles the task's rewards against its assigned child and
// marks the task completed, all in one transaction. The status guard
// in the final UPDATE makes a second approval impossible, so the
// reward math is applied exactly once.
func (s *TaskStore) Approve(id string, now time.Time) (*model.Task, *model.Child, settlement.Outcome, error) {
	var out settlement.Outcome

	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, out, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil, out, fmt.Errorf("task %s: %w", id, task.ErrNotFound)
	}
	if err != nil {
		return nil, nil, out, fmt.Errorf("get task: %w", err)
	}
	if t.Status != model.StatusWaitingApproval {
		return nil, nil, out, fmt.Errorf("%s -> %s: %w", t.Status, model.StatusCompleted, task.ErrInvalidTransition)
	}

	childRow := tx.QueryRow(`SELECT `+childCols+` FROM children WHERE id = ?`, t.AssignedTo)
	c, err := scanChild(childRow)
	if err == sql.ErrNoRows {
		// Settlement without a child would pay nobody. Leave the task
		// untouched and surface the dangling reference.
		return nil, nil, out, fmt.Errorf("assigned child %s: %w", t.AssignedTo, task.ErrNotFound)
	}
	if err != nil {
		return nil, nil, out, fmt.Errorf("get child: %w", err)
	}

	rewardRows, err := tx.Query(
		`SELECT label FROM task_reward_items WHERE task_id = ? ORDER BY position ASC`, id,
	)
	if err != nil {
		return nil, nil, out, fmt.Errorf("load reward items: %w", err)
	}
	for rewardRows.Next() {
		var label string
		if err := rewardRows.Scan(&label); err != nil {
			rewardRows.Close()
			return nil, nil, out, fmt.Errorf("scan reward item: %w", err)
		}
		t.Reward.Items = append(t.Reward.Items, label)
	}
	if err := rewardRows.Err(); err != nil {
		rewardRows.Close()
		return nil, nil, out, err
	}
	rewardRows.Close()

	out = settlement.Settle(*t, *c)

	newBalance := c.Balance.Add(out.BalanceDelta)
	newXP := c.XP + out.XPDelta
	newStreak := settlement.NextStreak(c.Streak, c.LastSettledOn, now)
	settledOn := now.Format("2006-01-02")

	if _, err := tx.Exec(
		`UPDATE children SET balance = ?, xp = ?, streak = ?, last_settled_on = ?, updated_at = ? WHERE id = ?`,
		newBalance.String(), newXP, newStreak, settledOn, now.UTC(), c.ID,
	); err != nil {
		return nil, nil, out, fmt.Errorf("update child: %w", err)
	}

	for _, label := range out.InventoryAdds {
		if _, err := tx.Exec(
			`INSERT INTO inventory_items (child_id, label, earned_at) VALUES (?, ?, ?)`,
			c.ID, label, now.UTC(),
		); err != nil {
			return nil, nil, out, fmt.Errorf("insert inventory item: %w", err)
		}
	}

	result, err := tx.Exec(
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		model.StatusCompleted, now.UTC(), id, model.StatusWaitingApproval,
	)
	if err != nil {
		return nil, nil, out, fmt.Errorf("mark completed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, nil, out, fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return nil, nil, out, task.ErrInvalidTransition
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, out, fmt.Errorf("commit: %w", err)
	}

	settled, err := s.GetByID(id)
	if err != nil {
		return nil, nil, out, err
	}
	childRow2 := s.db.QueryRow(`SELECT `+childCols+` FROM children WHERE id = ?`, c.ID)
	updatedChild, err := scanChild(childRow2)
	if err != nil {
		return nil, nil, out, fmt.Errorf("reload child: %w", err)
	}
	return settled, updatedChild, out, nil
}

// Reject moves a waiting_approval task to rejected. No settlement
// runs; rewards are never partially granted. A second call is an
// invalid transition, not a double mutation.
func (s *TaskStore) Reject(id string) (*model.Task, error) {
	current, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("task %s: %w", id, task.ErrNotFound)
	}
	if current.Status != model.StatusWaitingApproval {
		return nil, fmt.Errorf("%s -> %s: %w", current.Status, model.StatusRejected, task.ErrInvalidTransition)
	}

	result, err := s.db.Exec(
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		model.StatusRejected, time.Now().UTC(), id, model.StatusWaitingApproval,
	)
	if err != nil {
		return nil, fmt.Errorf("reject task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, task.ErrInvalidTransition
	}
	return s.GetByID(id)
}

// AppendMessage adds one message to the task's conversation and
// recomputes the needs_response flag in the same transaction: a
// parent message raises it, a child reply clears it.
func (s *TaskStore) AppendMessage(taskID string, sender model.Sender, body string) (*model.TaskMessage, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(`SELECT 1 FROM tasks WHERE id = ?`, taskID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", taskID, task.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("check task: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	if _, err := tx.Exec(
		`INSERT INTO task_messages (id, task_id, sender, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, taskID, sender, body, now,
	); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE tasks SET needs_response = ?, updated_at = ? WHERE id = ?`,
		boolInt(sender == model.SenderParent), now, taskID,
	); err != nil {
		return nil, fmt.Errorf("update needs_response: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &model.TaskMessage{
		ID:        id,
		TaskID:    taskID,
		Sender:    sender,
		Body:      body,
		CreatedAt: now,
	}, nil
}

// ListMessages returns the conversation in insertion order. The
// stored timestamps are display data; ordering comes from the append
// sequence alone.
func (s *TaskStore) ListMessages(taskID string) ([]model.TaskMessage, error) {
	rows, err := s.db.Query(
		`SELECT id, task_id, sender, body, created_at FROM task_messages WHERE task_id = ? ORDER BY seq ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []model.TaskMessage
	for rows.Next() {
		var m model.TaskMessage
		if err := rows.Scan(&m.ID, &m.TaskID, &m.Sender, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
