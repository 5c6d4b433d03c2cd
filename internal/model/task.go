package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TaskStatus string

const (
	StatusPending         TaskStatus = "pending"
	StatusWaitingApproval TaskStatus = "waiting_approval"
	StatusCompleted       TaskStatus = "completed"
	StatusRejected        TaskStatus = "rejected"
)

type TaskKind string

const (
	KindUnique     TaskKind = "unique"
	KindRepetitive TaskKind = "repetitive"
)

// RewardSet is what an approved task pays out: at most one monetary
// amount plus any number of non-monetary labels, granted in order.
type RewardSet struct {
	Money *decimal.Decimal `json:"money,omitempty"`
	Items []string         `json:"items,omitempty"`
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	AssignedTo  string     `json:"assigned_to"`
	CreatedBy   string     `json:"created_by"`
	Status      TaskStatus `json:"status"`
	Kind        TaskKind   `json:"kind"`

	// RecurrenceRule holds an RRULE string ("FREQ=WEEKLY;BYDAY=MO,WE")
	// for repetitive tasks; empty for unique tasks.
	RecurrenceRule string `json:"recurrence_rule,omitempty"`
	TaskDate       string `json:"task_date,omitempty"` // YYYY-MM-DD
	TaskTime       string `json:"task_time,omitempty"` // HH:MM
	Urgent         bool   `json:"urgent"`

	Reward             RewardSet        `json:"reward"`
	StreakEnabled      bool             `json:"streak_enabled"`
	StreakDays         int              `json:"streak_days,omitempty"`
	StreakBonus        *decimal.Decimal `json:"streak_bonus,omitempty"`
	StreakCustomReward string           `json:"streak_custom_reward,omitempty"`

	// Proof fields, populated when the task moves to waiting_approval.
	Proof        string     `json:"proof,omitempty"`
	ProofPhoto   []byte     `json:"proof_photo,omitempty"`
	ProofPhotoAt *time.Time `json:"proof_photo_at,omitempty"`
	FraudWarning bool       `json:"fraud_warning"`

	NeedsResponse bool       `json:"needs_response"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type Sender string

const (
	SenderParent Sender = "parent"
	SenderChild  Sender = "child"
)

// TaskMessage is one entry in a task's clarification thread.
// Messages are append-only and never edited.
type TaskMessage struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Sender    Sender    `json:"from"`
	Body      string    `json:"message"`
	CreatedAt time.Time `json:"timestamp"`
}
