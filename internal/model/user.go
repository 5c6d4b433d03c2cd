package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Parent is the single household account. It owns the children and
// gates sensitive actions behind an optional PIN.
type Parent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	HasPIN    bool      `json:"has_pin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Child carries the allowance ledger. Balance only goes negative-proof
// on explicit deduction; reward settlement always adds.
type Child struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Avatar        string          `json:"avatar"`
	Balance       decimal.Decimal `json:"balance"`
	Level         int             `json:"level"` // derived: XP/100 + 1
	XP            int             `json:"xp"`
	Streak        int             `json:"streak"`
	LastSettledOn string          `json:"last_settled_on,omitempty"` // YYYY-MM-DD
	IBAN          string          `json:"iban,omitempty"`
	BirthDate     string          `json:"birth_date,omitempty"`
	SortOrder     int             `json:"sort_order"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// InventoryItem is one unredeemed non-monetary reward. The autoincrement
// ID preserves insertion order; duplicates of the same label are allowed.
type InventoryItem struct {
	ID       int64     `json:"id"`
	ChildID  string    `json:"child_id"`
	Label    string    `json:"label"`
	EarnedAt time.Time `json:"earned_at"`
}
