package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mvaldes/chorebank/internal/model"
	"github.com/mvaldes/chorebank/internal/settlement"
	"github.com/mvaldes/chorebank/internal/task"
)

// ChildStore manages the household registry: the single parent row
// and the children it owns. The parent's list of children is the set
// of child rows itself, so adding or deleting a child can never leave
// the registry inconsistent.
type ChildStore struct {
	db *sql.DB
}

func NewChildStore(db *sql.DB) *ChildStore {
	return &ChildStore{db: db}
}

const childCols = `id, name, avatar, balance, xp, streak, last_settled_on, iban, birth_date,
	sort_order, created_at, updated_at`

func scanChild(scanner rowScanner) (*model.Child, error) {
	var c model.Child
	var balance string
	var lastSettled, iban, birthDate sql.NullString

	err := scanner.Scan(
		&c.ID, &c.Name, &c.Avatar, &balance, &c.XP, &c.Streak,
		&lastSettled, &iban, &birthDate, &c.SortOrder, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	c.Level = settlement.Level(c.XP)
	c.LastSettledOn = lastSettled.String
	c.IBAN = iban.String
	c.BirthDate = birthDate.String
	return &c, nil
}

// --- Parent methods ---

func scanParent(scanner rowScanner) (*model.Parent, error) {
	var p model.Parent
	err := scanner.Scan(&p.ID, &p.Name, &p.Avatar, &p.HasPIN, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const parentCols = `id, name, avatar, pin IS NOT NULL, created_at, updated_at`

// EnsureParent returns the household's parent record, seeding it on
// first run. The parent is created once and never deleted through the
// modeled operations.
func (s *ChildStore) EnsureParent(name, avatar string) (*model.Parent, error) {
	p, err := s.GetParent()
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}

	id := uuid.NewString()
	if _, err := s.db.Exec(
		`INSERT INTO parents (id, name, avatar) VALUES (?, ?, ?)`,
		id, name, avatar,
	); err != nil {
		return nil, fmt.Errorf("seed parent: %w", err)
	}
	return s.GetParent()
}

func (s *ChildStore) GetParent() (*model.Parent, error) {
	row := s.db.QueryRow(`SELECT ` + parentCols + ` FROM parents LIMIT 1`)
	p, err := scanParent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get parent: %w", err)
	}
	return p, nil
}

func (s *ChildStore) SetPIN(parentID, hashedPIN string) error {
	_, err := s.db.Exec(`UPDATE parents SET pin = ?, updated_at = ? WHERE id = ?`,
		hashedPIN, time.Now().UTC(), parentID)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

func (s *ChildStore) ClearPIN(parentID string) error {
	_, err := s.db.Exec(`UPDATE parents SET pin = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), parentID)
	if err != nil {
		return fmt.Errorf("clear pin: %w", err)
	}
	return nil
}

func (s *ChildStore) GetPINHash(parentID string) (string, error) {
	var pin sql.NullString
	err := s.db.QueryRow(`SELECT pin FROM parents WHERE id = ?`, parentID).Scan(&pin)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("parent %s: %w", parentID, task.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query pin: %w", err)
	}
	if !pin.Valid {
		return "", nil
	}
	return pin.String, nil
}

// --- Child methods ---

// CreateChild adds a child under the household parent with a zeroed
// ledger. Input validation (name length) happens before this call.
func (s *ChildStore) CreateChild(name, avatar, iban, birthDate string) (*model.Child, error) {
	parent, err := s.GetParent()
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("parent: %w", task.ErrNotFound)
	}

	var maxOrder int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(sort_order), -1) FROM children`).Scan(&maxOrder); err != nil {
		return nil, fmt.Errorf("query max sort_order: %w", err)
	}

	id := uuid.NewString()
	if _, err := s.db.Exec(
		`INSERT INTO children (id, parent_id, name, avatar, balance, iban, birth_date, sort_order)
		 VALUES (?, ?, ?, ?, '0', ?, ?, ?)`,
		id, parent.ID, name, avatar, nullString(iban), nullString(birthDate), maxOrder+1,
	); err != nil {
		return nil, fmt.Errorf("insert child: %w", err)
	}
	return s.GetByID(id)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func (s *ChildStore) List() ([]model.Child, error) {
	rows, err := s.db.Query(`SELECT ` + childCols + ` FROM children ORDER BY sort_order ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var children []model.Child
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		children = append(children, *c)
	}
	return children, rows.Err()
}

func (s *ChildStore) GetByID(id string) (*model.Child, error) {
	row := s.db.QueryRow(`SELECT `+childCols+` FROM children WHERE id = ?`, id)
	c, err := scanChild(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	return c, nil
}

// Update rewrites the child's profile fields. The caller performs the
// merge; ledger fields (balance, xp, streak) are not touched here.
// They change only through settlement and the explicit ledger
// operations below.
func (s *ChildStore) Update(c model.Child) (*model.Child, error) {
	result, err := s.db.Exec(
		`UPDATE children SET name = ?, avatar = ?, iban = ?, birth_date = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Avatar, nullString(c.IBAN), nullString(c.BirthDate), time.Now().UTC(), c.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update child: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("child %s: %w", c.ID, task.ErrNotFound)
	}
	return s.GetByID(c.ID)
}

// Delete removes the child. Their tasks and inventory go with them;
// a hard cascade, not an archive.
func (s *ChildStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM children WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete child: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("child %s: %w", id, task.ErrNotFound)
	}
	return nil
}

// AddToBalance grants a manual monetary reward.
func (s *ChildStore) AddToBalance(id string, amount decimal.Decimal) (*model.Child, error) {
	return s.adjustBalance(id, func(balance decimal.Decimal) decimal.Decimal {
		return balance.Add(amount)
	})
}

// DeductBalance subtracts from the balance, flooring at zero. The
// non-negative invariant is enforced here and only here; reward
// settlement always adds.
func (s *ChildStore) DeductBalance(id string, amount decimal.Decimal) (*model.Child, error) {
	return s.adjustBalance(id, func(balance decimal.Decimal) decimal.Decimal {
		next := balance.Sub(amount)
		if next.IsNegative() {
			return decimal.Zero
		}
		return next
	})
}

func (s *ChildStore) adjustBalance(id string, fn func(decimal.Decimal) decimal.Decimal) (*model.Child, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var balanceStr string
	err = tx.QueryRow(`SELECT balance FROM children WHERE id = ?`, id).Scan(&balanceStr)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("child %s: %w", id, task.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE children SET balance = ?, updated_at = ? WHERE id = ?`,
		fn(balance).String(), time.Now().UTC(), id,
	); err != nil {
		return nil, fmt.Errorf("write balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

// Inventory lists the child's unredeemed non-monetary rewards in the
// order they were earned.
func (s *ChildStore) Inventory(childID string) ([]model.InventoryItem, error) {
	rows, err := s.db.Query(
		`SELECT id, child_id, label, earned_at FROM inventory_items WHERE child_id = ? ORDER BY id ASC`,
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	var items []model.InventoryItem
	for rows.Next() {
		var it model.InventoryItem
		if err := rows.Scan(&it.ID, &it.ChildID, &it.Label, &it.EarnedAt); err != nil {
			return nil, fmt.Errorf("scan inventory item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// RedeemItem removes the item at the given position (insertion order)
// from the child's inventory and returns it.
func (s *ChildStore) RedeemItem(childID string, index int) (*model.InventoryItem, error) {
	if index < 0 {
		return nil, fmt.Errorf("inventory index %d: %w", index, task.ErrNotFound)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var it model.InventoryItem
	err = tx.QueryRow(
		`SELECT id, child_id, label, earned_at FROM inventory_items
		 WHERE child_id = ? ORDER BY id ASC LIMIT 1 OFFSET ?`,
		childID, index,
	).Scan(&it.ID, &it.ChildID, &it.Label, &it.EarnedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("inventory index %d: %w", index, task.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find inventory item: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM inventory_items WHERE id = ?`, it.ID); err != nil {
		return nil, fmt.Errorf("delete inventory item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &it, nil
}
