// Package settlement computes the balance, inventory, and XP deltas a
// child earns when a task is approved. The functions are pure; the
// task store applies an Outcome inside the same transaction that marks
// the task completed, so rewards are granted exactly once or not at all.
package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mvaldes/chorebank/internal/model"
)

const (
	// BaseXP is awarded on every approval, regardless of rewards.
	BaseXP = 10

	// XPPerLevel is the level boundary; level is a derived display
	// concept, never stored.
	XPPerLevel = 100
)

// Outcome is one application of the reward math.
type Outcome struct {
	BalanceDelta  decimal.Decimal
	InventoryAdds []string
	XPDelta       int

	// StreakBelowThreshold is set when the streak bonus was granted
	// even though the child's streak counter is below the task's
	// configured streak_days. The bonus is paid anyway; callers
	// should log it, since the threshold is configured yet never
	// enforced.
	StreakBelowThreshold bool
}

// Settle computes the deltas for approving t against c. It never
// mutates its inputs.
func Settle(t model.Task, c model.Child) Outcome {
	out := Outcome{
		BalanceDelta: decimal.Zero,
		XPDelta:      BaseXP,
	}

	if t.Reward.Money != nil {
		out.BalanceDelta = out.BalanceDelta.Add(*t.Reward.Money)
	}
	out.InventoryAdds = append(out.InventoryAdds, t.Reward.Items...)

	if t.StreakEnabled {
		if t.StreakBonus != nil && !t.StreakBonus.IsZero() {
			out.BalanceDelta = out.BalanceDelta.Add(*t.StreakBonus)
		}
		if t.StreakCustomReward != "" {
			out.InventoryAdds = append(out.InventoryAdds, t.StreakCustomReward)
		}
		if t.StreakDays > 0 && c.Streak < t.StreakDays {
			out.StreakBelowThreshold = true
		}
	}

	return out
}

// Level derives the display level from an XP total.
func Level(xp int) int {
	if xp < 0 {
		return 1
	}
	return xp/XPPerLevel + 1
}

// NextStreak computes the child's consecutive-day counter after a
// settlement on the given day. lastSettledOn is the previous
// settlement date as YYYY-MM-DD ("" for none). Multiple approvals on
// the same day keep the counter; a settlement the day after the last
// one extends it; anything else starts over at 1.
func NextStreak(current int, lastSettledOn string, today time.Time) int {
	day := today.Format("2006-01-02")
	if lastSettledOn == day {
		if current < 1 {
			return 1
		}
		return current
	}
	yesterday := today.AddDate(0, 0, -1).Format("2006-01-02")
	if lastSettledOn == yesterday {
		return current + 1
	}
	return 1
}
