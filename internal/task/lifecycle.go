// Package task holds the pure lifecycle logic for tasks: the status
// state machine and the computed recurrence view. Stores apply these
// rules; handlers translate violations into HTTP responses.
package task

import (
	"time"

	"github.com/mvaldes/chorebank/internal/model"
	"github.com/mvaldes/chorebank/internal/recurrence"
)

// transitions maps each status to the statuses it may move to.
// completed is terminal. rejected only moves back to pending through
// an explicit re-edit, never automatically.
var transitions = map[model.TaskStatus][]model.TaskStatus{
	model.StatusPending:         {model.StatusWaitingApproval},
	model.StatusWaitingApproval: {model.StatusCompleted, model.StatusRejected},
	model.StatusRejected:        {model.StatusPending},
	model.StatusCompleted:       {},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to model.TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is one of the four lifecycle statuses.
func ValidStatus(s model.TaskStatus) bool {
	_, ok := transitions[s]
	return ok
}

// OccursOn reports whether the task has an occurrence on the given
// date. Repetitive tasks are a computed view over their recurrence
// rule; no per-date instances are ever materialized.
func OccursOn(t model.Task, date time.Time) bool {
	switch t.Kind {
	case model.KindRepetitive:
		rule, err := recurrence.Parse(t.RecurrenceRule)
		if err != nil {
			return false
		}
		return rule.Matches(date)
	default:
		if t.TaskDate == "" {
			return true
		}
		return t.TaskDate == date.Format("2006-01-02")
	}
}
