package task

import (
	"testing"
	"time"

	"github.com/mvaldes/chorebank/internal/model"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to model.TaskStatus
		want     bool
	}{
		{model.StatusPending, model.StatusWaitingApproval, true},
		{model.StatusWaitingApproval, model.StatusCompleted, true},
		{model.StatusWaitingApproval, model.StatusRejected, true},
		{model.StatusRejected, model.StatusPending, true},

		// Completed is terminal
		{model.StatusCompleted, model.StatusPending, false},
		{model.StatusCompleted, model.StatusWaitingApproval, false},
		{model.StatusCompleted, model.StatusRejected, false},

		// No shortcuts
		{model.StatusPending, model.StatusCompleted, false},
		{model.StatusPending, model.StatusRejected, false},
		{model.StatusRejected, model.StatusCompleted, false},
		{model.StatusRejected, model.StatusWaitingApproval, false},
		{model.StatusWaitingApproval, model.StatusPending, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []model.TaskStatus{
		model.StatusPending, model.StatusWaitingApproval, model.StatusCompleted, model.StatusRejected,
	} {
		if !ValidStatus(s) {
			t.Errorf("ValidStatus(%s) = false, want true", s)
		}
	}
	if ValidStatus("done") {
		t.Error("ValidStatus(done) = true, want false")
	}
	if ValidStatus("") {
		t.Error("ValidStatus(empty) = true, want false")
	}
}

func TestOccursOnUnique(t *testing.T) {
	date := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC) // a Monday

	undated := model.Task{Kind: model.KindUnique}
	if !OccursOn(undated, date) {
		t.Error("undated unique task should occur on any day")
	}

	dated := model.Task{Kind: model.KindUnique, TaskDate: "2026-03-09"}
	if !OccursOn(dated, date) {
		t.Error("dated task should occur on its date")
	}
	if OccursOn(dated, date.AddDate(0, 0, 1)) {
		t.Error("dated task should not occur on another day")
	}
}

func TestOccursOnRepetitive(t *testing.T) {
	monday := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	weekly := model.Task{Kind: model.KindRepetitive, RecurrenceRule: "FREQ=WEEKLY;BYDAY=MO,WE"}
	if !OccursOn(weekly, monday) {
		t.Error("weekly MO,WE task should occur on Monday")
	}
	if OccursOn(weekly, tuesday) {
		t.Error("weekly MO,WE task should not occur on Tuesday")
	}

	daily := model.Task{Kind: model.KindRepetitive, RecurrenceRule: "FREQ=DAILY"}
	if !OccursOn(daily, monday) || !OccursOn(daily, tuesday) {
		t.Error("daily task should occur every day")
	}

	broken := model.Task{Kind: model.KindRepetitive, RecurrenceRule: "FREQ=NOPE"}
	if OccursOn(broken, monday) {
		t.Error("task with unparseable rule should never occur")
	}
}
