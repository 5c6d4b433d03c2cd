package store

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mvaldes/chorebank/internal/database"
	"github.com/mvaldes/chorebank/internal/model"
	"github.com/mvaldes/chorebank/internal/task"
)

func setupTaskTestDB(t *testing.T) (*TaskStore, *ChildStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cs := NewChildStore(db)
	if _, err := cs.EnsureParent("Test Parent", ""); err != nil {
		t.Fatalf("seed parent: %v", err)
	}
	return NewTaskStore(db), cs
}

func mustChild(t *testing.T, cs *ChildStore, name string) *model.Child {
	t.Helper()
	c, err := cs.CreateChild(name, "", "", "")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	return c
}

func dec(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return &d
}

func TestTaskCreateDefaults(t *testing.T) {
	ts, cs := setupTaskTestDB(t)
	child := mustChild(t, cs, "Mia")

	created, err := ts.Create(model.Task{
		Title:      "Clean room",
		AssignedTo: child.ID,
		Kind:       model.KindUnique,
		Status:     model.StatusCompleted, // must be ignored
		Reward: model.RewardSet{
			Money: dec(t, "1.50"),
			Items: []string{"sticker", "extra screen time"},
		},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	if created.ID == "" {
		t.Error("task should get an id")
	}
	if created.Status != model.StatusPending {
		t.Errorf("status = %s, want pending", created.Status)
	}
	if created.Reward.Money == nil || !created.Reward.Money.Equal(decimal.RequireFromString("1.50")) {
		t.Errorf("reward money = %v, want 1.50", created.Reward.Money)
	}
	if len(created.Reward.Items) != 2 || created.Reward.Items[0] != "sticker" {
		t.Errorf("reward items = %v", created.Reward.Items)
	}

	got, err := ts.GetByID(created.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got == nil || got.Title != "Clean room" {
		t.Fatalf("round trip failed: %+v", got)
	}
}

func TestTaskFanOut(t *testing.T) {
	ts, cs := setupTaskTestDB(t)
	a := mustChild(t, cs, "Anna")
	b := mustChild(t, cs, "Ben")
	c := mustChild(t, cs, "Cleo")

	created, err := ts.CreateForChildren(model.Task{
		Title: "Feed the cat",
		Kind:  model.KindUnique,
	}, []string{a.ID, b.ID, c.ID})
	if err != nil {
		t.Fatalf("fan out: %v", err)
	}

	if len(created) != 3 {
		t.Fatalf("created %d tasks, want 3", len(created))
	}

	seen := make(map[string]bool)
	assigned := make(map[string]bool)
	for _, ct := range created {
		if seen[ct.ID] {
			t.Errorf("duplicate task id %s", ct.ID)
		}
		seen[ct.ID] = true
		assigned[ct.AssignedTo] = true
		if ct.Status != model.StatusPending {
			t.Errorf("copy status = %s, want pending", ct.Status)
		}
	}
	for _, id := range []string{a.ID, b.ID, c.ID} {
		if !assigned[id] {
			t.Errorf("no copy assigned to child %s", id)
		}
	}
}

func TestTaskCompleteGuard(t *testing.T) {
	ts, cs := setupTaskTestDB(t)
	child := mustChild(t, cs, "Mia")

	created, err := ts.Create(model.Task{Title: "Dishes", AssignedTo: child.ID, Kind: model.KindUnique})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	done, err := ts.Complete(created.ID, "did it", nil, nil, false)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != model.StatusWaitingApproval {
		t.Errorf("status = %s, want waiting_approval", done.Status)
	}
	if done.Proof != "did it" {
		t.Errorf("proof = %q", done.Proof)
	}
	if done.CompletedAt == nil {
		t.Error("completed_at should be set")
	}

	if _, err := ts.Complete(created.ID, "again", nil, nil, false); !errors.Is(err, task.ErrInvalidTransition) {
		t.Errorf("second complete err = %v, want ErrInvalidTransition", err)
	}

	if _, err := ts.Complete("nope", "", nil, nil, false); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("complete missing err = %v, want ErrNotFound", err)
	}
}

func TestApproveSettlesExactlyOnce(t *testing.T) {
	ts, cs := setupTaskTestDB(t)
	child := mustChild(t, cs, "Mia")

	created, err := ts.Create(model.Task{
		Title:      "Mow lawn",
		AssignedTo: child.ID,
		Kind:       model.KindUnique,
		Reward: model.RewardSet{
			Money: dec(t, "2.50"),
			Items: []string{"sticker"},
		},
		StreakEnabled: true,
		StreakDays:    3,
		StreakBonus:   dec(t, "1.00"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ts.Complete(created.ID, "", nil, nil, false); err != nil {
		t.Fatalf("complete: %v", err)
	}

	now := time.Now()
	settled, updated, outcome, err := ts.Approve(created.ID, now)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	if settled.Status != model.StatusCompleted {
		t.Errorf("task status = %s, want completed", settled.Status)
	}
	if want := decimal.RequireFromString("3.50"); !updated.Balance.Equal(want) {
		t.Errorf("balance = %s, want %s", updated.Balance, want)
	}
	if updated.XP != 10 {
		t.Errorf("xp = %d, want 10", updated.XP)
	}
	if updated.Streak != 1 {
		t.Errorf("streak = %d, want 1", updated.Streak)
	}
	if !outcome.StreakBelowThreshold {
		t.Error("streak 0 of 3 should be flagged")
	}

	inv, err := cs.Inventory(child.ID)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if len(inv) != 1 || inv[0].Label != "sticker" {
		t.Errorf("inventory = %v, want one sticker", inv)
	}

	// Approving again must fail and leave the ledger untouched.
	if _, _, _, err := ts.Approve(created.ID, now); !errors.Is(err, task.ErrInvalidTransition) {
		t.Fatalf("second approve err = %v, want ErrInvalidTransition", err)
	}
	after, err := cs.GetByID(child.ID)
	if err != nil {
		t.Fatalf("reload child: %v", err)
	}
	if !after.Balance.Equal(updated.Balance) || after.XP != updated.XP {
		t.Errorf("ledger changed on failed approve: balance %s xp %d", after.Balance, after.XP)
	}
}

func TestApprovePendingTaskFails(t *testing.T) {
	ts, cs := setupTaskTestDB(t)
	child := mustChild(t, cs, "Mia")

	created, err := ts.Create(model.Task{Title: "Tidy desk", AssignedTo: child.ID, Kind: model.KindUnique, Reward: model.RewardSet{Money: dec(t, "1.00")}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, _, _, err := ts.Approve(created.ID, time.Now()); !errors.Is(err, task.ErrInvalidTransition) {
		t.Fatalf("approve pending err = %v, want ErrInvalidTransition", err)
	}

	after, _ := cs.GetByID(child.ID)
	if !after.Balance.IsZero() {
		t.Errorf("balance = %s, want 0 after refused approval", after.Balance)
	}
}

func TestRejectIsIdempotentInEffect(t *testing.T) {
	ts, cs := setupTaskTestDB(t)
	child := mustChild(t, cs, "Mia")

	created, err := ts.Create(model.Task{Title: "Vacuum", AssignedTo: child.ID, Kind: model.KindUnique})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ts.Complete(created.ID, "", nil, nil, false); err != nil {
		t.Fatalf("complete: %v", err)
	}

	rejected, err := ts.Reject(created.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != model.StatusRejected {
		t.Errorf("status = %s, want rejected", rejected.Status)
	}

	if _, err := ts.Reject(created.ID); !errors.Is(err, task.ErrInvalidTransition) {
		t.Errorf("second reject err = %v, want ErrInvalidTransition", err)
	}

	got, _ := ts.GetByID(created.ID)
	if got.Status != model.StatusRejected {
		t.Errorf("status after double reject = %s, want rejected", got.Status)
	}
}

func TestRejectedTaskCanBeReopened(t *testing.T) {
	ts, cs := setupTaskTestDB(t)
	child := mustChild(t, cs, "Mia")

	created, err := ts.Create(model.Task{Title: "Laundry", AssignedTo: child.ID, Kind: model.KindUnique})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ts.Complete(created.ID, "", nil, nil, false); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := ts.Reject(created.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}

	reopened := *created
	reopened.Status = model.StatusPending
	got, err := ts.Update(reopened)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}

	// But a rejected task cannot jump straight to completed.
	if _, err := ts.Complete(created.ID, "", nil, nil, false); err != nil {
		t.Fatalf("re-complete: %v", err)
	}
	if _, err := ts.Reject(created.ID); err != nil {
		t.Fatalf("re-reject: %v", err)
	}
	sneaky := *created
	sneaky.Status = model.StatusCompleted
	if _, err := ts.Update(sneaky); !errors.Is(err, task.ErrInvalidTransition) {
		t.Errorf("rejected -> completed err = %v, want ErrInvalidTransition", err)
	}
}

func TestDeleteChildCascades(t *testing.T) {
	ts, cs := setupTaskTestDB(t)
	child := mustChild(t, cs, "Mia")
	other := mustChild(t, cs, "Noah")

	mine, err := ts.Create(model.Task{Title: "Walk dog", AssignedTo: child.ID, Kind: model.KindUnique})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	theirs, err := ts.Create(model.Task{Title: "Water plants", AssignedTo: other.ID, Kind: model.KindUnique})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ts.AppendMessage(mine.ID, model.SenderParent, "how did it go?"); err != nil {
		t.Fatalf("append message: %v", err)
	}

	if err := cs.Delete(child.ID); err != nil {
		t.Fatalf("delete child: %v", err)
	}

	gone, err := ts.GetByID(mine.ID)
	if err != nil {
		t.Fatalf("get deleted task: %v", err)
	}
	if gone != nil {
		t.Error("task assigned to deleted child should be gone")
	}

	msgs, err := ts.ListMessages(mine.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("messages of cascaded task = %d, want 0", len(msgs))
	}

	kept, err := ts.GetByID(theirs.ID)
	if err != nil || kept == nil {
		t.Fatalf("other child's task should survive: %v", err)
	}
}

func TestMessagesToggleNeedsResponse(t *testing.T) {
	ts, cs := setupTaskTestDB(t)
	child := mustChild(t, cs, "Mia")

	created, err := ts.Create(model.Task{Title: "Homework", AssignedTo: child.ID, Kind: model.KindUnique})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ts.Complete(created.ID, "", nil, nil, false); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := ts.AppendMessage(created.ID, model.SenderParent, "which pages did you do?"); err != nil {
		t.Fatalf("parent message: %v", err)
	}
	got, _ := ts.GetByID(created.ID)
	if !got.NeedsResponse {
		t.Error("parent question should raise needs_response")
	}

	if _, err := ts.AppendMessage(created.ID, model.SenderChild, "pages 10 to 14"); err != nil {
		t.Fatalf("child reply: %v", err)
	}
	got, _ = ts.GetByID(created.ID)
	if got.NeedsResponse {
		t.Error("child reply should clear needs_response")
	}

	msgs, err := ts.ListMessages(created.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("message count = %d, want 2", len(msgs))
	}
	if msgs[0].Sender != model.SenderParent || msgs[1].Sender != model.SenderChild {
		t.Errorf("message order wrong: %v then %v", msgs[0].Sender, msgs[1].Sender)
	}

	if _, err := ts.AppendMessage("missing", model.SenderChild, "hello?"); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("message on missing task err = %v, want ErrNotFound", err)
	}
}

func TestStreakAccumulatesAcrossDays(t *testing.T) {
	ts, cs := setupTaskTestDB(t)
	child := mustChild(t, cs, "Mia")

	day := time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		created, err := ts.Create(model.Task{Title: "Practice piano", AssignedTo: child.ID, Kind: model.KindUnique})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := ts.Complete(created.ID, "", nil, nil, false); err != nil {
			t.Fatalf("complete: %v", err)
		}
		if _, _, _, err := ts.Approve(created.ID, day.AddDate(0, 0, i)); err != nil {
			t.Fatalf("approve day %d: %v", i, err)
		}
	}

	got, _ := cs.GetByID(child.ID)
	if got.Streak != 3 {
		t.Errorf("streak after 3 consecutive days = %d, want 3", got.Streak)
	}
	if got.XP != 30 {
		t.Errorf("xp = %d, want 30", got.XP)
	}
}

func TestListFilters(t *testing.T) {
	ts, cs := setupTaskTestDB(t)
	a := mustChild(t, cs, "Anna")
	b := mustChild(t, cs, "Ben")

	t1, _ := ts.Create(model.Task{Title: "One", AssignedTo: a.ID, Kind: model.KindUnique})
	if _, err := ts.Create(model.Task{Title: "Two", AssignedTo: b.ID, Kind: model.KindUnique}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ts.Complete(t1.ID, "", nil, nil, false); err != nil {
		t.Fatalf("complete: %v", err)
	}

	byChild, err := ts.ListByChild(a.ID)
	if err != nil {
		t.Fatalf("list by child: %v", err)
	}
	if len(byChild) != 1 || byChild[0].Title != "One" {
		t.Errorf("list by child = %v", byChild)
	}

	waiting, err := ts.ListByStatus(model.StatusWaitingApproval)
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(waiting) != 1 || waiting[0].ID != t1.ID {
		t.Errorf("waiting list = %v", waiting)
	}

	all, err := ts.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("list all = %d tasks, want 2", len(all))
	}
}
