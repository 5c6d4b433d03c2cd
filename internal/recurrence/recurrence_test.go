package recurrence

import (
	"testing"
	"time"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []string{
		"FREQ=DAILY",
		"FREQ=WEEKLY;BYDAY=MO",
		"FREQ=WEEKLY;BYDAY=MO,WE,FR",
		"FREQ=WEEKLY;BYDAY=SA,SU",
	}
	for _, rule := range tests {
		r, err := Parse(rule)
		if err != nil {
			t.Fatalf("Parse(%q): %v", rule, err)
		}
		if got := r.String(); got != rule {
			t.Errorf("Parse(%q).String() = %q", rule, got)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"",
		"BYDAY=MO",
		"FREQ=MONTHLY",
		"FREQ=WEEKLY;BYDAY=XX",
		"FREQ=WEEKLY;COUNT=3",
		"garbage",
	}
	for _, rule := range tests {
		if _, err := Parse(rule); err == nil {
			t.Errorf("Parse(%q) should fail", rule)
		}
	}
}

func TestMatches(t *testing.T) {
	monday := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	daily, _ := Parse("FREQ=DAILY")
	for i := 0; i < 7; i++ {
		if !daily.Matches(monday.AddDate(0, 0, i)) {
			t.Errorf("daily rule should match day offset %d", i)
		}
	}

	weekly, _ := Parse("FREQ=WEEKLY;BYDAY=MO,TH")
	wantMatch := map[int]bool{0: true, 3: true}
	for i := 0; i < 7; i++ {
		if got := weekly.Matches(monday.AddDate(0, 0, i)); got != wantMatch[i] {
			t.Errorf("MO,TH rule on day offset %d = %v, want %v", i, got, wantMatch[i])
		}
	}
}

func TestFromWeekdays(t *testing.T) {
	// 0=Monday .. 6=Sunday
	r, err := FromWeekdays([]int{0, 2})
	if err != nil {
		t.Fatalf("FromWeekdays: %v", err)
	}
	if got := r.String(); got != "FREQ=WEEKLY;BYDAY=MO,WE" {
		t.Errorf("rule = %q, want FREQ=WEEKLY;BYDAY=MO,WE", got)
	}

	r, err = FromWeekdays([]int{6})
	if err != nil {
		t.Fatalf("FromWeekdays: %v", err)
	}
	if got := r.String(); got != "FREQ=WEEKLY;BYDAY=SU" {
		t.Errorf("rule = %q, want FREQ=WEEKLY;BYDAY=SU", got)
	}

	// Full week collapses to daily
	r, err = FromWeekdays([]int{0, 1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("FromWeekdays: %v", err)
	}
	if r.Freq != Daily {
		t.Errorf("full week should collapse to daily, got %q", r.String())
	}

	if _, err := FromWeekdays(nil); err == nil {
		t.Error("empty weekday list should fail")
	}
	if _, err := FromWeekdays([]int{7}); err == nil {
		t.Error("out-of-range index should fail")
	}
	if _, err := FromWeekdays([]int{-1}); err == nil {
		t.Error("negative index should fail")
	}
}

func TestWeekdaysRoundTrip(t *testing.T) {
	in := []int{1, 4, 6}
	r, err := FromWeekdays(in)
	if err != nil {
		t.Fatalf("FromWeekdays: %v", err)
	}
	got := r.Weekdays()
	if len(got) != len(in) {
		t.Fatalf("Weekdays() = %v, want %v", got, in)
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("Weekdays()[%d] = %d, want %d", i, got[i], in[i])
		}
	}
}

func TestDescribe(t *testing.T) {
	daily, _ := Parse("FREQ=DAILY")
	if daily.Describe() != "Repeats daily" {
		t.Errorf("daily Describe() = %q", daily.Describe())
	}

	weekly, _ := Parse("FREQ=WEEKLY;BYDAY=MO,FR")
	if weekly.Describe() != "Repeats weekly on Mon, Fri" {
		t.Errorf("weekly Describe() = %q", weekly.Describe())
	}
}
