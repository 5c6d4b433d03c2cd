// Package recurrence parses and evaluates the RRULE subset used for
// repetitive tasks: daily, or weekly on a set of weekdays.
package recurrence

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Freq int

const (
	Daily Freq = iota
	Weekly
)

var freqNames = map[Freq]string{
	Daily:  "DAILY",
	Weekly: "WEEKLY",
}

var freqFromName = map[string]Freq{
	"DAILY":  Daily,
	"WEEKLY": Weekly,
}

var dayNames = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

var dayAbbrev = map[time.Weekday]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

type Rule struct {
	Freq  Freq
	ByDay []time.Weekday // for WEEKLY: which days (empty = every day)
}

// Parse parses an RRULE string like "FREQ=WEEKLY;BYDAY=MO,WE".
func Parse(rule string) (Rule, error) {
	if rule == "" {
		return Rule{}, fmt.Errorf("empty rule")
	}

	var r Rule
	var hasFreq bool

	parts := strings.Split(rule, ";")
	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return Rule{}, fmt.Errorf("invalid rule part: %q", part)
		}
		key, val := kv[0], kv[1]

		switch key {
		case "FREQ":
			f, ok := freqFromName[val]
			if !ok {
				return Rule{}, fmt.Errorf("unknown frequency: %q", val)
			}
			r.Freq = f
			hasFreq = true

		case "BYDAY":
			days := strings.Split(val, ",")
			for _, d := range days {
				wd, ok := dayNames[strings.TrimSpace(d)]
				if !ok {
					return Rule{}, fmt.Errorf("unknown day: %q", d)
				}
				r.ByDay = append(r.ByDay, wd)
			}

		default:
			return Rule{}, fmt.Errorf("unsupported rule key: %q", key)
		}
	}

	if !hasFreq {
		return Rule{}, fmt.Errorf("FREQ is required")
	}

	return r, nil
}

// String serializes the rule back to an RRULE string.
func (r Rule) String() string {
	parts := []string{"FREQ=" + freqNames[r.Freq]}

	if len(r.ByDay) > 0 {
		var days []string
		for _, d := range r.ByDay {
			days = append(days, dayAbbrev[d])
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}

	return strings.Join(parts, ";")
}

// Matches reports whether the rule has an occurrence on the given date.
func (r Rule) Matches(date time.Time) bool {
	if r.Freq == Daily {
		return true
	}
	if len(r.ByDay) == 0 {
		return true
	}
	wd := date.Weekday()
	for _, d := range r.ByDay {
		if d == wd {
			return true
		}
	}
	return false
}

// FromWeekdays builds a weekly rule from day indexes as the clients send
// them: 0=Monday .. 6=Sunday. All seven days collapses to FREQ=DAILY.
func FromWeekdays(days []int) (Rule, error) {
	seen := make(map[int]bool)
	for _, d := range days {
		if d < 0 || d > 6 {
			return Rule{}, fmt.Errorf("day index out of range: %d", d)
		}
		seen[d] = true
	}
	if len(seen) == 0 {
		return Rule{}, fmt.Errorf("at least one day is required")
	}
	if len(seen) == 7 {
		return Rule{Freq: Daily}, nil
	}

	var idx []int
	for d := range seen {
		idx = append(idx, d)
	}
	sort.Ints(idx)

	r := Rule{Freq: Weekly}
	for _, d := range idx {
		// 0=Monday maps to time.Monday (1), 6=Sunday to time.Sunday (0)
		r.ByDay = append(r.ByDay, time.Weekday((d+1)%7))
	}
	return r, nil
}

// Weekdays returns the rule's days as 0=Monday .. 6=Sunday indexes.
// A daily rule returns all seven.
func (r Rule) Weekdays() []int {
	if r.Freq == Daily || len(r.ByDay) == 0 {
		return []int{0, 1, 2, 3, 4, 5, 6}
	}
	var idx []int
	for _, d := range r.ByDay {
		idx = append(idx, (int(d)+6)%7)
	}
	sort.Ints(idx)
	return idx
}

// Describe returns a human-readable description of the rule.
func (r Rule) Describe() string {
	if r.Freq == Daily || len(r.ByDay) == 0 {
		return "Repeats daily"
	}
	var names []string
	for _, d := range r.ByDay {
		names = append(names, d.String()[:3])
	}
	return "Repeats weekly on " + strings.Join(names, ", ")
}
