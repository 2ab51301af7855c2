package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// DueStatus classifies a milestone against today.
type DueStatus int

const (
	// DueNone means no date, already completed, or more than DueSoonDays away.
	DueNone DueStatus = iota
	// DueSoon means the target date is today or within DueSoonDays.
	DueSoon
	// Overdue means the target date is strictly before the start of today.
	Overdue
)

// DueSoonDays is the inclusive window, in days from today, for DueSoon.
const DueSoonDays = 3

// String returns a human-readable representation of the status.
func (s DueStatus) String() string {
	switch s {
	case DueSoon:
		return "due-soon"
	case Overdue:
		return "overdue"
	default:
		return "none"
	}
}

// ParseDate parses a YYYY-MM-DD date (a longer ISO timestamp is truncated to
// its date part) as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysUntil returns whole calendar days from now's day to the date; negative
// when the date has passed.
func DaysUntil(date string, now time.Time) (int, bool) {
	target, ok := ParseDate(date, now.Location())
	if !ok {
		return 0, false
	}
	// Compare calendar dates in UTC so DST shifts never skew the count.
	ty, tm, td := target.Date()
	ny, nm, nd := now.Date()
	a := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	b := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(a.Sub(b).Hours() / 24), true
}

// ClassifyDue reports whether an incomplete milestone is overdue or due soon.
func ClassifyDue(m *Milestone, now time.Time) DueStatus {
	if m.Completed || m.TargetDate == "" {
		return DueNone
	}
	days, ok := DaysUntil(m.TargetDate, now)
	if !ok {
		return DueNone
	}
	switch {
	case days < 0:
		return Overdue
	case days <= DueSoonDays:
		return DueSoon
	default:
		return DueNone
	}
}

// DaysRemainingLabel formats the distance to a target date as
// "N days remaining", "Due today" or "N days overdue". It returns "" for an
// empty or unparseable date.
func DaysRemainingLabel(date string, now time.Time) string {
	days, ok := DaysUntil(date, now)
	if !ok {
		return ""
	}
	switch {
	case days > 0:
		return fmt.Sprintf("%d days remaining", days)
	case days == 0:
		return "Due today"
	default:
		return fmt.Sprintf("%d days overdue", -days)
	}
}

// isoDatePrefix matches input that is meant as an ISO date or timestamp.
var isoDatePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// ParseTargetDate turns user input such as "2026-03-01", "next friday" or
// "in 2 weeks" into a YYYY-MM-DD date relative to now.
//
// ISO input never falls through to natural-language parsing: an invalid
// calendar date or a malformed timestamp is an error. A full RFC 3339
// timestamp keeps its own date part.
func ParseTargetDate(input string, now time.Time) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", nil
	}
	if isoDatePrefix.MatchString(input) {
		if len(input) > len(DateLayout) {
			if _, err := time.Parse(time.RFC3339, input); err != nil {
				return "", fmt.Errorf("invalid date %q: want YYYY-MM-DD or an RFC 3339 timestamp", input)
			}
		}
		t, ok := ParseDate(input, now.Location())
		if !ok {
			return "", fmt.Errorf("invalid date %q: want YYYY-MM-DD", input)
		}
		return t.Format(DateLayout), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(input, now)
	if err != nil {
		return "", fmt.Errorf("failed to parse date %q: %w", input, err)
	}
	if r == nil {
		return "", fmt.Errorf("unrecognized date %q", input)
	}
	return r.Time.Format(DateLayout), nil
}
