package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// Rule describes a weekly recurrence configuration taken from an event template.
type Rule struct {
	TemplateID string
	DayOfWeek  time.Weekday
	StartDate  time.Time
	EndDate    *time.Time
	Active     bool
}

// ErrInvalidWindow indicates the evaluation window ends before it starts.
var ErrInvalidWindow = errors.New("recurrence: window end precedes window start")

// ErrInvalidWeekday indicates the rule weekday is outside Sunday..Saturday.
var ErrInvalidWeekday = errors.New("recurrence: invalid weekday")

// IsDue reports whether rule requires an instance on date.
//
// Only the calendar date of each timestamp is considered. The function has no
// notion of "today": callers bound the dates they evaluate.
func IsDue(rule Rule, date time.Time) bool {
	if !rule.Active {
		return false
	}

	day := CalendarDate(date)
	if day.Weekday() != rule.DayOfWeek {
		return false
	}
	if day.Before(CalendarDate(rule.StartDate)) {
		return false
	}
	if rule.EndDate != nil && day.After(CalendarDate(*rule.EndDate)) {
		return false
	}
	return true
}

// CalendarDate strips the clock from t and returns midnight UTC of the same
// wall-clock date in t's own location.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Days returns every calendar date from start to end inclusive in ascending order.
func Days(start, end time.Time) ([]time.Time, error) {
	first := CalendarDate(start)
	last := CalendarDate(end)
	if last.Before(first) {
		return nil, ErrInvalidWindow
	}

	days := make([]time.Time, 0, int(last.Sub(first).Hours()/24)+1)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}
	return days, nil
}

// DueDates expands rule into the dates within [start, end] on which it is due.
// The result always agrees with IsDue for every date in the window.
func DueDates(rule Rule, start, end time.Time) ([]time.Time, error) {
	first := CalendarDate(start)
	last := CalendarDate(end)
	if last.Before(first) {
		return nil, ErrInvalidWindow
	}
	if !rule.Active {
		return nil, nil
	}

	r, err := newRRule(rule)
	if err != nil {
		return nil, err
	}

	occurrences := r.Between(first, last, true)
	dates := make([]time.Time, 0, len(occurrences))
	for _, occurrence := range occurrences {
		dates = append(dates, CalendarDate(occurrence))
	}
	return dates, nil
}

// RRule renders rule as an RFC 5545 RRULE value (without the DTSTART line)
// for a date-valued DTSTART, so an end date becomes a date-valued UNTIL.
func RRule(rule Rule) (string, error) {
	opts, err := ruleOptions(rule)
	if err != nil {
		return "", err
	}
	opts.Until = time.Time{}
	value := opts.RRuleString()
	if rule.EndDate != nil {
		value += ";UNTIL=" + CalendarDate(*rule.EndDate).Format("20060102")
	}
	return value, nil
}

// RRuleUntil is RRule with UNTIL pinned to the instant until. Timed feeds use
// it so the last occurrence's clock time stays inside the bound.
func RRuleUntil(rule Rule, until time.Time) (string, error) {
	opts, err := ruleOptions(rule)
	if err != nil {
		return "", err
	}
	opts.Until = until
	return opts.RRuleString(), nil
}

func ruleOptions(rule Rule) (rrule.ROption, error) {
	weekday, ok := rruleWeekdays[rule.DayOfWeek]
	if !ok {
		return rrule.ROption{}, fmt.Errorf("%w: %d", ErrInvalidWeekday, rule.DayOfWeek)
	}

	opts := rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   CalendarDate(rule.StartDate),
		Byweekday: []rrule.Weekday{weekday},
	}
	if rule.EndDate != nil {
		opts.Until = CalendarDate(*rule.EndDate)
	}
	return opts, nil
}

func newRRule(rule Rule) (*rrule.RRule, error) {
	opts, err := ruleOptions(rule)
	if err != nil {
		return nil, err
	}

	r, err := rrule.NewRRule(opts)
	if err != nil {
		return nil, fmt.Errorf("recurrence: build rrule: %w", err)
	}
	return r, nil
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}
