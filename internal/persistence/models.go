package persistence

import (
	"fmt"
	"time"
)

// DateLayout is the storage format for calendar dates.
const DateLayout = "2006-01-02"

// Contact represents a person attendance can be recorded for.
type Contact struct {
	ID          string
	Name        string
	PhoneNumber string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ContactGroup is a named, ordered list of contact ids. Ids may reference
// contacts that are not stored yet.
type ContactGroup struct {
	ID          string
	Name        string
	Description string
	ContactIDs  []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EventKind identifies which variant an Event row holds.
type EventKind string

const (
	// EventKindRegular is a one-off dated event.
	EventKindRegular EventKind = "regular"
	// EventKindTemplate is a weekly recurrence pattern without a date.
	EventKindTemplate EventKind = "template"
	// EventKindGenerated is a dated event materialized from a template.
	EventKindGenerated EventKind = "generated"
)

// Recurrence holds the weekly pattern carried by template events.
type Recurrence struct {
	DayOfWeek time.Weekday
	StartDate time.Time
	EndDate   *time.Time
	Active    bool
}

// Event is either a regular event, a recurrence template or an instance
// generated from a template.
//
// Templates carry Recurrence and no Date. Regular and generated events carry
// a Date; generated events also point at their template via RecurringEventID.
type Event struct {
	ID               string
	Name             string
	Description      string
	Date             time.Time
	Time             string
	ContactGroupIDs  []string
	Recurrence       *Recurrence
	RecurringEventID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Kind reports the variant of the event.
func (e Event) Kind() EventKind {
	switch {
	case e.Recurrence != nil:
		return EventKindTemplate
	case e.RecurringEventID != "":
		return EventKindGenerated
	default:
		return EventKindRegular
	}
}

// IsValidRegularEvent reports whether e is a dated, non-template event.
func (e Event) IsValidRegularEvent() bool {
	return e.Recurrence == nil && !e.Date.IsZero()
}

// IsValidRecurringEvent reports whether e is a template with a weekday and start date.
func (e Event) IsValidRecurringEvent() bool {
	return e.Recurrence != nil &&
		e.Recurrence.DayOfWeek >= time.Sunday && e.Recurrence.DayOfWeek <= time.Saturday &&
		!e.Recurrence.StartDate.IsZero()
}

// IsGeneratedFromRecurring reports whether e was materialized from a template.
func (e Event) IsGeneratedFromRecurring() bool {
	return e.RecurringEventID != ""
}

// Validate checks that exactly one of the regular or recurring shapes holds
// and that variant-specific fields do not leak across variants.
func (e Event) Validate() error {
	regular := e.IsValidRegularEvent()
	recurring := e.IsValidRecurringEvent()

	if regular == recurring {
		return fmt.Errorf("%w: event %q is neither a dated event nor a template", ErrInvalidEvent, e.ID)
	}
	if recurring {
		if !e.Date.IsZero() {
			return fmt.Errorf("%w: template %q must not carry a date", ErrInvalidEvent, e.ID)
		}
		if e.RecurringEventID != "" {
			return fmt.Errorf("%w: template %q must not reference another template", ErrInvalidEvent, e.ID)
		}
		if end := e.Recurrence.EndDate; end != nil && end.Before(e.Recurrence.StartDate) {
			return fmt.Errorf("%w: template %q ends before it starts", ErrInvalidEvent, e.ID)
		}
	}
	return nil
}

// AttendanceRecord stores presence and notes for one contact at one event.
type AttendanceRecord struct {
	EventID   string
	ContactID string
	Present   bool
	Notes     string
	UpdatedAt time.Time
}

// EventFilter narrows event queries. Date bounds are inclusive and only match
// dated events, so setting either bound excludes templates.
type EventFilter struct {
	From             *time.Time
	To               *time.Time
	Kinds            []EventKind
	RecurringEventID string
}

// Matches reports whether event satisfies the filter.
func (f EventFilter) Matches(event Event) bool {
	if len(f.Kinds) > 0 {
		kind := event.Kind()
		found := false
		for _, k := range f.Kinds {
			if k == kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.RecurringEventID != "" && event.RecurringEventID != f.RecurringEventID {
		return false
	}
	if f.From == nil && f.To == nil {
		return true
	}
	if event.Date.IsZero() {
		return false
	}
	day := event.Date.Format(DateLayout)
	if f.From != nil && day < f.From.Format(DateLayout) {
		return false
	}
	if f.To != nil && day > f.To.Format(DateLayout) {
		return false
	}
	return true
}
