package application

import (
	"time"

	"github.com/example/attendance-tracker/internal/persistence"
)

// ContactInput captures caller provided contact fields.
type ContactInput struct {
	Name        string
	PhoneNumber string
}

// GroupInput captures caller provided contact group fields.
type GroupInput struct {
	Name        string
	Description string
	ContactIDs  []string
}

// EventInput captures the fields of a regular dated event.
type EventInput struct {
	Name            string
	Description     string
	Date            time.Time
	Time            string
	ContactGroupIDs []string
}

// TemplateInput captures the fields of a weekly recurring template.
type TemplateInput struct {
	Name            string
	Description     string
	Time            string
	ContactGroupIDs []string
	DayOfWeek       time.Weekday
	StartDate       time.Time
	EndDate         *time.Time
	Active          bool
}

// EventQuery narrows event listings. Date bounds are inclusive.
type EventQuery struct {
	From  *time.Time
	To    *time.Time
	Kinds []persistence.EventKind
}

// MaterializeResult summarises one materialization pass.
type MaterializeResult struct {
	Start     time.Time
	End       time.Time
	Templates int
	Created   int
	Existing  int
	Instances []persistence.Event
}

// AttendanceEntry pairs an eligible contact with its attendance state. A
// contact without a stored record is reported absent with empty notes.
type AttendanceEntry struct {
	Contact  persistence.Contact
	Present  bool
	Notes    string
	Recorded bool
}

// AttendanceSummary counts attendance for one event.
type AttendanceSummary struct {
	EventID  string
	Eligible int
	Present  int
	Absent   int
}

// SyncResult reports what a contact sync changed.
type SyncResult struct {
	Created   int
	Updated   int
	Unchanged int
	Skipped   int
}
