// Package calendar renders events as an iCalendar feed.
//
// Templates become recurring VEVENTs carrying an RRULE. Generated instances
// are emitted as overrides of their template occurrence (same UID plus
// RECURRENCE-ID) so subscribers never see a date twice. Regular events and
// instances whose template is gone are plain single VEVENTs.
package calendar

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/recurrence"
)

// ContentType is the media type of a rendered feed.
const ContentType = "text/calendar; charset=utf-8"

const (
	productName = "attendance-tracker"
	uidDomain   = "attendance-tracker"
	dateLayout  = "20060102"
	localLayout = "20060102T150405"
)

// Feed builds calendars from stored events.
type Feed struct {
	name     string
	location *time.Location
	now      func() time.Time
}

// NewFeed returns a feed named name. Event times are interpreted in loc,
// which defaults to UTC.
func NewFeed(name string, loc *time.Location, now func() time.Time) *Feed {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	if strings.TrimSpace(name) == "" {
		name = "Attendance"
	}
	return &Feed{name: name, location: loc, now: now}
}

// Build converts events into a calendar. Inactive templates are left out.
func (f *Feed) Build(events []persistence.Event) (*ical.Calendar, error) {
	cal := ical.NewCalendarFor(productName)
	cal.SetMethod(ical.MethodPublish)
	cal.SetCalscale("GREGORIAN")
	cal.SetName(f.name)
	cal.SetXWRTimezone(f.location.String())

	stamp := f.now()
	templates := make(map[string]persistence.Event)
	for _, event := range events {
		if event.Kind() == persistence.EventKindTemplate && event.Recurrence.Active {
			templates[event.ID] = event
		}
	}

	for _, event := range events {
		switch event.Kind() {
		case persistence.EventKindTemplate:
			if !event.Recurrence.Active {
				continue
			}
			if err := f.addTemplate(cal, event, stamp); err != nil {
				return nil, err
			}
		case persistence.EventKindGenerated:
			template, ok := templates[event.RecurringEventID]
			if !ok {
				f.addDated(cal, event, stamp)
				continue
			}
			vevent := f.addDatedWithUID(cal, uid(template.ID), event, stamp)
			f.setOccurrence(&vevent.ComponentBase, ical.ComponentPropertyRecurrenceId, event.Date, template.Time)
		default:
			f.addDated(cal, event, stamp)
		}
	}
	return cal, nil
}

// Write renders events to w.
func (f *Feed) Write(w io.Writer, events []persistence.Event) error {
	cal, err := f.Build(events)
	if err != nil {
		return err
	}
	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("calendar: serialize: %w", err)
	}
	return nil
}

func (f *Feed) addTemplate(cal *ical.Calendar, template persistence.Event, stamp time.Time) error {
	weekly := recurrence.Rule{
		TemplateID: template.ID,
		DayOfWeek:  template.Recurrence.DayOfWeek,
		StartDate:  template.Recurrence.StartDate,
		EndDate:    template.Recurrence.EndDate,
		Active:     template.Recurrence.Active,
	}
	var rule string
	var err error
	if last, timed := combine(endOrZero(weekly.EndDate), template.Time, f.location); timed && weekly.EndDate != nil {
		rule, err = recurrence.RRuleUntil(weekly, last)
	} else {
		rule, err = recurrence.RRule(weekly)
	}
	if err != nil {
		return fmt.Errorf("calendar: template %q: %w", template.ID, err)
	}

	start := firstOccurrence(template.Recurrence.StartDate, template.Recurrence.DayOfWeek)
	vevent := cal.AddEvent(uid(template.ID))
	vevent.SetDtStampTime(stamp)
	vevent.SetSummary(template.Name)
	if template.Description != "" {
		vevent.SetDescription(template.Description)
	}
	f.setOccurrence(&vevent.ComponentBase, ical.ComponentPropertyDtStart, start, template.Time)
	vevent.AddRrule(rule)
	return nil
}

func (f *Feed) addDated(cal *ical.Calendar, event persistence.Event, stamp time.Time) {
	f.addDatedWithUID(cal, uid(event.ID), event, stamp)
}

func (f *Feed) addDatedWithUID(cal *ical.Calendar, id string, event persistence.Event, stamp time.Time) *ical.VEvent {
	vevent := cal.AddEvent(id)
	vevent.SetDtStampTime(stamp)
	vevent.SetSummary(event.Name)
	if event.Description != "" {
		vevent.SetDescription(event.Description)
	}
	f.setOccurrence(&vevent.ComponentBase, ical.ComponentPropertyDtStart, event.Date, event.Time)
	return vevent
}

// setOccurrence writes a DATE value when clock is empty and a local
// DATE-TIME in the feed location otherwise.
func (f *Feed) setOccurrence(c *ical.ComponentBase, property ical.ComponentProperty, day time.Time, clock string) {
	at, timed := combine(day, clock, f.location)
	if !timed {
		c.SetProperty(property, day.Format(dateLayout), ical.WithValue(string(ical.ValueDataTypeDate)))
		return
	}
	if f.location == time.UTC {
		c.SetProperty(property, at.UTC().Format(localLayout)+"Z")
		return
	}
	c.SetProperty(property, at.Format(localLayout), ical.WithTZID(f.location.String()))
}

func combine(day time.Time, clock string, loc *time.Location) (time.Time, bool) {
	if clock == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, parsed.Hour(), parsed.Minute(), 0, 0, loc), true
}

// firstOccurrence moves start forward to the first date falling on weekday.
// DTSTART must itself be an occurrence of the rule.
func firstOccurrence(start time.Time, weekday time.Weekday) time.Time {
	day := recurrence.CalendarDate(start)
	offset := (int(weekday) - int(day.Weekday()) + 7) % 7
	return day.AddDate(0, 0, offset)
}

func endOrZero(end *time.Time) time.Time {
	if end == nil {
		return time.Time{}
	}
	return *end
}

func uid(id string) string {
	return id + "@" + uidDomain
}
