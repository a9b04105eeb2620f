package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/contacts"
	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/recurrence"
)

var (
	contactCounter  uint64
	groupCounter    uint64
	eventCounter    uint64
	templateCounter uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Date returns midnight UTC of the given calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DatePtr returns a pointer to Date(year, month, day).
func DatePtr(year int, month time.Month, day int) *time.Time {
	d := Date(year, month, day)
	return &d
}

// ----------------------------- Contact fixtures -----------------------------

// ContactFixture represents a deterministic contact record.
type ContactFixture struct {
	Name        string
	PhoneNumber string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ContactOption configures the generated contact fixture.
type ContactOption func(*ContactFixture)

// NewContactFixture returns a deterministic contact fixture with optional
// overrides. Phone numbers are unique per fixture so derived ids never collide.
func NewContactFixture(opts ...ContactOption) ContactFixture {
	idx := atomic.AddUint64(&contactCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := ContactFixture{
		Name:        fmt.Sprintf("Contact %03d", idx),
		PhoneNumber: fmt.Sprintf("+1555%07d", idx),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithContactName overrides the generated name.
func WithContactName(name string) ContactOption {
	return func(f *ContactFixture) {
		f.Name = name
	}
}

// WithContactPhone overrides the generated phone number.
func WithContactPhone(phone string) ContactOption {
	return func(f *ContactFixture) {
		f.PhoneNumber = phone
	}
}

// ID returns the identifier derived from the fixture's phone number.
func (f ContactFixture) ID() string {
	return contacts.ContactID(f.PhoneNumber)
}

// Persistence returns the fixture as a persistence.Contact value.
func (f ContactFixture) Persistence() persistence.Contact {
	return persistence.Contact{
		ID:          f.ID(),
		Name:        f.Name,
		PhoneNumber: contacts.NormalizePhone(f.PhoneNumber),
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// Input returns the fixture as an application.ContactInput.
func (f ContactFixture) Input() application.ContactInput {
	return application.ContactInput{Name: f.Name, PhoneNumber: f.PhoneNumber}
}

// Provider returns the fixture as an address book entry.
func (f ContactFixture) Provider() contacts.ProviderContact {
	return contacts.ProviderContact{Name: f.Name, PhoneNumber: f.PhoneNumber}
}

// ----------------------------- Group fixtures -----------------------------

// GroupFixture represents a deterministic contact group.
type GroupFixture struct {
	ID          string
	Name        string
	Description string
	ContactIDs  []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GroupOption configures the generated group fixture.
type GroupOption func(*GroupFixture)

// NewGroupFixture returns a deterministic group fixture with optional overrides.
func NewGroupFixture(opts ...GroupOption) GroupFixture {
	idx := atomic.AddUint64(&groupCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Hour)
	fixture := GroupFixture{
		ID:          fmt.Sprintf("group-%03d", idx),
		Name:        fmt.Sprintf("Group %03d", idx),
		Description: "Weekly attendees",
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithGroupID overrides the generated group ID.
func WithGroupID(id string) GroupOption {
	return func(f *GroupFixture) {
		f.ID = id
	}
}

// WithGroupName overrides the generated group name.
func WithGroupName(name string) GroupOption {
	return func(f *GroupFixture) {
		f.Name = name
	}
}

// WithGroupMembers sets the member contact ids.
func WithGroupMembers(ids ...string) GroupOption {
	return func(f *GroupFixture) {
		f.ContactIDs = append([]string(nil), ids...)
	}
}

// Persistence returns the fixture as a persistence.ContactGroup value.
func (f GroupFixture) Persistence() persistence.ContactGroup {
	return persistence.ContactGroup{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		ContactIDs:  append([]string(nil), f.ContactIDs...),
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// Input returns the fixture as an application.GroupInput.
func (f GroupFixture) Input() application.GroupInput {
	return application.GroupInput{
		Name:        f.Name,
		Description: f.Description,
		ContactIDs:  append([]string(nil), f.ContactIDs...),
	}
}

// ----------------------------- Event fixtures -----------------------------

// EventFixture represents a deterministic regular or generated event.
type EventFixture struct {
	ID               string
	Name             string
	Description      string
	Date             time.Time
	Time             string
	ContactGroupIDs  []string
	RecurringEventID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EventOption configures the generated event fixture.
type EventOption func(*EventFixture)

// NewEventFixture returns a deterministic dated event fixture. Without
// overrides the event falls on the reference date.
func NewEventFixture(opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	fixture := EventFixture{
		ID:        fmt.Sprintf("event-%03d", idx),
		Name:      fmt.Sprintf("Event %03d", idx),
		Date:      recurrence.CalendarDate(referenceTime),
		Time:      "19:00",
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEventID overrides the generated event ID.
func WithEventID(id string) EventOption {
	return func(f *EventFixture) {
		f.ID = id
	}
}

// WithEventName overrides the generated event name.
func WithEventName(name string) EventOption {
	return func(f *EventFixture) {
		f.Name = name
	}
}

// WithEventDate sets the event date.
func WithEventDate(date time.Time) EventOption {
	return func(f *EventFixture) {
		f.Date = date
	}
}

// WithEventTime sets the time of day.
func WithEventTime(value string) EventOption {
	return func(f *EventFixture) {
		f.Time = value
	}
}

// WithEventGroups sets the invited contact groups.
func WithEventGroups(ids ...string) EventOption {
	return func(f *EventFixture) {
		f.ContactGroupIDs = append([]string(nil), ids...)
	}
}

// WithGeneratedFrom marks the event as materialized from templateID.
func WithGeneratedFrom(templateID string) EventOption {
	return func(f *EventFixture) {
		f.RecurringEventID = templateID
	}
}

// Persistence returns the fixture as a persistence.Event value.
func (f EventFixture) Persistence() persistence.Event {
	return persistence.Event{
		ID:               f.ID,
		Name:             f.Name,
		Description:      f.Description,
		Date:             f.Date,
		Time:             f.Time,
		ContactGroupIDs:  append([]string(nil), f.ContactGroupIDs...),
		RecurringEventID: f.RecurringEventID,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

// Input returns the fixture as an application.EventInput.
func (f EventFixture) Input() application.EventInput {
	return application.EventInput{
		Name:            f.Name,
		Description:     f.Description,
		Date:            f.Date,
		Time:            f.Time,
		ContactGroupIDs: append([]string(nil), f.ContactGroupIDs...),
	}
}

// ----------------------------- Template fixtures -----------------------------

// TemplateFixture represents a deterministic weekly recurring template.
type TemplateFixture struct {
	ID              string
	Name            string
	Description     string
	Time            string
	ContactGroupIDs []string
	DayOfWeek       time.Weekday
	StartDate       time.Time
	EndDate         *time.Time
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TemplateOption configures the generated template fixture.
type TemplateOption func(*TemplateFixture)

// NewTemplateFixture returns an active Monday template starting on
// 2024-01-01 with optional overrides.
func NewTemplateFixture(opts ...TemplateOption) TemplateFixture {
	idx := atomic.AddUint64(&templateCounter, 1)
	fixture := TemplateFixture{
		ID:        fmt.Sprintf("template-%03d", idx),
		Name:      fmt.Sprintf("Weekly %03d", idx),
		Time:      "18:30",
		DayOfWeek: time.Monday,
		StartDate: Date(2024, time.January, 1),
		Active:    true,
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithTemplateID overrides the generated template ID.
func WithTemplateID(id string) TemplateOption {
	return func(f *TemplateFixture) {
		f.ID = id
	}
}

// WithTemplateName overrides the generated template name.
func WithTemplateName(name string) TemplateOption {
	return func(f *TemplateFixture) {
		f.Name = name
	}
}

// WithWeekday sets the recurrence weekday.
func WithWeekday(day time.Weekday) TemplateOption {
	return func(f *TemplateFixture) {
		f.DayOfWeek = day
	}
}

// WithStartDate sets the first date the template can recur on.
func WithStartDate(date time.Time) TemplateOption {
	return func(f *TemplateFixture) {
		f.StartDate = date
	}
}

// WithEndDate sets the last date the template can recur on.
func WithEndDate(date time.Time) TemplateOption {
	return func(f *TemplateFixture) {
		end := date
		f.EndDate = &end
	}
}

// WithActive toggles the template.
func WithActive(active bool) TemplateOption {
	return func(f *TemplateFixture) {
		f.Active = active
	}
}

// WithTemplateGroups sets the invited contact groups.
func WithTemplateGroups(ids ...string) TemplateOption {
	return func(f *TemplateFixture) {
		f.ContactGroupIDs = append([]string(nil), ids...)
	}
}

// Persistence returns the fixture as a template persistence.Event value.
func (f TemplateFixture) Persistence() persistence.Event {
	var end *time.Time
	if f.EndDate != nil {
		e := *f.EndDate
		end = &e
	}
	return persistence.Event{
		ID:              f.ID,
		Name:            f.Name,
		Description:     f.Description,
		Time:            f.Time,
		ContactGroupIDs: append([]string(nil), f.ContactGroupIDs...),
		Recurrence: &persistence.Recurrence{
			DayOfWeek: f.DayOfWeek,
			StartDate: f.StartDate,
			EndDate:   end,
			Active:    f.Active,
		},
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// Input returns the fixture as an application.TemplateInput.
func (f TemplateFixture) Input() application.TemplateInput {
	return application.TemplateInput{
		Name:            f.Name,
		Description:     f.Description,
		Time:            f.Time,
		ContactGroupIDs: append([]string(nil), f.ContactGroupIDs...),
		DayOfWeek:       f.DayOfWeek,
		StartDate:       f.StartDate,
		EndDate:         f.EndDate,
		Active:          f.Active,
	}
}
