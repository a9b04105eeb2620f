package persistence

import (
	"context"
	"time"
)

// ContactRepository exposes CRUD operations for contacts.
type ContactRepository interface {
	// SaveContact inserts the contact or replaces the row with the same id.
	SaveContact(ctx context.Context, contact Contact) error
	UpdateContact(ctx context.Context, contact Contact) error
	GetContact(ctx context.Context, id string) (Contact, error)
	// GetContactsByIDs resolves ids in the given order, skipping unknown ids.
	GetContactsByIDs(ctx context.Context, ids []string) ([]Contact, error)
	ListContacts(ctx context.Context) ([]Contact, error)
	// DeleteContact removes the contact, its attendance records and its id
	// from every group membership list.
	DeleteContact(ctx context.Context, id string) error
}

// GroupRepository exposes CRUD operations for contact groups.
type GroupRepository interface {
	SaveGroup(ctx context.Context, group ContactGroup) error
	UpdateGroup(ctx context.Context, group ContactGroup) error
	GetGroup(ctx context.Context, id string) (ContactGroup, error)
	// GetGroupsByIDs resolves ids in the given order, skipping unknown ids.
	GetGroupsByIDs(ctx context.Context, ids []string) ([]ContactGroup, error)
	ListGroups(ctx context.Context) ([]ContactGroup, error)
	// DeleteGroup removes the group and its id from every event.
	DeleteGroup(ctx context.Context, id string) error
}

// EventRepository stores regular events, templates and generated instances.
type EventRepository interface {
	SaveEvent(ctx context.Context, event Event) error
	UpdateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	ListTemplates(ctx context.Context, activeOnly bool) ([]Event, error)
	// FindGeneratedInstance returns the instance materialized from templateID
	// on date, or ErrNotFound.
	FindGeneratedInstance(ctx context.Context, templateID string, date time.Time) (Event, error)
	// InsertGeneratedInstance stores event unless an instance for the same
	// template and date already exists. It returns the stored row and whether
	// this call created it.
	InsertGeneratedInstance(ctx context.Context, event Event) (Event, bool, error)
	// DeleteEvent removes the event and its attendance records.
	DeleteEvent(ctx context.Context, id string) error
}

// AttendanceRepository stores attendance keyed by event and contact.
type AttendanceRepository interface {
	GetAttendance(ctx context.Context, eventID, contactID string) (AttendanceRecord, error)
	// SetAttendancePresence upserts the presence flag, preserving notes.
	SetAttendancePresence(ctx context.Context, eventID, contactID string, present bool, at time.Time) (AttendanceRecord, error)
	// SetAttendanceNotes upserts the notes, preserving the presence flag.
	SetAttendanceNotes(ctx context.Context, eventID, contactID, notes string, at time.Time) (AttendanceRecord, error)
	ListAttendanceForEvent(ctx context.Context, eventID string) ([]AttendanceRecord, error)
	ListAttendanceForContact(ctx context.Context, contactID string) ([]AttendanceRecord, error)
}

// Store bundles every repository the application depends on.
type Store interface {
	ContactRepository
	GroupRepository
	EventRepository
	AttendanceRepository
	Close() error
}
