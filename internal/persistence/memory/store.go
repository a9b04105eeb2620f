// Package memory provides a map-backed persistence.Store used by tests and
// short-lived tooling.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/recurrence"
)

type attendanceKey struct {
	eventID   string
	contactID string
}

type instanceKey struct {
	templateID string
	date       string
}

// Store keeps every entity in process memory behind a single RWMutex.
type Store struct {
	mu         sync.RWMutex
	contacts   map[string]persistence.Contact
	groups     map[string]persistence.ContactGroup
	events     map[string]persistence.Event
	attendance map[attendanceKey]persistence.AttendanceRecord
	instances  map[instanceKey]string
}

var _ persistence.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		contacts:   make(map[string]persistence.Contact),
		groups:     make(map[string]persistence.ContactGroup),
		events:     make(map[string]persistence.Event),
		attendance: make(map[attendanceKey]persistence.AttendanceRecord),
		instances:  make(map[instanceKey]string),
	}
}

// Ping reports only context cancellation; the store is always reachable.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// --- ContactRepository implementation ---

// SaveContact inserts or replaces a contact.
func (s *Store) SaveContact(ctx context.Context, contact persistence.Contact) error {
	if contact.ID == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.contacts[contact.ID]; ok {
		contact.CreatedAt = existing.CreatedAt
	}
	s.contacts[contact.ID] = contact
	return nil
}

// UpdateContact replaces an existing contact.
func (s *Store) UpdateContact(ctx context.Context, contact persistence.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.contacts[contact.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	contact.CreatedAt = existing.CreatedAt
	s.contacts[contact.ID] = contact
	return nil
}

// GetContact retrieves a contact by ID.
func (s *Store) GetContact(ctx context.Context, id string) (persistence.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contact, ok := s.contacts[id]
	if !ok {
		return persistence.Contact{}, persistence.ErrNotFound
	}
	return contact, nil
}

// GetContactsByIDs resolves ids in order, dropping unknown and repeated ids.
func (s *Store) GetContactsByIDs(ctx context.Context, ids []string) ([]persistence.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contacts := make([]persistence.Contact, 0, len(ids))
	for _, id := range uniqueStrings(ids) {
		if contact, ok := s.contacts[id]; ok {
			contacts = append(contacts, contact)
		}
	}
	return contacts, nil
}

// ListContacts returns all contacts ordered by name.
func (s *Store) ListContacts(ctx context.Context) ([]persistence.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contacts := make([]persistence.Contact, 0, len(s.contacts))
	for _, contact := range s.contacts {
		contacts = append(contacts, contact)
	}

	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].Name == contacts[j].Name {
			return contacts[i].ID < contacts[j].ID
		}
		return contacts[i].Name < contacts[j].Name
	})
	return contacts, nil
}

// DeleteContact removes a contact together with its attendance records and
// group memberships.
func (s *Store) DeleteContact(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contacts[id]; !ok {
		return persistence.ErrNotFound
	}

	for key := range s.attendance {
		if key.contactID == id {
			delete(s.attendance, key)
		}
	}

	for groupID, group := range s.groups {
		members := removeString(group.ContactIDs, id)
		if len(members) != len(group.ContactIDs) {
			group.ContactIDs = members
			s.groups[groupID] = group
		}
	}

	delete(s.contacts, id)
	return nil
}

// --- GroupRepository implementation ---

// SaveGroup inserts or replaces a group.
func (s *Store) SaveGroup(ctx context.Context, group persistence.ContactGroup) error {
	if group.ID == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.groups[group.ID]; ok {
		group.CreatedAt = existing.CreatedAt
	}
	s.groups[group.ID] = cloneGroup(group)
	return nil
}

// UpdateGroup replaces an existing group.
func (s *Store) UpdateGroup(ctx context.Context, group persistence.ContactGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.groups[group.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	group.CreatedAt = existing.CreatedAt
	s.groups[group.ID] = cloneGroup(group)
	return nil
}

// GetGroup retrieves a group by ID.
func (s *Store) GetGroup(ctx context.Context, id string) (persistence.ContactGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, ok := s.groups[id]
	if !ok {
		return persistence.ContactGroup{}, persistence.ErrNotFound
	}
	return cloneGroup(group), nil
}

// GetGroupsByIDs resolves ids in order, dropping unknown and repeated ids.
func (s *Store) GetGroupsByIDs(ctx context.Context, ids []string) ([]persistence.ContactGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]persistence.ContactGroup, 0, len(ids))
	for _, id := range uniqueStrings(ids) {
		if group, ok := s.groups[id]; ok {
			groups = append(groups, cloneGroup(group))
		}
	}
	return groups, nil
}

// ListGroups returns all groups ordered by name.
func (s *Store) ListGroups(ctx context.Context) ([]persistence.ContactGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]persistence.ContactGroup, 0, len(s.groups))
	for _, group := range s.groups {
		groups = append(groups, cloneGroup(group))
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Name == groups[j].Name {
			return groups[i].ID < groups[j].ID
		}
		return groups[i].Name < groups[j].Name
	})
	return groups, nil
}

// DeleteGroup removes a group and strips its id from every event.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[id]; !ok {
		return persistence.ErrNotFound
	}

	for eventID, event := range s.events {
		groupIDs := removeString(event.ContactGroupIDs, id)
		if len(groupIDs) != len(event.ContactGroupIDs) {
			event.ContactGroupIDs = groupIDs
			s.events[eventID] = event
		}
	}

	delete(s.groups, id)
	return nil
}

// --- EventRepository implementation ---

// SaveEvent inserts or replaces an event.
func (s *Store) SaveEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if err := event.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.putEventLocked(normalizeEvent(event), true)
}

// UpdateEvent replaces an existing event.
func (s *Store) UpdateEvent(ctx context.Context, event persistence.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; !ok {
		return persistence.ErrNotFound
	}
	return s.putEventLocked(normalizeEvent(event), false)
}

func (s *Store) putEventLocked(event persistence.Event, upsert bool) error {
	existing, exists := s.events[event.ID]
	if !exists && !upsert {
		return persistence.ErrNotFound
	}

	if event.IsGeneratedFromRecurring() {
		key := instanceKeyFor(event)
		if ownerID, ok := s.instances[key]; ok && ownerID != event.ID {
			return fmt.Errorf("%w: instance of %s on %s", persistence.ErrDuplicate, key.templateID, key.date)
		}
	}

	if exists {
		event.CreatedAt = existing.CreatedAt
		if existing.IsGeneratedFromRecurring() {
			delete(s.instances, instanceKeyFor(existing))
		}
	}
	if event.IsGeneratedFromRecurring() {
		s.instances[instanceKeyFor(event)] = event.ID
	}
	s.events[event.ID] = cloneEvent(event)
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[id]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return cloneEvent(event), nil
}

// ListEvents returns events matching filter ordered by date, time and id.
// Templates sort ahead of dated events.
func (s *Store) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]persistence.Event, 0, len(s.events))
	for _, event := range s.events {
		if !filter.Matches(event) {
			continue
		}
		events = append(events, cloneEvent(event))
	}

	sort.Slice(events, func(i, j int) bool {
		return eventLess(events[i], events[j])
	})
	return events, nil
}

// ListTemplates returns templates ordered by name, optionally only active ones.
func (s *Store) ListTemplates(ctx context.Context, activeOnly bool) ([]persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	templates := make([]persistence.Event, 0)
	for _, event := range s.events {
		if event.Recurrence == nil {
			continue
		}
		if activeOnly && !event.Recurrence.Active {
			continue
		}
		templates = append(templates, cloneEvent(event))
	}

	sort.Slice(templates, func(i, j int) bool {
		if templates[i].Name == templates[j].Name {
			return templates[i].ID < templates[j].ID
		}
		return templates[i].Name < templates[j].Name
	})
	return templates, nil
}

// FindGeneratedInstance looks up the instance for templateID on date.
func (s *Store) FindGeneratedInstance(ctx context.Context, templateID string, date time.Time) (persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.instances[instanceKey{templateID: templateID, date: date.Format(persistence.DateLayout)}]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return cloneEvent(s.events[id]), nil
}

// InsertGeneratedInstance stores event unless its template already has an
// instance on the same date, in which case the existing row is returned.
func (s *Store) InsertGeneratedInstance(ctx context.Context, event persistence.Event) (persistence.Event, bool, error) {
	if event.ID == "" || !event.IsGeneratedFromRecurring() {
		return persistence.Event{}, false, persistence.ErrConstraintViolation
	}
	if err := event.Validate(); err != nil {
		return persistence.Event{}, false, err
	}
	event = normalizeEvent(event)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := instanceKeyFor(event)
	if id, ok := s.instances[key]; ok {
		return cloneEvent(s.events[id]), false, nil
	}
	if _, ok := s.events[event.ID]; ok {
		return persistence.Event{}, false, fmt.Errorf("%w: event %s", persistence.ErrDuplicate, event.ID)
	}

	s.instances[key] = event.ID
	s.events[event.ID] = cloneEvent(event)
	return cloneEvent(event), true, nil
}

// DeleteEvent removes an event and its attendance records.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok {
		return persistence.ErrNotFound
	}

	for key := range s.attendance {
		if key.eventID == id {
			delete(s.attendance, key)
		}
	}
	if event.IsGeneratedFromRecurring() {
		delete(s.instances, instanceKeyFor(event))
	}
	delete(s.events, id)
	return nil
}

// --- AttendanceRepository implementation ---

// GetAttendance returns the record for the pair or ErrNotFound.
func (s *Store) GetAttendance(ctx context.Context, eventID, contactID string) (persistence.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.attendance[attendanceKey{eventID: eventID, contactID: contactID}]
	if !ok {
		return persistence.AttendanceRecord{}, persistence.ErrNotFound
	}
	return record, nil
}

// SetAttendancePresence upserts the presence flag for the pair.
func (s *Store) SetAttendancePresence(ctx context.Context, eventID, contactID string, present bool, at time.Time) (persistence.AttendanceRecord, error) {
	return s.upsertAttendance(eventID, contactID, at, func(record *persistence.AttendanceRecord) {
		record.Present = present
	})
}

// SetAttendanceNotes upserts the notes for the pair.
func (s *Store) SetAttendanceNotes(ctx context.Context, eventID, contactID, notes string, at time.Time) (persistence.AttendanceRecord, error) {
	return s.upsertAttendance(eventID, contactID, at, func(record *persistence.AttendanceRecord) {
		record.Notes = notes
	})
}

func (s *Store) upsertAttendance(eventID, contactID string, at time.Time, apply func(*persistence.AttendanceRecord)) (persistence.AttendanceRecord, error) {
	if eventID == "" || contactID == "" {
		return persistence.AttendanceRecord{}, persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := attendanceKey{eventID: eventID, contactID: contactID}
	record, ok := s.attendance[key]
	if !ok {
		record = persistence.AttendanceRecord{EventID: eventID, ContactID: contactID}
	}
	apply(&record)
	record.UpdatedAt = at
	s.attendance[key] = record
	return record, nil
}

// ListAttendanceForEvent returns the event's records ordered by contact id.
func (s *Store) ListAttendanceForEvent(ctx context.Context, eventID string) ([]persistence.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]persistence.AttendanceRecord, 0)
	for key, record := range s.attendance {
		if key.eventID == eventID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ContactID < records[j].ContactID
	})
	return records, nil
}

// ListAttendanceForContact returns the contact's records ordered by event id.
func (s *Store) ListAttendanceForContact(ctx context.Context, contactID string) ([]persistence.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]persistence.AttendanceRecord, 0)
	for key, record := range s.attendance {
		if key.contactID == contactID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].EventID < records[j].EventID
	})
	return records, nil
}

func instanceKeyFor(event persistence.Event) instanceKey {
	return instanceKey{templateID: event.RecurringEventID, date: event.Date.Format(persistence.DateLayout)}
}

func normalizeEvent(event persistence.Event) persistence.Event {
	if !event.Date.IsZero() {
		event.Date = recurrence.CalendarDate(event.Date)
	}
	if event.Recurrence != nil {
		rec := *event.Recurrence
		rec.StartDate = recurrence.CalendarDate(rec.StartDate)
		if rec.EndDate != nil {
			end := recurrence.CalendarDate(*rec.EndDate)
			rec.EndDate = &end
		}
		event.Recurrence = &rec
	}
	return event
}

func eventLess(a, b persistence.Event) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	return a.ID < b.ID
}

func cloneGroup(group persistence.ContactGroup) persistence.ContactGroup {
	members := make([]string, len(group.ContactIDs))
	copy(members, group.ContactIDs)
	group.ContactIDs = members
	return group
}

func cloneEvent(event persistence.Event) persistence.Event {
	groupIDs := make([]string, len(event.ContactGroupIDs))
	copy(groupIDs, event.ContactGroupIDs)
	event.ContactGroupIDs = groupIDs

	if event.Recurrence != nil {
		rec := *event.Recurrence
		if rec.EndDate != nil {
			end := *rec.EndDate
			rec.EndDate = &end
		}
		event.Recurrence = &rec
	}
	return event
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}

func removeString(values []string, target string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		if value == target {
			continue
		}
		result = append(result, value)
	}
	return result
}
