package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/attendance-tracker/internal/logging"
	"github.com/example/attendance-tracker/internal/persistence"
)

// AttendanceStore captures the store operations the attendance ledger needs.
type AttendanceStore interface {
	GetEvent(ctx context.Context, id string) (persistence.Event, error)
	GetContact(ctx context.Context, id string) (persistence.Contact, error)
	GetGroupsByIDs(ctx context.Context, ids []string) ([]persistence.ContactGroup, error)
	GetContactsByIDs(ctx context.Context, ids []string) ([]persistence.Contact, error)
	GetAttendance(ctx context.Context, eventID, contactID string) (persistence.AttendanceRecord, error)
	SetAttendancePresence(ctx context.Context, eventID, contactID string, present bool, at time.Time) (persistence.AttendanceRecord, error)
	SetAttendanceNotes(ctx context.Context, eventID, contactID, notes string, at time.Time) (persistence.AttendanceRecord, error)
	ListAttendanceForEvent(ctx context.Context, eventID string) ([]persistence.AttendanceRecord, error)
	ListAttendanceForContact(ctx context.Context, contactID string) ([]persistence.AttendanceRecord, error)
}

// AttendanceService records presence and notes per (event, contact) pair.
type AttendanceService struct {
	store  AttendanceStore
	now    func() time.Time
	logger *slog.Logger
}

// NewAttendanceService constructs an attendance service.
func NewAttendanceService(store AttendanceStore, now func() time.Time) *AttendanceService {
	return NewAttendanceServiceWithLogger(store, now, nil)
}

// NewAttendanceServiceWithLogger constructs an attendance service with a specified logger.
func NewAttendanceServiceWithLogger(store AttendanceStore, now func() time.Time, logger *slog.Logger) *AttendanceService {
	if now == nil {
		now = time.Now
	}
	return &AttendanceService{store: store, now: now, logger: logging.OrDefault(logger)}
}

func (s *AttendanceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AttendanceService", operation, attrs...)
}

// GetRecord returns the stored record for the pair. The boolean is false
// when no record has been created yet.
func (s *AttendanceService) GetRecord(ctx context.Context, eventID, contactID string) (persistence.AttendanceRecord, bool, error) {
	if s == nil {
		return persistence.AttendanceRecord{}, false, fmt.Errorf("AttendanceService is nil")
	}

	record, err := s.store.GetAttendance(ctx, eventID, contactID)
	if errors.Is(err, persistence.ErrNotFound) {
		return persistence.AttendanceRecord{}, false, nil
	}
	if err != nil {
		return persistence.AttendanceRecord{}, false, mapRepoError(err)
	}
	return record, true, nil
}

// SetPresence marks the contact present or absent, creating the record with
// empty notes when needed. Existing notes are preserved.
func (s *AttendanceService) SetPresence(ctx context.Context, eventID, contactID string, present bool) (record persistence.AttendanceRecord, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "SetPresence",
		"event_id", eventID,
		"contact_id", contactID,
		"present", present,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to set presence", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "presence recorded")
	}()

	if err = s.requireParticipants(ctx, eventID, contactID); err != nil {
		return
	}

	record, err = s.store.SetAttendancePresence(ctx, eventID, contactID, present, s.now())
	if err != nil {
		err = mapRepoError(err)
	}
	return
}

// SetNotes stores notes for the contact, creating an absent record when
// needed. The presence flag is preserved.
func (s *AttendanceService) SetNotes(ctx context.Context, eventID, contactID, notes string) (record persistence.AttendanceRecord, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "SetNotes",
		"event_id", eventID,
		"contact_id", contactID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to set notes", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "notes recorded")
	}()

	if err = s.requireParticipants(ctx, eventID, contactID); err != nil {
		return
	}

	record, err = s.store.SetAttendanceNotes(ctx, eventID, contactID, notes, s.now())
	if err != nil {
		err = mapRepoError(err)
	}
	return
}

// requireParticipants checks that both sides of the key exist and that the
// event is a dated occurrence rather than a template.
func (s *AttendanceService) requireParticipants(ctx context.Context, eventID, contactID string) error {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return mapRepoError(err)
	}
	if event.Kind() == persistence.EventKindTemplate {
		return fieldError("event_id", "attendance is recorded on dated events, not templates")
	}
	if _, err := s.store.GetContact(ctx, contactID); err != nil {
		return mapRepoError(err)
	}
	return nil
}

// ListForEvent returns every record stored for the event.
func (s *AttendanceService) ListForEvent(ctx context.Context, eventID string) ([]persistence.AttendanceRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("AttendanceService is nil")
	}
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, mapRepoError(err)
	}

	records, err := s.store.ListAttendanceForEvent(ctx, eventID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return records, nil
}

// ListForContact returns every record stored for the contact.
func (s *AttendanceService) ListForContact(ctx context.Context, contactID string) ([]persistence.AttendanceRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("AttendanceService is nil")
	}
	if _, err := s.store.GetContact(ctx, contactID); err != nil {
		return nil, mapRepoError(err)
	}

	records, err := s.store.ListAttendanceForContact(ctx, contactID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return records, nil
}

// EligibleContacts resolves the contacts of every group the event references.
// Ids are deduplicated in first-seen order; unknown groups and contacts are
// skipped.
func (s *AttendanceService) EligibleContacts(ctx context.Context, eventID string) ([]persistence.Contact, error) {
	if s == nil {
		return nil, fmt.Errorf("AttendanceService is nil")
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return s.eligibleFor(ctx, event)
}

func (s *AttendanceService) eligibleFor(ctx context.Context, event persistence.Event) ([]persistence.Contact, error) {
	groups, err := s.store.GetGroupsByIDs(ctx, event.ContactGroupIDs)
	if err != nil {
		return nil, mapRepoError(err)
	}

	ids := make([]string, 0)
	for _, group := range groups {
		ids = append(ids, group.ContactIDs...)
	}
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return []persistence.Contact{}, nil
	}

	contacts, err := s.store.GetContactsByIDs(ctx, ids)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return contacts, nil
}

// Sheet joins the eligible contacts of an event with their attendance.
func (s *AttendanceService) Sheet(ctx context.Context, eventID string) ([]AttendanceEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("AttendanceService is nil")
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	contacts, err := s.eligibleFor(ctx, event)
	if err != nil {
		return nil, err
	}

	records, err := s.store.ListAttendanceForEvent(ctx, eventID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	byContact := make(map[string]persistence.AttendanceRecord, len(records))
	for _, record := range records {
		byContact[record.ContactID] = record
	}

	entries := make([]AttendanceEntry, 0, len(contacts))
	for _, contact := range contacts {
		entry := AttendanceEntry{Contact: contact}
		if record, ok := byContact[contact.ID]; ok {
			entry.Present = record.Present
			entry.Notes = record.Notes
			entry.Recorded = true
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Summary counts eligible and present contacts for an event.
func (s *AttendanceService) Summary(ctx context.Context, eventID string) (AttendanceSummary, error) {
	entries, err := s.Sheet(ctx, eventID)
	if err != nil {
		return AttendanceSummary{}, err
	}

	summary := AttendanceSummary{EventID: eventID, Eligible: len(entries)}
	for _, entry := range entries {
		if entry.Present {
			summary.Present++
		}
	}
	summary.Absent = summary.Eligible - summary.Present
	return summary, nil
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
