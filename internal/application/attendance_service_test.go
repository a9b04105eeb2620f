package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/testfixtures"
)

type attendanceScenario struct {
	store    persistence.Store
	service  *application.AttendanceService
	clock    *testfixtures.Clock
	event    persistence.Event
	template persistence.Event
	alice    persistence.Contact
	bob      persistence.Contact
	carol    persistence.Contact
}

// newAttendanceScenario seeds two groups sharing Bob, an event inviting both
// groups plus an unknown group, and a template.
func newAttendanceScenario(t *testing.T) attendanceScenario {
	t.Helper()

	store := testfixtures.NewMemoryStore(t)
	clock := testfixtures.NewClock(time.Time{})
	alice := testfixtures.NewContactFixture(testfixtures.WithContactName("Alice")).Persistence()
	bob := testfixtures.NewContactFixture(testfixtures.WithContactName("Bob")).Persistence()
	carol := testfixtures.NewContactFixture(testfixtures.WithContactName("Carol")).Persistence()

	sopranos := testfixtures.NewGroupFixture(testfixtures.WithGroupMembers(alice.ID, bob.ID, "not-yet-synced")).Persistence()
	altos := testfixtures.NewGroupFixture(testfixtures.WithGroupMembers(bob.ID, carol.ID)).Persistence()
	event := testfixtures.NewEventFixture(testfixtures.WithEventGroups(sopranos.ID, altos.ID, "deleted-group")).Persistence()
	template := testfixtures.NewTemplateFixture(testfixtures.WithTemplateGroups(sopranos.ID)).Persistence()

	testfixtures.Seed(t, store,
		[]persistence.Contact{alice, bob, carol},
		[]persistence.ContactGroup{sopranos, altos},
		[]persistence.Event{event, template},
	)

	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(clock))
	return attendanceScenario{
		store:    store,
		service:  factory.NewAttendanceService(testfixtures.AttendanceServiceDeps{Store: store}),
		clock:    clock,
		event:    event,
		template: template,
		alice:    alice,
		bob:      bob,
		carol:    carol,
	}
}

func TestAttendanceService_SetPresenceAndNotes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newAttendanceScenario(t)

	if _, found, err := s.service.GetRecord(ctx, s.event.ID, s.alice.ID); err != nil || found {
		t.Fatalf("expected no record yet, found=%v err=%v", found, err)
	}

	record, err := s.service.SetNotes(ctx, s.event.ID, s.alice.ID, "  arrived late\n")
	if err != nil {
		t.Fatalf("SetNotes returned error: %v", err)
	}
	if record.Present || record.Notes != "  arrived late\n" {
		t.Fatalf("expected notes stored verbatim on an absent record, got %+v", record)
	}

	s.clock.Advance(time.Minute)
	record, err = s.service.SetPresence(ctx, s.event.ID, s.alice.ID, true)
	if err != nil {
		t.Fatalf("SetPresence returned error: %v", err)
	}
	if !record.Present || record.Notes != "  arrived late\n" {
		t.Fatalf("expected presence to keep notes, got %+v", record)
	}
	if !record.UpdatedAt.Equal(s.clock.Now()) {
		t.Fatalf("expected updated_at %v, got %v", s.clock.Now(), record.UpdatedAt)
	}

	stored, found, err := s.service.GetRecord(ctx, s.event.ID, s.alice.ID)
	if err != nil || !found {
		t.Fatalf("expected stored record, found=%v err=%v", found, err)
	}
	if !stored.Present {
		t.Fatalf("expected stored presence, got %+v", stored)
	}

	forContact, err := s.service.ListForContact(ctx, s.alice.ID)
	if err != nil {
		t.Fatalf("ListForContact returned error: %v", err)
	}
	if len(forContact) != 1 || forContact[0].EventID != s.event.ID {
		t.Fatalf("unexpected records %+v", forContact)
	}
}

func TestAttendanceService_RejectsInvalidParticipants(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newAttendanceScenario(t)

	tests := []struct {
		name      string
		eventID   string
		contactID string
		kind      string
	}{
		{name: "unknown event", eventID: "missing", contactID: s.alice.ID, kind: "not_found"},
		{name: "unknown contact", eventID: s.event.ID, contactID: "missing", kind: "not_found"},
		{name: "template", eventID: s.template.ID, contactID: s.alice.ID, kind: "validation"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.service.SetPresence(ctx, tt.eventID, tt.contactID, true)
			if got := application.ErrorKind(err); got != tt.kind {
				t.Fatalf("SetPresence error kind = %q (%v), want %q", got, err, tt.kind)
			}
			_, err = s.service.SetNotes(ctx, tt.eventID, tt.contactID, "note")
			if got := application.ErrorKind(err); got != tt.kind {
				t.Fatalf("SetNotes error kind = %q (%v), want %q", got, err, tt.kind)
			}
		})
	}

	if _, err := s.service.ListForEvent(ctx, "missing"); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound listing unknown event, got %v", err)
	}
}

func TestAttendanceService_EligibleContactsAndSheet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newAttendanceScenario(t)

	eligible, err := s.service.EligibleContacts(ctx, s.event.ID)
	if err != nil {
		t.Fatalf("EligibleContacts returned error: %v", err)
	}
	want := []string{s.alice.ID, s.bob.ID, s.carol.ID}
	if len(eligible) != len(want) {
		t.Fatalf("expected %d deduplicated contacts, got %+v", len(want), eligible)
	}
	for i, contact := range eligible {
		if contact.ID != want[i] {
			t.Fatalf("expected first-seen order %v, got %+v", want, eligible)
		}
	}

	if _, err := s.service.SetPresence(ctx, s.event.ID, s.bob.ID, true); err != nil {
		t.Fatalf("SetPresence returned error: %v", err)
	}
	if _, err := s.service.SetNotes(ctx, s.event.ID, s.carol.ID, "sick"); err != nil {
		t.Fatalf("SetNotes returned error: %v", err)
	}

	sheet, err := s.service.Sheet(ctx, s.event.ID)
	if err != nil {
		t.Fatalf("Sheet returned error: %v", err)
	}
	if len(sheet) != 3 {
		t.Fatalf("expected a row per eligible contact, got %d", len(sheet))
	}
	if sheet[0].Recorded || sheet[0].Present {
		t.Fatalf("expected Alice to default to absent without a record, got %+v", sheet[0])
	}
	if !sheet[1].Present || !sheet[1].Recorded {
		t.Fatalf("expected Bob present, got %+v", sheet[1])
	}
	if sheet[2].Present || sheet[2].Notes != "sick" {
		t.Fatalf("expected Carol absent with notes, got %+v", sheet[2])
	}

	summary, err := s.service.Summary(ctx, s.event.ID)
	if err != nil {
		t.Fatalf("Summary returned error: %v", err)
	}
	if summary.Eligible != 3 || summary.Present != 1 || summary.Absent != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestAttendanceService_EventWithoutGroups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newAttendanceScenario(t)

	lonely := testfixtures.NewEventFixture().Persistence()
	testfixtures.Seed(t, s.store, nil, nil, []persistence.Event{lonely})

	eligible, err := s.service.EligibleContacts(ctx, lonely.ID)
	if err != nil {
		t.Fatalf("EligibleContacts returned error: %v", err)
	}
	if len(eligible) != 0 {
		t.Fatalf("expected no eligible contacts, got %+v", eligible)
	}
}
