package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/contacts"
	"github.com/example/attendance-tracker/internal/testfixtures"
)

func TestContactService_Sync(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testfixtures.NewMemoryStore(t)
	clock := testfixtures.NewClock(time.Time{})
	service := testfixtures.NewServiceFactory(testfixtures.WithClock(clock)).
		NewContactService(testfixtures.ContactServiceDeps{Contacts: store})

	first, err := service.Sync(ctx, []contacts.ProviderContact{
		{Name: "Alice", PhoneNumber: "+1 (555) 010-0001"},
		{Name: "", PhoneNumber: "555-0102"},
		{Name: "No Number", PhoneNumber: "n/a"},
	})
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if first.Created != 2 || first.Skipped != 1 {
		t.Fatalf("unexpected first sync %+v", first)
	}

	unnamed, err := service.GetContact(ctx, contacts.ContactID("5550102"))
	if err != nil {
		t.Fatalf("GetContact returned error: %v", err)
	}
	if unnamed.Name != "5550102" {
		t.Fatalf("expected phone number as fallback name, got %q", unnamed.Name)
	}

	clock.Advance(time.Hour)
	second, err := service.Sync(ctx, []contacts.ProviderContact{
		{Name: "Alice Smith", PhoneNumber: "+15550100001"},
		{Name: "5550102", PhoneNumber: "555 0102"},
	})
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if second.Updated != 1 || second.Unchanged != 1 || second.Created != 0 {
		t.Fatalf("unexpected second sync %+v", second)
	}

	alice, err := service.GetContact(ctx, contacts.ContactID("+15550100001"))
	if err != nil {
		t.Fatalf("GetContact returned error: %v", err)
	}
	if alice.Name != "Alice Smith" || !alice.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected renamed contact, got %+v", alice)
	}

	all, err := service.ListContacts(ctx)
	if err != nil {
		t.Fatalf("ListContacts returned error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected sync never to delete, got %d contacts", len(all))
	}
}

func TestContactService_SyncFrom(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testfixtures.NewMemoryStore(t)
	service := testfixtures.NewServiceFactory().NewContactService(testfixtures.ContactServiceDeps{Contacts: store})

	provider := contacts.StaticProvider{
		testfixtures.NewContactFixture().Provider(),
		testfixtures.NewContactFixture().Provider(),
	}
	result, err := service.SyncFrom(ctx, provider)
	if err != nil {
		t.Fatalf("SyncFrom returned error: %v", err)
	}
	if result.Created != 2 {
		t.Fatalf("expected two created contacts, got %+v", result)
	}

	if _, err := service.SyncFrom(ctx, nil); err == nil {
		t.Fatal("expected an error without a provider")
	}
}

func TestContactService_AddUpdateDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testfixtures.NewMemoryStore(t)
	service := testfixtures.NewServiceFactory().NewContactService(testfixtures.ContactServiceDeps{Contacts: store})

	fixture := testfixtures.NewContactFixture(testfixtures.WithContactName("Dana"))
	added, err := service.AddContact(ctx, fixture.Input())
	if err != nil {
		t.Fatalf("AddContact returned error: %v", err)
	}
	if added.ID != fixture.ID() {
		t.Fatalf("expected id derived from phone, got %q", added.ID)
	}

	if _, err := service.AddContact(ctx, fixture.Input()); !errors.Is(err, application.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	var vErr *application.ValidationError
	if _, err := service.AddContact(ctx, application.ContactInput{Name: " ", PhoneNumber: "none"}); !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := vErr.FieldErrors["name"]; !ok {
		t.Fatalf("expected name error, got %v", vErr.FieldErrors)
	}
	if _, ok := vErr.FieldErrors["phone_number"]; !ok {
		t.Fatalf("expected phone_number error, got %v", vErr.FieldErrors)
	}

	updated, err := service.UpdateContact(ctx, added.ID, application.ContactInput{Name: "Dana Scully", PhoneNumber: added.PhoneNumber})
	if err != nil {
		t.Fatalf("UpdateContact returned error: %v", err)
	}
	if updated.ID != added.ID || updated.Name != "Dana Scully" {
		t.Fatalf("expected a rename under the same id, got %+v", updated)
	}

	if _, err := service.UpdateContact(ctx, "missing", fixture.Input()); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := service.DeleteContact(ctx, added.ID); err != nil {
		t.Fatalf("DeleteContact returned error: %v", err)
	}
	if err := service.DeleteContact(ctx, added.ID); !errors.Is(err, application.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestContactService_UpdateKeepsPhoneToIDMapping(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := testfixtures.NewMemoryStore(t)
	service := testfixtures.NewServiceFactory().NewContactService(testfixtures.ContactServiceDeps{Contacts: store})

	added, err := service.AddContact(ctx, application.ContactInput{Name: "Dana", PhoneNumber: "+1 555 000 1111"})
	if err != nil {
		t.Fatalf("AddContact returned error: %v", err)
	}

	_, err = service.UpdateContact(ctx, added.ID, application.ContactInput{Name: "Dana", PhoneNumber: "+1 555 999 0000"})
	var vErr *application.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := vErr.FieldErrors["phone_number"]; !ok {
		t.Fatalf("expected phone_number error, got %v", vErr.FieldErrors)
	}

	// Formatting differences normalize to the same number and are accepted.
	if _, err := service.UpdateContact(ctx, added.ID, application.ContactInput{Name: "Dana", PhoneNumber: "+1 (555) 000-1111"}); err != nil {
		t.Fatalf("UpdateContact returned error: %v", err)
	}

	if err := service.DeleteContact(ctx, added.ID); err != nil {
		t.Fatalf("DeleteContact returned error: %v", err)
	}
	if _, err := service.AddContact(ctx, application.ContactInput{Name: "Dana", PhoneNumber: "+1 555 999 0000"}); err != nil {
		t.Fatalf("AddContact returned error: %v", err)
	}
	result, err := service.Sync(ctx, []contacts.ProviderContact{{Name: "Dana", PhoneNumber: "+1 555 999 0000"}})
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if result.Created != 0 {
		t.Fatalf("expected the new number to map onto the existing contact, got %+v", result)
	}

	list, err := service.ListContacts(ctx)
	if err != nil {
		t.Fatalf("ListContacts returned error: %v", err)
	}
	if len(list) != 1 || list[0].ID != contacts.ContactID("+15559990000") {
		t.Fatalf("expected exactly one contact keyed by the new number, got %+v", list)
	}
}
