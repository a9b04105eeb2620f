package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/attendance-tracker/internal/contacts"
	"github.com/example/attendance-tracker/internal/logging"
	"github.com/example/attendance-tracker/internal/persistence"
)

// ContactStore captures the persistence operations needed by the contact service.
type ContactStore interface {
	SaveContact(ctx context.Context, contact persistence.Contact) error
	UpdateContact(ctx context.Context, contact persistence.Contact) error
	GetContact(ctx context.Context, id string) (persistence.Contact, error)
	ListContacts(ctx context.Context) ([]persistence.Contact, error)
	DeleteContact(ctx context.Context, id string) error
}

// ContactService manages contacts and merges address book entries into the store.
type ContactService struct {
	contacts ContactStore
	now      func() time.Time
	logger   *slog.Logger
}

// NewContactService constructs a contact service.
func NewContactService(store ContactStore, now func() time.Time) *ContactService {
	return NewContactServiceWithLogger(store, now, nil)
}

// NewContactServiceWithLogger constructs a contact service with a specified logger.
func NewContactServiceWithLogger(store ContactStore, now func() time.Time, logger *slog.Logger) *ContactService {
	if now == nil {
		now = time.Now
	}
	return &ContactService{contacts: store, now: now, logger: logging.OrDefault(logger)}
}

func (s *ContactService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ContactService", operation, attrs...)
}

// Sync merges provider entries into the store. Unknown numbers create
// contacts, changed names are updated and nothing is ever deleted. Entries
// without a usable phone number are skipped.
func (s *ContactService) Sync(ctx context.Context, entries []contacts.ProviderContact) (result SyncResult, err error) {
	if s == nil {
		err = fmt.Errorf("ContactService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Sync", "entries", len(entries))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "contact sync failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "contacts synced",
			"created", result.Created,
			"updated", result.Updated,
			"unchanged", result.Unchanged,
			"skipped", result.Skipped,
		)
	}()

	for _, entry := range entries {
		if err = ctx.Err(); err != nil {
			return
		}

		phone := contacts.NormalizePhone(entry.PhoneNumber)
		name := strings.TrimSpace(entry.Name)
		if phone == "" {
			result.Skipped++
			continue
		}
		if name == "" {
			name = phone
		}
		id := contacts.ContactID(phone)

		existing, getErr := s.contacts.GetContact(ctx, id)
		switch {
		case errors.Is(getErr, persistence.ErrNotFound):
			now := s.now()
			contact := persistence.Contact{ID: id, Name: name, PhoneNumber: phone, CreatedAt: now, UpdatedAt: now}
			if err = s.contacts.SaveContact(ctx, contact); err != nil {
				err = mapRepoError(err)
				return
			}
			result.Created++
		case getErr != nil:
			err = mapRepoError(getErr)
			return
		case existing.Name != name:
			existing.Name = name
			existing.UpdatedAt = s.now()
			if err = s.contacts.UpdateContact(ctx, existing); err != nil {
				err = mapRepoError(err)
				return
			}
			result.Updated++
		default:
			result.Unchanged++
		}
	}
	return
}

// SyncFrom fetches entries from provider and merges them.
func (s *ContactService) SyncFrom(ctx context.Context, provider contacts.Provider) (SyncResult, error) {
	if provider == nil {
		return SyncResult{}, fmt.Errorf("contact provider not configured")
	}
	entries, err := provider.Contacts(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	return s.Sync(ctx, entries)
}

// AddContact stores a manually entered contact. Its id is derived from the
// phone number like synced contacts.
func (s *ContactService) AddContact(ctx context.Context, input ContactInput) (contact persistence.Contact, err error) {
	if s == nil {
		err = fmt.Errorf("ContactService is nil")
		return
	}

	logger := s.loggerWith(ctx, "AddContact")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add contact", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("contact_id", contact.ID).InfoContext(ctx, "contact added")
	}()

	name, phone, vErr := validateContactInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	id := contacts.ContactID(phone)
	if _, getErr := s.contacts.GetContact(ctx, id); getErr == nil {
		err = ErrAlreadyExists
		return
	} else if !errors.Is(getErr, persistence.ErrNotFound) {
		err = mapRepoError(getErr)
		return
	}

	now := s.now()
	contact = persistence.Contact{ID: id, Name: name, PhoneNumber: phone, CreatedAt: now, UpdatedAt: now}
	if err = s.contacts.SaveContact(ctx, contact); err != nil {
		err = mapRepoError(err)
	}
	return
}

// UpdateContact renames a contact. The id is derived from the phone number, so
// the number itself cannot change: delete the contact and add it again.
func (s *ContactService) UpdateContact(ctx context.Context, id string, input ContactInput) (contact persistence.Contact, err error) {
	if s == nil {
		err = fmt.Errorf("ContactService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateContact", "contact_id", id)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update contact", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "contact updated")
	}()

	name, phone, vErr := validateContactInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	contact, err = s.contacts.GetContact(ctx, id)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	if phone != contact.PhoneNumber {
		err = fieldError("phone_number", "phone number cannot change; delete the contact and add it again")
		return
	}

	contact.Name = name
	contact.UpdatedAt = s.now()
	if err = s.contacts.UpdateContact(ctx, contact); err != nil {
		err = mapRepoError(err)
	}
	return
}

// DeleteContact removes the contact, its attendance records and its group
// memberships.
func (s *ContactService) DeleteContact(ctx context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("ContactService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteContact", "contact_id", id)
	if err := s.contacts.DeleteContact(ctx, id); err != nil {
		err = mapRepoError(err)
		logger.ErrorContext(ctx, "failed to delete contact", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "contact deleted")
	return nil
}

// GetContact returns a contact by id.
func (s *ContactService) GetContact(ctx context.Context, id string) (persistence.Contact, error) {
	if s == nil {
		return persistence.Contact{}, fmt.Errorf("ContactService is nil")
	}
	contact, err := s.contacts.GetContact(ctx, id)
	if err != nil {
		return persistence.Contact{}, mapRepoError(err)
	}
	return contact, nil
}

// ListContacts returns every stored contact ordered by name.
func (s *ContactService) ListContacts(ctx context.Context) ([]persistence.Contact, error) {
	if s == nil {
		return nil, fmt.Errorf("ContactService is nil")
	}
	list, err := s.contacts.ListContacts(ctx)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return list, nil
}

func validateContactInput(input ContactInput) (string, string, *ValidationError) {
	vErr := &ValidationError{}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		vErr.add("name", "name is required")
	}

	phone := contacts.NormalizePhone(input.PhoneNumber)
	if phone == "" {
		vErr.add("phone_number", "phone number must contain digits")
	}

	return name, phone, vErr
}
