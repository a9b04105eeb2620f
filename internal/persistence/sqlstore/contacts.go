package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/attendance-tracker/internal/persistence"
)

const contactColumns = "id, name, phone_number, created_at, updated_at"

// ContactRepository implements persistence.ContactRepository.
type ContactRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewContactRepository creates a new contact repository.
func NewContactRepository(pool *ConnectionPool, retry *RetryHelper) *ContactRepository {
	return &ContactRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  retry,
	}
}

// SaveContact inserts a contact or replaces the row with the same id.
func (r *ContactRepository) SaveContact(ctx context.Context, contact persistence.Contact) error {
	if contact.ID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO contacts (id, name, phone_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			phone_number = excluded.phone_number,
			updated_at = excluded.updated_at
	`

	return r.retry.WithRetry(ctx, func() error {
		_, err := r.helper.Exec(ctx, query,
			contact.ID,
			contact.Name,
			contact.PhoneNumber,
			formatTimestamp(contact.CreatedAt),
			formatTimestamp(contact.UpdatedAt),
		)
		return err
	})
}

// UpdateContact updates an existing contact.
func (r *ContactRepository) UpdateContact(ctx context.Context, contact persistence.Contact) error {
	query := `
		UPDATE contacts
		SET name = ?, phone_number = ?, updated_at = ?
		WHERE id = ?
	`

	return r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, query,
			contact.Name,
			contact.PhoneNumber,
			formatTimestamp(contact.UpdatedAt),
			contact.ID,
		)
		if err != nil {
			return err
		}
		return requireAffected(result)
	})
}

// GetContact retrieves a contact by ID.
func (r *ContactRepository) GetContact(ctx context.Context, id string) (persistence.Contact, error) {
	if id == "" {
		return persistence.Contact{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, "SELECT "+contactColumns+" FROM contacts WHERE id = ?", id)
	contact, err := scanContact(row)
	if err != nil {
		return persistence.Contact{}, r.mapper.MapError(err)
	}
	return contact, nil
}

// GetContactsByIDs resolves ids in order, dropping unknown and repeated ids.
func (r *ContactRepository) GetContactsByIDs(ctx context.Context, ids []string) ([]persistence.Contact, error) {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return []persistence.Contact{}, nil
	}

	query := "SELECT " + contactColumns + " FROM contacts WHERE id IN (" + placeholders(len(ids)) + ")"
	rows, err := r.helper.Query(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	byID := make(map[string]persistence.Contact, len(ids))
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		byID[contact.ID] = contact
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	contacts := make([]persistence.Contact, 0, len(byID))
	for _, id := range ids {
		if contact, ok := byID[id]; ok {
			contacts = append(contacts, contact)
		}
	}
	return contacts, nil
}

// ListContacts returns all contacts ordered by name.
func (r *ContactRepository) ListContacts(ctx context.Context) ([]persistence.Contact, error) {
	rows, err := r.helper.Query(ctx, "SELECT "+contactColumns+" FROM contacts ORDER BY name, id")
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	contacts := make([]persistence.Contact, 0)
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return contacts, nil
}

// DeleteContact removes a contact, its attendance records and its group
// memberships in one transaction.
func (r *ContactRepository) DeleteContact(ctx context.Context, id string) error {
	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			var exists string
			err := r.helper.QueryRowTx(ctx, tx, "SELECT id FROM contacts WHERE id = ?", id).Scan(&exists)
			if err != nil {
				return err
			}

			if _, err := r.helper.ExecTx(ctx, tx, "DELETE FROM attendance_records WHERE contact_id = ?", id); err != nil {
				return err
			}

			if err := r.removeFromGroups(ctx, tx, id); err != nil {
				return err
			}

			_, err = r.helper.ExecTx(ctx, tx, "DELETE FROM contacts WHERE id = ?", id)
			return err
		})
	})
}

func (r *ContactRepository) removeFromGroups(ctx context.Context, tx *sql.Tx, contactID string) error {
	rows, err := r.helper.QueryTx(ctx, tx, r.pool.forUpdate("SELECT id, contact_ids FROM contact_groups"))
	if err != nil {
		return err
	}

	updates := make(map[string][]string)
	for rows.Next() {
		var groupID, encoded string
		if err := rows.Scan(&groupID, &encoded); err != nil {
			rows.Close()
			return err
		}
		members, err := decodeIDs(encoded)
		if err != nil {
			rows.Close()
			return err
		}
		remaining := removeString(members, contactID)
		if len(remaining) != len(members) {
			updates[groupID] = remaining
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for groupID, members := range updates {
		encoded, err := encodeIDs(members)
		if err != nil {
			return err
		}
		if _, err := r.helper.ExecTx(ctx, tx, "UPDATE contact_groups SET contact_ids = ? WHERE id = ?", encoded, groupID); err != nil {
			return err
		}
	}
	return nil
}

func scanContact(scanner rowScanner) (persistence.Contact, error) {
	var contact persistence.Contact
	var createdAt, updatedAt string

	if err := scanner.Scan(&contact.ID, &contact.Name, &contact.PhoneNumber, &createdAt, &updatedAt); err != nil {
		return persistence.Contact{}, err
	}

	var err error
	if contact.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.Contact{}, err
	}
	if contact.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.Contact{}, err
	}
	return contact, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
