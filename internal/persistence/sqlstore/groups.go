package sqlstore

import (
	"context"
	"database/sql"

	"github.com/example/attendance-tracker/internal/persistence"
)

const groupColumns = "id, name, description, contact_ids, created_at, updated_at"

// GroupRepository implements persistence.GroupRepository.
type GroupRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewGroupRepository creates a new contact group repository.
func NewGroupRepository(pool *ConnectionPool, retry *RetryHelper) *GroupRepository {
	return &GroupRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  retry,
	}
}

// SaveGroup inserts a group or replaces the row with the same id.
func (r *GroupRepository) SaveGroup(ctx context.Context, group persistence.ContactGroup) error {
	if group.ID == "" {
		return persistence.ErrConstraintViolation
	}

	members, err := encodeIDs(group.ContactIDs)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO contact_groups (id, name, description, contact_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			contact_ids = excluded.contact_ids,
			updated_at = excluded.updated_at
	`

	return r.retry.WithRetry(ctx, func() error {
		_, err := r.helper.Exec(ctx, query,
			group.ID,
			group.Name,
			group.Description,
			members,
			formatTimestamp(group.CreatedAt),
			formatTimestamp(group.UpdatedAt),
		)
		return err
	})
}

// UpdateGroup updates an existing group.
func (r *GroupRepository) UpdateGroup(ctx context.Context, group persistence.ContactGroup) error {
	members, err := encodeIDs(group.ContactIDs)
	if err != nil {
		return err
	}

	query := `
		UPDATE contact_groups
		SET name = ?, description = ?, contact_ids = ?, updated_at = ?
		WHERE id = ?
	`

	return r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, query,
			group.Name,
			group.Description,
			members,
			formatTimestamp(group.UpdatedAt),
			group.ID,
		)
		if err != nil {
			return err
		}
		return requireAffected(result)
	})
}

// GetGroup retrieves a group by ID.
func (r *GroupRepository) GetGroup(ctx context.Context, id string) (persistence.ContactGroup, error) {
	if id == "" {
		return persistence.ContactGroup{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, "SELECT "+groupColumns+" FROM contact_groups WHERE id = ?", id)
	group, err := scanGroup(row)
	if err != nil {
		return persistence.ContactGroup{}, r.mapper.MapError(err)
	}
	return group, nil
}

// GetGroupsByIDs resolves ids in order, dropping unknown and repeated ids.
func (r *GroupRepository) GetGroupsByIDs(ctx context.Context, ids []string) ([]persistence.ContactGroup, error) {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return []persistence.ContactGroup{}, nil
	}

	query := "SELECT " + groupColumns + " FROM contact_groups WHERE id IN (" + placeholders(len(ids)) + ")"
	groups, err := r.queryGroups(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]persistence.ContactGroup, len(groups))
	for _, group := range groups {
		byID[group.ID] = group
	}

	ordered := make([]persistence.ContactGroup, 0, len(groups))
	for _, id := range ids {
		if group, ok := byID[id]; ok {
			ordered = append(ordered, group)
		}
	}
	return ordered, nil
}

// ListGroups returns all groups ordered by name.
func (r *GroupRepository) ListGroups(ctx context.Context) ([]persistence.ContactGroup, error) {
	return r.queryGroups(ctx, "SELECT "+groupColumns+" FROM contact_groups ORDER BY name, id")
}

// DeleteGroup removes a group and strips its id from every event in one
// transaction.
func (r *GroupRepository) DeleteGroup(ctx context.Context, id string) error {
	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			var exists string
			if err := r.helper.QueryRowTx(ctx, tx, "SELECT id FROM contact_groups WHERE id = ?", id).Scan(&exists); err != nil {
				return err
			}

			rows, err := r.helper.QueryTx(ctx, tx, r.pool.forUpdate("SELECT id, contact_group_ids FROM events"))
			if err != nil {
				return err
			}

			updates := make(map[string][]string)
			for rows.Next() {
				var eventID, encoded string
				if err := rows.Scan(&eventID, &encoded); err != nil {
					rows.Close()
					return err
				}
				groupIDs, err := decodeIDs(encoded)
				if err != nil {
					rows.Close()
					return err
				}
				remaining := removeString(groupIDs, id)
				if len(remaining) != len(groupIDs) {
					updates[eventID] = remaining
				}
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return err
			}
			rows.Close()

			for eventID, groupIDs := range updates {
				encoded, err := encodeIDs(groupIDs)
				if err != nil {
					return err
				}
				if _, err := r.helper.ExecTx(ctx, tx, "UPDATE events SET contact_group_ids = ? WHERE id = ?", encoded, eventID); err != nil {
					return err
				}
			}

			_, err = r.helper.ExecTx(ctx, tx, "DELETE FROM contact_groups WHERE id = ?", id)
			return err
		})
	})
}

func (r *GroupRepository) queryGroups(ctx context.Context, query string, args ...any) ([]persistence.ContactGroup, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	groups := make([]persistence.ContactGroup, 0)
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return groups, nil
}

func scanGroup(scanner rowScanner) (persistence.ContactGroup, error) {
	var group persistence.ContactGroup
	var members, createdAt, updatedAt string

	if err := scanner.Scan(&group.ID, &group.Name, &group.Description, &members, &createdAt, &updatedAt); err != nil {
		return persistence.ContactGroup{}, err
	}

	var err error
	if group.ContactIDs, err = decodeIDs(members); err != nil {
		return persistence.ContactGroup{}, err
	}
	if group.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.ContactGroup{}, err
	}
	if group.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.ContactGroup{}, err
	}
	return group, nil
}
