package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/attendance-tracker/internal/persistence"
)

const eventColumns = "id, name, description, event_date, event_time, contact_group_ids, is_recurring, day_of_week, start_date, end_date, is_active, recurring_event_id, created_at, updated_at"

// EventRepository implements persistence.EventRepository.
type EventRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewEventRepository creates a new event repository.
func NewEventRepository(pool *ConnectionPool, retry *RetryHelper) *EventRepository {
	return &EventRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  retry,
	}
}

// SaveEvent inserts an event or replaces the row with the same id.
func (r *EventRepository) SaveEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" {
		return persistence.ErrConstraintViolation
	}
	args, err := eventArgs(event)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			event_date = excluded.event_date,
			event_time = excluded.event_time,
			contact_group_ids = excluded.contact_group_ids,
			is_recurring = excluded.is_recurring,
			day_of_week = excluded.day_of_week,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			is_active = excluded.is_active,
			recurring_event_id = excluded.recurring_event_id,
			updated_at = excluded.updated_at
	`

	return r.retry.WithRetry(ctx, func() error {
		_, err := r.helper.Exec(ctx, query, args...)
		return err
	})
}

// UpdateEvent updates an existing event.
func (r *EventRepository) UpdateEvent(ctx context.Context, event persistence.Event) error {
	args, err := eventArgs(event)
	if err != nil {
		return err
	}

	query := `
		UPDATE events
		SET name = ?, description = ?, event_date = ?, event_time = ?, contact_group_ids = ?,
			is_recurring = ?, day_of_week = ?, start_date = ?, end_date = ?, is_active = ?,
			recurring_event_id = ?, updated_at = ?
		WHERE id = ?
	`
	// Skip id and created_at, then append id for the WHERE clause.
	updateArgs := append(append([]any{}, args[1:12]...), args[13], event.ID)

	return r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, query, updateArgs...)
		if err != nil {
			return err
		}
		return requireAffected(result)
	})
}

// GetEvent retrieves an event by ID.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	if id == "" {
		return persistence.Event{}, persistence.ErrNotFound
	}

	row := r.helper.QueryRow(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	event, err := scanEvent(row)
	if err != nil {
		return persistence.Event{}, r.mapper.MapError(err)
	}
	return event, nil
}

// ListEvents returns events matching filter ordered by date, time and id.
// Templates sort ahead of dated events.
func (r *EventRepository) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 6)

	if len(filter.Kinds) > 0 {
		kindClauses := make([]string, 0, len(filter.Kinds))
		for _, kind := range filter.Kinds {
			switch kind {
			case persistence.EventKindTemplate:
				kindClauses = append(kindClauses, "is_recurring = ?")
				args = append(args, true)
			case persistence.EventKindGenerated:
				kindClauses = append(kindClauses, "(is_recurring = ? AND recurring_event_id IS NOT NULL)")
				args = append(args, false)
			case persistence.EventKindRegular:
				kindClauses = append(kindClauses, "(is_recurring = ? AND recurring_event_id IS NULL)")
				args = append(args, false)
			}
		}
		if len(kindClauses) == 0 {
			return []persistence.Event{}, nil
		}
		clauses = append(clauses, "("+strings.Join(kindClauses, " OR ")+")")
	}
	if filter.RecurringEventID != "" {
		clauses = append(clauses, "recurring_event_id = ?")
		args = append(args, filter.RecurringEventID)
	}
	if filter.From != nil {
		clauses = append(clauses, "event_date >= ?")
		args = append(args, formatDate(*filter.From))
	}
	if filter.To != nil {
		clauses = append(clauses, "event_date <= ?")
		args = append(args, formatDate(*filter.To))
	}

	query := "SELECT " + eventColumns + " FROM events"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY COALESCE(event_date, ''), event_time, id"

	return r.queryEvents(ctx, query, args...)
}

// ListTemplates returns templates ordered by name, optionally only active ones.
func (r *EventRepository) ListTemplates(ctx context.Context, activeOnly bool) ([]persistence.Event, error) {
	query := "SELECT " + eventColumns + " FROM events WHERE is_recurring = ?"
	args := []any{true}
	if activeOnly {
		query += " AND is_active = ?"
		args = append(args, true)
	}
	query += " ORDER BY name, id"

	return r.queryEvents(ctx, query, args...)
}

// FindGeneratedInstance looks up the instance for templateID on date.
func (r *EventRepository) FindGeneratedInstance(ctx context.Context, templateID string, date time.Time) (persistence.Event, error) {
	row := r.helper.QueryRow(ctx,
		"SELECT "+eventColumns+" FROM events WHERE recurring_event_id = ? AND event_date = ?",
		templateID, formatDate(date),
	)
	event, err := scanEvent(row)
	if err != nil {
		return persistence.Event{}, r.mapper.MapError(err)
	}
	return event, nil
}

// InsertGeneratedInstance inserts event unless its template already has an
// instance on the same date. The unique (recurring_event_id, event_date)
// index arbitrates concurrent writers.
func (r *EventRepository) InsertGeneratedInstance(ctx context.Context, event persistence.Event) (persistence.Event, bool, error) {
	if event.ID == "" || !event.IsGeneratedFromRecurring() {
		return persistence.Event{}, false, persistence.ErrConstraintViolation
	}
	args, err := eventArgs(event)
	if err != nil {
		return persistence.Event{}, false, err
	}

	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (recurring_event_id, event_date) DO NOTHING
	`

	var stored persistence.Event
	var created bool
	err = r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			result, err := r.helper.ExecTx(ctx, tx, query, args...)
			if err != nil {
				return err
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return err
			}

			row := r.helper.QueryRowTx(ctx, tx,
				"SELECT "+eventColumns+" FROM events WHERE recurring_event_id = ? AND event_date = ?",
				event.RecurringEventID, formatDate(event.Date),
			)
			stored, err = scanEvent(row)
			if err != nil {
				return err
			}
			created = affected > 0
			return nil
		})
	})
	if err != nil {
		return persistence.Event{}, false, err
	}
	return stored, created, nil
}

// DeleteEvent removes an event and its attendance records in one transaction.
func (r *EventRepository) DeleteEvent(ctx context.Context, id string) error {
	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := r.helper.ExecTx(ctx, tx, "DELETE FROM attendance_records WHERE event_id = ?", id); err != nil {
				return err
			}
			result, err := r.helper.ExecTx(ctx, tx, "DELETE FROM events WHERE id = ?", id)
			if err != nil {
				return err
			}
			return requireAffected(result)
		})
	})
}

func (r *EventRepository) queryEvents(ctx context.Context, query string, args ...any) ([]persistence.Event, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	events := make([]persistence.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return events, nil
}

// eventArgs returns column values in eventColumns order.
func eventArgs(event persistence.Event) ([]any, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	groupIDs, err := encodeIDs(event.ContactGroupIDs)
	if err != nil {
		return nil, err
	}

	var (
		date      sql.NullString
		dayOfWeek sql.NullInt64
		startDate sql.NullString
		endDate   sql.NullString
		active    bool
	)
	if event.Recurrence != nil {
		dayOfWeek = sql.NullInt64{Int64: int64(event.Recurrence.DayOfWeek), Valid: true}
		startDate = sql.NullString{String: formatDate(event.Recurrence.StartDate), Valid: true}
		endDate = nullDate(event.Recurrence.EndDate)
		active = event.Recurrence.Active
	} else {
		date = nullDate(&event.Date)
	}

	return []any{
		event.ID,
		event.Name,
		event.Description,
		date,
		event.Time,
		groupIDs,
		event.Recurrence != nil,
		dayOfWeek,
		startDate,
		endDate,
		active,
		nullString(event.RecurringEventID),
		formatTimestamp(event.CreatedAt),
		formatTimestamp(event.UpdatedAt),
	}, nil
}

func scanEvent(scanner rowScanner) (persistence.Event, error) {
	var (
		event                          persistence.Event
		date, startDate, endDate, tmpl sql.NullString
		dayOfWeek                      sql.NullInt64
		groupIDs, createdAt, updatedAt string
		recurring, active              bool
	)

	err := scanner.Scan(
		&event.ID,
		&event.Name,
		&event.Description,
		&date,
		&event.Time,
		&groupIDs,
		&recurring,
		&dayOfWeek,
		&startDate,
		&endDate,
		&active,
		&tmpl,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Event{}, err
	}

	if event.ContactGroupIDs, err = decodeIDs(groupIDs); err != nil {
		return persistence.Event{}, err
	}
	if date.Valid {
		if event.Date, err = parseDate(date.String); err != nil {
			return persistence.Event{}, err
		}
	}
	if recurring {
		rec := &persistence.Recurrence{
			DayOfWeek: time.Weekday(dayOfWeek.Int64),
			Active:    active,
		}
		if rec.StartDate, err = parseDate(startDate.String); err != nil {
			return persistence.Event{}, err
		}
		if endDate.Valid {
			end, err := parseDate(endDate.String)
			if err != nil {
				return persistence.Event{}, err
			}
			rec.EndDate = &end
		}
		event.Recurrence = rec
	}
	if tmpl.Valid {
		event.RecurringEventID = tmpl.String
	}
	if event.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.Event{}, err
	}
	if event.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.Event{}, err
	}
	return event, nil
}
