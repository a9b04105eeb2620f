package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/attendance-tracker/internal/persistence"
)

const attendanceColumns = "event_id, contact_id, is_present, notes, updated_at"

// AttendanceRepository implements persistence.AttendanceRepository.
type AttendanceRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewAttendanceRepository creates a new attendance repository.
func NewAttendanceRepository(pool *ConnectionPool, retry *RetryHelper) *AttendanceRepository {
	return &AttendanceRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  retry,
	}
}

// GetAttendance returns the record for the pair or ErrNotFound.
func (r *AttendanceRepository) GetAttendance(ctx context.Context, eventID, contactID string) (persistence.AttendanceRecord, error) {
	row := r.helper.QueryRow(ctx,
		"SELECT "+attendanceColumns+" FROM attendance_records WHERE event_id = ? AND contact_id = ?",
		eventID, contactID,
	)
	record, err := scanAttendance(row)
	if err != nil {
		return persistence.AttendanceRecord{}, r.mapper.MapError(err)
	}
	return record, nil
}

// SetAttendancePresence upserts the presence flag, leaving notes untouched.
func (r *AttendanceRepository) SetAttendancePresence(ctx context.Context, eventID, contactID string, present bool, at time.Time) (persistence.AttendanceRecord, error) {
	query := `
		INSERT INTO attendance_records (event_id, contact_id, is_present, notes, updated_at)
		VALUES (?, ?, ?, '', ?)
		ON CONFLICT (event_id, contact_id) DO UPDATE SET
			is_present = excluded.is_present,
			updated_at = excluded.updated_at
	`
	return r.upsert(ctx, eventID, contactID, query, eventID, contactID, present, formatTimestamp(at))
}

// SetAttendanceNotes upserts the notes, leaving the presence flag untouched.
func (r *AttendanceRepository) SetAttendanceNotes(ctx context.Context, eventID, contactID, notes string, at time.Time) (persistence.AttendanceRecord, error) {
	query := `
		INSERT INTO attendance_records (event_id, contact_id, is_present, notes, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (event_id, contact_id) DO UPDATE SET
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`
	return r.upsert(ctx, eventID, contactID, query, eventID, contactID, false, notes, formatTimestamp(at))
}

func (r *AttendanceRepository) upsert(ctx context.Context, eventID, contactID, query string, args ...any) (persistence.AttendanceRecord, error) {
	if eventID == "" || contactID == "" {
		return persistence.AttendanceRecord{}, persistence.ErrConstraintViolation
	}

	var record persistence.AttendanceRecord
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := r.helper.ExecTx(ctx, tx, query, args...); err != nil {
				return err
			}
			row := r.helper.QueryRowTx(ctx, tx,
				"SELECT "+attendanceColumns+" FROM attendance_records WHERE event_id = ? AND contact_id = ?",
				eventID, contactID,
			)
			var err error
			record, err = scanAttendance(row)
			return err
		})
	})
	if err != nil {
		return persistence.AttendanceRecord{}, err
	}
	return record, nil
}

// ListAttendanceForEvent returns the event's records ordered by contact id.
func (r *AttendanceRepository) ListAttendanceForEvent(ctx context.Context, eventID string) ([]persistence.AttendanceRecord, error) {
	return r.queryAttendance(ctx,
		"SELECT "+attendanceColumns+" FROM attendance_records WHERE event_id = ? ORDER BY contact_id",
		eventID,
	)
}

// ListAttendanceForContact returns the contact's records ordered by event id.
func (r *AttendanceRepository) ListAttendanceForContact(ctx context.Context, contactID string) ([]persistence.AttendanceRecord, error) {
	return r.queryAttendance(ctx,
		"SELECT "+attendanceColumns+" FROM attendance_records WHERE contact_id = ? ORDER BY event_id",
		contactID,
	)
}

func (r *AttendanceRepository) queryAttendance(ctx context.Context, query string, args ...any) ([]persistence.AttendanceRecord, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	records := make([]persistence.AttendanceRecord, 0)
	for rows.Next() {
		record, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return records, nil
}

func scanAttendance(scanner rowScanner) (persistence.AttendanceRecord, error) {
	var record persistence.AttendanceRecord
	var updatedAt string

	if err := scanner.Scan(&record.EventID, &record.ContactID, &record.Present, &record.Notes, &updatedAt); err != nil {
		return persistence.AttendanceRecord{}, err
	}

	var err error
	if record.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.AttendanceRecord{}, err
	}
	return record, nil
}
