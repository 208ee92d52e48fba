package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"towtrace-backend/internal/hos"
	"towtrace-backend/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const intervalColumns = `id, driver_id, vehicle_id, device_id, tenant_id, status,
	start_time, end_time, duration_minutes, created_at`

// IntervalStore is the Postgres implementation of hos.IntervalStore
type IntervalStore struct {
	db *sqlx.DB
}

func NewIntervalStore(db *sqlx.DB) *IntervalStore {
	return &IntervalStore{db: db}
}

// GetOpenInterval returns the driver's open interval, nil if none
func (s *IntervalStore) GetOpenInterval(ctx context.Context, driverID string) (*models.DutyInterval, error) {
	var interval models.DutyInterval
	query := `SELECT ` + intervalColumns + ` FROM duty_status_intervals
	          WHERE driver_id = $1 AND end_time IS NULL`

	err := s.db.GetContext(ctx, &interval, query, driverID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("failed to get open interval", err)
	}
	return &interval, nil
}

// ApplyTransition closes the previous interval (if any) and opens the next
// one in a single transaction. The close only matches a row that is still
// open, and the partial unique index rejects a second open row.
func (s *IntervalStore) ApplyTransition(ctx context.Context, t hos.Transition) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if t.Close != nil {
		closeQuery := `UPDATE duty_status_intervals
		               SET end_time = $1, duration_minutes = $2
		               WHERE id = $3 AND driver_id = $4 AND end_time IS NULL`

		res, err := tx.ExecContext(ctx, closeQuery, t.Close.EndTime, t.Close.DurationMinutes, t.Close.IntervalID, t.DriverID)
		if err != nil {
			return storageError("failed to close interval", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return storageError("failed to read close result", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: interval %s is no longer open", hos.ErrConcurrencyConflict, t.Close.IntervalID)
		}
	}

	openQuery := `INSERT INTO duty_status_intervals (
			id, driver_id, vehicle_id, device_id, tenant_id, status, start_time, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = tx.ExecContext(ctx, openQuery,
		t.Open.ID,
		t.Open.DriverID,
		t.Open.VehicleID,
		t.Open.DeviceID,
		t.Open.TenantID,
		t.Open.Status,
		t.Open.StartTime,
		t.Open.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: driver %s already has an open interval", hos.ErrConcurrencyConflict, t.DriverID)
		}
		return storageError("failed to open interval", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) || isSerializationFailure(err) {
			return fmt.Errorf("%w: %v", hos.ErrConcurrencyConflict, err)
		}
		return storageError("failed to commit transition", err)
	}
	return nil
}

// ListClosedIntervals returns closed intervals starting in [from, to), oldest first
func (s *IntervalStore) ListClosedIntervals(ctx context.Context, driverID string, from, to time.Time) ([]models.DutyInterval, error) {
	intervals := []models.DutyInterval{}
	query := `SELECT ` + intervalColumns + ` FROM duty_status_intervals
	          WHERE driver_id = $1
	          AND end_time IS NOT NULL
	          AND start_time >= $2 AND start_time < $3
	          ORDER BY start_time ASC`

	if err := s.db.SelectContext(ctx, &intervals, query, driverID, from.UnixMilli(), to.UnixMilli()); err != nil {
		return nil, storageError("failed to list closed intervals", err)
	}
	return intervals, nil
}

// ListIntervals returns open and closed intervals, newest first
func (s *IntervalStore) ListIntervals(ctx context.Context, q hos.IntervalQuery) ([]models.DutyInterval, error) {
	conditions := []string{"driver_id = $1"}
	args := []interface{}{q.DriverID}

	if q.TenantID != "" {
		args = append(args, q.TenantID)
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if q.From != nil {
		args = append(args, q.From.UnixMilli())
		conditions = append(conditions, fmt.Sprintf("start_time >= $%d", len(args)))
	}
	if q.To != nil {
		args = append(args, q.To.UnixMilli())
		conditions = append(conditions, fmt.Sprintf("start_time < $%d", len(args)))
	}

	query := `SELECT ` + intervalColumns + ` FROM duty_status_intervals
	          WHERE ` + strings.Join(conditions, " AND ") + `
	          ORDER BY start_time DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	intervals := []models.DutyInterval{}
	if err := s.db.SelectContext(ctx, &intervals, query, args...); err != nil {
		return nil, storageError("failed to list intervals", err)
	}
	return intervals, nil
}

func storageError(msg string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%s: %w: %v", msg, hos.ErrStorage, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "40001"
}
