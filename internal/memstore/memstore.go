// Package memstore is an in-process implementation of the hos storage
// contracts, used for local runs without Postgres and in tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"towtrace-backend/internal/hos"
	"towtrace-backend/internal/models"
)

// Store keeps every table in memory behind one lock
type Store struct {
	mu        sync.RWMutex
	intervals map[string]*models.DutyInterval // id -> interval
	byDriver  map[string][]string             // driver -> interval ids in insert order
	devices   map[string]models.DeviceAssignment
	drivers   map[string]models.Driver
	lastSeen  map[string]time.Time
	positions map[string]models.VehiclePosition
	events    []models.TelemetryEvent
}

func New() *Store {
	return &Store{
		intervals: make(map[string]*models.DutyInterval),
		byDriver:  make(map[string][]string),
		devices:   make(map[string]models.DeviceAssignment),
		drivers:   make(map[string]models.Driver),
		lastSeen:  make(map[string]time.Time),
		positions: make(map[string]models.VehiclePosition),
	}
}

// AddDriver registers a driver in the directory
func (s *Store) AddDriver(d models.Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drivers[d.ID] = d
}

// AddDevice registers a device assignment
func (s *Store) AddDevice(a models.DeviceAssignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[a.DeviceID] = a
}

// GetOpenInterval implements hos.IntervalStore
func (s *Store) GetOpenInterval(ctx context.Context, driverID string) (*models.DutyInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if open := s.openLocked(driverID); open != nil {
		cp := *open
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) openLocked(driverID string) *models.DutyInterval {
	for _, id := range s.byDriver[driverID] {
		if interval := s.intervals[id]; interval.IsOpen() {
			return interval
		}
	}
	return nil
}

// ApplyTransition implements hos.IntervalStore. The close is conditional on
// the interval still being open; both writes happen under one lock.
func (s *Store) ApplyTransition(ctx context.Context, t hos.Transition) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", hos.ErrStorage, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	open := s.openLocked(t.DriverID)
	if t.Close != nil {
		if open == nil || open.ID != t.Close.IntervalID {
			return fmt.Errorf("%w: interval %s is no longer open", hos.ErrConcurrencyConflict, t.Close.IntervalID)
		}
		end := t.Close.EndTime
		duration := t.Close.DurationMinutes
		open.EndTime = &end
		open.DurationMinutes = &duration
	} else if open != nil {
		return fmt.Errorf("%w: driver %s already has open interval %s", hos.ErrConcurrencyConflict, t.DriverID, open.ID)
	}

	next := t.Open
	next.EndTime = nil
	next.DurationMinutes = nil
	s.intervals[next.ID] = &next
	s.byDriver[t.DriverID] = append(s.byDriver[t.DriverID], next.ID)
	return nil
}

// ListClosedIntervals implements hos.IntervalStore
func (s *Store) ListClosedIntervals(ctx context.Context, driverID string, from, to time.Time) ([]models.DutyInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fromMs, toMs := from.UnixMilli(), to.UnixMilli()
	result := []models.DutyInterval{}
	for _, id := range s.byDriver[driverID] {
		interval := s.intervals[id]
		if interval.IsOpen() || interval.StartTime < fromMs || interval.StartTime >= toMs {
			continue
		}
		result = append(result, *interval)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime < result[j].StartTime })
	return result, nil
}

// ListIntervals implements hos.IntervalStore
func (s *Store) ListIntervals(ctx context.Context, q hos.IntervalQuery) ([]models.DutyInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []models.DutyInterval{}
	for _, id := range s.byDriver[q.DriverID] {
		interval := s.intervals[id]
		if q.TenantID != "" && interval.TenantID != q.TenantID {
			continue
		}
		if q.From != nil && interval.StartTime < q.From.UnixMilli() {
			continue
		}
		if q.To != nil && interval.StartTime >= q.To.UnixMilli() {
			continue
		}
		result = append(result, *interval)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime > result[j].StartTime })
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

// ResolveDevice implements hos.DeviceResolver
func (s *Store) ResolveDevice(ctx context.Context, deviceID string) (*models.DeviceAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", hos.ErrDeviceNotFound, deviceID)
	}
	return &a, nil
}

// TouchDevice implements hos.DeviceActivityRecorder
func (s *Store) TouchDevice(ctx context.Context, deviceID string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.lastSeen[deviceID]; !ok || seenAt.After(prev) {
		s.lastSeen[deviceID] = seenAt
	}
	return nil
}

// UpsertVehiclePosition implements hos.DeviceActivityRecorder. Older
// positions never replace newer ones.
func (s *Store) UpsertVehiclePosition(ctx context.Context, pos models.VehiclePosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.positions[pos.VehicleID]; ok && prev.Timestamp > pos.Timestamp {
		return nil
	}
	s.positions[pos.VehicleID] = pos
	return nil
}

// LastSeen returns when a device last reported
func (s *Store) LastSeen(deviceID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lastSeen[deviceID]
	return t, ok
}

// VehiclePosition returns the last known position of a vehicle
func (s *Store) VehiclePosition(vehicleID string) (models.VehiclePosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[vehicleID]
	return p, ok
}

// RecordTelemetryEvent implements hos.AuditLog
func (s *Store) RecordTelemetryEvent(ctx context.Context, ev models.TelemetryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of the audit trail
func (s *Store) Events() []models.TelemetryEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.TelemetryEvent(nil), s.events...)
}

// GetDriver implements hos.DriverDirectory
func (s *Store) GetDriver(ctx context.Context, tenantID, driverID string) (*models.Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drivers[driverID]
	if !ok || (tenantID != "" && d.TenantID != tenantID) {
		return nil, fmt.Errorf("%w: %s", hos.ErrDriverNotFound, driverID)
	}
	return &d, nil
}

// ListFleetStatus implements hos.DriverDirectory
func (s *Store) ListFleetStatus(ctx context.Context, tenantID string) ([]models.FleetDriverStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []models.FleetDriverStatus{}
	for _, d := range s.drivers {
		if d.TenantID != tenantID {
			continue
		}
		row := models.FleetDriverStatus{
			DriverID:         d.ID,
			DriverName:       d.Name,
			CurrentVehicleID: d.CurrentVehicleID,
		}
		if open := s.openLocked(d.ID); open != nil {
			status := open.Status
			since := open.StartTime
			row.Status = &status
			row.StatusSince = &since
		}
		result = append(result, row)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DriverName < result[j].DriverName })
	return result, nil
}
