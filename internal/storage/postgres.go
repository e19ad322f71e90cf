// Package storage implements engine.Store on Postgres via pgx. The store
// covers the exclusion-constraint backstop for allocation overlap; the
// application-level checks in the engine exist so most conflicts are caught
// with a readable error before the constraint ever fires.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/slotwise/bookd/internal/availability"
	"github.com/slotwise/bookd/internal/db"
	"github.com/slotwise/bookd/internal/engine"
	"github.com/slotwise/bookd/internal/events"
	"github.com/slotwise/bookd/internal/model"
	"github.com/slotwise/bookd/internal/otelx"
)

type Store struct {
	pool   *db.Pool
	outbox *events.Repository
}

var _ engine.Store = (*Store)(nil)

func New(pool *db.Pool, outbox *events.Repository) *Store {
	return &Store{pool: pool, outbox: outbox}
}

// querier is the common query surface of *pgxpool.Pool and pgx.Tx, so the
// read queries run identically inside and outside a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Store) InTx(ctx context.Context, fn func(tx engine.Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	if err := fn(&storeTx{q: pgtx, pgtx: pgtx, outbox: s.outbox}); err != nil {
		return mapError(err)
	}
	return mapError(pgtx.Commit(ctx))
}

// Pool-backed reads map errors at this boundary; transactional calls are
// mapped once in InTx instead.

func (s *Store) GetService(ctx context.Context, id string) (model.Service, error) {
	svc, err := getService(ctx, s.pool, id)
	return svc, mapError(err)
}

func (s *Store) GetRequirements(ctx context.Context, serviceID string) ([]model.ResourceRequirement, error) {
	reqs, err := getRequirements(ctx, s.pool, serviceID)
	return reqs, mapError(err)
}

func (s *Store) ListServices(ctx context.Context) ([]model.Service, error) {
	svcs, err := listServices(ctx, s.pool)
	return svcs, mapError(err)
}

func (s *Store) ListResources(ctx context.Context, f engine.ResourceFilter) ([]model.Resource, error) {
	rs, err := listResources(ctx, s.pool, f)
	return rs, mapError(err)
}

func (s *Store) FindAvailable(ctx context.Context, rt model.ResourceType, iv availability.Interval, limit int) ([]model.Resource, error) {
	rs, err := findAvailable(ctx, s.pool, rt, iv, limit)
	return rs, mapError(err)
}

func (s *Store) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := getAppointment(ctx, s.pool, id, false)
	return appt, mapError(err)
}

func (s *Store) ListAppointments(ctx context.Context, f engine.AppointmentFilter) ([]model.Appointment, error) {
	appts, err := listAppointments(ctx, s.pool, f)
	return appts, mapError(err)
}

func (s *Store) AllocationsForAppointment(ctx context.Context, appointmentID string) ([]model.Allocation, error) {
	allocs, err := allocationsForAppointment(ctx, s.pool, appointmentID)
	return allocs, mapError(err)
}

func (s *Store) AllocationsInRange(ctx context.Context, rt model.ResourceType, iv availability.Interval) ([]model.Allocation, error) {
	allocs, err := allocationsInRange(ctx, s.pool, rt, iv)
	return allocs, mapError(err)
}

// storeTx adapts one pgx transaction to engine.Tx.
type storeTx struct {
	q      querier
	pgtx   pgx.Tx
	outbox *events.Repository
}

var _ engine.Tx = (*storeTx)(nil)

func (t *storeTx) GetService(ctx context.Context, id string) (model.Service, error) {
	return getService(ctx, t.q, id)
}

func (t *storeTx) GetRequirements(ctx context.Context, serviceID string) ([]model.ResourceRequirement, error) {
	return getRequirements(ctx, t.q, serviceID)
}

func (t *storeTx) ListServices(ctx context.Context) ([]model.Service, error) {
	return listServices(ctx, t.q)
}

func (t *storeTx) ListResources(ctx context.Context, f engine.ResourceFilter) ([]model.Resource, error) {
	return listResources(ctx, t.q, f)
}

func (t *storeTx) FindAvailable(ctx context.Context, rt model.ResourceType, iv availability.Interval, limit int) ([]model.Resource, error) {
	return findAvailable(ctx, t.q, rt, iv, limit)
}

func (t *storeTx) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return getAppointment(ctx, t.q, id, false)
}

func (t *storeTx) ListAppointments(ctx context.Context, f engine.AppointmentFilter) ([]model.Appointment, error) {
	return listAppointments(ctx, t.q, f)
}

func (t *storeTx) AllocationsForAppointment(ctx context.Context, appointmentID string) ([]model.Allocation, error) {
	return allocationsForAppointment(ctx, t.q, appointmentID)
}

func (t *storeTx) AllocationsInRange(ctx context.Context, rt model.ResourceType, iv availability.Interval) ([]model.Allocation, error) {
	return allocationsInRange(ctx, t.q, rt, iv)
}

// ResourceFree locks the resource row, then re-runs the overlap check under
// the lock. Locking serializes concurrent bookings contending for the same
// resource, so the winner is decided here rather than at the exclusion
// constraint.
func (t *storeTx) ResourceFree(ctx context.Context, resourceID string, iv availability.Interval) (bool, error) {
	var status string
	var isActive bool
	err := t.q.QueryRow(ctx, `
		SELECT status, is_active
		FROM resources
		WHERE id = $1
		FOR UPDATE
	`, resourceID).Scan(&status, &isActive)
	if err != nil {
		return false, err
	}
	if status != string(model.ResourceAvailable) || !isActive {
		return false, nil
	}

	var busy bool
	err = t.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM allocations
			WHERE resource_id = $1 AND start_time < $3 AND end_time > $2
		)
	`, resourceID, iv.Start, iv.End).Scan(&busy)
	if err != nil {
		return false, err
	}
	return !busy, nil
}

func (t *storeTx) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return getAppointment(ctx, t.q, id, true)
}

func (t *storeTx) InsertResource(ctx context.Context, r *model.Resource) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO resources (id, type, status, is_active, display_name, personnel_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`, r.ID, r.Type, r.Status, r.IsActive, r.DisplayName, r.PersonnelID, r.CreatedAt)
	if err != nil {
		return err
	}
	if r.Equipment != nil {
		_, err = t.q.Exec(ctx, `
			INSERT INTO equipment_profiles (resource_id, model, serial_number)
			VALUES ($1, $2, $3)
		`, r.ID, r.Equipment.Model, r.Equipment.SerialNumber)
	}
	return err
}

func (t *storeTx) UpdateResource(ctx context.Context, id string, status model.ResourceStatus, isActive bool) (model.Resource, error) {
	tag, err := t.q.Exec(ctx, `
		UPDATE resources
		SET status = $2,
			is_active = $3,
			updated_at = now()
		WHERE id = $1
	`, id, status, isActive)
	if err != nil {
		return model.Resource{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Resource{}, fmt.Errorf("resource %s: %w", id, engine.ErrNotFound)
	}
	return getResource(ctx, t.q, id)
}

func (t *storeTx) InsertService(ctx context.Context, s *model.Service, reqs []model.ResourceRequirement) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO services (id, name, category_id, description, duration_minutes, price, is_active, created_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6::numeric, $7, $8)
	`, s.ID, s.Name, s.CategoryID, s.Description, s.DurationMins, s.Price, s.IsActive, s.CreatedAt)
	if err != nil {
		return err
	}
	for i, req := range reqs {
		_, err = t.q.Exec(ctx, `
			INSERT INTO service_requirements (service_id, resource_type, quantity, position)
			VALUES ($1, $2, $3, $4)
		`, s.ID, req.ResourceType, req.Quantity, i)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *storeTx) UpdateServiceActive(ctx context.Context, id string, active bool) (model.Service, error) {
	tag, err := t.q.Exec(ctx, `
		UPDATE services
		SET is_active = $2
		WHERE id = $1
	`, id, active)
	if err != nil {
		return model.Service{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Service{}, fmt.Errorf("service %s: %w", id, engine.ErrNotFound)
	}
	return getService(ctx, t.q, id)
}

func (t *storeTx) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO appointments (id, client_id, client_email, service_id, start_time, end_time, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.ClientID, a.ClientEmail, a.ServiceID, a.StartTime, a.EndTime, a.Status, a.Notes, a.CreatedAt)
	return err
}

func (t *storeTx) InsertAllocation(ctx context.Context, al *model.Allocation) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO allocations (id, appointment_id, resource_id, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
	`, al.ID, al.AppointmentID, al.ResourceID, al.StartTime, al.EndTime)
	return err
}

func (t *storeTx) UpdateAppointmentStatus(ctx context.Context, id string, status model.AppointmentStatus) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE appointments
		SET status = $2
		WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointment %s: %w", id, engine.ErrNotFound)
	}
	return nil
}

func (t *storeTx) MarkCancelled(ctx context.Context, id string, reason string, at time.Time) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE appointments
		SET status = 'CANCELLED',
			cancellation_reason = $2,
			cancelled_at = $3
		WHERE id = $1
	`, id, reason, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointment %s: %w", id, engine.ErrNotFound)
	}
	return nil
}

func (t *storeTx) DeleteAllocations(ctx context.Context, appointmentID string) (int, error) {
	tag, err := t.q.Exec(ctx, `
		DELETE FROM allocations
		WHERE appointment_id = $1
	`, appointmentID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (t *storeTx) InsertReminderJob(ctx context.Context, job engine.ReminderJob) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := t.q.Exec(ctx, `
		INSERT INTO reminder_jobs (appointment_id, client_id, recipient, remind_at, next_run_at, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $4, $5, $6)
	`, job.AppointmentID, job.ClientID, job.Recipient, job.RemindAt, traceparent, tracestate)
	return err
}

func (t *storeTx) DeleteReminderJobs(ctx context.Context, appointmentID string) error {
	_, err := t.q.Exec(ctx, `
		DELETE FROM reminder_jobs
		WHERE appointment_id = $1 AND status = 'pending'
	`, appointmentID)
	return err
}

func (t *storeTx) AppendEvent(ctx context.Context, evt engine.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}
	return t.outbox.Insert(ctx, t.pgtx, events.Event{
		AggregateType: "appointment",
		AggregateID:   evt.AppointmentID,
		EventType:     evt.Type,
		Payload:       payload,
	})
}
