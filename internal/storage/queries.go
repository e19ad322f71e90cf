package storage

import (
	"context"
	"time"

	"github.com/slotwise/bookd/internal/availability"
	"github.com/slotwise/bookd/internal/engine"
	"github.com/slotwise/bookd/internal/model"
)

func getService(ctx context.Context, q querier, id string) (model.Service, error) {
	var svc model.Service
	err := q.QueryRow(ctx, `
		SELECT id::text, name, COALESCE(category_id::text, ''), description, duration_minutes, price::text, is_active, created_at
		FROM services
		WHERE id = $1
	`, id).Scan(&svc.ID, &svc.Name, &svc.CategoryID, &svc.Description, &svc.DurationMins, &svc.Price, &svc.IsActive, &svc.CreatedAt)
	if err != nil {
		return model.Service{}, err
	}
	return svc, nil
}

func getRequirements(ctx context.Context, q querier, serviceID string) ([]model.ResourceRequirement, error) {
	rows, err := q.Query(ctx, `
		SELECT resource_type, quantity
		FROM service_requirements
		WHERE service_id = $1
		ORDER BY position, id
	`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []model.ResourceRequirement
	for rows.Next() {
		var r model.ResourceRequirement
		if err := rows.Scan(&r.ResourceType, &r.Quantity); err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

func listServices(ctx context.Context, q querier) ([]model.Service, error) {
	rows, err := q.Query(ctx, `
		SELECT id::text, name, COALESCE(category_id::text, ''), description, duration_minutes, price::text, is_active, created_at
		FROM services
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var svcs []model.Service
	for rows.Next() {
		var svc model.Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.CategoryID, &svc.Description, &svc.DurationMins, &svc.Price, &svc.IsActive, &svc.CreatedAt); err != nil {
			return nil, err
		}
		svcs = append(svcs, svc)
	}
	return svcs, rows.Err()
}

const resourceColumns = `
	r.id::text, r.type, r.status, r.is_active, r.display_name,
	COALESCE(r.personnel_id::text, ''),
	COALESCE(ep.model, ''), COALESCE(ep.serial_number, ''),
	r.created_at
`

func scanResource(row interface{ Scan(dest ...any) error }) (model.Resource, error) {
	var r model.Resource
	var epModel, epSerial string
	err := row.Scan(&r.ID, &r.Type, &r.Status, &r.IsActive, &r.DisplayName, &r.PersonnelID, &epModel, &epSerial, &r.CreatedAt)
	if err != nil {
		return model.Resource{}, err
	}
	if r.Type == model.ResourceEquipment {
		r.Equipment = &model.EquipmentProfile{Model: epModel, SerialNumber: epSerial}
	}
	return r, nil
}

func getResource(ctx context.Context, q querier, id string) (model.Resource, error) {
	row := q.QueryRow(ctx, `
		SELECT `+resourceColumns+`
		FROM resources r
		LEFT JOIN equipment_profiles ep ON ep.resource_id = r.id
		WHERE r.id = $1
	`, id)
	return scanResource(row)
}

func listResources(ctx context.Context, q querier, f engine.ResourceFilter) ([]model.Resource, error) {
	rows, err := q.Query(ctx, `
		SELECT `+resourceColumns+`
		FROM resources r
		LEFT JOIN equipment_profiles ep ON ep.resource_id = r.id
		WHERE ($1 = '' OR r.type = $1)
			AND ($2 = '' OR r.status = $2)
			AND (NOT $3 OR r.is_active)
		ORDER BY r.id
	`, string(f.Type), string(f.Status), f.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// findAvailable is the overlap index query: active AVAILABLE resources of a
// type holding no allocation intersecting the half-open interval. Strict
// inequalities keep touching intervals compatible. Order by id makes the
// result, and therefore the plan built from it, deterministic.
func findAvailable(ctx context.Context, q querier, rt model.ResourceType, iv availability.Interval, limit int) ([]model.Resource, error) {
	rows, err := q.Query(ctx, `
		SELECT `+resourceColumns+`
		FROM resources r
		LEFT JOIN equipment_profiles ep ON ep.resource_id = r.id
		WHERE r.type = $1
			AND r.status = 'AVAILABLE'
			AND r.is_active
			AND NOT EXISTS (
				SELECT 1 FROM allocations a
				WHERE a.resource_id = r.id
					AND a.start_time < $3
					AND a.end_time > $2
			)
		ORDER BY r.id
		LIMIT $4
	`, rt, iv.Start, iv.End, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const appointmentColumns = `
	id::text, client_id::text, client_email, service_id::text,
	start_time, end_time, status, notes, cancellation_reason, cancelled_at, created_at
`

func scanAppointment(row interface{ Scan(dest ...any) error }) (model.Appointment, error) {
	var a model.Appointment
	var cancelledAt *time.Time
	err := row.Scan(&a.ID, &a.ClientID, &a.ClientEmail, &a.ServiceID,
		&a.StartTime, &a.EndTime, &a.Status, &a.Notes, &a.CancelReason, &cancelledAt, &a.CreatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	a.CancelledAt = cancelledAt
	return a, nil
}

func getAppointment(ctx context.Context, q querier, id string, forUpdate bool) (model.Appointment, error) {
	sql := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	return scanAppointment(q.QueryRow(ctx, sql, id))
}

func listAppointments(ctx context.Context, q querier, f engine.AppointmentFilter) ([]model.Appointment, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	var from, to *time.Time
	if !f.From.IsZero() {
		from = &f.From
	}
	if !f.To.IsZero() {
		to = &f.To
	}
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1::timestamptz IS NULL OR start_time >= $1)
			AND ($2::timestamptz IS NULL OR start_time < $2)
			AND ($3 = '' OR status = $3)
			AND ($4 = '' OR client_id::text = $4)
		ORDER BY start_time, id
		LIMIT $5
	`, from, to, string(f.Status), f.ClientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const allocationColumns = `id::text, appointment_id::text, resource_id::text, start_time, end_time`

func allocationsForAppointment(ctx context.Context, q querier, appointmentID string) ([]model.Allocation, error) {
	rows, err := q.Query(ctx, `
		SELECT `+allocationColumns+`
		FROM allocations
		WHERE appointment_id = $1
		ORDER BY resource_id
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAllocations(rows)
}

func allocationsInRange(ctx context.Context, q querier, rt model.ResourceType, iv availability.Interval) ([]model.Allocation, error) {
	rows, err := q.Query(ctx, `
		SELECT a.id::text, a.appointment_id::text, a.resource_id::text, a.start_time, a.end_time
		FROM allocations a
		JOIN resources r ON r.id = a.resource_id
		WHERE r.type = $1
			AND a.start_time < $3
			AND a.end_time > $2
		ORDER BY a.start_time, a.id
	`, rt, iv.Start, iv.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAllocations(rows)
}

func scanAllocations(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]model.Allocation, error) {
	var out []model.Allocation
	for rows.Next() {
		var al model.Allocation
		if err := rows.Scan(&al.ID, &al.AppointmentID, &al.ResourceID, &al.StartTime, &al.EndTime); err != nil {
			return nil, err
		}
		out = append(out, al)
	}
	return out, rows.Err()
}
