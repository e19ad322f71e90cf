package db

import (
	"context"
	"fmt"
)

// Migrate applies the schema. Statements are idempotent so startup can run
// them unconditionally; the btree_gist extension backs the allocation
// exclusion constraint.
var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS btree_gist`,

	`CREATE TABLE IF NOT EXISTS resources (
		id uuid PRIMARY KEY,
		type text NOT NULL CHECK (type IN ('PERSONNEL', 'EQUIPMENT')),
		status text NOT NULL DEFAULT 'AVAILABLE' CHECK (status IN ('AVAILABLE', 'UNAVAILABLE', 'RETIRED')),
		is_active boolean NOT NULL DEFAULT true,
		display_name text NOT NULL DEFAULT '',
		personnel_id uuid UNIQUE,
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now(),
		CHECK ((type = 'PERSONNEL') = (personnel_id IS NOT NULL))
	)`,

	`CREATE TABLE IF NOT EXISTS equipment_profiles (
		resource_id uuid PRIMARY KEY REFERENCES resources(id),
		model text NOT NULL DEFAULT '',
		serial_number text NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS services (
		id uuid PRIMARY KEY,
		name text NOT NULL,
		category_id uuid,
		description text NOT NULL DEFAULT '',
		duration_minutes integer NOT NULL CHECK (duration_minutes > 0),
		price numeric(10,2) NOT NULL CHECK (price > 0),
		is_active boolean NOT NULL DEFAULT true,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS service_requirements (
		id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		service_id uuid NOT NULL REFERENCES services(id),
		resource_type text NOT NULL CHECK (resource_type IN ('PERSONNEL', 'EQUIPMENT')),
		quantity integer NOT NULL CHECK (quantity >= 1),
		position integer NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS appointments (
		id uuid PRIMARY KEY,
		client_id uuid NOT NULL,
		client_email text NOT NULL DEFAULT '',
		service_id uuid NOT NULL REFERENCES services(id),
		start_time timestamptz NOT NULL,
		end_time timestamptz NOT NULL,
		status text NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'CONFIRMED', 'IN_PROGRESS', 'COMPLETED', 'CANCELLED', 'NO_SHOW')),
		notes text NOT NULL DEFAULT '',
		cancellation_reason text NOT NULL DEFAULT '',
		cancelled_at timestamptz,
		created_at timestamptz NOT NULL DEFAULT now(),
		CHECK (start_time < end_time)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_appointments_client_start ON appointments (client_id, start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_start ON appointments (start_time)`,

	// The exclusion constraint is the store-level backstop for the no-overlap
	// invariant: two live allocations on one resource can never intersect,
	// regardless of what the application layer got wrong. '[)' keeps touching
	// endpoints legal.
	`CREATE TABLE IF NOT EXISTS allocations (
		id uuid PRIMARY KEY,
		appointment_id uuid NOT NULL REFERENCES appointments(id),
		resource_id uuid NOT NULL REFERENCES resources(id),
		start_time timestamptz NOT NULL,
		end_time timestamptz NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		CHECK (start_time < end_time),
		CONSTRAINT allocations_no_overlap EXCLUDE USING gist (
			resource_id WITH =,
			tstzrange(start_time, end_time, '[)') WITH &&
		)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_allocations_appointment ON allocations (appointment_id)`,

	`CREATE TABLE IF NOT EXISTS outbox_events (
		id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		event_id uuid NOT NULL DEFAULT gen_random_uuid(),
		aggregate_type text NOT NULL,
		aggregate_id text NOT NULL,
		event_type text NOT NULL,
		payload jsonb NOT NULL,
		traceparent text NOT NULL DEFAULT '',
		tracestate text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL DEFAULT now(),
		published_at timestamptz
	)`,

	`CREATE INDEX IF NOT EXISTS idx_outbox_unpublished ON outbox_events (id) WHERE published_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS reminder_jobs (
		id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		appointment_id uuid NOT NULL REFERENCES appointments(id),
		client_id uuid NOT NULL,
		recipient text NOT NULL DEFAULT '',
		remind_at timestamptz NOT NULL,
		status text NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'processed', 'failed')),
		attempts integer NOT NULL DEFAULT 0,
		max_attempts integer NOT NULL DEFAULT 5,
		next_run_at timestamptz NOT NULL,
		traceparent text NOT NULL DEFAULT '',
		tracestate text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_reminder_jobs_due ON reminder_jobs (next_run_at) WHERE status = 'pending'`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id uuid PRIMARY KEY,
		recipient_id uuid NOT NULL,
		appointment_id uuid,
		kind text NOT NULL,
		subject text NOT NULL DEFAULT '',
		body text NOT NULL DEFAULT '',
		status text NOT NULL DEFAULT 'SENT',
		sent_at timestamptz NOT NULL DEFAULT now()
	)`,
}

func Migrate(ctx context.Context, pool *Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
