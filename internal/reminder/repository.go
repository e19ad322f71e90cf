// Package reminder runs scheduled reminder delivery. Jobs are created inside
// the booking transaction and removed inside the cancellation transaction;
// the worker here only ever sees jobs whose appointment is still live.
package reminder

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

type Job struct {
	ID            int64
	AppointmentID string
	ClientID      string
	Recipient     string
	RemindAt      time.Time
	StartTime     time.Time
	Traceparent   string
	Tracestate    string
	Attempts      int
	MaxAttempts   int
	NextRunAt     time.Time
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// FetchDue claims up to limit due jobs. SKIP LOCKED lets several worker
// instances drain the queue without handing the same job out twice.
func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error) {
	// The appointment status guard is belt-and-braces: cancellation deletes
	// pending jobs in its own transaction, but a job already claimed by a
	// crashed worker could outlive it.
	rows, err := tx.Query(ctx, `
		SELECT j.id, j.appointment_id::text, j.client_id::text, j.recipient, j.remind_at, a.start_time,
			j.traceparent, j.tracestate, j.attempts, j.max_attempts, j.next_run_at
		FROM reminder_jobs j
		JOIN appointments a ON a.id = j.appointment_id
		WHERE j.status = 'pending'
			AND j.next_run_at <= now()
			AND a.status IN ('PENDING', 'CONFIRMED')
		ORDER BY j.next_run_at
		LIMIT $1
		FOR UPDATE OF j SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.AppointmentID, &j.ClientID, &j.Recipient, &j.RemindAt, &j.StartTime, &j.Traceparent, &j.Tracestate, &j.Attempts, &j.MaxAttempts, &j.NextRunAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'processed', updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, maxAttempts int, nextRunAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET attempts = $2,
		    status = $3,
		    next_run_at = $4,
		    updated_at = now()
		WHERE id = $1
	`, id, attempts, failureStatus(attempts, maxAttempts), nextRunAt)
	return err
}

// failureStatus keeps a job retryable until its attempts are spent.
func failureStatus(attempts, maxAttempts int) string {
	if attempts >= maxAttempts {
		return "failed"
	}
	return "pending"
}
