package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/slotwise/bookd/internal/db"
	"github.com/slotwise/bookd/internal/engine"
	"github.com/slotwise/bookd/internal/events"
	"github.com/slotwise/bookd/internal/model"
	"github.com/slotwise/bookd/internal/otelx"
)

type Worker struct {
	pool      *db.Pool
	repo      *Repository
	outbox    *events.Repository
	notifier  engine.Notifier
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	backoff   time.Duration
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

func NewWorker(pool *db.Pool, repo *Repository, outbox *events.Repository, notifier engine.Notifier, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Minute
	}
	return &Worker{
		pool:      pool,
		repo:      repo,
		outbox:    outbox,
		notifier:  notifier,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		backoff:   cfg.Backoff,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobs, err := w.repo.FetchDue(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return tx.Commit(ctx)
	}

	var done []int64
	var delivered []Job
	for _, job := range jobs {
		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
		payload, err := json.Marshal(map[string]any{
			"appointment_id": job.AppointmentID,
			"client_id":      job.ClientID,
			"recipient":      job.Recipient,
			"remind_at":      job.RemindAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			w.logger.Error("reminder payload marshal failed", "job_id", job.ID, "err", err)
			continue
		}

		if err := w.outbox.Insert(jobCtx, tx, events.Event{
			AggregateType: "appointment",
			AggregateID:   job.AppointmentID,
			EventType:     engine.EventReminderDue,
			Payload:       payload,
		}); err != nil {
			attempts := job.Attempts + 1
			nextRunAt := time.Now().UTC().Add(w.backoff)
			if err := w.repo.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, nextRunAt); err != nil {
				return err
			}
			continue
		}
		done = append(done, job.ID)
		delivered = append(delivered, job)
	}

	if err := w.repo.MarkProcessed(ctx, tx, done); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	// Notify only after the jobs are durably marked processed, so a crash
	// mid-batch re-sends a reminder rather than losing the bookkeeping.
	if w.notifier != nil {
		for _, job := range delivered {
			w.notifier.Notify(ctx, reminderNotification(job))
		}
	}
	return nil
}

func reminderNotification(job Job) engine.Notification {
	return engine.Notification{
		RecipientID:    job.ClientID,
		RecipientEmail: job.Recipient,
		Kind:           model.NotifyReminder,
		Subject:        "Upcoming appointment",
		Body:           fmt.Sprintf("Reminder: your appointment starts at %s.", job.StartTime.Format(time.RFC1123)),
		AppointmentID:  job.AppointmentID,
	}
}
