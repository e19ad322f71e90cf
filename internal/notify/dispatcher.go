// Package notify delivers booking notifications. Delivery is best-effort by
// contract: the booking or cancellation that triggered a notification has
// already committed, so failures are logged and recorded, never propagated.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/slotwise/bookd/internal/db"
	"github.com/slotwise/bookd/internal/engine"
)

const (
	statusSent   = "SENT"
	statusFailed = "FAILED"
)

type Dispatcher struct {
	pool   *db.Pool
	sender Sender
	logger *slog.Logger
}

var _ engine.Notifier = (*Dispatcher)(nil)

// New builds a dispatcher. pool may be nil (no persistence) and sender may be
// nil (log-only), so dev mode works without SMTP or Postgres.
func New(pool *db.Pool, sender Sender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{pool: pool, sender: sender, logger: logger}
}

func (d *Dispatcher) Notify(ctx context.Context, n engine.Notification) {
	status := statusSent
	if d.sender != nil && n.RecipientEmail != "" {
		if err := d.sender.Send(n.RecipientEmail, n.Subject, n.Body); err != nil {
			status = statusFailed
			d.logger.Error("notification send failed",
				"kind", n.Kind,
				"appointment_id", n.AppointmentID,
				"err", err)
		}
	}

	if d.pool != nil {
		_, err := d.pool.Exec(ctx, `
			INSERT INTO notifications (id, recipient_id, appointment_id, kind, subject, body, status)
			VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7)
		`, uuid.NewString(), n.RecipientID, n.AppointmentID, n.Kind, n.Subject, n.Body, status)
		if err != nil {
			d.logger.Error("notification record insert failed",
				"kind", n.Kind,
				"appointment_id", n.AppointmentID,
				"err", err)
			return
		}
	}

	d.logger.Info("notification dispatched",
		"kind", n.Kind,
		"appointment_id", n.AppointmentID,
		"status", status)
}
