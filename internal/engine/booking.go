package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/slotwise/bookd/internal/availability"
	"github.com/slotwise/bookd/internal/model"
)

type BookingRequest struct {
	ClientID    string
	ClientEmail string
	ServiceID   string
	StartTime   time.Time
	Notes       string
}

// Book runs the whole booking pipeline: resolve the service, plan resource
// assignments, then commit appointment + allocations in one transaction.
//
// Planning happens outside the transaction and is inherently racy, so every
// planned resource is re-checked inside the transaction before anything is
// written. A resource claimed in the meantime fails the booking with
// ErrConflict; the engine never silently re-plans, that choice belongs to
// the caller. The store's exclusion constraint backstops the same invariant
// for anything this check cannot see.
func (e *Engine) Book(ctx context.Context, req BookingRequest) (model.Appointment, error) {
	svc, err := e.resolveService(ctx, req.ServiceID)
	if err != nil {
		return model.Appointment{}, err
	}

	iv := availability.Interval{
		Start: req.StartTime,
		End:   req.StartTime.Add(time.Duration(svc.DurationMins) * time.Minute),
	}
	if err := iv.Validate(); err != nil {
		return model.Appointment{}, err
	}

	reqs, err := e.resolveRequirements(ctx, svc.ID)
	if err != nil {
		return model.Appointment{}, err
	}
	drafts, err := e.planner.Plan(ctx, reqs, iv)
	if err != nil {
		return model.Appointment{}, err
	}

	appt := model.Appointment{
		ID:          uuid.NewString(),
		ClientID:    req.ClientID,
		ClientEmail: req.ClientEmail,
		ServiceID:   svc.ID,
		StartTime:   iv.Start,
		EndTime:     iv.End,
		Status:      model.StatusPending,
		Notes:       req.Notes,
		CreatedAt:   e.now(),
	}

	err = e.store.InTx(ctx, func(tx Tx) error {
		for _, d := range drafts {
			free, err := tx.ResourceFree(ctx, d.ResourceID, iv)
			if err != nil {
				return err
			}
			if !free {
				return fmt.Errorf("resource %s was claimed concurrently: %w", d.ResourceID, ErrConflict)
			}
		}

		if err := tx.InsertAppointment(ctx, &appt); err != nil {
			return err
		}
		for _, d := range drafts {
			al := model.Allocation{
				ID:            uuid.NewString(),
				AppointmentID: appt.ID,
				ResourceID:    d.ResourceID,
				StartTime:     iv.Start,
				EndTime:       iv.End,
			}
			if err := tx.InsertAllocation(ctx, &al); err != nil {
				return err
			}
		}

		if err := tx.AppendEvent(ctx, Event{
			Type:          EventAppointmentBooked,
			AppointmentID: appt.ID,
			Payload: map[string]any{
				"appointment_id": appt.ID,
				"client_id":      appt.ClientID,
				"service_id":     appt.ServiceID,
				"start_time":     appt.StartTime.Format(time.RFC3339),
				"end_time":       appt.EndTime.Format(time.RFC3339),
				"resource_count": len(drafts),
			},
		}); err != nil {
			return err
		}

		now := e.now()
		for _, offset := range e.reminderOffsets {
			remindAt := appt.StartTime.Add(-offset)
			if remindAt.Before(now) {
				continue
			}
			if err := tx.InsertReminderJob(ctx, ReminderJob{
				AppointmentID: appt.ID,
				ClientID:      appt.ClientID,
				Recipient:     appt.ClientEmail,
				RemindAt:      remindAt,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}

	e.dispatch(ctx, Notification{
		RecipientID:    appt.ClientID,
		RecipientEmail: appt.ClientEmail,
		Kind:           model.NotifyConfirmation,
		Subject:        "Appointment confirmed",
		Body:           fmt.Sprintf("Your appointment for %s on %s is booked.", svc.Name, appt.StartTime.Format(time.RFC1123)),
		AppointmentID:  appt.ID,
	})
	return appt, nil
}
