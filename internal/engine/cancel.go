package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/slotwise/bookd/internal/model"
)

// Cancel transitions an appointment to CANCELLED and releases every
// allocation it holds, in one transaction. A reader can never observe a
// cancelled appointment with live allocations, nor the reverse.
func (e *Engine) Cancel(ctx context.Context, appointmentID string, actor Actor, reason string) (model.Appointment, error) {
	var appt model.Appointment
	err := e.store.InTx(ctx, func(tx Tx) error {
		var err error
		appt, err = tx.GetAppointmentForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !actor.Operator && appt.ClientID != actor.ID {
			return ErrForbidden
		}
		if !model.CanTransition(appt.Status, model.StatusCancelled) {
			return fmt.Errorf("cannot cancel appointment in status %s: %w", appt.Status, ErrInvalidState)
		}

		at := e.now()
		if err := tx.MarkCancelled(ctx, appt.ID, reason, at); err != nil {
			return err
		}
		if _, err := tx.DeleteAllocations(ctx, appt.ID); err != nil {
			return err
		}
		if err := tx.DeleteReminderJobs(ctx, appt.ID); err != nil {
			return err
		}

		appt.Status = model.StatusCancelled
		appt.CancelReason = reason
		appt.CancelledAt = &at

		return tx.AppendEvent(ctx, Event{
			Type:          EventAppointmentCancelled,
			AppointmentID: appt.ID,
			Payload: map[string]any{
				"appointment_id": appt.ID,
				"client_id":      appt.ClientID,
				"service_id":     appt.ServiceID,
				"start_time":     appt.StartTime.Format(time.RFC3339),
				"end_time":       appt.EndTime.Format(time.RFC3339),
				"cancelled_at":   at.Format(time.RFC3339),
				"reason":         reason,
			},
		})
	})
	if err != nil {
		return model.Appointment{}, err
	}

	e.dispatch(ctx, Notification{
		RecipientID:    appt.ClientID,
		RecipientEmail: appt.ClientEmail,
		Kind:           model.NotifyCancellation,
		Subject:        "Appointment cancelled",
		Body:           fmt.Sprintf("Your appointment on %s was cancelled.", appt.StartTime.Format(time.RFC1123)),
		AppointmentID:  appt.ID,
	})
	return appt, nil
}

// Transition applies one of the operator-driven lifecycle moves (confirm,
// start, complete, no-show). Cancellation has its own path because it also
// releases allocations.
func (e *Engine) Transition(ctx context.Context, appointmentID string, actor Actor, to model.AppointmentStatus) (model.Appointment, error) {
	if !actor.Operator {
		return model.Appointment{}, ErrForbidden
	}
	if to == model.StatusCancelled {
		return model.Appointment{}, fmt.Errorf("use Cancel for cancellation: %w", ErrInvalidState)
	}
	if !model.ValidStatus(to) {
		return model.Appointment{}, fmt.Errorf("unknown status %q: %w", to, ErrInvalidInput)
	}

	var appt model.Appointment
	err := e.store.InTx(ctx, func(tx Tx) error {
		var err error
		appt, err = tx.GetAppointmentForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !model.CanTransition(appt.Status, to) {
			return fmt.Errorf("cannot move appointment from %s to %s: %w", appt.Status, to, ErrInvalidState)
		}
		if err := tx.UpdateAppointmentStatus(ctx, appt.ID, to); err != nil {
			return err
		}
		appt.Status = to

		// A no-show keeps its allocations for the historical record; the
		// interval is in the past so nothing is blocked by them.
		if to == model.StatusNoShow {
			return tx.DeleteReminderJobs(ctx, appt.ID)
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}

	if to == model.StatusNoShow {
		e.dispatch(ctx, Notification{
			RecipientID:    appt.ClientID,
			RecipientEmail: appt.ClientEmail,
			Kind:           model.NotifyNoShow,
			Subject:        "Missed appointment",
			Body:           fmt.Sprintf("You missed your appointment on %s.", appt.StartTime.Format(time.RFC1123)),
			AppointmentID:  appt.ID,
		})
	}
	return appt, nil
}
