package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/slotwise/bookd/internal/model"
)

// Actor is the caller identity as asserted by the upstream auth layer.
// Operators (staff, admin) may act on appointments they do not own.
type Actor struct {
	ID       string
	Operator bool
}

// Notification is what the engine hands to the dispatcher after a successful
// commit. Dispatch is best-effort: a failed notification never unwinds a
// booking.
type Notification struct {
	RecipientID    string
	RecipientEmail string
	Kind           model.NotificationKind
	Subject        string
	Body           string
	AppointmentID  string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Engine is the availability and allocation core: it decides feasibility,
// selects resources, and commits or releases allocations atomically. All
// writes to appointments and allocations in this codebase go through it.
type Engine struct {
	store           Store
	planner         *Planner
	notifier        Notifier
	logger          *slog.Logger
	reminderOffsets []time.Duration
	now             func() time.Time
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithReminderOffsets(offsets []time.Duration) Option {
	return func(e *Engine) { e.reminderOffsets = offsets }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(store Store, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		planner: NewPlanner(store),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// dispatch forwards a notification without blocking the caller. The request
// context may be cancelled as soon as the response is written, so the copy
// detached from cancellation is used.
func (e *Engine) dispatch(ctx context.Context, n Notification) {
	if e.notifier == nil {
		return
	}
	go e.notifier.Notify(context.WithoutCancel(ctx), n)
}

// ListAppointments scopes non-operators to their own appointments.
func (e *Engine) ListAppointments(ctx context.Context, f AppointmentFilter, actor Actor) ([]model.Appointment, error) {
	if !actor.Operator {
		f.ClientID = actor.ID
	}
	return e.store.ListAppointments(ctx, f)
}

func (e *Engine) GetAppointment(ctx context.Context, id string, actor Actor) (model.Appointment, error) {
	appt, err := e.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !actor.Operator && appt.ClientID != actor.ID {
		return model.Appointment{}, ErrForbidden
	}
	return appt, nil
}
