package engine

import (
	"context"
	"time"

	"github.com/slotwise/bookd/internal/availability"
	"github.com/slotwise/bookd/internal/model"
)

type ResourceFilter struct {
	Type       model.ResourceType
	Status     model.ResourceStatus
	ActiveOnly bool
}

type AppointmentFilter struct {
	From     time.Time
	To       time.Time
	Status   model.AppointmentStatus
	ClientID string
	Limit    int
}

// Event is a domain event the engine emits from inside a transaction. The
// store appends it to a durable outbox; a separate publisher moves it to the
// broker. The engine never talks to a transport directly.
type Event struct {
	Type          string
	AppointmentID string
	Payload       map[string]any
}

const (
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
	EventReminderDue          = "booking.reminder.due.v1"
)

// ReminderJob schedules a reminder notification relative to an appointment
// start. Jobs are enqueued in the booking transaction and removed in the
// cancellation transaction.
type ReminderJob struct {
	AppointmentID string
	ClientID      string
	Recipient     string
	RemindAt      time.Time
}

// Reader is the read-only store view. The Overlap Index and the Planner get
// nothing more than this: they must never be able to write.
type Reader interface {
	GetService(ctx context.Context, id string) (model.Service, error)
	GetRequirements(ctx context.Context, serviceID string) ([]model.ResourceRequirement, error)
	ListServices(ctx context.Context) ([]model.Service, error)

	ListResources(ctx context.Context, f ResourceFilter) ([]model.Resource, error)

	// FindAvailable returns up to limit resources of the given type that are
	// AVAILABLE, active, and hold no allocation overlapping the half-open
	// interval. Order is resource id ascending so identical state yields
	// identical results.
	FindAvailable(ctx context.Context, rt model.ResourceType, iv availability.Interval, limit int) ([]model.Resource, error)

	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error)
	AllocationsForAppointment(ctx context.Context, appointmentID string) ([]model.Allocation, error)

	// AllocationsInRange returns allocations held by resources of the given
	// type that overlap the interval, for slot feasibility computation.
	AllocationsInRange(ctx context.Context, rt model.ResourceType, iv availability.Interval) ([]model.Allocation, error)
}

// Tx is the transactional store view handed to InTx callbacks. Everything
// done through it commits or rolls back as one unit.
type Tx interface {
	Reader

	// ResourceFree re-runs the overlap check for one specific resource,
	// under the transaction's isolation. This is the commit-time
	// re-validation that closes the plan/commit race.
	ResourceFree(ctx context.Context, resourceID string, iv availability.Interval) (bool, error)

	GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)

	InsertResource(ctx context.Context, r *model.Resource) error
	UpdateResource(ctx context.Context, id string, status model.ResourceStatus, isActive bool) (model.Resource, error)

	InsertService(ctx context.Context, s *model.Service, reqs []model.ResourceRequirement) error
	UpdateServiceActive(ctx context.Context, id string, active bool) (model.Service, error)

	InsertAppointment(ctx context.Context, a *model.Appointment) error
	InsertAllocation(ctx context.Context, al *model.Allocation) error
	UpdateAppointmentStatus(ctx context.Context, id string, status model.AppointmentStatus) error
	MarkCancelled(ctx context.Context, id string, reason string, at time.Time) error
	DeleteAllocations(ctx context.Context, appointmentID string) (int, error)

	InsertReminderJob(ctx context.Context, job ReminderJob) error
	DeleteReminderJobs(ctx context.Context, appointmentID string) error

	AppendEvent(ctx context.Context, evt Event) error
}

// Store is the engine's only dependency on persistence. InTx runs fn against
// a transactional view; fn returning an error rolls everything back.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
