package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwise/bookd/internal/availability"
	"github.com/slotwise/bookd/internal/engine"
	"github.com/slotwise/bookd/internal/model"
	"github.com/slotwise/bookd/internal/storage/memory"
)

var base = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

type capturingNotifier struct {
	mu   sync.Mutex
	sent []engine.Notification
}

func (c *capturingNotifier) Notify(_ context.Context, n engine.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
}

func (c *capturingNotifier) kinds() []model.NotificationKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.NotificationKind, len(c.sent))
	for i, n := range c.sent {
		out[i] = n.Kind
	}
	return out
}

func newTestEngine(t *testing.T, store *memory.Store, opts ...engine.Option) *engine.Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append(opts, engine.WithClock(func() time.Time { return base }))
	return engine.New(store, logger, opts...)
}

func mustService(t *testing.T, eng *engine.Engine, name string, durationMins int, reqs ...model.ResourceRequirement) model.Service {
	t.Helper()
	svc, err := eng.CreateService(context.Background(), engine.ServiceInput{
		Name:         name,
		DurationMins: durationMins,
		Price:        "25.00",
		Requirements: reqs,
	})
	require.NoError(t, err)
	return svc
}

func TestBookHaircut(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := newTestEngine(t, store)

	_, err := eng.RegisterPersonnel(ctx, "staff-alice", "Alice")
	require.NoError(t, err)
	_, err = eng.RegisterPersonnel(ctx, "staff-bob", "Bob")
	require.NoError(t, err)
	_, err = eng.RegisterEquipment(ctx, "Chair 1", "BarberPro 9", "SN-001")
	require.NoError(t, err)

	svc := mustService(t, eng, "Haircut", 30,
		model.ResourceRequirement{ResourceType: model.ResourcePersonnel, Quantity: 1},
		model.ResourceRequirement{ResourceType: model.ResourceEquipment, Quantity: 1},
	)

	appt, err := eng.Book(ctx, engine.BookingRequest{
		ClientID:    "client-1",
		ClientEmail: "client1@example.com",
		ServiceID:   svc.ID,
		StartTime:   at(10, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, appt.Status)
	assert.Equal(t, at(10, 30), appt.EndTime)

	allocs, err := store.AllocationsForAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Len(t, allocs, 2)

	// Two personnel remain but the only chair is taken, so an overlapping
	// booking reports the equipment pool as the limiting one.
	_, err = eng.Book(ctx, engine.BookingRequest{
		ClientID:  "client-2",
		ServiceID: svc.ID,
		StartTime: at(10, 15),
	})
	var ins *engine.InsufficientResourcesError
	require.ErrorAs(t, err, &ins)
	assert.Equal(t, model.ResourceEquipment, ins.ResourceType)
	assert.Equal(t, 1, ins.Wanted)
	assert.Equal(t, 0, ins.Got)

	// [10:00,10:30) and [10:30,11:00) touch but do not overlap.
	_, err = eng.Book(ctx, engine.BookingRequest{
		ClientID:  "client-2",
		ServiceID: svc.ID,
		StartTime: at(10, 30),
	})
	require.NoError(t, err)
}

func TestBookUnknownOrInactiveService(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := newTestEngine(t, store)

	_, err := eng.Book(ctx, engine.BookingRequest{ClientID: "c", ServiceID: "nope", StartTime: at(10, 0)})
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestBookZeroRequirementService(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := newTestEngine(t, store)

	svc := mustService(t, eng, "Phone consult", 15)

	// No resource pool gates this service; double-booking the same slot is
	// allowed because nothing exclusive is claimed.
	for i := 0; i < 3; i++ {
		_, err := eng.Book(ctx, engine.BookingRequest{ClientID: "c", ServiceID: svc.ID, StartTime: at(9, 0)})
		require.NoError(t, err)
	}
}

func TestConcurrentBookingRespectsCapacity(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := newTestEngine(t, store)

	for _, id := range []string{"p1", "p2", "p3"} {
		_, err := eng.RegisterPersonnel(ctx, id, id)
		require.NoError(t, err)
	}
	svc := mustService(t, eng, "Massage", 60,
		model.ResourceRequirement{ResourceType: model.ResourcePersonnel, Quantity: 1},
	)

	const attempts = 10
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Book(ctx, engine.BookingRequest{
				ClientID:  "client",
				ServiceID: svc.ID,
				StartTime: at(14, 0),
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		if !engine.IsInsufficient(err) && !errors.Is(err, engine.ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 3, ok, "exactly one booking per personnel resource")

	allocs, err := store.AllocationsInRange(ctx, model.ResourcePersonnel,
		availability.Interval{Start: at(14, 0), End: at(15, 0)})
	require.NoError(t, err)
	require.Len(t, allocs, 3)
	seen := map[string]bool{}
	for _, al := range allocs {
		assert.False(t, seen[al.ResourceID], "resource %s allocated twice", al.ResourceID)
		seen[al.ResourceID] = true
	}
}

func TestBookRollsBackOnTxFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := newTestEngine(t, store)

	_, err := eng.RegisterPersonnel(ctx, "p1", "P1")
	require.NoError(t, err)
	svc := mustService(t, eng, "Trim", 30,
		model.ResourceRequirement{ResourceType: model.ResourcePersonnel, Quantity: 1},
	)

	boom := errors.New("outbox write failed")
	store.AppendEventErr = boom
	_, err = eng.Book(ctx, engine.BookingRequest{ClientID: "c", ServiceID: svc.ID, StartTime: at(11, 0)})
	require.ErrorIs(t, err, boom)

	appts, err := store.ListAppointments(ctx, engine.AppointmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, appts, "failed booking must leave no appointment behind")
	allocs, err := store.AllocationsInRange(ctx, model.ResourcePersonnel,
		availability.Interval{Start: at(11, 0), End: at(11, 30)})
	require.NoError(t, err)
	assert.Empty(t, allocs, "failed booking must leave no allocation behind")

	// The slot is still bookable afterwards.
	_, err = eng.Book(ctx, engine.BookingRequest{ClientID: "c", ServiceID: svc.ID, StartTime: at(11, 0)})
	require.NoError(t, err)
}

func TestCancelReleasesEverything(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	notifier := &capturingNotifier{}
	eng := newTestEngine(t, store,
		engine.WithNotifier(notifier),
		engine.WithReminderOffsets([]time.Duration{time.Hour}),
	)

	_, err := eng.RegisterPersonnel(ctx, "p1", "P1")
	require.NoError(t, err)
	svc := mustService(t, eng, "Consult", 30,
		model.ResourceRequirement{ResourceType: model.ResourcePersonnel, Quantity: 1},
	)

	appt, err := eng.Book(ctx, engine.BookingRequest{ClientID: "owner", ServiceID: svc.ID, StartTime: at(12, 0)})
	require.NoError(t, err)
	require.Len(t, store.ReminderJobs(), 1)

	// A stranger may not cancel it.
	_, err = eng.Cancel(ctx, appt.ID, engine.Actor{ID: "stranger"}, "nope")
	assert.ErrorIs(t, err, engine.ErrForbidden)

	cancelled, err := eng.Cancel(ctx, appt.ID, engine.Actor{ID: "owner"}, "sick")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, "sick", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	allocs, err := store.AllocationsForAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Empty(t, allocs)
	assert.Empty(t, store.ReminderJobs())

	// The released slot is immediately bookable again.
	_, err = eng.Book(ctx, engine.BookingRequest{ClientID: "other", ServiceID: svc.ID, StartTime: at(12, 0)})
	require.NoError(t, err)

	// Cancelling twice is an invalid transition out of a terminal state.
	_, err = eng.Cancel(ctx, appt.ID, engine.Actor{ID: "owner"}, "again")
	assert.ErrorIs(t, err, engine.ErrInvalidState)
}

func TestCancelEmitsEvent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := newTestEngine(t, store)

	svc := mustService(t, eng, "Walk-in", 15)
	appt, err := eng.Book(ctx, engine.BookingRequest{ClientID: "c", ServiceID: svc.ID, StartTime: at(9, 0)})
	require.NoError(t, err)
	_, err = eng.Cancel(ctx, appt.ID, engine.Actor{ID: "c"}, "")
	require.NoError(t, err)

	events := store.Events()
	require.Len(t, events, 2)
	assert.Equal(t, engine.EventAppointmentBooked, events[0].Type)
	assert.Equal(t, engine.EventAppointmentCancelled, events[1].Type)
	assert.Equal(t, appt.ID, events[1].AppointmentID)
}

func TestTransitionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := newTestEngine(t, store, engine.WithReminderOffsets([]time.Duration{time.Hour}))
	operator := engine.Actor{ID: "staff-1", Operator: true}

	svc := mustService(t, eng, "Checkup", 30)
	appt, err := eng.Book(ctx, engine.BookingRequest{ClientID: "c", ServiceID: svc.ID, StartTime: at(13, 0)})
	require.NoError(t, err)

	// Clients do not drive the lifecycle.
	_, err = eng.Transition(ctx, appt.ID, engine.Actor{ID: "c"}, model.StatusConfirmed)
	assert.ErrorIs(t, err, engine.ErrForbidden)

	// PENDING cannot jump straight to COMPLETED.
	_, err = eng.Transition(ctx, appt.ID, operator, model.StatusCompleted)
	assert.ErrorIs(t, err, engine.ErrInvalidState)

	// Cancellation goes through Cancel, not Transition.
	_, err = eng.Transition(ctx, appt.ID, operator, model.StatusCancelled)
	assert.ErrorIs(t, err, engine.ErrInvalidState)

	for _, to := range []model.AppointmentStatus{model.StatusConfirmed, model.StatusInProgress, model.StatusCompleted} {
		appt, err = eng.Transition(ctx, appt.ID, operator, to)
		require.NoError(t, err)
		assert.Equal(t, to, appt.Status)
	}
	assert.True(t, appt.Status.Terminal())
}

func TestNoShowKeepsAllocationsDropsReminders(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := newTestEngine(t, store, engine.WithReminderOffsets([]time.Duration{6 * time.Hour}))
	operator := engine.Actor{ID: "staff-1", Operator: true}

	_, err := eng.RegisterPersonnel(ctx, "p1", "P1")
	require.NoError(t, err)
	svc := mustService(t, eng, "Fitting", 30,
		model.ResourceRequirement{ResourceType: model.ResourcePersonnel, Quantity: 1},
	)
	appt, err := eng.Book(ctx, engine.BookingRequest{ClientID: "c", ServiceID: svc.ID, StartTime: at(15, 0)})
	require.NoError(t, err)
	require.Len(t, store.ReminderJobs(), 1)

	_, err = eng.Transition(ctx, appt.ID, operator, model.StatusConfirmed)
	require.NoError(t, err)
	got, err := eng.Transition(ctx, appt.ID, operator, model.StatusNoShow)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNoShow, got.Status)

	assert.Empty(t, store.ReminderJobs())
	allocs, err := store.AllocationsForAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Len(t, allocs, 1, "no-show keeps allocations for the record")
}

func TestReminderJobsSkipPastOffsets(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := newTestEngine(t, store,
		engine.WithReminderOffsets([]time.Duration{2 * time.Hour, 30 * time.Minute}),
	)

	svc := mustService(t, eng, "Quick", 15)
	// Appointment one hour out: the 2h offset has already passed, the 30m
	// offset has not.
	_, err := eng.Book(ctx, engine.BookingRequest{ClientID: "c", ServiceID: svc.ID, StartTime: base.Add(time.Hour)})
	require.NoError(t, err)

	jobs := store.ReminderJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, base.Add(30*time.Minute), jobs[0].RemindAt)
}

func TestConfirmationNotificationDispatched(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	notifier := &capturingNotifier{}
	eng := newTestEngine(t, store, engine.WithNotifier(notifier))

	svc := mustService(t, eng, "Intro", 15)
	appt, err := eng.Book(ctx, engine.BookingRequest{
		ClientID:    "c",
		ClientEmail: "c@example.com",
		ServiceID:   svc.ID,
		StartTime:   at(16, 0),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(notifier.kinds()) == 1
	}, time.Second, 10*time.Millisecond)
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, model.NotifyConfirmation, notifier.sent[0].Kind)
	assert.Equal(t, "c@example.com", notifier.sent[0].RecipientEmail)
	assert.Equal(t, appt.ID, notifier.sent[0].AppointmentID)
}

func TestListAppointmentsScopedToClient(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := newTestEngine(t, store)

	svc := mustService(t, eng, "Open", 15)
	_, err := eng.Book(ctx, engine.BookingRequest{ClientID: "a", ServiceID: svc.ID, StartTime: at(9, 0)})
	require.NoError(t, err)
	_, err = eng.Book(ctx, engine.BookingRequest{ClientID: "b", ServiceID: svc.ID, StartTime: at(9, 30)})
	require.NoError(t, err)

	mine, err := eng.ListAppointments(ctx, engine.AppointmentFilter{}, engine.Actor{ID: "a"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "a", mine[0].ClientID)

	all, err := eng.ListAppointments(ctx, engine.AppointmentFilter{}, engine.Actor{ID: "staff", Operator: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = eng.GetAppointment(ctx, mine[0].ID, engine.Actor{ID: "b"})
	assert.ErrorIs(t, err, engine.ErrForbidden)
}

func TestSlots(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := newTestEngine(t, store)

	_, err := eng.RegisterPersonnel(ctx, "p1", "P1")
	require.NoError(t, err)
	svc := mustService(t, eng, "Cut", 30,
		model.ResourceRequirement{ResourceType: model.ResourcePersonnel, Quantity: 1},
	)
	_, err = eng.Book(ctx, engine.BookingRequest{ClientID: "c", ServiceID: svc.ID, StartTime: at(10, 0)})
	require.NoError(t, err)

	slots, err := eng.Slots(ctx, svc.ID, availability.Interval{Start: at(9, 0), End: at(11, 0)}, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(9, 0), at(9, 30), at(10, 30)}, slots)
}

func TestSlotsPoolTooSmall(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := newTestEngine(t, store)

	_, err := eng.RegisterPersonnel(ctx, "p1", "P1")
	require.NoError(t, err)
	svc := mustService(t, eng, "Duo", 30,
		model.ResourceRequirement{ResourceType: model.ResourcePersonnel, Quantity: 2},
	)

	slots, err := eng.Slots(ctx, svc.ID, availability.Interval{Start: at(9, 0), End: at(17, 0)}, 30*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, slots, "one personnel can never satisfy a quantity-two requirement")
}

func TestRetiredResourceNotPlannable(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := newTestEngine(t, store)

	r, err := eng.RegisterPersonnel(ctx, "p1", "P1")
	require.NoError(t, err)
	svc := mustService(t, eng, "Solo", 30,
		model.ResourceRequirement{ResourceType: model.ResourcePersonnel, Quantity: 1},
	)

	updated, err := eng.SetResourceStatus(ctx, r.ID, model.ResourceRetired)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	_, err = eng.Book(ctx, engine.BookingRequest{ClientID: "c", ServiceID: svc.ID, StartTime: at(10, 0)})
	assert.True(t, engine.IsInsufficient(err), "retired resources must not be planned, got %v", err)
}

func TestRegisterPersonnelDuplicate(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := newTestEngine(t, store)

	_, err := eng.RegisterPersonnel(ctx, "p1", "First")
	require.NoError(t, err)
	_, err = eng.RegisterPersonnel(ctx, "p1", "Second")
	assert.ErrorIs(t, err, engine.ErrConflict)
}

func TestCreateServiceValidation(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, memory.New())

	cases := []struct {
		name string
		in   engine.ServiceInput
	}{
		{"empty name", engine.ServiceInput{DurationMins: 30, Price: "10.00"}},
		{"zero duration", engine.ServiceInput{Name: "x", DurationMins: 0, Price: "10.00"}},
		{"bad price", engine.ServiceInput{Name: "x", DurationMins: 30, Price: "free"}},
		{"negative price", engine.ServiceInput{Name: "x", DurationMins: 30, Price: "-5"}},
		{"zero quantity", engine.ServiceInput{Name: "x", DurationMins: 30, Price: "10.00",
			Requirements: []model.ResourceRequirement{{ResourceType: model.ResourcePersonnel, Quantity: 0}}}},
		{"unknown type", engine.ServiceInput{Name: "x", DurationMins: 30, Price: "10.00",
			Requirements: []model.ResourceRequirement{{ResourceType: "ROOM", Quantity: 1}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.CreateService(ctx, tc.in)
			assert.ErrorIs(t, err, engine.ErrInvalidInput)
		})
	}
}

func TestDeactivatedServiceNotBookable(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := newTestEngine(t, store)

	svc := mustService(t, eng, "Massage", 60)
	_, err := eng.Book(ctx, engine.BookingRequest{ClientID: "c1", ServiceID: svc.ID, StartTime: at(9, 0)})
	require.NoError(t, err)

	updated, err := eng.SetServiceActive(ctx, svc.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	// Deactivation hides the service from booking but not from the catalog.
	_, err = eng.Book(ctx, engine.BookingRequest{ClientID: "c2", ServiceID: svc.ID, StartTime: at(11, 0)})
	assert.ErrorIs(t, err, engine.ErrNotFound)
	services, err := eng.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.False(t, services[0].IsActive)

	_, err = eng.SetServiceActive(ctx, svc.ID, true)
	require.NoError(t, err)
	_, err = eng.Book(ctx, engine.BookingRequest{ClientID: "c2", ServiceID: svc.ID, StartTime: at(11, 0)})
	require.NoError(t, err)

	_, err = eng.SetServiceActive(ctx, "no-such-service", false)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

// Two barbers, three clients after the same 09:00 half hour: the third
// booking names the pool that ran dry, and cancelling one appointment
// frees exactly one seat for a rebook.
func TestFullyBookedSlotFreedByCancellation(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := newTestEngine(t, store)

	_, err := eng.RegisterPersonnel(ctx, "p1", "P1")
	require.NoError(t, err)
	_, err = eng.RegisterPersonnel(ctx, "p2", "P2")
	require.NoError(t, err)

	svc := mustService(t, eng, "Haircut", 30,
		model.ResourceRequirement{ResourceType: model.ResourcePersonnel, Quantity: 1},
	)

	first, err := eng.Book(ctx, engine.BookingRequest{ClientID: "c1", ServiceID: svc.ID, StartTime: at(9, 0)})
	require.NoError(t, err)
	_, err = eng.Book(ctx, engine.BookingRequest{ClientID: "c2", ServiceID: svc.ID, StartTime: at(9, 0)})
	require.NoError(t, err)

	_, err = eng.Book(ctx, engine.BookingRequest{ClientID: "c3", ServiceID: svc.ID, StartTime: at(9, 0)})
	var ins *engine.InsufficientResourcesError
	require.ErrorAs(t, err, &ins)
	assert.Equal(t, model.ResourcePersonnel, ins.ResourceType)
	assert.Equal(t, 1, ins.Wanted)
	assert.Equal(t, 0, ins.Got)

	_, err = eng.Cancel(ctx, first.ID, engine.Actor{ID: "c1"}, "changed plans")
	require.NoError(t, err)

	rebooked, err := eng.Book(ctx, engine.BookingRequest{ClientID: "c3", ServiceID: svc.ID, StartTime: at(9, 0)})
	require.NoError(t, err)

	allocs, err := store.AllocationsForAppointment(ctx, rebooked.ID)
	require.NoError(t, err)
	require.Len(t, allocs, 1)

	// Both barbers are taken again; a fourth attempt is back to dry.
	_, err = eng.Book(ctx, engine.BookingRequest{ClientID: "c4", ServiceID: svc.ID, StartTime: at(9, 0)})
	assert.ErrorAs(t, err, &ins)
}
