// Package memory implements engine.Store entirely in process. It backs tests
// and the no-database dev mode of cmd/bookd. Transactions are serialized by a
// single mutex; a failed transaction restores the pre-transaction snapshot,
// so the atomicity the engine relies on holds here too.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/slotwise/bookd/internal/availability"
	"github.com/slotwise/bookd/internal/engine"
	"github.com/slotwise/bookd/internal/model"
)

type state struct {
	services     map[string]model.Service
	requirements map[string][]model.ResourceRequirement
	resources    map[string]model.Resource
	appointments map[string]model.Appointment
	allocations  []model.Allocation
	reminders    []engine.ReminderJob
	events       []engine.Event
}

func newState() *state {
	return &state{
		services:     make(map[string]model.Service),
		requirements: make(map[string][]model.ResourceRequirement),
		resources:    make(map[string]model.Resource),
		appointments: make(map[string]model.Appointment),
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.services {
		c.services[k] = v
	}
	for k, v := range st.requirements {
		c.requirements[k] = append([]model.ResourceRequirement(nil), v...)
	}
	for k, v := range st.resources {
		c.resources[k] = v
	}
	for k, v := range st.appointments {
		c.appointments[k] = v
	}
	c.allocations = append([]model.Allocation(nil), st.allocations...)
	c.reminders = append([]engine.ReminderJob(nil), st.reminders...)
	c.events = append([]engine.Event(nil), st.events...)
	return c
}

// Store is the in-memory engine.Store. The zero value is not usable; call New.
type Store struct {
	mu sync.Mutex
	st *state

	// AppendEventErr, when set, makes the next AppendEvent inside a
	// transaction fail. Tests use it to prove transactions roll back whole.
	AppendEventErr error
}

var _ engine.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) InTx(_ context.Context, fn func(tx engine.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(&tx{s: s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// Reader methods lock and delegate to the unlocked state implementation, so
// the same code serves both the store view and the transactional view.

func (s *Store) GetService(_ context.Context, id string) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getService(id)
}

func (s *Store) GetRequirements(_ context.Context, serviceID string) ([]model.ResourceRequirement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getRequirements(serviceID)
}

func (s *Store) ListServices(_ context.Context) ([]model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listServices()
}

func (s *Store) ListResources(_ context.Context, f engine.ResourceFilter) ([]model.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listResources(f)
}

func (s *Store) FindAvailable(_ context.Context, rt model.ResourceType, iv availability.Interval, limit int) ([]model.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.findAvailable(rt, iv, limit)
}

func (s *Store) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getAppointment(id)
}

func (s *Store) ListAppointments(_ context.Context, f engine.AppointmentFilter) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listAppointments(f)
}

func (s *Store) AllocationsForAppointment(_ context.Context, appointmentID string) ([]model.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.allocationsForAppointment(appointmentID)
}

func (s *Store) AllocationsInRange(_ context.Context, rt model.ResourceType, iv availability.Interval) ([]model.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.allocationsInRange(rt, iv)
}

// Events returns a copy of the appended outbox events, oldest first.
func (s *Store) Events() []engine.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.Event(nil), s.st.events...)
}

// ReminderJobs returns a copy of the pending reminder jobs.
func (s *Store) ReminderJobs() []engine.ReminderJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.ReminderJob(nil), s.st.reminders...)
}

func (st *state) getService(id string) (model.Service, error) {
	svc, ok := st.services[id]
	if !ok {
		return model.Service{}, fmt.Errorf("service %s: %w", id, engine.ErrNotFound)
	}
	return svc, nil
}

func (st *state) getRequirements(serviceID string) ([]model.ResourceRequirement, error) {
	return append([]model.ResourceRequirement(nil), st.requirements[serviceID]...), nil
}

func (st *state) listServices() ([]model.Service, error) {
	out := make([]model.Service, 0, len(st.services))
	for _, svc := range st.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (st *state) listResources(f engine.ResourceFilter) ([]model.Resource, error) {
	var out []model.Resource
	for _, r := range st.resources {
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.ActiveOnly && !r.IsActive {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (st *state) findAvailable(rt model.ResourceType, iv availability.Interval, limit int) ([]model.Resource, error) {
	candidates, _ := st.listResources(engine.ResourceFilter{
		Type:       rt,
		Status:     model.ResourceAvailable,
		ActiveOnly: true,
	})
	var out []model.Resource
	for _, r := range candidates {
		if len(out) >= limit {
			break
		}
		if st.resourceFree(r.ID, iv) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (st *state) resourceFree(resourceID string, iv availability.Interval) bool {
	for _, al := range st.allocations {
		if al.ResourceID != resourceID {
			continue
		}
		if iv.Overlaps(availability.Interval{Start: al.StartTime, End: al.EndTime}) {
			return false
		}
	}
	return true
}

func (st *state) getAppointment(id string) (model.Appointment, error) {
	appt, ok := st.appointments[id]
	if !ok {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", id, engine.ErrNotFound)
	}
	return appt, nil
}

func (st *state) listAppointments(f engine.AppointmentFilter) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, appt := range st.appointments {
		if !f.From.IsZero() && appt.StartTime.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !appt.StartTime.Before(f.To) {
			continue
		}
		if f.Status != "" && appt.Status != f.Status {
			continue
		}
		if f.ClientID != "" && appt.ClientID != f.ClientID {
			continue
		}
		out = append(out, appt)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (st *state) allocationsForAppointment(appointmentID string) ([]model.Allocation, error) {
	var out []model.Allocation
	for _, al := range st.allocations {
		if al.AppointmentID == appointmentID {
			out = append(out, al)
		}
	}
	return out, nil
}

func (st *state) allocationsInRange(rt model.ResourceType, iv availability.Interval) ([]model.Allocation, error) {
	var out []model.Allocation
	for _, al := range st.allocations {
		r, ok := st.resources[al.ResourceID]
		if !ok || r.Type != rt {
			continue
		}
		if iv.Overlaps(availability.Interval{Start: al.StartTime, End: al.EndTime}) {
			out = append(out, al)
		}
	}
	return out, nil
}

// tx is the transactional view. The mutex is already held for the whole
// transaction, so it reads and writes store state directly; InTx restores a
// snapshot on error.
type tx struct {
	s *Store
}

var _ engine.Tx = (*tx)(nil)

func (t *tx) GetService(_ context.Context, id string) (model.Service, error) {
	return t.s.st.getService(id)
}

func (t *tx) GetRequirements(_ context.Context, serviceID string) ([]model.ResourceRequirement, error) {
	return t.s.st.getRequirements(serviceID)
}

func (t *tx) ListServices(_ context.Context) ([]model.Service, error) {
	return t.s.st.listServices()
}

func (t *tx) ListResources(_ context.Context, f engine.ResourceFilter) ([]model.Resource, error) {
	return t.s.st.listResources(f)
}

func (t *tx) FindAvailable(_ context.Context, rt model.ResourceType, iv availability.Interval, limit int) ([]model.Resource, error) {
	return t.s.st.findAvailable(rt, iv, limit)
}

func (t *tx) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	return t.s.st.getAppointment(id)
}

func (t *tx) ListAppointments(_ context.Context, f engine.AppointmentFilter) ([]model.Appointment, error) {
	return t.s.st.listAppointments(f)
}

func (t *tx) AllocationsForAppointment(_ context.Context, appointmentID string) ([]model.Allocation, error) {
	return t.s.st.allocationsForAppointment(appointmentID)
}

func (t *tx) AllocationsInRange(_ context.Context, rt model.ResourceType, iv availability.Interval) ([]model.Allocation, error) {
	return t.s.st.allocationsInRange(rt, iv)
}

func (t *tx) ResourceFree(_ context.Context, resourceID string, iv availability.Interval) (bool, error) {
	r, ok := t.s.st.resources[resourceID]
	if !ok {
		return false, fmt.Errorf("resource %s: %w", resourceID, engine.ErrNotFound)
	}
	if r.Status != model.ResourceAvailable || !r.IsActive {
		return false, nil
	}
	return t.s.st.resourceFree(resourceID, iv), nil
}

func (t *tx) GetAppointmentForUpdate(_ context.Context, id string) (model.Appointment, error) {
	return t.s.st.getAppointment(id)
}

func (t *tx) InsertResource(_ context.Context, r *model.Resource) error {
	if _, ok := t.s.st.resources[r.ID]; ok {
		return fmt.Errorf("resource %s already exists: %w", r.ID, engine.ErrConflict)
	}
	if r.Type == model.ResourcePersonnel {
		for _, existing := range t.s.st.resources {
			if existing.PersonnelID == r.PersonnelID {
				return fmt.Errorf("personnel %s already registered: %w", r.PersonnelID, engine.ErrConflict)
			}
		}
	}
	t.s.st.resources[r.ID] = *r
	return nil
}

func (t *tx) UpdateResource(_ context.Context, id string, status model.ResourceStatus, isActive bool) (model.Resource, error) {
	r, ok := t.s.st.resources[id]
	if !ok {
		return model.Resource{}, fmt.Errorf("resource %s: %w", id, engine.ErrNotFound)
	}
	r.Status = status
	r.IsActive = isActive
	t.s.st.resources[id] = r
	return r, nil
}

func (t *tx) InsertService(_ context.Context, s *model.Service, reqs []model.ResourceRequirement) error {
	if _, ok := t.s.st.services[s.ID]; ok {
		return fmt.Errorf("service %s already exists: %w", s.ID, engine.ErrConflict)
	}
	t.s.st.services[s.ID] = *s
	t.s.st.requirements[s.ID] = append([]model.ResourceRequirement(nil), reqs...)
	return nil
}

func (t *tx) UpdateServiceActive(_ context.Context, id string, active bool) (model.Service, error) {
	svc, ok := t.s.st.services[id]
	if !ok {
		return model.Service{}, fmt.Errorf("service %s: %w", id, engine.ErrNotFound)
	}
	svc.IsActive = active
	t.s.st.services[id] = svc
	return svc, nil
}

func (t *tx) InsertAppointment(_ context.Context, a *model.Appointment) error {
	if _, ok := t.s.st.appointments[a.ID]; ok {
		return fmt.Errorf("appointment %s already exists: %w", a.ID, engine.ErrConflict)
	}
	t.s.st.appointments[a.ID] = *a
	return nil
}

// InsertAllocation enforces the no-overlap rule the SQL store delegates to
// its exclusion constraint.
func (t *tx) InsertAllocation(_ context.Context, al *model.Allocation) error {
	iv := availability.Interval{Start: al.StartTime, End: al.EndTime}
	if !t.s.st.resourceFree(al.ResourceID, iv) {
		return fmt.Errorf("resource %s already allocated in interval: %w", al.ResourceID, engine.ErrConflict)
	}
	t.s.st.allocations = append(t.s.st.allocations, *al)
	return nil
}

func (t *tx) UpdateAppointmentStatus(_ context.Context, id string, status model.AppointmentStatus) error {
	appt, ok := t.s.st.appointments[id]
	if !ok {
		return fmt.Errorf("appointment %s: %w", id, engine.ErrNotFound)
	}
	appt.Status = status
	t.s.st.appointments[id] = appt
	return nil
}

func (t *tx) MarkCancelled(_ context.Context, id string, reason string, at time.Time) error {
	appt, ok := t.s.st.appointments[id]
	if !ok {
		return fmt.Errorf("appointment %s: %w", id, engine.ErrNotFound)
	}
	appt.Status = model.StatusCancelled
	appt.CancelReason = reason
	appt.CancelledAt = &at
	t.s.st.appointments[id] = appt
	return nil
}

func (t *tx) DeleteAllocations(_ context.Context, appointmentID string) (int, error) {
	kept := t.s.st.allocations[:0:0]
	removed := 0
	for _, al := range t.s.st.allocations {
		if al.AppointmentID == appointmentID {
			removed++
			continue
		}
		kept = append(kept, al)
	}
	t.s.st.allocations = kept
	return removed, nil
}

func (t *tx) InsertReminderJob(_ context.Context, job engine.ReminderJob) error {
	t.s.st.reminders = append(t.s.st.reminders, job)
	return nil
}

func (t *tx) DeleteReminderJobs(_ context.Context, appointmentID string) error {
	kept := t.s.st.reminders[:0:0]
	for _, job := range t.s.st.reminders {
		if job.AppointmentID == appointmentID {
			continue
		}
		kept = append(kept, job)
	}
	t.s.st.reminders = kept
	return nil
}

func (t *tx) AppendEvent(_ context.Context, evt engine.Event) error {
	if err := t.s.AppendEventErr; err != nil {
		t.s.AppendEventErr = nil
		return err
	}
	t.s.st.events = append(t.s.st.events, evt)
	return nil
}
