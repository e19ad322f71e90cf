package engine

import (
	"context"
	"time"

	"github.com/slotwise/bookd/internal/availability"
	"github.com/slotwise/bookd/internal/model"
)

// Slots returns candidate start times within the window at which the service
// is feasible: every requirement can be met by enough free resources. This is
// a browsing aid; a returned slot is not a reservation and can still lose the
// race at booking time.
func (e *Engine) Slots(ctx context.Context, serviceID string, window availability.Interval, step time.Duration) ([]time.Time, error) {
	svc, err := e.resolveService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	duration := time.Duration(svc.DurationMins) * time.Minute

	reqs, err := e.resolveRequirements(ctx, svc.ID)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		// No resource gating: every slot in the window is feasible.
		return availability.AvailableSlots(window.Start, window.End, duration, step, nil, e.now()), nil
	}

	type pool struct {
		quantity int
		busy     map[string][]availability.Interval
	}
	pools := make([]pool, 0, len(reqs))
	for _, req := range reqs {
		resources, err := e.store.ListResources(ctx, ResourceFilter{
			Type:       req.ResourceType,
			Status:     model.ResourceAvailable,
			ActiveOnly: true,
		})
		if err != nil {
			return nil, err
		}
		if len(resources) < req.Quantity {
			// The pool can never satisfy this requirement in this window.
			return nil, nil
		}

		allocs, err := e.store.AllocationsInRange(ctx, req.ResourceType, window)
		if err != nil {
			return nil, err
		}
		busy := make(map[string][]availability.Interval, len(resources))
		for _, r := range resources {
			busy[r.ID] = nil
		}
		for _, al := range allocs {
			if _, ok := busy[al.ResourceID]; ok {
				busy[al.ResourceID] = append(busy[al.ResourceID], availability.Interval{Start: al.StartTime, End: al.EndTime})
			}
		}
		pools = append(pools, pool{quantity: req.Quantity, busy: busy})
	}

	now := e.now()
	var slots []time.Time
	for t := window.Start; !t.Add(duration).After(window.End); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		feasible := true
		for _, p := range pools {
			free := 0
			for _, intervals := range p.busy {
				if !availability.OverlapsAny(t, t.Add(duration), intervals) {
					free++
				}
				if free >= p.quantity {
					break
				}
			}
			if free < p.quantity {
				feasible = false
				break
			}
		}
		if feasible {
			slots = append(slots, t)
		}
	}
	return slots, nil
}
