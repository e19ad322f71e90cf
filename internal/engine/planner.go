package engine

import (
	"context"

	"github.com/slotwise/bookd/internal/availability"
	"github.com/slotwise/bookd/internal/model"
)

// AllocationDraft is one provisional resource-to-requirement assignment. It
// is not a reservation: nothing is held until the booking transaction
// re-validates and commits.
type AllocationDraft struct {
	ResourceID   string
	ResourceType model.ResourceType
}

// Planner selects concrete resources for a set of requirements. It holds a
// read-only store view and never persists anything.
type Planner struct {
	store Reader
}

func NewPlanner(store Reader) *Planner {
	return &Planner{store: store}
}

// Plan draws, per requirement in order, quantity non-overlapping resources
// from the overlap index. The first under-supplied requirement fails the
// whole plan; earlier selections are discarded, not reserved.
func (p *Planner) Plan(ctx context.Context, reqs []model.ResourceRequirement, iv availability.Interval) ([]AllocationDraft, error) {
	if err := iv.Validate(); err != nil {
		return nil, err
	}

	var drafts []AllocationDraft
	for _, req := range reqs {
		candidates, err := p.store.FindAvailable(ctx, req.ResourceType, iv, req.Quantity)
		if err != nil {
			return nil, err
		}
		if len(candidates) < req.Quantity {
			return nil, &InsufficientResourcesError{
				ResourceType: req.ResourceType,
				Wanted:       req.Quantity,
				Got:          len(candidates),
			}
		}
		for _, c := range candidates {
			drafts = append(drafts, AllocationDraft{ResourceID: c.ID, ResourceType: c.Type})
		}
	}
	return drafts, nil
}
