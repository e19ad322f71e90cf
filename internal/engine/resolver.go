package engine

import (
	"context"
	"fmt"

	"github.com/slotwise/bookd/internal/model"
)

// resolveService loads a service and treats inactive ones as absent, so a
// disabled service can no longer be booked under its old id.
func (e *Engine) resolveService(ctx context.Context, serviceID string) (model.Service, error) {
	svc, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		return model.Service{}, err
	}
	if !svc.IsActive {
		return model.Service{}, fmt.Errorf("service %s is inactive: %w", serviceID, ErrNotFound)
	}
	return svc, nil
}

// resolveRequirements fetches a service's requirements fresh on every booking
// attempt (availability data is time-sensitive, so no caching) and merges
// rows of the same resource type by summing quantities. Two rows asking for
// the same type draw from one pool; treating them independently would let the
// planner hand the same resource out twice.
func (e *Engine) resolveRequirements(ctx context.Context, serviceID string) ([]model.ResourceRequirement, error) {
	reqs, err := e.store.GetRequirements(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return mergeRequirements(reqs), nil
}

func mergeRequirements(reqs []model.ResourceRequirement) []model.ResourceRequirement {
	if len(reqs) == 0 {
		return nil
	}
	index := make(map[model.ResourceType]int, len(reqs))
	merged := make([]model.ResourceRequirement, 0, len(reqs))
	for _, r := range reqs {
		if i, ok := index[r.ResourceType]; ok {
			merged[i].Quantity += r.Quantity
			continue
		}
		index[r.ResourceType] = len(merged)
		merged = append(merged, r)
	}
	return merged
}
