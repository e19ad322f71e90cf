package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/slotwise/bookd/internal/model"
)

type ServiceInput struct {
	Name         string
	CategoryID   string
	Description  string
	DurationMins int
	Price        string
	Requirements []model.ResourceRequirement
}

// CreateService adds a bookable service and its resource requirements. A
// service with no requirements is legal and always feasible.
func (e *Engine) CreateService(ctx context.Context, in ServiceInput) (model.Service, error) {
	if in.Name == "" {
		return model.Service{}, fmt.Errorf("service name required: %w", ErrInvalidInput)
	}
	if in.DurationMins <= 0 {
		return model.Service{}, fmt.Errorf("service duration must be positive: %w", ErrInvalidInput)
	}
	price, err := strconv.ParseFloat(in.Price, 64)
	if err != nil || price <= 0 {
		return model.Service{}, fmt.Errorf("service price must be positive: %w", ErrInvalidInput)
	}
	for _, r := range in.Requirements {
		if r.Quantity < 1 {
			return model.Service{}, fmt.Errorf("requirement quantity must be at least 1: %w", ErrInvalidInput)
		}
		if r.ResourceType != model.ResourcePersonnel && r.ResourceType != model.ResourceEquipment {
			return model.Service{}, fmt.Errorf("unknown resource type %q: %w", r.ResourceType, ErrInvalidInput)
		}
	}

	svc := model.Service{
		ID:           uuid.NewString(),
		Name:         in.Name,
		CategoryID:   in.CategoryID,
		Description:  in.Description,
		DurationMins: in.DurationMins,
		Price:        in.Price,
		IsActive:     true,
		CreatedAt:    e.now(),
	}
	err = e.store.InTx(ctx, func(tx Tx) error {
		return tx.InsertService(ctx, &svc, in.Requirements)
	})
	if err != nil {
		return model.Service{}, err
	}
	return svc, nil
}

// SetServiceActive soft-deactivates or reactivates a service. A deactivated
// service stays in the catalog and keeps its existing appointments, but new
// bookings resolve it as not found, same as a retired resource stops
// qualifying for new allocations.
func (e *Engine) SetServiceActive(ctx context.Context, id string, active bool) (model.Service, error) {
	if id == "" {
		return model.Service{}, fmt.Errorf("service id required: %w", ErrInvalidInput)
	}
	var updated model.Service
	err := e.store.InTx(ctx, func(tx Tx) error {
		var err error
		updated, err = tx.UpdateServiceActive(ctx, id, active)
		return err
	})
	if err != nil {
		return model.Service{}, err
	}
	return updated, nil
}

func (e *Engine) ListServices(ctx context.Context) ([]model.Service, error) {
	return e.store.ListServices(ctx)
}

func (e *Engine) ServiceRequirements(ctx context.Context, serviceID string) ([]model.ResourceRequirement, error) {
	if _, err := e.store.GetService(ctx, serviceID); err != nil {
		return nil, err
	}
	return e.store.GetRequirements(ctx, serviceID)
}
