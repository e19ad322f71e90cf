package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/slotwise/bookd/internal/model"
)

// RegisterEquipment onboards an equipment item as a bookable resource.
func (e *Engine) RegisterEquipment(ctx context.Context, name, equipmentModel, serialNumber string) (model.Resource, error) {
	if name == "" {
		return model.Resource{}, fmt.Errorf("equipment name required: %w", ErrInvalidInput)
	}
	r := model.Resource{
		ID:          uuid.NewString(),
		Type:        model.ResourceEquipment,
		Status:      model.ResourceAvailable,
		IsActive:    true,
		DisplayName: name,
		Equipment: &model.EquipmentProfile{
			Model:        equipmentModel,
			SerialNumber: serialNumber,
		},
		CreatedAt: e.now(),
	}
	err := e.store.InTx(ctx, func(tx Tx) error {
		return tx.InsertResource(ctx, &r)
	})
	if err != nil {
		return model.Resource{}, err
	}
	return r, nil
}

// RegisterPersonnel onboards a staff member as a bookable resource. At most
// one resource may reference a given personnel id; a second registration
// fails with ErrConflict.
func (e *Engine) RegisterPersonnel(ctx context.Context, personnelID, displayName string) (model.Resource, error) {
	if personnelID == "" {
		return model.Resource{}, fmt.Errorf("personnel id required: %w", ErrInvalidInput)
	}
	r := model.Resource{
		ID:          uuid.NewString(),
		Type:        model.ResourcePersonnel,
		Status:      model.ResourceAvailable,
		IsActive:    true,
		DisplayName: displayName,
		PersonnelID: personnelID,
		CreatedAt:   e.now(),
	}
	err := e.store.InTx(ctx, func(tx Tx) error {
		return tx.InsertResource(ctx, &r)
	})
	if err != nil {
		return model.Resource{}, err
	}
	return r, nil
}

func (e *Engine) ListResources(ctx context.Context, f ResourceFilter) ([]model.Resource, error) {
	return e.store.ListResources(ctx, f)
}

// SetResourceStatus mutates a resource's coarse status. Retiring also
// deactivates: historical allocations keep referencing the row, the resource
// just stops qualifying for new ones.
func (e *Engine) SetResourceStatus(ctx context.Context, id string, status model.ResourceStatus) (model.Resource, error) {
	switch status {
	case model.ResourceAvailable, model.ResourceUnavailable, model.ResourceRetired:
	default:
		return model.Resource{}, fmt.Errorf("unknown resource status %q: %w", status, ErrInvalidInput)
	}
	var updated model.Resource
	err := e.store.InTx(ctx, func(tx Tx) error {
		var err error
		updated, err = tx.UpdateResource(ctx, id, status, status != model.ResourceRetired)
		return err
	})
	if err != nil {
		return model.Resource{}, err
	}
	return updated, nil
}
