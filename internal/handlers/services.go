package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/slotwise/bookd/internal/engine"
	"github.com/slotwise/bookd/internal/model"
)

type ServiceHandler struct {
	eng    *engine.Engine
	logger *slog.Logger
}

func NewServiceHandler(eng *engine.Engine, logger *slog.Logger) *ServiceHandler {
	return &ServiceHandler{eng: eng, logger: logger}
}

type requirementItem struct {
	ResourceType string `json:"resource_type"`
	Quantity     int    `json:"quantity"`
}

type serviceItem struct {
	ServiceID    string            `json:"service_id"`
	Name         string            `json:"name"`
	CategoryID   string            `json:"category_id,omitempty"`
	Description  string            `json:"description,omitempty"`
	DurationMins int               `json:"duration_minutes"`
	Price        string            `json:"price"`
	IsActive     bool              `json:"is_active"`
	Requirements []requirementItem `json:"requirements,omitempty"`
	CreatedAt    string            `json:"created_at"`
}

func serviceToItem(s model.Service, reqs []model.ResourceRequirement) serviceItem {
	item := serviceItem{
		ServiceID:    s.ID,
		Name:         s.Name,
		CategoryID:   s.CategoryID,
		Description:  s.Description,
		DurationMins: s.DurationMins,
		Price:        s.Price,
		IsActive:     s.IsActive,
		CreatedAt:    s.CreatedAt.Format(time.RFC3339),
	}
	for _, r := range reqs {
		item.Requirements = append(item.Requirements, requirementItem{
			ResourceType: string(r.ResourceType),
			Quantity:     r.Quantity,
		})
	}
	return item
}

// Services serves GET (catalog) and POST (create) on /api/v1/services.
func (h *ServiceHandler) Services(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type serviceStatusRequest struct {
	ServiceID string `json:"service_id"`
	Active    *bool  `json:"active"`
}

// SetStatus serves POST /api/v1/services/status: soft-deactivate or
// reactivate a service. The catalog keeps the row either way.
func (h *ServiceHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireOperator(w, r) {
		return
	}

	var req serviceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.ServiceID == "" || req.Active == nil {
		http.Error(w, "service_id and active required", http.StatusBadRequest)
		return
	}

	svc, err := h.eng.SetServiceActive(r.Context(), req.ServiceID, *req.Active)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	reqs, err := h.eng.ServiceRequirements(r.Context(), svc.ID)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, serviceToItem(svc, reqs))
}

func (h *ServiceHandler) list(w http.ResponseWriter, r *http.Request) {
	services, err := h.eng.ListServices(r.Context())
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	items := make([]serviceItem, 0, len(services))
	for _, s := range services {
		reqs, err := h.eng.ServiceRequirements(r.Context(), s.ID)
		if err != nil {
			writeEngineError(w, h.logger, err)
			return
		}
		items = append(items, serviceToItem(s, reqs))
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": items})
}

type createServiceRequest struct {
	Name         string            `json:"name"`
	CategoryID   string            `json:"category_id"`
	Description  string            `json:"description"`
	DurationMins int               `json:"duration_minutes"`
	Price        string            `json:"price"`
	Requirements []requirementItem `json:"requirements"`
}

func (h *ServiceHandler) create(w http.ResponseWriter, r *http.Request) {
	if !requireOperator(w, r) {
		return
	}

	var req createServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Price = strings.TrimSpace(req.Price)
	if req.Name == "" || req.Price == "" || req.DurationMins <= 0 {
		http.Error(w, "name, price and positive duration_minutes required", http.StatusBadRequest)
		return
	}

	reqs := make([]model.ResourceRequirement, 0, len(req.Requirements))
	for _, item := range req.Requirements {
		rt := model.ResourceType(strings.ToUpper(strings.TrimSpace(item.ResourceType)))
		if rt != model.ResourcePersonnel && rt != model.ResourceEquipment {
			http.Error(w, "invalid requirement resource_type", http.StatusBadRequest)
			return
		}
		if item.Quantity < 1 {
			http.Error(w, "requirement quantity must be at least 1", http.StatusBadRequest)
			return
		}
		reqs = append(reqs, model.ResourceRequirement{ResourceType: rt, Quantity: item.Quantity})
	}

	svc, err := h.eng.CreateService(r.Context(), engine.ServiceInput{
		Name:         req.Name,
		CategoryID:   strings.TrimSpace(req.CategoryID),
		Description:  strings.TrimSpace(req.Description),
		DurationMins: req.DurationMins,
		Price:        req.Price,
		Requirements: reqs,
	})
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, serviceToItem(svc, reqs))
}
