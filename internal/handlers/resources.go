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

type ResourceHandler struct {
	eng    *engine.Engine
	logger *slog.Logger
}

func NewResourceHandler(eng *engine.Engine, logger *slog.Logger) *ResourceHandler {
	return &ResourceHandler{eng: eng, logger: logger}
}

type resourceItem struct {
	ResourceID   string `json:"resource_id"`
	Type         string `json:"type"`
	Status       string `json:"status"`
	IsActive     bool   `json:"is_active"`
	DisplayName  string `json:"display_name,omitempty"`
	PersonnelID  string `json:"personnel_id,omitempty"`
	Model        string `json:"model,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func resourceToItem(r model.Resource) resourceItem {
	item := resourceItem{
		ResourceID:  r.ID,
		Type:        string(r.Type),
		Status:      string(r.Status),
		IsActive:    r.IsActive,
		DisplayName: r.DisplayName,
		PersonnelID: r.PersonnelID,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
	if r.Equipment != nil {
		item.Model = r.Equipment.Model
		item.SerialNumber = r.Equipment.SerialNumber
	}
	return item
}

func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var f engine.ResourceFilter
	q := r.URL.Query()
	if raw := strings.ToUpper(strings.TrimSpace(q.Get("type"))); raw != "" {
		rt := model.ResourceType(raw)
		if rt != model.ResourcePersonnel && rt != model.ResourceEquipment {
			http.Error(w, "invalid type", http.StatusBadRequest)
			return
		}
		f.Type = rt
	}
	if raw := strings.ToUpper(strings.TrimSpace(q.Get("status"))); raw != "" {
		f.Status = model.ResourceStatus(raw)
	}

	resources, err := h.eng.ListResources(r.Context(), f)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	items := make([]resourceItem, 0, len(resources))
	for _, res := range resources {
		items = append(items, resourceToItem(res))
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": items})
}

type registerEquipmentRequest struct {
	Name         string `json:"name"`
	Model        string `json:"model"`
	SerialNumber string `json:"serial_number"`
}

func (h *ResourceHandler) RegisterEquipment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireOperator(w, r) {
		return
	}

	var req registerEquipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}

	res, err := h.eng.RegisterEquipment(r.Context(), req.Name, strings.TrimSpace(req.Model), strings.TrimSpace(req.SerialNumber))
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, resourceToItem(res))
}

type registerPersonnelRequest struct {
	PersonnelID string `json:"personnel_id"`
	DisplayName string `json:"display_name"`
}

func (h *ResourceHandler) RegisterPersonnel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireOperator(w, r) {
		return
	}

	var req registerPersonnelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PersonnelID = strings.TrimSpace(req.PersonnelID)
	if req.PersonnelID == "" {
		http.Error(w, "personnel_id required", http.StatusBadRequest)
		return
	}

	res, err := h.eng.RegisterPersonnel(r.Context(), req.PersonnelID, strings.TrimSpace(req.DisplayName))
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, resourceToItem(res))
}

type resourceStatusRequest struct {
	ResourceID string `json:"resource_id"`
	Status     string `json:"status"`
}

func (h *ResourceHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireOperator(w, r) {
		return
	}

	var req resourceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ResourceID = strings.TrimSpace(req.ResourceID)
	status := model.ResourceStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if req.ResourceID == "" || status == "" {
		http.Error(w, "resource_id and status required", http.StatusBadRequest)
		return
	}

	res, err := h.eng.SetResourceStatus(r.Context(), req.ResourceID, status)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resourceToItem(res))
}

func requireOperator(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := requestActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if !actor.Operator {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}
