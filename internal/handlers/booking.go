package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/slotwise/bookd/internal/auth"
	"github.com/slotwise/bookd/internal/availability"
	"github.com/slotwise/bookd/internal/engine"
	"github.com/slotwise/bookd/internal/model"
)

type BookingHandler struct {
	eng    *engine.Engine
	logger *slog.Logger
}

func NewBookingHandler(eng *engine.Engine, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{eng: eng, logger: logger}
}

func requestActor(r *http.Request) (engine.Actor, bool) {
	a, ok := auth.ActorFromContext(r.Context())
	if !ok {
		return engine.Actor{}, false
	}
	return engine.Actor{ID: a.ID, Operator: a.Operator()}, true
}

type createAppointmentRequest struct {
	ServiceID   string `json:"service_id"`
	StartTime   string `json:"start_time"`
	ClientEmail string `json:"client_email"`
	Notes       string `json:"notes"`
}

type appointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	ClientID      string `json:"client_id"`
	ServiceID     string `json:"service_id"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	Notes         string `json:"notes,omitempty"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func appointmentToItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID: a.ID,
		ClientID:      a.ClientID,
		ServiceID:     a.ServiceID,
		StartTime:     a.StartTime.Format(time.RFC3339),
		EndTime:       a.EndTime.Format(time.RFC3339),
		Status:        string(a.Status),
		Notes:         a.Notes,
		CancelReason:  a.CancelReason,
		CreatedAt:     a.CreatedAt.Format(time.RFC3339),
	}
	if a.CancelledAt != nil {
		item.CancelledAt = a.CancelledAt.Format(time.RFC3339)
	}
	return item
}

// Appointments serves GET (list, or a single appointment via ?id=) and POST
// (book) on /api/v1/appointments.
func (h *BookingHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *BookingHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.ServiceID == "" {
		http.Error(w, "service_id required", http.StatusBadRequest)
		return
	}
	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	appt, err := h.eng.Book(r.Context(), engine.BookingRequest{
		ClientID:    actor.ID,
		ClientEmail: strings.TrimSpace(req.ClientEmail),
		ServiceID:   req.ServiceID,
		StartTime:   startTime,
		Notes:       strings.TrimSpace(req.Notes),
	})
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, appointmentToItem(appt))
}

func (h *BookingHandler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
		appt, err := h.eng.GetAppointment(r.Context(), id, actor)
		if err != nil {
			writeEngineError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentToItem(appt))
		return
	}

	var f engine.AppointmentFilter
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		f.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		f.To = t
	}
	if raw := q.Get("status"); raw != "" {
		status := model.AppointmentStatus(strings.ToUpper(raw))
		if !model.ValidStatus(status) {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		f.Status = status
	}

	appts, err := h.eng.ListAppointments(r.Context(), f, actor)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, appointmentToItem(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := requestActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	appt, err := h.eng.Cancel(r.Context(), req.AppointmentID, actor, strings.TrimSpace(req.Reason))
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentToItem(appt))
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

func (h *BookingHandler) Transition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := requestActor(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	status := model.AppointmentStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if req.AppointmentID == "" || status == "" {
		http.Error(w, "appointment_id and status required", http.StatusBadRequest)
		return
	}

	appt, err := h.eng.Transition(r.Context(), req.AppointmentID, actor, status)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentToItem(appt))
}

// Slots lists feasible start times for a service within a window. Defaults:
// the window opens now, spans one day, and candidates step every 15 minutes.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	serviceID := strings.TrimSpace(q.Get("service_id"))
	if serviceID == "" {
		http.Error(w, "service_id required", http.StatusBadRequest)
		return
	}

	window := availability.Interval{
		Start: time.Now().UTC().Truncate(time.Minute),
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		window.Start = t
	}
	window.End = window.Start.Add(24 * time.Hour)
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		window.End = t
	}

	step := 15 * time.Minute
	if raw := q.Get("step_minutes"); raw != "" {
		d, err := time.ParseDuration(raw + "m")
		if err != nil || d <= 0 {
			http.Error(w, "invalid step_minutes", http.StatusBadRequest)
			return
		}
		step = d
	}

	slots, err := h.eng.Slots(r.Context(), serviceID, window, step)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	out := make([]string, 0, len(slots))
	for _, t := range slots {
		out = append(out, t.Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, map[string]any{"service_id": serviceID, "slots": out})
}
