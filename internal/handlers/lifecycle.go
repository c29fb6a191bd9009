package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ruanmelo/navalha/internal/model"
	"github.com/ruanmelo/navalha/internal/notify"
)

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func decodeTransition(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return "", false
	}
	id := strings.TrimSpace(req.AppointmentID)
	if id == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

type notificationView struct {
	Delivered  bool   `json:"delivered"`
	Reason     string `json:"reason,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
}

type enRouteResponse struct {
	Appointment  appointmentItem  `json:"appointment"`
	Notification notificationView `json:"notification"`
}

// MarkEnRoute flips the appointment to en_route and reports whether the
// client SMS went out. A failed or skipped SMS never fails the request.
func (h *Handler) MarkEnRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AppointmentID          string `json:"appointment_id"`
		ArrivalEstimateMinutes int    `json:"arrival_estimate_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}
	if req.ArrivalEstimateMinutes < 0 {
		http.Error(w, "arrival_estimate_minutes must not be negative", http.StatusBadRequest)
		return
	}

	appt, res, err := h.machine.MarkEnRoute(r.Context(), req.AppointmentID, req.ArrivalEstimateMinutes)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	item, err := h.appointmentView(r.Context(), appt, map[string]int{})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enRouteResponse{
		Appointment:  item,
		Notification: notificationViewFrom(res),
	})
}

func notificationViewFrom(res notify.Result) notificationView {
	return notificationView{
		Delivered:  res.Delivered,
		Reason:     res.Reason,
		ProviderID: res.ProviderID,
	}
}

func (h *Handler) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeTransition(w, r)
	if !ok {
		return
	}
	appt, err := h.machine.MarkCompleted(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeAppointment(w, r, appt)
}

func (h *Handler) MarkCancelled(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeTransition(w, r)
	if !ok {
		return
	}
	appt, err := h.machine.MarkCancelled(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeAppointment(w, r, appt)
}

// SetPayment toggles paid/pending. Unlike the lifecycle edges this is legal
// on any status, so a completed cut can still be settled later.
func (h *Handler) SetPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AppointmentID string `json:"appointment_id"`
		Paid          bool   `json:"paid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	appt, err := h.machine.SetPaymentStatus(r.Context(), req.AppointmentID, req.Paid)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeAppointment(w, r, appt)
}

func (h *Handler) writeAppointment(w http.ResponseWriter, r *http.Request, appt model.Appointment) {
	item, err := h.appointmentView(r.Context(), appt, map[string]int{})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
