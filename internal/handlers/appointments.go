package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ruanmelo/navalha/internal/model"
	"github.com/ruanmelo/navalha/internal/scheduling"
)

type createAppointmentRequest struct {
	ClientID  string `json:"client_id"`
	ServiceID string `json:"service_id"`
	Day       string `json:"day"`
	Start     string `json:"start"`
	Notes     string `json:"notes"`
}

func (h *Handler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listAppointments(w, r)
	case http.MethodPost:
		h.createAppointment(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.ServiceID == "" {
		http.Error(w, "service_id is required", http.StatusBadRequest)
		return
	}
	day, err := parseDay(strings.TrimSpace(req.Day))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	startMin, err := parseClock(strings.TrimSpace(req.Start))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Empty client books a walk-in.
	var clientID *string
	if id := strings.TrimSpace(req.ClientID); id != "" {
		clientID = &id
	}

	appt, err := h.scheduler.Create(r.Context(), scheduling.CreateParams{
		ClientID:  clientID,
		ServiceID: req.ServiceID,
		Day:       day,
		StartMin:  startMin,
		Notes:     strings.TrimSpace(req.Notes),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	item, err := h.appointmentView(r.Context(), appt, map[string]int{})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	fromStr := strings.TrimSpace(r.URL.Query().Get("from"))
	toStr := strings.TrimSpace(r.URL.Query().Get("to"))
	if fromStr == "" || toStr == "" {
		http.Error(w, "from and to are required", http.StatusBadRequest)
		return
	}
	from, err := parseDay(fromStr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseDay(toStr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	appts, err := h.dir.AppointmentsInRange(r.Context(), from, to)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeAppointmentList(w, r, appts)
}

// Agenda returns one day's appointments ordered by start time, the
// barber's daily panel. Defaults to today.
func (h *Handler) Agenda(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	day := model.Day(time.Now().UTC())
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := parseDay(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		day = parsed
	}

	appts, err := h.dir.AppointmentsOnDay(r.Context(), day)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeAppointmentList(w, r, appts)
}

func (h *Handler) writeAppointmentList(w http.ResponseWriter, r *http.Request, appts []model.Appointment) {
	durations := map[string]int{}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		item, err := h.appointmentView(r.Context(), a, durations)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	ServiceID     string `json:"service_id"`
	Day           string `json:"day"`
	Start         string `json:"start"`
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	var params scheduling.RescheduleParams
	if id := strings.TrimSpace(req.ServiceID); id != "" {
		params.ServiceID = &id
	}
	if raw := strings.TrimSpace(req.Day); raw != "" {
		day, err := parseDay(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		params.Day = &day
	}
	if raw := strings.TrimSpace(req.Start); raw != "" {
		startMin, err := parseClock(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		params.StartMin = &startMin
	}
	if params.ServiceID == nil && params.Day == nil && params.StartMin == nil {
		http.Error(w, "nothing to reschedule", http.StatusBadRequest)
		return
	}

	appt, err := h.scheduler.Reschedule(r.Context(), req.AppointmentID, params)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	item, err := h.appointmentView(r.Context(), appt, map[string]int{})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		AppointmentID string `json:"appointment_id"`
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
	if err := h.scheduler.Delete(r.Context(), req.AppointmentID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
