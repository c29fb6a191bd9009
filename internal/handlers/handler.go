// Package handlers exposes the scheduling engine over JSON/HTTP. Routes are
// a thin translation layer; every invariant lives below in scheduling,
// directory and finance.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ruanmelo/navalha/internal/directory"
	"github.com/ruanmelo/navalha/internal/finance"
	"github.com/ruanmelo/navalha/internal/model"
	"github.com/ruanmelo/navalha/internal/scheduling"
)

type Handler struct {
	dir       directory.Directory
	scheduler *scheduling.Scheduler
	machine   *scheduling.StatusMachine
	finance   *finance.Aggregator
	logger    *slog.Logger
}

func New(dir directory.Directory, scheduler *scheduling.Scheduler, machine *scheduling.StatusMachine, aggregator *finance.Aggregator, logger *slog.Logger) *Handler {
	return &Handler{
		dir:       dir,
		scheduler: scheduler,
		machine:   machine,
		finance:   aggregator,
		logger:    logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/clients", h.Clients)
	mux.HandleFunc("/api/v1/clients/update", h.UpdateClient)
	mux.HandleFunc("/api/v1/clients/delete", h.DeleteClient)

	mux.HandleFunc("/api/v1/services", h.Services)
	mux.HandleFunc("/api/v1/services/update", h.UpdateService)
	mux.HandleFunc("/api/v1/services/delete", h.DeleteService)

	mux.HandleFunc("/api/v1/appointments", h.Appointments)
	mux.HandleFunc("/api/v1/appointments/agenda", h.Agenda)
	mux.HandleFunc("/api/v1/appointments/reschedule", h.Reschedule)
	mux.HandleFunc("/api/v1/appointments/delete", h.DeleteAppointment)
	mux.HandleFunc("/api/v1/appointments/enroute", h.MarkEnRoute)
	mux.HandleFunc("/api/v1/appointments/complete", h.MarkCompleted)
	mux.HandleFunc("/api/v1/appointments/cancel", h.MarkCancelled)
	mux.HandleFunc("/api/v1/appointments/payment", h.SetPayment)

	mux.HandleFunc("/api/v1/finance/summary", h.FinanceSummary)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeDomainError maps engine errors onto HTTP statuses. Unknown errors are
// logged and hidden behind a generic 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var conflict *scheduling.ConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":            conflict.Error(),
			"conflicting_id":   conflict.Appointment.ID,
			"conflicting_from": clockString(conflict.StartMin),
			"conflicting_to":   clockString(conflict.EndMin),
		})
		return
	}
	var invalid *scheduling.InvalidTransitionError
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": invalid.Error()})
		return
	}

	switch {
	case errors.Is(err, directory.ErrClientNotFound),
		errors.Is(err, directory.ErrServiceNotFound),
		errors.Is(err, directory.ErrAppointmentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, directory.ErrServiceReferenced),
		errors.Is(err, directory.ErrPhoneTaken),
		errors.Is(err, directory.ErrSlotTaken):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrInvalidDuration),
		errors.Is(err, model.ErrInvalidPrice),
		errors.Is(err, scheduling.ErrStartOutsideDay):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func parseDay(s string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return d, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func clockString(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

type appointmentItem struct {
	ID              string `json:"id"`
	ClientID        string `json:"client_id,omitempty"`
	ServiceID       string `json:"service_id"`
	Day             string `json:"day"`
	Start           string `json:"start"`
	End             string `json:"end"`
	Status          string `json:"status"`
	PaymentStatus   string `json:"payment_status"`
	Notes           string `json:"notes,omitempty"`
	ArrivalEstimate int    `json:"arrival_estimate_minutes,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func (h *Handler) appointmentView(ctx context.Context, a model.Appointment, durations map[string]int) (appointmentItem, error) {
	d, ok := durations[a.ServiceID]
	if !ok {
		svc, err := h.dir.GetService(ctx, a.ServiceID)
		if err != nil {
			return appointmentItem{}, err
		}
		d = svc.Duration.Minutes()
		durations[a.ServiceID] = d
	}

	item := appointmentItem{
		ID:            a.ID,
		ServiceID:     a.ServiceID,
		Day:           a.Day.Format("2006-01-02"),
		Start:         clockString(a.StartMin),
		End:           clockString(a.StartMin + d),
		Status:        string(a.Status),
		PaymentStatus: string(a.PaymentStatus),
		Notes:         a.Notes,
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.ClientID != nil {
		item.ClientID = *a.ClientID
	}
	if a.ArrivalEstimateMin != nil {
		item.ArrivalEstimate = *a.ArrivalEstimateMin
	}
	return item, nil
}
