package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ruanmelo/navalha/internal/directory"
	"github.com/ruanmelo/navalha/internal/finance"
	"github.com/ruanmelo/navalha/internal/model"
	"github.com/ruanmelo/navalha/internal/notify"
	"github.com/ruanmelo/navalha/internal/scheduling"
)

type fakeNotifier struct {
	result notify.Result
}

func (f *fakeNotifier) NotifyEnRoute(context.Context, model.Appointment, *model.Client, int) notify.Result {
	return f.result
}

func newTestServer(t *testing.T, notifier scheduling.Notifier) (*httptest.Server, directory.Directory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := directory.NewMemory()
	scheduler := scheduling.NewScheduler(dir, logger)
	machine := scheduling.NewStatusMachine(dir, notifier, logger)
	aggregator := finance.NewAggregator(dir, true)

	mux := http.NewServeMux()
	New(dir, scheduler, machine, aggregator, logger).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, dir
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func createService(t *testing.T, base string) serviceItem {
	t.Helper()
	var svc serviceItem
	code := doJSON(t, http.MethodPost, base+"/api/v1/services", map[string]any{
		"name":             "Corte",
		"duration_minutes": 30,
		"price":            "25.00",
	}, &svc)
	if code != http.StatusCreated {
		t.Fatalf("create service status = %d", code)
	}
	return svc
}

func createAppointment(t *testing.T, base, serviceID, clientID, day, start string) appointmentItem {
	t.Helper()
	var appt appointmentItem
	code := doJSON(t, http.MethodPost, base+"/api/v1/appointments", map[string]any{
		"client_id":  clientID,
		"service_id": serviceID,
		"day":        day,
		"start":      start,
	}, &appt)
	if code != http.StatusCreated {
		t.Fatalf("create appointment status = %d", code)
	}
	return appt
}

func TestAppointmentFlow(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	svc := createService(t, srv.URL)

	appt := createAppointment(t, srv.URL, svc.ID, "", "2026-03-10", "14:00")
	if appt.Status != "confirmed" || appt.PaymentStatus != "pending" {
		t.Fatalf("new appointment = %s/%s, want confirmed/pending", appt.Status, appt.PaymentStatus)
	}
	if appt.End != "14:30" {
		t.Fatalf("end = %s, want 14:30", appt.End)
	}

	// Overlapping slot comes back as a structured 409.
	code := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments", map[string]any{
		"service_id": svc.ID,
		"day":        "2026-03-10",
		"start":      "14:15",
	}, nil)
	if code != http.StatusConflict {
		t.Fatalf("overlap status = %d, want 409", code)
	}

	// Abutting slot is fine.
	createAppointment(t, srv.URL, svc.ID, "", "2026-03-10", "14:30")

	var agenda []appointmentItem
	code = doJSON(t, http.MethodGet, srv.URL+"/api/v1/appointments/agenda?date=2026-03-10", nil, &agenda)
	if code != http.StatusOK {
		t.Fatalf("agenda status = %d", code)
	}
	if len(agenda) != 2 {
		t.Fatalf("agenda size = %d, want 2", len(agenda))
	}
	if agenda[0].Start != "14:00" || agenda[1].Start != "14:30" {
		t.Fatalf("agenda order = %s, %s", agenda[0].Start, agenda[1].Start)
	}
}

func TestAppointmentValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	svc := createService(t, srv.URL)

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing service", map[string]any{"day": "2026-03-10", "start": "14:00"}, http.StatusBadRequest},
		{"bad day", map[string]any{"service_id": svc.ID, "day": "10/03/2026", "start": "14:00"}, http.StatusBadRequest},
		{"bad time", map[string]any{"service_id": svc.ID, "day": "2026-03-10", "start": "2pm"}, http.StatusBadRequest},
		{"unknown service", map[string]any{"service_id": "nope", "day": "2026-03-10", "start": "14:00"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments", tc.body, nil)
			if code != tc.want {
				t.Fatalf("status = %d, want %d", code, tc.want)
			}
		})
	}
}

func TestRescheduleEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	svc := createService(t, srv.URL)
	appt := createAppointment(t, srv.URL, svc.ID, "", "2026-03-10", "14:00")

	var moved appointmentItem
	code := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/reschedule", map[string]any{
		"appointment_id": appt.ID,
		"day":            "2026-03-11",
		"start":          "09:00",
	}, &moved)
	if code != http.StatusOK {
		t.Fatalf("reschedule status = %d", code)
	}
	if moved.Day != "2026-03-11" || moved.Start != "09:00" {
		t.Fatalf("moved to %s %s", moved.Day, moved.Start)
	}
	if moved.CreatedAt != appt.CreatedAt {
		t.Fatalf("created_at changed: %s -> %s", appt.CreatedAt, moved.CreatedAt)
	}

	code = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/reschedule", map[string]any{
		"appointment_id": appt.ID,
	}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("empty reschedule status = %d, want 400", code)
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	srv, dir := newTestServer(t, &fakeNotifier{result: notify.Result{Delivered: true, ProviderID: "fake"}})
	svc := createService(t, srv.URL)

	var client clientItem
	code := doJSON(t, http.MethodPost, srv.URL+"/api/v1/clients", map[string]any{
		"name":  "João Silva",
		"phone": "11999999999",
	}, &client)
	if code != http.StatusCreated {
		t.Fatalf("create client status = %d", code)
	}

	appt := createAppointment(t, srv.URL, svc.ID, client.ID, "2026-03-10", "14:00")

	var enroute enRouteResponse
	code = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/enroute", map[string]any{
		"appointment_id":           appt.ID,
		"arrival_estimate_minutes": 20,
	}, &enroute)
	if code != http.StatusOK {
		t.Fatalf("enroute status = %d", code)
	}
	if enroute.Appointment.Status != "en_route" {
		t.Fatalf("status = %s, want en_route", enroute.Appointment.Status)
	}
	if enroute.Appointment.ArrivalEstimate != 20 {
		t.Fatalf("arrival estimate = %d, want 20", enroute.Appointment.ArrivalEstimate)
	}
	if !enroute.Notification.Delivered || enroute.Notification.ProviderID != "fake" {
		t.Fatalf("notification = %+v", enroute.Notification)
	}

	var completed appointmentItem
	code = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/complete", map[string]any{
		"appointment_id": appt.ID,
	}, &completed)
	if code != http.StatusOK || completed.Status != "completed" {
		t.Fatalf("complete = %d/%s", code, completed.Status)
	}

	// Terminal state: further lifecycle calls are 409, payment stays legal.
	code = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/cancel", map[string]any{
		"appointment_id": appt.ID,
	}, nil)
	if code != http.StatusConflict {
		t.Fatalf("cancel after complete = %d, want 409", code)
	}

	var paid appointmentItem
	code = doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/payment", map[string]any{
		"appointment_id": appt.ID,
		"paid":           true,
	}, &paid)
	if code != http.StatusOK || paid.PaymentStatus != "paid" {
		t.Fatalf("payment = %d/%s", code, paid.PaymentStatus)
	}

	stored, err := dir.GetAppointment(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != model.StatusCompleted || stored.PaymentStatus != model.PaymentPaid {
		t.Fatalf("stored = %s/%s", stored.Status, stored.PaymentStatus)
	}
}

func TestDeleteClientFreesPhoneAndKeepsAppointments(t *testing.T) {
	srv, dir := newTestServer(t, nil)
	svc := createService(t, srv.URL)

	var client clientItem
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/v1/clients", map[string]any{
		"name": "Ana", "phone": "11988887777",
	}, &client); code != http.StatusCreated {
		t.Fatalf("create client status = %d", code)
	}
	appt := createAppointment(t, srv.URL, svc.ID, client.ID, "2026-03-10", "14:00")

	if code := doJSON(t, http.MethodPost, srv.URL+"/api/v1/clients/delete", map[string]any{
		"id": client.ID,
	}, nil); code != http.StatusNoContent {
		t.Fatalf("delete client status = %d", code)
	}

	stored, err := dir.GetAppointment(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("appointment gone: %v", err)
	}
	if stored.ClientID != nil {
		t.Fatal("appointment still references the deleted client")
	}
}

func TestDeleteServiceConflict(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	svc := createService(t, srv.URL)
	createAppointment(t, srv.URL, svc.ID, "", "2026-03-10", "14:00")

	code := doJSON(t, http.MethodPost, srv.URL+"/api/v1/services/delete", map[string]any{
		"id": svc.ID,
	}, nil)
	if code != http.StatusConflict {
		t.Fatalf("delete referenced service = %d, want 409", code)
	}
}

func TestFinanceSummaryEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	svc := createService(t, srv.URL)

	first := createAppointment(t, srv.URL, svc.ID, "", "2026-03-10", "09:00")
	createAppointment(t, srv.URL, svc.ID, "", "2026-03-10", "10:00")

	if code := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/payment", map[string]any{
		"appointment_id": first.ID,
		"paid":           true,
	}, nil); code != http.StatusOK {
		t.Fatalf("payment status = %d", code)
	}

	var sum summaryItem
	code := doJSON(t, http.MethodGet, srv.URL+"/api/v1/finance/summary?date=2026-03-10", nil, &sum)
	if code != http.StatusOK {
		t.Fatalf("summary status = %d", code)
	}
	if sum.Total != "50.00" || sum.Paid != "25.00" || sum.Pending != "25.00" {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.PaidCount != 1 || sum.PendingCount != 1 {
		t.Fatalf("counts = %d/%d, want 1/1", sum.PaidCount, sum.PendingCount)
	}

	// Cancelled appointments drop out when asked to.
	second := createAppointment(t, srv.URL, svc.ID, "", "2026-03-10", "11:00")
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/v1/appointments/cancel", map[string]any{
		"appointment_id": second.ID,
	}, nil); code != http.StatusOK {
		t.Fatalf("cancel status = %d", code)
	}

	code = doJSON(t, http.MethodGet, srv.URL+"/api/v1/finance/summary?date=2026-03-10&include_cancelled=false", nil, &sum)
	if code != http.StatusOK {
		t.Fatalf("summary status = %d", code)
	}
	if sum.Total != "50.00" {
		t.Fatalf("total excluding cancelled = %s, want 50.00", sum.Total)
	}
}
