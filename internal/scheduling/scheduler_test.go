package scheduling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ruanmelo/navalha/internal/directory"
	"github.com/ruanmelo/navalha/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerCreateRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemory()
	svc := mustService(t, dir, "Corte", 30, "25.00")
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	s := NewScheduler(dir, testLogger())

	first, err := s.Create(ctx, CreateParams{ServiceID: svc.ID, Day: day, StartMin: 14 * 60})
	if err != nil {
		t.Fatalf("create 14:00: %v", err)
	}
	if first.Status != model.StatusConfirmed {
		t.Fatalf("new appointment status = %s, want %s", first.Status, model.StatusConfirmed)
	}
	if first.PaymentStatus != model.PaymentPending {
		t.Fatalf("new appointment payment = %s, want %s", first.PaymentStatus, model.PaymentPending)
	}

	_, err = s.Create(ctx, CreateParams{ServiceID: svc.ID, Day: day, StartMin: 14*60 + 15})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("create 14:15 error = %v, want ConflictError", err)
	}
	if conflict.Appointment.ID != first.ID {
		t.Fatalf("conflicting appointment = %s, want %s", conflict.Appointment.ID, first.ID)
	}

	// A failed create must leave nothing behind.
	appts, err := dir.AppointmentsOnDay(ctx, model.Day(day))
	if err != nil {
		t.Fatalf("list day: %v", err)
	}
	if len(appts) != 1 {
		t.Fatalf("appointments on day = %d, want 1", len(appts))
	}

	if _, err := s.Create(ctx, CreateParams{ServiceID: svc.ID, Day: day, StartMin: 14*60 + 30}); err != nil {
		t.Fatalf("create 14:30: %v", err)
	}
}

func TestSchedulerCreateValidatesStart(t *testing.T) {
	dir := directory.NewMemory()
	svc := mustService(t, dir, "Corte", 30, "25.00")
	s := NewScheduler(dir, testLogger())

	for _, start := range []int{-1, 24 * 60, 24*60 + 15} {
		_, err := s.Create(context.Background(), CreateParams{
			ServiceID: svc.ID,
			Day:       time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			StartMin:  start,
		})
		if !errors.Is(err, ErrStartOutsideDay) {
			t.Fatalf("start %d: error = %v, want ErrStartOutsideDay", start, err)
		}
	}
}

func TestSchedulerCreateUnknownService(t *testing.T) {
	dir := directory.NewMemory()
	s := NewScheduler(dir, testLogger())

	_, err := s.Create(context.Background(), CreateParams{
		ServiceID: "missing",
		Day:       time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		StartMin:  10 * 60,
	})
	if !errors.Is(err, directory.ErrServiceNotFound) {
		t.Fatalf("error = %v, want ErrServiceNotFound", err)
	}
}

func TestSchedulerCreateAppendsEvent(t *testing.T) {
	dir := directory.NewMemory()
	svc := mustService(t, dir, "Corte", 30, "25.00")
	s := NewScheduler(dir, testLogger())

	appt, err := s.Create(context.Background(), CreateParams{
		ServiceID: svc.ID,
		Day:       time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		StartMin:  9 * 60,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	events := dir.Events()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].EventType != EventAppointmentCreated {
		t.Fatalf("event type = %s, want %s", events[0].EventType, EventAppointmentCreated)
	}
	if events[0].AggregateID != appt.ID {
		t.Fatalf("event aggregate = %s, want %s", events[0].AggregateID, appt.ID)
	}
}

func TestSchedulerRescheduleExcludesSelf(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemory()
	svc := mustService(t, dir, "Corte", 30, "25.00")
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	s := NewScheduler(dir, testLogger())

	appt, err := s.Create(ctx, CreateParams{ServiceID: svc.ID, Day: day, StartMin: 14 * 60})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Shifting within its own window must not conflict with itself.
	start := 14*60 + 10
	moved, err := s.Reschedule(ctx, appt.ID, RescheduleParams{StartMin: &start})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.StartMin != start {
		t.Fatalf("start = %d, want %d", moved.StartMin, start)
	}
	if !moved.CreatedAt.Equal(appt.CreatedAt) {
		t.Fatalf("created_at changed on reschedule: %v -> %v", appt.CreatedAt, moved.CreatedAt)
	}
}

func TestSchedulerRescheduleRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemory()
	svc := mustService(t, dir, "Corte", 30, "25.00")
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	s := NewScheduler(dir, testLogger())

	if _, err := s.Create(ctx, CreateParams{ServiceID: svc.ID, Day: day, StartMin: 14 * 60}); err != nil {
		t.Fatalf("create blocker: %v", err)
	}
	victim, err := s.Create(ctx, CreateParams{ServiceID: svc.ID, Day: day, StartMin: 16 * 60})
	if err != nil {
		t.Fatalf("create victim: %v", err)
	}

	start := 14*60 + 15
	_, err = s.Reschedule(ctx, victim.ID, RescheduleParams{StartMin: &start})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %v, want ConflictError", err)
	}

	// The victim stays where it was.
	unchanged, err := dir.GetAppointment(ctx, victim.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if unchanged.StartMin != 16*60 {
		t.Fatalf("start = %d, want %d", unchanged.StartMin, 16*60)
	}
}

func TestSchedulerRescheduleAcrossDays(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemory()
	svc := mustService(t, dir, "Corte", 30, "25.00")
	s := NewScheduler(dir, testLogger())

	appt, err := s.Create(ctx, CreateParams{
		ServiceID: svc.ID,
		Day:       time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		StartMin:  14 * 60,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newDay := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	moved, err := s.Reschedule(ctx, appt.ID, RescheduleParams{Day: &newDay})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if !moved.Day.Equal(model.Day(newDay)) {
		t.Fatalf("day = %v, want %v", moved.Day, model.Day(newDay))
	}

	old, err := dir.AppointmentsOnDay(ctx, model.Day(appt.Day))
	if err != nil {
		t.Fatalf("list old day: %v", err)
	}
	if len(old) != 0 {
		t.Fatalf("old day still has %d appointments", len(old))
	}
}

func TestSchedulerConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemory()
	svc := mustService(t, dir, "Corte", 30, "25.00")
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	s := NewScheduler(dir, testLogger())

	const writers = 8
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(ctx, CreateParams{ServiceID: svc.ID, Day: day, StartMin: 14 * 60})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		var conflict *ConflictError
		switch {
		case err == nil:
			wins++
		case errors.As(err, &conflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
	if conflicts != writers-1 {
		t.Fatalf("conflicts = %d, want %d", conflicts, writers-1)
	}

	appts, err := dir.AppointmentsOnDay(ctx, model.Day(day))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(appts) != 1 {
		t.Fatalf("persisted appointments = %d, want 1", len(appts))
	}
}

// racyDir fails CreateAppointment with ErrSlotTaken a fixed number of times
// before delegating, standing in for a storage-level write race.
type racyDir struct {
	directory.Directory
	remaining *int
}

func (d *racyDir) Atomic(ctx context.Context, fn func(directory.Directory) error) error {
	return d.Directory.Atomic(ctx, func(tx directory.Directory) error {
		return fn(&racyDir{Directory: tx, remaining: d.remaining})
	})
}

func (d *racyDir) CreateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	if *d.remaining > 0 {
		*d.remaining--
		return model.Appointment{}, directory.ErrSlotTaken
	}
	return d.Directory.CreateAppointment(ctx, a)
}

func TestSchedulerCreateRetriesOnceOnWriteRace(t *testing.T) {
	ctx := context.Background()
	mem := directory.NewMemory()
	svc := mustService(t, mem, "Corte", 30, "25.00")
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	failures := 1
	s := NewScheduler(&racyDir{Directory: mem, remaining: &failures}, testLogger())

	appt, err := s.Create(ctx, CreateParams{ServiceID: svc.ID, Day: day, StartMin: 14 * 60})
	if err != nil {
		t.Fatalf("create after one race: %v", err)
	}
	if failures != 0 {
		t.Fatalf("remaining failures = %d, want the race consumed", failures)
	}

	appts, err := mem.AppointmentsOnDay(ctx, model.Day(day))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(appts) != 1 || appts[0].ID != appt.ID {
		t.Fatalf("persisted = %+v, want just %s", appts, appt.ID)
	}
	// The raced first attempt rolled back; only the winning write left an event.
	if events := mem.Events(); len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
}

func TestSchedulerCreateSurfacesRepeatedWriteRace(t *testing.T) {
	ctx := context.Background()
	mem := directory.NewMemory()
	svc := mustService(t, mem, "Corte", 30, "25.00")
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	failures := 2
	s := NewScheduler(&racyDir{Directory: mem, remaining: &failures}, testLogger())

	_, err := s.Create(ctx, CreateParams{ServiceID: svc.ID, Day: day, StartMin: 14 * 60})
	if !errors.Is(err, directory.ErrSlotTaken) {
		t.Fatalf("error = %v, want ErrSlotTaken after the single retry", err)
	}
	if failures != 0 {
		t.Fatalf("remaining failures = %d, want exactly two attempts", failures)
	}

	appts, err := mem.AppointmentsOnDay(ctx, model.Day(day))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(appts) != 0 {
		t.Fatalf("persisted appointments = %d, want 0", len(appts))
	}
}

func TestSchedulerDelete(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemory()
	svc := mustService(t, dir, "Corte", 30, "25.00")
	s := NewScheduler(dir, testLogger())

	appt, err := s.Create(ctx, CreateParams{
		ServiceID: svc.ID,
		Day:       time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		StartMin:  14 * 60,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Delete(ctx, appt.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := dir.GetAppointment(ctx, appt.ID); !errors.Is(err, directory.ErrAppointmentNotFound) {
		t.Fatalf("get after delete = %v, want ErrAppointmentNotFound", err)
	}

	if err := s.Delete(ctx, appt.ID); !errors.Is(err, directory.ErrAppointmentNotFound) {
		t.Fatalf("double delete = %v, want ErrAppointmentNotFound", err)
	}
}
