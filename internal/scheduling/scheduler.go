package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ruanmelo/navalha/internal/directory"
	"github.com/ruanmelo/navalha/internal/model"
)

const (
	EventAppointmentCreated   = "agenda.appointment.created.v1"
	EventAppointmentCancelled = "agenda.appointment.cancelled.v1"
	EventAppointmentEnRoute   = "agenda.appointment.enroute.v1"
)

var ErrStartOutsideDay = errors.New("start time must fall within the day")

// Scheduler is the transactional boundary for creating, rescheduling and
// deleting appointments. Every operation runs its conflict check and write
// inside one Atomic block under a per-day lock, and retries once when the
// storage layer reports a write race.
type Scheduler struct {
	dir    directory.Directory
	logger *slog.Logger
	now    func() time.Time
}

func NewScheduler(dir directory.Directory, logger *slog.Logger) *Scheduler {
	return &Scheduler{dir: dir, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

type CreateParams struct {
	ClientID  *string // nil books a walk-in
	ServiceID string
	Day       time.Time
	StartMin  int
	Notes     string
}

func (s *Scheduler) Create(ctx context.Context, p CreateParams) (model.Appointment, error) {
	if p.StartMin < 0 || p.StartMin >= 24*60 {
		return model.Appointment{}, ErrStartOutsideDay
	}

	appt, err := s.createOnce(ctx, p)
	if errors.Is(err, directory.ErrSlotTaken) {
		s.logger.Warn("appointment write raced, retrying once", "day", model.Day(p.Day))
		appt, err = s.createOnce(ctx, p)
	}
	return appt, err
}

func (s *Scheduler) createOnce(ctx context.Context, p CreateParams) (model.Appointment, error) {
	var out model.Appointment
	err := s.dir.Atomic(ctx, func(tx directory.Directory) error {
		svc, err := tx.GetService(ctx, p.ServiceID)
		if err != nil {
			return err
		}
		day := model.Day(p.Day)
		if err := tx.LockDay(ctx, day); err != nil {
			return err
		}

		conflict, err := NewConflictChecker(tx).FindConflict(ctx, day, p.StartMin, svc.Duration.Minutes(), "")
		if err != nil {
			return err
		}
		if conflict != nil {
			return &ConflictError{Conflict: *conflict}
		}

		appt := model.Appointment{
			ID:            uuid.NewString(),
			ClientID:      p.ClientID,
			ServiceID:     svc.ID,
			Day:           day,
			StartMin:      p.StartMin,
			Status:        model.StatusConfirmed,
			PaymentStatus: model.PaymentPending,
			Notes:         p.Notes,
			CreatedAt:     s.now(),
		}
		out, err = tx.CreateAppointment(ctx, appt)
		if err != nil {
			return err
		}
		return appendAppointmentEvent(ctx, tx, EventAppointmentCreated, out)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return out, nil
}

type RescheduleParams struct {
	ServiceID *string
	Day       *time.Time
	StartMin  *int
}

// Reschedule moves an appointment to a new service, day and/or start time.
// The appointment is excluded from its own conflict check, and created_at is
// preserved.
func (s *Scheduler) Reschedule(ctx context.Context, id string, p RescheduleParams) (model.Appointment, error) {
	if p.StartMin != nil && (*p.StartMin < 0 || *p.StartMin >= 24*60) {
		return model.Appointment{}, ErrStartOutsideDay
	}

	appt, err := s.rescheduleOnce(ctx, id, p)
	if errors.Is(err, directory.ErrSlotTaken) {
		s.logger.Warn("appointment write raced, retrying once", "appointment_id", id)
		appt, err = s.rescheduleOnce(ctx, id, p)
	}
	return appt, err
}

func (s *Scheduler) rescheduleOnce(ctx context.Context, id string, p RescheduleParams) (model.Appointment, error) {
	var out model.Appointment
	err := s.dir.Atomic(ctx, func(tx directory.Directory) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}

		serviceID := appt.ServiceID
		if p.ServiceID != nil {
			serviceID = *p.ServiceID
		}
		svc, err := tx.GetService(ctx, serviceID)
		if err != nil {
			return err
		}

		day := appt.Day
		if p.Day != nil {
			day = model.Day(*p.Day)
		}
		startMin := appt.StartMin
		if p.StartMin != nil {
			startMin = *p.StartMin
		}

		// Lock both affected days in a fixed order to keep writers from
		// deadlocking on cross-day moves.
		if err := lockDays(ctx, tx, appt.Day, day); err != nil {
			return err
		}

		conflict, err := NewConflictChecker(tx).FindConflict(ctx, day, startMin, svc.Duration.Minutes(), appt.ID)
		if err != nil {
			return err
		}
		if conflict != nil {
			return &ConflictError{Conflict: *conflict}
		}

		appt.ServiceID = svc.ID
		appt.Day = day
		appt.StartMin = startMin
		out, err = tx.UpdateAppointment(ctx, appt)
		return err
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return out, nil
}

// Delete removes an appointment outright. No cascade, no tombstone.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	return s.dir.DeleteAppointment(ctx, id)
}

func lockDays(ctx context.Context, tx directory.Directory, a, b time.Time) error {
	a, b = model.Day(a), model.Day(b)
	if b.Before(a) {
		a, b = b, a
	}
	if err := tx.LockDay(ctx, a); err != nil {
		return err
	}
	if a.Equal(b) {
		return nil
	}
	return tx.LockDay(ctx, b)
}

func appendAppointmentEvent(ctx context.Context, tx directory.Directory, eventType string, appt model.Appointment) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"service_id":     appt.ServiceID,
		"client_id":      appt.ClientID,
		"day":            appt.Day.Format("2006-01-02"),
		"start":          clock(appt.StartMin),
		"status":         string(appt.Status),
	})
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, model.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}
