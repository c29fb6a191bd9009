package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruanmelo/navalha/internal/directory"
	"github.com/ruanmelo/navalha/internal/model"
	"github.com/ruanmelo/navalha/internal/notify"
)

// InvalidTransitionError reports an illegal lifecycle edge. The appointment
// is left unchanged.
type InvalidTransitionError struct {
	From model.Status
	To   model.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition appointment from %s to %s", e.From, e.To)
}

// Notifier is the en-route dispatch capability; see notify.Dispatcher.
type Notifier interface {
	NotifyEnRoute(ctx context.Context, appt model.Appointment, client *model.Client, estimateMin int) notify.Result
}

// StatusMachine validates and applies lifecycle transitions and payment
// toggles. Allowed edges: confirmed -> en_route | completed | cancelled, and
// en_route -> completed | cancelled. completed and cancelled are terminal.
type StatusMachine struct {
	dir      directory.Directory
	notifier Notifier
	logger   *slog.Logger
}

func NewStatusMachine(dir directory.Directory, notifier Notifier, logger *slog.Logger) *StatusMachine {
	return &StatusMachine{dir: dir, notifier: notifier, logger: logger}
}

func canTransition(from, to model.Status) bool {
	if from.Terminal() {
		return false
	}
	switch from {
	case model.StatusConfirmed:
		return to == model.StatusEnRoute || to == model.StatusCompleted || to == model.StatusCancelled
	case model.StatusEnRoute:
		return to == model.StatusCompleted || to == model.StatusCancelled
	}
	return false
}

// MarkEnRoute moves the appointment to en_route, stores the arrival estimate
// (estimateMin <= 0 means none) and then dispatches the SMS. The dispatch
// result is advisory: the transition has already committed and succeeds
// regardless of delivery.
func (m *StatusMachine) MarkEnRoute(ctx context.Context, id string, estimateMin int) (model.Appointment, notify.Result, error) {
	var appt model.Appointment
	var client *model.Client
	var lookupErr error

	err := m.dir.Atomic(ctx, func(tx directory.Directory) error {
		var err error
		appt, err = m.transition(ctx, tx, id, model.StatusEnRoute, func(a *model.Appointment) {
			if estimateMin > 0 {
				est := estimateMin
				a.ArrivalEstimateMin = &est
			}
		})
		if err != nil {
			return err
		}
		if appt.ClientID != nil {
			c, err := tx.GetClient(ctx, *appt.ClientID)
			switch {
			case err == nil:
				client = &c
			case errors.Is(err, directory.ErrClientNotFound):
				// Reference raced a client delete; dispatch as a walk-in.
			default:
				// The transition still commits; only the dispatch is lost.
				lookupErr = err
			}
		}
		return appendAppointmentEvent(ctx, tx, EventAppointmentEnRoute, appt)
	})
	if err != nil {
		return model.Appointment{}, notify.Result{}, err
	}

	if lookupErr != nil {
		m.logger.Error("client lookup failed before en-route dispatch",
			"appointment_id", appt.ID, "err", lookupErr)
		return appt, notify.Result{Reason: notify.ReasonLookupFailed}, nil
	}
	if m.notifier == nil {
		return appt, notify.Result{Reason: "notifications disabled"}, nil
	}
	res := m.notifier.NotifyEnRoute(ctx, appt, client, estimateMin)
	if !res.Delivered {
		m.logger.Info("en-route notification not delivered", "appointment_id", appt.ID, "reason", res.Reason)
	}
	return appt, res, nil
}

func (m *StatusMachine) MarkCompleted(ctx context.Context, id string) (model.Appointment, error) {
	var appt model.Appointment
	err := m.dir.Atomic(ctx, func(tx directory.Directory) error {
		var err error
		appt, err = m.transition(ctx, tx, id, model.StatusCompleted, nil)
		return err
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (m *StatusMachine) MarkCancelled(ctx context.Context, id string) (model.Appointment, error) {
	var appt model.Appointment
	err := m.dir.Atomic(ctx, func(tx directory.Directory) error {
		var err error
		appt, err = m.transition(ctx, tx, id, model.StatusCancelled, nil)
		if err != nil {
			return err
		}
		return appendAppointmentEvent(ctx, tx, EventAppointmentCancelled, appt)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// SetPaymentStatus toggles the payment flag. It is independent of the
// lifecycle: legal on any status, terminal ones included.
func (m *StatusMachine) SetPaymentStatus(ctx context.Context, id string, paid bool) (model.Appointment, error) {
	var appt model.Appointment
	err := m.dir.Atomic(ctx, func(tx directory.Directory) error {
		a, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if paid {
			a.PaymentStatus = model.PaymentPaid
		} else {
			a.PaymentStatus = model.PaymentPending
		}
		appt, err = tx.UpdateAppointment(ctx, a)
		return err
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (m *StatusMachine) transition(ctx context.Context, tx directory.Directory, id string, to model.Status, mutate func(*model.Appointment)) (model.Appointment, error) {
	a, err := tx.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !canTransition(a.Status, to) {
		return model.Appointment{}, &InvalidTransitionError{From: a.Status, To: to}
	}
	a.Status = to
	if mutate != nil {
		mutate(&a)
	}
	return tx.UpdateAppointment(ctx, a)
}
