// Package directory is the storage boundary for clients, services and
// appointments. All mutation flows through it; the scheduling packages wrap
// their check-then-write sequences in Atomic so conflict checks observe a
// consistent snapshot of the day.
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/ruanmelo/navalha/internal/model"
)

var (
	ErrClientNotFound      = errors.New("client not found")
	ErrServiceNotFound     = errors.New("service not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrServiceReferenced is returned when deleting a service that still has
	// appointments (of any status) pointing at it.
	ErrServiceReferenced = errors.New("service is referenced by appointments")

	// ErrPhoneTaken is returned when a client phone number is already in use.
	ErrPhoneTaken = errors.New("phone number already registered")

	// ErrSlotTaken signals a storage-level write conflict (two writers raced
	// for the same slot). Callers may retry the whole operation once.
	ErrSlotTaken = errors.New("storage conflict while writing appointment")
)

type Directory interface {
	// Atomic runs fn against a transactional view of the directory. The view
	// passed to fn must not be retained after fn returns.
	Atomic(ctx context.Context, fn func(Directory) error) error

	// LockDay serializes writers for one civil day. Only meaningful inside
	// Atomic; implementations without a finer lock may no-op.
	LockDay(ctx context.Context, day time.Time) error

	CreateClient(ctx context.Context, c model.Client) (model.Client, error)
	UpdateClient(ctx context.Context, c model.Client) (model.Client, error)
	// DeleteClient removes the client and nulls the client reference on all
	// of its appointments. The appointments themselves survive.
	DeleteClient(ctx context.Context, id string) error
	GetClient(ctx context.Context, id string) (model.Client, error)
	ListClients(ctx context.Context) ([]model.Client, error)

	CreateService(ctx context.Context, s model.Service) (model.Service, error)
	UpdateService(ctx context.Context, s model.Service) (model.Service, error)
	DeleteService(ctx context.Context, id string) error
	GetService(ctx context.Context, id string) (model.Service, error)
	ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error)

	CreateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error)
	// UpdateAppointment persists every mutable field; created_at is never
	// touched, whatever the caller passed in.
	UpdateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error)
	DeleteAppointment(ctx context.Context, id string) error
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	// AppointmentsOnDay returns the day's appointments ordered by start time.
	AppointmentsOnDay(ctx context.Context, day time.Time) ([]model.Appointment, error)
	// AppointmentsInRange returns appointments with from <= day <= to.
	AppointmentsInRange(ctx context.Context, from, to time.Time) ([]model.Appointment, error)

	// AppendEvent records a domain event in the same transaction as the
	// surrounding Atomic block, for asynchronous publication.
	AppendEvent(ctx context.Context, ev model.Event) error
}
