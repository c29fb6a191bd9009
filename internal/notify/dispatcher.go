// Package notify sends the best-effort "on the way" message when an
// appointment goes en-route. Dispatch outcomes are advisory: they are
// reported to the caller but never fail the transition they follow.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruanmelo/navalha/internal/model"
	"github.com/ruanmelo/navalha/internal/sms"
)

// Non-fatal reasons a dispatch was skipped before reaching the provider.
const (
	ReasonNoClient     = "appointment has no linked client"
	ReasonNoPhone      = "client has no phone number"
	ReasonInvalidPhone = "client phone number is invalid"
	ReasonLookupFailed = "client lookup failed"
)

type Result struct {
	Delivered  bool
	Reason     string
	ProviderID string
}

type Dispatcher struct {
	sender  sms.Sender
	timeout time.Duration
	logger  *slog.Logger
}

// NewDispatcher wires a dispatcher around a send capability. The timeout is
// mandatory: a hung provider call must not hang the status transition.
func NewDispatcher(sender sms.Sender, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{sender: sender, timeout: timeout, logger: logger}
}

// NotifyEnRoute sends the en-route message once. Provider errors and timeouts
// come back as Delivered=false with a reason; they are never returned as
// errors.
func (d *Dispatcher) NotifyEnRoute(ctx context.Context, appt model.Appointment, client *model.Client, estimateMin int) Result {
	if client == nil {
		return Result{Reason: ReasonNoClient}
	}
	if strings.TrimSpace(client.Phone) == "" {
		return Result{Reason: ReasonNoPhone}
	}
	phone, err := NormalizePhone(client.Phone)
	if err != nil {
		return Result{Reason: ReasonInvalidPhone}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.sender.Send(sendCtx, phone, enRouteMessage(client.Name, estimateMin)); err != nil {
		d.logger.Warn("en-route sms failed",
			"appointment_id", appt.ID,
			"provider", d.sender.ProviderID(),
			"err", err,
		)
		return Result{Reason: err.Error()}
	}
	return Result{Delivered: true, ProviderID: d.sender.ProviderID()}
}

func enRouteMessage(clientName string, estimateMin int) string {
	first := clientName
	if i := strings.IndexByte(clientName, ' '); i > 0 {
		first = clientName[:i]
	}
	if estimateMin > 0 {
		return fmt.Sprintf("Olá, %s! Seu barbeiro está a caminho, a previsão de chegada é de %d minutos.", first, estimateMin)
	}
	return fmt.Sprintf("Olá, %s! Seu barbeiro está a caminho.", first)
}
