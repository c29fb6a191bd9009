package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ruanmelo/navalha/internal/model"
)

type captureSender struct {
	to   string
	body string
	err  error
}

func (s *captureSender) ProviderID() string { return "capture" }

func (s *captureSender) Send(_ context.Context, to, body string) error {
	s.to = to
	s.body = body
	return s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyEnRouteDelivers(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(sender, time.Second, testLogger())

	client := &model.Client{ID: "c1", Name: "João Silva", Phone: "(11) 99999-9999"}
	res := d.NotifyEnRoute(context.Background(), model.Appointment{ID: "a1"}, client, 20)

	if !res.Delivered {
		t.Fatalf("not delivered: %s", res.Reason)
	}
	if res.ProviderID != "capture" {
		t.Fatalf("provider = %q, want capture", res.ProviderID)
	}
	if sender.to != "11999999999" {
		t.Fatalf("sent to %q, want normalized 11999999999", sender.to)
	}
	if !strings.Contains(sender.body, "João") {
		t.Fatalf("message %q missing first name", sender.body)
	}
	if strings.Contains(sender.body, "Silva") {
		t.Fatalf("message %q should use the first name only", sender.body)
	}
	if !strings.Contains(sender.body, "20 minutos") {
		t.Fatalf("message %q missing arrival estimate", sender.body)
	}
}

func TestNotifyEnRouteWithoutEstimate(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(sender, time.Second, testLogger())

	client := &model.Client{Name: "Ana", Phone: "11999999999"}
	res := d.NotifyEnRoute(context.Background(), model.Appointment{ID: "a1"}, client, 0)

	if !res.Delivered {
		t.Fatalf("not delivered: %s", res.Reason)
	}
	if strings.Contains(sender.body, "minutos") {
		t.Fatalf("message %q should omit the estimate", sender.body)
	}
}

func TestNotifyEnRouteSkipReasons(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(sender, time.Second, testLogger())
	ctx := context.Background()
	appt := model.Appointment{ID: "a1"}

	cases := []struct {
		name   string
		client *model.Client
		reason string
	}{
		{"no client", nil, ReasonNoClient},
		{"no phone", &model.Client{Name: "Ana"}, ReasonNoPhone},
		{"invalid phone", &model.Client{Name: "Ana", Phone: "123"}, ReasonInvalidPhone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := d.NotifyEnRoute(ctx, appt, tc.client, 10)
			if res.Delivered {
				t.Fatal("expected skip")
			}
			if res.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", res.Reason, tc.reason)
			}
		})
	}

	if sender.to != "" {
		t.Fatalf("provider was called with %q; skips must not reach it", sender.to)
	}
}

func TestNotifyEnRouteProviderFailure(t *testing.T) {
	sender := &captureSender{err: errors.New("gateway timeout")}
	d := NewDispatcher(sender, time.Second, testLogger())

	client := &model.Client{Name: "Ana", Phone: "11999999999"}
	res := d.NotifyEnRoute(context.Background(), model.Appointment{ID: "a1"}, client, 10)

	if res.Delivered {
		t.Fatal("expected failure result")
	}
	if res.Reason != "gateway timeout" {
		t.Fatalf("reason = %q, want provider error", res.Reason)
	}
}
