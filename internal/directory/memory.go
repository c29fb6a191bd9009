package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ruanmelo/navalha/internal/model"
)

// Memory is an in-process Directory used in tests and as a dev fallback when
// no DATABASE_URL is configured. Atomic takes a copy-on-write snapshot, so a
// failed block leaves the directory untouched.
type Memory struct {
	mu sync.Mutex
	st *memState
}

type memState struct {
	clients      map[string]model.Client
	services     map[string]model.Service
	appointments map[string]model.Appointment
	events       []model.Event
}

func NewMemory() *Memory {
	return &Memory{st: &memState{
		clients:      map[string]model.Client{},
		services:     map[string]model.Service{},
		appointments: map[string]model.Appointment{},
	}}
}

func (s *memState) clone() *memState {
	next := &memState{
		clients:      make(map[string]model.Client, len(s.clients)),
		services:     make(map[string]model.Service, len(s.services)),
		appointments: make(map[string]model.Appointment, len(s.appointments)),
		events:       append([]model.Event(nil), s.events...),
	}
	for k, v := range s.clients {
		next.clients[k] = v
	}
	for k, v := range s.services {
		next.services[k] = v
	}
	for k, v := range s.appointments {
		next.appointments[k] = v
	}
	return next
}

func (m *Memory) Atomic(_ context.Context, fn func(Directory) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&memTx{st: snapshot}); err != nil {
		return err
	}
	m.st = snapshot
	return nil
}

func (m *Memory) LockDay(context.Context, time.Time) error { return nil }

// Events returns every event appended so far, oldest first.
func (m *Memory) Events() []model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Event(nil), m.st.events...)
}

func (m *Memory) CreateClient(_ context.Context, c model.Client) (model.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createClient(c)
}

func (m *Memory) UpdateClient(_ context.Context, c model.Client) (model.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateClient(c)
}

func (m *Memory) DeleteClient(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteClient(id)
}

func (m *Memory) GetClient(_ context.Context, id string) (model.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getClient(id)
}

func (m *Memory) ListClients(context.Context) ([]model.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listClients()
}

func (m *Memory) CreateService(_ context.Context, s model.Service) (model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createService(s)
}

func (m *Memory) UpdateService(_ context.Context, s model.Service) (model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateService(s)
}

func (m *Memory) DeleteService(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteService(id)
}

func (m *Memory) GetService(_ context.Context, id string) (model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getService(id)
}

func (m *Memory) ListServices(_ context.Context, activeOnly bool) ([]model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listServices(activeOnly)
}

func (m *Memory) CreateAppointment(_ context.Context, a model.Appointment) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createAppointment(a)
}

func (m *Memory) UpdateAppointment(_ context.Context, a model.Appointment) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateAppointment(a)
}

func (m *Memory) DeleteAppointment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteAppointment(id)
}

func (m *Memory) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getAppointment(id)
}

func (m *Memory) AppointmentsOnDay(_ context.Context, day time.Time) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.appointmentsOnDay(day)
}

func (m *Memory) AppointmentsInRange(_ context.Context, from, to time.Time) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.appointmentsInRange(from, to)
}

func (m *Memory) AppendEvent(_ context.Context, ev model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.appendEvent(ev)
}

// memTx is the view handed to Atomic callbacks. The outer mutex is already
// held, so it operates on the snapshot without further locking.
type memTx struct {
	st *memState
}

func (t *memTx) Atomic(_ context.Context, fn func(Directory) error) error { return fn(t) }

func (t *memTx) LockDay(context.Context, time.Time) error { return nil }

func (t *memTx) CreateClient(_ context.Context, c model.Client) (model.Client, error) {
	return t.st.createClient(c)
}

func (t *memTx) UpdateClient(_ context.Context, c model.Client) (model.Client, error) {
	return t.st.updateClient(c)
}

func (t *memTx) DeleteClient(_ context.Context, id string) error { return t.st.deleteClient(id) }

func (t *memTx) GetClient(_ context.Context, id string) (model.Client, error) {
	return t.st.getClient(id)
}

func (t *memTx) ListClients(context.Context) ([]model.Client, error) { return t.st.listClients() }

func (t *memTx) CreateService(_ context.Context, s model.Service) (model.Service, error) {
	return t.st.createService(s)
}

func (t *memTx) UpdateService(_ context.Context, s model.Service) (model.Service, error) {
	return t.st.updateService(s)
}

func (t *memTx) DeleteService(_ context.Context, id string) error { return t.st.deleteService(id) }

func (t *memTx) GetService(_ context.Context, id string) (model.Service, error) {
	return t.st.getService(id)
}

func (t *memTx) ListServices(_ context.Context, activeOnly bool) ([]model.Service, error) {
	return t.st.listServices(activeOnly)
}

func (t *memTx) CreateAppointment(_ context.Context, a model.Appointment) (model.Appointment, error) {
	return t.st.createAppointment(a)
}

func (t *memTx) UpdateAppointment(_ context.Context, a model.Appointment) (model.Appointment, error) {
	return t.st.updateAppointment(a)
}

func (t *memTx) DeleteAppointment(_ context.Context, id string) error {
	return t.st.deleteAppointment(id)
}

func (t *memTx) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	return t.st.getAppointment(id)
}

func (t *memTx) AppointmentsOnDay(_ context.Context, day time.Time) ([]model.Appointment, error) {
	return t.st.appointmentsOnDay(day)
}

func (t *memTx) AppointmentsInRange(_ context.Context, from, to time.Time) ([]model.Appointment, error) {
	return t.st.appointmentsInRange(from, to)
}

func (t *memTx) AppendEvent(_ context.Context, ev model.Event) error { return t.st.appendEvent(ev) }

func (s *memState) createClient(c model.Client) (model.Client, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := s.checkPhoneFree(c.Phone, c.ID); err != nil {
		return model.Client{}, err
	}
	s.clients[c.ID] = c
	return c, nil
}

func (s *memState) updateClient(c model.Client) (model.Client, error) {
	if _, ok := s.clients[c.ID]; !ok {
		return model.Client{}, ErrClientNotFound
	}
	if err := s.checkPhoneFree(c.Phone, c.ID); err != nil {
		return model.Client{}, err
	}
	s.clients[c.ID] = c
	return c, nil
}

func (s *memState) checkPhoneFree(phone, selfID string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil
	}
	for _, other := range s.clients {
		if other.ID != selfID && other.Phone == phone {
			return ErrPhoneTaken
		}
	}
	return nil
}

func (s *memState) deleteClient(id string) error {
	if _, ok := s.clients[id]; !ok {
		return ErrClientNotFound
	}
	delete(s.clients, id)
	// Keep history: appointments survive with the reference nulled out.
	for key, appt := range s.appointments {
		if appt.ClientID != nil && *appt.ClientID == id {
			appt.ClientID = nil
			s.appointments[key] = appt
		}
	}
	return nil
}

func (s *memState) getClient(id string) (model.Client, error) {
	c, ok := s.clients[id]
	if !ok {
		return model.Client{}, ErrClientNotFound
	}
	return c, nil
}

func (s *memState) listClients() ([]model.Client, error) {
	out := make([]model.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memState) createService(sv model.Service) (model.Service, error) {
	if sv.ID == "" {
		sv.ID = uuid.NewString()
	}
	s.services[sv.ID] = sv
	return sv, nil
}

func (s *memState) updateService(sv model.Service) (model.Service, error) {
	if _, ok := s.services[sv.ID]; !ok {
		return model.Service{}, ErrServiceNotFound
	}
	s.services[sv.ID] = sv
	return sv, nil
}

func (s *memState) deleteService(id string) error {
	if _, ok := s.services[id]; !ok {
		return ErrServiceNotFound
	}
	// Cancelled appointments keep the reference alive too.
	for _, appt := range s.appointments {
		if appt.ServiceID == id {
			return ErrServiceReferenced
		}
	}
	delete(s.services, id)
	return nil
}

func (s *memState) getService(id string) (model.Service, error) {
	sv, ok := s.services[id]
	if !ok {
		return model.Service{}, ErrServiceNotFound
	}
	return sv, nil
}

func (s *memState) listServices(activeOnly bool) ([]model.Service, error) {
	out := make([]model.Service, 0, len(s.services))
	for _, sv := range s.services {
		if activeOnly && !sv.Active {
			continue
		}
		out = append(out, sv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memState) createAppointment(a model.Appointment) (model.Appointment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.Day = model.Day(a.Day)
	s.appointments[a.ID] = a
	return a, nil
}

func (s *memState) updateAppointment(a model.Appointment) (model.Appointment, error) {
	prev, ok := s.appointments[a.ID]
	if !ok {
		return model.Appointment{}, ErrAppointmentNotFound
	}
	a.Day = model.Day(a.Day)
	a.CreatedAt = prev.CreatedAt
	s.appointments[a.ID] = a
	return a, nil
}

func (s *memState) deleteAppointment(id string) error {
	if _, ok := s.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(s.appointments, id)
	return nil
}

func (s *memState) getAppointment(id string) (model.Appointment, error) {
	a, ok := s.appointments[id]
	if !ok {
		return model.Appointment{}, ErrAppointmentNotFound
	}
	return a, nil
}

func (s *memState) appointmentsOnDay(day time.Time) ([]model.Appointment, error) {
	day = model.Day(day)
	var out []model.Appointment
	for _, a := range s.appointments {
		if a.Day.Equal(day) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartMin < out[j].StartMin })
	return out, nil
}

func (s *memState) appointmentsInRange(from, to time.Time) ([]model.Appointment, error) {
	from, to = model.Day(from), model.Day(to)
	var out []model.Appointment
	for _, a := range s.appointments {
		if a.Day.Before(from) || a.Day.After(to) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		return out[i].StartMin < out[j].StartMin
	})
	return out, nil
}

func (s *memState) appendEvent(ev model.Event) error {
	s.events = append(s.events, ev)
	return nil
}
