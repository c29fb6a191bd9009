package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ruanmelo/navalha/internal/model"
	"github.com/ruanmelo/navalha/libs/db"
	otelx "github.com/ruanmelo/navalha/libs/otel"
)

// Postgres implements Directory on a pgx pool. Atomic opens a transaction and
// hands out a tx-backed view; LockDay takes a per-day advisory lock so the
// conflict check and the insert cannot interleave with another writer.
type Postgres struct {
	pool *db.Pool
	q    querier
	tx   pgx.Tx
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool, q: pool}
}

func (p *Postgres) Atomic(ctx context.Context, fn func(Directory) error) error {
	if p.tx != nil {
		// Already transactional; reuse the same view.
		return fn(p)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Postgres{pool: p.pool, q: tx, tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) LockDay(ctx context.Context, day time.Time) error {
	if p.tx == nil {
		return nil
	}
	_, err := p.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('agenda-day:' || $1::text))`,
		model.Day(day).Format("2006-01-02"))
	return mapPgError(err)
}

const clientColumns = `id::text, name, COALESCE(phone, ''), COALESCE(address, ''), COALESCE(notes, '')`

func (p *Postgres) CreateClient(ctx context.Context, c model.Client) (model.Client, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := p.q.Exec(ctx, `
		INSERT INTO clients (id, name, phone, address, notes)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
	`, c.ID, c.Name, c.Phone, c.Address, c.Notes)
	if err != nil {
		return model.Client{}, mapPgError(err)
	}
	return c, nil
}

func (p *Postgres) UpdateClient(ctx context.Context, c model.Client) (model.Client, error) {
	tag, err := p.q.Exec(ctx, `
		UPDATE clients
		SET name = $2, phone = NULLIF($3, ''), address = $4, notes = $5
		WHERE id = $1
	`, c.ID, c.Name, c.Phone, c.Address, c.Notes)
	if err != nil {
		return model.Client{}, mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return model.Client{}, ErrClientNotFound
	}
	return c, nil
}

func (p *Postgres) DeleteClient(ctx context.Context, id string) error {
	if p.tx == nil {
		return p.Atomic(ctx, func(tx Directory) error { return tx.DeleteClient(ctx, id) })
	}
	if _, err := p.q.Exec(ctx, `UPDATE appointments SET client_id = NULL WHERE client_id = $1`, id); err != nil {
		return mapPgError(err)
	}
	tag, err := p.q.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}

func (p *Postgres) GetClient(ctx context.Context, id string) (model.Client, error) {
	var c model.Client
	err := p.q.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Client{}, ErrClientNotFound
	}
	if err != nil {
		return model.Client{}, mapPgError(err)
	}
	return c, nil
}

func (p *Postgres) ListClients(ctx context.Context) ([]model.Client, error) {
	rows, err := p.q.Query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY name ASC`)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []model.Client
	for rows.Next() {
		var c model.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Notes); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const serviceColumns = `id::text, name, COALESCE(description, ''), duration_minutes, price::text, active`

func (p *Postgres) CreateService(ctx context.Context, s model.Service) (model.Service, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := p.q.Exec(ctx, `
		INSERT INTO services (id, name, description, duration_minutes, price, active)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
	`, s.ID, s.Name, s.Description, s.Duration.Minutes(), s.Price.String(), s.Active)
	if err != nil {
		return model.Service{}, mapPgError(err)
	}
	return s, nil
}

func (p *Postgres) UpdateService(ctx context.Context, s model.Service) (model.Service, error) {
	tag, err := p.q.Exec(ctx, `
		UPDATE services
		SET name = $2, description = $3, duration_minutes = $4, price = $5::numeric, active = $6
		WHERE id = $1
	`, s.ID, s.Name, s.Description, s.Duration.Minutes(), s.Price.String(), s.Active)
	if err != nil {
		return model.Service{}, mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return model.Service{}, ErrServiceNotFound
	}
	return s, nil
}

func (p *Postgres) DeleteService(ctx context.Context, id string) error {
	var referenced bool
	err := p.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE service_id = $1)`, id).
		Scan(&referenced)
	if err != nil {
		return mapPgError(err)
	}
	if referenced {
		return ErrServiceReferenced
	}
	tag, err := p.q.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		// The FK RESTRICT constraint backstops the existence check above.
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrServiceNotFound
	}
	return nil
}

func (p *Postgres) GetService(ctx context.Context, id string) (model.Service, error) {
	return p.scanService(p.q.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
}

func (p *Postgres) ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services ORDER BY name ASC`
	if activeOnly {
		query = `SELECT ` + serviceColumns + ` FROM services WHERE active ORDER BY name ASC`
	}
	rows, err := p.q.Query(ctx, query)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		s, err := p.scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) scanService(row pgx.Row) (model.Service, error) {
	var s model.Service
	var durationMins int
	var price string
	err := row.Scan(&s.ID, &s.Name, &s.Description, &durationMins, &price, &s.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Service{}, ErrServiceNotFound
	}
	if err != nil {
		return model.Service{}, mapPgError(err)
	}
	// Historical rows bypass the value-object constructors on purpose: the
	// store stays permissive about data that predates validation.
	s.Duration = model.Duration(durationMins)
	parsed, err := model.ParsePrice(price)
	if err != nil {
		return model.Service{}, err
	}
	s.Price = parsed
	return s, nil
}

const appointmentColumns = `id::text, client_id::text, service_id::text, day, start_min,
	status, payment_status, COALESCE(notes, ''), arrival_estimate_min, created_at`

func (p *Postgres) CreateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	err := p.q.QueryRow(ctx, `
		INSERT INTO appointments
			(id, client_id, service_id, day, start_min, status, payment_status, notes, arrival_estimate_min)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, a.ID, a.ClientID, a.ServiceID, model.Day(a.Day), a.StartMin,
		string(a.Status), string(a.PaymentStatus), a.Notes, a.ArrivalEstimateMin).
		Scan(&a.CreatedAt)
	if err != nil {
		return model.Appointment{}, mapPgError(err)
	}
	return a, nil
}

func (p *Postgres) UpdateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	// created_at is immutable across edits.
	tag, err := p.q.Exec(ctx, `
		UPDATE appointments
		SET client_id = $2, service_id = $3, day = $4, start_min = $5,
			status = $6, payment_status = $7, notes = $8, arrival_estimate_min = $9
		WHERE id = $1
	`, a.ID, a.ClientID, a.ServiceID, model.Day(a.Day), a.StartMin,
		string(a.Status), string(a.PaymentStatus), a.Notes, a.ArrivalEstimateMin)
	if err != nil {
		return model.Appointment{}, mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return model.Appointment{}, ErrAppointmentNotFound
	}
	return a, nil
}

func (p *Postgres) DeleteAppointment(ctx context.Context, id string) error {
	tag, err := p.q.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (p *Postgres) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	if p.tx != nil {
		query += ` FOR UPDATE`
	}
	return scanAppointment(p.q.QueryRow(ctx, query, id))
}

func (p *Postgres) AppointmentsOnDay(ctx context.Context, day time.Time) ([]model.Appointment, error) {
	rows, err := p.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE day = $1
		ORDER BY start_min ASC
	`, model.Day(day))
	if err != nil {
		return nil, mapPgError(err)
	}
	return collectAppointments(rows)
}

func (p *Postgres) AppointmentsInRange(ctx context.Context, from, to time.Time) ([]model.Appointment, error) {
	rows, err := p.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE day BETWEEN $1 AND $2
		ORDER BY day ASC, start_min ASC
	`, model.Day(from), model.Day(to))
	if err != nil {
		return nil, mapPgError(err)
	}
	return collectAppointments(rows)
}

func (p *Postgres) AppendEvent(ctx context.Context, ev model.Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := p.q.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), ev.AggregateType, ev.AggregateID, ev.EventType, ev.Payload, traceparent, tracestate)
	return mapPgError(err)
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status, payment string
	err := row.Scan(&a.ID, &a.ClientID, &a.ServiceID, &a.Day, &a.StartMin,
		&status, &payment, &a.Notes, &a.ArrivalEstimateMin, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, ErrAppointmentNotFound
	}
	if err != nil {
		return model.Appointment{}, mapPgError(err)
	}
	a.Day = model.Day(a.Day)
	a.Status = model.Status(status)
	a.PaymentStatus = model.PaymentStatus(payment)
	return a, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505": // unique_violation: only client phone carries one
		return ErrPhoneTaken
	case "23503": // foreign_key_violation
		return ErrServiceReferenced
	case "23P01", "40001", "40P01": // exclusion, serialization, deadlock
		return ErrSlotTaken
	}
	return err
}
