package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so every query
// method works inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	pool *pgxpool.Pool
	db   querier
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, db: pool}
}

func (s *PgStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.pool == nil {
		// Already transaction-bound; nested units join the outer transaction.
		return fn(ctx, s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	txStore := &PgStore{db: tx}
	if err := fn(ctx, txStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Scan helpers

const appointmentColumns = `
	id, property_id,
	to_char(viewing_date, 'YYYY-MM-DD'), to_char(viewing_time, 'HH24:MI:SS'),
	customer_id, agent_id, status, queue_position, notes,
	booked_at, expires_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.Slot.PropertyID,
		&a.Slot.Date,
		&a.Slot.Time,
		&a.CustomerID,
		&a.AgentID,
		&a.Status,
		&a.QueuePosition,
		&a.Notes,
		&a.BookedAt,
		&a.ExpiresAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanProperty(row pgx.Row) (*Property, error) {
	var p Property

	err := row.Scan(
		&p.ID,
		&p.AgentID,
		&p.Title,
		&p.Address,
		&p.Status,
		&p.ViewingStart,
		&p.ViewingEnd,
		&p.SlotMinutes,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPropertyNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Email,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}

	return &c, nil
}

// Interface methods

func (s *PgStore) GetCustomerByID(ctx context.Context, id uuid.UUID) (*Customer, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM customers
		WHERE id = $1
	`, id)
	return scanCustomer(row)
}

func (s *PgStore) GetPropertyByID(ctx context.Context, id uuid.UUID) (*Property, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, agent_id, title, address, status,
		       to_char(viewing_start, 'HH24:MI:SS'), to_char(viewing_end, 'HH24:MI:SS'),
		       slot_minutes, created_at, updated_at
		FROM properties
		WHERE id = $1
	`, id)
	return scanProperty(row)
}

func (s *PgStore) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// ActiveHolderForSlot locks the holder row so a concurrent cancellation and
// booking on the same slot cannot interleave.
func (s *PgStore) ActiveHolderForSlot(ctx context.Context, key SlotKey) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE property_id = $1
		  AND viewing_date = $2::date
		  AND viewing_time = $3::time
		  AND status IN ('pending', 'confirmed')
		FOR UPDATE
	`, key.PropertyID, key.Date, key.Time)
	return scanAppointment(row)
}

func (s *PgStore) IsSlotBlocked(ctx context.Context, key SlotKey) (bool, error) {
	var blocked bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM blocked_slots
			WHERE property_id = $1
			  AND viewing_date = $2::date
			  AND viewing_time = $3::time
		)
	`, key.PropertyID, key.Date, key.Time).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("check blocked slot: %w", err)
	}
	return blocked, nil
}

func (s *PgStore) LiveBookingForCustomer(ctx context.Context, customerID, propertyID uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE customer_id = $1
		  AND property_id = $2
		  AND status IN ('pending', 'confirmed', 'queued')
		LIMIT 1
	`, customerID, propertyID)
	return scanAppointment(row)
}

func (s *PgStore) QueuedBySlot(ctx context.Context, key SlotKey) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE property_id = $1
		  AND viewing_date = $2::date
		  AND viewing_time = $3::time
		  AND status = 'queued'
		ORDER BY queue_position ASC
		FOR UPDATE
	`, key.PropertyID, key.Date, key.Time)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *PgStore) NextQueuePosition(ctx context.Context, key SlotKey) (int, error) {
	var next int
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(queue_position), 0) + 1
		FROM appointments
		WHERE property_id = $1
		  AND viewing_date = $2::date
		  AND viewing_time = $3::time
		  AND status = 'queued'
	`, key.PropertyID, key.Date, key.Time).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next queue position: %w", err)
	}
	return next, nil
}

func (s *PgStore) CreateAppointment(ctx context.Context, p CreateAppointmentParams) (*Appointment, error) {
	id := uuid.New()

	row := s.db.QueryRow(ctx, `
		INSERT INTO appointments
			(id, property_id, viewing_date, viewing_time, customer_id, agent_id,
			 status, queue_position, notes, booked_at, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3::date, $4::time, $5, $6, $7, $8, $9, now(), $10, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, p.Slot.PropertyID, p.Slot.Date, p.Slot.Time, p.CustomerID, p.AgentID,
		p.Status, p.QueuePosition, p.Notes, p.ExpiresAt)

	appt, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConcurrencyConflict
		}
		return nil, err
	}
	return appt, nil
}

func (s *PgStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    queue_position = CASE WHEN $2 = 'queued' THEN queue_position ELSE NULL END,
		    expires_at = CASE WHEN $2 = 'pending' THEN expires_at ELSE NULL END,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	appt, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConcurrencyConflict
		}
		return nil, err
	}
	return appt, nil
}

// queueShift is one position move in a queue reindex.
type queueShift struct {
	id uuid.UUID
	to int
}

// planQueueShift turns queued rows (id plus current position in to) into
// per-row decrements ordered by ascending position. The order matters: the partial
// unique index on (slot, queue_position) is checked per row, and a
// single-statement decrement visits rows in heap order, so a
// higher-position row updated first can collide with a still-live lower
// position. Walking positions ascending means every decrement lands on a
// position freed by the previous step.
func planQueueShift(entries []queueShift) []queueShift {
	shifts := make([]queueShift, len(entries))
	copy(shifts, entries)
	sort.Slice(shifts, func(i, j int) bool { return shifts[i].to < shifts[j].to })
	for i := range shifts {
		shifts[i].to--
	}
	return shifts
}

func (s *PgStore) ShiftQueueDown(ctx context.Context, key SlotKey, above int) error {
	rows, err := s.db.Query(ctx, `
		SELECT id, queue_position
		FROM appointments
		WHERE property_id = $1
		  AND viewing_date = $2::date
		  AND viewing_time = $3::time
		  AND status = 'queued'
		  AND queue_position > $4
		ORDER BY queue_position ASC
		FOR UPDATE
	`, key.PropertyID, key.Date, key.Time, above)
	if err != nil {
		return fmt.Errorf("shift queue: %w", err)
	}

	var entries []queueShift
	for rows.Next() {
		var e queueShift
		if err := rows.Scan(&e.id, &e.to); err != nil {
			rows.Close()
			return fmt.Errorf("shift queue: %w", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("shift queue: %w", err)
	}

	for _, sh := range planQueueShift(entries) {
		_, err := s.db.Exec(ctx, `
			UPDATE appointments
			SET queue_position = $2,
			    updated_at = now()
			WHERE id = $1
		`, sh.id, sh.to)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("shift queue: %w", err)
		}
	}
	return nil
}

func (s *PgStore) SetQueuePosition(ctx context.Context, id uuid.UUID, position int) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE appointments
		SET queue_position = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'queued'
		RETURNING `+appointmentColumns+`
	`, id, position)

	appt, err := scanAppointment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConcurrencyConflict
		}
		return nil, err
	}
	return appt, nil
}

func (s *PgStore) CreateBlockedSlot(ctx context.Context, key SlotKey, agentID uuid.UUID, reason string) (*BlockedSlot, error) {
	id := uuid.New()

	b := BlockedSlot{ID: id, Slot: key, AgentID: agentID, Reason: reason}
	err := s.db.QueryRow(ctx, `
		INSERT INTO blocked_slots (id, property_id, viewing_date, viewing_time, agent_id, reason, created_at)
		VALUES ($1, $2, $3::date, $4::time, $5, $6, now())
		RETURNING created_at
	`, id, key.PropertyID, key.Date, key.Time, agentID, reason).Scan(&b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotBlockExists
		}
		return nil, fmt.Errorf("create blocked slot: %w", err)
	}

	return &b, nil
}

func (s *PgStore) DeleteBlockedSlot(ctx context.Context, key SlotKey) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM blocked_slots
		WHERE property_id = $1
		  AND viewing_date = $2::date
		  AND viewing_time = $3::time
	`, key.PropertyID, key.Date, key.Time)
	if err != nil {
		return fmt.Errorf("delete blocked slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotBlocked
	}
	return nil
}

func (s *PgStore) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := s.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := AppointmentDetail{Appointment: *appt}

	prop, err := s.GetPropertyByID(ctx, appt.Slot.PropertyID)
	if err != nil && !errors.Is(err, ErrPropertyNotFound) {
		return nil, err
	}
	detail.Property = prop

	cust, err := s.GetCustomerByID(ctx, appt.CustomerID)
	if err != nil && !errors.Is(err, ErrCustomerNotFound) {
		return nil, err
	}
	detail.Customer = cust

	if appt.AgentID != nil {
		var a Agent
		err := s.db.QueryRow(ctx, `
			SELECT id, name, phone, created_at, updated_at
			FROM agents
			WHERE id = $1
		`, *appt.AgentID).Scan(&a.ID, &a.Name, &a.Phone, &a.CreatedAt, &a.UpdatedAt)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		if err == nil {
			detail.Agent = &a
		}
	}

	return &detail, nil
}

func (s *PgStore) ListAppointmentsByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE customer_id = $1
		ORDER BY booked_at DESC
		LIMIT $2 OFFSET $3
	`, customerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (s *PgStore) ListAppointmentsBySlot(ctx context.Context, key SlotKey) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE property_id = $1
		  AND viewing_date = $2::date
		  AND viewing_time = $3::time
		ORDER BY booked_at ASC
	`, key.PropertyID, key.Date, key.Time)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PgStore) HeldTimes(ctx context.Context, propertyID uuid.UUID, date string) ([]string, error) {
	return s.listTimes(ctx, `
		SELECT to_char(viewing_time, 'HH24:MI:SS')
		FROM appointments
		WHERE property_id = $1
		  AND viewing_date = $2::date
		  AND status IN ('pending', 'confirmed')
	`, propertyID, date)
}

func (s *PgStore) BlockedTimes(ctx context.Context, propertyID uuid.UUID, date string) ([]string, error) {
	return s.listTimes(ctx, `
		SELECT to_char(viewing_time, 'HH24:MI:SS')
		FROM blocked_slots
		WHERE property_id = $1
		  AND viewing_date = $2::date
	`, propertyID, date)
}

func (s *PgStore) listTimes(ctx context.Context, sql string, propertyID uuid.UUID, date string) ([]string, error) {
	rows, err := s.db.Query(ctx, sql, propertyID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return times, nil
}

func (s *PgStore) FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND expires_at IS NOT NULL
		  AND expires_at < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (s *PgStore) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
