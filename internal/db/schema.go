package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the schema if it does not exist yet. Partial unique
// indexes back the two queue invariants: at most one active holder per slot
// and unique queue positions per slot.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id          uuid PRIMARY KEY,
			name        text NOT NULL,
			phone       text,
			created_at  timestamptz NOT NULL DEFAULT now(),
			updated_at  timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS customers (
			id          uuid PRIMARY KEY,
			name        text NOT NULL,
			email       text,
			created_at  timestamptz NOT NULL DEFAULT now(),
			updated_at  timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS properties (
			id             uuid PRIMARY KEY,
			agent_id       uuid NOT NULL REFERENCES agents(id),
			title          text NOT NULL,
			address        text NOT NULL,
			status         text NOT NULL DEFAULT 'listed',
			viewing_start  time NOT NULL DEFAULT '09:00:00',
			viewing_end    time NOT NULL DEFAULT '18:00:00',
			slot_minutes   int  NOT NULL DEFAULT 60,
			created_at     timestamptz NOT NULL DEFAULT now(),
			updated_at     timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id             uuid PRIMARY KEY,
			property_id    uuid NOT NULL REFERENCES properties(id),
			viewing_date   date NOT NULL,
			viewing_time   time NOT NULL,
			customer_id    uuid NOT NULL REFERENCES customers(id),
			agent_id       uuid REFERENCES agents(id),
			status         text NOT NULL,
			queue_position int,
			notes          text NOT NULL DEFAULT '',
			booked_at      timestamptz NOT NULL DEFAULT now(),
			expires_at     timestamptz,
			created_at     timestamptz NOT NULL DEFAULT now(),
			updated_at     timestamptz NOT NULL DEFAULT now()
		)`,
		// One active holder per slot.
		`CREATE UNIQUE INDEX IF NOT EXISTS appointments_active_holder_uq
			ON appointments (property_id, viewing_date, viewing_time)
			WHERE status IN ('pending', 'confirmed')`,
		// Contiguity is maintained by the service; uniqueness is enforced here.
		`CREATE UNIQUE INDEX IF NOT EXISTS appointments_queue_position_uq
			ON appointments (property_id, viewing_date, viewing_time, queue_position)
			WHERE status = 'queued'`,
		// One live booking per customer per property.
		`CREATE UNIQUE INDEX IF NOT EXISTS appointments_live_customer_uq
			ON appointments (customer_id, property_id)
			WHERE status IN ('pending', 'confirmed', 'queued')`,
		`CREATE INDEX IF NOT EXISTS appointments_slot_idx
			ON appointments (property_id, viewing_date, viewing_time)`,
		`CREATE INDEX IF NOT EXISTS appointments_expiry_idx
			ON appointments (expires_at)
			WHERE status = 'pending' AND expires_at IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS blocked_slots (
			id            uuid PRIMARY KEY,
			property_id   uuid NOT NULL REFERENCES properties(id),
			viewing_date  date NOT NULL,
			viewing_time  time NOT NULL,
			agent_id      uuid NOT NULL REFERENCES agents(id),
			reason        text NOT NULL DEFAULT '',
			created_at    timestamptz NOT NULL DEFAULT now(),
			UNIQUE (property_id, viewing_date, viewing_time)
		)`,
		`CREATE TABLE IF NOT EXISTS event_logs (
			id             bigserial PRIMARY KEY,
			event_type     text NOT NULL,
			appointment_id uuid,
			payload        jsonb,
			created_at     timestamptz NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}
