package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/viewinghub/booking/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	agents, err := seedAgents(context.Background(), pool, 25)
	if err != nil {
		log.Fatalf("seed agents: %v", err)
	}
	if err := seedCustomers(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed customers: %v", err)
	}
	props, err := seedProperties(context.Background(), pool, agents, 200)
	if err != nil {
		log.Fatalf("seed properties: %v", err)
	}
	if err := seedBlockedSlots(context.Background(), pool, props, 100); err != nil {
		log.Fatalf("seed blocked slots: %v", err)
	}

	log.Println("seed complete")
}

type seededProperty struct {
	id      uuid.UUID
	agentID uuid.UUID
}

func seedAgents(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d agents", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		phone := gofakeit.Phone()

		_, err := tx.Exec(ctx, `
			INSERT INTO agents (id, name, phone, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, phone)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("agents seeded")
	return ids, nil
}

func seedCustomers(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d customers", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO customers (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("customers seeded: %d/%d", end, count)
	}

	log.Println("customers seeded")
	return nil
}

func seedProperties(ctx context.Context, pool *pgxpool.Pool, agents []uuid.UUID, count int) ([]seededProperty, error) {
	log.Printf("seeding %d properties", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	props := make([]seededProperty, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		agentID := agents[gofakeit.Number(0, len(agents)-1)]
		title := gofakeit.Sentence(3)
		addr := gofakeit.Address()

		_, err := tx.Exec(ctx, `
			INSERT INTO properties
				(id, agent_id, title, address, status, viewing_start, viewing_end, slot_minutes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'listed', '09:00:00', '18:00:00', 60, now(), now())
		`, id, agentID, title, addr.Address)
		if err != nil {
			return nil, err
		}
		props = append(props, seededProperty{id: id, agentID: agentID})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("properties seeded")
	return props, nil
}

func seedBlockedSlots(ctx context.Context, pool *pgxpool.Pool, props []seededProperty, count int) error {
	log.Printf("seeding %d blocked slots", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		prop := props[gofakeit.Number(0, len(props)-1)]
		date := time.Now().AddDate(0, 0, gofakeit.Number(1, 14)).Format("2006-01-02")
		hour := gofakeit.Number(9, 17)

		_, err := tx.Exec(ctx, `
			INSERT INTO blocked_slots (id, property_id, viewing_date, viewing_time, agent_id, reason, created_at)
			VALUES ($1, $2, $3::date, make_time($4, 0, 0), $5, $6, now())
			ON CONFLICT (property_id, viewing_date, viewing_time) DO NOTHING
		`, uuid.New(), prop.id, date, hour, prop.agentID, "agent unavailable")
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("blocked slots seeded")
	return nil
}
