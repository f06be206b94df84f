// simulate is a load harness for the booking engine: many workers race
// bookings and cancellations onto a small set of viewing slots, then the
// queue invariants are verified straight from Postgres.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/viewinghub/booking/internal/db"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	CancelRatio float64
	SlotCount   int
	PostgresDSN string
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  envStr("API_BASE_URL", "http://127.0.0.1:8080"),
		Duration:    envDuration("SIM_DURATION", 30*time.Second),
		Workers:     envInt("SIM_WORKERS", 20),
		CancelRatio: envFloat("SIM_CANCEL_RATIO", 0.3),
		SlotCount:   envInt("SIM_SLOTS", 5),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return cfg
}

type slot struct {
	PropertyID uuid.UUID
	Date       string
	Time       string
}

type DataPool struct {
	Customers []uuid.UUID
	Slots     []slot

	mu       sync.RWMutex
	bookings []bookingRef
}

type bookingRef struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
}

func (dp *DataPool) AddBooking(ref bookingRef) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, ref)
}

func (dp *DataPool) TakeRandomBooking() (bookingRef, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.bookings) == 0 {
		return bookingRef{}, false
	}
	idx := rand.Intn(len(dp.bookings))
	ref := dp.bookings[idx]
	dp.bookings = append(dp.bookings[:idx], dp.bookings[idx+1:]...)
	return ref, true
}

type OperationMetrics struct {
	Total    int64
	Success  int64
	Queued   int64
	Conflict int64
	Rejected int64
	Error    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, outcome string) {
	atomic.AddInt64(&om.Total, 1)
	switch outcome {
	case "success":
		atomic.AddInt64(&om.Success, 1)
	case "queued":
		atomic.AddInt64(&om.Queued, 1)
	case "conflict":
		atomic.AddInt64(&om.Conflict, 1)
	case "rejected":
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))

	p50 = latencies[len(latencies)*50/100]
	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]
	return avg, p50, p95
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cfg := loadSimConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	dataPool, err := loadDataPool(context.Background(), pool, cfg.SlotCount)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded %d customers, racing on %d slots", len(dataPool.Customers), len(dataPool.Slots))

	bookMetrics := &OperationMetrics{}
	cancelMetrics := &OperationMetrics{}

	runCtx, stopRun := context.WithTimeout(context.Background(), cfg.Duration)
	defer stopRun()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(runCtx, cfg, dataPool, bookMetrics, cancelMetrics)
		}()
	}
	wg.Wait()

	report("bookings", bookMetrics)
	report("cancellations", cancelMetrics)

	if err := verifyInvariants(context.Background(), pool, dataPool.Slots); err != nil {
		log.Fatalf("INVARIANT VIOLATION: %v", err)
	}
	log.Println("invariants hold: single holder per slot, contiguous queues")
}

func worker(ctx context.Context, cfg SimConfig, dp *DataPool, bookM, cancelM *OperationMetrics) {
	client := &http.Client{Timeout: 10 * time.Second}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if rand.Float64() < cfg.CancelRatio {
			ref, ok := dp.TakeRandomBooking()
			if ok {
				start := time.Now()
				outcome := cancelBooking(ctx, client, cfg.APIBaseURL, ref)
				cancelM.Record(time.Since(start), outcome)
				continue
			}
		}

		customer := dp.Customers[rand.Intn(len(dp.Customers))]
		sl := dp.Slots[rand.Intn(len(dp.Slots))]

		start := time.Now()
		outcome, id := createBooking(ctx, client, cfg.APIBaseURL, customer, sl)
		bookM.Record(time.Since(start), outcome)

		if outcome == "success" || outcome == "queued" {
			dp.AddBooking(bookingRef{ID: id, CustomerID: customer})
		}
	}
}

func createBooking(ctx context.Context, client *http.Client, baseURL string, customerID uuid.UUID, sl slot) (string, uuid.UUID) {
	body, _ := json.Marshal(map[string]string{
		"customer_id": customerID.String(),
		"property_id": sl.PropertyID.String(),
		"date":        sl.Date,
		"time":        sl.Time,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/bookings", bytes.NewReader(body))
	if err != nil {
		return "error", uuid.Nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "error", uuid.Nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		var out struct {
			ID     uuid.UUID `json:"id"`
			Status string    `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "error", uuid.Nil
		}
		if out.Status == "queued" {
			return "queued", out.ID
		}
		return "success", out.ID
	}

	io.Copy(io.Discard, resp.Body)
	switch resp.StatusCode {
	case http.StatusConflict:
		return "conflict", uuid.Nil
	case http.StatusForbidden, http.StatusNotFound, http.StatusBadRequest:
		return "rejected", uuid.Nil
	}
	return "error", uuid.Nil
}

func cancelBooking(ctx context.Context, client *http.Client, baseURL string, ref bookingRef) string {
	body, _ := json.Marshal(map[string]string{"status": "cancelled"})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/bookings/%s/status", baseURL, ref.ID), bytes.NewReader(body))
	if err != nil {
		return "error"
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", ref.CustomerID.String())
	req.Header.Set("X-Actor-Role", "customer")

	resp, err := client.Do(req)
	if err != nil {
		return "error"
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return "success"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden, http.StatusNotFound:
		return "rejected"
	}
	return "error"
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, slotCount int) (*DataPool, error) {
	dp := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM customers LIMIT 500`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Customers = append(dp.Customers, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(dp.Customers) == 0 {
		return nil, fmt.Errorf("no customers found, run cmd/seed first")
	}

	propRows, err := pool.Query(ctx, `SELECT id FROM properties WHERE status = 'listed' LIMIT $1`, slotCount)
	if err != nil {
		return nil, err
	}
	defer propRows.Close()

	date := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	for propRows.Next() {
		var id uuid.UUID
		if err := propRows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Slots = append(dp.Slots, slot{PropertyID: id, Date: date, Time: "10:00:00"})
	}
	if err := propRows.Err(); err != nil {
		return nil, err
	}
	if len(dp.Slots) == 0 {
		return nil, fmt.Errorf("no listed properties found, run cmd/seed first")
	}

	return dp, nil
}

// verifyInvariants checks the two queue invariants for every contested slot:
// at most one pending/confirmed booking, and queued positions exactly 1..N.
func verifyInvariants(ctx context.Context, pool *pgxpool.Pool, slots []slot) error {
	for _, sl := range slots {
		var holders int
		err := pool.QueryRow(ctx, `
			SELECT count(*) FROM appointments
			WHERE property_id = $1 AND viewing_date = $2::date AND viewing_time = $3::time
			  AND status IN ('pending', 'confirmed')
		`, sl.PropertyID, sl.Date, sl.Time).Scan(&holders)
		if err != nil {
			return err
		}
		if holders > 1 {
			return fmt.Errorf("slot %s %s %s has %d active holders", sl.PropertyID, sl.Date, sl.Time, holders)
		}

		rows, err := pool.Query(ctx, `
			SELECT queue_position FROM appointments
			WHERE property_id = $1 AND viewing_date = $2::date AND viewing_time = $3::time
			  AND status = 'queued'
			ORDER BY queue_position
		`, sl.PropertyID, sl.Date, sl.Time)
		if err != nil {
			return err
		}

		var positions []int
		for rows.Next() {
			var p int
			if err := rows.Scan(&p); err != nil {
				rows.Close()
				return err
			}
			positions = append(positions, p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for i, p := range positions {
			if p != i+1 {
				return fmt.Errorf("slot %s %s %s queue not contiguous: %v", sl.PropertyID, sl.Date, sl.Time, positions)
			}
		}
	}
	return nil
}

func report(name string, m *OperationMetrics) {
	avg, p50, p95 := m.Stats()
	log.Printf("%s: total=%d success=%d queued=%d conflict=%d rejected=%d error=%d avg=%s p50=%s p95=%s",
		name, m.Total, m.Success, m.Queued, m.Conflict, m.Rejected, m.Error, avg, p50, p95)
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
