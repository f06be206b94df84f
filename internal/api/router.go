package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/viewinghub/booking/internal/booking"
)

type RouterConfig struct {
	Service *booking.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/bookings", createBookingHandler(cfg.Service))
	r.Get("/bookings", listBookingsHandler(cfg.Service))
	r.Get("/bookings/{id}", getBookingHandler(cfg.Service))
	r.Post("/bookings/{id}/status", statusChangeHandler(cfg.Service))

	r.Get("/properties/{id}/slots", availableSlotsHandler(cfg.Service))
	r.Get("/properties/{id}/slots/bookings", slotBookingsHandler(cfg.Service))
	r.Post("/properties/{id}/blocks", blockSlotHandler(cfg.Service))
	r.Delete("/properties/{id}/blocks", unblockSlotHandler(cfg.Service))

	return r
}
