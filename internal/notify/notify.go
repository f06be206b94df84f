// Package notify delivers booking events to interested consumers. Delivery
// is best-effort: it runs after the owning transaction has committed and a
// failed emit is logged, never propagated.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingQueued    = "booking_queued"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCompleted = "booking_completed"
	EventBookingCancelled = "booking_cancelled"
	EventBookingPromoted  = "booking_promoted"
	EventBookingExpired   = "booking_expired"
)

type Sink interface {
	Emit(ctx context.Context, eventType string, payload map[string]any)
}

// RedisSink publishes events to a Redis channel per event type, so SMS/email
// workers can subscribe to the kinds they care about.
type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Emit(ctx context.Context, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notify: marshal %s payload: %v", eventType, err)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := s.client.Publish(pubCtx, "notify:"+eventType, data).Err(); err != nil {
		log.Printf("notify: publish %s: %v", eventType, err)
	}
}

// LogSink is used when no Redis is wired, e.g. in tests and local tooling.
type LogSink struct{}

func (LogSink) Emit(_ context.Context, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notify: %s (unmarshalable payload: %v)", eventType, err)
		return
	}
	log.Printf("notify: %s %s", eventType, data)
}
