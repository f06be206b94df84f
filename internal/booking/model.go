package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusQueued    Status = "queued"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsActive reports whether the status makes a booking the active holder of
// its slot. At most one booking per slot may be active.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusQueued, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
	// RoleSystem is used by internal workers (confirmation-deadline expiry).
	RoleSystem Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleStaff, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

const (
	DateFormat = "2006-01-02"
	TimeFormat = "15:04:05"
)

// SlotKey identifies one bookable viewing slot of a property.
type SlotKey struct {
	PropertyID uuid.UUID
	Date       string // YYYY-MM-DD
	Time       string // HH:MM:SS
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.PropertyID, k.Date, k.Time)
}

// LockKey is the Redis key guarding this slot's critical sections.
func (k SlotKey) LockKey() string {
	return "lock:slot:" + k.String()
}

func (k SlotKey) Validate() error {
	if k.PropertyID == uuid.Nil {
		return fmt.Errorf("slot key: property id is required")
	}
	if _, err := time.Parse(DateFormat, k.Date); err != nil {
		return fmt.Errorf("slot key: invalid date %q", k.Date)
	}
	if _, err := time.Parse(TimeFormat, k.Time); err != nil {
		return fmt.Errorf("slot key: invalid time %q", k.Time)
	}
	return nil
}

type PropertyStatus string

const (
	PropertyListed   PropertyStatus = "listed"
	PropertyUnlisted PropertyStatus = "unlisted"
)

type Property struct {
	ID           uuid.UUID
	AgentID      uuid.UUID
	Title        string
	Address      string
	Status       PropertyStatus
	ViewingStart string // HH:MM:SS, first bookable slot of a day
	ViewingEnd   string // HH:MM:SS, exclusive
	SlotMinutes  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Customer struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Agent struct {
	ID        uuid.UUID
	Name      string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID         uuid.UUID
	Slot       SlotKey
	CustomerID uuid.UUID
	AgentID    *uuid.UUID
	Status     Status
	// QueuePosition is set iff Status == queued. Positions for one slot are
	// contiguous 1..N; position 1 is promoted first.
	QueuePosition *int
	Notes         string
	BookedAt      time.Time
	// ExpiresAt is the confirmation deadline for pending bookings; nil once
	// confirmed or for queued entries.
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type BlockedSlot struct {
	ID        uuid.UUID
	Slot      SlotKey
	AgentID   uuid.UUID
	Reason    string
	CreatedAt time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type AppointmentDetail struct {
	Appointment
	Property *Property
	Customer *Customer
	Agent    *Agent
}
