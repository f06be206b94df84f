package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrPropertyNotFound = errors.New("property not found")
	ErrBookingNotFound  = errors.New("booking not found")

	ErrSlotBlocked            = errors.New("slot is blocked for viewings")
	ErrSlotTaken              = errors.New("slot already has an active holder")
	ErrDuplicateActiveBooking = errors.New("customer already holds a live booking for this property")
	ErrInvalidTransition      = errors.New("status transition not permitted")
	// ErrConcurrencyConflict means a slot lock or transaction could not
	// complete. It is the only error in the taxonomy that is safe to retry.
	ErrConcurrencyConflict = errors.New("conflicting update in progress, retry")

	ErrPropertyNotBookable = errors.New("property is not accepting viewings")
	ErrSlotBlockExists     = errors.New("slot is already blocked")
	ErrSlotNotBlocked      = errors.New("slot is not blocked")
)

type CreateAppointmentParams struct {
	Slot          SlotKey
	CustomerID    uuid.UUID
	AgentID       *uuid.UUID
	Status        Status
	QueuePosition *int
	Notes         string
	ExpiresAt     *time.Time
}

// Store contains all DB interactions needed by the service.
//
// Reads that feed a decision inside a slot critical section must be called
// through InTx so they share the transaction's row locks; everything else may
// run against the pool directly.
type Store interface {
	// InTx runs fn inside one transaction. The Store passed to fn is bound
	// to that transaction; any error from fn rolls the whole unit back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	GetCustomerByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	GetPropertyByID(ctx context.Context, id uuid.UUID) (*Property, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Slot-scoped checks. ActiveHolderForSlot and QueuedBySlot lock the rows
	// they return when called inside a transaction.
	ActiveHolderForSlot(ctx context.Context, key SlotKey) (*Appointment, error)
	IsSlotBlocked(ctx context.Context, key SlotKey) (bool, error)
	LiveBookingForCustomer(ctx context.Context, customerID, propertyID uuid.UUID) (*Appointment, error)
	QueuedBySlot(ctx context.Context, key SlotKey) ([]Appointment, error)
	NextQueuePosition(ctx context.Context, key SlotKey) (int, error)

	CreateAppointment(ctx context.Context, p CreateAppointmentParams) (*Appointment, error)
	// UpdateStatus is a compare-and-set: it only applies when the row still
	// has status from, and clears queue_position unless to == queued.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	// ShiftQueueDown decrements queue_position for every queued entry of the
	// slot whose position is greater than above.
	ShiftQueueDown(ctx context.Context, key SlotKey, above int) error
	SetQueuePosition(ctx context.Context, id uuid.UUID, position int) (*Appointment, error)

	// Blocked-slot management.
	CreateBlockedSlot(ctx context.Context, key SlotKey, agentID uuid.UUID, reason string) (*BlockedSlot, error)
	DeleteBlockedSlot(ctx context.Context, key SlotKey) error

	// Read paths.
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointmentsByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsBySlot(ctx context.Context, key SlotKey) ([]Appointment, error)
	HeldTimes(ctx context.Context, propertyID uuid.UUID, date string) ([]string, error)
	BlockedTimes(ctx context.Context, propertyID uuid.UUID, date string) ([]string, error)

	// Expiry worker.
	FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error)

	// Audit log.
	InsertEvent(ctx context.Context, ev EventLog) error
}
