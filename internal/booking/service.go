package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/viewinghub/booking/internal/config"
	"github.com/viewinghub/booking/internal/notify"
	"github.com/viewinghub/booking/internal/redislock"
)

type Service struct {
	store  Store
	locker redislock.Locker
	sink   notify.Sink
	cfg    config.Config
}

func NewService(store Store, locker redislock.Locker, sink notify.Sink, cfg config.Config) *Service {
	return &Service{
		store:  store,
		locker: locker,
		sink:   sink,
		cfg:    cfg,
	}
}

type CreateBookingParams struct {
	CustomerID uuid.UUID
	Slot       SlotKey
	Notes      string
}

// CreateBooking books a viewing slot for a customer. If the slot is free the
// customer becomes the active holder (pending); if it is held the booking is
// appended to the slot's queue. The duplicate guard, the blocked check, the
// holder check and the insert all run inside one slot-scoped critical
// section, so concurrent requests for the same slot cannot both win.
func (s *Service) CreateBooking(ctx context.Context, p CreateBookingParams) (*Appointment, error) {
	if err := p.Slot.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.store.GetCustomerByID(ctx, p.CustomerID); err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load customer: %w", err)
	}

	prop, err := s.store.GetPropertyByID(ctx, p.Slot.PropertyID)
	if err != nil {
		if errors.Is(err, ErrPropertyNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load property: %w", err)
	}
	if prop.Status != PropertyListed {
		return nil, ErrPropertyNotBookable
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, p.Slot.LockKey(), func(lockCtx context.Context) error {
		return s.store.InTx(lockCtx, func(txCtx context.Context, tx Store) error {
			// Duplicate guard: one live booking per customer per property.
			live, err := tx.LiveBookingForCustomer(txCtx, p.CustomerID, p.Slot.PropertyID)
			if err != nil && !errors.Is(err, ErrBookingNotFound) {
				return fmt.Errorf("duplicate check: %w", err)
			}
			if live != nil {
				return ErrDuplicateActiveBooking
			}

			// A blocked slot rejects the request outright, even for queuing.
			blocked, err := tx.IsSlotBlocked(txCtx, p.Slot)
			if err != nil {
				return err
			}
			if blocked {
				return ErrSlotBlocked
			}

			holder, err := tx.ActiveHolderForSlot(txCtx, p.Slot)
			if err != nil && !errors.Is(err, ErrBookingNotFound) {
				return fmt.Errorf("check active holder: %w", err)
			}

			params := CreateAppointmentParams{
				Slot:       p.Slot,
				CustomerID: p.CustomerID,
				AgentID:    &prop.AgentID,
				Notes:      p.Notes,
			}

			if holder == nil {
				expiresAt := time.Now().Add(s.cfg.ConfirmTTL)
				params.Status = StatusPending
				params.ExpiresAt = &expiresAt
			} else {
				next, err := tx.NextQueuePosition(txCtx, p.Slot)
				if err != nil {
					return err
				}
				params.Status = StatusQueued
				params.QueuePosition = &next
			}

			created, err = tx.CreateAppointment(txCtx, params)
			if err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, redislock.ErrLockNotAcquired) {
			return nil, ErrConcurrencyConflict
		}
		return nil, err
	}

	payload := map[string]any{
		"booking_id":  created.ID.String(),
		"property_id": p.Slot.PropertyID.String(),
		"date":        p.Slot.Date,
		"time":        p.Slot.Time,
		"customer_id": p.CustomerID.String(),
		"status":      string(created.Status),
	}
	if created.Status == StatusQueued {
		payload["queue_position"] = *created.QueuePosition
		s.logEvent(ctx, created.ID, notify.EventBookingQueued, payload)
		s.sink.Emit(ctx, notify.EventBookingQueued, payload)
	} else {
		s.logEvent(ctx, created.ID, notify.EventBookingCreated, payload)
		s.sink.Emit(ctx, notify.EventBookingCreated, payload)
	}

	return created, nil
}

type StatusChangeParams struct {
	AppointmentID uuid.UUID
	ActorID       uuid.UUID
	Role          Role
	Target        Status
}

type StatusChangeResult struct {
	Updated *Appointment
	// Promoted is the queue head that became the new active holder, set only
	// when cancelling an active holder with a non-empty queue.
	Promoted *Appointment
}

// RequestStatusChange validates a transition against the role table and then
// executes it: cancellations of active holders run the promotion engine,
// cancellations of queued entries close the queue gap, everything else is a
// plain compare-and-set.
func (s *Service) RequestStatusChange(ctx context.Context, p StatusChangeParams) (*StatusChangeResult, error) {
	if !p.Target.Valid() {
		return nil, ErrInvalidTransition
	}
	if !p.Role.Valid() {
		return nil, ErrInvalidTransition
	}

	appt, err := s.store.GetAppointmentByID(ctx, p.AppointmentID)
	if err != nil {
		return nil, err
	}

	if err := s.checkActorScope(appt, p.ActorID, p.Role); err != nil {
		return nil, err
	}

	if !TransitionAllowed(p.Role, appt.Status, p.Target) {
		return nil, ErrInvalidTransition
	}

	switch {
	case appt.Status.IsActive() && p.Target == StatusCancelled:
		cancelled, promoted, err := s.cancelActiveHolder(ctx, appt)
		if err != nil {
			return nil, err
		}
		return &StatusChangeResult{Updated: cancelled, Promoted: promoted}, nil

	case appt.Status == StatusQueued && p.Target == StatusCancelled:
		cancelled, err := s.cancelQueuedEntry(ctx, appt)
		if err != nil {
			return nil, err
		}
		return &StatusChangeResult{Updated: cancelled}, nil

	case appt.Status.IsTerminal():
		reopened, err := s.reopenBooking(ctx, appt, p.Target)
		if err != nil {
			return nil, err
		}
		return &StatusChangeResult{Updated: reopened}, nil

	default:
		updated, err := s.applySimpleTransition(ctx, appt, p.Target)
		if err != nil {
			return nil, err
		}
		return &StatusChangeResult{Updated: updated}, nil
	}
}

// checkActorScope enforces who may touch a booking at all: customers only
// their own, staff only bookings on their assigned properties.
func (s *Service) checkActorScope(appt *Appointment, actorID uuid.UUID, role Role) error {
	switch role {
	case RoleCustomer:
		if appt.CustomerID != actorID {
			return ErrInvalidTransition
		}
	case RoleStaff:
		if appt.AgentID == nil || *appt.AgentID != actorID {
			return ErrInvalidTransition
		}
	}
	return nil
}

// cancelActiveHolder cancels a pending or confirmed booking and promotes the
// queue head, if any, in one atomic unit: cancel, promote, reindex all
// commit together or roll back together.
func (s *Service) cancelActiveHolder(ctx context.Context, appt *Appointment) (cancelled, promoted *Appointment, err error) {
	key := appt.Slot

	err = s.locker.WithSlotLock(ctx, key.LockKey(), func(lockCtx context.Context) error {
		return s.store.InTx(lockCtx, func(txCtx context.Context, tx Store) error {
			c, err := tx.UpdateStatus(txCtx, appt.ID, appt.Status, StatusCancelled)
			if err != nil {
				if errors.Is(err, ErrBookingNotFound) {
					// Row changed under us between the read and the lock.
					return ErrConcurrencyConflict
				}
				return fmt.Errorf("cancel holder: %w", err)
			}
			cancelled = c

			queued, err := tx.QueuedBySlot(txCtx, key)
			if err != nil {
				return fmt.Errorf("load queue: %w", err)
			}
			if len(queued) == 0 {
				return nil
			}

			head := queued[0]
			pr, err := tx.UpdateStatus(txCtx, head.ID, StatusQueued, StatusConfirmed)
			if err != nil {
				return fmt.Errorf("promote queue head: %w", err)
			}
			promoted = pr

			if err := tx.ShiftQueueDown(txCtx, key, 1); err != nil {
				return err
			}
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, redislock.ErrLockNotAcquired) {
			return nil, nil, ErrConcurrencyConflict
		}
		return nil, nil, err
	}

	cancelPayload := map[string]any{
		"booking_id":  cancelled.ID.String(),
		"property_id": key.PropertyID.String(),
		"date":        key.Date,
		"time":        key.Time,
		"customer_id": cancelled.CustomerID.String(),
	}
	s.logEvent(ctx, cancelled.ID, notify.EventBookingCancelled, cancelPayload)
	s.sink.Emit(ctx, notify.EventBookingCancelled, cancelPayload)

	if promoted != nil {
		promotePayload := map[string]any{
			"booking_id":  promoted.ID.String(),
			"property_id": key.PropertyID.String(),
			"date":        key.Date,
			"time":        key.Time,
			"customer_id": promoted.CustomerID.String(),
		}
		s.logEvent(ctx, promoted.ID, notify.EventBookingPromoted, promotePayload)
		s.sink.Emit(ctx, notify.EventBookingPromoted, promotePayload)
	}

	return cancelled, promoted, nil
}

// cancelQueuedEntry removes one queued booking and closes the gap it leaves.
// The active holder is untouched, so no promotion happens.
func (s *Service) cancelQueuedEntry(ctx context.Context, appt *Appointment) (*Appointment, error) {
	key := appt.Slot

	var cancelled *Appointment

	err := s.locker.WithSlotLock(ctx, key.LockKey(), func(lockCtx context.Context) error {
		return s.store.InTx(lockCtx, func(txCtx context.Context, tx Store) error {
			current, err := tx.GetAppointmentByID(txCtx, appt.ID)
			if err != nil {
				return err
			}
			if current.Status != StatusQueued || current.QueuePosition == nil {
				return ErrConcurrencyConflict
			}
			removedPos := *current.QueuePosition

			c, err := tx.UpdateStatus(txCtx, appt.ID, StatusQueued, StatusCancelled)
			if err != nil {
				if errors.Is(err, ErrBookingNotFound) {
					return ErrConcurrencyConflict
				}
				return fmt.Errorf("cancel queued entry: %w", err)
			}
			cancelled = c

			return tx.ShiftQueueDown(txCtx, key, removedPos)
		})
	})

	if err != nil {
		if errors.Is(err, redislock.ErrLockNotAcquired) {
			return nil, ErrConcurrencyConflict
		}
		return nil, err
	}

	payload := map[string]any{
		"booking_id":  cancelled.ID.String(),
		"property_id": key.PropertyID.String(),
		"date":        key.Date,
		"time":        key.Time,
		"customer_id": cancelled.CustomerID.String(),
	}
	s.logEvent(ctx, cancelled.ID, notify.EventBookingCancelled, payload)
	s.sink.Emit(ctx, notify.EventBookingCancelled, payload)

	return cancelled, nil
}

// applySimpleTransition handles single-row moves that leave the slot's queue
// untouched: pending→confirmed and confirmed→completed.
func (s *Service) applySimpleTransition(ctx context.Context, appt *Appointment, target Status) (*Appointment, error) {
	updated, err := s.store.UpdateStatus(ctx, appt.ID, appt.Status, target)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, ErrConcurrencyConflict
		}
		return nil, err
	}

	payload := map[string]any{
		"booking_id":  updated.ID.String(),
		"property_id": updated.Slot.PropertyID.String(),
		"date":        updated.Slot.Date,
		"time":        updated.Slot.Time,
		"customer_id": updated.CustomerID.String(),
	}

	event := notify.EventBookingConfirmed
	if target == StatusCompleted {
		event = notify.EventBookingCompleted
	}
	s.logEvent(ctx, updated.ID, event, payload)
	s.sink.Emit(ctx, event, payload)

	return updated, nil
}

// reopenBooking is the admin override out of a terminal status. It runs
// under the slot lock because reopening into pending/confirmed competes with
// live bookings for the active-holder invariant.
func (s *Service) reopenBooking(ctx context.Context, appt *Appointment, target Status) (*Appointment, error) {
	key := appt.Slot

	var reopened *Appointment

	err := s.locker.WithSlotLock(ctx, key.LockKey(), func(lockCtx context.Context) error {
		return s.store.InTx(lockCtx, func(txCtx context.Context, tx Store) error {
			if target == StatusCompleted || target == StatusCancelled {
				r, err := tx.UpdateStatus(txCtx, appt.ID, appt.Status, target)
				if err != nil {
					if errors.Is(err, ErrBookingNotFound) {
						return ErrConcurrencyConflict
					}
					return err
				}
				reopened = r
				return nil
			}

			// Reopening into a live status re-enters the duplicate guard.
			live, err := tx.LiveBookingForCustomer(txCtx, appt.CustomerID, key.PropertyID)
			if err != nil && !errors.Is(err, ErrBookingNotFound) {
				return err
			}
			if live != nil {
				return ErrDuplicateActiveBooking
			}

			blocked, err := tx.IsSlotBlocked(txCtx, key)
			if err != nil {
				return err
			}
			if blocked {
				return ErrSlotBlocked
			}

			if target == StatusQueued {
				next, err := tx.NextQueuePosition(txCtx, key)
				if err != nil {
					return err
				}
				if _, err := tx.UpdateStatus(txCtx, appt.ID, appt.Status, StatusQueued); err != nil {
					if errors.Is(err, ErrBookingNotFound) {
						return ErrConcurrencyConflict
					}
					return err
				}
				r, err := tx.SetQueuePosition(txCtx, appt.ID, next)
				if err != nil {
					return err
				}
				reopened = r
				return nil
			}

			holder, err := tx.ActiveHolderForSlot(txCtx, key)
			if err != nil && !errors.Is(err, ErrBookingNotFound) {
				return err
			}
			if holder != nil {
				return ErrSlotTaken
			}

			r, err := tx.UpdateStatus(txCtx, appt.ID, appt.Status, target)
			if err != nil {
				if errors.Is(err, ErrBookingNotFound) {
					return ErrConcurrencyConflict
				}
				return err
			}
			reopened = r
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, redislock.ErrLockNotAcquired) {
			return nil, ErrConcurrencyConflict
		}
		return nil, err
	}

	s.logEvent(ctx, reopened.ID, "booking_reopened", map[string]any{
		"booking_id": reopened.ID.String(),
		"status":     string(reopened.Status),
	})

	return reopened, nil
}

// ExpireOverduePending cancels pending bookings whose confirmation deadline
// has passed. Each cancellation runs the normal promotion path, so the queue
// head inherits the slot. Intended to be called periodically by the worker.
func (s *Service) ExpireOverduePending(ctx context.Context) error {
	now := time.Now()
	overdue, err := s.store.FindExpiredPending(ctx, now)
	if err != nil {
		return fmt.Errorf("find overdue pending bookings: %w", err)
	}

	for _, appt := range overdue {
		cancelled, _, err := s.cancelActiveHolder(ctx, &appt)
		if err != nil {
			if errors.Is(err, ErrConcurrencyConflict) {
				// Someone else is working on this slot; next run retries.
				continue
			}
			log.Printf("failed to expire booking %s: %v", appt.ID, err)
			continue
		}
		s.logEvent(ctx, cancelled.ID, notify.EventBookingExpired, map[string]any{
			"booking_id": cancelled.ID.String(),
			"reason":     "confirmation_deadline",
		})
		s.sink.Emit(ctx, notify.EventBookingExpired, map[string]any{
			"booking_id":  cancelled.ID.String(),
			"customer_id": cancelled.CustomerID.String(),
		})
	}

	return nil
}

// AvailableSlots lists the viewing times of one property on one day that
// have neither an active holder nor a block. Read-only, no slot lock.
func (s *Service) AvailableSlots(ctx context.Context, propertyID uuid.UUID, date string) ([]string, error) {
	if _, err := time.Parse(DateFormat, date); err != nil {
		return nil, fmt.Errorf("invalid date %q", date)
	}

	prop, err := s.store.GetPropertyByID(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	grid, err := slotGrid(prop.ViewingStart, prop.ViewingEnd, prop.SlotMinutes)
	if err != nil {
		return nil, err
	}

	held, err := s.store.HeldTimes(ctx, propertyID, date)
	if err != nil {
		return nil, fmt.Errorf("list held times: %w", err)
	}
	blocked, err := s.store.BlockedTimes(ctx, propertyID, date)
	if err != nil {
		return nil, fmt.Errorf("list blocked times: %w", err)
	}

	return openSlots(grid, held, blocked), nil
}

// BlockSlot marks a slot unavailable for new bookings. Staff may only block
// slots on their own properties. Existing bookings are unaffected.
func (s *Service) BlockSlot(ctx context.Context, key SlotKey, actorID uuid.UUID, role Role, reason string) (*BlockedSlot, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	prop, err := s.store.GetPropertyByID(ctx, key.PropertyID)
	if err != nil {
		return nil, err
	}
	if role != RoleAdmin && prop.AgentID != actorID {
		return nil, ErrInvalidTransition
	}

	block, err := s.store.CreateBlockedSlot(ctx, key, prop.AgentID, reason)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, uuid.Nil, "slot_blocked", map[string]any{
		"property_id": key.PropertyID.String(),
		"date":        key.Date,
		"time":        key.Time,
		"reason":      reason,
	})

	return block, nil
}

func (s *Service) UnblockSlot(ctx context.Context, key SlotKey, actorID uuid.UUID, role Role) error {
	if err := key.Validate(); err != nil {
		return err
	}

	prop, err := s.store.GetPropertyByID(ctx, key.PropertyID)
	if err != nil {
		return err
	}
	if role != RoleAdmin && prop.AgentID != actorID {
		return ErrInvalidTransition
	}

	if err := s.store.DeleteBlockedSlot(ctx, key); err != nil {
		return err
	}

	s.logEvent(ctx, uuid.Nil, "slot_unblocked", map[string]any{
		"property_id": key.PropertyID.String(),
		"date":        key.Date,
		"time":        key.Time,
	})

	return nil
}

// GetBooking retrieves a fully hydrated booking by ID.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.store.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Service) ListBookingsByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	appts, err := s.store.ListAppointmentsByCustomer(ctx, customerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list bookings by customer: %w", err)
	}
	return appts, nil
}

func (s *Service) ListBookingsBySlot(ctx context.Context, key SlotKey) ([]Appointment, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	appts, err := s.store.ListAppointmentsBySlot(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list bookings by slot: %w", err)
	}
	return appts, nil
}

/// logEvent writes an audit record. Best-effort: failures are logged, never
// returned, since the state change has already committed.
func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	ev := EventLog{
		EventType: eventType,
		Payload:   data,
		CreatedAt: time.Now(),
	}
	if appointmentID != uuid.Nil {
		apptID := appointmentID
		ev.AppointmentID = &apptID
	}

	if err := s.store.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for booking %s: %v", eventType, appointmentID, err)
	}
}
