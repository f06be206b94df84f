package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store used by the service tests. It mirrors the
// database's uniqueness guarantees (one active holder per slot, one live
// booking per customer per property) by failing inserts that would break
// them, the way the partial unique indexes do.
type memStore struct {
	mu           sync.Mutex
	customers    map[uuid.UUID]*Customer
	properties   map[uuid.UUID]*Property
	appointments map[uuid.UUID]*Appointment
	blocked      map[SlotKey]*BlockedSlot
	events       []EventLog
}

func newMemStore() *memStore {
	return &memStore{
		customers:    make(map[uuid.UUID]*Customer),
		properties:   make(map[uuid.UUID]*Property),
		appointments: make(map[uuid.UUID]*Appointment),
		blocked:      make(map[SlotKey]*BlockedSlot),
	}
}

func (m *memStore) addCustomer(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[id] = &Customer{ID: id, Name: "customer"}
}

func (m *memStore) addProperty(p Property) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.properties[p.ID] = &cp
}

func cloneAppointment(a *Appointment) *Appointment {
	cp := *a
	if a.QueuePosition != nil {
		pos := *a.QueuePosition
		cp.QueuePosition = &pos
	}
	if a.ExpiresAt != nil {
		t := *a.ExpiresAt
		cp.ExpiresAt = &t
	}
	if a.AgentID != nil {
		id := *a.AgentID
		cp.AgentID = &id
	}
	return &cp
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, m)
}

func (m *memStore) GetCustomerByID(_ context.Context, id uuid.UUID) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) GetPropertyByID(_ context.Context, id uuid.UUID) (*Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.properties[id]
	if !ok {
		return nil, ErrPropertyNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return cloneAppointment(a), nil
}

func (m *memStore) ActiveHolderForSlot(_ context.Context, key SlotKey) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appointments {
		if a.Slot == key && a.Status.IsActive() {
			return cloneAppointment(a), nil
		}
	}
	return nil, ErrBookingNotFound
}

func (m *memStore) IsSlotBlocked(_ context.Context, key SlotKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blocked[key]
	return ok, nil
}

func (m *memStore) LiveBookingForCustomer(_ context.Context, customerID, propertyID uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appointments {
		if a.CustomerID == customerID && a.Slot.PropertyID == propertyID && !a.Status.IsTerminal() {
			return cloneAppointment(a), nil
		}
	}
	return nil, ErrBookingNotFound
}

func (m *memStore) QueuedBySlot(_ context.Context, key SlotKey) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Appointment
	for _, a := range m.appointments {
		if a.Slot == key && a.Status == StatusQueued {
			result = append(result, *cloneAppointment(a))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return *result[i].QueuePosition < *result[j].QueuePosition
	})
	return result, nil
}

func (m *memStore) NextQueuePosition(_ context.Context, key SlotKey) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, a := range m.appointments {
		if a.Slot == key && a.Status == StatusQueued && a.QueuePosition != nil && *a.QueuePosition > max {
			max = *a.QueuePosition
		}
	}
	return max + 1, nil
}

func (m *memStore) CreateAppointment(_ context.Context, p CreateAppointmentParams) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.appointments {
		if p.Status.IsActive() && a.Slot == p.Slot && a.Status.IsActive() {
			return nil, ErrConcurrencyConflict
		}
		if a.CustomerID == p.CustomerID && a.Slot.PropertyID == p.Slot.PropertyID && !a.Status.IsTerminal() {
			return nil, ErrConcurrencyConflict
		}
	}

	now := time.Now()
	appt := &Appointment{
		ID:            uuid.New(),
		Slot:          p.Slot,
		CustomerID:    p.CustomerID,
		AgentID:       p.AgentID,
		Status:        p.Status,
		QueuePosition: p.QueuePosition,
		Notes:         p.Notes,
		BookedAt:      now,
		ExpiresAt:     p.ExpiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.appointments[appt.ID] = appt
	return cloneAppointment(appt), nil
}

func (m *memStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrBookingNotFound
	}

	a.Status = to
	if to != StatusQueued {
		a.QueuePosition = nil
	}
	if to != StatusPending {
		a.ExpiresAt = nil
	}
	a.UpdatedAt = time.Now()
	return cloneAppointment(a), nil
}

// ShiftQueueDown applies decrements one row at a time in ascending position
// order and fails if a step would duplicate a live position, matching the
// per-row uniqueness enforcement of the Postgres partial index.
func (m *memStore) ShiftQueueDown(_ context.Context, key SlotKey, above int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	occupied := make(map[int]bool)
	var shifting []*Appointment
	for _, a := range m.appointments {
		if a.Slot != key || a.Status != StatusQueued || a.QueuePosition == nil {
			continue
		}
		occupied[*a.QueuePosition] = true
		if *a.QueuePosition > above {
			shifting = append(shifting, a)
		}
	}
	sort.Slice(shifting, func(i, j int) bool {
		return *shifting[i].QueuePosition < *shifting[j].QueuePosition
	})

	for _, a := range shifting {
		pos := *a.QueuePosition - 1
		if occupied[pos] {
			return ErrConcurrencyConflict
		}
		delete(occupied, *a.QueuePosition)
		occupied[pos] = true
		a.QueuePosition = &pos
	}
	return nil
}

func (m *memStore) SetQueuePosition(_ context.Context, id uuid.UUID, position int) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status != StatusQueued {
		return nil, ErrBookingNotFound
	}
	a.QueuePosition = &position
	return cloneAppointment(a), nil
}

func (m *memStore) CreateBlockedSlot(_ context.Context, key SlotKey, agentID uuid.UUID, reason string) (*BlockedSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blocked[key]; ok {
		return nil, ErrSlotBlockExists
	}
	b := &BlockedSlot{ID: uuid.New(), Slot: key, AgentID: agentID, Reason: reason, CreatedAt: time.Now()}
	m.blocked[key] = b
	cp := *b
	return &cp, nil
}

func (m *memStore) DeleteBlockedSlot(_ context.Context, key SlotKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blocked[key]; !ok {
		return ErrSlotNotBlocked
	}
	delete(m.blocked, key)
	return nil
}

func (m *memStore) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := m.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &AppointmentDetail{Appointment: *appt}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.properties[appt.Slot.PropertyID]; ok {
		cp := *p
		detail.Property = &cp
	}
	if c, ok := m.customers[appt.CustomerID]; ok {
		cp := *c
		detail.Customer = &cp
	}
	return detail, nil
}

func (m *memStore) ListAppointmentsByCustomer(_ context.Context, customerID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Appointment
	for _, a := range m.appointments {
		if a.CustomerID == customerID {
			result = append(result, *cloneAppointment(a))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].BookedAt.After(result[j].BookedAt) })
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (m *memStore) ListAppointmentsBySlot(_ context.Context, key SlotKey) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Appointment
	for _, a := range m.appointments {
		if a.Slot == key {
			result = append(result, *cloneAppointment(a))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].BookedAt.Before(result[j].BookedAt) })
	return result, nil
}

func (m *memStore) HeldTimes(_ context.Context, propertyID uuid.UUID, date string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var times []string
	for _, a := range m.appointments {
		if a.Slot.PropertyID == propertyID && a.Slot.Date == date && a.Status.IsActive() {
			times = append(times, a.Slot.Time)
		}
	}
	return times, nil
}

func (m *memStore) BlockedTimes(_ context.Context, propertyID uuid.UUID, date string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var times []string
	for key := range m.blocked {
		if key.PropertyID == propertyID && key.Date == date {
			times = append(times, key.Time)
		}
	}
	return times, nil
}

func (m *memStore) FindExpiredPending(_ context.Context, now time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Appointment
	for _, a := range m.appointments {
		if a.Status == StatusPending && a.ExpiresAt != nil && a.ExpiresAt.Before(now) {
			result = append(result, *cloneAppointment(a))
		}
	}
	return result, nil
}

func (m *memStore) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		types = append(types, ev.EventType)
	}
	return types
}

// mutexLocker serializes critical sections per key with in-process mutexes,
// standing in for the Redis locker.
type mutexLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMutexLocker() *mutexLocker {
	return &mutexLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *mutexLocker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}
