package booking

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository with the same atomicity contract as
// the Postgres implementation: every multi-step method mutates ledger and
// appointments under one mutex hold.
type memRepo struct {
	mu        sync.Mutex
	providers map[uuid.UUID]*Provider
	patients  map[uuid.UUID]*Patient
	appts     map[uuid.UUID]*Appointment
	ledger    map[string]uuid.UUID
	events    []EventLog
	guestID   uuid.UUID
}

func newMemRepo() *memRepo {
	return &memRepo{
		providers: make(map[uuid.UUID]*Provider),
		patients:  make(map[uuid.UUID]*Patient),
		appts:     make(map[uuid.UUID]*Appointment),
		ledger:    make(map[string]uuid.UUID),
	}
}

func ledgerKey(providerID uuid.UUID, date, tm string) string {
	return fmt.Sprintf("%s|%s|%s", providerID, date, tm)
}

func (m *memRepo) addProvider(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.ID] = &p
}

func (m *memRepo) addPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = &p
}

func (m *memRepo) getAppt(id uuid.UUID) Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.appts[id]
}

func (m *memRepo) setCreatedAt(id uuid.UUID, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appts[id].CreatedAt = at
}

// conservationHolds checks the ledger/appointment conservation law: a
// ledger entry exists iff a non-cancelled appointment occupies that slot.
func (m *memRepo) conservationHolds() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[string]bool)
	for _, a := range m.appts {
		if a.Cancelled {
			continue
		}
		want[ledgerKey(a.ProviderID, a.SlotDate, a.SlotTime)] = true
	}
	if len(want) != len(m.ledger) {
		return false
	}
	for k := range m.ledger {
		if !want[k] {
			return false
		}
	}
	return true
}

func (m *memRepo) ledgerTimes(providerID uuid.UUID, date string) map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := fmt.Sprintf("%s|%s|", providerID, date)
	out := make(map[string]bool)
	for k := range m.ledger {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = true
		}
	}
	return out
}

// Repository implementation

func (m *memRepo) GetProviderByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) EnsureGuestPatient(_ context.Context) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.guestID == uuid.Nil {
		email := GuestEmail
		m.guestID = uuid.New()
		m.patients[m.guestID] = &Patient{
			ID:    m.guestID,
			Name:  GuestName,
			Email: &email,
		}
	}
	return m.guestID, nil
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) GetAppointmentByOrderRef(_ context.Context, ref string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.OrderRef != nil && *a.OrderRef == ref {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (m *memRepo) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) OccupiedSlots(_ context.Context, providerID uuid.UUID, fromDate, toDate string) (map[string]map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	occupied := make(map[string]map[string]bool)
	for _, a := range m.appts {
		if a.Cancelled || a.ProviderID != providerID {
			continue
		}
		if a.SlotDate < fromDate || a.SlotDate > toDate {
			continue
		}
		if occupied[a.SlotDate] == nil {
			occupied[a.SlotDate] = make(map[string]bool)
		}
		occupied[a.SlotDate][a.SlotTime] = true
	}
	return occupied, nil
}

func (m *memRepo) CreateBooked(_ context.Context, appt *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ledgerKey(appt.ProviderID, appt.SlotDate, appt.SlotTime)
	if _, taken := m.ledger[key]; taken {
		return ErrSlotUnavailable
	}

	cp := *appt
	m.appts[cp.ID] = &cp
	m.ledger[key] = cp.ID
	return nil
}

func (m *memRepo) CancelAndRelease(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Terminal() {
		return nil, ErrStateConflict
	}

	a.Cancelled = true
	delete(m.ledger, ledgerKey(a.ProviderID, a.SlotDate, a.SlotTime))

	cp := *a
	return &cp, nil
}

func (m *memRepo) ExpireHold(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Terminal() || a.Paid {
		return nil, ErrStateConflict
	}

	a.Cancelled = true
	delete(m.ledger, ledgerKey(a.ProviderID, a.SlotDate, a.SlotTime))

	cp := *a
	return &cp, nil
}

func (m *memRepo) RescheduleSlot(_ context.Context, id uuid.UUID, newDate, newTime string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Terminal() {
		return nil, ErrStateConflict
	}

	newKey := ledgerKey(a.ProviderID, newDate, newTime)
	if _, taken := m.ledger[newKey]; taken {
		return nil, ErrSlotUnavailable
	}

	delete(m.ledger, ledgerKey(a.ProviderID, a.SlotDate, a.SlotTime))
	m.ledger[newKey] = a.ID
	a.SlotDate = newDate
	a.SlotTime = newTime

	cp := *a
	return &cp, nil
}

func (m *memRepo) CompleteAppointment(_ context.Context, id uuid.UUID, rep Report) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return nil, ErrStateConflict
	}
	if a.Terminal() || !a.Paid {
		return nil, ErrStateConflict
	}

	a.Completed = true
	a.Diagnosis = &rep.Diagnosis
	a.Medications = &rep.Medications
	a.Notes = &rep.Notes

	cp := *a
	return &cp, nil
}

func (m *memRepo) SetOrderRef(_ context.Context, id uuid.UUID, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return false, ErrAppointmentNotFound
	}
	if a.OrderRef != nil {
		return false, nil
	}
	a.OrderRef = &ref
	return true, nil
}

func (m *memRepo) MarkPaid(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return false, ErrAppointmentNotFound
	}
	if a.Paid || a.Cancelled || a.Completed {
		return false, nil
	}
	a.Paid = true
	return true, nil
}

func (m *memRepo) FindStaleUnpaid(_ context.Context, cutoff time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.appts {
		if !a.Paid && !a.Cancelled && !a.Completed && a.CreatedAt.Before(cutoff) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// memLocker serializes critical sections per provider in-process.
type memLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newMemLocker() *memLocker {
	return &memLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *memLocker) WithProviderLock(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	lock, ok := l.locks[providerID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[providerID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}
