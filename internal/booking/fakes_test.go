package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	redisclient "github.com/medtriage/triage-booking/internal/redis"
)

// memRepo is an in-memory Repository with transactional semantics good
// enough for coordinator tests: InTx stages writes and applies them only
// when the unit of work succeeds, under a mutex so concurrent units of
// work serialize the way the per-doctor lock does in production.
type memRepo struct {
	mu           sync.Mutex
	users        map[int64]*User
	requests     map[int64]*TriageRequest
	appointments map[int64]*Appointment
	events       []EventLog
	nextID       int64

	beforeTx       func()
	failCreate     error
	failMarkBooked error
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:        make(map[int64]*User),
		requests:     make(map[int64]*TriageRequest),
		appointments: make(map[int64]*Appointment),
		nextID:       1,
	}
}

func (m *memRepo) addUser(u User) *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = m.nextID
	m.nextID++
	m.users[u.ID] = &u
	return &u
}

func (m *memRepo) addRequest(r TriageRequest) *TriageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = m.nextID
	m.nextID++
	if r.Status == "" {
		r.Status = RequestNew
	}
	m.requests[r.ID] = &r
	return &r
}

func (m *memRepo) setRequestStatus(id int64, status RequestStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[id].Status = status
}

func (m *memRepo) requestStatus(id int64) RequestStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[id].Status
}

func (m *memRepo) appointmentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appointments)
}

func (m *memRepo) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (m *memRepo) GetUserByID(ctx context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) GetPatientByID(ctx context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.Role != RolePatient {
		return nil, ErrPatientNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) GetRequestByID(ctx context.Context, id int64) (*TriageRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) GetAppointmentByID(ctx context.Context, id int64) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) ListActiveByDoctor(ctx context.Context, doctorID int64) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Status.Active() {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memRepo) ListActiveByPatient(ctx context.Context, patientID int64) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.PatientID == patientID && a.Status.Active() {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memRepo) UpdateAppointmentStatus(ctx context.Context, id int64, from, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	cp := *a
	return &cp, nil
}

func (m *memRepo) InTx(ctx context.Context, fn func(tx TxRepository) error) error {
	if m.beforeTx != nil {
		m.beforeTx()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{repo: m}
	if err := fn(tx); err != nil {
		return err
	}

	for _, a := range tx.created {
		cp := a
		m.appointments[cp.ID] = &cp
	}
	for id, upd := range tx.booked {
		r := m.requests[id]
		r.Status = RequestBooked
		r.DoctorID = &upd.doctorID
		r.HandledBy = &upd.doctorID
		at := upd.at
		r.HandledAt = &at
	}
	return nil
}

func (m *memRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

type bookedUpdate struct {
	doctorID int64
	at       time.Time
}

// memTx stages writes; the repo applies them only if the unit of work
// returns nil. Callers already hold the repo mutex.
type memTx struct {
	repo    *memRepo
	created []Appointment
	booked  map[int64]bookedUpdate
}

func (t *memTx) HasOverlap(ctx context.Context, doctorID int64, start, end time.Time, excludeID *int64) (bool, error) {
	check := func(a *Appointment) bool {
		if a.DoctorID != doctorID || !a.Status.Active() {
			return false
		}
		if excludeID != nil && a.ID == *excludeID {
			return false
		}
		return Overlaps(a.StartTime, a.EndTime, start, end)
	}
	for _, a := range t.repo.appointments {
		if check(a) {
			return true, nil
		}
	}
	for i := range t.created {
		if check(&t.created[i]) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) GetRequestForUpdate(ctx context.Context, id int64) (*TriageRequest, error) {
	r, ok := t.repo.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

func (t *memTx) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	if t.repo.failCreate != nil {
		return nil, t.repo.failCreate
	}
	cp := *a
	cp.ID = t.repo.nextID
	t.repo.nextID++
	cp.CreatedAt = time.Now()
	t.created = append(t.created, cp)
	return &cp, nil
}

func (t *memTx) MarkRequestBooked(ctx context.Context, requestID, doctorID int64, at time.Time) error {
	if t.repo.failMarkBooked != nil {
		return t.repo.failMarkBooked
	}
	r, ok := t.repo.requests[requestID]
	if !ok || !r.Status.Bookable() {
		return ErrRequestNotBookable
	}
	if t.booked == nil {
		t.booked = make(map[int64]bookedUpdate)
	}
	t.booked[requestID] = bookedUpdate{doctorID: doctorID, at: at}
	return nil
}

// memLocker serializes per doctor with plain mutexes.
type memLocker struct {
	locks sync.Map
}

func (l *memLocker) WithDoctorLock(ctx context.Context, doctorID int64, fn func(ctx context.Context) error) error {
	v, _ := l.locks.LoadOrStore(doctorID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return fn(ctx)
}

// deniedLocker refuses every acquisition.
type deniedLocker struct{}

func (deniedLocker) WithDoctorLock(ctx context.Context, doctorID int64, fn func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}
