package appointment

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/auditlog"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/notify"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
)

// -- In-memory Store --

type memStore struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*Appointment
	users        map[uuid.UUID]*User
	doctors      map[uuid.UUID]*Doctor
	nurses       map[uuid.UUID]*Nurse
	rooms        map[uuid.UUID]string

	inserts int
	updates int

	failFind   error
	failInsert error
}

func newMemStore() *memStore {
	return &memStore{
		appointments: make(map[uuid.UUID]*Appointment),
		users:        make(map[uuid.UUID]*User),
		doctors:      make(map[uuid.UUID]*Doctor),
		nurses:       make(map[uuid.UUID]*Nurse),
		rooms:        make(map[uuid.UUID]string),
	}
}

func (m *memStore) addUser(name string, role notify.Role) *User {
	u := &User{ID: uuid.New(), Name: name, Email: strings.ToLower(name) + "@clinic.test", Role: role, Active: true}
	m.users[u.ID] = u
	return u
}

func (m *memStore) addDoctor(name string) *Doctor {
	u := m.addUser(name, notify.RoleDoctor)
	d := &Doctor{ID: uuid.New(), UserID: u.ID, Name: name}
	m.doctors[d.ID] = d
	return d
}

func (m *memStore) addNurse(name string) *Nurse {
	u := m.addUser(name, notify.RoleNurse)
	n := &Nurse{ID: uuid.New(), UserID: u.ID, Name: name}
	m.nurses[n.ID] = n
	return n
}

func (m *memStore) addRoom(name string) uuid.UUID {
	id := uuid.New()
	m.rooms[id] = name
	return id
}

// seed stores an appointment directly, bypassing the lifecycle.
func (m *memStore) seed(patientID, doctorID uuid.UUID, at time.Time, status AppointmentStatus) *Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := &Appointment{
		ID:              uuid.New(),
		PatientID:       patientID,
		DoctorID:        doctorID,
		AppointmentDate: at,
		DisplayDate:     RoundToQuarterHour(at),
		Status:          status,
		CreateDate:      time.Now(),
	}
	m.appointments[a.ID] = a
	return a
}

func (m *memStore) get(id uuid.UUID) *Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.appointments[id]
	return &cp
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appointments)
}

func (m *memStore) slotTakenLocked(doctorID uuid.UUID, at time.Time, except uuid.UUID) bool {
	for _, a := range m.appointments {
		if a.ID == except || a.Status == StatusCancelled {
			continue
		}
		if (doctorID == uuid.Nil || a.DoctorID == doctorID) && a.AppointmentDate.Equal(at) {
			return true
		}
	}
	return false
}

func (m *memStore) FindByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFind != nil {
		return nil, m.failFind
	}
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) GetDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	a, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.detail(a), nil
}

func (m *memStore) detail(a *Appointment) *AppointmentDetail {
	d := &AppointmentDetail{Appointment: *a}
	if u, ok := m.users[a.PatientID]; ok {
		d.PatientName = u.Name
	}
	if doc, ok := m.doctors[a.DoctorID]; ok {
		d.DoctorName = doc.Name
	}
	if a.NurseID != nil {
		d.NurseName = m.nurses[*a.NurseID].Name
	}
	if a.RoomID != nil {
		d.RoomName = m.rooms[*a.RoomID]
	}
	return d
}

func (m *memStore) ExistsAtExactInstant(_ context.Context, doctorID uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slotTakenLocked(doctorID, at, uuid.Nil), nil
}

func (m *memStore) BookedInstants(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Time
	for _, a := range m.appointments {
		if (doctorID != uuid.Nil && a.DoctorID != doctorID) || a.Status == StatusCancelled {
			continue
		}
		if a.AppointmentDate.Before(from) || a.AppointmentDate.After(to) {
			continue
		}
		out = append(out, a.AppointmentDate)
	}
	return out, nil
}

func (m *memStore) Insert(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert != nil {
		return nil, m.failInsert
	}
	// mirrors the partial unique index on (doctor_id, appointment_date)
	if m.slotTakenLocked(a.DoctorID, a.AppointmentDate, uuid.Nil) {
		return nil, ErrSlotTaken
	}
	cp := *a
	cp.ID = uuid.New()
	cp.CreateDate = time.Now()
	cp.UpdatedAt = cp.CreateDate
	m.appointments[cp.ID] = &cp
	m.inserts++
	out := cp
	return &out, nil
}

func (m *memStore) Update(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appointments[a.ID]; !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != StatusCancelled && m.slotTakenLocked(a.DoctorID, a.AppointmentDate, a.ID) {
		return nil, ErrSlotTaken
	}
	cp := *a
	cp.UpdatedAt = time.Now()
	m.appointments[a.ID] = &cp
	m.updates++
	out := cp
	return &out, nil
}

func (m *memStore) list(match func(*Appointment) bool, limit, offset int) []AppointmentDetail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AppointmentDetail
	for _, a := range m.appointments {
		if match(a) {
			out = append(out, *m.detail(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentDate.After(out[j].AppointmentDate) })
	if offset >= len(out) {
		return []AppointmentDetail{}
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memStore) ListByPatient(_ context.Context, id uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	return m.list(func(a *Appointment) bool { return a.PatientID == id }, limit, offset), nil
}

func (m *memStore) ListByDoctor(_ context.Context, id uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	return m.list(func(a *Appointment) bool { return a.DoctorID == id }, limit, offset), nil
}

func (m *memStore) ListByNurse(_ context.Context, id uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	return m.list(func(a *Appointment) bool { return a.NurseID != nil && *a.NurseID == id }, limit, offset), nil
}

func (m *memStore) ListAll(_ context.Context, limit, offset int) ([]AppointmentDetail, error) {
	return m.list(func(*Appointment) bool { return true }, limit, offset), nil
}

func (m *memStore) GetPatient(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok || !u.Active || u.Role != notify.RolePatient {
		return nil, ErrPatientNotFound
	}
	return u, nil
}

func (m *memStore) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return d, nil
}

func (m *memStore) GetNurse(_ context.Context, id uuid.UUID) (*Nurse, error) {
	n, ok := m.nurses[id]
	if !ok {
		return nil, ErrNurseNotFound
	}
	return n, nil
}

func (m *memStore) RoomExists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.rooms[id]
	return ok, nil
}

func (m *memStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

// -- Sinks --

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (s *recordingSink) Notify(_ context.Context, ev notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) recipients() map[notify.Role]uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[notify.Role]uuid.UUID)
	for _, ev := range s.events {
		out[ev.RecipientRole] = ev.RecipientUserID
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type auditEntry struct {
	action   string
	severity auditlog.Severity
	desc     string
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []auditEntry
	err     error
}

func (a *recordingAudit) Log(_ context.Context, action string, severity auditlog.Severity, desc string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{action, severity, desc})
	return a.err
}

func (a *recordingAudit) last() auditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries[len(a.entries)-1]
}

// -- Fixture --

type fixture struct {
	lc      *Lifecycle
	store   *memStore
	sink    *recordingSink
	audit   *recordingAudit
	redis   *miniredis.Miniredis
	patient *User
	doctor  *Doctor
	nurse   *Nurse
	room    uuid.UUID
}

func testConfig() config.Config {
	return config.Config{
		LockTTL:          5 * time.Second,
		Location:         time.UTC,
		SlotInterval:     45 * time.Minute,
		WorkdayStartHour: 8,
		WorkdayEndHour:   18,
		SlotScope:        config.ScopeDoctor,
	}
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newMemStore()
	f := &fixture{
		store:   store,
		sink:    &recordingSink{},
		audit:   &recordingAudit{},
		redis:   mr,
		patient: store.addUser("Alice", notify.RolePatient),
		doctor:  store.addDoctor("House"),
		nurse:   store.addNurse("Joy"),
		room:    store.addRoom("B-12"),
	}
	locker := redisclient.NewRedisSlotLocker(client, cfg.LockTTL)
	f.lc = NewLifecycle(store, locker, f.sink, f.audit, zap.NewNop(), cfg)
	return f
}

func rejection(t *testing.T, err error) *Rejection {
	t.Helper()
	r, ok := AsRejection(err)
	if !ok {
		t.Fatalf("expected *Rejection, got %T: %v", err, err)
	}
	return r
}

var errBoom = errors.New("connection refused")
