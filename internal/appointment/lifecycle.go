package appointment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/auditlog"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/notify"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
)

const (
	ActionCreate = "CreateAppointment"
	ActionAssign = "AssignAppointment"
	ActionCancel = "CancelAppointment"
	ActionClose  = "CloseAppointment"
)

const displayLayout = "Mon 02 Jan 2006 15:04"

// Lifecycle is the appointment state machine. It reads and writes through
// Store, serializes bookings of one slot through the Locker, and reports every
// committed transition to the notification and audit sinks. Sink failures are
// logged and never change the outcome.
type Lifecycle struct {
	store  Store
	locker redisclient.Locker
	sink   notify.Sink
	audit  auditlog.Sink
	clock  *SlotClock
	logger *zap.Logger
	cfg    config.Config
}

func NewLifecycle(store Store, locker redisclient.Locker, sink notify.Sink, audit auditlog.Sink, logger *zap.Logger, cfg config.Config) *Lifecycle {
	return &Lifecycle{
		store:  store,
		locker: locker,
		sink:   sink,
		audit:  audit,
		clock:  NewSlotClock(store, cfg.SlotInterval, cfg.WorkdayStartHour, cfg.WorkdayEndHour, cfg.Location),
		logger: logger.Named("lifecycle"),
		cfg:    cfg,
	}
}

// Create books doctor and patient into the requested instant.
func (l *Lifecycle) Create(ctx context.Context, cmd CreateAppointment) (*CreateResult, error) {
	patient, err := l.store.GetPatient(ctx, cmd.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, l.reject(ctx, ActionCreate, rejectNotFound(err, "Patient not found."))
		}
		return nil, l.fault(ctx, ActionCreate, "load patient", err)
	}

	doctor, err := l.store.GetDoctor(ctx, cmd.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, l.reject(ctx, ActionCreate, rejectNotFound(err, "Doctor not found."))
		}
		return nil, l.fault(ctx, ActionCreate, "load doctor", err)
	}

	var created *Appointment

	err = l.locker.WithSlotLock(ctx, l.slotKey(cmd.DoctorID, cmd.Date), func(lockCtx context.Context) error {
		// Inside the critical section check the slot, the unique index backs this up
		taken, err := l.IsSlotTaken(lockCtx, cmd.DoctorID, cmd.Date)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}

		appt, err := l.store.Insert(lockCtx, &Appointment{
			PatientID:       patient.ID,
			DoctorID:        doctor.ID,
			AppointmentDate: cmd.Date,
			DisplayDate:     RoundToQuarterHour(cmd.Date),
			Status:          StatusScheduled,
		})
		if err != nil {
			return err
		}
		created = appt
		return nil
	})

	switch {
	case errors.Is(err, ErrSlotTaken), errors.Is(err, redisclient.ErrLockNotAcquired):
		return nil, l.reject(ctx, ActionCreate, rejectSlotTaken(cmd.Date))
	case err != nil:
		return nil, l.fault(ctx, ActionCreate, "create appointment", err)
	}

	l.record(ctx, ActionCreate, auditlog.SeverityInfo,
		fmt.Sprintf("appointment %s created for patient %s with doctor %s at %s",
			created.ID, patient.ID, doctor.ID, created.AppointmentDate.Format(time.RFC3339)))

	when := l.display(created.DisplayDate)
	l.notify(ctx, []notify.Event{
		{
			Kind:            notify.KindAppointmentCreated,
			SenderID:        cmd.ActorID,
			RecipientRole:   notify.RoleDoctor,
			RecipientUserID: doctor.UserID,
			Message:         fmt.Sprintf("New appointment with %s on %s.", patient.Name, when),
		},
		{
			Kind:          notify.KindAppointmentCreated,
			SenderID:      cmd.ActorID,
			RecipientRole: notify.RoleAdmin,
			Message:       fmt.Sprintf("Appointment booked: %s with Dr. %s on %s.", patient.Name, doctor.Name, when),
		},
	})

	return &CreateResult{Appointment: created, DisplayTime: created.DisplayDate}, nil
}

// Assign attaches a nurse and a room.
func (l *Lifecycle) Assign(ctx context.Context, cmd AssignAppointment) (*Appointment, error) {
	var nurse *Nurse

	appt, err := l.transition(ctx, ActionAssign, cmd.AppointmentID, StatusAssigned, func(a *Appointment) error {
		n, err := l.store.GetNurse(ctx, cmd.NurseID)
		if err != nil {
			if errors.Is(err, ErrNurseNotFound) {
				return rejectNotFound(err, "Nurse not found.")
			}
			return fmt.Errorf("load nurse: %w", err)
		}
		ok, err := l.store.RoomExists(ctx, cmd.RoomID)
		if err != nil {
			return err
		}
		if !ok {
			return rejectNotFound(ErrRoomNotFound, "Room not found.")
		}

		nurse = n
		a.NurseID = &n.ID
		a.RoomID = &cmd.RoomID
		return nil
	})
	if err != nil {
		return nil, err
	}

	when := l.display(appt.DisplayDate)
	events := []notify.Event{
		l.patientEvent(notify.KindAppointmentAssigned, cmd.ActorID, appt, fmt.Sprintf("Your appointment on %s has a nurse and room assigned.", when)),
		{
			Kind:            notify.KindAppointmentAssigned,
			SenderID:        cmd.ActorID,
			RecipientRole:   notify.RoleNurse,
			RecipientUserID: nurse.UserID,
			Message:         fmt.Sprintf("You have been assigned to an appointment on %s.", when),
		},
		l.adminEvent(notify.KindAppointmentAssigned, cmd.ActorID, fmt.Sprintf("Appointment %s assigned to nurse %s.", appt.ID, nurse.Name)),
	}
	if ev, ok := l.doctorEvent(ctx, notify.KindAppointmentAssigned, cmd.ActorID, appt, fmt.Sprintf("Nurse %s assigned to your appointment on %s.", nurse.Name, when)); ok {
		events = append(events, ev)
	}
	l.notify(ctx, events)

	return appt, nil
}

// Cancel marks the appointment cancelled. The patient is not told about a
// cancellation they made themselves.
func (l *Lifecycle) Cancel(ctx context.Context, cmd CancelAppointment) (*Appointment, error) {
	appt, err := l.transition(ctx, ActionCancel, cmd.AppointmentID, StatusCancelled, func(a *Appointment) error {
		a.CancelReason = cmd.Reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	when := l.display(appt.DisplayDate)
	msg := fmt.Sprintf("The appointment on %s was cancelled.", when)
	if cmd.Reason != "" {
		msg = fmt.Sprintf("The appointment on %s was cancelled: %s", when, cmd.Reason)
	}

	var events []notify.Event
	if ev, ok := l.doctorEvent(ctx, notify.KindAppointmentCancelled, cmd.ActorID, appt, msg); ok {
		events = append(events, ev)
	}
	if cmd.ActorID != appt.PatientID {
		events = append(events, l.patientEvent(notify.KindAppointmentCancelled, cmd.ActorID, appt, msg))
	}
	events = append(events, l.adminEvent(notify.KindAppointmentCancelled, cmd.ActorID, fmt.Sprintf("Appointment %s cancelled.", appt.ID)))
	l.notify(ctx, events)

	return appt, nil
}

// Close completes the appointment with the visit notes and prescribed medicine.
func (l *Lifecycle) Close(ctx context.Context, cmd CloseAppointment) (*Appointment, error) {
	appt, err := l.transition(ctx, ActionClose, cmd.AppointmentID, StatusCompleted, func(a *Appointment) error {
		a.Notes = cmd.Notes
		a.Medicine = cmd.Medicine
		return nil
	})
	if err != nil {
		return nil, err
	}

	when := l.display(appt.DisplayDate)
	msg := fmt.Sprintf("The appointment on %s has been completed.", when)

	events := []notify.Event{
		l.patientEvent(notify.KindAppointmentCompleted, cmd.ActorID, appt, msg),
		l.adminEvent(notify.KindAppointmentCompleted, cmd.ActorID, fmt.Sprintf("Appointment %s completed.", appt.ID)),
	}
	if ev, ok := l.doctorEvent(ctx, notify.KindAppointmentCompleted, cmd.ActorID, appt, msg); ok && ev.RecipientUserID != cmd.ActorID {
		events = append(events, ev)
	}
	if appt.NurseID != nil {
		if nurse, err := l.store.GetNurse(ctx, *appt.NurseID); err != nil {
			l.logger.Warn("skip nurse notification", zap.Stringer("appointment_id", appt.ID), zap.Error(err))
		} else {
			events = append(events, notify.Event{
				Kind:            notify.KindAppointmentCompleted,
				SenderID:        cmd.ActorID,
				RecipientRole:   notify.RoleNurse,
				RecipientUserID: nurse.UserID,
				Message:         msg,
			})
		}
	}
	l.notify(ctx, events)

	return appt, nil
}

// IsSlotTaken reports whether a non-cancelled appointment already sits at
// exactly at. With the global slot scope doctorID is ignored.
func (l *Lifecycle) IsSlotTaken(ctx context.Context, doctorID uuid.UUID, at time.Time) (bool, error) {
	if l.cfg.SlotScope == config.ScopeGlobal {
		doctorID = uuid.Nil
	}
	return l.store.ExistsAtExactInstant(ctx, doctorID, at)
}

func (l *Lifecycle) AvailableSlots(ctx context.Context, doctorID uuid.UUID, reference time.Time) ([]time.Time, error) {
	if _, err := l.store.GetDoctor(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, rejectNotFound(err, "Doctor not found.")
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	// under the global scope any doctor's booking blocks the instant
	if l.cfg.SlotScope == config.ScopeGlobal {
		doctorID = uuid.Nil
	}
	return l.clock.AvailableSlots(ctx, doctorID, reference)
}

// Reads

func (l *Lifecycle) Get(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := l.store.GetDetail(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, rejectNotFound(err, "Appointment not found.")
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return detail, nil
}

func (l *Lifecycle) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	limit, offset = page(limit, offset)
	out, err := l.store.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return out, nil
}

func (l *Lifecycle) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	limit, offset = page(limit, offset)
	out, err := l.store.ListByDoctor(ctx, doctorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return out, nil
}

func (l *Lifecycle) ListByNurse(ctx context.Context, nurseID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	limit, offset = page(limit, offset)
	out, err := l.store.ListByNurse(ctx, nurseID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by nurse: %w", err)
	}
	return out, nil
}

func (l *Lifecycle) ListAll(ctx context.Context, limit, offset int) ([]AppointmentDetail, error) {
	limit, offset = page(limit, offset)
	out, err := l.store.ListAll(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return out, nil
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// transition loads the appointment, checks the move to `to`, lets prepare
// mutate it and persists the result.
func (l *Lifecycle) transition(ctx context.Context, action string, id uuid.UUID, to AppointmentStatus, prepare func(*Appointment) error) (*Appointment, error) {
	appt, err := l.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, l.reject(ctx, action, rejectNotFound(err, "Appointment not found."))
		}
		return nil, l.fault(ctx, action, "load appointment", err)
	}

	from := appt.Status
	if !l.cfg.Permissive && !from.CanTransition(to) {
		return nil, l.reject(ctx, action, rejectTransition(from, to))
	}

	if err := prepare(appt); err != nil {
		if r, ok := AsRejection(err); ok {
			return nil, l.reject(ctx, action, r)
		}
		return nil, l.fault(ctx, action, "prepare transition", err)
	}
	appt.Status = to

	updated, err := l.store.Update(ctx, appt)
	switch {
	case errors.Is(err, ErrAppointmentNotFound):
		return nil, l.reject(ctx, action, rejectNotFound(err, "Appointment not found."))
	case errors.Is(err, ErrSlotTaken):
		// reviving a cancelled appointment onto a slot that was rebooked
		return nil, l.reject(ctx, action, rejectSlotTaken(appt.AppointmentDate))
	case err != nil:
		return nil, l.fault(ctx, action, "update appointment", err)
	}

	l.record(ctx, action, auditlog.SeverityInfo,
		fmt.Sprintf("appointment %s moved from %s to %s", updated.ID, from, to))
	return updated, nil
}

func (l *Lifecycle) slotKey(doctorID uuid.UUID, at time.Time) string {
	scope := doctorID.String()
	if l.cfg.SlotScope == config.ScopeGlobal {
		scope = "all"
	}
	return scope + ":" + strconv.FormatInt(at.UnixNano(), 10)
}

func (l *Lifecycle) display(t time.Time) string {
	if l.cfg.Location != nil {
		t = t.In(l.cfg.Location)
	}
	return t.Format(displayLayout)
}

func (l *Lifecycle) patientEvent(kind notify.Kind, sender uuid.UUID, appt *Appointment, msg string) notify.Event {
	return notify.Event{
		Kind:            kind,
		SenderID:        sender,
		RecipientRole:   notify.RolePatient,
		RecipientUserID: appt.PatientID,
		Message:         msg,
	}
}

func (l *Lifecycle) adminEvent(kind notify.Kind, sender uuid.UUID, msg string) notify.Event {
	return notify.Event{
		Kind:          kind,
		SenderID:      sender,
		RecipientRole: notify.RoleAdmin,
		Message:       msg,
	}
}

// doctorEvent resolves the doctor's user. A failed lookup only costs the notification.
func (l *Lifecycle) doctorEvent(ctx context.Context, kind notify.Kind, sender uuid.UUID, appt *Appointment, msg string) (notify.Event, bool) {
	doctor, err := l.store.GetDoctor(ctx, appt.DoctorID)
	if err != nil {
		l.logger.Warn("skip doctor notification", zap.Stringer("appointment_id", appt.ID), zap.Error(err))
		return notify.Event{}, false
	}
	return notify.Event{
		Kind:            kind,
		SenderID:        sender,
		RecipientRole:   notify.RoleDoctor,
		RecipientUserID: doctor.UserID,
		Message:         msg,
	}, true
}

// notify runs after the mutation committed, so it must not inherit the
// request's cancellation.
func (l *Lifecycle) notify(ctx context.Context, events []notify.Event) {
	if err := notify.Fanout(context.WithoutCancel(ctx), l.sink, events); err != nil {
		l.logger.Warn("notification delivery failed", zap.Error(err))
	}
}

func (l *Lifecycle) record(ctx context.Context, action string, severity auditlog.Severity, description string) {
	if err := l.audit.Log(context.WithoutCancel(ctx), action, severity, description); err != nil {
		l.logger.Warn("failed to write audit log",
			zap.String("action_type", action), zap.Error(err))
	}
}

func (l *Lifecycle) reject(ctx context.Context, action string, r *Rejection) *Rejection {
	l.record(ctx, action, auditlog.SeverityWarning, r.Message)
	return r
}

func (l *Lifecycle) fault(ctx context.Context, action, what string, err error) error {
	l.logger.Error(action+" failed", zap.String("step", what), zap.Error(err))
	l.record(ctx, action, auditlog.SeverityError, fmt.Sprintf("%s: %v", what, err))
	return fmt.Errorf("%s: %w", what, err)
}
