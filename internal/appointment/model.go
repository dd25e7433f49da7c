package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/notify"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusAssigned  AppointmentStatus = "assigned"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled: {StatusAssigned, StatusCancelled, StatusCompleted},
	StatusAssigned:  {StatusCancelled, StatusCompleted},
}

func ParseStatus(s string) (AppointmentStatus, bool) {
	st := AppointmentStatus(s)
	switch st {
	case StatusScheduled, StatusAssigned, StatusCompleted, StatusCancelled:
		return st, true
	}
	return "", false
}

// Terminal reports whether no further transition is allowed out of s.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s AppointmentStatus) CanTransition(to AppointmentStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type User struct {
	ID     uuid.UUID
	Name   string
	Email  string
	Role   notify.Role
	Active bool
}

// Doctor and Nurse are role records attached 1:1 to a User.
type Doctor struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Specialty *string
}

type Nurse struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Name       string
	Department *string
}

// Appointment keeps the instant the caller asked for in AppointmentDate, which
// is what slot exclusivity is decided on, and its quarter-hour rounding in
// DisplayDate.
type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	NurseID         *uuid.UUID
	RoomID          *uuid.UUID
	AppointmentDate time.Time
	DisplayDate     time.Time
	Status          AppointmentStatus
	Notes           string
	Medicine        string
	CancelReason    string
	CreateDate      time.Time
	UpdatedAt       time.Time
}

type AppointmentDetail struct {
	Appointment
	PatientName string
	DoctorName  string
	NurseName   string
	RoomName    string
}

// Commands accepted by the Lifecycle. ActorID is the user performing the action.

type CreateAppointment struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	ActorID   uuid.UUID
}

type AssignAppointment struct {
	AppointmentID uuid.UUID
	NurseID       uuid.UUID
	RoomID        uuid.UUID
	ActorID       uuid.UUID
}

type CancelAppointment struct {
	AppointmentID uuid.UUID
	Reason        string
	ActorID       uuid.UUID
}

type CloseAppointment struct {
	AppointmentID uuid.UUID
	Notes         string
	Medicine      string
	ActorID       uuid.UUID
}

type CreateResult struct {
	Appointment *Appointment
	DisplayTime time.Time
}
