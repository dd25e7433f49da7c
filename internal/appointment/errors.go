package appointment

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrNurseNotFound       = errors.New("nurse not found")
	ErrRoomNotFound        = errors.New("room not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotTaken           = errors.New("slot already taken")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

type RejectReason int

const (
	ReasonNotFound RejectReason = iota + 1
	ReasonSlotTaken
	ReasonInvalidTransition
)

func (r RejectReason) String() string {
	switch r {
	case ReasonNotFound:
		return "not_found"
	case ReasonSlotTaken:
		return "slot_taken"
	case ReasonInvalidTransition:
		return "invalid_transition"
	}
	return "unknown"
}

// Rejection is a recoverable outcome the caller can show to the user as is.
// It unwraps to one of the package sentinels.
type Rejection struct {
	Reason  RejectReason
	Message string
	// At is the requested instant for ReasonSlotTaken.
	At   time.Time
	From AppointmentStatus
	To   AppointmentStatus

	cause error
}

func (r *Rejection) Error() string { return r.Message }

func (r *Rejection) Unwrap() error { return r.cause }

func rejectNotFound(cause error, message string) *Rejection {
	return &Rejection{Reason: ReasonNotFound, Message: message, cause: cause}
}

func rejectSlotTaken(at time.Time) *Rejection {
	return &Rejection{
		Reason:  ReasonSlotTaken,
		Message: "The selected time slot is already taken. Please choose another time.",
		At:      at,
		cause:   ErrSlotTaken,
	}
}

func rejectTransition(from, to AppointmentStatus) *Rejection {
	return &Rejection{
		Reason:  ReasonInvalidTransition,
		Message: fmt.Sprintf("Appointment cannot move from %s to %s.", from, to),
		From:    from,
		To:      to,
		cause:   ErrInvalidTransition,
	}
}

// AsRejection extracts a Rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
