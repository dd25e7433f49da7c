package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store contains all DB interactions needed by the lifecycle. It is the sole
// writer of appointment rows.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)

	// For conflict checks and slot listing. A nil doctorID matches any doctor.
	// Cancelled rows never count.
	ExistsAtExactInstant(ctx context.Context, doctorID uuid.UUID, at time.Time) (bool, error)
	BookedInstants(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error)

	// Insert assigns ID and CreateDate. Both Insert and Update return
	// ErrSlotTaken when the slot uniqueness constraint rejects the row.
	Insert(ctx context.Context, a *Appointment) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) (*Appointment, error)

	// Read projections
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]AppointmentDetail, error)
	ListByNurse(ctx context.Context, nurseID uuid.UUID, limit, offset int) ([]AppointmentDetail, error)
	ListAll(ctx context.Context, limit, offset int) ([]AppointmentDetail, error)

	// Participants. GetPatient only resolves active users with the patient role.
	GetPatient(ctx context.Context, id uuid.UUID) (*User, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetNurse(ctx context.Context, id uuid.UUID) (*Nurse, error)
	RoomExists(ctx context.Context, id uuid.UUID) (bool, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
}
