package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/notify"
)

const slotIndex = "appointments_doctor_slot_uq"

const appointmentColumns = `
	a.id, a.patient_id, a.doctor_id, a.nurse_id, a.room_id,
	a.appointment_date, a.display_date, a.status,
	a.notes, a.medicine, a.cancel_reason, a.create_date, a.updated_at`

const detailFrom = `
	FROM appointments a
	JOIN users p ON p.id = a.patient_id
	JOIN doctors d ON d.id = a.doctor_id
	JOIN users du ON du.id = d.user_id
	LEFT JOIN nurses n ON n.id = a.nurse_id
	LEFT JOIN users nu ON nu.id = n.user_id
	LEFT JOIN rooms r ON r.id = a.room_id`

const detailSelect = `SELECT ` + appointmentColumns + `,
	p.name, du.name, COALESCE(nu.name, ''), COALESCE(r.name, '')` + detailFrom

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func appointmentFields(a *Appointment) []any {
	return []any{
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.NurseID,
		&a.RoomID,
		&a.AppointmentDate,
		&a.DisplayDate,
		&a.Status,
		&a.Notes,
		&a.Medicine,
		&a.CancelReason,
		&a.CreateDate,
		&a.UpdatedAt,
	}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	if err := row.Scan(appointmentFields(&a)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	fields := append(appointmentFields(&d.Appointment), &d.PatientName, &d.DoctorName, &d.NurseName, &d.RoomName)
	if err := row.Scan(fields...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanUser(row pgx.Row, notFound error) (*User, error) {
	var u User
	var role string

	err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &u.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, err
	}

	u.Role, _ = notify.ParseRole(role)
	return &u, nil
}

func (r *PgRepository) listDetails(ctx context.Context, where string, limit, offset int, args ...any) ([]AppointmentDetail, error) {
	n := len(args)
	query := detailSelect + where + fmt.Sprintf(`
		ORDER BY a.appointment_date DESC
		LIMIT $%d OFFSET $%d`, n+1, n+2)

	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []AppointmentDetail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// Interface methods

func (r *PgRepository) FindByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments a WHERE a.id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.pool.QueryRow(ctx, detailSelect+` WHERE a.id = $1`, id)
	return scanDetail(row)
}

func (r *PgRepository) ExistsAtExactInstant(ctx context.Context, doctorID uuid.UUID, at time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE appointment_date = $1
			  AND status <> 'cancelled'
			  AND ($2::uuid IS NULL OR doctor_id = $2)
		)
	`, at, nullableUUID(doctorID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slot: %w", err)
	}
	return exists, nil
}

func (r *PgRepository) BookedInstants(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT appointment_date
		FROM appointments
		WHERE ($1::uuid IS NULL OR doctor_id = $1)
		  AND status <> 'cancelled'
		  AND appointment_date BETWEEN $2 AND $3
		ORDER BY appointment_date
	`, nullableUUID(doctorID), from, to)
	if err != nil {
		return nil, fmt.Errorf("load booked instants: %w", err)
	}

	booked, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, fmt.Errorf("load booked instants: %w", err)
	}
	return booked, nil
}

func (r *PgRepository) Insert(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments AS a (
			id, patient_id, doctor_id, nurse_id, room_id,
			appointment_date, display_date, status, notes, medicine, cancel_reason,
			create_date, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING `+appointmentColumns,
		id, a.PatientID, a.DoctorID, a.NurseID, a.RoomID,
		a.AppointmentDate, a.DisplayDate, a.Status, a.Notes, a.Medicine, a.CancelReason,
	)

	created, err := scanAppointment(row)
	if db.IsUniqueViolation(err, slotIndex) {
		return nil, ErrSlotTaken
	}
	return created, err
}

func (r *PgRepository) Update(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments AS a
		SET nurse_id = $2,
		    room_id = $3,
		    status = $4,
		    notes = $5,
		    medicine = $6,
		    cancel_reason = $7,
		    updated_at = now()
		WHERE a.id = $1
		RETURNING `+appointmentColumns,
		a.ID, a.NurseID, a.RoomID, a.Status, a.Notes, a.Medicine, a.CancelReason,
	)

	updated, err := scanAppointment(row)
	if db.IsUniqueViolation(err, slotIndex) {
		return nil, ErrSlotTaken
	}
	return updated, err
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	return r.listDetails(ctx, ` WHERE a.patient_id = $1`, limit, offset, patientID)
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	return r.listDetails(ctx, ` WHERE a.doctor_id = $1`, limit, offset, doctorID)
}

func (r *PgRepository) ListByNurse(ctx context.Context, nurseID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	return r.listDetails(ctx, ` WHERE a.nurse_id = $1`, limit, offset, nurseID)
}

func (r *PgRepository) ListAll(ctx context.Context, limit, offset int) ([]AppointmentDetail, error) {
	return r.listDetails(ctx, ``, limit, offset)
}

func (r *PgRepository) GetPatient(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, role, active
		FROM users
		WHERE id = $1 AND active AND lower(role) = 'patient'
	`, id)
	return scanUser(row, ErrPatientNotFound)
}

func (r *PgRepository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, role, active
		FROM users
		WHERE lower(email) = lower($1)
	`, email)
	return scanUser(row, ErrUserNotFound)
}

func (r *PgRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	err := r.pool.QueryRow(ctx, `
		SELECT d.id, d.user_id, u.name, d.specialty
		FROM doctors d
		JOIN users u ON u.id = d.user_id
		WHERE d.id = $1
	`, id).Scan(&d.ID, &d.UserID, &d.Name, &d.Specialty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *PgRepository) GetNurse(ctx context.Context, id uuid.UUID) (*Nurse, error) {
	var n Nurse
	err := r.pool.QueryRow(ctx, `
		SELECT n.id, n.user_id, u.name, n.department
		FROM nurses n
		JOIN users u ON u.id = n.user_id
		WHERE n.id = $1
	`, id).Scan(&n.ID, &n.UserID, &n.Name, &n.Department)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNurseNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *PgRepository) RoomExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check room: %w", err)
	}
	return exists, nil
}
