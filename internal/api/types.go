package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

type CreateAppointmentRequest struct {
	PatientID       string    `json:"patient_id"`
	DoctorID        string    `json:"doctor_id"`
	AppointmentDate time.Time `json:"appointment_date"`
}

type AssignAppointmentRequest struct {
	NurseID string `json:"nurse_id"`
	RoomID  string `json:"room_id"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type CloseAppointmentRequest struct {
	Notes    string `json:"notes"`
	Medicine string `json:"medicine"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	DoctorID        uuid.UUID  `json:"doctor_id"`
	NurseID         *uuid.UUID `json:"nurse_id,omitempty"`
	RoomID          *uuid.UUID `json:"room_id,omitempty"`
	AppointmentDate time.Time  `json:"appointment_date"`
	DisplayDate     time.Time  `json:"display_date"`
	Status          string     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	Medicine        string     `json:"medicine,omitempty"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	CreateDate      time.Time  `json:"create_date"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	PatientName string `json:"patient_name"`
	DoctorName  string `json:"doctor_name"`
	NurseName   string `json:"nurse_name,omitempty"`
	RoomName    string `json:"room_name,omitempty"`
}

type CreateAppointmentResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	DisplayTime time.Time           `json:"display_time"`
}

type ListAppointmentsResponse struct {
	Appointments []AppointmentDetailResponse `json:"appointments"`
	Limit        int                         `json:"limit"`
	Offset       int                         `json:"offset"`
}

type AvailableSlotsResponse struct {
	DoctorID uuid.UUID   `json:"doctor_id"`
	From     time.Time   `json:"from"`
	Slots    []time.Time `json:"slots"`
}

type SlotTakenResponse struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	At       time.Time `json:"at"`
	Taken    bool      `json:"taken"`
}

type ResetCodeRequest struct {
	Email string `json:"email"`
}

type ResetCodeResponse struct {
	ExpiresInSeconds int `json:"expires_in_seconds"`
}

type VerifyResetCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type VerifyResetCodeResponse struct {
	Verified bool `json:"verified"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		DoctorID:        a.DoctorID,
		NurseID:         a.NurseID,
		RoomID:          a.RoomID,
		AppointmentDate: a.AppointmentDate,
		DisplayDate:     a.DisplayDate,
		Status:          string(a.Status),
		Notes:           a.Notes,
		Medicine:        a.Medicine,
		CancelReason:    a.CancelReason,
		CreateDate:      a.CreateDate,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toDetailResponse(d *appointment.AppointmentDetail) AppointmentDetailResponse {
	return AppointmentDetailResponse{
		AppointmentResponse: toAppointmentResponse(&d.Appointment),
		PatientName:         d.PatientName,
		DoctorName:          d.DoctorName,
		NurseName:           d.NurseName,
		RoomName:            d.RoomName,
	}
}
