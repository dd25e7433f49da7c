package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/notify"
)

const actorHeader = "X-Actor-ID"

type AppointmentService interface {
	Create(ctx context.Context, cmd appointment.CreateAppointment) (*appointment.CreateResult, error)
	Assign(ctx context.Context, cmd appointment.AssignAppointment) (*appointment.Appointment, error)
	Cancel(ctx context.Context, cmd appointment.CancelAppointment) (*appointment.Appointment, error)
	Close(ctx context.Context, cmd appointment.CloseAppointment) (*appointment.Appointment, error)
	IsSlotTaken(ctx context.Context, doctorID uuid.UUID, at time.Time) (bool, error)
	AvailableSlots(ctx context.Context, doctorID uuid.UUID, reference time.Time) ([]time.Time, error)
	Get(ctx context.Context, id uuid.UUID) (*appointment.AppointmentDetail, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.AppointmentDetail, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]appointment.AppointmentDetail, error)
	ListByNurse(ctx context.Context, nurseID uuid.UUID, limit, offset int) ([]appointment.AppointmentDetail, error)
	ListAll(ctx context.Context, limit, offset int) ([]appointment.AppointmentDetail, error)
}

type ResetCodeStore interface {
	Issue(ctx context.Context, email string) (string, error)
	Verify(ctx context.Context, email, code string) error
	TTL() time.Duration
}

type UserFinder interface {
	FindUserByEmail(ctx context.Context, email string) (*appointment.User, error)
}

func createAppointmentHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		patientID, ok := parseUUID(w, req.PatientID, "patient_id")
		if !ok {
			return
		}
		doctorID, ok := parseUUID(w, req.DoctorID, "doctor_id")
		if !ok {
			return
		}
		if req.AppointmentDate.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_appointment_date", "appointment_date is required")
			return
		}
		actor, ok := actorID(w, r, patientID)
		if !ok {
			return
		}

		res, err := svc.Create(r.Context(), appointment.CreateAppointment{
			PatientID: patientID,
			DoctorID:  doctorID,
			Date:      req.AppointmentDate,
			ActorID:   actor,
		})
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, CreateAppointmentResponse{
			Appointment: toAppointmentResponse(res.Appointment),
			DisplayTime: res.DisplayTime,
		})
	}
}

func assignAppointmentHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}
		var req AssignAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		nurseID, ok := parseUUID(w, req.NurseID, "nurse_id")
		if !ok {
			return
		}
		roomID, ok := parseUUID(w, req.RoomID, "room_id")
		if !ok {
			return
		}
		actor, ok := actorID(w, r, uuid.Nil)
		if !ok {
			return
		}

		appt, err := svc.Assign(r.Context(), appointment.AssignAppointment{
			AppointmentID: id,
			NurseID:       nurseID,
			RoomID:        roomID,
			ActorID:       actor,
		})
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}
		var req CancelAppointmentRequest
		if !decodeOptionalBody(w, r, &req) {
			return
		}
		actor, ok := actorID(w, r, uuid.Nil)
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), appointment.CancelAppointment{
			AppointmentID: id,
			Reason:        req.Reason,
			ActorID:       actor,
		})
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func closeAppointmentHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}
		var req CloseAppointmentRequest
		if !decodeOptionalBody(w, r, &req) {
			return
		}
		actor, ok := actorID(w, r, uuid.Nil)
		if !ok {
			return
		}

		appt, err := svc.Close(r.Context(), appointment.CloseAppointment{
			AppointmentID: id,
			Notes:         req.Notes,
			Medicine:      req.Medicine,
			ActorID:       actor,
		})
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUID(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}
		detail, err := svc.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toDetailResponse(detail))
	}
}

// listAppointmentsHandler filters by at most one of patient_id, doctor_id, nurse_id.
func listAppointmentsHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, ok := parseIntParam(w, q.Get("limit"), "limit")
		if !ok {
			return
		}
		offset, ok := parseIntParam(w, q.Get("offset"), "offset")
		if !ok {
			return
		}

		var filters []string
		for _, key := range []string{"patient_id", "doctor_id", "nurse_id"} {
			if q.Get(key) != "" {
				filters = append(filters, key)
			}
		}
		if len(filters) > 1 {
			writeError(w, http.StatusBadRequest, "invalid_filter", "use only one of patient_id, doctor_id, nurse_id")
			return
		}

		var (
			list []appointment.AppointmentDetail
			err  error
		)
		if len(filters) == 0 {
			list, err = svc.ListAll(r.Context(), limit, offset)
		} else {
			id, ok := parseUUID(w, q.Get(filters[0]), filters[0])
			if !ok {
				return
			}
			switch filters[0] {
			case "patient_id":
				list, err = svc.ListByPatient(r.Context(), id, limit, offset)
			case "doctor_id":
				list, err = svc.ListByDoctor(r.Context(), id, limit, offset)
			case "nurse_id":
				list, err = svc.ListByNurse(r.Context(), id, limit, offset)
			}
		}
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		resp := ListAppointmentsResponse{
			Appointments: make([]AppointmentDetailResponse, 0, len(list)),
			Limit:        limit,
			Offset:       offset,
		}
		for i := range list {
			resp.Appointments = append(resp.Appointments, toDetailResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func availableSlotsHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUID(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}
		from := time.Now()
		if raw := r.URL.Query().Get("from"); raw != "" {
			from, ok = parseTime(w, raw, "from")
			if !ok {
				return
			}
		}

		slots, err := svc.AvailableSlots(r.Context(), doctorID, from)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, AvailableSlotsResponse{DoctorID: doctorID, From: from, Slots: slots})
	}
}

func slotTakenHandler(svc AppointmentService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := parseUUID(w, chi.URLParam(r, "id"), "id")
		if !ok {
			return
		}
		at, ok := parseTime(w, r.URL.Query().Get("at"), "at")
		if !ok {
			return
		}

		taken, err := svc.IsSlotTaken(r.Context(), doctorID, at)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, SlotTakenResponse{DoctorID: doctorID, At: at, Taken: taken})
	}
}

// issueResetCodeHandler stores a fresh code and delivers it as a notification
// to the account owner. The code is never part of the response, and an unknown
// email gets the same 202 without a code being issued.
func issueResetCodeHandler(codes ResetCodeStore, users UserFinder, sink notify.Sink, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResetCodeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Email == "" {
			writeError(w, http.StatusBadRequest, "invalid_email", auth.ErrEmptyEmail.Error())
			return
		}

		user, err := users.FindUserByEmail(r.Context(), req.Email)
		if errors.Is(err, appointment.ErrUserNotFound) {
			logger.Debug("reset code requested for unknown email")
			writeJSON(w, http.StatusAccepted, ResetCodeResponse{ExpiresInSeconds: int(codes.TTL().Seconds())})
			return
		}
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		code, err := codes.Issue(r.Context(), user.Email)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		err = sink.Notify(context.WithoutCancel(r.Context()), notify.Event{
			Kind:            notify.KindPasswordReset,
			RecipientRole:   user.Role,
			RecipientUserID: user.ID,
			Message:         fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(codes.TTL().Minutes())),
		})
		if err != nil {
			logger.Warn("deliver reset code", zap.String("user_id", user.ID.String()), zap.Error(err))
		}

		writeJSON(w, http.StatusAccepted, ResetCodeResponse{ExpiresInSeconds: int(codes.TTL().Seconds())})
	}
}

func verifyResetCodeHandler(codes ResetCodeStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VerifyResetCodeRequest
		if !decodeBody(w, r, &req) {
			return
		}

		err := codes.Verify(r.Context(), req.Email, req.Code)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, VerifyResetCodeResponse{Verified: true})
		case errors.Is(err, auth.ErrEmptyEmail):
			writeError(w, http.StatusBadRequest, "invalid_email", err.Error())
		case errors.Is(err, auth.ErrCodeInvalid):
			writeError(w, http.StatusBadRequest, "invalid_code", err.Error())
		default:
			handleServiceError(w, r, logger, err)
		}
	}
}

// handleServiceError renders rejections with their display message and keeps
// everything else opaque.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	if rej, ok := appointment.AsRejection(err); ok {
		switch rej.Reason {
		case appointment.ReasonNotFound:
			writeError(w, http.StatusNotFound, rej.Reason.String(), rej.Message)
		case appointment.ReasonSlotTaken, appointment.ReasonInvalidTransition:
			writeError(w, http.StatusConflict, rej.Reason.String(), rej.Message)
		default:
			writeError(w, http.StatusUnprocessableEntity, rej.Reason.String(), rej.Message)
		}
		return
	}

	logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", GetRequestID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// decodeOptionalBody accepts an empty body.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func parseUUID(w http.ResponseWriter, raw, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseTime(w http.ResponseWriter, raw, field string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be an RFC3339 timestamp")
		return time.Time{}, false
	}
	return t, true
}

func parseIntParam(w http.ResponseWriter, raw, field string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be an integer")
		return 0, false
	}
	return n, true
}

// actorID reads the acting user from X-Actor-ID, falling back when absent.
func actorID(w http.ResponseWriter, r *http.Request, fallback uuid.UUID) (uuid.UUID, bool) {
	raw := r.Header.Get(actorHeader)
	if raw == "" {
		return fallback, true
	}
	return parseUUID(w, raw, "actor_id")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
