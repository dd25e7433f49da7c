// Package notify delivers "something happened" messages to clinic users.
package notify

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type Kind string

const (
	KindAppointmentCreated   Kind = "appointment_created"
	KindAppointmentAssigned  Kind = "appointment_assigned"
	KindAppointmentCancelled Kind = "appointment_cancelled"
	KindAppointmentCompleted Kind = "appointment_completed"
	KindPasswordReset        Kind = "password_reset"
)

// Role is the closed set of user roles a notification can target.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleNurse   Role = "nurse"
	RoleAdmin   Role = "admin"
)

// ParseRole maps a stored role name onto a Role. "administrator" is a legacy
// spelling of admin.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "patient":
		return RolePatient, true
	case "doctor":
		return RoleDoctor, true
	case "nurse":
		return RoleNurse, true
	case "admin", "administrator":
		return RoleAdmin, true
	}
	return "", false
}

// Aliases returns every stored spelling that parses to r.
func (r Role) Aliases() []string {
	if r == RoleAdmin {
		return []string{"admin", "administrator"}
	}
	return []string{string(r)}
}

// Event is one notification. A zero RecipientUserID addresses every active
// user holding RecipientRole.
type Event struct {
	Kind            Kind
	SenderID        uuid.UUID
	RecipientRole   Role
	RecipientUserID uuid.UUID
	Message         string
}

// Broadcast reports whether the event targets a whole role.
func (e Event) Broadcast() bool {
	return e.RecipientUserID == uuid.Nil
}

type Sink interface {
	Notify(ctx context.Context, ev Event) error
}
