package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	failOn uuid.UUID
}

func (s *recordingSink) Notify(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != uuid.Nil && ev.RecipientUserID == s.failOn {
		return errors.New("mailbox full")
	}
	s.events = append(s.events, ev)
	return nil
}

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"patient":       RolePatient,
		"Doctor":        RoleDoctor,
		" nurse ":       RoleNurse,
		"admin":         RoleAdmin,
		"Administrator": RoleAdmin,
	}
	for in, want := range cases {
		got, ok := ParseRole(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseRole("adminn")
	assert.False(t, ok)
}

func TestRoleAliases(t *testing.T) {
	assert.ElementsMatch(t, []string{"admin", "administrator"}, RoleAdmin.Aliases())
	assert.Equal(t, []string{"doctor"}, RoleDoctor.Aliases())
}

func TestFanout_DeliversAll(t *testing.T) {
	sink := &recordingSink{}
	events := []Event{
		{Kind: KindAppointmentCreated, RecipientRole: RoleDoctor, RecipientUserID: uuid.New()},
		{Kind: KindAppointmentCreated, RecipientRole: RolePatient, RecipientUserID: uuid.New()},
		{Kind: KindAppointmentCreated, RecipientRole: RoleAdmin},
	}

	require.NoError(t, Fanout(context.Background(), sink, events))
	assert.Len(t, sink.events, 3)
}

func TestFanout_FailureDoesNotStopOthers(t *testing.T) {
	bad := uuid.New()
	sink := &recordingSink{failOn: bad}
	events := []Event{
		{Kind: KindAppointmentAssigned, RecipientRole: RoleNurse, RecipientUserID: bad},
		{Kind: KindAppointmentAssigned, RecipientRole: RoleDoctor, RecipientUserID: uuid.New()},
		{Kind: KindAppointmentAssigned, RecipientRole: RoleAdmin},
	}

	err := Fanout(context.Background(), sink, events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailbox full")
	assert.Contains(t, err.Error(), bad.String())
	assert.Len(t, sink.events, 2)
}

func TestFanout_Empty(t *testing.T) {
	assert.NoError(t, Fanout(context.Background(), &recordingSink{}, nil))
}

func TestPgSink_Direct(t *testing.T) {
	db := &fakeExecer{}
	sink := NewPgSink(db)
	sender := uuid.New()
	recipient := uuid.New()

	err := sink.Notify(context.Background(), Event{
		Kind:            KindAppointmentCancelled,
		SenderID:        sender,
		RecipientRole:   RolePatient,
		RecipientUserID: recipient,
		Message:         "cancelled",
	})

	require.NoError(t, err)
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "VALUES")
	assert.Equal(t, []any{KindAppointmentCancelled, sender, RolePatient, recipient, "cancelled"}, db.calls[0].args)
}

func TestPgSink_BroadcastToAdmins(t *testing.T) {
	db := &fakeExecer{}
	sink := NewPgSink(db)

	err := sink.Notify(context.Background(), Event{
		Kind:          KindAppointmentCreated,
		RecipientRole: RoleAdmin,
		Message:       "new booking",
	})

	require.NoError(t, err)
	require.Len(t, db.calls, 1)
	assert.True(t, strings.Contains(db.calls[0].sql, "FROM users u"))
	assert.Nil(t, db.calls[0].args[1])
	assert.Equal(t, []string{"admin", "administrator"}, db.calls[0].args[4])
}

func TestPgSink_Error(t *testing.T) {
	db := &fakeExecer{err: errors.New("connection reset")}
	sink := NewPgSink(db)

	err := sink.Notify(context.Background(), Event{RecipientRole: RoleDoctor, RecipientUserID: uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert notification")
}
