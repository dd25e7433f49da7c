package auditlog

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeExecer struct {
	args []any
	err  error
}

func (f *fakeExecer) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	f.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func TestPgSink_Log(t *testing.T) {
	db := &fakeExecer{}
	sink := NewPgSink(db)

	err := sink.Log(context.Background(), "CreateAppointment", SeverityInfo, "created")
	require.NoError(t, err)
	assert.Equal(t, []any{"CreateAppointment", SeverityInfo, "created"}, db.args)
}

func TestPgSink_LogError(t *testing.T) {
	sink := NewPgSink(&fakeExecer{err: errors.New("db down")})

	err := sink.Log(context.Background(), "CancelAppointment", SeverityError, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CancelAppointment")
}

func TestZapSink_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewZapSink(zap.New(core))

	ctx := context.Background()
	require.NoError(t, sink.Log(ctx, "a", SeverityInfo, "one"))
	require.NoError(t, sink.Log(ctx, "b", SeverityWarning, "two"))
	require.NoError(t, sink.Log(ctx, "c", SeverityError, "three"))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "c", entries[2].ContextMap()["action_type"])
}

func TestTee_JoinsErrors(t *testing.T) {
	ok := &fakeExecer{}
	bad := &fakeExecer{err: errors.New("db down")}

	err := Tee(NewPgSink(ok), NewPgSink(bad)).Log(context.Background(), "AssignAppointment", SeverityInfo, "assigned")
	require.Error(t, err)
	assert.Equal(t, "AssignAppointment", ok.args[0])
}
