// Package auditlog records who did what to an appointment.
//
// Writes are best effort: callers log a failed write and carry on.
package auditlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type Sink interface {
	Log(ctx context.Context, actionType string, severity Severity, description string) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgSink appends to the logs table.
type PgSink struct {
	db execer
}

func NewPgSink(db execer) *PgSink {
	return &PgSink{db: db}
}

func (s *PgSink) Log(ctx context.Context, actionType string, severity Severity, description string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO logs (action_type, severity, description, created_at)
		VALUES ($1, $2, $3, now())
	`, actionType, severity, description)
	if err != nil {
		return fmt.Errorf("insert log %s: %w", actionType, err)
	}
	return nil
}

// ZapSink mirrors audit entries into the process log.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger.Named("audit")}
}

func (s *ZapSink) Log(_ context.Context, actionType string, severity Severity, description string) error {
	fields := []zap.Field{zap.String("action_type", actionType), zap.String("description", description)}
	switch severity {
	case SeverityError:
		s.logger.Error("audit", fields...)
	case SeverityWarning:
		s.logger.Warn("audit", fields...)
	default:
		s.logger.Info("audit", fields...)
	}
	return nil
}

// Tee writes to every sink and joins their errors.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

type tee []Sink

func (t tee) Log(ctx context.Context, actionType string, severity Severity, description string) error {
	var errs []error
	for _, s := range t {
		if err := s.Log(ctx, actionType, severity, description); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
