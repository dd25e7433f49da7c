package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// execer is the slice of pgxpool.Pool the sink needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgSink stores notifications in the notifications table, one row per recipient.
type PgSink struct {
	db execer
}

func NewPgSink(db execer) *PgSink {
	return &PgSink{db: db}
}

func (s *PgSink) Notify(ctx context.Context, ev Event) error {
	if ev.Broadcast() {
		_, err := s.db.Exec(ctx, `
			INSERT INTO notifications (kind, sender_id, recipient_role, recipient_user_id, message, created_at)
			SELECT $1, $2, $3, u.id, $4, now()
			FROM users u
			WHERE u.active AND lower(u.role) = ANY($5)
		`, ev.Kind, nullableID(ev), ev.RecipientRole, ev.Message, ev.RecipientRole.Aliases())
		if err != nil {
			return fmt.Errorf("broadcast notification: %w", err)
		}
		return nil
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO notifications (kind, sender_id, recipient_role, recipient_user_id, message, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, ev.Kind, nullableID(ev), ev.RecipientRole, ev.RecipientUserID, ev.Message)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func nullableID(ev Event) any {
	if ev.SenderID == uuid.Nil {
		return nil
	}
	return ev.SenderID
}
