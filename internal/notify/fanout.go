package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Fanout delivers events to sink concurrently. Recipients are independent, so
// one failed delivery never stops the others; all failures are joined.
func Fanout(ctx context.Context, sink Sink, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, ev := range events {
		g.Go(func() error {
			if err := sink.Notify(gctx, ev); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("notify %s %s: %w", ev.Kind, recipientLabel(ev), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func recipientLabel(ev Event) string {
	if ev.Broadcast() {
		return "all " + string(ev.RecipientRole)
	}
	return string(ev.RecipientRole) + " " + ev.RecipientUserID.String()
}
