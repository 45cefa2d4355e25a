package logging

import (
	"context"

	"github.com/kilianp07/homefix/core/events"
	"github.com/kilianp07/homefix/core/logger"
	"github.com/kilianp07/homefix/internal/eventbus"
)

// StartRecorder appends every dispatch event published on bus to store.
// It stops when ctx is canceled or the bus closes; the returned channel is
// closed then.
func StartRecorder(ctx context.Context, bus eventbus.Bus[events.Event], store LogStore, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || store == nil {
		close(done)
		return done
	}
	log = logger.OrNop(log)
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				rec, ok := FromEvent(ev)
				if !ok {
					continue
				}
				if err := store.Append(context.WithoutCancel(ctx), rec); err != nil {
					log.Warnf("append %s for %s: %v", rec.Kind, rec.BookingID, err)
				}
			}
		}
	}()
	return done
}
