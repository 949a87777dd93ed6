package poller

import (
	"context"
	"fmt"
)

// Watch polls target until it reaches a terminal outcome or ctx ends.
// cfg.Observer, when set, still sees every event. A nil cfg.Scheduler
// means real timers. The returned error is nil only for a completed job,
// and only once its results were fetched when the source serves them.
func Watch(ctx context.Context, cfg Config, target Target) (Event, error) {
	if cfg.Scheduler == nil {
		cfg.Scheduler = TimerScheduler{}
	}
	done := make(chan Event, 1)
	forward := cfg.Observer
	cfg.Observer = ObserverFunc(func(ev Event) {
		if forward != nil {
			forward.Handle(ev)
		}
		if ev.Kind.Terminal() {
			select {
			case done <- ev:
			default:
			}
		}
	})

	p, err := New(cfg)
	if err != nil {
		return Event{}, err
	}
	if err := p.Poll(ctx, target); err != nil {
		return Event{}, err
	}

	select {
	case <-ctx.Done():
		p.Reset()
		return Event{}, fmt.Errorf("watch job %s: %w", target.JobID, ctx.Err())
	case ev := <-done:
		return ev, ev.Err
	}
}
