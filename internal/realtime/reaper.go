package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/suPer8Hu/presence-hub/internal/rooms"
	"github.com/suPer8Hu/presence-hub/internal/typing"
)

// Reaper expires typing indicators whose sender went quiet and tells the recipients.
type Reaper struct {
	tracker  *typing.Tracker
	emitter  Emitter
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReaper(tr *typing.Tracker, em Emitter, interval, timeout time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		tracker:  tr,
		emitter:  em,
		interval: interval,
		timeout:  timeout,
		log:      logger,
		now:      time.Now,
	}
}

// Sweep runs one pass and returns the number of expired indicators.
func (r *Reaper) Sweep(now time.Time) int {
	expired := r.tracker.Sweep(now.UTC(), r.timeout)
	for _, p := range expired {
		r.emitter.Emit(rooms.PersonalRoom(p.Recipient), typingEvent(p.Sender, false))
	}
	if len(expired) > 0 {
		r.log.Debug("typing indicators expired", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps on every tick until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}

// Start runs the reaper in the background. Calling Start twice is a no-op.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		r.Run(ctx)
	}(r.done)
	r.log.Info("typing reaper started", "interval", r.interval, "timeout", r.timeout)
}

// Stop cancels the background loop and waits for it to exit.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.log.Info("typing reaper stopped")
}
