package daemon

import (
	"context"
	"log"
	"os"
	"sync"
	"time"
)

// Source is refreshed from the server on every tick.
type Source interface {
	Refresh(ctx context.Context) error
}

// Refresher pulls server data into the cache on a timer.
type Refresher struct {
	source   Source
	period   time.Duration
	logger   *log.Logger
	interval chan time.Duration
	wg       sync.WaitGroup
}

// NewRefresher creates a refresher that calls source.Refresh every period.
// A nil logger writes to stderr.
func NewRefresher(source Source, period time.Duration, logger *log.Logger) *Refresher {
	if logger == nil {
		logger = log.New(os.Stderr, "[refresh] ", log.LstdFlags)
	}
	if period <= 0 {
		period = 5 * time.Minute
	}
	return &Refresher{
		source:   source,
		period:   period,
		logger:   logger,
		interval: make(chan time.Duration, 1),
	}
}

// Start refreshes once in the background, then on every tick until ctx is
// cancelled. Wait blocks until the loop has exited.
func (r *Refresher) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
}

func (r *Refresher) run(ctx context.Context) {
	defer r.wg.Done()

	r.refresh(ctx)

	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		case d := <-r.interval:
			r.logger.Printf("Refresh interval changed to %s", d)
			ticker.Reset(d)
		}
	}
}

// SetInterval changes the period of a running refresher.
func (r *Refresher) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-r.interval:
	default:
	}
	select {
	case r.interval <- d:
	default:
	}
}

// Wait blocks until the loop started by Start has exited.
func (r *Refresher) Wait() {
	r.wg.Wait()
}

func (r *Refresher) refresh(ctx context.Context) {
	start := time.Now()
	if err := r.source.Refresh(ctx); err != nil {
		if ctx.Err() == nil {
			r.logger.Printf("Refresh failed: %v", err)
		}
		return
	}
	r.logger.Printf("Refresh complete in %s", time.Since(start).Round(time.Millisecond))
}
