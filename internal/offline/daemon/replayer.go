package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mwsrestaurants/restaurant-sync/internal/offline/remote"
	"github.com/mwsrestaurants/restaurant-sync/internal/offline/schema"
)

var errUnknownKind = errors.New("unknown request kind")

// Queue is the retry queue as seen by the replayer. Entries are read in
// place and only removed once acknowledged.
type Queue interface {
	Pending(ctx context.Context) ([]schema.QueuedRequest, error)
	Ack(ctx context.Context, req schema.QueuedRequest) error
}

// Remote is the subset of the review server used for replay.
type Remote interface {
	PutFavorite(ctx context.Context, restaurantID int64, isFavorite bool) error
	PostReview(ctx context.Context, review schema.Review) (*schema.Review, error)
}

// ReviewStore caches server-confirmed reviews.
type ReviewStore interface {
	PutReview(ctx context.Context, r *schema.Review) (int64, error)
}

// Connectivity is told the outcome of every call made to the server, so
// replay traffic doubles as a reachability signal.
type Connectivity interface {
	Observe(err error)
}

// Events receives replay reports.
type Events interface {
	OnQueueDrained(report Report)
}

// Report summarizes one replay pass.
type Report struct {
	Trigger   string `json:"trigger"`
	Delivered int    `json:"delivered"`
	Dropped   int    `json:"dropped"`

	// Remaining counts entries still queued when the pass stopped early
	Remaining int `json:"remaining"`
}

// Empty reports whether the pass found nothing to replay.
func (r Report) Empty() bool {
	return r.Delivered == 0 && r.Remaining == 0 && r.Dropped == 0
}

// Config holds configuration for the replayer.
type Config struct {
	// DrainInterval is how often the queue is replayed
	DrainInterval time.Duration

	// Events receives a report after every non-empty pass (optional)
	Events Events

	// Connectivity is fed each server call's result (optional)
	Connectivity Connectivity

	// Logger for replay activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DrainInterval: 30 * time.Second,
		Logger:        log.New(os.Stderr, "[replay] ", log.LstdFlags),
	}
}

// Replayer drains the retry queue into the review server.
type Replayer struct {
	queue   Queue
	remote  Remote
	reviews ReviewStore
	config  *Config

	// One pass at a time
	passMu sync.Mutex

	trigger  chan string
	interval chan time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a replayer. A nil config uses DefaultConfig.
func New(queue Queue, remote Remote, reviews ReviewStore, config *Config) (*Replayer, error) {
	if queue == nil {
		return nil, fmt.Errorf("queue cannot be nil")
	}
	if remote == nil {
		return nil, fmt.Errorf("remote cannot be nil")
	}
	if reviews == nil {
		return nil, fmt.Errorf("reviews cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[replay] ", log.LstdFlags)
	}
	if config.DrainInterval <= 0 {
		config.DrainInterval = DefaultConfig().DrainInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Replayer{
		queue:    queue,
		remote:   remote,
		reviews:  reviews,
		config:   config,
		trigger:  make(chan string, 1),
		interval: make(chan time.Duration, 1),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start replays the queue once, then keeps replaying on the timer and on
// Notify. It blocks until ctx is cancelled or Stop is called.
func (r *Replayer) Start(ctx context.Context) error {
	r.config.Logger.Printf("Starting replayer (interval %s)", r.config.DrainInterval)

	if _, err := r.drain(r.ctx, "startup"); err != nil {
		r.config.Logger.Printf("Initial replay failed: %v", err)
	}

	r.wg.Add(1)
	go r.loop()

	select {
	case <-ctx.Done():
		r.config.Logger.Println("Shutdown signal received")
		return r.Stop()
	case <-r.ctx.Done():
		return nil
	}
}

// Stop halts background replay and waits for an in-flight pass to finish.
func (r *Replayer) Stop() error {
	r.config.Logger.Println("Stopping replayer")
	r.cancel()
	r.wg.Wait()
	r.config.Logger.Println("Replayer stopped")
	return nil
}

// Notify requests a pass without waiting for it. Safe to call from any
// goroutine; extra calls while a pass is pending are coalesced.
func (r *Replayer) Notify() {
	select {
	case r.trigger <- "reconnect":
	default:
	}
}

// SetInterval changes the timer period of a running replayer.
func (r *Replayer) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	// Keep only the latest value.
	select {
	case <-r.interval:
	default:
	}
	select {
	case r.interval <- d:
	default:
	}
}

// DrainNow runs one pass and returns its report.
func (r *Replayer) DrainNow(ctx context.Context) (Report, error) {
	return r.drain(ctx, "manual")
}

func (r *Replayer) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			r.runPass("timer")

		case trigger := <-r.trigger:
			r.runPass(trigger)

		case d := <-r.interval:
			r.config.Logger.Printf("Drain interval changed to %s", d)
			ticker.Reset(d)
		}
	}
}

func (r *Replayer) runPass(trigger string) {
	if _, err := r.drain(r.ctx, trigger); err != nil {
		r.config.Logger.Printf("Error replaying queue (%s): %v", trigger, err)
	}
}

// drain runs one replay pass. Each entry stays in the queue until the
// server has answered for it, so a crash mid-pass redelivers at most the
// entry that was in flight.
func (r *Replayer) drain(ctx context.Context, trigger string) (Report, error) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	report := Report{Trigger: trigger}

	reqs, err := r.queue.Pending(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to read queue: %w", err)
	}
	if len(reqs) == 0 {
		return report, nil
	}

	r.config.Logger.Printf("Replaying %d queued request(s) (%s)", len(reqs), trigger)

	for i, req := range reqs {
		err := r.replay(ctx, req)
		if err != nil && !errors.Is(err, errUnknownKind) {
			var serverErr *remote.ServerError
			if !errors.As(err, &serverErr) || !serverErr.Permanent() {
				// Server can't take it right now; this one and the rest stay queued in order.
				report.Remaining = len(reqs) - i
				r.config.Logger.Printf("Replay stopped at %s request %s: %v", req.Kind, req.ID, err)
				break
			}
		}

		if err != nil {
			r.config.Logger.Printf("WARNING: Dropping %s request %s rejected by server: %v", req.Kind, req.ID, err)
		}
		// The server has answered; the removal must land even if the pass is being cancelled.
		if ackErr := r.queue.Ack(context.WithoutCancel(ctx), req); ackErr != nil {
			report.Remaining = len(reqs) - i
			r.publish(report)
			return report, fmt.Errorf("failed to remove %s request %s after replay: %w", req.Kind, req.ID, ackErr)
		}
		if err != nil {
			report.Dropped++
		} else {
			report.Delivered++
		}
	}

	r.config.Logger.Printf("Replay complete: delivered=%d dropped=%d remaining=%d",
		report.Delivered, report.Dropped, report.Remaining)

	r.publish(report)
	return report, nil
}

func (r *Replayer) publish(report Report) {
	if r.config.Events != nil {
		r.config.Events.OnQueueDrained(report)
	}
}

func (r *Replayer) observe(err error) {
	if r.config.Connectivity != nil {
		r.config.Connectivity.Observe(err)
	}
}

// replay sends one request. Only errors from the server are returned; a
// failure to cache a confirmed review is logged.
func (r *Replayer) replay(ctx context.Context, req schema.QueuedRequest) error {
	switch req.Kind {
	case schema.KindFavorite:
		err := r.remote.PutFavorite(ctx, req.Favorite.RestaurantID, req.Favorite.IsFavorite)
		r.observe(err)
		return err

	case schema.KindReview:
		localKey := req.Review.Review.LocalKey
		canonical, err := r.remote.PostReview(ctx, req.Review.Review)
		r.observe(err)
		if err != nil {
			return err
		}
		if localKey == 0 {
			return nil
		}
		canonical.LocalKey = localKey
		if _, err := r.reviews.PutReview(ctx, canonical); err != nil {
			r.config.Logger.Printf("WARNING: Failed to cache confirmed review %d: %v", localKey, err)
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", errUnknownKind, req.Kind)
	}
}
