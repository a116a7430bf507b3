package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/artpar/bundlekeeper/domain/audit"
	"github.com/artpar/bundlekeeper/ports"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	// ErrTriggerThrottled is returned when manual checks arrive too fast.
	ErrTriggerThrottled = errors.New("check trigger throttled")

	// ErrSchedulerStopped is returned when triggering a stopped scheduler.
	ErrSchedulerStopped = errors.New("scheduler not running")
)

// minSleep keeps the loop from spinning when the next reset is due.
const minSleep = time.Second

// Scheduler drives BundleService.RunCheckCycle on an adaptive interval and
// keeps the local balance in step with the provider.
type Scheduler struct {
	svc     *BundleService
	clock   ports.Clock
	metrics ports.Metrics
	logger  zerolog.Logger

	resyncInterval       time.Duration
	stopTimeout          time.Duration
	housekeepingInterval time.Duration
	retention            Retention
	trigger              *rate.Limiter

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	wake    chan struct{}

	// owned by the single loop goroutine
	lastResync       time.Time
	lastHousekeeping time.Time
}

// SchedulerConfig contains configuration for Scheduler.
type SchedulerConfig struct {
	ResyncInterval       time.Duration // Provider balance resync (default: 300s)
	StopTimeout          time.Duration // Bound on Stop (default: 5s)
	TriggerMinInterval   time.Duration // Manual trigger throttle (default: 10s)
	HousekeepingInterval time.Duration // Retention pruning (default: 24h)
	Retention            Retention
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(svc *BundleService, clock ports.Clock, metrics ports.Metrics, logger zerolog.Logger, cfg SchedulerConfig) *Scheduler {
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = 300 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	if cfg.TriggerMinInterval <= 0 {
		cfg.TriggerMinInterval = 10 * time.Second
	}
	if cfg.HousekeepingInterval <= 0 {
		cfg.HousekeepingInterval = 24 * time.Hour
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}

	return &Scheduler{
		svc:                  svc,
		clock:                clock,
		metrics:              metrics,
		logger:               logger.With().Str("service", "scheduler").Logger(),
		resyncInterval:       cfg.ResyncInterval,
		stopTimeout:          cfg.StopTimeout,
		housekeepingInterval: cfg.HousekeepingInterval,
		retention:            cfg.Retention,
		trigger:              rate.NewLimiter(rate.Every(cfg.TriggerMinInterval), 1),
		wake:                 make(chan struct{}, 1),
	}
}

// Start launches the background loop. It is a no-op when already running.
// If a previous loop outlived Stop's timeout, Start waits for it to exit.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.running {
			return
		}
		prev := s.done
		if prev == nil || closed(prev) {
			break
		}
		// The loop takes mu during housekeeping, so wait unlocked.
		s.logger.Warn().Msg("waiting for previous scheduler loop to exit")
		s.mu.Unlock()
		<-prev
		s.mu.Lock()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(loopCtx, s.done)
	s.logger.Info().Msg("scheduler started")
}

// Stop signals the loop and waits for it to exit, at most the stop timeout.
// A cycle already in progress is allowed to finish. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		s.logger.Info().Msg("scheduler stopped")
	case <-time.After(s.stopTimeout):
		s.logger.Warn().Dur("timeout", s.stopTimeout).Msg("scheduler did not stop in time")
	}
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetRetention replaces the retention windows used by housekeeping.
func (s *Scheduler) SetRetention(r Retention) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retention = r
}

// Trigger wakes the loop for an immediate check cycle.
func (s *Scheduler) Trigger() error {
	if !s.Running() {
		return ErrSchedulerStopped
	}
	if !s.trigger.Allow() {
		return ErrTriggerThrottled
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	// Cycles are not interrupted by Stop.
	cycleCtx := context.WithoutCancel(ctx)

	timer := s.clock.NewTimer()
	defer timer.Stop()

	first := true
	for {
		if ctx.Err() != nil {
			return
		}

		s.maybeResync(cycleCtx, first)
		first = false

		sleep := s.runCycle(cycleCtx)
		s.maybeHousekeep(cycleCtx)

		timer.Start(sleep)
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
		case <-s.wake:
			timer.Stop()
			s.logger.Debug().Msg("check triggered")
		}
	}
}

// runCycle runs one check cycle and returns how long to sleep after it.
func (s *Scheduler) runCycle(ctx context.Context) time.Duration {
	var sleep time.Duration
	res, err := s.svc.RunCheckCycle(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("check cycle failed")
		sleep = time.Duration(s.svc.Config().MinCheckIntervalMinutes) * time.Minute
	} else {
		sleep = res.NextInterval()
	}

	if reset := s.svc.State().NextResetAt; !reset.IsZero() {
		if until := reset.Sub(s.clock.Now()); until < sleep {
			sleep = until
		}
	}
	if sleep < minSleep {
		sleep = minSleep
	}
	return sleep
}

// maybeResync replaces the local balance with the provider's on the first
// iteration, when the balance is exhausted, or every resync interval.
// Failures are logged and skipped.
func (s *Scheduler) maybeResync(ctx context.Context, first bool) {
	now := s.clock.Now()
	due := first ||
		s.svc.State().RemainingMB == 0 ||
		now.Sub(s.lastResync) >= s.resyncInterval
	if !due {
		return
	}
	s.lastResync = now

	remaining, err := s.svc.ProviderRemaining(ctx)
	if errors.Is(err, ports.ErrProviderNotConfigured) {
		s.logger.Debug().Msg("provider not configured, skipping resync")
		return
	}
	if err == nil {
		_, err = s.svc.OverrideRemaining(ctx, remaining)
	}
	s.metrics.Resync(err == nil)
	if err != nil {
		s.svc.logf(ctx, audit.LevelWarning, "Provider resync failed: %v", err)
	}
}

func (s *Scheduler) maybeHousekeep(ctx context.Context) {
	now := s.clock.Now()
	if !s.lastHousekeeping.IsZero() && now.Sub(s.lastHousekeeping) < s.housekeepingInterval {
		return
	}
	s.lastHousekeeping = now

	s.mu.Lock()
	retention := s.retention
	s.mu.Unlock()

	res, err := s.svc.Prune(ctx, retention)
	if err != nil {
		s.logger.Error().Err(err).Msg("housekeeping failed")
		return
	}
	s.logger.Debug().Int64("removed", res.Total()).Msg("housekeeping finished")
}
