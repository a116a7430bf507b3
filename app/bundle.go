// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artpar/bundlekeeper/domain/audit"
	"github.com/artpar/bundlekeeper/domain/bundle"
	"github.com/artpar/bundlekeeper/domain/estimator"
	"github.com/artpar/bundlekeeper/domain/usage"
	"github.com/artpar/bundlekeeper/ports"
	"github.com/rs/zerolog"
)

// statusLogLimit is how many audit entries Status attaches.
const statusLogLimit = 20

// BundleService owns the runtime Config and BundleState.
//
// All mutations run under mu and follow write-then-mutate: the next state
// is computed on a copy, persisted, and only then published. Reads use the
// published snapshot and never take mu.
type BundleService struct {
	states      ports.StateStore
	usage       ports.UsageStore
	audit       ports.AuditLog
	idempotency ports.IdempotencyStore
	providers   ports.ProviderFactory
	clock       ports.Clock
	ids         ports.IDGenerator
	metrics     ports.Metrics
	logger      zerolog.Logger

	loc             *time.Location
	renewalAttempts int
	renewalBackoff  time.Duration
	onLogLevel      func(string)

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// snapshot is a point-in-time view published after each committed mutation.
type snapshot struct {
	cfg bundle.Config
	st  bundle.State
}

// BundleServiceDeps are the collaborators of BundleService.
type BundleServiceDeps struct {
	States      ports.StateStore
	Usage       ports.UsageStore
	Audit       ports.AuditLog
	Idempotency ports.IdempotencyStore
	Providers   ports.ProviderFactory
	Clock       ports.Clock
	IDs         ports.IDGenerator
	Metrics     ports.Metrics // optional
	Logger      zerolog.Logger
}

// BundleServiceConfig contains configuration for BundleService.
type BundleServiceConfig struct {
	Location        *time.Location // Daily reset timezone (default: local)
	Seed            bundle.Config  // Stored on first start only (default: bundle.Defaults)
	RenewalAttempts int            // Purchase attempts per renewal (default: 3)
	RenewalBackoff  time.Duration  // First retry delay, doubled per retry (default: 1s)
	OnLogLevel      func(level string)
}

// NewBundleService loads (seeding if absent) the stored config and state and
// makes sure a daily reset is scheduled.
func NewBundleService(ctx context.Context, deps BundleServiceDeps, cfg BundleServiceConfig) (*BundleService, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Seed == (bundle.Config{}) {
		cfg.Seed = bundle.Defaults()
	}
	if err := cfg.Seed.Validate(); err != nil {
		return nil, fmt.Errorf("seed config: %w", err)
	}
	if cfg.RenewalAttempts <= 0 {
		cfg.RenewalAttempts = 3
	}
	if cfg.RenewalBackoff <= 0 {
		cfg.RenewalBackoff = time.Second
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}

	s := &BundleService{
		states:          deps.States,
		usage:           deps.Usage,
		audit:           deps.Audit,
		idempotency:     deps.Idempotency,
		providers:       deps.Providers,
		clock:           deps.Clock,
		ids:             deps.IDs,
		metrics:         deps.Metrics,
		logger:          deps.Logger.With().Str("service", "bundle").Logger(),
		loc:             cfg.Location,
		renewalAttempts: cfg.RenewalAttempts,
		renewalBackoff:  cfg.RenewalBackoff,
		onLogLevel:      cfg.OnLogLevel,
	}

	if err := s.states.Seed(ctx, cfg.Seed, bundle.State{}); err != nil {
		return nil, fmt.Errorf("seed store: %w", err)
	}
	stored, err := s.states.LoadConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	st, err := s.states.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	if next, changed := st.EnsureResetScheduled(s.clock.Now(), s.loc); changed {
		if err := s.states.SaveState(ctx, next); err != nil {
			return nil, fmt.Errorf("schedule daily reset: %w", err)
		}
		st = next
	}

	s.publish(stored, st)
	if s.onLogLevel != nil && stored.LogLevel != "" {
		s.onLogLevel(stored.LogLevel)
	}
	s.log(ctx, audit.LevelInfo, "Service initialized")
	return s, nil
}

// Config returns the current config.
func (s *BundleService) Config() bundle.Config {
	return s.snap.Load().cfg
}

// State returns the current state.
func (s *BundleService) State() bundle.State {
	return s.snap.Load().st
}

func (s *BundleService) publish(cfg bundle.Config, st bundle.State) {
	s.snap.Store(&snapshot{cfg: cfg, st: st})
	s.metrics.ObserveState(st)
}

// log writes an audit entry and the matching process log line.
// Audit write failures are logged but never fail the caller.
func (s *BundleService) log(ctx context.Context, level audit.Level, msg string) {
	var ev *zerolog.Event
	switch level {
	case audit.LevelDebug:
		ev = s.logger.Debug()
	case audit.LevelWarning:
		ev = s.logger.Warn()
	case audit.LevelError:
		ev = s.logger.Error()
	default:
		ev = s.logger.Info()
	}
	ev.Msg(msg)

	entry := audit.Entry{Timestamp: s.clock.Now(), Level: level, Message: msg}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Msg("failed to append audit entry")
	}
}

func (s *BundleService) logf(ctx context.Context, level audit.Level, format string, args ...any) {
	s.log(ctx, level, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------
// Manual operations
// -----------------------------------------------------------------------------

// UpdateConfig merges recognized keys from patch, persists and publishes the
// result. Unknown keys are ignored; invalid values reject the whole patch.
func (s *BundleService) UpdateConfig(ctx context.Context, patch map[string]any) (bundle.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	next, applied, err := cur.cfg.ApplyPatch(patch)
	if err != nil {
		s.logf(ctx, audit.LevelWarning, "Configuration update rejected: %v", err)
		return cur.cfg, err
	}

	if err := s.states.SaveConfig(ctx, next); err != nil {
		return cur.cfg, fmt.Errorf("save config: %w", err)
	}
	s.publish(next, cur.st)

	if s.onLogLevel != nil && next.LogLevel != cur.cfg.LogLevel {
		s.onLogLevel(next.LogLevel)
	}
	if len(applied) == 0 {
		s.log(ctx, audit.LevelInfo, "Configuration updated")
	} else {
		s.logf(ctx, audit.LevelInfo, "Configuration updated: %s", strings.Join(applied, ", "))
	}
	return next, nil
}

// SimulateUsage records consumed allowance observed at at (now when zero).
// The daily reset is applied first.
func (s *BundleService) SimulateUsage(ctx context.Context, amountMB float64, at time.Time) (bundle.State, error) {
	if math.IsNaN(amountMB) || math.IsInf(amountMB, 0) || amountMB < 0 {
		return bundle.State{}, fmt.Errorf("%w: amount_mb must be a non-negative number", bundle.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if at.IsZero() {
		at = now
	}
	cur := s.snap.Load()

	st, reset := cur.st.ApplyDailyReset(now, s.loc)
	st = st.RecordUsage(amountMB)

	ev, err := s.usage.Record(ctx, usage.NewEvent(at, amountMB))
	if err != nil {
		return cur.st, fmt.Errorf("record usage: %w", err)
	}
	if err := s.states.SaveState(ctx, st); err != nil {
		// The event must not feed the rate estimate without the state change.
		if derr := s.usage.Delete(ctx, ev.ID); derr != nil {
			s.logger.Error().Err(derr).Int64("event", ev.ID).Msg("failed to roll back usage event")
		}
		return cur.st, fmt.Errorf("save state: %w", err)
	}
	s.publish(cur.cfg, st)
	s.metrics.UsageRecorded(amountMB)

	if reset {
		s.log(ctx, audit.LevelInfo, "Daily usage reset")
	}
	s.logf(ctx, audit.LevelInfo, "Usage recorded: %g MB", amountMB)
	return st, nil
}

// AddResult is the outcome of ManualAddBundle.
type AddResult struct {
	State    bundle.State
	Key      string
	Replayed bool // key was already registered; nothing credited
}

// ManualAddBundle credits allowance once per idempotency key. A nil amount
// credits the configured bundle size; an empty key is derived from the
// current time and amount. The key is registered before the credit.
func (s *BundleService) ManualAddBundle(ctx context.Context, amountMB *float64, key string) (AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	amount := cur.cfg.BundleSizeMB
	if amountMB != nil {
		amount = *amountMB
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return AddResult{State: cur.st}, fmt.Errorf("%w: amount_mb must be a non-negative number", bundle.ErrValidation)
	}

	now := s.clock.Now()
	if key == "" {
		key = fmt.Sprintf("manual-%d-%g", now.Unix(), amount)
	}

	inserted, err := s.idempotency.Register(ctx, key, "manual_add", now)
	if err != nil {
		return AddResult{State: cur.st, Key: key}, fmt.Errorf("register idempotency key: %w", err)
	}
	if !inserted {
		s.metrics.ManualTopUp(true)
		s.logf(ctx, audit.LevelInfo, "Idempotent add ignored for key %s", key)
		return AddResult{State: cur.st, Key: key, Replayed: true}, nil
	}

	st := cur.st.Credit(amount, now, cur.cfg.BundleValidity())
	if err := s.states.SaveState(ctx, st); err != nil {
		return AddResult{State: cur.st, Key: key}, fmt.Errorf("save state: %w", err)
	}
	s.publish(cur.cfg, st)
	s.metrics.ManualTopUp(false)
	s.logf(ctx, audit.LevelInfo, "Bundle added manually: %g MB", amount)
	return AddResult{State: st, Key: key}, nil
}

// OverrideRemaining replaces remaining allowance with a provider-reported
// value. This is the resync path; it bypasses usage accounting.
func (s *BundleService) OverrideRemaining(ctx context.Context, mb float64) (bundle.State, error) {
	if math.IsNaN(mb) || math.IsInf(mb, 0) {
		return bundle.State{}, fmt.Errorf("%w: remaining must be a finite number", bundle.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	st := cur.st.WithRemaining(mb)
	if err := s.states.SaveState(ctx, st); err != nil {
		return cur.st, fmt.Errorf("save state: %w", err)
	}
	s.publish(cur.cfg, st)
	s.logf(ctx, audit.LevelInfo, "Remaining balance resynced from provider: %g MB", st.RemainingMB)
	return st, nil
}

// -----------------------------------------------------------------------------
// Check cycle
// -----------------------------------------------------------------------------

// CycleResult is what the scheduler needs from a check cycle.
type CycleResult struct {
	RateMBPerMinute     float64
	ETAMinutes          float64
	ETADefined          bool
	NextIntervalMinutes float64
	Renewed             bool
}

// NextInterval returns the next check interval as a duration.
func (r CycleResult) NextInterval() time.Duration {
	return time.Duration(r.NextIntervalMinutes * float64(time.Minute))
}

// RunCheckCycle is the scheduled heartbeat: daily reset, rate estimate,
// renewal when eligible, adaptive interval, persist. A failed renewal is
// not a cycle failure; store failures are.
func (s *BundleService) RunCheckCycle(ctx context.Context) (CycleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	cfg := cur.cfg
	now := s.clock.Now()

	st, reset := cur.st.ApplyDailyReset(now, s.loc)
	if reset {
		if err := s.states.SaveState(ctx, st); err != nil {
			return CycleResult{}, fmt.Errorf("save state: %w", err)
		}
		s.publish(cfg, st)
		s.log(ctx, audit.LevelInfo, "Daily usage reset")
	}

	rate, err := s.rate(ctx, cfg, now)
	if err != nil {
		return CycleResult{}, err
	}

	// The reported ETA is taken before any renewal; the interval follows
	// the balance the cycle ends with.
	eta, etaOK := bundle.TimeToDepletion(st.RemainingMB, rate)

	var renewed bool
	if bundle.ShouldAutoRenew(cfg, st.RemainingMB, rate) {
		st, renewed, err = s.renewWithRetry(ctx, cfg, st)
		if err != nil {
			return CycleResult{}, err
		}
	}

	interval := bundle.NextCheckMinutes(cfg, st.RemainingMB, rate)
	st = st.StampCheck(s.clock.Now(), interval, eta, etaOK)

	if err := s.states.SaveState(ctx, st); err != nil {
		return CycleResult{}, fmt.Errorf("save state: %w", err)
	}
	s.publish(cfg, st)
	s.metrics.ObserveCycle(rate, eta, etaOK, interval)
	s.logf(ctx, audit.LevelDebug, "Check completed. Rate=%.3f MB/min interval=%g minutes", rate, interval)

	return CycleResult{
		RateMBPerMinute:     rate,
		ETAMinutes:          eta,
		ETADefined:          etaOK,
		NextIntervalMinutes: interval,
		Renewed:             renewed,
	}, nil
}

func (s *BundleService) rate(ctx context.Context, cfg bundle.Config, now time.Time) (float64, error) {
	events, err := s.usage.Since(ctx, now.Add(-cfg.EstimatorWindow()))
	if err != nil {
		return 0, fmt.Errorf("load usage: %w", err)
	}
	est := estimator.New(cfg.EstimatorWindowMinutes, cfg.EstimatorMaxEvents)
	return est.Rate(events, now), nil
}

// -----------------------------------------------------------------------------
// Read-only projections
// -----------------------------------------------------------------------------

// Status is the point-in-time view returned to operators.
type Status struct {
	Config       bundle.Config        `json:"config"`
	State        bundle.StateDocument `json:"state"`
	RateMBPerMin float64              `json:"consumption_rate_mb_per_min"`
	ETAMinutes   *float64             `json:"estimated_time_to_depletion_minutes"`
	Logs         []audit.Record       `json:"logs"`
}

// Status recomputes rate and ETA from the latest snapshot and attaches the
// most recent audit entries. The provider token is redacted.
func (s *BundleService) Status(ctx context.Context) (Status, error) {
	cur := s.snap.Load()
	now := s.clock.Now()

	rate, err := s.rate(ctx, cur.cfg, now)
	if err != nil {
		return Status{}, err
	}
	entries, err := s.audit.Recent(ctx, statusLogLimit)
	if err != nil {
		return Status{}, fmt.Errorf("load logs: %w", err)
	}

	status := Status{
		Config:       cur.cfg.Redacted(),
		State:        cur.st.Document(),
		RateMBPerMin: rate,
		Logs:         audit.ToRecords(entries),
	}
	if eta, ok := bundle.TimeToDepletion(cur.st.RemainingMB, rate); ok {
		status.ETAMinutes = &eta
	}
	return status, nil
}

// Logs returns up to limit audit entries, newest first.
func (s *BundleService) Logs(ctx context.Context, limit int) ([]audit.Entry, error) {
	entries, err := s.audit.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load logs: %w", err)
	}
	return entries, nil
}

// RecentUsage returns up to limit usage events, newest first.
func (s *BundleService) RecentUsage(ctx context.Context, limit int) ([]usage.Event, error) {
	events, err := s.usage.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load usage: %w", err)
	}
	return events, nil
}

// -----------------------------------------------------------------------------
// Housekeeping
// -----------------------------------------------------------------------------

// Retention holds per-table time-to-live values. Zero keeps records forever.
type Retention struct {
	Idempotency time.Duration
	UsageEvents time.Duration
	Logs        time.Duration
}

// PruneResult counts removed records.
type PruneResult struct {
	Idempotency int64
	UsageEvents int64
	Logs        int64
}

// Total returns the number of removed records.
func (r PruneResult) Total() int64 {
	return r.Idempotency + r.UsageEvents + r.Logs
}

// Prune removes records older than their retention. Usage events are kept
// for at least the estimator window.
func (s *BundleService) Prune(ctx context.Context, r Retention) (PruneResult, error) {
	now := s.clock.Now()
	cfg := s.Config()

	var (
		res PruneResult
		err error
	)
	if r.Idempotency > 0 {
		if res.Idempotency, err = s.idempotency.Prune(ctx, now.Add(-r.Idempotency)); err != nil {
			return res, fmt.Errorf("prune idempotency: %w", err)
		}
	}
	if r.UsageEvents > 0 {
		ttl := r.UsageEvents
		if w := cfg.EstimatorWindow(); ttl < w {
			ttl = w
		}
		if res.UsageEvents, err = s.usage.Prune(ctx, now.Add(-ttl)); err != nil {
			return res, fmt.Errorf("prune usage: %w", err)
		}
	}
	if r.Logs > 0 {
		if res.Logs, err = s.audit.Prune(ctx, now.Add(-r.Logs)); err != nil {
			return res, fmt.Errorf("prune logs: %w", err)
		}
	}

	if res.Total() > 0 {
		s.logf(ctx, audit.LevelInfo, "Housekeeping removed %d idempotency keys, %d usage events, %d log entries",
			res.Idempotency, res.UsageEvents, res.Logs)
	}
	return res, nil
}

// -----------------------------------------------------------------------------
// Provider passthroughs
// -----------------------------------------------------------------------------

// Provider returns a provider client for the current config.
func (s *BundleService) Provider() ports.Provider {
	return s.providers(s.Config())
}

func (s *BundleService) configuredProvider() (ports.Provider, error) {
	p := s.Provider()
	if p == nil || !p.Configured() {
		return nil, ports.ErrProviderNotConfigured
	}
	return p, nil
}

// ProviderSubscriptions lists the provider subscriptions.
func (s *BundleService) ProviderSubscriptions(ctx context.Context) ([]ports.Subscription, error) {
	p, err := s.configuredProvider()
	if err != nil {
		return nil, err
	}
	return p.Subscriptions(ctx)
}

// ProviderBundles lists provider bundles and the zone total.
func (s *BundleService) ProviderBundles(ctx context.Context) ([]ports.RoamingBundle, float64, error) {
	p, err := s.configuredProvider()
	if err != nil {
		return nil, 0, err
	}
	bundles, err := p.Bundles(ctx)
	if err != nil {
		return nil, 0, err
	}
	total, err := p.RemainingBalance(ctx)
	if err != nil {
		return nil, 0, err
	}
	return bundles, total, nil
}

// ProviderRemaining returns the provider-reported remaining allowance.
func (s *BundleService) ProviderRemaining(ctx context.Context) (float64, error) {
	p, err := s.configuredProvider()
	if err != nil {
		return 0, err
	}
	return p.RemainingBalance(ctx)
}

// ProviderBuy purchases a bundle directly. An empty code uses the
// configured bundle code. Local state is not credited; the next resync
// picks the purchase up.
func (s *BundleService) ProviderBuy(ctx context.Context, code string) (ports.PurchaseResult, error) {
	p, err := s.configuredProvider()
	if err != nil {
		return ports.PurchaseResult{}, err
	}
	if code == "" {
		code = s.Config().BundleCode
	}
	res, err := p.BuyBundle(ctx, code)
	if err != nil {
		return res, err
	}
	if res.Success {
		s.logf(ctx, audit.LevelInfo, "Bundle purchased via provider API with code: %s", code)
	}
	return res, nil
}

// BundleCodes returns the known buying codes and the configured one.
func (s *BundleService) BundleCodes() (known []string, configured string) {
	cfg := s.Config()
	if p := s.providers(cfg); p != nil {
		known = p.KnownBundleCodes()
	}
	return known, cfg.BundleCode
}

// IsValidation reports whether err is a rejected manual input.
func IsValidation(err error) bool {
	return errors.Is(err, bundle.ErrValidation)
}

type nopMetrics struct{}

func (nopMetrics) ObserveState(bundle.State) {}
func (nopMetrics) ObserveCycle(float64, float64, bool, float64) {}
func (nopMetrics) RenewalAttempt(string) {}
func (nopMetrics) RenewalFinished(bool) {}
func (nopMetrics) Resync(bool) {}
func (nopMetrics) UsageRecorded(float64) {}
func (nopMetrics) ManualTopUp(bool) {}
