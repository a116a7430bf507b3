package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/bundlekeeper/domain/audit"
	"github.com/artpar/bundlekeeper/domain/bundle"
	"github.com/artpar/bundlekeeper/domain/renewal"
	"github.com/cenkalti/backoff/v4"
)

// errRejected marks a purchase the provider answered without success.
var errRejected = errors.New("purchase not confirmed by provider")

// renewalPolicy returns the retry schedule for one renewal sequence:
// renewalAttempts tries, sleeping renewalBackoff, then twice that, and so on.
func (s *BundleService) renewalPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.renewalBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = s.renewalBackoff << uint(s.renewalAttempts)
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.renewalAttempts-1)), ctx)
}

// renewWithRetry runs one renewal sequence and, on success, credits a
// bundle and persists the credited state. It returns the state to continue
// the cycle with. Failed purchases are logged and reported as not renewed;
// only store failures are returned as errors.
// Caller must hold s.mu.
func (s *BundleService) renewWithRetry(ctx context.Context, cfg bundle.Config, st bundle.State) (bundle.State, bool, error) {
	runID := s.ids.New()
	provider := s.providers(cfg)
	logger := s.logger.With().Str("renewal", runID).Logger()

	attempt := 0
	var last renewal.Outcome
	op := func() error {
		attempt++
		if provider == nil {
			last = renewal.NotConfigured
			s.metrics.RenewalAttempt(last.String())
			s.log(ctx, audit.LevelError, "Provider not configured - auto-renewal disabled. Set provider credentials")
			return backoff.Permanent(errors.New(last.String()))
		}

		res, err := provider.BuyBundle(ctx, cfg.BundleCode)
		last = renewal.Evaluate(res, err)
		s.metrics.RenewalAttempt(last.String())
		logger.Debug().Int("attempt", attempt).Str("outcome", last.String()).Msg("renewal attempt")

		switch last {
		case renewal.Succeeded:
			s.logf(ctx, audit.LevelInfo, "Bundle purchased via provider with code: %s", cfg.BundleCode)
			return nil
		case renewal.NotConfigured:
			s.log(ctx, audit.LevelError, "Provider not configured - auto-renewal disabled. Set provider credentials")
		case renewal.AuthFailed:
			s.logf(ctx, audit.LevelError, "Provider authentication failed: %v", err)
		case renewal.Rejected:
			s.logf(ctx, audit.LevelWarning, "Provider purchase returned unexpected result: %v", res.Raw)
			err = errRejected
		case renewal.Transient:
			s.logf(ctx, audit.LevelError, "Provider error: %v", err)
		default:
			s.logf(ctx, audit.LevelError, "Unexpected error during renewal: %v", err)
		}

		if !last.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		logger.Info().
			Err(err).
			Dur("backoff", next).
			Int("attempt", attempt).
			Int("max_attempts", s.renewalAttempts).
			Msg("retrying renewal")
	}

	err := backoff.RetryNotifyWithTimer(op, s.renewalPolicy(ctx), notify, s.clock.NewTimer())
	if err != nil {
		s.metrics.RenewalFinished(false)
		if last.Retryable() {
			s.log(ctx, audit.LevelError, "All renewal attempts failed - check provider credentials and network connectivity")
		} else {
			s.logf(ctx, audit.LevelError, "Renewal abandoned: %s", last)
		}
		return st, false, nil
	}

	credited := st.Credit(cfg.BundleSizeMB, s.clock.Now(), cfg.BundleValidity())
	if err := s.states.SaveState(ctx, credited); err != nil {
		s.metrics.RenewalFinished(false)
		return st, false, fmt.Errorf("save renewed state: %w", err)
	}
	s.publish(cfg, credited)
	s.metrics.RenewalFinished(true)
	s.logf(ctx, audit.LevelInfo, "Bundle renewed: +%g MB", cfg.BundleSizeMB)
	return credited, true, nil
}
