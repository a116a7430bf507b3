// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/bundlekeeper/domain/audit"
	"github.com/artpar/bundlekeeper/domain/bundle"
	"github.com/artpar/bundlekeeper/domain/usage"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time

	// NewTimer returns a stopped timer driven by this clock.
	NewTimer() Timer
}

// Timer is a restartable one-shot timer.
// The method set matches backoff.Timer so retry sleeps run on the Clock.
type Timer interface {
	// Start arms the timer to fire once after d.
	Start(d time.Duration)

	// Stop disarms the timer. It is safe to call on a stopped timer.
	Stop()

	// C delivers the fire time.
	C() <-chan time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Random is a source of random bytes.
type Random interface {
	Bytes(n int) ([]byte, error)
}

// Hasher provides password/key hashing.
type Hasher interface {
	// Hash generates a hash from a plaintext value.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// ErrNotFound is returned when a stored document does not exist.
var ErrNotFound = errors.New("not found")

// StateStore persists the Config and BundleState documents.
// Writes replace the whole document; the last writer wins.
type StateStore interface {
	// Seed stores cfg and st for each document that does not exist yet.
	// Existing documents are left unchanged.
	Seed(ctx context.Context, cfg bundle.Config, st bundle.State) error

	// LoadConfig returns the stored config or ErrNotFound.
	LoadConfig(ctx context.Context) (bundle.Config, error)

	// SaveConfig replaces the stored config.
	SaveConfig(ctx context.Context, cfg bundle.Config) error

	// LoadState returns the stored state or ErrNotFound.
	LoadState(ctx context.Context) (bundle.State, error)

	// SaveState replaces the stored state.
	SaveState(ctx context.Context, st bundle.State) error
}

// UsageStore persists usage events (append-only).
type UsageStore interface {
	// Record appends an event and returns it with its assigned ID.
	Record(ctx context.Context, e usage.Event) (usage.Event, error)

	// Since returns events at or after since, newest first.
	Since(ctx context.Context, since time.Time) ([]usage.Event, error)

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]usage.Event, error)

	// Delete removes a single event by ID. Missing IDs are not an error.
	Delete(ctx context.Context, id int64) error

	// Prune deletes events older than before.
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// AuditLog persists audit entries (append-only).
type AuditLog interface {
	// Append stores an entry.
	Append(ctx context.Context, e audit.Entry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)

	// Prune deletes entries older than before.
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// IdempotencyStore is the ledger of executed manual operations.
type IdempotencyStore interface {
	// Register inserts key if absent. Reports whether it was inserted.
	Register(ctx context.Context, key, note string, at time.Time) (bool, error)

	// Exists reports whether key is registered.
	Exists(ctx context.Context, key string) (bool, error)

	// Prune deletes records created before before.
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// -----------------------------------------------------------------------------
// Replenishment Provider Ports
// -----------------------------------------------------------------------------

var (
	// ErrProviderNotConfigured means credentials are missing.
	ErrProviderNotConfigured = errors.New("provider not configured")

	// ErrProviderAuth means the provider rejected the credentials.
	ErrProviderAuth = errors.New("provider authentication failed")

	// ErrProvider is a transient provider or transport failure.
	ErrProvider = errors.New("provider error")
)

// Subscription is a subscription linked to the provider account.
type Subscription struct {
	URL         string `json:"subscription_url"`
	PhoneNumber string `json:"phone_number,omitempty"`
	LinkID      string `json:"link_id,omitempty"`
}

// RoamingBundle is one allowance bucket reported by the provider.
type RoamingBundle struct {
	BuyingCode     string  `json:"buying_code"`
	ZoneColor      string  `json:"zone_color"`
	RemainingBytes float64 `json:"remaining_bytes"`
	RemainingMB    float64 `json:"remaining_mb"`
	Description    string  `json:"description,omitempty"`
}

// PurchaseResult is the outcome of a purchase request the provider accepted
// at the transport level.
type PurchaseResult struct {
	Success    bool           `json:"success"`
	BuyingCode string         `json:"buying_code"`
	StatusCode int            `json:"status_code,omitempty"`
	Raw        map[string]any `json:"raw,omitempty"`
}

// Provider is the third-party purchase and balance API.
type Provider interface {
	// Configured reports whether credentials are present.
	Configured() bool

	// Subscriptions lists the linked subscriptions.
	Subscriptions(ctx context.Context) ([]Subscription, error)

	// Bundles lists the roaming bundles of the primary subscription.
	Bundles(ctx context.Context) ([]RoamingBundle, error)

	// RemainingBalance returns the remaining allowance in MB.
	RemainingBalance(ctx context.Context) (float64, error)

	// BuyBundle purchases a bundle by buying code.
	BuyBundle(ctx context.Context, code string) (PurchaseResult, error)

	// KnownBundleCodes lists buying codes known to work.
	KnownBundleCodes() []string
}

// ProviderFactory builds a provider for the credentials in cfg.
type ProviderFactory func(cfg bundle.Config) Provider

// -----------------------------------------------------------------------------
// Observability Ports
// -----------------------------------------------------------------------------

// Metrics records operational measurements of the monitor.
type Metrics interface {
	// ObserveState publishes the current allowance gauges.
	ObserveState(st bundle.State)

	// ObserveCycle records a completed check cycle.
	ObserveCycle(rate, etaMinutes float64, etaDefined bool, nextIntervalMinutes float64)

	// RenewalAttempt counts one purchase attempt by outcome.
	RenewalAttempt(outcome string)

	// RenewalFinished counts a renewal sequence by final result.
	RenewalFinished(succeeded bool)

	// Resync counts a balance resync attempt.
	Resync(ok bool)

	// UsageRecorded adds consumed MB.
	UsageRecorded(mb float64)

	// ManualTopUp counts a manual credit request.
	ManualTopUp(replayed bool)
}
