package provider

import (
	"sync"

	"github.com/artpar/bundlekeeper/domain/bundle"
	"github.com/artpar/bundlekeeper/ports"
	"github.com/rs/zerolog"
)

// Factory builds provider clients from the runtime config. Credentials in
// the runtime config take precedence over the base (file/env) credentials.
// The last client is reused while its settings are unchanged, so the
// subscription lookup is cached across calls.
type Factory struct {
	logger zerolog.Logger

	mu   sync.Mutex
	base Config
	last *Client
}

// NewFactory creates a factory over base settings.
func NewFactory(base Config, logger zerolog.Logger) *Factory {
	return &Factory{base: base, logger: logger}
}

// SetBase replaces the base settings (after a config reload).
func (f *Factory) SetBase(base Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.base = base
	f.last = nil
}

// Build returns a provider for cfg.
func (f *Factory) Build(cfg bundle.Config) ports.Provider {
	f.mu.Lock()
	defer f.mu.Unlock()

	merged := f.base
	if cfg.ProviderUserID != "" {
		merged.UserID = cfg.ProviderUserID
	}
	if cfg.ProviderToken != "" {
		merged.Token = cfg.ProviderToken
	}

	if f.last != nil && f.last.cfg == merged.withDefaults() {
		return f.last
	}
	f.last = NewClient(merged, f.logger)
	return f.last
}

// Func adapts the factory to ports.ProviderFactory.
func (f *Factory) Func() ports.ProviderFactory {
	return f.Build
}
