// Package renewal classifies renewal attempt outcomes.
// The retry loop branches on the Outcome tag instead of on raw errors.
package renewal

import (
	"errors"

	"github.com/artpar/bundlekeeper/ports"
)

// Outcome is the tagged result of one purchase attempt.
type Outcome int

const (
	Succeeded     Outcome = iota
	NotConfigured         // credentials missing
	AuthFailed            // credentials rejected
	Rejected              // provider answered without a success flag
	Transient             // provider or transport failure
	Unexpected            // anything else
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case NotConfigured:
		return "not_configured"
	case AuthFailed:
		return "auth_failed"
	case Rejected:
		return "rejected"
	case Transient:
		return "transient"
	default:
		return "unexpected"
	}
}

// Retryable reports whether another attempt in the same sequence can help.
// Retrying with missing or rejected credentials is futile.
func (o Outcome) Retryable() bool {
	switch o {
	case Rejected, Transient, Unexpected:
		return true
	default:
		return false
	}
}

// Classify maps a provider error to an outcome. A nil error is Succeeded.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Succeeded
	case errors.Is(err, ports.ErrProviderNotConfigured):
		return NotConfigured
	case errors.Is(err, ports.ErrProviderAuth):
		return AuthFailed
	case errors.Is(err, ports.ErrProvider):
		return Transient
	default:
		return Unexpected
	}
}

// Evaluate classifies a purchase call. A result without the success flag
// is Rejected.
func Evaluate(res ports.PurchaseResult, err error) Outcome {
	if err != nil {
		return Classify(err)
	}
	if !res.Success {
		return Rejected
	}
	return Succeeded
}
