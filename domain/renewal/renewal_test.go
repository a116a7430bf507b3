package renewal

import (
	"errors"
	"fmt"
	"testing"

	"github.com/artpar/bundlekeeper/ports"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		res       ports.PurchaseResult
		err       error
		want      Outcome
		retryable bool
	}{
		{"success", ports.PurchaseResult{Success: true}, nil, Succeeded, false},
		{"unsuccessful result", ports.PurchaseResult{}, nil, Rejected, true},
		{"not configured", ports.PurchaseResult{}, ports.ErrProviderNotConfigured, NotConfigured, false},
		{"wrapped auth", ports.PurchaseResult{}, fmt.Errorf("buy: %w", ports.ErrProviderAuth), AuthFailed, false},
		{"transient", ports.PurchaseResult{}, fmt.Errorf("status 503: %w", ports.ErrProvider), Transient, true},
		{"unexpected", ports.PurchaseResult{}, errors.New("boom"), Unexpected, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.res, tt.err)
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
			if got.Retryable() != tt.retryable {
				t.Errorf("%v.Retryable() = %v, want %v", got, got.Retryable(), tt.retryable)
			}
		})
	}
}

func TestOutcomeString(t *testing.T) {
	if Succeeded.String() != "succeeded" || AuthFailed.String() != "auth_failed" {
		t.Error("unexpected outcome names")
	}
	if Outcome(99).String() != "unexpected" {
		t.Errorf("Outcome(99) = %q", Outcome(99).String())
	}
}
