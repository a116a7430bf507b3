package admin

import (
	"errors"
	"net/http"

	"github.com/artpar/bundlekeeper/app"
	"github.com/artpar/bundlekeeper/domain/audit"
	"github.com/artpar/bundlekeeper/domain/bundle"
	"github.com/artpar/bundlekeeper/domain/usage"
)

// StateResponse wraps the bundle state.
type StateResponse struct {
	Status string               `json:"status"`
	State  bundle.StateDocument `json:"state"`
}

// AddBundleRequest represents a manual top-up.
type AddBundleRequest struct {
	AmountMB       *float64 `json:"amount_mb,omitempty"`
	IdempotencyKey string   `json:"idempotency_key,omitempty"`
}

// AddBundleResponse reports a manual top-up.
type AddBundleResponse struct {
	Status         string               `json:"status"`
	IdempotencyKey string               `json:"idempotency_key"`
	Replayed       bool                 `json:"replayed"`
	State          bundle.StateDocument `json:"state"`
}

// SimulateUsageRequest represents observed consumption.
type SimulateUsageRequest struct {
	AmountMB  *float64 `json:"amount_mb"`
	Timestamp *float64 `json:"timestamp,omitempty"` // epoch seconds
}

// UsageEventResponse is one usage event.
type UsageEventResponse struct {
	ID       int64   `json:"id"`
	TS       float64 `json:"ts"`
	AmountMB float64 `json:"amount_mb"`
}

// GetStatus returns config, state, rate, ETA and recent logs.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetConfig returns the current config with the provider token redacted.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Config().Redacted())
}

// UpdateConfig merges the posted keys into the config.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	cfg, err := h.service.UpdateConfig(r.Context(), patch)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"config": cfg.Redacted(),
	})
}

// AddBundle credits allowance once per idempotency key.
func (h *Handler) AddBundle(w http.ResponseWriter, r *http.Request) {
	var req AddBundleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if key := r.Header.Get("Idempotency-Key"); req.IdempotencyKey == "" && key != "" {
		req.IdempotencyKey = key
	}

	res, err := h.service.ManualAddBundle(r.Context(), req.AmountMB, req.IdempotencyKey)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AddBundleResponse{
		Status:         "ok",
		IdempotencyKey: res.Key,
		Replayed:       res.Replayed,
		State:          res.State.Document(),
	})
}

// SimulateUsage records consumption.
func (h *Handler) SimulateUsage(w http.ResponseWriter, r *http.Request) {
	var req SimulateUsageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.AmountMB == nil {
		writeError(w, http.StatusBadRequest, "validation_error", "amount_mb required")
		return
	}

	at := bundle.TimeFromEpochPtr(req.Timestamp)
	st, err := h.service.SimulateUsage(r.Context(), *req.AmountMB, at)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{Status: "ok", State: st.Document()})
}

// GetLogs returns recent audit entries, newest first.
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Logs(r.Context(), parseIntQuery(r, "limit", 100))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	records := audit.ToRecords(entries)
	if records == nil {
		records = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": records})
}

// GetUsage returns recent usage events, newest first.
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.RecentUsage(r.Context(), parseIntQuery(r, "limit", 100))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events":   usageToResponse(events),
		"total_mb": usage.Total(events),
	})
}

// TriggerCheck wakes the scheduler for an immediate check cycle.
func (h *Handler) TriggerCheck(w http.ResponseWriter, r *http.Request) {
	if h.checks == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler_unavailable", "Scheduler not running")
		return
	}

	switch err := h.checks.Trigger(); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, app.ErrTriggerThrottled):
		writeError(w, http.StatusTooManyRequests, "throttled", "Check requested too recently")
	case errors.Is(err, app.ErrSchedulerStopped):
		writeError(w, http.StatusServiceUnavailable, "scheduler_unavailable", "Scheduler not running")
	default:
		h.writeServiceError(w, err)
	}
}

func usageToResponse(events []usage.Event) []UsageEventResponse {
	out := make([]UsageEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, UsageEventResponse{
			ID:       e.ID,
			TS:       bundle.Epoch(e.Timestamp),
			AmountMB: e.AmountMB,
		})
	}
	return out
}
