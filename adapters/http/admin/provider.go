package admin

import (
	"net/http"

	"github.com/artpar/bundlekeeper/ports"
)

// BuyBundleRequest selects the buying code for a direct purchase.
type BuyBundleRequest struct {
	BuyingCode string `json:"buying_code,omitempty"`
}

// ProviderSubscriptions lists the subscriptions linked to the account.
func (h *Handler) ProviderSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.service.ProviderSubscriptions(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if subs == nil {
		subs = []ports.Subscription{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"subscriptions": subs})
}

// ProviderBundles lists roaming bundles and the zone total.
func (h *Handler) ProviderBundles(w http.ResponseWriter, r *http.Request) {
	bundles, total, err := h.service.ProviderBundles(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if bundles == nil {
		bundles = []ports.RoamingBundle{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bundles":            bundles,
		"total_remaining_mb": total,
	})
}

// ProviderRemaining returns the provider-reported remaining allowance.
func (h *Handler) ProviderRemaining(w http.ResponseWriter, r *http.Request) {
	remaining, err := h.service.ProviderRemaining(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"remaining_mb": remaining})
}

// ProviderBuyBundle purchases a bundle directly from the provider.
func (h *Handler) ProviderBuyBundle(w http.ResponseWriter, r *http.Request) {
	var req BuyBundleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	res, err := h.service.ProviderBuy(r.Context(), req.BuyingCode)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, res)
}

// ProviderBundleCodes lists known buying codes and the configured one.
func (h *Handler) ProviderBundleCodes(w http.ResponseWriter, r *http.Request) {
	known, configured := h.service.BundleCodes()
	if known == nil {
		known = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"known_codes":     known,
		"configured_code": configured,
	})
}
