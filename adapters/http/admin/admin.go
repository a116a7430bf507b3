// Package admin provides HTTP handlers for the operator API.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/artpar/bundlekeeper/app"
	"github.com/artpar/bundlekeeper/ports"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// CheckTrigger starts an immediate check cycle.
type CheckTrigger interface {
	Trigger() error
	Running() bool
}

// KeyChecker validates presented API keys.
type KeyChecker interface {
	Open() bool
	Verify(key string) bool
}

// Pinger reports whether the store answers.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler provides operator API endpoints.
type Handler struct {
	service *app.BundleService
	checks  CheckTrigger
	store   Pinger
	keys    KeyChecker
	logger  zerolog.Logger
	version string
}

// Deps contains dependencies for the admin handler.
type Deps struct {
	Service *app.BundleService
	Checks  CheckTrigger // optional; /check answers 503 without it
	Store   Pinger       // optional; used by /doctor
	Keys    KeyChecker   // optional; nil leaves the API open
	Logger  zerolog.Logger
	Version string
}

// NewHandler creates a new admin API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		service: deps.Service,
		checks:  deps.Checks,
		store:   deps.Store,
		keys:    deps.Keys,
		logger:  deps.Logger.With().Str("component", "admin").Logger(),
		version: deps.Version,
	}
}

// Router returns the admin API router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		// Bundle state
		r.Get("/status", h.GetStatus)
		r.Get("/config", h.GetConfig)
		r.Post("/config", h.UpdateConfig)
		r.Post("/add-bundle", h.AddBundle)
		r.Post("/simulate-usage", h.SimulateUsage)
		r.Get("/logs", h.GetLogs)
		r.Get("/usage", h.GetUsage)
		r.Post("/check", h.TriggerCheck)

		// Provider
		r.Get("/provider/subscriptions", h.ProviderSubscriptions)
		r.Get("/provider/bundles", h.ProviderBundles)
		r.Get("/provider/remaining", h.ProviderRemaining)
		r.Post("/provider/buy-bundle", h.ProviderBuyBundle)
		r.Get("/provider/bundle-codes", h.ProviderBundleCodes)

		// Diagnostics
		r.Get("/doctor", h.Doctor)
	})

	return r
}

// -----------------------------------------------------------------------------
// Authentication
// -----------------------------------------------------------------------------

// AuthMiddleware validates the operator API key.
// The key is read from X-API-Key or an Authorization Bearer token.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.keys == nil || h.keys.Open() {
			next.ServeHTTP(w, r)
			return
		}

		presented := r.Header.Get("X-API-Key")
		if presented == "" {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				presented = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if !h.keys.Verify(presented) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Valid API key required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// writeServiceError maps service and provider errors to status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case app.IsValidation(err):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, ports.ErrProviderNotConfigured):
		writeError(w, http.StatusBadRequest, "provider_not_configured",
			"Provider credentials not configured. Set provider_user_id and provider_token.")
	case errors.Is(err, ports.ErrProviderAuth):
		writeError(w, http.StatusUnauthorized, "provider_auth_failed", err.Error())
	case errors.Is(err, ports.ErrProvider):
		writeError(w, http.StatusBadGateway, "provider_error", err.Error())
	default:
		h.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal error")
	}
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func parseIntQuery(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	var v int
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return defaultVal
	}
	return v
}
