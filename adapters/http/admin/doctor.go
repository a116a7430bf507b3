package admin

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// DoctorResponse represents the system health check response.
type DoctorResponse struct {
	Status     string         `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp  string         `json:"timestamp"`
	Version    string         `json:"version"`
	Checks     []HealthCheck  `json:"checks"`
	System     SystemInfo     `json:"system"`
	Statistics StatisticsInfo `json:"statistics"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "pass", "warn", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// SystemInfo represents system information.
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumCPU       int    `json:"num_cpu"`
	NumGoroutine int    `json:"num_goroutine"`
	MemAlloc     string `json:"mem_alloc"`
	MemSys       string `json:"mem_sys"`
	Uptime       string `json:"uptime,omitempty"`
}

// StatisticsInfo summarizes the allowance.
type StatisticsInfo struct {
	RemainingMB float64 `json:"remaining_mb"`
	UsedTodayMB float64 `json:"used_today_mb"`
	TotalUsedMB float64 `json:"total_used_mb"`
}

var startTime = time.Now()

// Doctor performs a system health check with diagnostics.
func (h *Handler) Doctor(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	version := h.version
	if version == "" {
		version = "dev"
	}
	response := DoctorResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version,
		Checks: []HealthCheck{
			h.checkDatabase(ctx),
			h.checkProvider(),
			h.checkScheduler(),
			h.checkConfig(),
			h.checkMemory(),
		},
	}

	hasWarn := false
	hasFail := false
	for _, check := range response.Checks {
		switch check.Status {
		case "warn":
			hasWarn = true
		case "fail":
			hasFail = true
		}
	}
	if hasFail {
		response.Status = "unhealthy"
	} else if hasWarn {
		response.Status = "degraded"
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	response.System = SystemInfo{
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
		MemAlloc:     formatBytes(memStats.Alloc),
		MemSys:       formatBytes(memStats.Sys),
		Uptime:       time.Since(startTime).Round(time.Second).String(),
	}

	st := h.service.State()
	response.Statistics = StatisticsInfo{
		RemainingMB: st.RemainingMB,
		UsedTodayMB: st.UsedTodayMB,
		TotalUsedMB: st.TotalUsedMB,
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, response)
}

func (h *Handler) checkDatabase(ctx context.Context) HealthCheck {
	check := HealthCheck{Name: "database", Status: "pass"}
	if h.store == nil {
		check.Status = "warn"
		check.Message = "No store attached"
		return check
	}

	start := time.Now()
	err := h.store.PingContext(ctx)
	check.Latency = time.Since(start).String()
	if err != nil {
		check.Status = "fail"
		check.Message = fmt.Sprintf("Database ping failed: %v", err)
	} else {
		check.Message = "Database connection healthy"
	}
	return check
}

func (h *Handler) checkProvider() HealthCheck {
	check := HealthCheck{Name: "provider", Status: "pass"}
	if p := h.service.Provider(); p == nil || !p.Configured() {
		check.Status = "warn"
		check.Message = "Provider credentials not configured; auto-renewal cannot purchase"
	} else {
		check.Message = "Provider credentials configured"
	}
	return check
}

func (h *Handler) checkScheduler() HealthCheck {
	check := HealthCheck{Name: "scheduler", Status: "pass"}
	if h.checks == nil || !h.checks.Running() {
		check.Status = "warn"
		check.Message = "Scheduler not running"
	} else {
		check.Message = "Scheduler running"
	}
	return check
}

func (h *Handler) checkConfig() HealthCheck {
	check := HealthCheck{Name: "config", Status: "pass"}
	cfg := h.service.Config()

	if err := cfg.Validate(); err != nil {
		check.Status = "fail"
		check.Message = err.Error()
		return check
	}

	var issues []string
	if !cfg.AutoRenewEnabled {
		issues = append(issues, "auto-renewal disabled")
	}
	if cfg.AbsoluteMinThresholdMB == 0 {
		issues = append(issues, "absolute minimum threshold is zero")
	}
	if len(issues) > 0 {
		check.Status = "warn"
		check.Message = fmt.Sprintf("Config warnings: %v", issues)
	} else {
		check.Message = "Configuration valid"
	}
	return check
}

func (h *Handler) checkMemory() HealthCheck {
	check := HealthCheck{Name: "memory", Status: "pass"}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	// Warn above 500MB
	if memStats.Alloc > 500*1024*1024 {
		check.Status = "warn"
		check.Message = fmt.Sprintf("High memory usage: %s", formatBytes(memStats.Alloc))
	} else {
		check.Message = fmt.Sprintf("Memory usage: %s", formatBytes(memStats.Alloc))
	}
	return check
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
