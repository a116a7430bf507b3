package bootstrap_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/bundlekeeper/bootstrap"
	"github.com/artpar/bundlekeeper/config"
	"github.com/rs/zerolog"
)

var envNames = []string{
	"BUNDLEKEEPER_API_KEY", "API_KEY", "BUNDLEKEEPER_API_KEY_HASH",
	"BUNDLEKEEPER_DATABASE_DSN", "APP_DB_PATH",
	"BUNDLEKEEPER_LOG_FILE", "BUNDLEKEEPER_LOG_FORMAT", "BUNDLEKEEPER_LOG_LEVEL", "LOG_LEVEL",
	"BUNDLEKEEPER_METRICS_ENABLED", "BUNDLEKEEPER_METRICS_PATH",
	"BUNDLEKEEPER_PROVIDER_BASE_URL", "BUNDLEKEEPER_PROVIDER_TIMEOUT",
	"BUNDLEKEEPER_PROVIDER_TOKEN", "ODIDO_TOKEN",
	"BUNDLEKEEPER_PROVIDER_USER_ID", "ODIDO_USER_ID",
	"BUNDLEKEEPER_RESYNC_INTERVAL", "BUNDLEKEEPER_TIMEZONE",
	"BUNDLEKEEPER_SERVER_HOST", "BUNDLEKEEPER_SERVER_PORT", "PORT",
	"BUNDLEKEEPER_SERVER_READ_TIMEOUT", "BUNDLEKEEPER_SERVER_WRITE_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, n := range envNames {
		t.Setenv(n, "")
	}
}

// keepLogLevel restores the global zerolog level after a test changes it.
func keepLogLevel(t *testing.T) {
	t.Helper()
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
}

func newEnvApp(t *testing.T) *bootstrap.App {
	t.Helper()
	clearEnv(t)
	keepLogLevel(t)

	dir := t.TempDir()
	t.Setenv("BUNDLEKEEPER_DATABASE_DSN", filepath.Join(dir, "test.db"))
	t.Setenv("BUNDLEKEEPER_API_KEY", "operator-key")

	a, err := bootstrap.Load(filepath.Join(dir, "missing.yaml"), bootstrap.Options{
		Version: "test",
		Stdout:  &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	t.Cleanup(func() { a.Shutdown() })
	return a
}

func serve(a *bootstrap.App, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	a.HTTPServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestBootstrap_EnvOnly(t *testing.T) {
	a := newEnvApp(t)

	if a.DB == nil {
		t.Error("DB should not be nil")
	}
	if a.Service == nil {
		t.Error("Service should not be nil")
	}
	if a.Scheduler == nil {
		t.Error("Scheduler should not be nil")
	}
	if a.HTTPServer == nil {
		t.Error("HTTPServer should not be nil")
	}
	if a.Metrics == nil {
		t.Error("metrics are enabled by default")
	}
	if a.HTTPServer.Addr != "0.0.0.0:8080" {
		t.Errorf("addr = %q, want 0.0.0.0:8080", a.HTTPServer.Addr)
	}
}

func TestBootstrap_DatabaseMigration(t *testing.T) {
	a := newEnvApp(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, table := range []string{"kv", "usage_events", "logs", "idempotency"} {
		var count int
		if err := a.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("query %s table: %v", table, err)
		}
	}
}

func TestBootstrap_Routes(t *testing.T) {
	a := newEnvApp(t)

	if rec := serve(a, "GET", "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("/health = %d", rec.Code)
	}
	if rec := serve(a, "GET", "/api/status", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("/api/status without key = %d, want 401", rec.Code)
	}

	rec := serve(a, "GET", "/api/status", "operator-key")
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"remaining_mb"`) {
		t.Errorf("status body missing remaining_mb: %s", rec.Body.String())
	}

	rec = serve(a, "GET", "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", rec.Code)
	}
	for _, want := range []string{"bundlekeeper_remaining_mb", "go_goroutines"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestBootstrap_GracefulShutdown(t *testing.T) {
	a := newEnvApp(t)

	if err := a.Shutdown(); err != nil {
		t.Errorf("shutdown error: %v", err)
	}
	if err := a.Shutdown(); err != nil {
		t.Errorf("second shutdown error: %v", err)
	}

	if _, err := a.DB.Query("SELECT 1"); err == nil {
		t.Error("expected error querying closed database")
	}
}

func TestBootstrap_RunContext(t *testing.T) {
	a := newEnvApp(t)
	a.HTTPServer.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.RunContext(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !a.Scheduler.Running() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !a.Scheduler.Running() {
		t.Fatal("scheduler did not start")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("RunContext: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("RunContext did not return")
	}
	if a.Scheduler.Running() {
		t.Error("scheduler still running after shutdown")
	}
}

func TestBootstrap_HotReload(t *testing.T) {
	clearEnv(t)
	keepLogLevel(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "bundlekeeper.yaml")
	write := func(level string) {
		content := "database:\n  dsn: " + filepath.Join(dir, "reload.db") + "\nlogging:\n  level: " + level + "\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("info")

	a, err := bootstrap.Load(path, bootstrap.Options{HotReload: true, Stdout: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	defer a.Shutdown()

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("level = %v, want info", zerolog.GlobalLevel())
	}

	write("debug")
	if err := a.Config.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("level after reload = %v, want debug", zerolog.GlobalLevel())
	}
	if a.Config.Get().Logging.Level != "debug" {
		t.Errorf("holder level = %q", a.Config.Get().Logging.Level)
	}
}

func TestOpenService_Persists(t *testing.T) {
	clearEnv(t)
	keepLogLevel(t)

	dsn := filepath.Join(t.TempDir(), "cli.db")
	cfg, err := config.Parse([]byte("database:\n  dsn: " + dsn + "\n"))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	ctx := context.Background()

	svc, err := bootstrap.OpenService(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("open service: %v", err)
	}
	amount := 500.0
	if _, err := svc.ManualAddBundle(ctx, &amount, "cli-1"); err != nil {
		t.Fatalf("add bundle: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	svc, err = bootstrap.OpenService(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen service: %v", err)
	}
	defer svc.Close()

	if got := svc.State().RemainingMB; got != 500 {
		t.Errorf("remaining = %v, want 500", got)
	}
}

func TestNewLogger_FileSink(t *testing.T) {
	keepLogLevel(t)

	file := filepath.Join(t.TempDir(), "logs", "bundlekeeper.log")
	var stdout bytes.Buffer
	logger, closer, err := bootstrap.NewLogger(config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		File:       file,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	}, &stdout)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	logger.Info().Msg("hello file")
	logger.Debug().Msg("hidden")
	closer.Close()

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Errorf("log file missing entry: %s", data)
	}
	if !strings.Contains(stdout.String(), "hello file") {
		t.Errorf("stdout missing entry: %s", stdout.String())
	}
	if strings.Contains(stdout.String(), "hidden") {
		t.Error("debug entry written at info level")
	}
}

func TestSetLogLevel(t *testing.T) {
	keepLogLevel(t)

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"DEBUG", zerolog.DebugLevel},
		{"WARNING", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		bootstrap.SetLogLevel(tt.in)
		if got := zerolog.GlobalLevel(); got != tt.want {
			t.Errorf("SetLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
