package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envNames = []string{
	"BUNDLEKEEPER_DATABASE_DSN", "APP_DB_PATH",
	"BUNDLEKEEPER_LOG_LEVEL", "LOG_LEVEL", "BUNDLEKEEPER_LOG_FORMAT", "BUNDLEKEEPER_LOG_FILE",
	"BUNDLEKEEPER_PROVIDER_BASE_URL", "BUNDLEKEEPER_PROVIDER_USER_ID", "ODIDO_USER_ID",
	"BUNDLEKEEPER_PROVIDER_TOKEN", "ODIDO_TOKEN", "BUNDLEKEEPER_TIMEZONE",
}

func setupCLI(t *testing.T) func(args ...string) (string, error) {
	t.Helper()
	for _, n := range envNames {
		t.Setenv(n, "")
	}
	dir := t.TempDir()
	t.Setenv("BUNDLEKEEPER_DATABASE_DSN", filepath.Join(dir, "cli.db"))
	path := filepath.Join(dir, "missing.yaml")

	return func(args ...string) (string, error) {
		var out, errOut bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&errOut)
		rootCmd.SetArgs(append([]string{"--config", path}, args...))
		err := rootCmd.Execute()
		return out.String(), err
	}
}

func TestCLI_BundleLifecycle(t *testing.T) {
	run := setupCLI(t)

	out, err := run("add-bundle", "--amount", "1000", "--key", "k1")
	if err != nil {
		t.Fatalf("add-bundle: %v", err)
	}
	if !strings.Contains(out, "Bundle added (key k1)") || !strings.Contains(out, "Remaining: 1000.0 MB") {
		t.Errorf("add-bundle output = %q", out)
	}

	out, err = run("add-bundle", "--amount", "1000", "--key", "k1")
	if err != nil {
		t.Fatalf("add-bundle replay: %v", err)
	}
	if !strings.Contains(out, "already used") || !strings.Contains(out, "Remaining: 1000.0 MB") {
		t.Errorf("replay output = %q", out)
	}

	out, err = run("usage", "record", "--amount", "100")
	if err != nil {
		t.Fatalf("usage record: %v", err)
	}
	if !strings.Contains(out, "Remaining: 900.0 MB") {
		t.Errorf("usage record output = %q", out)
	}

	out, err = run("usage", "recent")
	if err != nil {
		t.Fatalf("usage recent: %v", err)
	}
	if !strings.Contains(out, "AMOUNT (MB)") || !strings.Contains(out, "100") {
		t.Errorf("usage recent output = %q", out)
	}

	out, err = run("logs")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if !strings.Contains(out, "Bundle added manually: 1000 MB") {
		t.Errorf("logs output = %q", out)
	}

	out, err = run("status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "900.0 MB") {
		t.Errorf("status output = %q", out)
	}
}

func TestCLI_Config(t *testing.T) {
	run := setupCLI(t)

	out, err := run("config", "set", "lead_time_minutes=45", "bundle_code=A0DAY05")
	if err != nil {
		t.Fatalf("config set: %v", err)
	}
	if !strings.Contains(out, "Updated 2 setting(s)") {
		t.Errorf("config set output = %q", out)
	}

	out, err = run("config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, `"lead_time_minutes": 45`) || !strings.Contains(out, `"bundle_code": "A0DAY05"`) {
		t.Errorf("config show output = %q", out)
	}

	if _, err := run("config", "set", "lead_time_minutes"); err == nil {
		t.Error("expected error for assignment without value")
	}
}

func TestCLI_Check(t *testing.T) {
	run := setupCLI(t)

	out, err := run("check")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "Next check in:") {
		t.Errorf("check output = %q", out)
	}
}

func TestCLI_Version(t *testing.T) {
	run := setupCLI(t)

	out, err := run("version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "bundlekeeper dev") {
		t.Errorf("version output = %q", out)
	}
}

func TestParseAssignments(t *testing.T) {
	patch, err := parseAssignments([]string{"a=1", "b = x=y", "c="})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if patch["a"] != "1" || patch["b"] != " x=y" || patch["c"] != "" {
		t.Errorf("patch = %#v", patch)
	}

	for _, bad := range []string{"novalue", "=1"} {
		if _, err := parseAssignments([]string{bad}); err == nil {
			t.Errorf("parseAssignments(%q) expected error", bad)
		}
	}
}

func TestParseTimeFlag(t *testing.T) {
	got, err := parseTimeFlag("")
	if err != nil || !got.IsZero() {
		t.Errorf("empty = %v, %v", got, err)
	}

	got, err = parseTimeFlag("2026-03-10T08:15:00Z")
	if err != nil || !got.Equal(time.Date(2026, 3, 10, 8, 15, 0, 0, time.UTC)) {
		t.Errorf("rfc3339 = %v, %v", got, err)
	}

	got, err = parseTimeFlag("1773130500")
	if err != nil || got.Unix() != 1773130500 {
		t.Errorf("epoch = %v, %v", got, err)
	}

	if _, err := parseTimeFlag("yesterday"); err == nil {
		t.Error("expected error for unparseable time")
	}
}

func TestCLI_Keygen(t *testing.T) {
	run := setupCLI(t)

	out, err := run("keygen")
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if !strings.Contains(out, "API key (shown once): bk_") || !strings.Contains(out, "api_key_hash: \"$2a$") {
		t.Errorf("keygen output = %q", out)
	}
}
