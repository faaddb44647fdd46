package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/config"
	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/logging"
)

// writeTestConfig writes a config with every optional backend disabled.
func writeTestConfig(t *testing.T) (configPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "netdiag.db")
	configPath = filepath.Join(dir, "config.yaml")

	content := fmt.Sprintf(`
site:
  id: test-site
database:
  path: %q
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: false
influxdb:
  enabled: false
redis:
  enabled: false
api:
  host: "127.0.0.1"
  port: 18473
logging:
  level: error
  format: text
security:
  jwt:
    secret: "test-secret-key-at-least-32-characters-long"
`, dbPath)
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath, dbPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "netdiag dev") {
		t.Errorf("version output = %q", out)
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("NETDIAG_CONFIG", "")
	opts := &rootOptions{}
	if got := opts.resolveConfigPath(); got != defaultConfigPath {
		t.Errorf("default = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("NETDIAG_CONFIG", "/etc/netdiag.yaml")
	if got := opts.resolveConfigPath(); got != "/etc/netdiag.yaml" {
		t.Errorf("env = %q", got)
	}

	opts.configPath = "flag.yaml"
	if got := opts.resolveConfigPath(); got != "flag.yaml" {
		t.Errorf("flag = %q", got)
	}
}

func TestMigrateCommands(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	out, err := execute(t, "migrate", "status", "--config", configPath)
	if err != nil {
		t.Fatalf("migrate status error = %v", err)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("fresh database should list pending migrations, got %q", out)
	}

	out, err = execute(t, "migrate", "up", "--config", configPath)
	if err != nil {
		t.Fatalf("migrate up error = %v", err)
	}
	if !strings.Contains(out, "schema at version 20260301_120000") {
		t.Errorf("migrate up output = %q", out)
	}

	out, err = execute(t, "migrate", "status", "--config", configPath)
	if err != nil {
		t.Fatalf("migrate status error = %v", err)
	}
	if !strings.Contains(out, "applied  20260301_120000") || strings.Contains(out, "pending") {
		t.Errorf("migrate status output = %q", out)
	}

	out, err = execute(t, "migrate", "down", "--config", configPath)
	if err != nil {
		t.Fatalf("migrate down error = %v", err)
	}
	if !strings.Contains(out, "schema at version none") {
		t.Errorf("migrate down output = %q", out)
	}
}

func TestUserCreate(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	out, err := execute(t, "user", "create", "--config", configPath,
		"--username", "ops", "--role", "admin", "--area", "5")
	if err != nil {
		t.Fatalf("user create error = %v", err)
	}
	if !strings.Contains(out, "created ops") || !strings.Contains(out, "password: ") {
		t.Errorf("user create output = %q", out)
	}

	out, err = execute(t, "user", "create", "--config", configPath,
		"--username", "ops2", "--role", "admin", "--password", "a-chosen-password")
	if err != nil {
		t.Fatalf("user create error = %v", err)
	}
	if strings.Contains(out, "password: ") {
		t.Errorf("chosen password must not be echoed: %q", out)
	}

	if _, err := execute(t, "user", "create", "--config", configPath, "--username", "ops", "--role", "admin"); err == nil {
		t.Error("duplicate username should fail")
	}
	if _, err := execute(t, "user", "create", "--config", configPath, "--username", "x", "--role", "root"); err == nil {
		t.Error("unknown role should fail")
	}
	if _, err := execute(t, "user", "create", "--config", configPath); err == nil {
		t.Error("missing --username should fail")
	}
}

func TestServe_InvalidConfig(t *testing.T) {
	_, err := execute(t, "serve", "--config", "/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("serve should fail with invalid config path")
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	configPath, dbPath := writeTestConfig(t)
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := serve(ctx, cfg, logging.Discard()); err != nil {
		t.Fatalf("serve() error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestServe_MQTTUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the broker connect timeout")
	}
	configPath, _ := writeTestConfig(t)
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.MQTT.Enabled = true
	cfg.MQTT.Broker.Host = "127.0.0.1"
	cfg.MQTT.Broker.Port = 1

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := serve(ctx, cfg, logging.Discard()); err == nil {
		t.Fatal("serve() should fail when the broker is unreachable")
	}
}
