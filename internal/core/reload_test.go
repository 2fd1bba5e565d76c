package core

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

const reloadBase = `api:
  base_url: "https://mgmt.example.com"
  api_key: "` + validKey + `"
logging:
  level: "info"
`

func newReloadEngine(t *testing.T, content string) (*Engine, string) {
	t.Helper()
	path := writeTempConfig(t, content)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	e, err := newEngine(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	e.logLevel = NewLevelSwitch(io.Discard, ParseLogLevel(cfg.Logging.Level))
	t.Cleanup(func() { _ = e.Shutdown() })
	return e, path
}

func rewrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestReloadConfig_PoliciesAndLevel(t *testing.T) {
	e, path := newReloadEngine(t, reloadBase)
	rewrite(t, path, strings.Replace(reloadBase, `level: "info"`, `level: "debug"`, 1)+`policies:
  high:
    action: block
    duration: 900
`)

	changes, err := ReloadConfig(e, path)
	if err != nil {
		t.Fatalf("ReloadConfig: %v", err)
	}
	joined := strings.Join(changes, "; ")
	if !strings.Contains(joined, "policies.high → block (900s)") || !strings.Contains(joined, "logging.level → debug") {
		t.Errorf("changes = %v", changes)
	}
	if len(changes) != 2 {
		t.Errorf("expected exactly 2 changes, got %v", changes)
	}

	if p, _ := e.Orchestrator.PolicyFor(SeverityHigh); p.Action != PolicyBlock || p.Duration != 900 {
		t.Errorf("high policy = %+v", p)
	}
	if p, _ := e.Orchestrator.PolicyFor(SeverityCritical); p.Action != PolicyIsolate {
		t.Errorf("critical policy should keep its default: %+v", p)
	}
	if e.logLevel.Level() != zerolog.DebugLevel {
		t.Errorf("log level = %v, want debug", e.logLevel.Level())
	}
	if e.Config.Logging.Level != "debug" {
		t.Errorf("config level = %q", e.Config.Logging.Level)
	}
}

func TestReloadConfig_NoChanges(t *testing.T) {
	e, path := newReloadEngine(t, reloadBase)
	changes, err := ReloadConfig(e, path)
	if err != nil {
		t.Fatalf("ReloadConfig: %v", err)
	}
	if len(changes) != 1 || changes[0] != "no changes detected" {
		t.Errorf("changes = %v", changes)
	}
}

func TestReloadConfig_InvalidPolicyChangesNothing(t *testing.T) {
	e, path := newReloadEngine(t, reloadBase)
	rewrite(t, path, strings.Replace(reloadBase, `level: "info"`, `level: "debug"`, 1)+`policies:
  high:
    action: shutdown
`)

	if _, err := ReloadConfig(e, path); err == nil {
		t.Fatal("expected error for unknown policy action")
	}
	if p, _ := e.Orchestrator.PolicyFor(SeverityHigh); p.Action != PolicyIsolate {
		t.Errorf("high policy changed by a failed reload: %+v", p)
	}
	if e.logLevel.Level() != zerolog.InfoLevel {
		t.Errorf("log level changed by a failed reload: %v", e.logLevel.Level())
	}
}

func TestReloadConfig_RestartRequired(t *testing.T) {
	e, path := newReloadEngine(t, reloadBase)
	rewrite(t, path, strings.Replace(reloadBase, "mgmt.example.com", "mgmt2.example.com", 1))

	changes, err := ReloadConfig(e, path)
	if err != nil {
		t.Fatalf("ReloadConfig: %v", err)
	}
	if len(changes) != 1 || !strings.Contains(changes[0], "restart required") {
		t.Errorf("changes = %v", changes)
	}
	if strings.Contains(e.Client.BaseURL(), "mgmt2") {
		t.Errorf("client endpoint changed without restart: %s", e.Client.BaseURL())
	}
}

func TestReloadConfig_Errors(t *testing.T) {
	e, _ := newReloadEngine(t, reloadBase)
	if _, err := ReloadConfig(e, ""); err == nil {
		t.Error("expected error for empty path")
	}
	bad := writeTempConfig(t, "api: [unclosed")
	if _, err := ReloadConfig(e, bad); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
