package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckConfigAcceptsDefaults(t *testing.T) {
	out, err := execute(t, "check-config")
	if err != nil {
		t.Fatalf("check-config: %v", err)
	}
	if !strings.Contains(out, "configuration ok") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCheckConfigPrintsResolvedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tradecore.yaml")
	body := "engine:\n  strategy: intraday\nsnapshot:\n  redis:\n    password: hunter2\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := execute(t, "check-config", "--config", path, "--print")
	if err != nil {
		t.Fatalf("check-config: %v", err)
	}
	if !strings.Contains(out, "strategy: intraday") {
		t.Fatalf("resolved strategy missing from %q", out)
	}
	if strings.Contains(out, "hunter2") {
		t.Fatalf("password leaked")
	}
}

func TestCheckConfigRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tradecore.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  strategy: martingale\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := execute(t, "check-config", "-c", path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestFlagOverrides(t *testing.T) {
	f := &flags{symbols: []string{" gbpusd", "xauusd"}, strategy: "HFT", logLevel: "debug", liquidate: true}
	cfg, err := f.load(t.Context())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if strings.Join(cfg.Engine.Symbols, ",") != "GBPUSD,XAUUSD" || cfg.Engine.Strategy != "hft" {
		t.Fatalf("overrides not applied: %+v", cfg.Engine)
	}
	if cfg.Log.Level != "debug" || !cfg.Engine.LiquidateOnStop {
		t.Fatalf("log level or liquidate not applied")
	}
}
