package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 9000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 9000 {
		t.Errorf("http port = %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.MetricsPort != 9090 {
		t.Errorf("server defaults not applied: %+v", cfg.Server)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("store driver = %s", cfg.Store.Driver)
	}
	if cfg.Approvals.TTL != 24*time.Hour {
		t.Errorf("approval ttl = %s", cfg.Approvals.TTL)
	}
	if cfg.Dispatch.Workers != 4 || cfg.Dispatch.MaxToolCalls != 10 {
		t.Errorf("dispatch defaults = %+v", cfg.Dispatch)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test-123")
	path := writeConfig(t, `
llm:
  providers:
    openai:
      api_key: ${TEST_OPENAI_KEY}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Providers["openai"].APIKey != "sk-test-123" {
		t.Errorf("api key = %q", cfg.LLM.Providers["openai"].APIKey)
	}
}

func TestLoadParsesAgents(t *testing.T) {
	path := writeConfig(t, `
agents:
  - id: assistant
    name: Assistant
    provider: anthropic
    model: claude-sonnet-4-5
    generalist: true
  - id: dexter
    name: Dexter
    provider: openai
    model: gpt-4o
    agentic: true
    tools: [calculate_roi, analyze_break_even]
approvals:
  ttl: 2h
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Agents) != 2 {
		t.Fatalf("agents = %d", len(cfg.Agents))
	}
	if !cfg.Agents[0].Generalist || cfg.Agents[1].Generalist {
		t.Error("generalist flags wrong")
	}
	if len(cfg.Agents[1].Tools) != 2 {
		t.Errorf("tools = %v", cfg.Agents[1].Tools)
	}
	if cfg.Approvals.TTL != 2*time.Hour {
		t.Errorf("ttl = %s", cfg.Approvals.TTL)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown driver", "store:\n  driver: etcd\n"},
		{"duplicate agent", "agents:\n  - id: a\n    generalist: true\n  - id: a\n"},
		{"missing id", "agents:\n  - name: x\n    generalist: true\n"},
		{"no generalist", "agents:\n  - id: a\n  - id: b\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
