package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Agent.Model != DefaultModel {
		t.Errorf("model = %q, want %q", cfg.Agent.Model, DefaultModel)
	}
	if cfg.Agent.MaxTokens != DefaultMaxTokens {
		t.Errorf("maxTokens = %d, want %d", cfg.Agent.MaxTokens, DefaultMaxTokens)
	}
	if cfg.Agent.MaxToolRounds != DefaultMaxToolRounds {
		t.Errorf("maxToolRounds = %d, want %d", cfg.Agent.MaxToolRounds, DefaultMaxToolRounds)
	}
	if cfg.Gateway.Host != DefaultHost {
		t.Errorf("host = %q, want %q", cfg.Gateway.Host, DefaultHost)
	}
	if cfg.Gateway.Port != DefaultPort {
		t.Errorf("port = %d, want %d", cfg.Gateway.Port, DefaultPort)
	}
	if cfg.Tools.ExecTimeout != DefaultExecTimeout {
		t.Errorf("execTimeout = %d, want %d", cfg.Tools.ExecTimeout, DefaultExecTimeout)
	}
	if !cfg.Tools.RestrictToWorkspace {
		t.Error("restrictToWorkspace should be true by default")
	}
	if cfg.Agent.Workspace == "" {
		t.Error("workspace should not be empty")
	}
}

func TestDefaultConfig_SecurityDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Security.SessionTrustEnabled {
		t.Error("session trust should be enabled by default")
	}
	if cfg.Security.TrustTimeoutMinutes != DefaultTrustTimeoutMin {
		t.Errorf("trustTimeoutMinutes = %d, want %d", cfg.Security.TrustTimeoutMinutes, DefaultTrustTimeoutMin)
	}
	if cfg.Security.ApprovalTimeoutSeconds != DefaultApprovalTimeout {
		t.Errorf("approvalTimeoutSeconds = %d, want %d", cfg.Security.ApprovalTimeoutSeconds, DefaultApprovalTimeout)
	}
	if len(cfg.Security.AutoApproveLevels) != 1 || cfg.Security.AutoApproveLevels[0] != "low" {
		t.Errorf("autoApproveLevels = %v, want [low]", cfg.Security.AutoApproveLevels)
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("AIDE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Agent.Model != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, cfg.Agent.Model)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("AIDE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfgDir := filepath.Join(tmpDir, ".aide")
	os.MkdirAll(cfgDir, 0755)

	testCfg := map[string]any{
		"agent": map[string]any{
			"model":     "gpt-4.1",
			"maxTokens": 2048,
		},
		"provider": map[string]any{
			"apiKey": "sk-test-key",
		},
		"security": map[string]any{
			"allowedDirectories": []string{"~/Documents"},
			"requireApprovalFor": []string{"shell_exec"},
		},
	}
	data, _ := json.MarshalIndent(testCfg, "", "  ")
	os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Agent.Model != "gpt-4.1" {
		t.Errorf("model = %q, want gpt-4.1", cfg.Agent.Model)
	}
	if cfg.Agent.MaxTokens != 2048 {
		t.Errorf("maxTokens = %d, want 2048", cfg.Agent.MaxTokens)
	}
	if cfg.Provider.APIKey != "sk-test-key" {
		t.Errorf("apiKey = %q, want sk-test-key", cfg.Provider.APIKey)
	}
	if len(cfg.Security.AllowedDirectories) != 1 {
		t.Errorf("allowedDirectories = %v", cfg.Security.AllowedDirectories)
	}
	if len(cfg.Security.RequireApprovalFor) != 1 || cfg.Security.RequireApprovalFor[0] != "shell_exec" {
		t.Errorf("requireApprovalFor = %v", cfg.Security.RequireApprovalFor)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	t.Setenv("AIDE_API_KEY", "aide-key")
	t.Setenv("OPENAI_API_KEY", "openai-loses")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Provider.APIKey != "aide-key" {
		t.Errorf("apiKey = %q, want aide-key (AIDE_API_KEY takes priority)", cfg.Provider.APIKey)
	}
}

func TestLoadConfig_OpenAIKeyFallback(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("AIDE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "openai-key")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Provider.APIKey != "openai-key" {
		t.Errorf("apiKey = %q, want openai-key", cfg.Provider.APIKey)
	}
}

func TestLoadConfig_BaseURLEnv(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	t.Setenv("AIDE_BASE_URL", "http://aide.local")
	t.Setenv("OPENAI_BASE_URL", "http://openai.local")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Provider.BaseURL != "http://aide.local" {
		t.Errorf("baseURL = %q, want http://aide.local", cfg.Provider.BaseURL)
	}
}

func TestLoadConfig_AllowedDirsEnv(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("AIDE_ALLOWED_DIRS", "~/Documents, /tmp/work ,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	want := []string{"~/Documents", "/tmp/work"}
	if len(cfg.Security.AllowedDirectories) != len(want) {
		t.Fatalf("allowedDirectories = %v, want %v", cfg.Security.AllowedDirectories, want)
	}
	for i := range want {
		if cfg.Security.AllowedDirectories[i] != want[i] {
			t.Errorf("allowedDirectories[%d] = %q, want %q", i, cfg.Security.AllowedDirectories[i], want[i])
		}
	}
}

func TestLoadConfig_TelegramToken(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("AIDE_TELEGRAM_TOKEN", "test-telegram-token")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Channels.Telegram.Token != "test-telegram-token" {
		t.Errorf("telegram token = %q, want test-telegram-token", cfg.Channels.Telegram.Token)
	}
}

func TestSaveConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg := DefaultConfig()
	cfg.Provider.APIKey = "test-key"

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, ".aide", "config.json"))
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal saved config: %v", err)
	}
	if loaded.Provider.APIKey != "test-key" {
		t.Errorf("saved apiKey = %q, want test-key", loaded.Provider.APIKey)
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfgDir := filepath.Join(tmpDir, ".aide")
	os.MkdirAll(cfgDir, 0755)
	os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("invalid json"), 0644)

	_, err := LoadConfig()
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLoadConfig_EmptyWorkspace(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfgDir := filepath.Join(tmpDir, ".aide")
	os.MkdirAll(cfgDir, 0755)

	testCfg := map[string]any{
		"agent": map[string]any{
			"workspace": "",
		},
	}
	data, _ := json.MarshalIndent(testCfg, "", "  ")
	os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Agent.Workspace == "" {
		t.Error("workspace should not be empty")
	}
	if cfg.Agent.MaxToolRounds <= 0 {
		t.Error("maxToolRounds should be backfilled")
	}
}
