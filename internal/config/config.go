package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultModel           = "gpt-4o"
	DefaultMaxTokens       = 4096
	DefaultTemperature     = 0.7
	DefaultMaxToolRounds   = 10
	DefaultExecTimeout     = 60
	DefaultMaxOutputKB     = 64
	DefaultApprovalTimeout = 120
	DefaultTrustTimeoutMin = 30
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 18790
	DefaultBufSize         = 100
)

type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Provider  ProviderConfig  `json:"provider"`
	Security  SecurityConfig  `json:"security"`
	Tools     ToolsConfig     `json:"tools"`
	Channels  ChannelsConfig  `json:"channels"`
	Gateway   GatewayConfig   `json:"gateway"`
	ActionLog ActionLogConfig `json:"actionLog"`
}

type AgentConfig struct {
	Workspace      string   `json:"workspace"`
	Model          string   `json:"model"`
	FallbackModels []string `json:"fallbackModels,omitempty"`
	MaxTokens      int      `json:"maxTokens"`
	Temperature    float64  `json:"temperature"`
	MaxToolRounds  int      `json:"maxToolRounds"`
}

type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type SecurityConfig struct {
	AllowedDirectories     []string `json:"allowedDirectories,omitempty"`
	BlockedCommands        []string `json:"blockedCommands,omitempty"`
	AutoApproveLevels      []string `json:"autoApproveLevels"`
	RequireApprovalFor     []string `json:"requireApprovalFor,omitempty"`
	DisabledTools          []string `json:"disabledTools,omitempty"`
	SessionTrustEnabled    bool     `json:"sessionTrustEnabled"`
	TrustTimeoutMinutes    int      `json:"trustTimeoutMinutes"`
	ApprovalTimeoutSeconds int      `json:"approvalTimeoutSeconds"`
}

type ToolsConfig struct {
	ExecTimeout         int  `json:"execTimeout"`
	MaxOutputKB         int  `json:"maxOutputKb"`
	RestrictToWorkspace bool `json:"restrictToWorkspace"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type ActionLogConfig struct {
	Mode              string `json:"mode"`
	IncludeFullResult bool   `json:"includeFullResult"`
	MaxFileSizeMB     int    `json:"maxFileSizeMb"`
	RetentionDays     int    `json:"retentionDays"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Agent: AgentConfig{
			Workspace:     filepath.Join(home, ".aide", "workspace"),
			Model:         DefaultModel,
			MaxTokens:     DefaultMaxTokens,
			Temperature:   DefaultTemperature,
			MaxToolRounds: DefaultMaxToolRounds,
		},
		Provider: ProviderConfig{},
		Security: SecurityConfig{
			AutoApproveLevels:      []string{"low"},
			SessionTrustEnabled:    true,
			TrustTimeoutMinutes:    DefaultTrustTimeoutMin,
			ApprovalTimeoutSeconds: DefaultApprovalTimeout,
		},
		Tools: ToolsConfig{
			ExecTimeout:         DefaultExecTimeout,
			MaxOutputKB:         DefaultMaxOutputKB,
			RestrictToWorkspace: true,
		},
		Channels: ChannelsConfig{},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		ActionLog: ActionLogConfig{
			Mode:          "tools_only",
			MaxFileSizeMB: 50,
			RetentionDays: 30,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".aide")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// AuditDBPath is where the audit trail lives.
func AuditDBPath() string {
	return filepath.Join(ConfigDir(), "audit.db")
}

// SessionDBPath is where conversation sessions are persisted.
func SessionDBPath() string {
	return filepath.Join(ConfigDir(), "sessions.db")
}

// ActionLogDir holds the JSONL action history.
func ActionLogDir() string {
	return filepath.Join(ConfigDir(), "action_logs")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("AIDE_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("AIDE_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" && cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("AIDE_MODEL"); model != "" {
		cfg.Agent.Model = model
	}
	if token := os.Getenv("AIDE_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if rounds := os.Getenv("AIDE_MAX_TOOL_ROUNDS"); rounds != "" {
		if parsed, err := strconv.Atoi(rounds); err == nil && parsed > 0 {
			cfg.Agent.MaxToolRounds = parsed
		}
	}
	if dirs := os.Getenv("AIDE_ALLOWED_DIRS"); dirs != "" {
		cfg.Security.AllowedDirectories = splitList(dirs)
	}

	if cfg.Agent.Workspace == "" {
		cfg.Agent.Workspace = DefaultConfig().Agent.Workspace
	}
	if cfg.Agent.MaxToolRounds <= 0 {
		cfg.Agent.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.Security.TrustTimeoutMinutes <= 0 {
		cfg.Security.TrustTimeoutMinutes = DefaultTrustTimeoutMin
	}
	if cfg.Security.ApprovalTimeoutSeconds <= 0 {
		cfg.Security.ApprovalTimeoutSeconds = DefaultApprovalTimeout
	}
	if len(cfg.Security.AutoApproveLevels) == 0 {
		cfg.Security.AutoApproveLevels = []string{"low"}
	}
	if cfg.ActionLog.Mode == "" {
		cfg.ActionLog.Mode = "tools_only"
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
