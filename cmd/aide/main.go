package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/aide/internal/agent"
	"github.com/stellarlinkco/aide/internal/audit"
	"github.com/stellarlinkco/aide/internal/config"
	"github.com/stellarlinkco/aide/internal/gateway"
	"github.com/stellarlinkco/aide/internal/model"
	"github.com/stellarlinkco/aide/internal/security"
	"github.com/stellarlinkco/aide/internal/skills"
)

// AgentOptions for running the agent command with custom dependencies.
// Completer replaces the default model client so tests run offline.
type AgentOptions struct {
	Completer model.Completer
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
}

var rootCmd = &cobra.Command{
	Use:   "aide",
	Short: "aide - personal AI assistant",
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run agent in single message or REPL mode",
	RunE:  runAgent,
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the full gateway (channels + cron)",
	RunE:  runGateway,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and workspace",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show aide status",
	RunE:  runStatus,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit trail",
}

var auditRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show recent audit entries",
	RunE:  runAuditRecent,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Recompute entry HMACs and report tampering",
	RunE:  runAuditVerify,
}

var (
	messageFlag    string
	auditLimitFlag int
)

func init() {
	agentCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	auditRecentCmd.Flags().IntVarP(&auditLimitFlag, "limit", "n", 20, "Number of entries")
	auditCmd.AddCommand(auditRecentCmd, auditVerifyCmd)
	rootCmd.AddCommand(agentCmd, gatewayCmd, onboardCmd, statusCmd, auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runAgent is the command handler that uses default options
func runAgent(cmd *cobra.Command, args []string) error {
	return runAgentWithOptions(AgentOptions{})
}

// runAgentWithOptions runs the agent with injectable dependencies for testing
func runAgentWithOptions(opts AgentOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if opts.Completer == nil && cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'aide onboard' or set AIDE_API_KEY / OPENAI_API_KEY")
	}

	// Use injected IO or defaults
	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	// One scanner serves both the REPL and the approval prompt, so the
	// two never fight over buffered input.
	scanner := bufio.NewScanner(stdin)

	gw, err := gateway.NewWithOptions(cfg, gateway.Options{
		Completer: opts.Completer,
		Approve:   terminalApproval(scanner, stdout),
	})
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	defer gw.Shutdown()

	ctx := context.Background()

	// Single message mode
	if messageFlag != "" {
		sess := gw.Session("cli", "cli", "local")
		reply, err := gw.Engine().ProcessMessage(ctx, sess, messageFlag)
		if err != nil {
			return fmt.Errorf("agent error: %w", err)
		}
		fmt.Fprintln(stdout, reply)
		return nil
	}

	// REPL mode
	fmt.Fprintln(stdout, "aide agent (type 'exit' to quit)")
	sess := gw.Session("cli-repl", "cli", "local")
	for {
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		reply, err := gw.Engine().ProcessMessage(ctx, sess, input)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			continue
		}
		fmt.Fprintln(stdout, reply)
	}
	return nil
}

// terminalApproval asks for a verdict on stdin. EOF or anything that is
// not a yes counts as a denial.
func terminalApproval(scanner *bufio.Scanner, out io.Writer) agent.ApprovalFunc {
	return func(ctx context.Context, req agent.ApprovalRequest) security.Answer {
		params, _ := json.Marshal(security.RedactForLog(req.Params))
		fmt.Fprintf(out, "\nApproval required: %s (risk: %s)\nParameters: %s\n[y]es / [n]o / [t]rust session: ",
			req.Tool, req.Risk, params)

		if !scanner.Scan() {
			return security.Answer{}
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "y", "yes":
			return security.Answer{Approved: true}
		case "t", "trust":
			return security.Answer{Approved: true, Trust: true}
		default:
			return security.Answer{}
		}
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'aide onboard' or set AIDE_API_KEY / OPENAI_API_KEY")
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, _ := config.LoadConfig()
	ws := cfg.Agent.Workspace
	for _, dir := range []string{filepath.Join(ws, "memory"), filepath.Join(ws, "skills")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create workspace: %w", err)
		}
	}

	writeIfNotExists(filepath.Join(ws, "AGENTS.md"), defaultAgentsMD)
	writeIfNotExists(filepath.Join(ws, "SOUL.md"), defaultSoulMD)
	writeIfNotExists(filepath.Join(ws, "memory", "MEMORY.md"), "")

	fmt.Printf("Workspace ready: %s\n", ws)
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key\n", cfgPath)
	fmt.Println("  2. Or set AIDE_API_KEY environment variable")
	fmt.Println("  3. Run 'aide agent -m \"Hello\"' to test")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Workspace: %s\n", cfg.Agent.Workspace)
	fmt.Printf("Model: %s\n", cfg.Agent.Model)
	fmt.Printf("API Key: %s\n", maskKey(cfg.Provider.APIKey))
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Printf("Session trust: enabled=%v timeout=%dm\n",
		cfg.Security.SessionTrustEnabled, cfg.Security.TrustTimeoutMinutes)

	if _, err := os.Stat(cfg.Agent.Workspace); err != nil {
		fmt.Println("Workspace: not found (run 'aide onboard')")
	} else {
		loaded, _ := skills.Load(filepath.Join(cfg.Agent.Workspace, "skills"))
		fmt.Printf("Skills: %d loaded\n", len(loaded))
	}

	if _, err := os.Stat(config.AuditDBPath()); err != nil {
		fmt.Println("Audit: no activity recorded")
		return nil
	}
	trail, err := audit.New(config.AuditDBPath())
	if err != nil {
		fmt.Printf("Audit: error (%v)\n", err)
		return nil
	}
	defer trail.Close()

	if stats, err := trail.GetDailyStats(""); err == nil {
		fmt.Printf("Audit today: %d events (%d tool calls, %d denied, %d security)\n",
			stats.TotalEvents, stats.ToolCalls, stats.Denied, stats.SecurityEvents)
	}
	return nil
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "not set"
	case len(key) > 8:
		return key[:4] + "..." + key[len(key)-4:]
	default:
		return "set"
	}
}

func runAuditRecent(cmd *cobra.Command, args []string) error {
	trail, err := audit.New(config.AuditDBPath())
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer trail.Close()

	entries, err := trail.QueryRecent(auditLimitFlag, "", "")
	if err != nil {
		return fmt.Errorf("query audit log: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("Audit log is empty.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %-16s %-12s %-8s %s\n",
			e.Timestamp, e.EventType, e.ToolName, e.ApprovalStatus, e.ResultSummary)
	}
	return nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	trail, err := audit.New(config.AuditDBPath())
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer trail.Close()

	checked, tampered, err := trail.VerifyIntegrity(1000)
	if err != nil {
		return fmt.Errorf("verify audit log: %w", err)
	}
	if tampered > 0 {
		return fmt.Errorf("integrity check failed: %d of %d entries tampered", tampered, checked)
	}
	fmt.Printf("Verified %d entries, no tampering detected.\n", checked)
	return nil
}

func writeIfNotExists(path, content string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		_ = os.WriteFile(path, []byte(content), 0644)
		fmt.Printf("  Created: %s\n", path)
	}
}

const defaultAgentsMD = `# aide Agent

You are aide, a personal AI assistant.

You have access to tools for file operations, web requests, and command
execution. Use them to help the user accomplish tasks.

## Guidelines
- Be concise and helpful
- Use tools proactively when needed
- Remember information the user tells you by writing to memory
- Check your memory context for previously stored information
`

const defaultSoulMD = `# Soul

You are a capable personal assistant that helps with daily tasks,
research, coding, and general questions.

Your personality:
- Direct and efficient
- Technical when needed, simple when possible
- Proactive about using tools to get real answers
`
