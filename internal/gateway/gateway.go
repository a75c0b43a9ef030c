// Package gateway wires the whole assistant together: model client,
// tool system, security pipeline, persistence, chat channels and the
// scheduler, then runs the inbound message loop.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/stellarlinkco/aide/internal/actionlog"
	"github.com/stellarlinkco/aide/internal/agent"
	"github.com/stellarlinkco/aide/internal/audit"
	"github.com/stellarlinkco/aide/internal/bus"
	"github.com/stellarlinkco/aide/internal/channel"
	"github.com/stellarlinkco/aide/internal/config"
	"github.com/stellarlinkco/aide/internal/cron"
	"github.com/stellarlinkco/aide/internal/memory"
	"github.com/stellarlinkco/aide/internal/model"
	"github.com/stellarlinkco/aide/internal/security"
	"github.com/stellarlinkco/aide/internal/skills"
	"github.com/stellarlinkco/aide/internal/tool"
	"github.com/stellarlinkco/aide/internal/tool/builtin"
)

// Options for creating a Gateway. Completer overrides the default
// OpenAI-backed router, which makes the gateway testable offline.
// Approve overrides the chat-based approval flow; the CLI uses it to
// prompt on the terminal instead.
type Options struct {
	Completer  model.Completer
	Approve    agent.ApprovalFunc
	SignalChan chan os.Signal
}

type Gateway struct {
	cfg      *config.Config
	bus      *bus.MessageBus
	engine   *agent.Engine
	channels *channel.Manager
	cron     *cron.Service
	broker   *security.Broker
	policy   *security.Policy
	auditLog *audit.Log
	actions  *actionlog.Logger
	store    *memory.SessionStore
	skills   *skills.Manager

	signalChan chan os.Signal

	sessMu   sync.Mutex
	sessions map[string]*model.Session
}

// New creates a Gateway with default options.
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{
		cfg:        cfg,
		signalChan: opts.SignalChan,
		sessions:   make(map[string]*model.Session),
	}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)

	completer := opts.Completer
	if completer == nil {
		client, err := model.NewOpenAIClient(model.ClientConfig{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			Model:     cfg.Agent.Model,
			MaxTokens: cfg.Agent.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("create model client: %w", err)
		}
		completer = model.NewRouter(client, cfg.Agent.Model, cfg.Agent.FallbackModels)
	}

	// With no explicit allow-list, restrictToWorkspace confines file
	// operations to the workspace. Both the sandbox and the per-call
	// tool context read this field.
	if cfg.Tools.RestrictToWorkspace && len(cfg.Security.AllowedDirectories) == 0 {
		cfg.Security.AllowedDirectories = []string{cfg.Agent.Workspace}
	}

	registry := tool.NewRegistry()
	builtin.RegisterAll(registry)

	g.policy = security.NewPolicy(security.PolicyConfig{
		AutoApproveLevels:   cfg.Security.AutoApproveLevels,
		RequireApprovalFor:  cfg.Security.RequireApprovalFor,
		SessionTrustEnabled: cfg.Security.SessionTrustEnabled,
		TrustTimeout:        time.Duration(cfg.Security.TrustTimeoutMinutes) * time.Minute,
	})
	g.broker = security.NewBroker(time.Duration(cfg.Security.ApprovalTimeoutSeconds) * time.Second)

	auditLog, err := audit.New(config.AuditDBPath())
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	g.auditLog = auditLog

	actions, err := actionlog.New(actionlog.Config{
		Dir:               config.ActionLogDir(),
		Mode:              cfg.ActionLog.Mode,
		IncludeFullResult: cfg.ActionLog.IncludeFullResult,
		MaxFileSizeMB:     cfg.ActionLog.MaxFileSizeMB,
		RetentionDays:     cfg.ActionLog.RetentionDays,
	})
	if err != nil {
		auditLog.Close()
		return nil, fmt.Errorf("open action log: %w", err)
	}
	g.actions = actions

	store, err := memory.NewSessionStore(config.SessionDBPath())
	if err != nil {
		auditLog.Close()
		return nil, fmt.Errorf("open session store: %w", err)
	}
	g.store = store

	g.skills = skills.NewManager(filepath.Join(cfg.Agent.Workspace, "skills"))

	approve := opts.Approve
	if approve == nil {
		approve = g.requestApproval
	}

	g.engine = agent.New(agent.Options{
		Completer:    completer,
		Tools:        tool.NewSystem(registry),
		Sandbox:      security.NewSandbox(cfg.Security.AllowedDirectories, cfg.Security.BlockedCommands),
		Policy:       g.policy,
		Audit:        auditLog,
		Actions:      actions,
		Sessions:     store,
		Context:      memory.NewContextBuilder(cfg.Agent.Workspace),
		SkillPrompts: g.skills.PromptsFor,
		Approve:      approve,
		Config:       cfg,
	})

	cronStorePath := filepath.Join(config.ConfigDir(), "data", "cron", "jobs.json")
	g.cron = cron.NewService(cronStorePath)
	g.cron.OnJob = g.runJob

	channels, err := channel.NewManager(cfg.Channels, g.bus, g.broker)
	if err != nil {
		auditLog.Close()
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = channels

	return g, nil
}

// Engine exposes the agent engine, mainly for the CLI surfaces.
func (g *Gateway) Engine() *agent.Engine { return g.engine }

// Cron exposes the job scheduler.
func (g *Gateway) Cron() *cron.Service { return g.cron }

// requestApproval turns a pending tool call into a chat prompt with
// answer buttons, then blocks on the broker. Sessions without a chat
// surface that can answer (scheduler and cron runs, CLI keys, channels
// nobody subscribed) fall back to the default policy: low risk passes,
// everything else is denied.
func (g *Gateway) requestApproval(ctx context.Context, req agent.ApprovalRequest) security.Answer {
	chName, chatID, ok := strings.Cut(req.SessionID, ":")
	if !ok || chName == "" || chatID == "" || !g.bus.HasSubscriber(chName) {
		return agent.DefaultApproval(ctx, req)
	}

	id := g.broker.Open()

	params, _ := json.Marshal(security.RedactForLog(req.Params))
	g.bus.Outbound <- bus.OutboundMessage{
		Channel: chName,
		ChatID:  chatID,
		Content: fmt.Sprintf("Approval required: **%s** (risk: %s)\nParameters: `%s`",
			req.Tool, req.Risk, params),
		Metadata: map[string]any{"approval_id": id},
	}

	return g.broker.Wait(ctx, id)
}

// runJob executes a scheduled job: a direct tool call when Tool is
// set, otherwise a full agent run with the job's message.
func (g *Gateway) runJob(job cron.CronJob) (string, error) {
	ctx := context.Background()

	var result string
	var err error
	if job.Payload.Tool != "" {
		result, err = g.engine.ExecuteTool(ctx, job.Payload.Tool, job.Payload.Params)
	} else {
		sess := g.session("cron:"+job.ID, "cron", "scheduler")
		result, err = g.engine.ProcessMessage(ctx, sess, job.Payload.Message)
	}
	if err != nil {
		return "", err
	}

	if job.Payload.Channel != "" && job.Payload.ChatID != "" && result != "" {
		g.bus.Outbound <- bus.OutboundMessage{
			Channel: job.Payload.Channel,
			ChatID:  job.Payload.ChatID,
			Content: result,
		}
	}
	return result, nil
}

// Session returns the live session for a key, loading persisted
// history on first use. Exposed for the CLI surfaces.
func (g *Gateway) Session(key, adapter, userID string) *model.Session {
	return g.session(key, adapter, userID)
}

func (g *Gateway) session(key, adapter, userID string) *model.Session {
	g.sessMu.Lock()
	defer g.sessMu.Unlock()

	if sess, ok := g.sessions[key]; ok {
		return sess
	}

	sess, err := g.store.Load(key)
	if err != nil {
		log.Printf("[gateway] session load failed: key=%s err=%v", key, err)
	}
	if sess == nil {
		now := time.Now()
		sess = &model.Session{
			ID:        key,
			Adapter:   adapter,
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	g.sessions[key] = sess
	return sess
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if err := g.cron.Start(ctx); err != nil {
		log.Printf("[gateway] cron start warning: %v", err)
	}

	go g.processLoop(ctx)
	go g.maintenanceLoop(ctx)

	log.Printf("[gateway] running on %s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port)

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			// Each message runs on its own goroutine so one session
			// blocked on an approval cannot stall the others. The
			// engine's per-session lock keeps each conversation
			// sequential.
			go g.handleInbound(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	log.Printf("[gateway] inbound from %s/%s: %s", msg.Channel, msg.SenderID, truncate(msg.Content, 80))

	sess := g.session(msg.SessionKey(), msg.Channel, msg.SenderID)
	result, err := g.engine.ProcessMessage(ctx, sess, msg.Content)
	if err != nil {
		log.Printf("[gateway] agent error: %v", err)
		result = "Sorry, I encountered an error processing your message."
	}

	if result != "" {
		g.bus.Outbound <- bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: result,
		}
	}
}

// maintenanceLoop prunes expired session trust and aged action logs.
func (g *Gateway) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := g.policy.CleanupExpired(); removed > 0 {
				log.Printf("[gateway] expired %d session trust grants", removed)
			}
			if removed := g.actions.CleanupOld(); removed > 0 {
				log.Printf("[gateway] removed %d old action log files", removed)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) Shutdown() error {
	g.cron.Stop()
	_ = g.channels.StopAll()
	if err := g.store.Close(); err != nil {
		log.Printf("[gateway] close session store warning: %v", err)
	}
	if err := g.auditLog.Close(); err != nil {
		log.Printf("[gateway] close audit log warning: %v", err)
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
