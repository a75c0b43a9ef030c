// Package agent runs the tool-calling loop that turns user messages
// into assistant replies. Every tool call passes through the security
// pipeline: availability, sandbox, approval policy, audit, action log.
package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stellarlinkco/aide/internal/actionlog"
	"github.com/stellarlinkco/aide/internal/audit"
	"github.com/stellarlinkco/aide/internal/config"
	"github.com/stellarlinkco/aide/internal/memory"
	"github.com/stellarlinkco/aide/internal/model"
	"github.com/stellarlinkco/aide/internal/security"
	"github.com/stellarlinkco/aide/internal/tool"
)

const roundsExhaustedReply = "I've reached the maximum number of tool call rounds. Please try a simpler request."

// ApprovalRequest describes a pending tool call awaiting a human
// decision.
type ApprovalRequest struct {
	SessionID string
	Tool      string
	Params    map[string]any
	Risk      tool.RiskLevel
	Reason    string
}

// ApprovalFunc resolves a pending approval. Implementations block
// until the user answers or their own timeout fires, and fail closed.
type ApprovalFunc func(ctx context.Context, req ApprovalRequest) security.Answer

// Options wires an Engine. All collaborators are expected; Approve and
// Context fall back to defaults when nil.
type Options struct {
	Completer model.Completer
	Tools     *tool.System
	Sandbox   *security.Sandbox
	Policy    *security.Policy
	Audit     *audit.Log
	Actions   *actionlog.Logger
	Sessions  *memory.SessionStore
	Context   *memory.ContextBuilder
	// SkillPrompts returns the skill prompts active for a user message.
	SkillPrompts func(userText string) []string
	// Approve handles approval requests. Nil gets a conservative
	// default: auto-approve low risk, deny everything else.
	Approve ApprovalFunc
	Config  *config.Config
}

type Engine struct {
	completer    model.Completer
	tools        *tool.System
	sandbox      *security.Sandbox
	policy       *security.Policy
	audit        *audit.Log
	actions      *actionlog.Logger
	sessions     *memory.SessionStore
	contextB     *memory.ContextBuilder
	skillPrompts func(string) []string
	approve      ApprovalFunc
	cfg          *config.Config

	disabled map[string]bool

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(opts Options) *Engine {
	e := &Engine{
		completer:    opts.Completer,
		tools:        opts.Tools,
		sandbox:      opts.Sandbox,
		policy:       opts.Policy,
		audit:        opts.Audit,
		actions:      opts.Actions,
		sessions:     opts.Sessions,
		contextB:     opts.Context,
		skillPrompts: opts.SkillPrompts,
		approve:      opts.Approve,
		cfg:          opts.Config,
		disabled:     make(map[string]bool),
		locks:        make(map[string]*sync.Mutex),
	}
	if e.approve == nil {
		e.approve = DefaultApproval
	}
	if e.contextB == nil {
		e.contextB = memory.NewContextBuilder(opts.Config.Agent.Workspace)
	}
	for _, name := range opts.Config.Security.DisabledTools {
		e.disabled[name] = true
	}
	return e
}

// DefaultApproval auto-approves low-risk tools and denies everything
// else. Used when no interactive approval surface is wired.
func DefaultApproval(ctx context.Context, req ApprovalRequest) security.Answer {
	return security.Answer{Approved: req.Risk == tool.RiskLow}
}

// sessionLock returns the per-session mutex, creating it on first use.
// One message is processed at a time per session.
func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[sessionID] = l
	}
	return l
}

// ProcessMessage runs the agent loop for one user message and returns
// the assistant's final text.
func (e *Engine) ProcessMessage(ctx context.Context, sess *model.Session, userText string) (string, error) {
	l := e.sessionLock(sess.ID)
	l.Lock()
	defer l.Unlock()
	return e.processLocked(ctx, sess, userText)
}

func (e *Engine) processLocked(ctx context.Context, sess *model.Session, userText string) (string, error) {
	userText = security.SanitizeUserInput(userText)

	sess.Append(model.Message{Role: model.RoleUser, Content: userText})
	if e.actions != nil {
		e.actions.LogConversation(sess.ID, "user", userText)
	}

	maxRounds := e.cfg.Agent.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = config.DefaultMaxToolRounds
	}

	for round := 0; round < maxRounds; round++ {
		resp, err := e.completer.Complete(ctx, model.Request{
			Messages:  e.buildContext(sess, userText),
			Tools:     e.toolDefs(),
			SessionID: sess.ID,
		})
		if err != nil {
			return "", fmt.Errorf("model call: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			content := resp.Content
			sess.Append(model.Message{Role: model.RoleAssistant, Content: content})
			if e.actions != nil {
				e.actions.LogConversation(sess.ID, "assistant", content)
			}
			e.saveSession(sess)
			return content, nil
		}

		sess.Append(model.Message{
			Role:      model.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// Tool calls run strictly in order; each result lands in the
		// session before the next call starts.
		for _, tc := range resp.ToolCalls {
			result := e.handleToolCall(ctx, sess, tc)

			output := security.SanitizeToolOutput(result.ModelText())
			if suspicious, matched := security.CheckInjection(output); suspicious {
				log.Printf("[agent] injection pattern in tool output: tool=%s pattern=%q", tc.Name, matched)
				if e.audit != nil {
					e.audit.WriteSecurityEvent(audit.EventInjection, sess.ID,
						fmt.Sprintf("Tool %s output matched: %s", tc.Name, matched))
				}
			}

			sess.Append(model.Message{
				Role:       model.RoleTool,
				Content:    output,
				Name:       tc.Name,
				ToolCallID: tc.ID,
			})
		}
	}

	// Out of rounds. One last call without tools so the model has to
	// answer in text.
	log.Printf("[agent] tool rounds exhausted: session=%s rounds=%d", sess.ID, maxRounds)
	content := ""
	if resp, err := e.completer.Complete(ctx, model.Request{
		Messages:  e.buildContext(sess, userText),
		SessionID: sess.ID,
	}); err == nil {
		content = resp.Content
	}
	if content == "" {
		content = roundsExhaustedReply
	}

	sess.Append(model.Message{Role: model.RoleAssistant, Content: content})
	if e.actions != nil {
		e.actions.LogConversation(sess.ID, "assistant", content)
	}
	e.saveSession(sess)
	return content, nil
}

// ExecuteTool runs a single tool outside a conversation, for scheduled
// jobs. Sandbox checks still apply; there is no interactive approval,
// so anything the policy cannot clear on its own is denied.
func (e *Engine) ExecuteTool(ctx context.Context, toolName string, params map[string]any) (string, error) {
	sess := &model.Session{ID: "scheduler", Adapter: "scheduler"}
	result := e.handleToolCall(ctx, sess, model.ToolCall{ID: "direct", Name: toolName, Args: params})
	if result.IsOK() {
		return result.Output, nil
	}
	if result.Err != "" {
		return "", fmt.Errorf("%s", result.Err)
	}
	return "", fmt.Errorf("tool execution failed")
}

// handleToolCall runs the full security pipeline around one tool call.
// Exactly one audit record is written per call.
func (e *Engine) handleToolCall(ctx context.Context, sess *model.Session, tc model.ToolCall) tool.Result {
	t, ok := e.tools.Registry().Get(tc.Name)
	if !ok {
		return tool.Fail("Unknown tool: " + tc.Name)
	}
	risk := t.Risk()

	// Layer 0: availability.
	if e.disabled[tc.Name] {
		e.auditTool(sess, tc, false, risk, "Disabled by configuration")
		return tool.Denied(fmt.Sprintf("Tool '%s' is disabled by configuration", tc.Name))
	}

	// Layer 1: sandbox pre-check.
	if e.sandbox != nil {
		if tc.Name == "shell_exec" {
			command, _ := tc.Args["command"].(string)
			if allowed, reason := e.sandbox.IsCommandAllowed(command); !allowed {
				e.auditTool(sess, tc, false, risk, "Blocked by sandbox: "+reason)
				return tool.Denied("Command blocked by sandbox policy")
			}
		}
		switch tc.Name {
		case "fs_read", "fs_write", "fs_search":
			path, _ := tc.Args["path"].(string)
			if path == "" {
				path, _ = tc.Args["directory"].(string)
			}
			if path != "" {
				op := "read"
				if tc.Name == "fs_write" {
					op = "write"
				}
				if allowed, reason := e.sandbox.ValidateFileOperation(path, op); !allowed {
					e.auditTool(sess, tc, false, risk, "Blocked: "+reason)
					return tool.Denied(reason)
				}
			}
		}
	}

	// Layer 2: approval.
	decision := e.policy.Check(tc.Name, risk, sess.ID)
	if !decision.Approved {
		log.Printf("[agent] approval requested: tool=%s risk=%s reason=%s", tc.Name, risk, decision.Reason)
		answer := e.approve(ctx, ApprovalRequest{
			SessionID: sess.ID,
			Tool:      tc.Name,
			Params:    tc.Args,
			Risk:      risk,
			Reason:    decision.Reason,
		})
		if answer.Approved && answer.Trust {
			e.policy.ElevateTrust(sess.ID, risk)
			if e.audit != nil {
				e.audit.WriteSecurityEvent(audit.EventTrustElevated, sess.ID,
					fmt.Sprintf("Session trusted up to %s via tool %s", risk, tc.Name))
			}
		}
		if !answer.Approved {
			log.Printf("[agent] approval denied: tool=%s risk=%s", tc.Name, risk)
			e.auditTool(sess, tc, false, risk, "")
			if e.actions != nil {
				e.actions.LogToolCall(sess.ID, tc.Name, tc.Args, "", "denied", 0, "")
			}
			return tool.Denied("User denied the action")
		}
	}

	// Execute with timing.
	start := time.Now()
	result := e.tools.Execute(ctx, tc.Name, tc.Args, e.toolContext(sess.ID))
	duration := time.Since(start)

	// Layer 3: audit.
	status := "ok"
	errText := ""
	if !result.IsOK() {
		status = "error"
		errText = result.Err
	}
	e.auditTool(sess, tc, true, risk, fmt.Sprintf("%s (%dms)", status, duration.Milliseconds()))

	// Layer 4: action history.
	if e.actions != nil {
		e.actions.LogToolCall(sess.ID, tc.Name, tc.Args, result.Output, status, duration, errText)
	}

	return result
}

func (e *Engine) auditTool(sess *model.Session, tc model.ToolCall, approved bool, risk tool.RiskLevel, summary string) {
	if e.audit == nil {
		return
	}
	if err := e.audit.WriteToolExecution(sess.ID, sess.Adapter, tc.Name, tc.Args, approved, risk.String(), summary); err != nil {
		log.Printf("[agent] audit write failed: %v", err)
	}
}

func (e *Engine) buildContext(sess *model.Session, userText string) []model.Message {
	var prompts []string
	if e.skillPrompts != nil {
		prompts = e.skillPrompts(userText)
	}
	return e.contextB.Build(sess, prompts)
}

func (e *Engine) toolDefs() []model.ToolDef {
	schemas := e.tools.Registry().Schemas()
	defs := make([]model.ToolDef, 0, len(schemas))
	for _, s := range schemas {
		if e.disabled[s.Name] {
			continue
		}
		defs = append(defs, model.ToolDef{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.Parameters,
		})
	}
	return defs
}

func (e *Engine) toolContext(sessionID string) tool.Context {
	return tool.Context{
		SessionID:        sessionID,
		WorkingDir:       e.cfg.Agent.Workspace,
		AllowedDirs:      e.cfg.Security.AllowedDirectories,
		MaxExecutionTime: e.cfg.Tools.ExecTimeout,
		MaxOutputSize:    e.cfg.Tools.MaxOutputKB * 1024,
	}
}

// saveSession persists the session. Persistence failures never break
// the reply path.
func (e *Engine) saveSession(sess *model.Session) {
	if e.sessions == nil {
		return
	}
	if err := e.sessions.Save(sess); err != nil {
		log.Printf("[agent] session save failed: session=%s err=%v", sess.ID, err)
	}
}
