package security

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stellarlinkco/aide/internal/tool"
)

// Decision methods.
const (
	MethodAuto         = "auto"
	MethodSessionTrust = "session_trust"
	MethodPending      = "pending"
)

// Decision is the outcome of a policy check.
type Decision struct {
	Approved bool
	Reason   string
	Method   string
}

// PolicyConfig holds the knobs driving approval decisions.
type PolicyConfig struct {
	AutoApproveLevels   []string // risk level names auto-approved outright
	RequireApprovalFor  []string // tool names that always need a human
	SessionTrustEnabled bool
	TrustTimeout        time.Duration
}

type sessionTrust struct {
	level     tool.RiskLevel
	grantedAt time.Time
	timeout   time.Duration
}

func (t *sessionTrust) expired(now time.Time) bool {
	if t.grantedAt.IsZero() {
		return true
	}
	return now.Sub(t.grantedAt) > t.timeout
}

// Policy decides whether a tool call is auto-approved, covered by
// session trust, or needs a human. The trust map is process-wide state
// shared by concurrent sessions, so it stays behind a mutex.
type Policy struct {
	mu        sync.Mutex
	cfg       PolicyConfig
	auto      map[tool.RiskLevel]bool
	mandatory map[string]bool
	trusts    map[string]*sessionTrust

	now func() time.Time // injectable for tests
}

func NewPolicy(cfg PolicyConfig) *Policy {
	if cfg.TrustTimeout <= 0 {
		cfg.TrustTimeout = 30 * time.Minute
	}
	p := &Policy{
		cfg:       cfg,
		auto:      make(map[tool.RiskLevel]bool),
		mandatory: make(map[string]bool),
		trusts:    make(map[string]*sessionTrust),
		now:       time.Now,
	}
	for _, name := range cfg.AutoApproveLevels {
		level, err := tool.ParseRiskLevel(name)
		if err != nil {
			log.Printf("[approval] ignoring auto-approve level: %v", err)
			continue
		}
		p.auto[level] = true
	}
	for _, name := range cfg.RequireApprovalFor {
		p.mandatory[name] = true
	}
	return p
}

// Check is deterministic and side-effect free for a given config and
// unexpired trust state.
func (p *Policy) Check(toolName string, risk tool.RiskLevel, sessionID string) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Mandatory approval overrides auto-approve and session trust.
	if p.mandatory[toolName] {
		return Decision{
			Approved: false,
			Reason:   fmt.Sprintf("Tool '%s' requires explicit approval", toolName),
			Method:   MethodPending,
		}
	}

	if p.auto[risk] {
		return Decision{
			Approved: true,
			Reason:   fmt.Sprintf("Auto-approved: %s is in auto-approve list", risk),
			Method:   MethodAuto,
		}
	}

	if p.cfg.SessionTrustEnabled {
		if current := p.trustLevelLocked(sessionID); risk <= current {
			return Decision{
				Approved: true,
				Reason:   fmt.Sprintf("Session trust: %s covers %s", current, risk),
				Method:   MethodSessionTrust,
			}
		}
	}

	return Decision{
		Approved: false,
		Reason:   fmt.Sprintf("Requires approval: %s (%s)", toolName, risk),
		Method:   MethodPending,
	}
}

// ElevateTrust raises the session's auto-approvable ceiling and
// restarts the timeout window. Called when a user answers an approval
// prompt with "trust this level".
func (p *Policy) ElevateTrust(sessionID string, level tool.RiskLevel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.trusts[sessionID]
	if t == nil {
		t = &sessionTrust{timeout: p.cfg.TrustTimeout}
		p.trusts[sessionID] = t
	}
	t.level = level
	t.grantedAt = p.now()
	t.timeout = p.cfg.TrustTimeout
	log.Printf("[approval] session %.8s trust elevated to %s for %s", sessionID, level, t.timeout)
}

// TrustLevel returns the session's effective trust, lazily expiring
// stale grants back to LOW. No background timer exists on purpose.
func (p *Policy) TrustLevel(sessionID string) tool.RiskLevel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trustLevelLocked(sessionID)
}

func (p *Policy) trustLevelLocked(sessionID string) tool.RiskLevel {
	t := p.trusts[sessionID]
	if t == nil {
		return tool.RiskLow
	}
	if t.expired(p.now()) {
		t.level = tool.RiskLow
		t.grantedAt = time.Time{}
	}
	return t.level
}

// CleanupExpired drops expired trust entries to bound map growth.
// Returns the number removed.
func (p *Policy) CleanupExpired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	removed := 0
	for sid, t := range p.trusts {
		if t.expired(now) {
			delete(p.trusts, sid)
			removed++
		}
	}
	return removed
}
