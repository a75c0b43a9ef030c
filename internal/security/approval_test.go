package security

import (
	"testing"
	"time"

	"github.com/stellarlinkco/aide/internal/tool"
)

func newTestPolicy(cfg PolicyConfig) (*Policy, *time.Time) {
	p := NewPolicy(cfg)
	now := time.Now()
	p.now = func() time.Time { return now }
	return p, &now
}

func TestPolicyAutoApprove(t *testing.T) {
	p, _ := newTestPolicy(PolicyConfig{AutoApproveLevels: []string{"low"}})

	d := p.Check("fs_read", tool.RiskLow, "s1")
	if !d.Approved || d.Method != "auto" {
		t.Errorf("low risk should auto-approve, got %+v", d)
	}

	d = p.Check("shell_exec", tool.RiskHigh, "s1")
	if d.Approved || d.Method != "pending" {
		t.Errorf("high risk without trust should be pending, got %+v", d)
	}
}

func TestPolicyMandatoryApprovalOverridesEverything(t *testing.T) {
	p, _ := newTestPolicy(PolicyConfig{
		AutoApproveLevels:   []string{"low", "medium", "high", "critical"},
		RequireApprovalFor:  []string{"shell_exec"},
		SessionTrustEnabled: true,
	})
	p.ElevateTrust("s1", tool.RiskCritical)

	d := p.Check("shell_exec", tool.RiskLow, "s1")
	if d.Approved {
		t.Errorf("mandatory-approval tool must stay pending, got %+v", d)
	}
}

func TestPolicySessionTrust(t *testing.T) {
	p, _ := newTestPolicy(PolicyConfig{
		AutoApproveLevels:   []string{"low"},
		SessionTrustEnabled: true,
	})

	if d := p.Check("fs_write", tool.RiskMedium, "s1"); d.Approved {
		t.Fatalf("medium risk should be pending before trust, got %+v", d)
	}

	p.ElevateTrust("s1", tool.RiskHigh)

	d := p.Check("fs_write", tool.RiskMedium, "s1")
	if !d.Approved || d.Method != "session_trust" {
		t.Errorf("trusted session should cover medium risk, got %+v", d)
	}
	if d := p.Check("deploy", tool.RiskCritical, "s1"); d.Approved {
		t.Errorf("critical exceeds the trusted ceiling, got %+v", d)
	}
	// Trust is per session.
	if d := p.Check("fs_write", tool.RiskMedium, "s2"); d.Approved {
		t.Errorf("trust must not leak across sessions, got %+v", d)
	}
}

func TestPolicyDeterministic(t *testing.T) {
	p, _ := newTestPolicy(PolicyConfig{
		AutoApproveLevels:   []string{"low"},
		SessionTrustEnabled: true,
	})
	p.ElevateTrust("s1", tool.RiskMedium)

	first := p.Check("fs_write", tool.RiskMedium, "s1")
	for i := 0; i < 10; i++ {
		if d := p.Check("fs_write", tool.RiskMedium, "s1"); d != first {
			t.Fatalf("repeated check changed: %+v vs %+v", d, first)
		}
	}
}

func TestTrustExpiresLazily(t *testing.T) {
	p, now := newTestPolicy(PolicyConfig{
		SessionTrustEnabled: true,
		TrustTimeout:        30 * time.Minute,
	})
	p.ElevateTrust("s1", tool.RiskHigh)

	if lvl := p.TrustLevel("s1"); lvl != tool.RiskHigh {
		t.Fatalf("fresh grant level = %v, want high", lvl)
	}

	*now = now.Add(31 * time.Minute)
	if lvl := p.TrustLevel("s1"); lvl != tool.RiskLow {
		t.Errorf("expired grant level = %v, want low", lvl)
	}
	if d := p.Check("fs_write", tool.RiskHigh, "s1"); d.Approved {
		t.Errorf("expired trust must not approve, got %+v", d)
	}
}

func TestElevateRestartsWindow(t *testing.T) {
	p, now := newTestPolicy(PolicyConfig{
		SessionTrustEnabled: true,
		TrustTimeout:        30 * time.Minute,
	})
	p.ElevateTrust("s1", tool.RiskHigh)

	*now = now.Add(20 * time.Minute)
	p.ElevateTrust("s1", tool.RiskHigh)

	*now = now.Add(20 * time.Minute) // 40min after first grant, 20 after second
	if lvl := p.TrustLevel("s1"); lvl != tool.RiskHigh {
		t.Errorf("re-elevation should restart the window, got %v", lvl)
	}
}

func TestCleanupExpired(t *testing.T) {
	p, now := newTestPolicy(PolicyConfig{
		SessionTrustEnabled: true,
		TrustTimeout:        10 * time.Minute,
	})
	p.ElevateTrust("old", tool.RiskMedium)
	*now = now.Add(20 * time.Minute)
	p.ElevateTrust("fresh", tool.RiskMedium)

	if removed := p.CleanupExpired(); removed != 1 {
		t.Errorf("CleanupExpired removed %d, want 1", removed)
	}
	if lvl := p.TrustLevel("fresh"); lvl != tool.RiskMedium {
		t.Errorf("fresh session trust lost: %v", lvl)
	}
}
