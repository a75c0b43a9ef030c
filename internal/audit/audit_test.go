package audit

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := NewWithKey(filepath.Join(t.TempDir(), "audit.db"), []byte("test-key"))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestWriteAndQuery(t *testing.T) {
	l := newTestLog(t)

	err := l.WriteToolExecution("sess-1", "telegram", "shell_exec",
		map[string]any{"command": "ls"}, true, "high", "ok (12ms)")
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	entries, err := l.QueryRecent(10, "", "")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.EventType != EventToolExecution || e.ToolName != "shell_exec" ||
		e.ApprovalStatus != "approved" || e.RiskLevel != "high" {
		t.Errorf("entry fields wrong: %+v", e)
	}
	if e.HMAC == "" || len(e.HMAC) != 16 {
		t.Errorf("hmac = %q, want 16 hex chars", e.HMAC)
	}
}

func TestQueryFilters(t *testing.T) {
	l := newTestLog(t)
	_ = l.WriteToolExecution("s1", "cli", "fs_read", nil, true, "low", "ok")
	_ = l.WriteToolExecution("s2", "cli", "fs_read", nil, true, "low", "ok")
	_ = l.WriteSecurityEvent(EventInjection, "s1", "matched pattern")

	bySession, err := l.QueryRecent(10, "s1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(bySession) != 2 {
		t.Errorf("session filter returned %d, want 2", len(bySession))
	}

	byType, err := l.QueryRecent(10, "", EventInjection)
	if err != nil {
		t.Fatal(err)
	}
	if len(byType) != 1 || byType[0].SessionID != "s1" {
		t.Errorf("event-type filter wrong: %+v", byType)
	}
}

func TestRedaction(t *testing.T) {
	l := newTestLog(t)
	err := l.WriteToolExecution("s1", "cli", "web_fetch", map[string]any{
		"url":     "https://example.com",
		"api_key": "verysecretvalue",
		"nested":  map[string]any{"password": "hunter2", "kept": "fine"},
		"keyish":  "sk-abcdefghijklmnopqrstuv",
	}, true, "medium", "ok")
	if err != nil {
		t.Fatal(err)
	}

	entries, _ := l.QueryRecent(1, "", "")
	var params map[string]any
	if err := json.Unmarshal([]byte(entries[0].Parameters), &params); err != nil {
		t.Fatalf("stored parameters not JSON: %v", err)
	}
	if params["api_key"] != "***" {
		t.Errorf("api_key not redacted: %v", params["api_key"])
	}
	if params["nested"].(map[string]any)["password"] != "***" {
		t.Error("nested password not redacted")
	}
	if params["nested"].(map[string]any)["kept"] != "fine" {
		t.Error("benign nested value was mangled")
	}
	if got := params["keyish"].(string); strings.Contains(got, "abcdefghijklmnop") {
		t.Errorf("key-shaped value not truncated: %q", got)
	}
	if params["url"] != "https://example.com" {
		t.Errorf("benign value changed: %v", params["url"])
	}
}

func TestVerifyIntegrity(t *testing.T) {
	l := newTestLog(t)
	for i := 0; i < 5; i++ {
		if err := l.WriteToolExecution("s1", "cli", "fs_read", nil, true, "low", "ok"); err != nil {
			t.Fatal(err)
		}
	}

	total, tampered, err := l.VerifyIntegrity(100)
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 || tampered != 0 {
		t.Fatalf("clean log: total=%d tampered=%d, want 5/0", total, tampered)
	}

	// Mutate a row behind the API's back.
	if _, err := l.db.Exec("UPDATE audit_log SET tool_name = 'shell_exec' WHERE id = 3"); err != nil {
		t.Fatal(err)
	}

	total, tampered, err = l.VerifyIntegrity(100)
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 || tampered != 1 {
		t.Errorf("after mutation: total=%d tampered=%d, want 5/1", total, tampered)
	}
}

func TestDailyStatsAndBlockedCount(t *testing.T) {
	l := newTestLog(t)
	_ = l.WriteToolExecution("s1", "cli", "fs_read", nil, true, "low", "ok")
	_ = l.WriteToolExecution("s1", "cli", "shell_exec", nil, false, "high", "denied")
	_ = l.WriteSecurityEvent(EventSecurityBlock, "s1", "rm -rf /")

	stats, err := l.GetDailyStats("")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalEvents != 3 || stats.ToolCalls != 2 {
		t.Errorf("stats events=%d calls=%d, want 3/2", stats.TotalEvents, stats.ToolCalls)
	}
	if stats.Approved != 1 || stats.Denied != 1 || stats.SecurityEvents != 1 {
		t.Errorf("stats approved=%d denied=%d security=%d, want 1/1/1",
			stats.Approved, stats.Denied, stats.SecurityEvents)
	}
	if stats.RiskDistribution["high"] != 1 {
		t.Errorf("risk distribution: %v", stats.RiskDistribution)
	}

	approved, denied, err := l.GetBlockedCount(7)
	if err != nil {
		t.Fatal(err)
	}
	if approved != 1 || denied != 1 {
		t.Errorf("blocked count approved=%d denied=%d, want 1/1", approved, denied)
	}
}
