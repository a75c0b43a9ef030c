package actionlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func readEntries(t *testing.T, dir string) []map[string]any {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "actions-*.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	var out []map[string]any
	for _, path := range matches {
		f, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var entry map[string]any
			if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
				t.Fatalf("bad JSONL line: %v", err)
			}
			out = append(out, entry)
		}
		f.Close()
	}
	return out
}

func TestLogToolCall(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Config{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}

	l.LogToolCall("s1", "fs_read", map[string]any{
		"path":    "/tmp/x",
		"api_key": "secretvalue",
	}, "file contents here", "ok", 42*time.Millisecond, "")

	entries := readEntries(t, dir)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e["tool"] != "fs_read" || e["status"] != "ok" {
		t.Errorf("entry fields wrong: %v", e)
	}
	if e["duration_ms"].(float64) != 42 {
		t.Errorf("duration_ms = %v, want 42", e["duration_ms"])
	}
	params := e["params"].(map[string]any)
	if params["api_key"] != "***REDACTED***" {
		t.Errorf("api_key not redacted: %v", params["api_key"])
	}
	if _, hasResult := e["result"]; hasResult {
		t.Error("full result recorded without include_full_result")
	}
	if e["result_size"].(float64) != float64(len("file contents here")) {
		t.Errorf("result_size = %v", e["result_size"])
	}
}

func TestIncludeFullResult(t *testing.T) {
	dir := t.TempDir()
	l, _ := New(Config{Dir: dir, IncludeFullResult: true})
	l.LogToolCall("s1", "fs_read", nil, "the output", "ok", 0, "")

	entries := readEntries(t, dir)
	if entries[0]["result"] != "the output" {
		t.Errorf("result = %v, want full output", entries[0]["result"])
	}
}

func TestMutationsOnlyMode(t *testing.T) {
	dir := t.TempDir()
	l, _ := New(Config{Dir: dir, Mode: ModeMutationsOnly})

	l.LogToolCall("s1", "fs_read", nil, "", "ok", 0, "")
	l.LogToolCall("s1", "fs_write", nil, "", "ok", 0, "")
	l.LogToolCall("s1", "shell_exec", nil, "", "ok", 0, "")

	entries := readEntries(t, dir)
	if len(entries) != 2 {
		t.Fatalf("mutations_only recorded %d entries, want 2", len(entries))
	}
}

func TestConversationOnlyInFullMode(t *testing.T) {
	dir := t.TempDir()

	l, _ := New(Config{Dir: dir, Mode: ModeToolsOnly})
	l.LogConversation("s1", "user", "hello")
	if entries := readEntries(t, dir); len(entries) != 0 {
		t.Fatalf("tools_only mode recorded a conversation turn")
	}

	l2, _ := New(Config{Dir: dir, Mode: ModeFull})
	l2.LogConversation("s1", "user", "hello there")
	entries := readEntries(t, dir)
	if len(entries) != 1 {
		t.Fatalf("full mode recorded %d entries, want 1", len(entries))
	}
	if entries[0]["content_preview"] != "hello there" {
		t.Errorf("preview = %v", entries[0]["content_preview"])
	}
	if _, hasContent := entries[0]["content"]; hasContent {
		t.Error("full content must never be stored")
	}
}

func TestCleanupOld(t *testing.T) {
	dir := t.TempDir()
	l, _ := New(Config{Dir: dir, RetentionDays: 7})

	old := filepath.Join(dir, "actions-2020-01-01.jsonl")
	if err := os.WriteFile(old, []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	recent := filepath.Join(dir, "actions-"+time.Now().UTC().Format("2006-01-02")+".jsonl")
	if err := os.WriteFile(recent, []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if removed := l.CleanupOld(); removed != 1 {
		t.Errorf("CleanupOld removed %d, want 1", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old file still exists")
	}
	if _, err := os.Stat(recent); err != nil {
		t.Error("recent file was removed")
	}
}
