package actionlog

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Recording modes.
const (
	ModeToolsOnly     = "tools_only"     // every tool call
	ModeFull          = "full"           // tool calls plus conversation turns
	ModeMutationsOnly = "mutations_only" // only calls with side effects
)

// Tools considered mutations for mutations_only mode.
var mutationTools = map[string]bool{
	"fs_write":   true,
	"shell_exec": true,
}

var sensitiveKeyFragments = []string{
	"api_key", "api-key", "apikey",
	"password", "passwd", "secret",
	"token", "credential", "auth",
}

// Config controls what the logger records.
type Config struct {
	Dir               string
	Mode              string
	IncludeFullResult bool
	MaxFileSizeMB     int
	RetentionDays     int
}

// Logger appends operation history to daily JSONL files. It is
// fire-and-forget telemetry, separate from the audit log: write
// failures are logged and swallowed.
type Logger struct {
	cfg Config
	mu  sync.Mutex

	now func() time.Time
}

func New(cfg Config) (*Logger, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeToolsOnly
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 50
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create action log dir: %w", err)
	}
	return &Logger{cfg: cfg, now: time.Now}, nil
}

func redactValues(data any) any {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if sensitiveKey(k) {
				out[k] = "***REDACTED***"
			} else {
				out[k] = redactValues(val)
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = redactValues(val)
		}
		return out
	default:
		return data
	}
}

func sensitiveKey(k string) bool {
	lower := strings.ToLower(k)
	for _, p := range sensitiveKeyFragments {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func (l *Logger) shouldLogTool(toolName string) bool {
	if l.cfg.Mode == ModeMutationsOnly {
		return mutationTools[toolName]
	}
	return true
}

// LogToolCall records one tool execution.
func (l *Logger) LogToolCall(sessionID, toolName string, params map[string]any, resultOutput, status string, duration time.Duration, errText string) {
	if !l.shouldLogTool(toolName) {
		return
	}

	entry := map[string]any{
		"ts":          l.now().UTC().Format(time.RFC3339Nano),
		"sid":         sessionID,
		"type":        "tool_call",
		"tool":        toolName,
		"params":      redactValues(params),
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	}
	if errText != "" {
		if len(errText) > 500 {
			errText = errText[:500]
		}
		entry["error"] = errText
	}
	if l.cfg.IncludeFullResult {
		if len(resultOutput) > 10000 {
			resultOutput = resultOutput[:10000]
		}
		entry["result"] = resultOutput
	} else {
		entry["result_size"] = len(resultOutput)
	}

	l.writeEntry(entry)
}

// LogConversation records a conversation turn. Only active in full
// mode; content is stored as a size plus a short preview, never whole.
func (l *Logger) LogConversation(sessionID, role, content string) {
	if l.cfg.Mode != ModeFull {
		return
	}
	preview := content
	if len(preview) > 200 {
		preview = preview[:200]
	}
	l.writeEntry(map[string]any{
		"ts":              l.now().UTC().Format(time.RFC3339Nano),
		"sid":             sessionID,
		"type":            "message",
		"role":            role,
		"content_size":    len(content),
		"content_preview": preview,
	})
}

// logPath picks today's file, adding a sequence suffix once the
// current file exceeds the size cap.
func (l *Logger) logPath() string {
	day := l.now().UTC().Format("2006-01-02")
	path := filepath.Join(l.cfg.Dir, "actions-"+day+".jsonl")

	if info, err := os.Stat(path); err == nil {
		if info.Size() >= int64(l.cfg.MaxFileSizeMB)*1024*1024 {
			for i := 1; i < 100; i++ {
				alt := filepath.Join(l.cfg.Dir, fmt.Sprintf("actions-%s-%d.jsonl", day, i))
				if _, err := os.Stat(alt); os.IsNotExist(err) {
					return alt
				}
			}
		}
	}
	return path
}

func (l *Logger) writeEntry(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[actionlog] marshal entry: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.logPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("[actionlog] open log file: %v", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("[actionlog] write entry: %v", err)
	}
}

// CleanupOld removes daily files older than the retention window.
// Returns the number of files removed.
func (l *Logger) CleanupOld() int {
	if l.cfg.RetentionDays <= 0 {
		return 0
	}
	matches, err := filepath.Glob(filepath.Join(l.cfg.Dir, "actions-*.jsonl"))
	if err != nil {
		return 0
	}

	removed := 0
	cutoff := l.now().UTC().AddDate(0, 0, -l.cfg.RetentionDays)
	for _, path := range matches {
		name := strings.TrimSuffix(filepath.Base(path), ".jsonl")
		name = strings.TrimPrefix(name, "actions-")
		if len(name) < 10 {
			continue
		}
		fileDate, err := time.Parse("2006-01-02", name[:10])
		if err != nil {
			continue
		}
		if fileDate.Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		log.Printf("[actionlog] removed %d old log files", removed)
	}
	return removed
}
