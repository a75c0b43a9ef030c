package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Event types recorded in the audit trail.
const (
	EventToolExecution = "tool_execution"
	EventSecurityBlock = "security:block"
	EventInjection     = "security:injection_detected"
	EventTrustElevated = "security:trust_elevated"
)

// Parameter keys whose values are masked before they touch storage.
var redactKeys = []string{
	"api_key", "api-key", "apikey", "password", "passwd",
	"secret", "token", "credential", "auth_token",
	"access_key", "private_key",
}

// Entry is one append-only audit row.
type Entry struct {
	ID             int64
	Timestamp      string
	EventType      string
	SessionID      string
	Source         string
	ToolName       string
	Parameters     string // redacted JSON
	ResultSummary  string
	ApprovalStatus string
	RiskLevel      string
	HMAC           string
}

// Log is a tamper-evident, append-only audit trail in SQLite. Each row
// carries a truncated HMAC over its security-relevant fields, keyed by
// a machine fingerprint. This detects casual tampering, it is not a
// guarantee against a determined attacker who knows the key scheme.
type Log struct {
	db  *sql.DB
	key []byte
	mu  sync.Mutex // serializes physical writes
}

// New opens or creates the audit database at path with the machine key.
func New(path string) (*Log, error) {
	return NewWithKey(path, machineKey())
}

// NewWithKey opens the audit database with an explicit HMAC key.
func NewWithKey(path string, key []byte) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	l := &Log{db: db, key: key}
	if err := l.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := l.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := l.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (l *Log) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			event_type TEXT NOT NULL,
			session_id TEXT,
			source TEXT,
			tool_name TEXT,
			parameters TEXT,
			result_summary TEXT,
			approval_status TEXT,
			risk_level TEXT,
			hmac TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_log(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_tool ON audit_log(tool_name)`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("init audit schema: %w", err)
		}
	}
	return nil
}

func (l *Log) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// machineKey derives the HMAC key from user@hostname.
func machineKey() []byte {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	sum := sha256.Sum256([]byte(username + "@" + hostname))
	return sum[:]
}

func (l *Log) computeHMAC(ts, eventType, sessionID, toolName, params, approvalStatus string) string {
	mac := hmac.New(sha256.New, l.key)
	fmt.Fprintf(mac, "%s|%s|%s|%s|%s|%s", ts, eventType, sessionID, toolName, params, approvalStatus)
	return hex.EncodeToString(mac.Sum(nil))[:16]
}

// redactSensitive recursively masks values whose keys look secret-like
// and truncates key-shaped string values.
func redactSensitive(data any) any {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if secretKey(k) {
				out[k] = "***"
			} else {
				out[k] = redactSensitive(val)
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = redactSensitive(val)
		}
		return out
	case string:
		if len(v) > 20 {
			for _, prefix := range []string{"sk-", "pk-", "api-", "token-"} {
				if strings.HasPrefix(v, prefix) {
					return v[:6] + "***"
				}
			}
		}
		return v
	default:
		return data
	}
}

func secretKey(k string) bool {
	lower := strings.ToLower(k)
	for _, p := range redactKeys {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Record describes one event to append.
type Record struct {
	EventType      string
	SessionID      string
	Source         string
	ToolName       string
	Parameters     map[string]any
	ResultSummary  string
	ApprovalStatus string
	RiskLevel      string
}

// Write appends one entry. Parameters are redacted before they are
// serialized; the HMAC covers the stored form.
func (l *Log) Write(r Record) error {
	ts := time.Now().UTC().Format(time.RFC3339Nano)

	params := r.Parameters
	if params == nil {
		params = map[string]any{}
	}
	paramsJSON, err := json.Marshal(redactSensitive(params))
	if err != nil {
		paramsJSON = []byte("{}")
	}

	summary := r.ResultSummary
	if len(summary) > 500 {
		summary = summary[:500]
	}

	entryHMAC := l.computeHMAC(ts, r.EventType, r.SessionID, r.ToolName, string(paramsJSON), r.ApprovalStatus)

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.db.Exec(
		`INSERT INTO audit_log
		 (timestamp, event_type, session_id, source, tool_name,
		  parameters, result_summary, approval_status, risk_level, hmac)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts, r.EventType, r.SessionID, r.Source, r.ToolName,
		string(paramsJSON), summary, r.ApprovalStatus, r.RiskLevel, entryHMAC,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// WriteToolExecution appends a tool execution event.
func (l *Log) WriteToolExecution(sessionID, source, toolName string, params map[string]any, approved bool, riskLevel, resultSummary string) error {
	status := "denied"
	if approved {
		status = "approved"
	}
	return l.Write(Record{
		EventType:      EventToolExecution,
		SessionID:      sessionID,
		Source:         source,
		ToolName:       toolName,
		Parameters:     params,
		ResultSummary:  resultSummary,
		ApprovalStatus: status,
		RiskLevel:      riskLevel,
	})
}

// WriteSecurityEvent appends a security event with a detail string.
func (l *Log) WriteSecurityEvent(eventType, sessionID, details string) error {
	return l.Write(Record{
		EventType:     eventType,
		SessionID:     sessionID,
		ResultSummary: details,
	})
}

// QueryRecent returns the newest entries, optionally filtered by
// session and event type.
func (l *Log) QueryRecent(limit int, sessionID, eventType string) ([]Entry, error) {
	query := "SELECT id, timestamp, event_type, session_id, source, tool_name, parameters, result_summary, approval_status, risk_level, hmac FROM audit_log"
	var conds []string
	var args []any
	if sessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, sessionID)
	}
	if eventType != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, eventType)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.SessionID, &e.Source,
			&e.ToolName, &e.Parameters, &e.ResultSummary, &e.ApprovalStatus, &e.RiskLevel, &e.HMAC); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// VerifyIntegrity recomputes the HMAC of the newest entries and counts
// mismatches. Returns (checked, tampered).
func (l *Log) VerifyIntegrity(limit int) (int, int, error) {
	entries, err := l.QueryRecent(limit, "", "")
	if err != nil {
		return 0, 0, err
	}
	tampered := 0
	for _, e := range entries {
		expected := l.computeHMAC(e.Timestamp, e.EventType, e.SessionID, e.ToolName, e.Parameters, e.ApprovalStatus)
		if expected != e.HMAC {
			tampered++
			log.Printf("[audit] tamper detected on entry %d", e.ID)
		}
	}
	return len(entries), tampered, nil
}

// DailyStats aggregates activity for one UTC day (YYYY-MM-DD).
type DailyStats struct {
	Date             string
	TotalEvents      int
	ToolCalls        int
	Approved         int
	Denied           int
	SecurityEvents   int
	RiskDistribution map[string]int
}

func (l *Log) GetDailyStats(date string) (*DailyStats, error) {
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	stats := &DailyStats{
		Date:             date,
		RiskDistribution: map[string]int{"low": 0, "medium": 0, "high": 0, "critical": 0},
	}
	like := date + "%"

	if err := l.db.QueryRow(
		"SELECT COUNT(*) FROM audit_log WHERE timestamp LIKE ?", like,
	).Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("daily stats: %w", err)
	}

	rows, err := l.db.Query(
		`SELECT approval_status, COUNT(*) FROM audit_log
		 WHERE timestamp LIKE ? AND event_type = ?
		 GROUP BY approval_status`, like, EventToolExecution)
	if err != nil {
		return nil, fmt.Errorf("daily stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.ToolCalls += count
		switch status {
		case "approved":
			stats.Approved = count
		case "denied":
			stats.Denied = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	riskRows, err := l.db.Query(
		`SELECT risk_level, COUNT(*) FROM audit_log
		 WHERE timestamp LIKE ? AND risk_level != ''
		 GROUP BY risk_level`, like)
	if err != nil {
		return nil, fmt.Errorf("daily stats: %w", err)
	}
	defer riskRows.Close()
	for riskRows.Next() {
		var level string
		var count int
		if err := riskRows.Scan(&level, &count); err != nil {
			return nil, err
		}
		if _, ok := stats.RiskDistribution[strings.ToLower(level)]; ok {
			stats.RiskDistribution[strings.ToLower(level)] = count
		}
	}
	if err := riskRows.Err(); err != nil {
		return nil, err
	}

	if err := l.db.QueryRow(
		"SELECT COUNT(*) FROM audit_log WHERE timestamp LIKE ? AND event_type LIKE 'security:%'", like,
	).Scan(&stats.SecurityEvents); err != nil {
		return nil, fmt.Errorf("daily stats: %w", err)
	}

	return stats, nil
}

// GetBlockedCount sums approved and denied tool executions over the
// whole log, grouped by day, newest first, capped at days entries.
func (l *Log) GetBlockedCount(days int) (approved, denied int, err error) {
	rows, err := l.db.Query(
		`SELECT SUBSTR(timestamp, 1, 10) AS day, approval_status, COUNT(*)
		 FROM audit_log WHERE event_type = ?
		 GROUP BY day, approval_status ORDER BY day DESC LIMIT ?`,
		EventToolExecution, days*2)
	if err != nil {
		return 0, 0, fmt.Errorf("blocked count: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var day, status string
		var count int
		if err := rows.Scan(&day, &status, &count); err != nil {
			return 0, 0, err
		}
		switch status {
		case "approved":
			approved += count
		case "denied":
			denied += count
		}
	}
	return approved, denied, rows.Err()
}
