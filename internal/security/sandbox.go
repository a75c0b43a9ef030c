package security

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// dangerousCommand patterns are fixed and not configurable. A match is
// always a rejection regardless of the block-list.
type dangerousCommand struct {
	re     *regexp.Regexp
	reason string
}

var dangerousCommands = []dangerousCommand{
	{regexp.MustCompile(`\brm\s+(-[rf]+\s+)?/(\s|$)`), "recursive delete of root"},
	{regexp.MustCompile(`\bformat\s+[a-z]:`), "disk format"},
	{regexp.MustCompile(`\bdel\s+/[sfq]+\s+[a-z]:\\`), "recursive delete of drive"},
	{regexp.MustCompile(`\brmdir\s+/s\s+/q\s+[a-z]:\\`), "recursive delete of drive"},
	{regexp.MustCompile(`\bmkfs\b`), "filesystem creation"},
	{regexp.MustCompile(`\bdd\s+if=.*of=/dev/`), "raw device write"},
	{regexp.MustCompile(`>\s*/dev/sd[a-z]`), "raw device write"},
	{regexp.MustCompile(`\bchmod\s+-r\s+777\s+/`), "recursive permission open on root"},
	{regexp.MustCompile(`\bchown\s+-r\s+.*\s+/\s*$`), "recursive ownership change on root"},
	{regexp.MustCompile(`curl.*\|\s*(bash|sh|python|powershell)`), "pipe download to shell"},
	{regexp.MustCompile(`wget.*\|\s*(bash|sh|python|powershell)`), "pipe download to shell"},
	{regexp.MustCompile(`\breg\s+delete\b`), "registry delete"},
	{regexp.MustCompile(`\bnet\s+user\s+.*\s+/add\b`), "account creation"},
}

// Sandbox constrains filesystem and shell tool calls. It performs no
// side effects and must be consulted before every such call. An empty
// allow-list means all paths are allowed.
type Sandbox struct {
	allowedDirs     []string // resolved absolute paths
	blockedCommands []string
}

func NewSandbox(allowedDirs, blockedCommands []string) *Sandbox {
	s := &Sandbox{blockedCommands: blockedCommands}
	for _, d := range allowedDirs {
		resolved, err := resolvePath(d)
		if err != nil {
			log.Printf("[sandbox] cannot resolve allowed dir %q: %v", d, err)
			continue
		}
		s.allowedDirs = append(s.allowedDirs, resolved)
	}
	return s
}

// resolvePath expands ~ and env vars, makes the path absolute and
// follows symlinks. For paths that do not exist yet the deepest
// existing ancestor is resolved and the remainder re-joined, so a
// write to a new file still checks the real parent.
func resolvePath(path string) (string, error) {
	expanded := os.ExpandEnv(path)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand home: %w", err)
		}
		expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	dir, base := filepath.Split(abs)
	var tail []string
	for {
		resolved, err := filepath.EvalSymlinks(filepath.Clean(dir))
		if err == nil {
			parts := append([]string{resolved}, reverse(append(tail, base))...)
			return filepath.Join(parts...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		tail = append(tail, base)
		parent := filepath.Clean(dir)
		dir, base = filepath.Split(parent)
		if parent == dir || base == "" {
			return abs, nil
		}
	}
}

func reverse(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

// IsPathAllowed reports whether path resolves to a descendant of an
// allowed directory. With no allow-list configured everything passes.
func (s *Sandbox) IsPathAllowed(path string) bool {
	if len(s.allowedDirs) == 0 {
		return true
	}
	target, err := resolvePath(path)
	if err != nil {
		log.Printf("[sandbox] cannot resolve %q: %v", path, err)
		return false
	}
	for _, allowed := range s.allowedDirs {
		if target == allowed || strings.HasPrefix(target, allowed+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// IsCommandAllowed checks a shell command against the configured
// block-list (case-insensitive substring) and the fixed dangerous
// pattern table. Returns the matched rule on rejection.
func (s *Sandbox) IsCommandAllowed(command string) (bool, string) {
	cmdLower := strings.ToLower(strings.TrimSpace(command))

	for _, blocked := range s.blockedCommands {
		if blocked == "" {
			continue
		}
		if strings.Contains(cmdLower, strings.ToLower(blocked)) {
			log.Printf("[sandbox] command blocked by rule %q: %.100s", blocked, command)
			return false, fmt.Sprintf("blocked command: %s", blocked)
		}
	}

	for _, dc := range dangerousCommands {
		if dc.re.MatchString(cmdLower) {
			log.Printf("[sandbox] command blocked (%s): %.100s", dc.reason, command)
			return false, dc.reason
		}
	}

	return true, ""
}

// ValidateFileOperation combines the allow-list check with a symlink
// target re-check and, for writes, a parent existence check.
// Returns (allowed, reason).
func (s *Sandbox) ValidateFileOperation(path, operation string) (bool, string) {
	if !s.IsPathAllowed(path) {
		return false, fmt.Sprintf("Path not in allowed directories: %s", strings.Join(s.allowedDirs, ", "))
	}

	resolved, err := resolvePath(path)
	if err != nil {
		return false, fmt.Sprintf("cannot resolve path: %v", err)
	}

	// A symlink inside an allowed dir may point outside it.
	if info, err := os.Lstat(resolved); err == nil && info.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(resolved)
		if err != nil || !s.IsPathAllowed(target) {
			return false, "Symlink target is outside allowed directories"
		}
	}

	if operation == "write" || operation == "create" {
		parent := filepath.Dir(resolved)
		if _, err := os.Stat(parent); err != nil {
			return false, fmt.Sprintf("Parent directory does not exist: %s", parent)
		}
	}

	return true, "OK"
}
