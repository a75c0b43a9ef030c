package security

import (
	"regexp"
	"strings"
)

// Injection markers scanned in TOOL OUTPUT, never in user input.
// Detection only; the engine decides the consequence.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?above\s+instructions`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an)\s+`),
	regexp.MustCompile(`(?i)new\s+instructions?\s*:`),
	regexp.MustCompile(`(?i)system\s*:\s*you\s+are`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?previous`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?previous`),
	regexp.MustCompile(`(?i)override\s+(all\s+)?previous`),
	regexp.MustCompile(`\[SYSTEM\]`),
	regexp.MustCompile(`\[INST\]`),
	regexp.MustCompile(`<<SYS>>`),
}

type sensitiveSub struct {
	re   *regexp.Regexp
	repl string
}

var sensitiveSubs = []sensitiveSub{
	{regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`), "sk-***REDACTED***"},
	{regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)['"]?[a-zA-Z0-9_-]{20,}['"]?`), "${1}***REDACTED***"},
	{regexp.MustCompile(`(?i)(token\s*[:=]\s*)['"]?[a-zA-Z0-9_.-]{20,}['"]?`), "${1}***REDACTED***"},
	{regexp.MustCompile(`(://[^:/@\s]+:)[^@\s]+@`), "${1}***@"},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "AKIA***REDACTED***"},
	{regexp.MustCompile(`-----BEGIN\s+\w+\s+PRIVATE\s+KEY-----`), "[PRIVATE KEY REDACTED]"},
}

// CheckInjection reports whether text looks like a prompt injection
// attempt and returns the matched fragment.
func CheckInjection(text string) (bool, string) {
	for _, re := range injectionPatterns {
		if m := re.FindString(text); m != "" {
			return true, m
		}
	}
	return false, ""
}

// SanitizeToolOutput masks secret-shaped strings before the output
// reaches the model context.
func SanitizeToolOutput(output string) string {
	for _, s := range sensitiveSubs {
		output = s.re.ReplaceAllString(output, s.repl)
	}
	return output
}

// RedactForLog applies the same substitutions recursively over values
// destined for a log line.
func RedactForLog(data any) any {
	switch v := data.(type) {
	case string:
		return SanitizeToolOutput(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = RedactForLog(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = RedactForLog(val)
		}
		return out
	default:
		return data
	}
}

// SanitizeUserInput is deliberately minimal. User intent text is never
// rewritten; only NUL bytes and line endings are normalized.
func SanitizeUserInput(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}
