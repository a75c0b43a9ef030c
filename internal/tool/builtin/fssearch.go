package builtin

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/stellarlinkco/aide/internal/tool"
)

const maxSearchResults = 100

// FileSearch finds files matching a glob pattern under a directory.
type FileSearch struct{}

func (FileSearch) Name() string { return "fs_search" }

func (FileSearch) Description() string {
	return "Search for files matching a glob pattern in a directory. Examples: '*.go', '**/*.txt', 'docs/*.md'"
}

func (FileSearch) Risk() tool.RiskLevel { return tool.RiskLow }

func (FileSearch) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "Glob pattern to match files (e.g., '*.go', '**/*.txt')",
			},
			"directory": map[string]any{
				"type":        "string",
				"description": "Directory to search in (default: current directory)",
			},
		},
		"required": []string{"pattern"},
	}
}

func (FileSearch) Execute(ctx context.Context, params map[string]any, tc tool.Context) tool.Result {
	pattern := stringParam(params, "pattern")
	if pattern == "" {
		return tool.Fail("Pattern is required")
	}
	dir := stringParam(params, "directory")
	if dir == "" {
		dir = tc.WorkingDir
	}
	if dir == "" {
		dir = "."
	}
	dir = expandHome(dir)

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return tool.Fail(fmt.Sprintf("Directory not found: %s", dir))
	}

	matches, err := searchFiles(dir, pattern)
	if err != nil {
		return tool.Fail(fmt.Sprintf("Search error: %v", err))
	}
	if len(matches) == 0 {
		return tool.OK("No files matched.")
	}

	truncated := false
	if len(matches) > maxSearchResults {
		matches = matches[:maxSearchResults]
		truncated = true
	}

	var sb strings.Builder
	for _, m := range matches {
		sb.WriteString(m)
		sb.WriteByte('\n')
	}
	if truncated {
		sb.WriteString(fmt.Sprintf("... (showing first %d matches)\n", maxSearchResults))
	}
	return tool.OKData(sb.String(), map[string]any{"count": len(matches)})
}

// searchFiles walks dir matching pattern. A '**/' prefix matches at
// any depth; otherwise the pattern applies relative to dir.
func searchFiles(dir, pattern string) ([]string, error) {
	recursive := strings.HasPrefix(pattern, "**/")
	basePattern := strings.TrimPrefix(pattern, "**/")

	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}

		var matched bool
		if recursive {
			matched, _ = filepath.Match(basePattern, filepath.Base(path))
		} else {
			matched, _ = filepath.Match(pattern, rel)
		}
		if matched {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}
