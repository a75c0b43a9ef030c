package builtin

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/stellarlinkco/aide/internal/tool"
)

// FileRead reads file contents.
type FileRead struct{}

func (FileRead) Name() string { return "fs_read" }

func (FileRead) Description() string {
	return "Read the contents of a file at a given path. Returns the text content of the file."
}

func (FileRead) Risk() tool.RiskLevel { return tool.RiskLow }

func (FileRead) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The file path to read",
			},
			"max_lines": map[string]any{
				"type":        "integer",
				"description": "Maximum number of lines to read (default: all)",
			},
		},
		"required": []string{"path"},
	}
}

func (FileRead) Execute(ctx context.Context, params map[string]any, tc tool.Context) tool.Result {
	path := stringParam(params, "path")
	if path == "" {
		return tool.Fail("Path is required")
	}
	path = expandHome(path)

	info, err := os.Stat(path)
	if err != nil {
		return tool.Fail(fmt.Sprintf("File not found: %s", path))
	}
	if info.IsDir() {
		return tool.Fail(fmt.Sprintf("Not a file: %s", path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return tool.Fail(fmt.Sprintf("Error reading file: %v", err))
	}
	content := string(data)

	if maxLines := intParam(params, "max_lines"); maxLines > 0 {
		lines := strings.SplitAfter(content, "\n")
		if len(lines) > maxLines {
			content = strings.Join(lines[:maxLines], "")
			content += fmt.Sprintf("\n... (%d more lines)", len(lines)-maxLines)
		}
	}

	return tool.OKData(content, map[string]any{
		"path": path,
		"size": info.Size(),
	})
}
