package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stellarlinkco/aide/internal/tool"
)

// FileWrite creates or overwrites a file, or appends to it.
type FileWrite struct{}

func (FileWrite) Name() string { return "fs_write" }

func (FileWrite) Description() string {
	return "Write text content to a file. Creates the file if it doesn't exist, or overwrites it. Use 'append' to add to existing content."
}

func (FileWrite) Risk() tool.RiskLevel { return tool.RiskMedium }

func (FileWrite) Mutating() bool { return true }

func (FileWrite) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The file path to write to",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The text content to write",
			},
			"append": map[string]any{
				"type":        "boolean",
				"description": "If true, append instead of overwriting (default: false)",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (FileWrite) Execute(ctx context.Context, params map[string]any, tc tool.Context) tool.Result {
	path := stringParam(params, "path")
	if path == "" {
		return tool.Fail("Path is required")
	}
	path = expandHome(path)
	content := stringParam(params, "content")
	doAppend := boolParam(params, "append")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return tool.Fail(fmt.Sprintf("Cannot create directory: %v", err))
	}

	flags := os.O_CREATE | os.O_WRONLY
	action := "written to"
	if doAppend {
		flags |= os.O_APPEND
		action = "appended to"
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return tool.Fail(fmt.Sprintf("Error writing file: %v", err))
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return tool.Fail(fmt.Sprintf("Error writing file: %v", err))
	}
	if err := f.Close(); err != nil {
		return tool.Fail(fmt.Sprintf("Error writing file: %v", err))
	}

	info, _ := os.Stat(path)
	var size int64
	if info != nil {
		size = info.Size()
	}
	return tool.OKData(fmt.Sprintf("Successfully %s %s (%d bytes)", action, path, size), map[string]any{
		"path": path,
		"size": size,
	})
}
