// Package builtin holds the stock tool set. Registration is a static
// list at startup, not a reflection scan.
package builtin

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/stellarlinkco/aide/internal/tool"
)

// RegisterAll installs the builtin tools into a registry.
func RegisterAll(r *tool.Registry) {
	r.Register(FileRead{})
	r.Register(FileWrite{})
	r.Register(FileSearch{})
	r.Register(ShellExec{})
	r.Register(WebFetch{})
	r.Register(TimeNow{})
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case float64: // JSON numbers decode as float64
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func boolParam(params map[string]any, key string) bool {
	v, _ := params[key].(bool)
	return v
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
