package builtin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stellarlinkco/aide/internal/tool"
)

func TestRegisterAll(t *testing.T) {
	r := tool.NewRegistry()
	RegisterAll(r)

	want := []string{"fs_read", "fs_search", "fs_write", "shell_exec", "time_now", "web_fetch"}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("registered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFileReadWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	ctx := context.Background()

	res := FileWrite{}.Execute(ctx, map[string]any{
		"path":    path,
		"content": "line one\nline two\nline three\n",
	}, tool.Context{})
	if !res.IsOK() {
		t.Fatalf("write failed: %+v", res)
	}

	res = FileRead{}.Execute(ctx, map[string]any{"path": path}, tool.Context{})
	if !res.IsOK() || !strings.Contains(res.Output, "line two") {
		t.Fatalf("read result: %+v", res)
	}

	// max_lines truncation (JSON numbers arrive as float64)
	res = FileRead{}.Execute(ctx, map[string]any{"path": path, "max_lines": float64(1)}, tool.Context{})
	if !res.IsOK() {
		t.Fatalf("read with max_lines failed: %+v", res)
	}
	if strings.Contains(res.Output, "line two") || !strings.Contains(res.Output, "more lines") {
		t.Errorf("max_lines output: %q", res.Output)
	}
}

func TestFileWriteAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	ctx := context.Background()

	FileWrite{}.Execute(ctx, map[string]any{"path": path, "content": "a"}, tool.Context{})
	FileWrite{}.Execute(ctx, map[string]any{"path": path, "content": "b", "append": true}, tool.Context{})

	data, _ := os.ReadFile(path)
	if string(data) != "ab" {
		t.Errorf("file = %q, want ab", data)
	}
}

func TestFileReadMissing(t *testing.T) {
	res := FileRead{}.Execute(context.Background(), map[string]any{
		"path": filepath.Join(t.TempDir(), "nope.txt"),
	}, tool.Context{})
	if !res.IsFailed() || !strings.Contains(res.Err, "File not found") {
		t.Errorf("missing file result: %+v", res)
	}
}

func TestFileSearch(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "sub"), 0755)
	for _, f := range []string{"a.txt", "b.md", filepath.Join("sub", "c.txt")} {
		os.WriteFile(filepath.Join(dir, f), []byte("x"), 0644)
	}
	ctx := context.Background()

	res := FileSearch{}.Execute(ctx, map[string]any{"pattern": "*.txt", "directory": dir}, tool.Context{})
	if !res.IsOK() {
		t.Fatalf("search failed: %+v", res)
	}
	if !strings.Contains(res.Output, "a.txt") || strings.Contains(res.Output, "c.txt") {
		t.Errorf("non-recursive search output: %q", res.Output)
	}

	res = FileSearch{}.Execute(ctx, map[string]any{"pattern": "**/*.txt", "directory": dir}, tool.Context{})
	if !strings.Contains(res.Output, "a.txt") || !strings.Contains(res.Output, "c.txt") {
		t.Errorf("recursive search output: %q", res.Output)
	}

	res = FileSearch{}.Execute(ctx, map[string]any{"pattern": "*.go", "directory": dir}, tool.Context{})
	if !res.IsOK() || !strings.Contains(res.Output, "No files matched") {
		t.Errorf("empty search result: %+v", res)
	}
}

func TestShellExec(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	res := ShellExec{}.Execute(ctx, map[string]any{
		"command":           "echo hello",
		"working_directory": dir,
	}, tool.Context{MaxExecutionTime: 10})
	if !res.IsOK() || !strings.Contains(res.Output, "hello") {
		t.Fatalf("echo result: %+v", res)
	}

	// Non-zero exit codes come back as ok output with the code noted,
	// so the model can see what happened.
	res = ShellExec{}.Execute(ctx, map[string]any{
		"command":           "exit 3",
		"working_directory": dir,
	}, tool.Context{MaxExecutionTime: 10})
	if !res.IsOK() || !strings.Contains(res.Output, "[Exit code: 3]") {
		t.Errorf("exit-code result: %+v", res)
	}

	res = ShellExec{}.Execute(ctx, map[string]any{
		"command":           "sleep 5",
		"working_directory": dir,
	}, tool.Context{MaxExecutionTime: 1})
	if !res.IsFailed() || !strings.Contains(res.Err, "timed out") {
		t.Errorf("timeout result: %+v", res)
	}
}

func TestWebFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		w.Write([]byte("page body"))
	}))
	defer srv.Close()

	ctx := context.Background()
	res := WebFetch{}.Execute(ctx, map[string]any{"url": srv.URL}, tool.Context{})
	if !res.IsOK() || !strings.Contains(res.Output, "page body") {
		t.Fatalf("fetch result: %+v", res)
	}

	res = WebFetch{}.Execute(ctx, map[string]any{"url": srv.URL + "/missing"}, tool.Context{})
	if !res.IsFailed() || !strings.Contains(res.Err, "HTTP 404") {
		t.Errorf("404 result: %+v", res)
	}

	res = WebFetch{}.Execute(ctx, map[string]any{"url": "ftp://example.com"}, tool.Context{})
	if !res.IsFailed() {
		t.Errorf("non-http scheme should fail: %+v", res)
	}
}

func TestTimeNow(t *testing.T) {
	res := TimeNow{}.Execute(context.Background(), map[string]any{}, tool.Context{})
	if !res.IsOK() || res.Output == "" {
		t.Fatalf("time result: %+v", res)
	}

	res = TimeNow{}.Execute(context.Background(), map[string]any{"timezone": "Not/AZone"}, tool.Context{})
	if !res.IsFailed() {
		t.Errorf("bad timezone should fail: %+v", res)
	}
}
