package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stellarlinkco/aide/internal/tool"
)

const (
	webFetchTimeout = 30 * time.Second
	webFetchMaxBody = 512 * 1024
)

// WebFetch retrieves a URL and returns the response body as text.
type WebFetch struct {
	Client *http.Client
}

func (WebFetch) Name() string { return "web_fetch" }

func (WebFetch) Description() string {
	return "Fetch a URL over HTTP(S) and return the response body as text. Useful for reading pages and APIs."
}

func (WebFetch) Risk() tool.RiskLevel { return tool.RiskMedium }

func (WebFetch) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to fetch (http or https)",
			},
		},
		"required": []string{"url"},
	}
}

func (w WebFetch) Execute(ctx context.Context, params map[string]any, tc tool.Context) tool.Result {
	url := stringParam(params, "url")
	if url == "" {
		return tool.Fail("URL is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return tool.Fail("Only http and https URLs are supported")
	}

	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: webFetchTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return tool.Fail(fmt.Sprintf("Invalid URL: %v", err))
	}
	req.Header.Set("User-Agent", "aide/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return tool.Fail(fmt.Sprintf("Fetch error: %v", err))
	}
	defer resp.Body.Close()

	limit := int64(webFetchMaxBody)
	if tc.MaxOutputSize > 0 && int64(tc.MaxOutputSize) < limit {
		limit = int64(tc.MaxOutputSize)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return tool.Fail(fmt.Sprintf("Read error: %v", err))
	}

	content := string(body)
	truncated := false
	if int64(len(body)) > limit {
		content = content[:limit] + "\n... (truncated)"
		truncated = true
	}

	if resp.StatusCode >= 400 {
		return tool.Fail(fmt.Sprintf("HTTP %d: %.200s", resp.StatusCode, content))
	}

	return tool.OKData(content, map[string]any{
		"status":    resp.StatusCode,
		"truncated": truncated,
	})
}
