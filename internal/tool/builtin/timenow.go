package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/stellarlinkco/aide/internal/tool"
)

// TimeNow reports the current date and time.
type TimeNow struct {
	Now func() time.Time
}

func (TimeNow) Name() string { return "time_now" }

func (TimeNow) Description() string {
	return "Get the current local date and time, optionally in a named IANA timezone."
}

func (TimeNow) Risk() tool.RiskLevel { return tool.RiskLow }

func (TimeNow) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA timezone name, e.g. 'Europe/Berlin' (default: local)",
			},
		},
	}
}

func (t TimeNow) Execute(ctx context.Context, params map[string]any, tc tool.Context) tool.Result {
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	current := now()

	if tz := stringParam(params, "timezone"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return tool.Fail(fmt.Sprintf("Unknown timezone: %s", tz))
		}
		current = current.In(loc)
	}

	return tool.OK(current.Format("Monday, 2006-01-02 15:04:05 MST"))
}
