package tool

import "context"

// Context carries the per-call execution parameters. It is constructed
// fresh for every call and never persisted.
type Context struct {
	SessionID        string
	WorkingDir       string
	AllowedDirs      []string
	MaxExecutionTime int // seconds, 0 means tool default
	MaxOutputSize    int // bytes, 0 means unlimited
}

// Schema describes a tool in OpenAI function-calling shape. Parameters
// is a JSON schema object.
type Schema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Tool is the contract every executable capability implements.
// Implementations must be safe for concurrent use.
type Tool interface {
	Name() string
	Description() string
	Risk() RiskLevel
	Parameters() map[string]any
	Execute(ctx context.Context, params map[string]any, tc Context) Result
}

// Mutating reports whether a tool call changes state outside the
// conversation. Used by the action logger's mutations_only mode.
type Mutating interface {
	Mutating() bool
}
