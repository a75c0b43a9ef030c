package model

import (
	"context"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Message is one conversation turn. Immutable once appended to a
// session: a tool result message must follow the assistant message
// that requested it.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"toolCallId,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	Timestamp  time.Time  `json:"timestamp,omitempty"`
}

// Session is one conversation owned by an adapter. The engine appends
// messages; it is not safe for concurrent mutation.
type Session struct {
	ID        string            `json:"id"`
	Adapter   string            `json:"adapter"`
	UserID    string            `json:"userId"`
	Messages  []Message         `json:"messages"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func (s *Session) Append(m Message) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	s.Messages = append(s.Messages, m)
	s.UpdatedAt = m.Timestamp
}

// ToolDef is a tool description in function-calling shape.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one completion call.
type Request struct {
	Messages    []Message
	Model       string // override, empty uses the client default
	Tools       []ToolDef
	Temperature *float64
	MaxTokens   int
	SessionID   string
}

// Usage reports token consumption.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Response is the parsed model answer.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	Usage        Usage
	FinishReason string
}

// Completer is the completion collaborator consumed by the engine.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
