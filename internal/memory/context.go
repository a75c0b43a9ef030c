package memory

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/stellarlinkco/aide/internal/model"
)

// Keep the rolling window bounded; the newest turns matter most.
const maxContextMessages = 40

// ContextBuilder assembles the ordered message list for a completion
// call: workspace prompts, stored memory, active skill prompts, then
// the session's recent turns.
type ContextBuilder struct {
	workspace string
	store     *MemoryStore
}

func NewContextBuilder(workspace string) *ContextBuilder {
	return &ContextBuilder{
		workspace: workspace,
		store:     NewMemoryStore(workspace),
	}
}

// Build returns the message list for one model call. skillPrompts are
// appended to the system prompt in order.
func (b *ContextBuilder) Build(sess *model.Session, skillPrompts []string) []model.Message {
	var sb strings.Builder

	for _, name := range []string{"AGENTS.md", "SOUL.md"} {
		if data, err := os.ReadFile(filepath.Join(b.workspace, name)); err == nil {
			sb.Write(data)
			sb.WriteString("\n\n")
		}
	}

	if memCtx := b.store.GetMemoryContext(); memCtx != "" {
		sb.WriteString(memCtx)
		sb.WriteString("\n")
	}

	for _, prompt := range skillPrompts {
		if trimmed := strings.TrimSpace(prompt); trimmed != "" {
			sb.WriteString(trimmed)
			sb.WriteString("\n\n")
		}
	}

	msgs := make([]model.Message, 0, len(sess.Messages)+1)
	if system := strings.TrimSpace(sb.String()); system != "" {
		msgs = append(msgs, model.Message{Role: model.RoleSystem, Content: system})
	}

	history := sess.Messages
	if len(history) > maxContextMessages {
		history = trimHistory(history, maxContextMessages)
	}
	msgs = append(msgs, history...)
	return msgs
}

// trimHistory keeps the newest n messages but never starts the window
// on a tool message, which must follow its assistant request.
func trimHistory(msgs []model.Message, n int) []model.Message {
	start := len(msgs) - n
	for start < len(msgs) && msgs[start].Role == model.RoleTool {
		start++
	}
	return msgs[start:]
}
