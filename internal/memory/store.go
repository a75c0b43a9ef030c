package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MemoryStore reads and writes the plain-file memory in the workspace:
// a long-term MEMORY.md plus daily journal files.
type MemoryStore struct {
	workspace string
}

func NewMemoryStore(workspace string) *MemoryStore {
	return &MemoryStore{workspace: workspace}
}

func (m *MemoryStore) memoryDir() string {
	return filepath.Join(m.workspace, "memory")
}

func (m *MemoryStore) longTermPath() string {
	return filepath.Join(m.memoryDir(), "MEMORY.md")
}

func (m *MemoryStore) todayPath() string {
	return filepath.Join(m.memoryDir(), time.Now().Format("2006-01-02")+".md")
}

func (m *MemoryStore) ReadLongTerm() (string, error) {
	data, err := os.ReadFile(m.longTermPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read long-term memory: %w", err)
	}
	return string(data), nil
}

func (m *MemoryStore) WriteLongTerm(content string) error {
	if err := os.MkdirAll(m.memoryDir(), 0755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	return os.WriteFile(m.longTermPath(), []byte(content), 0644)
}

func (m *MemoryStore) ReadToday() (string, error) {
	data, err := os.ReadFile(m.todayPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read daily journal: %w", err)
	}
	return string(data), nil
}

func (m *MemoryStore) AppendToday(entry string) error {
	if err := os.MkdirAll(m.memoryDir(), 0755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	f, err := os.OpenFile(m.todayPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open daily journal: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(entry + "\n")
	return err
}

// GetMemoryContext assembles long-term memory and today's journal into
// a block for the system prompt. Empty when nothing is stored.
func (m *MemoryStore) GetMemoryContext() string {
	var sb strings.Builder

	if lt, err := m.ReadLongTerm(); err == nil && strings.TrimSpace(lt) != "" {
		sb.WriteString("## Long-term memory\n\n")
		sb.WriteString(lt)
		sb.WriteString("\n\n")
	}
	if today, err := m.ReadToday(); err == nil && strings.TrimSpace(today) != "" {
		sb.WriteString("## Today's notes\n\n")
		sb.WriteString(today)
		sb.WriteString("\n")
	}

	return sb.String()
}
