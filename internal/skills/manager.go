package skills

import (
	"log"
	"strings"
	"sync"
)

// Manager holds the loaded skill set and answers activation queries.
type Manager struct {
	mu     sync.RWMutex
	dir    string
	skills []Skill
}

func NewManager(skillDir string) *Manager {
	m := &Manager{dir: skillDir}
	if err := m.Reload(); err != nil {
		log.Printf("[skills] load failed: %v", err)
	}
	return m
}

// Reload re-reads the skill directory.
func (m *Manager) Reload() error {
	loaded, err := Load(m.dir)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.skills = loaded
	m.mu.Unlock()
	if len(loaded) > 0 {
		log.Printf("[skills] loaded %d skills from %s", len(loaded), m.dir)
	}
	return nil
}

func (m *Manager) All() []Skill {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Skill, len(m.skills))
	copy(out, m.skills)
	return out
}

// PromptsFor returns the prompts of skills active for the given user
// message: keyword-less skills always, keyworded skills on a match.
func (m *Manager) PromptsFor(userText string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lowered := strings.ToLower(userText)
	var prompts []string
	for _, s := range m.skills {
		if s.Prompt == "" {
			continue
		}
		if len(s.Keywords) == 0 || matchesAny(lowered, s.Keywords) {
			prompts = append(prompts, s.Prompt)
		}
	}
	return prompts
}

func matchesAny(lowered string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
