package tool

import (
	"context"
	"fmt"
	"log"
)

// System dispatches tool calls against a registry. It is the one place
// where a tool fault is converted into a failed result: a tool must
// never crash the loop.
type System struct {
	registry *Registry
}

func NewSystem(r *Registry) *System {
	return &System{registry: r}
}

func (s *System) Registry() *Registry { return s.registry }

// Execute runs a named tool. Unknown names and panics both come back
// as failed results.
func (s *System) Execute(ctx context.Context, name string, params map[string]any, tc Context) (res Result) {
	t, ok := s.registry.Get(name)
	if !ok {
		return Fail(fmt.Sprintf("Unknown tool: %s", name))
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[tools] %s panicked: %v", name, r)
			res = Fail(fmt.Sprintf("tool %s crashed: %v", name, r))
		}
	}()

	res = t.Execute(ctx, params, tc)
	if tc.MaxOutputSize > 0 && len(res.Output) > tc.MaxOutputSize {
		res.Output = res.Output[:tc.MaxOutputSize] + "\n... (output truncated)"
	}
	return res
}
