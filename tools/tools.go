package tools

import (
	"context"
	"fmt"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// Tool is a named operation callable with loosely typed arguments.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// ToolRegistry holds all available tools.
type ToolRegistry struct {
	tools map[string]Tool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

func (r *ToolRegistry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *ToolRegistry) GetTool(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r *ToolRegistry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetActiveTools returns the tools whose names match any of the glob
// patterns, sorted by name. A pattern without wildcards must name a
// registered tool.
func (r *ToolRegistry) GetActiveTools(patterns []string) ([]Tool, error) {
	var active []Tool
	for _, name := range r.Names() {
		ok, err := MatchAny(name, patterns)
		if err != nil {
			return nil, err
		}
		if ok {
			active = append(active, r.tools[name])
		}
	}
	for _, p := range patterns {
		if !hasMeta(p) {
			if _, ok := r.tools[p]; !ok {
				return nil, fmt.Errorf("tool '%s' is not registered", p)
			}
		}
	}
	return active, nil
}

// MatchAny reports whether name matches one of the glob patterns.
func MatchAny(name string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.Match(pattern, name)
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

func hasMeta(p string) bool {
	for _, c := range p {
		switch c {
		case '*', '?', '[', '{', '\\':
			return true
		}
	}
	return false
}
