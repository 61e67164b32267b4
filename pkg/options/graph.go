// Package options resolves remote enumerations declared in field api blocks:
// the dependency graph between controlling and dependent fields, the
// parallel fetch pass, and the merge of fetched options into a schema.
package options

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/validation"
)

var (
	// ErrMissingDependent marks a dependent api block without a controlling
	// field.
	ErrMissingDependent = errors.New("options: dependent call without dependent field")
	// ErrUnknownDependent marks a dependent api block naming a field the
	// schema does not define.
	ErrUnknownDependent = errors.New("options: dependent field not defined")
	// ErrDependencyCycle marks a controller chain that loops back on itself.
	ErrDependencyCycle = errors.New("options: dependency cycle")
)

// GraphError reports the field a graph error was found on.
type GraphError struct {
	Field string
	// Path is the loop for cycle errors, in controller order.
	Path []string
	Err  error
}

func (e *GraphError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("%v: %s", e.Err, strings.Join(e.Path, " -> "))
	}
	return fmt.Sprintf("%v: %q", e.Err, e.Field)
}

func (e *GraphError) Unwrap() error { return e.Err }

// Graph is the adjacency list from controlling field to the fields whose
// options depend on it.
type Graph struct {
	children   map[string][]string
	controller map[string]string
	initial    []string
	fields     []string
}

// BuildGraph derives the dependency graph from the api blocks of s.
func BuildGraph(s *schema.Schema) (*Graph, error) {
	g := &Graph{
		children:   make(map[string][]string),
		controller: make(map[string]string),
	}
	for _, name := range s.Names() {
		field, _ := s.Field(name)
		if field.API == nil {
			continue
		}
		g.fields = append(g.fields, name)
		if field.API.CallType != schema.CallTypeDependent {
			g.initial = append(g.initial, name)
			continue
		}
		parent := strings.TrimSpace(field.API.Dependent)
		if parent == "" {
			return nil, &GraphError{Field: name, Err: ErrMissingDependent}
		}
		if !s.Has(parent) {
			return nil, &GraphError{Field: name, Err: ErrUnknownDependent}
		}
		g.controller[name] = parent
		g.children[parent] = append(g.children[parent], name)
	}
	if err := g.detectCycle(); err != nil {
		return nil, err
	}
	return g, nil
}

const (
	white = iota
	grey
	black
)

// detectCycle walks every node with an explicit stack, marking nodes grey
// while they are on the current path.
func (g *Graph) detectCycle() error {
	colour := make(map[string]int)
	type frame struct {
		name string
		next int
	}
	roots := make([]string, 0, len(g.fields))
	roots = append(roots, g.fields...)
	for parent := range g.children {
		if _, ok := g.controller[parent]; !ok {
			roots = append(roots, parent)
		}
	}

	for _, root := range roots {
		if colour[root] != white {
			continue
		}
		stack := []frame{{name: root}}
		colour[root] = grey
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			children := g.children[top.name]
			if top.next >= len(children) {
				colour[top.name] = black
				stack = stack[:len(stack)-1]
				continue
			}
			child := children[top.next]
			top.next++
			switch colour[child] {
			case white:
				colour[child] = grey
				stack = append(stack, frame{name: child})
			case grey:
				path := []string{}
				for idx := range stack {
					if stack[idx].name == child || len(path) > 0 {
						path = append(path, stack[idx].name)
					}
				}
				path = append(path, child)
				return &GraphError{Field: child, Path: path, Err: ErrDependencyCycle}
			}
		}
	}
	return nil
}

// Initial lists the fields fetched once at load, in document order.
func (g *Graph) Initial() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.initial...)
}

// Fields lists every field with an api block, in document order.
func (g *Graph) Fields() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.fields...)
}

// Controller returns the field whose value drives name's options.
func (g *Graph) Controller(name string) (string, bool) {
	if g == nil {
		return "", false
	}
	parent, ok := g.controller[name]
	return parent, ok
}

// Dependents returns the fields directly controlled by name.
func (g *Graph) Dependents(name string) []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.children[name]...)
}

// Levels returns the transitive dependents of name grouped by distance:
// direct dependents first, then theirs.
func (g *Graph) Levels(name string) [][]string {
	if g == nil {
		return nil
	}
	visited := map[string]struct{}{name: {}}
	var levels [][]string
	frontier := []string{name}
	for len(frontier) > 0 {
		var next []string
		for _, node := range frontier {
			for _, child := range g.children[node] {
				if _, seen := visited[child]; seen {
					continue
				}
				visited[child] = struct{}{}
				next = append(next, child)
			}
		}
		if len(next) > 0 {
			levels = append(levels, next)
		}
		frontier = next
	}
	return levels
}

// Descendants flattens Levels.
func (g *Graph) Descendants(name string) []string {
	var out []string
	for _, level := range g.Levels(name) {
		out = append(out, level...)
	}
	return out
}

// GraphCheck reports dependency cycles as lint issues. Missing and unknown
// dependents are already reported by the descriptor checks.
func GraphCheck(s *schema.Schema) []validation.Issue {
	_, err := BuildGraph(s)
	var graphErr *GraphError
	if !errors.As(err, &graphErr) || !errors.Is(err, ErrDependencyCycle) {
		return nil
	}
	pointer := "#/properties/" + escapePointer(graphErr.Field) + "/api/dependent"
	return []validation.Issue{validation.IssueAt(pointer, "%s", graphErr.Error())}
}

func escapePointer(segment string) string {
	segment = strings.ReplaceAll(segment, "~", "~0")
	return strings.ReplaceAll(segment, "/", "~1")
}
