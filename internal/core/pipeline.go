package core

import "strings"

// Pipeline is a named, ordered module chain plus declared dependencies.
//
// Names compare case-insensitively. Both the chain and the dependency set are
// fixed once the pipeline is registered with an engine.
type Pipeline struct {
	Name         string
	Modules      []Module
	Dependencies []string
}

// NewPipeline creates a pipeline with the given module chain.
func NewPipeline(name string, modules ...Module) *Pipeline {
	return &Pipeline{Name: name, Modules: modules}
}

// WithDependencies appends dependency names and returns the pipeline.
// Repeated names (case-insensitive) are kept once, in first-declared order.
func (p *Pipeline) WithDependencies(names ...string) *Pipeline {
	seen := make(map[string]struct{}, len(p.Dependencies)+len(names))
	deps := make([]string, 0, len(p.Dependencies)+len(names))
	for _, n := range append(append([]string(nil), p.Dependencies...), names...) {
		k := NormalizeName(n)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		deps = append(deps, n)
	}
	p.Dependencies = deps
	return p
}

// NormalizeName returns the comparison key for a pipeline name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
