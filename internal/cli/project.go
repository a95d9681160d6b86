package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultProjectFile is loaded when no project path is given.
const DefaultProjectFile = "pipelines.yaml"

// Project is a parsed pipeline project file.
type Project struct {
	// Dir is the directory relative paths in module options resolve against.
	Dir       string         `yaml:"-"`
	Pipelines []PipelineSpec `yaml:"pipelines"`
}

type PipelineSpec struct {
	Name         string       `yaml:"name"`
	Dependencies []string     `yaml:"dependencies"`
	Modules      []ModuleSpec `yaml:"modules"`
}

// ModuleSpec is one module entry. In YAML it is either a bare type name
// ("- RenderMarkdown") or a single-key mapping from the type name to its
// options. The "modules" option of a parent module holds its child chain.
type ModuleSpec struct {
	Type    string
	Options map[string]any
	Modules []ModuleSpec
	Line    int
}

func (m *ModuleSpec) UnmarshalYAML(node *yaml.Node) error {
	m.Line = node.Line
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "" {
			return fmt.Errorf("line %d: empty module type", node.Line)
		}
		m.Type = node.Value
		return nil
	case yaml.MappingNode:
	default:
		return fmt.Errorf("line %d: a module must be a type name or a mapping", node.Line)
	}

	if len(node.Content) != 2 {
		return fmt.Errorf("line %d: a module entry must have exactly one type key, got %d", node.Line, len(node.Content)/2)
	}
	m.Type = node.Content[0].Value
	body := node.Content[1]
	switch {
	case body.Kind == yaml.ScalarNode && body.Tag == "!!null":
		return nil
	case body.Kind != yaml.MappingNode:
		return fmt.Errorf("line %d: options of %s must be a mapping", body.Line, m.Type)
	}

	m.Options = make(map[string]any, len(body.Content)/2)
	for i := 0; i+1 < len(body.Content); i += 2 {
		k, v := body.Content[i], body.Content[i+1]
		if k.Value == "modules" {
			if err := v.Decode(&m.Modules); err != nil {
				return err
			}
			continue
		}
		var val any
		if err := v.Decode(&val); err != nil {
			return fmt.Errorf("line %d: option %q: %w", v.Line, k.Value, err)
		}
		m.Options[k.Value] = val
	}
	return nil
}

// LoadProject reads and parses the project file at path.
//
// Unknown top-level and pipeline fields are rejected, as is more than one
// YAML document in the file.
func LoadProject(path string) (*Project, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	p, err := ParseProject(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	p.Dir = abs
	return p, nil
}

// ParseProject parses project YAML. Dir is left empty.
func ParseProject(data []byte) (*Project, error) {
	var p Project
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("parse project: empty document")
		}
		return nil, fmt.Errorf("parse project: %w", err)
	}
	var trailing any
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, errors.New("parse project: trailing document")
		}
		return nil, fmt.Errorf("parse project: %w", err)
	}
	return &p, nil
}

// resolve returns p unchanged when absolute, else joined onto the project dir.
func (p *Project) resolve(path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) || p.Dir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(p.Dir, path)
}
