package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"

	"contentweaver/internal/cache"
	"contentweaver/internal/core"
	"contentweaver/internal/modules"
)

// ModuleFactory builds a module from its project entry.
type ModuleFactory func(b *Builder, spec ModuleSpec) (core.Module, error)

// Registry maps module type names to factories.
type Registry map[string]ModuleFactory

// Types returns the registered type names, sorted.
func (r Registry) Types() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry returns the built-in modules.
func DefaultRegistry() Registry {
	return Registry{
		"CreateDocuments":  buildCreateDocuments,
		"ReadFiles":        buildReadFiles,
		"WriteFiles":       buildWriteFiles,
		"WithExtension":    buildWithExtension,
		"RenderMarkdown":   buildRenderMarkdown,
		"ApplyTemplate":    buildApplyTemplate,
		"SetMetadata":      buildSetMetadata,
		"WhereMetadata":    buildWhereMetadata,
		"OrderDocuments":   buildOrderDocuments,
		"ReplaceDocuments": buildExchange(modules.ReplaceDocuments),
		"ConcatDocuments":  buildExchange(modules.ConcatDocuments),
		"ForEachDocument":  buildForEachDocument,
		"CacheDocuments":   buildCacheDocuments,
	}
}

// Builder turns a Project into pipelines.
type Builder struct {
	Project  *Project
	Registry Registry

	// Store backs CacheDocuments modules. Nil disables caching.
	Store cache.Store

	pipeline string
}

// ConfigError reports an invalid module entry.
type ConfigError struct {
	Pipeline string
	Module   string
	Line     int
	Err      error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("pipeline %q: module %s (line %d): %v", e.Pipeline, e.Module, e.Line, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Pipelines builds every pipeline of the project, in file order.
func (b *Builder) Pipelines() ([]*core.Pipeline, error) {
	out := make([]*core.Pipeline, 0, len(b.Project.Pipelines))
	for _, ps := range b.Project.Pipelines {
		b.pipeline = ps.Name
		mods, err := b.modules(ps.Modules)
		if err != nil {
			return nil, err
		}
		out = append(out, core.NewPipeline(ps.Name, mods...).WithDependencies(ps.Dependencies...))
	}
	return out, nil
}

func (b *Builder) modules(specs []ModuleSpec) ([]core.Module, error) {
	reg := b.Registry
	if reg == nil {
		reg = DefaultRegistry()
	}
	out := make([]core.Module, 0, len(specs))
	for _, spec := range specs {
		factory, ok := reg[spec.Type]
		if !ok {
			return nil, &ConfigError{
				Pipeline: b.pipeline, Module: spec.Type, Line: spec.Line,
				Err: fmt.Errorf("unknown module type (known: %s)", strings.Join(reg.Types(), ", ")),
			}
		}
		m, err := factory(b, spec)
		if err != nil {
			var ce *ConfigError
			if errors.As(err, &ce) {
				return nil, err
			}
			return nil, &ConfigError{Pipeline: b.pipeline, Module: spec.Type, Line: spec.Line, Err: err}
		}
		if _, parent := m.(core.ParentModule); !parent && len(spec.Modules) > 0 {
			return nil, &ConfigError{
				Pipeline: b.pipeline, Module: spec.Type, Line: spec.Line,
				Err: errors.New("module does not take child modules"),
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// decodeOptions decodes a module's options into out, rejecting unknown keys.
func decodeOptions(spec ModuleSpec, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(spec.Options); err != nil {
		return fmt.Errorf("options: %w", err)
	}
	return nil
}

func buildCreateDocuments(_ *Builder, spec ModuleSpec) (core.Module, error) {
	var opts struct {
		Contents []string `mapstructure:"contents"`
	}
	if err := decodeOptions(spec, &opts); err != nil {
		return nil, err
	}
	return modules.CreateDocuments(opts.Contents...), nil
}

func buildReadFiles(b *Builder, spec ModuleSpec) (core.Module, error) {
	var opts struct {
		Root     string   `mapstructure:"root"`
		Patterns []string `mapstructure:"patterns"`
	}
	if err := decodeOptions(spec, &opts); err != nil {
		return nil, err
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	if len(opts.Patterns) == 0 {
		return nil, fmt.Errorf("patterns is required")
	}
	return modules.ReadFiles(b.Project.resolve(opts.Root), opts.Patterns...), nil
}

func buildWriteFiles(b *Builder, spec ModuleSpec) (core.Module, error) {
	var opts struct {
		Root string `mapstructure:"root"`
	}
	if err := decodeOptions(spec, &opts); err != nil {
		return nil, err
	}
	if opts.Root == "" {
		return nil, fmt.Errorf("root is required")
	}
	return modules.WriteFiles(b.Project.resolve(opts.Root)), nil
}

func buildWithExtension(_ *Builder, spec ModuleSpec) (core.Module, error) {
	var opts struct {
		Extension string `mapstructure:"extension"`
	}
	if err := decodeOptions(spec, &opts); err != nil {
		return nil, err
	}
	return modules.WithExtension(opts.Extension), nil
}

func buildRenderMarkdown(_ *Builder, spec ModuleSpec) (core.Module, error) {
	if err := decodeOptions(spec, &struct{}{}); err != nil {
		return nil, err
	}
	return modules.RenderMarkdown(), nil
}

func buildApplyTemplate(b *Builder, spec ModuleSpec) (core.Module, error) {
	var opts struct {
		Template string `mapstructure:"template"`
		File     string `mapstructure:"file"`
	}
	if err := decodeOptions(spec, &opts); err != nil {
		return nil, err
	}
	switch {
	case opts.Template != "" && opts.File != "":
		return nil, fmt.Errorf("template and file are mutually exclusive")
	case opts.File != "":
		data, err := os.ReadFile(b.Project.resolve(opts.File))
		if err != nil {
			return nil, fmt.Errorf("read template: %w", err)
		}
		opts.Template = string(data)
	case opts.Template == "":
		return nil, fmt.Errorf("template or file is required")
	}
	return modules.ApplyTemplate(opts.Template), nil
}

type keyValueOptions struct {
	Key   string `mapstructure:"key"`
	Value any    `mapstructure:"value"`
}

func buildSetMetadata(_ *Builder, spec ModuleSpec) (core.Module, error) {
	var opts keyValueOptions
	if err := decodeOptions(spec, &opts); err != nil {
		return nil, err
	}
	if opts.Key == "" {
		return nil, fmt.Errorf("key is required")
	}
	return modules.SetMetadata(opts.Key, opts.Value), nil
}

func buildWhereMetadata(_ *Builder, spec ModuleSpec) (core.Module, error) {
	var opts keyValueOptions
	if err := decodeOptions(spec, &opts); err != nil {
		return nil, err
	}
	if opts.Key == "" {
		return nil, fmt.Errorf("key is required")
	}
	return modules.WhereMetadata(opts.Key, opts.Value), nil
}

func buildOrderDocuments(_ *Builder, spec ModuleSpec) (core.Module, error) {
	var opts struct {
		Key        string `mapstructure:"key"`
		Descending bool   `mapstructure:"descending"`
	}
	if err := decodeOptions(spec, &opts); err != nil {
		return nil, err
	}
	if opts.Key == "" {
		return nil, fmt.Errorf("key is required")
	}
	m := modules.OrderDocuments(opts.Key)
	if opts.Descending {
		m = m.Descending()
	}
	return m, nil
}

func buildExchange(ctor func(...string) *modules.Exchange) ModuleFactory {
	return func(_ *Builder, spec ModuleSpec) (core.Module, error) {
		var opts struct {
			Pipelines []string `mapstructure:"pipelines"`
		}
		if err := decodeOptions(spec, &opts); err != nil {
			return nil, err
		}
		return ctor(opts.Pipelines...), nil
	}
}

func buildForEachDocument(b *Builder, spec ModuleSpec) (core.Module, error) {
	var opts struct {
		Parallelism int `mapstructure:"parallelism"`
	}
	if err := decodeOptions(spec, &opts); err != nil {
		return nil, err
	}
	if opts.Parallelism < 0 {
		return nil, fmt.Errorf("parallelism must not be negative")
	}
	kids, err := b.modules(spec.Modules)
	if err != nil {
		return nil, err
	}
	return modules.ForEachDocument(kids...).WithParallelism(opts.Parallelism), nil
}

func buildCacheDocuments(b *Builder, spec ModuleSpec) (core.Module, error) {
	var opts struct {
		Key string `mapstructure:"key"`
	}
	if err := decodeOptions(spec, &opts); err != nil {
		return nil, err
	}
	kids, err := b.modules(spec.Modules)
	if err != nil {
		return nil, err
	}
	code, err := specsCacheCode(spec.Modules)
	if err != nil {
		return nil, err
	}
	store := b.Store
	if store == nil {
		store = cache.NopStore{}
	}
	key := opts.Key + "#" + strconv.FormatInt(int64(code), 10)
	return modules.CacheDocuments(store, kids...).WithKey(key), nil
}

// specsCacheCode folds the type, options and children of each module entry,
// so editing any cached module's configuration changes the cache key.
func specsCacheCode(specs []ModuleSpec) (int32, error) {
	var c core.CacheCode
	c.AddInt(len(specs))
	for _, spec := range specs {
		c.AddString(spec.Type)
		if err := c.AddValue(context.Background(), spec.Options); err != nil {
			return 0, err
		}
		code, err := specsCacheCode(spec.Modules)
		if err != nil {
			return 0, err
		}
		c.Add(code)
	}
	return c.ToCacheCode(), nil
}
