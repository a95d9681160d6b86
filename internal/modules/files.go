package modules

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"contentweaver/internal/core"
)

// ReadFiles emits one lazily read document per file under root matching any
// of the patterns (doublestar syntax, e.g. "posts/**/*.md"). Documents are
// ordered by relative path and carry it, slash-separated, as Source.
func ReadFiles(root string, patterns ...string) core.Module {
	return &readFiles{root: root, patterns: append([]string(nil), patterns...)}
}

type readFiles struct {
	root     string
	patterns []string
}

func (*readFiles) Name() string { return "ReadFiles" }

func (r *readFiles) CacheCode(ctx context.Context) (int32, error) {
	var c core.CacheCode
	c.AddString(r.root)
	if err := c.AddValue(ctx, r.patterns); err != nil {
		return 0, err
	}
	return c.ToCacheCode(), nil
}

func (r *readFiles) Execute(ctx context.Context, _ core.ExecutionContext, _ []*core.Document) ([]*core.Document, error) {
	if len(r.patterns) == 0 {
		return nil, fmt.Errorf("at least one pattern is required")
	}
	fsys := os.DirFS(r.root)

	seen := make(map[string]struct{})
	var matches []string
	for _, pattern := range r.patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}
		found, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("globbing %q: %w", pattern, err)
		}
		for _, m := range found {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			matches = append(matches, m)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	sort.Strings(matches)

	out := make([]*core.Document, 0, len(matches))
	for _, rel := range matches {
		out = append(out, core.NewLazyDocument(
			core.FileContent(filepath.Join(r.root, filepath.FromSlash(rel))),
			map[string]any{core.KeySource: rel},
		))
	}
	return out, nil
}

// WriteFiles writes each document's content under root, at its Destination
// or, failing that, its Source path. Input documents pass through unchanged.
// Documents with neither key are an error.
func WriteFiles(root string) core.Module {
	return &writeFiles{root: root}
}

// WithExtension sets Destination to the Source path with its extension
// replaced by ext (e.g. ".html"), for documents without a Destination.
func WithExtension(ext string) core.Module {
	return MapDocuments(func(_ context.Context, d *core.Document) (*core.Document, error) {
		if d.GetString(core.KeyDestination) != "" {
			return d, nil
		}
		src := d.GetString(core.KeySource)
		if src == "" {
			return d, nil
		}
		return d.WithMetadata(core.KeyDestination, strings.TrimSuffix(src, path.Ext(src))+ext), nil
	})
}

type writeFiles struct {
	root string
}

func (*writeFiles) Name() string { return "WriteFiles" }

func (w *writeFiles) CacheCode(context.Context) (int32, error) {
	var c core.CacheCode
	c.AddString(w.root)
	return c.ToCacheCode(), nil
}

func (w *writeFiles) Execute(ctx context.Context, _ core.ExecutionContext, inputs []*core.Document) ([]*core.Document, error) {
	for i, d := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel := d.GetString(core.KeyDestination)
		if rel == "" {
			rel = d.GetString(core.KeySource)
		}
		if rel == "" {
			return nil, fmt.Errorf("document %d has no %s or %s", i, core.KeyDestination, core.KeySource)
		}
		local := filepath.FromSlash(rel)
		if !filepath.IsLocal(local) {
			return nil, fmt.Errorf("document %d: destination %q escapes the output directory", i, rel)
		}
		content, err := d.Content(ctx)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		if err := writeFileAtomic(filepath.Join(w.root, local), content); err != nil {
			return nil, fmt.Errorf("writing %s: %w", rel, err)
		}
	}
	return core.CloneDocuments(inputs), nil
}

func writeFileAtomic(p string, data []byte) error {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(p)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, p)
}
