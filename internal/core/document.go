package core

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Well-known metadata keys.
const (
	// KeySource is the path a document was read from.
	KeySource = "Source"
	// KeyDestination is the path a document should be written to.
	KeyDestination = "Destination"
)

// ContentProvider materializes document content on demand.
type ContentProvider interface {
	Bytes(ctx context.Context) ([]byte, error)
}

// BytesContent is an in-memory ContentProvider.
type BytesContent []byte

// Bytes returns a copy of the content.
func (b BytesContent) Bytes(context.Context) ([]byte, error) {
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// FileContent lazily reads content from a file path.
type FileContent string

func (f FileContent) Bytes(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("reading content from %s: %w", string(f), err)
	}
	return b, nil
}

type metaEntry struct {
	key   string
	value any
}

// Metadata is an immutable, case-insensitive key/value mapping.
//
// The original casing of the first insertion of a key is retained for display.
type Metadata struct {
	entries map[string]metaEntry
}

// NewMetadata builds Metadata from a plain map. Keys that collide
// case-insensitively keep the lexically last original key.
func NewMetadata(values map[string]any) Metadata {
	m := Metadata{entries: make(map[string]metaEntry, len(values))}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.entries[normalizeKey(k)] = metaEntry{key: k, value: cloneValue(values[k])}
	}
	return m
}

// cloneValue copies the mutable container types metadata may hold, so a
// document never shares a slice or map with its caller.
func cloneValue(v any) any {
	switch x := v.(type) {
	case []string:
		return append([]string(nil), x...)
	case []byte:
		return append([]byte(nil), x...)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func normalizeKey(k string) string { return strings.ToLower(k) }

// Len returns the number of entries.
func (m Metadata) Len() int { return len(m.entries) }

// Get returns the value for key, matched case-insensitively.
func (m Metadata) Get(key string) (any, bool) {
	e, ok := m.entries[normalizeKey(key)]
	return cloneValue(e.value), ok
}

// Keys returns the original keys sorted by their normalized form.
func (m Metadata) Keys() []string {
	norm := make([]string, 0, len(m.entries))
	for k := range m.entries {
		norm = append(norm, k)
	}
	sort.Strings(norm)
	out := make([]string, 0, len(norm))
	for _, k := range norm {
		out = append(out, m.entries[k].key)
	}
	return out
}

// ToMap returns a fresh plain map keyed by original keys.
func (m Metadata) ToMap() map[string]any {
	out := make(map[string]any, len(m.entries))
	for _, e := range m.entries {
		out[e.key] = cloneValue(e.value)
	}
	return out
}

func (m Metadata) with(values map[string]any) Metadata {
	next := Metadata{entries: make(map[string]metaEntry, len(m.entries)+len(values))}
	for k, e := range m.entries {
		next.entries[k] = e
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		next.entries[normalizeKey(k)] = metaEntry{key: k, value: cloneValue(values[k])}
	}
	return next
}

// Document is an immutable unit of content plus metadata.
//
// Documents carry no pipeline identity. "Modifying" a document means creating
// a new one through WithContent / WithMetadata; the receiver never changes, so
// pointers to a Document may be shared freely between pipelines.
//
// Two documents with the same content and metadata produce the same cache
// code. Equal codes are treated as equal content for caching purposes even
// though collisions are possible.
type Document struct {
	metadata Metadata
	content  ContentProvider
}

// NewDocument creates a document with in-memory content.
func NewDocument(content []byte, metadata map[string]any) *Document {
	c := make(BytesContent, len(content))
	copy(c, content)
	return &Document{metadata: NewMetadata(metadata), content: c}
}

// NewStringDocument creates a document from string content.
func NewStringDocument(content string, metadata map[string]any) *Document {
	return &Document{metadata: NewMetadata(metadata), content: BytesContent(content)}
}

// NewLazyDocument creates a document whose content is read on demand.
func NewLazyDocument(content ContentProvider, metadata map[string]any) *Document {
	return &Document{metadata: NewMetadata(metadata), content: content}
}

// Metadata returns the document metadata.
func (d *Document) Metadata() Metadata { return d.metadata }

// Get returns a metadata value.
func (d *Document) Get(key string) (any, bool) { return d.metadata.Get(key) }

// GetString returns a metadata value formatted as a string, or "" when absent.
func (d *Document) GetString(key string) string {
	v, ok := d.metadata.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Content materializes the document content.
func (d *Document) Content(ctx context.Context) ([]byte, error) {
	if d.content == nil {
		return nil, nil
	}
	return d.content.Bytes(ctx)
}

// ContentString materializes the document content as a string.
func (d *Document) ContentString(ctx context.Context) (string, error) {
	b, err := d.Content(ctx)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WithContent returns a new document with the same metadata and new content.
func (d *Document) WithContent(content []byte) *Document {
	c := make(BytesContent, len(content))
	copy(c, content)
	return &Document{metadata: d.metadata, content: c}
}

// WithMetadata returns a new document with one metadata entry set.
func (d *Document) WithMetadata(key string, value any) *Document {
	return d.WithValues(map[string]any{key: value})
}

// WithValues returns a new document with the given metadata entries merged in.
func (d *Document) WithValues(values map[string]any) *Document {
	return &Document{metadata: d.metadata.with(values), content: d.content}
}

// CacheCode folds metadata in normalized key order (key then value) and then
// the CRC-32 of the content.
func (d *Document) CacheCode(ctx context.Context) (int32, error) {
	var code CacheCode
	norm := make([]string, 0, len(d.metadata.entries))
	for k := range d.metadata.entries {
		norm = append(norm, k)
	}
	sort.Strings(norm)
	for _, k := range norm {
		code.AddString(k)
		if err := code.AddValue(ctx, d.metadata.entries[k].value); err != nil {
			return 0, fmt.Errorf("metadata %q: %w", d.metadata.entries[k].key, err)
		}
	}
	content, err := d.Content(ctx)
	if err != nil {
		return 0, err
	}
	code.AddBytes(content)
	return code.ToCacheCode(), nil
}

// DocumentsCacheCode folds the cache code of each document in order.
func DocumentsCacheCode(ctx context.Context, docs []*Document) (int32, error) {
	var code CacheCode
	code.AddInt(len(docs))
	for _, d := range docs {
		if d == nil {
			code.Add(0)
			continue
		}
		if err := code.AddObject(ctx, d); err != nil {
			return 0, err
		}
	}
	return code.ToCacheCode(), nil
}

// CloneDocuments returns a new slice holding the same immutable documents.
func CloneDocuments(docs []*Document) []*Document {
	if docs == nil {
		return nil
	}
	out := make([]*Document, len(docs))
	copy(out, docs)
	return out
}
