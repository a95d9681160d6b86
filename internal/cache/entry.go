package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"contentweaver/internal/core"
)

// entry is the serialized form of a cached document set.
//
// Content is materialized; metadata values go through JSON, so integers come
// back as int64, other numbers as float64, and structs as maps.
type entry struct {
	Key       Key             `json:"key"`
	Documents []documentEntry `json:"documents"`
}

type documentEntry struct {
	Metadata map[string]any `json:"metadata,omitempty"`
	Content  []byte         `json:"content"`
}

func encodeEntry(ctx context.Context, key Key, docs []*core.Document) ([]byte, error) {
	e := entry{Key: key, Documents: make([]documentEntry, 0, len(docs))}
	for i, d := range docs {
		if d == nil {
			return nil, fmt.Errorf("document %d is nil", i)
		}
		content, err := d.Content(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading document %d content: %w", i, err)
		}
		e.Documents = append(e.Documents, documentEntry{
			Metadata: d.Metadata().ToMap(),
			Content:  content,
		})
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshaling cache entry: %w", err)
	}
	return data, nil
}

func decodeEntry(key Key, data []byte) ([]*core.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var e entry
	if err := dec.Decode(&e); err != nil {
		return nil, fmt.Errorf("parsing cache entry: %w", err)
	}
	if e.Key != key {
		return nil, fmt.Errorf("cache entry key mismatch: want %s, got %s", key, e.Key)
	}
	docs := make([]*core.Document, 0, len(e.Documents))
	for _, de := range e.Documents {
		meta := make(map[string]any, len(de.Metadata))
		for k, v := range de.Metadata {
			meta[k] = normalizeNumbers(v)
		}
		docs = append(docs, core.NewDocument(de.Content, meta))
	}
	return docs, nil
}

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeNumbers(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalizeNumbers(e)
		}
		return out
	default:
		return v
	}
}
