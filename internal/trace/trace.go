package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// ExecutionTrace is the canonical, deterministic record of one engine run.
//
// It captures logical outcomes only: no timestamps, no error strings and
// nothing derived from goroutine scheduling. Two runs of the same project over
// the same content produce byte-identical canonical JSON, no matter how the
// pipelines interleaved.
type ExecutionTrace struct {
	GraphHash string
	Events    []TraceEvent
}

// TraceEventKind is the stable discriminator for TraceEvent.
// The string values are part of the canonical bytes; do not rename.
type TraceEventKind string

const (
	EventPipelineCompleted TraceEventKind = "PipelineCompleted"
	EventPipelineFaulted   TraceEventKind = "PipelineFaulted"
	EventPipelineSkipped   TraceEventKind = "PipelineSkipped"
	EventPipelineCancelled TraceEventKind = "PipelineCancelled"
	EventCacheHit          TraceEventKind = "CacheHit"
	EventCacheMiss         TraceEventKind = "CacheMiss"
)

// TraceEvent is a single logical outcome.
type TraceEvent struct {
	Kind TraceEventKind

	// Pipeline is the pipeline the event refers to. Always required.
	Pipeline string

	// Reason is a stable reason code (e.g. "ModuleFault", "UpstreamFailed").
	Reason string

	// Cause names the upstream pipeline responsible for a skip.
	Cause string

	// Key is the cache key of a CacheHit or CacheMiss.
	Key string

	// Documents is the output size of a completed pipeline.
	Documents int
}

// Validate checks basic invariants and returns a descriptive error.
func (t *ExecutionTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.GraphHash == "" {
		return errors.New("graphHash is required")
	}
	for i, e := range t.Events {
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.Pipeline == "" {
			return fmt.Errorf("events[%d].pipeline is required for kind %q", i, e.Kind)
		}
		if isCacheEvent(e.Kind) && e.Key == "" {
			return fmt.Errorf("events[%d].key is required for kind %q", i, e.Kind)
		}
		if e.Kind == EventPipelineSkipped && e.Cause == "" {
			return fmt.Errorf("events[%d].cause is required for kind %q", i, e.Kind)
		}
	}
	return nil
}

func isCacheEvent(kind TraceEventKind) bool {
	return kind == EventCacheHit || kind == EventCacheMiss
}

// Canonicalize sorts the events into a total order keyed by
// (pipeline, kindOrder, key, reason, cause, documents).
func (t *ExecutionTrace) Canonicalize() {
	if t == nil {
		return
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a := t.Events[i]
		b := t.Events[j]

		if a.Pipeline != b.Pipeline {
			return a.Pipeline < b.Pipeline
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		if a.Cause != b.Cause {
			return a.Cause < b.Cause
		}
		return a.Documents < b.Documents
	})
}

func kindOrder(k TraceEventKind) int {
	switch k {
	case EventCacheHit:
		return 10
	case EventCacheMiss:
		return 20
	case EventPipelineCompleted:
		return 30
	case EventPipelineFaulted:
		return 40
	case EventPipelineCancelled:
		return 50
	case EventPipelineSkipped:
		return 60
	default:
		return 1000
	}
}

// CanonicalJSON returns the canonical JSON encoding of the trace.
// It canonicalizes a copy of the trace to avoid mutating the caller's slices.
func (t ExecutionTrace) CanonicalJSON() ([]byte, error) {
	copyTrace := ExecutionTrace{GraphHash: t.GraphHash}
	copyTrace.Events = make([]TraceEvent, len(t.Events))
	copy(copyTrace.Events, t.Events)
	copyTrace.Canonicalize()
	if err := copyTrace.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&copyTrace)
}

// Hash returns the deterministic trace hash of the canonical JSON bytes.
func (t ExecutionTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ComputeTraceHash(b), nil
}

// WriteFile writes the canonical JSON encoding to path, replacing it atomically.
func (t ExecutionTrace) WriteFile(path string) error {
	b, err := t.CanonicalJSON()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating trace directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating trace file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing trace file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing trace file: %w", err)
	}
	return os.Rename(tmpName, path)
}

// MarshalJSON fixes field order.
func (t ExecutionTrace) MarshalJSON() ([]byte, error) {
	if t.GraphHash == "" {
		return nil, errors.New("graphHash is required")
	}
	var buf bytes.Buffer
	buf.WriteString("{\"graphHash\":")
	gh, _ := json.Marshal(t.GraphHash)
	buf.Write(gh)

	buf.WriteString(",\"events\":[")
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// MarshalJSON fixes field order and omits empty optional fields.
func (e TraceEvent) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}

	var buf bytes.Buffer
	buf.WriteString("{\"kind\":")
	kb, _ := json.Marshal(string(e.Kind))
	buf.Write(kb)

	writeString := func(name, v string) {
		if v == "" {
			return
		}
		buf.WriteString(",\"" + name + "\":")
		b, _ := json.Marshal(v)
		buf.Write(b)
	}
	writeString("pipeline", e.Pipeline)
	writeString("reason", e.Reason)
	writeString("cause", e.Cause)
	writeString("key", e.Key)

	if e.Kind == EventPipelineCompleted {
		buf.WriteString(",\"documents\":")
		buf.WriteString(strconv.Itoa(e.Documents))
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
