package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"contentweaver/internal/logger"
)

func TestMetrics_RecordsPipelineStates(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PipelineFinished("COMPLETED", true, 10*time.Millisecond)
	m.PipelineFinished("COMPLETED", true, 20*time.Millisecond)
	m.PipelineFinished("SKIPPED", false, 0)

	require.InDelta(t, 2, testutil.ToFloat64(m.pipelines.WithLabelValues("COMPLETED")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.pipelines.WithLabelValues("SKIPPED")), 0)

	count, err := testutil.GatherAndCount(reg, "contentweaver_pipeline_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestMetrics_CacheLookups(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)

	expected := `
# HELP contentweaver_cache_lookups_total The total number of document cache lookups by result.
# TYPE contentweaver_cache_lookups_total counter
contentweaver_cache_lookups_total{result="hit"} 1
contentweaver_cache_lookups_total{result="miss"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "contentweaver_cache_lookups_total"))
}

func TestMetrics_ModuleOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ModuleExecuted("RenderMarkdown", nil, time.Millisecond)
	m.ModuleExecuted("RenderMarkdown", errors.New("boom"), time.Millisecond)

	count, err := testutil.GatherAndCount(reg, "contentweaver_module_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.PipelineFinished("FAULTED", true, time.Second)
	m.ModuleExecuted("x", nil, time.Second)
	m.CacheLookup(true)
}

func TestServe_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", prometheus.NewRegistry(), logger.NewNoopLogger()) }()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
