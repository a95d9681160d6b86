// Package telemetry exposes engine metrics through Prometheus.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"contentweaver/internal/logger"
)

const namespace = "contentweaver"

// Metrics holds the engine collectors. A nil *Metrics records nothing.
type Metrics struct {
	pipelines        *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
	moduleDuration   *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
}

// New registers the engine collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		pipelines: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipelines_total",
			Help:      "The total number of pipelines that reached a terminal state.",
		}, []string{"state"}),
		pipelineDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Wall time of pipelines that ran, by terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"state"}),
		moduleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "module_duration_seconds",
			Help:      "Wall time of individual module executions.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"module", "outcome"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "The total number of document cache lookups by result.",
		}, []string{"result"}),
	}
}

// PipelineFinished records a pipeline's terminal state. ran is false for
// pipelines that never started, which are counted but not timed.
func (m *Metrics) PipelineFinished(state string, ran bool, d time.Duration) {
	if m == nil {
		return
	}
	m.pipelines.WithLabelValues(state).Inc()
	if ran {
		m.pipelineDuration.WithLabelValues(state).Observe(d.Seconds())
	}
}

// ModuleExecuted records one module execution.
func (m *Metrics) ModuleExecuted(module string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.moduleDuration.WithLabelValues(module, outcome).Observe(d.Seconds())
}

// CacheLookup records a document cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Serve exposes g on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
