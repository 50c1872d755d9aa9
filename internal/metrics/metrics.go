package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

const namespace = "crmsync"

// Metrics holds the per-run collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	RowsFetched  prometheus.Counter
	RowsUpserted prometheus.Counter
	RowsFailed   prometheus.Counter
	RowsDeleted  prometheus.Counter

	SchemaColumns prometheus.Gauge
	RunDuration   prometheus.Gauge
	LastSuccess   prometheus.Gauge

	registry *prometheus.Registry
	job      string
	entity   string
}

// New creates collectors on a private registry for one run of job. The entity
// becomes a grouping label when pushed.
func New(job, entity string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		job:      job,
		entity:   entity,
	}

	m.RowsFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_fetched_total",
		Help:      "Records fetched from the CRM",
	})
	m.RowsUpserted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_upserted_total",
		Help:      "Master rows affected by the merge",
	})
	m.RowsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_failed_total",
		Help:      "Rows rejected by the warehouse while staging",
	})
	m.RowsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_deleted_total",
		Help:      "Master rows removed by reconciliation",
	})
	m.SchemaColumns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "schema_columns",
		Help:      "Columns in the master table after evolution",
	})
	m.RunDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of the last run",
	})
	m.LastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful run",
	})

	m.registry.MustRegister(
		m.RowsFetched,
		m.RowsUpserted,
		m.RowsFailed,
		m.RowsDeleted,
		m.SchemaColumns,
		m.RunDuration,
		m.LastSuccess,
	)
	return m
}

// Registry returns the registry holding the run's collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Fetched(n int) {
	if m != nil {
		m.RowsFetched.Add(float64(n))
	}
}

func (m *Metrics) Upserted(n int64) {
	if m != nil {
		m.RowsUpserted.Add(float64(n))
	}
}

func (m *Metrics) Failed(n int) {
	if m != nil {
		m.RowsFailed.Add(float64(n))
	}
}

func (m *Metrics) Deleted(n int64) {
	if m != nil {
		m.RowsDeleted.Add(float64(n))
	}
}

func (m *Metrics) Columns(n int) {
	if m != nil {
		m.SchemaColumns.Set(float64(n))
	}
}

// Finish records the run duration and, on success, the completion time.
func (m *Metrics) Finish(d time.Duration, success bool) {
	if m == nil {
		return
	}
	m.RunDuration.Set(d.Seconds())
	if success {
		m.LastSuccess.SetToCurrentTime()
	}
}

// Push sends the registry to a Pushgateway. An empty url does nothing. Failures
// are logged and never returned.
func (m *Metrics) Push(ctx context.Context, url string, logger *zap.Logger) {
	if m == nil || url == "" {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pusher := push.New(url, m.job).
		Gatherer(m.registry).
		Grouping("entity", m.entity)
	if err := pusher.PushContext(ctx); err != nil {
		logger.Warn("failed to push metrics", zap.String("url", url), zap.Error(fmt.Errorf("push %s: %w", m.job, err)))
		return
	}
	logger.Debug("pushed metrics", zap.String("url", url), zap.String("job", m.job))
}
