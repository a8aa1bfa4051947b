// Package prompush is a metrics.Backend that pushes to a Prometheus
// Pushgateway when the job finishes. A batch job exits before any scraper
// would see it, so push is the only delivery that works.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"avro_etl/internal/metrics"
)

// Backend collects into a private registry and pushes it on Flush. The job
// label is the Pushgateway grouping key, so it is not repeated on series.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry

	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	recordsTotal  *prometheus.CounterVec
	runsTotal     *prometheus.CounterVec
}

// NewBackend registers the collectors. gatewayURL is required.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "avroetl"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StageTotal,
			Help: "Job stage executions by stage and status.",
		}, []string{"stage", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StageDuration,
			Help:    "Job stage duration in seconds by stage and status.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"stage", "status"}),
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Records by kind (decoded, flattened, written).",
		}, []string{"kind"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RunsTotal,
			Help: "Finished runs by status.",
		}, []string{"status"}),
	}

	for _, c := range []prometheus.Collector{b.stageTotal, b.stageDuration, b.recordsTotal, b.runsTotal} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register: %w", err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StageTotal:
		b.stageTotal.WithLabelValues(labels["stage"], labels["status"]).Add(delta)
	case metrics.RecordsTotal:
		b.recordsTotal.WithLabelValues(labels["kind"]).Add(delta)
	case metrics.RunsTotal:
		b.runsTotal.WithLabelValues(labels["status"]).Add(delta)
	}
}

func (b *Backend) ObserveDuration(name string, seconds float64, labels metrics.Labels) {
	if name != metrics.StageDuration {
		return
	}
	b.stageDuration.WithLabelValues(labels["stage"], labels["status"]).Observe(seconds)
}

// Flush pushes the registry, replacing the job's previous group.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).Gatherer(b.reg).Push()
}

// Gatherer exposes the registry, mainly for tests.
func (b *Backend) Gatherer() prometheus.Gatherer { return b.reg }
