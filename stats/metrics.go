package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	metricsNamespace = "mailscan"
	DefaultPushJob   = "mailscan_to_drive"
)

// Metrics mirrors run events into a private Prometheus registry that is pushed
// once at the end of a run.
type Metrics struct {
	registry *prometheus.Registry

	ItemsTotal      *prometheus.CounterVec
	LastRunDuration prometheus.Gauge
	LastRunTime     prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		ItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "items_total",
				Help:      "Mail items seen by the last run, by outcome",
			},
			[]string{"outcome"},
		),
		LastRunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run in seconds",
		}),
		LastRunTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
	// Zero series so every outcome is present in the pushed group.
	for _, t := range EventTypes() {
		m.ItemsTotal.WithLabelValues(string(t))
	}
	return m
}

func (m *Metrics) Handle(evt Event) {
	m.ItemsTotal.WithLabelValues(string(evt.Type)).Inc()
}

func (m *Metrics) ObserveRun(finished time.Time, duration time.Duration) {
	m.LastRunDuration.Set(duration.Seconds())
	m.LastRunTime.Set(float64(finished.Unix()))
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Push replaces the job's metric group on the pushgateway at url.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if job == "" {
		job = DefaultPushJob
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
