// Package metrics exposes the outcome of the latest collection run as
// Prometheus gauges, written to a node-exporter textfile.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/x1thexxx-lgtm/hostinv/pkg/inventory"
)

const namespace = "hostinv"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the collectors of one process. Each Record replaces the
// previous run's values.
type Metrics struct {
	hosts          *prometheus.GaugeVec
	failures       *prometheus.GaugeVec
	duration       prometheus.Gauge
	lastRun        prometheus.Gauge
	storageDevices prometheus.Gauge
	gpus           prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.hosts = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hosts_total",
		Help:      "Hosts in the last run by outcome",
	}, []string{"outcome"})

	m.failures = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "failures_total",
		Help:      "Failed hosts in the last run by error kind",
	}, []string{"kind"})

	m.duration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of the last run",
	})

	m.lastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished",
	})

	m.storageDevices = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "storage_devices_total",
		Help:      "Storage devices reported by collected hosts",
	})

	m.gpus = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "gpus_total",
		Help:      "GPUs reported by collected hosts",
	})

	m.registry.MustRegister(m.hosts, m.failures, m.duration, m.lastRun, m.storageDevices, m.gpus)
	return m
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Record sets every gauge from report.
func (m *Metrics) Record(report *inventory.Report) {
	inventories := report.Inventories()
	failures := report.Failures()

	m.hosts.WithLabelValues(OutcomeSuccess).Set(float64(len(inventories)))
	m.hosts.WithLabelValues(OutcomeFailure).Set(float64(len(failures)))

	m.failures.Reset()
	for _, kind := range []inventory.ErrorKind{inventory.KindConnection, inventory.KindCommand} {
		m.failures.WithLabelValues(string(kind)).Set(0)
	}
	for _, f := range failures {
		m.failures.WithLabelValues(string(f.Kind)).Inc()
	}

	var devices, gpus int
	for _, inv := range inventories {
		devices += len(inv.Storage)
		gpus += len(inv.GPU)
	}
	m.storageDevices.Set(float64(devices))
	m.gpus.Set(float64(gpus))

	m.duration.Set(report.Duration().Seconds())
	if !report.FinishedAt.IsZero() {
		m.lastRun.Set(float64(report.FinishedAt.Unix()))
	}
}

// WriteTextfile atomically writes the current values in the text
// exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
