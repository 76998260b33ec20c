// Package historymetrics exposes the prometheus gauges and counters this
// module publishes, grounded on ws/metrics.go's naming and construction
// idioms in the teacher (prometheus.NewGauge/NewCounter/NewHistogramVec).
package historymetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every exported series. Registry is safe to call on a nil
// *Metrics; the series fields are not, so a caller holding a possibly-nil
// *Metrics checks for nil before touching them.
type Metrics struct {
	reg *prometheus.Registry

	ObjectsTotal   prometheus.Gauge
	DirtyObjects   prometheus.Gauge
	LinesTotal     prometheus.Gauge
	DiskErrors     prometheus.Counter
	TickDuration   prometheus.Histogram
	BytesOnDisk    prometheus.Gauge
}

// New registers and returns a fresh Metrics set against a private
// registry (so multiple Store instances, e.g. in tests, don't collide on
// the default global registry).
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		ObjectsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "history_objects_total",
			Help: "Number of objects (channels) with a live history log.",
		}),
		DirtyObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "history_dirty_objects",
			Help: "Number of logs with unflushed changes.",
		}),
		LinesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "history_lines_total",
			Help: "Total number of lines held across all logs.",
		}),
		DiskErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "history_disk_errors_total",
			Help: "Total number of persistence read/write failures.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "history_tick_duration_seconds",
			Help:    "Duration of each expiry scheduler tick.",
			Buckets: prometheus.DefBuckets,
		}),
		BytesOnDisk: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "history_bytes_on_disk",
			Help: "Approximate bytes written across all per-object files in the last sweep.",
		}),
	}
	reg.MustRegister(m.ObjectsTotal, m.DirtyObjects, m.LinesTotal, m.DiskErrors, m.TickDuration, m.BytesOnDisk)
	return m
}

// Registry returns the private registry, e.g. for wiring promhttp.Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}
