package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LatencyBuckets covers API handlers (tens of ms) up to provider calls that run into the
// gateway timeout.
var LatencyBuckets = []float64{
	10, 25, 50, 100, 250, 500,
	1000, 2000, 3000, 5000,
	10000, 20000, 30000, 60000,
}

type MetricType string

const (
	MetricTypeCounterVec   MetricType = "counter_vec"
	MetricTypeHistogramVec MetricType = "histogram_vec"
	MetricTypeSummaryVec   MetricType = "summary_vec"
)

// Metric describes one labeled collector of the HTTP middleware.
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            MetricType
	Args            []string
}

// NewMetric builds the collector for m. Only the vector types the middleware uses are
// supported.
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	switch m.Type {
	case MetricTypeCounterVec:
		return prometheus.NewCounterVec(prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	case MetricTypeHistogramVec:
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: LatencyBuckets}, m.Args)
	case MetricTypeSummaryVec:
		return prometheus.NewSummaryVec(prometheus.SummaryOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	}
	panic(fmt.Sprintf("metrics: unsupported metric type %q for %s", m.Type, m.Name))
}

// RefererKey feeds the "ref" label; clients set it to name the calling screen.
const RefererKey = "X-Referer"

// MillisecondsSince returns the elapsed time since start in fractional milliseconds.
func MillisecondsSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
