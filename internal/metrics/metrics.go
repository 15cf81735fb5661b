package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shelfarr/shelfbrowse/internal/catalog"
)

// Recorder exports fetch cycle and HTTP metrics. It implements catalog.Observer.
type Recorder struct {
	registry *prometheus.Registry

	cycles         *prometheus.CounterVec
	cycleDuration  *prometheus.HistogramVec
	droppedRecords prometheus.Counter
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

// NewRecorder creates a recorder registered on its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfbrowse_fetch_cycles_total",
			Help: "Resolved catalog fetch cycles by outcome",
		}, []string{"topic", "outcome"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shelfbrowse_fetch_cycle_duration_seconds",
			Help:    "Duration of catalog searches in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		droppedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shelfbrowse_dropped_records_total",
			Help: "Search records dropped for missing authors or cover",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfbrowse_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shelfbrowse_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
	}
	r.registry.MustRegister(r.cycles, r.cycleDuration, r.droppedRecords, r.HTTPRequests, r.HTTPDuration)
	return r
}

// Registry exposes the registry for the /metrics handler
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) CycleSettled(rep catalog.CycleReport) {
	r.observe(rep)
	r.droppedRecords.Add(float64(rep.Dropped))
}

func (r *Recorder) CycleDiscarded(rep catalog.CycleReport) {
	r.observe(rep)
}

func (r *Recorder) observe(rep catalog.CycleReport) {
	outcome := rep.Outcome()
	r.cycles.WithLabelValues(string(rep.Topic), outcome).Inc()
	r.cycleDuration.WithLabelValues(outcome).Observe(rep.Duration.Seconds())
}
