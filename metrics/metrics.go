// Package metrics records run statistics and writes them as a node_exporter
// textfile.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "epg"

type Recorder struct {
	registry *prometheus.Registry

	lastRun    *prometheus.GaugeVec
	channels   *prometheus.GaugeVec
	programmes *prometheus.GaugeVec
	fallback   *prometheus.GaugeVec
	requests   *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed guide run.",
		}, []string{"source"}),
		channels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels",
			Help:      "Channels written by the last run.",
		}, []string{"source"}),
		programmes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "programmes",
			Help:      "Programmes written by the last run.",
		}, []string{"source"}),
		fallback: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fallback",
			Help:      "1 if the last run wrote fallback data.",
		}, []string{"source"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Upstream HTTP requests by host and status class.",
		}, []string{"host", "code"}),
	}
	r.registry.MustRegister(r.lastRun, r.channels, r.programmes, r.fallback, r.requests)
	return r
}

// ObserveRun records the outcome of one guide run.
func (r *Recorder) ObserveRun(source string, channels, programmes int, fallback bool, at time.Time) {
	r.lastRun.WithLabelValues(source).Set(float64(at.Unix()))
	r.channels.WithLabelValues(source).Set(float64(channels))
	r.programmes.WithLabelValues(source).Set(float64(programmes))
	v := 0.0
	if fallback {
		v = 1
	}
	r.fallback.WithLabelValues(source).Set(v)
}

// ObserveRequest counts one upstream request. A zero status means the
// request failed before a response arrived.
func (r *Recorder) ObserveRequest(host string, status int) {
	r.requests.WithLabelValues(host, statusClass(status)).Inc()
}

// WriteTextfile atomically writes all metrics to path.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
