// Package metrics exposes participant counters to Prometheus. It
// implements the dds.Observer interface so the hot paths stay free of any
// Prometheus types.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Observer backs a dds.Observer with Prometheus collectors. Each Observer
// owns its registry, so several participants in one process export
// independently.
type Observer struct {
	registry *prometheus.Registry

	participantsKnown  prometheus.Gauge
	participantsTotal  prometheus.Counter
	samplesWritten     *prometheus.CounterVec
	samplesReceived    *prometheus.CounterVec
	samplesLost        *prometheus.CounterVec
	malformedDatagrams prometheus.Counter
}

// New creates an Observer with all collectors registered.
func New() *Observer {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Observer{
		registry: reg,
		participantsKnown: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flumedds_participants_known",
			Help: "Number of remote participants currently tracked",
		}),
		participantsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "flumedds_participants_discovered_total",
			Help: "Total number of remote participants ever discovered",
		}),
		samplesWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flumedds_samples_written_total",
			Help: "Total number of samples written, by topic",
		}, []string{"topic"}),
		samplesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flumedds_samples_received_total",
			Help: "Total number of valid samples delivered to readers, by topic",
		}, []string{"topic"}),
		samplesLost: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flumedds_samples_lost_total",
			Help: "Total number of samples detected as lost, by topic",
		}, []string{"topic"}),
		malformedDatagrams: factory.NewCounter(prometheus.CounterOpts{
			Name: "flumedds_malformed_datagrams_total",
			Help: "Total number of datagrams dropped as malformed",
		}),
	}
}

// ParticipantDiscovered implements dds.Observer.
func (o *Observer) ParticipantDiscovered() {
	o.participantsKnown.Inc()
	o.participantsTotal.Inc()
}

// ParticipantLost implements dds.Observer.
func (o *Observer) ParticipantLost() {
	o.participantsKnown.Dec()
}

// SampleWritten implements dds.Observer.
func (o *Observer) SampleWritten(topic string) {
	o.samplesWritten.WithLabelValues(topic).Inc()
}

// SampleReceived implements dds.Observer.
func (o *Observer) SampleReceived(topic string) {
	o.samplesReceived.WithLabelValues(topic).Inc()
}

// SamplesLost implements dds.Observer.
func (o *Observer) SamplesLost(topic string, count int) {
	o.samplesLost.WithLabelValues(topic).Add(float64(count))
}

// MalformedDatagram implements dds.Observer.
func (o *Observer) MalformedDatagram() {
	o.malformedDatagrams.Inc()
}

// Handler serves this observer's registry over HTTP.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

// Serve runs a metrics HTTP server on addr under /metrics. It blocks like
// http.ListenAndServe.
func (o *Observer) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", o.Handler())
	return http.ListenAndServe(addr, mux)
}
