/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exports a Swarm's lifecycle observations as Prometheus
// metrics. Recorder implements swarm.Recorder directly so it can be handed
// to swarm.New without an adapter; ObservePingLatency is driven separately
// by whatever loop watches the Swarm's drained events, since ping latency
// never passes through the Recorder hooks swarm itself calls.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/eclesh/welford"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects counters and gauges for one Swarm's lifetime and
// exposes them on a registry an Exporter can serve.
type Recorder struct {
	registry *prometheus.Registry

	connectionsOpened *prometheus.CounterVec
	connectionsClosed *prometheus.CounterVec
	connectionsActive *prometheus.GaugeVec
	phasesEntered     *prometheus.CounterVec
	meshSize          *prometheus.GaugeVec
	pingLatencyMs     prometheus.Summary
	queueDepth        *prometheus.GaugeVec
	mcacheLookups     *prometheus.CounterVec

	latency *welford.Stats
}

// NewRecorder constructs a Recorder registered against a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		connectionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "p2pcore_connections_opened_total",
			Help: "Connections opened, by direction.",
		}, []string{"direction"}),
		connectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "p2pcore_connections_closed_total",
			Help: "Connections closed, by direction.",
		}, []string{"direction"}),
		connectionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "p2pcore_connections_active",
			Help: "Currently open connections, by direction.",
		}, []string{"direction"}),
		phasesEntered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "p2pcore_phase_entered_total",
			Help: "Pipeline phase transitions observed.",
		}, []string{"phase"}),
		meshSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "p2pcore_mesh_size",
			Help: "Current GossipSub mesh size, by topic.",
		}, []string{"topic"}),
		pingLatencyMs: prometheus.NewSummary(prometheus.SummaryOpts{
			Name:       "p2pcore_ping_latency_ms",
			Help:       "Round-trip ping latency in milliseconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "p2pcore_queue_depth",
			Help: "Pending driver-facing items awaiting drain, by queue.",
		}, []string{"queue"}),
		mcacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "p2pcore_mcache_lookups_total",
			Help: "GossipSub message cache lookups, by outcome.",
		}, []string{"outcome"}),
		latency: welford.New(),
	}
	r.registry.MustRegister(
		r.connectionsOpened,
		r.connectionsClosed,
		r.connectionsActive,
		r.phasesEntered,
		r.meshSize,
		r.pingLatencyMs,
		r.queueDepth,
		r.mcacheLookups,
	)
	return r
}

// ConnectionOpened implements swarm.Recorder.
func (r *Recorder) ConnectionOpened(direction string) {
	r.connectionsOpened.WithLabelValues(direction).Inc()
	r.connectionsActive.WithLabelValues(direction).Inc()
}

// ConnectionClosed implements swarm.Recorder.
func (r *Recorder) ConnectionClosed(direction string) {
	r.connectionsClosed.WithLabelValues(direction).Inc()
	r.connectionsActive.WithLabelValues(direction).Dec()
}

// PhaseEntered implements swarm.Recorder.
func (r *Recorder) PhaseEntered(phase string) {
	r.phasesEntered.WithLabelValues(phase).Inc()
}

// MeshSize implements swarm.Recorder and pubsub.Recorder.
func (r *Recorder) MeshSize(topic string, size int) {
	r.meshSize.WithLabelValues(topic).Set(float64(size))
}

// QueueDepth implements swarm.Recorder.
func (r *Recorder) QueueDepth(actions, events int) {
	r.queueDepth.WithLabelValues("actions").Set(float64(actions))
	r.queueDepth.WithLabelValues("events").Set(float64(events))
}

// McacheHit implements pubsub.Recorder.
func (r *Recorder) McacheHit() {
	r.mcacheLookups.WithLabelValues("hit").Inc()
}

// McacheMiss implements pubsub.Recorder.
func (r *Recorder) McacheMiss() {
	r.mcacheLookups.WithLabelValues("miss").Inc()
}

// ObservePingLatency records a round-trip latency sample. Driven by whatever
// loop watches a Swarm's drained EventPongReceived events; the latency
// running mean/variance (unused by the exporter itself, but available to a
// driver that wants to log it) is kept with welford, the same
// constant-memory rolling estimator the stack's clock-quality code uses.
func (r *Recorder) ObservePingLatency(ms float64) {
	r.pingLatencyMs.Observe(ms)
	r.latency.Add(ms)
}

// LatencyMean returns the running mean of all observed ping latencies, or 0
// if none have been observed yet.
func (r *Recorder) LatencyMean() float64 {
	return r.latency.Mean()
}

// LatencyStddev returns the running standard deviation of observed ping
// latencies, or NaN until at least two samples have been observed (welford's
// own convention).
func (r *Recorder) LatencyStddev() float64 {
	return r.latency.Stddev()
}

// Registry returns the underlying registry, for a caller that wants to
// register additional collectors (e.g. process/go runtime stats) before
// serving it.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Exporter serves a Recorder's registry over HTTP.
type Exporter struct {
	registry *prometheus.Registry
	addr     string
	server   *http.Server
}

// NewExporter constructs an Exporter that will listen on addr (e.g.
// ":9090") when Start is called.
func NewExporter(r *Recorder, addr string) *Exporter {
	return &Exporter{registry: r.registry, addr: addr}
}

// Start serves /metrics in the background. Returns once the listener is up;
// a failure after that point (other than a clean Shutdown) is unrecoverable
// for this Exporter and is reported asynchronously via errCh, sized 1 so the
// send never blocks a caller who isn't listening.
func (e *Exporter) Start() (errCh <-chan error, err error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	e.server = &http.Server{Addr: e.addr, Handler: mux}

	ln, err := net.Listen("tcp", e.addr)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter listening on %s: %w", e.addr, err)
	}
	ch := make(chan error, 1)
	go func() {
		if serveErr := e.server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			ch <- fmt.Errorf("metrics exporter stopped: %w", serveErr)
		}
	}()
	return ch, nil
}

// Shutdown stops serving /metrics, waiting for in-flight scrapes to finish.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e.server == nil {
		return nil
	}
	return e.server.Shutdown(ctx)
}
