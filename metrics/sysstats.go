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

package metrics

import (
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/process"
)

var processStartTime = time.Now()

// SysStats samples this process's own resource usage and exposes it as
// gauges on the same registry as the connection/pubsub metrics, so a single
// /metrics scrape carries both.
type SysStats struct {
	proc *process.Process

	uptimeSeconds prometheus.Gauge
	rssBytes      prometheus.Gauge
	vmsBytes      prometheus.Gauge
	cpuPercent    prometheus.Gauge
	numFDs        prometheus.Gauge
	numGoroutine  prometheus.Gauge
}

// NewSysStats registers self-process gauges on r's registry. Sample must be
// called periodically to refresh them; gopsutil's process.Process does not
// poll on its own.
func NewSysStats(r *Recorder) (*SysStats, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	s := &SysStats{
		proc: proc,
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "p2pcore_process_uptime_seconds",
			Help: "Seconds since this process started.",
		}),
		rssBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "p2pcore_process_rss_bytes",
			Help: "Resident set size.",
		}),
		vmsBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "p2pcore_process_vms_bytes",
			Help: "Virtual memory size.",
		}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "p2pcore_process_cpu_percent",
			Help: "CPU usage percent since the previous sample.",
		}),
		numFDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "p2pcore_process_open_fds",
			Help: "Open file descriptors.",
		}),
		numGoroutine: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "p2pcore_process_goroutines",
			Help: "Live goroutines, from runtime.NumGoroutine.",
		}),
	}
	r.registry.MustRegister(s.uptimeSeconds, s.rssBytes, s.vmsBytes, s.cpuPercent, s.numFDs, s.numGoroutine)
	return s, nil
}

// Sample refreshes every gauge from the current process state. A metric
// whose gopsutil call fails on this platform is left at its last value.
func (s *SysStats) Sample() {
	s.uptimeSeconds.Set(time.Since(processStartTime).Seconds())
	s.numGoroutine.Set(float64(runtime.NumGoroutine()))

	if pct, err := s.proc.Percent(0); err == nil {
		s.cpuPercent.Set(pct)
	}
	if mem, err := s.proc.MemoryInfo(); err == nil {
		s.rssBytes.Set(float64(mem.RSS))
		s.vmsBytes.Set(float64(mem.VMS))
	}
	if n, err := s.proc.NumFDs(); err == nil {
		s.numFDs.Set(float64(n))
	}
}

// Run samples every interval until stop is closed. Intended to be started with
// errgroup.Go by the same caller that starts the Exporter.
func (s *SysStats) Run(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.Sample()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Sample()
		}
	}
}
