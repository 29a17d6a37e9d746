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

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/facebook/p2pcore/iface"
	"github.com/facebook/p2pcore/metrics"
	"github.com/facebook/p2pcore/rng"
	"github.com/facebook/p2pcore/swarm"
)

var (
	runListenFlag      string
	runDialFlag        []string
	runSubscribeFlag   []string
	runMetricsAddrFlag string
)

func init() {
	RootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runListenFlag, "listen", ":4001", "host:port to accept inbound connections on")
	runCmd.Flags().StringArrayVar(&runDialFlag, "dial", nil, "multiaddr to dial at startup; may be repeated")
	runCmd.Flags().StringArrayVar(&runSubscribeFlag, "subscribe", nil, "topic to subscribe to at startup; may be repeated")
	runCmd.Flags().StringVar(&runMetricsAddrFlag, "metrics-addr", ":9090", "host:port to serve Prometheus /metrics on, empty to disable")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a node: accept connections, dial peers, and relay GossipSub traffic",
	RunE: func(_ *cobra.Command, _ []string) error {
		ConfigureVerbosity()
		return runNode()
	},
}

func runNode() error {
	kp, err := loadOrCreateIdentity(rootIdentityFlag)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(rootConfigFlag)
	if err != nil {
		return err
	}
	log.Infof("starting as %s", kp.Id.EncodeBase58())

	rec := metrics.NewRecorder()
	seed, err := cryptoSeed()
	if err != nil {
		return err
	}
	sw := swarm.New(cfg, kp, rng.New(seed), rec)
	driver := NewDriver(sw, rec)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if runMetricsAddrFlag != "" {
		exporter := metrics.NewExporter(rec, runMetricsAddrFlag)
		errCh, err := exporter.Start()
		if err != nil {
			return err
		}
		log.Infof("serving metrics on %s/metrics", runMetricsAddrFlag)
		g.Go(func() error {
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				return exporter.Shutdown(shutdownCtx)
			}
		})

		if sys, err := metrics.NewSysStats(rec); err != nil {
			log.Warnf("process stats unavailable: %v", err)
		} else {
			stop := make(chan struct{})
			g.Go(func() error { <-ctx.Done(); close(stop); return nil })
			g.Go(func() error { sys.Run(stop, 5*time.Second); return nil })
		}
	}

	if err := driver.Listen(ctx, g, runListenFlag); err != nil {
		return err
	}
	for _, addr := range runDialFlag {
		if err := driver.Dial(ctx, g, addr); err != nil {
			log.Errorf("dial %s: %v", addr, err)
		}
	}
	for _, topic := range runSubscribeFlag {
		if err := driver.Subscribe(topic, ""); err != nil {
			log.Errorf("subscribe %s: %v", topic, err)
		}
	}

	g.Go(func() error { return watchEvents(ctx, driver, rec) })

	if supported, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
		log.Warnf("sd_notify failed: %v", notifyErr)
	} else if !supported {
		log.Debug("sd_notify not supported, skipping readiness notification")
	}

	return g.Wait()
}

// watchEvents polls the driver's drained events and logs them, forwarding
// ping latency samples into the Recorder. Events are only ever produced as
// a side effect of a socket read or fired timer, both already serialized
// through the driver's lock, so polling here on a short interval is just a
// convenient rendezvous point rather than a correctness requirement.
func watchEvents(ctx context.Context, d *Driver, rec *metrics.Recorder) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, ev := range d.DrainEvents() {
				LogEvent(ev)
				if ev.Kind == iface.EventPongReceived {
					rec.ObservePingLatency(float64(ev.LatencyMs))
				}
			}
		}
	}
}
