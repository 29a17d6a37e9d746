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
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/facebook/p2pcore/metrics"
	"github.com/facebook/p2pcore/rng"
	"github.com/facebook/p2pcore/swarm"
)

var (
	peersListenFlag string
	peersDialFlag   []string
	peersWaitFlag   time.Duration
)

func init() {
	RootCmd.AddCommand(peersCmd)
	peersCmd.Flags().StringVar(&peersListenFlag, "listen", ":4001", "host:port to accept inbound connections on")
	peersCmd.Flags().StringArrayVar(&peersDialFlag, "dial", nil, "multiaddr to dial before listing peers; may be repeated")
	peersCmd.Flags().DurationVar(&peersWaitFlag, "wait", 3*time.Second, "how long to let dials and identify settle before printing")
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "Dial the given peers, wait briefly, then print everyone currently identified",
	RunE: func(_ *cobra.Command, _ []string) error {
		ConfigureVerbosity()
		return listPeers()
	},
}

func listPeers() error {
	kp, err := loadOrCreateIdentity(rootIdentityFlag)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(rootConfigFlag)
	if err != nil {
		return err
	}
	seed, err := cryptoSeed()
	if err != nil {
		return err
	}

	rec := metrics.NewRecorder()
	sw := swarm.New(cfg, kp, rng.New(seed), rec)
	driver := NewDriver(sw, rec)

	ctx, cancel := context.WithTimeout(context.Background(), peersWaitFlag)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if err := driver.Listen(ctx, g, peersListenFlag); err != nil {
		return err
	}
	for _, addr := range peersDialFlag {
		if err := driver.Dial(ctx, g, addr); err != nil {
			log.Errorf("dial %s: %v", addr, err)
		}
	}

	g.Go(func() error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				for _, ev := range driver.DrainEvents() {
					LogEvent(ev)
				}
			}
		}
	})

	<-ctx.Done()
	cancel()
	_ = g.Wait()

	peers := driver.Peers()
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"peer id"})
	for _, p := range peers {
		table.Append([]string{p.EncodeBase58()})
	}
	table.Render()
	fmt.Printf("%d peer(s)\n", len(peers))
	return nil
}
