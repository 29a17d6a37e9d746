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

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/facebook/p2pcore/iface"
	"github.com/facebook/p2pcore/metrics"
	"github.com/facebook/p2pcore/rng"
	"github.com/facebook/p2pcore/swarm"
)

var dialTimeoutFlag time.Duration

func init() {
	RootCmd.AddCommand(dialCmd)
	dialCmd.Flags().DurationVar(&dialTimeoutFlag, "timeout", 10*time.Second, "how long to wait for the handshake and identify to complete")
}

var dialCmd = &cobra.Command{
	Use:   "dial <multiaddr>",
	Short: "Dial a single peer, print its identify record, and exit",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ConfigureVerbosity()
		return dialOnce(args[0])
	},
}

func dialOnce(addr string) error {
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

	sw := swarm.New(cfg, kp, rng.New(seed), nil)
	driver := NewDriver(sw, metrics.NewRecorder())

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeoutFlag)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if err := driver.Dial(ctx, g, addr); err != nil {
		return err
	}

	done := make(chan iface.Event, 1)
	g.Go(func() error {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				for _, ev := range driver.DrainEvents() {
					LogEvent(ev)
					if ev.Kind == iface.EventIdentified || ev.Kind == iface.EventConnectionClosed {
						select {
						case done <- ev:
						default:
						}
					}
				}
			}
		}
	})

	select {
	case ev := <-done:
		cancel()
		_ = g.Wait()
		if ev.Kind != iface.EventIdentified {
			return fmt.Errorf("connection closed before identify completed: %v", ev.Reason)
		}
		fmt.Fprintf(os.Stdout, "%s %s\n", color.GreenString("identified:"), ev.Peer.EncodeBase58())
		fmt.Fprintf(os.Stdout, "protocols: %v\n", ev.Info.Protocols)
		fmt.Fprintf(os.Stdout, "agent: %s\n", ev.Info.AgentVersion)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for %s to identify", addr)
	}
}
