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
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/facebook/p2pcore/metrics"
	"github.com/facebook/p2pcore/rng"
	"github.com/facebook/p2pcore/swarm"
)

var consoleListenFlag string

func init() {
	RootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().StringVar(&consoleListenFlag, "listen", ":4001", "host:port to accept inbound connections on")
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive REPL around a running node: dial, subscribe, publish, peers, dump",
	RunE: func(_ *cobra.Command, _ []string) error {
		ConfigureVerbosity()
		return runConsole()
	},
}

func runConsole() error {
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if err := driver.Listen(ctx, g, consoleListenFlag); err != nil {
		return err
	}
	g.Go(func() error { return watchEvents(ctx, driver, rec) })

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	prompt := "p2pnode> "
	if interactive {
		prompt = color.CyanString("p2pnode> ")
	}

	fmt.Printf("local peer id: %s\n", color.GreenString(kp.Id.EncodeBase58()))
	fmt.Println("commands: dial <multiaddr>, subscribe <topic>, publish <topic> <text>, peers, dump, quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(prompt)
		if !scanner.Scan() {
			break
		}
		if err := dispatchConsoleLine(ctx, g, driver, scanner.Text()); err != nil {
			if err == errConsoleQuit {
				break
			}
			fmt.Println(color.RedString("error: %v", err))
		}
	}
	cancel()
	return g.Wait()
}

var errConsoleQuit = fmt.Errorf("quit")

func dispatchConsoleLine(ctx context.Context, g *errgroup.Group, driver *Driver, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "quit", "exit":
		return errConsoleQuit

	case "dial":
		if len(fields) != 2 {
			return fmt.Errorf("usage: dial <multiaddr>")
		}
		return driver.Dial(ctx, g, fields[1])

	case "subscribe":
		if len(fields) != 2 {
			return fmt.Errorf("usage: subscribe <topic>")
		}
		return driver.Subscribe(fields[1], "")

	case "publish":
		if len(fields) < 3 {
			return fmt.Errorf("usage: publish <topic> <text>")
		}
		driver.Publish(fields[1], []byte(strings.Join(fields[2:], " ")))
		return nil

	case "peers":
		peers := driver.Peers()
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"peer id"})
		for _, p := range peers {
			table.Append([]string{p.EncodeBase58()})
		}
		table.Render()
		return nil

	case "dump":
		spew.Dump(driver.DrainEvents())
		return nil

	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}
