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
	"fmt"
	"net"
	"os"

	"github.com/jsimonetti/rtnetlink/rtnl"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/facebook/p2pcore/multiaddr"
)

var addrsPortFlag uint16

func init() {
	RootCmd.AddCommand(addrsCmd)
	addrsCmd.Flags().Uint16Var(&addrsPortFlag, "port", 4001, "tcp port to show in the printed multiaddrs")
}

// addrsCmd lists this host's non-loopback interface addresses as the
// multiaddrs a peer could dial to reach a node listening on --port here.
// Read via rtnetlink rather than net.Interfaces so the same netlink socket
// this stack would use to add/remove addresses (see the teacher's
// responder/server package) is exercised for listing them too.
var addrsCmd = &cobra.Command{
	Use:   "addrs",
	Short: "Print this host's advertisable /ip4 and /ip6 multiaddrs",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()

		kp, err := loadOrCreateIdentity(rootIdentityFlag)
		if err != nil {
			log.Fatal(err)
		}

		conn, err := rtnl.Dial(nil)
		if err != nil {
			log.Fatalf("netlink connection: %v", err)
		}
		defer conn.Close()

		links, err := conn.Links()
		if err != nil {
			log.Fatalf("listing links: %v", err)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"interface", "multiaddr"})
		for _, link := range links {
			if link.Flags&net.FlagLoopback != 0 || link.Flags&net.FlagUp == 0 {
				continue
			}
			addrs, err := conn.Addrs(&link, 0)
			if err != nil {
				log.Debugf("addresses for %s: %v", link.Name, err)
				continue
			}
			for _, a := range addrs {
				if a.IP.IsLinkLocalUnicast() {
					continue
				}
				ma := multiaddr.NewTCP(a.IP, addrsPortFlag, &kp.Id)
				table.Append([]string{link.Name, ma.String()})
			}
		}
		table.Render()
		fmt.Println()
	},
}
