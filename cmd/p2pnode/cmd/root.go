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

// Package cmd implements the p2pnode reference driver: a real TCP/socket
// loop around the sans-I/O swarm core, exposed as a small cobra CLI.
package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootCmd is the p2pnode entry point.
var RootCmd = &cobra.Command{
	Use:   "p2pnode",
	Short: "Reference driver for the p2pcore sans-I/O networking stack",
}

var (
	rootVerboseFlag  bool
	rootIdentityFlag string
	rootConfigFlag   string
)

func init() {
	RootCmd.PersistentFlags().BoolVarP(&rootVerboseFlag, "verbose", "v", false, "verbose output")
	RootCmd.PersistentFlags().StringVar(&rootIdentityFlag, "identity", "p2pnode.identity", "path to the identity key file (created if missing)")
	RootCmd.PersistentFlags().StringVar(&rootConfigFlag, "config", "", "path to a YAML tunables file (defaults built in if unset)")
}

// ConfigureVerbosity sets logrus's level from the parsed flags. Every
// subcommand's Run calls this first.
func ConfigureVerbosity() {
	log.SetLevel(log.InfoLevel)
	if rootVerboseFlag {
		log.SetLevel(log.DebugLevel)
	}
}

// Execute is the main entry point for the CLI.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
