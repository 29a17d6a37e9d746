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

// Package config loads the driver-supplied tunables: GossipSub/Swarm
// knobs from YAML, and the identity key file from INI.
package config

import (
	"os"

	yaml "gopkg.in/yaml.v2"

	"github.com/facebook/p2pcore/pubsub"
)

// Config is the full set of Swarm/GossipSub tunables the driver loads
// before constructing a Swarm.
type Config struct {
	PubSub pubsub.Config `yaml:"pubsub"`

	InboundBufferCap     int    `yaml:"inbound_buffer_cap"`
	PingIntervalMs       uint64 `yaml:"ping_interval_ms"`
	PingTimeoutMs        uint64 `yaml:"ping_timeout_ms"`
	HandshakeTimeoutMs   uint64 `yaml:"handshake_timeout_ms"`
	IdentifyAgentVersion string `yaml:"identify_agent_version"`
	MinPeerVersion       string `yaml:"min_peer_version"`
}

// Default returns the baseline configuration a driver can override from a
// YAML file.
func Default() Config {
	return Config{
		PubSub:               pubsub.DefaultConfig(),
		InboundBufferCap:     1 << 20,
		PingIntervalMs:       15000,
		PingTimeoutMs:        5000,
		HandshakeTimeoutMs:   10000,
		IdentifyAgentVersion: "p2pcore/0.1.0",
	}
}

// ReadFile loads and overlays a YAML config file onto the defaults.
func ReadFile(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, err
	}
	return c, nil
}
