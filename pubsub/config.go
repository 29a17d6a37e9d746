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

package pubsub

// Config holds the mesh-shaping and maintenance tunables. Zero-value
// fields are invalid; use DefaultConfig as a starting point.
type Config struct {
	D     int // target mesh degree per topic
	Dlo   int // minimum mesh degree before heartbeat grafts
	Dhi   int // maximum mesh degree before heartbeat prunes
	Dlazy int // gossip fanout degree for IHAVE announcements

	HeartbeatIntervalMs uint64 // maintenance tick period
	HeartbeatHistory    int    // mcache windows retained (>= GossipHistory)
	GossipHistory       int    // windows eligible for IHAVE announcements
	FanoutTTLHeartbeats int    // heartbeats a fanout entry survives without a publish
}

// DefaultConfig mirrors the commonly used GossipSub v1.0 defaults.
func DefaultConfig() Config {
	return Config{
		D:                   6,
		Dlo:                 4,
		Dhi:                 12,
		Dlazy:               6,
		HeartbeatIntervalMs: 1000,
		HeartbeatHistory:    5,
		GossipHistory:       3,
		FanoutTTLHeartbeats: 60,
	}
}
