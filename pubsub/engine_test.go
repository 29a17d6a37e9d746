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

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebook/p2pcore/identity"
	"github.com/facebook/p2pcore/iface"
	"github.com/facebook/p2pcore/rng"
)

type peerNode struct {
	id     identity.PeerId
	engine *Engine
}

func newPeerNode(t *testing.T, seed uint64) *peerNode {
	k, err := identity.Generate(rng.New(seed))
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.D, cfg.Dlo, cfg.Dhi, cfg.Dlazy = 2, 1, 3, 2
	var seq uint64
	return &peerNode{id: k.Id, engine: NewEngine(cfg, k.Id, rng.New(seed), &seq, nil)}
}

// connectAll wires every pair of nodes with a dedicated (fake, symmetric)
// connection id and registers each node with every other engine via
// AddPeer. No subscriptions are exchanged here.
func connectAll(nodes []*peerNode) map[[2]int]iface.ConnectionId {
	conns := make(map[[2]int]iface.ConnectionId)
	var nextConn iface.ConnectionId = 1
	for i := range nodes {
		for j := range nodes {
			if i == j {
				continue
			}
			connID := conns[[2]int{minInt(i, j), maxInt(i, j)}]
			if connID == 0 {
				connID = nextConn
				nextConn++
				conns[[2]int{minInt(i, j), maxInt(i, j)}] = connID
			}
			nodes[i].engine.AddPeer(connID, nodes[j].id)
		}
	}
	return conns
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func connIDFor(conns map[[2]int]iface.ConnectionId, i, j int) iface.ConnectionId {
	return conns[[2]int{minInt(i, j), maxInt(i, j)}]
}

// TestMeshConverges: scenario seed 5 -- three peers A, B, C all subscribe
// to topic x; after each one learns the others' subscriptions and grafts,
// every mesh should contain the other two (D=2).
func TestMeshConverges(t *testing.T) {
	a := newPeerNode(t, 10)
	b := newPeerNode(t, 11)
	c := newPeerNode(t, 12)
	nodes := []*peerNode{a, b, c}
	conns := connectAll(nodes)

	// Seed each engine's "known subscribers" table the way a real
	// subscribe-delta broadcast would: every peer announces itself
	// subscribed to every other peer directly.
	for i, n := range nodes {
		for j := range nodes {
			if i == j {
				continue
			}
			connID := connIDFor(conns, i, j)
			rpc := RPC{Subscriptions: []Subscription{{Topic: "x", Subscribe: true}}}
			_, _, err := n.engine.OnRPC(connID, EncodeRPC(rpc))
			require.NoError(t, err)
		}
	}

	for _, n := range nodes {
		_, events, err := n.engine.Subscribe("x", "")
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, iface.EventSubscribed, events[0].Kind)
	}

	for _, n := range nodes {
		require.Equal(t, 2, n.engine.MeshSize("x"))
	}
}

func TestPublishDeliversAndDedupes(t *testing.T) {
	a := newPeerNode(t, 20)
	b := newPeerNode(t, 21)
	nodes := []*peerNode{a, b}
	conns := connectAll(nodes)
	connAB := connIDFor(conns, 0, 1)

	for i, n := range nodes {
		for j := range nodes {
			if i == j {
				continue
			}
			connID := connIDFor(conns, i, j)
			n.engine.OnRPC(connID, EncodeRPC(RPC{Subscriptions: []Subscription{{Topic: "x", Subscribe: true}}}))
		}
	}
	a.engine.Subscribe("x", "")
	b.engine.Subscribe("x", "")
	require.Equal(t, 1, a.engine.MeshSize("x"))
	require.Equal(t, 1, b.engine.MeshSize("x"))

	actions, events := a.engine.Publish("x", []byte("hello"))
	require.NotEmpty(t, actions)
	require.Empty(t, events)

	var delivered []byte
	for _, act := range actions {
		if act.ConnID == connAB {
			rpc, err := DecodeRPC(act.Bytes)
			require.NoError(t, err)
			require.Len(t, rpc.Messages, 1)
			bActions, bEvents, err := b.engine.OnRPC(connAB, act.Bytes)
			require.NoError(t, err)
			require.Empty(t, bActions, "only two peers in the mesh: no further forward target")
			require.Len(t, bEvents, 1)
			require.Equal(t, iface.EventMessage, bEvents[0].Kind)
			delivered = bEvents[0].Data
		}
	}
	require.Equal(t, []byte("hello"), delivered)

	// Replaying the same message is a silent drop: already in the mcache.
	for _, act := range actions {
		if act.ConnID == connAB {
			_, events, err := b.engine.OnRPC(connAB, act.Bytes)
			require.NoError(t, err)
			require.Empty(t, events)
		}
	}
}

func TestPublishWithNoRouteSurfacesInsufficientPeers(t *testing.T) {
	a := newPeerNode(t, 30)
	actions, events := a.engine.Publish("orphan", []byte("x"))
	require.Empty(t, actions)
	require.Len(t, events, 1)
	require.Equal(t, iface.EventInsufficientPeers, events[0].Kind)
}

func TestConnectionCloseScrubsPeer(t *testing.T) {
	a := newPeerNode(t, 40)
	b := newPeerNode(t, 41)
	a.engine.AddPeer(1, b.id)
	a.engine.OnRPC(1, EncodeRPC(RPC{Subscriptions: []Subscription{{Topic: "x", Subscribe: true}}}))
	a.engine.Subscribe("x", "")
	require.Equal(t, 1, a.engine.MeshSize("x"))

	a.engine.OnConnectionClosed(1)
	require.Equal(t, 0, a.engine.MeshSize("x"))
}
