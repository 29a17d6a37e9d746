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

package identify

import (
	"testing"

	hashicorpversion "github.com/hashicorp/go-version"
	"github.com/stretchr/testify/require"

	"github.com/facebook/p2pcore/identity"
	"github.com/facebook/p2pcore/iface"
	"github.com/facebook/p2pcore/rng"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	info := iface.IdentifyInfo{
		PublicKey:    []byte{1, 2, 3, 4},
		ListenAddrs:  []string{"/ip4/1.2.3.4/tcp/4001", "/ip4/1.2.3.4/udp/4001"},
		ObservedAddr: "/ip4/5.6.7.8/tcp/9999",
		Protocols:    []string{"/ping/1.0.0", "/meshsub/1.1.0"},
		AgentVersion: "p2pcore/0.1.0",
	}
	decoded, err := Decode(Encode(info))
	require.NoError(t, err)
	require.Equal(t, info, decoded)
}

func TestMachineBothDirections(t *testing.T) {
	k, err := identity.Generate(rng.New(5))
	require.NoError(t, err)

	m := NewMachine(iface.ConnectionId(1), k.Id, iface.IdentifyInfo{AgentVersion: "p2pcore/0.1.0"}, nil)
	require.False(t, m.Done())

	sendActions := m.Start()
	require.Len(t, sendActions, 1)
	require.False(t, m.Done(), "not done until peer's record is also received")

	peerRecord := Encode(iface.IdentifyInfo{AgentVersion: "other/1.0.0"})
	events := m.OnData(peerRecord)
	require.Len(t, events, 1)
	require.Equal(t, iface.EventIdentified, events[0].Kind)
	require.True(t, events[0].Peer.Equal(k.Id))
	require.True(t, m.Done())
}

func TestMalformedRecordSurfacesOnce(t *testing.T) {
	m := NewMachine(iface.ConnectionId(1), identity.PeerId{}, iface.IdentifyInfo{}, nil)
	events := m.OnData([]byte{0xff, 0xff, 0xff})
	require.Len(t, events, 1)
	require.Equal(t, iface.EventIdentifyFailed, events[0].Kind)

	// A second call is a no-op: no retries.
	events = m.OnData([]byte{0xff})
	require.Nil(t, events)
}

func TestVersionCompatible(t *testing.T) {
	min := hashicorpversion.Must(hashicorpversion.NewVersion("1.0.0"))
	m := NewMachine(iface.ConnectionId(1), identity.PeerId{}, iface.IdentifyInfo{}, min)
	require.True(t, m.VersionCompatible(), "no data received yet is advisory-compatible")

	k, err := identity.Generate(rng.New(6))
	require.NoError(t, err)

	m.OnData(Encode(iface.IdentifyInfo{PublicKey: k.Public, AgentVersion: "peer/0.5.0"}))
	require.False(t, m.VersionCompatible())

	m2 := NewMachine(iface.ConnectionId(2), identity.PeerId{}, iface.IdentifyInfo{}, min)
	m2.OnData(Encode(iface.IdentifyInfo{PublicKey: k.Public, AgentVersion: "peer/2.0.0"}))
	require.True(t, m2.VersionCompatible())
}
