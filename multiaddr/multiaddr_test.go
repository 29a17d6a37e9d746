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

package multiaddr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebook/p2pcore/errs"
	"github.com/facebook/p2pcore/identity"
	"github.com/facebook/p2pcore/rng"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"/ip4/127.0.0.1/tcp/4001",
		"/ip6/::1/tcp/4001",
		"/dns/example.com/tcp/443/ws",
		"/ip4/10.0.0.1/udp/53",
	}
	for _, s := range cases {
		m, err := Parse(s)
		require.NoError(t, err, s)
		require.Equal(t, s, m.String())

		m2, err := Parse(m.String())
		require.NoError(t, err)
		require.True(t, m.Equal(m2))
	}
}

func TestParseWithP2PSuffix(t *testing.T) {
	k, err := identity.Generate(rng.New(3))
	require.NoError(t, err)

	s := "/ip4/1.2.3.4/tcp/4001/p2p/" + k.Id.EncodeBase58()
	m, err := Parse(s)
	require.NoError(t, err)
	comps := m.Components()
	require.Len(t, comps, 3)
	require.Equal(t, P2P, comps[2].Proto)
	require.True(t, comps[2].Peer.Equal(k.Id))
}

func TestParseBadAddr(t *testing.T) {
	cases := []string{
		"",
		"ip4/127.0.0.1",          // missing leading slash
		"/tcp/4001",              // tcp with no preceding addressable proto
		"/ip4/127.0.0.1/ws",      // ws with no preceding tcp
		"/ip4/not-an-ip/tcp/1",   // bad ip4 value
		"/ip4/127.0.0.1/tcp/abc", // bad port
		"/bogus/value",           // unknown protocol
	}
	for _, s := range cases {
		_, err := Parse(s)
		require.Error(t, err, s)
		require.True(t, errs.Is(err, errs.BadAddr), s)
	}
}

func TestEqualityIsStructural(t *testing.T) {
	a, err := Parse("/ip4/1.2.3.4/tcp/80")
	require.NoError(t, err)
	b, err := Parse("/ip4/1.2.3.4/tcp/80")
	require.NoError(t, err)
	c, err := Parse("/ip4/1.2.3.4/tcp/81")
	require.NoError(t, err)

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}
