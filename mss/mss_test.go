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

package mss

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebook/p2pcore/errs"
)

// drive pumps bytes between a Client and Server until one side produces a
// Result, mirroring how the Swarm would shuttle bytes between them.
func drive(t *testing.T, client *Client, server *Server) (*Result, *Result) {
	t.Helper()
	toServer, err := client.Start()
	require.NoError(t, err)
	_, _, err = client.Feed(server.Start())
	require.NoError(t, err)

	var clientResult, serverResult *Result
	for i := 0; i < 10 && (clientResult == nil || serverResult == nil); i++ {
		if len(toServer) > 0 {
			out, res, err := server.Feed(toServer)
			require.NoError(t, err)
			toServer = nil
			if res != nil {
				serverResult = res
			}
			if len(out) > 0 {
				cOut, cRes, err := client.Feed(out)
				require.NoError(t, err)
				if cRes != nil {
					clientResult = cRes
				}
				toServer = cOut
			}
		} else {
			break
		}
	}
	return clientResult, serverResult
}

func TestSelectFirstSupported(t *testing.T) {
	// Scenario seed 3: client proposes [/foo/1, /bar/1], server supports
	// only [/bar/1]; negotiation selects /bar/1.
	client := NewClient([]string{"/foo/1", "/bar/1"})
	server := NewServer([]string{"/bar/1"})

	clientResult, serverResult := drive(t, client, server)
	require.NotNil(t, clientResult)
	require.NotNil(t, serverResult)
	require.Equal(t, "/bar/1", clientResult.Protocol)
	require.Equal(t, "/bar/1", serverResult.Protocol)
	require.False(t, clientResult.Unsupported)
}

func TestSelectUnsupported(t *testing.T) {
	client := NewClient([]string{"/foo/1"})
	server := NewServer([]string{"/bar/1"})

	clientResult, _ := drive(t, client, server)
	require.NotNil(t, clientResult)
	require.True(t, clientResult.Unsupported)
}

func TestLeftoverBytesPreserved(t *testing.T) {
	server := NewServer([]string{"/bar/1"})
	header := server.Start()

	client := NewClient([]string{"/bar/1"})
	toServer, err := client.Start()
	require.NoError(t, err)

	toServer = append(toServer, []byte("application-bytes")...)
	out, res, err := server.Feed(append(header, toServer...))
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, "/bar/1", res.Protocol)
	require.Equal(t, []byte("application-bytes"), res.Leftover)
	require.NotEmpty(t, out)
}

func TestMalformedLine(t *testing.T) {
	server := NewServer([]string{"/bar/1"})
	// A line with a declared length but no trailing '\n'.
	_, _, err := server.Feed([]byte{0x03, 'a', 'b', 'c'})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.BadNegotiation))
}
