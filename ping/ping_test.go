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

package ping

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebook/p2pcore/iface"
	"github.com/facebook/p2pcore/rng"
)

func TestPongReceivedSchedulesNextPing(t *testing.T) {
	// Scenario seed 4: interval=1000ms, timeout=500ms.
	var seq uint64
	src := rng.New(1)
	m := NewMachine(iface.ConnectionId(1), 1000, 500, &seq)

	actions := m.Start(src, 0)
	require.Len(t, actions, 2)
	require.Equal(t, iface.ActionSend, actions[0].Kind)
	require.Len(t, actions[0].Bytes, Size)
	require.Equal(t, iface.ActionSetTimer, actions[1].Kind)
	require.Equal(t, uint64(500), actions[1].DurationMs)
	require.Equal(t, WaitingPong, m.State())

	nonce := append([]byte{}, actions[0].Bytes...)

	pongActions, pongEvents := m.OnPong(nonce, 200)
	require.Len(t, pongEvents, 1)
	require.Equal(t, iface.EventPongReceived, pongEvents[0].Kind)
	require.Equal(t, int64(200), pongEvents[0].LatencyMs)
	require.Equal(t, Cooldown, m.State())

	require.Len(t, pongActions, 2)
	require.Equal(t, iface.ActionCancelTimer, pongActions[0].Kind)
	require.Equal(t, iface.ActionSetTimer, pongActions[1].Kind)
	require.Equal(t, uint64(1000), pongActions[1].DurationMs)

	// Cooldown timer fires: next ping goes out, conceptually at t=1200.
	cooldownTimer := pongActions[1].TimerID
	nextActions, nextEvents := m.OnTimer(cooldownTimer, src, 1200)
	require.Empty(t, nextEvents)
	require.Len(t, nextActions, 2)
	require.Equal(t, iface.ActionSend, nextActions[0].Kind)
	require.Equal(t, WaitingPong, m.State())
}

func TestTimeoutClosesConnection(t *testing.T) {
	var seq uint64
	src := rng.New(1)
	m := NewMachine(iface.ConnectionId(1), 1000, 500, &seq)

	actions := m.Start(src, 0)
	timeoutTimer := actions[1].TimerID

	closeActions, events := m.OnTimer(timeoutTimer, src, 500)
	require.Len(t, events, 1)
	require.Equal(t, iface.EventPingTimeout, events[0].Kind)
	require.Len(t, closeActions, 1)
	require.Equal(t, iface.ActionCloseConnection, closeActions[0].Kind)
}

func TestMismatchedNonceIgnored(t *testing.T) {
	var seq uint64
	src := rng.New(1)
	m := NewMachine(iface.ConnectionId(1), 1000, 500, &seq)
	m.Start(src, 0)

	actions, events := m.OnPong(make([]byte, Size), 100)
	require.Nil(t, actions)
	require.Nil(t, events)
	require.Equal(t, WaitingPong, m.State())
}

func TestRespondEchoesUnchanged(t *testing.T) {
	payload := make([]byte, Size)
	for i := range payload {
		payload[i] = byte(i)
	}
	actions := Respond(iface.ConnectionId(9), payload)
	require.Len(t, actions, 1)
	require.Equal(t, iface.ActionSend, actions[0].Kind)
	require.Equal(t, payload, actions[0].Bytes)
}
