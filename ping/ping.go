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

// Package ping implements the periodic liveness/latency state machine:
// Idle -> WaitingPong -> Cooldown -> Idle.
//
// Latency requires a wall/monotonic clock reading, which a sans-I/O core
// cannot read itself. This package threads an explicit nowMs argument
// through the entry points that need it (Start, OnPong and OnTimer
// below), supplied by the driver the same way it supplies timer_ids --
// the core never calls a clock, it only receives readings.
package ping

import (
	"github.com/facebook/p2pcore/iface"
	"github.com/facebook/p2pcore/rng"
)

// Size is the fixed nonce length a ping uses.
const Size = 32

// State is the Ping FSM state.
type State int

// Ping states.
const (
	Idle State = iota
	WaitingPong
	Cooldown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case WaitingPong:
		return "WaitingPong"
	case Cooldown:
		return "Cooldown"
	default:
		return "Unknown"
	}
}

// Machine is the active (dialing) side of the ping protocol for one
// connection. The passive responder side is stateless -- see Respond.
type Machine struct {
	connID       iface.ConnectionId
	intervalMs   uint64
	timeoutMs    uint64
	timerSeq     *uint64
	state        State
	sentNonce    [Size]byte
	sentAtMs     int64
	pendingTimer iface.TimerId
}

// NewMachine constructs a Machine bound to one connection. timerSeq is a
// shared counter the Swarm hands out so timer ids stay unique across the
// connection's sub-machines.
func NewMachine(connID iface.ConnectionId, intervalMs, timeoutMs uint64, timerSeq *uint64) *Machine {
	return &Machine{connID: connID, intervalMs: intervalMs, timeoutMs: timeoutMs, timerSeq: timerSeq, state: Idle}
}

func (m *Machine) nextTimerID() iface.TimerId {
	*m.timerSeq++
	return iface.TimerId(*m.timerSeq)
}

// State returns the current FSM state.
func (m *Machine) State() State { return m.state }

// Start enters Idle and immediately fires the first ping: emits Send(32
// random bytes) and SetTimer(timeout_ms).
func (m *Machine) Start(src rng.Source, nowMs int64) []iface.Action {
	return m.sendPing(src, nowMs)
}

func (m *Machine) sendPing(src rng.Source, nowMs int64) []iface.Action {
	copy(m.sentNonce[:], src.Bytes(Size))
	m.sentAtMs = nowMs
	m.state = WaitingPong
	m.pendingTimer = m.nextTimerID()

	return []iface.Action{
		{Kind: iface.ActionSend, ConnID: m.connID, Bytes: append([]byte{}, m.sentNonce[:]...)},
		{Kind: iface.ActionSetTimer, TimerID: m.pendingTimer, DurationMs: m.timeoutMs},
	}
}

// OnPong processes a received 32-byte payload believed to be a pong. It is
// a no-op (no actions/events, no state change) if we are not waiting for
// one or the nonce does not match, since a stray or duplicate pong is not
// itself a protocol error.
func (m *Machine) OnPong(payload []byte, nowMs int64) ([]iface.Action, []iface.Event) {
	if m.state != WaitingPong || len(payload) != Size {
		return nil, nil
	}
	for i := range m.sentNonce {
		if payload[i] != m.sentNonce[i] {
			return nil, nil
		}
	}

	latency := nowMs - m.sentAtMs
	if latency < 0 {
		latency = 0
	}
	m.state = Cooldown
	cooldownTimer := m.nextTimerID()

	actions := []iface.Action{
		{Kind: iface.ActionCancelTimer, TimerID: m.pendingTimer},
		{Kind: iface.ActionSetTimer, TimerID: cooldownTimer, DurationMs: m.intervalMs},
	}
	m.pendingTimer = cooldownTimer
	events := []iface.Event{
		{Kind: iface.EventPongReceived, ConnID: m.connID, LatencyMs: latency},
	}
	return actions, events
}

// OnTimer processes a timer firing. If it is the WaitingPong timeout, it
// surfaces PingTimeout and requests the connection close. If it is the
// Cooldown-to-Idle timer, it starts a fresh ping.
func (m *Machine) OnTimer(timerID iface.TimerId, src rng.Source, nowMs int64) ([]iface.Action, []iface.Event) {
	if timerID != m.pendingTimer {
		return nil, nil
	}

	switch m.state {
	case WaitingPong:
		return []iface.Action{
				{Kind: iface.ActionCloseConnection, ConnID: m.connID},
			}, []iface.Event{
				{Kind: iface.EventPingTimeout, ConnID: m.connID},
			}
	case Cooldown:
		m.state = Idle
		return m.sendPing(src, nowMs), nil
	default:
		return nil, nil
	}
}

// Respond implements the passive ping responder: it echoes a received
// 32-byte payload unchanged. Stateless: no Machine involved.
func Respond(connID iface.ConnectionId, payload []byte) []iface.Action {
	if len(payload) != Size {
		return nil
	}
	echo := make([]byte, Size)
	copy(echo, payload)
	return []iface.Action{{Kind: iface.ActionSend, ConnID: connID, Bytes: echo}}
}
