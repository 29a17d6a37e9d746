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

// Package iface declares the Action/Event vocabulary that crosses the
// core/driver boundary and the ConnectionId type.
// It is its own package, beneath swarm, so the leaf protocol handlers
// (ping, identify, pubsub) can emit actions and events directly without
// importing swarm -- only swarm imports them, ping, and identify together.
package iface

import "github.com/facebook/p2pcore/identity"

// ConnectionId is an opaque, monotonically allocated, never-reused
// (within a process lifetime) connection identifier.
type ConnectionId uint64

// TimerId identifies a SetTimer/CancelTimer/on_timer pairing.
type TimerId uint64

// ActionKind tags the variant of an Action.
type ActionKind int

// Action kinds.
const (
	ActionDial ActionKind = iota
	ActionListen
	ActionAccept
	ActionCloseConnection
	ActionSend
	ActionSetTimer
	ActionCancelTimer
)

func (k ActionKind) String() string {
	switch k {
	case ActionDial:
		return "Dial"
	case ActionListen:
		return "Listen"
	case ActionAccept:
		return "Accept"
	case ActionCloseConnection:
		return "CloseConnection"
	case ActionSend:
		return "Send"
	case ActionSetTimer:
		return "SetTimer"
	case ActionCancelTimer:
		return "CancelTimer"
	default:
		return "Unknown"
	}
}

// Action is a descriptive record of an effect the driver must carry out.
// Only the fields relevant to Kind are populated.
type Action struct {
	Kind ActionKind

	PendingID  uint64 // Dial
	ListenerID uint64 // Listen, Accept
	Addr       string // Dial, Listen

	ConnID ConnectionId // CloseConnection, Send
	Bytes  []byte       // Send

	TimerID    TimerId // SetTimer, CancelTimer
	DurationMs uint64  // SetTimer
}

// EventKind tags the variant of an Event.
type EventKind int

// Event kinds the core surfaces to the driver/application.
const (
	EventConnectionClosed EventKind = iota
	EventConnectionSecured
	EventIdentified
	EventPongReceived
	EventPingTimeout
	EventMessage
	EventInsufficientPeers
	EventSubscribed
	EventIdentifyFailed
)

func (k EventKind) String() string {
	switch k {
	case EventConnectionClosed:
		return "ConnectionClosed"
	case EventConnectionSecured:
		return "ConnectionSecured"
	case EventIdentified:
		return "Identified"
	case EventPongReceived:
		return "PongReceived"
	case EventPingTimeout:
		return "PingTimeout"
	case EventMessage:
		return "Message"
	case EventInsufficientPeers:
		return "InsufficientPeers"
	case EventSubscribed:
		return "Subscribed"
	case EventIdentifyFailed:
		return "IdentifyFailed"
	default:
		return "Unknown"
	}
}

// IdentifyInfo is the metadata exchanged by the identify protocol
// exchanged by the identify protocol.
type IdentifyInfo struct {
	PublicKey    []byte
	ListenAddrs  []string
	ObservedAddr string
	Protocols    []string
	AgentVersion string
}

// Event is an observation the core surfaces for the driver or application.
type Event struct {
	Kind EventKind

	ConnID ConnectionId
	Reason error // EventConnectionClosed

	Peer identity.PeerId // EventConnectionSecured, EventIdentified, EventMessage (source)
	Info IdentifyInfo    // EventIdentified

	LatencyMs int64 // EventPongReceived

	Topic     string          // EventMessage, EventSubscribed, EventInsufficientPeers
	MessageID string          // EventMessage
	Data      []byte          // EventMessage
	From      identity.PeerId // EventMessage: the peer that forwarded it to us
}
