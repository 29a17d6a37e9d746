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

// Package identify implements the one-shot metadata exchange: after sending
// our own record and receiving the peer's, emit Identified{peer, info}. No
// retries; a malformed peer record is surfaced once and does not close the
// connection.
package identify

import (
	hashicorpversion "github.com/hashicorp/go-version"

	"github.com/facebook/p2pcore/identity"
	"github.com/facebook/p2pcore/iface"
)

// Machine drives identify for one secured connection, one direction of
// which is "send our record", the other "receive theirs" -- both run
// concurrently and independently complete.
type Machine struct {
	connID     iface.ConnectionId
	remotePeer identity.PeerId
	localInfo  iface.IdentifyInfo
	sent       bool
	received   bool
	recvInfo   iface.IdentifyInfo
	minVersion *hashicorpversion.Version
}

// NewMachine constructs a Machine for a newly secured connection.
// remotePeer, if the zero value, means the peer's identity is not yet
// known (a freshly accepted inbound connection); OnData then derives it
// from the received record's public key. minVersion, if non-nil, is what
// VersionCompatible compares the peer's AgentVersion against; OnData does
// not reject a record on it, and EventIdentified is surfaced either way.
func NewMachine(connID iface.ConnectionId, remotePeer identity.PeerId, localInfo iface.IdentifyInfo, minVersion *hashicorpversion.Version) *Machine {
	return &Machine{connID: connID, remotePeer: remotePeer, localInfo: localInfo, minVersion: minVersion}
}

// Start sends our own identify record. Idempotent: calling it twice is a
// no-op after the first.
func (m *Machine) Start() []iface.Action {
	if m.sent {
		return nil
	}
	m.sent = true
	return []iface.Action{
		{Kind: iface.ActionSend, ConnID: m.connID, Bytes: Encode(m.localInfo)},
	}
}

// OnData processes a received identify record. Decode failures surface
// IdentifyFailed once and are otherwise ignored: failure surfaces once and
// is non-fatal to the connection. If the Machine was constructed without a
// known remote peer, the peer id is derived from the record's public key.
func (m *Machine) OnData(data []byte) []iface.Event {
	if m.received {
		return nil
	}
	info, err := Decode(data)
	if err != nil {
		m.received = true
		return []iface.Event{{Kind: iface.EventIdentifyFailed, ConnID: m.connID, Reason: err}}
	}
	if m.remotePeer == (identity.PeerId{}) {
		peer, err := identity.FromPublicKey(info.PublicKey)
		if err != nil {
			m.received = true
			return []iface.Event{{Kind: iface.EventIdentifyFailed, ConnID: m.connID, Reason: err}}
		}
		m.remotePeer = peer
	}
	m.received = true
	m.recvInfo = info

	return []iface.Event{
		{Kind: iface.EventIdentified, ConnID: m.connID, Peer: m.remotePeer, Info: info},
	}
}

// Peer returns the remote peer id, resolved once OnData has completed
// successfully (or supplied up front via NewMachine).
func (m *Machine) Peer() identity.PeerId {
	return m.remotePeer
}

// Done reports whether both directions of the exchange have completed.
func (m *Machine) Done() bool {
	return m.sent && m.received
}

// VersionCompatible reports whether the peer's reported agent version
// parses and meets the configured minimum. A peer
// that never completed identify, or whose version does not parse, is
// treated as compatible -- this is advisory, never connection-fatal.
func (m *Machine) VersionCompatible() bool {
	if m.minVersion == nil || !m.received {
		return true
	}
	v, err := hashicorpversion.NewVersion(extractVersion(m.recvInfo.AgentVersion))
	if err != nil {
		return true
	}
	return !v.LessThan(m.minVersion)
}

// extractVersion pulls a trailing "name/1.2.3" version token, since
// AgentVersion is a free-form string like "p2pcore/0.1.0".
func extractVersion(agent string) string {
	for i := len(agent) - 1; i >= 0; i-- {
		if agent[i] == '/' {
			return agent[i+1:]
		}
	}
	return agent
}
