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

package swarm

import (
	"github.com/facebook/p2pcore/framing"
	"github.com/facebook/p2pcore/identify"
	"github.com/facebook/p2pcore/identity"
	"github.com/facebook/p2pcore/mss"
	"github.com/facebook/p2pcore/noise"
	"github.com/facebook/p2pcore/ping"

	"github.com/facebook/p2pcore/iface"
)

// Direction records which side dialed.
type Direction int

// Connection directions.
const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "Outbound"
	}
	return "Inbound"
}

// phase is a connection's position in the raw->secured->multiplexed
// pipeline: outerNegotiating picks the security protocol, handshaking runs
// noise XX, innerNegotiating picks the one multiplexed app protocol over
// the now-secured channel, and secured is steady state.
type phase int

const (
	phaseOuterNegotiating phase = iota
	phaseHandshaking
	phaseInnerNegotiating
	phaseSecured
	phaseClosed
)

// Protocol ids this core negotiates. A real deployment would support more
// than one security/app protocol; this core supports exactly one of each,
// so multistream-select's "na" path exists but is never exercised against
// a compliant peer.
const (
	noiseProtocolID = "/noise/xx/1.0.0"
	appProtocolID   = "/p2pcore/1.0.0"
)

// Type tags multiplexing ping/identify/pubsub traffic over the single
// negotiated app substream: one substream per connection is sufficient for
// this core, so three independent protocol handlers share it behind a
// one-byte tag prefixed to each decrypted record's plaintext.
const (
	tagPing     byte = 1
	tagIdentify byte = 2
	tagPubsub   byte = 3
)

// negotiator is satisfied by both *mss.Client and *mss.Server, letting the
// connection drive either role through the same Feed loop.
type negotiator interface {
	Feed(data []byte) (toWrite []byte, result *mss.Result, err error)
}

// connection is the per-connection pipeline state.
type connection struct {
	id        iface.ConnectionId
	addr      string
	direction Direction
	phase     phase

	remotePeer identity.PeerId
	peerKnown  bool

	// expectedPeer is the /p2p/ component of a dialed address, if any: the
	// peer identity.Verify must confirm once the handshake authenticates one,
	// not a value trusted on its own.
	expectedPeer    identity.PeerId
	hasExpectedPeer bool

	// verifiedPeer/identityVerified hold the handshake-authenticated peer id
	// from the moment the Noise XX payload verifies, pending commit to
	// remotePeer/peerKnown at the phaseSecured transition.
	verifiedPeer     identity.PeerId
	identityVerified bool

	outerNeg negotiator

	noiseSession  *noise.Session
	recordDecoder *framing.Decoder

	cipherOut *noise.Cipher
	cipherIn  *noise.Cipher

	innerNeg negotiator

	ping     *ping.Machine
	identify *identify.Machine

	handshakeTimer     iface.TimerId
	pendingCloseReason error
}
