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
	"github.com/facebook/p2pcore/errs"
	"github.com/facebook/p2pcore/framing"
	"github.com/facebook/p2pcore/identify"
	"github.com/facebook/p2pcore/iface"
	"github.com/facebook/p2pcore/mss"
	"github.com/facebook/p2pcore/noise"
	"github.com/facebook/p2pcore/ping"
)

// feedOuter drives the pre-security multistream-select negotiation. Raw
// bytes go straight to the negotiator: mss frames its own lines, there is
// no length-prefix layer above it.
func (s *Swarm) feedOuter(conn *connection, data []byte, nowMs int64) ([]iface.Action, []iface.Event, error) {
	toWrite, result, err := conn.outerNeg.Feed(data)
	if err != nil {
		return nil, nil, err
	}
	var actions []iface.Action
	if len(toWrite) > 0 {
		actions = append(actions, sendAction(conn.id, toWrite))
	}
	if result == nil {
		return actions, nil, nil
	}
	if result.Unsupported {
		return actions, nil, errs.New(errs.BadNegotiation, "peer rejected every security proposal")
	}

	conn.phase = phaseHandshaking
	s.rec.PhaseEntered("handshaking")
	conn.recordDecoder = framing.NewDecoder(s.cfg.InboundBufferCap)
	// A fresh static keypair per connection, not derived from the Ed25519
	// identity: the two are bound instead by the signed identity payload
	// carried in the handshake itself -- see maybeHandshakeWrite/stepHandshake.
	var herr error
	if conn.direction == Outbound {
		conn.noiseSession, herr = noise.Initiate(s.src, nil, nil)
	} else {
		conn.noiseSession, herr = noise.Respond(s.src, nil, nil)
	}
	if herr != nil {
		return actions, nil, herr
	}

	// The initiator's first handshake message has no read to react to;
	// every later message (both roles) is produced in response to one.
	kickoff, werr := s.maybeHandshakeWrite(conn)
	if werr != nil {
		return actions, nil, werr
	}
	actions = append(actions, kickoff...)

	if len(result.Leftover) > 0 {
		a2, e2, err2 := s.feedSecuredPipelineBytes(conn, result.Leftover, nowMs)
		actions = append(actions, a2...)
		return actions, e2, err2
	}
	return actions, nil, nil
}

// maybeHandshakeWrite attempts the next handshake write. A NoiseOutOfTurn
// failure means it is not this role's turn yet, which is the expected
// outcome most of the time this is called, not an error. The message that
// carries this session's static key also carries the signed identity
// payload binding it to the local Ed25519 identity.
func (s *Swarm) maybeHandshakeWrite(conn *connection) ([]iface.Action, error) {
	var payload []byte
	if conn.noiseSession.WritesStaticKey() {
		payload = buildIdentityPayload(s.identity, conn.noiseSession.LocalStaticPublicKey())
	}
	out, err := conn.noiseSession.WriteMessage(payload)
	if err != nil {
		if errs.Is(err, errs.NoiseOutOfTurn) {
			return nil, nil
		}
		return nil, err
	}
	framed, err := framing.EncodeRaw(out)
	if err != nil {
		return nil, err
	}
	return []iface.Action{sendAction(conn.id, framed)}, nil
}

// feedSecuredPipeline is the entry point for all bytes received once outer
// negotiation has completed (handshaking, inner negotiating, and secured
// phases all share the same length-prefixed record decoder).
func (s *Swarm) feedSecuredPipeline(conn *connection, data []byte, nowMs int64) ([]iface.Action, []iface.Event, error) {
	return s.feedSecuredPipelineBytes(conn, data, nowMs)
}

func (s *Swarm) feedSecuredPipelineBytes(conn *connection, data []byte, nowMs int64) ([]iface.Action, []iface.Event, error) {
	if err := conn.recordDecoder.Feed(data); err != nil {
		return nil, nil, err
	}
	var actions []iface.Action
	var events []iface.Event
	for {
		record, ok, err := conn.recordDecoder.Next()
		if err != nil {
			return actions, events, err
		}
		if !ok {
			return actions, events, nil
		}

		if conn.phase == phaseHandshaking {
			a, e, err := s.stepHandshake(conn, record)
			actions = append(actions, a...)
			events = append(events, e...)
			if err != nil {
				return actions, events, err
			}
			continue
		}

		plaintext, err := conn.cipherIn.Decrypt(record)
		if err != nil {
			return actions, events, err
		}
		if conn.phase == phaseInnerNegotiating {
			a, e, err := s.stepInnerNegotiation(conn, plaintext, nowMs)
			actions = append(actions, a...)
			events = append(events, e...)
			if err != nil {
				return actions, events, err
			}
			continue
		}

		a, e := s.dispatchSecured(conn, plaintext, nowMs)
		actions = append(actions, a...)
		events = append(events, e...)
	}
}

func (s *Swarm) stepHandshake(conn *connection, record []byte) ([]iface.Action, []iface.Event, error) {
	payload, err := conn.noiseSession.ReadMessage(record)
	if err != nil {
		return nil, nil, err
	}
	if len(payload) > 0 {
		peer, verr := verifyIdentityPayload(payload, conn.noiseSession.PeerStaticPublicKey())
		if verr != nil {
			return nil, nil, verr
		}
		if conn.hasExpectedPeer && !conn.expectedPeer.Equal(peer) {
			return nil, nil, errs.New(errs.NoiseAuthFail, "handshake peer %s does not match dialed peer %s", peer, conn.expectedPeer)
		}
		conn.verifiedPeer = peer
		conn.identityVerified = true
	}
	actions, err := s.maybeHandshakeWrite(conn)
	if err != nil {
		return actions, nil, err
	}
	if conn.noiseSession.State() != noise.Established {
		return actions, nil, nil
	}

	out, in, _, err := conn.noiseSession.Finish()
	if err != nil {
		return actions, nil, err
	}
	conn.cipherOut, conn.cipherIn = out, in
	actions = append(actions, iface.Action{Kind: iface.ActionCancelTimer, TimerID: conn.handshakeTimer})

	conn.phase = phaseInnerNegotiating
	s.rec.PhaseEntered("inner_negotiating")
	var startActions []iface.Action
	if conn.direction == Outbound {
		client := mss.NewClient([]string{appProtocolID})
		start, err := client.Start()
		if err != nil {
			return actions, nil, err
		}
		conn.innerNeg = client
		framed, err := framing.EncodeRecord(conn.cipherOut, start)
		if err != nil {
			return actions, nil, err
		}
		startActions = []iface.Action{sendAction(conn.id, framed)}
	} else {
		server := mss.NewServer([]string{appProtocolID})
		conn.innerNeg = server
		framed, err := framing.EncodeRecord(conn.cipherOut, server.Start())
		if err != nil {
			return actions, nil, err
		}
		startActions = []iface.Action{sendAction(conn.id, framed)}
	}
	return append(actions, startActions...), nil, nil
}

func (s *Swarm) stepInnerNegotiation(conn *connection, plaintext []byte, nowMs int64) ([]iface.Action, []iface.Event, error) {
	toWrite, result, err := conn.innerNeg.Feed(plaintext)
	if err != nil {
		return nil, nil, err
	}
	var actions []iface.Action
	if len(toWrite) > 0 {
		framed, err := framing.EncodeRecord(conn.cipherOut, toWrite)
		if err != nil {
			return nil, nil, err
		}
		actions = append(actions, sendAction(conn.id, framed))
	}
	if result == nil {
		return actions, nil, nil
	}
	if result.Unsupported {
		return actions, nil, errs.New(errs.BadNegotiation, "peer rejected the app protocol")
	}

	conn.phase = phaseSecured
	s.rec.PhaseEntered("secured")
	conn.remotePeer = conn.verifiedPeer
	conn.peerKnown = conn.identityVerified
	events := []iface.Event{{Kind: iface.EventConnectionSecured, ConnID: conn.id, Peer: conn.remotePeer}}
	a2, e2 := s.enterSecured(conn, nowMs)
	actions = append(actions, a2...)
	events = append(events, e2...)
	if len(result.Leftover) > 0 {
		a3, e3 := s.dispatchSecured(conn, result.Leftover, nowMs)
		actions = append(actions, a3...)
		events = append(events, e3...)
		return actions, events, nil
	}
	return actions, events, nil
}

// enterSecured starts the ping and identify machines for a freshly secured
// connection. conn.remotePeer is already authenticated by the noise
// handshake's signed identity payload by this point; identify exchanges
// capability metadata (listen addrs, protocols, agent version) only, it no
// longer resolves the peer id itself.
func (s *Swarm) enterSecured(conn *connection, nowMs int64) ([]iface.Action, []iface.Event) {
	conn.ping = ping.NewMachine(conn.id, s.cfg.PingIntervalMs, s.cfg.PingTimeoutMs, &s.timerSeq)
	conn.identify = identify.NewMachine(conn.id, conn.remotePeer, s.localIdentifyInfo(), s.minVersion)

	var actions []iface.Action
	actions = append(actions, s.tagRecords(tagPing, conn.ping.Start(s.src, nowMs))...)
	actions = append(actions, s.tagRecords(tagIdentify, conn.identify.Start())...)
	return actions, nil
}

// dispatchSecured routes one decrypted record to its tagged protocol
// handler. A tagPing payload is tried as a pong first since a connection's
// ping.Machine is always either Idle/Cooldown (not expecting one) or
// WaitingPong (expecting exactly this peer's echo); anything OnPong does
// not recognize is an incoming ping request to echo back.
func (s *Swarm) dispatchSecured(conn *connection, plaintext []byte, nowMs int64) ([]iface.Action, []iface.Event) {
	if len(plaintext) == 0 {
		return nil, nil
	}
	tag, payload := plaintext[0], plaintext[1:]

	switch tag {
	case tagPing:
		actions, events := conn.ping.OnPong(payload, nowMs)
		if len(actions) > 0 || len(events) > 0 {
			return s.tagRecords(tagPing, actions), events
		}
		return s.tagRecords(tagPing, ping.Respond(conn.id, payload)), nil

	case tagIdentify:
		events := conn.identify.OnData(payload)
		var actions []iface.Action
		for _, ev := range events {
			if ev.Kind == iface.EventIdentified {
				actions = append(actions, s.pubsubEngine.AddPeer(conn.id, conn.remotePeer)...)
			}
		}
		return s.tagRecords(tagPubsub, actions), events

	case tagPubsub:
		actions, events, err := s.pubsubEngine.OnRPC(conn.id, payload)
		if err != nil {
			return nil, nil
		}
		return s.tagRecords(tagPubsub, actions), events

	default:
		return nil, nil
	}
}

// tagRecords rewrites a leaf protocol machine's plaintext Send actions into
// tagged, encrypted, framed wire records, using each action's own
// destination connection's cipher -- a single call covers actions fanned
// out across many connections, e.g. a pubsub broadcast. Every other action
// kind (SetTimer, CancelTimer, CloseConnection) passes through unchanged.
// An action addressed to an unsecured or since-closed connection is
// dropped: the bytes would have nothing to encrypt with.
func (s *Swarm) tagRecords(tag byte, in []iface.Action) []iface.Action {
	if len(in) == 0 {
		return nil
	}
	out := make([]iface.Action, 0, len(in))
	for _, a := range in {
		if a.Kind != iface.ActionSend {
			out = append(out, a)
			continue
		}
		dst, ok := s.conns[a.ConnID]
		if !ok || dst.cipherOut == nil {
			continue
		}
		plaintext := append([]byte{tag}, a.Bytes...)
		framed, err := framing.EncodeRecord(dst.cipherOut, plaintext)
		if err != nil {
			continue
		}
		out = append(out, sendAction(a.ConnID, framed))
	}
	return out
}

func (s *Swarm) localIdentifyInfo() iface.IdentifyInfo {
	return iface.IdentifyInfo{
		PublicKey:    []byte(s.identity.Public),
		Protocols:    []string{appProtocolID},
		AgentVersion: s.cfg.IdentifyAgentVersion,
	}
}
