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

// Package swarm is the top-level connection registry and dispatcher: it
// wires noise, framing, mss, ping, identify and pubsub into one pipeline
// per connection, and is the only package in this module whose operations
// follow a queue (poll/drain_events) calling convention rather than
// returning actions/events directly -- the leaf protocol machines are
// driven by Swarm itself, not by the external driver, so only Swarm needs
// the buffered form.
package swarm

import (
	hashicorpversion "github.com/hashicorp/go-version"

	"github.com/facebook/p2pcore/config"
	"github.com/facebook/p2pcore/errs"
	"github.com/facebook/p2pcore/identity"
	"github.com/facebook/p2pcore/iface"
	"github.com/facebook/p2pcore/mss"
	"github.com/facebook/p2pcore/multiaddr"
	"github.com/facebook/p2pcore/pubsub"
	"github.com/facebook/p2pcore/rng"
)

// Recorder receives point-in-time observations for metrics export. A nil
// Recorder is a valid, inert default. It is a superset of pubsub.Recorder so
// the same value handed to New can be passed straight through to the
// pubsub.Engine it constructs.
type Recorder interface {
	ConnectionOpened(direction string)
	ConnectionClosed(direction string)
	PhaseEntered(phase string)
	QueueDepth(actions, events int)
	MeshSize(topic string, size int)
	McacheHit()
	McacheMiss()
}

type noopRecorder struct{}

func (noopRecorder) ConnectionOpened(string) {}
func (noopRecorder) ConnectionClosed(string) {}
func (noopRecorder) PhaseEntered(string)     {}
func (noopRecorder) QueueDepth(int, int)     {}
func (noopRecorder) MeshSize(string, int)    {}
func (noopRecorder) McacheHit()              {}
func (noopRecorder) McacheMiss()             {}

// Swarm is the Swarm-wide registry of connections and dispatcher of
// inbound bytes, timers and driver-facing operations onto the per-
// connection pipelines and the shared pubsub Engine.
type Swarm struct {
	cfg      config.Config
	identity *identity.Keypair
	src      rng.Source
	timerSeq uint64
	rec      Recorder

	pubsubEngine *pubsub.Engine

	conns        map[iface.ConnectionId]*connection
	pendingDials map[string]identity.PeerId

	nextPendingID  uint64
	nextListenerID uint64

	minVersion *hashicorpversion.Version

	pendingActions []iface.Action
	pendingEvents  []iface.Event
}

// New constructs a Swarm for one local identity. rec may be nil.
func New(cfg config.Config, kp *identity.Keypair, src rng.Source, rec Recorder) *Swarm {
	if rec == nil {
		rec = noopRecorder{}
	}
	s := &Swarm{
		cfg:          cfg,
		identity:     kp,
		src:          src,
		rec:          rec,
		conns:        make(map[iface.ConnectionId]*connection),
		pendingDials: make(map[string]identity.PeerId),
	}
	s.pubsubEngine = pubsub.NewEngine(cfg.PubSub, kp.Id, src, &s.timerSeq, rec)
	if cfg.MinPeerVersion != "" {
		if v, err := hashicorpversion.NewVersion(cfg.MinPeerVersion); err == nil {
			s.minVersion = v
		}
	}
	s.enqueue(s.tagRecords(tagPubsub, s.pubsubEngine.StartHeartbeat()), nil)
	return s
}

func (s *Swarm) nextTimerID() iface.TimerId {
	s.timerSeq++
	return iface.TimerId(s.timerSeq)
}

func (s *Swarm) enqueue(actions []iface.Action, events []iface.Event) {
	s.pendingActions = append(s.pendingActions, actions...)
	s.pendingEvents = append(s.pendingEvents, events...)
	s.rec.QueueDepth(len(s.pendingActions), len(s.pendingEvents))
}

// Poll drains and returns all actions queued since the last call.
func (s *Swarm) Poll() []iface.Action {
	out := s.pendingActions
	s.pendingActions = nil
	return out
}

// DrainEvents drains and returns all events queued since the last call.
func (s *Swarm) DrainEvents() []iface.Event {
	out := s.pendingEvents
	s.pendingEvents = nil
	return out
}

// Dial requests an outbound connection to addr. A /p2p/<peer id> component,
// if present, is the peer this core expects to reach: the identity the
// handshake proves is checked against it, and a mismatch closes the
// connection. remote_peer_id itself always comes from the handshake.
func (s *Swarm) Dial(addr string) error {
	ma, err := multiaddr.Parse(addr)
	if err != nil {
		return err
	}
	s.nextPendingID++
	for _, c := range ma.Components() {
		if c.Proto == multiaddr.P2P {
			s.pendingDials[addr] = c.Peer
		}
	}
	s.enqueue([]iface.Action{{Kind: iface.ActionDial, PendingID: s.nextPendingID, Addr: addr}}, nil)
	return nil
}

// Listen requests a listening socket on addr.
func (s *Swarm) Listen(addr string) error {
	if _, err := multiaddr.Parse(addr); err != nil {
		return err
	}
	s.nextListenerID++
	s.enqueue([]iface.Action{{Kind: iface.ActionListen, ListenerID: s.nextListenerID, Addr: addr}}, nil)
	return nil
}

// Close requests that connID be torn down. The actual scrub of
// connection/peer state happens once the driver confirms via
// OnConnectionClosed, not here.
func (s *Swarm) Close(connID iface.ConnectionId) {
	s.enqueue([]iface.Action{{Kind: iface.ActionCloseConnection, ConnID: connID}}, nil)
}

// Subscribe joins topic, optionally with a govaluate validator expression.
func (s *Swarm) Subscribe(topic, validatorExpr string) error {
	actions, events, err := s.pubsubEngine.Subscribe(topic, validatorExpr)
	if err != nil {
		return err
	}
	s.enqueue(s.tagRecords(tagPubsub, actions), events)
	return nil
}

// Publish sends data on topic to the mesh or fanout.
func (s *Swarm) Publish(topic string, data []byte) {
	actions, events := s.pubsubEngine.Publish(topic, data)
	s.enqueue(s.tagRecords(tagPubsub, actions), events)
}

// OnConnectionOpened registers a newly raw-connected socket the driver has
// allocated connID for, and kicks off outer multistream-select negotiation
// of the security protocol.
func (s *Swarm) OnConnectionOpened(connID iface.ConnectionId, addr string, direction Direction) {
	conn := &connection{id: connID, addr: addr, direction: direction, phase: phaseOuterNegotiating}
	if direction == Outbound {
		if peer, ok := s.pendingDials[addr]; ok {
			conn.expectedPeer = peer
			conn.hasExpectedPeer = true
		}
		delete(s.pendingDials, addr)
	}
	s.conns[connID] = conn
	s.rec.ConnectionOpened(direction.String())
	s.rec.PhaseEntered("outer_negotiating")

	var actions []iface.Action
	if direction == Outbound {
		client := mss.NewClient([]string{noiseProtocolID})
		start, err := client.Start()
		if err != nil {
			s.failConnection(conn, err)
			return
		}
		conn.outerNeg = client
		actions = append(actions, sendAction(connID, start))
	} else {
		server := mss.NewServer([]string{noiseProtocolID})
		conn.outerNeg = server
		actions = append(actions, sendAction(connID, server.Start()))
	}

	conn.handshakeTimer = s.nextTimerID()
	actions = append(actions, iface.Action{Kind: iface.ActionSetTimer, TimerID: conn.handshakeTimer, DurationMs: s.cfg.HandshakeTimeoutMs})
	s.enqueue(actions, nil)
}

// OnConnectionClosed scrubs connID from the pubsub mesh/fanout and this
// Swarm's registry, and surfaces EventConnectionClosed. A reason recorded
// earlier (e.g. a handshake timeout) takes precedence over the driver's.
func (s *Swarm) OnConnectionClosed(connID iface.ConnectionId, reason error) {
	conn, ok := s.conns[connID]
	if !ok {
		return
	}
	if conn.pendingCloseReason != nil {
		reason = conn.pendingCloseReason
	}
	delete(s.conns, connID)
	s.pubsubEngine.OnConnectionClosed(connID)
	s.rec.ConnectionClosed(conn.direction.String())
	s.rec.PhaseEntered("closed")
	s.enqueue(nil, []iface.Event{{Kind: iface.EventConnectionClosed, ConnID: connID, Reason: reason}})
}

// OnDataReceived feeds newly arrived bytes through connID's pipeline.
// nowMs is the driver's clock reading, needed only if this call causes a
// ping round-trip to be timed.
func (s *Swarm) OnDataReceived(connID iface.ConnectionId, data []byte, nowMs int64) error {
	conn, ok := s.conns[connID]
	if !ok {
		return errs.New(errs.UnknownConnection, "no connection %d", connID)
	}
	var actions []iface.Action
	var events []iface.Event
	var err error
	if conn.phase == phaseOuterNegotiating {
		actions, events, err = s.feedOuter(conn, data, nowMs)
	} else {
		actions, events, err = s.feedSecuredPipeline(conn, data, nowMs)
	}
	if err != nil {
		conn.pendingCloseReason = err
		actions = append(actions, iface.Action{Kind: iface.ActionCloseConnection, ConnID: connID})
	}
	s.enqueue(actions, events)
	return nil
}

// OnTimer dispatches a fired timer to whichever sub-machine owns it: the
// handshake-timeout watchdog, a connection's ping machine, or the pubsub
// heartbeat. Each is a cheap no-op on a mismatched id, so this core scans
// rather than maintaining a separate ownership index.
func (s *Swarm) OnTimer(timerID iface.TimerId, nowMs int64) {
	for _, conn := range s.conns {
		if conn.phase != phaseSecured && timerID == conn.handshakeTimer {
			conn.pendingCloseReason = errs.New(errs.HandshakeTimeout, "connection %d did not secure in time", conn.id)
			s.enqueue([]iface.Action{{Kind: iface.ActionCloseConnection, ConnID: conn.id}}, nil)
			continue
		}
		if conn.phase == phaseSecured {
			actions, events := conn.ping.OnTimer(timerID, s.src, nowMs)
			s.enqueue(s.tagRecords(tagPing, actions), events)
		}
	}
	s.enqueue(s.tagRecords(tagPubsub, s.pubsubEngine.OnHeartbeatTimer(timerID)), nil)
}

// Peers returns the peer id of every connection whose identity has been
// resolved. The identity is committed from the handshake's verified payload
// when the connection reaches the secured phase, for dialed and accepted
// connections alike. A connection still negotiating is omitted.
func (s *Swarm) Peers() []identity.PeerId {
	peers := make([]identity.PeerId, 0, len(s.conns))
	for _, c := range s.conns {
		if c.peerKnown {
			peers = append(peers, c.remotePeer)
		}
	}
	return peers
}

func (s *Swarm) failConnection(conn *connection, err error) {
	conn.pendingCloseReason = err
	s.pendingActions = append(s.pendingActions, iface.Action{Kind: iface.ActionCloseConnection, ConnID: conn.id})
	s.rec.QueueDepth(len(s.pendingActions), len(s.pendingEvents))
}

func sendAction(connID iface.ConnectionId, b []byte) iface.Action {
	return iface.Action{Kind: iface.ActionSend, ConnID: connID, Bytes: b}
}
