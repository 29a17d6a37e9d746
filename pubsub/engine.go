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

// Package pubsub implements the GossipSub mesh/message-cache/heartbeat
// engine: topic subscription, publish with mesh-or-fanout delivery,
// message deduplication via a bounded time-sliced cache, and periodic
// heartbeat maintenance that rebalances each topic's mesh degree.
package pubsub

import (
	"github.com/Knetic/govaluate"
	"golang.org/x/exp/slices"

	"github.com/facebook/p2pcore/errs"
	"github.com/facebook/p2pcore/identity"
	"github.com/facebook/p2pcore/iface"
	"github.com/facebook/p2pcore/rng"
)

// Recorder receives point-in-time observations for metrics export. A nil
// Recorder is a valid, inert default.
type Recorder interface {
	MeshSize(topic string, size int)
	McacheHit()
	McacheMiss()
}

type noopRecorder struct{}

func (noopRecorder) MeshSize(string, int) {}
func (noopRecorder) McacheHit()           {}
func (noopRecorder) McacheMiss()          {}

type topicState struct {
	subscribed bool
	mesh       map[identity.PeerId]bool
	validator  *govaluate.EvaluableExpression
}

type fanoutState struct {
	peers        map[identity.PeerId]bool
	sinceLastPub int
}

// Engine is the Swarm-wide GossipSub state. It is mutated only through its
// exported methods; no locking, since the core is single-threaded.
type Engine struct {
	cfg       Config
	localPeer identity.PeerId
	src       rng.Source
	timerSeq  *uint64
	idFunc    MessageIDFunc
	rec       Recorder

	topics map[string]*topicState
	fanout map[string]*fanoutState
	known  map[string]map[identity.PeerId]bool // topic -> peers known to subscribe
	score  map[identity.PeerId]float64

	peerConn map[identity.PeerId]iface.ConnectionId
	connPeer map[iface.ConnectionId]identity.PeerId

	seqno uint64
	mc    *messageCache

	heartbeatTimer iface.TimerId
}

// NewEngine constructs an Engine. timerSeq is a shared counter for
// allocating timer ids, the same pattern ping.Machine uses. rec may be nil.
func NewEngine(cfg Config, localPeer identity.PeerId, src rng.Source, timerSeq *uint64, rec Recorder) *Engine {
	if rec == nil {
		rec = noopRecorder{}
	}
	return &Engine{
		cfg:       cfg,
		localPeer: localPeer,
		src:       src,
		timerSeq:  timerSeq,
		idFunc:    DefaultMessageID,
		rec:       rec,
		topics:    make(map[string]*topicState),
		fanout:    make(map[string]*fanoutState),
		known:     make(map[string]map[identity.PeerId]bool),
		score:     make(map[identity.PeerId]float64),
		peerConn:  make(map[identity.PeerId]iface.ConnectionId),
		connPeer:  make(map[iface.ConnectionId]identity.PeerId),
		mc:        newMessageCache(cfg.HeartbeatHistory, cfg.GossipHistory),
	}
}

// SetMessageIDFunc overrides the default xxhash(source||seqno) fingerprint.
func (e *Engine) SetMessageIDFunc(f MessageIDFunc) {
	e.idFunc = f
}

func (e *Engine) nextTimerID() iface.TimerId {
	*e.timerSeq++
	return iface.TimerId(*e.timerSeq)
}

// StartHeartbeat schedules the first maintenance tick.
func (e *Engine) StartHeartbeat() []iface.Action {
	e.heartbeatTimer = e.nextTimerID()
	return []iface.Action{{Kind: iface.ActionSetTimer, TimerID: e.heartbeatTimer, DurationMs: e.cfg.HeartbeatIntervalMs}}
}

// AddPeer registers a newly identified, connected peer and tells it our
// current subscription set.
func (e *Engine) AddPeer(connID iface.ConnectionId, peer identity.PeerId) []iface.Action {
	e.peerConn[peer] = connID
	e.connPeer[connID] = peer
	if len(e.topics) == 0 {
		return nil
	}
	var subs []Subscription
	for topic, ts := range e.topics {
		if ts.subscribed {
			subs = append(subs, Subscription{Topic: topic, Subscribe: true})
		}
	}
	if len(subs) == 0 {
		return nil
	}
	return []iface.Action{{Kind: iface.ActionSend, ConnID: connID, Bytes: EncodeRPC(RPC{Subscriptions: subs})}}
}

// OnConnectionClosed scrubs the peer from every mesh and fanout set, per
// the cross-connection-reference rule: mesh membership is by PeerId, but
// the connection carrying it is gone.
func (e *Engine) OnConnectionClosed(connID iface.ConnectionId) {
	peer, ok := e.connPeer[connID]
	if !ok {
		return
	}
	delete(e.connPeer, connID)
	delete(e.peerConn, peer)
	delete(e.score, peer)
	for topic, ts := range e.topics {
		if ts.mesh[peer] {
			delete(ts.mesh, peer)
			e.rec.MeshSize(topic, len(ts.mesh))
		}
	}
	for _, fs := range e.fanout {
		delete(fs.peers, peer)
	}
	for _, peers := range e.known {
		delete(peers, peer)
	}
}

// Subscribe adds topic to the local subscription set, broadcasts a
// subscribe delta to every connected peer, and grafts up to D peers
// already known to subscribe to it. validatorExpr, if non-empty, is
// compiled with govaluate and evaluated over {Payload, Topic, PeerId} for
// every inbound message on this topic; a failing message is dropped
// before it reaches the mcache or mesh forward.
func (e *Engine) Subscribe(topic string, validatorExpr string) ([]iface.Action, []iface.Event, error) {
	ts, ok := e.topics[topic]
	if !ok {
		ts = &topicState{mesh: make(map[identity.PeerId]bool)}
		e.topics[topic] = ts
	}
	ts.subscribed = true

	if validatorExpr != "" {
		expr, err := govaluate.NewEvaluableExpression(validatorExpr)
		if err != nil {
			return nil, nil, errs.New(errs.BadNegotiation, "invalid validator expression: %v", err)
		}
		ts.validator = expr
	}

	var actions []iface.Action
	delta := RPC{Subscriptions: []Subscription{{Topic: topic, Subscribe: true}}}
	for _, connID := range e.peerConn {
		actions = append(actions, iface.Action{Kind: iface.ActionSend, ConnID: connID, Bytes: EncodeRPC(delta)})
	}

	candidates := e.subscribersNotInMesh(topic)
	e.shuffle(candidates)
	want := e.cfg.D - len(ts.mesh)
	for i := 0; i < want && i < len(candidates); i++ {
		peer := candidates[i]
		ts.mesh[peer] = true
		if connID, ok := e.peerConn[peer]; ok {
			actions = append(actions, iface.Action{Kind: iface.ActionSend, ConnID: connID, Bytes: EncodeRPC(RPC{Controls: []Control{{Kind: controlGraft, Topic: topic}}})})
		}
	}
	e.rec.MeshSize(topic, len(ts.mesh))

	return actions, []iface.Event{{Kind: iface.EventSubscribed, Topic: topic}}, nil
}

// Publish builds a message from local data, inserts it into the mcache,
// and delivers it to the topic's mesh if locally subscribed, else to its
// fanout (replenished to D peers from known subscribers, TTL reset). With
// no subscribers and no fanout candidates, the message is dropped and
// InsufficientPeers is surfaced -- buffering would require the core to own
// a retry timer.
func (e *Engine) Publish(topic string, data []byte) ([]iface.Action, []iface.Event) {
	e.seqno++
	msg := Message{From: e.localPeer, Seqno: e.seqno, Topic: topic, Data: data}
	id := e.idFunc(msg)
	e.mc.Put(id, msg)

	recipients := e.deliveryTargets(topic)
	if len(recipients) == 0 {
		return nil, []iface.Event{{Kind: iface.EventInsufficientPeers, Topic: topic}}
	}

	var actions []iface.Action
	rpc := RPC{Messages: []Message{msg}}
	encoded := EncodeRPC(rpc)
	for peer := range recipients {
		if connID, ok := e.peerConn[peer]; ok {
			actions = append(actions, iface.Action{Kind: iface.ActionSend, ConnID: connID, Bytes: encoded})
		}
	}
	return actions, nil
}

func (e *Engine) deliveryTargets(topic string) map[identity.PeerId]bool {
	if ts, ok := e.topics[topic]; ok && ts.subscribed {
		return ts.mesh
	}
	fs, ok := e.fanout[topic]
	if !ok {
		fs = &fanoutState{peers: make(map[identity.PeerId]bool)}
		e.fanout[topic] = fs
	}
	fs.sinceLastPub = 0
	if len(fs.peers) < e.cfg.D {
		candidates := e.subscribersNotIn(topic, fs.peers)
		e.shuffle(candidates)
		need := e.cfg.D - len(fs.peers)
		for i := 0; i < need && i < len(candidates); i++ {
			fs.peers[candidates[i]] = true
		}
	}
	return fs.peers
}

// OnRPC processes an inbound frame: subscription deltas update the known
// table, messages run the receive pipeline, and controls mutate the mesh.
func (e *Engine) OnRPC(fromConn iface.ConnectionId, data []byte) ([]iface.Action, []iface.Event, error) {
	peer, ok := e.connPeer[fromConn]
	if !ok {
		return nil, nil, errs.New(errs.UnknownConnection, "no identified peer for connection")
	}
	rpc, err := DecodeRPC(data)
	if err != nil {
		return nil, nil, err
	}

	for _, s := range rpc.Subscriptions {
		peers, ok := e.known[s.Topic]
		if !ok {
			peers = make(map[identity.PeerId]bool)
			e.known[s.Topic] = peers
		}
		if s.Subscribe {
			peers[peer] = true
		} else {
			delete(peers, peer)
		}
	}

	var actions []iface.Action
	var events []iface.Event
	for _, m := range rpc.Messages {
		a, ev := e.onReceiveMessage(fromConn, peer, m)
		actions = append(actions, a...)
		events = append(events, ev...)
	}
	for _, c := range rpc.Controls {
		a := e.onReceiveControl(fromConn, peer, c)
		actions = append(actions, a...)
	}
	return actions, events, nil
}

func (e *Engine) onReceiveMessage(fromConn iface.ConnectionId, from identity.PeerId, m Message) ([]iface.Action, []iface.Event) {
	id := e.idFunc(m)
	if e.mc.Has(id) {
		e.rec.McacheHit()
		return nil, nil
	}
	e.rec.McacheMiss()
	if ts, ok := e.topics[m.Topic]; ok && ts.validator != nil {
		params := map[string]interface{}{"Payload": string(m.Data), "Topic": m.Topic, "PeerId": m.From.String()}
		result, err := ts.validator.Evaluate(params)
		if err != nil {
			return nil, nil
		}
		if ok, isBool := result.(bool); !isBool || !ok {
			return nil, nil
		}
	}
	e.mc.Put(id, m)

	var events []iface.Event
	if ts, ok := e.topics[m.Topic]; ok && ts.subscribed {
		events = append(events, iface.Event{Kind: iface.EventMessage, Topic: m.Topic, MessageID: id, Data: m.Data, Peer: m.From, From: from})
	}

	var actions []iface.Action
	if ts, ok := e.topics[m.Topic]; ok {
		encoded := EncodeRPC(RPC{Messages: []Message{m}})
		for peer := range ts.mesh {
			if peer == m.From || peer == from {
				continue
			}
			if connID, ok := e.peerConn[peer]; ok {
				actions = append(actions, iface.Action{Kind: iface.ActionSend, ConnID: connID, Bytes: encoded})
			}
		}
	}
	return actions, events
}

func (e *Engine) onReceiveControl(fromConn iface.ConnectionId, from identity.PeerId, c Control) []iface.Action {
	switch c.Kind {
	case controlGraft:
		ts, ok := e.topics[c.Topic]
		if ok && ts.subscribed && len(ts.mesh) < e.cfg.Dhi {
			ts.mesh[from] = true
			e.rec.MeshSize(c.Topic, len(ts.mesh))
			return nil
		}
		return []iface.Action{{Kind: iface.ActionSend, ConnID: fromConn, Bytes: EncodeRPC(RPC{Controls: []Control{{Kind: controlPrune, Topic: c.Topic}}})}}
	case controlPrune:
		if ts, ok := e.topics[c.Topic]; ok {
			delete(ts.mesh, from)
			e.rec.MeshSize(c.Topic, len(ts.mesh))
		}
	case controlIHave:
		var want []string
		for _, id := range c.IDs {
			if !e.mc.Has(id) {
				want = append(want, id)
			}
		}
		if len(want) == 0 {
			return nil
		}
		return []iface.Action{{Kind: iface.ActionSend, ConnID: fromConn, Bytes: EncodeRPC(RPC{Controls: []Control{{Kind: controlIWant, IDs: want}}})}}
	case controlIWant:
		var msgs []Message
		for _, id := range c.IDs {
			if m, ok := e.mc.Get(id); ok {
				msgs = append(msgs, m)
			}
		}
		if len(msgs) == 0 {
			return nil
		}
		return []iface.Action{{Kind: iface.ActionSend, ConnID: fromConn, Bytes: EncodeRPC(RPC{Messages: msgs})}}
	}
	return nil
}

// OnHeartbeatTimer runs one maintenance tick: grafts under-provisioned
// meshes, prunes over-provisioned ones (lowest-scoring first), expires
// stale fanout entries, shifts the mcache, and gossips IHAVE to Dlazy
// random peers per topic.
func (e *Engine) OnHeartbeatTimer(timerID iface.TimerId) []iface.Action {
	if timerID != e.heartbeatTimer {
		return nil
	}
	var actions []iface.Action

	for topic, ts := range e.topics {
		if !ts.subscribed {
			continue
		}
		if len(ts.mesh) < e.cfg.Dlo {
			candidates := e.subscribersNotInMesh(topic)
			e.shuffle(candidates)
			need := e.cfg.D - len(ts.mesh)
			for i := 0; i < need && i < len(candidates); i++ {
				peer := candidates[i]
				ts.mesh[peer] = true
				if connID, ok := e.peerConn[peer]; ok {
					actions = append(actions, iface.Action{Kind: iface.ActionSend, ConnID: connID, Bytes: EncodeRPC(RPC{Controls: []Control{{Kind: controlGraft, Topic: topic}}})})
				}
			}
			e.rec.MeshSize(topic, len(ts.mesh))
		} else if len(ts.mesh) > e.cfg.Dhi {
			excess := len(ts.mesh) - e.cfg.D
			victims := e.lowestScoring(ts.mesh, excess)
			for _, peer := range victims {
				delete(ts.mesh, peer)
				if connID, ok := e.peerConn[peer]; ok {
					actions = append(actions, iface.Action{Kind: iface.ActionSend, ConnID: connID, Bytes: EncodeRPC(RPC{Controls: []Control{{Kind: controlPrune, Topic: topic}}})})
				}
			}
			e.rec.MeshSize(topic, len(ts.mesh))
		}

		gossipPeers := e.randomPeers(e.knownPeers(topic), e.cfg.Dlazy)
		ids := e.mc.GossipIDs(topic)
		if len(ids) > 0 {
			for _, peer := range gossipPeers {
				if connID, ok := e.peerConn[peer]; ok {
					actions = append(actions, iface.Action{Kind: iface.ActionSend, ConnID: connID, Bytes: EncodeRPC(RPC{Controls: []Control{{Kind: controlIHave, Topic: topic, IDs: ids}}})})
				}
			}
		}
	}

	for topic, fs := range e.fanout {
		fs.sinceLastPub++
		if fs.sinceLastPub > e.cfg.FanoutTTLHeartbeats {
			delete(e.fanout, topic)
		}
	}

	e.mc.Shift()

	e.heartbeatTimer = e.nextTimerID()
	actions = append(actions, iface.Action{Kind: iface.ActionSetTimer, TimerID: e.heartbeatTimer, DurationMs: e.cfg.HeartbeatIntervalMs})
	return actions
}

func (e *Engine) knownPeers(topic string) map[identity.PeerId]bool {
	return e.known[topic]
}

func (e *Engine) subscribersNotInMesh(topic string) []identity.PeerId {
	ts := e.topics[topic]
	return e.subscribersNotIn(topic, ts.mesh)
}

func (e *Engine) subscribersNotIn(topic string, exclude map[identity.PeerId]bool) []identity.PeerId {
	var out []identity.PeerId
	for peer := range e.known[topic] {
		if peer == e.localPeer || exclude[peer] {
			continue
		}
		if _, connected := e.peerConn[peer]; !connected {
			continue
		}
		out = append(out, peer)
	}
	return out
}

func (e *Engine) shuffle(peers []identity.PeerId) {
	e.src.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
}

func (e *Engine) randomPeers(pool map[identity.PeerId]bool, n int) []identity.PeerId {
	var candidates []identity.PeerId
	for peer := range pool {
		if _, connected := e.peerConn[peer]; connected {
			candidates = append(candidates, peer)
		}
	}
	e.shuffle(candidates)
	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}

// lowestScoring returns up to n peers from mesh, ordered by ascending
// score (ties broken by PeerId so selection is deterministic under a
// fixed seed).
func (e *Engine) lowestScoring(mesh map[identity.PeerId]bool, n int) []identity.PeerId {
	peers := make([]identity.PeerId, 0, len(mesh))
	for peer := range mesh {
		peers = append(peers, peer)
	}
	slices.SortFunc(peers, func(a, b identity.PeerId) bool {
		sa, sb := e.score[a], e.score[b]
		if sa != sb {
			return sa < sb
		}
		return a.String() < b.String()
	})
	if n > len(peers) {
		n = len(peers)
	}
	return peers[:n]
}

// MeshSize reports the current mesh degree for topic, for metrics/tests.
func (e *Engine) MeshSize(topic string) int {
	ts, ok := e.topics[topic]
	if !ok {
		return 0
	}
	return len(ts.mesh)
}
