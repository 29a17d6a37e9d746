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

package pubsub

import (
	"encoding/binary"

	varint "github.com/multiformats/go-varint"

	"github.com/facebook/p2pcore/errs"
	"github.com/facebook/p2pcore/identity"
)

// Hand-rolled tag/length/value RPC codec, in the same manual-binary-marshal
// style as the identify record: {subscriptions, publish, control}, with
// control sub-messages {ihave, iwant, graft, prune}. Length prefixes use
// unsigned-varint, matching the real GossipSub wire format.
const (
	rpcTagSubscription = 1
	rpcTagMessage      = 2
	rpcTagControl      = 3
)

const (
	controlGraft = 1
	controlPrune = 2
	controlIHave = 3
	controlIWant = 4
)

// Subscription is a subscribe/unsubscribe delta for one topic.
type Subscription struct {
	Topic     string
	Subscribe bool
}

// Control is one control sub-message.
type Control struct {
	Kind      int // controlGraft, controlPrune, controlIHave, controlIWant
	Topic     string
	IDs       []string
	BackoffMs uint64
}

// RPC is a decoded GossipSub frame.
type RPC struct {
	Subscriptions []Subscription
	Messages      []Message
	Controls      []Control
}

func putTLV(buf []byte, tag int, value []byte) []byte {
	buf = append(buf, varint.ToUvarint(uint64(tag))...)
	buf = append(buf, varint.ToUvarint(uint64(len(value)))...)
	return append(buf, value...)
}

func putString(buf []byte, s string) []byte {
	buf = append(buf, varint.ToUvarint(uint64(len(s)))...)
	return append(buf, s...)
}

func readString(b []byte) (string, []byte, error) {
	n, adv, err := varint.FromUvarint(b)
	if err != nil {
		return "", nil, errs.New(errs.MalformedFrame, "decoding string length: %v", err)
	}
	b = b[adv:]
	if uint64(len(b)) < n {
		return "", nil, errs.New(errs.MalformedFrame, "string truncated")
	}
	return string(b[:n]), b[n:], nil
}

// EncodeRPC serializes an RPC frame.
func EncodeRPC(rpc RPC) []byte {
	var buf []byte
	for _, s := range rpc.Subscriptions {
		var flag byte
		if s.Subscribe {
			flag = 1
		}
		payload := []byte{flag}
		payload = putString(payload, s.Topic)
		buf = putTLV(buf, rpcTagSubscription, payload)
	}
	for _, m := range rpc.Messages {
		payload := append([]byte{}, m.From[:]...)
		var seqno [8]byte
		binary.BigEndian.PutUint64(seqno[:], m.Seqno)
		payload = append(payload, seqno[:]...)
		payload = putString(payload, m.Topic)
		payload = append(payload, m.Data...)
		buf = putTLV(buf, rpcTagMessage, payload)
	}
	for _, c := range rpc.Controls {
		var payload []byte
		payload = append(payload, byte(c.Kind))
		switch c.Kind {
		case controlGraft:
			payload = putString(payload, c.Topic)
		case controlPrune:
			payload = putString(payload, c.Topic)
			var backoff [8]byte
			binary.BigEndian.PutUint64(backoff[:], c.BackoffMs)
			payload = append(payload, backoff[:]...)
		case controlIHave:
			payload = putString(payload, c.Topic)
			payload = append(payload, varint.ToUvarint(uint64(len(c.IDs)))...)
			for _, id := range c.IDs {
				payload = putString(payload, id)
			}
		case controlIWant:
			payload = append(payload, varint.ToUvarint(uint64(len(c.IDs)))...)
			for _, id := range c.IDs {
				payload = putString(payload, id)
			}
		}
		buf = putTLV(buf, rpcTagControl, payload)
	}
	return buf
}

// DecodeRPC parses a frame produced by EncodeRPC.
func DecodeRPC(b []byte) (RPC, error) {
	var rpc RPC
	for len(b) > 0 {
		tag, adv, err := varint.FromUvarint(b)
		if err != nil {
			return rpc, errs.New(errs.MalformedFrame, "decoding rpc tag: %v", err)
		}
		b = b[adv:]
		length, adv, err := varint.FromUvarint(b)
		if err != nil {
			return rpc, errs.New(errs.MalformedFrame, "decoding rpc length: %v", err)
		}
		b = b[adv:]
		if uint64(len(b)) < length {
			return rpc, errs.New(errs.MalformedFrame, "rpc field truncated")
		}
		payload := b[:length]
		b = b[length:]

		switch tag {
		case rpcTagSubscription:
			if len(payload) < 1 {
				return rpc, errs.New(errs.MalformedFrame, "subscription field too short")
			}
			topic, _, err := readString(payload[1:])
			if err != nil {
				return rpc, err
			}
			rpc.Subscriptions = append(rpc.Subscriptions, Subscription{Topic: topic, Subscribe: payload[0] == 1})
		case rpcTagMessage:
			if len(payload) < identity.Size+8 {
				return rpc, errs.New(errs.MalformedFrame, "message field too short")
			}
			var from identity.PeerId
			copy(from[:], payload[:identity.Size])
			seqno := binary.BigEndian.Uint64(payload[identity.Size : identity.Size+8])
			topic, rest, err := readString(payload[identity.Size+8:])
			if err != nil {
				return rpc, err
			}
			rpc.Messages = append(rpc.Messages, Message{From: from, Seqno: seqno, Topic: topic, Data: append([]byte{}, rest...)})
		case rpcTagControl:
			c, err := decodeControl(payload)
			if err != nil {
				return rpc, err
			}
			rpc.Controls = append(rpc.Controls, c)
		default:
			return rpc, errs.New(errs.MalformedFrame, "unknown rpc field tag %d", tag)
		}
	}
	return rpc, nil
}

func decodeControl(payload []byte) (Control, error) {
	var c Control
	if len(payload) < 1 {
		return c, errs.New(errs.MalformedFrame, "control field too short")
	}
	c.Kind = int(payload[0])
	rest := payload[1:]
	switch c.Kind {
	case controlGraft:
		topic, _, err := readString(rest)
		if err != nil {
			return c, err
		}
		c.Topic = topic
	case controlPrune:
		topic, rest, err := readString(rest)
		if err != nil {
			return c, err
		}
		if len(rest) < 8 {
			return c, errs.New(errs.MalformedFrame, "prune backoff truncated")
		}
		c.Topic = topic
		c.BackoffMs = binary.BigEndian.Uint64(rest[:8])
	case controlIHave:
		topic, rest, err := readString(rest)
		if err != nil {
			return c, err
		}
		c.Topic = topic
		ids, err := decodeIDList(rest)
		if err != nil {
			return c, err
		}
		c.IDs = ids
	case controlIWant:
		ids, err := decodeIDList(rest)
		if err != nil {
			return c, err
		}
		c.IDs = ids
	default:
		return c, errs.New(errs.MalformedFrame, "unknown control kind %d", c.Kind)
	}
	return c, nil
}

func decodeIDList(b []byte) ([]string, error) {
	count, adv, err := varint.FromUvarint(b)
	if err != nil {
		return nil, errs.New(errs.MalformedFrame, "decoding id count: %v", err)
	}
	b = b[adv:]
	ids := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		id, rest, err := readString(b)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		b = rest
	}
	return ids, nil
}
