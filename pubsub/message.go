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

	"github.com/cespare/xxhash"

	"github.com/facebook/p2pcore/identity"
)

// Message is a single GossipSub payload in transit.
type Message struct {
	From  identity.PeerId
	Seqno uint64
	Topic string
	Data  []byte
}

// MessageIDFunc computes the dedup fingerprint for a message. The default,
// DefaultMessageID, hashes source_peer || seqno; deployments needing a
// cryptographically strong id may supply their own.
type MessageIDFunc func(m Message) string

// DefaultMessageID hashes source_peer || seqno with xxhash: a fast
// non-cryptographic fingerprint, adequate for a dedup key that is never a
// security boundary.
func DefaultMessageID(m Message) string {
	var buf [40]byte
	copy(buf[:32], m.From[:])
	binary.BigEndian.PutUint64(buf[32:], m.Seqno)
	sum := xxhash.Sum64(buf[:])
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 0; i < 8; i++ {
		shift := uint(56 - 8*i)
		v := byte(sum >> shift)
		out[2*i] = hexDigits[v>>4]
		out[2*i+1] = hexDigits[v&0xf]
	}
	return string(out)
}
