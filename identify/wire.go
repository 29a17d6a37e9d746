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

package identify

import (
	varint "github.com/multiformats/go-varint"

	"github.com/facebook/p2pcore/errs"
	"github.com/facebook/p2pcore/iface"
)

// Field tags for the identify record. This is a hand-rolled tag/length/value
// codec in the manual-binary-marshal style facebook/time's protocol package
// uses for its PTP headers with encoding/binary, rather than generated
// protobuf: no .proto toolchain ran as part of building this module, and
// the record shape is small and fixed enough that TLV framing captures it
// without one.
const (
	tagPublicKey    = 1
	tagListenAddr   = 2
	tagObservedAddr = 3
	tagProtocol     = 4
	tagAgentVersion = 5
)

func putField(buf []byte, tag int, value []byte) []byte {
	buf = append(buf, varint.ToUvarint(uint64(tag))...)
	buf = append(buf, varint.ToUvarint(uint64(len(value)))...)
	return append(buf, value...)
}

// Encode serializes an IdentifyInfo record.
func Encode(info iface.IdentifyInfo) []byte {
	var buf []byte
	buf = putField(buf, tagPublicKey, info.PublicKey)
	for _, a := range info.ListenAddrs {
		buf = putField(buf, tagListenAddr, []byte(a))
	}
	buf = putField(buf, tagObservedAddr, []byte(info.ObservedAddr))
	for _, p := range info.Protocols {
		buf = putField(buf, tagProtocol, []byte(p))
	}
	buf = putField(buf, tagAgentVersion, []byte(info.AgentVersion))
	return buf
}

// Decode parses a record produced by Encode. Fails MalformedFrame on
// truncated or inconsistent field framing.
func Decode(b []byte) (iface.IdentifyInfo, error) {
	var info iface.IdentifyInfo
	for len(b) > 0 {
		tag, n, err := varint.FromUvarint(b)
		if err != nil {
			return info, errs.New(errs.MalformedFrame, "decoding identify tag: %v", err)
		}
		b = b[n:]
		length, n, err := varint.FromUvarint(b)
		if err != nil {
			return info, errs.New(errs.MalformedFrame, "decoding identify length: %v", err)
		}
		b = b[n:]
		if uint64(len(b)) < length {
			return info, errs.New(errs.MalformedFrame, "identify field truncated")
		}
		value := b[:length]
		b = b[length:]

		switch tag {
		case tagPublicKey:
			info.PublicKey = append([]byte{}, value...)
		case tagListenAddr:
			info.ListenAddrs = append(info.ListenAddrs, string(value))
		case tagObservedAddr:
			info.ObservedAddr = string(value)
		case tagProtocol:
			info.Protocols = append(info.Protocols, string(value))
		case tagAgentVersion:
			info.AgentVersion = string(value)
		default:
			return info, errs.New(errs.MalformedFrame, "unknown identify field tag %d", tag)
		}
	}
	return info, nil
}
