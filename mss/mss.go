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

// Package mss implements multistream-select protocol negotiation: a
// line-oriented scheme where each line is
// "unsigned-varint length || utf8 bytes || '\n'", the length covering the
// utf8 payload plus its trailing newline. Length prefixes use
// github.com/multiformats/go-varint, the exact codec the real
// multistream-select wire format uses.
package mss

import (
	varint "github.com/multiformats/go-varint"

	"github.com/facebook/p2pcore/errs"
)

// HeaderProtocol is the multistream-select version line both sides
// exchange before any proposals.
const HeaderProtocol = "/multistream/1.0.0"

// na is the responder's rejection line for an unsupported proposal.
const na = "na"

// EncodeLine frames a single multistream-select line.
func EncodeLine(s string) []byte {
	payload := append([]byte(s), '\n')
	prefix := varint.ToUvarint(uint64(len(payload)))
	out := make([]byte, 0, len(prefix)+len(payload))
	out = append(out, prefix...)
	out = append(out, payload...)
	return out
}

// lineBuffer decodes varint-length-prefixed lines out of a byte stream
// that may arrive split across multiple Feed calls.
type lineBuffer struct {
	buf []byte
}

func (l *lineBuffer) feed(b []byte) {
	l.buf = append(l.buf, b...)
}

// next returns the next decoded line (without its trailing '\n') if a full
// line is buffered. ok is false when more bytes are needed.
func (l *lineBuffer) next() (line string, ok bool, err error) {
	if len(l.buf) == 0 {
		return "", false, nil
	}
	n, nRead, err := varint.FromUvarint(l.buf)
	if err != nil {
		if err == varint.ErrVarintBufferShort {
			return "", false, nil
		}
		return "", false, errs.New(errs.BadNegotiation, "decoding varint length: %v", err)
	}
	total := nRead + int(n)
	if len(l.buf) < total {
		return "", false, nil
	}
	payload := l.buf[nRead:total]
	if n == 0 || payload[len(payload)-1] != '\n' {
		return "", false, errs.New(errs.BadNegotiation, "line missing trailing newline")
	}
	l.buf = l.buf[total:]
	return string(payload[:len(payload)-1]), true, nil
}

// leftover returns bytes buffered but not yet consumed as a line -- used
// once negotiation completes, since leftover bytes belong to the chosen
// protocol handler, not to mss: leftover bytes after
// acceptance are delivered to the chosen protocol").
func (l *lineBuffer) leftover() []byte {
	out := l.buf
	l.buf = nil
	return out
}

// Result is the outcome of a completed negotiation.
type Result struct {
	// Protocol is the agreed protocol id. Empty if Unsupported is true.
	Protocol string
	// Unsupported is set when a client's proposals were all rejected.
	Unsupported bool
	// Leftover is any application bytes received past the negotiation
	// boundary in the same Feed call, to be replayed into the chosen
	// protocol handler.
	Leftover []byte
}

func protocolKnown(candidates []string, proto string) bool {
	for _, c := range candidates {
		if c == proto {
			return true
		}
	}
	return false
}
