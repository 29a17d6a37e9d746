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

package mss

import "github.com/facebook/p2pcore/errs"

type serverPhase int

const (
	serverAwaitHeader serverPhase = iota
	serverAwaitProposal
	serverDone
)

// Server is the accepting side of a negotiation: it accepts the first
// proposal present in its supported set and replies "na" to everything
// else.
type Server struct {
	supported []string
	phase     serverPhase
	lines     lineBuffer
}

// NewServer constructs a Server advertising the given supported protocols.
func NewServer(supported []string) *Server {
	return &Server{supported: supported, phase: serverAwaitHeader}
}

// Start returns the header line a listener must send as soon as a new
// connection or substream opens, before reading anything from the client.
func (s *Server) Start() []byte {
	return EncodeLine(HeaderProtocol)
}

// Feed consumes inbound bytes and returns bytes to write (echoed header,
// "na" responses, or the accepted protocol line) plus a non-nil *Result
// once a protocol has been accepted.
func (s *Server) Feed(data []byte) (toWrite []byte, result *Result, err error) {
	if s.phase == serverDone {
		return nil, nil, errs.New(errs.BadNegotiation, "Feed called after negotiation completed")
	}
	s.lines.feed(data)

	for {
		line, ok, err := s.lines.next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return toWrite, nil, nil
		}

		switch s.phase {
		case serverAwaitHeader:
			if line != HeaderProtocol {
				return nil, nil, errs.New(errs.BadNegotiation, "expected header %q, got %q", HeaderProtocol, line)
			}
			s.phase = serverAwaitProposal
		case serverAwaitProposal:
			if protocolKnown(s.supported, line) {
				toWrite = append(toWrite, EncodeLine(line)...)
				s.phase = serverDone
				return toWrite, &Result{Protocol: line, Leftover: s.lines.leftover()}, nil
			}
			toWrite = append(toWrite, EncodeLine(na)...)
		}
	}
}
