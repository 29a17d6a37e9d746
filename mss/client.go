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

type clientPhase int

const (
	clientAwaitHeader clientPhase = iota
	clientAwaitResponse
	clientDone
)

// Client is the proposing side of a negotiation: it tries proposals in the
// given order and accepts the first one the responder echoes back.
type Client struct {
	proposals []string
	next      int
	phase     clientPhase
	lines     lineBuffer
}

// NewClient constructs a Client that will try proposals in order.
func NewClient(proposals []string) *Client {
	return &Client{proposals: proposals, phase: clientAwaitHeader}
}

// Start returns the bytes to write immediately: the multistream header
// followed by the first proposal, sent together to save a round trip.
func (c *Client) Start() ([]byte, error) {
	if len(c.proposals) == 0 {
		return nil, errs.New(errs.BadNegotiation, "no proposals given")
	}
	out := EncodeLine(HeaderProtocol)
	out = append(out, EncodeLine(c.proposals[0])...)
	return out, nil
}

// Feed consumes inbound bytes. It returns bytes to write next (e.g. the
// following proposal after a "na"), and a non-nil *Result once negotiation
// concludes (either a Protocol or Unsupported).
func (c *Client) Feed(data []byte) (toWrite []byte, result *Result, err error) {
	if c.phase == clientDone {
		return nil, nil, errs.New(errs.BadNegotiation, "Feed called after negotiation completed")
	}
	c.lines.feed(data)

	for {
		line, ok, err := c.lines.next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return toWrite, nil, nil
		}

		switch c.phase {
		case clientAwaitHeader:
			if line != HeaderProtocol {
				return nil, nil, errs.New(errs.BadNegotiation, "expected header %q, got %q", HeaderProtocol, line)
			}
			c.phase = clientAwaitResponse
		case clientAwaitResponse:
			want := c.proposals[c.next]
			switch line {
			case want:
				c.phase = clientDone
				return toWrite, &Result{Protocol: want, Leftover: c.lines.leftover()}, nil
			case na:
				c.next++
				if c.next >= len(c.proposals) {
					c.phase = clientDone
					return toWrite, &Result{Unsupported: true}, nil
				}
				toWrite = append(toWrite, EncodeLine(c.proposals[c.next])...)
			default:
				return nil, nil, errs.New(errs.BadNegotiation, "unexpected response line %q", line)
			}
		}
	}
}
