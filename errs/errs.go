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

// Package errs defines the core's closed error taxonomy. Every fallible
// core operation returns one of these kinds rather than an ad hoc error
// string, so a driver can switch on Kind() to decide whether to close a
// connection, drop a message, or surface a caller bug.
package errs

import "fmt"

// Kind classifies an Error per the four buckets the core distinguishes:
// caller bugs, peer misbehavior, self-inflicted capacity limits, and
// timeouts.
type Kind int

// Error kinds. Input errors are caller bugs and never change state.
// Protocol errors are peer misbehavior and close exactly one connection.
// Capacity errors are self-inflicted. Timeouts close the connection.
const (
	UnknownConnection Kind = iota
	BadAddr
	BadKey
	BadBase58
	NotSubscribed
	NoiseAuthFail
	NoiseOutOfTurn
	BadNegotiation
	MalformedFrame
	NonceOverflow
	BufferOverflow
	McacheFull
	PingTimeout
	HandshakeTimeout
	InsufficientPeers
)

var names = map[Kind]string{
	UnknownConnection: "UnknownConnection",
	BadAddr:           "BadAddr",
	BadKey:            "BadKey",
	BadBase58:         "BadBase58",
	NotSubscribed:     "NotSubscribed",
	NoiseAuthFail:     "NoiseAuthFail",
	NoiseOutOfTurn:    "NoiseOutOfTurn",
	BadNegotiation:    "BadNegotiation",
	MalformedFrame:    "MalformedFrame",
	NonceOverflow:     "NonceOverflow",
	BufferOverflow:    "BufferOverflow",
	McacheFull:        "McacheFull",
	PingTimeout:       "PingTimeout",
	HandshakeTimeout:  "HandshakeTimeout",
	InsufficientPeers: "InsufficientPeers",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return "Unknown"
}

// Error is the concrete error type returned across the core. Detail carries
// a human-readable elaboration (e.g. the offending address string); it is
// never parsed by callers, only the Kind is.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// New constructs an Error of the given kind with a formatted detail string.
func New(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Detail: fmt.Sprintf(format, args...)}
}

// Is reports whether err is an *Error of kind k, so callers can write
// errs.Is(err, errs.BadAddr) instead of type-asserting by hand.
func Is(err error, k Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == k
}
