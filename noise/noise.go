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

// Package noise implements the Noise XX handshake state machine over the
// ChaChaPoly + SHA256 + X25519 cipher suite. The handshake cryptography
// itself is delegated to github.com/flynn/noise; this package is the thin,
// explicit state-enum layer on top of it, plus the turn/auth-failure
// taxonomy.
package noise

import (
	"bytes"

	flynn "github.com/flynn/noise"

	"github.com/facebook/p2pcore/errs"
	"github.com/facebook/p2pcore/rng"
)

var cipherSuite = flynn.NewCipherSuite(flynn.DH25519, flynn.CipherChaChaPoly, flynn.HashSHA256)

// State is the NoiseSession state enum. It is the union of both roles'
// message-by-message progress: an initiator visits
// {Init, EphSent, StaticRecv, Established}; a responder visits
// {Init, EphRecv, StaticSent, Established}.
type State int

// NoiseSession states.
const (
	Init State = iota
	EphSent
	EphRecv
	StaticSent
	StaticRecv
	Established
	Failed
)

func (s State) String() string {
	switch s {
	case Init:
		return "Init"
	case EphSent:
		return "EphSent"
	case EphRecv:
		return "EphRecv"
	case StaticSent:
		return "StaticSent"
	case StaticRecv:
		return "StaticRecv"
	case Established:
		return "Established"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// rngReader adapts an rng.Source to io.Reader for flynn/noise's ephemeral
// keypair generation, keeping all non-determinism funneled through the
// injected Source.
type rngReader struct{ src rng.Source }

func (r rngReader) Read(p []byte) (int, error) {
	copy(p, r.src.Bytes(len(p)))
	return len(p), nil
}

// Session is a Noise XX handshake state machine. The zero value is not
// usable; construct with Initiate or Respond.
type Session struct {
	initiator   bool
	state       State
	hs          *flynn.HandshakeState
	localStatic []byte

	cipherOut *flynn.CipherState
	cipherIn  *flynn.CipherState
	remote    []byte
}

// Initiate begins the handshake as the initiator side.
func Initiate(src rng.Source, prologue, staticKey []byte) (*Session, error) {
	return newSession(src, prologue, staticKey, true)
}

// Respond begins the handshake as the responder side.
func Respond(src rng.Source, prologue, staticKey []byte) (*Session, error) {
	return newSession(src, prologue, staticKey, false)
}

func newSession(src rng.Source, prologue, staticKey []byte, initiator bool) (*Session, error) {
	dhKey, err := cipherSuite.GenerateKeypair(rngReader{src: src})
	if err != nil {
		return nil, errs.New(errs.BadKey, "generating noise static keypair: %v", err)
	}
	if len(staticKey) > 0 {
		dhKey.Private = staticKey
		pub, err := derivePublic(staticKey)
		if err != nil {
			return nil, err
		}
		dhKey.Public = pub
	}

	hs, err := flynn.NewHandshakeState(flynn.Config{
		CipherSuite:   cipherSuite,
		Pattern:       flynn.HandshakeXX,
		Initiator:     initiator,
		Prologue:      prologue,
		StaticKeypair: dhKey,
		Random:        rngReader{src: src},
	})
	if err != nil {
		return nil, errs.New(errs.BadKey, "initializing noise handshake state: %v", err)
	}

	return &Session{initiator: initiator, state: Init, hs: hs, localStatic: dhKey.Public}, nil
}

// derivePublic recovers an X25519 public key from a private scalar so a
// caller-supplied static key can be reused deterministically across tests.
func derivePublic(priv []byte) ([]byte, error) {
	kp, err := flynn.DH25519.GenerateKeypair(bytes.NewReader(append([]byte{}, priv...)))
	if err != nil {
		return nil, errs.New(errs.BadKey, "deriving static public key: %v", err)
	}
	return kp.Public, nil
}

// State returns the current handshake state.
func (s *Session) State() State { return s.state }

// canWrite reports whether it is this role's turn to produce a message.
func (s *Session) canWrite() bool {
	if s.initiator {
		return s.state == Init || s.state == StaticRecv
	}
	return s.state == EphRecv
}

// canRead reports whether it is this role's turn to consume a message.
func (s *Session) canRead() bool {
	if s.initiator {
		return s.state == EphSent
	}
	return s.state == Init || s.state == StaticSent
}

// LocalStaticPublicKey returns this session's own noise static public key,
// available from construction regardless of handshake progress.
func (s *Session) LocalStaticPublicKey() []byte {
	return s.localStatic
}

// WritesStaticKey reports whether the next WriteMessage call transmits this
// session's own static public key as part of the XX pattern ("s" token) --
// the point at which a caller binding identity to that static key should
// attach its signed payload.
func (s *Session) WritesStaticKey() bool {
	if s.initiator {
		return s.state == StaticRecv
	}
	return s.state == EphRecv
}

// PeerStaticPublicKey returns the peer's noise static public key once the
// handshake message carrying it has been processed, or nil before then.
// Available before Established: XX delivers the responder's static key on
// message 2 and the initiator's on message 3.
func (s *Session) PeerStaticPublicKey() []byte {
	return s.hs.PeerStatic()
}

// WriteMessage produces the next outbound handshake message carrying an
// optional payload (empty for standard XX). Fails NoiseOutOfTurn if it is
// not this role's turn to write.
func (s *Session) WriteMessage(payload []byte) ([]byte, error) {
	if s.state == Failed {
		return nil, errs.New(errs.NoiseOutOfTurn, "session is in Failed state")
	}
	if !s.canWrite() {
		return nil, errs.New(errs.NoiseOutOfTurn, "write attempted in state %s", s.state)
	}

	out, cs1, cs2, err := s.hs.WriteMessage(nil, payload)
	if err != nil {
		s.state = Failed
		return nil, errs.New(errs.NoiseAuthFail, "writing handshake message: %v", err)
	}
	s.advanceAfterWrite()
	s.maybeFinish(cs1, cs2)
	return out, nil
}

// ReadMessage consumes an inbound handshake message and returns its
// payload. Fails NoiseOutOfTurn if it is not this role's turn to read, or
// NoiseAuthFail on an AEAD tag mismatch (which also transitions to Failed).
func (s *Session) ReadMessage(msg []byte) ([]byte, error) {
	if s.state == Failed {
		return nil, errs.New(errs.NoiseOutOfTurn, "session is in Failed state")
	}
	if !s.canRead() {
		return nil, errs.New(errs.NoiseOutOfTurn, "read attempted in state %s", s.state)
	}

	payload, cs1, cs2, err := s.hs.ReadMessage(nil, msg)
	if err != nil {
		s.state = Failed
		return nil, errs.New(errs.NoiseAuthFail, "reading handshake message: %v", err)
	}
	s.advanceAfterRead()
	s.maybeFinish(cs1, cs2)
	return payload, nil
}

func (s *Session) advanceAfterWrite() {
	if s.initiator {
		switch s.state {
		case Init:
			s.state = EphSent
		case StaticRecv:
			s.state = Established
		}
		return
	}
	if s.state == EphRecv {
		s.state = StaticSent
	}
}

func (s *Session) advanceAfterRead() {
	if s.initiator {
		if s.state == EphSent {
			s.state = StaticRecv
		}
		return
	}
	switch s.state {
	case Init:
		s.state = EphRecv
	case StaticSent:
		s.state = Established
	}
}

// maybeFinish captures the derived cipher pair flynn/noise returns on the
// pattern's final message. Per flynn/noise's convention, cs1 is always the
// initiator's send cipher for the direction being decided and cs2 the
// responder's; we sort them into directional out/in below.
func (s *Session) maybeFinish(cs1, cs2 *flynn.CipherState) {
	if cs1 == nil || cs2 == nil {
		return
	}
	if s.initiator {
		s.cipherOut, s.cipherIn = cs1, cs2
	} else {
		s.cipherOut, s.cipherIn = cs2, cs1
	}
	s.remote = s.hs.PeerStatic()
}

// Finish returns the two directional AEAD ciphers and the peer's static
// key. Valid only at Established.
func (s *Session) Finish() (out, in *Cipher, remoteStatic []byte, err error) {
	if s.state != Established {
		return nil, nil, nil, errs.New(errs.NoiseOutOfTurn, "finish called in state %s", s.state)
	}
	return newCipher(s.cipherOut), newCipher(s.cipherIn), s.remote, nil
}
