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

// Package identity implements peer identity: an Ed25519 keypair and the
// PeerId derived from its public key.
package identity

import (
	"bytes"
	"crypto/ed25519"
	"io"

	"github.com/mr-tron/base58"

	"github.com/facebook/p2pcore/errs"
	"github.com/facebook/p2pcore/rng"
)

// Size is the byte length of a PeerId: the canonical Ed25519 public key
// encoding, unwrapped.
const Size = ed25519.PublicKeySize

// PeerId is an immutable 32-byte peer identifier. Equality is byte equality.
type PeerId [Size]byte

// Keypair is an Ed25519 identity keypair plus its derived PeerId.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
	Id      PeerId
}

// rngReader adapts an rng.Source to io.Reader so it can seed
// ed25519.GenerateKey, keeping all non-determinism funneled through the
// injected Source, so key generation is reproducible under a fixed seed.
type rngReader struct {
	src rng.Source
}

func (r rngReader) Read(p []byte) (int, error) {
	copy(p, r.src.Bytes(len(p)))
	return len(p), nil
}

// Generate produces a fresh Ed25519 keypair using entropy drawn from src.
func Generate(src rng.Source) (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rngReader{src: src})
	if err != nil {
		return nil, errs.New(errs.BadKey, "generating ed25519 key: %v", err)
	}
	return FromPrivateKey(priv)
}

// FromPrivateKey wraps an existing Ed25519 private key as a Keypair.
func FromPrivateKey(priv ed25519.PrivateKey) (*Keypair, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errs.New(errs.BadKey, "private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	pub := priv.Public().(ed25519.PublicKey)
	pid, err := FromPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return &Keypair{Public: pub, Private: priv, Id: pid}, nil
}

// FromPublicKey validates a 32-byte Ed25519 public key encoding and
// derives the PeerId. Fails with BadKey on a malformed length.
func FromPublicKey(pub []byte) (PeerId, error) {
	var id PeerId
	if len(pub) != Size {
		return id, errs.New(errs.BadKey, "public key must be %d bytes, got %d", Size, len(pub))
	}
	copy(id[:], pub)
	return id, nil
}

// Bytes returns the raw 32-byte id body.
func (p PeerId) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, p[:])
	return b
}

// Equal reports byte equality between two PeerIds.
func (p PeerId) Equal(other PeerId) bool {
	return bytes.Equal(p[:], other[:])
}

// EncodeBase58 renders the base58btc encoding of the PeerId's raw 32 bytes.
// The string carries no multihash or key-type prefix, so it is not the
// "12D3KooW..." form. Grounded on github.com/mr-tron/base58, the library the
// libp2p ecosystem itself depends on for the same purpose.
func (p PeerId) EncodeBase58() string {
	return base58.Encode(p[:])
}

// String implements fmt.Stringer as the base58 form.
func (p PeerId) String() string {
	return p.EncodeBase58()
}

// DecodeBase58 parses the textual form produced by EncodeBase58. Fails with
// BadBase58 on invalid alphabet characters or wrong decoded length.
func DecodeBase58(s string) (PeerId, error) {
	var id PeerId
	raw, err := base58.Decode(s)
	if err != nil {
		return id, errs.New(errs.BadBase58, "decoding %q: %v", s, err)
	}
	if len(raw) != Size {
		return id, errs.New(errs.BadBase58, "decoded PeerId must be %d bytes, got %d", Size, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// Verify checks a signature produced by the keypair's private key against
// the given public key.
func Verify(pub []byte, message, sig []byte) bool {
	if len(pub) != Size {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, sig)
}

// Sign signs message with the keypair's private key.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.Private, message)
}

var _ io.Reader = rngReader{}
