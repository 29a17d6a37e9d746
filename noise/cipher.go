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

package noise

import (
	flynn "github.com/flynn/noise"

	"github.com/facebook/p2pcore/errs"
)

// Cipher wraps one direction of a post-handshake flynn/noise CipherState,
// adding the explicit nonce bookkeeping the handshake requires ("nonces
// emitted by a Noise cipher are strictly monotonic") and the NonceOverflow
// closure that is practically unreachable but still modeled.
type Cipher struct {
	cs    *flynn.CipherState
	nonce uint64
}

func newCipher(cs *flynn.CipherState) *Cipher {
	return &Cipher{cs: cs}
}

// Encrypt authenticates and encrypts plaintext, returning the ciphertext
// with its 16-byte AEAD tag appended. Fails NonceOverflow once 2^64-1
// records have been sent on this cipher.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	if c.nonce == ^uint64(0) {
		return nil, errs.New(errs.NonceOverflow, "cipher nonce exhausted")
	}
	out := c.cs.Encrypt(nil, nil, plaintext)
	c.nonce++
	return out, nil
}

// Decrypt authenticates and decrypts ciphertext (with its trailing AEAD
// tag). A tag mismatch surfaces NoiseAuthFail; the caller (the Connection
// owning this cipher) must treat that as fatal to the connection per
// the underlying cipher state.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if c.nonce == ^uint64(0) {
		return nil, errs.New(errs.NonceOverflow, "cipher nonce exhausted")
	}
	out, err := c.cs.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return nil, errs.New(errs.NoiseAuthFail, "AEAD tag mismatch: %v", err)
	}
	c.nonce++
	return out, nil
}

// Nonce returns the number of records processed so far on this cipher,
// for tests asserting monotonicity.
func (c *Cipher) Nonce() uint64 {
	return c.nonce
}
