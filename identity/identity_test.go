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

package identity

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebook/p2pcore/errs"
	"github.com/facebook/p2pcore/rng"
)

func TestGenerateDeterministic(t *testing.T) {
	k1, err := Generate(rng.New(1))
	require.NoError(t, err)
	k2, err := Generate(rng.New(1))
	require.NoError(t, err)
	require.Equal(t, k1.Id, k2.Id, "same seed must yield the same identity")

	k3, err := Generate(rng.New(2))
	require.NoError(t, err)
	require.NotEqual(t, k1.Id, k3.Id)
}

func TestPeerIdAllZerosPoint(t *testing.T) {
	// Scenario seed 1: all-zero 32-byte value is a structurally valid
	// Ed25519 public-key encoding (it's a valid, if low-order, point).
	var zero [Size]byte
	id, err := FromPublicKey(zero[:])
	require.NoError(t, err)

	encoded := id.EncodeBase58()
	require.NotEmpty(t, encoded)

	decoded, err := DecodeBase58(encoded)
	require.NoError(t, err)
	require.Equal(t, id, decoded)
}

func TestFromPublicKeyBadLength(t *testing.T) {
	_, err := FromPublicKey([]byte{1, 2, 3})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.BadKey))
}

func TestDecodeBase58RoundTrip(t *testing.T) {
	k, err := Generate(rng.New(42))
	require.NoError(t, err)

	// Round-trip law: decode(encode(id)) == id.
	decoded, err := DecodeBase58(k.Id.EncodeBase58())
	require.NoError(t, err)
	require.True(t, k.Id.Equal(decoded))
}

func TestDecodeBase58Invalid(t *testing.T) {
	_, err := DecodeBase58("not-valid-base58-!!!")
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.BadBase58))
}

func TestSignVerify(t *testing.T) {
	k, err := Generate(rng.New(7))
	require.NoError(t, err)

	msg := []byte("hello")
	sig := k.Sign(msg)
	require.True(t, Verify(k.Public, msg, sig))
	require.False(t, Verify(k.Public, []byte("tampered"), sig))
}
