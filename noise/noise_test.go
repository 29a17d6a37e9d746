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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebook/p2pcore/errs"
	"github.com/facebook/p2pcore/rng"
)

// runHandshake drives a full XX exchange between two independently seeded
// sessions and returns their established state, per scenario seed 2.
func runHandshake(t *testing.T, prologue []byte) (initiator, responder *Session) {
	t.Helper()
	initiator, err := Initiate(rng.New(10), prologue, nil)
	require.NoError(t, err)
	responder, err = Respond(rng.New(20), prologue, nil)
	require.NoError(t, err)

	// -> e
	m1, err := initiator.WriteMessage(nil)
	require.NoError(t, err)
	require.Equal(t, EphSent, initiator.State())
	_, err = responder.ReadMessage(m1)
	require.NoError(t, err)
	require.Equal(t, EphRecv, responder.State())

	// <- e, ee, s, es
	m2, err := responder.WriteMessage(nil)
	require.NoError(t, err)
	require.Equal(t, StaticSent, responder.State())
	_, err = initiator.ReadMessage(m2)
	require.NoError(t, err)
	require.Equal(t, StaticRecv, initiator.State())

	// -> s, se
	m3, err := initiator.WriteMessage(nil)
	require.NoError(t, err)
	require.Equal(t, Established, initiator.State())
	_, err = responder.ReadMessage(m3)
	require.NoError(t, err)
	require.Equal(t, Established, responder.State())

	return initiator, responder
}

func TestHandshakeEstablishesAgreeingCiphers(t *testing.T) {
	initiator, responder := runHandshake(t, []byte(""))

	iOut, iIn, iRemote, err := initiator.Finish()
	require.NoError(t, err)
	rOut, rIn, rRemote, err := responder.Finish()
	require.NoError(t, err)

	require.NotEmpty(t, iRemote)
	require.NotEmpty(t, rRemote)

	// Scenario seed 2: a post-handshake Send("hi") from the initiator
	// decrypts to 0x68 0x69 on the responder.
	ct, err := iOut.Encrypt([]byte("hi"))
	require.NoError(t, err)
	pt, err := rIn.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, []byte{0x68, 0x69}, pt)

	// And the reverse direction agrees too.
	ct2, err := rOut.Encrypt([]byte("yo"))
	require.NoError(t, err)
	pt2, err := iIn.Decrypt(ct2)
	require.NoError(t, err)
	require.Equal(t, []byte("yo"), pt2)
}

func TestNonceMonotonic(t *testing.T) {
	initiator, _ := runHandshake(t, nil)
	out, _, _, err := initiator.Finish()
	require.NoError(t, err)

	for i := uint64(0); i < 5; i++ {
		require.Equal(t, i, out.Nonce())
		_, err := out.Encrypt([]byte("x"))
		require.NoError(t, err)
	}
	require.Equal(t, uint64(5), out.Nonce())
}

func TestPayloadCarriesThroughWritesStaticKeyMessage(t *testing.T) {
	initiator, err := Initiate(rng.New(10), nil, nil)
	require.NoError(t, err)
	responder, err := Respond(rng.New(20), nil, nil)
	require.NoError(t, err)

	require.False(t, initiator.WritesStaticKey(), "initiator's first message (e only) carries no static key")
	require.False(t, responder.WritesStaticKey())

	m1, err := initiator.WriteMessage(nil)
	require.NoError(t, err)
	_, err = responder.ReadMessage(m1)
	require.NoError(t, err)
	require.True(t, responder.WritesStaticKey(), "responder's only pre-Established write carries its static key")

	m2, err := responder.WriteMessage([]byte("responder-identity"))
	require.NoError(t, err)
	payload, err := initiator.ReadMessage(m2)
	require.NoError(t, err)
	require.Equal(t, []byte("responder-identity"), payload)
	require.Equal(t, responder.LocalStaticPublicKey(), initiator.PeerStaticPublicKey())

	require.True(t, initiator.WritesStaticKey(), "initiator's final write carries its static key")
	m3, err := initiator.WriteMessage([]byte("initiator-identity"))
	require.NoError(t, err)
	payload, err = responder.ReadMessage(m3)
	require.NoError(t, err)
	require.Equal(t, []byte("initiator-identity"), payload)
	require.Equal(t, initiator.LocalStaticPublicKey(), responder.PeerStaticPublicKey())
}

func TestOutOfTurnRead(t *testing.T) {
	initiator, err := Initiate(rng.New(1), nil, nil)
	require.NoError(t, err)

	// Initiator may not read first; it's their turn to write.
	_, err = initiator.ReadMessage([]byte("garbage"))
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.NoiseOutOfTurn))
}

func TestAuthFailureTransitionsToFailed(t *testing.T) {
	// Mismatched prologues produce mismatched transcript hashes, so the
	// first AEAD-protected message (message 2's encrypted static key)
	// fails its tag check on read.
	initiator, err := Initiate(rng.New(10), []byte("ctx-a"), nil)
	require.NoError(t, err)
	responder, err := Respond(rng.New(20), []byte("ctx-b"), nil)
	require.NoError(t, err)

	m1, err := initiator.WriteMessage(nil)
	require.NoError(t, err)
	_, err = responder.ReadMessage(m1)
	require.NoError(t, err)

	m2, err := responder.WriteMessage(nil)
	require.NoError(t, err)
	_, err = initiator.ReadMessage(m2)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.NoiseAuthFail))
	require.Equal(t, Failed, initiator.State())

	// The session is now dead: further reads/writes are out-of-turn.
	_, err = initiator.WriteMessage(nil)
	require.Error(t, err)
}
