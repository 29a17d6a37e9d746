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

package swarm

import (
	"crypto/ed25519"

	"github.com/facebook/p2pcore/errs"
	"github.com/facebook/p2pcore/identity"
)

// identityPayloadSize is the fixed wire size of the Noise handshake payload
// that binds an Ed25519 identity to this session's noise static key: the
// public key followed by a signature over the static key, both fixed-length
// so no length framing is needed.
const identityPayloadSize = ed25519.PublicKeySize + ed25519.SignatureSize

// buildIdentityPayload signs staticPub (this session's own noise static
// public key) with the local identity and concatenates the public key in
// front of it, so the peer can recover both the claimed identity and the
// proof in one fixed-size blob.
func buildIdentityPayload(kp *identity.Keypair, staticPub []byte) []byte {
	sig := kp.Sign(staticPub)
	payload := make([]byte, 0, identityPayloadSize)
	payload = append(payload, []byte(kp.Public)...)
	payload = append(payload, sig...)
	return payload
}

// verifyIdentityPayload checks that payload is a valid identity binding over
// peerStatic (the peer's noise static public key, already known from the
// handshake message payload arrived on) and returns the peer id it proves.
func verifyIdentityPayload(payload, peerStatic []byte) (identity.PeerId, error) {
	if len(payload) != identityPayloadSize {
		return identity.PeerId{}, errs.New(errs.NoiseAuthFail, "identity payload is %d bytes, want %d", len(payload), identityPayloadSize)
	}
	if len(peerStatic) == 0 {
		return identity.PeerId{}, errs.New(errs.NoiseAuthFail, "identity payload received before peer static key")
	}
	pub := payload[:ed25519.PublicKeySize]
	sig := payload[ed25519.PublicKeySize:]
	if !identity.Verify(pub, peerStatic, sig) {
		return identity.PeerId{}, errs.New(errs.NoiseAuthFail, "identity payload signature does not verify against peer static key")
	}
	return identity.FromPublicKey(pub)
}
