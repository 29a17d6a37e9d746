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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebook/p2pcore/errs"
	"github.com/facebook/p2pcore/identity"
	"github.com/facebook/p2pcore/rng"
)

func TestIdentityPayloadRoundTrip(t *testing.T) {
	kp, err := identity.Generate(rng.New(1))
	require.NoError(t, err)
	staticPub := []byte("0123456789abcdef0123456789abcdef")[:32]

	payload := buildIdentityPayload(kp, staticPub)
	require.Len(t, payload, identityPayloadSize)

	peer, err := verifyIdentityPayload(payload, staticPub)
	require.NoError(t, err)
	require.True(t, peer.Equal(kp.Id))
}

func TestIdentityPayloadRejectsWrongStaticKey(t *testing.T) {
	kp, err := identity.Generate(rng.New(2))
	require.NoError(t, err)
	staticPub := []byte("0123456789abcdef0123456789abcdef")[:32]
	other := []byte("ffffffffffffffffffffffffffffffff")[:32]

	payload := buildIdentityPayload(kp, staticPub)
	_, err = verifyIdentityPayload(payload, other)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.NoiseAuthFail))
}

func TestIdentityPayloadRejectsMalformedLength(t *testing.T) {
	_, err := verifyIdentityPayload([]byte("too short"), []byte("key"))
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.NoiseAuthFail))
}
