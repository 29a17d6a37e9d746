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

package framing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebook/p2pcore/errs"
	"github.com/facebook/p2pcore/noise"
	"github.com/facebook/p2pcore/rng"
)

func establishedPair(t *testing.T) (out, in *noise.Cipher) {
	t.Helper()
	initiator, err := noise.Initiate(rng.New(1), nil, nil)
	require.NoError(t, err)
	responder, err := noise.Respond(rng.New(2), nil, nil)
	require.NoError(t, err)

	m1, err := initiator.WriteMessage(nil)
	require.NoError(t, err)
	_, err = responder.ReadMessage(m1)
	require.NoError(t, err)
	m2, err := responder.WriteMessage(nil)
	require.NoError(t, err)
	_, err = initiator.ReadMessage(m2)
	require.NoError(t, err)
	m3, err := initiator.WriteMessage(nil)
	require.NoError(t, err)
	_, err = responder.ReadMessage(m3)
	require.NoError(t, err)

	out, _, _, err = initiator.Finish()
	require.NoError(t, err)
	_, in, _, err = responder.Finish()
	require.NoError(t, err)
	return out, in
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	out, in := establishedPair(t)

	record, err := EncodeRecord(out, []byte("hello, gossip"))
	require.NoError(t, err)

	d := NewDecoder(1 << 20)
	require.NoError(t, d.Feed(record))

	ct, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)

	pt, err := in.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, []byte("hello, gossip"), pt)
}

func TestDecoderSplitAcrossFeeds(t *testing.T) {
	out, _ := establishedPair(t)
	record, err := EncodeRecord(out, []byte("split me"))
	require.NoError(t, err)

	d := NewDecoder(1 << 20)
	mid := len(record) / 2
	require.NoError(t, d.Feed(record[:mid]))

	_, ok, err := d.Next()
	require.NoError(t, err)
	require.False(t, ok, "should not yield a record until fully buffered")

	require.NoError(t, d.Feed(record[mid:]))
	ct, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, ct, len(record)-2)
}

func TestDecoderBufferOverflow(t *testing.T) {
	d := NewDecoder(4)
	err := d.Feed([]byte("12345"))
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.BufferOverflow))
}

func TestDecoderTwoRecordsInOneFeed(t *testing.T) {
	out, in := establishedPair(t)
	r1, err := EncodeRecord(out, []byte("one"))
	require.NoError(t, err)
	r2, err := EncodeRecord(out, []byte("two"))
	require.NoError(t, err)

	d := NewDecoder(1 << 20)
	require.NoError(t, d.Feed(append(append([]byte{}, r1...), r2...)))

	ct1, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	pt1, err := in.Decrypt(ct1)
	require.NoError(t, err)
	require.Equal(t, []byte("one"), pt1)

	ct2, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	pt2, err := in.Decrypt(ct2)
	require.NoError(t, err)
	require.Equal(t, []byte("two"), pt2)
}
