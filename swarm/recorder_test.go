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
	"go.uber.org/mock/gomock"

	"github.com/facebook/p2pcore/config"
	"github.com/facebook/p2pcore/identity"
	"github.com/facebook/p2pcore/rng"
)

func TestRecorderSeesConnectionLifecycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	rec := NewMockRecorder(ctrl)

	// PhaseEntered and QueueDepth fire on every transition and enqueue, not
	// just the ones this test cares about; stub them loosely so the ordered
	// assertions below stay focused on connection open/close.
	rec.EXPECT().PhaseEntered(gomock.Any()).AnyTimes()
	rec.EXPECT().QueueDepth(gomock.Any(), gomock.Any()).AnyTimes()

	kp, err := identity.Generate(rng.New(1))
	require.NoError(t, err)
	s := New(config.Default(), kp, rng.New(1), rec)

	gomock.InOrder(
		rec.EXPECT().ConnectionOpened("Inbound"),
		rec.EXPECT().ConnectionClosed("Inbound"),
	)

	s.OnConnectionOpened(1, "/ip4/127.0.0.1/tcp/4001", Inbound)
	s.OnConnectionClosed(1, nil)
}
