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

package cmd

import (
	"crypto/rand"
	"encoding/binary"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/facebook/p2pcore/config"
	"github.com/facebook/p2pcore/identity"
	"github.com/facebook/p2pcore/rng"
)

// cryptoSeed draws a 64-bit seed from the OS CSPRNG. The core packages only
// read the deterministic rng.Source, so traces replay under a fixed seed;
// this driver seeds that Source from real entropy instead of a fixed value,
// both for identity generation (so a fresh key does not collide with
// another node's) and for the Source each subcommand hands to swarm.New.
func cryptoSeed() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// loadOrCreateIdentity reads path's persisted keypair, generating and
// persisting a fresh one if the file does not exist yet.
func loadOrCreateIdentity(path string) (*identity.Keypair, error) {
	if _, err := os.Stat(path); err == nil {
		return config.ReadIdentityFile(path)
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	seed, err := cryptoSeed()
	if err != nil {
		return nil, err
	}
	kp, err := identity.Generate(rng.New(seed))
	if err != nil {
		return nil, err
	}
	if err := config.WriteIdentityFile(path, kp); err != nil {
		return nil, err
	}
	log.Infof("generated fresh identity %s at %s", kp.Id.EncodeBase58(), path)
	return kp, nil
}

// loadConfig applies configFlag over the defaults, or returns the defaults
// unmodified if configFlag is empty.
func loadConfig(configFlag string) (config.Config, error) {
	if configFlag == "" {
		return config.Default(), nil
	}
	return config.ReadFile(configFlag)
}
