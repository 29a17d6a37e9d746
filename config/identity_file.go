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

package config

import (
	"crypto/ed25519"

	"github.com/go-ini/ini"
	"github.com/mr-tron/base58"

	"github.com/facebook/p2pcore/errs"
	"github.com/facebook/p2pcore/identity"
)

const identityKey = "private_key_base58"

// ReadIdentityFile loads a persisted keypair from an INI file of the form:
//
//	[identity]
//	private_key_base58 = ...
func ReadIdentityFile(path string) (*identity.Keypair, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	raw, err := base58.Decode(f.Section("identity").Key(identityKey).String())
	if err != nil {
		return nil, errs.New(errs.BadBase58, "decoding identity file: %v", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, errs.New(errs.BadKey, "identity file private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return identity.FromPrivateKey(ed25519.PrivateKey(raw))
}

// WriteIdentityFile persists a keypair's private key to path in the INI
// form ReadIdentityFile loads.
func WriteIdentityFile(path string, kp *identity.Keypair) error {
	f := ini.Empty()
	sec, err := f.NewSection("identity")
	if err != nil {
		return err
	}
	if _, err := sec.NewKey(identityKey, base58.Encode(kp.Private)); err != nil {
		return err
	}
	return f.SaveTo(path)
}
