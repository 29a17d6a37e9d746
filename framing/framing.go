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

// Package framing implements the length-prefixed AEAD record channel that
// sits on top of an established noise.Session:
// u16 big-endian length || ciphertext-with-tag, max 65535 bytes including
// the 16-byte tag.
package framing

import (
	"encoding/binary"

	"github.com/facebook/p2pcore/errs"
	"github.com/facebook/p2pcore/noise"
)

// MaxRecord is the largest ciphertext (tag included) a single record may
// carry, per the u16 length prefix.
const MaxRecord = 65535

const lengthPrefixSize = 2

// EncodeRecord encrypts plaintext with out and prefixes the result with its
// u16-be length. Returns BufferOverflow if the resulting ciphertext would
// not fit in the u16 length prefix.
func EncodeRecord(out *noise.Cipher, plaintext []byte) ([]byte, error) {
	ciphertext, err := out.Encrypt(plaintext)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) > MaxRecord {
		return nil, errs.New(errs.BufferOverflow, "record of %d bytes exceeds max %d", len(ciphertext), MaxRecord)
	}
	buf := make([]byte, lengthPrefixSize+len(ciphertext))
	binary.BigEndian.PutUint16(buf, uint16(len(ciphertext)))
	copy(buf[lengthPrefixSize:], ciphertext)
	return buf, nil
}

// EncodeRaw frames payload with its u16-be length prefix but no encryption,
// for the raw noise handshake messages exchanged before a Cipher exists.
func EncodeRaw(payload []byte) ([]byte, error) {
	if len(payload) > MaxRecord {
		return nil, errs.New(errs.BufferOverflow, "record of %d bytes exceeds max %d", len(payload), MaxRecord)
	}
	buf := make([]byte, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint16(buf, uint16(len(payload)))
	copy(buf[lengthPrefixSize:], payload)
	return buf, nil
}

// Decoder reassembles framed records out of a byte stream that may arrive
// split across arbitrarily many on_data_received calls. It owns no cipher:
// callers decrypt each record it yields with the connection's inbound
// Cipher, keeping this package usable for both the AEAD and not-yet-secured
// parts of the pipeline.
type Decoder struct {
	buf []byte
	cap int
}

// NewDecoder constructs a Decoder with the given inbound buffer cap; a
// per-connection inbound buffer is capped (default 1 MiB).
func NewDecoder(bufferCap int) *Decoder {
	return &Decoder{cap: bufferCap}
}

// Feed appends newly received bytes. Returns BufferOverflow if the
// accumulated buffer would exceed the configured cap.
func (d *Decoder) Feed(b []byte) error {
	if len(d.buf)+len(b) > d.cap {
		return errs.New(errs.BufferOverflow, "inbound buffer would exceed %d bytes", d.cap)
	}
	d.buf = append(d.buf, b...)
	return nil
}

// Next extracts one complete record's ciphertext (without the length
// prefix) if enough bytes have been buffered, consuming it from the
// internal buffer. ok is false when more bytes are needed.
func (d *Decoder) Next() (record []byte, ok bool, err error) {
	if len(d.buf) < lengthPrefixSize {
		return nil, false, nil
	}
	n := int(binary.BigEndian.Uint16(d.buf))
	if n > MaxRecord {
		return nil, false, errs.New(errs.MalformedFrame, "declared record length %d exceeds max %d", n, MaxRecord)
	}
	total := lengthPrefixSize + n
	if len(d.buf) < total {
		return nil, false, nil
	}
	record = make([]byte, n)
	copy(record, d.buf[lengthPrefixSize:total])
	d.buf = d.buf[total:]
	return record, true, nil
}

// Buffered reports how many undecoded bytes remain queued.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}
