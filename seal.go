// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package gridstore

import (
	"encoding/binary"

	"blainsmith.com/go/seahash"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// flagZstd marks a sealed value's payload as zstd-compressed.
const flagZstd byte = 1 << 0

// zstdMinSize is the smallest raw payload the builder bothers
// compressing; below it the framing overhead isn't worth the CPU.
const zstdMinSize = 256

// sealValue wraps a raw PhraseRecord (or ~BOUNDS) payload with the
// on-disk integrity/compression framing: a flags byte, the seahash
// checksum of the (possibly compressed) payload, and the payload
// itself. Corruption is detected at read time by recomputing the
// checksum before any decompression or decode is attempted.
func sealValue(payload []byte, compress bool) ([]byte, error) {
	flags := byte(0)
	body := payload
	if compress && len(payload) >= zstdMinSize {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, errors.Wrap(err, "gridstore: new zstd writer")
		}
		compressed := enc.EncodeAll(payload, nil)
		enc.Close()
		if len(compressed) < len(payload) {
			body = compressed
			flags |= flagZstd
		}
	}

	h := seahash.New()
	h.Write(body)
	sum := h.Sum64()

	out := make([]byte, 0, 1+8+len(body))
	out = append(out, flags)
	var sumBuf [8]byte
	binary.LittleEndian.PutUint64(sumBuf[:], sum)
	out = append(out, sumBuf[:]...)
	out = append(out, body...)
	return out, nil
}

// unsealValue validates and unwraps a blob written by sealValue,
// returning the original uncompressed payload.
func unsealValue(blob []byte) ([]byte, error) {
	if len(blob) < 9 {
		return nil, errors.Wrap(ErrCorruptRecord, "gridstore: sealed value too short")
	}
	flags := blob[0]
	wantSum := binary.LittleEndian.Uint64(blob[1:9])
	body := blob[9:]

	h := seahash.New()
	h.Write(body)
	if h.Sum64() != wantSum {
		return nil, errors.Wrap(ErrCorruptRecord, "gridstore: checksum mismatch")
	}

	if flags&flagZstd == 0 {
		return body, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "gridstore: new zstd reader")
	}
	defer dec.Close()
	payload, err := dec.DecodeAll(body, nil)
	if err != nil {
		return nil, errors.Wrap(ErrCorruptRecord, "gridstore: zstd decode failed: "+err.Error())
	}
	return payload, nil
}
