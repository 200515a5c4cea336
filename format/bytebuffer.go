// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package format implements GridStore's on-disk record codec: a
// PhraseRecord is an ordered list of RelevScoreBuckets (a var-vec), each
// holding an ordered list of Coords (a uniform-vec), each naming a
// fixed-vec of packed ids. All three vector kinds are read lazily,
// borrowing directly from the caller's buffer with no intermediate copy.
package format

import "encoding/binary"

// byteBuffer is a growable little-endian write cursor, modeled on
// encoding/pam/fieldio's byteBuffer cursor idiom: automatic resizing on
// write, no resizing needed on read (callers of the decode side work
// directly off byte slices instead, since GridStore's records are read
// lazily rather than field-by-field).
type byteBuffer struct {
	n   int
	buf []byte
}

func (b *byteBuffer) ensure(n int) {
	if cap(b.buf) >= b.n+n {
		return
	}
	newCap := ((b.n+n)/16 + 1) * 16
	if newCap < cap(b.buf)*2 {
		newCap = cap(b.buf) * 2
	}
	newBuf := make([]byte, newCap)
	copy(newBuf, b.buf[:b.n])
	b.buf = newBuf
}

func (b *byteBuffer) PutByte(v uint8) {
	b.ensure(1)
	b.buf[b.n] = v
	b.n++
}

func (b *byteBuffer) PutUint32(v uint32) {
	b.ensure(4)
	binary.LittleEndian.PutUint32(b.buf[b.n:], v)
	b.n += 4
}

func (b *byteBuffer) PutBytes(data []byte) {
	b.ensure(len(data))
	copy(b.buf[b.n:], data)
	b.n += len(data)
}

// Overwrite patches bytes already written, at absolute offset off. Used to
// backfill a length prefix once the length of the item it covers is known.
func (b *byteBuffer) Overwrite(off int, data []byte) {
	copy(b.buf[off:], data)
}

func (b *byteBuffer) Bytes() []byte { return b.buf[:b.n] }
func (b *byteBuffer) Len() int      { return b.n }
