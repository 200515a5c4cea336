// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package format

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrCorruptRecord is returned (never panicked) whenever a declared
// length would read past the end of the buffer it describes, or a
// relev_score byte names an impossible quantization bucket. A corrupt
// on-disk blob can never crash a reader; at worst it returns this error.
var ErrCorruptRecord = errors.New("gridstore/format: corrupt record")

const coordStride = 12 // morton u32 + idsOffset u32 + idsByteLen u32

// VarVecRef describes a variable-size vector: Count items, each preceded
// in the buffer by its own uint32 byte-length prefix. Used for the
// top-level list of RelevScoreBuckets in a PhraseRecord.
type VarVecRef struct {
	Offset uint32
	Count  uint32
}

// VarVecIter lazily walks a VarVecRef, borrowing from buf.
type VarVecIter struct {
	buf  []byte
	pos  uint32
	left uint32
	err  error
}

// Iter returns an iterator over v's items within buf.
func (v VarVecRef) Iter(buf []byte) *VarVecIter {
	return &VarVecIter{buf: buf, pos: v.Offset, left: v.Count}
}

// Err returns the first error encountered, if any.
func (it *VarVecIter) Err() error { return it.err }

// Next returns the raw bytes of the next item, or (nil, false) once the
// vector is exhausted or a corrupt length is found.
func (it *VarVecIter) Next() ([]byte, bool) {
	if it.err != nil || it.left == 0 {
		return nil, false
	}
	if uint64(it.pos)+4 > uint64(len(it.buf)) {
		it.err = ErrCorruptRecord
		return nil, false
	}
	n := binary.LittleEndian.Uint32(it.buf[it.pos:])
	pos := uint64(it.pos) + 4
	end := pos + uint64(n)
	if end > uint64(len(it.buf)) {
		it.err = ErrCorruptRecord
		return nil, false
	}
	item := it.buf[pos:end]
	it.pos = uint32(end)
	it.left--
	return item, true
}

// UniformVecRef describes a fixed-stride vector of Count items, each
// Stride bytes, with no per-item framing. Used for the list of Coords
// within one RelevScoreBucket; its fixed stride is what lets the bbox
// filter binary-search it directly (see spatial.seekMortonUpperBound).
type UniformVecRef struct {
	Offset uint32
	Count  uint32
	Stride uint32
}

// Validate reports ErrCorruptRecord if Count*Stride would read past buf.
func (u UniformVecRef) Validate(buf []byte) error {
	end := uint64(u.Offset) + uint64(u.Count)*uint64(u.Stride)
	if end > uint64(len(buf)) {
		return ErrCorruptRecord
	}
	return nil
}

// At returns the raw Stride-byte window for item i, without bounds
// re-checking every call; callers that iterate index-by-index (the bbox
// binary search) are expected to have validated once up front.
func (u UniformVecRef) At(buf []byte, i uint32) []byte {
	off := u.Offset + i*u.Stride
	return buf[off : off+u.Stride]
}

// UniformVecIter sequentially walks a UniformVecRef.
type UniformVecIter struct {
	buf    []byte
	pos    uint32
	left   uint32
	stride uint32
}

// Iter returns a sequential iterator over u's items within buf. Callers
// that want random access (e.g. binary search) should use At directly
// instead.
func (u UniformVecRef) Iter(buf []byte) *UniformVecIter {
	return &UniformVecIter{buf: buf, pos: u.Offset, left: u.Count, stride: u.Stride}
}

// Next returns the raw Stride-byte window of the next item, or
// (nil, false) at the end.
func (it *UniformVecIter) Next() ([]byte, bool) {
	if it.left == 0 {
		return nil, false
	}
	item := it.buf[it.pos : it.pos+it.stride]
	it.pos += it.stride
	it.left--
	return item, true
}

// FixedVecRef describes a packed array of uint32 elements addressed as a
// byte range rather than an element count. Per spec.md's documented open
// question, a ByteLen that is not a multiple of 4 has its trailing
// remainder silently dropped rather than treated as corruption — this
// mirrors the original's read_fixed_vec_raw, which divides by its stride
// and ignores any remainder.
type FixedVecRef struct {
	Offset  uint32
	ByteLen uint32
}

// Validate reports ErrCorruptRecord if the declared byte range would read
// past buf. It does not object to ByteLen%4 != 0; that is handled by
// silent truncation in Iter, not treated as corruption.
func (f FixedVecRef) Validate(buf []byte) error {
	end := uint64(f.Offset) + uint64(f.ByteLen)
	if end > uint64(len(buf)) {
		return ErrCorruptRecord
	}
	return nil
}

// FixedVecIter walks the uint32 elements of a FixedVecRef.
type FixedVecIter struct {
	buf  []byte
	pos  uint32
	left uint32
}

// Iter returns an iterator over f's uint32 elements within buf.
func (f FixedVecRef) Iter(buf []byte) *FixedVecIter {
	return &FixedVecIter{buf: buf, pos: f.Offset, left: f.ByteLen / 4}
}

// Next returns the next uint32, or (0, false) at the end.
func (it *FixedVecIter) Next() (uint32, bool) {
	if it.left == 0 {
		return 0, false
	}
	v := binary.LittleEndian.Uint32(it.buf[it.pos:])
	it.pos += 4
	it.left--
	return v, true
}

// PhraseRecordRef is the lazily-parsed top level of one phrase's value
// blob: an ordered var-vec of bucket items.
type PhraseRecordRef struct {
	Buckets VarVecRef
}

// ReadPhraseRecord parses the 4-byte bucket-count header of buf.
func ReadPhraseRecord(buf []byte) (PhraseRecordRef, error) {
	if len(buf) < 4 {
		return PhraseRecordRef{}, ErrCorruptRecord
	}
	count := binary.LittleEndian.Uint32(buf)
	return PhraseRecordRef{Buckets: VarVecRef{Offset: 4, Count: count}}, nil
}

// BucketRef is one (relev, score) bucket's parsed header: its packed
// relev_score byte and the uniform-vec of Coords it holds. Coord offsets
// within item (the bucket's own byte slice, as returned by Buckets.Iter)
// are relative to item's start, not to the enclosing PhraseRecord buffer.
type BucketRef struct {
	RelevScore byte
	Coords     UniformVecRef
}

// DecodeBucket parses one var-vec item (as yielded by
// PhraseRecordRef.Buckets.Iter) into a BucketRef.
func DecodeBucket(item []byte) (BucketRef, error) {
	if len(item) < 5 {
		return BucketRef{}, ErrCorruptRecord
	}
	relevScore := item[0]
	count := binary.LittleEndian.Uint32(item[1:5])
	coords := UniformVecRef{Offset: 5, Count: count, Stride: coordStride}
	if err := coords.Validate(item); err != nil {
		return BucketRef{}, err
	}
	return BucketRef{RelevScore: relevScore, Coords: coords}, nil
}

// CoordRef is one coordinate's parsed descriptor: its morton code and the
// fixed-vec of ids posted at it.
type CoordRef struct {
	Morton uint32
	IDs    FixedVecRef
}

// DecodeCoord parses one uniform-vec item (a coordStride-byte window, as
// yielded by BucketRef.Coords.Iter or .At) into a CoordRef.
// buf is the enclosing bucket item that window's ids offset/length are
// relative to; it is validated here so a corrupt descriptor is reported
// as ErrCorruptRecord instead of panicking the first time its ids are
// iterated.
func DecodeCoord(buf, window []byte) (CoordRef, error) {
	if len(window) < coordStride {
		return CoordRef{}, ErrCorruptRecord
	}
	morton := binary.LittleEndian.Uint32(window[0:4])
	ids := FixedVecRef{
		Offset:  binary.LittleEndian.Uint32(window[4:8]),
		ByteLen: binary.LittleEndian.Uint32(window[8:12]),
	}
	if err := ids.Validate(buf); err != nil {
		return CoordRef{}, err
	}
	return CoordRef{Morton: morton, IDs: ids}, nil
}

// SplitIDComponent splits one fixed-vec element into its 24-bit id and
// 8-bit source_phrase_hash, matching the packed layout the writer uses.
func SplitIDComponent(idComp uint32) (id uint32, sourcePhraseHash uint8) {
	return idComp >> 8, uint8(idComp)
}
