// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package gridstore

import (
	"context"
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/terraindex/gridstore/kvstore"
)

// boundsKey is the reserved key under which the bin-boundary table is
// persisted (spec.md §4.E/§6). It is chosen to be lexicographically
// distinct from every TypeMarker-prefixed key: '~' (0x7e) sorts after
// TypePrefixBin (2) and TypeSinglePhrase (1) as a raw byte.
var boundsKey = []byte("~BOUNDS")

// binBoundaries is the immutable, in-memory membership set of phrase-id
// boundaries loaded once at Open. No ordered traversal of the set is
// ever required — only point membership tests — so a plain map is the
// right structure; no tree-shaped container from the pack earns a place
// here (see DESIGN.md).
type binBoundaries struct {
	set map[uint32]struct{}
}

func newBinBoundaries(ids []uint32) binBoundaries {
	set := make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return binBoundaries{set: set}
}

func (b binBoundaries) isBoundary(id uint32) bool {
	_, ok := b.set[id]
	return ok
}

// loadBinBoundaries reads and decodes the ~BOUNDS blob, if any. A
// missing key is not an error: it simply means the store has no
// precomputed prefix bins.
func loadBinBoundaries(ctx context.Context, store *kvstore.Store) (binBoundaries, error) {
	sealed, ok, err := store.Get(ctx, boundsKey)
	if err != nil {
		return binBoundaries{}, errors.Wrap(err, "gridstore: load bin boundaries")
	}
	if !ok {
		return binBoundaries{}, nil
	}
	blob, err := unsealValue(sealed)
	if err != nil {
		return binBoundaries{}, err
	}
	ids, err := decodeBoundsBlob(blob)
	if err != nil {
		return binBoundaries{}, err
	}
	return newBinBoundaries(ids), nil
}

// encodeBoundsBlob packs ids (sorted ascending by the caller) as a
// little-endian u32 array, the on-disk format of the ~BOUNDS value.
func encodeBoundsBlob(ids []uint32) []byte {
	buf := make([]byte, len(ids)*4)
	for i, id := range ids {
		binary.LittleEndian.PutUint32(buf[i*4:], id)
	}
	return buf
}

func decodeBoundsBlob(blob []byte) ([]uint32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Wrap(ErrCorruptRecord, "gridstore: ~BOUNDS length not a multiple of 4")
	}
	ids := make([]uint32, len(blob)/4)
	for i := range ids {
		ids[i] = binary.LittleEndian.Uint32(blob[i*4:])
	}
	return ids, nil
}

// binRange resolves the writer-side optimization described in spec.md
// §4.E: if both ends of [start, end) are registered boundaries, the
// reader may fetch a single pre-merged PrefixBin record at phrase_id ==
// start instead of scanning every SinglePhrase record in the range. An
// empty range (start >= end) never uses a bin.
func (b binBoundaries) binRange(start, end uint32) (marker TypeMarker, fetchStart, fetchEnd uint32, ok bool) {
	if start < end && b.isBoundary(start) && b.isBoundary(end) {
		return TypePrefixBin, start, start + 1, true
	}
	return TypeSinglePhrase, start, end, false
}
