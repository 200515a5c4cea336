// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package format

import "sort"

// Posting is one entry to be written into a PhraseRecord. Morton is the
// caller-computed Z-order code for the entry's tile coordinate (format
// itself has no notion of x/y, only the opaque ordering code, so it has
// no dependency on package spatial).
type Posting struct {
	RelevQuantum uint8
	Score        uint8
	Morton       uint32
	IDComponent  uint32
}

// EncodeIDComponent packs an id and its source_phrase_hash into one
// fixed-vec element, the inverse of SplitIDComponent.
func EncodeIDComponent(id uint32, sourcePhraseHash uint8) uint32 {
	return id<<8 | uint32(sourcePhraseHash)
}

type bucketKey struct {
	relev uint8
	score uint8
}

// EncodePhraseRecord builds a PhraseRecord blob from postings. Buckets are
// written grouped by (relev desc, score desc), and within each bucket
// coords are written grouped by descending Morton code, and each coord's
// id components are written in descending order; the resulting
// on-disk order already satisfies GridEntry's natural output ordering, so
// a plain (non-matching) decode never needs to re-sort (see DecodeValue
// in decode.go).
func EncodePhraseRecord(postings []Posting) []byte {
	buckets := map[bucketKey]map[uint32][]uint32{}
	for _, p := range postings {
		bk := bucketKey{p.RelevQuantum, p.Score}
		coords := buckets[bk]
		if coords == nil {
			coords = map[uint32][]uint32{}
			buckets[bk] = coords
		}
		coords[p.Morton] = append(coords[p.Morton], p.IDComponent)
	}

	bucketKeys := make([]bucketKey, 0, len(buckets))
	for bk := range buckets {
		bucketKeys = append(bucketKeys, bk)
	}
	sort.Slice(bucketKeys, func(i, j int) bool {
		a, b := bucketKeys[i], bucketKeys[j]
		if a.relev != b.relev {
			return a.relev > b.relev
		}
		return a.score > b.score
	})

	var out byteBuffer
	out.PutUint32(uint32(len(bucketKeys)))
	for _, bk := range bucketKeys {
		bucketBytes := encodeBucket(bk.relev, bk.score, buckets[bk])
		out.PutUint32(uint32(len(bucketBytes)))
		out.PutBytes(bucketBytes)
	}
	return out.Bytes()
}

func encodeBucket(relevQuantum, score uint8, coords map[uint32][]uint32) []byte {
	type entry struct {
		morton uint32
		ids    []uint32
	}
	entries := make([]entry, 0, len(coords))
	for morton, ids := range coords {
		entries = append(entries, entry{morton, ids})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].morton > entries[j].morton
	})

	var descriptors byteBuffer
	var idsBlob byteBuffer
	for _, e := range entries {
		ids := e.ids
		sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
		descriptors.PutUint32(e.morton)
		descriptors.PutUint32(uint32(5 + len(entries)*coordStride + idsBlob.Len()))
		descriptors.PutUint32(uint32(len(e.ids) * 4))
		for _, id := range e.ids {
			idsBlob.PutUint32(id)
		}
	}

	var bucket byteBuffer
	bucket.PutByte(EncodeRelevScore(relevQuantum, score))
	bucket.PutUint32(uint32(len(entries)))
	bucket.PutBytes(descriptors.Bytes())
	bucket.PutBytes(idsBlob.Bytes())
	return bucket.Bytes()
}
