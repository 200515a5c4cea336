// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package format

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestEncodeIDComponentRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		id   uint32
		hash uint8
	}{
		{0, 0},
		{1, 255},
		{1<<24 - 1, 1},
	} {
		comp := EncodeIDComponent(tc.id, tc.hash)
		gotID, gotHash := SplitIDComponent(comp)
		expect.EQ(t, tc.id, gotID)
		expect.EQ(t, tc.hash, gotHash)
	}
}

// decodeAll flattens a PhraseRecord blob into one (relevQuantum, score,
// morton, idComponent) tuple per posting, in on-disk order, mirroring
// what DecodeValue does one layer up in package gridstore.
func decodeAll(t *testing.T, blob []byte) []Posting {
	t.Helper()
	rec, err := ReadPhraseRecord(blob)
	expect.NoError(t, err)

	var out []Posting
	bucketIter := rec.Buckets.Iter(blob)
	for {
		item, ok := bucketIter.Next()
		if !ok {
			break
		}
		bucket, err := DecodeBucket(item)
		expect.NoError(t, err)
		quantum := bucket.RelevScore >> 4
		score := bucket.RelevScore & 0x0f

		coordIter := bucket.Coords.Iter(item)
		for {
			window, ok := coordIter.Next()
			if !ok {
				break
			}
			coord, err := DecodeCoord(item, window)
			expect.NoError(t, err)
			idIter := coord.IDs.Iter(item)
			for {
				idComp, ok := idIter.Next()
				if !ok {
					break
				}
				out = append(out, Posting{
					RelevQuantum: quantum,
					Score:        score,
					Morton:       coord.Morton,
					IDComponent:  idComp,
				})
			}
		}
	}
	expect.NoError(t, bucketIter.Err())
	return out
}

func TestEncodePhraseRecordRoundTrip(t *testing.T) {
	postings := []Posting{
		{RelevQuantum: 10, Score: 7, Morton: 9, IDComponent: EncodeIDComponent(3, 1)},
		{RelevQuantum: 10, Score: 7, Morton: 9, IDComponent: EncodeIDComponent(1, 1)},
		{RelevQuantum: 10, Score: 7, Morton: 6, IDComponent: EncodeIDComponent(2, 1)},
		{RelevQuantum: 10, Score: 3, Morton: 1, IDComponent: EncodeIDComponent(4, 2)},
		{RelevQuantum: 5, Score: 7, Morton: 0, IDComponent: EncodeIDComponent(5, 3)},
	}
	blob := EncodePhraseRecord(postings)
	got := decodeAll(t, blob)

	// On-disk order: descending (relevQuantum, score), then descending
	// morton within a bucket; within a coord the writer orders id
	// components descending.
	wantMortonOrder := []uint32{9, 9, 6, 1, 0}
	expect.EQ(t, len(wantMortonOrder), len(got))
	for i, m := range wantMortonOrder {
		expect.EQ(t, m, got[i].Morton, "index %d", i)
	}
	expect.EQ(t, uint8(10), got[0].RelevQuantum)
	expect.EQ(t, uint8(7), got[0].Score)
	expect.EQ(t, uint8(5), got[len(got)-1].RelevQuantum)
}

func TestEncodePhraseRecordEmpty(t *testing.T) {
	blob := EncodePhraseRecord(nil)
	rec, err := ReadPhraseRecord(blob)
	expect.NoError(t, err)
	expect.EQ(t, uint32(0), rec.Buckets.Count)
}

func TestReadPhraseRecordCorruptTooShort(t *testing.T) {
	_, err := ReadPhraseRecord([]byte{1, 2, 3})
	expect.That(t, err != nil, "expected an error for a too-short blob")
}

func TestDecodeCoordRejectsOversizedIDs(t *testing.T) {
	// Hand-build a single coord descriptor whose ids range reaches past
	// the end of a too-small buffer.
	window := make([]byte, 12)
	// morton = 0
	window[4] = 0 // offset
	window[8] = 255
	window[9] = 255
	window[10] = 255
	window[11] = 255 // byte len ~4 billion, certainly past any real buffer
	_, err := DecodeCoord(window, window)
	expect.That(t, err != nil, "expected ErrCorruptRecord for an oversized ids range")
}
