// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package gridstore

import "encoding/binary"

// On-disk key layout: [marker:1][phrase_id:4, big-endian][lang_set: up to
// 16 bytes, big-endian, with trailing zero bytes stripped]. Fixing the
// marker and phrase_id at a constant offset and constant width keeps keys
// for one phrase_id contiguous under lexicographic byte ordering,
// regardless of how many trailing lang_set bytes follow — the variable
// suffix never reaches far enough to collide with the next phrase_id's
// fixed prefix.

// encodeKey appends the encoded key for (marker, key) to buf and returns
// the result.
func encodeKey(buf []byte, marker TypeMarker, key GridKey) []byte {
	buf = append(buf, byte(marker))
	var phraseBuf [4]byte
	binary.BigEndian.PutUint32(phraseBuf[:], key.PhraseID)
	buf = append(buf, phraseBuf[:]...)

	var langBuf [16]byte
	binary.BigEndian.PutUint64(langBuf[0:8], key.LangSet.Hi)
	binary.BigEndian.PutUint64(langBuf[8:16], key.LangSet.Lo)
	n := 16
	for n > 0 && langBuf[n-1] == 0 {
		n--
	}
	return append(buf, langBuf[:n]...)
}

// encodeStartKey appends the lower-bound scan key for (marker, phraseID) —
// the key with no lang_set suffix at all, which lexicographically precedes
// every key for that phrase_id regardless of its lang_set.
func encodeStartKey(buf []byte, marker TypeMarker, phraseID uint32) []byte {
	buf = append(buf, byte(marker))
	var phraseBuf [4]byte
	binary.BigEndian.PutUint32(phraseBuf[:], phraseID)
	return append(buf, phraseBuf[:]...)
}

// decodeKey parses a raw on-disk key back into its marker and GridKey. A
// zero-length trailing lang_set segment decodes to LangSetAny, matching
// the "matches any language" shorthand described in spec.md §3.
func decodeKey(raw []byte) (TypeMarker, GridKey, bool) {
	if len(raw) < 5 {
		return 0, GridKey{}, false
	}
	marker := TypeMarker(raw[0])
	phraseID := binary.BigEndian.Uint32(raw[1:5])
	langRaw := raw[5:]
	if len(langRaw) == 0 {
		return marker, GridKey{PhraseID: phraseID, LangSet: LangSetAny}, true
	}
	var langBuf [16]byte
	copy(langBuf[:], langRaw) // langRaw is never longer than 16 bytes for keys we wrote
	return marker, GridKey{
		PhraseID: phraseID,
		LangSet: LangSet{
			Hi: binary.BigEndian.Uint64(langBuf[0:8]),
			Lo: binary.BigEndian.Uint64(langBuf[8:16]),
		},
	}, true
}

// keyPhraseID reads just the phrase_id out of a raw on-disk key, without
// decoding the (possibly absent) lang_set suffix. Used by scan loops that
// only need to test range membership.
func keyPhraseID(raw []byte) uint32 {
	return binary.BigEndian.Uint32(raw[1:5])
}

// matchesPhraseRange reports whether raw (a key observed while scanning)
// still has the expected marker and a phrase_id below end. The lower
// bound is not checked here; the scan's start key already provides it.
func matchesPhraseRange(raw []byte, marker TypeMarker, end uint32) bool {
	if len(raw) < 5 || TypeMarker(raw[0]) != marker {
		return false
	}
	return keyPhraseID(raw) < end
}

// matchesLanguage reports whether a record key's language set overlaps
// the query's. Per spec.md §4.D, a non-zero bitwise intersection, or
// either side being the on-disk "any language" sentinel, counts as a
// match; a logical zero on the query side (MatchKey.LangSet == {0,0}) is
// not treated as a wildcard, since it never goes through the
// zero-length-segment encoding — it is a caller-supplied value taken at
// face value.
func matchesLanguage(keyLangSet, queryLangSet LangSet) bool {
	return keyLangSet.Intersects(queryLangSet)
}
