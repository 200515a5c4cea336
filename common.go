// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package gridstore implements the storage and retrieval core of a
// forward-geocoding index: a reader opens a key/value-backed store mapping
// phrase identifiers to spatially-indexed grid entries, and a builder
// populates one. Matching phrases against a user query, and combining
// matches from multiple indexes, are the job of callers layered on top of
// this package.
package gridstore

import (
	"fmt"

	"github.com/terraindex/gridstore/spatial"
)

// TypeMarker distinguishes the two key shapes GridStore writes: a single
// phrase's own entries, and a prefix's shared bin-boundary bucket.
type TypeMarker uint8

const (
	// TypeSinglePhrase marks a key addressing one phrase_id's entries.
	TypeSinglePhrase TypeMarker = 1
	// TypePrefixBin marks a key addressing a shared range of phrase_ids
	// that fall within the same bin boundary.
	TypePrefixBin TypeMarker = 2
)

// LangSet is a 128-bit set of language ids, represented as two 64-bit
// halves rather than a general bitset type so its wire encoding (a
// big-endian, trailing-zero-stripped byte string, see keycodec.go) is
// fully under this package's control.
type LangSet struct {
	Hi, Lo uint64
}

// LangSetAny matches every language. It is what a GridKey decoded from an
// empty on-disk trailing segment resolves to (see keycodec.go).
var LangSetAny = LangSet{Hi: ^uint64(0), Lo: ^uint64(0)}

// LangSetFromBit returns the LangSet with only bit i set.
func LangSetFromBit(i uint) LangSet {
	if i >= 64 {
		return LangSet{Hi: 1 << (i - 64)}
	}
	return LangSet{Lo: 1 << i}
}

// IsZero reports whether no language bit is set.
func (s LangSet) IsZero() bool { return s.Hi == 0 && s.Lo == 0 }

// Intersects reports whether s and other share any language bit.
func (s LangSet) Intersects(other LangSet) bool {
	return s.Hi&other.Hi != 0 || s.Lo&other.Lo != 0
}

// Union returns the bitwise union of s and other.
func (s LangSet) Union(other LangSet) LangSet {
	return LangSet{Hi: s.Hi | other.Hi, Lo: s.Lo | other.Lo}
}

func (s LangSet) String() string {
	return fmt.Sprintf("%016x%016x", s.Hi, s.Lo)
}

// GridKey identifies one phrase's record within a GridStore.
type GridKey struct {
	PhraseID uint32
	LangSet  LangSet
}

// GridEntry is one spatially-indexed posting for a phrase: a quantized
// relevance/score pair, a tile coordinate, a 24-bit opaque id, and the
// 8-bit hash of the source phrase the id was indexed under.
type GridEntry struct {
	// Relev is a quantized relevance in {0.0, 0.2, 0.4, 0.6, 0.8, 1.0}
	// (q = round(relev*5), packed into the high 4 bits of the on-disk
	// relev_score byte, per spec.md §3).
	Relev float64
	// Score is a quantized importance score in 0..=15 (4 bits, packed
	// alongside the relevance in the on-disk relev_score byte).
	Score            uint8
	X, Y             uint16
	ID               uint32 // 24 significant bits
	SourcePhraseHash uint8
}

// less orders GridEntry descending by (relev, score, morton(x,y), id) —
// the natural output order of a plain (non-matching) GridStore.Get, and
// the order the builder must lay buckets/coords out in so that the
// on-disk layout already satisfies it without a read-time sort.
func (e GridEntry) less(o GridEntry) bool {
	if e.Relev != o.Relev {
		return e.Relev > o.Relev
	}
	if e.Score != o.Score {
		return e.Score > o.Score
	}
	em, om := spatial.Morton(e.X, e.Y), spatial.Morton(o.X, o.Y)
	if em != om {
		return em > om
	}
	return e.ID > o.ID
}

// MatchEntry is a GridEntry enriched with the result of matching it
// against a MatchKey/MatchOpts: whether its language overlapped the
// query, its tile distance from the proximity point (if any), and its
// proximity-boosted scoredist.
type MatchEntry struct {
	GridEntry
	MatchesLanguage bool
	Distance        float64
	ScoreDist       float64
}

// sortKey is the composite ordering key used by the top-K streaming
// merger (descending relev, then scoredist, then a handful of
// tie-breakers so the order is total and deterministic).
func (m MatchEntry) sortKey() matchSortKey {
	return matchSortKey{
		relev:     m.Relev,
		scoreDist: m.ScoreDist,
		matchLang: m.MatchesLanguage,
		x:         m.X,
		y:         m.Y,
		id:        m.ID,
	}
}

type matchSortKey struct {
	relev     float64
	scoreDist float64
	matchLang bool
	x, y      uint16
	id        uint32
}

// less reports whether k is strictly worse than o (i.e. would sort
// earlier in an ascending, "worst first", ordering).
func (k matchSortKey) less(o matchSortKey) bool {
	if k.relev != o.relev {
		return k.relev < o.relev
	}
	if k.scoreDist != o.scoreDist {
		return k.scoreDist < o.scoreDist
	}
	if k.matchLang != o.matchLang {
		return !k.matchLang
	}
	if k.x != o.x {
		return k.x < o.x
	}
	if k.y != o.y {
		return k.y < o.y
	}
	return k.id < o.id
}

// MatchPhrase selects which phrase_ids a query addresses: either exactly
// one, or a contiguous range (used for prefix queries over a bin).
type MatchPhrase struct {
	// Exact and Range are mutually exclusive; IsRange reports which was set.
	IsRange    bool
	Exact      uint32
	Start, End uint32 // [Start, End), only meaningful when IsRange
}

// ExactPhrase builds a MatchPhrase selecting a single phrase_id.
func ExactPhrase(id uint32) MatchPhrase { return MatchPhrase{Exact: id} }

// RangePhrase builds a MatchPhrase selecting [start, end).
func RangePhrase(start, end uint32) MatchPhrase {
	return MatchPhrase{IsRange: true, Start: start, End: end}
}

// MatchKey is a query against a GridStore: which phrase(s), and which
// language subset they must (at least partly) overlap to earn the
// language-match relevance boost.
type MatchKey struct {
	Phrase  MatchPhrase
	LangSet LangSet
}

// MatchOpts carries the optional spatial constraints of a query.
type MatchOpts struct {
	Zoom uint16

	HasProximity bool
	ProximityX   uint16
	ProximityY   uint16

	HasBBox      bool
	BBoxMinX     uint16
	BBoxMinY     uint16
	BBoxMaxX     uint16
	BBoxMaxY     uint16
}
