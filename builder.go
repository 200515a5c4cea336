// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package gridstore

import (
	"context"
	"sort"

	"github.com/dgryski/go-farm"
	"github.com/pkg/errors"
	"github.com/terraindex/gridstore/format"
	"github.com/terraindex/gridstore/kvstore"
	"github.com/terraindex/gridstore/spatial"
)

// BuilderOptions configures NewBuilderWithOptions.
type BuilderOptions struct {
	// Compress enables zstd compression of value blobs at or above
	// zstdMinSize. NewBuilder sets it to true; NewBuilderWithOptions
	// uses the value as given.
	Compress bool
	// MaxOpenConns bounds the backing store's connection pool.
	MaxOpenConns int
}

// Builder accumulates GridEntry postings under GridKeys and writes a
// complete GridStore file on Finish. It is a single-writer construct:
// spec.md §4.G's reader-facing invariants (bucket/coord ordering,
// PrefixBin merge semantics) are upheld entirely on the write side, so
// the reader never has to sort or validate them.
type Builder struct {
	kv      *kvstore.Store
	opts    BuilderOptions
	entries map[GridKey][]GridEntry
}

// NewBuilder opens path for writing, creating it if absent, with
// default BuilderOptions.
func NewBuilder(ctx context.Context, path string) (*Builder, error) {
	return NewBuilderWithOptions(ctx, path, BuilderOptions{Compress: true})
}

// NewBuilderWithOptions opens path for writing with explicit options.
func NewBuilderWithOptions(ctx context.Context, path string, opts BuilderOptions) (*Builder, error) {
	kv, err := kvstore.Open(path, kvstore.Options{MaxOpenConns: opts.MaxOpenConns})
	if err != nil {
		return nil, errors.Wrap(err, "gridstore: new builder")
	}
	return &Builder{kv: kv, opts: opts, entries: map[GridKey][]GridEntry{}}, nil
}

// PhraseID derives a deterministic 64-bit fingerprint of phrase, folded
// into a 32-bit phrase_id, for callers that want to key entries by text
// rather than manage their own id allocation. It is not used internally
// by Insert/Finish, which always take an explicit GridKey.
func PhraseID(phrase string) uint32 {
	return uint32(farm.Hash64([]byte(phrase)))
}

// Insert stages one posting under key. Entries for the same key may be
// inserted in any order; Finish sorts them into the on-disk layout.
func (b *Builder) Insert(key GridKey, entry GridEntry) {
	b.entries[key] = append(b.entries[key], entry)
}

// Renumber rewrites every staged entry's ID field through mapping
// (mapping[oldID] == newID), as spec.md §4.G describes: a reader-
// irrelevant, builder-only transform applied before Finish.
func (b *Builder) Renumber(mapping map[uint32]uint32) {
	for key, entries := range b.entries {
		for i := range entries {
			if newID, ok := mapping[entries[i].ID]; ok {
				entries[i].ID = newID
			}
		}
		b.entries[key] = entries
	}
}

// Finish writes every staged key's record and the bin-boundary table. It
// does not close the backing store; call Close afterwards. boundaries lists the phrase_ids (a subset of
// the inserted keys' PhraseIDs) that should receive a merged PrefixBin
// record alongside their SinglePhrase record; bins are formed between
// consecutive boundaries, inclusive of the lower one.
func (b *Builder) Finish(ctx context.Context, boundaries []uint32) error {
	keys := make([]GridKey, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].PhraseID != keys[j].PhraseID {
			return keys[i].PhraseID < keys[j].PhraseID
		}
		return keys[i].LangSet.Hi < keys[j].LangSet.Hi ||
			(keys[i].LangSet.Hi == keys[j].LangSet.Hi && keys[i].LangSet.Lo < keys[j].LangSet.Lo)
	})

	for _, key := range keys {
		blob, err := b.encodeRecord(b.entries[key])
		if err != nil {
			return err
		}
		sealed, err := sealValue(blob, b.opts.Compress)
		if err != nil {
			return err
		}
		raw := encodeKey(nil, TypeSinglePhrase, key)
		if err := b.kv.Put(ctx, raw, sealed); err != nil {
			return errors.Wrap(err, "gridstore: write phrase record")
		}
	}

	sortedBounds := append([]uint32(nil), boundaries...)
	sort.Slice(sortedBounds, func(i, j int) bool { return sortedBounds[i] < sortedBounds[j] })
	if err := b.writePrefixBins(ctx, sortedBounds); err != nil {
		return err
	}

	boundsBlob, err := sealValue(encodeBoundsBlob(sortedBounds), false)
	if err != nil {
		return err
	}
	if err := b.kv.Put(ctx, boundsKey, boundsBlob); err != nil {
		return errors.Wrap(err, "gridstore: write bin boundaries")
	}
	return nil
}

// Close releases the builder's backing file handle without writing
// anything further. Finish should be called first; Close after Finish
// is always safe.
func (b *Builder) Close() error { return b.kv.Close() }

// writePrefixBins builds, for each consecutive pair of boundaries, the
// merged-and-deduplicated PrefixBin record spec.md §4.G requires: group
// every entry across [lo, hi)'s SinglePhrase records by (relev, score,
// x, y), union their id sets, and write the result under
// [PrefixBin][lo].
func (b *Builder) writePrefixBins(ctx context.Context, bounds []uint32) error {
	if len(bounds) < 2 {
		return nil
	}
	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i], bounds[i+1]
		type groupKey struct {
			relev float64
			score uint8
			x, y  uint16
		}
		merged := map[groupKey]map[uint32]struct{}{}
		for key, entries := range b.entries {
			if key.PhraseID < lo || key.PhraseID >= hi {
				continue
			}
			for _, e := range entries {
				gk := groupKey{e.Relev, e.Score, e.X, e.Y}
				ids := merged[gk]
				if ids == nil {
					ids = map[uint32]struct{}{}
					merged[gk] = ids
				}
				ids[format.EncodeIDComponent(e.ID, e.SourcePhraseHash)] = struct{}{}
			}
		}
		if len(merged) == 0 {
			continue
		}

		var postings []format.Posting
		for gk, ids := range merged {
			quantum := format.QuantizeRelev(gk.relev)
			morton := spatial.Morton(gk.x, gk.y)
			for idComp := range ids {
				postings = append(postings, format.Posting{
					RelevQuantum: quantum,
					Score:        gk.score,
					Morton:       morton,
					IDComponent:  idComp,
				})
			}
		}
		blob := format.EncodePhraseRecord(postings)
		sealed, err := sealValue(blob, b.opts.Compress)
		if err != nil {
			return err
		}
		raw := encodeKey(nil, TypePrefixBin, GridKey{PhraseID: lo, LangSet: LangSetAny})
		if err := b.kv.Put(ctx, raw, sealed); err != nil {
			return errors.Wrap(err, "gridstore: write prefix bin")
		}
	}
	return nil
}

// encodeRecord converts entries to Postings and hands them to
// format.EncodePhraseRecord, which groups them into buckets and sorts
// both the buckets (descending relev, score) and each bucket's coords
// (descending morton) into on-disk order.
func (b *Builder) encodeRecord(entries []GridEntry) ([]byte, error) {
	postings := make([]format.Posting, len(entries))
	for i, e := range entries {
		quantum := format.QuantizeRelev(e.Relev)
		postings[i] = format.Posting{
			RelevQuantum: quantum,
			Score:        e.Score,
			Morton:       spatial.Morton(e.X, e.Y),
			IDComponent:  format.EncodeIDComponent(e.ID, e.SourcePhraseHash),
		}
	}
	return format.EncodePhraseRecord(postings), nil
}
