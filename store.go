// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package gridstore

import (
	"context"

	"github.com/pkg/errors"
	"github.com/terraindex/gridstore/kvstore"
)

// Options configures Open. Every field has a documented default. Only
// zoom, coalesce radius and the connection-pool bound are configurable;
// there are no type id, bbox or max score options.
type Options struct {
	// Zoom is the default tile zoom level assumed by queries that don't
	// override MatchOpts.Zoom. Defaults to 14, carmen-core's historical
	// default proximity zoom.
	Zoom uint16
	// CoalesceRadius is the default geographic coalesce radius (in the
	// same units as spec.md's worked scenario) used to derive
	// ProximityRadius when a query doesn't specify its own. Defaults to
	// 1000.
	CoalesceRadius float64
	// MaxOpenConns bounds the backing store's connection pool. See
	// kvstore.Options.
	MaxOpenConns int
}

func (o Options) withDefaults() Options {
	if o.Zoom == 0 {
		o.Zoom = 14
	}
	if o.CoalesceRadius == 0 {
		o.CoalesceRadius = 1000
	}
	return o
}

// Store is a read-only handle onto a GridStore: an ordered key/value
// file plus the in-memory bin-boundary set loaded from it at Open. Its
// fields are fixed for the lifetime of the handle (spec.md §5), so
// concurrent queries from the same Store are safe provided the
// underlying kvstore.Store's connections are (which they are, being
// pooled per-goroutine database/sql connections).
type Store struct {
	kv     *kvstore.Store
	bounds binBoundaries
	opts   Options
}

// Open opens the GridStore at path for reading, with default Options.
func Open(ctx context.Context, path string) (*Store, error) {
	return OpenWithOptions(ctx, path, Options{})
}

// OpenWithOptions opens the GridStore at path for reading.
func OpenWithOptions(ctx context.Context, path string, opts Options) (*Store, error) {
	opts = opts.withDefaults()
	kv, err := kvstore.Open(path, kvstore.Options{ReadOnly: true, MaxOpenConns: opts.MaxOpenConns})
	if err != nil {
		return nil, errors.Wrap(err, "gridstore: open")
	}
	bounds, err := loadBinBoundaries(ctx, kv)
	if err != nil {
		kv.Close()
		return nil, err
	}
	return &Store{kv: kv, bounds: bounds, opts: opts}, nil
}

// Close releases the Store's backing file handle.
func (s *Store) Close() error { return s.kv.Close() }

// Get returns every GridEntry stored under key, in natural descending
// order, or ok=false if the key is absent.
func (s *Store) Get(ctx context.Context, key GridKey) (entries []GridEntry, ok bool, err error) {
	raw := encodeKey(nil, TypeSinglePhrase, key)
	blob, found, err := s.kv.Get(ctx, raw)
	if err != nil {
		return nil, false, errors.Wrap(err, "gridstore: get")
	}
	if !found {
		return nil, false, nil
	}
	payload, err := unsealValue(blob)
	if err != nil {
		return nil, false, err
	}
	entries, err = DecodeValue(payload)
	if err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

// MatchIterator yields the result of StreamingGetMatching in globally
// descending composite rank order (spec.md §4.F), draining the bounded
// admission queue one element at a time with zero further I/O.
type MatchIterator struct {
	aq        *admissionQueue
	remaining int
}

// Next returns the next match, or (zero, false) once max_values entries
// have been emitted or the queue is drained, whichever comes first.
func (it *MatchIterator) Next() (MatchEntry, bool) {
	if it.remaining <= 0 {
		return MatchEntry{}, false
	}
	el := it.aq.PeekMax()
	if el == nil {
		return MatchEntry{}, false
	}
	entry := el.entry
	it.aq.Advance(el)
	it.remaining--
	return entry, true
}

// sliceMatchSource adapts an already-decoded []MatchEntry (one phrase
// key's full matching result) to the matchSource interface the
// admission queue drains tail entries through.
type sliceMatchSource struct {
	entries []MatchEntry
	i       int
}

func (s *sliceMatchSource) next() (MatchEntry, bool) {
	if s.i >= len(s.entries) {
		return MatchEntry{}, false
	}
	e := s.entries[s.i]
	s.i++
	return e, true
}

// StreamingGetMatching is GridStore's core public operation (spec.md
// §4.F): it resolves the query's phrase range against the bin-boundary
// table, scans every eligible key once (the admission phase), and
// returns an iterator that drains the resulting bounded top-K queue
// with no further I/O (the drain phase). maxValues must be positive.
func (s *Store) StreamingGetMatching(ctx context.Context, key MatchKey, opts MatchOpts, maxValues int) (*MatchIterator, error) {
	if opts.Zoom == 0 {
		opts.Zoom = s.opts.Zoom
	}
	var fetchStart, fetchEnd uint32
	var marker TypeMarker
	if key.Phrase.IsRange {
		marker, fetchStart, fetchEnd, _ = s.bounds.binRange(key.Phrase.Start, key.Phrase.End)
	} else {
		marker, fetchStart, fetchEnd = TypeSinglePhrase, key.Phrase.Exact, key.Phrase.Exact+1
	}

	startKey := encodeStartKey(nil, marker, fetchStart)
	cursor, err := s.kv.Scan(ctx, startKey)
	if err != nil {
		return nil, errors.Wrap(err, "gridstore: scan")
	}
	defer cursor.Close()

	aq := newAdmissionQueue(maxValues)
	for cursor.Next() {
		raw := cursor.Key()
		if !matchesPhraseRange(raw, marker, fetchEnd) {
			break
		}
		_, decodedKey, ok := decodeKey(raw)
		if !ok {
			return nil, errors.Wrap(ErrCorruptRecord, "gridstore: unparseable scanned key")
		}
		matchesLang := matchesLanguage(decodedKey.LangSet, key.LangSet)

		payload, err := unsealValue(cursor.Value())
		if err != nil {
			return nil, err
		}
		entries, err := decodeMatchingValue(payload, opts, matchesLang, s.opts.CoalesceRadius)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			continue
		}
		el := &queueElement{
			entry:  entries[0],
			source: &sliceMatchSource{entries: entries[1:]},
		}
		aq.Admit(el)
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrap(err, "gridstore: scan")
	}

	return &MatchIterator{aq: aq, remaining: maxValues}, nil
}

// Keys returns every GridKey in the store, in ascending on-disk order
// (SinglePhrase keys only — PrefixBin and ~BOUNDS entries are writer-side
// implementation detail, not logical phrase keys).
func (s *Store) Keys(ctx context.Context) ([]GridKey, error) {
	cursor, err := s.kv.Scan(ctx, []byte{byte(TypeSinglePhrase)})
	if err != nil {
		return nil, errors.Wrap(err, "gridstore: scan")
	}
	defer cursor.Close()

	var out []GridKey
	for cursor.Next() {
		raw := cursor.Key()
		if len(raw) == 0 || TypeMarker(raw[0]) != TypeSinglePhrase {
			break
		}
		_, key, ok := decodeKey(raw)
		if !ok {
			return nil, errors.Wrap(ErrCorruptRecord, "gridstore: unparseable key")
		}
		out = append(out, key)
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrap(err, "gridstore: scan")
	}
	return out, nil
}

// KeyEntries pairs a GridKey with its decoded entries, returned by Iter.
type KeyEntries struct {
	Key     GridKey
	Entries []GridEntry
}

// Iter returns every (GridKey, []GridEntry) pair in the store, in
// ascending key order.
func (s *Store) Iter(ctx context.Context) ([]KeyEntries, error) {
	cursor, err := s.kv.Scan(ctx, []byte{byte(TypeSinglePhrase)})
	if err != nil {
		return nil, errors.Wrap(err, "gridstore: scan")
	}
	defer cursor.Close()

	var out []KeyEntries
	for cursor.Next() {
		raw := cursor.Key()
		if len(raw) == 0 || TypeMarker(raw[0]) != TypeSinglePhrase {
			break
		}
		_, key, ok := decodeKey(raw)
		if !ok {
			return nil, errors.Wrap(ErrCorruptRecord, "gridstore: unparseable key")
		}
		payload, err := unsealValue(cursor.Value())
		if err != nil {
			return nil, err
		}
		entries, err := DecodeValue(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, KeyEntries{Key: key, Entries: entries})
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrap(err, "gridstore: scan")
	}
	return out, nil
}
