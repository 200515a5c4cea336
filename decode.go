// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package gridstore

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/terraindex/gridstore/format"
	"github.com/terraindex/gridstore/spatial"
)

// DecodeValue returns every GridEntry stored in a phrase's value blob, in
// their natural on-disk order. Because the builder writes buckets sorted
// by (relev desc, score desc) and coords sorted by descending Morton code
// (format.EncodePhraseRecord), this already matches GridEntry's natural
// ordering (see GridEntry.less) — this function performs no additional
// sort, exactly mirroring store.rs's decode_value, which is a flat nested
// traversal with no re-ordering step of its own.
func DecodeValue(blob []byte) ([]GridEntry, error) {
	rec, err := format.ReadPhraseRecord(blob)
	if err != nil {
		return nil, err
	}
	var out []GridEntry
	bucketIter := rec.Buckets.Iter(blob)
	for {
		item, ok := bucketIter.Next()
		if !ok {
			break
		}
		bucket, err := format.DecodeBucket(item)
		if err != nil {
			return nil, err
		}
		relev, score, err := format.DecodeRelevScore(bucket.RelevScore)
		if err != nil {
			return nil, err
		}
		coords := spatial.NewAllCoordsIter(item, bucket.Coords)
		for {
			coord, ok := coords.Next()
			if !ok {
				break
			}
			ids := coord.IDs.Iter(item)
			for {
				idComp, ok := ids.Next()
				if !ok {
					break
				}
				id, hash := format.SplitIDComponent(idComp)
				out = append(out, GridEntry{
					Relev:            relev,
					Score:            score,
					X:                coord.X,
					Y:                coord.Y,
					ID:               id,
					SourcePhraseHash: hash,
				})
			}
		}
	}
	if err := bucketIter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeMatchingValue returns the matches a phrase's value blob
// contributes to a query: grouped by relev (spec.md §4.D), with each
// group's entries from every (relev, score) bucket filtered by
// matchOpts' bbox/proximity constraints, boosted, and sorted by
// descending (relev, scoredist, matchesLanguage, x, y, id).
//
// Unlike store.rs's streaming kmerge_by across score buckets, this sorts
// each relev group once after filtering instead of merging pre-sorted
// per-bucket streams: true lazy merging would require each bucket's
// filtered sub-stream to already be ordered by scoredist, which in turn
// requires buffering it whenever a proximity point is active (Coords are
// stored in Morton order, not distance order), so the eager sort costs no
// real streaming advantage here while staying considerably simpler.
func decodeMatchingValue(blob []byte, opts MatchOpts, matchesLanguage bool, coalesceRadius float64) ([]MatchEntry, error) {
	rec, err := format.ReadPhraseRecord(blob)
	if err != nil {
		return nil, err
	}

	var bbox spatial.BBox
	if opts.HasBBox {
		bbox = spatial.BBox{MinX: opts.BBoxMinX, MinY: opts.BBoxMinY, MaxX: opts.BBoxMaxX, MaxY: opts.BBoxMaxY}
	}

	type decodedBucket struct {
		relev float64
		score uint8
		item  []byte
		ref   format.BucketRef
	}
	var buckets []decodedBucket
	bucketIter := rec.Buckets.Iter(blob)
	for {
		item, ok := bucketIter.Next()
		if !ok {
			break
		}
		b, err := format.DecodeBucket(item)
		if err != nil {
			return nil, err
		}
		relev, score, err := format.DecodeRelevScore(b.RelevScore)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, decodedBucket{relev, score, item, b})
	}
	if err := bucketIter.Err(); err != nil {
		return nil, err
	}

	var out []MatchEntry
	i := 0
	for i < len(buckets) {
		j := i
		relev := buckets[i].relev
		var group []MatchEntry
		for j < len(buckets) && buckets[j].relev == relev {
			db := buckets[j]
			var coordIter interface {
				Next() (spatial.FilteredCoord, bool)
			}
			if opts.HasBBox {
				coordIter = spatial.NewBboxIter(db.item, db.ref.Coords, bbox)
			} else {
				coordIter = spatial.NewAllCoordsIter(db.item, db.ref.Coords)
			}
			for {
				coord, ok := coordIter.Next()
				if !ok {
					break
				}
				var distance float64
				var within bool
				effectiveRadius := coalesceRadius
				if !opts.HasProximity {
					// No proximity point: scoredist falls back to the plain
					// score (spatial.ScoreDist's coalesceRadius<=0 case).
					effectiveRadius = 0
				} else {
					distance = spatial.TileDist(coord.X, coord.Y, opts.ProximityX, opts.ProximityY)
					within = spatial.WithinRadius(distance, spatial.ProximityRadius(opts.Zoom, coalesceRadius))
				}
				scoreDist := spatial.ScoreDist(opts.Zoom, distance, db.score, effectiveRadius)
				boosted := relev
				if !(matchesLanguage || within) {
					boosted = relev * 0.96
				}
				ids := coord.IDs.Iter(db.item)
				for {
					idComp, ok := ids.Next()
					if !ok {
						break
					}
					id, hash := format.SplitIDComponent(idComp)
					group = append(group, MatchEntry{
						GridEntry: GridEntry{
							Relev:            boosted,
							Score:            db.score,
							X:                coord.X,
							Y:                coord.Y,
							ID:               id,
							SourcePhraseHash: hash,
						},
						MatchesLanguage: matchesLanguage || within,
						Distance:        distance,
						ScoreDist:       scoreDist,
					})
				}
			}
			if bi, ok := coordIter.(interface{ Err() error }); ok {
				if err := bi.Err(); err != nil {
					return nil, errors.Wrap(err, "gridstore: decoding matching coords")
				}
			}
			j++
		}
		sort.SliceStable(group, func(a, b int) bool {
			return group[b].sortKey().less(group[a].sortKey())
		})
		out = append(out, group...)
		i = j
	}
	return out, nil
}
