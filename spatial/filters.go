// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spatial

import "github.com/terraindex/gridstore/format"

// BBox is an inclusive tile-coordinate bounding box.
type BBox struct {
	MinX, MinY, MaxX, MaxY uint16
}

// Contains reports whether (x, y) falls within b.
func (b BBox) Contains(x, y uint16) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// GlobalBBoxForZoom returns the full tile space at the given zoom level.
func GlobalBBoxForZoom(zoom uint16) BBox {
	max := uint16(1<<zoom - 1)
	if zoom >= 16 {
		max = ^uint16(0)
	}
	return BBox{0, 0, max, max}
}

// FilteredCoord is one coordinate surviving a bbox filter, with its tile
// position already deinterleaved from the Morton code.
type FilteredCoord struct {
	format.CoordRef
	X, Y uint16
}

// BboxIter lazily walks the Coords of a bucket, yielding only those
// within bbox. It first binary-searches for the Morton range the bbox's
// corners induce (grounded on interval/endpoint_index.go's
// ExpsearchPosType/SearchPosTypes boundary-search technique, generalized
// from a 1-D endpoint array to this descending-Morton-ordered
// uniform-vec), then applies an exact per-coordinate containment test to
// every candidate in that range — the Morton range is not pure, so the
// skip is an optimization, never a substitute for the exact test.
type BboxIter struct {
	buf    []byte
	coords format.UniformVecRef
	bbox   BBox
	hi     uint32
	lo     uint32
	i      uint32
	err    error
}

// NewBboxIter returns a BboxIter over coords (whose backing bytes are buf,
// the enclosing bucket's item slice), restricted to bbox.
func NewBboxIter(buf []byte, coords format.UniformVecRef, bbox BBox) *BboxIter {
	if err := coords.Validate(buf); err != nil {
		return &BboxIter{err: err}
	}
	hi := Morton(bbox.MaxX, bbox.MaxY)
	lo := Morton(bbox.MinX, bbox.MinY)
	start := seekMortonUpperBound(buf, coords, hi)
	return &BboxIter{buf: buf, coords: coords, bbox: bbox, hi: hi, lo: lo, i: start}
}

// Err returns the first decode error encountered, if any.
func (it *BboxIter) Err() error { return it.err }

// Next returns the next bbox-contained coordinate, or (zero, false) once
// the Morton range is exhausted or a decode error occurs.
func (it *BboxIter) Next() (FilteredCoord, bool) {
	if it.err != nil {
		return FilteredCoord{}, false
	}
	for it.i < it.coords.Count {
		window := it.coords.At(it.buf, it.i)
		it.i++
		c, err := format.DecodeCoord(it.buf, window)
		if err != nil {
			it.err = err
			return FilteredCoord{}, false
		}
		if c.Morton < it.lo {
			// Coords are sorted by descending Morton; once we drop below
			// the bbox's lower bound there is nothing left to find.
			it.i = it.coords.Count
			return FilteredCoord{}, false
		}
		x, y := DeinterleaveMorton(c.Morton)
		if !it.bbox.Contains(x, y) {
			continue
		}
		return FilteredCoord{CoordRef: c, X: x, Y: y}, true
	}
	return FilteredCoord{}, false
}

// AllCoordsIter walks every Coord in a bucket in on-disk (descending
// Morton) order, with no bbox restriction.
type AllCoordsIter struct {
	buf []byte
	it  *format.UniformVecIter
	err error
}

// NewAllCoordsIter returns an AllCoordsIter over coords within buf.
func NewAllCoordsIter(buf []byte, coords format.UniformVecRef) *AllCoordsIter {
	return &AllCoordsIter{buf: buf, it: coords.Iter(buf)}
}

// Err returns the first decode error encountered, if any.
func (it *AllCoordsIter) Err() error { return it.err }

// Next returns the next coordinate, or (zero, false) at the end or on a
// decode error (see Err).
func (it *AllCoordsIter) Next() (FilteredCoord, bool) {
	if it.err != nil {
		return FilteredCoord{}, false
	}
	window, ok := it.it.Next()
	if !ok {
		return FilteredCoord{}, false
	}
	c, err := format.DecodeCoord(it.buf, window)
	if err != nil {
		it.err = err
		return FilteredCoord{}, false
	}
	x, y := DeinterleaveMorton(c.Morton)
	return FilteredCoord{CoordRef: c, X: x, Y: y}, true
}

// seekMortonUpperBound returns the smallest index i such that the coord
// at i has Morton <= hi, given that coords are sorted by descending
// Morton code. This is a direct adaptation of
// interval/endpoint_index.go's ExpsearchPosType/SearchPosTypes binary
// search over a sorted array, applied here via format.UniformVecRef's
// random access instead of a plain slice.
func seekMortonUpperBound(buf []byte, coords format.UniformVecRef, hi uint32) uint32 {
	lo, high := uint32(0), coords.Count
	for lo < high {
		mid := lo + (high-lo)/2
		c, err := format.DecodeCoord(buf, coords.At(buf, mid))
		if err != nil {
			return lo
		}
		if c.Morton <= hi {
			high = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}
