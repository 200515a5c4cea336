// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spatial

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

// TestScoreDistCalibrationPoint asserts the one calibration point this
// package's closed form is required to reproduce exactly: at distance 0,
// scoredist is always score*2250, independent of zoom/radius. See
// DESIGN.md Open Question #2.
func TestScoreDistCalibrationPoint(t *testing.T) {
	for _, score := range []uint8{1, 7, 15} {
		got := ScoreDist(14, 0, score, 1000)
		expect.EQ(t, float64(score)*2250, got)
	}
}

func TestScoreDistNoProximity(t *testing.T) {
	// coalesceRadius <= 0 means "no proximity specified"; scoredist falls
	// back to the plain score, per spec.md §4.C.
	got := ScoreDist(14, 123, 7, 0)
	expect.EQ(t, float64(7), got)
}

func TestScoreDistMonotonicDecay(t *testing.T) {
	const score = 7
	const radius = 1000
	prev := ScoreDist(14, 0, score, radius)
	for _, d := range []float64{1, 2, 5, 14, 15, 16, 30, 60, 120} {
		got := ScoreDist(14, d, score, radius)
		expect.True(t, got < prev, "scoredist should strictly decrease with distance: d=%v got=%v prev=%v", d, got, prev)
		prev = got
	}
}

func TestScoreDistContinuousAtRadiusBoundary(t *testing.T) {
	r := ProximityRadius(14, 1000)
	justInside := ScoreDist(14, r, 7, 1000)
	justOutside := ScoreDist(14, r+1e-9, 7, 1000)
	diff := justInside - justOutside
	if diff < 0 {
		diff = -diff
	}
	expect.True(t, diff < 1e-3, "scoredist should be continuous at the radius boundary: inside=%v outside=%v", justInside, justOutside)
}

func TestWithinRadius(t *testing.T) {
	expect.True(t, WithinRadius(5, 10))
	expect.True(t, WithinRadius(10, 10))
	expect.False(t, WithinRadius(10.01, 10))
}

func TestTileDistChebyshev(t *testing.T) {
	expect.EQ(t, float64(5), TileDist(0, 0, 5, 3))
	expect.EQ(t, float64(5), TileDist(0, 0, 3, 5))
	expect.EQ(t, float64(0), TileDist(7, 7, 7, 7))
}

func TestProximityRadiusMonotoneInZoom(t *testing.T) {
	r14 := ProximityRadius(14, 1000)
	r15 := ProximityRadius(15, 1000)
	expect.True(t, r15 > r14, "radius should grow with zoom: r14=%v r15=%v", r14, r15)
}
