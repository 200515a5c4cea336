// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package gridstore

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func entryWithRelev(relev float64, id uint32) MatchEntry {
	return MatchEntry{GridEntry: GridEntry{Relev: relev, ID: id}, MatchesLanguage: true}
}

func oneShot(relev float64, id uint32) *queueElement {
	return &queueElement{entry: entryWithRelev(relev, id), source: &sliceMatchSource{}}
}

func TestAdmissionQueueDrainsDescending(t *testing.T) {
	aq := newAdmissionQueue(0) // 0 == unbounded
	expect.True(t, aq.Admit(oneShot(0.8, 1)))
	expect.True(t, aq.Admit(oneShot(1.0, 2)))
	expect.True(t, aq.Admit(oneShot(0.9, 3)))

	var gotIDs []uint32
	for {
		el := aq.PeekMax()
		if el == nil {
			break
		}
		gotIDs = append(gotIDs, el.entry.ID)
		aq.Advance(el)
	}
	expect.EQ(t, []uint32{2, 3, 1}, gotIDs)
}

func TestAdmissionQueueCapacityEvictsWorst(t *testing.T) {
	aq := newAdmissionQueue(2)
	expect.True(t, aq.Admit(oneShot(0.5, 1)))
	expect.True(t, aq.Admit(oneShot(0.9, 2)))
	// Better than the current worst (0.5): admitted, evicting id 1.
	expect.True(t, aq.Admit(oneShot(0.7, 3)))
	// No better than the current worst (0.7): rejected outright.
	expect.False(t, aq.Admit(oneShot(0.6, 4)))
	expect.EQ(t, 2, aq.Len())

	var gotIDs []uint32
	for {
		el := aq.PeekMax()
		if el == nil {
			break
		}
		gotIDs = append(gotIDs, el.entry.ID)
		aq.Advance(el)
	}
	expect.EQ(t, []uint32{2, 3}, gotIDs)
}

// chainSource replays a fixed slice of entries, one per next() call.
type chainSource struct {
	entries []MatchEntry
	i       int
}

func (s *chainSource) next() (MatchEntry, bool) {
	if s.i >= len(s.entries) {
		return MatchEntry{}, false
	}
	e := s.entries[s.i]
	s.i++
	return e, true
}

func TestAdmissionQueueAdvanceInterleavesSources(t *testing.T) {
	aq := newAdmissionQueue(0)
	chained := &queueElement{
		entry:  entryWithRelev(0.95, 101),
		source: &chainSource{entries: []MatchEntry{entryWithRelev(0.85, 100)}},
	}
	single := oneShot(0.9, 200)
	aq.Admit(chained)
	aq.Admit(single)

	var gotIDs []uint32
	for {
		el := aq.PeekMax()
		if el == nil {
			break
		}
		gotIDs = append(gotIDs, el.entry.ID)
		aq.Advance(el)
	}
	// 101 (0.95) drains first; advancing it yields 100 (0.85), which now
	// sorts behind the still-pending 200 (0.9).
	expect.EQ(t, []uint32{101, 200, 100}, gotIDs)
	expect.EQ(t, 0, aq.Len())
}
