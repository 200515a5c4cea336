// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package gridstore

import "container/heap"

// matchSource produces the successive MatchEntry values of one key's
// matching stream, in descending sortKey order.
type matchSource interface {
	next() (MatchEntry, bool)
}

// queueElement is one live key's current head entry plus the tail
// iterator that will produce its next one. It is tracked simultaneously
// in two heaps (ascending and descending by sortKey) so the admission
// queue can cheaply find both its worst (for eviction) and best (for
// draining) member.
type queueElement struct {
	entry  MatchEntry
	source matchSource
	minIdx int
	maxIdx int
}

// admissionQueue is the bounded top-K structure behind
// Store.StreamingGetMatching (spec.md §4.F): as keys are scanned in
// ascending order, each contributes its best entry as a candidate; once
// the queue reaches capacity, a candidate only survives if it beats the
// current worst member, which is then evicted. No double-ended priority
// queue exists anywhere in the retrieved example pack (see DESIGN.md), so
// this is built directly on two stdlib container/heap instances sharing
// pointers to the same elements.
type admissionQueue struct {
	cap int
	min minHeap
	max maxHeap
}

func newAdmissionQueue(capacity int) *admissionQueue {
	return &admissionQueue{cap: capacity}
}

func (q *admissionQueue) Len() int { return len(q.min) }

// Admit offers a candidate element to the queue. It returns false (and
// does not retain el) if the queue is already full and el is no better
// than the current worst member.
func (q *admissionQueue) Admit(el *queueElement) bool {
	if q.cap > 0 && len(q.min) >= q.cap {
		worst := q.min[0]
		if !worst.entry.sortKey().less(el.entry.sortKey()) {
			return false
		}
		q.removeMin()
	}
	heap.Push(&q.min, el)
	heap.Push(&q.max, el)
	return true
}

func (q *admissionQueue) removeMin() {
	worst := q.min[0]
	heap.Remove(&q.min, worst.minIdx)
	heap.Remove(&q.max, worst.maxIdx)
}

// PeekMax returns the current best element without removing it, or nil
// if the queue is empty.
func (q *admissionQueue) PeekMax() *queueElement {
	if len(q.max) == 0 {
		return nil
	}
	return q.max[0]
}

// Advance replaces el's head entry with the next value from its source,
// re-heapifying it in place, or removes el entirely once its source is
// exhausted.
func (q *admissionQueue) Advance(el *queueElement) {
	next, ok := el.source.next()
	if !ok {
		heap.Remove(&q.min, el.minIdx)
		heap.Remove(&q.max, el.maxIdx)
		return
	}
	el.entry = next
	heap.Fix(&q.min, el.minIdx)
	heap.Fix(&q.max, el.maxIdx)
}

// minHeap orders *queueElement ascending by sortKey (worst first).
type minHeap []*queueElement

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	return h[i].entry.sortKey().less(h[j].entry.sortKey())
}
func (h minHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].minIdx, h[j].minIdx = i, j
}
func (h *minHeap) Push(x interface{}) {
	el := x.(*queueElement)
	el.minIdx = len(*h)
	*h = append(*h, el)
}
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	el := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return el
}

// maxHeap orders *queueElement descending by sortKey (best first).
type maxHeap []*queueElement

func (h maxHeap) Len() int { return len(h) }
func (h maxHeap) Less(i, j int) bool {
	return h[j].entry.sortKey().less(h[i].entry.sortKey())
}
func (h maxHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].maxIdx, h[j].maxIdx = i, j
}
func (h *maxHeap) Push(x interface{}) {
	el := x.(*queueElement)
	el.maxIdx = len(*h)
	*h = append(*h, el)
}
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	el := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return el
}
