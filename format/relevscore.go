// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package format

import "github.com/pkg/errors"

// RelevStep is the quantization step between adjacent relevance buckets:
// relev takes one of 6 discrete values in [0,1] (0.0, 0.2, ..., 1.0).
const RelevStep = 0.2

// MaxRelevQuantum is the highest valid relevance quantum (relev ==
// MaxRelevQuantum*RelevStep == 1.0).
const MaxRelevQuantum = 5

// EncodeRelevScore packs a relevance quantum (0..=5) and a score (0..=15,
// 4 bits) into one byte: the quantum in the high 4 bits, the score in the
// low 4 bits.
func EncodeRelevScore(quantum uint8, score uint8) byte {
	return quantum<<4 | score&0x0f
}

// DecodeRelevScore unpacks a relev_score byte into its relevance (as a
// float, q/5) and score. It returns ErrCorruptRecord if the high nibble
// names a quantum above MaxRelevQuantum, per spec.md §4.A ("relev_score
// byte decodes to q > 5" is a fatal, corrupted-store condition).
func DecodeRelevScore(b byte) (relev float64, score uint8, err error) {
	quantum := b >> 4
	if quantum > MaxRelevQuantum {
		return 0, 0, errors.Wrap(ErrCorruptRecord, "relev quantum out of range")
	}
	return float64(quantum) / MaxRelevQuantum, b & 0x0f, nil
}

// QuantizeRelev maps a relevance in [0,1] to its nearest quantum
// (q = round(relev*5), per spec.md §3). Relevances outside that range are
// clamped.
func QuantizeRelev(relev float64) uint8 {
	if relev <= 0 {
		return 0
	}
	if relev >= 1.0 {
		return MaxRelevQuantum
	}
	q := int(relev*5 + 0.5)
	if q > MaxRelevQuantum {
		q = MaxRelevQuantum
	}
	return uint8(q)
}
