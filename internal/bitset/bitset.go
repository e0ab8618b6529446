// Copyright 2021 The bit Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package bitset tracks membership of small dense integer ranges, like
// "which directory entries have been placed in the table of contents".
package bitset

import "math/bits"

// Bitset is conceptually a []bool, packed 64 to a word.
type Bitset struct {
	words  []uint64
	length int
}

// New returns a bitset for positions [0, length).
func New(length int) *Bitset {
	if length < 0 {
		length = 0
	}
	return &Bitset{
		words:  make([]uint64, (length+63)/64),
		length: length,
	}
}

func (b *Bitset) Len() int {
	return b.length
}

// Set marks i.  Out-of-range positions are ignored.
func (b *Bitset) Set(i int) {
	if i < 0 || i >= b.length {
		return
	}
	b.words[i/64] |= 1 << (uint(i) % 64)
}

func (b *Bitset) IsSet(i int) bool {
	if i < 0 || i >= b.length {
		return false
	}
	return b.words[i/64]&(1<<(uint(i)%64)) != 0
}

// Count returns the number of marked positions.
func (b *Bitset) Count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// FirstClear returns the lowest unmarked position, or -1 if every
// position is marked.
func (b *Bitset) FirstClear() int {
	for wi, w := range b.words {
		if w == ^uint64(0) {
			continue
		}
		i := wi*64 + bits.TrailingZeros64(^w)
		if i < b.length {
			return i
		}
		return -1
	}
	return -1
}
