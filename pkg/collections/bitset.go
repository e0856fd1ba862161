// Package collections provides compact data structures for probe bookkeeping.
package collections

import (
	"math/bits"
)

// Bitset is a growable set of non-negative ints, one bit per element.
// It is not safe for concurrent use.
type Bitset struct {
	words []uint64
}

// NewBitset creates a bitset with room for size elements.
func NewBitset(size int) *Bitset {
	if size <= 0 {
		size = 64
	}
	return &Bitset{words: make([]uint64, (size+63)/64)}
}

// BitsetOf creates a bitset holding the given indices. Negative indices are
// ignored.
func BitsetOf(indices ...int) *Bitset {
	b := NewBitset(0)
	for _, i := range indices {
		b.Set(i)
	}
	return b
}

// Set adds i to the set.
func (b *Bitset) Set(i int) {
	if i < 0 {
		return
	}
	w := i / 64
	if w >= len(b.words) {
		b.grow(w + 1)
	}
	b.words[w] |= 1 << (i % 64)
}

// Test reports whether i is in the set.
func (b *Bitset) Test(i int) bool {
	if i < 0 || i/64 >= len(b.words) {
		return false
	}
	return b.words[i/64]&(1<<(i%64)) != 0
}

// Count returns the number of elements.
func (b *Bitset) Count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Max returns the highest element, or -1 when empty.
func (b *Bitset) Max() int {
	for w := len(b.words) - 1; w >= 0; w-- {
		if word := b.words[w]; word != 0 {
			return w*64 + 63 - bits.LeadingZeros64(word)
		}
	}
	return -1
}

// grow doubles the word slice until it holds n words.
func (b *Bitset) grow(n int) {
	size := max(len(b.words)*2, n)
	words := make([]uint64, size)
	copy(words, b.words)
	b.words = words
}

// Or adds every element of other.
func (b *Bitset) Or(other *Bitset) {
	if other == nil {
		return
	}
	if len(other.words) > len(b.words) {
		b.grow(len(other.words))
	}
	for i, w := range other.words {
		b.words[i] |= w
	}
}

// Iterate calls fn for each element in ascending order until fn returns
// false.
func (b *Bitset) Iterate(fn func(i int) bool) {
	for w, word := range b.words {
		for word != 0 {
			if !fn(w*64 + bits.TrailingZeros64(word)) {
				return
			}
			word &= word - 1
		}
	}
}

// ToSlice returns the elements in ascending order.
func (b *Bitset) ToSlice() []int {
	out := make([]int, 0, b.Count())
	b.Iterate(func(i int) bool {
		out = append(out, i)
		return true
	})
	return out
}

// MarkInto sets values[i] for every element i below len(values) and
// returns how many entries changed from false to true.
func (b *Bitset) MarkInto(values []bool) int {
	changed := 0
	b.Iterate(func(i int) bool {
		if i >= len(values) {
			return false
		}
		if !values[i] {
			values[i] = true
			changed++
		}
		return true
	})
	return changed
}
