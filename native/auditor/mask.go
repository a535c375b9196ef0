package auditor

import (
	"math/bits"

	"github.com/holiman/uint256"
)

// forEachMarket calls fn with the index of every set bit in mask, lowest
// first, stopping at the first error.
func forEachMarket(mask *uint256.Int, fn func(index uint8) error) error {
	if mask == nil {
		return nil
	}
	for word := 0; word < 4; word++ {
		w := mask[word]
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			if err := fn(uint8(word*64 + bit)); err != nil {
				return err
			}
			w &= w - 1
		}
	}
	return nil
}

func hasMarket(mask *uint256.Int, index uint8) bool {
	if mask == nil {
		return false
	}
	return mask[index/64]&(1<<(index%64)) != 0
}

func withMarket(mask *uint256.Int, index uint8) *uint256.Int {
	out := new(uint256.Int)
	if mask != nil {
		out.Set(mask)
	}
	out[index/64] |= 1 << (index % 64)
	return out
}

func withoutMarket(mask *uint256.Int, index uint8) *uint256.Int {
	out := new(uint256.Int)
	if mask != nil {
		out.Set(mask)
	}
	out[index/64] &^= 1 << (index % 64)
	return out
}
