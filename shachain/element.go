package shachain

import (
	"crypto/sha256"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// maxHeight bounds the reverse-index space to 2^48 entries, per the
// channel's revocation-preimage retention requirement.
const maxHeight uint8 = 48

// startIndex is the largest index below 2^maxHeight. A new Store starts
// with it as minIndex, and its complement is the Producer's root index.
var startIndex = (uint64(1) << maxHeight) - 1

// towerSize is the fixed number of buckets the linearized encoding
// reserves, independent of maxHeight: it must accommodate every bucket
// countTrailingZeros can return plus headroom matching the storage
// layout's declared capacity.
const towerSize = 65

// element is one node of the shachain derivation tree: a hash together
// with the index it was produced for.
type element struct {
	index uint64
	hash  chainhash.Hash
}

// derive computes the element at toIndex from e, by flipping the bits
// that differ between e.index and toIndex (in descending bit-position
// order) and re-hashing after each flip. This only succeeds if toIndex is
// "below and to the right" of e.index in the derivation tree -- that is,
// e.index's bits are a prefix of toIndex's.
func (e *element) derive(toIndex uint64) (*element, error) {
	positions, err := deriveBitTransformations(e.index, toIndex)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, len(e.hash))
	copy(buf, e.hash[:])

	for _, position := range positions {
		byteNumber := position / 8
		bitNumber := position % 8
		buf[byteNumber] ^= 1 << bitNumber

		h := sha256.Sum256(buf)
		buf = h[:]
	}

	hash, err := chainhash.NewHash(buf)
	if err != nil {
		return nil, err
	}

	return &element{index: toIndex, hash: *hash}, nil
}

func (e *element) isEqual(o *element) bool {
	return e.index == o.index && e.hash.IsEqual(&o.hash)
}

// getBit returns the bit of index at the given position.
func getBit(index uint64, position uint8) uint8 {
	return uint8((index >> position) & 1)
}

// getPrefix masks index down to only the bits at or above position.
func getPrefix(index uint64, position uint8) uint64 {
	var zero uint64
	mask := (zero - 1) - uint64((1<<position)-1)
	return index & mask
}

// countTrailingZeros returns the number of trailing zero bits in index,
// capped at maxHeight -- this also identifies which bucket a freshly
// inserted index belongs in.
func countTrailingZeros(index uint64) uint8 {
	var zeros uint8
	for ; zeros < maxHeight; zeros++ {
		if getBit(index, zeros) != 0 {
			break
		}
	}
	return zeros
}

// deriveBitTransformations checks that to is derivable from from (from's
// index bits are a prefix of to's) and returns the bit positions that
// must be flipped, high to low, to turn from's hash into to's.
func deriveBitTransformations(from, to uint64) ([]uint8, error) {
	var positions []uint8

	if from == to {
		return positions, nil
	}

	zeros := countTrailingZeros(from)
	if from != getPrefix(to, zeros) {
		return nil, errors.New("shachain: prefixes differ, index not derivable")
	}

	for position := zeros - 1; ; position-- {
		if getBit(to, position) == 1 {
			positions = append(positions, position)
		}
		if position == 0 {
			break
		}
	}

	return positions, nil
}
