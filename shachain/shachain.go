// Package shachain implements the compressed revocation-preimage store
// described by the channel's revocation protocol: given up to 2^48
// successively-revealed 32-byte secrets, it stores only O(log N) of them
// and can still derive any previously-seen secret on demand.
//
// The derivation tree itself (element, bit-flip derivation, bucket
// assignment) mirrors the shachain implementation this package was
// modeled on; the on-disk encoding is this protocol's own fixed 2612-byte
// layout rather than that implementation's variable-length wire format.
package shachain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// LinearizedSize is the fixed byte length of a serialized Store.
const LinearizedSize = 8 + 4 + towerSize*(8+32)

var (
	// ErrNotDerivable is returned by LookUp when no retained bucket can
	// derive the requested index.
	ErrNotDerivable = errors.New("shachain: unable to derive requested secret")

	// ErrNotDescending is returned by AddNextEntry when the supplied
	// commit index does not strictly follow the previous insertion in
	// descending-index order.
	ErrNotDescending = errors.New("shachain: index not next in descending sequence")

	// ErrInconsistent is returned by AddNextEntry when the supplied hash
	// does not derive the same value as an already-stored entry that
	// should be reachable from it -- i.e. the hash chain is broken.
	ErrInconsistent = errors.New("shachain: hash not derivable from previously stored entries")
)

// indexFor maps a revocation number (e.g. commit_num-1) to its position in
// the derivation-tree index space, using the channel protocol's
// complementary encoding: revocation N occupies index 0xFFFFFFFFFFFFFFFF-N.
func indexFor(revocationNum uint64) uint64 {
	return ^revocationNum
}

// Store is the per-peer shachain: a tower of up to towerSize retained
// elements from which every previously inserted secret can be rederived.
type Store struct {
	// minIndex is the derivation-tree index of the most recently
	// inserted element (indices strictly decrease with each insertion,
	// so this is also the numeric minimum); it holds startIndex until
	// the first insertion, and AddNextEntry does not compare against it
	// before then.
	minIndex uint64

	// numValid is the number of occupied buckets in known.
	numValid uint32

	known [towerSize]element
}

// New returns an empty Store, ready to accept the first revocation.
func New() *Store {
	return &Store{minIndex: startIndex}
}

// AddNextEntry stores the preimage that revokes revocationNum. Entries
// MUST be inserted in the order they are produced by the counterparty
// (descending index order); violating that, or supplying a hash that
// does not derive the same value as an already-retained bucket, is
// rejected.
func (s *Store) AddNextEntry(revocationNum uint64, preimage chainhash.Hash) error {
	idx := indexFor(revocationNum)

	if s.numValid > 0 && idx >= s.minIndex {
		return ErrNotDescending
	}

	newElement := &element{index: idx, hash: preimage}
	bucket := countTrailingZeros(idx)

	for i := uint8(0); i < bucket; i++ {
		derived, err := newElement.derive(s.known[i].index)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInconsistent, err)
		}
		if !derived.isEqual(&s.known[i]) {
			return ErrInconsistent
		}
	}

	s.known[bucket] = *newElement
	if uint32(bucket)+1 > s.numValid {
		s.numValid = uint32(bucket) + 1
	}
	s.minIndex = idx

	return nil
}

// LookUp derives the preimage for revocationNum from whichever retained
// bucket can reach it.
func (s *Store) LookUp(revocationNum uint64) (*chainhash.Hash, error) {
	idx := indexFor(revocationNum)

	for i := uint32(0); i < s.numValid; i++ {
		derived, err := s.known[i].derive(idx)
		if err != nil {
			continue
		}
		return &derived.hash, nil
	}

	return nil, ErrNotDerivable
}

// Linearize serializes the store to the fixed 2612-byte layout:
// (u64 min_index)(u32 num_valid)(u64 index, 32-byte hash) x 65, all
// little-endian, with unused slots zero-filled.
func (s *Store) Linearize() []byte {
	buf := make([]byte, LinearizedSize)

	binary.LittleEndian.PutUint64(buf[0:8], s.minIndex)
	binary.LittleEndian.PutUint32(buf[8:12], s.numValid)

	off := 12
	for i := 0; i < towerSize; i++ {
		binary.LittleEndian.PutUint64(buf[off:off+8], s.known[i].index)
		if uint32(i) < s.numValid {
			copy(buf[off+8:off+40], s.known[i].hash[:])
		}
		off += 40
	}

	return buf
}

// Delinearize parses the fixed 2612-byte layout produced by Linearize.
func Delinearize(buf []byte) (*Store, error) {
	if len(buf) != LinearizedSize {
		return nil, fmt.Errorf("shachain: expected %d bytes, got %d", LinearizedSize, len(buf))
	}

	s := &Store{
		minIndex: binary.LittleEndian.Uint64(buf[0:8]),
		numValid: binary.LittleEndian.Uint32(buf[8:12]),
	}

	if s.numValid > towerSize {
		return nil, fmt.Errorf("shachain: num_valid %d exceeds tower size %d", s.numValid, towerSize)
	}

	off := 12
	for i := 0; i < towerSize; i++ {
		idx := binary.LittleEndian.Uint64(buf[off : off+8])
		var hash chainhash.Hash
		copy(hash[:], buf[off+8:off+40])
		s.known[i] = element{index: idx, hash: hash}
		off += 40
	}

	return s, nil
}

// Producer deterministically generates the Nth revocation preimage from a
// single 32-byte seed, using the same bit-flip derivation the Store uses
// to re-derive old entries -- this is how a peer generates its own
// outgoing revocation preimages without storing all of them, since they
// are simply the root element derived down to the requested index.
type Producer struct {
	root element
}

// NewProducer builds a Producer from a 32-byte revocation seed. The seed
// sits at index ^startIndex: its low maxHeight bits are zero and its high
// bits are all ones, so it is a prefix of indexFor(n) for every n below
// 2^maxHeight.
func NewProducer(seed [32]byte) *Producer {
	return &Producer{root: element{index: ^startIndex, hash: chainhash.Hash(seed)}}
}

// At returns the preimage for revocation number revocationNum.
func (p *Producer) At(revocationNum uint64) (*chainhash.Hash, error) {
	derived, err := p.root.derive(indexFor(revocationNum))
	if err != nil {
		return nil, err
	}
	return &derived.hash, nil
}
