// Package bloom implements the fixed-size bloom filters used to estimate
// document similarity. Filters of equal size are compared bit-wise; filters
// of different sizes are never comparable.
package bloom

import (
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"

	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/errors"
)

const (
	// WordBits is the in-memory word width; sizes are rounded up to it.
	WordBits = 64
	// SerializedWordBits is the width of each element of Serialized.Bits.
	SerializedWordBits = 32
)

// ErrIncompatibleFilter is returned when a serialized filter does not match
// the configuration of the filter it is loaded into.
var ErrIncompatibleFilter = fmt.Errorf("%w: incompatible bloom filter", apperrors.ErrCacheIncompatible)

// SimilarityOptions holds the empirical constants applied by SimilarityWith.
type SimilarityOptions struct {
	// MinSetBits is the popcount below which a filter is too sparse to compare.
	MinSetBits uint
	// SaturationThreshold is the fill ratio above which dampening applies.
	SaturationThreshold float64
	// SaturationExponent is the power applied to (1 - maxFill).
	SaturationExponent float64
}

func DefaultSimilarityOptions() SimilarityOptions {
	return SimilarityOptions{
		MinSetBits:          5,
		SaturationThreshold: 0.4,
		SaturationExponent:  2,
	}
}

// Filter is a bloom filter over strings. It is not safe for concurrent
// mutation; concurrent reads are fine once construction has finished.
type Filter struct {
	size      uint
	hashCount uint
	bits      *bitset.BitSet
}

// New returns an empty filter with sizeBits rounded up to a multiple of
// WordBits.
func New(sizeBits, hashCount uint) (*Filter, error) {
	if sizeBits == 0 {
		return nil, fmt.Errorf("%w: bloom size must be positive", apperrors.ErrInvalidConfig)
	}
	if hashCount == 0 {
		return nil, fmt.Errorf("%w: hash function count must be positive", apperrors.ErrInvalidConfig)
	}
	size := roundUp(sizeBits, WordBits)
	return &Filter{
		size:      size,
		hashCount: hashCount,
		bits:      bitset.New(size),
	}, nil
}

func (f *Filter) Size() uint      { return f.size }
func (f *Filter) HashCount() uint { return f.hashCount }

// Add inserts item.
func (f *Filter) Add(item string) {
	h1, h2, h3 := hashes(item)
	for i := uint(0); i < f.hashCount; i++ {
		f.bits.Set(f.position(i, h1, h2, h3))
	}
}

// Contains reports whether item may have been added. False positives are
// possible, false negatives are not.
func (f *Filter) Contains(item string) bool {
	h1, h2, h3 := hashes(item)
	for i := uint(0); i < f.hashCount; i++ {
		if !f.bits.Test(f.position(i, h1, h2, h3)) {
			return false
		}
	}
	return true
}

func (f *Filter) position(i uint, h1, h2, h3 uint32) uint {
	var h uint64
	switch i {
	case 0:
		h = uint64(h1)
	case 1:
		h = uint64(h2)
	case 2:
		h = uint64(h3)
	default:
		h = uint64(h1) + uint64(i)*uint64(h2)
	}
	return uint(h % uint64(f.size))
}

// Count returns the number of set bits.
func (f *Filter) Count() uint {
	return f.bits.Count()
}

// FillRatio returns the fraction of bits set.
func (f *Filter) FillRatio() float64 {
	return float64(f.bits.Count()) / float64(f.size)
}

// Similarity estimates the Jaccard similarity of the two underlying sets
// using the default options.
func (f *Filter) Similarity(other *Filter) float64 {
	return f.SimilarityWith(other, DefaultSimilarityOptions())
}

// SimilarityWith returns |a∧b| / |a∨b|, or 0 when the filters differ in size
// or either has fewer than opts.MinSetBits bits set. Once either filter's
// fill ratio exceeds opts.SaturationThreshold the estimate is multiplied by
// (1 - maxFill)^opts.SaturationExponent.
func (f *Filter) SimilarityWith(other *Filter, opts SimilarityOptions) float64 {
	if f == nil || other == nil || f.size != other.size {
		return 0
	}
	countA := f.bits.Count()
	countB := other.bits.Count()
	if countA < opts.MinSetBits || countB < opts.MinSetBits {
		return 0
	}
	union := f.bits.UnionCardinality(other.bits)
	if union == 0 {
		return 0
	}
	sim := float64(f.bits.IntersectionCardinality(other.bits)) / float64(union)

	maxFill := math.Max(float64(countA), float64(countB)) / float64(f.size)
	if maxFill > opts.SaturationThreshold {
		sim *= math.Pow(1-maxFill, opts.SaturationExponent)
	}
	return sim
}

// IntersectionCount returns the popcount of a∧b, or 0 on size mismatch. It is
// meant for cheap candidate pre-filtering only.
func (f *Filter) IntersectionCount(other *Filter) uint {
	if f == nil || other == nil || f.size != other.size {
		return 0
	}
	return f.bits.IntersectionCardinality(other.bits)
}

// Serialized is the portable form of a Filter. Bits holds size/32 words,
// least significant bit first.
type Serialized struct {
	Size              uint     `json:"size"`
	HashFunctionCount uint     `json:"hashFunctionCount"`
	Bits              []uint32 `json:"bits"`
}

func (f *Filter) Serialize() Serialized {
	words := f.bits.Words()
	out := make([]uint32, f.size/SerializedWordBits)
	for i, w := range words {
		if 2*i < len(out) {
			out[2*i] = uint32(w)
		}
		if 2*i+1 < len(out) {
			out[2*i+1] = uint32(w >> 32)
		}
	}
	return Serialized{
		Size:              f.size,
		HashFunctionCount: f.hashCount,
		Bits:              out,
	}
}

// Deserialize replaces the contents of f with s. It rejects payloads whose
// size, hash count or bit length differ from f's configuration.
func (f *Filter) Deserialize(s Serialized) error {
	if s.Size != f.size || s.HashFunctionCount != f.hashCount {
		return fmt.Errorf("%w: got size=%d hashes=%d, want size=%d hashes=%d",
			ErrIncompatibleFilter, s.Size, s.HashFunctionCount, f.size, f.hashCount)
	}
	if uint(len(s.Bits)) != f.size/SerializedWordBits {
		return fmt.Errorf("%w: %d words for size %d", ErrIncompatibleFilter, len(s.Bits), f.size)
	}
	words := make([]uint64, f.size/WordBits)
	for i := range words {
		words[i] = uint64(s.Bits[2*i]) | uint64(s.Bits[2*i+1])<<32
	}
	f.bits = bitset.From(words)
	return nil
}

// FromSerialized builds a new filter from s.
func FromSerialized(s Serialized) (*Filter, error) {
	if s.Size%WordBits != 0 {
		return nil, fmt.Errorf("%w: size %d is not word aligned", ErrIncompatibleFilter, s.Size)
	}
	f, err := New(s.Size, s.HashFunctionCount)
	if err != nil {
		return nil, err
	}
	if err := f.Deserialize(s); err != nil {
		return nil, err
	}
	return f, nil
}

// OptimalSize returns the bit count for n items at false-positive rate p,
// rounded up to WordBits.
func OptimalSize(n uint, p float64) uint {
	if n == 0 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}
	bits := math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2))
	return roundUp(uint(bits), WordBits)
}

// OptimalHashCount returns max(1, round(size/n * ln 2)).
func OptimalHashCount(size, n uint) uint {
	if n == 0 {
		return 1
	}
	k := math.Round(float64(size) / float64(n) * math.Ln2)
	if k < 1 {
		return 1
	}
	return uint(k)
}

func roundUp(v, multiple uint) uint {
	if v == 0 {
		return multiple
	}
	return (v + multiple - 1) / multiple * multiple
}
