// Package sparsebits implements the on-disk encodings named in the design
// doc's profile codec section: a sparse run encoding for profile_bits (most
// per-locus sub-bitmaps carry exactly one set bit) and a dense encoding for
// gap_bits. Framing (length-prefixing, LZMA wrapping) is the caller's
// responsibility; this package only serializes/deserializes the payload.
package sparsebits

import (
	"encoding/binary"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hclink/internal/bitset"
)

// EncodeSparse serializes a profile_bits bitmap as one varint per locus: the
// offset, within that locus's sub-bitmap, of its single set bit. Since at
// most one bit is set per locus's sub-bitmap (spec section 3: the set bit
// may instead live in gap_bits for a gap locus), this is dramatically
// smaller than the dense bitmap for the common case of family sizes in the
// hundreds. A locus whose sub-bitmap has no set bit — a gap — is encoded as
// the out-of-range sentinel `width`, distinct from every real offset
// (0..width-1, the last of which is the novel-allele bit).
func EncodeSparse(bits *bitset.Set, familySizes []int) []byte {
	buf := make([]byte, 0, len(familySizes)*2)
	scratch := make([]byte, binary.MaxVarintLen64)
	offset := 0
	for _, familySize := range familySizes {
		width := familySize + 1
		set := width // sentinel: no bit set in this locus's sub-bitmap (gap)
		for i := 0; i < width; i++ {
			if bits.Test(offset + i) {
				set = i
				break
			}
		}
		n := binary.PutUvarint(scratch, uint64(set))
		buf = append(buf, scratch[:n]...)
		offset += width
	}
	return buf
}

// DecodeSparse is the inverse of EncodeSparse.
func DecodeSparse(data []byte, familySizes []int, arraySize int) (*bitset.Set, error) {
	bits := bitset.New(arraySize)
	offset := 0
	pos := 0
	for _, familySize := range familySizes {
		width := familySize + 1
		set, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return nil, errors.E(errors.Invalid, "sparsebits: truncated sparse profile payload")
		}
		pos += n
		if int(set) > width {
			return nil, errors.E(errors.Invalid, "sparsebits: offset out of range for locus")
		}
		if int(set) < width {
			bits.Set(offset + int(set))
		} // set == width: gap locus, no bit set in this sub-bitmap
		offset += width
	}
	return bits, nil
}

// EncodeDense packs a gap_bits bitmap into ceil(L/8) bytes, bit i at byte
// i/8, bit i%8 (LSB first).
func EncodeDense(gaps *bitset.Set) []byte {
	n := gaps.Len()
	out := make([]byte, (n+7)/8)
	for i := 0; i < n; i++ {
		if gaps.Test(i) {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// DecodeDense is the inverse of EncodeDense.
func DecodeDense(data []byte, nbits int) (*bitset.Set, error) {
	if len(data) < (nbits+7)/8 {
		return nil, errors.E(errors.Invalid, "sparsebits: truncated gap payload")
	}
	gaps := bitset.New(nbits)
	for i := 0; i < nbits; i++ {
		if data[i/8]&(1<<uint(i%8)) != 0 {
			gaps.Set(i)
		}
	}
	return gaps, nil
}
