// Package profile implements the cgMLST allelic profile codec and the
// gap-aware comparison at the core of nearest-neighbor assignment: encoding
// an underscore-joined allelic code into a pair of bitmaps (section 4.1 of
// the design), and comparing two such pairs to recover a Hamming-like
// distance plus gap bookkeeping.
package profile

import (
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hclink/internal/bitset"
)

// Profile is the encoded form of one isolate's (or one reference row's)
// allelic code: a profile bitmap partitioned into one sub-bitmap per locus,
// and a parallel gap bitmap with one bit per locus.
type Profile struct {
	Bits *bitset.Set // width == ArraySize(familySizes)
	Gaps *bitset.Set // width == len(familySizes)
}

// Resolver resolves a textual allele checksum to the canonical numeric
// allele ID it represents. This replaces the callable the original
// implementation threaded into its encoder (design section 4.1/9): the build
// phase supplies NullResolver (everything unresolved becomes a novel
// allele), the query phase supplies an allele-hash-store-backed resolver.
//
// ok is false exactly when the checksum is unknown. That is not an error
// (spec LookupMiss): the caller falls back to the novel bit.
type Resolver interface {
	Lookup(checksum string, locus int) (id int, ok bool)
}

// NullResolver never resolves a checksum; every textual token becomes a
// novel allele. Used when building the database, where no allele-hash store
// has been populated yet for the row being ingested.
type NullResolver struct{}

func (NullResolver) Lookup(string, int) (int, bool) { return 0, false }

// ArraySize computes the total encoded profile width: sum(familySizes) + L.
func ArraySize(familySizes []int) int {
	total := len(familySizes)
	for _, f := range familySizes {
		total += f
	}
	return total
}

// Encode converts an underscore-delimited allelic code into its bitmap
// encoding, consulting resolver for any non-numeric token. familySizes must
// have exactly L entries; arraySize must equal ArraySize(familySizes).
func Encode(code string, familySizes []int, arraySize int, resolver Resolver) (Profile, error) {
	tokens := strings.Split(code, "_")
	if len(tokens) != len(familySizes) {
		return Profile{}, errors.E(errors.Invalid, "profile: token count mismatch",
			strconv.Itoa(len(tokens)), "!=", strconv.Itoa(len(familySizes)))
	}

	bits := bitset.New(arraySize)
	gaps := bitset.New(len(familySizes))

	offset := 0
	for i, tok := range tokens {
		familySize := familySizes[i]
		switch {
		case tok == "" || tok == "0":
			gaps.Set(i)
		case isNumeric(tok):
			n, err := strconv.Atoi(tok)
			if err != nil {
				return Profile{}, errors.E(errors.Invalid, "profile: malformed numeric token", tok)
			}
			if n <= 0 {
				gaps.Set(i)
			} else if n <= familySize {
				bits.Set(offset + n - 1)
			} else {
				bits.Set(offset + familySize) // novel bit
			}
		default:
			if id, ok := resolver.Lookup(tok, i); ok && id <= familySize {
				bits.Set(offset + id - 1)
			} else {
				bits.Set(offset + familySize) // novel bit
			}
		}
		offset += familySize + 1
	}
	if bits.Len() != arraySize {
		return Profile{}, errors.E(errors.Invalid, "profile: encoded width mismatch")
	}
	return Profile{Bits: bits, Gaps: gaps}, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Comparison is the result of comparing two profiles: the gap-corrected
// allele distance plus the three gap-overlap counts.
type Comparison struct {
	Distance      int
	QueryOnlyGaps int
	RefOnlyGaps   int
	SharedGaps    int
}

// Compare computes the distance between query and ref per spec section 4.1:
// the XOR popcount over the allele bitmaps, corrected for unilateral gaps,
// halved because every differing non-gap locus contributes exactly two set
// bits to the XOR.
func Compare(query, ref Profile) Comparison {
	sharedGaps := query.Gaps.AndPopCount(ref.Gaps)
	queryGaps := query.Gaps.PopCount() - sharedGaps
	refGaps := ref.Gaps.PopCount() - sharedGaps
	rawBits := query.Bits.XorPopCount(ref.Bits)
	distance := (rawBits - (queryGaps + refGaps)) / 2
	return Comparison{
		Distance:      distance,
		QueryOnlyGaps: queryGaps,
		RefOnlyGaps:   refGaps,
		SharedGaps:    sharedGaps,
	}
}
