// Package hiercc implements the HierCC distance transform and the
// threshold-layer code inference it feeds (design doc sections 4.5/4.6).
// Both are pure functions over the (distance, gaps, profileSize) tuple
// produced by package profile's Compare.
package hiercc

import (
	"strconv"

	"github.com/grailbio/base/errors"
)

// Distance computes the HierCC distance from a raw profile comparison.
// All arithmetic is float32, matching the original implementation's
// numba-compiled kernel (@jit(float32(...))): this is not a precision
// accident to be "fixed" by widening to float64, it is the value the
// downstream threshold comparisons were calibrated against.
//
// Worked example (L=5): distance=2, no gaps on either side gives
// queryCore = 5 - 0.03*5 = 4.85, commonCore = 5, and since commonCore >=
// queryCore, the result is 5*2/5 + 0.5 = 2.5.
func Distance(distance, queryGaps, refGaps, sharedGaps, profileSize int) float32 {
	L := float32(profileSize)
	if distance >= profileSize {
		return L
	}
	if distance == 0 && queryGaps == 0 && refGaps == 0 {
		return 0.0
	}
	queryCore := L - float32(queryGaps) - float32(sharedGaps) - 0.03*L
	commonCore := L - float32(queryGaps) - float32(refGaps) - float32(sharedGaps)
	if commonCore >= queryCore {
		if commonCore == 0 {
			return L
		}
		return L*float32(distance)/commonCore + 0.5
	}
	if queryCore == 0 {
		return L
	}
	return L*(float32(distance)+queryCore-commonCore)/queryCore + 0.5
}

// LabeledCode is one (threshold label, cluster code) pair, e.g.
// ("d50", "12345") or ("d50", "") when the HierCC distance exceeds the
// threshold.
type LabeledCode struct {
	Label string
	Code  string
}

// InferCode projects a HierCC distance through each clustering threshold,
// per design doc section 4.6: codes[j] is emitted only when dist is within
// thresholds[j], otherwise the code at that layer is reported empty.
//
// An empty codes slice is treated as "no HierCC data for this ST" and
// widened to len(thresholds) empty strings. Any other length mismatch is a
// SchemaMismatch.
func InferCode(dist float32, thresholds []int, codes []string, prepend string) ([]LabeledCode, error) {
	if len(codes) == 0 {
		codes = make([]string, len(thresholds))
	}
	if len(codes) != len(thresholds) {
		return nil, errors.E(errors.Invalid, "hiercc: schema mismatch: codes/thresholds length differ")
	}
	out := make([]LabeledCode, len(thresholds))
	for i, t := range thresholds {
		code := ""
		if dist <= float32(t) {
			code = codes[i]
		}
		out[i] = LabeledCode{Label: labelFor(prepend, t), Code: code}
	}
	return out, nil
}

func labelFor(prepend string, threshold int) string {
	return prepend + strconv.Itoa(threshold)
}
