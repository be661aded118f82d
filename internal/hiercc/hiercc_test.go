package hiercc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func almostEqual(t *testing.T, want, got float32) {
	t.Helper()
	assert.True(t, math.Abs(float64(want-got)) < 1e-4, "want %v got %v", want, got)
}

func TestDistanceScenarios(t *testing.T) {
	cases := []struct {
		name                           string
		distance, qGaps, rGaps, shared int
		profileSize                    int
		want                           float32
	}{
		{"identity-with-shared-gaps", 0, 0, 0, 2, 5, 0.0},
		{"identity-no-gaps", 0, 0, 0, 0, 5, 0.0},
		{"one-sub", 1, 0, 0, 0, 5, 1.5},
		{"two-subs", 2, 0, 0, 0, 5, 2.5},
		// queryCore = 3.85, commonCore = 4: 5*0/4 + 0.5.
		{"query-only-gap", 0, 1, 0, 0, 5, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Distance(tc.distance, tc.qGaps, tc.rGaps, tc.shared, tc.profileSize)
			almostEqual(t, tc.want, got)
		})
	}
}

func TestDistanceFailedComparisonReturnsProfileSize(t *testing.T) {
	got := Distance(5, 0, 0, 0, 5)
	almostEqual(t, 5.0, got)
	got = Distance(9, 0, 0, 0, 5)
	almostEqual(t, 5.0, got)
}

func TestDistanceZeroCoreIsSafe(t *testing.T) {
	// commonCore == 0: profileSize - qGaps - rGaps - shared == 0, and
	// queryCore = 5 - 3 - 2 - 0.15 < commonCore, so the commonCore branch
	// returns profileSize instead of dividing by zero.
	got := Distance(1, 3, 0, 2, 5)
	almostEqual(t, 5.0, got)
}

func TestInferCodeEmptyProfile(t *testing.T) {
	thresholds := []int{0, 2, 5, 10}
	codes, err := InferCode(0.0, thresholds, nil, "d")
	require.NoError(t, err)
	require.Len(t, codes, 4)
	for _, c := range codes {
		assert.Equal(t, "", c.Code)
	}
	assert.Equal(t, "d0", codes[0].Label)
}

func TestInferCodeSchemaMismatch(t *testing.T) {
	_, err := InferCode(1.0, []int{0, 2, 5}, []string{"a", "b"}, "d")
	require.Error(t, err)
}

func TestInferCodeMonotonicity(t *testing.T) {
	thresholds := []int{0, 2, 5, 10, 20}
	codes := []string{"c0", "c2", "c5", "c10", "c20"}
	for _, dist := range []float32{0, 1.5, 3, 7, 15, 25} {
		out, err := InferCode(dist, thresholds, codes, "d")
		require.NoError(t, err)
		seenNonEmpty := false
		for i := range out {
			if out[i].Code != "" {
				seenNonEmpty = true
			} else if seenNonEmpty {
				// Thresholds are ascending; once a lower one goes empty,
				// higher ones can still be non-empty, but never the other
				// way for the SAME pass through an ascending threshold
				// list applied to a single, fixed distance.
				t.Fatalf("non-monotonic at dist=%v: %+v", dist, out)
			}
		}
	}
}

func TestInferCodeLabels(t *testing.T) {
	out, err := InferCode(0, []int{0, 50, 2850}, []string{"a", "b", "c"}, "HC")
	require.NoError(t, err)
	assert.Equal(t, "HC0", out[0].Label)
	assert.Equal(t, "HC50", out[1].Label)
	assert.Equal(t, "HC2850", out[2].Label)
}
