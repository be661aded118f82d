package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/hclink/internal/dbio"
	"github.com/grailbio/hclink/internal/profile"
	"github.com/grailbio/hclink/internal/scheme"
)

// testFamilySizes/testArraySize mirror the spec's worked example (L=5,
// family_sizes=[3,2,1,4,2]).
var testFamilySizes = []int{3, 2, 1, 4, 2}

const testArraySize = 17

func buildTestDB(t *testing.T, rows []scheme.STRow, codes []string) string {
	t.Helper()
	dir := t.TempDir()
	w, err := dbio.NewWriter(dir, testFamilySizes, testArraySize, dbio.WriteOpts{})
	require.NoError(t, err)
	for i, row := range rows {
		p, err := profile.Encode(codes[i], testFamilySizes, testArraySize, profile.NullResolver{})
		require.NoError(t, err)
		w.WriteRow(p, row)
		require.NoError(t, w.Err())
	}
	require.NoError(t, w.Close())

	md := &scheme.Metadata{
		Version:     "test",
		Datestamp:   "2026-01-01",
		FamilySizes: testFamilySizes,
		ArraySize:   testArraySize,
		MaxGaps:     scheme.DefaultMaxGaps(len(testFamilySizes)),
		Thresholds:  []int{5, 10},
		Prepend:     "d",
	}
	require.NoError(t, scheme.WriteMetadata(dir+"/metadata.json", md))
	return dir
}

func TestSearchExactMatchWins(t *testing.T) {
	dir := buildTestDB(t,
		[]scheme.STRow{
			{ST: "1", HierCCCodes: []string{"10", "20"}},
			{ST: "2", HierCCCodes: []string{"11", "21"}},
		},
		[]string{"1_1_1_1_1", "1_1_1_2_1"},
	)
	h, err := dbio.Open(dir)
	require.NoError(t, err)
	defer h.Close() // nolint: errcheck

	query, err := profile.Encode("1_1_1_1_1", testFamilySizes, testArraySize, profile.NullResolver{})
	require.NoError(t, err)

	hit, err := Search(context.Background(), query, h, scheme.DefaultMaxGaps(5), Opts{})
	require.NoError(t, err)
	assert.Equal(t, "1", hit.ST)
	assert.Equal(t, float32(0), hit.HierCCDist)
}

func TestSearchTieBreaksOnLexicalST(t *testing.T) {
	// Both references are 1 substitution away from the query, with the same
	// HierCC distance and the same total gaps (none); the lexicographically
	// lower ST, "10", should win over "9".
	dir := buildTestDB(t,
		[]scheme.STRow{
			{ST: "9", HierCCCodes: []string{"", ""}},
			{ST: "10", HierCCCodes: []string{"", ""}},
		},
		[]string{"2_1_1_1_1", "2_1_1_1_1"},
	)
	h, err := dbio.Open(dir)
	require.NoError(t, err)
	defer h.Close() // nolint: errcheck

	query, err := profile.Encode("1_1_1_1_1", testFamilySizes, testArraySize, profile.NullResolver{})
	require.NoError(t, err)

	hit, err := Search(context.Background(), query, h, scheme.DefaultMaxGaps(5), Opts{ChunkSize: 1})
	require.NoError(t, err)
	assert.Equal(t, "10", hit.ST)
}

func TestSearchQueryAllGapsIsSentinel(t *testing.T) {
	dir := buildTestDB(t,
		[]scheme.STRow{{ST: "1", HierCCCodes: []string{"", ""}}},
		[]string{"1_1_1_1_1"},
	)
	h, err := dbio.Open(dir)
	require.NoError(t, err)
	defer h.Close() // nolint: errcheck

	query, err := profile.Encode("____", testFamilySizes, testArraySize, profile.NullResolver{})
	require.NoError(t, err)

	maxGaps := scheme.DefaultMaxGaps(5)
	hit, err := Search(context.Background(), query, h, maxGaps, Opts{})
	require.NoError(t, err)
	assert.Equal(t, "", hit.ST)
	assert.True(t, hit.HierCCDist > 0)
	assert.Equal(t, -1, hit.RefOnlyGaps)
}

func TestSearchEmptyDatabaseIsSentinel(t *testing.T) {
	dir := buildTestDB(t, nil, nil)
	h, err := dbio.Open(dir)
	require.NoError(t, err)
	defer h.Close() // nolint: errcheck

	query, err := profile.Encode("1_1_1_1_1", testFamilySizes, testArraySize, profile.NullResolver{})
	require.NoError(t, err)

	hit, err := Search(context.Background(), query, h, scheme.DefaultMaxGaps(5), Opts{})
	require.NoError(t, err)
	assert.Equal(t, "", hit.ST)
}

func TestSearchMaxGapsEqualityIsExcluded(t *testing.T) {
	// refOK shares the query's single gap and matches everywhere else:
	// total gaps = 1, admitted at maxGaps=2. refTooGappy adds one more
	// ref-only gap: total gaps = 2, rejected (>= maxGaps excludes equality).
	dir := buildTestDB(t,
		[]scheme.STRow{
			{ST: "refTooGappy", HierCCCodes: []string{"", ""}},
			{ST: "refOK", HierCCCodes: []string{"", ""}},
		},
		[]string{"__1_1_1", "_1_1_1_1"},
	)
	h, err := dbio.Open(dir)
	require.NoError(t, err)
	defer h.Close() // nolint: errcheck

	query, err := profile.Encode("_1_1_1_1", testFamilySizes, testArraySize, profile.NullResolver{})
	require.NoError(t, err)

	hit, err := Search(context.Background(), query, h, 2, Opts{})
	require.NoError(t, err)
	assert.Equal(t, "refOK", hit.ST)
}

func TestAssignProjectsThroughThresholds(t *testing.T) {
	dir := buildTestDB(t,
		[]scheme.STRow{{ST: "1", HierCCCodes: []string{"100", "200"}}},
		[]string{"1_1_1_1_1"},
	)
	h, err := dbio.Open(dir)
	require.NoError(t, err)
	defer h.Close() // nolint: errcheck

	query, err := profile.Encode("1_1_1_1_1", testFamilySizes, testArraySize, profile.NullResolver{})
	require.NoError(t, err)

	md, err := scheme.ReadMetadata(dir + "/metadata.json")
	require.NoError(t, err)

	result, err := Assign(context.Background(), query, h, md, Opts{})
	require.NoError(t, err)
	assert.Equal(t, "1", result.ST)
	require.Len(t, result.Codes, 2)
	assert.Equal(t, "d5", result.Codes[0].Label)
	assert.Equal(t, "100", result.Codes[0].Code)
}
