package sparsebits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/hclink/internal/profile"
)

var testFamilySizes = []int{3, 2, 1, 4, 2}

const testArraySize = 17

func TestSparseRoundTrip(t *testing.T) {
	p, err := profile.Encode("1_2_1_4_1", testFamilySizes, testArraySize, profile.NullResolver{})
	require.NoError(t, err)

	encoded := EncodeSparse(p.Bits, testFamilySizes)
	decoded, err := DecodeSparse(encoded, testFamilySizes, testArraySize)
	require.NoError(t, err)

	assert.Equal(t, p.Bits.Words(), decoded.Words())
}

func TestSparseRoundTripWithGapsAndNovel(t *testing.T) {
	p, err := profile.Encode("_2__99_1", testFamilySizes, testArraySize, profile.NullResolver{})
	require.NoError(t, err)

	encoded := EncodeSparse(p.Bits, testFamilySizes)
	decoded, err := DecodeSparse(encoded, testFamilySizes, testArraySize)
	require.NoError(t, err)

	assert.Equal(t, p.Bits.Words(), decoded.Words())
}

func TestDenseRoundTrip(t *testing.T) {
	p, err := profile.Encode("_2__99_1", testFamilySizes, testArraySize, profile.NullResolver{})
	require.NoError(t, err)

	encoded := EncodeDense(p.Gaps)
	decoded, err := DecodeDense(encoded, len(testFamilySizes))
	require.NoError(t, err)

	assert.Equal(t, p.Gaps.Words(), decoded.Words())
}

func TestDecodeSparseRejectsTruncatedPayload(t *testing.T) {
	_, err := DecodeSparse([]byte{}, testFamilySizes, testArraySize)
	assert.Error(t, err)
}

func TestDecodeDenseRejectsTruncatedPayload(t *testing.T) {
	_, err := DecodeDense([]byte{0x00}, 100)
	assert.Error(t, err)
}
