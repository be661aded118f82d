package fasta

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanParsesRecords(t *testing.T) {
	input := ">abc_1\nACGT\nacgt\n>abc_2 some description\nTTTT\n"
	var got []Record
	err := Scan(strings.NewReader(input), func(r Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Record{Gene: "abc", AlleleID: 1, Sequence: "acgtacgt"}, got[0])
	assert.Equal(t, Record{Gene: "abc", AlleleID: 2, Sequence: "tttt"}, got[1])
}

func TestScanSkipsBlankLines(t *testing.T) {
	input := ">abc_1\nACGT\n\nACGT\n"
	var got []Record
	err := Scan(strings.NewReader(input), func(r Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "acgtacgt", got[0].Sequence)
}

func TestScanRejectsHeaderWithoutAlleleID(t *testing.T) {
	err := Scan(strings.NewReader(">abc\nACGT\n"), func(Record) error { return nil })
	assert.Error(t, err)
}

func TestScanRejectsNonNumericAlleleID(t *testing.T) {
	err := Scan(strings.NewReader(">abc_x\nACGT\n"), func(Record) error { return nil })
	assert.Error(t, err)
}

func TestScanPropagatesCallbackError(t *testing.T) {
	boom := assert.AnError
	err := Scan(strings.NewReader(">abc_1\nACGT\n"), func(Record) error { return boom })
	assert.ErrorIs(t, err, boom)
}
