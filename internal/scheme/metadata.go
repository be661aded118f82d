// Package scheme holds the cgMLST scheme metadata and ST/HierCC row types
// shared between the database writer and the search engine. See spec section
// 3 for the data model these types encode.
package scheme

import (
	"encoding/json"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
)

// Metadata is the one-per-database scheme record, serialized as
// metadata.json.
type Metadata struct {
	Version     string `json:"version"`
	Datestamp   string `json:"datestamp"`
	FamilySizes []int  `json:"family_sizes"`
	ArraySize   int    `json:"array_size"`
	MaxGaps     int    `json:"max_gaps"`
	Thresholds  []int  `json:"thresholds"`
	Prepend     string `json:"prepend"`
}

// NumLoci returns L, the number of loci in the scheme.
func (m *Metadata) NumLoci() int { return len(m.FamilySizes) }

// DefaultMaxGaps computes the derived max_gaps cutoff: floor(0.1*L) + 1.
func DefaultMaxGaps(numLoci int) int {
	return numLoci/10 + 1
}

// ArraySize computes sum(familySizes) + L.
func ArraySize(familySizes []int) int {
	total := len(familySizes)
	for _, f := range familySizes {
		total += f
	}
	return total
}

// ReadMetadata reads and parses a metadata.json file.
func ReadMetadata(path string) (*Metadata, error) {
	ctx := vcontext.Background()
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "scheme: opening metadata", path)
	}
	defer f.Close(ctx) // nolint: errcheck
	var m Metadata
	if err := json.NewDecoder(f.Reader(ctx)).Decode(&m); err != nil {
		return nil, errors.E(err, "scheme: decoding metadata", path)
	}
	if len(m.Thresholds) > 0 && m.Prepend == "" {
		return nil, errors.E(errors.Invalid, "scheme: metadata has thresholds but no prepend", path)
	}
	return &m, nil
}

// WriteMetadata serializes m as JSON to path.
func WriteMetadata(path string, m *Metadata) error {
	ctx := vcontext.Background()
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "scheme: creating metadata", path)
	}
	enc := json.NewEncoder(f.Writer(ctx))
	if err := enc.Encode(m); err != nil {
		f.Close(ctx) // nolint: errcheck
		return errors.E(err, "scheme: encoding metadata", path)
	}
	return f.Close(ctx)
}

// STRow is one reference row: an ST id and its per-threshold HierCC codes,
// positionally aligned with Metadata.Thresholds.
type STRow struct {
	ST          string
	HierCCCodes []string
}
