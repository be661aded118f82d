package dbio

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/ulikunitz/xz"

	"github.com/grailbio/hclink/internal/profile"
	"github.com/grailbio/hclink/internal/recordio"
	"github.com/grailbio/hclink/internal/scheme"
	"github.com/grailbio/hclink/internal/sparsebits"
)

// Handle is a read-only, streaming view of a reference database directory,
// used by the search engine (design doc section 4.4). All three streams are
// opened together and must be consumed in lockstep; Next returns io.EOF from
// all three at the same row, by construction of the writer.
type Handle struct {
	Metadata *scheme.Metadata

	dir string

	profileR io.Reader
	profileC io.Closer
	gapR     io.Reader
	gapC     io.Closer
	stLines  *bufio.Scanner
	stC      io.Closer
}

// AlleleDBPath returns the path to the alleles.db file within this database
// directory, for callers that need the allele-hash store too.
func (h *Handle) AlleleDBPath() string {
	return filepath.Join(h.dir, allelesFile)
}

// Open opens a database directory for streaming reads.
func Open(dir string) (*Handle, error) {
	md, err := scheme.ReadMetadata(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, err
	}
	ctx := vcontext.Background()

	profileF, err := file.Open(ctx, filepath.Join(dir, profilesFile))
	if err != nil {
		return nil, errors.E(err, "dbio: opening", profilesFile)
	}
	profileXZ, err := xz.NewReader(bufio.NewReader(profileF.Reader(ctx)))
	if err != nil {
		return nil, errors.E(err, "dbio: opening xz reader for", profilesFile)
	}

	gapF, err := file.Open(ctx, filepath.Join(dir, gapFile))
	if err != nil {
		return nil, errors.E(err, "dbio: opening", gapFile)
	}
	gapXZ, err := xz.NewReader(bufio.NewReader(gapF.Reader(ctx)))
	if err != nil {
		return nil, errors.E(err, "dbio: opening xz reader for", gapFile)
	}

	stF, err := file.Open(ctx, filepath.Join(dir, stFile))
	if err != nil {
		return nil, errors.E(err, "dbio: opening", stFile)
	}
	stXZ, err := xz.NewReader(bufio.NewReader(stF.Reader(ctx)))
	if err != nil {
		return nil, errors.E(err, "dbio: opening xz reader for", stFile)
	}

	return &Handle{
		Metadata: md,
		dir:      dir,
		profileR: profileXZ,
		profileC: profileF,
		gapR:     gapXZ,
		gapC:     gapF,
		stLines:  bufio.NewScanner(stXZ),
		stC:      stF,
	}, nil
}

// Close releases the underlying file handles.
func (h *Handle) Close() error {
	e := errors.Once{}
	e.Set(h.profileC.Close())
	e.Set(h.gapC.Close())
	e.Set(h.stC.Close())
	return e.Err()
}

// Row is one decoded reference row, ready for comparison against a query
// profile.
type Row struct {
	Profile profile.Profile
	ST      scheme.STRow
}

// Next decodes the next reference row. It returns io.EOF when the stream is
// exhausted.
func (h *Handle) Next() (Row, error) {
	profilePayload, err := recordio.ReadRecord(h.profileR)
	if err != nil {
		return Row{}, err
	}
	gapPayload, err := recordio.ReadRecord(h.gapR)
	if err != nil {
		return Row{}, errors.E(err, "dbio: gap stream desynchronized from profile stream")
	}
	if !h.stLines.Scan() {
		if err := h.stLines.Err(); err != nil {
			return Row{}, errors.E(err, "dbio: reading ST stream")
		}
		return Row{}, errors.E(errors.Invalid, "dbio: ST stream desynchronized from profile stream")
	}

	bits, err := sparsebits.DecodeSparse(profilePayload, h.Metadata.FamilySizes, h.Metadata.ArraySize)
	if err != nil {
		return Row{}, err
	}
	gaps, err := sparsebits.DecodeDense(gapPayload, h.Metadata.NumLoci())
	if err != nil {
		return Row{}, err
	}
	st, err := parseSTLine(h.stLines.Text(), len(h.Metadata.Thresholds))
	if err != nil {
		return Row{}, err
	}
	return Row{Profile: profile.Profile{Bits: bits, Gaps: gaps}, ST: st}, nil
}

func parseSTLine(line string, numThresholds int) (scheme.STRow, error) {
	parts := strings.Split(line, ",")
	if len(parts) != numThresholds+1 {
		return scheme.STRow{}, errors.E(errors.Invalid, "dbio: ST row width mismatch")
	}
	return scheme.STRow{ST: parts[0], HierCCCodes: parts[1:]}, nil
}
