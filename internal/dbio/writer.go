// Package dbio implements the persistent database layout (design doc section
// 4.3/6.1): a build-time Writer producing metadata.json, profiles.xz,
// gap_profiles.xz, and ST.txt.xz in lockstep, and a query-time Handle
// opening the same artifacts read-only for the search engine.
package dbio

import (
	"bufio"
	"fmt"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/ulikunitz/xz"

	"github.com/grailbio/hclink/internal/profile"
	"github.com/grailbio/hclink/internal/recordio"
	"github.com/grailbio/hclink/internal/scheme"
	"github.com/grailbio/hclink/internal/sparsebits"
)

// DefaultBufSize is the default per-stream bufio buffer size, pre-LZMA,
// mirroring the teacher's encoding/pam/pamwriter.go DefaultMaxBufSize
// pattern (a tunable flush-granularity knob, not a hard record limit).
const DefaultBufSize = 4 << 20

const (
	metadataFile = "metadata.json"
	profilesFile = "profiles.xz"
	gapFile      = "gap_profiles.xz"
	stFile       = "ST.txt.xz"
	allelesFile  = "alleles.db"
)

// WriteOpts configures a Writer.
type WriteOpts struct {
	// BufSize is the bufio buffer size used for each output stream before
	// LZMA compression. If <= 0, DefaultBufSize is used.
	BufSize int
}

func validateWriteOpts(o *WriteOpts) {
	if o.BufSize <= 0 {
		o.BufSize = DefaultBufSize
	}
}

// Writer streams a reference database to dir: one record in each of
// profiles.xz/gap_profiles.xz/ST.txt.xz per call to WriteRow, positionally
// aligned by construction since WriteRow writes one record to all three per
// row. The streams are flushed in Close.
type Writer struct {
	dir         string
	opts        WriteOpts
	familySizes []int
	arraySize   int

	profileOut *bufio.Writer
	profileXZ  *xz.Writer
	profileF   file.File

	gapOut *bufio.Writer
	gapXZ  *xz.Writer
	gapF   file.File

	stOut *bufio.Writer
	stXZ  *xz.Writer
	stF   file.File

	err errors.Once
}

// NewWriter creates dir if necessary and opens the three output streams.
func NewWriter(dir string, familySizes []int, arraySize int, opts WriteOpts) (*Writer, error) {
	validateWriteOpts(&opts)
	w := &Writer{dir: dir, opts: opts, familySizes: familySizes, arraySize: arraySize}

	ctx := vcontext.Background()
	var err error
	if w.profileF, err = file.Create(ctx, filepath.Join(dir, profilesFile)); err != nil {
		return nil, errors.E(err, "dbio: creating", profilesFile)
	}
	w.profileOut = bufio.NewWriterSize(w.profileF.Writer(ctx), opts.BufSize)
	if w.profileXZ, err = xz.NewWriter(w.profileOut); err != nil {
		return nil, errors.E(err, "dbio: opening xz writer for", profilesFile)
	}

	if w.gapF, err = file.Create(ctx, filepath.Join(dir, gapFile)); err != nil {
		return nil, errors.E(err, "dbio: creating", gapFile)
	}
	w.gapOut = bufio.NewWriterSize(w.gapF.Writer(ctx), opts.BufSize)
	if w.gapXZ, err = xz.NewWriter(w.gapOut); err != nil {
		return nil, errors.E(err, "dbio: opening xz writer for", gapFile)
	}

	if w.stF, err = file.Create(ctx, filepath.Join(dir, stFile)); err != nil {
		return nil, errors.E(err, "dbio: creating", stFile)
	}
	w.stOut = bufio.NewWriterSize(w.stF.Writer(ctx), opts.BufSize)
	if w.stXZ, err = xz.NewWriter(w.stOut); err != nil {
		return nil, errors.E(err, "dbio: opening xz writer for", stFile)
	}

	return w, nil
}

// WriteRow appends one reference row: its encoded profile and the ST/HierCC
// line. Must be called in the same order the caller wants rows to appear at
// query time; all three streams advance together.
func (w *Writer) WriteRow(p profile.Profile, row scheme.STRow) {
	if w.err.Err() != nil {
		return
	}
	profilePayload := sparsebits.EncodeSparse(p.Bits, w.familySizes)
	if err := recordio.WriteRecord(w.profileXZ, profilePayload); err != nil {
		w.err.Set(errors.E(err, "dbio: writing profile record"))
		return
	}
	gapPayload := sparsebits.EncodeDense(p.Gaps)
	if err := recordio.WriteRecord(w.gapXZ, gapPayload); err != nil {
		w.err.Set(errors.E(err, "dbio: writing gap record"))
		return
	}
	line := formatSTLine(row)
	if _, err := fmt.Fprintln(w.stXZ, line); err != nil {
		w.err.Set(errors.E(err, "dbio: writing ST record"))
		return
	}
}

func formatSTLine(row scheme.STRow) string {
	out := row.ST
	for _, c := range row.HierCCCodes {
		out += "," + c
	}
	return out
}

// Close flushes and closes all three streams. It must be called exactly
// once. Err returns any error encountered across WriteRow calls or during
// Close itself.
func (w *Writer) Close() error {
	ctx := vcontext.Background()
	closeOne := func(xzw *xz.Writer, buf *bufio.Writer, f file.File, name string) {
		if xzw == nil {
			return
		}
		if err := xzw.Close(); err != nil {
			w.err.Set(errors.E(err, "dbio: closing xz stream", name))
		}
		if err := buf.Flush(); err != nil {
			w.err.Set(errors.E(err, "dbio: flushing", name))
		}
		if err := f.Close(ctx); err != nil {
			w.err.Set(errors.E(err, "dbio: closing file", name))
		}
	}
	closeOne(w.profileXZ, w.profileOut, w.profileF, profilesFile)
	closeOne(w.gapXZ, w.gapOut, w.gapF, gapFile)
	closeOne(w.stXZ, w.stOut, w.stF, stFile)
	return w.err.Err()
}

// Err returns any error recorded so far without closing the writer.
func (w *Writer) Err() error { return w.err.Err() }
