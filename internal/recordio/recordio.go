// Package recordio implements the length-prefixed record framing shared by
// profiles.xz and gap_profiles.xz (design doc section 4.1/6.1): each record
// is a little-endian u32 length prefix followed by its payload, the whole
// stream then wrapped in LZMA. This mirrors the teacher's
// encoding/pam/fieldio block-framing idiom, simplified to one length-prefixed
// blob per call rather than a buffered multi-field block.
package recordio

import (
	"encoding/binary"
	"io"

	"github.com/grailbio/base/errors"
)

// WriteRecord writes a single length-prefixed record to w.
func WriteRecord(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errors.E(err, "recordio: writing length prefix")
	}
	if _, err := w.Write(payload); err != nil {
		return errors.E(err, "recordio: writing payload")
	}
	return nil
}

// ReadRecord reads a single length-prefixed record from r. It returns
// io.EOF (unwrapped) when the stream is exhausted cleanly between records,
// and a wrapped IOFailure-class error on a truncated record.
func ReadRecord(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.E(err, "recordio: truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.E(err, "recordio: truncated payload")
	}
	return payload, nil
}
