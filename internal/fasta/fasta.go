// Package fasta streams allele FASTA records (header ">{locus}_{allele_id}",
// nucleotide body) for the allele-hash store build ingestion. Unlike the
// teacher's encoding/fasta package, which indexes an entire multi-sequence
// file for random access, this is a single forward pass: allele-hash
// ingestion reads each sequence exactly once and never seeks back.
package fasta

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const bufferInitSize = 1 << 20

// Record is one allele sequence: the gene/locus name and allele ID parsed
// out of its header, and the lowercased, newline-stripped nucleotide
// sequence.
type Record struct {
	Gene     string
	AlleleID int
	Sequence string
}

// ScanFunc is called once per record found in the stream.
type ScanFunc func(Record) error

// Scan reads FASTA records of the form ">{gene}_{alleleID}" from r, calling
// fn for each complete record. gene is expected to be constant across the
// file (one file per locus, as produced by the downloader); Scan does not
// enforce this, it only parses whatever prefix precedes the trailing
// "_{alleleID}" in each header.
func Scan(r io.Reader, fn ScanFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, bufferInitSize)

	var gene string
	var alleleID int
	var seq strings.Builder
	haveRecord := false

	flush := func() error {
		if !haveRecord {
			return nil
		}
		if err := fn(Record{Gene: gene, AlleleID: alleleID, Sequence: seq.String()}); err != nil {
			return err
		}
		seq.Reset()
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			if err := flush(); err != nil {
				return err
			}
			g, id, err := parseHeader(line[1:])
			if err != nil {
				return errors.Wrap(err, "fasta: malformed header")
			}
			gene, alleleID = g, id
			haveRecord = true
			continue
		}
		seq.WriteString(strings.ToLower(strings.TrimSpace(line)))
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "fasta: reading stream")
	}
	return flush()
}

// parseHeader splits "{gene}_{alleleID}" (optionally followed by a space and
// free-text description, which is ignored, matching the teacher's
// "sequence names are the stretch of characters...after '>'" rule) into its
// two parts.
func parseHeader(header string) (gene string, alleleID int, err error) {
	header = strings.Split(header, " ")[0]
	idx := strings.LastIndex(header, "_")
	if idx < 0 || idx == len(header)-1 {
		return "", 0, errors.Errorf("header %q has no trailing _alleleID", header)
	}
	gene = header[:idx]
	alleleID, err = strconv.Atoi(header[idx+1:])
	if err != nil {
		return "", 0, errors.Wrapf(err, "header %q has non-numeric allele id", header)
	}
	return gene, alleleID, nil
}
