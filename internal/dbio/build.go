package dbio

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/grailbio/base/errors"

	"github.com/grailbio/hclink/internal/alleledb"
	"github.com/grailbio/hclink/internal/profile"
	"github.com/grailbio/hclink/internal/scheme"
)

// hierCCRecord mirrors one element of the upstream HierCC JSON array: a
// record has an ST_id and, when clustered, an info.hierCC map from
// threshold-key ("d50", "HC50", ...) to cluster label.
type hierCCRecord struct {
	STID string `json:"ST_id"`
	Info struct {
		HierCC map[string]string `json:"hierCC"`
	} `json:"info"`
}

var trailingDigits = regexp.MustCompile(`[0-9]+$`)

// ParseHierCCProfiles reads a gzipped HierCC JSON file (design doc section
// 2.3) and returns the per-ST HierCC codes, the common key prefix
// ("d"/"HC"/...), and the sorted integer thresholds — exactly
// original_source/src/hclink/build.py: read_raw_hiercc_profiles.
func ParseHierCCProfiles(path string) (byST map[string][]string, prepend string, thresholds []int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", nil, errors.E(err, "dbio: opening HierCC JSON", path)
	}
	defer f.Close() // nolint: errcheck

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, "", nil, errors.E(err, "dbio: opening gzip stream", path)
	}
	defer gz.Close() // nolint: errcheck

	var records []hierCCRecord
	if err := json.NewDecoder(gz).Decode(&records); err != nil {
		return nil, "", nil, errors.E(err, "dbio: decoding HierCC JSON", path)
	}
	if len(records) == 0 {
		return nil, "", nil, errors.E(errors.Invalid, "dbio: empty HierCC profiles file", path)
	}

	first := records[0].Info.HierCC
	if len(first) == 0 {
		return nil, "", nil, errors.E(errors.Invalid, "dbio: first HierCC record has no hierCC data", path)
	}
	for key := range first {
		prepend = trailingDigits.ReplaceAllString(key, "")
		break
	}
	for key := range first {
		n, convErr := strconv.Atoi(trailingDigits.FindString(key))
		if convErr != nil {
			return nil, "", nil, errors.E(convErr, "dbio: non-numeric HierCC threshold key", key)
		}
		thresholds = append(thresholds, n)
	}
	sort.Ints(thresholds)

	byST = make(map[string][]string, len(records))
	for _, rec := range records {
		if len(rec.Info.HierCC) == 0 {
			continue
		}
		st, convErr := strconv.Atoi(rec.STID)
		if convErr != nil || st < 1 {
			continue
		}
		codes := make([]string, len(thresholds))
		for key, label := range rec.Info.HierCC {
			n, _ := strconv.Atoi(trailingDigits.FindString(key))
			idx := sort.SearchInts(thresholds, n)
			if idx < len(thresholds) && thresholds[idx] == n {
				codes[idx] = label
			}
		}
		byST[rec.STID] = codes
	}
	return byST, prepend, thresholds, nil
}

// ReadLocusNames reads just the header row of a gzipped, tab-separated
// profiles CSV and returns the locus names in column order, for callers that
// need to fetch one allele FASTA per locus before building alleles.db.
func ReadLocusNames(profilesCSVPath string) ([]string, error) {
	f, err := os.Open(profilesCSVPath)
	if err != nil {
		return nil, errors.E(err, "dbio: opening profiles CSV", profilesCSVPath)
	}
	defer f.Close() // nolint: errcheck

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.E(err, "dbio: opening gzip stream", profilesCSVPath)
	}
	defer gz.Close() // nolint: errcheck

	reader := csv.NewReader(bufio.NewReader(gz))
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, errors.E(err, "dbio: reading profiles CSV header", profilesCSVPath)
	}
	return header[1:], nil
}

// DeriveFamilySizes scans a gzipped, tab-separated profiles CSV (header row
// "ST\t<locus1>\t<locus2>...", data rows "ST\t<allele1>\t<allele2>...") and
// computes the highest allele ID observed at each locus, per spec section
// 4.3 step 1. Values <= 0 are treated as gaps and ignored.
func DeriveFamilySizes(profilesCSVPath string) (familySizes []int, numLoci int, err error) {
	f, err := os.Open(profilesCSVPath)
	if err != nil {
		return nil, 0, errors.E(err, "dbio: opening profiles CSV", profilesCSVPath)
	}
	defer f.Close() // nolint: errcheck

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, 0, errors.E(err, "dbio: opening gzip stream", profilesCSVPath)
	}
	defer gz.Close() // nolint: errcheck

	reader := csv.NewReader(bufio.NewReader(gz))
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, errors.E(err, "dbio: reading profiles CSV header", profilesCSVPath)
	}
	numLoci = len(header) - 1
	familySizes = make([]int, numLoci)

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, errors.E(err, "dbio: reading profiles CSV row", profilesCSVPath)
		}
		for i := 1; i < len(row); i++ {
			v, convErr := strconv.Atoi(row[i])
			if convErr != nil {
				continue
			}
			if v > familySizes[i-1] {
				familySizes[i-1] = v
			}
		}
	}
	return familySizes, numLoci, nil
}

// BuildOpts configures BuildDatabase.
type BuildOpts struct {
	Version             string
	ProfilesCSVPath     string
	HierCCJSONPath      string
	DBDir               string
	MaxGaps             int // 0 => scheme.DefaultMaxGaps(L)
	AlleleLoci          []alleledb.Locus
	AlleleDBParallelism int
}

// BuildDatabase implements spec section 4.3 end to end: derive family sizes
// (or reuse a preexisting metadata.json, matching the original's caching
// behavior on re-run), parse the HierCC JSON, stream-encode the profiles CSV
// into the three positionally-aligned output streams, and write
// metadata.json last so a reader never observes a metadata file whose
// companion streams are incomplete.
func BuildDatabase(opts BuildOpts, datestamp string) error {
	metadataPath := filepath.Join(opts.DBDir, metadataFile)

	var familySizes []int
	var arraySize int
	if existing, err := scheme.ReadMetadata(metadataPath); err == nil {
		familySizes = existing.FamilySizes
		arraySize = existing.ArraySize
	} else {
		familySizes, _, err = DeriveFamilySizes(opts.ProfilesCSVPath)
		if err != nil {
			return err
		}
		arraySize = profile.ArraySize(familySizes)
	}

	byST, prepend, thresholds, err := ParseHierCCProfiles(opts.HierCCJSONPath)
	if err != nil {
		return err
	}

	maxGaps := opts.MaxGaps
	if maxGaps <= 0 {
		maxGaps = scheme.DefaultMaxGaps(len(familySizes))
	}

	w, err := NewWriter(opts.DBDir, familySizes, arraySize, WriteOpts{})
	if err != nil {
		return err
	}

	if err := streamEncodeProfiles(opts.ProfilesCSVPath, familySizes, arraySize, byST, thresholds, w); err != nil {
		w.Close() // nolint: errcheck
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	if len(opts.AlleleLoci) > 0 {
		alleleDBPath := filepath.Join(opts.DBDir, allelesFile)
		if err := alleledb.Build(alleleDBPath, opts.AlleleLoci, opts.AlleleDBParallelism); err != nil {
			return err
		}
	}

	md := &scheme.Metadata{
		Version:     opts.Version,
		Datestamp:   datestamp,
		FamilySizes: familySizes,
		ArraySize:   arraySize,
		MaxGaps:     maxGaps,
		Thresholds:  thresholds,
		Prepend:     prepend,
	}
	return scheme.WriteMetadata(metadataPath, md)
}

func streamEncodeProfiles(csvPath string, familySizes []int, arraySize int, byST map[string][]string, thresholds []int, w *Writer) error {
	f, err := os.Open(csvPath)
	if err != nil {
		return errors.E(err, "dbio: opening profiles CSV", csvPath)
	}
	defer f.Close() // nolint: errcheck
	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.E(err, "dbio: opening gzip stream", csvPath)
	}
	defer gz.Close() // nolint: errcheck

	reader := csv.NewReader(bufio.NewReader(gz))
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil { // header
		return errors.E(err, "dbio: reading profiles CSV header", csvPath)
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.E(err, "dbio: reading profiles CSV row", csvPath)
		}
		code := buildCodeString(row[1:])
		p, err := profile.Encode(code, familySizes, arraySize, profile.NullResolver{})
		if err != nil {
			return errors.E(err, "dbio: encoding profile for ST", row[0])
		}
		st := row[0]
		codes := byST[st]
		if len(codes) == 0 {
			codes = make([]string, len(thresholds))
		}
		w.WriteRow(p, scheme.STRow{ST: st, HierCCCodes: codes})
		if err := w.Err(); err != nil {
			return err
		}
	}
	return nil
}

func buildCodeString(alleles []string) string {
	out := ""
	for i, v := range alleles {
		if i > 0 {
			out += "_"
		}
		if v == "0" {
			continue
		}
		out += v
	}
	return out
}

// Now returns the current time formatted the way metadata.Datestamp expects.
// Exists so callers don't need to import time directly for this one field.
func Now() string {
	return time.Now().Format(time.RFC3339)
}
