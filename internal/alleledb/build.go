package alleledb

import (
	"compress/gzip"
	"crypto/sha1" // nolint: gosec
	"encoding/hex"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hclink/internal/fasta"
)

// checksumPrefixLen is the number of hex characters of the SHA-1 digest kept
// as the checksum key (spec section 3: "first 20 hex characters").
const checksumPrefixLen = 20

// Locus names one gzipped allele FASTA file and its index into the scheme's
// family_sizes/profile ordering.
type Locus struct {
	Name  string
	Index int
	Path  string // gzipped FASTA, "{locus}.fasta.gz"
}

// Build ingests one gzipped FASTA file per locus into a freshly created
// alleles.db, hashing each allele's lowercased sequence to its checksum
// prefix. Loci are ingested with bounded parallelism
// (design doc: encoding/pam/pamwriter.go's WriteParallelism pattern), each
// goroutine accumulating its own batch and flushing it through BulkInsert so
// SQLite's single-writer lock is held only briefly per batch.
func Build(dbPath string, loci []Locus, parallelism int) error {
	store, err := Create(dbPath)
	if err != nil {
		return err
	}
	defer store.insertStmt.Close() // nolint: errcheck

	if parallelism <= 0 {
		parallelism = 1
	}
	if parallelism > len(loci) {
		parallelism = len(loci)
	}
	// Shard loci across a fixed number of worker goroutines, following the
	// teacher's traverse.Each(parallelism, ...) job-sharding idiom
	// (pileup/snp/pileup.go) rather than one goroutine per locus: SQLite
	// serializes writers internally, so unbounded per-locus concurrency
	// would just queue on the same lock.
	nLoci := len(loci)
	err = traverse.Each(parallelism, func(jobIdx int) error {
		startIdx := (jobIdx * nLoci) / parallelism
		endIdx := ((jobIdx + 1) * nLoci) / parallelism
		for _, locus := range loci[startIdx:endIdx] {
			if err := ingestLocus(store, locus); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		store.db.Close() // nolint: errcheck
		return errors.E(err, "alleledb: build failed")
	}
	if err := store.Finalize(); err != nil {
		return err
	}
	return nil
}

func ingestLocus(store *Store, locus Locus) error {
	ctx := vcontext.Background()
	f, err := file.Open(ctx, locus.Path)
	if err != nil {
		return errors.E(err, "alleledb: opening locus FASTA", locus.Path)
	}
	defer f.Close(ctx) // nolint: errcheck

	gz, err := gzip.NewReader(f.Reader(ctx))
	if err != nil {
		return errors.E(err, "alleledb: opening gzip stream", locus.Path)
	}
	defer gz.Close() // nolint: errcheck

	const batchSize = 2000
	batch := make([]Entry, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := store.BulkInsert(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	err = fasta.Scan(gz, func(rec fasta.Record) error {
		sum := sha1.Sum([]byte(rec.Sequence)) // nolint: gosec
		checksum := hex.EncodeToString(sum[:])[:checksumPrefixLen]
		batch = append(batch, Entry{Checksum: checksum, Locus: locus.Index, AlleleID: rec.AlleleID})
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return errors.E(err, "alleledb: scanning locus FASTA", locus.Path)
	}
	return flush()
}

// LocusName derives the locus name from a FASTA filename of the form
// "{locus}.fasta.gz", matching the original's
// `filename.stem.replace(".fasta", "")`.
func LocusName(path string) string {
	base := filepath.Base(path)
	base = trimSuffix(base, ".gz")
	base = trimSuffix(base, ".fasta")
	return base
}

func trimSuffix(s, suffix string) string {
	if len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)]
	}
	return s
}
