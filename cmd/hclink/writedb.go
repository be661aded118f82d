package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"

	"github.com/grailbio/hclink/internal/alleledb"
	"github.com/grailbio/hclink/internal/dbio"
)

// runWriteDB builds a reference database from already-downloaded inputs
// (design doc section 2.3), without touching the network.
func runWriteDB(args []string) error {
	fs := flag.NewFlagSet("write-db", flag.ExitOnError)
	version := fs.String("version", "", "Database version string, embedded in metadata.json.")
	profilesCSV := fs.String("profiles-csv", "profiles.list.gz", "Gzipped, tab-separated cgMLST profiles file.")
	hierccJSON := fs.String("hiercc-profiles-json", "hiercc_profiles.json.gz", "Gzipped HierCC profiles JSON file.")
	dbDir := fs.String("db-dir", ".", "Output database directory.")
	fastaDir := fs.String("fasta-dir", "", "Directory of per-locus allele FASTA files (name.fasta.gz). Defaults to <db-dir>/fasta.")
	parallelism := fs.Int("parallelism", 0, "Parallelism for allele-hash store construction. 0 => one locus at a time.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *version == "" {
		return errors.E(errors.Invalid, "write-db: --version is required")
	}

	resolvedFastaDir := *fastaDir
	if resolvedFastaDir == "" {
		resolvedFastaDir = filepath.Join(*dbDir, "fasta")
	}

	loci, err := dbio.ReadLocusNames(*profilesCSV)
	if err != nil {
		return err
	}
	var alleleLoci []alleledb.Locus
	for i, name := range loci {
		path := filepath.Join(resolvedFastaDir, name+".fasta.gz")
		if _, statErr := os.Stat(path); statErr != nil {
			fmt.Fprintf(os.Stderr, "hclink: warning: no allele FASTA for locus %q, skipping allele-hash store entry\n", name)
			continue
		}
		alleleLoci = append(alleleLoci, alleledb.Locus{Name: name, Index: i, Path: path})
	}

	if err := os.MkdirAll(*dbDir, 0o755); err != nil {
		return errors.E(err, "write-db: creating database directory", *dbDir)
	}

	return dbio.BuildDatabase(dbio.BuildOpts{
		Version:             *version,
		ProfilesCSVPath:     *profilesCSV,
		HierCCJSONPath:      *hierccJSON,
		DBDir:               *dbDir,
		AlleleLoci:          alleleLoci,
		AlleleDBParallelism: *parallelism,
	}, dbio.Now())
}
