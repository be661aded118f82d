package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"

	"github.com/grailbio/hclink/internal/alleledb"
	"github.com/grailbio/hclink/internal/dbio"
	"github.com/grailbio/hclink/internal/download"
	"github.com/grailbio/hclink/internal/schemes"
)

const (
	hierCCPageSize    = 10000
	hierCCSafetyValve = 50 * hierCCPageSize
)

// runBuild downloads a scheme's profiles, HierCC codes, and per-locus allele
// FASTA files, then builds the reference database the same way write-db
// does (design doc section 2.3).
func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	version := fs.String("version", "", "Database version string, embedded in metadata.json.")
	apiKey := fs.String("api-key", "", "Basic-auth API key for the HierCC profile API.")
	species := fs.String("species", "", "Species scheme name, resolved against the bundled scheme table.")
	downloads := fs.String("downloads", "", "Directory for downloaded raw inputs. Defaults to ./<species>.")
	clean := fs.Bool("clean", false, "Remove the downloads directory before starting, forcing a full re-download.")
	dbDir := fs.String("db-dir", "", "Output database directory. Defaults to the downloads directory.")
	parallelism := fs.Int("parallelism", 0, "Parallelism for allele-hash store construction. 0 => one locus at a time.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *version == "" || *apiKey == "" || *species == "" {
		return errors.E(errors.Invalid, "build: --version, --api-key, and --species are required")
	}

	info, err := schemes.Resolve(*species)
	if err != nil {
		return err
	}

	downloadDir := *downloads
	if downloadDir == "" {
		downloadDir = *species
	}
	if *clean {
		if err := os.RemoveAll(downloadDir); err != nil {
			return errors.E(err, "build: cleaning downloads directory", downloadDir)
		}
	}
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return errors.E(err, "build: creating downloads directory", downloadDir)
	}
	fastaDir := filepath.Join(downloadDir, "fasta")
	if err := os.MkdirAll(fastaDir, 0o755); err != nil {
		return errors.E(err, "build: creating fasta directory", fastaDir)
	}

	outDir := *dbDir
	if outDir == "" {
		outDir = downloadDir
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.E(err, "build: creating database directory", outDir)
	}

	ctx := context.Background()
	client := download.NewClient()

	profilesPath := filepath.Join(downloadDir, "profiles.list.gz")
	fmt.Fprintln(os.Stderr, "hclink: downloading profiles...")
	if err := client.FetchProfiles(ctx, info.Downloads, profilesPath); err != nil {
		return err
	}

	hierccPath := filepath.Join(downloadDir, "hiercc_profiles.json.gz")
	fmt.Fprintln(os.Stderr, "hclink: downloading HierCC profiles...")
	if err := client.FetchAllHierCCProfiles(ctx, info.Scheme, *apiKey, hierccPath, hierCCPageSize, hierCCSafetyValve); err != nil {
		return err
	}

	loci, err := dbio.ReadLocusNames(profilesPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "hclink: downloading %d locus allele FASTA files...\n", len(loci))
	alleleLoci := make([]alleledb.Locus, len(loci))
	for i, name := range loci {
		destPath := filepath.Join(fastaDir, name+".fasta.gz")
		if err := client.FetchLocusFASTA(ctx, info.Downloads, name, destPath); err != nil {
			return err
		}
		alleleLoci[i] = alleledb.Locus{Name: name, Index: i, Path: destPath}
	}

	return dbio.BuildDatabase(dbio.BuildOpts{
		Version:             *version,
		ProfilesCSVPath:     profilesPath,
		HierCCJSONPath:      hierccPath,
		DBDir:               outDir,
		AlleleLoci:          alleleLoci,
		AlleleDBParallelism: *parallelism,
	}, dbio.Now())
}
