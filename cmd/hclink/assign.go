package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"math"
	"os"
	"strings"

	"github.com/grailbio/base/errors"

	"github.com/grailbio/hclink/internal/alleledb"
	"github.com/grailbio/hclink/internal/dbio"
	"github.com/grailbio/hclink/internal/profile"
	"github.com/grailbio/hclink/internal/search"
)

const hclinkVersion = "1.0.0"

// query is the input shape read from the query path or stdin.
type query struct {
	Code string `json:"code"`
}

// versions is the version/datestamp pair echoed on every response (design
// doc section 6.3).
type versions struct {
	Hclink  string `json:"hclink"`
	Library string `json:"library"`
}

// assignOutput is the per-query result JSON.
type assignOutput struct {
	Versions       versions   `json:"versions"`
	ClosestST      string     `json:"closestST"`
	Distance       int        `json:"distance"`
	HierCCDistance float64    `json:"hierccDistance"`
	SharedGaps     int        `json:"sharedGaps"`
	QueryGaps      int        `json:"queryGaps"`
	ReferenceGaps  int        `json:"referenceGaps"`
	HierCC         [][2]string `json:"hierCC"`
}

// runAssign resolves one query against a reference database and writes the
// result JSON to stdout (design doc section 2.3/4.6).
func runAssign(args []string) error {
	fs := flag.NewFlagSet("assign", flag.ExitOnError)
	referenceDB := fs.String("reference-db", ".", "Reference database directory.")
	numThreads := fs.Int("num-threads", 0, "Worker parallelism. 0 => hardware concurrency.")
	batchSize := fs.Int("batch-size", 0, "Reference rows per dispatched batch. 0 => default.")
	// The query path is taken as the first non-flag argument wherever it
	// falls, since flag.FlagSet.Parse otherwise stops at it.
	queryPath, flagArgs := extractPositional(args)
	if err := fs.Parse(flagArgs); err != nil {
		return err
	}
	if queryPath == "" {
		return errors.E(errors.Invalid, "assign: expected exactly one query-path-or-'-' argument")
	}

	q, err := readQuery(queryPath)
	if err != nil {
		return err
	}

	h, err := dbio.Open(*referenceDB)
	if err != nil {
		return err
	}
	defer h.Close() // nolint: errcheck

	var resolver profile.Resolver = profile.NullResolver{}
	if store, err := alleledb.Open(h.AlleleDBPath()); err == nil {
		defer store.Close() // nolint: errcheck
		resolver = store
	}

	qp, err := profile.Encode(q.Code, h.Metadata.FamilySizes, h.Metadata.ArraySize, resolver)
	if err != nil {
		return err
	}

	result, err := search.Assign(context.Background(), qp, h, h.Metadata, search.Opts{
		Parallelism: *numThreads,
		ChunkSize:   *batchSize,
	})
	if err != nil {
		return err
	}

	out := assignOutput{
		Versions:       versions{Hclink: hclinkVersion, Library: h.Metadata.Datestamp},
		ClosestST:      result.ST,
		Distance:       result.Distance,
		HierCCDistance: round2(float64(result.HierCCDist)),
		SharedGaps:     result.SharedGaps,
		QueryGaps:      result.QueryOnlyGaps,
		ReferenceGaps:  result.RefOnlyGaps,
		HierCC:         make([][2]string, len(result.Codes)),
	}
	for i, c := range result.Codes {
		out.HierCC[i] = [2]string{c.Label, c.Code}
	}

	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(out)
}

// assignValueFlags names the assign subcommand's flags that consume a
// following argument as their value, so extractPositional doesn't mistake a
// flag's value for the query path.
var assignValueFlags = map[string]bool{
	"reference-db": true,
	"num-threads":  true,
	"batch-size":   true,
}

// extractPositional pulls the query-path-or-'-' argument out of args
// wherever it appears, returning it along with the remaining tokens in
// flag-parseable order. This lets the CLI surface match design doc section
// 6.2's `assign <query-path-or-'-'> [--flags]` form, which places the
// positional argument before the flags flag.FlagSet otherwise expects first.
func extractPositional(args []string) (positional string, flagArgs []string) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "-" || a == "" || a[0] != '-' {
			if positional == "" {
				positional = a
				continue
			}
			flagArgs = append(flagArgs, a)
			continue
		}
		flagArgs = append(flagArgs, a)
		name := strings.TrimLeft(a, "-")
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			continue
		}
		if assignValueFlags[name] && i+1 < len(args) {
			i++
			flagArgs = append(flagArgs, args[i])
		}
	}
	return positional, flagArgs
}

func readQuery(path string) (query, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return query{}, errors.E(err, "assign: opening query file", path)
		}
		defer f.Close() // nolint: errcheck
		r = f
	}
	var q query
	if err := json.NewDecoder(r).Decode(&q); err != nil {
		return query{}, errors.E(err, "assign: decoding query JSON", path)
	}
	return q, nil
}

func round2(v float64) float64 {
	if math.IsInf(v, 1) || math.IsInf(v, -1) || math.IsNaN(v) {
		return v
	}
	return math.Round(v*100) / 100
}
