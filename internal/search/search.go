// Package search implements the streaming, parallel, gap-aware
// nearest-neighbor scan over a reference database (design doc section 4.4):
// a producer assembles batches in reference order, a bounded worker pool
// computes per-pair HierCC distance, and a single reducer selects one best
// hit under the tie-break rule resolved in the grounding ledger's Open
// Question decisions. Grounded on markduplicates/mark_duplicates.go's
// generatePAM: a channel of work-items drained by Opts.Parallelism
// goroutines under a sync.WaitGroup.
package search

import (
	"context"
	"io"
	"math"
	"runtime"
	"sync"

	"github.com/grailbio/base/errors"

	"github.com/grailbio/hclink/internal/dbio"
	"github.com/grailbio/hclink/internal/hiercc"
	"github.com/grailbio/hclink/internal/profile"
	"github.com/grailbio/hclink/internal/scheme"
)

// DefaultChunkSize is the default number of reference rows assembled into
// one unit of work dispatched to a worker.
const DefaultChunkSize = 256

// Opts configures Search. Zero values are replaced with defaults by
// validate.
type Opts struct {
	// Parallelism is the number of worker goroutines. 0 => runtime.NumCPU().
	Parallelism int
	// ChunkSize is the number of reference rows per dispatched batch.
	// 0 => DefaultChunkSize.
	ChunkSize int
}

func (o *Opts) validate() {
	if o.Parallelism <= 0 {
		o.Parallelism = runtime.NumCPU()
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
}

// BestHit is the search engine's result: the single reference row selected
// as the query's nearest neighbor, or the sentinel (ST == "") when no
// candidate passed the gap cutoff.
type BestHit struct {
	ST            string
	HierCCCodes   []string
	HierCCDist    float32
	Distance      int
	QueryOnlyGaps int
	RefOnlyGaps   int
	SharedGaps    int
}

// sentinel builds the no-match BestHit for a given query-only-gaps count.
func sentinel(queryGaps int) BestHit {
	return BestHit{
		ST:            "",
		HierCCDist:    float32(math.Inf(1)),
		QueryOnlyGaps: queryGaps,
		RefOnlyGaps:   -1,
		SharedGaps:    queryGaps,
	}
}

// result is one worker's verdict on one reference row.
type result struct {
	hit   BestHit
	valid bool // reduce skips results with valid false; worker sends only rows that passed the gap cutoff, as valid
}

// batch is one unit of dispatched work: a contiguous run of reference rows
// in their on-disk order.
type batch struct {
	rows []dbio.Row
}

// Search streams h's reference rows against query, returning the single
// nearest neighbor under the combined-gap cutoff maxGaps. It implements the
// short-circuit paths of design doc section 4.4: a query whose own gap count
// already meets maxGaps never touches the reference stream, and an
// exhausted or entirely-rejected reference set yields the same sentinel.
func Search(ctx context.Context, query profile.Profile, h *dbio.Handle, maxGaps int, opts Opts) (BestHit, error) {
	opts.validate()

	queryGaps := query.Gaps.PopCount()
	if queryGaps >= maxGaps {
		return sentinel(queryGaps), nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	batchCh := make(chan batch, opts.Parallelism*2)
	resultCh := make(chan result, opts.Parallelism*2)

	var wg sync.WaitGroup
	for i := 0; i < opts.Parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, query, maxGaps, batchCh, resultCh)
		}()
	}

	var produceErr error
	go func() {
		defer close(batchCh)
		produceErr = produce(ctx, h, opts.ChunkSize, batchCh)
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	best, anyValid := reduce(resultCh)

	if produceErr != nil {
		return BestHit{}, errors.E(produceErr, "search: aborted")
	}
	if !anyValid {
		return sentinel(queryGaps), nil
	}
	return best, nil
}

// produce reads h in reference order, assembling rows into chunkSize
// batches and sending them to batchCh. It stops early, returning nil, if ctx
// is canceled.
func produce(ctx context.Context, h *dbio.Handle, chunkSize int, batchCh chan<- batch) error {
	rows := make([]dbio.Row, 0, chunkSize)
	flush := func() bool {
		if len(rows) == 0 {
			return true
		}
		b := batch{rows: rows}
		select {
		case batchCh <- b:
			rows = make([]dbio.Row, 0, chunkSize)
			return true
		case <-ctx.Done():
			return false
		}
	}
	for {
		row, err := h.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		rows = append(rows, row)
		if len(rows) >= chunkSize {
			if !flush() {
				return nil
			}
		}
	}
	flush()
	return nil
}

// worker decodes and compares each row in batches received from batchCh,
// rejecting any whose combined gap count meets maxGaps, and sends every
// surviving verdict to resultCh.
func worker(ctx context.Context, query profile.Profile, maxGaps int, batchCh <-chan batch, resultCh chan<- result) {
	L := query.Gaps.Len()
	for {
		select {
		case b, ok := <-batchCh:
			if !ok {
				return
			}
			for _, row := range b.rows {
				cmp := profile.Compare(query, row.Profile)
				totalGaps := cmp.QueryOnlyGaps + cmp.RefOnlyGaps + cmp.SharedGaps
				if totalGaps >= maxGaps {
					continue
				}
				dist := hiercc.Distance(cmp.Distance, cmp.QueryOnlyGaps, cmp.RefOnlyGaps, cmp.SharedGaps, L)
				select {
				case resultCh <- result{valid: true, hit: BestHit{
					ST:            row.ST.ST,
					HierCCCodes:   row.ST.HierCCCodes,
					HierCCDist:    dist,
					Distance:      cmp.Distance,
					QueryOnlyGaps: cmp.QueryOnlyGaps,
					RefOnlyGaps:   cmp.RefOnlyGaps,
					SharedGaps:    cmp.SharedGaps,
				}}:
				case <-ctx.Done():
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// reduce applies the design doc section 4.4 reducer: lowest HierCC
// distance wins; on a tie, fewer total gaps wins; on a further tie,
// lexicographically-lower ST wins (the ledger's resolution of the spec's
// RECOMMENDED determinism tie-break, tightened to MUST since worker
// arrival order is otherwise unobservable and non-reproducible).
func reduce(resultCh <-chan result) (BestHit, bool) {
	var best BestHit
	found := false
	for r := range resultCh {
		if !r.valid {
			continue
		}
		if !found || isBetter(r.hit, best) {
			best = r.hit
			found = true
		}
	}
	return best, found
}

func isBetter(candidate, current BestHit) bool {
	if candidate.HierCCDist != current.HierCCDist {
		return candidate.HierCCDist < current.HierCCDist
	}
	candTotal := candidate.QueryOnlyGaps + candidate.RefOnlyGaps + candidate.SharedGaps
	currTotal := current.QueryOnlyGaps + current.RefOnlyGaps + current.SharedGaps
	if candTotal != currTotal {
		return candTotal < currTotal
	}
	return candidate.ST < current.ST
}

// AssignResult is the fully-resolved per-query output (design doc section
// 4.6/6.3): the best hit plus its HierCC codes at every clustering
// threshold.
type AssignResult struct {
	BestHit
	Codes []hiercc.LabeledCode
}

// Assign runs Search and projects the winning HierCC distance through every
// clustering threshold, producing the complete per-query result.
func Assign(ctx context.Context, query profile.Profile, h *dbio.Handle, md *scheme.Metadata, opts Opts) (AssignResult, error) {
	hit, err := Search(ctx, query, h, md.MaxGaps, opts)
	if err != nil {
		return AssignResult{}, err
	}
	codes, err := hiercc.InferCode(hit.HierCCDist, md.Thresholds, hit.HierCCCodes, md.Prepend)
	if err != nil {
		return AssignResult{}, err
	}
	return AssignResult{BestHit: hit, Codes: codes}, nil
}
