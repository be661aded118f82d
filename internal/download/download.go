// Package download is the thin HTTP collaborator spec.md section 1 places
// out of core scope: fetching profiles, HierCC codes, and per-locus allele
// FASTA files from an upstream scheme provider. Only its call shape is
// specified (design doc section 2.3); swapping its implementation does not
// alter any core algorithm.
package download

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/grailbio/base/errors"
)

// Client fetches upstream resources with exponential-backoff retry,
// replacing the Python original's `tenacity`-decorated
// `download_resource`/`fetch_hiercc_batch` (design doc ledger entry for
// internal/download).
type Client struct {
	HTTP       *http.Client
	MaxRetries uint64

	// InitialInterval and MaxInterval override the backoff schedule when
	// non-zero; tests shrink them to keep retry assertions fast.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// NewClient returns a Client with sane defaults.
func NewClient() *Client {
	return &Client{
		HTTP:            http.DefaultClient,
		MaxRetries:      5,
		InitialInterval: 4 * time.Second,
		MaxInterval:     240 * time.Second,
	}
}

func (c *Client) backoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		b.InitialInterval = c.InitialInterval
	}
	if c.MaxInterval > 0 {
		b.MaxInterval = c.MaxInterval
	}
	return backoff.WithMaxRetries(b, c.MaxRetries)
}

// FetchProfiles downloads the gzipped cgMLST profiles CSV from the scheme's
// downloads base URL to destPath.
func (c *Client) FetchProfiles(ctx context.Context, downloadsBaseURL, destPath string) error {
	url := downloadsBaseURL + "/profiles.list.gz"
	return c.downloadToFile(ctx, url, nil, destPath)
}

func (c *Client) downloadToFile(ctx context.Context, url string, headers map[string]string, destPath string) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(errors.E(err, "download: building request", url))
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return errors.E(err, "download: request failed", url)
		}
		defer resp.Body.Close() // nolint: errcheck
		if resp.StatusCode != http.StatusOK {
			err := errors.E(errors.Precondition, "download: upstream returned", resp.Status, url)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		out, err := os.Create(destPath)
		if err != nil {
			return backoff.Permanent(errors.E(err, "download: creating output", destPath))
		}
		defer out.Close() // nolint: errcheck
		_, err = io.Copy(out, resp.Body)
		return err
	}
	if err := backoff.Retry(op, c.backoff()); err != nil {
		return errors.E(err, "download: exhausted retries", url)
	}
	return nil
}

// HierCCBatch is one page of the paginated HierCC API response.
type HierCCBatch struct {
	STs []json.RawMessage `json:"STs"`
}

// FetchHierCCBatch fetches a single page of HierCC records (design doc
// section 2.3, grounded on
// original_source/src/hclink/build.py: fetch_hiercc_batch).
func (c *Client) FetchHierCCBatch(ctx context.Context, url, apiKey string, offset, limit int) (*HierCCBatch, error) {
	pagedURL := fmt.Sprintf("%s&limit=%d&offset=%d", url, limit, offset)
	var batch HierCCBatch
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pagedURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Basic "+apiKey)
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close() // nolint: errcheck
		if resp.StatusCode != http.StatusOK {
			err := errors.E(errors.Precondition, "download: HierCC API returned", resp.Status)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		return json.NewDecoder(resp.Body).Decode(&batch)
	}
	if err := backoff.Retry(op, c.backoff()); err != nil {
		return nil, errors.E(err, "download: fetching HierCC batch")
	}
	return &batch, nil
}

// FetchAllHierCCProfiles pages through the HierCC API, pageSize records per
// request, until an empty page is returned or the request offset reaches
// safetyValve records, and writes the concatenated raw ST records as a
// gzipped JSON array to destPath.
func (c *Client) FetchAllHierCCProfiles(ctx context.Context, url, apiKey, destPath string, pageSize, safetyValve int) error {
	var all []json.RawMessage
	for offset := 0; offset < safetyValve; offset += pageSize {
		batch, err := c.FetchHierCCBatch(ctx, url, apiKey, offset, pageSize)
		if err != nil {
			return err
		}
		if len(batch.STs) == 0 {
			break
		}
		all = append(all, batch.STs...)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return errors.E(err, "download: creating HierCC output", destPath)
	}
	defer out.Close() // nolint: errcheck
	gz := gzip.NewWriter(out)
	if err := json.NewEncoder(gz).Encode(all); err != nil {
		gz.Close() // nolint: errcheck
		return errors.E(err, "download: encoding HierCC output", destPath)
	}
	return gz.Close()
}

// FetchLocusFASTA downloads one locus's gzipped allele FASTA, skipping the
// download if destPath already exists (matching the original's
// `gene_fasta.exists()` short-circuit).
func (c *Client) FetchLocusFASTA(ctx context.Context, baseURL, gene, destPath string) error {
	if _, err := os.Stat(destPath); err == nil {
		return nil
	}
	url := fmt.Sprintf("%s/%s.fasta.gz", baseURL, gene)
	return c.downloadToFile(ctx, url, nil, destPath)
}
