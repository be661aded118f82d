package download

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	return &Client{
		HTTP:            http.DefaultClient,
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestFetchProfilesWritesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/profiles.list.gz", r.URL.Path)
		_, _ = w.Write([]byte("gzipped-csv-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "profiles.list.gz")
	require.NoError(t, testClient().FetchProfiles(context.Background(), srv.URL, dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "gzipped-csv-bytes", string(got))
}

func TestFetchProfiles4xxIsPermanentFailure(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "profiles.list.gz")
	err := testClient().FetchProfiles(context.Background(), srv.URL, dest)
	assert.Error(t, err)
	assert.Equal(t, 1, hits) // 4xx is permanent, no retry
}

func TestFetchProfiles5xxRetriesThenSucceeds(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := testClient()
	dest := filepath.Join(t.TempDir(), "profiles.list.gz")
	require.NoError(t, c.FetchProfiles(context.Background(), srv.URL, dest))
	assert.GreaterOrEqual(t, hits, 2)
}

func TestFetchHierCCBatchSendsAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Basic secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(HierCCBatch{STs: []json.RawMessage{[]byte(`{"ST_id":"1"}`)}})
	}))
	defer srv.Close()

	batch, err := testClient().FetchHierCCBatch(context.Background(), srv.URL+"?x=1", "secret", 0, 100)
	require.NoError(t, err)
	require.Len(t, batch.STs, 1)
}

func TestFetchAllHierCCProfilesStopsOnEmptyPage(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_ = json.NewEncoder(w).Encode(HierCCBatch{STs: []json.RawMessage{[]byte(`{"ST_id":"1"}`)}})
			return
		}
		_ = json.NewEncoder(w).Encode(HierCCBatch{})
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "hiercc.json.gz")
	require.NoError(t, testClient().FetchAllHierCCProfiles(context.Background(), srv.URL+"?x=1", "secret", dest, 1, 10))
	assert.Equal(t, 2, calls)

	f, err := os.Open(dest)
	require.NoError(t, err)
	defer f.Close() // nolint: errcheck
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)
	var all []json.RawMessage
	require.NoError(t, json.Unmarshal(body, &all))
	assert.Len(t, all, 1)
}

func TestFetchLocusFASTASkipsExistingFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "locusA.fasta.gz")
	require.NoError(t, os.WriteFile(dest, []byte("existing"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not be called when destination already exists")
	}))
	defer srv.Close()

	require.NoError(t, testClient().FetchLocusFASTA(context.Background(), srv.URL, "locusA", dest))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "existing", string(got))
}
