package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFetcher struct {
	urls []string
	body string
}

func (r *recordingFetcher) Download(_ context.Context, url string) (io.ReadCloser, error) {
	r.urls = append(r.urls, url)
	return io.NopCloser(strings.NewReader(r.body)), nil
}

func (r *recordingFetcher) DownloadToFile(ctx context.Context, url, path string) (int64, error) {
	body, err := r.Download(ctx, url)
	if err != nil {
		return 0, err
	}
	return copyToFile(body, path)
}

func TestResolve_LocalPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dsm.tif")
	require.NoError(t, os.WriteFile(path, []byte("tif"), 0o644))

	r := &Resolver{}
	got, err := r.Resolve(context.Background(), path, t.TempDir(), "dsm.tif")
	require.NoError(t, err)
	assert.Equal(t, path, got)

	got, err = r.Resolve(context.Background(), "file://"+path, t.TempDir(), "dsm.tif")
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestResolve_MissingLocalPath(t *testing.T) {
	_, err := (&Resolver{}).Resolve(context.Background(), filepath.Join(t.TempDir(), "nope.tif"), t.TempDir(), "dsm.tif")
	require.Error(t, err)
}

func TestResolve_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("raster bytes"))
	}))
	defer srv.Close()

	r := &Resolver{HTTP: newTestFetcher()}
	dest := t.TempDir()
	got, err := r.Resolve(context.Background(), srv.URL+"/exports/site_dsm.tif", dest, "dsm.tif")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "site_dsm.tif"), got)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "raster bytes", string(data))
}

func TestResolve_DriveLinkRewritten(t *testing.T) {
	rec := &recordingFetcher{body: "tif"}
	r := &Resolver{HTTP: rec}
	dest := t.TempDir()

	got, err := r.Resolve(context.Background(), "https://drive.google.com/file/d/abc123/view?usp=sharing", dest, "dsm.tif")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "dsm.tif"), got)
	require.Len(t, rec.urls, 1)
	assert.Equal(t, "https://drive.google.com/uc?confirm=t&export=download&id=abc123", rec.urls[0])
}

func TestResolve_FTPUsesFTPFetcher(t *testing.T) {
	ftpRec := &recordingFetcher{body: "tif"}
	httpRec := &recordingFetcher{}
	r := &Resolver{HTTP: httpRec, FTP: ftpRec}
	dest := t.TempDir()

	got, err := r.Resolve(context.Background(), "ftp://host/uav/dsm_2024.tif", dest, "dsm.tif")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "dsm_2024.tif"), got)
	assert.Len(t, ftpRec.urls, 1)
	assert.Empty(t, httpRec.urls)
}

func TestResolve_Errors(t *testing.T) {
	r := &Resolver{HTTP: &recordingFetcher{}}
	_, err := r.Resolve(context.Background(), "", t.TempDir(), "dsm.tif")
	require.Error(t, err)

	_, err = r.Resolve(context.Background(), "s3://bucket/dsm.tif", t.TempDir(), "dsm.tif")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")

	_, err = r.Resolve(context.Background(), "https://drive.google.com/drive/folders", t.TempDir(), "dsm.tif")
	require.Error(t, err)
}
