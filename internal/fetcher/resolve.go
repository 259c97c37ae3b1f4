package fetcher

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Resolver turns a source reference into a local file path, downloading
// remote sources into a work directory.
type Resolver struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewResolver creates a Resolver backed by the default HTTP and FTP fetchers.
func NewResolver(httpOpts HTTPOptions, ftpOpts FTPOptions) *Resolver {
	return &Resolver{
		HTTP: NewHTTPFetcher(httpOpts),
		FTP:  NewFTPFetcher(ftpOpts),
	}
}

// Resolve returns a local path for src. Local paths are checked and returned
// as is; http(s), ftp and Google Drive links are downloaded into destDir
// under fallbackName when the URL carries no usable file name.
func (r *Resolver) Resolve(ctx context.Context, src, destDir, fallbackName string) (string, error) {
	if src == "" {
		return "", eris.New("resolve: empty source")
	}

	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain path (a one-letter scheme is a Windows drive).
		if _, statErr := os.Stat(src); statErr != nil {
			return "", eris.Wrapf(statErr, "resolve: stat %s", src)
		}
		return src, nil
	}

	var (
		f      Fetcher
		target = src
		name   = fallbackName
	)
	switch strings.ToLower(u.Scheme) {
	case "file":
		if _, statErr := os.Stat(u.Path); statErr != nil {
			return "", eris.Wrapf(statErr, "resolve: stat %s", u.Path)
		}
		return u.Path, nil
	case "http", "https":
		f = r.HTTP
		if IsDriveLink(src) {
			target, err = DriveDirectURL(src)
			if err != nil {
				return "", err
			}
		} else if base := path.Base(u.Path); strings.Contains(base, ".") {
			name = base
		}
	case "ftp":
		f = r.FTP
		if base := path.Base(u.Path); strings.Contains(base, ".") {
			name = base
		}
	default:
		return "", eris.Errorf("resolve: unsupported scheme %q", u.Scheme)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "resolve: create work dir")
	}
	dest := filepath.Join(destDir, filepath.Base(name))

	n, err := f.DownloadToFile(ctx, target, dest)
	if err != nil {
		return "", eris.Wrapf(err, "resolve: fetch %s", u.Redacted())
	}
	zap.L().Info("resolve: downloaded source",
		zap.String("source", u.Redacted()),
		zap.String("path", dest),
		zap.Int64("bytes", n),
	)
	return dest, nil
}
