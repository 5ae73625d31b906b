package census

import (
	"archive/zip"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DownloadOptions configures the boundary downloader.
type DownloadOptions struct {
	Timeout    time.Duration // per-request timeout (default 10 minutes)
	RatePerSec float64       // request rate toward census.gov (default 1/s)
	MaxRetries int           // HTTP retry attempts (default 3)
}

// Downloader fetches Census boundary ZIP archives over HTTP or FTP and
// extracts the contained shapefile.
type Downloader struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    DownloadOptions
}

// NewDownloader creates a Downloader with the given options.
func NewDownloader(opts DownloadOptions) *Downloader {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.RatePerSec == 0 {
		opts.RatePerSec = 1
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	return &Downloader{
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
		opts:    opts,
	}
}

// Download fetches a boundary ZIP archive and extracts its shapefile.
// Returns the path to the extracted .shp file. An existing non-empty ZIP in
// destDir is reused without re-downloading.
func (d *Downloader) Download(ctx context.Context, rawURL, destDir string) (string, error) {
	log := zap.L().With(
		zap.String("component", "census.download"),
		zap.String("url", rawURL),
	)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "census: create dest dir")
	}

	// Derive ZIP filename from URL.
	parts := strings.Split(rawURL, "/")
	zipName := parts[len(parts)-1]
	zipPath := filepath.Join(destDir, zipName)

	// Skip download if ZIP already exists with content.
	if info, err := os.Stat(zipPath); err == nil && info.Size() > 0 {
		log.Debug("zip already exists, skipping download", zap.String("path", zipPath))
	} else {
		log.Info("downloading boundary archive")
		if err := d.fetch(ctx, rawURL, zipPath); err != nil {
			return "", eris.Wrap(err, "census: download boundary archive")
		}
	}

	// Extract ZIP.
	extractDir := filepath.Join(destDir, strings.TrimSuffix(zipName, ".zip"))
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", eris.Wrap(err, "census: create extract dir")
	}
	if err := extractZIP(zipPath, extractDir); err != nil {
		return "", eris.Wrap(err, "census: extract ZIP")
	}

	// Find the .shp file.
	shpPath, err := findFileByExt(extractDir, ".shp")
	if err != nil {
		return "", eris.Wrap(err, "census: find .shp file")
	}

	return shpPath, nil
}

// fetch dispatches on URL scheme: ftp:// goes through the FTP path, anything
// else through HTTP with retries.
func (d *Downloader) fetch(ctx context.Context, rawURL, dest string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return eris.Wrap(err, "parse url")
	}
	if u.Scheme == "ftp" {
		return d.fetchFTP(ctx, u, dest)
	}
	return d.fetchHTTP(ctx, rawURL, dest)
}

// fetchHTTP downloads a URL to a local file with rate limiting and retries.
func (d *Downloader) fetchHTTP(ctx context.Context, rawURL, dest string) error {
	var lastErr error
	for attempt := 0; attempt < d.opts.MaxRetries; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "rate limit wait")
		}
		if attempt > 0 {
			zap.L().Warn("census: retrying download",
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return eris.Wrap(ctx.Err(), "download cancelled")
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			}
		}

		lastErr = d.tryHTTP(ctx, rawURL, dest)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (d *Downloader) tryHTTP(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("download returned status %d", resp.StatusCode)
	}

	return writeToFile(dest, resp.Body)
}

// fetchFTP retrieves a file from an anonymous FTP server.
func (d *Downloader) fetchFTP(ctx context.Context, u *url.URL, dest string) error {
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "21")
	}
	if u.Path == "" {
		return eris.New("empty path in ftp url")
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(d.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "ftp dial")
	}
	defer func() { _ = conn.Quit() }()

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		return eris.Wrap(err, "ftp login")
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return eris.Wrap(err, "ftp retrieve")
	}
	defer func() { _ = resp.Close() }()

	return writeToFile(dest, resp)
}

// writeToFile copies a reader to a newly created file.
func writeToFile(dest string, r io.Reader) error {
	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, r); err != nil {
		return eris.Wrap(err, "write file")
	}
	return nil
}

// extractZIP extracts a ZIP archive to the destination directory.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		name := filepath.Base(f.Name)
		destPath := filepath.Join(destDir, name)

		if f.FileInfo().IsDir() {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return eris.Wrapf(err, "open zip entry %s", f.Name)
		}

		if err := writeToFile(destPath, rc); err != nil {
			_ = rc.Close()
			return eris.Wrapf(err, "extract %s", f.Name)
		}
		_ = rc.Close()
	}

	return nil
}

// findFileByExt finds the first file with the given extension in a directory.
func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("no %s file found in %s", ext, dir)
}
