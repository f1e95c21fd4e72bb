package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ruteri/script-provisioning-agent/interfaces"
)

const (
	DefaultAttempts   = 30
	DefaultRetryDelay = 15 * time.Second
)

// RetryPolicy controls how often and how fast a failed download is retried.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration

	// BeforeRetry runs after the delay and before the next attempt.
	BeforeRetry func(ctx context.Context, sourceURI string, attempt int, err error)
}

// DefaultRetryPolicy returns the stock policy with the given pre-retry hook (may be nil).
func DefaultRetryPolicy(beforeRetry func(ctx context.Context, sourceURI string, attempt int, err error)) RetryPolicy {
	return RetryPolicy{
		Attempts:    DefaultAttempts,
		Delay:       DefaultRetryDelay,
		BeforeRetry: beforeRetry,
	}
}

// Fetcher performs a single transfer of sourceURI into destPath.
type Fetcher interface {
	FetchTo(ctx context.Context, sourceURI string, destPath string) error
}

// Downloader fetches files with a fixed-delay retry loop.
type Downloader struct {
	Policy  RetryPolicy
	Fetcher Fetcher

	log   *slog.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDownloader(policy RetryPolicy, fetcher Fetcher, log *slog.Logger) *Downloader {
	if fetcher == nil {
		fetcher = NewHTTPFetcher(nil)
	}
	return &Downloader{
		Policy:  policy,
		Fetcher: fetcher,
		log:     log,
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fetch downloads sourceURI into targetDir and returns the local path.
// It makes up to Policy.Attempts attempts and never sleeps after the last one.
func (d *Downloader) Fetch(ctx context.Context, targetDir string, sourceURI string) (string, error) {
	name, err := FileNameFromURI(sourceURI)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", fmt.Errorf("could not create download directory: %w", err)
	}
	destPath := filepath.Join(targetDir, name)

	attempts := d.Policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = d.Fetcher.FetchTo(ctx, sourceURI, destPath)
		if lastErr == nil {
			d.log.Info("Downloaded file",
				slog.String("file", name),
				slog.Int("attempt", attempt))
			return destPath, nil
		}

		d.log.Warn("Download attempt failed",
			slog.String("file", name),
			slog.Int("attempt", attempt),
			slog.Int("attempts", attempts),
			"err", lastErr)

		if attempt == attempts {
			break
		}

		if err := d.sleep(ctx, d.Policy.Delay); err != nil {
			return "", fmt.Errorf("download of %s interrupted: %w", name, err)
		}
		if d.Policy.BeforeRetry != nil {
			d.Policy.BeforeRetry(ctx, sourceURI, attempt, lastErr)
		}
	}

	return "", fmt.Errorf("%w: %s after %d attempts: %w", interfaces.ErrDownloadExhausted, name, attempts, lastErr)
}

// FileNameFromURI returns the last path segment of uri. The query string
// (SAS token) is not part of the name.
func FileNameFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid download uri: %w", err)
	}

	p := strings.TrimRight(u.EscapedPath(), "/")
	name := path.Base(p)
	if p == "" || name == "." || name == "/" || name == ".." {
		return "", fmt.Errorf("download uri %q has no file name", uri)
	}

	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("download uri %q has an invalid file name", uri)
	}

	return name, nil
}

// HTTPFetcher downloads over HTTP(S) with GET.
type HTTPFetcher struct {
	Client *http.Client
}

func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{Client: client}
}

// FetchTo streams the response body into destPath via a .partial file.
func (h *HTTPFetcher) FetchTo(ctx context.Context, sourceURI string, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURI, nil)
	if err != nil {
		return err
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return fmt.Errorf("could not request %s%s: %w", req.URL.Host, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("download returned error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	partial := destPath + ".partial"
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("could not write %s: %w", destPath, err)
	}

	return os.Rename(partial, destPath)
}
