package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ruteri/script-provisioning-agent/cryptoutils"
	"github.com/ruteri/script-provisioning-agent/interfaces"
)

const (
	// DefaultEndpointSuffix is the public cloud blob service domain.
	DefaultEndpointSuffix = "blob.core.windows.net"

	// StorageAPIVersion is sent as x-ms-version on every request.
	StorageAPIVersion = "2019-12-12"

	// HeaderVersion carries StorageAPIVersion.
	HeaderVersion = "x-ms-version"
	// HeaderDate carries the RFC1123 request time in GMT.
	HeaderDate = "x-ms-date"
	// HeaderBlobType is set on uploads only.
	HeaderBlobType = "x-ms-blob-type"

	// BlockBlob is the only blob type uploaded.
	BlockBlob = "BlockBlob"
)

// BlobClient performs single-shot signed PUT and GET requests for one blob at a time.
// It never retries; transient failures are returned to the caller.
type BlobClient struct {
	// EndpointSuffix defaults to DefaultEndpointSuffix.
	EndpointSuffix string
	// Scheme defaults to https.
	Scheme string
	// Host overrides {account}.{EndpointSuffix}, e.g. for a local emulator.
	Host string

	HTTPClient *http.Client
	Now        func() time.Time
	log        *slog.Logger
}

// NewBlobClient creates a blob client for the given endpoint suffix.
func NewBlobClient(endpointSuffix string, log *slog.Logger) *BlobClient {
	if endpointSuffix == "" {
		endpointSuffix = DefaultEndpointSuffix
	}
	if log == nil {
		log = slog.Default()
	}
	return &BlobClient{
		EndpointSuffix: endpointSuffix,
		Scheme:         "https",
		HTTPClient:     http.DefaultClient,
		Now:            time.Now,
		log:            log,
	}
}

// Upload stores data as a block blob at blobPath.
func (c *BlobClient) Upload(ctx context.Context, cred interfaces.StorageCredential, blobPath string, data []byte) error {
	start := c.now()
	blobPath = TrimBlobPath(blobPath)

	resp, err := c.do(ctx, cred, http.MethodPut, blobPath, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	c.log.Debug("Uploaded blob",
		slog.String("account", cred.AccountName),
		slog.String("blob", blobPath),
		slog.Int("size", len(data)),
		slog.Duration("duration", c.now().Sub(start)))

	return nil
}

// UploadFile reads filePath and uploads its content to blobPath.
func (c *BlobClient) UploadFile(ctx context.Context, cred interfaces.StorageCredential, blobPath string, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	return c.Upload(ctx, cred, blobPath, data)
}

// Download fetches blobPath. When outputFile is not empty the body is also written there.
func (c *BlobClient) Download(ctx context.Context, cred interfaces.StorageCredential, blobPath string, outputFile string) ([]byte, error) {
	blobPath = TrimBlobPath(blobPath)

	resp, err := c.do(ctx, cred, http.MethodGet, blobPath, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob body: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", outputFile, err)
		}
	}

	c.log.Debug("Downloaded blob",
		slog.String("account", cred.AccountName),
		slog.String("blob", blobPath),
		slog.Int("size", len(data)))

	return data, nil
}

// BlobURL returns the URL of blobPath in the credential's account.
func (c *BlobClient) BlobURL(accountName string, blobPath string) string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "https"
	}
	host := c.Host
	if host == "" {
		suffix := c.EndpointSuffix
		if suffix == "" {
			suffix = DefaultEndpointSuffix
		}
		host = accountName + "." + suffix
	}
	return fmt.Sprintf("%s://%s/%s", scheme, host, TrimBlobPath(blobPath))
}

func (c *BlobClient) do(ctx context.Context, cred interfaces.StorageCredential, method string, blobPath string, body []byte) (*http.Response, error) {
	target := c.BlobURL(cred.AccountName, blobPath)

	headers := map[string]string{
		HeaderVersion: StorageAPIVersion,
		HeaderDate:    c.now().UTC().Format(http.TimeFormat),
	}
	if method == http.MethodPut {
		headers[HeaderBlobType] = BlockBlob
	}

	authorization, err := cryptoutils.SignSharedKeyLite(cred, method, target, headers)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob request: %w", err)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	req.Header.Set("Authorization", authorization)
	if method == http.MethodPut {
		req.ContentLength = int64(len(body))
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob %s %s: %w", method, blobPath, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s %s returned %d: %s", interfaces.ErrBlobRequest, method, blobPath, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	return resp, nil
}

func (c *BlobClient) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// TrimBlobPath strips a single leading path separator.
func TrimBlobPath(blobPath string) string {
	if strings.HasPrefix(blobPath, "/") || strings.HasPrefix(blobPath, `\`) {
		return blobPath[1:]
	}
	return blobPath
}
